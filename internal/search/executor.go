package search

import (
	"context"

	"torrentstream/catalog/internal/domain"
)

// Executor runs a Plan against one storage technology. Every implementation
// applies the same visibility, category, quality and ordering semantics;
// storage failures are returned wrapped in domain.ErrBackendUnavailable.
type Executor interface {
	Name() string
	Count(ctx context.Context, plan Plan) (int64, error)
	Fetch(ctx context.Context, plan Plan, offset, limit int) ([]domain.TorrentView, error)
}

// CountingFetcher is implemented by backends that report the total match
// count as part of the page query, so no separate count round-trip is needed.
type CountingFetcher interface {
	FetchCounted(ctx context.Context, plan Plan, offset, limit int) ([]domain.TorrentView, int64, error)
}

// Pinger is an optional health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog is the read-only lookup surface the planner and service need from
// the source-of-truth store.
type Catalog interface {
	CategoryExists(ctx context.Context, category domain.Category) (bool, error)
	UserExists(ctx context.Context, id domain.UserID) (bool, error)
	TorrentByInfoHash(ctx context.Context, infoHash string) (domain.TorrentView, bool, error)
	UserByName(ctx context.Context, name string) (domain.User, bool, error)
}
