package sqlite

import (
	"context"
	"database/sql"
	"time"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/search"
)

const relationalName = "relational"

// Relational executes plans with ad-hoc SQL over the FTS5-indexed schema.
type Relational struct {
	db *sql.DB
}

func NewRelational(db *DB) *Relational {
	return &Relational{db: db.Conn()}
}

func (r *Relational) Name() string {
	return relationalName
}

func (r *Relational) Count(ctx context.Context, plan search.Plan) (int64, error) {
	stmt := buildCount(plan)
	var n int64
	if err := r.db.QueryRowContext(ctx, stmt.sql, stmt.args...).Scan(&n); err != nil {
		return 0, domain.BackendUnavailable(relationalName, err)
	}
	return n, nil
}

func (r *Relational) Fetch(ctx context.Context, plan search.Plan, offset, limit int) ([]domain.TorrentView, error) {
	stmt := buildFetch(plan, offset, limit)
	rows, err := r.db.QueryContext(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, domain.BackendUnavailable(relationalName, err)
	}
	items, err := scanViews(rows)
	if err != nil {
		return nil, domain.BackendUnavailable(relationalName, err)
	}
	return items, nil
}

func (r *Relational) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViews(rows *sql.Rows) ([]domain.TorrentView, error) {
	defer rows.Close()

	items := make([]domain.TorrentView, 0)
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, view)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanView(row rowScanner) (domain.TorrentView, error) {
	var (
		view        domain.TorrentView
		flags       int64
		uploader    sql.NullInt64
		created     int64
		lastUpdated sql.NullInt64
	)
	err := row.Scan(
		&view.ID,
		&view.InfoHash,
		&view.DisplayName,
		&view.SizeBytes,
		&flags,
		&uploader,
		&view.Category.MainID,
		&view.Category.SubID,
		&view.CommentCount,
		&created,
		&view.Stats.Seeders,
		&view.Stats.Leechers,
		&view.Stats.Downloads,
		&lastUpdated,
	)
	if err != nil {
		return domain.TorrentView{}, err
	}

	view.Flags = domain.FlagsFromBitmask(flags)
	if uploader.Valid {
		view.UploaderID = domain.UserID(uploader.Int64)
	}
	view.CreatedAt = time.Unix(created, 0).UTC()
	view.Stats.TorrentID = view.ID
	if lastUpdated.Valid {
		ts := time.Unix(lastUpdated.Int64, 0).UTC()
		view.Stats.LastUpdatedAt = &ts
	}
	return view, nil
}
