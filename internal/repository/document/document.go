// Package document holds the denormalised torrent shape shared by the
// document-search backends. One document carries the torrent, its statistics
// and one boolean field per attribute flag.
package document

import (
	"context"
	"fmt"
	"time"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/search"
)

// Field names as stored in every document backend.
const (
	FieldID            = "id"
	FieldInfoHash      = "info_hash"
	FieldDisplayName   = "display_name"
	FieldFilesize      = "filesize"
	FieldCreatedTime   = "created_time"
	FieldUploaderID    = "uploader_id"
	FieldMainCategory  = "main_category_id"
	FieldSubCategory   = "sub_category_id"
	FieldCommentCount  = "comment_count"
	FieldSeedCount     = "seed_count"
	FieldLeechCount    = "leech_count"
	FieldDownloadCount = "download_count"
	FieldStatsUpdated  = "stats_last_updated"
)

// SortFields maps backend-neutral sort fields to document fields.
var SortFields = map[search.SortField]string{
	search.FieldID:        FieldID,
	search.FieldSize:      FieldFilesize,
	search.FieldComments:  FieldCommentCount,
	search.FieldSeeders:   FieldSeedCount,
	search.FieldLeechers:  FieldLeechCount,
	search.FieldDownloads: FieldDownloadCount,
}

// FlagField is the document field holding one attribute flag.
func FlagField(f domain.Flag) string {
	return f.String()
}

// Torrent is the indexed form of a TorrentView. UploaderID is zero for
// torrents without a known uploader.
type Torrent struct {
	ID            int64  `json:"id" bson:"_id"`
	InfoHash      string `json:"info_hash" bson:"info_hash"`
	DisplayName   string `json:"display_name" bson:"display_name"`
	Filesize      int64  `json:"filesize" bson:"filesize"`
	CreatedTime   int64  `json:"created_time" bson:"created_time"`
	UploaderID    int64  `json:"uploader_id" bson:"uploader_id"`
	MainCategory  int    `json:"main_category_id" bson:"main_category_id"`
	SubCategory   int    `json:"sub_category_id" bson:"sub_category_id"`
	CommentCount  int    `json:"comment_count" bson:"comment_count"`
	Anonymous     bool   `json:"anonymous" bson:"anonymous"`
	Hidden        bool   `json:"hidden" bson:"hidden"`
	Trusted       bool   `json:"trusted" bson:"trusted"`
	Remake        bool   `json:"remake" bson:"remake"`
	Complete      bool   `json:"complete" bson:"complete"`
	Deleted       bool   `json:"deleted" bson:"deleted"`
	Banned        bool   `json:"banned" bson:"banned"`
	CommentLocked bool   `json:"comment_locked" bson:"comment_locked"`
	SeedCount     int    `json:"seed_count" bson:"seed_count"`
	LeechCount    int    `json:"leech_count" bson:"leech_count"`
	DownloadCount int    `json:"download_count" bson:"download_count"`
	StatsUpdated  *int64 `json:"stats_last_updated,omitempty" bson:"stats_last_updated,omitempty"`
}

func FromView(v domain.TorrentView) Torrent {
	doc := Torrent{
		ID:            int64(v.ID),
		InfoHash:      v.InfoHash,
		DisplayName:   v.DisplayName,
		Filesize:      v.SizeBytes,
		CreatedTime:   v.CreatedAt.Unix(),
		UploaderID:    int64(v.UploaderID),
		MainCategory:  v.Category.MainID,
		SubCategory:   v.Category.SubID,
		CommentCount:  v.CommentCount,
		Anonymous:     v.Flags.Anonymous,
		Hidden:        v.Flags.Hidden,
		Trusted:       v.Flags.Trusted,
		Remake:        v.Flags.Remake,
		Complete:      v.Flags.Complete,
		Deleted:       v.Flags.Deleted,
		Banned:        v.Flags.Banned,
		CommentLocked: v.Flags.CommentLocked,
		SeedCount:     v.Stats.Seeders,
		LeechCount:    v.Stats.Leechers,
		DownloadCount: v.Stats.Downloads,
	}
	if v.Stats.LastUpdatedAt != nil {
		ts := v.Stats.LastUpdatedAt.Unix()
		doc.StatsUpdated = &ts
	}
	return doc
}

func (d Torrent) View() domain.TorrentView {
	view := domain.TorrentView{
		Torrent: domain.Torrent{
			ID:           domain.TorrentID(d.ID),
			InfoHash:     d.InfoHash,
			DisplayName:  d.DisplayName,
			SizeBytes:    d.Filesize,
			CreatedAt:    time.Unix(d.CreatedTime, 0).UTC(),
			UploaderID:   domain.UserID(d.UploaderID),
			Category:     domain.Category{MainID: d.MainCategory, SubID: d.SubCategory},
			CommentCount: d.CommentCount,
			Flags: domain.Flags{
				Anonymous:     d.Anonymous,
				Hidden:        d.Hidden,
				Trusted:       d.Trusted,
				Remake:        d.Remake,
				Complete:      d.Complete,
				Deleted:       d.Deleted,
				Banned:        d.Banned,
				CommentLocked: d.CommentLocked,
			},
		},
		Stats: domain.Statistics{
			TorrentID: domain.TorrentID(d.ID),
			Seeders:   d.SeedCount,
			Leechers:  d.LeechCount,
			Downloads: d.DownloadCount,
		},
	}
	if d.StatsUpdated != nil {
		ts := time.Unix(*d.StatsUpdated, 0).UTC()
		view.Stats.LastUpdatedAt = &ts
	}
	return view
}

// Source pages through the relational catalog in id order.
type Source interface {
	TorrentsAfter(ctx context.Context, after domain.TorrentID, limit int) ([]domain.TorrentView, error)
}

// Sink accepts batches of documents.
type Sink interface {
	Index(ctx context.Context, docs []Torrent) error
}

// Index is a document backend that can be both filled and pruned.
type Index interface {
	Sink
	Remover
}

// Sync copies every torrent from src into dst in batches and returns how
// many documents were written.
func Sync(ctx context.Context, src Source, dst Sink, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	var (
		after   domain.TorrentID
		written int
	)
	for {
		views, err := src.TorrentsAfter(ctx, after, batch)
		if err != nil {
			return written, fmt.Errorf("read batch after %d: %w", after, err)
		}
		if len(views) == 0 {
			return written, nil
		}
		docs := make([]Torrent, len(views))
		for i, v := range views {
			docs[i] = FromView(v)
		}
		if err := dst.Index(ctx, docs); err != nil {
			return written, fmt.Errorf("index batch after %d: %w", after, err)
		}
		written += len(docs)
		after = views[len(views)-1].ID
		if len(views) < batch {
			return written, nil
		}
	}
}

// PurgeLog lists torrents removed from the relational catalog that document
// indexes have not dropped yet.
type PurgeLog interface {
	PurgedTorrents(ctx context.Context, limit int) ([]domain.TorrentID, error)
	ForgetPurged(ctx context.Context, ids []domain.TorrentID) error
}

// Remover deletes single documents. A missing document is not an error.
type Remover interface {
	Delete(ctx context.Context, id domain.TorrentID) error
}

// Prune deletes every logged purge from dst and clears the log entries it
// handled. It returns how many documents were removed.
func Prune(ctx context.Context, log PurgeLog, dst Remover, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	removed := 0
	for {
		ids, err := log.PurgedTorrents(ctx, batch)
		if err != nil {
			return removed, fmt.Errorf("read purges: %w", err)
		}
		if len(ids) == 0 {
			return removed, nil
		}
		for _, id := range ids {
			if err := dst.Delete(ctx, id); err != nil {
				return removed, fmt.Errorf("delete document %d: %w", id, err)
			}
		}
		if err := log.ForgetPurged(ctx, ids); err != nil {
			return removed, fmt.Errorf("forget purges: %w", err)
		}
		removed += len(ids)
		if len(ids) < batch {
			return removed, nil
		}
	}
}
