package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"torrentstream/catalog/internal/domain"
)

// Store is the source-of-truth catalog: category and user lookups for the
// planner, info-hash lookups, and the write path used for seeding and
// document-index synchronisation.
type Store struct {
	db *sql.DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db.Conn()}
}

func (s *Store) CategoryExists(ctx context.Context, category domain.Category) (bool, error) {
	var (
		query string
		args  []any
	)
	if category.WholeMain() {
		query = `SELECT EXISTS(SELECT 1 FROM main_categories WHERE id = ?)`
		args = []any{category.MainID}
	} else {
		query = `SELECT EXISTS(SELECT 1 FROM sub_categories WHERE main_category_id = ? AND id = ?)`
		args = []any{category.MainID, category.SubID}
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("category lookup: %w", err)
	}
	return exists, nil
}

func (s *Store) UserExists(ctx context.Context, id domain.UserID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, int64(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user lookup: %w", err)
	}
	return exists, nil
}

// UserByName looks a user up by exact name.
func (s *Store) UserByName(ctx context.Context, name string) (domain.User, bool, error) {
	var (
		user    domain.User
		id      int64
		trusted bool
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, is_trusted FROM users WHERE name = ?`, name).
		Scan(&id, &user.Name, &trusted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("user name lookup: %w", err)
	}
	user.ID = domain.UserID(id)
	user.IsTrusted = trusted
	return user, true, nil
}

func (s *Store) TorrentByInfoHash(ctx context.Context, infoHash string) (domain.TorrentView, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+torrentColumns+` FROM torrents t LEFT JOIN statistics s ON s.torrent_id = t.id WHERE t.info_hash = ?`,
		strings.ToLower(infoHash))
	view, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TorrentView{}, false, nil
	}
	if err != nil {
		return domain.TorrentView{}, false, fmt.Errorf("info hash lookup: %w", err)
	}
	return view, true, nil
}

// TorrentsAfter returns up to limit torrents with id > after in id order,
// the paging primitive for bulk export to document indexes.
func (s *Store) TorrentsAfter(ctx context.Context, after domain.TorrentID, limit int) ([]domain.TorrentView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+torrentColumns+` FROM torrents t LEFT JOIN statistics s ON s.torrent_id = t.id WHERE t.id > ? ORDER BY t.id ASC LIMIT ?`,
		int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}
	items, err := scanViews(rows)
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}
	return items, nil
}

func (s *Store) CreateUser(ctx context.Context, id domain.UserID, name string, trusted bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, is_trusted, created_at) VALUES (?, ?, ?, ?)`,
		int64(id), name, trusted, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateCategory registers a main category, and the sub category when SubID
// is non-zero.
func (s *Store) CreateCategory(ctx context.Context, category domain.Category, mainName, subName string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO main_categories (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		category.MainID, mainName); err != nil {
		return fmt.Errorf("create main category: %w", err)
	}
	if category.WholeMain() {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sub_categories (main_category_id, id, name) VALUES (?, ?, ?)`,
		category.MainID, category.SubID, subName); err != nil {
		return fmt.Errorf("create sub category: %w", err)
	}
	return nil
}

// InsertTorrent stores t with its statistics. A zero ID lets SQLite assign one.
func (s *Store) InsertTorrent(ctx context.Context, t domain.Torrent, stats domain.Statistics) (domain.TorrentID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	var id any
	if t.ID != 0 {
		id = int64(t.ID)
	}
	var uploader any
	if t.UploaderID != 0 {
		uploader = int64(t.UploaderID)
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO torrents (id, info_hash, display_name, filesize, flags, uploader_id,
			main_category_id, sub_category_id, comment_count, created_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, strings.ToLower(t.InfoHash), t.DisplayName, t.SizeBytes, t.Flags.Bitmask(), uploader,
		t.Category.MainID, t.Category.SubID, t.CommentCount, created.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert torrent: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert torrent: %w", err)
	}

	var updated any
	if stats.LastUpdatedAt != nil {
		updated = stats.LastUpdatedAt.Unix()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO statistics (torrent_id, seed_count, leech_count, download_count, last_updated) VALUES (?, ?, ?, ?, ?)`,
		newID, stats.Seeders, stats.Leechers, stats.Downloads, updated); err != nil {
		return 0, fmt.Errorf("insert statistics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return domain.TorrentID(newID), nil
}

// SetFlags replaces the attribute set of one torrent.
func (s *Store) SetFlags(ctx context.Context, id domain.TorrentID, flags domain.Flags) error {
	res, err := s.db.ExecContext(ctx, `UPDATE torrents SET flags = ? WHERE id = ?`, flags.Bitmask(), int64(id))
	if err != nil {
		return fmt.Errorf("update flags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("torrent %d", id)
	}
	return nil
}

func (s *Store) UpdateStatistics(ctx context.Context, stats domain.Statistics) error {
	updated := time.Now()
	if stats.LastUpdatedAt != nil {
		updated = *stats.LastUpdatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statistics (torrent_id, seed_count, leech_count, download_count, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(torrent_id) DO UPDATE SET
			seed_count = excluded.seed_count,
			leech_count = excluded.leech_count,
			download_count = excluded.download_count,
			last_updated = excluded.last_updated`,
		int64(stats.TorrentID), stats.Seeders, stats.Leechers, stats.Downloads, updated.Unix())
	if err != nil {
		return fmt.Errorf("update statistics: %w", err)
	}
	return nil
}

// Purge physically removes a torrent. Ordinary deletion is the soft
// "deleted" flag; this exists for cleanup and takes statistics with it.
func (s *Store) Purge(ctx context.Context, id domain.TorrentID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM torrents WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("purge torrent: %w", err)
	}
	return nil
}

// PurgedTorrents returns up to limit ids of purged torrents that document
// indexes may still hold, oldest id first.
func (s *Store) PurgedTorrents(ctx context.Context, limit int) ([]domain.TorrentID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT torrent_id FROM torrent_purges ORDER BY torrent_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list purges: %w", err)
	}
	defer rows.Close()

	var out []domain.TorrentID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan purge: %w", err)
		}
		out = append(out, domain.TorrentID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list purges: %w", err)
	}
	return out, nil
}

// ForgetPurged clears purge records once document indexes have dropped them.
func (s *Store) ForgetPurged(ctx context.Context, ids []domain.TorrentID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := s.db.ExecContext(ctx, `DELETE FROM torrent_purges WHERE torrent_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("forget purges: %w", err)
	}
	return nil
}
