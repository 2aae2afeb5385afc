package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/search"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.Context(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	id       domain.TorrentID
	name     string
	category domain.Category
	flags    domain.Flags
	uploader domain.UserID
	seeders  int
	size     int64
}

func hashFor(id domain.TorrentID) string {
	return fmt.Sprintf("%040x", int64(id))
}

// seed builds the shared fixture: users 7 and 8, categories 1_2, 1_3 and 2_1.
func seed(t *testing.T, db *DB) *Store {
	t.Helper()
	ctx := t.Context()
	store := NewStore(db)

	require.NoError(t, store.CreateUser(ctx, 7, "owner", false))
	require.NoError(t, store.CreateUser(ctx, 8, "other", true))
	for _, c := range []domain.Category{{MainID: 1, SubID: 2}, {MainID: 1, SubID: 3}, {MainID: 2, SubID: 1}} {
		require.NoError(t, store.CreateCategory(ctx, c, fmt.Sprintf("main %d", c.MainID), fmt.Sprintf("sub %s", c)))
	}

	fixtures := []fixture{
		{1, "Ubuntu 24.04 desktop amd64", domain.Category{MainID: 1, SubID: 2}, domain.Flags{}, 8, 50, 4000},
		{2, "Debian netinst", domain.Category{MainID: 1, SubID: 2}, domain.Flags{Trusted: true}, 8, 10, 300},
		{3, "Ubuntu server", domain.Category{MainID: 1, SubID: 3}, domain.Flags{Trusted: true}, 7, 99, 2000},
		{4, "Fedora workstation", domain.Category{MainID: 1, SubID: 2}, domain.Flags{Trusted: true}, 7, 10, 2100},
		{5, "Arch linux", domain.Category{MainID: 2, SubID: 1}, domain.Flags{Trusted: true}, 0, 10, 800},
		{6, "Ubuntu secret build", domain.Category{MainID: 1, SubID: 2}, domain.Flags{Hidden: true}, 7, 1, 10},
		{7, "Ubuntu removed", domain.Category{MainID: 1, SubID: 2}, domain.Flags{Deleted: true}, 8, 1, 10},
		{8, "Anonymous Ubuntu remix", domain.Category{MainID: 1, SubID: 2}, domain.Flags{Anonymous: true, Remake: true}, 7, 3, 10},
	}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, f := range fixtures {
		_, err := store.InsertTorrent(ctx, domain.Torrent{
			ID:          f.id,
			InfoHash:    hashFor(f.id),
			DisplayName: f.name,
			SizeBytes:   f.size,
			CreatedAt:   base.Add(time.Duration(f.id) * time.Hour),
			UploaderID:  f.uploader,
			Category:    f.category,
			Flags:       f.flags,
		}, domain.Statistics{Seeders: f.seeders})
		require.NoError(t, err)
	}
	return store
}

func executors(db *DB) []search.Executor {
	return []search.Executor{NewRelational(db), NewPrepared(db, 0)}
}

func ids(items []domain.TorrentView) []domain.TorrentID {
	out := make([]domain.TorrentID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

// ---------------------------------------------------------------------------
// Migrations and store
// ---------------------------------------------------------------------------

func TestMigrateDownAndUp(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown())
	require.NoError(t, db.Migrate())
}

func TestStoreLookups(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	ctx := t.Context()

	for _, tt := range []struct {
		category domain.Category
		want     bool
	}{
		{domain.Category{MainID: 1}, true},
		{domain.Category{MainID: 1, SubID: 2}, true},
		{domain.Category{MainID: 1, SubID: 9}, false},
		{domain.Category{MainID: 3}, false},
	} {
		got, err := store.CategoryExists(ctx, tt.category)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.category.String())
	}

	exists, err := store.UserExists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.UserExists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, exists)

	user, found, err := store.UserByName(ctx, "other")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.User{ID: 8, Name: "other", IsTrusted: true}, user)
	_, found, err = store.UserByName(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found)

	view, found, err := store.TorrentByInfoHash(ctx, hashFor(4))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.TorrentID(4), view.ID)
	assert.Equal(t, "Fedora workstation", view.DisplayName)
	assert.True(t, view.Flags.Trusted)
	assert.Equal(t, 10, view.Stats.Seeders)
	assert.Equal(t, domain.UserID(7), view.UploaderID)

	_, found, err = store.TorrentByInfoHash(ctx, hashFor(404))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTorrentsAfterPagesByID(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)

	first, err := store.TorrentsAfter(t.Context(), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentID{1, 2, 3}, ids(first))

	rest, err := store.TorrentsAfter(t.Context(), 3, 100)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentID{4, 5, 6, 7, 8}, ids(rest))
}

func TestPurgeCascadesStatistics(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	ctx := t.Context()

	require.NoError(t, store.Purge(ctx, 2))

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM statistics WHERE torrent_id = 2`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM torrents_fts WHERE rowid = 2`).Scan(&n))
	assert.Zero(t, n)
}

func TestPurgeIsLoggedUntilForgotten(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	ctx := t.Context()

	purged, err := store.PurgedTorrents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, purged)

	require.NoError(t, store.Purge(ctx, 5))
	require.NoError(t, store.Purge(ctx, 2))
	require.NoError(t, store.Purge(ctx, 2))

	purged, err = store.PurgedTorrents(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentID{2, 5}, purged)

	purged, err = store.PurgedTorrents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentID{2}, purged)

	require.NoError(t, store.ForgetPurged(ctx, []domain.TorrentID{2}))
	require.NoError(t, store.ForgetPurged(ctx, nil))
	purged, err = store.PurgedTorrents(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentID{5}, purged)
}

func TestSetFlagsMissingTorrent(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	err := store.SetFlags(t.Context(), 404, domain.Flags{Deleted: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Executors
// ---------------------------------------------------------------------------

func TestExecutorsAgreeOnListings(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	planner := search.NewPlanner(store, search.PlannerConfig{})

	owner := domain.Viewer{ID: 7}
	admin := domain.Viewer{ID: 1, IsAdmin: true}

	tests := []struct {
		name   string
		req    domain.SearchRequest
		viewer domain.Viewer
		want   []domain.TorrentID
	}{
		{
			name: "trusted in 1_2 by seeders desc",
			req:  domain.SearchRequest{QualityFilter: "2", Category: "1_2", SortKey: "seeders", SortOrder: "desc"},
			want: []domain.TorrentID{4, 2},
		},
		{
			name: "trusted in 1_2 by seeders asc",
			req:  domain.SearchRequest{QualityFilter: "2", Category: "1_2", SortKey: "seeders", SortOrder: "asc"},
			want: []domain.TorrentID{2, 4},
		},
		{
			name: "anonymous general listing hides hidden and deleted",
			req:  domain.SearchRequest{},
			want: []domain.TorrentID{8, 5, 4, 3, 2, 1},
		},
		{
			name:   "owner sees own hidden in general listing",
			req:    domain.SearchRequest{},
			viewer: owner,
			want:   []domain.TorrentID{8, 6, 5, 4, 3, 2, 1},
		},
		{
			name:   "owner rss never sees hidden",
			req:    domain.SearchRequest{IsRSS: true},
			viewer: owner,
			want:   []domain.TorrentID{8, 5, 4, 3, 2, 1},
		},
		{
			name:   "owner profile",
			req:    domain.SearchRequest{UploaderID: 7},
			viewer: owner,
			want:   []domain.TorrentID{8, 6, 4, 3},
		},
		{
			name: "stranger profile excludes hidden and anonymous",
			req:  domain.SearchRequest{UploaderID: 7},
			want: []domain.TorrentID{4, 3},
		},
		{
			name:   "admin sees deleted",
			req:    domain.SearchRequest{Category: "1_2"},
			viewer: admin,
			want:   []domain.TorrentID{8, 7, 6, 4, 2, 1},
		},
		{
			name: "whole main category",
			req:  domain.SearchRequest{Category: "1_0", SortKey: "size", SortOrder: "desc"},
			want: []domain.TorrentID{1, 4, 3, 2, 8},
		},
		{
			name: "no remakes",
			req:  domain.SearchRequest{Term: "ubuntu", QualityFilter: "1"},
			want: []domain.TorrentID{3, 1},
		},
		{
			name: "term with negation",
			req:  domain.SearchRequest{Term: "ubuntu -server"},
			want: []domain.TorrentID{8, 1},
		},
		{
			name: "quoted phrase",
			req:  domain.SearchRequest{Term: `"ubuntu server"`},
			want: []domain.TorrentID{3},
		},
		{
			name: "operators inside terms are literal",
			req:  domain.SearchRequest{Term: `ubuntu* (desktop) amd64`},
			want: []domain.TorrentID{1},
		},
	}

	for _, exec := range executors(db) {
		for _, tt := range tests {
			t.Run(exec.Name()+"/"+tt.name, func(t *testing.T) {
				req := tt.req
				req.Page = 1
				plan, err := planner.Plan(t.Context(), req, tt.viewer)
				require.NoError(t, err)

				items, err := exec.Fetch(t.Context(), plan, 0, 50)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(items))

				n, err := exec.Count(t.Context(), plan)
				require.NoError(t, err)
				assert.Equal(t, int64(len(tt.want)), n)
			})
		}
	}
}

func TestExecutorsPaginate(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	planner := search.NewPlanner(store, search.PlannerConfig{})

	for _, exec := range executors(db) {
		t.Run(exec.Name(), func(t *testing.T) {
			var pages [][]domain.TorrentID
			for page := int64(1); page <= 3; page++ {
				plan, err := planner.Plan(t.Context(), domain.SearchRequest{SortKey: "seeders", Page: page, PerPage: 2}, domain.Anonymous())
				require.NoError(t, err)
				result, err := search.Paginate(t.Context(), plan, exec, nil)
				require.NoError(t, err)
				assert.Equal(t, int64(6), result.TotalCount)
				pages = append(pages, ids(result.Items))
			}
			assert.Equal(t, [][]domain.TorrentID{{3, 1}, {5, 4}, {2, 8}}, pages)

			plan, err := planner.Plan(t.Context(), domain.SearchRequest{Page: 4, PerPage: 2}, domain.Anonymous())
			require.NoError(t, err)
			_, err = search.Paginate(t.Context(), plan, exec, nil)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestFTSFollowsRenames(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	ctx := t.Context()

	_, err := db.Conn().ExecContext(ctx, `UPDATE torrents SET display_name = 'Mint cinnamon' WHERE id = 2`)
	require.NoError(t, err)

	plan, err := search.NewPlanner(store, search.PlannerConfig{}).Plan(ctx, domain.SearchRequest{Term: "cinnamon", Page: 1}, domain.Anonymous())
	require.NoError(t, err)
	items, err := NewRelational(db).Fetch(ctx, plan, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentID{2}, ids(items))
}

func TestPreparedReusesStatements(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	planner := search.NewPlanner(store, search.PlannerConfig{})
	prepared := NewPrepared(db, 2)
	t.Cleanup(func() { _ = prepared.Close() })

	for _, term := range []string{"ubuntu", "debian", "fedora"} {
		plan, err := planner.Plan(t.Context(), domain.SearchRequest{Term: term, Page: 1}, domain.Anonymous())
		require.NoError(t, err)
		_, err = prepared.Fetch(t.Context(), plan, 0, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, prepared.Shapes(), "single-token searches share one shape")

	for _, term := range []string{"a1 b2", "a1 b2 c3", "a1 b2 c3 d4"} {
		plan, err := planner.Plan(t.Context(), domain.SearchRequest{Term: term, Page: 1}, domain.Anonymous())
		require.NoError(t, err)
		_, err = prepared.Count(t.Context(), plan)
		require.NoError(t, err, "full cache falls back to unprepared queries")
	}
	assert.Equal(t, 2, prepared.Shapes())
}

func TestClosedDatabaseIsBackendUnavailable(t *testing.T) {
	db := openTestDB(t)
	store := seed(t, db)
	plan, err := search.NewPlanner(store, search.PlannerConfig{}).Plan(context.Background(), domain.SearchRequest{Page: 1}, domain.Anonymous())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	for _, exec := range executors(db) {
		_, err := exec.Count(t.Context(), plan)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable, exec.Name())
		_, err = exec.Fetch(t.Context(), plan, 0, 10)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable, exec.Name())
	}
}
