package search

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"torrentstream/catalog/internal/domain"
)

// ---------------------------------------------------------------------------
// memExecutor evaluates a Plan over an in-memory row set.
// ---------------------------------------------------------------------------

type memExecutor struct {
	name       string
	rows       []domain.TorrentView
	countCalls atomic.Int32
	fetchCalls atomic.Int32
	err        error
}

func newMemExecutor(rows ...domain.TorrentView) *memExecutor {
	return &memExecutor{name: "memory", rows: rows}
}

func (m *memExecutor) Name() string { return m.name }

func (m *memExecutor) Count(_ context.Context, plan Plan) (int64, error) {
	m.countCalls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.filter(plan))), nil
}

func (m *memExecutor) Fetch(_ context.Context, plan Plan, offset, limit int) ([]domain.TorrentView, error) {
	m.fetchCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	rows := m.filter(plan)
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	out := make([]domain.TorrentView, end-offset)
	copy(out, rows[offset:end])
	return out, nil
}

func (m *memExecutor) filter(plan Plan) []domain.TorrentView {
	flags := plan.Flags()
	var out []domain.TorrentView
	for _, row := range m.rows {
		if !flags.Matches(row.Flags) || !plan.Visibility.Matches(row.Torrent) {
			continue
		}
		if plan.Uploader != 0 && row.UploaderID != plan.Uploader {
			continue
		}
		if !plan.Category.IsZero() {
			if row.Category.MainID != plan.Category.MainID {
				continue
			}
			if !plan.Category.WholeMain() && row.Category.SubID != plan.Category.SubID {
				continue
			}
		}
		if !matchesTokens(row.DisplayName, plan.Tokens) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, term := range plan.Sort.Terms() {
			a, b := sortValue(out[i], term.Field), sortValue(out[j], term.Field)
			if a == b {
				continue
			}
			if term.Desc {
				return a > b
			}
			return a < b
		}
		return false
	})
	return out
}

func matchesTokens(name string, tokens []Token) bool {
	name = strings.ToLower(name)
	for _, token := range tokens {
		if strings.Contains(name, token.Text) == token.Negated {
			return false
		}
	}
	return true
}

func sortValue(row domain.TorrentView, field SortField) int64 {
	switch field {
	case FieldSize:
		return row.SizeBytes
	case FieldComments:
		return int64(row.CommentCount)
	case FieldSeeders:
		return int64(row.Stats.Seeders)
	case FieldLeechers:
		return int64(row.Stats.Leechers)
	case FieldDownloads:
		return int64(row.Stats.Downloads)
	default:
		return int64(row.ID)
	}
}

// countingMem reports totals alongside the page, like a document backend.
type countingMem struct {
	*memExecutor
	countedCalls atomic.Int32
}

func (c *countingMem) FetchCounted(ctx context.Context, plan Plan, offset, limit int) ([]domain.TorrentView, int64, error) {
	c.countedCalls.Add(1)
	if c.err != nil {
		return nil, 0, c.err
	}
	items, _ := c.memExecutor.Fetch(ctx, plan, offset, limit)
	return items, int64(len(c.filter(plan))), nil
}

// ---------------------------------------------------------------------------
// fakeCatalog
// ---------------------------------------------------------------------------

type fakeCatalog struct {
	categories map[domain.Category]bool
	users      map[domain.UserID]bool
	names      map[string]domain.User
	byHash     map[string]domain.TorrentView
	err        error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		categories: map[domain.Category]bool{
			{MainID: 1, SubID: 0}: true,
			{MainID: 1, SubID: 2}: true,
			{MainID: 1, SubID: 3}: true,
			{MainID: 2, SubID: 0}: true,
			{MainID: 2, SubID: 1}: true,
		},
		users:  map[domain.UserID]bool{7: true, 8: true, 9: true},
		byHash: map[string]domain.TorrentView{},
		names: map[string]domain.User{
			"owner": {ID: 7, Name: "owner"},
		},
	}
}

func (f *fakeCatalog) CategoryExists(_ context.Context, c domain.Category) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.categories[c], nil
}

func (f *fakeCatalog) UserExists(_ context.Context, id domain.UserID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.users[id], nil
}

func (f *fakeCatalog) UserByName(_ context.Context, name string) (domain.User, bool, error) {
	if f.err != nil {
		return domain.User{}, false, f.err
	}
	user, ok := f.names[name]
	return user, ok, nil
}

func (f *fakeCatalog) TorrentByInfoHash(_ context.Context, hash string) (domain.TorrentView, bool, error) {
	if f.err != nil {
		return domain.TorrentView{}, false, f.err
	}
	view, ok := f.byHash[hash]
	return view, ok, nil
}

// ---------------------------------------------------------------------------
// row builders
// ---------------------------------------------------------------------------

func row(id int64, main, sub int, flags domain.Flags, seeders int) domain.TorrentView {
	return domain.TorrentView{
		Torrent: domain.Torrent{
			ID:          domain.TorrentID(id),
			DisplayName: "torrent " + string(rune('a'+id%26)),
			SizeBytes:   id * 1024,
			CreatedAt:   time.Date(2024, 1, int(id%28)+1, 0, 0, 0, 0, time.UTC),
			Category:    domain.Category{MainID: main, SubID: sub},
			Flags:       flags,
		},
		Stats: domain.Statistics{TorrentID: domain.TorrentID(id), Seeders: seeders},
	}
}

func owned(view domain.TorrentView, uploader domain.UserID) domain.TorrentView {
	view.UploaderID = uploader
	return view
}

func named(view domain.TorrentView, name string) domain.TorrentView {
	view.DisplayName = name
	return view
}

func ids(items []domain.TorrentView) []domain.TorrentID {
	out := make([]domain.TorrentID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

// fiveTorrents is the fixture where {2,4} are trusted in 1_2 with equal seeds.
func fiveTorrents() []domain.TorrentView {
	return []domain.TorrentView{
		row(1, 1, 2, domain.Flags{}, 50),
		row(2, 1, 2, domain.Flags{Trusted: true}, 10),
		row(3, 1, 3, domain.Flags{Trusted: true}, 99),
		row(4, 1, 2, domain.Flags{Trusted: true}, 10),
		row(5, 2, 1, domain.Flags{Trusted: true}, 10),
	}
}
