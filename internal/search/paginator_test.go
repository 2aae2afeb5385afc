package search

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstream/catalog/internal/domain"
)

func manyRows(n int) []domain.TorrentView {
	rows := make([]domain.TorrentView, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, row(int64(i), 1, 2, domain.Flags{}, i%4))
	}
	return rows
}

func listingPlan(t *testing.T, page int64, perPage int) Plan {
	t.Helper()
	spec, err := ResolveSort("seeders", "desc")
	require.NoError(t, err)
	plan := Plan{Sort: spec, Page: page, PerPage: perPage}
	plan.Signature = Signature(plan)
	return plan
}

func TestPaginateRejectsPageBelowOne(t *testing.T) {
	exec := newMemExecutor(manyRows(3)...)
	for _, page := range []int64{0, -1} {
		_, err := Paginate(t.Context(), listingPlan(t, page, 2), exec, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NotErrorIs(t, err, domain.ErrInvalidArgument)
	}
	assert.Zero(t, exec.countCalls.Load())
}

func TestPaginatePageCeiling(t *testing.T) {
	exec := newMemExecutor(manyRows(100)...)
	plan := listingPlan(t, 4, 10)
	plan.MaxPage = 3

	_, err := Paginate(t.Context(), plan, exec, nil)
	assert.ErrorIs(t, err, domain.ErrQueryTooBroad)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	plan.MaxPage = 0
	page, err := Paginate(t.Context(), plan, exec, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
}

func TestPaginateConsecutivePagesAreDisjointAndOrdered(t *testing.T) {
	exec := newMemExecutor(manyRows(23)...)
	const perPage = 5

	first, err := Paginate(t.Context(), listingPlan(t, 1, perPage), exec, nil)
	require.NoError(t, err)
	second, err := Paginate(t.Context(), listingPlan(t, 2, perPage), exec, nil)
	require.NoError(t, err)

	both, err := exec.Fetch(t.Context(), listingPlan(t, 1, perPage), 0, 2*perPage)
	require.NoError(t, err)

	seen := map[domain.TorrentID]bool{}
	for _, id := range ids(first.Items) {
		seen[id] = true
	}
	for _, id := range ids(second.Items) {
		assert.False(t, seen[id], "torrent %d appears on both pages", id)
	}
	assert.Equal(t, ids(both), append(ids(first.Items), ids(second.Items)...))

	assert.Equal(t, int64(23), first.TotalCount)
	assert.Equal(t, int64(5), first.PageCount())
	assert.True(t, first.HasMore())
}

func TestPaginatePastTheEnd(t *testing.T) {
	exec := newMemExecutor(manyRows(4)...)

	_, err := Paginate(t.Context(), listingPlan(t, 3, 2), exec, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty := newMemExecutor()
	page, err := Paginate(t.Context(), listingPlan(t, 1, 2), empty, nil)
	require.NoError(t, err, "an empty first page is a valid empty listing")
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Zero(t, page.TotalCount)
}

func TestPaginateUsesCountCache(t *testing.T) {
	exec := newMemExecutor(manyRows(10)...)
	cache := NewCountCache(time.Minute, 8)

	for page := int64(1); page <= 3; page++ {
		_, err := Paginate(t.Context(), listingPlan(t, page, 3), exec, cache)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), exec.countCalls.Load(), "pages of one listing share a count")
	assert.Equal(t, int32(3), exec.fetchCalls.Load())
}

func TestPaginateRSSSkipsCount(t *testing.T) {
	exec := newMemExecutor(manyRows(10)...)
	plan := listingPlan(t, 1, 4)
	plan.RSS = true

	page, err := Paginate(t.Context(), plan, exec, NewCountCache(time.Minute, 8))
	require.NoError(t, err)
	assert.Len(t, page.Items, 4)
	assert.True(t, page.RSS)
	assert.Zero(t, page.TotalCount)
	assert.Zero(t, page.Page)
	assert.Zero(t, page.PerPage)
	assert.Zero(t, exec.countCalls.Load())
}

func TestPaginateCountingFetcherWindow(t *testing.T) {
	exec := &countingMem{memExecutor: newMemExecutor(manyRows(30)...)}

	plan := listingPlan(t, 2, 8)
	plan.MaxResults = 12
	page, err := Paginate(t.Context(), plan, exec, NewCountCache(time.Minute, 8))
	require.NoError(t, err)

	assert.Len(t, page.Items, 4, "second page is cut at the result window")
	assert.Equal(t, int64(12), page.TotalCount)
	assert.Zero(t, exec.countCalls.Load())
	assert.Equal(t, int32(1), exec.countedCalls.Load())

	plan.Page = 3
	_, err = Paginate(t.Context(), plan, exec, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaginateBackendFailure(t *testing.T) {
	exec := newMemExecutor(manyRows(3)...)
	exec.err = errors.New("database is locked")

	_, err := Paginate(t.Context(), listingPlan(t, 1, 2), exec, NewCountCache(time.Minute, 8))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	counting := &countingMem{memExecutor: exec}
	_, err = Paginate(t.Context(), listingPlan(t, 1, 2), counting, nil)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestClampWindow(t *testing.T) {
	tests := []struct {
		offset, limit, window int
		wantOffset, wantLimit int
	}{
		{0, 10, 0, 0, 10},
		{990, 75, 1000, 990, 10},
		{1000, 75, 1000, 1000, 0},
		{1500, 75, 1000, 1000, 0},
		{0, 75, 1000, 0, 75},
	}
	for _, tt := range tests {
		offset, limit := clampWindow(tt.offset, tt.limit, tt.window)
		assert.Equal(t, tt.wantOffset, offset)
		assert.Equal(t, tt.wantLimit, limit)
	}
}
