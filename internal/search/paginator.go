package search

import (
	"context"
	"math"

	"torrentstream/catalog/internal/domain"
)

// Paginate turns plan into one page of results.
//
// Listings count first (through cache, or from the backend's own match count
// when it implements CountingFetcher) and then fetch. RSS plans skip the count
// and carry no page metadata. Page numbers below 1, above the plan's page
// ceiling, or past the end of a non-empty listing are domain.ErrNotFound.
func Paginate(ctx context.Context, plan Plan, exec Executor, cache *CountCache) (domain.Page, error) {
	if plan.Page < 1 {
		return domain.Page{}, domain.NotFound("page %d does not exist", plan.Page)
	}
	if plan.MaxPage > 0 && plan.Page > plan.MaxPage {
		return domain.Page{}, domain.ErrQueryTooBroad
	}
	perPage := plan.PerPage
	if perPage <= 0 {
		return domain.Page{}, domain.InvalidArgument("per page must be positive")
	}
	if plan.Page-1 > int64(math.MaxInt)/int64(perPage) {
		return domain.Page{}, domain.NotFound("page %d does not exist", plan.Page)
	}
	offset := int((plan.Page - 1) * int64(perPage))

	counting, isCounting := exec.(CountingFetcher)
	window := 0
	if isCounting {
		window = plan.MaxResults
	}
	start, limit := clampWindow(offset, perPage, window)

	if plan.RSS {
		if limit == 0 {
			return domain.Page{Items: []domain.TorrentView{}, RSS: true, Backend: exec.Name()}, nil
		}
		items, err := exec.Fetch(ctx, plan, start, limit)
		if err != nil {
			return domain.Page{}, domain.BackendUnavailable(exec.Name(), err)
		}
		return domain.Page{Items: nonNil(items), RSS: true, Backend: exec.Name()}, nil
	}

	var (
		items []domain.TorrentView
		total int64
		err   error
	)
	if isCounting {
		if limit == 0 {
			return domain.Page{}, domain.NotFound("page %d is past the result window", plan.Page)
		}
		items, total, err = counting.FetchCounted(ctx, plan, start, limit)
		if err != nil {
			return domain.Page{}, domain.BackendUnavailable(exec.Name(), err)
		}
		if window > 0 && total > int64(window) {
			total = int64(window)
		}
	} else {
		total, err = cache.GetOrCompute(ctx, plan.Signature, func(ctx context.Context) (int64, error) {
			return exec.Count(ctx, plan)
		})
		if err != nil {
			return domain.Page{}, err
		}
		if plan.Page > 1 && int64(start) >= total {
			return domain.Page{}, domain.NotFound("page %d does not exist", plan.Page)
		}
		items, err = exec.Fetch(ctx, plan, start, limit)
		if err != nil {
			return domain.Page{}, domain.BackendUnavailable(exec.Name(), err)
		}
	}

	if len(items) == 0 && plan.Page != 1 {
		return domain.Page{}, domain.NotFound("page %d does not exist", plan.Page)
	}

	return domain.Page{
		Items:      nonNil(items),
		TotalCount: total,
		Page:       plan.Page,
		PerPage:    perPage,
		Backend:    exec.Name(),
	}, nil
}

// clampWindow limits [offset, offset+limit) to the first window results.
// A window of zero leaves the range untouched.
func clampWindow(offset, limit, window int) (int, int) {
	if window <= 0 {
		return offset, limit
	}
	if offset >= window {
		return window, 0
	}
	if offset+limit > window {
		limit = window - offset
	}
	return offset, limit
}

func nonNil(items []domain.TorrentView) []domain.TorrentView {
	if items == nil {
		return []domain.TorrentView{}
	}
	return items
}
