package search

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/logger"
	"torrentstream/catalog/internal/metrics"
)

const (
	defaultBackendTimeout = 5 * time.Second
	failureLogInterval    = time.Second
)

// Service is the single search entry point used by the HTTP layer.
type Service struct {
	planner *Planner
	catalog Catalog
	primary Executor
	browse  Executor // serves term-less listings when set
	cache   *CountCache
	timeout time.Duration
	log     *logger.Logger
	tracer  trace.Tracer

	// failureLog throttles backend failure warnings while a backend is down.
	failureLog rate.Sometimes
}

type ServiceOption func(*Service)

// WithCountCache injects the shared result-count cache. Without one every
// listing counts afresh.
func WithCountCache(cache *CountCache) ServiceOption {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithBrowseExecutor routes searches without a term to exec, leaving the
// primary executor for term searches only.
func WithBrowseExecutor(exec Executor) ServiceOption {
	return func(s *Service) {
		s.browse = exec
	}
}

func WithBackendTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithLogger(log *logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(catalog Catalog, primary Executor, cfg PlannerConfig, opts ...ServiceOption) *Service {
	svc := &Service{
		planner: NewPlanner(catalog, cfg),
		catalog: catalog,
		primary: primary,
		timeout: defaultBackendTimeout,
		log:     logger.Nop(),
		tracer:  otel.Tracer("torrentstream/catalog/search"),

		failureLog: rate.Sometimes{Interval: failureLogInterval},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Backend names the executor that serves term searches.
func (s *Service) Backend() string {
	return s.primary.Name()
}

// Search plans, routes and paginates one request for viewer.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest, viewer domain.Viewer) (domain.Page, error) {
	mode := "listing"
	if req.IsRSS {
		mode = "rss"
	}

	ctx, span := s.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("mode", mode),
		attribute.Int64("page", req.Page),
	))
	defer span.End()

	page, err := s.search(ctx, req, viewer)
	metrics.SearchesTotal.WithLabelValues(mode, outcomeLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrBackendUnavailable) {
			s.failureLog.Do(func() {
				s.log.Warn().Err(err).Str("mode", mode).Msg("search backend failed")
			})
		}
		return domain.Page{}, err
	}
	return page, nil
}

func (s *Service) search(ctx context.Context, req domain.SearchRequest, viewer domain.Viewer) (domain.Page, error) {
	plan, err := s.planner.Plan(ctx, req, viewer)
	if err != nil {
		return domain.Page{}, err
	}

	exec := s.route(plan)
	s.log.Debug().
		Str("backend", exec.Name()).
		Str("signature", plan.Signature).
		Int64("page", plan.Page).
		Int64("viewer", int64(viewer.ID)).
		Msg("search planned")

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var match *domain.TorrentView
	if plan.InfoHash != "" && plan.Page <= 1 {
		match, err = s.lookupInfoHash(runCtx, plan, viewer)
		if err != nil {
			return domain.Page{}, err
		}
	}

	var firstWord *domain.User
	if plan.UserWord != "" {
		user, found, err := s.catalog.UserByName(runCtx, plan.UserWord)
		if err != nil {
			return domain.Page{}, domain.BackendUnavailable("catalog", err)
		}
		if found {
			firstWord = &user
		}
	}

	page, err := Paginate(runCtx, plan, observe(exec, s.tracer), s.cache)
	if err != nil {
		return domain.Page{}, err
	}

	for i := range page.Items {
		maskUploader(&page.Items[i], plan.Viewer)
	}
	page.InfoHashMatch = match
	if firstWord != nil {
		page.FirstWordUser = firstWord
		page.QuerySansUser = plan.QuerySansUser
	}
	if !plan.RSS {
		page.RSSQuery = req.RSSQuery()
	}
	return page, nil
}

func (s *Service) route(plan Plan) Executor {
	if s.browse != nil && !plan.HasTerm() {
		return s.browse
	}
	return s.primary
}

func (s *Service) lookupInfoHash(ctx context.Context, plan Plan, viewer domain.Viewer) (*domain.TorrentView, error) {
	view, found, err := s.catalog.TorrentByInfoHash(ctx, plan.InfoHash)
	if err != nil {
		return nil, domain.BackendUnavailable("catalog", err)
	}
	if !found || !IsVisible(view.Torrent, viewer, plan.Scope()) {
		return nil, nil
	}
	maskUploader(&view, plan.Viewer)
	return &view, nil
}

// Health pings every distinct executor that supports it.
func (s *Service) Health(ctx context.Context) error {
	for _, exec := range []Executor{s.primary, s.browse} {
		if exec == nil {
			continue
		}
		if pinger, ok := exec.(Pinger); ok {
			if err := pinger.Ping(ctx); err != nil {
				return domain.BackendUnavailable(exec.Name(), err)
			}
		}
	}
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
