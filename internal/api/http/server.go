package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/logger"
)

// SearchService is the query engine as seen by the HTTP layer.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest, viewer domain.Viewer) (domain.Page, error)
	Health(ctx context.Context) error
	Backend() string
}

// Identity headers set by the authenticating gateway in front of this service.
const (
	headerViewerID   = "X-Viewer-Id"
	headerViewerRole = "X-Viewer-Role"
)

const maxQueryLength = 500

type Server struct {
	search   SearchService
	log      *logger.Logger
	gatherer prometheus.Gatherer
	feed     FeedConfig
}

type ServerOption func(*Server)

func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithFeed(cfg FeedConfig) ServerOption {
	return func(s *Server) {
		s.feed = cfg
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		log:    logger.Nop(),
		feed:   defaultFeedConfig(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	metricsHandler := promhttp.Handler()
	if s.gatherer != nil {
		metricsHandler = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/rss", s.handleRSS)
	mux.HandleFunc("/api/torznab", s.handleTorznab)
	traced := otelhttp.NewHandler(loggingMiddleware(s.log, mux), "torrent-catalog",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.log, metricsMiddleware(traced))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	body := map[string]any{
		"backend":   s.search.Backend(),
		"timestamp": time.Now().UTC(),
	}
	if err := s.search.Health(ctx); err != nil {
		body["status"] = "unavailable"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ok"
	writeJSON(w, http.StatusOK, body)
}

type searchResponse struct {
	domain.Page
	PageCount int64 `json:"pageCount"`
	HasMore   bool  `json:"hasMore"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		writeSearchError(w, err)
		return
	}
	page, err := s.search.Search(r.Context(), req, viewerFromRequest(r))
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Page: page, PageCount: page.PageCount(), HasMore: page.HasMore()})
}

func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	req, err := parseSearchRequest(query)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	req.IsRSS = true
	page, err := s.search.Search(r.Context(), req, viewerFromRequest(r))
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeFeed(w, s.feed, req, page, wantsMagnets(query))
}

// parseSearchRequest reads the listing parameters: q, c, f, u, s, o, p and
// per_page. Only syntax is checked here; the planner validates values.
func parseSearchRequest(query url.Values) (domain.SearchRequest, error) {
	req := domain.SearchRequest{
		Term:          query.Get("q"),
		Category:      strings.TrimSpace(query.Get("c")),
		QualityFilter: strings.TrimSpace(query.Get("f")),
		SortKey:       strings.TrimSpace(query.Get("s")),
		SortOrder:     strings.TrimSpace(query.Get("o")),
		Page:          1,
	}
	if len(req.Term) > maxQueryLength {
		return domain.SearchRequest{}, domain.InvalidArgument("query longer than %d bytes", maxQueryLength)
	}
	if raw := strings.TrimSpace(query.Get("u")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.SearchRequest{}, domain.InvalidArgument("invalid uploader id %q", raw)
		}
		req.UploaderID = domain.UserID(id)
	}
	if raw := strings.TrimSpace(query.Get("p")); raw != "" {
		page, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.SearchRequest{}, domain.InvalidArgument("invalid page %q", raw)
		}
		req.Page = page
	}
	if raw := strings.TrimSpace(query.Get("per_page")); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil {
			return domain.SearchRequest{}, domain.InvalidArgument("invalid per_page %q", raw)
		}
		req.PerPage = perPage
	}
	return req, nil
}

// wantsMagnets reports whether the m or magnets flag is present, with or
// without a value.
func wantsMagnets(query url.Values) bool {
	return query.Has("m") || query.Has("magnets")
}

// viewerFromRequest trusts the gateway's identity headers. A missing or
// malformed id means an anonymous viewer.
func viewerFromRequest(r *http.Request) domain.Viewer {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(headerViewerID)), 10, 64)
	if err != nil || id <= 0 {
		return domain.Anonymous()
	}
	viewer := domain.Viewer{ID: domain.UserID(id)}
	for _, role := range strings.Split(r.Header.Get(headerViewerRole), ",") {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "admin":
			viewer.IsAdmin = true
		case "moderator":
			viewer.IsModerator = true
		case "trusted":
			viewer.IsTrusted = true
		}
	}
	return viewer
}

func writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrQueryTooBroad):
		writeError(w, http.StatusNotFound, "query_too_broad", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "search backend unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}
