package search

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"torrentstream/catalog/internal/domain"
)

const (
	defaultResultsPerPage = 75
	defaultMaxPerPage     = 150
)

// PlannerConfig bounds the page window.
type PlannerConfig struct {
	ResultsPerPage int
	MaxPerPage     int
	// MaxResults caps how deep into a document-backend result set any page
	// may reach. Zero means no cap.
	MaxResults int
	// MaxPages is the page ceiling for ordinary viewers. Zero means no ceiling.
	MaxPages  int64
	Highlight bool
}

func (c PlannerConfig) withDefaults() PlannerConfig {
	if c.ResultsPerPage <= 0 {
		c.ResultsPerPage = defaultResultsPerPage
	}
	if c.MaxPerPage <= 0 {
		c.MaxPerPage = defaultMaxPerPage
	}
	if c.MaxPerPage < c.ResultsPerPage {
		c.MaxPerPage = c.ResultsPerPage
	}
	if c.MaxResults < 0 {
		c.MaxResults = 0
	}
	if c.MaxPages < 0 {
		c.MaxPages = 0
	}
	return c
}

// Plan is the backend-agnostic description of one search.
type Plan struct {
	Term       string
	Tokens     []Token
	Document   DocumentQuery
	InfoHash   string
	// UserWord and QuerySansUser come from the raw term's first word; the
	// service checks whether UserWord names an existing user.
	UserWord      string
	QuerySansUser string
	Category   domain.Category
	Quality    domain.FlagPredicate
	Visibility Visibility
	Uploader   domain.UserID
	Sort       SortSpec
	Page       int64
	PerPage    int
	RSS        bool
	MaxPage    int64
	MaxResults int
	Highlight  bool
	Viewer     domain.Viewer
	Signature  string
}

// Flags is the combined attribute predicate every row must satisfy. The
// hidden-owner exception in Visibility is applied on top of it.
func (p Plan) Flags() domain.FlagPredicate {
	return p.Quality.Merge(p.Visibility.Predicate)
}

func (p Plan) HasTerm() bool {
	return p.Term != ""
}

// Scope is the visibility scope the plan was resolved under.
func (p Plan) Scope() Scope {
	return Scope{UploaderID: p.Uploader, RSS: p.RSS}
}

type Planner struct {
	catalog Catalog
	cfg     PlannerConfig
}

func NewPlanner(catalog Catalog, cfg PlannerConfig) *Planner {
	return &Planner{catalog: catalog, cfg: cfg.withDefaults()}
}

func (p *Planner) Config() PlannerConfig {
	return p.cfg
}

var categoryPattern = regexp.MustCompile(`^(\d+)_(\d+)$`)

var qualityPredicates = map[string]domain.FlagPredicate{
	domain.QualityNone:         {},
	domain.QualityNoRemakes:    {Forbid: []domain.Flag{domain.FlagRemake}},
	domain.QualityTrustedOnly:  {Require: []domain.Flag{domain.FlagTrusted}},
	domain.QualityCompleteOnly: {Require: []domain.Flag{domain.FlagComplete}},
}

// Plan validates request and resolves it for viewer. Malformed input fails
// with domain.ErrInvalidArgument, an unknown uploader with domain.ErrNotFound.
func (p *Planner) Plan(ctx context.Context, req domain.SearchRequest, viewer domain.Viewer) (Plan, error) {
	if req.Page > domain.MaxPageNumber {
		return Plan{}, domain.InvalidArgument("page %d is out of range", req.Page)
	}

	quality, err := parseQuality(req.QualityFilter)
	if err != nil {
		return Plan{}, err
	}

	category, err := parseCategory(req.Category)
	if err != nil {
		return Plan{}, err
	}
	if !category.IsZero() {
		exists, err := p.catalog.CategoryExists(ctx, category)
		if err != nil {
			return Plan{}, domain.BackendUnavailable("catalog", err)
		}
		if !exists {
			return Plan{}, domain.InvalidArgument("unknown category %s", category)
		}
	}

	if req.UploaderID < 0 {
		return Plan{}, domain.InvalidArgument("invalid uploader id %d", req.UploaderID)
	}
	if req.UploaderID > 0 {
		exists, err := p.catalog.UserExists(ctx, req.UploaderID)
		if err != nil {
			return Plan{}, domain.BackendUnavailable("catalog", err)
		}
		if !exists {
			return Plan{}, domain.NotFound("uploader %d does not exist", req.UploaderID)
		}
	}

	sortSpec := DefaultSort()
	if !req.IsRSS {
		sortSpec, err = ResolveSort(req.SortKey, req.SortOrder)
		if err != nil {
			return Plan{}, err
		}
	}

	perPage := req.PerPage
	switch {
	case perPage == 0:
		perPage = p.cfg.ResultsPerPage
	case perPage < 0 || perPage > p.cfg.MaxPerPage:
		return Plan{}, domain.InvalidArgument("per page must be between 1 and %d", p.cfg.MaxPerPage)
	}

	effective := viewer
	if req.IsRSS {
		effective = domain.Anonymous()
	}
	scope := Scope{UploaderID: req.UploaderID, RSS: req.IsRSS}

	maxPage := p.cfg.MaxPages
	if effective.Privileged() || (scope.Profile() && effective.Owns(scope.UploaderID)) {
		maxPage = 0
	}

	term := normalizeTerm(req.Term)
	plan := Plan{
		Term:       term,
		Category:   category,
		Quality:    quality,
		Visibility: VisibilityFilter(viewer, scope),
		Uploader:   req.UploaderID,
		Sort:       sortSpec,
		Page:       req.Page,
		PerPage:    perPage,
		RSS:        req.IsRSS,
		MaxPage:    maxPage,
		MaxResults: p.cfg.MaxResults,
		Highlight:  p.cfg.Highlight && term != "",
		Viewer:     effective,
	}
	if term != "" {
		plan.Tokens = splitTokens(term)
		plan.Document = parseDocumentQuery(term)
		if !req.IsRSS && !scope.Profile() {
			if hash, ok := detectInfoHash(term); ok {
				plan.InfoHash = hash
			}
			if word, rest, ok := splitUserWord(req.Term); ok {
				plan.UserWord, plan.QuerySansUser = word, rest
			}
		}
	}
	plan.Signature = Signature(plan)
	return plan, nil
}

func parseQuality(code string) (domain.FlagPredicate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = domain.QualityNone
	}
	predicate, ok := qualityPredicates[code]
	if !ok {
		return domain.FlagPredicate{}, domain.InvalidArgument("unsupported quality filter %q", code)
	}
	return predicate, nil
}

// parseCategory accepts "<main>_<sub>". "0_0" (or empty) selects everything;
// a zero main with a non-zero sub cannot resolve and is rejected.
func parseCategory(token string) (domain.Category, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Category{}, nil
	}
	match := categoryPattern.FindStringSubmatch(token)
	if match == nil {
		return domain.Category{}, domain.InvalidArgument("malformed category %q", token)
	}
	mainID, err := strconv.Atoi(match[1])
	if err != nil {
		return domain.Category{}, domain.InvalidArgument("malformed category %q", token)
	}
	subID, err := strconv.Atoi(match[2])
	if err != nil {
		return domain.Category{}, domain.InvalidArgument("malformed category %q", token)
	}
	if mainID == 0 && subID != 0 {
		return domain.Category{}, domain.InvalidArgument("unknown category %q", token)
	}
	return domain.Category{MainID: mainID, SubID: subID}, nil
}
