package elasticsearch

import (
	"github.com/olivere/elastic/v7"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/repository/document"
	"torrentstream/catalog/internal/search"
)

const (
	highlightPre  = "<mark>"
	highlightPost = "</mark>"
)

// buildQuery translates the plan's filters and term into one bool query.
// Everything except the term runs in filter context, so ordering comes from
// the explicit sort alone.
func buildQuery(plan search.Plan) *elastic.BoolQuery {
	q := elastic.NewBoolQuery()

	pred := plan.Flags()
	for _, f := range pred.Require {
		q.Filter(elastic.NewTermQuery(document.FlagField(f), true))
	}
	for _, f := range pred.Forbid {
		q.Filter(elastic.NewTermQuery(document.FlagField(f), false))
	}
	if owner := plan.Visibility.HiddenOwner; owner != 0 {
		q.Filter(elastic.NewBoolQuery().
			Should(
				elastic.NewTermQuery(document.FlagField(domain.FlagHidden), false),
				elastic.NewTermQuery(document.FieldUploaderID, int64(owner)),
			).
			MinimumNumberShouldMatch(1))
	}
	if plan.Uploader != 0 {
		q.Filter(elastic.NewTermQuery(document.FieldUploaderID, int64(plan.Uploader)))
	}
	if !plan.Category.IsZero() {
		q.Filter(elastic.NewTermQuery(document.FieldMainCategory, plan.Category.MainID))
		if !plan.Category.WholeMain() {
			q.Filter(elastic.NewTermQuery(document.FieldSubCategory, plan.Category.SubID))
		}
	}

	for _, group := range plan.Document.Must {
		q.Must(phraseGroup(group))
	}
	for _, group := range plan.Document.MustNot {
		q.MustNot(phraseGroup(group))
	}
	if text := plan.Document.FreeText; text != "" {
		q.Must(elastic.NewSimpleQueryStringQuery(text).
			Field(document.FieldDisplayName).
			DefaultOperator("AND").
			Flags("NOT|WHITESPACE"))
	}
	return q
}

func phraseGroup(group search.PhraseGroup) elastic.Query {
	if len(group) == 1 {
		return elastic.NewMatchPhraseQuery(document.FieldDisplayName, group[0])
	}
	either := elastic.NewBoolQuery().MinimumNumberShouldMatch(1)
	for _, phrase := range group {
		either.Should(elastic.NewMatchPhraseQuery(document.FieldDisplayName, phrase))
	}
	return either
}

func sorters(plan search.Plan) []elastic.Sorter {
	terms := plan.Sort.Terms()
	out := make([]elastic.Sorter, 0, len(terms))
	for _, term := range terms {
		out = append(out, elastic.NewFieldSort(document.SortFields[term.Field]).Order(!term.Desc))
	}
	return out
}

// buildSource is the complete request body for one page.
func buildSource(plan search.Plan, offset, limit int) *elastic.SearchSource {
	src := elastic.NewSearchSource().
		Query(buildQuery(plan)).
		From(offset).
		Size(limit).
		SortBy(sorters(plan)...)

	if plan.MaxResults > 0 {
		src = src.TrackTotalHits(plan.MaxResults)
	} else {
		src = src.TrackTotalHits(true)
	}
	if plan.Highlight && plan.HasTerm() {
		src = src.Highlight(elastic.NewHighlight().
			Fields(elastic.NewHighlighterField(document.FieldDisplayName).NumOfFragments(0)).
			PreTags(highlightPre).
			PostTags(highlightPost))
	}
	return src
}
