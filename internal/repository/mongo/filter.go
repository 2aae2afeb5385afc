package mongo

import (
	"regexp"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/bson"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/repository/document"
	"torrentstream/catalog/internal/search"
)

// buildFilter translates a plan into a find/match filter. Term conditions
// are collected under one $and so repeated display_name conditions do not
// collide; the free-text words go through the text index.
func buildFilter(plan search.Plan) bson.D {
	filter := bson.D{}

	pred := plan.Flags()
	for _, f := range pred.Require {
		filter = append(filter, bson.E{Key: document.FlagField(f), Value: true})
	}
	for _, f := range pred.Forbid {
		filter = append(filter, bson.E{Key: document.FlagField(f), Value: false})
	}
	if plan.Uploader != 0 {
		filter = append(filter, bson.E{Key: document.FieldUploaderID, Value: int64(plan.Uploader)})
	}
	if !plan.Category.IsZero() {
		filter = append(filter, bson.E{Key: document.FieldMainCategory, Value: plan.Category.MainID})
		if !plan.Category.WholeMain() {
			filter = append(filter, bson.E{Key: document.FieldSubCategory, Value: plan.Category.SubID})
		}
	}

	var and bson.A
	if owner := plan.Visibility.HiddenOwner; owner != 0 {
		and = append(and, bson.M{"$or": bson.A{
			bson.M{document.FlagField(domain.FlagHidden): false},
			bson.M{document.FieldUploaderID: int64(owner)},
		}})
	}
	for _, group := range plan.Document.Must {
		and = append(and, anyPhrase(group))
	}
	for _, group := range plan.Document.MustNot {
		and = append(and, bson.M{"$nor": phraseConditions(group)})
	}

	text, excluded := textSearch(plan.Document.FreeText)
	for _, word := range excluded {
		and = append(and, bson.M{"$nor": bson.A{wordCondition(word)}})
	}
	if text != "" {
		filter = append(filter, bson.E{Key: "$text", Value: bson.M{"$search": text}})
	}
	if len(and) > 0 {
		filter = append(filter, bson.E{Key: "$and", Value: and})
	}
	return filter
}

func anyPhrase(group search.PhraseGroup) bson.M {
	conds := phraseConditions(group)
	if len(conds) == 1 {
		return conds[0].(bson.M)
	}
	return bson.M{"$or": conds}
}

func phraseConditions(group search.PhraseGroup) bson.A {
	out := make(bson.A, 0, len(group))
	for _, phrase := range group {
		out = append(out, wordCondition(phrase))
	}
	return out
}

func wordCondition(text string) bson.M {
	return bson.M{document.FieldDisplayName: bson.M{
		"$regex":   phrasePattern(text),
		"$options": "i",
	}}
}

// phrasePattern matches text as a run of whole words separated by any
// whitespace or punctuation.
func phrasePattern(text string) string {
	words := strings.FieldsFunc(text, isSeparator)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	pattern := strings.Join(quoted, `[^\p{L}\p{N}]+`)
	if pattern == "" {
		pattern = regexp.QuoteMeta(text)
	}
	return `(^|[^\p{L}\p{N}])` + pattern + `($|[^\p{L}\p{N}])`
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isSeparator(r rune) bool {
	return !isWordRune(r)
}

// splitFreeText separates free text into positive and "-"-negated words,
// dropping words without any letter or digit.
func splitFreeText(free string) (positive, negative []string) {
	for _, word := range strings.Fields(free) {
		negated := strings.HasPrefix(word, "-")
		word = strings.Trim(strings.TrimPrefix(word, "-"), `"`)
		if strings.IndexFunc(word, isWordRune) < 0 {
			continue
		}
		if negated {
			negative = append(negative, word)
		} else {
			positive = append(positive, word)
		}
	}
	return positive, negative
}

// textSearch builds the $text search string for free text. Each positive
// word is quoted so the text index ANDs them. A query of only negated words
// cannot run through $text, so those come back as regex exclusions instead.
func textSearch(free string) (string, []string) {
	positive, negative := splitFreeText(free)
	if len(positive) == 0 {
		return "", negative
	}
	parts := make([]string, 0, len(positive)+len(negative))
	for _, w := range positive {
		parts = append(parts, `"`+w+`"`)
	}
	for _, w := range negative {
		parts = append(parts, "-"+w)
	}
	return strings.Join(parts, " "), nil
}

func sortDoc(plan search.Plan) bson.D {
	terms := plan.Sort.Terms()
	out := make(bson.D, 0, len(terms))
	for _, term := range terms {
		dir := 1
		if term.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: mongoField(document.SortFields[term.Field]), Value: dir})
	}
	return out
}

func mongoField(name string) string {
	if name == document.FieldID {
		return "_id"
	}
	return name
}
