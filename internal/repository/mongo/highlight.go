package mongo

import (
	"regexp"
	"sort"
	"strings"

	"torrentstream/catalog/internal/search"
)

// highlighter marks the matched words of a display name. The text index
// returns no match positions, so this runs on the decoded documents.
type highlighter struct {
	re *regexp.Regexp
}

func newHighlighter(q search.DocumentQuery) *highlighter {
	var alts []string
	for _, group := range q.Must {
		alts = append(alts, group...)
	}
	positive, _ := splitFreeText(q.FreeText)
	alts = append(alts, positive...)
	if len(alts) == 0 {
		return nil
	}

	// Longest first so a phrase wins over one of its own words.
	sort.Slice(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	patterns := make([]string, 0, len(alts))
	for _, alt := range alts {
		words := strings.FieldsFunc(alt, isSeparator)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		patterns = append(patterns, strings.Join(words, `[^\p{L}\p{N}]+`))
	}
	if len(patterns) == 0 {
		return nil
	}
	return &highlighter{re: regexp.MustCompile(`(?i)` + strings.Join(patterns, "|"))}
}

func (h *highlighter) apply(name string) string {
	if h == nil {
		return ""
	}
	return h.re.ReplaceAllString(name, highlightPre+"$0"+highlightPost)
}

const (
	highlightPre  = "<mark>"
	highlightPost = "</mark>"
)
