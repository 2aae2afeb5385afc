package search

import (
	"strconv"
	"strings"
)

// Signature identifies the filtered set a plan selects. Page, per-page and
// the executing backend are not part of it, so all pages of one listing on
// any backend share a single cached count.
func Signature(p Plan) string {
	return strings.Join([]string{
		"q=" + p.Term,
		"c=" + p.Category.String(),
		"f=" + p.Quality.Key(),
		"u=" + strconv.FormatInt(int64(p.Uploader), 10),
		"v=" + p.Visibility.Key(),
		"s=" + p.Sort.Key(),
	}, "|")
}
