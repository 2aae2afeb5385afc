package sqlite

import (
	"strings"
	"unicode"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/search"
)

const torrentColumns = `t.id, t.info_hash, t.display_name, t.filesize, t.flags, t.uploader_id,
	t.main_category_id, t.sub_category_id, t.comment_count, t.created_time,
	COALESCE(s.seed_count, 0), COALESCE(s.leech_count, 0), COALESCE(s.download_count, 0), s.last_updated`

const ftsSubquery = `SELECT rowid FROM torrents_fts WHERE torrents_fts MATCH ?`

var sortColumns = map[search.SortField]string{
	search.FieldID:        "t.id",
	search.FieldSize:      "t.filesize",
	search.FieldComments:  "t.comment_count",
	search.FieldSeeders:   "COALESCE(s.seed_count, 0)",
	search.FieldLeechers:  "COALESCE(s.leech_count, 0)",
	search.FieldDownloads: "COALESCE(s.download_count, 0)",
}

// statement is a parameterised SQL text with its bind values. Plans with the
// same shape produce the same text, which is what the prepared executor keys on.
type statement struct {
	sql  string
	args []any
}

type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func buildWhere(plan search.Plan) *whereBuilder {
	w := &whereBuilder{}

	if mask, value := plan.Flags().Bitmask(); mask != 0 {
		w.add("(t.flags & ?) = ?", mask, value)
	}
	if owner := plan.Visibility.HiddenOwner; owner != 0 {
		w.add("((t.flags & ?) = 0 OR t.uploader_id = ?)", domain.HiddenBitmask(), int64(owner))
	}
	if plan.Uploader != 0 {
		w.add("t.uploader_id = ?", int64(plan.Uploader))
	}
	if !plan.Category.IsZero() {
		w.add("t.main_category_id = ?", plan.Category.MainID)
		if !plan.Category.WholeMain() {
			w.add("t.sub_category_id = ?", plan.Category.SubID)
		}
	}
	for _, token := range plan.Tokens {
		if !hasWordRune(token.Text) {
			continue
		}
		if token.Negated {
			w.add("t.id NOT IN ("+ftsSubquery+")", ftsPhrase(token.Text))
		} else {
			w.add("t.id IN ("+ftsSubquery+")", ftsPhrase(token.Text))
		}
	}
	return w
}

func buildCount(plan search.Plan) statement {
	w := buildWhere(plan)
	return statement{
		sql:  "SELECT COUNT(*) FROM torrents t" + w.String(),
		args: w.args,
	}
}

func buildFetch(plan search.Plan, offset, limit int) statement {
	w := buildWhere(plan)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(torrentColumns)
	b.WriteString(" FROM torrents t LEFT JOIN statistics s ON s.torrent_id = t.id")
	b.WriteString(w.String())
	b.WriteString(" ORDER BY ")
	for i, term := range plan.Sort.Terms() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sortColumns[term.Field])
		b.WriteByte(' ')
		b.WriteString(strings.ToUpper(term.Direction()))
	}
	b.WriteString(" LIMIT ? OFFSET ?")

	args := append(w.args, limit, offset)
	return statement{sql: b.String(), args: args}
}

// ftsPhrase quotes text as a single FTS5 string so that operators and
// punctuation inside it carry no query syntax.
func ftsPhrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func hasWordRune(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
