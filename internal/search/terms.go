package search

import (
	"encoding/base32"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Token is one whitespace/quote-aware unit of a relational term search.
type Token struct {
	Text    string
	Phrase  bool
	Negated bool
}

// PhraseGroup matches when any of its phrases matches.
type PhraseGroup []string

// DocumentQuery is the term split the way document backends consume it:
// exact-phrase clauses first, then one analyzed free-text residue with AND
// semantics between its words.
type DocumentQuery struct {
	Must     []PhraseGroup
	MustNot  []PhraseGroup
	FreeText string
}

func (q DocumentQuery) IsZero() bool {
	return len(q.Must) == 0 && len(q.MustNot) == 0 && q.FreeText == ""
}

const minTokenRunes = 2

var termLower = cases.Lower(language.Und)

// normalizeTerm canonicalises a raw term so that equivalent spellings share
// one signature and are executed identically.
func normalizeTerm(raw string) string {
	value := norm.NFC.String(raw)
	value = termLower.String(value)
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}

// splitTokens splits a term on whitespace while keeping double-quoted runs
// together. An unterminated quote runs to the end of the input. Tokens
// shorter than two characters are dropped.
func splitTokens(term string) []Token {
	var (
		tokens  []Token
		current strings.Builder
		quoted  bool
		phrase  bool
	)

	flush := func() {
		raw := current.String()
		current.Reset()
		isPhrase := phrase
		phrase = false

		negated := false
		if strings.HasPrefix(raw, "-") {
			negated = true
			raw = raw[1:]
		}
		text := strings.TrimSpace(strings.ReplaceAll(raw, `"`, " "))
		if utf8.RuneCountInString(text) < minTokenRunes {
			return
		}
		tokens = append(tokens, Token{Text: text, Phrase: isPhrase, Negated: negated})
	}

	for _, r := range term {
		switch {
		case r == '"':
			quoted = !quoted
			phrase = true
			current.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				flush()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		flush()
	}
	return tokens
}

var phraseGroupPattern = regexp.MustCompile(`(-?)("[^"]+"(?:\s*\|\s*"[^"]+")*)`)

// parseDocumentQuery extracts quoted segments, optionally negated with a
// leading "-" and optionally OR-grouped with "|", and leaves the unquoted
// residue as free text. For `foo "bar baz" -"qux"` that is one free-text
// clause "foo", one phrase "bar baz" and one excluded phrase "qux".
func parseDocumentQuery(term string) DocumentQuery {
	var q DocumentQuery

	matches := phraseGroupPattern.FindAllStringSubmatchIndex(term, -1)
	var residue strings.Builder
	last := 0
	for _, m := range matches {
		residue.WriteString(term[last:m[0]])
		residue.WriteByte(' ')
		last = m[1]

		negated := m[3] > m[2]
		group := splitPhraseGroup(term[m[4]:m[5]])
		if len(group) == 0 {
			continue
		}
		if negated {
			q.MustNot = append(q.MustNot, group)
		} else {
			q.Must = append(q.Must, group)
		}
	}
	residue.WriteString(term[last:])

	words := strings.Fields(strings.ReplaceAll(residue.String(), `"`, " "))
	kept := words[:0]
	for _, word := range words {
		if word == "|" || word == "-" {
			continue
		}
		kept = append(kept, word)
	}
	q.FreeText = strings.Join(kept, " ")
	return q
}

func splitPhraseGroup(raw string) PhraseGroup {
	parts := strings.Split(raw, "|")
	group := make(PhraseGroup, 0, len(parts))
	for _, part := range parts {
		phrase := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"`))
		if phrase != "" {
			group = append(group, phrase)
		}
	}
	return group
}

var userWordPattern = regexp.MustCompile(`^([a-zA-Z0-9_-]+) *(.*)$`)

// splitUserWord splits a raw term into a leading user-name candidate and the
// remainder. The candidate stops at the first character a user name cannot
// contain.
func splitUserWord(term string) (word, rest string, ok bool) {
	match := userWordPattern.FindStringSubmatch(strings.TrimSpace(term))
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}

// detectInfoHash reports whether the whole term is a v1 info hash, in hex
// (40 chars) or base32 (32 chars) form, and returns it as lowercase hex.
func detectInfoHash(term string) (string, bool) {
	term = strings.TrimSpace(term)
	var h metainfo.Hash
	switch len(term) {
	case 40:
		if err := h.FromHexString(term); err != nil {
			return "", false
		}
	case 32:
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(term))
		if err != nil || len(decoded) != len(h) {
			return "", false
		}
		copy(h[:], decoded)
	default:
		return "", false
	}
	return h.HexString(), true
}
