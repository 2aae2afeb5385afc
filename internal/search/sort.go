package search

import (
	"strings"

	"torrentstream/catalog/internal/domain"
)

// SortField is a backend-neutral sortable attribute. Executors map each field
// to their own column or document path.
type SortField string

const (
	FieldID        SortField = "id"
	FieldSize      SortField = "size"
	FieldComments  SortField = "comments"
	FieldSeeders   SortField = "seeders"
	FieldLeechers  SortField = "leechers"
	FieldDownloads SortField = "downloads"
)

// NeedsStats reports whether the field lives on the statistics record.
func (f SortField) NeedsStats() bool {
	switch f {
	case FieldSeeders, FieldLeechers, FieldDownloads:
		return true
	default:
		return false
	}
}

type SortTerm struct {
	Field SortField
	Desc  bool
}

func (t SortTerm) Direction() string {
	if t.Desc {
		return string(domain.SortDesc)
	}
	return string(domain.SortAsc)
}

// SortSpec is a primary ordering plus the id tie-break in the same direction.
// TieBreak is nil when the primary key is already id.
type SortSpec struct {
	Primary  SortTerm
	TieBreak *SortTerm
}

// Terms returns the ordering expressions in evaluation order.
func (s SortSpec) Terms() []SortTerm {
	if s.TieBreak == nil {
		return []SortTerm{s.Primary}
	}
	return []SortTerm{s.Primary, *s.TieBreak}
}

func (s SortSpec) NeedsStats() bool {
	return s.Primary.Field.NeedsStats()
}

func (s SortSpec) Key() string {
	return string(s.Primary.Field) + ":" + s.Primary.Direction()
}

var sortFields = map[domain.SortKey]SortField{
	domain.SortByID:        FieldID,
	domain.SortBySize:      FieldSize,
	domain.SortByComments:  FieldComments,
	domain.SortBySeeders:   FieldSeeders,
	domain.SortByLeechers:  FieldLeechers,
	domain.SortByDownloads: FieldDownloads,
}

// DefaultSort is id descending, the listing order and the forced RSS order.
func DefaultSort() SortSpec {
	return SortSpec{Primary: SortTerm{Field: FieldID, Desc: true}}
}

// ResolveSort maps a (key, order) pair to its ordering. Empty values take the
// listing default; anything unrecognised is rejected.
func ResolveSort(key, order string) (SortSpec, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	order = strings.ToLower(strings.TrimSpace(order))
	if key == "" {
		key = string(domain.SortByID)
	}
	if order == "" {
		order = string(domain.SortDesc)
	}

	field, ok := sortFields[domain.SortKey(key)]
	if !ok {
		return SortSpec{}, domain.InvalidArgument("unsupported sort key %q", key)
	}

	var desc bool
	switch domain.SortOrder(order) {
	case domain.SortDesc:
		desc = true
	case domain.SortAsc:
		desc = false
	default:
		return SortSpec{}, domain.InvalidArgument("unsupported sort order %q", order)
	}

	spec := SortSpec{Primary: SortTerm{Field: field, Desc: desc}}
	if field != FieldID {
		spec.TieBreak = &SortTerm{Field: FieldID, Desc: desc}
	}
	return spec, nil
}
