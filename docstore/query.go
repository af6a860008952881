package docstore

import (
	"fmt"
	"sort"
)

// Range is an inclusive bound pair for a single selector field. Empty
// bounds are open. Bounds compare lexicographically, which matches
// chronological order for DateLayout dates.
type Range struct {
	GTE string
	LTE string
}

func (r Range) contains(v string) bool {
	if r.GTE != "" && v < r.GTE {
		return false
	}
	if r.LTE != "" && v > r.LTE {
		return false
	}
	return true
}

// Selector describes a query: field → exact string value, or field →
// [Range]. At most one field may carry a range (the index layout assumes
// a single trailing range scan). Every selector must constrain "type".
type Selector map[string]any

// normalized splits a selector into equality fields and the optional
// range field, validating the one-range rule.
type normalizedSelector struct {
	typ        Type
	eq         map[string]string
	rangeField string
	rng        Range
}

func (sel Selector) normalize() (*normalizedSelector, error) {
	out := &normalizedSelector{eq: make(map[string]string, len(sel))}
	for field, cond := range sel {
		switch v := cond.(type) {
		case string:
			out.eq[field] = v
		case Type:
			out.eq[field] = string(v)
		case Range:
			if out.rangeField != "" {
				return nil, fmt.Errorf("%w: at most one range field per selector (%q and %q)",
					ErrValidation, out.rangeField, field)
			}
			out.rangeField = field
			out.rng = v
		default:
			return nil, fmt.Errorf("%w: selector field %q must be a string or Range", ErrValidation, field)
		}
	}

	typ, ok := out.eq["type"]
	if !ok {
		return nil, fmt.Errorf("%w: selector must constrain \"type\"", ErrValidation)
	}
	out.typ = Type(typ)
	if !knownType(out.typ) {
		return nil, fmt.Errorf("%w: unknown document type %q", ErrValidation, typ)
	}
	return out, nil
}

// matches reports whether doc satisfies every selector condition.
func (n *normalizedSelector) matches(doc *Document) bool {
	if string(doc.Type) != n.eq["type"] {
		return false
	}
	for field, want := range n.eq {
		if field == "type" {
			continue
		}
		got, ok := doc.fieldString(field)
		if !ok || got != want {
			return false
		}
	}
	if n.rangeField != "" {
		got, ok := doc.fieldString(n.rangeField)
		if !ok || !n.rng.contains(got) {
			return false
		}
	}
	return true
}

// SortSpec orders query results by a single payload field.
type SortSpec struct {
	Field      string
	Descending bool
}

// queryOptions collects the optional parts of a query.
type queryOptions struct {
	sort  *SortSpec
	limit int
}

// QueryOption customizes a Query call.
type QueryOption func(*queryOptions)

// WithSort orders results by the given payload field.
func WithSort(field string, descending bool) QueryOption {
	return func(o *queryOptions) {
		o.sort = &SortSpec{Field: field, Descending: descending}
	}
}

// WithLimit caps the number of returned documents. Zero means unlimited.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// sortDocs orders docs in place by the spec's field. Documents missing
// the field sort last regardless of direction.
func sortDocs(docs []*Document, spec *SortSpec) {
	if spec == nil {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		vi, oki := docs[i].fieldString(spec.Field)
		vj, okj := docs[j].fieldString(spec.Field)
		if oki != okj {
			return oki
		}
		if spec.Descending {
			return vi > vj
		}
		return vi < vj
	})
}
