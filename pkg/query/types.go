// ABOUTME: Compiled query data model handed to the storage layer
// ABOUTME: Filters, predicates, sort keys and limits as plain structured data

package query

// Op is a store-facing operator tag. It names a comparison or update
// operation without tying it to any particular store's syntax.
type Op string

const (
	OpGreaterThan        Op = "greater-than"
	OpLessThan           Op = "less-than"
	OpRegex              Op = "regex"
	OpRegexOptions       Op = "regex-options"
	OpAnd                Op = "and"
	OpText               Op = "text"
	OpSearch             Op = "search"
	OpLanguage           Op = "language"
	OpCaseSensitive      Op = "caseSensitive"
	OpDiacriticSensitive Op = "diacriticSensitive"
	OpSet                Op = "set"
)

// Expression is one operator:value token taken from a query-string value.
type Expression struct {
	Operator string
	RawValue string
}

// Predicate is either a *FieldPredicate or a *TextSearchPredicate.
type Predicate interface {
	predicate()
}

// FieldPredicate is the compiled condition on a single field. Values holds one
// converted value per operator tag; a repeated tag keeps the last value.
type FieldPredicate struct {
	Field  string
	Values map[Op]any
}

func (*FieldPredicate) predicate() {}

// TextSearchPredicate is the compiled full-text condition built from q and lang.
type TextSearchPredicate struct {
	Search             string
	Language           string
	CaseSensitive      bool
	DiacriticSensitive bool
}

func (*TextSearchPredicate) predicate() {}

// Filter is the AND-combination of every predicate of a request, in the order
// the fields first appeared in the query string. It is never empty.
type Filter struct {
	Combinator Op
	Predicates []Predicate
}

// Fields returns the names of the filtered fields in predicate order. The
// text-search predicate is reported as "q".
func (f *Filter) Fields() []string {
	fields := make([]string, 0, len(f.Predicates))
	for _, p := range f.Predicates {
		switch p := p.(type) {
		case *FieldPredicate:
			fields = append(fields, p.Field)
		case *TextSearchPredicate:
			fields = append(fields, FieldSearch)
		}
	}
	return fields
}

// Direction is the ordering of one sort key.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortKey orders results by one field.
type SortKey struct {
	Field     string
	Direction Direction
}

// SortSpec lists sort keys from primary to last tie-breaker.
type SortSpec []SortKey

// Request is everything compiled out of one query string.
type Request struct {
	Filter *Filter
	Sort   SortSpec
	Limit  int // 0 means no limit
}
