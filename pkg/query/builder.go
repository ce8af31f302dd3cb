// ABOUTME: Query builder folding query-string expressions into one filter
// ABOUTME: Per-field predicates, the text-search predicate and full request compilation

package query

import (
	"errors"
	"strings"

	"github.com/nainya/msgstore/pkg/apierror"
)

const defaultLanguage = "none"

// CreateParamQuery compiles every expression given for field into a single
// predicate keyed by operator tag. When two expressions resolve to the same
// tag the later one wins.
func CreateParamQuery(field string, exprs []string) (*FieldPredicate, error) {
	t, err := TypeOf(field)
	if err != nil {
		return nil, err
	}
	if t == TypeTextSearch {
		return nil, apierror.New(apierror.InvalidExpression,
			"%s is a text-search field and takes no operator expressions.", field).WithField(field, "")
	}
	if len(exprs) == 0 {
		return nil, apierror.New(apierror.InvalidExpression,
			"no expression given for %s.", field).WithField(field, "")
	}

	pred := &FieldPredicate{Field: field, Values: make(map[Op]any, len(exprs))}
	for _, raw := range exprs {
		expr, err := parseExpression(t, field, raw)
		if err != nil {
			return nil, err
		}

		op, err := LookupOperator(expr.Operator)
		if err != nil {
			return nil, attribute(err, field, raw)
		}

		value, err := Convert(t, expr.RawValue)
		if err != nil {
			return nil, attribute(err, field, raw)
		}
		pred.Values[op] = value
	}
	return pred, nil
}

// CreateTextSearchPredicate builds the full-text predicate from the first q
// value and the optional lang value. Flag characters before the colon are
// tested for membership: 'c' turns on case sensitivity, 'd' diacritic
// sensitivity, anything else is ignored.
func CreateTextSearchPredicate(params *Params) (*TextSearchPredicate, error) {
	raw, ok := params.Get(FieldSearch)
	if !ok {
		return nil, apierror.New(apierror.InvalidQuery,
			"%s is required for a text search.", FieldSearch)
	}

	expr, err := parseExpression(TypeTextSearch, FieldSearch, raw)
	if err != nil {
		return nil, err
	}
	if expr.RawValue == "" {
		return nil, apierror.New(apierror.InvalidValue,
			"search text must not be empty.").WithField(FieldSearch, raw)
	}

	lang, ok := params.Get(FieldLanguage)
	if !ok || lang == "" {
		lang = defaultLanguage
	}

	return &TextSearchPredicate{
		Search:             expr.RawValue,
		Language:           lang,
		CaseSensitive:      strings.ContainsRune(expr.Operator, 'c'),
		DiacriticSensitive: strings.ContainsRune(expr.Operator, 'd'),
	}, nil
}

// CreateQuery compiles every filter field of params into one AND filter.
// sort and limit are skipped; lang only qualifies q. A mapping that yields no
// predicate at all is rejected rather than treated as match-everything.
func CreateQuery(params *Params) (*Filter, error) {
	var preds []Predicate

	for _, key := range params.Keys() {
		switch key {
		case FieldSort, FieldLimit, FieldLanguage:
			continue
		}

		t, err := TypeOf(key)
		if err != nil {
			return nil, err
		}

		if t == TypeTextSearch {
			tp, err := CreateTextSearchPredicate(params)
			if err != nil {
				return nil, err
			}
			preds = append(preds, tp)
			continue
		}

		fp, err := CreateParamQuery(key, params.Values(key))
		if err != nil {
			return nil, err
		}
		preds = append(preds, fp)
	}

	if params.Has(FieldLanguage) && !params.Has(FieldSearch) {
		return nil, apierror.New(apierror.InvalidQuery,
			"%s can only be used together with %s.", FieldLanguage, FieldSearch)
	}
	if len(preds) == 0 {
		return nil, apierror.New(apierror.InvalidQuery, "no filter criteria were given.")
	}

	return &Filter{Combinator: OpAnd, Predicates: preds}, nil
}

// Compile turns a whole query string mapping into a filter, a sort order and
// a limit. Only the first limit value is used.
func Compile(params *Params) (*Request, error) {
	filter, err := CreateQuery(params)
	if err != nil {
		return nil, err
	}

	sort, err := ParseSorts(params.Values(FieldSort))
	if err != nil {
		return nil, err
	}

	var limitToken *string
	if v, ok := params.Get(FieldLimit); ok {
		limitToken = &v
	}
	limit, err := ParseLimit(limitToken)
	if err != nil {
		return nil, err
	}

	return &Request{Filter: filter, Sort: sort, Limit: limit}, nil
}

// attribute ties a converter or operator error to the field and expression
// that produced it.
func attribute(err error, field, raw string) error {
	var e *apierror.Error
	if !errors.As(err, &e) {
		return err
	}
	out := e.WithField(field, raw)
	out.Message = field + ": " + e.Message
	return out
}
