// ABOUTME: Translation of compiled query filters and sort specs into SQL
// ABOUTME: Validates store-level operator semantics before any statement runs

package store

import (
	"sort"
	"strings"
	"time"

	"github.com/nainya/msgstore/pkg/apierror"
	"github.com/nainya/msgstore/pkg/message"
	"github.com/nainya/msgstore/pkg/query"
)

// Columns a field predicate may target.
var filterColumns = map[string]bool{
	message.FieldCreatedAt:    true,
	message.FieldLastModified: true,
	message.FieldTitle:        true,
	message.FieldText:         true,
}

// Columns results may be ordered by.
var sortColumns = map[string]bool{
	message.FieldCreatedAt:    true,
	message.FieldLastModified: true,
	message.FieldTitle:        true,
	message.FieldText:         true,
	message.FieldSize:         true,
	message.FieldID:           true,
}

// buildWhere renders filter as a WHERE clause with positional arguments.
func buildWhere(filter *query.Filter) (string, []any, error) {
	if filter == nil || len(filter.Predicates) == 0 {
		return "", nil, apierror.New(apierror.InvalidQuery, "no filter criteria were given.")
	}
	if filter.Combinator != query.OpAnd {
		return "", nil, apierror.New(apierror.InvalidOperator,
			"%s is not a supported filter combinator.", filter.Combinator)
	}

	var conds []string
	var args []any
	for _, p := range filter.Predicates {
		var (
			c   []string
			a   []any
			err error
		)
		switch p := p.(type) {
		case *query.FieldPredicate:
			c, a, err = fieldConditions(p)
		case *query.TextSearchPredicate:
			c, a, err = textConditions(p)
		default:
			err = apierror.New(apierror.InvalidQuery, "unsupported predicate %T.", p)
		}
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, c...)
		args = append(args, a...)
	}
	return strings.Join(conds, " AND "), args, nil
}

func fieldConditions(p *query.FieldPredicate) ([]string, []any, error) {
	col := p.Field
	if !filterColumns[col] {
		return nil, nil, apierror.New(apierror.UnknownParameter, "%s is not a valid parameter.", col)
	}

	// Map iteration order is random; sort for stable SQL.
	ops := make([]string, 0, len(p.Values))
	for op := range p.Values {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)

	var conds []string
	var args []any
	for _, name := range ops {
		op := query.Op(name)
		v := p.Values[op]
		switch op {
		case query.OpGreaterThan, query.OpLessThan:
			arg, err := columnValue(col, v)
			if err != nil {
				return nil, nil, err
			}
			cmp := " > ?"
			if op == query.OpLessThan {
				cmp = " < ?"
			}
			conds = append(conds, col+cmp)
			args = append(args, arg)

		case query.OpRegex:
			pattern, ok := v.(string)
			if !ok {
				return nil, nil, apierror.New(apierror.InvalidValue,
					"%s: regular expressions apply to text fields only.", col).WithField(col, "")
			}
			options, _ := p.Values[query.OpRegexOptions].(string)
			if _, err := compileRegex(pattern, options); err != nil {
				return nil, nil, attributeTo(err, col)
			}
			conds = append(conds, "msg_regexp(?, ?, "+col+") = 1")
			args = append(args, pattern, options)

		case query.OpRegexOptions:
			if _, ok := p.Values[query.OpRegex]; !ok {
				return nil, nil, apierror.New(apierror.InvalidQuery,
					"%s: regex options need a regular expression.", col).WithField(col, "")
			}

		default:
			return nil, nil, apierror.New(apierror.InvalidOperator,
				"%s: %s cannot be applied to a field.", col, op).WithField(col, "")
		}
	}
	return conds, args, nil
}

// columnValue converts a converted query value into the column's stored
// representation.
func columnValue(col string, v any) (any, error) {
	isDate := col == message.FieldCreatedAt || col == message.FieldLastModified
	switch v := v.(type) {
	case time.Time:
		if isDate {
			return encodeTime(v), nil
		}
	case string:
		if !isDate {
			return v, nil
		}
	}
	return nil, apierror.New(apierror.InvalidValue, "%s: value cannot be compared.", col).WithField(col, "")
}

func textConditions(p *query.TextSearchPredicate) ([]string, []any, error) {
	if _, err := compileSearch(p.Search, p.Language, p.CaseSensitive, p.DiacriticSensitive); err != nil {
		return nil, nil, err
	}
	return []string{"msg_search(?, ?, ?, ?, title, text) = 1"},
		[]any{p.Search, p.Language, boolArg(p.CaseSensitive), boolArg(p.DiacriticSensitive)},
		nil
}

// buildOrderBy renders spec as an ORDER BY list. Insertion order is always
// the final tie-breaker.
func buildOrderBy(spec query.SortSpec) (string, error) {
	keys := make([]string, 0, len(spec)+1)
	for _, k := range spec {
		if !sortColumns[k.Field] {
			return "", apierror.New(apierror.InvalidValue,
				"%s is not a sortable field.", k.Field).WithField(query.FieldSort, k.Field)
		}
		dir := "ASC"
		if k.Direction == query.Descending {
			dir = "DESC"
		}
		keys = append(keys, k.Field+" "+dir)
	}
	keys = append(keys, "seq ASC")
	return strings.Join(keys, ", "), nil
}

func attributeTo(err error, col string) error {
	e, ok := err.(*apierror.Error)
	if !ok {
		return err
	}
	out := e.WithField(col, "")
	out.Message = col + ": " + e.Message
	return out
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
