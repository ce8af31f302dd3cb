package query

import (
	"strings"

	"github.com/nainya/msgstore/pkg/apierror"
)

// ParseExpression splits raw into operator and value for the field called
// name. The operator is everything before the first colon.
//
// Free-text search terms need no operator, so for the text-search field a
// value without a colon is all search text with an empty flag string.
func ParseExpression(name, raw string) (Expression, error) {
	t, err := TypeOf(name)
	if err != nil {
		return Expression{}, err
	}
	return parseExpression(t, name, raw)
}

func parseExpression(t ParamType, name, raw string) (Expression, error) {
	op, value, found := strings.Cut(raw, ":")
	if t == TypeTextSearch {
		if !found {
			return Expression{RawValue: raw}, nil
		}
		return Expression{Operator: op, RawValue: value}, nil
	}

	if !found || op == "" {
		return Expression{}, apierror.New(apierror.InvalidExpression,
			"%s is not a valid expression.", raw).WithField(name, raw)
	}
	return Expression{Operator: op, RawValue: value}, nil
}
