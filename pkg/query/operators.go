package query

import "github.com/nainya/msgstore/pkg/apierror"

// operators is the closed vocabulary of symbolic operator names.
var operators = map[string]Op{
	"gt":                 OpGreaterThan,
	"lt":                 OpLessThan,
	"rg":                 OpRegex,
	"op":                 OpRegexOptions,
	"and":                OpAnd,
	"text":               OpText,
	"search":             OpSearch,
	"language":           OpLanguage,
	"caseSensitive":      OpCaseSensitive,
	"diacriticSensitive": OpDiacriticSensitive,
	"set":                OpSet,
}

// LookupOperator maps a symbolic operator name to its store-facing tag.
func LookupOperator(name string) (Op, error) {
	op, ok := operators[name]
	if !ok {
		return "", apierror.New(apierror.InvalidOperator,
			"%s is not a valid operator.", name)
	}
	return op, nil
}
