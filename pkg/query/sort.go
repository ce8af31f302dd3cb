package query

import (
	"strconv"
	"strings"

	"github.com/nainya/msgstore/pkg/apierror"
)

// ParseSort parses one sort token. A leading '-' sorts descending.
func ParseSort(token string) (SortKey, error) {
	dir := Ascending
	field := token
	if strings.HasPrefix(token, "-") {
		dir = Descending
		field = token[1:]
	}
	if field == "" {
		return SortKey{}, apierror.New(apierror.InvalidValue,
			"'%s' is not a valid sort field.", token).WithField(FieldSort, token)
	}
	return SortKey{Field: field, Direction: dir}, nil
}

// ParseSorts parses every sort token in the order received.
func ParseSorts(tokens []string) (SortSpec, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	spec := make(SortSpec, 0, len(tokens))
	for _, tok := range tokens {
		key, err := ParseSort(tok)
		if err != nil {
			return nil, err
		}
		spec = append(spec, key)
	}
	return spec, nil
}

// ParseLimit parses the limit token. A nil token means no limit and yields 0.
// No upper bound is applied here.
func ParseLimit(token *string) (int, error) {
	if token == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(*token)
	if err != nil || n < 0 {
		return 0, apierror.New(apierror.InvalidValue,
			"'%s' is not a valid limit.", *token).WithField(FieldLimit, *token)
	}
	return n, nil
}
