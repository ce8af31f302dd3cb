// ABOUTME: Per-type value converters for filter expressions
// ABOUTME: Dates use the YYYY[MM[DD]] form, text passes through

package query

import (
	"regexp"
	"time"

	"github.com/nainya/msgstore/pkg/apierror"
)

var datePattern = regexp.MustCompile(`^([0-9]{4})([0-9]{2})?([0-9]{2})?$`)

type converter func(raw string) (any, error)

var converters = map[ParamType]converter{
	TypeDate: func(raw string) (any, error) { return ParseDate(raw) },
	TypeText: func(raw string) (any, error) { return raw, nil },
}

// ParseDate parses YYYY, YYYYMM or YYYYMMDD into midnight UTC of that day.
// A missing or zero month or day is taken as 01.
func ParseDate(raw string) (time.Time, error) {
	m := datePattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, invalidDate(raw)
	}

	year, month, day := m[1], m[2], m[3]
	if month == "" || month == "00" {
		month = "01"
	}
	if day == "" || day == "00" {
		day = "01"
	}

	t, err := time.ParseInLocation("20060102", year+month+day, time.UTC)
	if err != nil {
		return time.Time{}, invalidDate(raw)
	}
	return t, nil
}

func invalidDate(raw string) error {
	return apierror.New(apierror.InvalidValue,
		"%s is not a valid date, expected YYYY[MM[DD]].", raw).WithField("", raw)
}

// Convert parses raw according to t. Field types and converters are kept in
// step, so a missing converter is a programming error.
func Convert(t ParamType, raw string) (any, error) {
	conv, ok := converters[t]
	if !ok {
		panic("query: no converter for type " + t.String())
	}
	return conv(raw)
}
