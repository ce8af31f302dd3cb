// ABOUTME: Parameter registry and the ordered query-string mapping
// ABOUTME: Maps filterable field names to their declared types

package query

import (
	"net/url"
	"strings"

	"github.com/nainya/msgstore/pkg/apierror"
)

// Reserved query-string keys.
const (
	FieldSearch   = "q"
	FieldLanguage = "lang"
	FieldSort     = "sort"
	FieldLimit    = "limit"
)

// ParamType is the declared type of a filterable field.
type ParamType int

const (
	TypeDate ParamType = iota + 1
	TypeText
	TypeTextSearch
)

func (t ParamType) String() string {
	switch t {
	case TypeDate:
		return "date"
	case TypeText:
		return "text"
	case TypeTextSearch:
		return "text-search"
	default:
		return "unknown"
	}
}

// Param is a registered filterable field.
type Param struct {
	Name string
	Type ParamType
}

// registry is fixed at build time and only ever read.
var registry = map[string]Param{
	"created_at":    {Name: "created_at", Type: TypeDate},
	"last_modified": {Name: "last_modified", Type: TypeDate},
	"title":         {Name: "title", Type: TypeText},
	"text":          {Name: "text", Type: TypeText},
	FieldSearch:     {Name: FieldSearch, Type: TypeTextSearch},
}

// LookupParam returns the registered field called name.
func LookupParam(name string) (Param, error) {
	p, ok := registry[name]
	if !ok {
		return Param{}, apierror.New(apierror.UnknownParameter,
			"%s is not a valid parameter.", name).WithField(name, "")
	}
	return p, nil
}

// TypeOf returns the declared type of the field called name.
func TypeOf(name string) (ParamType, error) {
	p, err := LookupParam(name)
	if err != nil {
		return 0, err
	}
	return p.Type, nil
}

// Params is a multi-valued query-string mapping that remembers the order in
// which keys first appeared and the order of repeated values.
type Params struct {
	keys   []string
	values map[string][]string
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{values: make(map[string][]string)}
}

// Add appends value to key.
func (p *Params) Add(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append(p.values[key], value)
}

// Keys returns the keys in first-occurrence order.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Values returns every value of key in the order received.
func (p *Params) Values(key string) []string {
	return p.values[key]
}

// Get returns the first value of key.
func (p *Params) Get(key string) (string, bool) {
	vs := p.values[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Has reports whether key was supplied at least once.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Len returns the number of distinct keys.
func (p *Params) Len() int {
	return len(p.keys)
}

// ParseParams parses a raw query string. Pairs are separated by '&'; a pair
// without '=' has an empty value. Empty segments are skipped.
func ParseParams(rawQuery string) (*Params, error) {
	p := NewParams()
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, apierror.New(apierror.InvalidExpression,
				"%s is not a valid query parameter.", rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, apierror.New(apierror.InvalidExpression,
				"%s is not a valid expression.", rawValue).WithField(key, rawValue)
		}
		p.Add(key, value)
	}
	return p, nil
}
