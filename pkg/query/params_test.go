package query

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nainya/msgstore/pkg/apierror"
)

func TestParseParamsOrder(t *testing.T) {
	p, err := ParseParams("b=1&a=2&b=3&c&&a=4")
	if err != nil {
		t.Fatalf("ParseParams failed: %v", err)
	}

	if !reflect.DeepEqual(p.Keys(), []string{"b", "a", "c"}) {
		t.Errorf("Unexpected key order %v", p.Keys())
	}
	if !reflect.DeepEqual(p.Values("b"), []string{"1", "3"}) {
		t.Errorf("Unexpected values for b: %v", p.Values("b"))
	}
	if !reflect.DeepEqual(p.Values("a"), []string{"2", "4"}) {
		t.Errorf("Unexpected values for a: %v", p.Values("a"))
	}
	if v, ok := p.Get("c"); !ok || v != "" {
		t.Errorf("Expected empty value for c, got %q, %v", v, ok)
	}
	if p.Len() != 3 {
		t.Errorf("Expected 3 keys, got %d", p.Len())
	}
}

func TestParseParamsUnescapes(t *testing.T) {
	p, err := ParseParams("q=c%3Asome+text&title=rg%3A%5Ea")
	if err != nil {
		t.Fatalf("ParseParams failed: %v", err)
	}
	if v, _ := p.Get("q"); v != "c:some text" {
		t.Errorf("Expected unescaped q, got %q", v)
	}
	if v, _ := p.Get("title"); v != "rg:^a" {
		t.Errorf("Expected unescaped title, got %q", v)
	}
}

func TestParseParamsBadEscape(t *testing.T) {
	if _, err := ParseParams("title=%zz"); !errors.Is(err, apierror.ErrInvalidExpression) {
		t.Errorf("Expected InvalidExpression, got %v", err)
	}
}

func TestTypeOf(t *testing.T) {
	tests := map[string]ParamType{
		"created_at":    TypeDate,
		"last_modified": TypeDate,
		"title":         TypeText,
		"text":          TypeText,
		"q":             TypeTextSearch,
	}
	for name, want := range tests {
		got, err := TypeOf(name)
		if err != nil {
			t.Errorf("TypeOf(%s) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("TypeOf(%s) = %s, expected %s", name, got, want)
		}
	}

	if _, err := TypeOf("size"); !errors.Is(err, apierror.ErrUnknownParameter) {
		t.Errorf("Expected UnknownParameter, got %v", err)
	}
}

func TestParseExpression(t *testing.T) {
	e, err := ParseExpression("created_at", "gt:2020")
	if err != nil {
		t.Fatalf("ParseExpression failed: %v", err)
	}
	if e.Operator != "gt" || e.RawValue != "2020" {
		t.Errorf("Unexpected expression %+v", e)
	}

	e, err = ParseExpression("q", "plain search")
	if err != nil {
		t.Fatalf("ParseExpression failed: %v", err)
	}
	if e.Operator != "" || e.RawValue != "plain search" {
		t.Errorf("Unexpected text-search expression %+v", e)
	}

	if _, err := ParseExpression("title", "noColon"); !errors.Is(err, apierror.ErrInvalidExpression) {
		t.Errorf("Expected InvalidExpression, got %v", err)
	}
}

func TestLookupOperator(t *testing.T) {
	for name, want := range map[string]Op{"gt": OpGreaterThan, "lt": OpLessThan, "rg": OpRegex, "op": OpRegexOptions, "set": OpSet} {
		got, err := LookupOperator(name)
		if err != nil || got != want {
			t.Errorf("LookupOperator(%s) = %s, %v; expected %s", name, got, err, want)
		}
	}
	for _, name := range []string{"", "eq", "GT", "$gt"} {
		if _, err := LookupOperator(name); !errors.Is(err, apierror.ErrInvalidOperator) {
			t.Errorf("LookupOperator(%q): expected InvalidOperator, got %v", name, err)
		}
	}
}
