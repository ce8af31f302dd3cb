package store

import (
	"errors"
	"testing"

	"github.com/nainya/msgstore/pkg/apierror"
)

func TestSplitSearch(t *testing.T) {
	toks := splitSearch(`coffee -tea "hot milk" -"iced latte" trailing"quote`)
	want := []searchToken{
		{text: "coffee"},
		{text: "tea", negated: true},
		{text: "hot milk", phrase: true},
		{text: "iced latte", phrase: true, negated: true},
		{text: "trailing"},
		{text: "quote", phrase: true},
	}

	if len(toks) != len(want) {
		t.Fatalf("Expected %d tokens, got %d: %+v", len(want), len(toks), toks)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("Token %d: expected %+v, got %+v", i, want[i], toks[i])
		}
	}
}

func TestTextMatcher(t *testing.T) {
	tests := []struct {
		search      string
		lang        string
		caseSens    bool
		diacritSens bool
		title, text string
		want        bool
	}{
		{"coffee", "none", false, false, "", "I like Coffee.", true},
		{"coffee", "none", true, false, "", "I like Coffee.", false},
		{"coffee tea", "none", false, false, "", "just tea", true},
		{"coffee -tea", "none", false, false, "", "coffee and tea", false},
		{`"green tea"`, "none", false, false, "", "Green tea please", true},
		{`"green tea"`, "none", false, false, "green", "tea", false},
		{`"green tea" coffee`, "none", false, false, "", "green tea only", false},
		{`"green tea" coffee`, "none", false, false, "coffee", "green tea", true},
		{`coffee -"decaf blend"`, "none", false, false, "", "coffee, decaf blend", false},
		{"resume", "none", false, false, "Résumé", "", true},
		{"resume", "none", false, true, "Résumé", "", false},
		{"résumé", "none", false, true, "RÉSUMÉ", "", true},
		{"istanbul", "turkish", false, false, "", "İSTANBUL", true},
		{"-coffee", "none", false, false, "", "tea", false},
		{"coffee", "none", false, false, "coffeehouse", "", false},
	}

	for _, tt := range tests {
		m, err := newTextMatcher(tt.search, tt.lang, tt.caseSens, tt.diacritSens)
		if err != nil {
			t.Errorf("%q: newTextMatcher failed: %v", tt.search, err)
			continue
		}
		if got := m.Match(tt.title, tt.text); got != tt.want {
			t.Errorf("%q (lang=%s case=%v diacritic=%v) on %q/%q: expected %v, got %v",
				tt.search, tt.lang, tt.caseSens, tt.diacritSens, tt.title, tt.text, tt.want, got)
		}
	}
}

func TestTextMatcherRejects(t *testing.T) {
	if _, err := newTextMatcher(`"" - --`, "none", false, false); !errors.Is(err, apierror.ErrInvalidValue) {
		t.Errorf("Expected InvalidValue for empty search, got %v", err)
	}
	if _, err := newTextMatcher("x", "not a language", false, false); !errors.Is(err, apierror.ErrInvalidValue) {
		t.Errorf("Expected InvalidValue for bad language, got %v", err)
	}
}

func TestResolveLanguage(t *testing.T) {
	for _, name := range []string{"none", "english", "English", "tr", "pt-BR"} {
		if _, err := resolveLanguage(name); err != nil {
			t.Errorf("resolveLanguage(%q) failed: %v", name, err)
		}
	}
}

func TestCompileRegex(t *testing.T) {
	re, err := compileRegex("^a.b$", "is")
	if err != nil {
		t.Fatalf("compileRegex failed: %v", err)
	}
	if !re.MatchString("A\nB") {
		t.Errorf("Expected case-insensitive dot-all match")
	}

	again, _ := compileRegex("^a.b$", "is")
	if again != re {
		t.Errorf("Expected cached regexp to be reused")
	}

	if _, err := compileRegex("a", "x"); !errors.Is(err, apierror.ErrInvalidValue) {
		t.Errorf("Expected InvalidValue for x option, got %v", err)
	}
	if _, err := compileRegex("a(?=b)", ""); !errors.Is(err, apierror.ErrInvalidValue) {
		t.Errorf("Expected InvalidValue for lookahead, got %v", err)
	}
}
