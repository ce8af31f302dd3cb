// ABOUTME: Full-text matching over message title and text
// ABOUTME: Terms, quoted phrases and negations with case and diacritic folding

package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nainya/msgstore/pkg/apierror"
	"github.com/nainya/msgstore/pkg/query"
)

// Language names accepted besides BCP 47 tags.
var languageNames = map[string]language.Tag{
	"danish":     language.Danish,
	"dutch":      language.Dutch,
	"english":    language.English,
	"finnish":    language.Finnish,
	"french":     language.French,
	"german":     language.German,
	"hungarian":  language.Hungarian,
	"italian":    language.Italian,
	"norwegian":  language.Norwegian,
	"portuguese": language.Portuguese,
	"romanian":   language.Romanian,
	"russian":    language.Russian,
	"spanish":    language.Spanish,
	"swedish":    language.Swedish,
	"turkish":    language.Turkish,
}

// resolveLanguage maps a lang value to a tag. "none" selects
// language-neutral folding and yields language.Und.
func resolveLanguage(name string) (language.Tag, error) {
	lower := strings.ToLower(name)
	if lower == "none" || lower == "" {
		return language.Und, nil
	}
	if tag, ok := languageNames[lower]; ok {
		return tag, nil
	}
	tag, err := language.Parse(name)
	if err != nil {
		return language.Und, apierror.New(apierror.InvalidValue,
			"%s is not a supported language.", name).WithField(query.FieldLanguage, name)
	}
	return tag, nil
}

// textMatcher is a parsed search string. Terms are alternatives, phrases and
// negations are mandatory. All strings are stored already folded.
type textMatcher struct {
	terms          []string
	phrases        []string
	negatedTerms   []string
	negatedPhrases []string
	lang           language.Tag
	foldCase       bool
	foldDiacritics bool
}

func newTextMatcher(search, lang string, caseSensitive, diacriticSensitive bool) (*textMatcher, error) {
	tag, err := resolveLanguage(lang)
	if err != nil {
		return nil, err
	}
	m := &textMatcher{lang: tag, foldCase: !caseSensitive, foldDiacritics: !diacriticSensitive}

	for _, tok := range splitSearch(search) {
		folded := m.fold(tok.text)
		if tok.phrase {
			if strings.TrimSpace(folded) == "" {
				continue
			}
			if tok.negated {
				m.negatedPhrases = append(m.negatedPhrases, folded)
			} else {
				m.phrases = append(m.phrases, folded)
			}
			continue
		}
		for _, word := range words(folded) {
			if tok.negated {
				m.negatedTerms = append(m.negatedTerms, word)
			} else {
				m.terms = append(m.terms, word)
			}
		}
	}

	if len(m.terms)+len(m.phrases)+len(m.negatedTerms)+len(m.negatedPhrases) == 0 {
		return nil, apierror.New(apierror.InvalidValue,
			"search text %q has no searchable terms.", search).WithField(query.FieldSearch, search)
	}
	return m, nil
}

// Match reports whether the given fields satisfy the search. A message
// matches when it contains every phrase, at least one term (unless only
// phrases were given) and none of the negations. Phrases never span fields.
func (m *textMatcher) Match(fields ...string) bool {
	folded := make([]string, 0, len(fields))
	tokens := make(map[string]bool)
	for _, f := range fields {
		if f == "" {
			continue
		}
		f = m.fold(f)
		folded = append(folded, f)
		for _, w := range words(f) {
			tokens[w] = true
		}
	}

	for _, w := range m.negatedTerms {
		if tokens[w] {
			return false
		}
	}
	for _, p := range m.negatedPhrases {
		if containsAny(folded, p) {
			return false
		}
	}
	for _, p := range m.phrases {
		if !containsAny(folded, p) {
			return false
		}
	}

	if len(m.terms) == 0 {
		return len(m.phrases) > 0
	}
	for _, w := range m.terms {
		if tokens[w] {
			return true
		}
	}
	return false
}

// fold lowers case before stripping marks so that language rules such as
// Turkish dotted capital I see the original letters.
func (m *textMatcher) fold(s string) string {
	if m.foldCase {
		if m.lang == language.Und {
			s = cases.Fold().String(s)
		} else {
			s = cases.Lower(m.lang).String(s)
		}
	}
	if m.foldDiacritics {
		s = removeDiacritics(s)
	}
	return s
}

// removeDiacritics decomposes s, drops combining marks and recomposes.
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

type searchToken struct {
	text    string
	phrase  bool
	negated bool
}

// splitSearch breaks a search string into whitespace separated terms and
// double-quoted phrases, each optionally prefixed with '-'. An unterminated
// quote runs to the end of the string.
func splitSearch(s string) []searchToken {
	var toks []searchToken
	rs := []rune(s)
	for i := 0; i < len(rs); {
		if unicode.IsSpace(rs[i]) {
			i++
			continue
		}

		negated := false
		if rs[i] == '-' {
			negated = true
			i++
			if i == len(rs) {
				break
			}
		}

		if rs[i] == '"' {
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			toks = append(toks, searchToken{text: string(rs[i+1 : j]), phrase: true, negated: negated})
			i = j + 1
			continue
		}

		j := i
		for j < len(rs) && !unicode.IsSpace(rs[j]) && rs[j] != '"' {
			j++
		}
		toks = append(toks, searchToken{text: string(rs[i:j]), negated: negated})
		i = j
	}
	return toks
}

// words splits s on anything that is not a letter, digit or combining mark.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
}

func containsAny(fields []string, sub string) bool {
	for _, f := range fields {
		if strings.Contains(f, sub) {
			return true
		}
	}
	return false
}
