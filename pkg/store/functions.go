// ABOUTME: SQL scalar functions registered with the sqlite driver
// ABOUTME: msg_regexp for regex predicates and msg_search for full-text search

package store

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"modernc.org/sqlite"

	"github.com/nainya/msgstore/pkg/apierror"
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction("msg_regexp", 3, regexpFunc)
	sqlite.MustRegisterDeterministicScalarFunction("msg_search", 6, searchFunc)
}

// msg_regexp(pattern, options, value) -> 1 when value matches.
func regexpFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	value, ok := args[2].(string)
	if !ok {
		return int64(0), nil
	}
	pattern, _ := args[0].(string)
	options, _ := args[1].(string)

	re, err := compileRegex(pattern, options)
	if err != nil {
		return nil, err
	}
	return matchResult(re.MatchString(value)), nil
}

// msg_search(search, language, caseSensitive, diacriticSensitive, title, text)
// -> 1 when the message satisfies the search.
func searchFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	search, _ := args[0].(string)
	lang, _ := args[1].(string)

	m, err := compileSearch(search, lang, intArg(args[2]) != 0, intArg(args[3]) != 0)
	if err != nil {
		return nil, err
	}

	title, _ := args[4].(string)
	text, _ := args[5].(string)
	return matchResult(m.Match(title, text)), nil
}

// regexFlags are the options Go's regexp engine can honour. Extended mode
// (x) has no equivalent.
const regexFlags = "ims"

var regexCache = newCompileCache[*regexp.Regexp](256)

// compileRegex compiles pattern with inline options such as "i" or "ms".
func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	for _, r := range options {
		if !strings.ContainsRune(regexFlags, r) {
			return nil, apierror.New(apierror.InvalidValue,
				"%q is not a supported regex option.", string(r))
		}
	}

	src := pattern
	if options != "" {
		src = "(?" + options + ")" + pattern
	}
	if re, ok := regexCache.get(src); ok {
		return re, nil
	}

	re, err := regexp.Compile(src)
	if err != nil {
		return nil, apierror.New(apierror.InvalidValue,
			"%s is not a valid regular expression.", pattern)
	}
	regexCache.put(src, re)
	return re, nil
}

var searchCache = newCompileCache[*textMatcher](256)

func compileSearch(search, lang string, caseSensitive, diacriticSensitive bool) (*textMatcher, error) {
	key := fmt.Sprintf("%s\x00%s\x00%t\x00%t", search, lang, caseSensitive, diacriticSensitive)
	if m, ok := searchCache.get(key); ok {
		return m, nil
	}

	m, err := newTextMatcher(search, lang, caseSensitive, diacriticSensitive)
	if err != nil {
		return nil, err
	}
	searchCache.put(key, m)
	return m, nil
}

// compileCache memoises compiled patterns. It is dropped wholesale once it
// reaches its size limit.
type compileCache[T any] struct {
	mu    sync.Mutex
	limit int
	items map[string]T
}

func newCompileCache[T any](limit int) *compileCache[T] {
	return &compileCache[T]{limit: limit, items: make(map[string]T)}
}

func (c *compileCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *compileCache[T]) put(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.limit {
		c.items = make(map[string]T)
	}
	c.items[key] = v
}

func intArg(v driver.Value) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func matchResult(ok bool) int64 {
	if ok {
		return 1
	}
	return 0
}
