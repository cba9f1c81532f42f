package osc

import (
	"regexp"
	"strings"
	"sync"
)

// Pattern is a compiled OSC address pattern. Address patterns use `?` (any
// single path character), `*` (any run of characters), `[abc]` / `[a-z]` /
// `[!abc]` (character classes) and `{foo,bar}` (alternatives).
//
// `*` behaves differently depending on which side of a match it appears on.
// A registered pattern's `*` crosses `/` and matches a literal query address
// with more path segments than the pattern itself (so a handler mapped at
// "/*" receives a message sent to "/foo/bar"). A query address's `*`, by
// contrast, never crosses `/`: it is confined to the single segment it
// occupies, so asking for handlers at "/*" does not pull in everything
// registered under multiple segments. `?` is always confined to one
// character and never crosses `/` on either side. Two regexes are
// precompiled to cover both directions; Matches never re-derives one at
// call time.
type Pattern struct {
	raw      string
	crossing *regexp.Regexp
	confined *regexp.Regexp
}

// Compile translates an OSC address pattern into its internal matcher
// form. It never fails: any string, including a plain literal address, is
// a valid (possibly trivial) pattern.
func Compile(pattern string) *Pattern {
	return &Pattern{
		raw:      pattern,
		crossing: regexp.MustCompile("^" + translate(pattern, true) + "$"),
		confined: regexp.MustCompile("^" + translate(pattern, false) + "$"),
	}
}

// String returns the original, uncompiled pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Matches reports whether addr is matched by this pattern. p is treated as
// the registered side first: its `*` may cross `/` to match a literal addr
// with more path segments. If that fails and addr itself carries a
// wildcard, the roles flip: addr is compiled and matched, confined, against
// p's literal text. This is what lets a wildcard query address (e.g.
// "/foo/*") find a literal registered address (e.g. "/foo/bar") without
// letting that same confined wildcard cross a `/` it shouldn't.
func (p *Pattern) Matches(addr string) bool {
	if p.crossing.MatchString(addr) {
		return true
	}

	if !containsWildcard(addr) {
		return false
	}

	other := compileCached(addr)
	return other.confined.MatchString(p.raw)
}

func containsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

var patternCache sync.Map // string -> *Pattern

func compileCached(pattern string) *Pattern {
	if v, ok := patternCache.Load(pattern); ok {
		return v.(*Pattern)
	}

	compiled := Compile(pattern)
	actual, _ := patternCache.LoadOrStore(pattern, compiled)
	return actual.(*Pattern)
}

// Matches reports whether pattern matches addr, compiling pattern on its
// first use and caching the compiled form in a package-level map that is
// never evicted. Prefer Compile+(*Pattern).Matches when testing the same
// pattern repeatedly (e.g. inside a dispatcher's registered-address table).
func Matches(pattern, addr string) bool {
	return compileCached(pattern).Matches(addr)
}

// translate rewrites an OSC address-pattern glob into an equivalent regular
// expression body (no anchors). `?` is always confined to a single
// non-`/` character. `*` is confined to a single path segment when crossing
// is false, and matches any run of characters including `/` when crossing
// is true. `[...]` character classes and `{...}` alternation map onto their
// regex equivalents; any other regex metacharacter appearing literally in
// the pattern is escaped.
func translate(pattern string, crossing bool) string {
	var out strings.Builder

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if crossing {
				out.WriteString(".*")
			} else {
				out.WriteString("[^/]*")
			}
		case '?':
			out.WriteString("[^/]")
		case '[':
			j := i + 1
			negate := j < len(runes) && runes[j] == '!'
			if negate {
				j++
			}
			start := j
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				// unterminated class: treat '[' as a literal character
				out.WriteString(`\[`)
				continue
			}

			out.WriteByte('[')
			if negate {
				out.WriteByte('^')
			}
			out.WriteString(regexpClassBody(string(runes[start:j])))
			out.WriteByte(']')
			i = j
		case '{':
			j := i + 1
			for j < len(runes) && runes[j] != '}' {
				j++
			}
			if j >= len(runes) {
				out.WriteString(`\{`)
				continue
			}

			alternatives := strings.Split(string(runes[i+1:j]), ",")
			out.WriteByte('(')
			for idx, alt := range alternatives {
				if idx > 0 {
					out.WriteByte('|')
				}
				out.WriteString(regexp.QuoteMeta(alt))
			}
			out.WriteByte(')')
			i = j
		case '/':
			out.WriteByte('/')
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	return out.String()
}

// regexpClassBody passes a `[...]` class body through mostly unmodified:
// OSC's class syntax (ranges, plain members) already lines up with Go's
// regexp character classes. The one required escape is a literal `]`.
func regexpClassBody(body string) string {
	return strings.ReplaceAll(body, `]`, `\]`)
}
