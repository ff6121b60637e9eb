package sandbox

import (
	"sort"
	"strings"
	"unicode"

	"go.starlark.net/starlark"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// starlarkKeywords are offered alongside names when completing a bare
// identifier.
var starlarkKeywords = []string{
	"and", "break", "continue", "def", "elif", "else", "for", "if", "in",
	"lambda", "load", "not", "or", "pass", "return", "while",
}

// completions computes candidates for the trailing dotted identifier path
// of fragment against the session environment. It is best effort by
// contract: any internal failure yields an empty candidate list, never an
// error surfaced to the host.
func completions(fragment string, globals starlark.StringDict) (matches []api.CompletionMatch) {
	defer func() {
		if recover() != nil {
			matches = nil
		}
	}()

	path := trailingPath(fragment)
	segments := strings.Split(path, ".")
	prefix := segments[len(segments)-1]

	if len(segments) == 1 {
		return rootCompletions(prefix, globals)
	}

	recv, ok := resolvePath(segments[:len(segments)-1], globals)
	if !ok {
		return nil
	}
	attrs, ok := recv.(starlark.HasAttrs)
	if !ok {
		return nil
	}
	for _, name := range attrs.AttrNames() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		m := api.CompletionMatch{Name: name, Type: "attribute"}
		if v, err := attrs.Attr(name); err == nil && v != nil {
			m.Type = v.Type()
			m.Description = docOf(v)
		}
		matches = append(matches, m)
	}
	sortMatches(matches)
	return matches
}

func rootCompletions(prefix string, globals starlark.StringDict) []api.CompletionMatch {
	seen := make(map[string]bool)
	var matches []api.CompletionMatch
	add := func(name, typ, doc string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		matches = append(matches, api.CompletionMatch{Name: name, Type: typ, Description: doc})
	}
	for name, v := range globals {
		add(name, v.Type(), docOf(v))
	}
	for name, v := range starlark.Universe {
		add(name, v.Type(), docOf(v))
	}
	for _, kw := range starlarkKeywords {
		add(kw, "keyword", "")
	}
	sortMatches(matches)
	return matches
}

// resolvePath walks a dotted path starting from the environment: the first
// segment resolves against globals then the universe, each further segment
// through the value's attributes.
func resolvePath(segments []string, globals starlark.StringDict) (starlark.Value, bool) {
	if len(segments) == 0 || segments[0] == "" {
		return nil, false
	}
	v, ok := globals[segments[0]]
	if !ok {
		if v, ok = starlark.Universe[segments[0]]; !ok {
			return nil, false
		}
	}
	for _, seg := range segments[1:] {
		attrs, ok := v.(starlark.HasAttrs)
		if !ok {
			return nil, false
		}
		next, err := attrs.Attr(seg)
		if err != nil || next == nil {
			return nil, false
		}
		v = next
	}
	return v, true
}

// trailingPath returns the dotted identifier path ending at the end of s,
// e.g. "x = plr.rea" yields "plr.rea" and "1 + " yields "".
func trailingPath(s string) string {
	runes := []rune(s)
	i := len(runes)
	for i > 0 {
		r := runes[i-1]
		if r == '.' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			i--
			continue
		}
		break
	}
	return string(runes[i:])
}

func docOf(v starlark.Value) string {
	if fn, ok := v.(*starlark.Function); ok {
		return firstLine(fn.Doc())
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func sortMatches(matches []api.CompletionMatch) {
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
}
