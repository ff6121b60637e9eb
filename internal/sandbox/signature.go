package sandbox

import (
	"strings"

	"go.starlark.net/starlark"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// signatures renders call help for the innermost open call ending the
// fragment, e.g. "plr.read_device(dev, " targets plr.read_device. Like
// completions it is best effort: anything unresolvable yields an empty
// result rather than an error.
func signatures(fragment string, globals starlark.StringDict) (sigs []api.Signature) {
	defer func() {
		if recover() != nil {
			sigs = nil
		}
	}()

	open := innermostOpenCall(fragment)
	if open <= 0 {
		return nil
	}
	path := trailingPath(fragment[:open])
	if path == "" || strings.HasSuffix(path, ".") {
		return nil
	}
	callee, ok := resolvePath(strings.Split(path, "."), globals)
	if !ok {
		return nil
	}

	switch fn := callee.(type) {
	case *starlark.Function:
		params := renderParams(fn)
		return []api.Signature{{
			Label:  fn.Name() + "(" + strings.Join(params, ", ") + ")",
			Params: params,
			Doc:    fn.Doc(),
		}}
	case *starlark.Builtin:
		return []api.Signature{{Label: fn.Name() + "(...)"}}
	default:
		return nil
	}
}

// innermostOpenCall returns the index of the '(' opening the innermost
// unclosed call, or -1. The scan tracks bracket nesting only; string
// literals containing brackets can fool it, which the best-effort contract
// accepts.
func innermostOpenCall(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')', ']', '}':
			depth++
		case '(':
			if depth == 0 {
				return i
			}
			depth--
		case '[', '{':
			if depth == 0 {
				return -1
			}
			depth--
		}
	}
	return -1
}

// renderParams lists parameter names in source order, annotating varargs,
// keyword-only and kwargs markers.
func renderParams(fn *starlark.Function) []string {
	n := fn.NumParams()
	kwonly := fn.NumKwonlyParams()
	special := 0
	if fn.HasVarargs() {
		special++
	}
	if fn.HasKwargs() {
		special++
	}
	positional := n - special - kwonly

	params := make([]string, 0, n+1)
	for i := 0; i < positional; i++ {
		name, _ := fn.Param(i)
		params = append(params, name)
	}
	if fn.HasVarargs() {
		name, _ := fn.Param(n - special)
		params = append(params, "*"+name)
	} else if kwonly > 0 {
		params = append(params, "*")
	}
	for i := positional; i < positional+kwonly; i++ {
		name, _ := fn.Param(i)
		params = append(params, name)
	}
	if fn.HasKwargs() {
		name, _ := fn.Param(n - 1)
		params = append(params, "**"+name)
	}
	return params
}
