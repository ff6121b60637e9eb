package sandbox

import (
	"bytes"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// predeclaredNames is the static name set serialized callables may resolve
// against. Compiling host-side and loading sandbox-side must agree on it,
// so both derive it from the same environment constructor.
var predeclaredNames = func() map[string]bool {
	h := &hostCalls{}
	names := make(map[string]bool)
	for name := range h.predeclared("") {
		names[name] = true
	}
	return names
}()

// IsPredeclared reports whether name resolves from the sandbox environment
// rather than a program's own globals.
func IsPredeclared(name string) bool { return predeclaredNames[name] }

// CompileProgram compiles source into a portable program blob. The blob is
// position-independent: it can be produced on the host, shipped through an
// EXECUTE_BLOB request, and loaded by any sandbox built from the same
// environment.
func CompileProgram(name string, src []byte) ([]byte, error) {
	f, err := FileOptions.Parse(name, src, 0)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	prog, err := starlark.FileProgram(f, IsPredeclared)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := prog.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// RunBlob loads a compiled program blob, runs its top level on the session
// thread, and calls the entry function with the context map as keyword
// arguments. Entry defaults to "main".
func (s *Session) RunBlob(blob []byte, entry string, context map[string]any) (starlark.Value, error) {
	s.flag.Bind(s.thread)
	defer s.flag.Unbind(s.thread)

	prog, err := starlark.CompiledProgram(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	globals, err := prog.Init(s.thread, s.globals)
	if err != nil {
		return nil, err
	}
	if entry == "" {
		entry = "main"
	}
	fn, ok := globals[entry]
	if !ok {
		return nil, fmt.Errorf("program defines no entry %q", entry)
	}
	if _, ok := fn.(starlark.Callable); !ok {
		return nil, fmt.Errorf("entry %q is %s, not callable", entry, fn.Type())
	}

	kwargs := make([]starlark.Tuple, 0, len(context))
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := toStarlark(context[k])
		if err != nil {
			return nil, fmt.Errorf("context %q: %w", k, err)
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(k), v})
	}
	return starlark.Call(s.thread, fn, nil, kwargs)
}
