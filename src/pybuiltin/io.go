package pybuiltin

import (
	"fmt"

	"github.com/sandboxed-py/interp/src/pyval"
)

// IODirective is the payload of a filesystem-operation effect marker
// (spec.md §6.2/§6.4's "file_op" event kind): pybuiltin has no access to
// a Context (and so no access to its filesystem capability), by the same
// design that keeps RouteDirective a marker rather than a direct call;
// pyeval's Call is what actually dispatches it against
// ctx.Caps.Filesystem.
type IODirective struct {
	Op   string // "read", "write", "append", "exists", "list_dir", "delete"
	Path string
	Data []byte
}

func ioDirective(op string, a []pyval.Value) (pyval.Value, error) {
	if len(a) < 1 || a[0].Kind != pyval.KindStr {
		return pyval.Value{}, fmt.Errorf("io.%s(path, ...) requires a string path", op)
	}
	d := &IODirective{Op: op, Path: a[0].Str}
	if (op == "write" || op == "append") && len(a) > 1 {
		d.Data = []byte(pyval.Stringify(a[1]))
	}
	return pyval.Value{Kind: pyval.KindEffect, Obj: d}, nil
}

// ioModule is spec.md §6.2's filesystem adapter contract surfaced to
// Python code: read/write/exists/list_dir/delete, each one building an
// IODirective for pyeval's Call to dispatch against the running
// Context's filesystem capability.
func ioModule() pyval.Value {
	return module(map[string]pyval.Value{
		"read":     bi("io.read", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) { return ioDirective("read", a) }),
		"write":    bi("io.write", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) { return ioDirective("write", a) }),
		"append":   bi("io.append", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) { return ioDirective("append", a) }),
		"exists":   bi("io.exists", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) { return ioDirective("exists", a) }),
		"list_dir": bi("io.list_dir", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) { return ioDirective("list_dir", a) }),
		"delete":   bi("io.delete", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) { return ioDirective("delete", a) }),
	})
}
