package pyeval

import (
	"fmt"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pybuiltin"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pyval"
)

// resolveModule implements spec.md §5/§6.1's import resolution order:
// host-registered custom modules first (so a host embedding this
// interpreter can shadow or extend the standard library), then the
// builtin stdlib module set, gated by the Run's permitted-module
// capability either way. A module's namespace is cached in the Context's
// import cache (keyed by ImportKey) so re-importing the same path within
// one Run is free.
func resolveModule(path string, ctx *pyctx.Context, line int) (pyval.Value, *pyctx.Context, Outcome) {
	if ns, ok := ctx.Imported(path); ok {
		return ns, ctx, Val(pyval.None)
	}
	if !ctx.ModulePermitted(path) {
		return pyval.Value{}, ctx, Exc("ImportError", fmt.Sprintf("import of module '%s' is not permitted", path), line)
	}
	if ns, ok := ctx.Modules[path]; ok {
		return ns, ctx.WithImport(path, ns), Val(pyval.None)
	}
	if ns, ok := pybuiltin.Modules()[path]; ok {
		return ns, ctx.WithImport(path, ns), Val(pyval.None)
	}
	return pyval.Value{}, ctx, Exc("ModuleNotFoundError", fmt.Sprintf("No module named '%s'", path), line)
}

func evalImport(s *pyast.Import, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	ns, nctx, sig := resolveModule(s.Module, ctx, s.Line())
	ctx = nctx
	if sig.Kind != OValue {
		return sig, ctx
	}
	name := s.Alias
	if name == "" {
		name = s.Module
	}
	env.Bind(name, ns)
	return Val(pyval.None), ctx
}

func evalFromImport(s *pyast.FromImport, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	ns, nctx, sig := resolveModule(s.Module, ctx, s.Line())
	ctx = nctx
	if sig.Kind != OValue {
		return sig, ctx
	}
	d, ok := ns.Obj.(*pyval.Dict)
	if !ok {
		return Exc("ImportError", fmt.Sprintf("cannot import from '%s'", s.Module), s.Line()), ctx
	}
	for _, imp := range s.Names {
		v, ok := d.GetStr(imp.Name)
		if !ok {
			return Exc("ImportError", fmt.Sprintf("cannot import name '%s' from '%s'", imp.Name, s.Module), s.Line()), ctx
		}
		name := imp.Alias
		if name == "" {
			name = imp.Name
		}
		env.Bind(name, v)
	}
	return Val(pyval.None), ctx
}
