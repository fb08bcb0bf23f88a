package pyeval

import (
	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pyval"
)

func evalClass(s *pyast.Class, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	bases := make([]*pyval.Class, 0, len(s.Bases))
	for _, b := range s.Bases {
		bo, nctx := evalExpr(b, env, ctx)
		ctx = nctx
		if bo.IsSignal() && bo.Kind != OValue {
			return bo, ctx
		}
		if bo.Value.Kind != pyval.KindClass {
			return Exc("TypeError", "bases must be classes", s.Line()), ctx
		}
		bases = append(bases, bo.Value.Obj.(*pyval.Class))
	}
	classEnv := pyenv.NewFunctionScope(env)
	bo, nctx2 := evalStmts(s.Body, classEnv, ctx)
	ctx = nctx2
	if bo.Kind == OException {
		return bo, ctx
	}
	attrs := pyval.NewDict()
	for name, v := range classEnv.OwnLocals() {
		attrs.SetStr(name, v)
	}
	cls := &pyval.Class{Name: s.Name, Bases: bases, Attrs: attrs}
	cls.MRO = buildMRO(cls)
	cv := pyval.Value{Kind: pyval.KindClass, Obj: cls}
	for i := len(s.Decorators) - 1; i >= 0; i-- {
		do, nctx3 := evalExpr(s.Decorators[i], env, ctx)
		ctx = nctx3
		if do.IsSignal() && do.Kind != OValue {
			return do, ctx
		}
		ro, nctx4 := Call(do.Value, []pyval.Value{cv}, nil, ctx, s.Line())
		ctx = nctx4
		if ro.IsSignal() && ro.Kind != OValue {
			return ro, ctx
		}
		cv = ro.Value
	}
	env.Bind(s.Name, cv)
	return Val(cv), ctx
}

// buildMRO linearises cls's ancestry depth-first, left-to-right over
// Bases, keeping only the first occurrence of each class (spec.md §4.6's
// resolved Open Question on multiple-inheritance lookup order: simple
// depth-first rather than C3, since the spec only requires deterministic
// left-to-right precedence, not diamond-safe linearisation).
func buildMRO(cls *pyval.Class) []*pyval.Class {
	seen := map[*pyval.Class]bool{}
	var out []*pyval.Class
	var visit func(c *pyval.Class)
	visit = func(c *pyval.Class) {
		if seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
		for _, b := range c.Bases {
			visit(b)
		}
	}
	visit(cls)
	return out
}

// instantiate implements class construction: a fresh Instance, its
// attribute table empty, then __init__ called with the instance bound as
// the first argument if the class (or an ancestor) defines one.
func instantiate(cls *pyval.Class, args []pyval.Value, kwargs map[string]pyval.Value, ctx *pyctx.Context, line int) (Outcome, *pyctx.Context) {
	inst := &pyval.Instance{Class: cls, Attrs: pyval.NewDict()}
	iv := pyval.Value{Kind: pyval.KindInstance, Obj: inst}
	if initFn, ok := cls.Resolve("__init__"); ok && initFn.Kind == pyval.KindFunc {
		fn := initFn.Obj.(*pyval.Func)
		o, nctx := callUserFunc(fn, append([]pyval.Value{iv}, args...), kwargs, ctx, line)
		ctx = nctx
		if o.Kind == OException {
			return o, ctx
		}
	}
	return Val(iv), ctx
}

