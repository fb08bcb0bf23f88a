package pyeval

import (
	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
)

// runComp walks a comprehension's for/if clause chain recursively, calling
// visit once per combination of bound loop variables that survives every
// if-clause, same shape for all four comprehension forms (spec.md §4.4).
func runComp(clauses []pyast.CompClause, idx int, scope *pyenv.Env, ctx *pyctx.Context, visit func(*pyenv.Env, *pyctx.Context) (*pyctx.Context, Outcome)) (Outcome, *pyctx.Context) {
	if idx == len(clauses) {
		nctx, sig := visit(scope, ctx)
		return sig, nctx
	}
	cl := clauses[idx]
	if cl.IsIf {
		o, nctx := evalExpr(cl.Cond, scope, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		if !pyval.IsTruthy(o.Value) {
			return Val(pyval.None), ctx
		}
		return runComp(clauses, idx+1, scope, ctx, visit)
	}
	io, nctx := evalExpr(cl.Iter, scope, ctx)
	ctx = nctx
	if io.IsSignal() && io.Kind != OValue {
		return io, ctx
	}
	elems, err := iterableElems(io.Value)
	if err != nil {
		return Exc("TypeError", err.Error(), 0), ctx
	}
	for _, el := range elems {
		inner := pyenv.NewBlockScope(scope)
		bindTargets(inner, cl.Targets, el)
		sig, nctx2 := runComp(clauses, idx+1, inner, ctx, visit)
		ctx = nctx2
		if sig.IsSignal() && sig.Kind != OValue {
			return sig, ctx
		}
	}
	return Val(pyval.None), ctx
}

func evalListComp(e *pyast.ListComp, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	var out []pyval.Value
	sig, nctx := runComp(e.Clauses, 0, pyenv.NewBlockScope(env), ctx, func(scope *pyenv.Env, c *pyctx.Context) (*pyctx.Context, Outcome) {
		o, nc := evalExpr(e.Elem, scope, c)
		if o.IsSignal() && o.Kind != OValue {
			return nc, o
		}
		out = append(out, o.Value)
		return nc, Val(pyval.None)
	})
	ctx = nctx
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx
	}
	return Val(pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}), ctx
}

func evalSetComp(e *pyast.SetComp, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	s := pyval.NewSet()
	sig, nctx := runComp(e.Clauses, 0, pyenv.NewBlockScope(env), ctx, func(scope *pyenv.Env, c *pyctx.Context) (*pyctx.Context, Outcome) {
		o, nc := evalExpr(e.Elem, scope, c)
		if o.IsSignal() && o.Kind != OValue {
			return nc, o
		}
		s.Add(o.Value)
		return nc, Val(pyval.None)
	})
	ctx = nctx
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx
	}
	return Val(pyval.Value{Kind: pyval.KindSet, Obj: s}), ctx
}

func evalDictComp(e *pyast.DictComp, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	d := pyval.NewDict()
	sig, nctx := runComp(e.Clauses, 0, pyenv.NewBlockScope(env), ctx, func(scope *pyenv.Env, c *pyctx.Context) (*pyctx.Context, Outcome) {
		ko, nc := evalExpr(e.Key, scope, c)
		c = nc
		if ko.IsSignal() && ko.Kind != OValue {
			return c, ko
		}
		vo, nc2 := evalExpr(e.Value, scope, c)
		if vo.IsSignal() && vo.Kind != OValue {
			return nc2, vo
		}
		d.Set(ko.Value, vo.Value)
		return nc2, Val(pyval.None)
	})
	ctx = nctx
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx
	}
	return Val(pyval.Value{Kind: pyval.KindDict, Obj: d}), ctx
}

// evalGenExprEager evaluates every element of a generator expression
// up front (the clause chain may reference names that go out of scope
// once the enclosing statement finishes, and a tree-walking evaluator
// has no cheap way to keep their scope alive lazily the way CPython's
// frame objects do), then exposes the result through the same
// one-shot iterator protocol as a true generator, via pygen, so
// "sum(x*x for x in xs)" and "list(f() for f in gens)" behave
// identically to consuming any other generator object.
func evalGenExprEager(e *pyast.GenExpr, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	var out []pyval.Value
	sig, nctx := runComp(e.Clauses, 0, pyenv.NewBlockScope(env), ctx, func(scope *pyenv.Env, c *pyctx.Context) (*pyctx.Context, Outcome) {
		o, nc := evalExpr(e.Elem, scope, c)
		if o.IsSignal() && o.Kind != OValue {
			return nc, o
		}
		out = append(out, o.Value)
		return nc, Val(pyval.None)
	})
	ctx = nctx
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx
	}
	gv := pygen.NewGenerator(func(y pygen.Yielder) pyval.Value {
		for _, v := range out {
			y.Yield(v)
		}
		return pyval.None
	})
	return Val(pyval.Value{Kind: pyval.KindGenerator, Obj: gv}), ctx
}
