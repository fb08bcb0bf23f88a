package pyeval

import (
	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pyval"
)

// evalWith implements the with statement (spec.md §3.2): __enter__ before
// the body, __exit__ after it on every exit path (normal fall-through,
// break/continue/return, or exception), mirroring multi-item "with a, b:"
// already desugared by the parser into nested With nodes.
func evalWith(s *pyast.With, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	eo, nctx := evalExpr(s.Expr, env, ctx)
	ctx = nctx
	if eo.IsSignal() && eo.Kind != OValue {
		return eo, ctx
	}
	mgr := eo.Value
	enterVal := mgr
	if fn, err := getAttr(mgr, "__enter__"); err == nil {
		ro, nctx2 := Call(fn, nil, nil, ctx, s.Line())
		ctx = nctx2
		if ro.Kind == OException {
			return ro, ctx
		}
		enterVal = ro.Value
	}
	withEnv := pyenv.NewBlockScope(env)
	if s.As != "" {
		withEnv.Bind(s.As, enterVal)
	}
	bo, nctx3 := evalStmts(s.Body, withEnv, ctx)
	ctx = nctx3
	excArgs := []pyval.Value{pyval.None, pyval.None, pyval.None}
	if bo.Kind == OException {
		excArgs = []pyval.Value{pyval.Str(bo.ExcType), pyval.Str(bo.ExcMsg), pyval.None}
	}
	if fn, err := getAttr(mgr, "__exit__"); err == nil {
		_, nctx4 := Call(fn, excArgs, nil, ctx, s.Line())
		ctx = nctx4
	}
	return bo, ctx
}

// evalMatch implements structural pattern matching (spec.md §3.2/§4.4):
// the subject is evaluated once, then each case's pattern is tried in
// source order against it; the first pattern that matches (and whose
// guard, if any, is truthy) binds its captures into a fresh scope and
// runs its body.
func evalMatch(s *pyast.Match, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	so, nctx := evalExpr(s.Subject, env, ctx)
	ctx = nctx
	if so.IsSignal() && so.Kind != OValue {
		return so, ctx
	}
	subject := so.Value
	for _, c := range s.Cases {
		binds := map[string]pyval.Value{}
		matched, nctx2 := matchPattern(c.Pattern, subject, binds, env, ctx)
		ctx = nctx2
		if !matched {
			continue
		}
		caseEnv := pyenv.NewBlockScope(env)
		for name, v := range binds {
			caseEnv.Bind(name, v)
		}
		if c.Guard != nil {
			go_, nctx3 := evalExpr(c.Guard, caseEnv, ctx)
			ctx = nctx3
			if go_.IsSignal() && go_.Kind != OValue {
				return go_, ctx
			}
			if !pyval.IsTruthy(go_.Value) {
				continue
			}
		}
		return evalStmts(c.Body, caseEnv, ctx)
	}
	return Val(pyval.None), ctx
}

// matchPattern attempts to match pat against v, recording captures into
// binds; literal sub-patterns are evaluated against env/ctx (they are
// always side-effect-free constant expressions, so ctx only changes if
// none exist to evaluate).
func matchPattern(pat pyast.Pattern, v pyval.Value, binds map[string]pyval.Value, env *pyenv.Env, ctx *pyctx.Context) (bool, *pyctx.Context) {
	switch pat.Kind {
	case pyast.PatternWildcard:
		return true, ctx
	case pyast.PatternCapture:
		binds[pat.Capture] = v
		return true, ctx
	case pyast.PatternLiteral:
		lo, nctx := evalExpr(pat.Literal, env, ctx)
		ctx = nctx
		if lo.IsSignal() && lo.Kind != OValue {
			return false, ctx
		}
		return pyval.Equal(lo.Value, v), ctx
	case pyast.PatternOr:
		for _, alt := range pat.Alts {
			ok, nctx := matchPattern(alt, v, binds, env, ctx)
			ctx = nctx
			if ok {
				return true, ctx
			}
		}
		return false, ctx
	case pyast.PatternSequence:
		elems, err := iterableElems(v)
		if err != nil {
			return false, ctx
		}
		if pat.StarName == "" {
			if len(elems) != len(pat.Elems) {
				return false, ctx
			}
			for i, sub := range pat.Elems {
				ok, nctx := matchPattern(sub, elems[i], binds, env, ctx)
				ctx = nctx
				if !ok {
					return false, ctx
				}
			}
			return true, ctx
		}
		if len(elems) < len(pat.Elems) {
			return false, ctx
		}
		for i, sub := range pat.Elems {
			ok, nctx := matchPattern(sub, elems[i], binds, env, ctx)
			ctx = nctx
			if !ok {
				return false, ctx
			}
		}
		rest := append([]pyval.Value(nil), elems[len(pat.Elems):]...)
		binds[pat.StarName] = pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: rest}}
		return true, ctx
	case pyast.PatternMapping:
		if v.Kind != pyval.KindDict {
			return false, ctx
		}
		d := v.Obj.(*pyval.Dict)
		for i, key := range pat.Keys {
			found, ok := d.GetStr(key)
			if !ok {
				return false, ctx
			}
			matched, nctx := matchPattern(pat.Values[i], found, binds, env, ctx)
			ctx = nctx
			if !matched {
				return false, ctx
			}
		}
		return true, ctx
	case pyast.PatternClass:
		if v.Kind != pyval.KindInstance {
			return false, ctx
		}
		inst := v.Obj.(*pyval.Instance)
		if inst.Class.Name != pat.ClassName {
			return false, ctx
		}
		attrNames := inst.Attrs.KeysAsStrings()
		for i, sub := range pat.Positional {
			if i >= len(attrNames) {
				return false, ctx
			}
			av, _ := inst.Attrs.GetStr(attrNames[i])
			ok, nctx := matchPattern(sub, av, binds, env, ctx)
			ctx = nctx
			if !ok {
				return false, ctx
			}
		}
		for name, sub := range pat.Keywords {
			av, ok := inst.GetAttr(name)
			if !ok {
				return false, ctx
			}
			matched, nctx := matchPattern(sub, av, binds, env, ctx)
			ctx = nctx
			if !matched {
				return false, ctx
			}
		}
		return true, ctx
	}
	return false, ctx
}
