package pyeval

import (
	"fmt"
	"time"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pysuggest"
	"github.com/sandboxed-py/interp/src/pyval"
)

// EvalModule runs mod.Body in env/ctx to completion, returning the last
// expression statement's value (spec.md §8's "2 + 3" -> 5 style top-level
// result) and the final Context.
func EvalModule(mod *pyast.Module, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	return evalStmts(mod.Body, env, ctx)
}

func evalStmts(body []pyast.Node, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	last := Val(pyval.None)
	for _, stmt := range body {
		o, nctx := evalStmt(stmt, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		last = o
	}
	return last, ctx
}

func evalStmt(n pyast.Node, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	if ctx.Budget.Exhausted() {
		return Exc("TimeoutError", "execution budget exhausted", n.Line()), ctx
	}
	switch s := n.(type) {
	case *pyast.ExprStmt:
		return evalExpr(s.X, env, ctx)
	case *pyast.Pass:
		return Val(pyval.None), ctx
	case *pyast.Break:
		return Brk(), ctx
	case *pyast.Continue:
		return Cont(), ctx
	case *pyast.Return:
		return evalReturn(s, env, ctx)
	case *pyast.Assign:
		return evalAssign(s, env, ctx)
	case *pyast.MultiAssign:
		return evalMultiAssign(s, env, ctx)
	case *pyast.ChainedAssign:
		return evalChainedAssign(s, env, ctx)
	case *pyast.AugAssign:
		return evalAugAssign(s, env, ctx)
	case *pyast.AnnotatedAssign:
		return evalAnnotatedAssign(s, env, ctx)
	case *pyast.SubscriptAssign:
		return evalSubscriptAssign(s, env, ctx)
	case *pyast.AttrAssign:
		return evalAttrAssign(s, env, ctx)
	case *pyast.If:
		return evalIf(s, env, ctx)
	case *pyast.While:
		return evalWhile(s, env, ctx)
	case *pyast.For:
		return evalFor(s, env, ctx)
	case *pyast.Try:
		return evalTry(s, env, ctx)
	case *pyast.With:
		return evalWith(s, env, ctx)
	case *pyast.Match:
		return evalMatch(s, env, ctx)
	case *pyast.Def:
		return evalDef(s, env, ctx)
	case *pyast.Class:
		return evalClass(s, env, ctx)
	case *pyast.Raise:
		return evalRaise(s, env, ctx)
	case *pyast.Assert:
		return evalAssert(s, env, ctx)
	case *pyast.Del:
		return evalDel(s, env, ctx)
	case *pyast.Global:
		for _, name := range s.Names {
			env.DeclareGlobal(name)
		}
		return Val(pyval.None), ctx
	case *pyast.Nonlocal:
		for _, name := range s.Names {
			env.DeclareNonlocal(name)
		}
		return Val(pyval.None), ctx
	case *pyast.Import:
		return evalImport(s, env, ctx)
	case *pyast.FromImport:
		return evalFromImport(s, env, ctx)
	}
	return Exc("RuntimeError", fmt.Sprintf("cannot evaluate statement %T", n), n.Line()), ctx
}

func evalReturn(s *pyast.Return, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	switch len(s.Values) {
	case 0:
		return Returned(pyval.None), ctx
	case 1:
		o, nctx := evalExpr(s.Values[0], env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		return Returned(o.Value), ctx
	default:
		elems := make([]pyval.Value, 0, len(s.Values))
		for _, v := range s.Values {
			o, nctx := evalExpr(v, env, ctx)
			ctx = nctx
			if o.IsSignal() && o.Kind != OValue {
				return o, ctx
			}
			elems = append(elems, o.Value)
		}
		return Returned(pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: elems}}), ctx
	}
}

func evalAssign(s *pyast.Assign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	o, nctx := evalExpr(s.Value, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	if v, ok := s.Target.(*pyast.Var); ok {
		env.Bind(v.Name, o.Value)
		return Val(o.Value), ctx
	}
	return Exc("SyntaxError", "invalid assignment target", s.Line()), ctx
}

func evalMultiAssign(s *pyast.MultiAssign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	o, nctx := evalExpr(s.Value, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	elems, err := iterableElems(o.Value)
	if err != nil {
		return Exc("TypeError", err.Error(), s.Line()), ctx
	}
	if len(elems) != len(s.Targets) {
		return Exc("ValueError", fmt.Sprintf("too many values to unpack (expected %d)", len(s.Targets)), s.Line()), ctx
	}
	for i, t := range s.Targets {
		if v, ok := t.(*pyast.Var); ok {
			env.Bind(v.Name, elems[i])
			continue
		}
		return Exc("SyntaxError", "invalid assignment target", s.Line()), ctx
	}
	return Val(o.Value), ctx
}

func evalChainedAssign(s *pyast.ChainedAssign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	o, nctx := evalExpr(s.Value, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	for _, t := range s.Targets {
		if v, ok := t.(*pyast.Var); ok {
			env.Bind(v.Name, o.Value)
			continue
		}
		return Exc("SyntaxError", "invalid assignment target", s.Line()), ctx
	}
	return Val(o.Value), ctx
}

func evalAugAssign(s *pyast.AugAssign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	v, ok := s.Target.(*pyast.Var)
	if !ok {
		return Exc("SyntaxError", "invalid augmented-assignment target", s.Line()), ctx
	}
	cur, ok := env.Lookup(v.Name)
	if !ok {
		return nameError(v.Name, env, s.Line()), ctx
	}
	ro, nctx := evalExpr(s.Value, env, ctx)
	ctx = nctx
	if ro.IsSignal() && ro.Kind != OValue {
		return ro, ctx
	}
	res, err := pyval.BinOp(s.Op, cur, ro.Value)
	if err != nil {
		return Exc(arithExcKind(err), err.Error(), s.Line()), ctx
	}
	env.Bind(v.Name, res)
	return Val(res), ctx
}

func evalAnnotatedAssign(s *pyast.AnnotatedAssign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	if s.Value == nil {
		return Val(pyval.None), ctx
	}
	o, nctx := evalExpr(s.Value, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	if v, ok := s.Target.(*pyast.Var); ok {
		env.Bind(v.Name, o.Value)
	}
	return Val(o.Value), ctx
}

func evalSubscriptAssign(s *pyast.SubscriptAssign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	oo, ctx1 := evalExpr(s.Obj, env, ctx)
	ctx = ctx1
	if oo.IsSignal() && oo.Kind != OValue {
		return oo, ctx
	}
	io, ctx2 := evalExpr(s.Index, env, ctx)
	ctx = ctx2
	if io.IsSignal() && io.Kind != OValue {
		return io, ctx
	}
	vo, ctx3 := evalExpr(s.Value, env, ctx)
	ctx = ctx3
	if vo.IsSignal() && vo.Kind != OValue {
		return vo, ctx
	}
	if err := setSubscript(oo.Value, io.Value, vo.Value); err != nil {
		return Exc("TypeError", err.Error(), s.Line()), ctx
	}
	return Val(vo.Value), ctx
}

func evalAttrAssign(s *pyast.AttrAssign, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	oo, ctx1 := evalExpr(s.Obj, env, ctx)
	ctx = ctx1
	if oo.IsSignal() && oo.Kind != OValue {
		return oo, ctx
	}
	vo, ctx2 := evalExpr(s.Value, env, ctx)
	ctx = ctx2
	if vo.IsSignal() && vo.Kind != OValue {
		return vo, ctx
	}
	switch oo.Value.Kind {
	case pyval.KindInstance:
		oo.Value.Obj.(*pyval.Instance).Attrs.SetStr(s.Attr, vo.Value)
	case pyval.KindClass:
		oo.Value.Obj.(*pyval.Class).Attrs.SetStr(s.Attr, vo.Value)
	default:
		return Exc("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", pyval.TypeName(oo.Value), s.Attr), s.Line()), ctx
	}
	return Val(vo.Value), ctx
}

func evalIf(s *pyast.If, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	co, nctx := evalExpr(s.Cond, env, ctx)
	ctx = nctx
	if co.IsSignal() && co.Kind != OValue {
		return co, ctx
	}
	if pyval.IsTruthy(co.Value) {
		return evalStmts(s.Body, pyenv.NewBlockScope(env), ctx)
	}
	return evalStmts(s.Else, pyenv.NewBlockScope(env), ctx)
}

func evalWhile(s *pyast.While, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	start := time.Now()
	for {
		co, nctx := evalExpr(s.Cond, env, ctx)
		ctx = nctx
		if co.IsSignal() && co.Kind != OValue {
			return co, ctx
		}
		if !pyval.IsTruthy(co.Value) {
			return evalStmts(s.Else, pyenv.NewBlockScope(env), ctx)
		}
		bo, nctx2 := evalStmts(s.Body, pyenv.NewBlockScope(env), ctx)
		ctx = nctx2
		switch bo.Kind {
		case OBreak:
			return Val(pyval.None), ctx
		case OException, OReturned, OYielded, OSuspended, OIOCall:
			return bo, ctx
		}
		ctx = ctx.WithSpend(time.Since(start))
		start = time.Now()
		if ctx.Budget.Exhausted() {
			return Exc("TimeoutError", "execution budget exhausted", s.Line()), ctx
		}
	}
}

func evalFor(s *pyast.For, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	io, nctx := evalExpr(s.Iter, env, ctx)
	ctx = nctx
	if io.IsSignal() && io.Kind != OValue {
		return io, ctx
	}
	// Generators are driven lazily, one Next() per iteration, rather than
	// materialised via iterableElems: an infinite generator with a break
	// inside the loop body must never fully drain (spec.md §4.6).
	if gv, ok := io.Value.Obj.(*pygen.Generator); ok && io.Value.Kind == pyval.KindGenerator {
		for {
			el, more := gv.Next(pyval.None)
			if !more {
				break
			}
			loopEnv := pyenv.NewBlockScope(env)
			bindTargets(loopEnv, s.Targets, el)
			bo, nctx2 := evalStmts(s.Body, loopEnv, ctx)
			ctx = nctx2
			switch bo.Kind {
			case OBreak:
				return Val(pyval.None), ctx
			case OContinue:
				continue
			case OException, OReturned, OYielded, OSuspended, OIOCall:
				return bo, ctx
			}
			if ctx.Budget.Exhausted() {
				return Exc("TimeoutError", "execution budget exhausted", s.Line()), ctx
			}
		}
		return evalStmts(s.Else, pyenv.NewBlockScope(env), ctx)
	}
	elems, err := iterableElems(io.Value)
	if err != nil {
		return Exc("TypeError", err.Error(), s.Line()), ctx
	}
	for _, el := range elems {
		loopEnv := pyenv.NewBlockScope(env)
		bindTargets(loopEnv, s.Targets, el)
		bo, nctx2 := evalStmts(s.Body, loopEnv, ctx)
		ctx = nctx2
		switch bo.Kind {
		case OBreak:
			return Val(pyval.None), ctx
		case OContinue:
			continue
		case OException, OReturned, OYielded, OSuspended, OIOCall:
			return bo, ctx
		}
		if ctx.Budget.Exhausted() {
			return Exc("TimeoutError", "execution budget exhausted", s.Line()), ctx
		}
	}
	return evalStmts(s.Else, pyenv.NewBlockScope(env), ctx)
}

func bindTargets(env *pyenv.Env, targets []string, v pyval.Value) {
	if len(targets) == 1 {
		env.Bind(targets[0], v)
		return
	}
	elems, err := iterableElems(v)
	if err != nil {
		return
	}
	for i, name := range targets {
		if i < len(elems) {
			env.Bind(name, elems[i])
		}
	}
}

func evalDef(s *pyast.Def, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	fn := &pyval.Func{
		Name:        s.Name,
		Params:      translateParams(s.Params),
		Body:        s.Body,
		Closure:     env.Snapshot(),
		IsGenerator: s.IsGenerator,
	}
	fv := pyval.Value{Kind: pyval.KindFunc, Obj: fn}
	for i := len(s.Decorators) - 1; i >= 0; i-- {
		do, nctx := evalExpr(s.Decorators[i], env, ctx)
		ctx = nctx
		if do.IsSignal() && do.Kind != OValue {
			return do, ctx
		}
		ro, nctx2 := Call(do.Value, []pyval.Value{fv}, nil, ctx, s.Line())
		ctx = nctx2
		if ro.IsSignal() && ro.Kind != OValue {
			return ro, ctx
		}
		fv = ro.Value
	}
	env.Bind(s.Name, fv)
	return Val(fv), ctx
}

func translateParams(params []pyast.Param) []pyval.Param {
	out := make([]pyval.Param, len(params))
	for i, p := range params {
		out[i] = pyval.Param{
			Name:         p.Name,
			Annotation:   annotationName(p.Annotation),
			IsStar:       p.IsStar,
			IsDoubleStar: p.IsDoubleStar,
		}
	}
	return out
}

// annotationName extracts the bare name a parameter annotation refers to
// ("body: UserModel" -> "UserModel"); annotations beyond a simple name
// reference (spec.md §4.4's "parsed and discarded") aren't resolved here,
// so they report "".
func annotationName(ann pyast.Node) string {
	if v, ok := ann.(*pyast.Var); ok {
		return v.Name
	}
	return ""
}

func evalRaise(s *pyast.Raise, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	if s.Exc == nil {
		if active, ok := env.Lookup("__active_exception__"); ok && active.Kind == pyval.KindInstance {
			inst := active.Obj.(*pyval.Instance)
			msg, _ := inst.Attrs.GetStr("args")
			return Outcome{Kind: OException, ExcType: inst.Class.Name, ExcMsg: pyval.Stringify(msg), ExcLine: s.Line()}, ctx
		}
		return Exc("RuntimeError", "No active exception to re-raise", s.Line()), ctx
	}
	eo, nctx := evalExpr(s.Exc, env, ctx)
	ctx = nctx
	if eo.IsSignal() && eo.Kind != OValue {
		return eo, ctx
	}
	return excFromValue(eo.Value, s.Line()), ctx
}

func excFromValue(v pyval.Value, line int) Outcome {
	if v.Kind == pyval.KindInstance {
		inst := v.Obj.(*pyval.Instance)
		msg, _ := inst.Attrs.GetStr("message")
		return Outcome{Kind: OException, ExcType: inst.Class.Name, ExcMsg: pyval.Stringify(msg), ExcLine: line, Value: v}
	}
	if v.Kind == pyval.KindClass {
		cls := v.Obj.(*pyval.Class)
		return Outcome{Kind: OException, ExcType: cls.Name, ExcMsg: "", ExcLine: line}
	}
	return Outcome{Kind: OException, ExcType: "Exception", ExcMsg: pyval.Stringify(v), ExcLine: line}
}

func evalAssert(s *pyast.Assert, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	co, nctx := evalExpr(s.Cond, env, ctx)
	ctx = nctx
	if co.IsSignal() && co.Kind != OValue {
		return co, ctx
	}
	if pyval.IsTruthy(co.Value) {
		return Val(pyval.None), ctx
	}
	msg := ""
	if s.Msg != nil {
		mo, nctx2 := evalExpr(s.Msg, env, ctx)
		ctx = nctx2
		if mo.IsSignal() && mo.Kind != OValue {
			return mo, ctx
		}
		msg = pyval.Stringify(mo.Value)
	}
	return Exc("AssertionError", msg, s.Line()), ctx
}

func evalDel(s *pyast.Del, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	for _, t := range s.Targets {
		if v, ok := t.(*pyast.Var); ok {
			env.Delete(v.Name)
			continue
		}
		if sub, ok := t.(*pyast.Subscript); ok {
			oo, nctx := evalExpr(sub.Obj, env, ctx)
			ctx = nctx
			if oo.IsSignal() && oo.Kind != OValue {
				return oo, ctx
			}
			io, nctx2 := evalExpr(sub.Index, env, ctx)
			ctx = nctx2
			if io.IsSignal() && io.Kind != OValue {
				return io, ctx
			}
			delSubscript(oo.Value, io.Value)
		}
	}
	return Val(pyval.None), ctx
}

func delSubscript(obj, index pyval.Value) {
	switch obj.Kind {
	case pyval.KindDict:
		obj.Obj.(*pyval.Dict).Delete(index)
	case pyval.KindSet:
		obj.Obj.(*pyval.Set).Remove(index)
	case pyval.KindList:
		l := obj.Obj.(*pyval.List)
		idx := int(index.Int.Int64())
		if idx < 0 {
			idx += len(l.Elems)
		}
		if idx >= 0 && idx < len(l.Elems) {
			l.Elems = append(l.Elems[:idx], l.Elems[idx+1:]...)
		}
	}
}

func nameError(name string, env *pyenv.Env, line int) Outcome {
	msg := "name '" + name + "' is not defined"
	return Exc("NameError", msg+suggestMessage(name, env.Names()), line)
}

// suggestMessage wraps pysuggest.Message for the NameError case (candidate
// names drawn from every scope reachable from env), mirroring
// suggestAttrMessage's use of the same "did you mean" helper for attribute
// lookups in exprs.go.
func suggestMessage(name string, candidates []string) string {
	return pysuggest.Message(name, candidates)
}
