package pyeval

import (
	"fmt"
	"strings"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pysuggest"
	"github.com/sandboxed-py/interp/src/pyval"
)

func evalExpr(n pyast.Node, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	switch e := n.(type) {
	case *pyast.Lit:
		return Val(litValue(e)), ctx
	case *pyast.Var:
		v, ok := env.Lookup(e.Name)
		if !ok {
			return nameError(e.Name, env, e.Line()), ctx
		}
		return Val(v), ctx
	case *pyast.List:
		return evalListLit(e, env, ctx)
	case *pyast.Tuple:
		return evalTupleLit(e, env, ctx)
	case *pyast.Set:
		return evalSetLit(e, env, ctx)
	case *pyast.Dict:
		return evalDictLit(e, env, ctx)
	case *pyast.BinOp:
		return evalBinOp(e, env, ctx)
	case *pyast.UnaryOp:
		return evalUnaryOp(e, env, ctx)
	case *pyast.ChainedCompare:
		return evalChainedCompare(e, env, ctx)
	case *pyast.Ternary:
		return evalTernary(e, env, ctx)
	case *pyast.Call:
		return evalCall(e, env, ctx)
	case *pyast.GetAttr:
		return evalGetAttr(e, env, ctx)
	case *pyast.Subscript:
		return evalSubscript(e, env, ctx)
	case *pyast.Slice:
		return evalSliceExpr(e, env, ctx)
	case *pyast.Lambda:
		return evalLambda(e, env, ctx)
	case *pyast.ListComp:
		return evalListComp(e, env, ctx)
	case *pyast.SetComp:
		return evalSetComp(e, env, ctx)
	case *pyast.DictComp:
		return evalDictComp(e, env, ctx)
	case *pyast.GenExpr:
		return evalGenExprEager(e, env, ctx)
	case *pyast.FString:
		return evalFString(e, env, ctx)
	case *pyast.Walrus:
		return evalWalrus(e, env, ctx)
	case *pyast.Yield:
		return evalYield(e, env, ctx)
	case *pyast.YieldFrom:
		return evalYieldFrom(e, env, ctx)
	}
	return Exc("RuntimeError", fmt.Sprintf("cannot evaluate expression %T", n), n.Line()), ctx
}

func litValue(e *pyast.Lit) pyval.Value {
	switch e.Kind {
	case pyast.LitInt:
		v := pyval.Int(0)
		v.Int.SetString(e.Str, 0)
		return v
	case pyast.LitFloat:
		return pyval.Float(e.Num)
	case pyast.LitString:
		return pyval.Str(e.Str)
	case pyast.LitBool:
		return pyval.Bool(e.Bool)
	default:
		return pyval.None
	}
}

func evalExprs(exprs []pyast.Node, env *pyenv.Env, ctx *pyctx.Context) ([]pyval.Value, Outcome, *pyctx.Context) {
	out := make([]pyval.Value, 0, len(exprs))
	for _, e := range exprs {
		if star, ok := e.(*pyast.StarArg); ok {
			o, nctx := evalExpr(star.X, env, ctx)
			ctx = nctx
			if o.IsSignal() && o.Kind != OValue {
				return nil, o, ctx
			}
			elems, err := iterableElems(o.Value)
			if err != nil {
				return nil, Exc("TypeError", err.Error(), e.Line()), ctx
			}
			out = append(out, elems...)
			continue
		}
		o, nctx := evalExpr(e, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return nil, o, ctx
		}
		out = append(out, o.Value)
	}
	return out, Val(pyval.None), ctx
}

func evalListLit(e *pyast.List, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	vals, sig, ctx2 := evalExprs(e.Elems, env, ctx)
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx2
	}
	return Val(pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: vals}}), ctx2
}

func evalTupleLit(e *pyast.Tuple, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	vals, sig, ctx2 := evalExprs(e.Elems, env, ctx)
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx2
	}
	return Val(pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: vals}}), ctx2
}

func evalSetLit(e *pyast.Set, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	vals, sig, ctx2 := evalExprs(e.Elems, env, ctx)
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx2
	}
	s := pyval.NewSet()
	for _, v := range vals {
		s.Add(v)
	}
	return Val(pyval.Value{Kind: pyval.KindSet, Obj: s}), ctx2
}

func evalDictLit(e *pyast.Dict, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	d := pyval.NewDict()
	for _, ent := range e.Entries {
		if spread, ok := ent.Key.(*pyast.DoubleStarArg); ok {
			o, nctx := evalExpr(spread.X, env, ctx)
			ctx = nctx
			if o.IsSignal() && o.Kind != OValue {
				return o, ctx
			}
			if o.Value.Kind == pyval.KindDict {
				for _, it := range o.Value.Obj.(*pyval.Dict).Items() {
					d.Set(it.Key, it.Value)
				}
			}
			continue
		}
		ko, nctx := evalExpr(ent.Key, env, ctx)
		ctx = nctx
		if ko.IsSignal() && ko.Kind != OValue {
			return ko, ctx
		}
		vo, nctx2 := evalExpr(ent.Value, env, ctx)
		ctx = nctx2
		if vo.IsSignal() && vo.Kind != OValue {
			return vo, ctx
		}
		d.Set(ko.Value, vo.Value)
	}
	return Val(pyval.Value{Kind: pyval.KindDict, Obj: d}), ctx
}

func evalBinOp(e *pyast.BinOp, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	if e.Op == "and" || e.Op == "or" {
		lo, nctx := evalExpr(e.Left, env, ctx)
		ctx = nctx
		if lo.IsSignal() && lo.Kind != OValue {
			return lo, ctx
		}
		truthy := pyval.IsTruthy(lo.Value)
		if (e.Op == "and" && !truthy) || (e.Op == "or" && truthy) {
			return Val(lo.Value), ctx
		}
		return evalExpr(e.Right, env, ctx)
	}
	lo, nctx := evalExpr(e.Left, env, ctx)
	ctx = nctx
	if lo.IsSignal() && lo.Kind != OValue {
		return lo, ctx
	}
	ro, nctx2 := evalExpr(e.Right, env, ctx)
	ctx = nctx2
	if ro.IsSignal() && ro.Kind != OValue {
		return ro, ctx
	}
	res, err := pyval.BinOp(e.Op, lo.Value, ro.Value)
	if err != nil {
		return Exc(arithExcKind(err), err.Error(), e.Line()), ctx
	}
	return Val(res), ctx
}

// arithExcKind classifies a pyval.BinOp error by message content: "by
// zero" messages are ZeroDivisionError regardless of which operator or
// operand types produced them (spec.md §8), everything else from BinOp
// is an unsupported-operand TypeError.
func arithExcKind(err error) string {
	if strings.Contains(err.Error(), "by zero") {
		return "ZeroDivisionError"
	}
	return "TypeError"
}

func evalUnaryOp(e *pyast.UnaryOp, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	o, nctx := evalExpr(e.X, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	res, err := pyval.UnaryOp(e.Op, o.Value)
	if err != nil {
		return Exc("TypeError", err.Error(), e.Line()), ctx
	}
	return Val(res), ctx
}

func evalChainedCompare(e *pyast.ChainedCompare, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	lo, nctx := evalExpr(e.First, env, ctx)
	ctx = nctx
	if lo.IsSignal() && lo.Kind != OValue {
		return lo, ctx
	}
	cur := lo.Value
	for _, step := range e.Rest {
		ro, nctx2 := evalExpr(step.Operand, env, ctx)
		ctx = nctx2
		if ro.IsSignal() && ro.Kind != OValue {
			return ro, ctx
		}
		res, err := pyval.BinOp(step.Op, cur, ro.Value)
		if err != nil {
			return Exc(arithExcKind(err), err.Error(), e.Line()), ctx
		}
		if !pyval.IsTruthy(res) {
			return Val(pyval.False), ctx
		}
		cur = ro.Value
	}
	return Val(pyval.True), ctx
}

func evalTernary(e *pyast.Ternary, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	co, nctx := evalExpr(e.Cond, env, ctx)
	ctx = nctx
	if co.IsSignal() && co.Kind != OValue {
		return co, ctx
	}
	if pyval.IsTruthy(co.Value) {
		return evalExpr(e.Then, env, ctx)
	}
	return evalExpr(e.Else, env, ctx)
}

func evalGetAttr(e *pyast.GetAttr, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	oo, nctx := evalExpr(e.Obj, env, ctx)
	ctx = nctx
	if oo.IsSignal() && oo.Kind != OValue {
		return oo, ctx
	}
	v, err := getAttr(oo.Value, e.Attr)
	if err != nil {
		msg := err.Error() + suggestAttrMessage(e.Attr, oo.Value)
		return Exc("AttributeError", msg, e.Line()), ctx
	}
	return Val(v), ctx
}

func suggestAttrMessage(attr string, v pyval.Value) string {
	var names []string
	switch v.Kind {
	case pyval.KindInstance:
		inst := v.Obj.(*pyval.Instance)
		names = append(names, inst.Attrs.KeysAsStrings()...)
		for _, c := range inst.Class.MRO {
			names = append(names, c.Attrs.KeysAsStrings()...)
		}
	case pyval.KindClass:
		names = v.Obj.(*pyval.Class).Attrs.KeysAsStrings()
	}
	return pysuggest.Message(attr, names)
}

func evalSubscript(e *pyast.Subscript, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	oo, nctx := evalExpr(e.Obj, env, ctx)
	ctx = nctx
	if oo.IsSignal() && oo.Kind != OValue {
		return oo, ctx
	}
	io, nctx2 := evalExpr(e.Index, env, ctx)
	ctx = nctx2
	if io.IsSignal() && io.Kind != OValue {
		return io, ctx
	}
	v, err := getSubscript(oo.Value, io.Value)
	if err != nil {
		kind := "TypeError"
		if strings.HasPrefix(err.Error(), "KeyError") {
			kind = "KeyError"
		} else if strings.Contains(err.Error(), "out of range") {
			kind = "IndexError"
		}
		return Exc(kind, err.Error(), e.Line()), ctx
	}
	return Val(v), ctx
}

func evalSliceExpr(e *pyast.Slice, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	sl := &pyval.Slice{Start: pyval.None, Stop: pyval.None, Step: pyval.None}
	if e.Start != nil {
		o, nctx := evalExpr(e.Start, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		sl.Start = o.Value
	}
	if e.Stop != nil {
		o, nctx := evalExpr(e.Stop, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		sl.Stop = o.Value
	}
	if e.Step != nil {
		o, nctx := evalExpr(e.Step, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		sl.Step = o.Value
	}
	return Val(pyval.Value{Kind: pyval.KindSlice, Obj: sl}), ctx
}

func evalLambda(e *pyast.Lambda, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	fn := &pyval.Func{
		Name:    "<lambda>",
		Params:  translateParams(e.Params),
		Body:    []pyast.Node{&pyast.Return{Pos: e.Pos, Values: []pyast.Node{e.Body}}},
		Closure: env.Snapshot(),
	}
	return Val(pyval.Value{Kind: pyval.KindLambda, Obj: fn}), ctx
}

func evalWalrus(e *pyast.Walrus, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	o, nctx := evalExpr(e.X, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	env.Bind(e.Name, o.Value)
	return Val(o.Value), ctx
}

// evalFString evaluates each part, applying !r/!s/!a conversions, and
// concatenates, per spec.md §4.4/§4.6's "f-strings are evaluated and
// stringified at evaluation time".
func evalFString(e *pyast.FString, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	var sb strings.Builder
	for _, part := range e.Parts {
		if part.Expr == nil {
			sb.WriteString(part.Literal)
			continue
		}
		wrap := part.Expr.(*pyast.FStringExprWrap)
		o, nctx := evalExpr(wrap.X, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		switch wrap.Conv {
		case "r", "a":
			sb.WriteString(pyval.Repr(o.Value))
		default:
			s, nctx2, sig := stringifyValue(o.Value, ctx, e.Line())
			ctx = nctx2
			if sig.Kind == OException {
				return sig, ctx
			}
			sb.WriteString(s)
		}
	}
	return Val(pyval.Str(sb.String())), ctx
}

// evalYield implements the yield expression (spec.md §4.6). Outside a
// generator body (ctx.Yield unset) it is a SyntaxError, same as CPython
// rejecting yield outside a function; parsing already restricts yield to
// generator bodies (containsYield drives IsGenerator), so this only fires
// if that invariant is ever violated.
func evalYield(e *pyast.Yield, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	v := pyval.None
	if e.Value != nil {
		o, nctx := evalExpr(e.Value, env, ctx)
		ctx = nctx
		if o.IsSignal() && o.Kind != OValue {
			return o, ctx
		}
		v = o.Value
	}
	if ctx.Yield == nil {
		return Exc("SyntaxError", "'yield' outside function", e.Line()), ctx
	}
	sent := ctx.Yield(v)
	return Val(sent), ctx
}

func evalYieldFrom(e *pyast.YieldFrom, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	o, nctx := evalExpr(e.X, env, ctx)
	ctx = nctx
	if o.IsSignal() && o.Kind != OValue {
		return o, ctx
	}
	if ctx.Yield == nil {
		return Exc("SyntaxError", "'yield' outside function", e.Line()), ctx
	}
	if gv, ok := o.Value.Obj.(*pygen.Generator); ok && o.Value.Kind == pyval.KindGenerator {
		sent := pyval.None
		for {
			v, ok := gv.Next(sent)
			if !ok {
				return Val(gv.Return()), ctx
			}
			sent = ctx.Yield(v)
		}
	}
	elems, err := iterableElems(o.Value)
	if err != nil {
		return Exc("TypeError", err.Error(), e.Line()), ctx
	}
	last := pyval.None
	for _, el := range elems {
		last = ctx.Yield(el)
	}
	return Val(last), ctx
}
