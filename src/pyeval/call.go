package pyeval

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pybuiltin"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
)

func evalCall(e *pyast.Call, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	fo, nctx := evalExpr(e.Func, env, ctx)
	ctx = nctx
	if fo.IsSignal() && fo.Kind != OValue {
		return fo, ctx
	}
	args, sig, ctx2 := evalExprs(e.Args, env, ctx)
	ctx = ctx2
	if sig.IsSignal() && sig.Kind != OValue {
		return sig, ctx
	}
	kwargs := map[string]pyval.Value{}
	for _, kw := range e.Kwargs {
		ko, nctx2 := evalExpr(kw.Value, env, ctx)
		ctx = nctx2
		if ko.IsSignal() && ko.Kind != OValue {
			return ko, ctx
		}
		kwargs[kw.Name] = ko.Value
	}
	return Call(fo.Value, args, kwargs, ctx, e.Line())
}

// Call dispatches to a user function, lambda, bound method, builtin, or
// class constructor, per spec.md §4.6.
func Call(fn pyval.Value, args []pyval.Value, kwargs map[string]pyval.Value, ctx *pyctx.Context, line int) (Outcome, *pyctx.Context) {
	switch fn.Kind {
	case pyval.KindFunc, pyval.KindLambda:
		return callUserFunc(fn.Obj.(*pyval.Func), args, kwargs, ctx, line)
	case pyval.KindBoundMethod:
		bm := fn.Obj.(*pyval.BoundMethod)
		return callUserFunc(bm.Fn, append([]pyval.Value{bm.Receiver}, args...), kwargs, ctx, line)
	case pyval.KindBuiltin:
		b := fn.Obj.(*pyval.Builtin)
		v, err := b.Call(args, kwargs)
		if err != nil {
			return Exc("TypeError", err.Error(), line), ctx
		}
		if v.Kind == pyval.KindEffect {
			return dispatchEffect(v, ctx, line)
		}
		return Val(v), ctx
	case pyval.KindClass:
		return instantiate(fn.Obj.(*pyval.Class), args, kwargs, ctx, line)
	}
	return Exc("TypeError", fmt.Sprintf("'%s' object is not callable", pyval.TypeName(fn)), line), ctx
}

// dispatchEffect fulfils a KindEffect value produced by a builtin that can't
// touch the Context itself (pybuiltin has no Context to avoid an import
// cycle with pyeval). This is the single choke-point every call passes
// through, so it works regardless of whether the effect-producing call sits
// in a bare "x = web.get(...)" statement or nested inside an expression.
func dispatchEffect(v pyval.Value, ctx *pyctx.Context, line int) (Outcome, *pyctx.Context) {
	switch d := v.Obj.(type) {
	case *pybuiltin.RouteDirective:
		ctx = ctx.WithRoute(pyctx.Route{Method: d.Method, Path: d.Path, Handler: d.Handler})
		return Val(pyval.None), ctx
	case *pybuiltin.IODirective:
		return dispatchIO(d, ctx, line)
	case *pybuiltin.NetDirective:
		return dispatchNet(d, ctx, line)
	case *pybuiltin.OutputDirective:
		ctx = ctx.WithOutput(d.Text)
		return Val(pyval.None), ctx
	}
	return Exc("RuntimeError", "unrecognised effect directive", line), ctx
}

func dispatchNet(d *pybuiltin.NetDirective, ctx *pyctx.Context, line int) (Outcome, *pyctx.Context) {
	if !ctx.Caps.Network {
		return Exc("ConnectionError", "network capability not enabled", line), ctx
	}
	ctx = ctx.WithEvent(pyctx.Event{Kind: "io", Message: d.Method + " " + d.URL})
	var body io.Reader
	if d.Body != "" {
		body = strings.NewReader(d.Body)
	}
	req, err := http.NewRequest(d.Method, d.URL, body)
	if err != nil {
		return Exc("ConnectionError", err.Error(), line), ctx
	}
	resp, err := ctx.HTTPClient().Do(req)
	if err != nil {
		return Exc("ConnectionError", err.Error(), line), ctx
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Exc("ConnectionError", err.Error(), line), ctx
	}
	d2 := pyval.NewDict()
	d2.SetStr("status_code", pyval.Int(int64(resp.StatusCode)))
	d2.SetStr("text", pyval.Value{Kind: pyval.KindStr, Str: string(data)})
	return Val(pyval.Value{Kind: pyval.KindDict, Obj: d2}), ctx
}

func dispatchIO(d *pybuiltin.IODirective, ctx *pyctx.Context, line int) (Outcome, *pyctx.Context) {
	fsys := ctx.Caps.Filesystem
	if fsys == nil {
		return Exc("OSError", "filesystem capability not enabled", line), ctx
	}
	ctx = ctx.WithEvent(pyctx.Event{Kind: "io", Message: d.Op + " " + d.Path})
	switch d.Op {
	case "read":
		data, err := fsys.Read(d.Path)
		if err != nil {
			return Exc("FileNotFoundError", err.Error(), line), ctx
		}
		return Val(pyval.Value{Kind: pyval.KindStr, Str: string(data)}), ctx
	case "write":
		if err := fsys.Write(d.Path, d.Data); err != nil {
			return Exc("OSError", err.Error(), line), ctx
		}
		return Val(pyval.None), ctx
	case "append":
		existing, _ := fsys.Read(d.Path)
		if err := fsys.Write(d.Path, append(existing, d.Data...)); err != nil {
			return Exc("OSError", err.Error(), line), ctx
		}
		return Val(pyval.None), ctx
	case "exists":
		return Val(pyval.Value{Kind: pyval.KindBool, Bl: fsys.Exists(d.Path)}), ctx
	case "list_dir":
		names, err := fsys.ListDir(d.Path)
		if err != nil {
			return Exc("FileNotFoundError", err.Error(), line), ctx
		}
		elems := make([]pyval.Value, len(names))
		for i, n := range names {
			elems[i] = pyval.Value{Kind: pyval.KindStr, Str: n}
		}
		return Val(pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: elems}}), ctx
	case "delete":
		if err := fsys.Delete(d.Path); err != nil {
			return Exc("FileNotFoundError", err.Error(), line), ctx
		}
		return Val(pyval.None), ctx
	}
	return Exc("RuntimeError", "unrecognised io operation: "+d.Op, line), ctx
}

func callUserFunc(fn *pyval.Func, args []pyval.Value, kwargs map[string]pyval.Value, ctx *pyctx.Context, line int) (Outcome, *pyctx.Context) {
	closure, _ := fn.Closure.(*pyenv.Env)
	if closure == nil {
		closure = pyenv.NewModule()
	}
	callEnv := pyenv.NewFunctionScope(closure)
	if err := bindParams(callEnv, fn.Params, args, kwargs); err != nil {
		return Exc("TypeError", err.Error(), line), ctx
	}
	body, _ := fn.Body.([]pyast.Node)
	if fn.IsGenerator {
		genCtx := ctx
		gv := pygen.NewGenerator(func(y pygen.Yielder) pyval.Value {
			bodyCtx := genCtx.WithYield(y.Yield).WithDeferred(true)
			o, _ := evalStmts(body, callEnv, bodyCtx)
			if o.Kind == OReturned {
				return o.Value
			}
			return pyval.None
		})
		return Val(pyval.Value{Kind: pyval.KindGenerator, Obj: gv}), ctx
	}
	start := time.Now()
	o, nctx := evalStmts(body, callEnv, ctx)
	ctx = nctx.WithSpend(time.Since(start))
	switch o.Kind {
	case OReturned:
		return Val(o.Value), ctx
	case OException:
		return o, ctx
	default:
		return Val(pyval.None), ctx
	}
}

func bindParams(env *pyenv.Env, params []pyval.Param, args []pyval.Value, kwargs map[string]pyval.Value) error {
	ai := 0
	for _, p := range params {
		switch {
		case p.IsDoubleStar:
			d := pyval.NewDict()
			for k, v := range kwargs {
				d.SetStr(k, v)
			}
			env.Bind(p.Name, pyval.Value{Kind: pyval.KindDict, Obj: d})
		case p.IsStar:
			rest := append([]pyval.Value(nil), args[ai:]...)
			env.Bind(p.Name, pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: rest}})
			ai = len(args)
		default:
			if v, ok := kwargs[p.Name]; ok {
				env.Bind(p.Name, v)
			} else if ai < len(args) {
				env.Bind(p.Name, args[ai])
				ai++
			} else if p.Default != nil {
				env.Bind(p.Name, *p.Default)
			} else {
				return fmt.Errorf("missing required argument: '%s'", p.Name)
			}
		}
	}
	return nil
}

// stringifyValue renders v the way Python's str() would, consulting a
// user-defined __str__ method first (spec.md's f-string "stringified
// with the value's __str__ (or default)") before falling back to
// pyval.Stringify's generic rendering.
func stringifyValue(v pyval.Value, ctx *pyctx.Context, line int) (string, *pyctx.Context, Outcome) {
	if v.Kind == pyval.KindInstance {
		if fn, err := getAttr(v, "__str__"); err == nil {
			o, nctx := Call(fn, nil, nil, ctx, line)
			ctx = nctx
			if o.Kind == OException {
				return "", ctx, o
			}
			return pyval.Stringify(o.Value), ctx, Val(pyval.None)
		}
	}
	return pyval.Stringify(v), ctx, Val(pyval.None)
}

func getAttr(v pyval.Value, attr string) (pyval.Value, error) {
	switch v.Kind {
	case pyval.KindInstance:
		inst := v.Obj.(*pyval.Instance)
		val, ok := inst.GetAttr(attr)
		if !ok {
			return pyval.Value{}, fmt.Errorf("'%s' object has no attribute '%s'", inst.Class.Name, attr)
		}
		if fn, ok := val.Obj.(*pyval.Func); ok && val.Kind == pyval.KindFunc {
			return pyval.Value{Kind: pyval.KindBoundMethod, Obj: &pyval.BoundMethod{Receiver: v, Fn: fn}}, nil
		}
		return val, nil
	case pyval.KindClass:
		cls := v.Obj.(*pyval.Class)
		val, ok := cls.Resolve(attr)
		if !ok {
			return pyval.Value{}, fmt.Errorf("type object '%s' has no attribute '%s'", cls.Name, attr)
		}
		return val, nil
	case pyval.KindStr:
		return strMethod(v, attr)
	case pyval.KindList:
		return listMethod(v, attr)
	case pyval.KindDict:
		return dictMethod(v, attr)
	case pyval.KindSet:
		return setMethod(v, attr)
	}
	return pyval.Value{}, fmt.Errorf("'%s' object has no attribute '%s'", pyval.TypeName(v), attr)
}
