package pyeval

import (
	"fmt"

	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
	"github.com/sandboxed-py/interp/src/pyweb"
)

// Dispatch implements spec.md §4.8's request-dispatch step: match req
// against the Context's accumulated route table, bind the handler's
// formal parameters from path then query then body, run it under the
// shared Context (so file writes/counters persist across requests), and
// package the result as either a plain Response or, if the handler
// itself is a generator, a StreamResponse whose chunks are pulled lazily
// through pygen.
func Dispatch(req pyweb.Request, ctx *pyctx.Context) (interface{}, *pyctx.Context, Outcome) {
	table := pyweb.BuildTable(ctx.Routes)
	handler, params, ok := table.Match(req)
	if !ok {
		return nil, ctx, Exc("RouteNotFoundError", fmt.Sprintf("no route matches %s %s", req.Method, req.Path), 0)
	}
	fn, ok := handler.Obj.(*pyval.Func)
	if !ok {
		return nil, ctx, Exc("TypeError", "route handler is not callable", 0)
	}
	kwargs := map[string]pyval.Value{}
	for _, name := range pyweb.ParamNames(fn) {
		if v, ok := params[name]; ok {
			kwargs[name] = pyval.Str(v)
			continue
		}
		if name == "body" {
			kwargs[name] = req.Body
		}
	}
	if verr := validateBody(fn, kwargs, ctx); verr != "" {
		return nil, ctx, Exc("ValidationError", verr, 0)
	}
	o, nctx := Call(handler, nil, kwargs, ctx, 0)
	ctx = nctx
	if o.Kind == OException {
		return nil, ctx, o
	}
	if o.Value.Kind == pyval.KindGenerator {
		return &pyweb.StreamResponse{Status: 200, Headers: map[string]string{}, Chunks: o.Value.Obj.(*pygen.Generator)}, ctx, Val(pyval.None)
	}
	return responseFromValue(o.Value), ctx, Val(pyval.None)
}

// validateBody implements spec.md §4.8's "auto-validating into a declared
// pydantic model if the handler's annotation names one": the real pydantic
// library is out of scope, but a handler's "body: UserModel" annotation
// still has to name something the dispatcher can check the parsed body
// against. The model is whatever host-registered module value shares the
// annotation's name (ctx.Modules, the same map CustomModules populates);
// if it's a class, the body dict's keys must cover that class's __init__
// parameters (sans self/*args/**kwargs) - a shape check, not a type check.
func validateBody(fn *pyval.Func, kwargs map[string]pyval.Value, ctx *pyctx.Context) string {
	var ann string
	for _, p := range fn.Params {
		if p.Name == "body" && p.Annotation != "" {
			ann = p.Annotation
			break
		}
	}
	if ann == "" {
		return ""
	}
	model, ok := ctx.Modules[ann]
	if !ok || model.Kind != pyval.KindClass {
		return ""
	}
	body, ok := kwargs["body"]
	if !ok || body.Kind != pyval.KindDict {
		return fmt.Sprintf("%s requires a JSON object body", ann)
	}
	cls := model.Obj.(*pyval.Class)
	init, ok := cls.Resolve("__init__")
	if !ok || init.Kind != pyval.KindFunc {
		return ""
	}
	dict := body.Obj.(*pyval.Dict)
	for _, p := range init.Obj.(*pyval.Func).Params {
		if p.Name == "self" || p.IsStar || p.IsDoubleStar || p.Default != nil {
			continue
		}
		if _, ok := dict.GetStr(p.Name); !ok {
			return fmt.Sprintf("%s body missing required field '%s'", ann, p.Name)
		}
	}
	return ""
}

func responseFromValue(v pyval.Value) *pyweb.Response {
	resp := &pyweb.Response{Status: 200, Headers: map[string]string{}, Body: v}
	if v.Kind != pyval.KindDict {
		return resp
	}
	d := v.Obj.(*pyval.Dict)
	if status, ok := d.GetStr("status"); ok && status.Kind == pyval.KindInt {
		resp.Status = int(status.Int.Int64())
	}
	if body, ok := d.GetStr("body"); ok {
		resp.Body = body
	}
	if headers, ok := d.GetStr("headers"); ok && headers.Kind == pyval.KindDict {
		for _, it := range headers.Obj.(*pyval.Dict).Items() {
			resp.Headers[pyval.Stringify(it.Key)] = pyval.Stringify(it.Value)
		}
	}
	return resp
}
