// Package pyweb implements the request dispatcher collaborator (spec.md
// §4.8): the "web" module's registration primitive returns a
// register-route effect marker, which the evaluator intercepts at its
// top-level assignment site and hands to RouteTable.Register; at request
// time, Dispatch matches a request against the table and binds the
// handler's formal parameters from path/query/body.
//
// please's own HTTP surface (src/cache/server/http_server.go) wires
// gorilla/mux by hand-registering one handler per path; there's no
// exact analogue of dispatching into *Python* handler values, but the
// path-template-compile-then-match shape is identical, so this package
// delegates template compilation and matching to the same library
// (gorilla/mux) rather than hand-rolling a segment matcher, building a
// synthetic *http.Request via net/http/httptest purely to exercise
// mux's router and pull path parameters back out with mux.Vars.
package pyweb

import (
	"net/http/httptest"
	"sort"

	"github.com/gorilla/mux"

	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
)

// Request is the abstract request value a host hands to Dispatch; it has
// no notion of a real network connection, matching spec.md §1's "pure
// function, no OS process" library framing.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   pyval.Value // None if there is no body
}

// Response is a plain, non-streaming result: status, headers, body.
type Response struct {
	Status  int
	Headers map[string]string
	Body    pyval.Value
}

// StreamResponse is a streaming result: each Next() call on Chunks
// produces the next chunk value, per spec.md §4.8's "lazy chunk sequence
// produced by the generator engine in deferred mode".
type StreamResponse struct {
	Status  int
	Headers map[string]string
	Chunks  *pygen.Generator
}

// RouteTable is the compiled form of a program's route registrations,
// backed by a gorilla/mux router for template compilation and matching.
type RouteTable struct {
	router   *mux.Router
	handlers map[string]pyval.Value // route name -> handler
	order    []pyctx.Route           // registration order, for introspection
}

// NewRouteTable returns an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{router: mux.NewRouter(), handlers: map[string]pyval.Value{}}
}

// BuildTable compiles a Context's accumulated route registrations (spec.md
// §3.5's "route table": ordered (method, path-template, handler) entries)
// into a matchable RouteTable; called once per Dispatch since pyctx.Route
// entries are cheap value copies and route tables rarely exceed a handful
// of entries for a sandboxed program.
func BuildTable(routes []pyctx.Route) *RouteTable {
	rt := NewRouteTable()
	for _, r := range routes {
		rt.Register(r.Method, r.Path, r.Handler)
	}
	return rt
}

// Register compiles method+path into the router and records handler
// against it, per spec.md §4.8's "compiled entry appended to the
// context's route table". Routes are matched in registration order,
// which mux itself already guarantees (first added, first tried).
func (rt *RouteTable) Register(method, path string, handler pyval.Value) {
	name := method + " " + path
	// handlers is keyed by route name, so a same-template re-registration
	// gets one more "'" appended to its name until the name is unique and
	// its handler does not overwrite the earlier one. Both routes stay in
	// the router; Match tries them in registration order, so the earliest
	// registration of a template is the one that matches.
	for {
		if _, exists := rt.handlers[name]; !exists {
			break
		}
		name += "'"
	}
	rt.router.NewRoute().Name(name).Methods(method).Path(path)
	rt.handlers[name] = handler
	rt.order = append(rt.order, pyctx.Route{Method: method, Path: path, Handler: handler})
}

// Routes returns the registered routes in registration order.
func (rt *RouteTable) Routes() []pyctx.Route { return rt.order }

// Match finds the handler for req, along with path parameters bound by
// name and query parameters passed through verbatim. ok is false if no
// route matches (spec.md's "route-not-found" error kind).
func (rt *RouteTable) Match(req Request) (handler pyval.Value, params map[string]string, ok bool) {
	httpReq := httptest.NewRequest(req.Method, "http://sandbox"+ensureLeadingSlash(req.Path), nil)
	var match mux.RouteMatch
	if !rt.router.Match(httpReq, &match) || match.Route == nil {
		return pyval.Value{}, nil, false
	}
	h, found := rt.handlers[match.Route.GetName()]
	if !found {
		return pyval.Value{}, nil, false
	}
	params = map[string]string{}
	for k, v := range match.Vars {
		params[k] = v
	}
	for k, v := range req.Query {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}
	return h, params, true
}

func ensureLeadingSlash(p string) string {
	if len(p) == 0 || p[0] != '/' {
		return "/" + p
	}
	return p
}

// ParamNames reports the declared formal parameter names for fn, in
// order, for the evaluator to fill per spec.md §4.8's (a) path, (b)
// query, (c) body binding precedence.
func ParamNames(fn *pyval.Func) []string {
	names := make([]string, 0, len(fn.Params))
	for _, p := range fn.Params {
		if !p.IsStar && !p.IsDoubleStar {
			names = append(names, p.Name)
		}
	}
	return names
}

// SortedQueryKeys is a small convenience for deterministic logging/
// profiling of a dispatched request's query parameters.
func SortedQueryKeys(q map[string]string) []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
