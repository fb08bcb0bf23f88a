// Package pyctx implements the Context component (spec.md §5): the
// capability-scoped, value-semantics execution context threaded through
// every evaluation step. Mutating operations return a new Context rather
// than mutating in place, mirroring spec.md's "Context is passed by
// value; any mutation (writing a file, consuming budget, logging an
// event) produces a new Context rather than aliasing the caller's".
//
// Grounded on please/src/parse/asp's scope/core.BuildState split (a
// broad "ambient state bag" threaded through interpretation) for the
// overall idea of one struct carrying cross-cutting state, generalised
// to spec.md's specific capability/budget/event-log/profile shape, which
// the teacher's BuildState (build-graph specific) doesn't have an
// equivalent of.
package pyctx

import (
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sandboxed-py/interp/src/pyval"
)

// Event is one entry in the Context's append-only event log. The
// evaluator records one event, of Kind "io", for each filesystem or
// network directive it runs; exceptions, yields, route registrations,
// imports and print() output record no event.
type Event struct {
	Kind    string // "io"
	Message string
	At      time.Time
}

// Budget tracks the wall-clock quota an execution is allowed to consume.
type Budget struct {
	Quota time.Duration
	Spent time.Duration
}

// Remaining reports how much budget is left; zero or negative means
// exhausted.
func (b Budget) Remaining() time.Duration { return b.Quota - b.Spent }

// Exhausted reports whether the budget has been fully consumed.
func (b Budget) Exhausted() bool { return b.Quota > 0 && b.Spent >= b.Quota }

// Capabilities gates which host resources a running program may touch,
// per spec.md §5/§6.1: absence of a capability must make the
// corresponding builtin raise rather than silently no-op.
type Capabilities struct {
	Filesystem     FilesystemAPI
	Network        bool
	SQL            bool
	ObjectStorage  bool
	Modules        map[string]bool // permitted stdlib module names
}

// FilesystemAPI is the capability surface a Context's filesystem
// capability exposes; concrete adapters live in src/pyfs.
type FilesystemAPI interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Exists(path string) bool
	ListDir(path string) ([]string, error)
	Delete(path string) error
}

// Route is one registered entry in the route table a running program
// builds via the request-dispatcher collaborator (spec.md §7).
type Route struct {
	Method  string
	Path    string
	Handler pyval.Value
}

// Context is immutable from the caller's perspective: every method that
// logically mutates state returns a new *Context built via clone(),
// leaving the receiver untouched.
type Context struct {
	Caps     Capabilities
	Env      map[string]string
	Budget   Budget
	Output   []string // buffered print() output
	Events   []Event
	Profile  map[string]int64 // counter name -> count, surfaced via prometheus in SPEC_FULL.md's domain stack
	Imports  map[uint64]pyval.Value // module-path hash -> cached module namespace
	Modules  map[string]pyval.Value // custom host-registered modules, by name
	Handles  map[int]*pyval.File    // open file handle table, keyed by handle id
	nextFID  int
	Routes   []Route
	Deferred bool // true if evaluation is running in generator-deferred mode (spec.md §4.6)

	// Yield is set while evaluation is running inside a generator
	// function's own goroutine (see src/pygen); a Yield expression calls
	// it directly instead of producing a signal Outcome that would have
	// to bubble all the way back out through every statement evaluator.
	// nc := *c in clone() copies this field like any other, so it
	// survives every WithXxx call made during the generator body's run.
	Yield func(pyval.Value) pyval.Value
}

// WithYield returns a Context whose Yield hook is fn; used once, when a
// generator function body starts running on its own goroutine.
func (c *Context) WithYield(fn func(pyval.Value) pyval.Value) *Context {
	nc := c.clone()
	nc.Yield = fn
	return nc
}

// WithDeferred returns a Context with Deferred set, marking it as running
// inside a generator body on its own goroutine (spec.md §4.7's deferred
// operating mode, as opposed to the eager mode elemsOf/iterableElems
// materialise through).
func (c *Context) WithDeferred(v bool) *Context {
	nc := c.clone()
	nc.Deferred = v
	return nc
}

// New returns a fresh Context with the given capabilities and a wall
// clock budget. Zero quota means unlimited.
func New(caps Capabilities, env map[string]string, quota time.Duration) *Context {
	return &Context{
		Caps:    caps,
		Env:     env,
		Budget:  Budget{Quota: quota},
		Profile: map[string]int64{},
		Imports: map[uint64]pyval.Value{},
		Modules: map[string]pyval.Value{},
		Handles: map[int]*pyval.File{},
	}
}

func (c *Context) clone() *Context {
	nc := *c
	nc.Output = append([]string(nil), c.Output...)
	nc.Events = append([]Event(nil), c.Events...)
	nc.Profile = cloneCounters(c.Profile)
	nc.Imports = cloneImports(c.Imports)
	nc.Modules = cloneModules(c.Modules)
	nc.Handles = cloneHandles(c.Handles)
	nc.Routes = append([]Route(nil), c.Routes...)
	return &nc
}

func cloneCounters(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneImports(m map[uint64]pyval.Value) map[uint64]pyval.Value {
	out := make(map[uint64]pyval.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneModules(m map[string]pyval.Value) map[string]pyval.Value {
	out := make(map[string]pyval.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneHandles(m map[int]*pyval.File) map[int]*pyval.File {
	out := make(map[int]*pyval.File, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithOutput returns a Context with s appended to the buffered print()
// output stream.
func (c *Context) WithOutput(s string) *Context {
	nc := c.clone()
	nc.Output = append(nc.Output, s)
	return nc
}

// WithEvent returns a Context with ev appended to the event log.
func (c *Context) WithEvent(ev Event) *Context {
	nc := c.clone()
	nc.Events = append(nc.Events, ev)
	return nc
}

// WithSpend returns a Context with d added to the accumulated budget
// spend; callers check Budget.Exhausted() after calling this to decide
// whether to raise a TimeoutError.
func (c *Context) WithSpend(d time.Duration) *Context {
	nc := c.clone()
	nc.Budget.Spent += d
	return nc
}

// WithCounter returns a Context with name's profile counter incremented
// by delta (spec.md's profiling-counter component; ExportProfile
// publishes the counters to Prometheus gauges when a host calls it).
func (c *Context) WithCounter(name string, delta int64) *Context {
	nc := c.clone()
	nc.Profile[name] += delta
	return nc
}

// ImportKey hashes a module path into the cache key space used by
// Imports, via the same xxhash algorithm pyval.Dict uses for its key
// buckets, keeping hashing strategy consistent across the module.
func ImportKey(path string) uint64 {
	return xxhash.Sum64String(path)
}

// WithImport returns a Context whose import cache has modPath's
// namespace recorded, so a second "import modPath" in the same run
// reuses the cached module object instead of re-executing it (spec.md
// §5: "imports are cached for the lifetime of a single Run").
func (c *Context) WithImport(modPath string, ns pyval.Value) *Context {
	nc := c.clone()
	nc.Imports[ImportKey(modPath)] = ns
	return nc
}

// Imported returns a previously cached import's namespace, if any.
func (c *Context) Imported(modPath string) (pyval.Value, bool) {
	v, ok := c.Imports[ImportKey(modPath)]
	return v, ok
}

// WithHandle returns a Context with f registered as a new open file
// handle, and the handle id assigned to it.
func (c *Context) WithHandle(f *pyval.File) (*Context, int) {
	nc := c.clone()
	id := nc.nextFID
	nc.nextFID++
	nc.Handles[id] = f
	return nc, id
}

// WithClosedHandle returns a Context with handle id marked closed.
func (c *Context) WithClosedHandle(id int) *Context {
	nc := c.clone()
	if f, ok := nc.Handles[id]; ok {
		cp := *f
		cp.Closed = true
		nc.Handles[id] = &cp
	}
	return nc
}

// WithRoute returns a Context with r appended to the route table,
// produced when a running program executes a route-registration
// directive (spec.md §7).
func (c *Context) WithRoute(r Route) *Context {
	nc := c.clone()
	nc.Routes = append(nc.Routes, r)
	return nc
}

// HTTPClient returns the capability-gated HTTP client network builtins use,
// sized to whatever budget the Context has left so a slow upstream request
// can't outlive the run's own wall-clock quota.
func (c *Context) HTTPClient() *http.Client {
	return HTTPClient(c.Budget.Remaining())
}

// capabilityModules are importable regardless of Options.Modules: each one
// is already gated by its own capability flag at call time (ModulePermitted
// would otherwise duplicate that gate at import time, and a host that never
// set the flag still gets the correct OSError/ConnectionError instead of an
// ImportError that reveals nothing about why).
var capabilityModules = map[string]bool{"web": true, "io": true, "net": true}

// ModulePermitted reports whether name is in the permitted-module
// capability set; an empty set means no stdlib modules are permitted at
// all, per spec.md §6.1's default-deny posture. Two kinds of module
// bypass the allowlist: a host-registered custom module (the host
// already opted in by registering it, so a second allowlist entry would
// be redundant) and the capability-gated modules in capabilityModules.
func (c *Context) ModulePermitted(name string) bool {
	if _, ok := c.Modules[name]; ok {
		return true
	}
	if capabilityModules[name] {
		return true
	}
	return c.Caps.Modules[name]
}
