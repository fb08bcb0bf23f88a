// Package pysandbox is the public host API (spec.md §6.1): compile a
// source string into an AST, run it under a capability-scoped Context,
// resume it later from a snapshot, and dispatch HTTP-shaped requests
// into a program that has registered routes through the "web" module.
//
// Grounded on please/src/please.go's role as the single front door onto
// the rest of the codebase's packages (parse -> build -> test), adapted
// to a library's entry points rather than a CLI's subcommands.
package pysandbox

import (
	"fmt"
	"time"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pybuiltin"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pyerr"
	"github.com/sandboxed-py/interp/src/pyeval"
	"github.com/sandboxed-py/interp/src/pyparse"
	"github.com/sandboxed-py/interp/src/pysnap"
	"github.com/sandboxed-py/interp/src/pyval"
	"github.com/sandboxed-py/interp/src/pyweb"
)

// Options configures a Run/Resume call (spec.md §6.1): pyctx.Options
// already covers filesystem/env/timeout/network/sql/object_storage/
// profile and the permitted-module allowlist; CustomModules is the one
// piece it can't express (a *value*, not a name) — the host-supplied
// module-name -> attribute-mapping override/extension spec.md §6.1 calls
// "modules".
type Options struct {
	pyctx.Options
	CustomModules map[string]pyval.Value
}

func (o Options) newContext() (*pyctx.Context, error) {
	ctx, err := o.Options.Build()
	if err != nil {
		return nil, err
	}
	for name, v := range o.CustomModules {
		ctx.Modules[name] = v
	}
	return ctx, nil
}

// Result is what Run/Resume/Handle return: the top-level expression
// value (if the program ended on one, per spec.md §8's "2 + 3" -> 5
// example), the resulting Context a host may inspect or snapshot, and
// whether evaluation is suspended mid-program.
type Result struct {
	Value     pyval.Value
	Context   *pyctx.Context
	Suspended bool
}

// Compile parses source into an AST, per spec.md §6.1's compile(source).
func Compile(source string) (*pyast.Module, *pyerr.Error) {
	return pyparse.Parse(source)
}

// Run compiles and evaluates source under a fresh Context built from
// opts, per spec.md §6.1's run(source-or-ast, context-or-options).
func Run(source string, opts Options) (Result, *pyerr.Error) {
	mod, err := Compile(source)
	if err != nil {
		return Result{}, err
	}
	return RunAST(mod, opts)
}

// RunAST evaluates an already-compiled module, the "-or-ast" half of
// spec.md §6.1's run entry point.
func RunAST(mod *pyast.Module, opts Options) (Result, *pyerr.Error) {
	env := pyenv.NewModule()
	for name, v := range pybuiltin.Globals() {
		env.Bind(name, v)
	}
	ctx, cerr := opts.newContext()
	if cerr != nil {
		return Result{}, pyerr.New(pyerr.KindInternal, "%s", cerr)
	}
	return runIn(mod, env, ctx)
}

func runIn(mod *pyast.Module, env *pyenv.Env, ctx *pyctx.Context) (Result, *pyerr.Error) {
	start := time.Now()
	o, nctx := pyeval.EvalModule(mod, env, ctx)
	ctx = nctx.WithSpend(time.Since(start))
	if ctx.Budget.Exhausted() {
		return Result{Context: ctx}, pyerr.New(pyerr.KindTimeout, "compute budget exhausted")
	}
	if o.Kind == pyeval.OException {
		e := pyerr.Classify(fmt.Sprintf("%s: %s", o.ExcType, o.ExcMsg))
		return Result{Context: ctx}, e.WithLine(o.ExcLine)
	}
	return Result{Value: o.Value, Context: ctx}, nil
}

// Resume continues a program from a previously taken Snapshot. Since a
// tree-walking evaluator has no externally resumable call stack for
// ordinary (non-generator) suspension, Resume restores the snapshot onto
// a fresh base Context and re-evaluates source from the top. The
// re-evaluation prints, records events and registers routes again, so
// Resume drops the snapshot's output, events and route table and keeps
// its profile counters and budget spend: a program whose top-level code
// is deterministic ends with the same output and value it had when
// snapshotted. Programs whose
// resumable behaviour depends on suspending mid-statement should use a
// generator (spec.md §4.6/§4.7), which resumes via pygen within a single
// Run, not via this entry point.
func Resume(source string, snap *pysnap.Snapshot, opts Options) (Result, *pyerr.Error) {
	mod, err := Compile(source)
	if err != nil {
		return Result{}, err
	}
	base, cerr := opts.newContext()
	if cerr != nil {
		return Result{}, pyerr.New(pyerr.KindInternal, "%s", cerr)
	}
	restored, rerr := pysnap.Restore(snap, base)
	if rerr != nil {
		return Result{}, pyerr.New(pyerr.KindInternal, "%s", rerr)
	}
	restored.Output, restored.Events, restored.Routes = nil, nil, nil
	env := pyenv.NewModule()
	for name, v := range pybuiltin.Globals() {
		env.Bind(name, v)
	}
	return runIn(mod, env, restored)
}

// Snapshot returns opaque, integrity-checked bytes capturing ctx's
// resumable state (spec.md §6.1's snapshot(context), supplemented with a
// digest per SPEC_FULL.md).
func Snapshot(ctx *pyctx.Context) (*pysnap.Snapshot, error) {
	return pysnap.Take(ctx)
}

// Events returns ctx's append-only event log (spec.md §6.1's events(context)).
func Events(ctx *pyctx.Context) []pyctx.Event { return ctx.Events }

// Output returns ctx's buffered print() output (spec.md §6.1's output(context)).
func Output(ctx *pyctx.Context) []string { return ctx.Output }

// Profile returns ctx's profile counters (spec.md §6.1's
// profile(context)). The evaluator increments no counter during a run,
// whatever Options.Profile says, so the map holds only counters that a
// restored snapshot carried in.
func Profile(ctx *pyctx.Context) map[string]int64 { return ctx.Profile }

// Deferred reports whether ctx was captured while running inside a
// generator body (spec.md §4.7's deferred operating mode).
func Deferred(ctx *pyctx.Context) bool { return ctx.Deferred }

// Handle dispatches a request against a compiled program's registered
// routes (spec.md §6.1's handle(request, boot-state)); "boot-state" is
// the Context the program's top-level code (including its route
// registrations) already ran under.
func Handle(req pyweb.Request, ctx *pyctx.Context) (*pyweb.Response, *pyctx.Context, *pyerr.Error) {
	result, nctx, o := pyeval.Dispatch(req, ctx)
	ctx = nctx
	if o.Kind == pyeval.OException {
		return nil, ctx, pyerr.Classify(fmt.Sprintf("%s: %s", o.ExcType, o.ExcMsg)).WithLine(o.ExcLine)
	}
	resp, ok := result.(*pyweb.Response)
	if !ok {
		return nil, ctx, pyerr.New(pyerr.KindInternal, "handler produced a streaming response; use HandleStream")
	}
	return resp, ctx, nil
}

// HandleStream is Handle's streaming counterpart (spec.md §6.1's
// handle_stream): the response body is a lazy chunk sequence pulled
// through the generator engine rather than materialized up front.
func HandleStream(req pyweb.Request, ctx *pyctx.Context) (*pyweb.StreamResponse, *pyctx.Context, *pyerr.Error) {
	result, nctx, o := pyeval.Dispatch(req, ctx)
	ctx = nctx
	if o.Kind == pyeval.OException {
		return nil, ctx, pyerr.Classify(fmt.Sprintf("%s: %s", o.ExcType, o.ExcMsg)).WithLine(o.ExcLine)
	}
	stream, ok := result.(*pyweb.StreamResponse)
	if !ok {
		return nil, ctx, pyerr.New(pyerr.KindInternal, "handler did not produce a streaming response; use Handle")
	}
	return stream, ctx, nil
}
