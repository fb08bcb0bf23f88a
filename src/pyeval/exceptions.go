package pyeval

import (
	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyenv"
	"github.com/sandboxed-py/interp/src/pyval"
)

// builtinExcChain lists each builtin exception's ancestry, nearest first,
// ending in "Exception"/"BaseException" (spec.md §4.6's builtin exception
// taxonomy). User-defined exception classes carry their own MRO instead;
// see exceptionAncestors.
var builtinExcChain = map[string][]string{
	"TypeError":          {"TypeError"},
	"ValueError":         {"ValueError"},
	"NameError":          {"NameError"},
	"AttributeError":     {"AttributeError"},
	"ZeroDivisionError":  {"ZeroDivisionError", "ArithmeticError"},
	"KeyError":           {"KeyError", "LookupError"},
	"IndexError":         {"IndexError", "LookupError"},
	"StopIteration":      {"StopIteration"},
	"RuntimeError":       {"RuntimeError"},
	"AssertionError":     {"AssertionError"},
	"TimeoutError":       {"TimeoutError", "OSError"},
	"SyntaxError":        {"SyntaxError"},
	"NotImplementedError": {"NotImplementedError", "RuntimeError"},
	"ImportError":        {"ImportError"},
	"OSError":            {"OSError"},
	"PermissionError":    {"PermissionError", "OSError"},
}

// exceptionAncestors returns the chain of type names an in-flight
// exception Outcome matches against, nearest first, ending in the
// universal "Exception"/"BaseException" pair every except clause without
// an explicit class (or "except Exception") also catches.
func exceptionAncestors(o Outcome) []string {
	if o.Value.Kind == pyval.KindInstance {
		inst := o.Value.Obj.(*pyval.Instance)
		names := make([]string, 0, len(inst.Class.MRO)+2)
		for _, c := range inst.Class.MRO {
			names = append(names, c.Name)
		}
		return append(names, "Exception", "BaseException")
	}
	if chain, ok := builtinExcChain[o.ExcType]; ok {
		return append(append([]string{}, chain...), "Exception", "BaseException")
	}
	return []string{o.ExcType, "Exception", "BaseException"}
}

func exceptionMatches(o Outcome, classes []string) bool {
	if len(classes) == 0 {
		return true
	}
	for _, want := range classes {
		for _, have := range exceptionAncestors(o) {
			if want == have {
				return true
			}
		}
	}
	return false
}

// exceptionValue returns the Value an "except ... as name" clause binds:
// the raised instance itself when the program raised a class instance,
// or a synthetic instance of a lazily-built builtin exception class
// wrapping the message otherwise, so "except ValueError as e: str(e)"
// always has something sensible to stringify.
func exceptionValue(o Outcome) pyval.Value {
	if o.Value.Kind == pyval.KindInstance {
		return o.Value
	}
	cls := builtinExcClass(o.ExcType)
	inst := &pyval.Instance{Class: cls, Attrs: pyval.NewDict()}
	inst.Attrs.SetStr("args", pyval.Str(o.ExcMsg))
	inst.Attrs.SetStr("message", pyval.Str(o.ExcMsg))
	return pyval.Value{Kind: pyval.KindInstance, Obj: inst}
}

var builtinExcClasses = map[string]*pyval.Class{}

func builtinExcClass(name string) *pyval.Class {
	if c, ok := builtinExcClasses[name]; ok {
		return c
	}
	c := &pyval.Class{Name: name, Attrs: pyval.NewDict()}
	c.MRO = []*pyval.Class{c}
	builtinExcClasses[name] = c
	return c
}

func evalTry(s *pyast.Try, env *pyenv.Env, ctx *pyctx.Context) (Outcome, *pyctx.Context) {
	bo, nctx := evalStmts(s.Body, pyenv.NewBlockScope(env), ctx)
	ctx = nctx
	if bo.Kind == OException {
		for _, h := range s.Handlers {
			if !exceptionMatches(bo, h.Classes) {
				continue
			}
			handlerEnv := pyenv.NewBlockScope(env)
			excVal := exceptionValue(bo)
			if h.As != "" {
				handlerEnv.Bind(h.As, excVal)
			}
			handlerEnv.Bind("__active_exception__", excVal)
			ho, nctx2 := evalStmts(h.Body, handlerEnv, ctx)
			return runFinally(s.Finally, env, nctx2, ho)
		}
		return runFinally(s.Finally, env, ctx, bo)
	}
	if bo.IsSignal() && bo.Kind != OValue {
		return runFinally(s.Finally, env, ctx, bo)
	}
	eo, nctx2 := evalStmts(s.Else, pyenv.NewBlockScope(env), ctx)
	return runFinally(s.Finally, env, nctx2, eo)
}

// runFinally always runs finallyBody; if it itself produces a signal
// (return/break/raise), that signal takes precedence over whatever the
// try/except/else block was about to propagate, matching CPython's
// "finally swallows" semantics.
func runFinally(finallyBody []pyast.Node, env *pyenv.Env, ctx *pyctx.Context, pending Outcome) (Outcome, *pyctx.Context) {
	if len(finallyBody) == 0 {
		return pending, ctx
	}
	fo, nctx := evalStmts(finallyBody, pyenv.NewBlockScope(env), ctx)
	ctx = nctx
	if fo.IsSignal() && fo.Kind != OValue {
		return fo, ctx
	}
	return pending, ctx
}
