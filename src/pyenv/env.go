// Package pyenv implements the Environment component (spec.md §4.2): a
// chain of lexical scopes supporting lookup, binding, declare-global and
// declare-nonlocal rebinding, and closure capture by snapshot.
//
// Grounded on please/src/parse/asp's scope struct (interpreter.go): a
// locals map plus a parent pointer, with lookup walking the parent chain.
// The teacher's scope is far heavier (carries a *core.BuildState, a
// *core.Package, a globber, parse-mode flags, all irrelevant here); pyenv
// keeps only the lexical-scoping shape and adds what spec.md requires
// that the teacher's scope does not: an explicit "is this a function
// scope" boundary so global/nonlocal resolution can find the right
// target, and Snapshot/Clone for closure-capture-by-value semantics.
package pyenv

import "github.com/sandboxed-py/interp/src/pyval"

// Env is one lexical scope. The module-level Env has Parent == nil and
// IsFunc == true (global and local coincide at module scope).
type Env struct {
	parent   *Env
	locals   map[string]pyval.Value
	globals  map[string]bool // names declared "global" in this function scope
	nonlocal map[string]bool // names declared "nonlocal" in this function scope
	isFunc   bool            // function/lambda/comprehension scope boundary
	module   *Env            // the enclosing module scope, for "global" resolution
}

// NewModule returns a fresh top-level module environment.
func NewModule() *Env {
	e := &Env{locals: map[string]pyval.Value{}, isFunc: true}
	e.module = e
	return e
}

// NewFunctionScope returns a child scope for a function/lambda call,
// closing over parent as its lexical enclosing scope.
func NewFunctionScope(parent *Env) *Env {
	return &Env{
		parent:   parent,
		locals:   map[string]pyval.Value{},
		globals:  map[string]bool{},
		nonlocal: map[string]bool{},
		isFunc:   true,
		module:   parent.module,
	}
}

// NewBlockScope returns a child scope for a non-function block that still
// needs its own bindings (comprehension bodies, class bodies); it is not a
// global/nonlocal resolution boundary.
func NewBlockScope(parent *Env) *Env {
	return &Env{
		parent: parent,
		locals: map[string]pyval.Value{},
		isFunc: false,
		module: parent.module,
	}
}

// DeclareGlobal records that name in this function scope refers to the
// module scope, per spec.md §4.2 ("global rebinds in the module scope").
func (e *Env) DeclareGlobal(name string) {
	e.globals[name] = true
}

// DeclareNonlocal records that name in this function scope refers to the
// nearest enclosing function scope's binding, per spec.md §4.2.
func (e *Env) DeclareNonlocal(name string) {
	e.nonlocal[name] = true
}

// Lookup resolves name by walking the scope chain outward, returning
// (value, true) on the first hit.
func (e *Env) Lookup(name string) (pyval.Value, bool) {
	if e.globals != nil && e.globals[name] {
		return e.module.Lookup(name)
	}
	if e.nonlocal != nil && e.nonlocal[name] {
		if e.parent != nil {
			return e.parent.lookupSkippingModule(name)
		}
	}
	for s := e; s != nil; s = s.parent {
		if v, ok := s.locals[name]; ok {
			return v, true
		}
	}
	return pyval.Value{}, false
}

// lookupSkippingModule resolves a nonlocal target: it must bind to an
// enclosing *function* scope, never falling through to module scope
// (a bare "nonlocal" at function-adjacent-to-module level is a compile
// error in real Python; here it simply fails lookup, which pyeval turns
// into a runtime NameError rather than a separate static check).
func (e *Env) lookupSkippingModule(name string) (pyval.Value, bool) {
	for s := e; s != nil && s != s.module; s = s.parent {
		if v, ok := s.locals[name]; ok {
			return v, true
		}
	}
	return pyval.Value{}, false
}

// Bind creates or updates name in the correct target scope, honouring any
// global/nonlocal declaration made in this function scope.
func (e *Env) Bind(name string, v pyval.Value) {
	if e.globals != nil && e.globals[name] {
		e.module.locals[name] = v
		return
	}
	if e.nonlocal != nil && e.nonlocal[name] {
		if target := e.findNonlocalTarget(name); target != nil {
			target.locals[name] = v
			return
		}
	}
	e.locals[name] = v
}

func (e *Env) findNonlocalTarget(name string) *Env {
	for s := e.parent; s != nil && s != s.module; s = s.parent {
		if _, ok := s.locals[name]; ok {
			return s
		}
	}
	return nil
}

// Delete removes name from the scope it is actually bound in (spec.md
// §3.2's "del" statement).
func (e *Env) Delete(name string) bool {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.locals[name]; ok {
			delete(s.locals, name)
			return true
		}
	}
	return false
}

// Has reports whether name resolves anywhere in the chain, without
// fetching its value.
func (e *Env) Has(name string) bool {
	_, ok := e.Lookup(name)
	return ok
}

// Snapshot returns an immutable copy of the scope chain suitable for
// capturing as a closure at function-definition time (spec.md §4.6:
// "closures capture the defining environment by value at definition
// time, not by reference" — so later rebinding of an outer variable in
// the defining scope must not be visible inside the closure).
func (e *Env) Snapshot() *Env {
	cp := &Env{
		locals: make(map[string]pyval.Value, len(e.locals)),
		isFunc: e.isFunc,
	}
	for k, v := range e.locals {
		cp.locals[k] = v
	}
	if e.globals != nil {
		cp.globals = make(map[string]bool, len(e.globals))
		for k := range e.globals {
			cp.globals[k] = true
		}
	}
	if e.nonlocal != nil {
		cp.nonlocal = make(map[string]bool, len(e.nonlocal))
		for k := range e.nonlocal {
			cp.nonlocal[k] = true
		}
	}
	if e.parent != nil {
		cp.parent = e.parent.Snapshot()
		cp.module = cp.parent.module
	} else {
		cp.module = cp
	}
	return cp
}

// OwnLocals returns the names bound directly in this scope, not walking
// to parents; used to turn a class body's own scope into its attribute
// table (spec.md §4.6), since a class's own assignments/defs must not
// pick up names merely visible from its enclosing scope.
func (e *Env) OwnLocals() map[string]pyval.Value {
	return e.locals
}

// Names returns every name currently visible from this scope, nearest
// scope first, used to build "did you mean" candidate lists.
func (e *Env) Names() []string {
	seen := map[string]bool{}
	var out []string
	for s := e; s != nil; s = s.parent {
		for k := range s.locals {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
