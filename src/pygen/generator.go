// Package pygen implements the generator engine (spec.md §4.6): running a
// generator function body to the point of its next yield, then suspending
// it until the caller asks for more.
//
// please's own interpreter has no equivalent (BUILD-language functions
// never yield), so this is new code rather than an adaptation. A
// tree-walking evaluator has no native call-stack state it can snapshot
// and resume, so pygen uses the standard Go idiom for implementing a
// generator on top of a tree-walker: run the function body in its own
// goroutine, and have each "yield" block on an unbuffered channel send
// until the consumer asks for the next value. This gives spec.md's
// suspend/resume semantics (including the infinite-generator-with-early-
// break scenario) without needing an explicit continuation-frame data
// structure: the goroutine's own stack *is* the continuation, the channel
// pair is the resume() primitive.
package pygen

import "github.com/sandboxed-py/interp/src/pyval"

// Yielder is handed to a generator function body; each call to Yield
// blocks the body's goroutine until the consumer resumes it, and returns
// whatever value the consumer sent in (spec.md's "yield expression
// evaluates to the value passed to send()", None for plain next()).
type Yielder struct {
	out chan<- pyval.Value
	in  <-chan pyval.Value
}

// Yield suspends the generator body, publishing v to the consumer, and
// returns the value the consumer resumes it with.
func (y Yielder) Yield(v pyval.Value) pyval.Value {
	y.out <- v
	return <-y.in
}

// Generator is a running (or exhausted) generator instance.
type Generator struct {
	out      chan pyval.Value
	in       chan pyval.Value
	started  bool
	finished bool
	ret      pyval.Value
}

// NewGenerator spawns fn on its own goroutine and returns a handle that
// can be driven with Next. fn's return value becomes the generator's
// final (StopIteration) value, surfaced via Return after Next reports
// exhaustion.
func NewGenerator(fn func(y Yielder) pyval.Value) *Generator {
	g := &Generator{out: make(chan pyval.Value), in: make(chan pyval.Value)}
	go func() {
		rv := fn(Yielder{out: g.out, in: g.in})
		g.ret = rv
		close(g.out)
	}()
	return g
}

// Next resumes the generator with sent (ignored on the very first call,
// since nothing has yielded yet to receive it) and returns the next
// yielded value, or ok=false once the body has returned.
func (g *Generator) Next(sent pyval.Value) (pyval.Value, bool) {
	if g.finished {
		return pyval.Value{}, false
	}
	if g.started {
		g.in <- sent
	}
	g.started = true
	v, ok := <-g.out
	if !ok {
		g.finished = true
		return pyval.Value{}, false
	}
	return v, true
}

// Finished reports whether the generator has been exhausted.
func (g *Generator) Finished() bool { return g.finished }

// Return is the value fn returned; only meaningful once Finished is true.
func (g *Generator) Return() pyval.Value { return g.ret }
