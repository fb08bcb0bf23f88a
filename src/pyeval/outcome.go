// Package pyeval implements the Evaluator (spec.md §4.6): the tree-walker
// that turns a pyast.Node plus an Environment and Context into an
// Outcome. Every statement and expression evaluation function returns an
// explicit Outcome value rather than using Go panic/recover for Python-
// level control flow (break/continue/return/exception/yield), which is
// the one place this module deliberately departs from the teacher's own
// idiom: please/src/parse/asp's interpreter.go uses panic + sentinel
// pyObject values (continueIteration, a breakException type) to unwind
// loops and calls. spec.md §4.6/§9 requires these to be ordinary
// returned values instead, so the tagged Outcome union below is the
// mechanism; pyerr's panic/recover idiom stays confined to pylex/pyparse,
// never leaking into this package.
package pyeval

import "github.com/sandboxed-py/interp/src/pyval"

// OutcomeKind tags which case of Outcome is populated.
type OutcomeKind int

const (
	OValue OutcomeKind = iota
	OReturned
	OBreak
	OContinue
	OException
	OYielded
	OSuspended
	OIOCall
)

// Outcome is the tagged union every eval step returns, per spec.md §4.6's
// {value | returned(v) | break | continue | exception(msg) |
// yielded(v, frames) | suspended | io_call(f)}.
type Outcome struct {
	Kind      OutcomeKind
	Value     pyval.Value
	ExcType   string // set on OException: the Python exception class name
	ExcMsg    string
	ExcLine   int
	Yielded   pyval.Value
	Frames    []Frame // continuation frames for OYielded/OSuspended, innermost first
	IOCall    *IORequest
}

// Frame is one continuation record in the generator frame stack (spec.md
// §4.6/pygen): resuming peels the head frame and re-enters it with the
// resumed value bound.
type Frame struct {
	Resume func(sent pyval.Value) Outcome
}

// IORequest is the payload of an OIOCall outcome: a deferred host-side
// operation the evaluator cannot itself perform (spec.md §5/§7 "io_call"
// effect marker), to be satisfied by the host and resumed via pygen.
type IORequest struct {
	Op   string
	Args []pyval.Value
}

// Val wraps a plain value result.
func Val(v pyval.Value) Outcome { return Outcome{Kind: OValue, Value: v} }

// Returned wraps a function "return" result.
func Returned(v pyval.Value) Outcome { return Outcome{Kind: OReturned, Value: v} }

// Brk is the loop "break" signal.
func Brk() Outcome { return Outcome{Kind: OBreak} }

// Cont is the loop "continue" signal.
func Cont() Outcome { return Outcome{Kind: OContinue} }

// Exc constructs an exception outcome carrying the raising class name,
// message, and source line.
func Exc(excType, msg string, line int) Outcome {
	return Outcome{Kind: OException, ExcType: excType, ExcMsg: msg, ExcLine: line}
}

// IsSignal reports whether o is a non-value control signal that a
// statement-sequence loop must propagate upward without continuing to
// the next statement.
func (o Outcome) IsSignal() bool {
	return o.Kind != OValue
}
