// Package pyerr implements the interpreter's structured error value and the
// classifier that derives it from a raw Python-style runtime message.
//
// Internally the lexer and parser use panic/recover to unwind on the first
// syntax error (ported from please/src/parse/asp's fail/AddStackFrame
// pattern); that is a Go implementation detail and is always recovered at
// the single Compile entry point, so it never crosses the package boundary.
// The evaluator itself never panics for Python control flow: runtime
// exceptions travel as ordinary exception(msg) outcome values (see
// src/pyeval), because panics would unwind through, and corrupt, suspended
// generator continuations.
package pyerr

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an Error for the benefit of the host application.
type Kind string

// The fixed set of error kinds a host may dispatch on.
const (
	KindSyntax         Kind = "syntax"
	KindPythonRuntime  Kind = "python-runtime"
	KindTimeout        Kind = "timeout"
	KindImport         Kind = "import"
	KindIO             Kind = "io"
	KindRouteNotFound  Kind = "route-not-found"
	KindInternal       Kind = "internal"
)

// Error is the structured error value returned by every host entry point.
// User code only ever observes Message; Kind and Line exist for hosts.
type Error struct {
	Kind    Kind
	Message string
	Line    int
	// ExceptionType is the Python exception class name, e.g. "TypeError"
	// or "OSError", taken by Classify from the message prefix whatever the
	// Kind. Empty for errors built with New.
	ExceptionType string
}

// Error implements the builtin error interface.
func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

// prefixKinds maps a message prefix (the Python exception class name) to the
// structured Kind. Order doesn't matter; lookup is by exact class name.
var prefixKinds = map[string]Kind{
	"SyntaxError":       KindSyntax,
	"IndentationError":  KindSyntax,
	"TimeoutError":      KindTimeout,
	"ImportError":       KindImport,
	"ModuleNotFoundError": KindImport,
	"FileNotFoundError": KindIO,
	"PermissionError":   KindIO,
	"IOError":           KindIO,
	"OSError":           KindIO,
	"ConnectionError":   KindIO,
}

// Classify turns a raw runtime message of the form "ExceptionType: detail"
// (optionally suffixed "... on line N") into a structured Error. Any message
// that doesn't match a known prefix is treated as a generic python-runtime
// error; internal invariant violations are classified explicitly by callers
// via New rather than by string sniffing.
func Classify(raw string) *Error {
	msg, line := extractLine(raw)
	excType := ""
	if idx := strings.Index(msg, ":"); idx > 0 && isIdentifierIsh(msg[:idx]) {
		excType = msg[:idx]
	}
	kind, ok := prefixKinds[excType]
	if !ok {
		kind = KindPythonRuntime
	}
	return &Error{Kind: kind, Message: msg, Line: line, ExceptionType: excType}
}

// New constructs an Error of an explicit kind, bypassing prefix classification.
// Used for timeout, internal, and route-not-found errors that aren't spelled
// as "ExceptionType: ..." strings.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithLine returns a copy of e with Line set, used once the evaluator knows
// which node the exception unwound through.
func (e *Error) WithLine(line int) *Error {
	if e.Line != 0 {
		return e
	}
	cp := *e
	cp.Line = line
	return &cp
}

// extractLine strips an optional "on line N" suffix, as produced by the
// evaluator when it annotates a propagating exception with its source
// position, and returns the bare message plus the parsed line (0 if absent).
func extractLine(raw string) (string, int) {
	const marker = " on line "
	idx := strings.LastIndex(raw, marker)
	if idx < 0 {
		return raw, 0
	}
	lineStr := raw[idx+len(marker):]
	n, err := strconv.Atoi(strings.TrimRight(lineStr, ". "))
	if err != nil {
		return raw, 0
	}
	return raw[:idx], n
}

func isIdentifierIsh(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}
