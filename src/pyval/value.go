// Package pyval defines the dynamically-typed Value union (spec.md §3.3)
// that every other interpreter package operates on, plus the arithmetic,
// comparison, subscript, and iteration operators it supports (spec.md
// §4.5). It is grounded on please/src/parse/asp's pyObject interface
// (pyInt/pyFloat/pyString/pyList/pyDict/pyBool/pyFunc all implementing one
// small interface), generalised to the fuller composite/callable/class
// taxonomy spec.md names and to an insertion-ordered, arbitrary-key dict,
// which please's map[string]pyObject dict cannot represent.
package pyval

import (
	"math"
	"math/big"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindStr
	KindNone
	KindList
	KindDict
	KindSet
	KindTuple
	KindRange
	KindFunc
	KindLambda
	KindBoundMethod
	KindBuiltin
	KindClass
	KindInstance
	KindGenerator
	KindFile
	KindSlice
	KindEffect // non-user-visible effect marker (io-call, route directive, ...)
)

func (k Kind) String() string {
	names := [...]string{
		"int", "float", "bool", "str", "NoneType", "list", "dict", "set",
		"tuple", "range", "function", "function", "method", "builtin_function_or_method",
		"type", "instance", "generator", "file", "slice", "effect",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Value is the single dynamically-typed value representation threaded
// through lexer-free stages: parser output (pyast) is statically typed,
// but evaluation, environments and contexts all traffic in Value.
//
// Composite/callable payloads are carried in the Obj field as the
// corresponding concrete *List/*Dict/*Set/*Tuple/*Range/*Func/... pointer;
// Int/Flt/Bool/Str hold primitives directly to avoid an allocation per
// number, mirroring please's pyInt/pyFloat being distinct concrete types
// rather than boxed interface values.
type Value struct {
	Kind Kind
	Int  *big.Int // KindInt: arbitrary precision, per spec.md §3.3
	Flt  float64  // KindFloat
	Bl   bool     // KindBool
	Str  string   // KindStr
	Obj  interface{}
}

// None is the singleton none value.
var None = Value{Kind: KindNone}

// True and False are the singleton bool values.
var True = Value{Kind: KindBool, Bl: true}
var False = Value{Kind: KindBool, Bl: false}

// Bool constructs a KindBool value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Int constructs a KindInt value from an int64.
func Int(n int64) Value {
	return Value{Kind: KindInt, Int: big.NewInt(n)}
}

// BigInt constructs a KindInt value from a *big.Int, taking ownership.
func BigInt(n *big.Int) Value {
	return Value{Kind: KindInt, Int: n}
}

// Float constructs a KindFloat value.
func Float(f float64) Value {
	return Value{Kind: KindFloat, Flt: f}
}

// Str constructs a KindStr value.
func Str(s string) Value {
	return Value{Kind: KindStr, Str: s}
}

// IsTruthy implements Python truthiness (spec.md §4.5): 0/0.0/""/empty
// containers/None/False are falsy, everything else truthy.
func IsTruthy(v Value) bool {
	switch v.Kind {
	case KindNone:
		return false
	case KindBool:
		return v.Bl
	case KindInt:
		return v.Int.Sign() != 0
	case KindFloat:
		return v.Flt != 0
	case KindStr:
		return len(v.Str) != 0
	case KindList:
		return len(v.Obj.(*List).Elems) != 0
	case KindTuple:
		return len(v.Obj.(*Tuple).Elems) != 0
	case KindDict:
		return v.Obj.(*Dict).Len() != 0
	case KindSet:
		return v.Obj.(*Set).Len() != 0
	default:
		return true
	}
}

// TypeName returns the Python-visible type name of v, following instances
// to their class name.
func TypeName(v Value) string {
	if v.Kind == KindInstance {
		return v.Obj.(*Instance).Class.Name
	}
	if v.Kind == KindClass {
		return v.Obj.(*Class).Name
	}
	return v.Kind.String()
}

// List is the mutable ordered-list composite.
type List struct {
	Elems []Value
}

// Tuple is the immutable ordered composite.
type Tuple struct {
	Elems []Value
}

// Slice carries evaluated start/stop/step bounds for a subscript slice
// expression ("obj[a:b:c]"); each bound is None when absent from source.
type Slice struct {
	Start, Stop, Step Value
}

// Range is a lazily-iterated integer range descriptor.
type Range struct {
	Start, Stop, Step int64
}

// Len reports the number of elements Range would yield.
func (r Range) Len() int64 {
	if r.Step > 0 {
		if r.Stop <= r.Start {
			return 0
		}
		return (r.Stop-r.Start+r.Step-1)/r.Step
	}
	if r.Step < 0 {
		if r.Stop >= r.Start {
			return 0
		}
		return (r.Start-r.Stop-r.Step-1)/(-r.Step)
	}
	return 0
}

// At returns the i'th element of the range.
func (r Range) At(i int64) int64 { return r.Start + i*r.Step }

// Func is a user-defined function or method carrying a closure snapshot
// taken at definition time (spec.md §4.6: "closures capture the defining
// environment by value at definition time, not by reference").
type Func struct {
	Name        string
	Params      []Param
	Body        interface{} // []pyast.Node, kept as interface{} to avoid an import cycle with pyast
	Closure     interface{} // *pyenv.Env snapshot
	IsGenerator bool
	Decorators  []Value
}

// Param mirrors pyast.Param without importing pyast (kept import-cycle-free;
// pyeval is responsible for translating one to the other once). Annotation
// carries the parameter's type-annotation name, if any ("body: UserModel"
// yields "UserModel"), so a request dispatcher can look the name up against
// a registered model value and validate a parsed body's shape against it.
type Param struct {
	Name         string
	Default      *Value
	Annotation   string
	IsStar       bool
	IsDoubleStar bool
}

// BoundMethod pairs a Func with the instance it was looked up on.
type BoundMethod struct {
	Receiver Value
	Fn       *Func
}

// Builtin is a host-implemented callable (len, range, print, str methods,
// etc.), identified by name and dispatched through a registry in pyeval.
type Builtin struct {
	Name string
	Call func(args []Value, kwargs map[string]Value) (Value, error)
}

// Class describes a user-defined class: its own method table plus an MRO
// computed depth-first, left-to-right over Bases (spec.md §4.6).
type Class struct {
	Name    string
	Bases   []*Class
	MRO     []*Class
	Attrs   *Dict // class-level attributes and methods, keyed by name
}

// Resolve looks up name along the class's MRO, returning the first hit.
func (c *Class) Resolve(name string) (Value, bool) {
	for _, k := range c.MRO {
		if v, ok := k.Attrs.GetStr(name); ok {
			return v, true
		}
	}
	return Value{}, false
}

// Instance is an object of a user-defined Class; its own attributes shadow
// class attributes looked up via Class.MRO.
type Instance struct {
	Class *Class
	Attrs *Dict
}

// GetAttr resolves name on an instance: own attributes first, then the
// class MRO (spec.md §4.6).
func (i *Instance) GetAttr(name string) (Value, bool) {
	if v, ok := i.Attrs.GetStr(name); ok {
		return v, true
	}
	return i.Class.Resolve(name)
}

// File is an open file handle, tracked in the Context's open-handle table
// (spec.md §5) so it can be force-closed at run end.
type File struct {
	Name     string
	Mode     string
	Contents []byte
	Pos      int
	Closed   bool
}

// floatEqInt reports whether a float and big.Int are numerically equal,
// used both by comparison operators and by Dict's cross-numeric key
// equality (spec.md's Open Question on dict key equality, resolved in
// DESIGN.md: 1 == 1.0 == True all hash and compare equal as dict keys).
func floatEqInt(f float64, i *big.Int) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if f != math.Trunc(f) {
		return false
	}
	bf := new(big.Float).SetFloat64(f)
	bi := new(big.Float).SetInt(i)
	return bf.Cmp(bi) == 0
}
