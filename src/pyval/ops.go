package pyval

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// OpError is returned by operator functions on a type mismatch; pyeval
// wraps it into a pyerr.Error with KindPythonRuntime ("TypeError: ...").
type OpError struct {
	Msg string
}

func (e *OpError) Error() string { return e.Msg }

func typeErr(format string, args ...interface{}) error {
	return &OpError{Msg: fmt.Sprintf(format, args...)}
}

// BinOp applies a binary arithmetic/bitwise/string operator, per spec.md
// §4.5's numeric-tower and sequence-repetition rules.
func BinOp(op string, l, r Value) (Value, error) {
	switch op {
	case "+":
		return add(l, r)
	case "-":
		return sub(l, r)
	case "*":
		return mul(l, r)
	case "/":
		return truediv(l, r)
	case "//":
		return floordiv(l, r)
	case "%":
		return mod(l, r)
	case "**":
		return pow(l, r)
	case "&", "|", "^", "<<", ">>":
		return bitwise(op, l, r)
	case "==":
		return Bool(Equal(l, r)), nil
	case "!=":
		return Bool(!Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		return compareOrdered(op, l, r)
	case "in":
		return contains(r, l)
	case "not in":
		v, err := contains(r, l)
		if err != nil {
			return Value{}, err
		}
		return Bool(!v.Bl), nil
	case "is":
		return Bool(isIdentical(l, r)), nil
	case "is not":
		return Bool(!isIdentical(l, r)), nil
	}
	return Value{}, typeErr("unsupported operator %q", op)
}

func add(l, r Value) (Value, error) {
	if l.Kind == KindStr && r.Kind == KindStr {
		return Str(l.Str + r.Str), nil
	}
	if l.Kind == KindList && r.Kind == KindList {
		ll, rl := l.Obj.(*List), r.Obj.(*List)
		out := make([]Value, 0, len(ll.Elems)+len(rl.Elems))
		out = append(out, ll.Elems...)
		out = append(out, rl.Elems...)
		return Value{Kind: KindList, Obj: &List{Elems: out}}, nil
	}
	if l.Kind == KindTuple && r.Kind == KindTuple {
		lt, rt := l.Obj.(*Tuple), r.Obj.(*Tuple)
		out := make([]Value, 0, len(lt.Elems)+len(rt.Elems))
		out = append(out, lt.Elems...)
		out = append(out, rt.Elems...)
		return Value{Kind: KindTuple, Obj: &Tuple{Elems: out}}, nil
	}
	if isNumeric(l) && isNumeric(r) {
		return numArith(l, r, func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) },
			func(a, b float64) float64 { return a + b })
	}
	return Value{}, typeErr("unsupported operand type(s) for +: '%s' and '%s'", TypeName(l), TypeName(r))
}

func sub(l, r Value) (Value, error) {
	if l.Kind == KindSet && r.Kind == KindSet {
		out := NewSet()
		for _, e := range l.Obj.(*Set).Elems() {
			if !r.Obj.(*Set).Contains(e) {
				out.Add(e)
			}
		}
		return Value{Kind: KindSet, Obj: out}, nil
	}
	if isNumeric(l) && isNumeric(r) {
		return numArith(l, r, func(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) },
			func(a, b float64) float64 { return a - b })
	}
	return Value{}, typeErr("unsupported operand type(s) for -: '%s' and '%s'", TypeName(l), TypeName(r))
}

func mul(l, r Value) (Value, error) {
	if l.Kind == KindStr && isIntish(r) {
		return Str(strings.Repeat(l.Str, intRepeatCount(r))), nil
	}
	if r.Kind == KindStr && isIntish(l) {
		return Str(strings.Repeat(r.Str, intRepeatCount(l))), nil
	}
	if l.Kind == KindList && isIntish(r) {
		return Value{Kind: KindList, Obj: &List{Elems: repeatElems(l.Obj.(*List).Elems, intRepeatCount(r))}}, nil
	}
	if r.Kind == KindList && isIntish(l) {
		return Value{Kind: KindList, Obj: &List{Elems: repeatElems(r.Obj.(*List).Elems, intRepeatCount(l))}}, nil
	}
	if isNumeric(l) && isNumeric(r) {
		return numArith(l, r, func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) },
			func(a, b float64) float64 { return a * b })
	}
	return Value{}, typeErr("unsupported operand type(s) for *: '%s' and '%s'", TypeName(l), TypeName(r))
}

func isIntish(v Value) bool { return v.Kind == KindInt || v.Kind == KindBool }

func intRepeatCount(v Value) int {
	n := int(asBigInt(v).Int64())
	if n < 0 {
		return 0
	}
	return n
}

func repeatElems(elems []Value, n int) []Value {
	out := make([]Value, 0, len(elems)*n)
	for i := 0; i < n; i++ {
		out = append(out, elems...)
	}
	return out
}

func truediv(l, r Value) (Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return Value{}, typeErr("unsupported operand type(s) for /: '%s' and '%s'", TypeName(l), TypeName(r))
	}
	rf := asFloat(r)
	if rf == 0 {
		return Value{}, typeErr("division by zero")
	}
	return Float(asFloat(l) / rf), nil
}

// floordiv implements Python's floor (not truncating) division: the
// result rounds toward negative infinity, and sign follows the divisor
// (spec.md §4.5 names this explicitly since it differs from Go's /).
func floordiv(l, r Value) (Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return Value{}, typeErr("unsupported operand type(s) for //: '%s' and '%s'", TypeName(l), TypeName(r))
	}
	if l.Kind == KindFloat || r.Kind == KindFloat {
		rf := asFloat(r)
		if rf == 0 {
			return Value{}, typeErr("float floor division by zero")
		}
		return Float(math.Floor(asFloat(l) / rf)), nil
	}
	li, ri := asBigInt(l), asBigInt(r)
	if ri.Sign() == 0 {
		return Value{}, typeErr("integer division or modulo by zero")
	}
	q, m := new(big.Int), new(big.Int)
	q.QuoRem(li, ri, m)
	if m.Sign() != 0 && (m.Sign() < 0) != (ri.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return BigInt(q), nil
}

// mod implements Python's modulo, whose result takes the sign of the
// divisor (unlike Go's %, which takes the sign of the dividend).
func mod(l, r Value) (Value, error) {
	if l.Kind == KindStr {
		return Value{}, typeErr("%%-formatting of strings is not supported")
	}
	if !isNumeric(l) || !isNumeric(r) {
		return Value{}, typeErr("unsupported operand type(s) for %%: '%s' and '%s'", TypeName(l), TypeName(r))
	}
	if l.Kind == KindFloat || r.Kind == KindFloat {
		rf := asFloat(r)
		if rf == 0 {
			return Value{}, typeErr("float modulo")
		}
		m := math.Mod(asFloat(l), rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return Float(m), nil
	}
	li, ri := asBigInt(l), asBigInt(r)
	if ri.Sign() == 0 {
		return Value{}, typeErr("integer division or modulo by zero")
	}
	m := new(big.Int).Mod(li, ri)
	if m.Sign() != 0 && ri.Sign() < 0 {
		m.Add(m, ri)
	}
	return BigInt(m), nil
}

func pow(l, r Value) (Value, error) {
	if !isNumeric(l) || !isNumeric(r) {
		return Value{}, typeErr("unsupported operand type(s) for **: '%s' and '%s'", TypeName(l), TypeName(r))
	}
	if l.Kind != KindFloat && r.Kind != KindFloat && asBigInt(r).Sign() >= 0 {
		return BigInt(new(big.Int).Exp(asBigInt(l), asBigInt(r), nil)), nil
	}
	return Float(math.Pow(asFloat(l), asFloat(r))), nil
}

func numArith(l, r Value, intOp func(a, b *big.Int) *big.Int, floatOp func(a, b float64) float64) (Value, error) {
	if l.Kind == KindFloat || r.Kind == KindFloat {
		return Float(floatOp(asFloat(l), asFloat(r))), nil
	}
	return BigInt(intOp(asBigInt(l), asBigInt(r))), nil
}

func bitwise(op string, l, r Value) (Value, error) {
	if !isIntish(l) || !isIntish(r) {
		return Value{}, typeErr("unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(l), TypeName(r))
	}
	li, ri := asBigInt(l), asBigInt(r)
	out := new(big.Int)
	switch op {
	case "&":
		out.And(li, ri)
	case "|":
		out.Or(li, ri)
	case "^":
		out.Xor(li, ri)
	case "<<":
		out.Lsh(li, uint(ri.Int64()))
	case ">>":
		out.Rsh(li, uint(ri.Int64()))
	}
	return BigInt(out), nil
}

// Equal implements Python's "==": cross-numeric equality for numbers,
// structural equality for strings/lists/tuples/dicts/sets, else false for
// mismatched kinds (spec.md §4.5 and the dict-key-equality Open Question,
// resolved identically here for consistency between "==" and dict keys).
func Equal(l, r Value) bool {
	if isNumeric(l) && isNumeric(r) {
		return numEqual(l, r)
	}
	if l.Kind != r.Kind {
		return false
	}
	switch l.Kind {
	case KindStr:
		return l.Str == r.Str
	case KindNone:
		return true
	case KindList:
		return elemsEqual(l.Obj.(*List).Elems, r.Obj.(*List).Elems)
	case KindTuple:
		return elemsEqual(l.Obj.(*Tuple).Elems, r.Obj.(*Tuple).Elems)
	case KindDict:
		ld, rd := l.Obj.(*Dict), r.Obj.(*Dict)
		if ld.Len() != rd.Len() {
			return false
		}
		for _, it := range ld.Items() {
			rv, ok := rd.Get(it.Key)
			if !ok || !Equal(it.Value, rv) {
				return false
			}
		}
		return true
	case KindSet:
		ls, rs := l.Obj.(*Set), r.Obj.(*Set)
		if ls.Len() != rs.Len() {
			return false
		}
		for _, e := range ls.Elems() {
			if !rs.Contains(e) {
				return false
			}
		}
		return true
	case KindInstance:
		return l.Obj.(*Instance) == r.Obj.(*Instance)
	default:
		return isIdentical(l, r)
	}
}

func elemsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// isIdentical implements "is": identity for composites/instances/funcs
// (pointer equality on the underlying Obj), value equality for None,
// and numeric-kind-sensitive identity for small immutables, matching
// CPython's observable-but-unspecified int/bool caching closely enough
// for machine-generated programs that don't rely on its exact boundary.
func isIdentical(l, r Value) bool {
	if l.Kind == KindNone && r.Kind == KindNone {
		return true
	}
	if l.Kind != r.Kind {
		return false
	}
	switch l.Kind {
	case KindBool:
		return l.Bl == r.Bl
	case KindInt:
		return l.Int.Cmp(r.Int) == 0
	case KindStr:
		return l.Str == r.Str
	default:
		return l.Obj == r.Obj
	}
}

func compareOrdered(op string, l, r Value) (Value, error) {
	c, err := compare(l, r)
	if err != nil {
		return Value{}, err
	}
	switch op {
	case "<":
		return Bool(c < 0), nil
	case "<=":
		return Bool(c <= 0), nil
	case ">":
		return Bool(c > 0), nil
	case ">=":
		return Bool(c >= 0), nil
	}
	return Value{}, typeErr("unknown comparison %q", op)
}

// compare returns -1/0/1 for ordered comparisons between numbers or
// between same-kind strings/lists/tuples (lexicographic, like Python).
func compare(l, r Value) (int, error) {
	if isNumeric(l) && isNumeric(r) {
		if l.Kind == KindFloat || r.Kind == KindFloat {
			lf, rf := asFloat(l), asFloat(r)
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return asBigInt(l).Cmp(asBigInt(r)), nil
	}
	if l.Kind == KindStr && r.Kind == KindStr {
		return strings.Compare(l.Str, r.Str), nil
	}
	if (l.Kind == KindList && r.Kind == KindList) || (l.Kind == KindTuple && r.Kind == KindTuple) {
		le, re := elemsOf(l), elemsOf(r)
		for i := 0; i < len(le) && i < len(re); i++ {
			c, err := compare(le[i], re[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		return len(le) - len(re), nil
	}
	return 0, typeErr("'<' not supported between instances of '%s' and '%s'", TypeName(l), TypeName(r))
}

func elemsOf(v Value) []Value {
	if v.Kind == KindList {
		return v.Obj.(*List).Elems
	}
	return v.Obj.(*Tuple).Elems
}

// CompareValues exposes compare's three-way ordering to callers outside
// this package (pybuiltin's sorted()/min()/max()); negative/zero/positive
// for l<r/l==r/l>r,
// falling back to a string-based comparison of the two Repr forms for
// otherwise-unorderable kinds rather than erroring, since a host builtin
// has no Outcome/exception channel to surface a TypeError through cleanly.
func CompareValues(l, r Value) int {
	c, err := compare(l, r)
	if err != nil {
		return strings.Compare(Repr(l), Repr(r))
	}
	return c
}

// contains implements "x in container" over str/list/tuple/dict/set,
// per spec.md §4.5.
func contains(container, x Value) (Value, error) {
	switch container.Kind {
	case KindStr:
		if x.Kind != KindStr {
			return Value{}, typeErr("'in <string>' requires string as left operand, not %s", TypeName(x))
		}
		return Bool(strings.Contains(container.Str, x.Str)), nil
	case KindList:
		for _, e := range container.Obj.(*List).Elems {
			if Equal(e, x) {
				return True, nil
			}
		}
		return False, nil
	case KindTuple:
		for _, e := range container.Obj.(*Tuple).Elems {
			if Equal(e, x) {
				return True, nil
			}
		}
		return False, nil
	case KindDict:
		_, ok := container.Obj.(*Dict).Get(x)
		return Bool(ok), nil
	case KindSet:
		return Bool(container.Obj.(*Set).Contains(x)), nil
	case KindRange:
		rg := container.Obj.(*Range)
		if !isIntish(x) {
			return False, nil
		}
		n := asBigInt(x).Int64()
		if rg.Step == 0 {
			return False, nil
		}
		if rg.Step > 0 {
			return Bool(n >= rg.Start && n < rg.Stop && (n-rg.Start)%rg.Step == 0), nil
		}
		return Bool(n <= rg.Start && n > rg.Stop && (rg.Start-n)%(-rg.Step) == 0), nil
	}
	return Value{}, typeErr("argument of type '%s' is not iterable", TypeName(container))
}

// UnaryOp applies unary -, +, ~, not per spec.md §4.5.
func UnaryOp(op string, x Value) (Value, error) {
	switch op {
	case "not":
		return Bool(!IsTruthy(x)), nil
	case "-":
		if x.Kind == KindFloat {
			return Float(-x.Flt), nil
		}
		if isIntish(x) {
			return BigInt(new(big.Int).Neg(asBigInt(x))), nil
		}
		return Value{}, typeErr("bad operand type for unary -: '%s'", TypeName(x))
	case "+":
		if isNumeric(x) {
			return x, nil
		}
		return Value{}, typeErr("bad operand type for unary +: '%s'", TypeName(x))
	case "~":
		if isIntish(x) {
			return BigInt(new(big.Int).Not(asBigInt(x))), nil
		}
		return Value{}, typeErr("bad operand type for unary ~: '%s'", TypeName(x))
	}
	return Value{}, typeErr("unknown unary operator %q", op)
}

// Repr renders v the way Python's repr() would for the subset of types
// this interpreter implements; used by print()'s str() fallback for
// composites, f-string "!r" conversions, and exception messages.
func Repr(v Value) string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindBool:
		if v.Bl {
			return "True"
		}
		return "False"
	case KindInt:
		return v.Int.String()
	case KindFloat:
		return formatFloat(v.Flt)
	case KindStr:
		return "'" + strings.ReplaceAll(v.Str, "'", "\\'") + "'"
	case KindList:
		return "[" + joinRepr(v.Obj.(*List).Elems) + "]"
	case KindTuple:
		elems := v.Obj.(*Tuple).Elems
		if len(elems) == 1 {
			return "(" + Repr(elems[0]) + ",)"
		}
		return "(" + joinRepr(elems) + ")"
	case KindSet:
		es := v.Obj.(*Set).Elems()
		if len(es) == 0 {
			return "set()"
		}
		return "{" + joinRepr(es) + "}"
	case KindDict:
		d := v.Obj.(*Dict)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, it := range d.Items() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Repr(it.Key))
			sb.WriteString(": ")
			sb.WriteString(Repr(it.Value))
		}
		sb.WriteByte('}')
		return sb.String()
	case KindInstance:
		return fmt.Sprintf("<%s object>", v.Obj.(*Instance).Class.Name)
	case KindClass:
		return fmt.Sprintf("<class '%s'>", v.Obj.(*Class).Name)
	case KindFunc, KindLambda:
		return "<function>"
	case KindRange:
		rg := v.Obj.(*Range)
		return fmt.Sprintf("range(%d, %d, %d)", rg.Start, rg.Stop, rg.Step)
	default:
		return fmt.Sprintf("<%s>", TypeName(v))
	}
}

func joinRepr(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = Repr(v)
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Stringify renders v the way Python's str() would: identical to Repr
// except for bare strings, which are unquoted.
func Stringify(v Value) string {
	if v.Kind == KindStr {
		return v.Str
	}
	return Repr(v)
}
