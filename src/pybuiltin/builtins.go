// Package pybuiltin implements the global builtin functions (len, range,
// print, str, isinstance, sorted, ...), bound into a fresh module
// environment at Run time, and the small importable module set: the
// stdlib modules spec.md §6.1 permits (math, json, re, datetime,
// itertools, collections, random, string) plus the capability-gated web,
// io and net modules.
//
// please's interpreter has its own builtin registry (src/parse/asp's
// "registerBuiltins"-style function table keyed by name), which this is
// grounded on for shape: a name -> callable map constructed once and
// copied into the global scope. A handful of builtins (map, filter,
// sorted's key=, min/max's key=) need to call back into
// arbitrary Python callables, which would import-cycle against pyeval (the
// package that constructs Builtin values in the first place); SetCaller
// breaks the cycle with one level of dependency injection, same trick
// please uses to let asp call back into its own interpreter from a
// builtin without importing the interpreter package from asp itself.
package pybuiltin

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
)

// caller invokes a Python callable value with positional args, flattening
// any raised exception into a Go error (the same contract pyval.Builtin's
// own Call field uses). Set once by pyeval's init.
var caller func(fn pyval.Value, args []pyval.Value) (pyval.Value, error)

// SetCaller wires the evaluator's Call function in, letting map/filter/
// sorted(key=...)/min/max(key=...) invoke user-level callables.
func SetCaller(c func(fn pyval.Value, args []pyval.Value) (pyval.Value, error)) {
	caller = c
}

func bi(name string, fn func(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error)) pyval.Value {
	return pyval.Value{Kind: pyval.KindBuiltin, Obj: &pyval.Builtin{Name: name, Call: fn}}
}

// Globals returns the builtin-function table bound into every fresh
// module environment.
func Globals() map[string]pyval.Value {
	return map[string]pyval.Value{
		"len":        bi("len", biLen),
		"range":      bi("range", biRange),
		"print":      bi("print", biPrint),
		"str":        bi("str", biStr),
		"int":        bi("int", biInt),
		"float":      bi("float", biFloat),
		"bool":       bi("bool", biBool),
		"list":       bi("list", biList),
		"tuple":      bi("tuple", biTuple),
		"dict":       bi("dict", biDict),
		"set":        bi("set", biSet),
		"abs":        bi("abs", biAbs),
		"sum":        bi("sum", biSum),
		"min":        bi("min", biMin),
		"max":        bi("max", biMax),
		"sorted":     bi("sorted", biSorted),
		"reversed":   bi("reversed", biReversed),
		"enumerate":  bi("enumerate", biEnumerate),
		"zip":        bi("zip", biZip),
		"map":        bi("map", biMap),
		"filter":     bi("filter", biFilter),
		"any":        bi("any", biAny),
		"all":        bi("all", biAll),
		"isinstance": bi("isinstance", biIsinstance),
		"type":       bi("type", biType),
		"repr":       bi("repr", biRepr),
		"round":      bi("round", biRound),
		"ord":        bi("ord", biOrd),
		"chr":        bi("chr", biChr),
		"hash":       bi("hash", biHash),
	}
}

func argErr(name, want string) error {
	return fmt.Errorf("%s() %s", name, want)
}

func biLen(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 1 {
		return pyval.Value{}, argErr("len", "takes exactly one argument")
	}
	v := args[0]
	switch v.Kind {
	case pyval.KindStr:
		return pyval.Int(int64(len([]rune(v.Str)))), nil
	case pyval.KindList:
		return pyval.Int(int64(len(v.Obj.(*pyval.List).Elems))), nil
	case pyval.KindTuple:
		return pyval.Int(int64(len(v.Obj.(*pyval.Tuple).Elems))), nil
	case pyval.KindDict:
		return pyval.Int(int64(v.Obj.(*pyval.Dict).Len())), nil
	case pyval.KindSet:
		return pyval.Int(int64(v.Obj.(*pyval.Set).Len())), nil
	}
	return pyval.Value{}, fmt.Errorf("object of type '%s' has no len()", pyval.TypeName(v))
}

func biRange(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0].Int.Int64()
	case 2:
		start, stop = args[0].Int.Int64(), args[1].Int.Int64()
	case 3:
		start, stop, step = args[0].Int.Int64(), args[1].Int.Int64(), args[2].Int.Int64()
	default:
		return pyval.Value{}, argErr("range", "expected 1 to 3 arguments")
	}
	return pyval.Value{Kind: pyval.KindRange, Obj: &pyval.Range{Start: start, Stop: stop, Step: step}}, nil
}

// OutputDirective is the payload of a print() effect marker: pybuiltin
// has no Context to append to (see the package doc's SetCaller
// cycle-avoidance rationale), so print only builds the line; pyeval's
// Call appends it to the Context's captured output buffer.
type OutputDirective struct {
	Text string
}

// strOf renders v the way Python's str() would, consulting a user-defined
// __str__ method first via the caller DI seam (the same mechanism
// sorted(key=...)/map/filter already use to call back into user code)
// before falling back to pyval.Stringify's generic rendering.
func strOf(v pyval.Value) (string, error) {
	if v.Kind == pyval.KindInstance && caller != nil {
		inst := v.Obj.(*pyval.Instance)
		if fn, ok := inst.GetAttr("__str__"); ok {
			sv, err := caller(fn, []pyval.Value{v})
			if err != nil {
				return "", err
			}
			return pyval.Stringify(sv), nil
		}
	}
	return pyval.Stringify(v), nil
}

func biPrint(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) {
	sep := " "
	if s, ok := kwargs["sep"]; ok {
		sep = s.Str
	}
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := strOf(a)
		if err != nil {
			return pyval.Value{}, err
		}
		parts[i] = s
	}
	line := strings.Join(parts, sep)
	return pyval.Value{Kind: pyval.KindEffect, Obj: &OutputDirective{Text: line}}, nil
}

func biStr(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Str(""), nil
	}
	s, err := strOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	return pyval.Str(s), nil
}

func biInt(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Int(0), nil
	}
	v := args[0]
	switch v.Kind {
	case pyval.KindInt:
		return v, nil
	case pyval.KindBool:
		if v.Bl {
			return pyval.Int(1), nil
		}
		return pyval.Int(0), nil
	case pyval.KindFloat:
		bi, _ := big.NewFloat(v.Flt).Int(nil)
		return pyval.BigInt(bi), nil
	case pyval.KindStr:
		n := new(big.Int)
		base := 10
		if len(args) > 1 {
			base = int(args[1].Int.Int64())
		}
		if _, ok := n.SetString(strings.TrimSpace(v.Str), base); !ok {
			return pyval.Value{}, fmt.Errorf("invalid literal for int() with base %d: %s", base, pyval.Repr(v))
		}
		return pyval.BigInt(n), nil
	}
	return pyval.Value{}, fmt.Errorf("int() argument must be a string or a number")
}

func biFloat(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Float(0), nil
	}
	v := args[0]
	switch v.Kind {
	case pyval.KindFloat:
		return v, nil
	case pyval.KindInt:
		f, _ := new(big.Float).SetInt(v.Int).Float64()
		return pyval.Float(f), nil
	case pyval.KindBool:
		if v.Bl {
			return pyval.Float(1), nil
		}
		return pyval.Float(0), nil
	case pyval.KindStr:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return pyval.Value{}, fmt.Errorf("could not convert string to float: %s", pyval.Repr(v))
		}
		return pyval.Float(f), nil
	}
	return pyval.Value{}, fmt.Errorf("float() argument must be a string or a number")
}

func biBool(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.False, nil
	}
	return pyval.Bool(pyval.IsTruthy(args[0])), nil
}

func elemsOf(v pyval.Value) ([]pyval.Value, error) {
	switch v.Kind {
	case pyval.KindList:
		return v.Obj.(*pyval.List).Elems, nil
	case pyval.KindTuple:
		return v.Obj.(*pyval.Tuple).Elems, nil
	case pyval.KindSet:
		return v.Obj.(*pyval.Set).Elems(), nil
	case pyval.KindDict:
		return v.Obj.(*pyval.Dict).Keys(), nil
	case pyval.KindStr:
		rs := []rune(v.Str)
		out := make([]pyval.Value, len(rs))
		for i, r := range rs {
			out[i] = pyval.Str(string(r))
		}
		return out, nil
	case pyval.KindRange:
		rg := v.Obj.(*pyval.Range)
		n := rg.Len()
		out := make([]pyval.Value, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, pyval.Int(rg.At(i)))
		}
		return out, nil
	case pyval.KindGenerator:
		g := v.Obj.(*pygen.Generator)
		var out []pyval.Value
		for {
			e, ok := g.Next(pyval.None)
			if !ok {
				return out, nil
			}
			out = append(out, e)
		}
	}
	return nil, fmt.Errorf("'%s' object is not iterable", pyval.TypeName(v))
}

func biList(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{}}, nil
	}
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: append([]pyval.Value(nil), elems...)}}, nil
}

func biTuple(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{}}, nil
	}
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	return pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: append([]pyval.Value(nil), elems...)}}, nil
}

func biDict(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) {
	d := pyval.NewDict()
	if len(args) == 1 {
		switch args[0].Kind {
		case pyval.KindDict:
			for _, it := range args[0].Obj.(*pyval.Dict).Items() {
				d.Set(it.Key, it.Value)
			}
		default:
			pairs, err := elemsOf(args[0])
			if err != nil {
				return pyval.Value{}, err
			}
			for _, p := range pairs {
				kv, err := elemsOf(p)
				if err != nil || len(kv) != 2 {
					return pyval.Value{}, fmt.Errorf("dict() update sequence element must be a pair")
				}
				d.Set(kv[0], kv[1])
			}
		}
	}
	for k, v := range kwargs {
		d.SetStr(k, v)
	}
	return pyval.Value{Kind: pyval.KindDict, Obj: d}, nil
}

func biSet(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	s := pyval.NewSet()
	if len(args) == 1 {
		elems, err := elemsOf(args[0])
		if err != nil {
			return pyval.Value{}, err
		}
		for _, e := range elems {
			s.Add(e)
		}
	}
	return pyval.Value{Kind: pyval.KindSet, Obj: s}, nil
}

func biAbs(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 1 {
		return pyval.Value{}, argErr("abs", "takes exactly one argument")
	}
	switch v := args[0]; v.Kind {
	case pyval.KindInt:
		return pyval.BigInt(new(big.Int).Abs(v.Int)), nil
	case pyval.KindFloat:
		if v.Flt < 0 {
			return pyval.Float(-v.Flt), nil
		}
		return v, nil
	}
	return pyval.Value{}, fmt.Errorf("bad operand type for abs()")
}

func biSum(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Value{}, argErr("sum", "expected at least 1 argument")
	}
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	total := pyval.Int(0)
	if len(args) > 1 {
		total = args[1]
	}
	for _, e := range elems {
		total, err = pyval.BinOp("+", total, e)
		if err != nil {
			return pyval.Value{}, err
		}
	}
	return total, nil
}

func biMin(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) { return extreme(args, kwargs, true) }
func biMax(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) { return extreme(args, kwargs, false) }

func extreme(args []pyval.Value, kwargs map[string]pyval.Value, wantMin bool) (pyval.Value, error) {
	var elems []pyval.Value
	if len(args) == 1 {
		e, err := elemsOf(args[0])
		if err != nil {
			return pyval.Value{}, err
		}
		elems = e
	} else {
		elems = args
	}
	if len(elems) == 0 {
		return pyval.Value{}, fmt.Errorf("arg is an empty sequence")
	}
	keyed := elems
	if kf, ok := kwargs["key"]; ok && caller != nil {
		keyed = make([]pyval.Value, len(elems))
		for i, e := range elems {
			kv, err := caller(kf, []pyval.Value{e})
			if err != nil {
				return pyval.Value{}, err
			}
			keyed[i] = kv
		}
	}
	best := 0
	for i := 1; i < len(elems); i++ {
		c := pyval.CompareValues(keyed[i], keyed[best])
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = i
		}
	}
	return elems[best], nil
}

func biSorted(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 1 {
		return pyval.Value{}, argErr("sorted", "takes exactly one argument")
	}
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	out := append([]pyval.Value(nil), elems...)
	keys := out
	if kf, ok := kwargs["key"]; ok && caller != nil {
		keys = make([]pyval.Value, len(out))
		for i, e := range out {
			kv, err := caller(kf, []pyval.Value{e})
			if err != nil {
				return pyval.Value{}, err
			}
			keys[i] = kv
		}
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return pyval.CompareValues(keys[idx[i]], keys[idx[j]]) < 0 })
	sorted := make([]pyval.Value, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	if rv, ok := kwargs["reverse"]; ok && pyval.IsTruthy(rv) {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: sorted}}, nil
}

func biReversed(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 1 {
		return pyval.Value{}, argErr("reversed", "takes exactly one argument")
	}
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	out := make([]pyval.Value, len(elems))
	for i, e := range elems {
		out[len(elems)-1-i] = e
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
}

func biEnumerate(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Value{}, argErr("enumerate", "expected at least 1 argument")
	}
	start := int64(0)
	if s, ok := kwargs["start"]; ok {
		start = s.Int.Int64()
	}
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	out := make([]pyval.Value, len(elems))
	for i, e := range elems {
		out[i] = pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: []pyval.Value{pyval.Int(start + int64(i)), e}}}
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
}

func biZip(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	var seqs [][]pyval.Value
	minLen := -1
	for _, a := range args {
		elems, err := elemsOf(a)
		if err != nil {
			return pyval.Value{}, err
		}
		seqs = append(seqs, elems)
		if minLen == -1 || len(elems) < minLen {
			minLen = len(elems)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]pyval.Value, minLen)
	for i := 0; i < minLen; i++ {
		row := make([]pyval.Value, len(seqs))
		for j, s := range seqs {
			row[j] = s[i]
		}
		out[i] = pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: row}}
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
}

func biMap(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) < 2 || caller == nil {
		return pyval.Value{}, argErr("map", "expected a function and at least one iterable")
	}
	elems, err := elemsOf(args[1])
	if err != nil {
		return pyval.Value{}, err
	}
	out := make([]pyval.Value, len(elems))
	for i, e := range elems {
		v, err := caller(args[0], []pyval.Value{e})
		if err != nil {
			return pyval.Value{}, err
		}
		out[i] = v
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
}

func biFilter(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 2 {
		return pyval.Value{}, argErr("filter", "expected a predicate and an iterable")
	}
	elems, err := elemsOf(args[1])
	if err != nil {
		return pyval.Value{}, err
	}
	var out []pyval.Value
	for _, e := range elems {
		keep := pyval.IsTruthy(e)
		if args[0].Kind != pyval.KindNone && caller != nil {
			v, err := caller(args[0], []pyval.Value{e})
			if err != nil {
				return pyval.Value{}, err
			}
			keep = pyval.IsTruthy(v)
		}
		if keep {
			out = append(out, e)
		}
	}
	return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
}

func biAny(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	for _, e := range elems {
		if pyval.IsTruthy(e) {
			return pyval.True, nil
		}
	}
	return pyval.False, nil
}

func biAll(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	elems, err := elemsOf(args[0])
	if err != nil {
		return pyval.Value{}, err
	}
	for _, e := range elems {
		if !pyval.IsTruthy(e) {
			return pyval.False, nil
		}
	}
	return pyval.True, nil
}

func biIsinstance(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 2 {
		return pyval.Value{}, argErr("isinstance", "expected 2 arguments")
	}
	v, cls := args[0], args[1]
	want := pyval.TypeName(cls)
	if cls.Kind == pyval.KindClass && v.Kind == pyval.KindInstance {
		inst := v.Obj.(*pyval.Instance)
		for _, c := range inst.Class.MRO {
			if c == cls.Obj.(*pyval.Class) {
				return pyval.True, nil
			}
		}
		return pyval.False, nil
	}
	return pyval.Bool(pyval.TypeName(v) == want), nil
}

func biType(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 1 {
		return pyval.Value{}, argErr("type", "expected 1 argument")
	}
	if args[0].Kind == pyval.KindInstance {
		return pyval.Value{Kind: pyval.KindClass, Obj: args[0].Obj.(*pyval.Instance).Class}, nil
	}
	return pyval.Str(pyval.TypeName(args[0])), nil
}

func biRepr(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) != 1 {
		return pyval.Value{}, argErr("repr", "expected 1 argument")
	}
	return pyval.Str(pyval.Repr(args[0])), nil
}

func biRound(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	if len(args) == 0 {
		return pyval.Value{}, argErr("round", "expected at least 1 argument")
	}
	f := args[0].Flt
	if args[0].Kind == pyval.KindInt {
		return args[0], nil
	}
	ndigits := 0
	if len(args) > 1 {
		ndigits = int(args[1].Int.Int64())
	}
	mult := 1.0
	for i := 0; i < ndigits; i++ {
		mult *= 10
	}
	for i := 0; i > ndigits; i-- {
		mult /= 10
	}
	r := float64(int64(f*mult+0.5*sign(f))) / mult
	if ndigits <= 0 && len(args) <= 1 {
		return pyval.Int(int64(r)), nil
	}
	return pyval.Float(r), nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func biOrd(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	rs := []rune(args[0].Str)
	if len(rs) != 1 {
		return pyval.Value{}, fmt.Errorf("ord() expected a character")
	}
	return pyval.Int(int64(rs[0])), nil
}

func biChr(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	return pyval.Str(string(rune(args[0].Int.Int64()))), nil
}

func biHash(args []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
	return pyval.Int(int64(pyval.HashValue(args[0]))), nil
}
