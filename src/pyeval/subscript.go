package pyeval

import (
	"fmt"

	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
)

// drainGenerator runs g to completion in eager mode (spec.md §4.7's
// host-selectable "eager" mode, as opposed to the deferred for-loop path
// evalFor drives one Next at a time): list(gen()), sum(gen()), and every
// other iterable-consuming builtin need a concrete slice, so this is the
// one place that turns a suspended/running generator into one.
func drainGenerator(g *pygen.Generator) []pyval.Value {
	var out []pyval.Value
	for {
		v, ok := g.Next(pyval.None)
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// iterableElems materialises any spec.md §3.3 iterable (list, tuple, str,
// dict (keys), set, range, generator) into a concrete slice. A generator
// is drained eagerly here; evalFor drives one through pygen step by step
// instead, per spec.md §4.7's two operating modes.
func iterableElems(v pyval.Value) ([]pyval.Value, error) {
	switch v.Kind {
	case pyval.KindList:
		return v.Obj.(*pyval.List).Elems, nil
	case pyval.KindTuple:
		return v.Obj.(*pyval.Tuple).Elems, nil
	case pyval.KindStr:
		rs := []rune(v.Str)
		out := make([]pyval.Value, len(rs))
		for i, r := range rs {
			out[i] = pyval.Str(string(r))
		}
		return out, nil
	case pyval.KindDict:
		return v.Obj.(*pyval.Dict).Keys(), nil
	case pyval.KindSet:
		return v.Obj.(*pyval.Set).Elems(), nil
	case pyval.KindRange:
		rg := v.Obj.(*pyval.Range)
		n := rg.Len()
		out := make([]pyval.Value, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, pyval.Int(rg.At(i)))
		}
		return out, nil
	case pyval.KindGenerator:
		return drainGenerator(v.Obj.(*pygen.Generator)), nil
	}
	return nil, fmt.Errorf("'%s' object is not iterable", pyval.TypeName(v))
}

// getSubscript implements obj[index] including slicing, for str/list/
// tuple/dict.
func getSubscript(obj, index pyval.Value) (pyval.Value, error) {
	if rg, ok := obj.Obj.(*pyval.Range); ok && obj.Kind == pyval.KindRange {
		i := int(index.Int.Int64())
		n := int(rg.Len())
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return pyval.Value{}, fmt.Errorf("range object index out of range")
		}
		return pyval.Int(rg.At(int64(i))), nil
	}
	if sl, ok := index.Obj.(*pyval.Slice); ok {
		return sliceValue(obj, sl)
	}
	switch obj.Kind {
	case pyval.KindStr:
		rs := []rune(obj.Str)
		i, err := normIndex(index, len(rs))
		if err != nil {
			return pyval.Value{}, err
		}
		return pyval.Str(string(rs[i])), nil
	case pyval.KindList:
		l := obj.Obj.(*pyval.List).Elems
		i, err := normIndex(index, len(l))
		if err != nil {
			return pyval.Value{}, err
		}
		return l[i], nil
	case pyval.KindTuple:
		t := obj.Obj.(*pyval.Tuple).Elems
		i, err := normIndex(index, len(t))
		if err != nil {
			return pyval.Value{}, err
		}
		return t[i], nil
	case pyval.KindDict:
		v, ok := obj.Obj.(*pyval.Dict).Get(index)
		if !ok {
			return pyval.Value{}, fmt.Errorf("KeyError: %s", pyval.Repr(index))
		}
		return v, nil
	}
	return pyval.Value{}, fmt.Errorf("'%s' object is not subscriptable", pyval.TypeName(obj))
}

func normIndex(index pyval.Value, n int) (int, error) {
	if index.Kind != pyval.KindInt && index.Kind != pyval.KindBool {
		return 0, fmt.Errorf("indices must be integers")
	}
	i := int(indexInt(index))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index out of range")
	}
	return i, nil
}

func indexInt(v pyval.Value) int64 {
	if v.Kind == pyval.KindBool {
		if v.Bl {
			return 1
		}
		return 0
	}
	return v.Int.Int64()
}

func sliceValue(obj pyval.Value, sl *pyval.Slice) (pyval.Value, error) {
	switch obj.Kind {
	case pyval.KindStr:
		rs := []rune(obj.Str)
		start, stop, step := resolveSlice(sl, len(rs))
		out := sliceRunes(rs, start, stop, step)
		return pyval.Str(string(out)), nil
	case pyval.KindList:
		elems := obj.Obj.(*pyval.List).Elems
		start, stop, step := resolveSlice(sl, len(elems))
		return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: sliceVals(elems, start, stop, step)}}, nil
	case pyval.KindTuple:
		elems := obj.Obj.(*pyval.Tuple).Elems
		start, stop, step := resolveSlice(sl, len(elems))
		return pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: sliceVals(elems, start, stop, step)}}, nil
	}
	return pyval.Value{}, fmt.Errorf("'%s' object is not subscriptable", pyval.TypeName(obj))
}

func resolveSlice(sl *pyval.Slice, n int) (start, stop, step int) {
	step = 1
	if sl.Step.Kind == pyval.KindInt {
		step = int(sl.Step.Int.Int64())
		if step == 0 {
			step = 1
		}
	}
	if step > 0 {
		start, stop = 0, n
	} else {
		start, stop = n-1, -1
	}
	if sl.Start.Kind == pyval.KindInt {
		start = clampSliceIndex(int(sl.Start.Int.Int64()), n, step > 0)
	}
	if sl.Stop.Kind == pyval.KindInt {
		stop = clampSliceIndex(int(sl.Stop.Int.Int64()), n, step > 0)
	}
	return
}

func clampSliceIndex(i, n int, forward bool) int {
	if i < 0 {
		i += n
	}
	if forward {
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	if i < -1 {
		return -1
	}
	if i >= n {
		return n - 1
	}
	return i
}

func sliceRunes(rs []rune, start, stop, step int) []rune {
	var out []rune
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, rs[i])
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, rs[i])
		}
	}
	return out
}

func sliceVals(vs []pyval.Value, start, stop, step int) []pyval.Value {
	var out []pyval.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, vs[i])
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, vs[i])
		}
	}
	return out
}

// setSubscript implements obj[index] = value for list/dict.
func setSubscript(obj, index, value pyval.Value) error {
	switch obj.Kind {
	case pyval.KindList:
		l := obj.Obj.(*pyval.List)
		i, err := normIndex(index, len(l.Elems))
		if err != nil {
			return err
		}
		l.Elems[i] = value
		return nil
	case pyval.KindDict:
		obj.Obj.(*pyval.Dict).Set(index, value)
		return nil
	}
	return fmt.Errorf("'%s' object does not support item assignment", pyval.TypeName(obj))
}
