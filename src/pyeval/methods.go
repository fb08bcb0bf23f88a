package pyeval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sandboxed-py/interp/src/pyval"
)

func method(name string, fn func(args []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error)) pyval.Value {
	return pyval.Value{Kind: pyval.KindBuiltin, Obj: &pyval.Builtin{Name: name, Call: fn}}
}

func noSuchAttr(kind, attr string) error {
	return fmt.Errorf("'%s' object has no attribute '%s'", kind, attr)
}

// strMethod binds one of str's named methods (spec.md §3.3/§4.5) to the
// receiving string, returning a ready-to-call Builtin closing over it.
func strMethod(recv pyval.Value, attr string) (pyval.Value, error) {
	s := recv.Str
	switch attr {
	case "upper":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) { return pyval.Str(strings.ToUpper(s)), nil }), nil
	case "lower":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) { return pyval.Str(strings.ToLower(s)), nil }), nil
	case "strip":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if len(a) > 0 {
				return pyval.Str(strings.Trim(s, a[0].Str)), nil
			}
			return pyval.Str(strings.TrimSpace(s)), nil
		}), nil
	case "lstrip":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if len(a) > 0 {
				return pyval.Str(strings.TrimLeft(s, a[0].Str)), nil
			}
			return pyval.Str(strings.TrimLeft(s, " \t\n\r")), nil
		}), nil
	case "rstrip":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if len(a) > 0 {
				return pyval.Str(strings.TrimRight(s, a[0].Str)), nil
			}
			return pyval.Str(strings.TrimRight(s, " \t\n\r")), nil
		}), nil
	case "split":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			var parts []string
			if len(a) == 0 || a[0].Kind == pyval.KindNone {
				parts = strings.Fields(s)
			} else {
				parts = strings.Split(s, a[0].Str)
			}
			out := make([]pyval.Value, len(parts))
			for i, p := range parts {
				out[i] = pyval.Str(p)
			}
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
		}), nil
	case "join":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			elems, err := iterableElems(a[0])
			if err != nil {
				return pyval.Value{}, err
			}
			parts := make([]string, len(elems))
			for i, e := range elems {
				parts[i] = pyval.Stringify(e)
			}
			return pyval.Str(strings.Join(parts, s)), nil
		}), nil
	case "replace":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Str(strings.ReplaceAll(s, a[0].Str, a[1].Str)), nil
		}), nil
	case "startswith":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Bool(strings.HasPrefix(s, a[0].Str)), nil
		}), nil
	case "endswith":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Bool(strings.HasSuffix(s, a[0].Str)), nil
		}), nil
	case "find":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Int(int64(strings.Index(s, a[0].Str))), nil
		}), nil
	case "count":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Int(int64(strings.Count(s, a[0].Str))), nil
		}), nil
	case "format":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			out := s
			for _, v := range a {
				out = strings.Replace(out, "{}", pyval.Stringify(v), 1)
			}
			return pyval.Str(out), nil
		}), nil
	case "title":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) { return pyval.Str(strings.Title(s)), nil }), nil
	case "capitalize":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			if s == "" {
				return pyval.Str(s), nil
			}
			return pyval.Str(strings.ToUpper(s[:1]) + strings.ToLower(s[1:])), nil
		}), nil
	case "isdigit":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			if s == "" {
				return pyval.False, nil
			}
			for _, r := range s {
				if r < '0' || r > '9' {
					return pyval.False, nil
				}
			}
			return pyval.True, nil
		}), nil
	case "isalpha":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			if s == "" {
				return pyval.False, nil
			}
			for _, r := range s {
				if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
					return pyval.False, nil
				}
			}
			return pyval.True, nil
		}), nil
	}
	return pyval.Value{}, noSuchAttr("str", attr)
}

func listMethod(recv pyval.Value, attr string) (pyval.Value, error) {
	l := recv.Obj.(*pyval.List)
	switch attr {
	case "append":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			l.Elems = append(l.Elems, a[0])
			return pyval.None, nil
		}), nil
	case "extend":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			elems, err := iterableElems(a[0])
			if err != nil {
				return pyval.Value{}, err
			}
			l.Elems = append(l.Elems, elems...)
			return pyval.None, nil
		}), nil
	case "pop":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if len(l.Elems) == 0 {
				return pyval.Value{}, fmt.Errorf("IndexError: pop from empty list")
			}
			idx := len(l.Elems) - 1
			if len(a) > 0 {
				idx = int(a[0].Int.Int64())
				if idx < 0 {
					idx += len(l.Elems)
				}
			}
			v := l.Elems[idx]
			l.Elems = append(l.Elems[:idx], l.Elems[idx+1:]...)
			return v, nil
		}), nil
	case "insert":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			idx := int(a[0].Int.Int64())
			if idx < 0 {
				idx += len(l.Elems)
			}
			if idx < 0 {
				idx = 0
			}
			if idx > len(l.Elems) {
				idx = len(l.Elems)
			}
			l.Elems = append(l.Elems[:idx], append([]pyval.Value{a[1]}, l.Elems[idx:]...)...)
			return pyval.None, nil
		}), nil
	case "remove":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			for i, e := range l.Elems {
				if pyval.Equal(e, a[0]) {
					l.Elems = append(l.Elems[:i], l.Elems[i+1:]...)
					return pyval.None, nil
				}
			}
			return pyval.Value{}, fmt.Errorf("ValueError: list.remove(x): x not in list")
		}), nil
	case "sort":
		return method(attr, func(_ []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) {
			sort.SliceStable(l.Elems, func(i, j int) bool { return pyval.CompareValues(l.Elems[i], l.Elems[j]) < 0 })
			if rv, ok := kwargs["reverse"]; ok && pyval.IsTruthy(rv) {
				for i, j := 0, len(l.Elems)-1; i < j; i, j = i+1, j-1 {
					l.Elems[i], l.Elems[j] = l.Elems[j], l.Elems[i]
				}
			}
			return pyval.None, nil
		}), nil
	case "reverse":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			for i, j := 0, len(l.Elems)-1; i < j; i, j = i+1, j-1 {
				l.Elems[i], l.Elems[j] = l.Elems[j], l.Elems[i]
			}
			return pyval.None, nil
		}), nil
	case "index":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			for i, e := range l.Elems {
				if pyval.Equal(e, a[0]) {
					return pyval.Int(int64(i)), nil
				}
			}
			return pyval.Value{}, fmt.Errorf("ValueError: %s is not in list", pyval.Repr(a[0]))
		}), nil
	case "count":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			n := int64(0)
			for _, e := range l.Elems {
				if pyval.Equal(e, a[0]) {
					n++
				}
			}
			return pyval.Int(n), nil
		}), nil
	case "clear":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			l.Elems = nil
			return pyval.None, nil
		}), nil
	case "copy":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: append([]pyval.Value(nil), l.Elems...)}}, nil
		}), nil
	}
	return pyval.Value{}, noSuchAttr("list", attr)
}

func dictMethod(recv pyval.Value, attr string) (pyval.Value, error) {
	d := recv.Obj.(*pyval.Dict)
	switch attr {
	case "get":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if v, ok := d.Get(a[0]); ok {
				return v, nil
			}
			if len(a) > 1 {
				return a[1], nil
			}
			return pyval.None, nil
		}), nil
	case "keys":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: d.Keys()}}, nil
		}), nil
	case "values":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: d.Values()}}, nil
		}), nil
	case "items":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			items := d.Items()
			out := make([]pyval.Value, len(items))
			for i, it := range items {
				out[i] = pyval.Value{Kind: pyval.KindTuple, Obj: &pyval.Tuple{Elems: []pyval.Value{it.Key, it.Value}}}
			}
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
		}), nil
	case "pop":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if v, ok := d.Get(a[0]); ok {
				d.Delete(a[0])
				return v, nil
			}
			if len(a) > 1 {
				return a[1], nil
			}
			return pyval.Value{}, fmt.Errorf("KeyError: %s", pyval.Repr(a[0]))
		}), nil
	case "setdefault":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if v, ok := d.Get(a[0]); ok {
				return v, nil
			}
			def := pyval.None
			if len(a) > 1 {
				def = a[1]
			}
			d.Set(a[0], def)
			return def, nil
		}), nil
	case "update":
		return method(attr, func(a []pyval.Value, kwargs map[string]pyval.Value) (pyval.Value, error) {
			if len(a) > 0 && a[0].Kind == pyval.KindDict {
				for _, it := range a[0].Obj.(*pyval.Dict).Items() {
					d.Set(it.Key, it.Value)
				}
			}
			for k, v := range kwargs {
				d.SetStr(k, v)
			}
			return pyval.None, nil
		}), nil
	case "clear":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			for _, k := range d.Keys() {
				d.Delete(k)
			}
			return pyval.None, nil
		}), nil
	case "copy":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Value{Kind: pyval.KindDict, Obj: d.Clone()}, nil
		}), nil
	}
	return pyval.Value{}, noSuchAttr("dict", attr)
}

func setMethod(recv pyval.Value, attr string) (pyval.Value, error) {
	s := recv.Obj.(*pyval.Set)
	switch attr {
	case "add":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			s.Add(a[0])
			return pyval.None, nil
		}), nil
	case "remove":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if !s.Remove(a[0]) {
				return pyval.Value{}, fmt.Errorf("KeyError: %s", pyval.Repr(a[0]))
			}
			return pyval.None, nil
		}), nil
	case "discard":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			s.Remove(a[0])
			return pyval.None, nil
		}), nil
	case "union":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			out := s.Clone()
			elems, err := iterableElems(a[0])
			if err != nil {
				return pyval.Value{}, err
			}
			for _, e := range elems {
				out.Add(e)
			}
			return pyval.Value{Kind: pyval.KindSet, Obj: out}, nil
		}), nil
	case "intersection":
		return method(attr, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			other, err := iterableElems(a[0])
			if err != nil {
				return pyval.Value{}, err
			}
			lookup := map[int]bool{}
			for i := range other {
				lookup[i] = true
			}
			out := pyval.NewSet()
			for _, e := range s.Elems() {
				for _, o := range other {
					if pyval.Equal(e, o) {
						out.Add(e)
						break
					}
				}
			}
			return pyval.Value{Kind: pyval.KindSet, Obj: out}, nil
		}), nil
	case "copy":
		return method(attr, func([]pyval.Value, map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Value{Kind: pyval.KindSet, Obj: s.Clone()}, nil
		}), nil
	}
	return pyval.Value{}, noSuchAttr("set", attr)
}
