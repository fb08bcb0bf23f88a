package pybuiltin

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"regexp"
	"time"

	"github.com/sandboxed-py/interp/src/pyval"
)

func module(entries map[string]pyval.Value) pyval.Value {
	d := pyval.NewDict()
	for k, v := range entries {
		d.SetStr(k, v)
	}
	return pyval.Value{Kind: pyval.KindDict, Obj: d}
}

// Modules returns the namespace object for each builtin module: the
// stdlib modules spec.md §6.1 permits a Run to opt into (math, json, re,
// datetime, itertools, collections, random, string) and the
// capability-gated web, io and net modules. pyeval's import machinery
// consults this set once the custom-module lookup misses; there is no
// filesystem lookup, so .py source files are not importable.
func Modules() map[string]pyval.Value {
	return map[string]pyval.Value{
		"math":        mathModule(),
		"json":        jsonModule(),
		"re":          reModule(),
		"datetime":    datetimeModule(),
		"itertools":   itertoolsModule(),
		"collections": collectionsModule(),
		"random":      randomModule(),
		"string":      stringModule(),
		"web":         webModule(),
		"io":          ioModule(),
		"net":         netModule(),
	}
}

func mathModule() pyval.Value {
	return module(map[string]pyval.Value{
		"pi":  pyval.Float(math.Pi),
		"e":   pyval.Float(math.E),
		"inf": pyval.Float(math.Inf(1)),
		"nan": pyval.Float(math.NaN()),
		"sqrt": bi("math.sqrt", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Float(math.Sqrt(toFloat(a[0]))), nil
		}),
		"floor": bi("math.floor", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Int(int64(math.Floor(toFloat(a[0])))), nil
		}),
		"ceil": bi("math.ceil", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Int(int64(math.Ceil(toFloat(a[0])))), nil
		}),
		"pow": bi("math.pow", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Float(math.Pow(toFloat(a[0]), toFloat(a[1]))), nil
		}),
		"log": bi("math.log", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if len(a) > 1 {
				return pyval.Float(math.Log(toFloat(a[0])) / math.Log(toFloat(a[1]))), nil
			}
			return pyval.Float(math.Log(toFloat(a[0]))), nil
		}),
		"sin": bi("math.sin", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Float(math.Sin(toFloat(a[0]))), nil
		}),
		"cos": bi("math.cos", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Float(math.Cos(toFloat(a[0]))), nil
		}),
		"isnan": bi("math.isnan", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Bool(math.IsNaN(toFloat(a[0]))), nil
		}),
	})
}

func toFloat(v pyval.Value) float64 {
	switch v.Kind {
	case pyval.KindFloat:
		return v.Flt
	case pyval.KindInt:
		f, _ := new(big.Float).SetInt(v.Int).Float64()
		return f
	case pyval.KindBool:
		if v.Bl {
			return 1
		}
	}
	return 0
}

func jsonModule() pyval.Value {
	return module(map[string]pyval.Value{
		"dumps": bi("json.dumps", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			native := toNative(a[0])
			b, err := json.Marshal(native)
			if err != nil {
				return pyval.Value{}, err
			}
			return pyval.Str(string(b)), nil
		}),
		"loads": bi("json.loads", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			var v interface{}
			if err := json.Unmarshal([]byte(a[0].Str), &v); err != nil {
				return pyval.Value{}, fmt.Errorf("JSONDecodeError: %s", err)
			}
			return fromNative(v), nil
		}),
	})
}

func toNative(v pyval.Value) interface{} {
	switch v.Kind {
	case pyval.KindNone:
		return nil
	case pyval.KindBool:
		return v.Bl
	case pyval.KindInt:
		return v.Int.String()
	case pyval.KindFloat:
		return v.Flt
	case pyval.KindStr:
		return v.Str
	case pyval.KindList:
		elems := v.Obj.(*pyval.List).Elems
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = toNative(e)
		}
		return out
	case pyval.KindTuple:
		elems := v.Obj.(*pyval.Tuple).Elems
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = toNative(e)
		}
		return out
	case pyval.KindDict:
		out := map[string]interface{}{}
		for _, it := range v.Obj.(*pyval.Dict).Items() {
			out[pyval.Stringify(it.Key)] = toNative(it.Value)
		}
		return out
	}
	return pyval.Stringify(v)
}

func fromNative(v interface{}) pyval.Value {
	switch t := v.(type) {
	case nil:
		return pyval.None
	case bool:
		return pyval.Bool(t)
	case float64:
		return pyval.Float(t)
	case string:
		return pyval.Str(t)
	case []interface{}:
		out := make([]pyval.Value, len(t))
		for i, e := range t {
			out[i] = fromNative(e)
		}
		return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}
	case map[string]interface{}:
		d := pyval.NewDict()
		for k, e := range t {
			d.SetStr(k, fromNative(e))
		}
		return pyval.Value{Kind: pyval.KindDict, Obj: d}
	}
	return pyval.None
}

func reModule() pyval.Value {
	return module(map[string]pyval.Value{
		"match": bi("re.match", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			re, err := regexp.Compile("^(?:" + a[0].Str + ")")
			if err != nil {
				return pyval.Value{}, fmt.Errorf("re.error: %s", err)
			}
			if re.MatchString(a[1].Str) {
				return pyval.Str(re.FindString(a[1].Str)), nil
			}
			return pyval.None, nil
		}),
		"search": bi("re.search", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			re, err := regexp.Compile(a[0].Str)
			if err != nil {
				return pyval.Value{}, fmt.Errorf("re.error: %s", err)
			}
			if m := re.FindString(a[1].Str); m != "" || re.MatchString(a[1].Str) {
				return pyval.Str(m), nil
			}
			return pyval.None, nil
		}),
		"findall": bi("re.findall", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			re, err := regexp.Compile(a[0].Str)
			if err != nil {
				return pyval.Value{}, fmt.Errorf("re.error: %s", err)
			}
			ms := re.FindAllString(a[1].Str, -1)
			out := make([]pyval.Value, len(ms))
			for i, m := range ms {
				out[i] = pyval.Str(m)
			}
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
		}),
		"sub": bi("re.sub", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			re, err := regexp.Compile(a[0].Str)
			if err != nil {
				return pyval.Value{}, fmt.Errorf("re.error: %s", err)
			}
			return pyval.Str(re.ReplaceAllString(a[2].Str, a[1].Str)), nil
		}),
	})
}

func datetimeModule() pyval.Value {
	return module(map[string]pyval.Value{
		"now": bi("datetime.now", func(_ []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Str(time.Now().Format(time.RFC3339)), nil
		}),
	})
}

func itertoolsModule() pyval.Value {
	return module(map[string]pyval.Value{
		"chain": bi("itertools.chain", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			var out []pyval.Value
			for _, v := range a {
				elems, err := elemsOf(v)
				if err != nil {
					return pyval.Value{}, err
				}
				out = append(out, elems...)
			}
			return pyval.Value{Kind: pyval.KindList, Obj: &pyval.List{Elems: out}}, nil
		}),
		"count": bi("itertools.count", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			start := int64(0)
			if len(a) > 0 {
				start = a[0].Int.Int64()
			}
			return pyval.Value{Kind: pyval.KindRange, Obj: &pyval.Range{Start: start, Stop: start + 1<<30, Step: 1}}, nil
		}),
	})
}

func collectionsModule() pyval.Value {
	return module(map[string]pyval.Value{
		"Counter": bi("collections.Counter", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			d := pyval.NewDict()
			if len(a) == 1 {
				elems, err := elemsOf(a[0])
				if err != nil {
					return pyval.Value{}, err
				}
				for _, e := range elems {
					cur, _ := d.Get(e)
					n := int64(0)
					if cur.Kind == pyval.KindInt {
						n = cur.Int.Int64()
					}
					d.Set(e, pyval.Int(n+1))
				}
			}
			return pyval.Value{Kind: pyval.KindDict, Obj: d}, nil
		}),
	})
}

func randomModule() pyval.Value {
	return module(map[string]pyval.Value{
		"random": bi("random.random", func(_ []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return pyval.Float(rand.Float64()), nil
		}),
		"randint": bi("random.randint", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			lo, hi := a[0].Int.Int64(), a[1].Int.Int64()
			return pyval.Int(lo + rand.Int63n(hi-lo+1)), nil
		}),
		"choice": bi("random.choice", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			elems, err := elemsOf(a[0])
			if err != nil {
				return pyval.Value{}, err
			}
			if len(elems) == 0 {
				return pyval.Value{}, fmt.Errorf("IndexError: Cannot choose from an empty sequence")
			}
			return elems[rand.Intn(len(elems))], nil
		}),
	})
}

func stringModule() pyval.Value {
	return module(map[string]pyval.Value{
		"ascii_lowercase": pyval.Str("abcdefghijklmnopqrstuvwxyz"),
		"ascii_uppercase": pyval.Str("ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
		"digits":          pyval.Str("0123456789"),
		"punctuation":     pyval.Str("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"),
		"whitespace":      pyval.Str(" \t\n\r\v\f"),
	})
}

// RouteDirective is the payload of a "register-route" effect marker
// (spec.md §4.8): a web.get/post/put/delete call doesn't register the
// route itself (this package has no access to the Context that owns the
// route table, by design — see SetCaller's cycle-avoidance rationale
// above), it just builds this marker and returns it wrapped in a
// KindEffect value. pyeval's Call is what actually appends it to the
// route table, at the single choke-point every call passes through.
type RouteDirective struct {
	Method  string
	Path    string
	Handler pyval.Value
}

func webModule() pyval.Value {
	register := func(method string) pyval.Value {
		return bi("web."+method, func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			if len(a) < 2 {
				return pyval.Value{}, fmt.Errorf("web.%s(path, handler) takes 2 arguments", method)
			}
			return pyval.Value{Kind: pyval.KindEffect, Obj: &RouteDirective{
				Method:  method,
				Path:    a[0].Str,
				Handler: a[1],
			}}, nil
		})
	}
	return module(map[string]pyval.Value{
		"get":    register("GET"),
		"post":   register("POST"),
		"put":    register("PUT"),
		"delete": register("DELETE"),
		"patch":  register("PATCH"),
	})
}
