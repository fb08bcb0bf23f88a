package pyval

import (
	"math/big"

	"github.com/cespare/xxhash/v2"
)

// Dict is the insertion-ordered mapping with arbitrary hashable keys and
// Python cross-numeric key equality (1 == 1.0 == True all collide).
//
// please's asp.pyDict is a plain map[string]pyObject: string keys only,
// and its Keys() sorts alphabetically to get a stable iteration order
// since Go maps don't preserve one. spec.md requires true insertion
// order and arbitrary hashable keys, which that shape cannot express, so
// this is a from-scratch redesign: a hash-bucketed index over an
// append-only entry slice, tombstoning deleted slots rather than
// compacting so existing indices remain valid.
type Dict struct {
	entries []dictEntry
	index   map[uint64][]int // hash -> candidate entry indices
}

type dictEntry struct {
	key     Value
	value   Value
	deleted bool
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{index: map[uint64][]int{}}
}

// keyHash returns a hash that is stable across the numeric tower: an int,
// a float with no fractional part, and a bool representing the same
// mathematical value all hash identically so they land in the same
// bucket and keyEqual can decide true equality.
func keyHash(v Value) uint64 {
	switch v.Kind {
	case KindBool:
		if v.Bl {
			return xxhash.Sum64String("num:1")
		}
		return xxhash.Sum64String("num:0")
	case KindInt:
		return xxhash.Sum64String("num:" + v.Int.String())
	case KindFloat:
		if v.Flt == float64(int64(v.Flt)) {
			return xxhash.Sum64String("num:" + big.NewInt(int64(v.Flt)).String())
		}
		return xxhash.Sum64String("numf:" + big.NewFloat(v.Flt).String())
	case KindStr:
		return xxhash.Sum64String("str:" + v.Str)
	case KindNone:
		return xxhash.Sum64String("none")
	case KindTuple:
		h := xxhash.New()
		h.Write([]byte("tuple:"))
		for _, e := range v.Obj.(*Tuple).Elems {
			var buf [8]byte
			hv := keyHash(e)
			for i := 0; i < 8; i++ {
				buf[i] = byte(hv >> (8 * i))
			}
			h.Write(buf[:])
		}
		return h.Sum64()
	default:
		return xxhash.Sum64String(TypeName(v))
	}
}

// keyEqual implements Python's key-equality rule for dict/set membership:
// numerically equal values of different numeric kinds (1, 1.0, True) are
// the same key; otherwise structural equality for strings/tuples/None.
func keyEqual(a, b Value) bool {
	if isNumeric(a) && isNumeric(b) {
		return numEqual(a, b)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindStr:
		return a.Str == b.Str
	case KindNone:
		return true
	case KindTuple:
		ae, be := a.Obj.(*Tuple).Elems, b.Obj.(*Tuple).Elems
		if len(ae) != len(be) {
			return false
		}
		for i := range ae {
			if !keyEqual(ae[i], be[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isNumeric(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat || v.Kind == KindBool
}

func asFloat(v Value) float64 {
	switch v.Kind {
	case KindBool:
		if v.Bl {
			return 1
		}
		return 0
	case KindInt:
		f, _ := new(big.Float).SetInt(v.Int).Float64()
		return f
	case KindFloat:
		return v.Flt
	}
	return 0
}

func numEqual(a, b Value) bool {
	if a.Kind == KindFloat && b.Kind != KindFloat {
		return floatEqInt(a.Flt, asBigInt(b))
	}
	if b.Kind == KindFloat && a.Kind != KindFloat {
		return floatEqInt(b.Flt, asBigInt(a))
	}
	if a.Kind == KindFloat && b.Kind == KindFloat {
		return a.Flt == b.Flt
	}
	return asBigInt(a).Cmp(asBigInt(b)) == 0
}

func asBigInt(v Value) *big.Int {
	switch v.Kind {
	case KindBool:
		if v.Bl {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	case KindInt:
		return v.Int
	}
	return big.NewInt(0)
}

// HashValue exposes keyHash to callers outside this package (pybuiltin's
// hash()).
func HashValue(v Value) uint64 { return keyHash(v) }

func (d *Dict) find(key Value) int {
	h := keyHash(key)
	for _, idx := range d.index[h] {
		if !d.entries[idx].deleted && keyEqual(d.entries[idx].key, key) {
			return idx
		}
	}
	return -1
}

// Get returns the value for key, if present.
func (d *Dict) Get(key Value) (Value, bool) {
	if idx := d.find(key); idx >= 0 {
		return d.entries[idx].value, true
	}
	return Value{}, false
}

// GetStr is a convenience accessor for the common string-key case (class
// attribute tables, instance attribute tables).
func (d *Dict) GetStr(name string) (Value, bool) {
	return d.Get(Str(name))
}

// Set inserts or updates key, preserving original insertion position on
// update (spec.md §3.3: "dict preserves insertion order; re-assigning an
// existing key does not move it").
func (d *Dict) Set(key, value Value) {
	if idx := d.find(key); idx >= 0 {
		d.entries[idx].value = value
		return
	}
	h := keyHash(key)
	idx := len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value})
	d.index[h] = append(d.index[h], idx)
}

// SetStr is the string-key convenience form of Set.
func (d *Dict) SetStr(name string, value Value) { d.Set(Str(name), value) }

// Delete removes key if present, reporting whether it was found.
func (d *Dict) Delete(key Value) bool {
	idx := d.find(key)
	if idx < 0 {
		return false
	}
	d.entries[idx].deleted = true
	return true
}

// Len reports the number of live entries.
func (d *Dict) Len() int {
	n := 0
	for _, e := range d.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Keys returns live keys in insertion order.
func (d *Dict) Keys() []Value {
	out := make([]Value, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.deleted {
			out = append(out, e.key)
		}
	}
	return out
}

// Values returns live values in insertion order.
func (d *Dict) Values() []Value {
	out := make([]Value, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.deleted {
			out = append(out, e.value)
		}
	}
	return out
}

// Items returns live (key, value) pairs in insertion order.
func (d *Dict) Items() []DictPair {
	out := make([]DictPair, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.deleted {
			out = append(out, DictPair{Key: e.key, Value: e.value})
		}
	}
	return out
}

// DictPair is one (key, value) pair returned by Dict.Items.
type DictPair struct {
	Key   Value
	Value Value
}

// KeysAsStrings returns the string-valued keys in insertion order,
// skipping any non-string keys; used to build "did you mean" candidate
// lists for attribute lookups.
func (d *Dict) KeysAsStrings() []string {
	out := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.deleted && e.key.Kind == KindStr {
			out = append(out, e.key.Str)
		}
	}
	return out
}

// Clone returns a shallow copy with its own backing storage.
func (d *Dict) Clone() *Dict {
	nd := NewDict()
	for _, it := range d.Items() {
		nd.Set(it.Key, it.Value)
	}
	return nd
}

// Set is the unordered-semantics composite (iteration order here still
// follows insertion, which is an acceptable, deterministic superset of
// Python's unspecified-but-stable-per-run set order; spec.md leaves set
// iteration order unspecified).
type Set struct{ d *Dict }

// NewSet returns an empty set.
func NewSet() *Set { return &Set{d: NewDict()} }

func (s *Set) Add(v Value)            { s.d.Set(v, True) }
func (s *Set) Remove(v Value) bool    { return s.d.Delete(v) }
func (s *Set) Contains(v Value) bool  { _, ok := s.d.Get(v); return ok }
func (s *Set) Len() int               { return s.d.Len() }
func (s *Set) Elems() []Value         { return s.d.Keys() }
func (s *Set) Clone() *Set {
	ns := NewSet()
	for _, e := range s.Elems() {
		ns.Add(e)
	}
	return ns
}
