package value

import (
	"sort"
	"strings"

	"github.com/funvibe/duet/internal/diagnostics"
)

type mapKey struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

type mapEntry struct {
	key Value
	val Value
}

// Map is an immutable hash map keyed by number, string, bool or null.
type Map struct {
	entries map[mapKey]mapEntry
}

func NewMap() *Map { return &Map{entries: make(map[mapKey]mapEntry)} }

func (m *Map) Kind() Kind { return MapKind }
func (m *Map) Inspect() string {
	var sb strings.Builder
	writeNested(&sb, m, nil)
	return sb.String()
}

func (m *Map) Len() int { return len(m.entries) }

func hashKey(k Value) (mapKey, error) {
	switch key := k.(type) {
	case Number:
		f := float64(key)
		if f == 0 {
			f = 0 // fold -0 into 0
		}
		return mapKey{kind: NumberKind, num: f}, nil
	case String:
		return mapKey{kind: StringKind, str: string(key)}, nil
	case Bool:
		return mapKey{kind: BoolKind, b: bool(key)}, nil
	case Null, nil:
		return mapKey{kind: NullKind}, nil
	default:
		return mapKey{}, diagnostics.NewRuntimeError(
			"Cannot hash type %s - only number, string, bool, null are hashable", TypeName(k))
	}
}

// Get returns the value stored under k and whether it exists.
func (m *Map) Get(k Value) (Value, bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	e, ok := m.entries[hk]
	if !ok {
		return nil, false, nil
	}
	return e.val, true, nil
}

// With returns a copy of m with k bound to v.
func (m *Map) With(k, v Value) (*Map, error) {
	hk, err := hashKey(k)
	if err != nil {
		return nil, err
	}
	out := &Map{entries: make(map[mapKey]mapEntry, len(m.entries)+1)}
	for key, e := range m.entries {
		out.entries[key] = e
	}
	if k == nil {
		k = Null{}
	}
	out.entries[hk] = mapEntry{key: k, val: v}
	return out, nil
}

// Keys returns the keys in display order.
func (m *Map) Keys() []Value {
	entries := m.sortedEntries()
	keys := make([]Value, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

func (m *Map) sortedEntries() []mapEntry {
	type keyed struct {
		hk mapKey
		e  mapEntry
	}
	all := make([]keyed, 0, len(m.entries))
	for hk, e := range m.entries {
		all = append(all, keyed{hk, e})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].hk, all[j].hk
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		switch a.kind {
		case NumberKind:
			return a.num < b.num
		case StringKind:
			return a.str < b.str
		case BoolKind:
			return !a.b && b.b
		}
		return false
	})
	out := make([]mapEntry, len(all))
	for i, k := range all {
		out[i] = k.e
	}
	return out
}
