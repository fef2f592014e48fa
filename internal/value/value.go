// Package value defines the runtime values shared by the bytecode VM and the
// tree-walking interpreter, together with the operations whose results and
// fault texts both engines must agree on.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the closed set of value kinds.
type Kind uint8

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	ArrayKind
	MapKind
	FunctionKind
	SharedKind
)

// String returns the user-facing type name.
func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "bool"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	case MapKind:
		return "map"
	case FunctionKind:
		return "function"
	case SharedKind:
		return "shared"
	default:
		return "unknown"
	}
}

// Value is implemented by every runtime value.
type Value interface {
	Kind() Kind
	// Inspect renders the value the way print shows it.
	Inspect() string
}

type Number float64

func (n Number) Kind() Kind      { return NumberKind }
func (n Number) Inspect() string { return FormatNumber(float64(n)) }

type Bool bool

func (b Bool) Kind() Kind      { return BoolKind }
func (b Bool) Inspect() string { return strconv.FormatBool(bool(b)) }

type String string

func (s String) Kind() Kind      { return StringKind }
func (s String) Inspect() string { return string(s) }

type Null struct{}

func (Null) Kind() Kind      { return NullKind }
func (Null) Inspect() string { return "null" }

// Array is immutable once built; updates produce a new Array.
type Array struct {
	Elements []Value
}

func NewArray(elems []Value) *Array { return &Array{Elements: elems} }

func (a *Array) Kind() Kind { return ArrayKind }
func (a *Array) Inspect() string {
	var sb strings.Builder
	writeNested(&sb, a, nil)
	return sb.String()
}

// Shared is the one reference kind: a mutable cell that every holder sees.
type Shared struct {
	Inner Value
}

func NewShared(inner Value) *Shared { return &Shared{Inner: inner} }

func (s *Shared) Kind() Kind { return SharedKind }
func (s *Shared) Inspect() string {
	var sb strings.Builder
	writeNested(&sb, s, nil)
	return sb.String()
}

// TypeName returns the kind name of v; nil reads as null.
func TypeName(v Value) string {
	if v == nil {
		return NullKind.String()
	}
	return v.Kind().String()
}

// FormatNumber prints whole numbers without a fractional part.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// writeNested renders containers, quoting strings and cutting shared cycles.
func writeNested(sb *strings.Builder, v Value, seen map[*Shared]bool) {
	switch val := v.(type) {
	case String:
		sb.WriteString(strconv.Quote(string(val)))
	case *Array:
		sb.WriteByte('[')
		for i, el := range val.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeNested(sb, el, seen)
		}
		sb.WriteByte(']')
	case *Map:
		sb.WriteByte('{')
		for i, e := range val.sortedEntries() {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeNested(sb, e.key, seen)
			sb.WriteString(": ")
			writeNested(sb, e.val, seen)
		}
		sb.WriteByte('}')
	case *Shared:
		if seen[val] {
			sb.WriteString("shared(...)")
			return
		}
		if seen == nil {
			seen = make(map[*Shared]bool)
		}
		seen[val] = true
		sb.WriteString("shared(")
		writeNested(sb, val.Inner, seen)
		sb.WriteByte(')')
		delete(seen, val)
	case nil:
		sb.WriteString("null")
	default:
		sb.WriteString(v.Inspect())
	}
}
