package value

import (
	"math"

	"github.com/funvibe/duet/internal/diagnostics"
)

func typeError(format string, args ...any) *diagnostics.RuntimeError {
	return diagnostics.NewRuntimeError("Type error: "+format, args...)
}

func checkFinite(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, diagnostics.NewRuntimeError("Invalid numeric result")
	}
	return Number(f), nil
}

// Add implements `+` for numbers and strings.
func Add(a, b Value) (Value, error) {
	switch x := a.(type) {
	case Number:
		if y, ok := b.(Number); ok {
			return checkFinite(float64(x) + float64(y))
		}
	case String:
		if y, ok := b.(String); ok {
			return x + y, nil
		}
	}
	return nil, typeError("Invalid operands for +")
}

// Arithmetic implements `-`, `*`, `/` and `%`.
func Arithmetic(op string, a, b Value) (Value, error) {
	x, okA := a.(Number)
	y, okB := b.(Number)
	if !okA || !okB {
		return nil, typeError("Expected numbers for %s", op)
	}
	switch op {
	case "-":
		return checkFinite(float64(x) - float64(y))
	case "*":
		return checkFinite(float64(x) * float64(y))
	case "/":
		if y == 0 {
			return nil, diagnostics.NewRuntimeError("Division by zero")
		}
		return checkFinite(float64(x) / float64(y))
	case "%":
		if y == 0 {
			return nil, diagnostics.NewRuntimeError("Division by zero")
		}
		return checkFinite(math.Mod(float64(x), float64(y)))
	}
	return nil, typeError("unknown operator %s", op)
}

// Compare implements `<`, `<=`, `>` and `>=` over numbers.
func Compare(op string, a, b Value) (Value, error) {
	x, okA := a.(Number)
	y, okB := b.(Number)
	if !okA || !okB {
		return nil, typeError("Expected numbers for %s", op)
	}
	switch op {
	case "<":
		return Bool(x < y), nil
	case "<=":
		return Bool(x <= y), nil
	case ">":
		return Bool(x > y), nil
	case ">=":
		return Bool(x >= y), nil
	}
	return nil, typeError("unknown operator %s", op)
}

// Negate implements unary `-`.
func Negate(v Value) (Value, error) {
	n, ok := v.(Number)
	if !ok {
		return nil, typeError("Expected number for -")
	}
	return -n, nil
}

// Not implements `!`.
func Not(v Value) (Value, error) {
	b, ok := v.(Bool)
	if !ok {
		return nil, typeError("Expected bool for !")
	}
	return !b, nil
}

// Condition checks that v may drive a branch; only bools can.
func Condition(v Value) (bool, error) {
	b, ok := v.(Bool)
	if !ok {
		return false, typeError("Condition must be bool, got %s", TypeName(v))
	}
	return bool(b), nil
}

// Equal is structural for scalars, arrays and maps, and identity for
// functions and shared cells.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Null:
		_, ok := b.(Null)
		return ok
	case *Array:
		y, ok := b.(*Array)
		if !ok || len(x.Elements) != len(y.Elements) {
			return false
		}
		for i := range x.Elements {
			if !Equal(x.Elements[i], y.Elements[i]) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || len(x.entries) != len(y.entries) {
			return false
		}
		for k, e := range x.entries {
			other, ok := y.entries[k]
			if !ok || !Equal(e.val, other.val) {
				return false
			}
		}
		return true
	case *Function:
		y, ok := b.(*Function)
		return ok && x == y
	case *Shared:
		y, ok := b.(*Shared)
		return ok && x == y
	}
	return false
}

func arrayIndex(arr *Array, idx Value) (int, error) {
	n, ok := idx.(Number)
	if !ok || float64(n) != math.Trunc(float64(n)) {
		return 0, diagnostics.NewRuntimeError("Invalid index: expected number")
	}
	// Compared as floats: int(n) is undefined past the int64 range.
	if n < 0 || float64(n) >= float64(len(arr.Elements)) {
		return 0, diagnostics.NewRuntimeError("Array index out of bounds")
	}
	return int(n), nil
}

// Index implements `container[idx]`. Missing map keys read as null.
func Index(container, idx Value) (Value, error) {
	switch c := container.(type) {
	case *Array:
		i, err := arrayIndex(c, idx)
		if err != nil {
			return nil, err
		}
		return c.Elements[i], nil
	case *Map:
		v, ok, err := c.Get(idx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return Null{}, nil
		}
		return v, nil
	}
	return nil, typeError("Cannot index value of type %s", TypeName(container))
}

// SetIndex returns a copy of container with idx replaced by v.
func SetIndex(container, idx, v Value) (Value, error) {
	switch c := container.(type) {
	case *Array:
		i, err := arrayIndex(c, idx)
		if err != nil {
			return nil, err
		}
		elems := make([]Value, len(c.Elements))
		copy(elems, c.Elements)
		elems[i] = v
		return NewArray(elems), nil
	case *Map:
		return c.With(idx, v)
	}
	return nil, typeError("Cannot index value of type %s", TypeName(container))
}

// ArityError is the fault for a call with the wrong number of arguments.
func ArityError(fn *Function, got int) error {
	return diagnostics.NewRuntimeError("Function %s expects %d arguments, got %d", fn.Name, fn.Arity, got)
}

// NotCallable is the fault for calling a non-function value.
func NotCallable() error {
	return typeError("Cannot call non-function value")
}

// Undefined is the fault for reading an unbound name.
func Undefined(name string) error {
	return diagnostics.NewRuntimeError("Undefined variable: %s", name)
}

// CallDepthExceeded is the fault raised when nested calls pass the limit.
func CallDepthExceeded(limit int) error {
	err := diagnostics.NewRuntimeError("Stack overflow: maximum call depth %d exceeded", limit)
	err.Cause = diagnostics.ErrStackOverflow
	return err
}
