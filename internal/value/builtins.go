package value

import (
	"fmt"
	"sort"

	"github.com/funvibe/duet/internal/config"
)

// Builtins are the functions pre-bound in the global scope of both engines.
// The same *Function values are used by the VM and the interpreter so that
// identity comparisons agree.
var Builtins = map[string]*Function{}

func init() {
	register(config.PrintFuncName, 1, builtinPrint)
	register(config.LenFuncName, 1, builtinLen)
	register(config.StrFuncName, 1, builtinStr)
	register(config.TypeOfFuncName, 1, builtinTypeOf)
	register(config.PushFuncName, 2, builtinPush)
	register(config.ShareFuncName, 1, builtinShare)
	register(config.ShareGetFuncName, 1, builtinShareGet)
	register(config.ShareSetFuncName, 2, builtinShareSet)
	register(config.HashMapFuncName, 0, builtinHashMap)
	register(config.MapPutFuncName, 3, builtinMapPut)
	register(config.MapGetFuncName, 2, builtinMapGet)
	register(config.MapHasFuncName, 2, builtinMapHas)
	register(config.MapKeysFuncName, 1, builtinMapKeys)
}

func register(name string, arity int, fn BuiltinFn) {
	Builtins[name] = &Function{Name: name, Arity: arity, Builtin: fn}
}

// BuiltinNames returns the builtin names in a stable order.
func BuiltinNames() []string {
	names := make([]string, 0, len(Builtins))
	for name := range Builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallBuiltin checks arity and invokes fn.
func CallBuiltin(fn *Function, env *CallEnv, args []Value) (Value, error) {
	if len(args) != fn.Arity {
		return nil, ArityError(fn, len(args))
	}
	return fn.Builtin(env, args)
}

func expect[T Value](fn string, v Value, want Kind) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, typeError("%s expects %s, got %s", fn, article(want), TypeName(v))
	}
	return t, nil
}

func article(k Kind) string {
	switch k {
	case ArrayKind:
		return "an array"
	case SharedKind:
		return "a shared value"
	default:
		return "a " + k.String()
	}
}

func builtinPrint(env *CallEnv, args []Value) (Value, error) {
	if env != nil && env.Out != nil {
		fmt.Fprintln(env.Out, Display(args[0]))
	}
	return Null{}, nil
}

// Display renders v for print and str.
func Display(v Value) string {
	if v == nil {
		return "null"
	}
	return v.Inspect()
}

func builtinLen(_ *CallEnv, args []Value) (Value, error) {
	switch v := args[0].(type) {
	case String:
		return Number(len([]rune(string(v)))), nil
	case *Array:
		return Number(len(v.Elements)), nil
	case *Map:
		return Number(v.Len()), nil
	}
	return nil, typeError("len expects a string, array or map, got %s", TypeName(args[0]))
}

func builtinStr(_ *CallEnv, args []Value) (Value, error) {
	return String(Display(args[0])), nil
}

func builtinTypeOf(_ *CallEnv, args []Value) (Value, error) {
	return String(TypeName(args[0])), nil
}

func builtinPush(_ *CallEnv, args []Value) (Value, error) {
	arr, err := expect[*Array]("push", args[0], ArrayKind)
	if err != nil {
		return nil, err
	}
	elems := make([]Value, len(arr.Elements), len(arr.Elements)+1)
	copy(elems, arr.Elements)
	return NewArray(append(elems, args[1])), nil
}

func builtinShare(_ *CallEnv, args []Value) (Value, error) {
	return NewShared(args[0]), nil
}

func builtinShareGet(_ *CallEnv, args []Value) (Value, error) {
	s, err := expect[*Shared]("shareGet", args[0], SharedKind)
	if err != nil {
		return nil, err
	}
	return s.Inner, nil
}

func builtinShareSet(_ *CallEnv, args []Value) (Value, error) {
	s, err := expect[*Shared]("shareSet", args[0], SharedKind)
	if err != nil {
		return nil, err
	}
	s.Inner = args[1]
	return Null{}, nil
}

func builtinHashMap(_ *CallEnv, _ []Value) (Value, error) {
	return NewMap(), nil
}

func builtinMapPut(_ *CallEnv, args []Value) (Value, error) {
	m, err := expect[*Map]("mapPut", args[0], MapKind)
	if err != nil {
		return nil, err
	}
	return m.With(args[1], args[2])
}

func builtinMapGet(_ *CallEnv, args []Value) (Value, error) {
	m, err := expect[*Map]("mapGet", args[0], MapKind)
	if err != nil {
		return nil, err
	}
	v, ok, err := m.Get(args[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return Null{}, nil
	}
	return v, nil
}

func builtinMapHas(_ *CallEnv, args []Value) (Value, error) {
	m, err := expect[*Map]("mapHas", args[0], MapKind)
	if err != nil {
		return nil, err
	}
	_, ok, err := m.Get(args[1])
	if err != nil {
		return nil, err
	}
	return Bool(ok), nil
}

func builtinMapKeys(_ *CallEnv, args []Value) (Value, error) {
	m, err := expect[*Map]("mapKeys", args[0], MapKind)
	if err != nil {
		return nil, err
	}
	return NewArray(m.Keys()), nil
}
