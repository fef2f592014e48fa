package evaluator

import "github.com/funvibe/duet/internal/value"

// binding is one named slot. consumed is set when the binding was passed to
// an owning parameter in a debug run; assignment clears it.
type binding struct {
	val      value.Value
	consumed bool
}

// Environment is one lexical scope. The global environment has no outer;
// every call gets a fresh environment enclosed by the globals and every
// block nests inside its parent.
type Environment struct {
	store map[string]*binding
	outer *Environment
}

func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]*binding)}
}

func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

// IsGlobal reports whether e is the outermost scope.
func (e *Environment) IsGlobal() bool { return e.outer == nil }

// lookup finds the binding for name and the scope that holds it.
func (e *Environment) lookup(name string) (*binding, *Environment) {
	for env := e; env != nil; env = env.outer {
		if b, ok := env.store[name]; ok {
			return b, env
		}
	}
	return nil, nil
}

func (e *Environment) Get(name string) (value.Value, bool) {
	b, _ := e.lookup(name)
	if b == nil {
		return nil, false
	}
	return b.val, true
}

// Define creates or replaces name in this scope, reviving it.
func (e *Environment) Define(name string, val value.Value) {
	if b, ok := e.store[name]; ok {
		b.val = val
		b.consumed = false
		return
	}
	e.store[name] = &binding{val: val}
}

// Update assigns to the nearest existing binding and reports the scope it
// lives in, or nil when name is unbound.
func (e *Environment) Update(name string, val value.Value) *Environment {
	b, env := e.lookup(name)
	if b == nil {
		return nil
	}
	b.val = val
	b.consumed = false
	return env
}
