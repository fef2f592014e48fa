package value

import (
	"io"

	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/ownership"
)

// CallEnv is what a builtin may touch of the engine calling it.
type CallEnv struct {
	Out io.Writer
}

// BuiltinFn implements a builtin. Arity has been checked by the caller.
type BuiltinFn func(env *CallEnv, args []Value) (Value, error)

// Function is the FunctionRef both engines call through. It is built once,
// by the compiler for the VM or from the declaration for the interpreter,
// and never mutated afterwards.
type Function struct {
	Name       string
	Arity      int
	Entry      int      // bytecode offset of the first instruction
	LocalCount int      // parameters plus every declared local
	LocalNames []string // slot index to binding name, for fault texts

	ParamNames      []string
	ParamOwnership  []ownership.Annotation
	ReturnOwnership ownership.Annotation

	Body    *ast.FunctionStatement // interpreter entry
	Builtin BuiltinFn
}

// NewUserFunction builds the interpreter's FunctionRef for a declaration.
// Entry and LocalCount stay zero: they only mean something for bytecode.
func NewUserFunction(decl *ast.FunctionStatement) *Function {
	return &Function{
		Name:            decl.Name.Value,
		Arity:           len(decl.Parameters),
		ParamNames:      decl.ParamNames(),
		ParamOwnership:  decl.ParamOwnership(),
		ReturnOwnership: decl.ReturnOwnership,
		Body:            decl,
	}
}

func (f *Function) Kind() Kind { return FunctionKind }

func (f *Function) Inspect() string {
	if f.IsBuiltin() {
		return "<builtin " + f.Name + ">"
	}
	return "<fn " + f.Name + ">"
}

func (f *Function) IsBuiltin() bool { return f.Builtin != nil }

// ParamMode returns the annotation of parameter i, None when out of range.
func (f *Function) ParamMode(i int) ownership.Annotation {
	if i < 0 || i >= len(f.ParamOwnership) {
		return ownership.None
	}
	return f.ParamOwnership[i]
}

// ParamName returns the name of parameter i, or a positional placeholder.
func (f *Function) ParamName(i int) string {
	if i >= 0 && i < len(f.ParamNames) {
		return f.ParamNames[i]
	}
	return "#" + FormatNumber(float64(i))
}

// LocalName returns the binding name of slot i.
func (f *Function) LocalName(i int) string {
	if i >= 0 && i < len(f.LocalNames) {
		return f.LocalNames[i]
	}
	return "#" + FormatNumber(float64(i))
}

// Signature renders the annotated signature shown by tooling.
func (f *Function) Signature() string {
	return ownership.Signature(f.Name, f.ParamNames, f.ParamOwnership, f.ReturnOwnership)
}
