// Package evaluator is the tree-walking engine. It runs the analyzed AST
// directly over environments and reports the same results, faults and
// advisories as the bytecode VM.
package evaluator

import (
	"context"
	"io"
	"os"

	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/token"
	"github.com/funvibe/duet/internal/value"
)

// CallFrame represents a single frame in the call stack
type CallFrame struct {
	Name string
	// Line of the call this frame is currently making, for stack traces.
	Line int
	// consumedGlobals holds globals this frame passed to an owning
	// parameter. It dies with the frame.
	consumedGlobals map[string]bool
}

// contextCheckInterval is how many loop iterations and calls run between
// cancellation checks.
const contextCheckInterval = 1024

type Evaluator struct {
	// Context for cancellation
	Context context.Context

	Out io.Writer

	// Debug enables ownership enforcement.
	Debug bool

	// MaxCallDepth bounds nested user function calls.
	MaxCallDepth int

	GlobalEnv  *Environment
	CallStack  []CallFrame
	advisories []diagnostics.Advisory

	stepsSince int
}

func New() *Evaluator {
	return &Evaluator{
		Context:      context.Background(),
		Out:          os.Stdout,
		MaxCallDepth: config.DefaultMaxCallDepth,
	}
}

// Advisories returns the non-fatal ownership notes of the last run.
func (e *Evaluator) Advisories() []diagnostics.Advisory { return e.advisories }

// Global returns the current value of a global binding.
func (e *Evaluator) Global(name string) (value.Value, bool) {
	if e.GlobalEnv == nil {
		return nil, false
	}
	b, ok := e.GlobalEnv.store[name]
	if !ok {
		return nil, false
	}
	return b.val, true
}

// Run evaluates program from a fresh global environment. The result is the
// value of the final top-level statement when it is an expression
// statement, otherwise null.
func (e *Evaluator) Run(program *ast.Program) (value.Value, error) {
	if e.Context == nil {
		e.Context = context.Background()
	}
	if e.Out == nil {
		e.Out = io.Discard
	}
	if e.MaxCallDepth <= 0 {
		e.MaxCallDepth = config.DefaultMaxCallDepth
	}

	e.GlobalEnv = NewEnvironment()
	for name, fn := range value.Builtins {
		e.GlobalEnv.Define(name, fn)
	}
	e.CallStack = []CallFrame{{Name: config.MainFunctionName}}
	e.advisories = nil
	e.stepsSince = 0

	// Hoisting: every function is bound before any other statement runs.
	for _, decl := range program.Functions() {
		e.GlobalEnv.Define(decl.Name.Value, value.NewUserFunction(decl))
	}

	var result value.Value = value.Null{}
	n := len(program.Statements)
	for i, stmt := range program.Statements {
		if _, ok := stmt.(*ast.FunctionStatement); ok {
			continue
		}
		if es, ok := stmt.(*ast.ExpressionStatement); ok && i == n-1 {
			v, err := e.evalExpression(es.Expression, e.GlobalEnv)
			if err != nil {
				return nil, err
			}
			result = v
			continue
		}
		if _, _, err := e.execStatement(stmt, e.GlobalEnv); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (e *Evaluator) frame() *CallFrame {
	return &e.CallStack[len(e.CallStack)-1]
}

// tick counts one unit of work and checks for cancellation periodically.
func (e *Evaluator) tick() error {
	e.stepsSince++
	if e.stepsSince < contextCheckInterval {
		return nil
	}
	e.stepsSince = 0
	return e.Context.Err()
}

// raise attaches the faulting position and a stack trace to err.
func (e *Evaluator) raise(err error, tok token.Token) error {
	err = diagnostics.Locate(err, tok.Line, tok.Column)
	if rt, ok := diagnostics.AsRuntime(err); ok && rt.StackTrace == nil {
		rt.StackTrace = e.stackTrace(tok.Line)
	}
	return err
}

// stackTrace lists active frames, innermost first.
func (e *Evaluator) stackTrace(line int) []diagnostics.StackFrame {
	trace := make([]diagnostics.StackFrame, 0, len(e.CallStack))
	for i := len(e.CallStack) - 1; i >= 0; i-- {
		l := e.CallStack[i].Line
		if i == len(e.CallStack)-1 {
			l = line
		}
		trace = append(trace, diagnostics.StackFrame{Name: e.CallStack[i].Name, Line: l})
	}
	return trace
}

// readName resolves an identifier, faulting on consumed bindings.
func (e *Evaluator) readName(ident *ast.Identifier, env *Environment) (value.Value, error) {
	v, err := e.lookupName(ident.Value, env)
	if err != nil {
		return nil, e.raise(err, ident.Token)
	}
	return v, nil
}

// lookupName is readName without a position; the caller locates the fault.
func (e *Evaluator) lookupName(name string, env *Environment) (value.Value, error) {
	b, scope := env.lookup(name)
	if b == nil || scope.IsGlobal() {
		if e.frame().consumedGlobals[name] {
			return nil, diagnostics.NewMovedValue(name)
		}
		if b == nil {
			return nil, value.Undefined(name)
		}
		return b.val, nil
	}
	if b.consumed {
		return nil, diagnostics.NewMovedValue(name)
	}
	return b.val, nil
}

// storeName assigns to an existing binding. A name bound nowhere becomes a
// global, as SET_GLOBAL does.
func (e *Evaluator) storeName(name string, val value.Value, env *Environment) {
	scope := env.Update(name, val)
	if scope == nil {
		e.GlobalEnv.Define(name, val)
		scope = e.GlobalEnv
	}
	if scope.IsGlobal() {
		delete(e.frame().consumedGlobals, name)
	}
}

// consume marks the binding an identifier argument came from.
func (e *Evaluator) consume(ident *ast.Identifier, env *Environment) {
	b, scope := env.lookup(ident.Value)
	if b == nil || scope.IsGlobal() {
		f := e.frame()
		if f.consumedGlobals == nil {
			f.consumedGlobals = make(map[string]bool)
		}
		f.consumedGlobals[ident.Value] = true
		return
	}
	b.consumed = true
}
