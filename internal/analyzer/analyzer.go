// Package analyzer runs the static checks both engines rely on: binding
// mutability, function placement, loop control placement, parameter lists
// and call arity limits.
// It does not resolve names for the engines; each engine resolves on its own
// and faults on unbound names at run time.
package analyzer

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/value"
)

// MaxParams is the most parameters a function may declare and the most
// arguments a call may pass; CALL encodes argc in one byte.
const MaxParams = 255

type bindingKind int

const (
	bindLet bindingKind = iota
	bindVar
	bindParam
	bindFunction
	bindBuiltin
)

func (k bindingKind) mutable() bool { return k == bindVar }

type scope struct {
	names map[string]bindingKind
	outer *scope
}

func newScope(outer *scope) *scope {
	return &scope{names: make(map[string]bindingKind), outer: outer}
}

func (s *scope) lookup(name string) (bindingKind, bool) {
	for cur := s; cur != nil; cur = cur.outer {
		if k, ok := cur.names[name]; ok {
			return k, true
		}
	}
	return 0, false
}

// Analyzer collects diagnostics for one program.
type Analyzer struct {
	globals *scope
	scope   *scope
	inFunc  bool
	loops   int // enclosing loops in the current function or <main>
	errors  []*diagnostics.DiagnosticError
}

func New() *Analyzer {
	globals := newScope(nil)
	for _, name := range value.BuiltinNames() {
		globals.names[name] = bindBuiltin
	}
	return &Analyzer{globals: globals, scope: globals}
}

// Analyze checks program and returns every diagnostic found.
func (a *Analyzer) Analyze(program *ast.Program) []*diagnostics.DiagnosticError {
	a.declareGlobals(program)
	for _, stmt := range program.Statements {
		a.statement(stmt, true)
	}
	return a.errors
}

func (a *Analyzer) addError(code diagnostics.ErrorCode, node ast.Statement, format string, args ...any) {
	a.errors = append(a.errors, diagnostics.NewError(code, node.GetToken(), format, args...))
}

func (a *Analyzer) addExprError(code diagnostics.ErrorCode, node ast.Expression, format string, args ...any) {
	a.errors = append(a.errors, diagnostics.NewError(code, node.GetToken(), format, args...))
}

// declareGlobals records every top-level binding up front. Functions are
// hoisted, and a function body may assign a global declared further down.
func (a *Analyzer) declareGlobals(program *ast.Program) {
	seen := make(map[string]bool)
	for _, stmt := range program.Statements {
		switch s := stmt.(type) {
		case *ast.FunctionStatement:
			name := s.Name.Value
			if seen[name] {
				a.addError(diagnostics.ErrA004, s, "duplicate function '%s'", name)
			}
			seen[name] = true
			a.globals.names[name] = bindFunction
		case *ast.LetStatement:
			// A later var makes the global assignable.
			if prev, ok := a.globals.names[s.Name.Value]; !ok || !prev.mutable() {
				a.globals.names[s.Name.Value] = letKind(s)
			}
		}
	}
}

func letKind(s *ast.LetStatement) bindingKind {
	if s.Mutable {
		return bindVar
	}
	return bindLet
}

func (a *Analyzer) statement(stmt ast.Statement, topLevel bool) {
	switch s := stmt.(type) {
	case *ast.FunctionStatement:
		if !topLevel || a.inFunc {
			a.addError(diagnostics.ErrA003, s, "function '%s' must be declared at top level", s.Name.Value)
			return
		}
		a.function(s)
	case *ast.LetStatement:
		a.expression(s.Value)
		if !topLevel || a.inFunc {
			a.scope.names[s.Name.Value] = letKind(s)
		}
	case *ast.AssignStatement:
		a.expression(s.Value)
		a.checkAssignable(s, s.Name.Value)
	case *ast.IndexAssignStatement:
		a.expression(s.Index)
		a.expression(s.Value)
		a.checkAssignable(s, s.Target.Value)
	case *ast.ExpressionStatement:
		a.expression(s.Expression)
	case *ast.BlockStatement:
		a.block(s)
	case *ast.IfStatement:
		a.expression(s.Condition)
		a.block(s.Consequence)
		if s.Alternative != nil {
			a.statement(s.Alternative, false)
		}
	case *ast.WhileStatement:
		a.expression(s.Condition)
		a.loops++
		a.block(s.Body)
		a.loops--
	case *ast.BreakStatement:
		if a.loops == 0 {
			a.addError(diagnostics.ErrA006, s, "break outside of a loop")
		}
	case *ast.ContinueStatement:
		if a.loops == 0 {
			a.addError(diagnostics.ErrA006, s, "continue outside of a loop")
		}
	case *ast.ReturnStatement:
		if !a.inFunc {
			a.addError(diagnostics.ErrA002, s, "return outside of a function")
		}
		if s.Value != nil {
			a.expression(s.Value)
		}
	}
}

func (a *Analyzer) block(b *ast.BlockStatement) {
	prev := a.scope
	a.scope = newScope(prev)
	defer func() { a.scope = prev }()
	for _, stmt := range b.Statements {
		a.statement(stmt, false)
	}
}

func (a *Analyzer) function(fn *ast.FunctionStatement) {
	if len(fn.Parameters) > MaxParams {
		a.addError(diagnostics.ErrA005, fn, "function '%s' declares %d parameters, the limit is %d",
			fn.Name.Value, len(fn.Parameters), MaxParams)
	}

	prevScope, prevIn, prevLoops := a.scope, a.inFunc, a.loops
	a.scope = newScope(a.globals)
	a.inFunc = true
	a.loops = 0
	defer func() { a.scope, a.inFunc, a.loops = prevScope, prevIn, prevLoops }()

	for _, p := range fn.Parameters {
		if _, dup := a.scope.names[p.Name.Value]; dup {
			a.errors = append(a.errors, diagnostics.NewError(diagnostics.ErrA004, p.Token,
				"duplicate parameter '%s' in function '%s'", p.Name.Value, fn.Name.Value))
			continue
		}
		a.scope.names[p.Name.Value] = bindParam
	}
	for _, stmt := range fn.Body.Statements {
		a.statement(stmt, false)
	}
}

func (a *Analyzer) checkAssignable(stmt ast.Statement, name string) {
	kind, ok := a.scope.lookup(name)
	if !ok {
		a.addError(diagnostics.ErrA001, stmt, "Cannot assign to undeclared variable '%s'", name)
		return
	}
	if !kind.mutable() {
		a.addError(diagnostics.ErrA001, stmt, "Cannot assign to immutable variable '%s'", name)
	}
}

func (a *Analyzer) expression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			a.expression(el)
		}
	case *ast.PrefixExpression:
		a.expression(e.Right)
	case *ast.InfixExpression:
		a.expression(e.Left)
		a.expression(e.Right)
	case *ast.IndexExpression:
		a.expression(e.Left)
		a.expression(e.Index)
	case *ast.CallExpression:
		a.expression(e.Function)
		if len(e.Arguments) > MaxParams {
			a.addExprError(diagnostics.ErrA005, e, "call passes %d arguments, the limit is %d",
				len(e.Arguments), MaxParams)
		}
		for _, arg := range e.Arguments {
			a.expression(arg)
		}
	}
}
