package evaluator

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/value"
)

// evalCall evaluates the callee, then each argument left to right, checking
// ownership as soon as an argument is known, then performs the call.
func (e *Evaluator) evalCall(node *ast.CallExpression, env *Environment) (value.Value, error) {
	callee, err := e.evalExpression(node.Function, env)
	if err != nil {
		return nil, err
	}

	args := make([]value.Value, 0, len(node.Arguments))
	for i, argExpr := range node.Arguments {
		arg, err := e.evalExpression(argExpr, env)
		if err != nil {
			return nil, err
		}
		if e.Debug {
			if err := e.checkArg(callee, i, argExpr, arg, env); err != nil {
				return nil, err
			}
		}
		args = append(args, arg)
	}

	fn, ok := callee.(*value.Function)
	if !ok {
		return nil, e.raise(value.NotCallable(), node.Token)
	}
	if fn.IsBuiltin() {
		res, err := value.CallBuiltin(fn, &value.CallEnv{Out: e.Out}, args)
		if err != nil {
			return nil, e.raise(err, node.Token)
		}
		return res, nil
	}
	if len(args) != fn.Arity {
		return nil, e.raise(value.ArityError(fn, len(args)), node.Token)
	}
	if len(e.CallStack)-1 >= e.MaxCallDepth {
		return nil, e.raise(value.CallDepthExceeded(e.MaxCallDepth), node.Token)
	}
	if err := e.tick(); err != nil {
		return nil, err
	}

	e.frame().Line = node.Token.Line
	return e.applyFunction(fn, args)
}

// applyFunction runs a user function in a fresh environment enclosed by the
// globals. Falling off the end returns null.
func (e *Evaluator) applyFunction(fn *value.Function, args []value.Value) (value.Value, error) {
	if fn.Body == nil {
		return nil, diagnostics.NewRuntimeError("function %s has no body", fn.Name)
	}
	fnEnv := NewEnclosedEnvironment(e.GlobalEnv)
	for i, name := range fn.ParamNames {
		fnEnv.Define(name, args[i])
	}

	e.CallStack = append(e.CallStack, CallFrame{Name: fn.Name})
	ret, fl, err := e.execStatements(fn.Body.Body.Statements, fnEnv)
	e.CallStack = e.CallStack[:len(e.CallStack)-1]

	if err != nil {
		return nil, err
	}
	if fl != flowReturn || ret == nil {
		return value.Null{}, nil
	}
	return ret, nil
}

// checkArg applies the ownership contract to argument i of a call to callee.
// Builtins and arguments past the parameter list are not checked.
func (e *Evaluator) checkArg(callee value.Value, i int, argExpr ast.Expression, arg value.Value, env *Environment) error {
	fn, ok := callee.(*value.Function)
	if !ok || fn.IsBuiltin() || i >= fn.Arity {
		return nil
	}
	mode := fn.ParamMode(i)
	_, isShared := arg.(*value.Shared)
	tok := argExpr.GetToken()

	switch mode {
	case ownership.Shared:
		if !isShared {
			return e.raise(diagnostics.NewSharedViolation(fn.ParamName(i), value.TypeName(arg)), tok)
		}
	case ownership.Own, ownership.Borrow:
		if isShared {
			e.advisories = append(e.advisories, diagnostics.NewAdvisory(fn.Name, fn.ParamName(i), mode, tok.Line, tok.Column))
		}
	}

	if mode == ownership.Own {
		if ident, ok := argExpr.(*ast.Identifier); ok {
			e.consume(ident, env)
		}
	}
	return nil
}
