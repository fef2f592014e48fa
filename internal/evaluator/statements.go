package evaluator

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/token"
	"github.com/funvibe/duet/internal/value"
)

// flow is how a statement finished.
type flow int

const (
	flowNormal flow = iota
	flowReturn
	flowBreak
	flowContinue
)

// execStatement runs one statement. A return statement finishes with
// flowReturn and ret its value; break and continue unwind to the innermost
// loop.
func (e *Evaluator) execStatement(stmt ast.Statement, env *Environment) (ret value.Value, fl flow, err error) {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		v, err := e.evalExpression(s.Value, env)
		if err != nil {
			return nil, flowNormal, err
		}
		env.Define(s.Name.Value, v)
		if env.IsGlobal() {
			delete(e.frame().consumedGlobals, s.Name.Value)
		}
		return nil, flowNormal, nil

	case *ast.AssignStatement:
		return nil, flowNormal, e.execAssign(s, env)

	case *ast.IndexAssignStatement:
		return nil, flowNormal, e.execIndexAssign(s, env)

	case *ast.ExpressionStatement:
		_, err := e.evalExpression(s.Expression, env)
		return nil, flowNormal, err

	case *ast.BlockStatement:
		return e.execBlock(s, env)

	case *ast.IfStatement:
		return e.execIf(s, env)

	case *ast.WhileStatement:
		return e.execWhile(s, env)

	case *ast.BreakStatement:
		return nil, flowBreak, nil

	case *ast.ContinueStatement:
		return nil, flowContinue, nil

	case *ast.ReturnStatement:
		if s.Value == nil {
			return value.Null{}, flowReturn, nil
		}
		v, err := e.evalExpression(s.Value, env)
		if err != nil {
			return nil, flowNormal, err
		}
		return v, flowReturn, nil

	case *ast.FunctionStatement:
		return nil, flowNormal, e.raise(diagnostics.NewRuntimeError("function %s must be declared at top level", s.Name.Value), s.Token)
	}
	return nil, flowNormal, e.raise(diagnostics.NewRuntimeError("unsupported statement %T", stmt), stmt.GetToken())
}

// execBlock runs b in a new scope nested in env.
func (e *Evaluator) execBlock(b *ast.BlockStatement, env *Environment) (value.Value, flow, error) {
	return e.execStatements(b.Statements, NewEnclosedEnvironment(env))
}

func (e *Evaluator) execStatements(stmts []ast.Statement, env *Environment) (value.Value, flow, error) {
	for _, stmt := range stmts {
		ret, fl, err := e.execStatement(stmt, env)
		if err != nil || fl != flowNormal {
			return ret, fl, err
		}
	}
	return nil, flowNormal, nil
}

// execAssign stores into a name. A compound x op= v reads x before
// evaluating v.
func (e *Evaluator) execAssign(s *ast.AssignStatement, env *Environment) error {
	var old value.Value
	if s.Operator != "" {
		var err error
		if old, err = e.lookupName(s.Name.Value, env); err != nil {
			return e.raise(err, s.Token)
		}
	}
	v, err := e.evalExpression(s.Value, env)
	if err != nil {
		return err
	}
	if s.Operator != "" {
		if v, err = e.applyOperator(s.Operator, old, v, s.Token); err != nil {
			return err
		}
	}
	e.storeName(s.Name.Value, v, env)
	return nil
}

// execIndexAssign reads the target, rebuilds it with the element replaced
// and stores it back. A compound xs[i] op= v reads the element after the
// index and before v.
func (e *Evaluator) execIndexAssign(s *ast.IndexAssignStatement, env *Environment) error {
	container, err := e.lookupName(s.Target.Value, env)
	if err != nil {
		return e.raise(err, s.Token)
	}
	idx, err := e.evalExpression(s.Index, env)
	if err != nil {
		return err
	}
	var old value.Value
	if s.Operator != "" {
		if old, err = value.Index(container, idx); err != nil {
			return e.raise(err, s.Token)
		}
	}
	v, err := e.evalExpression(s.Value, env)
	if err != nil {
		return err
	}
	if s.Operator != "" {
		if v, err = e.applyOperator(s.Operator, old, v, s.Token); err != nil {
			return err
		}
	}
	updated, err := value.SetIndex(container, idx, v)
	if err != nil {
		return e.raise(err, s.Token)
	}
	e.storeName(s.Target.Value, updated, env)
	return nil
}

// applyOperator combines the old and new values of a compound assignment.
func (e *Evaluator) applyOperator(op string, old, v value.Value, tok token.Token) (value.Value, error) {
	var res value.Value
	var err error
	if op == "+" {
		res, err = value.Add(old, v)
	} else {
		res, err = value.Arithmetic(op, old, v)
	}
	if err != nil {
		return nil, e.raise(err, tok)
	}
	return res, nil
}

func (e *Evaluator) execIf(s *ast.IfStatement, env *Environment) (value.Value, flow, error) {
	ok, err := e.evalCondition(s.Condition, env, s)
	if err != nil {
		return nil, flowNormal, err
	}
	if ok {
		return e.execBlock(s.Consequence, env)
	}
	if s.Alternative != nil {
		return e.execStatement(s.Alternative, env)
	}
	return nil, flowNormal, nil
}

func (e *Evaluator) execWhile(s *ast.WhileStatement, env *Environment) (value.Value, flow, error) {
	for {
		if err := e.tick(); err != nil {
			return nil, flowNormal, err
		}
		ok, err := e.evalCondition(s.Condition, env, s)
		if err != nil {
			return nil, flowNormal, err
		}
		if !ok {
			return nil, flowNormal, nil
		}
		ret, fl, err := e.execBlock(s.Body, env)
		if err != nil {
			return nil, flowNormal, err
		}
		switch fl {
		case flowReturn:
			return ret, fl, nil
		case flowBreak:
			return nil, flowNormal, nil
		}
	}
}

// evalCondition evaluates a branch condition. Type faults are reported at
// the statement or operator that branches.
func (e *Evaluator) evalCondition(cond ast.Expression, env *Environment, at ast.TokenProvider) (bool, error) {
	v, err := e.evalExpression(cond, env)
	if err != nil {
		return false, err
	}
	ok, err := value.Condition(v)
	if err != nil {
		return false, e.raise(err, at.GetToken())
	}
	return ok, nil
}
