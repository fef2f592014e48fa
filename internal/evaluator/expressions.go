package evaluator

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/value"
)

// binaryOps maps every non-logical infix operator to its value operation.
var binaryOps = map[string]func(a, b value.Value) (value.Value, error){
	"+": value.Add,
	"-": arith("-"),
	"*": arith("*"),
	"/": arith("/"),
	"%": arith("%"),
	"==": func(a, b value.Value) (value.Value, error) {
		return value.Bool(value.Equal(a, b)), nil
	},
	"!=": func(a, b value.Value) (value.Value, error) {
		return value.Bool(!value.Equal(a, b)), nil
	},
	"<":  compare("<"),
	"<=": compare("<="),
	">":  compare(">"),
	">=": compare(">="),
}

func arith(sym string) func(a, b value.Value) (value.Value, error) {
	return func(a, b value.Value) (value.Value, error) { return value.Arithmetic(sym, a, b) }
}

func compare(sym string) func(a, b value.Value) (value.Value, error) {
	return func(a, b value.Value) (value.Value, error) { return value.Compare(sym, a, b) }
}

func (e *Evaluator) evalExpression(expr ast.Expression, env *Environment) (value.Value, error) {
	switch node := expr.(type) {
	case *ast.NumberLiteral:
		return value.Number(node.Value), nil
	case *ast.StringLiteral:
		return value.String(node.Value), nil
	case *ast.BooleanLiteral:
		return value.Bool(node.Value), nil
	case *ast.NullLiteral:
		return value.Null{}, nil
	case *ast.Identifier:
		return e.readName(node, env)
	case *ast.ArrayLiteral:
		elems := make([]value.Value, 0, len(node.Elements))
		for _, el := range node.Elements {
			v, err := e.evalExpression(el, env)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return value.NewArray(elems), nil
	case *ast.PrefixExpression:
		return e.evalPrefix(node, env)
	case *ast.InfixExpression:
		return e.evalInfix(node, env)
	case *ast.IndexExpression:
		left, err := e.evalExpression(node.Left, env)
		if err != nil {
			return nil, err
		}
		idx, err := e.evalExpression(node.Index, env)
		if err != nil {
			return nil, err
		}
		v, err := value.Index(left, idx)
		if err != nil {
			return nil, e.raise(err, node.Token)
		}
		return v, nil
	case *ast.CallExpression:
		return e.evalCall(node, env)
	}
	return nil, e.raise(diagnostics.NewRuntimeError("unsupported expression %T", expr), expr.GetToken())
}

func (e *Evaluator) evalPrefix(node *ast.PrefixExpression, env *Environment) (value.Value, error) {
	right, err := e.evalExpression(node.Right, env)
	if err != nil {
		return nil, err
	}
	var res value.Value
	switch node.Operator {
	case "-":
		res, err = value.Negate(right)
	case "!":
		res, err = value.Not(right)
	default:
		err = diagnostics.NewRuntimeError("unknown prefix operator %s", node.Operator)
	}
	if err != nil {
		return nil, e.raise(err, node.Token)
	}
	return res, nil
}

func (e *Evaluator) evalInfix(node *ast.InfixExpression, env *Environment) (value.Value, error) {
	switch node.Operator {
	case "&&":
		left, err := e.evalCondition(node.Left, env, node)
		if err != nil || !left {
			return value.Bool(false), err
		}
		right, err := e.evalCondition(node.Right, env, node)
		return value.Bool(right), err
	case "||":
		left, err := e.evalCondition(node.Left, env, node)
		if err != nil {
			return nil, err
		}
		if left {
			return value.Bool(true), nil
		}
		right, err := e.evalCondition(node.Right, env, node)
		return value.Bool(right), err
	}

	op, ok := binaryOps[node.Operator]
	if !ok {
		return nil, e.raise(diagnostics.NewRuntimeError("unknown operator %s", node.Operator), node.Token)
	}
	left, err := e.evalExpression(node.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := e.evalExpression(node.Right, env)
	if err != nil {
		return nil, err
	}
	res, err := op(left, right)
	if err != nil {
		return nil, e.raise(err, node.Token)
	}
	return res, nil
}
