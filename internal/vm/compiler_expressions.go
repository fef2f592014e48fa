package vm

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/value"
)

var binaryOps = map[string]Opcode{
	"+":  OP_ADD,
	"-":  OP_SUB,
	"*":  OP_MUL,
	"/":  OP_DIV,
	"%":  OP_MOD,
	"==": OP_EQUAL,
	"!=": OP_NOT_EQUAL,
	"<":  OP_LESS,
	"<=": OP_LESS_EQUAL,
	">":  OP_GREATER,
	">=": OP_GREATER_EQUAL,
}

func (c *Compiler) compileExpression(expr ast.Expression) {
	c.setToken(expr.GetToken())
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.emitConstant(value.Number(e.Value))
	case *ast.StringLiteral:
		c.emitConstant(value.String(e.Value))
	case *ast.BooleanLiteral:
		if e.Value {
			c.emit(OP_TRUE)
		} else {
			c.emit(OP_FALSE)
		}
	case *ast.NullLiteral:
		c.emit(OP_NULL)
	case *ast.Identifier:
		c.emitLoad(e.Value)
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.setToken(e.Token)
		if len(e.Elements) > MaxJump {
			c.addError("array literal too large (%d elements)", len(e.Elements))
			return
		}
		c.emitU16(OP_ARRAY, len(e.Elements))
	case *ast.PrefixExpression:
		c.compileExpression(e.Right)
		c.setToken(e.Token)
		switch e.Operator {
		case "-":
			c.emit(OP_NEGATE)
		case "!":
			c.emit(OP_NOT)
		default:
			c.addError("unknown prefix operator %s", e.Operator)
		}
	case *ast.InfixExpression:
		c.compileInfix(e)
	case *ast.IndexExpression:
		c.compileExpression(e.Left)
		c.compileExpression(e.Index)
		c.setToken(e.Token)
		c.emit(OP_GET_INDEX)
	case *ast.CallExpression:
		c.compileCall(e)
	default:
		c.addError("unsupported expression %T", expr)
	}
}

func (c *Compiler) compileInfix(e *ast.InfixExpression) {
	switch e.Operator {
	case "&&":
		c.compileAnd(e)
		return
	case "||":
		c.compileOr(e)
		return
	}
	op, ok := binaryOps[e.Operator]
	if !ok {
		c.addError("unknown operator %s", e.Operator)
		return
	}
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	c.setToken(e.Token)
	c.emit(op)
}

// compileAnd lowers a && b to
//
//	a; JUMP_IF_FALSE Lf; b; JUMP_IF_FALSE Lf; TRUE; JUMP Lend; Lf: FALSE; Lend:
//
// Both operands must be bool; the result is always a fresh bool.
func (c *Compiler) compileAnd(e *ast.InfixExpression) {
	c.compileExpression(e.Left)
	c.setToken(e.Token)
	leftFalse := c.emitJump(OP_JUMP_IF_FALSE)
	c.compileExpression(e.Right)
	c.setToken(e.Token)
	rightFalse := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_TRUE)
	end := c.emitJump(OP_JUMP)
	c.patchJump(leftFalse)
	c.patchJump(rightFalse)
	c.emit(OP_FALSE)
	c.patchJump(end)
}

// compileOr lowers a || b to
//
//	a; JUMP_IF_FALSE Lr; TRUE; JUMP Lend;
//	Lr: b; JUMP_IF_FALSE Lf; TRUE; JUMP Lend; Lf: FALSE; Lend:
func (c *Compiler) compileOr(e *ast.InfixExpression) {
	c.compileExpression(e.Left)
	c.setToken(e.Token)
	tryRight := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_TRUE)
	endLeft := c.emitJump(OP_JUMP)
	c.patchJump(tryRight)
	c.compileExpression(e.Right)
	c.setToken(e.Token)
	rightFalse := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_TRUE)
	endRight := c.emitJump(OP_JUMP)
	c.patchJump(rightFalse)
	c.emit(OP_FALSE)
	c.patchJump(endLeft)
	c.patchJump(endRight)
}

// compileCall: callee; arg0 [CHECK_ARG 0]; arg1 [CHECK_ARG 1]; ...; CALL argc
func (c *Compiler) compileCall(e *ast.CallExpression) {
	c.compileExpression(e.Function)
	if len(e.Arguments) > MaxArgs {
		c.setToken(e.Token)
		c.addError("too many arguments (%d, limit %d)", len(e.Arguments), MaxArgs)
		return
	}
	for i, arg := range e.Arguments {
		c.compileExpression(arg)
		if c.debug {
			c.setToken(arg.GetToken())
			origin, operand := c.argOrigin(arg)
			c.emitCheckArg(i, origin, operand)
		}
	}
	c.setToken(e.Token)
	c.emitByte(OP_CALL, byte(len(e.Arguments)))
}

// argOrigin classifies an argument for ownership checks: bare identifiers
// carry their local slot or global name, anything else has no origin.
func (c *Compiler) argOrigin(arg ast.Expression) (byte, int) {
	ident, ok := arg.(*ast.Identifier)
	if !ok {
		return OriginNone, 0
	}
	if slot := c.resolveLocal(ident.Value); slot >= 0 {
		return OriginLocal, slot
	}
	return OriginGlobal, c.nameConstant(ident.Value)
}
