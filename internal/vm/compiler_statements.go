package vm

import (
	"github.com/funvibe/duet/internal/ast"
)

// compileStatements compiles a statement list. Statements after one that
// always returns are unreachable and are not emitted.
func (c *Compiler) compileStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		c.compileStatement(stmt)
		if terminates(stmt) {
			return
		}
	}
}

func (c *Compiler) compileStatement(stmt ast.Statement) {
	c.setToken(stmt.GetToken())
	switch s := stmt.(type) {
	case *ast.LetStatement:
		c.compileLetStatement(s)
	case *ast.AssignStatement:
		c.compileAssign(s)
	case *ast.IndexAssignStatement:
		c.compileIndexAssign(s)
	case *ast.BreakStatement:
		c.compileBreak()
	case *ast.ContinueStatement:
		c.compileContinue()
	case *ast.ExpressionStatement:
		c.compileExpression(s.Expression)
		c.emit(OP_POP)
	case *ast.BlockStatement:
		c.compileBlock(s)
	case *ast.IfStatement:
		c.compileIfStatement(s)
	case *ast.WhileStatement:
		c.compileWhileStatement(s)
	case *ast.ReturnStatement:
		if s.Value != nil {
			c.compileExpression(s.Value)
			c.setToken(s.Token)
		} else {
			c.emit(OP_NULL)
		}
		c.emit(OP_RETURN)
	case *ast.FunctionStatement:
		// Rejected by the analyzer below top level; top-level ones are hoisted.
		c.addError("function %s must be declared at top level", s.Name.Value)
	default:
		c.addError("unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileLetStatement(s *ast.LetStatement) {
	// The initializer is compiled before the name is declared so that
	// `let x = x;` reads the outer binding.
	c.compileExpression(s.Value)
	c.setToken(s.Token)
	if c.atGlobalScope() {
		c.emitU16(OP_SET_GLOBAL, c.nameConstant(s.Name.Value))
	} else {
		c.emitU16(OP_SET_LOCAL, c.declareLocal(s.Name.Value))
	}
	c.emit(OP_POP)
}

// compileAssign: value; store; POP. A compound x op= v loads x first:
// load x; v; op; store; POP
func (c *Compiler) compileAssign(s *ast.AssignStatement) {
	if s.Operator == "" {
		c.compileExpression(s.Value)
	} else {
		c.emitLoad(s.Name.Value)
		c.compileExpression(s.Value)
		c.setToken(s.Token)
		c.emitOperator(s.Operator)
	}
	c.setToken(s.Token)
	c.emitStore(s.Name.Value)
	c.emit(OP_POP)
}

// compileIndexAssign: load target; index; value; SET_INDEX; store target; POP
//
// A compound xs[i] op= v reads the element through a copy of the target and
// index, so the index expression runs once:
// load target; index; DUP2; GET_INDEX; v; op; SET_INDEX; store target; POP
func (c *Compiler) compileIndexAssign(s *ast.IndexAssignStatement) {
	c.emitLoad(s.Target.Value)
	c.compileExpression(s.Index)
	if s.Operator != "" {
		c.setToken(s.Token)
		c.emit(OP_DUP2)
		c.emit(OP_GET_INDEX)
	}
	c.compileExpression(s.Value)
	c.setToken(s.Token)
	if s.Operator != "" {
		c.emitOperator(s.Operator)
	}
	c.emit(OP_SET_INDEX)
	c.emitStore(s.Target.Value)
	c.emit(OP_POP)
}

func (c *Compiler) emitOperator(operator string) {
	op, ok := binaryOps[operator]
	if !ok {
		c.addError("unknown operator %s", operator)
		return
	}
	c.emit(op)
}

func (c *Compiler) compileBreak() {
	if len(c.fn.loops) == 0 {
		c.addError("break outside of a loop")
		return
	}
	loop := c.fn.loops[len(c.fn.loops)-1]
	loop.breaks = append(loop.breaks, c.emitJump(OP_JUMP))
}

func (c *Compiler) compileContinue() {
	if len(c.fn.loops) == 0 {
		c.addError("continue outside of a loop")
		return
	}
	c.emitLoop(c.fn.loops[len(c.fn.loops)-1].start)
}

func (c *Compiler) compileBlock(b *ast.BlockStatement) {
	c.beginScope()
	c.compileStatements(b.Statements)
	c.endScope()
}

func (c *Compiler) compileIfStatement(s *ast.IfStatement) {
	c.compileExpression(s.Condition)
	c.setToken(s.Token)
	elseJump := c.emitJump(OP_JUMP_IF_FALSE)

	c.compileBlock(s.Consequence)

	if s.Alternative == nil {
		c.patchJump(elseJump)
		return
	}

	// A consequence that always returns needs no jump over the alternative.
	endJump := -1
	if !blockTerminates(s.Consequence) {
		c.setToken(s.Token)
		endJump = c.emitJump(OP_JUMP)
	}
	c.patchJump(elseJump)
	c.compileStatement(s.Alternative)
	if endJump >= 0 {
		c.patchJump(endJump)
	}
}

func (c *Compiler) compileWhileStatement(s *ast.WhileStatement) {
	loop := &loopState{start: c.chunk.Len()}
	c.compileExpression(s.Condition)
	c.setToken(s.Token)
	exitJump := c.emitJump(OP_JUMP_IF_FALSE)

	c.fn.loops = append(c.fn.loops, loop)
	c.compileBlock(s.Body)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]

	// A body that always leaves early never reaches the back edge.
	if !blockTerminates(s.Body) {
		c.setToken(s.Token)
		c.emitLoop(loop.start)
	}
	c.patchJump(exitJump)
	for _, b := range loop.breaks {
		c.patchJump(b)
	}
}

// emitLoad pushes the binding called name.
func (c *Compiler) emitLoad(name string) {
	if slot := c.resolveLocal(name); slot >= 0 {
		c.emitU16(OP_GET_LOCAL, slot)
		return
	}
	c.emitU16(OP_GET_GLOBAL, c.nameConstant(name))
}

// emitStore stores the top of stack into name, leaving it on the stack.
func (c *Compiler) emitStore(name string) {
	if slot := c.resolveLocal(name); slot >= 0 {
		c.emitU16(OP_SET_LOCAL, slot)
		return
	}
	c.emitU16(OP_SET_GLOBAL, c.nameConstant(name))
}

// terminates reports whether every path through stmt leaves the enclosing
// statement list: by return, or by break or continue of the enclosing loop.
// A loop itself never terminates; its breaks only leave the loop.
func terminates(stmt ast.Statement) bool {
	switch s := stmt.(type) {
	case *ast.ReturnStatement, *ast.BreakStatement, *ast.ContinueStatement:
		return true
	case *ast.BlockStatement:
		return blockTerminates(s)
	case *ast.IfStatement:
		return s.Alternative != nil && blockTerminates(s.Consequence) && terminates(s.Alternative)
	}
	return false
}

func blockTerminates(b *ast.BlockStatement) bool {
	if b == nil {
		return false
	}
	for _, stmt := range b.Statements {
		if terminates(stmt) {
			return true
		}
	}
	return false
}
