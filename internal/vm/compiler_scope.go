package vm

import "github.com/funvibe/duet/internal/value"

// beginScope starts a new block scope
func (c *Compiler) beginScope() {
	c.fn.scopes = append(c.fn.scopes, make(map[string]int))
}

// endScope drops the innermost scope. Its slots stay allocated.
func (c *Compiler) endScope() {
	c.fn.scopes = c.fn.scopes[:len(c.fn.scopes)-1]
}

// atGlobalScope reports whether declarations bind globals: top-level code
// of <main> outside any block.
func (c *Compiler) atGlobalScope() bool {
	return c.fn.isMain && len(c.fn.scopes) == 0
}

// declareLocal allocates the next slot for name in the innermost scope.
func (c *Compiler) declareLocal(name string) int {
	slot := c.fn.nextSlot
	if slot >= MaxLocals {
		c.addError("too many local variables in function %s (limit %d)", c.fn.fn.Name, MaxLocals)
		return 0
	}
	c.fn.nextSlot++
	c.fn.fn.LocalNames = append(c.fn.fn.LocalNames, name)
	c.fn.scopes[len(c.fn.scopes)-1][name] = slot
	return slot
}

// resolveLocal looks up a local variable by name, innermost scope first
func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.fn.scopes) - 1; i >= 0; i-- {
		if slot, ok := c.fn.scopes[i][name]; ok {
			return slot
		}
	}
	return -1
}

// emit helpers

func (c *Compiler) emit(op Opcode) int {
	return c.chunk.WriteOp(op, c.tok.Line, c.tok.Column)
}

func (c *Compiler) emitU16(op Opcode, operand int) {
	c.emit(op)
	c.chunk.WriteU16(operand)
}

func (c *Compiler) emitByte(op Opcode, operand byte) {
	c.emit(op)
	c.chunk.Write(operand)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitU16(OP_CONST, c.addConstant(v))
}

func (c *Compiler) emitCheckArg(argIdx int, origin byte, operand int) {
	c.emit(OP_CHECK_ARG)
	c.chunk.Write(byte(argIdx))
	c.chunk.Write(origin)
	c.chunk.WriteU16(operand)
}

// emitJump writes a forward jump with a placeholder offset and returns the
// operand position for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	c.emit(op)
	c.chunk.Write(0xff)
	c.chunk.Write(0xff)
	return c.chunk.Len() - 2
}

// patchJump points the jump whose operand is at offset to the current end.
func (c *Compiler) patchJump(offset int) {
	jump := c.chunk.Len() - offset - 2
	if jump > MaxJump {
		c.addError("jump too far (%d bytes, limit %d)", jump, MaxJump)
		return
	}
	c.chunk.Code[offset] = byte(jump >> 8)
	c.chunk.Code[offset+1] = byte(jump)
}

// emitLoop emits a backward jump to loopStart
func (c *Compiler) emitLoop(loopStart int) {
	c.emit(OP_LOOP)
	offset := c.chunk.Len() - loopStart + 2
	if offset > MaxJump {
		c.addError("loop body too large (%d bytes, limit %d)", offset, MaxJump)
		offset = 0
	}
	c.chunk.WriteU16(offset)
}
