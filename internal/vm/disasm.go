package vm

import (
	"fmt"
	"strings"

	"github.com/funvibe/duet/internal/value"
)

// Disassemble returns a human-readable representation of the bytecode.
// Function entries are announced with their annotated signature.
func Disassemble(chunk *Chunk, name string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	if chunk.Debug {
		sb.WriteString("; debug build: ownership checks enabled\n")
	}
	if chunk.Main != nil {
		sb.WriteString(fmt.Sprintf("; %s locals=%d\n", chunk.Main.Name, chunk.Main.LocalCount))
	}

	entries := make(map[int]*value.Function)
	for _, fn := range chunk.Functions() {
		entries[fn.Entry] = fn
	}

	prevLine := -1
	offset := 0
	for offset < len(chunk.Code) {
		if fn, ok := entries[offset]; ok {
			sb.WriteString(fmt.Sprintf("-- %s  ; locals=%d --\n", fn.Signature(), fn.LocalCount))
			prevLine = -1
		}
		offset, prevLine = disassembleInstruction(&sb, chunk, offset, prevLine)
	}

	return sb.String()
}

// disassembleInstruction writes one instruction and returns the next offset.
func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset, prevLine int) (int, int) {
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	line := 0
	if sp, ok := chunk.SpanAt(offset); ok {
		line = sp.Line
	}
	if line == prevLine {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", line))
	}

	op := Opcode(chunk.Code[offset])
	if !op.Known() || offset+op.Size() > len(chunk.Code) {
		sb.WriteString(fmt.Sprintf("<bad 0x%02x>\n", byte(op)))
		return offset + 1, line
	}

	switch op {
	case OP_CONST:
		idx := chunk.ReadU16(offset + 1)
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'\n", op, idx, constantString(chunk, idx)))
	case OP_GET_GLOBAL, OP_SET_GLOBAL:
		idx := chunk.ReadU16(offset + 1)
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'\n", op, idx, constantString(chunk, idx)))
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_ARRAY:
		sb.WriteString(fmt.Sprintf("%-16s %4d\n", op, chunk.ReadU16(offset+1)))
	case OP_JUMP, OP_JUMP_IF_FALSE:
		jump := chunk.ReadU16(offset + 1)
		sb.WriteString(fmt.Sprintf("%-16s %4d -> %04d\n", op, jump, offset+3+jump))
	case OP_LOOP:
		jump := chunk.ReadU16(offset + 1)
		sb.WriteString(fmt.Sprintf("%-16s %4d -> %04d\n", op, jump, offset+3-jump))
	case OP_CALL:
		sb.WriteString(fmt.Sprintf("%-16s %4d\n", op, chunk.Code[offset+1]))
	case OP_CHECK_ARG:
		argIdx := chunk.Code[offset+1]
		origin := chunk.Code[offset+2]
		operand := chunk.ReadU16(offset + 3)
		switch origin {
		case OriginLocal:
			sb.WriteString(fmt.Sprintf("%-16s %4d local %d\n", op, argIdx, operand))
		case OriginGlobal:
			sb.WriteString(fmt.Sprintf("%-16s %4d global '%s'\n", op, argIdx, constantString(chunk, operand)))
		default:
			sb.WriteString(fmt.Sprintf("%-16s %4d\n", op, argIdx))
		}
	default:
		sb.WriteString(op.String() + "\n")
	}
	return offset + op.Size(), line
}

func constantString(chunk *Chunk, idx int) string {
	if idx >= len(chunk.Constants) {
		return "<out of range>"
	}
	return value.Display(chunk.Constants[idx])
}
