// Package vm implements the bytecode compiler, validator and virtual machine.
package vm

// Opcode represents a single VM instruction
type Opcode byte

const (
	// Constants and literals
	OP_CONST Opcode = 0x01 // u16 constant index
	OP_NULL  Opcode = 0x02
	OP_TRUE  Opcode = 0x03
	OP_FALSE Opcode = 0x04

	// Variables
	OP_GET_LOCAL  Opcode = 0x10 // u16 slot
	OP_SET_LOCAL  Opcode = 0x11 // u16 slot, value stays on the stack
	OP_GET_GLOBAL Opcode = 0x12 // u16 name constant
	OP_SET_GLOBAL Opcode = 0x13 // u16 name constant, value stays on the stack

	// Arithmetic
	OP_ADD    Opcode = 0x20
	OP_SUB    Opcode = 0x21
	OP_MUL    Opcode = 0x22
	OP_DIV    Opcode = 0x23
	OP_MOD    Opcode = 0x24
	OP_NEGATE Opcode = 0x25

	// Comparison
	OP_EQUAL         Opcode = 0x30
	OP_NOT_EQUAL     Opcode = 0x31
	OP_LESS          Opcode = 0x32
	OP_LESS_EQUAL    Opcode = 0x33
	OP_GREATER       Opcode = 0x34
	OP_GREATER_EQUAL Opcode = 0x35

	// Logic. && and || are lowered to jumps.
	OP_NOT Opcode = 0x40

	// Control flow
	OP_JUMP          Opcode = 0x50 // u16 forward offset
	OP_JUMP_IF_FALSE Opcode = 0x51 // u16 forward offset, pops a bool
	OP_LOOP          Opcode = 0x52 // u16 backward offset

	// Functions
	OP_CALL      Opcode = 0x60 // u8 argc
	OP_RETURN    Opcode = 0x61
	OP_CHECK_ARG Opcode = 0x62 // u8 arg index, u8 origin, u16 slot or name constant

	// Arrays
	OP_ARRAY     Opcode = 0x70 // u16 element count
	OP_GET_INDEX Opcode = 0x71
	OP_SET_INDEX Opcode = 0x72 // [agg, idx, v] -> [agg']

	// Stack
	OP_POP Opcode = 0x80
	OP_DUP  Opcode = 0x81
	OP_DUP2 Opcode = 0x82 // duplicate the top two values, order kept

	OP_HALT Opcode = 0xFF
)

// Origin kinds carried by OP_CHECK_ARG.
const (
	OriginNone   byte = 0 // argument is not a bare binding
	OriginLocal  byte = 1
	OriginGlobal byte = 2
)

// OpcodeNames maps opcodes to their string names (for debugging)
var OpcodeNames = map[Opcode]string{
	OP_CONST: "CONST",
	OP_NULL:  "NULL",
	OP_TRUE:  "TRUE",
	OP_FALSE: "FALSE",

	OP_GET_LOCAL:  "GET_LOCAL",
	OP_SET_LOCAL:  "SET_LOCAL",
	OP_GET_GLOBAL: "GET_GLOBAL",
	OP_SET_GLOBAL: "SET_GLOBAL",

	OP_ADD:    "ADD",
	OP_SUB:    "SUB",
	OP_MUL:    "MUL",
	OP_DIV:    "DIV",
	OP_MOD:    "MOD",
	OP_NEGATE: "NEGATE",

	OP_EQUAL:         "EQUAL",
	OP_NOT_EQUAL:     "NOT_EQUAL",
	OP_LESS:          "LESS",
	OP_LESS_EQUAL:    "LESS_EQUAL",
	OP_GREATER:       "GREATER",
	OP_GREATER_EQUAL: "GREATER_EQUAL",

	OP_NOT: "NOT",

	OP_JUMP:          "JUMP",
	OP_JUMP_IF_FALSE: "JUMP_IF_FALSE",
	OP_LOOP:          "LOOP",

	OP_CALL:      "CALL",
	OP_RETURN:    "RETURN",
	OP_CHECK_ARG: "CHECK_ARG",

	OP_ARRAY:     "ARRAY",
	OP_GET_INDEX: "GET_INDEX",
	OP_SET_INDEX: "SET_INDEX",

	OP_POP: "POP",
	OP_DUP:  "DUP",
	OP_DUP2: "DUP2",

	OP_HALT: "HALT",
}

// operandWidths is the number of operand bytes following each opcode.
var operandWidths = map[Opcode]int{
	OP_CONST:         2,
	OP_GET_LOCAL:     2,
	OP_SET_LOCAL:     2,
	OP_GET_GLOBAL:    2,
	OP_SET_GLOBAL:    2,
	OP_JUMP:          2,
	OP_JUMP_IF_FALSE: 2,
	OP_LOOP:          2,
	OP_CALL:          1,
	OP_CHECK_ARG:     4,
	OP_ARRAY:         2,
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := OpcodeNames[op]
	return ok
}

// Size is the encoded length of the instruction, opcode byte included.
func (op Opcode) Size() int {
	return 1 + operandWidths[op]
}
