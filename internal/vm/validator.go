package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/value"
)

// ValidationKind classifies a validation finding.
type ValidationKind int

const (
	KindDecode ValidationKind = iota
	KindJump
	KindConstant
	KindLocal
	KindStack
	KindTermination
	KindUnreachable
	KindFunction
	KindInstrumentation
)

func (k ValidationKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindJump:
		return "jump"
	case KindConstant:
		return "constant"
	case KindLocal:
		return "local"
	case KindStack:
		return "stack"
	case KindTermination:
		return "termination"
	case KindUnreachable:
		return "unreachable"
	case KindFunction:
		return "function"
	case KindInstrumentation:
		return "instrumentation"
	default:
		return "unknown"
	}
}

// ValidationError is one finding, tied to the offset of an instruction.
type ValidationError struct {
	Offset  int
	Kind    ValidationKind
	Message string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("offset 0x%04x: %s", e.Offset, e.Message)
}

// ValidationFailure is returned when a chunk must not run.
type ValidationFailure struct {
	Errors []ValidationError
}

func (f *ValidationFailure) Error() string {
	lines := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		lines[i] = e.String()
	}
	return "bytecode validation failed:\n" + strings.Join(lines, "\n")
}

// Has reports whether any finding is of kind k.
func (f *ValidationFailure) Has(k ValidationKind) bool {
	for _, e := range f.Errors {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Report carries the non-fatal findings of a successful validation.
type Report struct {
	Warnings []ValidationError
	// MaxDepth is the deepest operand stack seen per entry offset.
	MaxDepth map[int]int
}

// ValidatorOptions configures Validate.
type ValidatorOptions struct {
	MaxStackDepth int
	DeadCode      config.DeadCodePolicy
}

// DefaultValidatorOptions mirrors config.Default.
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{MaxStackDepth: config.DefaultMaxStackDepth, DeadCode: config.DeadCodeWarn}
}

// OptionsFromConfig derives validator options from a runtime config.
func OptionsFromConfig(cfg config.Config) ValidatorOptions {
	opts := ValidatorOptions{MaxStackDepth: cfg.MaxStackDepth, DeadCode: cfg.DeadCode}
	if opts.MaxStackDepth <= 0 {
		opts.MaxStackDepth = config.DefaultMaxStackDepth
	}
	if opts.DeadCode == "" {
		opts.DeadCode = config.DeadCodeWarn
	}
	return opts
}

var ErrNilChunk = errors.New("nil chunk")

// instr is one decoded instruction.
type instr struct {
	offset int
	op     Opcode
	a, b   int // decoded operands
	c      int
}

func (in instr) next() int { return in.offset + in.op.Size() }

// jumpTarget returns the destination of a jump instruction.
func (in instr) jumpTarget() int {
	if in.op == OP_LOOP {
		return in.next() - in.a
	}
	return in.next() + in.a
}

type validator struct {
	chunk  *Chunk
	opts   ValidatorOptions
	errs   []ValidationError
	instrs map[int]instr
	order  []int
}

func (v *validator) fail(offset int, kind ValidationKind, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Offset: offset, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Validate checks chunk and, when no error is found, marks it runnable.
// Every check runs; findings are collected rather than stopping at the first.
func Validate(chunk *Chunk, opts ValidatorOptions) (*Report, error) {
	if chunk == nil {
		return nil, ErrNilChunk
	}
	if opts.MaxStackDepth <= 0 {
		opts.MaxStackDepth = config.DefaultMaxStackDepth
	}
	chunk.Invalidate()

	v := &validator{chunk: chunk, opts: opts, instrs: make(map[int]instr)}
	report := &Report{MaxDepth: make(map[int]int)}

	decoded := v.decode()
	v.checkOperands()
	entries := v.entries()

	if decoded {
		reached := make(map[int]bool)
		for _, entry := range entries {
			depth := v.simulate(entry, reached)
			report.MaxDepth[entry.Entry] = depth
		}
		v.unreachable(reached, report)
	}

	if len(v.errs) > 0 {
		return report, &ValidationFailure{Errors: v.errs}
	}
	chunk.markValidated()
	return report, nil
}

// decode walks the stream once, recording instruction boundaries.
func (v *validator) decode() bool {
	code := v.chunk.Code
	ok := true
	for off := 0; off < len(code); {
		op := Opcode(code[off])
		if !op.Known() {
			v.fail(off, KindDecode, "unknown opcode 0x%02x", byte(op))
			return false
		}
		if off+op.Size() > len(code) {
			v.fail(off, KindDecode, "truncated operand for %s", op)
			return false
		}
		in := instr{offset: off, op: op}
		switch op {
		case OP_CALL:
			in.a = int(code[off+1])
		case OP_CHECK_ARG:
			in.a = int(code[off+1])
			in.b = int(code[off+2])
			in.c = v.chunk.ReadU16(off + 3)
		default:
			if operandWidths[op] == 2 {
				in.a = v.chunk.ReadU16(off + 1)
			}
		}
		v.instrs[off] = in
		v.order = append(v.order, off)
		off = in.next()
	}
	if len(code) == 0 {
		v.fail(0, KindTermination, "empty code stream")
		ok = false
	}
	return ok
}

// checkOperands verifies jump targets and constant references.
func (v *validator) checkOperands() {
	consts := v.chunk.Constants
	for _, off := range v.order {
		in := v.instrs[off]
		switch in.op {
		case OP_JUMP, OP_JUMP_IF_FALSE, OP_LOOP:
			target := in.jumpTarget()
			if target < 0 || target >= len(v.chunk.Code) {
				v.fail(off, KindJump, "%s target 0x%04x is outside the code (length %d)", in.op, target, len(v.chunk.Code))
			} else if _, ok := v.instrs[target]; !ok {
				v.fail(off, KindJump, "%s target 0x%04x is not an instruction boundary", in.op, target)
			}
		case OP_CONST:
			if in.a >= len(consts) {
				v.fail(off, KindConstant, "constant index %d out of range (pool size %d)", in.a, len(consts))
			}
		case OP_GET_GLOBAL, OP_SET_GLOBAL:
			v.checkName(off, in.a)
		case OP_CHECK_ARG:
			if !v.chunk.Debug {
				v.fail(off, KindInstrumentation, "CHECK_ARG in a release chunk")
			}
			switch byte(in.b) {
			case OriginNone, OriginLocal:
			case OriginGlobal:
				v.checkName(off, in.c)
			default:
				v.fail(off, KindDecode, "invalid argument origin %d", in.b)
			}
		}
	}
}

func (v *validator) checkName(off, idx int) {
	consts := v.chunk.Constants
	if idx >= len(consts) {
		v.fail(off, KindConstant, "constant index %d out of range (pool size %d)", idx, len(consts))
		return
	}
	if _, ok := consts[idx].(value.String); !ok {
		v.fail(off, KindConstant, "global name constant %d is a %s, not a string", idx, value.TypeName(consts[idx]))
	}
}

// entries returns <main> and every user function in the constant pool.
func (v *validator) entries() []*value.Function {
	var out []*value.Function
	if v.chunk.Main == nil {
		v.fail(0, KindFunction, "chunk has no main function")
	} else if v.checkEntry(v.chunk.Main) {
		out = append(out, v.chunk.Main)
	}
	for _, fn := range v.chunk.Functions() {
		if v.checkEntry(fn) {
			out = append(out, fn)
		}
	}
	return out
}

func (v *validator) checkEntry(fn *value.Function) bool {
	if _, ok := v.instrs[fn.Entry]; !ok {
		v.fail(fn.Entry, KindFunction, "function %s entry 0x%04x is not an instruction boundary", fn.Name, fn.Entry)
		return false
	}
	if fn.Arity < 0 || fn.LocalCount < fn.Arity || fn.LocalCount > MaxLocals {
		v.fail(fn.Entry, KindFunction, "function %s has %d locals for %d parameters", fn.Name, fn.LocalCount, fn.Arity)
		return false
	}
	if n := len(fn.ParamOwnership); n != 0 && n != fn.Arity {
		v.fail(fn.Entry, KindFunction, "function %s has %d ownership entries for %d parameters", fn.Name, n, fn.Arity)
	}
	return true
}

// stackEffect returns the operands an instruction needs and its net effect.
func stackEffect(in instr) (needs, delta int) {
	switch in.op {
	case OP_CONST, OP_NULL, OP_TRUE, OP_FALSE, OP_GET_LOCAL, OP_GET_GLOBAL:
		return 0, 1
	case OP_SET_LOCAL, OP_SET_GLOBAL, OP_NEGATE, OP_NOT:
		return 1, 0
	case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD,
		OP_EQUAL, OP_NOT_EQUAL, OP_LESS, OP_LESS_EQUAL, OP_GREATER, OP_GREATER_EQUAL,
		OP_GET_INDEX:
		return 2, -1
	case OP_JUMP_IF_FALSE, OP_POP:
		return 1, -1
	case OP_CALL:
		return in.a + 1, -in.a
	case OP_CHECK_ARG:
		return in.a + 2, 0
	case OP_ARRAY:
		return in.a, 1 - in.a
	case OP_SET_INDEX:
		return 3, -2
	case OP_DUP:
		return 1, 1
	case OP_DUP2:
		return 2, 2
	case OP_RETURN:
		return 1, -1
	}
	return 0, 0
}

// simulate walks every path from fn's entry, checking local slots, operand
// stack depth and termination. It returns the deepest stack seen.
func (v *validator) simulate(fn *value.Function, reached map[int]bool) int {
	depthAt := map[int]int{fn.Entry: 0}
	work := []int{fn.Entry}
	maxDepth := 0
	codeLen := len(v.chunk.Code)

	for len(work) > 0 {
		off := work[len(work)-1]
		work = work[:len(work)-1]
		in, ok := v.instrs[off]
		if !ok {
			continue
		}
		reached[off] = true
		depth := depthAt[off]

		switch in.op {
		case OP_GET_LOCAL, OP_SET_LOCAL:
			if in.a >= fn.LocalCount {
				v.fail(off, KindLocal, "%s slot %d out of range (function %s has %d locals)", in.op, in.a, fn.Name, fn.LocalCount)
			}
		case OP_CHECK_ARG:
			if byte(in.b) == OriginLocal && in.c >= fn.LocalCount {
				v.fail(off, KindLocal, "CHECK_ARG slot %d out of range (function %s has %d locals)", in.c, fn.Name, fn.LocalCount)
			}
		}

		needs, delta := stackEffect(in)
		if depth < needs {
			v.fail(off, KindStack, "stack underflow: %s needs %d operands, %d available", in.op, needs, depth)
			continue
		}
		after := depth + delta
		if after > v.opts.MaxStackDepth {
			v.fail(off, KindStack, "stack depth %d exceeds limit %d", after, v.opts.MaxStackDepth)
			continue
		}
		if after > maxDepth {
			maxDepth = after
		}

		var succ []int
		switch in.op {
		case OP_RETURN, OP_HALT:
		case OP_JUMP, OP_LOOP:
			succ = []int{in.jumpTarget()}
		case OP_JUMP_IF_FALSE:
			succ = []int{in.next(), in.jumpTarget()}
		default:
			succ = []int{in.next()}
		}

		for _, s := range succ {
			if s == codeLen {
				v.fail(off, KindTermination, "execution falls off the end of the code after %s", in.op)
				continue
			}
			if _, ok := v.instrs[s]; !ok {
				// Reported by checkOperands.
				continue
			}
			if prev, seen := depthAt[s]; seen {
				if prev != after {
					v.fail(s, KindStack, "stack depth mismatch at join: %d vs %d", prev, after)
				}
				continue
			}
			depthAt[s] = after
			work = append(work, s)
		}
	}
	return maxDepth
}

// unreachable reports runs of instructions no entry reaches.
func (v *validator) unreachable(reached map[int]bool, report *Report) {
	start, size := -1, 0
	flush := func() {
		if start < 0 {
			return
		}
		finding := ValidationError{
			Offset:  start,
			Kind:    KindUnreachable,
			Message: fmt.Sprintf("unreachable code (%d bytes)", size),
		}
		if v.opts.DeadCode == config.DeadCodeReject {
			v.errs = append(v.errs, finding)
		} else {
			report.Warnings = append(report.Warnings, finding)
		}
		start, size = -1, 0
	}
	for _, off := range v.order {
		if reached[off] {
			flush()
			continue
		}
		if start < 0 {
			start = off
		}
		size += v.instrs[off].op.Size()
	}
	flush()
}
