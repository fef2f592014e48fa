package vm

import (
	"fmt"

	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/value"
)

// opHandler executes one instruction. at is the offset of its opcode; the
// frame's ip already points past the opcode byte.
type opHandler func(vm *VM, f *CallFrame, at int) error

var dispatch [256]opHandler

func init() {
	dispatch[OP_CONST] = (*VM).opConst
	dispatch[OP_NULL] = pushConst(value.Null{})
	dispatch[OP_TRUE] = pushConst(value.Bool(true))
	dispatch[OP_FALSE] = pushConst(value.Bool(false))

	dispatch[OP_GET_LOCAL] = (*VM).opGetLocal
	dispatch[OP_SET_LOCAL] = (*VM).opSetLocal
	dispatch[OP_GET_GLOBAL] = (*VM).opGetGlobal
	dispatch[OP_SET_GLOBAL] = (*VM).opSetGlobal

	dispatch[OP_ADD] = binary(value.Add)
	dispatch[OP_SUB] = binary(arith("-"))
	dispatch[OP_MUL] = binary(arith("*"))
	dispatch[OP_DIV] = binary(arith("/"))
	dispatch[OP_MOD] = binary(arith("%"))
	dispatch[OP_NEGATE] = unary(value.Negate)

	dispatch[OP_EQUAL] = binary(equal(true))
	dispatch[OP_NOT_EQUAL] = binary(equal(false))
	dispatch[OP_LESS] = binary(compare("<"))
	dispatch[OP_LESS_EQUAL] = binary(compare("<="))
	dispatch[OP_GREATER] = binary(compare(">"))
	dispatch[OP_GREATER_EQUAL] = binary(compare(">="))
	dispatch[OP_NOT] = unary(value.Not)

	dispatch[OP_JUMP] = (*VM).opJump
	dispatch[OP_JUMP_IF_FALSE] = (*VM).opJumpIfFalse
	dispatch[OP_LOOP] = (*VM).opLoop

	dispatch[OP_CALL] = (*VM).opCall
	dispatch[OP_RETURN] = (*VM).opReturn
	dispatch[OP_CHECK_ARG] = (*VM).opCheckArg

	dispatch[OP_ARRAY] = (*VM).opArray
	dispatch[OP_GET_INDEX] = binary(value.Index)
	dispatch[OP_SET_INDEX] = (*VM).opSetIndex

	dispatch[OP_POP] = func(vm *VM, _ *CallFrame, _ int) error { vm.pop(); return nil }
	dispatch[OP_DUP] = func(vm *VM, _ *CallFrame, _ int) error { vm.push(vm.peek(0)); return nil }
	dispatch[OP_DUP2] = func(vm *VM, _ *CallFrame, _ int) error {
		a, b := vm.peek(1), vm.peek(0)
		vm.push(a)
		vm.push(b)
		return nil
	}

	dispatch[OP_HALT] = (*VM).opHalt
}

// execute is the main interpreter loop. With step set it returns after one
// instruction.
func (vm *VM) execute(step bool) (value.Value, error) {
	vm.state = StateRunning
	for {
		f := &vm.frames[len(vm.frames)-1]
		at := f.ip

		if vm.breakpoints[at] && !vm.skipBreak {
			return vm.pause(PauseBreakpoint)
		}
		vm.skipBreak = false

		vm.opsSince++
		if vm.opsSince >= contextCheckInterval {
			vm.opsSince = 0
			if err := vm.ctx.Err(); err != nil {
				vm.state = StateFaulted
				vm.fault = err
				return nil, err
			}
		}

		op := Opcode(vm.chunk.Code[at])
		f.ip++
		handler := dispatch[op]
		if handler == nil {
			return nil, vm.raise(fmt.Errorf("unknown opcode 0x%02x", byte(op)), at)
		}
		if err := handler(vm, f, at); err != nil {
			return nil, vm.raise(err, at)
		}

		if vm.state == StateHalted {
			return vm.result, nil
		}
		if step {
			return vm.pause(PauseStep)
		}
	}
}

func (vm *VM) pause(reason PauseReason) (value.Value, error) {
	vm.state = StatePaused
	vm.reason = reason
	return nil, ErrPaused
}

// raise attaches the faulting position and a stack trace, then marks the
// VM faulted.
func (vm *VM) raise(err error, at int) error {
	if sp, ok := vm.chunk.SpanAt(at); ok {
		err = diagnostics.Locate(err, sp.Line, sp.Column)
	}
	if rt, ok := diagnostics.AsRuntime(err); ok && rt.StackTrace == nil {
		rt.StackTrace = vm.stackTrace(at)
	}
	vm.state = StateFaulted
	vm.fault = err
	return err
}

// stackTrace lists active frames, innermost first.
func (vm *VM) stackTrace(at int) []diagnostics.StackFrame {
	trace := make([]diagnostics.StackFrame, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		offset := at
		if i < len(vm.frames)-1 {
			offset = vm.frames[i].ip - 1 // inside the CALL instruction
		}
		line := 0
		if sp, ok := vm.chunk.SpanAt(offset); ok {
			line = sp.Line
		}
		trace = append(trace, diagnostics.StackFrame{Name: vm.frames[i].fn.Name, Line: line})
	}
	return trace
}

func pushConst(v value.Value) opHandler {
	return func(vm *VM, _ *CallFrame, _ int) error {
		vm.push(v)
		return nil
	}
}

func unary(fn func(value.Value) (value.Value, error)) opHandler {
	return func(vm *VM, _ *CallFrame, _ int) error {
		res, err := fn(vm.pop())
		if err != nil {
			return err
		}
		vm.push(res)
		return nil
	}
}

func binary(fn func(a, b value.Value) (value.Value, error)) opHandler {
	return func(vm *VM, _ *CallFrame, _ int) error {
		b := vm.pop()
		a := vm.pop()
		res, err := fn(a, b)
		if err != nil {
			return err
		}
		vm.push(res)
		return nil
	}
}

func arith(sym string) func(a, b value.Value) (value.Value, error) {
	return func(a, b value.Value) (value.Value, error) { return value.Arithmetic(sym, a, b) }
}

func compare(sym string) func(a, b value.Value) (value.Value, error) {
	return func(a, b value.Value) (value.Value, error) { return value.Compare(sym, a, b) }
}

func equal(want bool) func(a, b value.Value) (value.Value, error) {
	return func(a, b value.Value) (value.Value, error) { return value.Bool(value.Equal(a, b) == want), nil }
}

func (vm *VM) opConst(f *CallFrame, _ int) error {
	vm.push(vm.chunk.Constants[vm.readU16(f)])
	return nil
}

func (vm *VM) opGetLocal(f *CallFrame, _ int) error {
	slot := vm.readU16(f)
	if f.consumed != nil && f.consumed[slot] {
		return diagnostics.NewMovedValue(f.fn.LocalName(slot))
	}
	vm.push(vm.stack[f.base+slot])
	return nil
}

func (vm *VM) opSetLocal(f *CallFrame, _ int) error {
	slot := vm.readU16(f)
	if slot >= f.fn.LocalCount {
		return diagnostics.NewRuntimeError("Invalid local slot %d in %s (local count %d)", slot, f.fn.Name, f.fn.LocalCount)
	}
	vm.storeLocal(f, slot)
	if f.consumed != nil {
		f.consumed[slot] = false
	}
	return nil
}

// storeLocal copies the top of stack into slot. Frames reserve their slots
// on entry; if the slot still lies at or above the operand, the stack grows
// by exactly the missing slots and the operand is kept on top.
func (vm *VM) storeLocal(f *CallFrame, slot int) {
	idx := f.base + slot
	top := len(vm.stack) - 1
	if idx < top {
		vm.stack[idx] = vm.stack[top]
		return
	}
	v := vm.pop()
	for len(vm.stack) <= idx {
		vm.push(value.Null{})
	}
	vm.stack[idx] = v
	vm.push(v)
}

func (vm *VM) opGetGlobal(f *CallFrame, _ int) error {
	name := vm.constantName(vm.readU16(f))
	if f.consumedGlobals[name] {
		return diagnostics.NewMovedValue(name)
	}
	v, ok := vm.globals[name]
	if !ok {
		return value.Undefined(name)
	}
	vm.push(v)
	return nil
}

func (vm *VM) opSetGlobal(f *CallFrame, _ int) error {
	name := vm.constantName(vm.readU16(f))
	vm.globals[name] = vm.peek(0)
	delete(f.consumedGlobals, name)
	return nil
}

func (vm *VM) opJump(f *CallFrame, _ int) error {
	offset := vm.readU16(f)
	f.ip += offset
	return nil
}

func (vm *VM) opJumpIfFalse(f *CallFrame, _ int) error {
	offset := vm.readU16(f)
	cond, err := value.Condition(vm.pop())
	if err != nil {
		return err
	}
	if !cond {
		f.ip += offset
	}
	return nil
}

func (vm *VM) opLoop(f *CallFrame, _ int) error {
	offset := vm.readU16(f)
	f.ip -= offset
	return nil
}

func (vm *VM) opArray(f *CallFrame, _ int) error {
	n := vm.readU16(f)
	start := len(vm.stack) - n
	elems := make([]value.Value, n)
	copy(elems, vm.stack[start:])
	vm.stack = vm.stack[:start]
	vm.push(value.NewArray(elems))
	return nil
}

func (vm *VM) opSetIndex(_ *CallFrame, _ int) error {
	v := vm.pop()
	idx := vm.pop()
	container := vm.pop()
	res, err := value.SetIndex(container, idx, v)
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

// opHalt finishes the program. Its result is the value above the <main>
// locals region, if any.
func (vm *VM) opHalt(_ *CallFrame, _ int) error {
	main := vm.frames[0]
	end := main.base + main.fn.LocalCount
	vm.result = value.Null{}
	if len(vm.stack) > end {
		vm.result = vm.peek(0)
	}
	vm.state = StateHalted
	return nil
}
