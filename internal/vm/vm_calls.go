package vm

import (
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/value"
)

// opCall: [callee, arg0..argN-1] -> [result] for builtins, or a new frame
// whose slot 0 is arg0 for user functions.
func (vm *VM) opCall(f *CallFrame, _ int) error {
	argc := int(vm.readByte(f))
	calleeIdx := len(vm.stack) - argc - 1
	fn, ok := vm.stack[calleeIdx].(*value.Function)
	if !ok {
		return value.NotCallable()
	}

	if fn.IsBuiltin() {
		args := make([]value.Value, argc)
		copy(args, vm.stack[calleeIdx+1:])
		res, err := value.CallBuiltin(fn, &value.CallEnv{Out: vm.out}, args)
		if err != nil {
			return err
		}
		vm.stack = vm.stack[:calleeIdx]
		vm.push(res)
		return nil
	}

	if argc != fn.Arity {
		return value.ArityError(fn, argc)
	}
	if len(vm.frames)-1 >= vm.maxCallDepth {
		return value.CallDepthExceeded(vm.maxCallDepth)
	}

	base := len(vm.stack) - argc
	for len(vm.stack) < base+fn.LocalCount {
		vm.push(value.Null{})
	}
	vm.frames = append(vm.frames, vm.newFrame(fn, base))
	return nil
}

// opReturn drops the frame, its locals and the callee slot, then pushes
// the result for the caller.
func (vm *VM) opReturn(_ *CallFrame, _ int) error {
	result := vm.pop()
	last := len(vm.frames) - 1
	fr := vm.frames[last]
	vm.frames = vm.frames[:last]

	if len(vm.frames) == 0 {
		vm.result = result
		vm.state = StateHalted
		return nil
	}
	clear(vm.stack[fr.base-1:])
	vm.stack = vm.stack[:fr.base-1]
	vm.push(result)
	return nil
}

// opCheckArg applies the ownership contract to the argument just evaluated.
// The callee sits below the arguments already pushed.
func (vm *VM) opCheckArg(f *CallFrame, at int) error {
	argIdx := int(vm.readByte(f))
	origin := vm.readByte(f)
	operand := vm.readU16(f)
	if !vm.chunk.Debug {
		return nil
	}

	fn, ok := vm.peek(argIdx + 1).(*value.Function)
	if !ok || fn.IsBuiltin() || argIdx >= fn.Arity {
		return nil
	}
	arg := vm.peek(0)
	mode := fn.ParamMode(argIdx)
	_, isShared := arg.(*value.Shared)

	switch mode {
	case ownership.Shared:
		if !isShared {
			return diagnostics.NewSharedViolation(fn.ParamName(argIdx), value.TypeName(arg))
		}
	case ownership.Own, ownership.Borrow:
		if isShared {
			line, col := 0, 0
			if sp, ok := vm.chunk.SpanAt(at); ok {
				line, col = sp.Line, sp.Column
			}
			vm.advisories = append(vm.advisories, diagnostics.NewAdvisory(fn.Name, fn.ParamName(argIdx), mode, line, col))
		}
	}

	if mode != ownership.Own {
		return nil
	}
	switch origin {
	case OriginLocal:
		if f.consumed != nil {
			f.consumed[operand] = true
		}
	case OriginGlobal:
		if f.consumedGlobals == nil {
			f.consumedGlobals = make(map[string]bool)
		}
		f.consumedGlobals[vm.constantName(operand)] = true
	}
	return nil
}
