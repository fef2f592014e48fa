package vm

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/value"
)

var (
	// ErrUnvalidated is returned when asked to run a chunk Validate has not
	// accepted since its last write.
	ErrUnvalidated = errors.New("chunk has not been validated")
	// ErrNotStarted is returned by Resume and Step before Start.
	ErrNotStarted = errors.New("vm has no program loaded")
	// ErrFinished is returned by Resume and Step after the program halted or faulted.
	ErrFinished = errors.New("program already finished")
	// ErrPaused is returned by Run and Resume when execution stops at a
	// breakpoint, and by Step after every instruction that did not finish
	// the program.
	ErrPaused = errors.New("execution paused")
	// ErrStackOverflow is the cause of the call-depth fault.
	ErrStackOverflow = diagnostics.ErrStackOverflow
)

// State is the execution state of a VM.
type State int

const (
	StateReady State = iota
	StateRunning
	StatePaused
	StateHalted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateHalted:
		return "halted"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// PauseReason tells why a paused VM stopped.
type PauseReason int

const (
	PauseNone PauseReason = iota
	PauseBreakpoint
	PauseStep
)

func (r PauseReason) String() string {
	switch r {
	case PauseBreakpoint:
		return "breakpoint"
	case PauseStep:
		return "step"
	default:
		return "none"
	}
}

// contextCheckInterval is how many instructions run between cancellation checks.
const contextCheckInterval = 1024

// CallFrame represents a single ongoing function call
type CallFrame struct {
	fn   *value.Function
	ip   int // next instruction
	base int // stack index of slot 0

	// Ownership bookkeeping, debug chunks only.
	consumed        []bool
	consumedGlobals map[string]bool
}

// VM is the virtual machine that executes bytecode
type VM struct {
	chunk  *Chunk
	stack  []value.Value
	frames []CallFrame

	globals map[string]value.Value

	state  State
	reason PauseReason
	result value.Value
	fault  error

	breakpoints map[int]bool
	// skipBreak lets the instruction at a breakpoint run after a resume.
	skipBreak bool

	advisories []diagnostics.Advisory

	out          io.Writer
	ctx          context.Context
	maxCallDepth int
	opsSince     int
}

// New creates a VM writing print output to stdout.
func New() *VM {
	return &VM{
		out:          os.Stdout,
		ctx:          context.Background(),
		maxCallDepth: config.DefaultMaxCallDepth,
		breakpoints:  make(map[int]bool),
	}
}

// SetOutput sets the writer print uses.
func (vm *VM) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	vm.out = w
}

// SetContext sets the context checked for cancellation while running.
func (vm *VM) SetContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	vm.ctx = ctx
}

// SetMaxCallDepth bounds nested user function calls.
func (vm *VM) SetMaxCallDepth(n int) {
	if n > 0 {
		vm.maxCallDepth = n
	}
}

// SetBreakpoint pauses execution before the instruction at offset.
func (vm *VM) SetBreakpoint(offset int) { vm.breakpoints[offset] = true }

// ClearBreakpoint removes a breakpoint.
func (vm *VM) ClearBreakpoint(offset int) { delete(vm.breakpoints, offset) }

// BreakAtLine sets a breakpoint on the first instruction of every run of
// instructions attributed to line. It returns the offsets used.
func (vm *VM) BreakAtLine(chunk *Chunk, line int) []int {
	var offsets []int
	prev := -1
	for _, sp := range chunk.Spans {
		if sp.Line == line && prev != line {
			vm.SetBreakpoint(sp.Offset)
			offsets = append(offsets, sp.Offset)
		}
		prev = sp.Line
	}
	return offsets
}

func (vm *VM) State() State                       { return vm.state }
func (vm *VM) PauseReason() PauseReason           { return vm.reason }
func (vm *VM) Result() value.Value                { return vm.result }
func (vm *VM) Fault() error                       { return vm.fault }
func (vm *VM) Advisories() []diagnostics.Advisory { return vm.advisories }

// IP returns the offset of the next instruction, or -1 when nothing runs.
func (vm *VM) IP() int {
	if len(vm.frames) == 0 {
		return -1
	}
	return vm.frames[len(vm.frames)-1].ip
}

// Depth returns the number of active frames, <main> included.
func (vm *VM) Depth() int { return len(vm.frames) }

// Global returns the current value of a global binding.
func (vm *VM) Global(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// Start loads a validated chunk and leaves the VM ready to run.
func (vm *VM) Start(chunk *Chunk) error {
	if chunk == nil || !chunk.Validated() {
		return ErrUnvalidated
	}
	vm.chunk = chunk
	vm.globals = make(map[string]value.Value, len(value.Builtins)+16)
	for name, fn := range value.Builtins {
		vm.globals[name] = fn
	}
	vm.stack = make([]value.Value, 0, 256)
	vm.frames = vm.frames[:0]
	vm.advisories = nil
	vm.result = nil
	vm.fault = nil
	vm.reason = PauseNone
	vm.skipBreak = false
	vm.opsSince = 0

	main := chunk.Main
	for i := 0; i < main.LocalCount; i++ {
		vm.stack = append(vm.stack, value.Null{})
	}
	vm.frames = append(vm.frames, vm.newFrame(main, 0))
	vm.state = StateReady
	return nil
}

// Run starts chunk and executes it until it halts, faults or pauses.
func (vm *VM) Run(chunk *Chunk) (value.Value, error) {
	if err := vm.Start(chunk); err != nil {
		return nil, err
	}
	return vm.Resume()
}

// Resume continues a ready or paused VM.
func (vm *VM) Resume() (value.Value, error) {
	if err := vm.resumable(); err != nil {
		return nil, err
	}
	return vm.execute(false)
}

// Step executes exactly one instruction. Unless the program finished, the
// VM is left paused with PauseStep and ErrPaused is returned.
func (vm *VM) Step() (value.Value, error) {
	if err := vm.resumable(); err != nil {
		return nil, err
	}
	return vm.execute(true)
}

func (vm *VM) resumable() error {
	if vm.chunk == nil {
		return ErrNotStarted
	}
	switch vm.state {
	case StateHalted, StateFaulted:
		return ErrFinished
	case StatePaused:
		vm.skipBreak = true
	}
	vm.reason = PauseNone
	return nil
}

func (vm *VM) newFrame(fn *value.Function, base int) CallFrame {
	f := CallFrame{fn: fn, ip: fn.Entry, base: base}
	if vm.chunk.Debug {
		f.consumed = make([]bool, fn.LocalCount)
	}
	return f
}

// Stack operations

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// Read helpers

func (vm *VM) readByte(f *CallFrame) byte {
	b := vm.chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readU16(f *CallFrame) int {
	v := vm.chunk.ReadU16(f.ip)
	f.ip += 2
	return v
}

func (vm *VM) constantName(idx int) string {
	return string(vm.chunk.Constants[idx].(value.String))
}
