package backend

import (
	"fmt"

	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/vm"
)

// VMBackend executes programs using the bytecode VM
type VMBackend struct{}

// NewVM creates a new VM backend
func NewVM() *VMBackend {
	return &VMBackend{}
}

// Compile turns the analyzed program into a validated chunk. Validator
// warnings are logged; errors are returned as *vm.ValidationFailure.
func (b *VMBackend) Compile(ctx *pipeline.PipelineContext) (*vm.Chunk, error) {
	if ctx.AstRoot == nil {
		return nil, fmt.Errorf("no AST to compile")
	}
	if ctx.HasErrors() {
		return nil, ctx.Err()
	}

	chunk, err := vm.Compile(ctx.AstRoot, ctx.Config.Debug)
	if err != nil {
		return nil, err
	}
	if ctx.FilePath != "" {
		chunk.File = ctx.FilePath
	}
	if err := b.validate(chunk, ctx); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (b *VMBackend) validate(chunk *vm.Chunk, ctx *pipeline.PipelineContext) error {
	report, err := vm.Validate(chunk, vm.OptionsFromConfig(ctx.Config))
	if err != nil {
		return err
	}
	for _, w := range report.Warnings {
		log.Warningf("%s: %s", displayPath(ctx.FilePath), w)
	}
	return nil
}

// Run compiles and executes the program using the VM
func (b *VMBackend) Run(ctx *pipeline.PipelineContext) (*Result, error) {
	chunk, err := b.Compile(ctx)
	if err != nil {
		return nil, err
	}
	return b.Execute(ctx, chunk)
}

// Execute runs an already validated chunk, e.g. one read from a bundle.
func (b *VMBackend) Execute(ctx *pipeline.PipelineContext, chunk *vm.Chunk) (*Result, error) {
	if !chunk.Validated() {
		if err := b.validate(chunk, ctx); err != nil {
			return nil, err
		}
	}

	machine := vm.New()
	machine.SetContext(ctx.Context)
	machine.SetOutput(ctx.Out)
	machine.SetMaxCallDepth(ctx.Config.MaxCallDepth)

	result, err := machine.Run(chunk)
	if err != nil {
		return nil, err
	}
	return &Result{Value: result, Advisories: machine.Advisories()}, nil
}

// Name returns the backend name
func (b *VMBackend) Name() string {
	return "vm"
}

// Disassemble returns the bytecode disassembly for debugging
func (b *VMBackend) Disassemble(ctx *pipeline.PipelineContext) (string, error) {
	chunk, err := b.Compile(ctx)
	if err != nil {
		return "", err
	}
	return vm.Disassemble(chunk, displayPath(ctx.FilePath)), nil
}
