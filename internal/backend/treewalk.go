package backend

import (
	"fmt"

	"github.com/funvibe/duet/internal/evaluator"
	"github.com/funvibe/duet/internal/pipeline"
)

// TreeWalkBackend wraps the tree-walk interpreter
type TreeWalkBackend struct{}

// NewTreeWalk creates a new tree-walk backend
func NewTreeWalk() *TreeWalkBackend {
	return &TreeWalkBackend{}
}

// Run executes the program using tree-walk interpretation
func (b *TreeWalkBackend) Run(ctx *pipeline.PipelineContext) (*Result, error) {
	if ctx.AstRoot == nil {
		return nil, fmt.Errorf("no AST to execute")
	}
	if ctx.HasErrors() {
		return nil, ctx.Err()
	}

	eval := evaluator.New()
	eval.Context = ctx.Context
	eval.Out = ctx.Out
	eval.Debug = ctx.Config.Debug
	eval.MaxCallDepth = ctx.Config.MaxCallDepth

	result, err := eval.Run(ctx.AstRoot)
	if err != nil {
		return nil, err
	}
	return &Result{Value: result, Advisories: eval.Advisories()}, nil
}

// Name returns the backend name
func (b *TreeWalkBackend) Name() string {
	return "tree-walk"
}
