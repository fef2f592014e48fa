package backend

import (
	"github.com/google/uuid"

	"github.com/funvibe/duet/internal/pipeline"
)

// ExecutionProcessor implements pipeline.Processor to run a Backend
type ExecutionProcessor struct {
	Backend Backend
}

// NewExecutionProcessor creates a new pipeline step for the given backend
func NewExecutionProcessor(b Backend) *ExecutionProcessor {
	return &ExecutionProcessor{Backend: b}
}

// Process runs the backend unless an earlier stage failed. The outcome is
// stored in ctx.Result, ctx.Advisories and ctx.Fault.
func (p *ExecutionProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.AstRoot == nil || ctx.HasErrors() {
		return ctx
	}
	if ctx.EvalID == "" {
		ctx.EvalID = uuid.NewString()
	}
	ctx.Engine = p.Backend.Name()

	log.Debugf("eval %s: running %s on %s (debug=%t)", ctx.EvalID, ctx.Engine, displayPath(ctx.FilePath), ctx.Config.Debug)
	res, err := p.Backend.Run(ctx)
	if err != nil {
		ctx.Fault = err
		log.Infof("eval %s: %s fault: %s", ctx.EvalID, ctx.Engine, err)
		return ctx
	}
	ctx.Result = res.Value
	ctx.Advisories = res.Advisories
	for _, adv := range res.Advisories {
		log.Debugf("eval %s: %s", ctx.EvalID, adv)
	}
	return ctx
}

// Evaluate runs the frontend and then b over ctx.
func Evaluate(ctx *pipeline.PipelineContext, b Backend) *pipeline.PipelineContext {
	return NewExecutionProcessor(b).Process(Prepare(ctx))
}
