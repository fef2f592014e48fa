package pipeline

// Processor is a single pipeline stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
		// Later stages decide for themselves whether earlier errors stop them,
		// so every stage gets a chance to add its diagnostics.
	}
	return ctx
}

// Process runs p as a single stage of an enclosing pipeline.
func (p *Pipeline) Process(ctx *PipelineContext) *PipelineContext {
	return p.Run(ctx)
}
