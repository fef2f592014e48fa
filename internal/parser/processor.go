package parser

import (
	"github.com/funvibe/duet/internal/pipeline"
)

type ParserProcessor struct{}

func (pp *ParserProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	// Lexer errors already explain the problem; parsing ILLEGAL tokens would
	// only add noise.
	if ctx.HasErrors() {
		return ctx
	}

	parser := New(ctx.Tokens)
	ctx.AstRoot = parser.ParseProgram()
	ctx.AstRoot.File = ctx.FilePath

	for _, err := range parser.Errors() {
		if err.File == "" {
			err.File = ctx.FilePath
		}
		ctx.Errors = append(ctx.Errors, err)
	}
	return ctx
}
