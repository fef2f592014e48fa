package lexer

import (
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/token"
)

// LexerProcessor tokenizes ctx.SourceCode into ctx.Tokens.
type LexerProcessor struct{}

func (lp *LexerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	ctx.Tokens = New(ctx.SourceCode).Tokenize()
	for _, tok := range ctx.Tokens {
		if tok.Type != token.ILLEGAL {
			continue
		}
		msg := "illegal character " + tok.Lexeme
		if s, ok := tok.Literal.(string); ok && s != tok.Lexeme {
			msg = s
		}
		err := diagnostics.NewError(diagnostics.ErrL001, tok, "%s", msg)
		err.File = ctx.FilePath
		ctx.Errors = append(ctx.Errors, err)
	}
	return ctx
}
