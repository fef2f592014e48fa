package prettyprinter

import (
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/lexer"
	"github.com/funvibe/duet/internal/parser"
	"github.com/funvibe/duet/internal/pipeline"
)

// FormatSource parses src and prints it back. Syntax errors are returned as
// diagnostics.Errors; the analyzer does not run.
func FormatSource(src, path string) (string, error) {
	ctx := pipeline.NewContext(src, config.Default())
	ctx.FilePath = path
	ctx = pipeline.New(&lexer.LexerProcessor{}, &parser.ParserProcessor{}).Run(ctx)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Format(ctx.AstRoot), nil
}
