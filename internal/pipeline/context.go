package pipeline

import (
	"context"
	"io"

	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/token"
	"github.com/funvibe/duet/internal/value"
)

// PipelineContext carries one evaluation from source text to result.
type PipelineContext struct {
	Context    context.Context
	SourceCode string
	FilePath   string
	Config     config.Config
	Out        io.Writer

	Tokens  []token.Token
	AstRoot *ast.Program
	Errors  []*diagnostics.DiagnosticError

	// Set by the execution stage.
	EvalID     string
	Engine     string
	Result     value.Value
	Fault      error
	Advisories []diagnostics.Advisory
}

// NewContext prepares a context for source with the given configuration.
func NewContext(source string, cfg config.Config) *PipelineContext {
	return &PipelineContext{
		Context:    context.Background(),
		SourceCode: source,
		Config:     cfg,
		Out:        io.Discard,
	}
}

// HasErrors reports whether any frontend stage failed.
func (c *PipelineContext) HasErrors() bool { return len(c.Errors) > 0 }

// Err returns the frontend diagnostics as one error, or nil.
func (c *PipelineContext) Err() error {
	if len(c.Errors) == 0 {
		return nil
	}
	return diagnostics.Errors(c.Errors)
}
