// Package backend provides an interface for different execution backends.
// This allows switching between tree-walk interpreter and VM.
package backend

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/funvibe/duet/internal/analyzer"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/lexer"
	"github.com/funvibe/duet/internal/parser"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/value"
)

var log = commonlog.GetLogger("duet.backend")

// Result is a successful evaluation.
type Result struct {
	Value      value.Value
	Advisories []diagnostics.Advisory
}

// Backend is the interface for execution backends
type Backend interface {
	// Run executes the analyzed program held by ctx.
	Run(ctx *pipeline.PipelineContext) (*Result, error)

	// Name returns the backend name for display
	Name() string
}

// New returns the backend registered under engine.
func New(engine string) (Backend, error) {
	switch engine {
	case config.EngineVM, "":
		return NewVM(), nil
	case config.EngineTreeWalk:
		return NewTreeWalk(), nil
	}
	return nil, fmt.Errorf("unknown engine %q (want %q or %q)", engine, config.EngineVM, config.EngineTreeWalk)
}

// Frontend is the lexer, parser and analyzer chain every engine runs after.
func Frontend() *pipeline.Pipeline {
	return pipeline.New(
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticAnalyzerProcessor{},
	)
}

// Prepare runs the frontend over source. Diagnostics are left in ctx.Errors.
func Prepare(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	ctx = Frontend().Run(ctx)
	if ctx.HasErrors() {
		log.Debugf("frontend rejected %s with %d diagnostics", displayPath(ctx.FilePath), len(ctx.Errors))
	}
	return ctx
}

func displayPath(path string) string {
	if path == "" {
		return "<stdin>"
	}
	return path
}
