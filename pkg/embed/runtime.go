// Package duet embeds the duet language in Go programs. A Runtime evaluates
// source on either engine, or on both for a parity check, and returns plain
// Go values.
package duet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/funvibe/duet/internal/backend"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/pipeline"
)

// Runtime holds the configuration evaluations run with. It keeps no state
// between calls and is safe for concurrent use once configured.
type Runtime struct {
	cfg        config.Config
	out        io.Writer
	marshaller *Marshaller
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

// WithDebug enables ownership enforcement.
func WithDebug(debug bool) Option {
	return func(r *Runtime) { r.cfg.Debug = debug }
}

// WithEngine selects "vm" or "tree-walk".
func WithEngine(engine string) Option {
	return func(r *Runtime) { r.cfg.Engine = engine }
}

// WithOutput redirects print. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) { r.out = w }
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{cfg: config.Default(), out: os.Stdout, marshaller: NewMarshaller()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is a successful evaluation.
type Result struct {
	// Value is the program result converted by the Marshaller.
	Value interface{}
	// Display is the result as print would show it.
	Display    string
	Advisories []diagnostics.Advisory
	EvalID     string
}

func (r *Runtime) newContext(ctx context.Context, code, path string) *pipeline.PipelineContext {
	pctx := pipeline.NewContext(code, r.cfg)
	pctx.Context = ctx
	pctx.FilePath = path
	pctx.Out = r.out
	return pctx
}

// Eval runs code on the configured engine. Frontend diagnostics are returned
// as diagnostics.Errors and runtime faults as *diagnostics.RuntimeError (or
// *diagnostics.OwnershipError).
func (r *Runtime) Eval(ctx context.Context, code string) (*Result, error) {
	return r.eval(ctx, code, "<eval>")
}

// EvalFile reads and runs a source file.
func (r *Runtime) EvalFile(ctx context.Context, path string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return r.eval(ctx, string(src), filepath.Clean(path))
}

func (r *Runtime) eval(ctx context.Context, code, path string) (*Result, error) {
	b, err := backend.New(r.cfg.Engine)
	if err != nil {
		return nil, err
	}
	pctx := backend.Evaluate(r.newContext(ctx, code, path), b)
	if err := pctx.Err(); err != nil {
		return nil, err
	}
	if pctx.Fault != nil {
		return nil, pctx.Fault
	}
	goVal, err := r.marshaller.FromValue(pctx.Result)
	if err != nil {
		return nil, err
	}
	return &Result{
		Value:      goVal,
		Display:    displayResult(pctx),
		Advisories: pctx.Advisories,
		EvalID:     pctx.EvalID,
	}, nil
}

// Compare runs code on both engines and reports whether they agreed. Output
// printed by either engine is captured in the report, not written out.
func (r *Runtime) Compare(ctx context.Context, code string) (*backend.ParityReport, error) {
	pctx := r.newContext(ctx, code, "<eval>")
	pctx.Out = &bytes.Buffer{}
	return backend.Compare(pctx)
}

func displayResult(pctx *pipeline.PipelineContext) string {
	return backend.Outcome{Value: pctx.Result}.Summary()
}
