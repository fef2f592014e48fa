package backend

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/value"
)

// Outcome is what one engine observably did with a program.
type Outcome struct {
	Engine     string
	Value      value.Value
	Fault      error
	Advisories []diagnostics.Advisory
	Output     string
}

// Summary renders the result or fault on one line.
func (o Outcome) Summary() string {
	if o.Fault != nil {
		return "error: " + o.Fault.Error()
	}
	if o.Value == nil {
		return "null"
	}
	return value.Display(o.Value)
}

// ParityReport pairs the outcomes of both engines on one program.
type ParityReport struct {
	EvalID     string
	TreeWalk   Outcome
	VM         Outcome
	Mismatches []string
}

// Match reports whether both engines agreed on everything observable.
func (r *ParityReport) Match() bool { return len(r.Mismatches) == 0 }

func (r *ParityReport) String() string {
	if r.Match() {
		return fmt.Sprintf("parity ok: %s", r.VM.Summary())
	}
	return "parity mismatch:\n  " + strings.Join(r.Mismatches, "\n  ")
}

// Compare runs the frontend once and the analyzed program on both engines
// with the configuration in ctx. Frontend diagnostics are returned as an
// error; engine faults are part of the report.
func Compare(ctx *pipeline.PipelineContext) (*ParityReport, error) {
	ctx = Prepare(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &ParityReport{EvalID: ctx.EvalID}
	if report.EvalID == "" {
		report.EvalID = uuid.NewString()
	}
	report.TreeWalk = runOutcome(ctx, NewTreeWalk())
	report.VM = runOutcome(ctx, NewVM())
	report.Mismatches = diff(report.TreeWalk, report.VM)

	if report.Match() {
		log.Debugf("parity %s: ok (%s)", report.EvalID, report.VM.Summary())
	} else {
		log.Warningf("parity %s: %d mismatches", report.EvalID, len(report.Mismatches))
	}
	return report, nil
}

// runOutcome runs b on a copy of ctx with its own output buffer.
func runOutcome(ctx *pipeline.PipelineContext, b Backend) Outcome {
	var out bytes.Buffer
	run := *ctx
	run.Out = &out

	o := Outcome{Engine: b.Name()}
	res, err := b.Run(&run)
	if err != nil {
		o.Fault = err
	} else {
		o.Value = res.Value
		o.Advisories = res.Advisories
	}
	o.Output = out.String()
	return o
}

func diff(tw, machine Outcome) []string {
	var mismatches []string
	add := func(what string, a, b any) {
		mismatches = append(mismatches, fmt.Sprintf("%s: tree-walk=%v vm=%v", what, a, b))
	}

	if tw.Summary() != machine.Summary() {
		add("result", tw.Summary(), machine.Summary())
	}
	if tw.Value != nil && machine.Value != nil && value.TypeName(tw.Value) != value.TypeName(machine.Value) {
		add("result type", value.TypeName(tw.Value), value.TypeName(machine.Value))
	}
	if fa, fb := faultSite(tw.Fault), faultSite(machine.Fault); fa != fb {
		add("fault site", fa, fb)
	}
	if tw.Output != machine.Output {
		add("output", fmt.Sprintf("%q", tw.Output), fmt.Sprintf("%q", machine.Output))
	}
	if a, b := advisoryList(tw.Advisories), advisoryList(machine.Advisories); a != b {
		add("advisories", a, b)
	}
	return mismatches
}

// faultSite renders the code and position of a runtime fault.
func faultSite(err error) string {
	if err == nil {
		return ""
	}
	rt, ok := diagnostics.AsRuntime(err)
	if !ok {
		return "<host>"
	}
	return fmt.Sprintf("%s@%d:%d", rt.Code, rt.Line, rt.Column)
}

func advisoryList(advs []diagnostics.Advisory) string {
	parts := make([]string, len(advs))
	for i, a := range advs {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}
