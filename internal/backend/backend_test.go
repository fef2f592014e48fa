package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/value"
	"github.com/funvibe/duet/internal/vm"
)

func newContext(src string, debug bool) *pipeline.PipelineContext {
	cfg := config.Default()
	cfg.Debug = debug
	return pipeline.NewContext(src, cfg)
}

func TestCorpus(t *testing.T) {
	ar, err := LoadCorpus("testdata/corpus.txtar")
	if err != nil {
		t.Fatal(err)
	}
	cases := RunCorpus(context.Background(), ar, config.Default())
	if len(cases) == 0 {
		t.Fatal("corpus is empty")
	}
	for _, c := range cases {
		t.Run(c.Name+"/"+c.Mode(), func(t *testing.T) {
			for _, f := range c.Failures() {
				t.Error(f)
			}
		})
	}
}

const consumeProgram = `
fn consume(own data) {
  return len(data);
}
let arr = [1, 2, 3];
consume(arr);
arr;
`

func TestConsumeScenario(t *testing.T) {
	t.Run("release", func(t *testing.T) {
		report, err := Compare(newContext(consumeProgram, false))
		if err != nil {
			t.Fatal(err)
		}
		if !report.Match() {
			t.Fatal(report)
		}
		if got := report.VM.Summary(); got != "[1, 2, 3]" {
			t.Errorf("got %s, want [1, 2, 3]", got)
		}
	})

	t.Run("debug", func(t *testing.T) {
		report, err := Compare(newContext(consumeProgram, true))
		if err != nil {
			t.Fatal(err)
		}
		if !report.Match() {
			t.Fatal(report)
		}
		for _, o := range []Outcome{report.TreeWalk, report.VM} {
			var oe *diagnostics.OwnershipError
			if !errors.As(o.Fault, &oe) {
				t.Fatalf("%s: expected ownership fault, got %v", o.Engine, o.Fault)
			}
			if oe.Violation != ownership.MovedValue || oe.Binding != "arr" {
				t.Errorf("%s: got %s on %q", o.Engine, oe.Violation, oe.Binding)
			}
			if oe.Line != 7 {
				t.Errorf("%s: fault at line %d, want 7", o.Engine, oe.Line)
			}
		}
	})
}

func TestAdvisoryParity(t *testing.T) {
	src := `
fn peek(borrow x) { return shareGet(x); }
let s = share(41);
peek(s) + 1;
`
	report, err := Compare(newContext(src, true))
	if err != nil {
		t.Fatal(err)
	}
	if !report.Match() {
		t.Fatal(report)
	}
	if len(report.VM.Advisories) != 1 {
		t.Fatalf("expected 1 advisory, got %v", report.VM.Advisories)
	}
	adv := report.VM.Advisories[0]
	if adv.Code != diagnostics.ErrO100 || adv.Line != 4 {
		t.Errorf("unexpected advisory %s", adv)
	}
	if !strings.Contains(adv.Message, "`x` of `peek` is declared `borrow`") {
		t.Errorf("unexpected advisory text %q", adv.Message)
	}
}

func TestStackOverflowParity(t *testing.T) {
	src := `
fn down(n) { return down(n + 1); }
down(0);
`
	ctx := newContext(src, false)
	ctx.Config.MaxCallDepth = 50
	report, err := Compare(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Match() {
		t.Fatal(report)
	}
	for _, o := range []Outcome{report.TreeWalk, report.VM} {
		if !errors.Is(o.Fault, diagnostics.ErrStackOverflow) {
			t.Errorf("%s: expected stack overflow, got %v", o.Engine, o.Fault)
		}
		if o.Fault.Error() != "Stack overflow: maximum call depth 50 exceeded" {
			t.Errorf("%s: got %q", o.Engine, o.Fault.Error())
		}
	}
}

func TestCompareFrontendError(t *testing.T) {
	_, err := Compare(newContext("let x = 1; x = 2;", false))
	if err == nil {
		t.Fatal("expected analyzer diagnostics")
	}
	var diags diagnostics.Errors
	if !errors.As(err, &diags) || diags[0].Code != diagnostics.ErrA001 {
		t.Fatalf("expected A001, got %v", err)
	}
}

func TestExecutionProcessor(t *testing.T) {
	tests := []struct {
		engine string
		src    string
		want   string
		fault  string
	}{
		{config.EngineVM, "1 + 2;", "3", ""},
		{config.EngineTreeWalk, "1 + 2;", "3", ""},
		{config.EngineVM, "let a = [1]; a[5];", "", "Array index out of bounds"},
		{config.EngineTreeWalk, "let a = [1]; a[5];", "", "Array index out of bounds"},
		{config.EngineVM, "let a = 1;", "null", ""},
	}

	for _, tt := range tests {
		b, err := New(tt.engine)
		if err != nil {
			t.Fatal(err)
		}
		ctx := Evaluate(newContext(tt.src, false), b)
		if ctx.HasErrors() {
			t.Fatalf("%s %q: frontend errors %v", tt.engine, tt.src, ctx.Err())
		}
		if ctx.EvalID == "" || ctx.Engine != b.Name() {
			t.Errorf("%s: eval id %q engine %q", tt.engine, ctx.EvalID, ctx.Engine)
		}
		if tt.fault != "" {
			if ctx.Fault == nil || ctx.Fault.Error() != tt.fault {
				t.Errorf("%s %q: fault %v, want %q", tt.engine, tt.src, ctx.Fault, tt.fault)
			}
			continue
		}
		if ctx.Fault != nil {
			t.Fatalf("%s %q: unexpected fault %v", tt.engine, tt.src, ctx.Fault)
		}
		if got := value.Display(ctx.Result); got != tt.want {
			t.Errorf("%s %q: got %s, want %s", tt.engine, tt.src, got, tt.want)
		}
	}
}

func TestUnknownEngine(t *testing.T) {
	if _, err := New("jit"); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestVMBackendRejectsDeadCodeUnderReject(t *testing.T) {
	ctx := Prepare(newContext("fn f() { return 1; } f();", false))
	ctx.Config.DeadCode = config.DeadCodeReject
	chunk, err := NewVM().Compile(ctx)
	if err != nil {
		t.Fatalf("compiler emitted dead code: %v", err)
	}
	if !chunk.Validated() {
		t.Fatal("chunk not validated")
	}
}

func TestExecuteBundle(t *testing.T) {
	ctx := Prepare(newContext("fn sq(borrow n) { return n * n; } sq(9);", true))
	b := NewVM()
	chunk, err := b.Compile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	data, err := vm.Serialize(chunk)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := vm.Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Execute(ctx, loaded)
	if err != nil {
		t.Fatal(err)
	}
	if got := value.Display(res.Value); got != "81" {
		t.Errorf("got %s, want 81", got)
	}
}

func TestCancelledContext(t *testing.T) {
	src := `
var i = 0;
while (true) { i = i + 1; }
`
	for _, engine := range []string{config.EngineVM, config.EngineTreeWalk} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		pctx := newContext(src, false)
		pctx.Context = ctx
		b, _ := New(engine)
		pctx = Evaluate(pctx, b)
		if !errors.Is(pctx.Fault, context.Canceled) {
			t.Errorf("%s: expected context.Canceled, got %v", engine, pctx.Fault)
		}
	}
}
