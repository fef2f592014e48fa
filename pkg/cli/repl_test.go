package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/value"
)

func TestIncomplete(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 + 2;", false},
		{"fn f(a) {", true},
		{"fn f(a) {\n return a;\n}", false},
		{"let a = [1,", true},
		{"print(", true},
		{"}", false},
	}
	for _, tt := range tests {
		if got := incomplete(tt.src); got != tt.want {
			t.Errorf("incomplete(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func newTestSession(t *testing.T, cfg config.Config) *session {
	t.Helper()
	s, err := newSession(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSessionRejectsUnknownEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = "jit"
	if _, err := newSession(cfg); err == nil || !strings.Contains(err.Error(), `unknown engine "jit"`) {
		t.Fatalf("got %v", err)
	}
}

func TestSessionUsesConfiguredEngine(t *testing.T) {
	for _, engine := range []string{config.EngineVM, config.EngineTreeWalk} {
		cfg := config.Default()
		cfg.Engine = engine
		s := newTestSession(t, cfg)
		if s.backend.Name() != engine {
			t.Errorf("engine %s built backend %s", engine, s.backend.Name())
		}
		var out bytes.Buffer
		if ctx := s.eval("var n = 1; n += 1; n;", &out); value.Display(ctx.Result) != "2" {
			t.Errorf("%s: result %v fault %v", engine, ctx.Result, ctx.Fault)
		}
	}
}

func TestSession(t *testing.T) {
	cfg := config.Default()
	cfg.Debug = true
	s := newTestSession(t, cfg)
	var out bytes.Buffer

	steps := []struct {
		entry  string
		result string
		output string
		fails  bool
	}{
		{`print("one"); let x = 20;`, "null", "one\n", false},
		{"fn inc(n) { return n + 1; }", "null", "", false},
		{"inc(x) * 2;", "42", "", false},
		{"1 / 0;", "", "", true},
		{`print("two"); x;`, "20", "two\n", false},
		{"let a = [1]; fn take(own v) { return v; } take(a); a;", "", "", true},
		{"x + 1;", "21", "", false},
	}
	for _, st := range steps {
		out.Reset()
		ctx := s.eval(st.entry, &out)
		failed := ctx.HasErrors() || ctx.Fault != nil
		if failed != st.fails {
			t.Fatalf("%q: failed=%v fault=%v errors=%v", st.entry, failed, ctx.Fault, ctx.Errors)
		}
		if out.String() != st.output {
			t.Errorf("%q: output %q, want %q", st.entry, out.String(), st.output)
		}
		if !st.fails && value.Display(ctx.Result) != st.result {
			t.Errorf("%q: result %s, want %s", st.entry, value.Display(ctx.Result), st.result)
		}
	}
}

func TestSessionAdvisoriesOnce(t *testing.T) {
	cfg := config.Default()
	cfg.Debug = true
	s := newTestSession(t, cfg)
	var out bytes.Buffer

	ctx := s.eval("fn peek(borrow v) { return shareGet(v); } let s = share(1); peek(s);", &out)
	if len(ctx.Advisories) != 1 {
		t.Fatalf("first entry advisories %v", ctx.Advisories)
	}
	ctx = s.eval("2;", &out)
	if len(ctx.Advisories) != 0 {
		t.Errorf("replayed advisories reported again: %v", ctx.Advisories)
	}
}
