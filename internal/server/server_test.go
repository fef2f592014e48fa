package server

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/journal"
)

func startServer(t *testing.T, j *journal.Journal) *Client {
	t.Helper()
	srv, err := New(config.Default(), j)
	if err != nil {
		t.Fatal(err)
	}
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	c, err := NewClient(conn)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSchema(t *testing.T) {
	s, err := LoadSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{MethodEvaluate, MethodCompare, MethodDisassemble} {
		if _, err := s.Method(m); err != nil {
			t.Error(err)
		}
	}
	if _, err := s.Message("Fault"); err != nil {
		t.Error(err)
	}
	if got := FullMethod(MethodEvaluate); got != "/duet.v1.Evaluator/Evaluate" {
		t.Errorf("got %s", got)
	}
}

func TestEvaluate(t *testing.T) {
	c := startServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    Request
		result string
		typ    string
		output string
	}{
		{"vm", Request{Source: "1 + 2;", Engine: config.EngineVM}, "3", "number", ""},
		{"tree-walk", Request{Source: "1 + 2;", Engine: config.EngineTreeWalk}, "3", "number", ""},
		{"default engine", Request{Source: `"a" + "b";`}, "ab", "string", ""},
		{"print", Request{Source: `print("hi"); 0;`}, "0", "number", "hi\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.Evaluate(ctx, tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if ev.Fault != nil || len(ev.Diagnostics) > 0 {
				t.Fatalf("unexpected failure: %+v", ev)
			}
			if ev.Result != tt.result || ev.ResultType != tt.typ || ev.Output != tt.output {
				t.Errorf("got %q (%s) output %q", ev.Result, ev.ResultType, ev.Output)
			}
			if ev.EvalID == "" {
				t.Error("missing eval id")
			}
		})
	}
}

func TestEvaluateFault(t *testing.T) {
	c := startServer(t, nil)
	src := `
fn consume(own data) {
  return len(data);
}
let arr = [1, 2, 3];
consume(arr);
arr;
`
	ev, err := c.Evaluate(context.Background(), Request{Source: src, Debug: true})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Fault == nil {
		t.Fatalf("expected fault, got %+v", ev)
	}
	if ev.Fault.Code != "O001" || ev.Fault.Line != 7 {
		t.Errorf("fault %+v", ev.Fault)
	}
	if len(ev.Fault.Trace) == 0 || !strings.HasPrefix(ev.Fault.Trace[0], config.MainFunctionName) {
		t.Errorf("trace %v", ev.Fault.Trace)
	}
}

func TestEvaluateDiagnostics(t *testing.T) {
	c := startServer(t, nil)
	ev, err := c.Evaluate(context.Background(), Request{Source: "let x = 1; x = 2;"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Diagnostics) != 1 || !strings.Contains(ev.Diagnostics[0], "A001") {
		t.Errorf("diagnostics %v", ev.Diagnostics)
	}
}

func TestUnknownEngineRejected(t *testing.T) {
	c := startServer(t, nil)
	_, err := c.Evaluate(context.Background(), Request{Source: "1;", Engine: "jit"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	c := startServer(t, nil)
	src := `
fn peek(borrow x) { return shareGet(x); }
let s = share(41);
peek(s) + 1;
`
	cmp, err := c.Compare(context.Background(), Request{Source: src, Debug: true})
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Match {
		t.Fatalf("mismatches: %v", cmp.Mismatches)
	}
	for _, ev := range []Evaluation{cmp.TreeWalk, cmp.VM} {
		if ev.Result != "42" || len(ev.Advisories) != 1 {
			t.Errorf("%s: %q advisories %v", ev.Engine, ev.Result, ev.Advisories)
		}
	}
	if cmp.TreeWalk.Engine == cmp.VM.Engine {
		t.Errorf("both outcomes from %s", cmp.VM.Engine)
	}
}

func TestDisassemble(t *testing.T) {
	c := startServer(t, nil)
	l, err := c.Disassemble(context.Background(), Request{Source: "fn f(a) { return a; } f(1);"})
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Diagnostics) > 0 {
		t.Fatal(l.Diagnostics)
	}
	if !strings.Contains(l.Listing, "RETURN") {
		t.Errorf("listing has no RETURN:\n%s", l.Listing)
	}
}

func TestEvaluateJournaled(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	c := startServer(t, j)

	ev, err := c.Evaluate(context.Background(), Request{Source: "2 * 21;", File: "answer.duet"})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != ev.EvalID || entries[0].Result != "42" {
		t.Errorf("journal %+v", entries)
	}
}
