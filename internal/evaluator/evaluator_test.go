package evaluator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/funvibe/duet/internal/analyzer"
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/lexer"
	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/parser"
	"github.com/funvibe/duet/internal/value"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := parser.New(lexer.New(src).Tokenize())
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse %q: %v", src, diagnostics.Errors(errs))
	}
	if errs := analyzer.New().Analyze(program); len(errs) > 0 {
		t.Fatalf("analyze %q: %v", src, diagnostics.Errors(errs))
	}
	return program
}

func run(t *testing.T, src string, debug bool) (*Evaluator, value.Value, string, error) {
	t.Helper()
	var out bytes.Buffer
	e := New()
	e.Out = &out
	e.Debug = debug
	res, err := e.Run(parse(t, src))
	return e, res, out.String(), err
}

func TestRun(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3;", "7"},
		{"let s = \"a\" + \"b\"; s;", "ab"},
		{"fn sq(n) { return n * n; } sq(sq(3));", "81"},
		{"var i = 0; while (i < 4) { i = i + 1; } i;", "4"},
		{"fn f() { let x = 1; if (true) { let x = 2; } return x; } f();", "1"},
		{"fn f() { var x = 1; if (true) { x = 2; } return x; } f();", "2"},
		{"var xs = [1, [2, 3]]; xs[1] = 0; xs;", "[1, 0]"},
		{"let m = mapPut(hashMap(), 1, \"one\"); m[1];", "one"},
		{"let v = early(); fn early() { return 5; } v;", "5"},
		{"fn nothing() { } nothing();", "null"},
		{"let x = 1;", "null"},
		{"[false && undefinedName, true || undefinedName];", "[false, true]"},
		{"var i = 0; while (true) { i += 1; if (i == 3) { break; } } i;", "3"},
		{"var i = 0; var s = 0; while (i < 5) { i++; if (i % 2 == 0) { continue; } s += i; } s;", "9"},
		{"var n = 0; var i = 0; while (i < 3) { i++; var j = 0; while (true) { j++; if (j > i) { break; } n++; } } n;", "6"},
		{"fn find(xs, v) { var i = 0; while (i < len(xs)) { if (xs[i] == v) { return i; } i++; } return -1; } find([4, 5, 6], 6);", "2"},
		{"var s = \"a\"; s += \"b\"; s;", "ab"},
		{"var x = 10; x -= 4; x *= 3; x /= 2; x %= 5; x--; x;", "3"},
		{"var xs = [1, 2, 3]; xs[1] += 10; xs[2]++; xs[0]--; xs;", "[0, 12, 4]"},
		{"var m = hashMap(); m[\"k\"] = 1; m[\"k\"] *= 7; m[\"k\"];", "7"},
		{"fn f() { var i = 0; while (i < 10) { i++; { break; } } return i; } f();", "1"},
	}

	for _, tt := range tests {
		for _, debug := range []bool{false, true} {
			_, res, _, err := run(t, tt.src, debug)
			if err != nil {
				t.Errorf("%q debug=%v: %v", tt.src, debug, err)
				continue
			}
			if got := value.Display(res); got != tt.want {
				t.Errorf("%q debug=%v: got %s, want %s", tt.src, debug, got, tt.want)
			}
		}
	}
}

func TestPrint(t *testing.T) {
	_, _, out, err := run(t, `print(1); print("x"); print(share([true]));`, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := "1\nx\nshared([true])\n"; out != want {
		t.Errorf("output %q, want %q", out, want)
	}
}

func TestGlobals(t *testing.T) {
	e, _, _, err := run(t, "var counter = 1; counter = counter + 41;", false)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := e.Global("counter")
	if !ok || value.Display(v) != "42" {
		t.Errorf("counter = %v (%v)", v, ok)
	}
	if _, ok := e.Global("missing"); ok {
		t.Error("unbound global reported present")
	}
}

func TestOwnership(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		violation ownership.Violation
		binding   string
		line      int
	}{
		{"global moved", "fn take(own d) { return 0; }\nlet a = 1;\ntake(a);\na;", ownership.MovedValue, "a", 4},
		{"local moved", "fn take(own d) { return 0; }\nfn f(p) {\n  take(p);\n  return p;\n}\nf(1);", ownership.MovedValue, "p", 4},
		{"shared required", "fn g(shared c) { return c; }\ng([1]);", ownership.SharedRequired, "c", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := run(t, tt.src, true)
			var oe *diagnostics.OwnershipError
			if !errors.As(err, &oe) {
				t.Fatalf("expected ownership fault, got %v", err)
			}
			if oe.Violation != tt.violation || oe.Binding != tt.binding || oe.Line != tt.line {
				t.Errorf("got %s on %q at line %d", oe.Violation, oe.Binding, oe.Line)
			}

			if _, _, _, err := run(t, tt.src, false); errors.As(err, &oe) {
				t.Errorf("release run raised %v", err)
			}
		})
	}
}

func TestCompoundAssignmentFaults(t *testing.T) {
	tests := []struct {
		src  string
		msg  string
		line int
	}{
		{"var x = 1;\nx /= 0;", "Division by zero", 2},
		{"var x = \"a\";\nx -= 1;", "Type error: Expected numbers for -", 2},
		{"var xs = [1];\nxs[3] += 1;", "Array index out of bounds", 2},
		{"var b = true;\nb++;", "Type error: Invalid operands for +", 2},
	}
	for _, tt := range tests {
		_, _, _, err := run(t, tt.src, false)
		rt, ok := diagnostics.AsRuntime(err)
		if !ok || rt.Message != tt.msg || rt.Line != tt.line {
			t.Errorf("%q: got %v", tt.src, err)
		}
	}
}

// The index of a compound element update is evaluated once.
func TestCompoundIndexEvaluatesIndexOnce(t *testing.T) {
	src := "var calls = 0; fn at() { calls++; return 1; } var xs = [1, 2]; xs[at()] += 5; [xs, calls];"
	_, res, _, err := run(t, src, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := value.Display(res); got != "[[1, 7], 1]" {
		t.Errorf("got %s", got)
	}
}

func TestCompoundAssignmentReadsMovedValue(t *testing.T) {
	src := "fn take(own d) { return 0; }\nvar a = 1;\ntake(a);\na += 1;"
	_, _, _, err := run(t, src, true)
	var oe *diagnostics.OwnershipError
	if !errors.As(err, &oe) || oe.Violation != ownership.MovedValue || oe.Line != 4 {
		t.Fatalf("expected moved-value fault on line 4, got %v", err)
	}
	if _, _, _, err := run(t, src, false); err != nil {
		t.Errorf("release run: %v", err)
	}
}

func TestBorrowKeepsBinding(t *testing.T) {
	_, res, _, err := run(t, "fn look(borrow xs) { return len(xs); }\nlet xs = [1, 2];\nlook(xs) + len(xs);", true)
	if err != nil {
		t.Fatal(err)
	}
	if value.Display(res) != "4" {
		t.Errorf("got %s", value.Display(res))
	}
}

func TestAdvisory(t *testing.T) {
	e, res, _, err := run(t, "fn take(own x) { return shareGet(x); }\nlet s = share(7);\ntake(s);", true)
	if err != nil {
		t.Fatal(err)
	}
	if value.Display(res) != "7" {
		t.Errorf("got %s", value.Display(res))
	}
	advs := e.Advisories()
	if len(advs) != 1 || advs[0].Code != diagnostics.ErrO100 || advs[0].Line != 3 {
		t.Errorf("unexpected advisories %v", advs)
	}
}

func TestStackTrace(t *testing.T) {
	src := "fn inner() {\n  return [][0];\n}\nfn outer() {\n  return inner();\n}\nouter();"
	_, _, _, err := run(t, src, false)
	rt, ok := diagnostics.AsRuntime(err)
	if !ok {
		t.Fatalf("expected runtime fault, got %v", err)
	}
	want := []diagnostics.StackFrame{{Name: "inner", Line: 2}, {Name: "outer", Line: 5}, {Name: config.MainFunctionName, Line: 7}}
	if len(rt.StackTrace) != len(want) {
		t.Fatalf("trace %v", rt.StackTrace)
	}
	for i := range want {
		if rt.StackTrace[i] != want[i] {
			t.Errorf("frame %d: got %+v, want %+v", i, rt.StackTrace[i], want[i])
		}
	}
}

func TestCallDepth(t *testing.T) {
	e := New()
	e.MaxCallDepth = 10
	_, err := e.Run(parse(t, "fn r(n) { return r(n); } r(1);"))
	if !errors.Is(err, diagnostics.ErrStackOverflow) {
		t.Fatalf("expected stack overflow, got %v", err)
	}
	if len(e.CallStack) != 1 {
		t.Errorf("call stack not unwound: %d frames", len(e.CallStack))
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New()
	e.Context = ctx
	if _, err := e.Run(parse(t, "while (true) { }")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
