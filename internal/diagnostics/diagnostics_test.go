package diagnostics

import (
	"errors"
	"testing"

	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/token"
)

func TestDiagnosticError(t *testing.T) {
	tok := token.Token{Line: 3, Column: 7}
	err := NewError(ErrA001, tok, "Cannot assign to immutable variable '%s'", "x")
	if got := err.Error(); got != "error [A001] at 3:7: Cannot assign to immutable variable 'x'" {
		t.Errorf("got %q", got)
	}
	err.File = "main.duet"
	if got := err.Error(); got != "error [A001] at main.duet:3:7: Cannot assign to immutable variable 'x'" {
		t.Errorf("got %q", got)
	}

	list := Errors{err, NewError(ErrP001, token.Token{Line: 1, Column: 1}, "bad")}
	if got := list.Error(); got != err.Error()+"\nerror [P001] at 1:1: bad" {
		t.Errorf("got %q", got)
	}
}

func TestRuntimeErrorFormat(t *testing.T) {
	err := NewRuntimeError("Division by zero")
	if got := err.Format(); got != "runtime error: ERROR: Division by zero" {
		t.Errorf("unlocated: %q", got)
	}

	Locate(err, 4, 9)
	Locate(err, 1, 1)
	err.StackTrace = []StackFrame{{Name: "half", Line: 4}, {Name: "<main>", Line: 6}}
	want := "runtime error: ERROR at 4:9: Division by zero\n" +
		"Stack trace:\n" +
		"  at half (line 4)\n" +
		"  at <main> (line 6)"
	if got := err.Format(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if err.Error() != "Division by zero" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestOwnershipErrors(t *testing.T) {
	moved := NewMovedValue("arr")
	if moved.Code != ErrO001 || moved.Violation != ownership.MovedValue {
		t.Errorf("moved: %+v", moved)
	}
	rt, ok := AsRuntime(moved)
	if !ok || rt.Message != ownership.MovedValueMessage("arr") {
		t.Errorf("AsRuntime on ownership fault: %v %v", rt, ok)
	}

	shared := NewSharedViolation("c", "number")
	if shared.Code != ErrO002 || shared.Received != "number" {
		t.Errorf("shared: %+v", shared)
	}
	want := "ownership violation: parameter `c` expects a shared value but received `number`."
	if shared.Error() != want {
		t.Errorf("got %q", shared.Error())
	}
}

func TestCause(t *testing.T) {
	err := NewRuntimeError("Stack overflow: maximum call depth %d exceeded", 8)
	err.Cause = ErrStackOverflow
	if !errors.Is(err, ErrStackOverflow) {
		t.Error("cause not matched")
	}
	if _, ok := AsRuntime(errors.New("host")); ok {
		t.Error("plain error reported as runtime fault")
	}
}

func TestAdvisory(t *testing.T) {
	a := NewAdvisory("peek", "x", ownership.Borrow, 2, 6)
	want := "warning [O100] at 2:6: ownership advisory: parameter `x` of `peek` is declared `borrow` but received a shared value; the shared cell stays aliased."
	if a.String() != want {
		t.Errorf("got %q", a.String())
	}
}
