// Package diagnostics holds the error types shared by the frontend, the
// compiler and both execution engines.
package diagnostics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/token"
)

type ErrorCode string

const (
	ErrL001 ErrorCode = "L001" // illegal character or literal
	ErrP001 ErrorCode = "P001" // unexpected token
	ErrP002 ErrorCode = "P002" // no prefix parse function
	ErrP003 ErrorCode = "P003" // invalid ownership annotation
	ErrP006 ErrorCode = "P006" // recursion depth exceeded
	ErrA001 ErrorCode = "A001" // assignment to immutable binding
	ErrA002 ErrorCode = "A002" // return outside function
	ErrA003 ErrorCode = "A003" // function declaration below top level
	ErrA004 ErrorCode = "A004" // duplicate parameter or function
	ErrA005 ErrorCode = "A005" // too many parameters or arguments
	ErrA006 ErrorCode = "A006" // break or continue outside a loop
	ErrC001 ErrorCode = "C001" // compiler limit exceeded
	ErrR001 ErrorCode = "R001" // runtime fault
	ErrO001 ErrorCode = "O001" // use of moved value
	ErrO002 ErrorCode = "O002" // shared parameter received a non-shared value
	ErrO100 ErrorCode = "O100" // shared value passed to own/borrow parameter
)

// DiagnosticError is a frontend or compile-time diagnostic tied to a token.
type DiagnosticError struct {
	Code    ErrorCode
	Token   token.Token
	File    string
	Message string
}

func NewError(code ErrorCode, tok token.Token, format string, args ...any) *DiagnosticError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &DiagnosticError{Code: code, Token: tok, Message: msg}
}

func (e *DiagnosticError) Error() string {
	loc := fmt.Sprintf("%d:%d", e.Token.Line, e.Token.Column)
	if e.File != "" {
		loc = e.File + ":" + loc
	}
	return fmt.Sprintf("error [%s] at %s: %s", e.Code, loc, e.Message)
}

// Errors is a list of diagnostics returned as a single error.
type Errors []*DiagnosticError

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

// StackFrame is one entry of a runtime stack trace.
type StackFrame struct {
	Name string
	Line int
}

// RuntimeError is a fault raised while a program executes. Error returns the
// bare message so both engines can be compared textually; Format adds the
// location and the trace.
type RuntimeError struct {
	Code       ErrorCode
	Message    string
	Line       int
	Column     int
	StackTrace []StackFrame
	// Cause is an optional sentinel the fault can be matched against.
	Cause error
}

// ErrStackOverflow is the cause of call-depth faults in both engines.
var ErrStackOverflow = errors.New("stack overflow")

func NewRuntimeError(format string, args ...any) *RuntimeError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &RuntimeError{Code: ErrR001, Message: msg}
}

func (e *RuntimeError) Error() string { return e.Message }

func (e *RuntimeError) Unwrap() error { return e.Cause }

// Located reports whether a source position has been attached.
func (e *RuntimeError) Located() bool { return e.Line > 0 }

func (e *RuntimeError) Format() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "runtime error: ERROR at %d:%d: %s", e.Line, e.Column, e.Message)
	} else {
		fmt.Fprintf(&sb, "runtime error: ERROR: %s", e.Message)
	}
	if len(e.StackTrace) > 0 {
		sb.WriteString("\nStack trace:")
		for _, f := range e.StackTrace {
			fmt.Fprintf(&sb, "\n  at %s (line %d)", f.Name, f.Line)
		}
	}
	return sb.String()
}

// OwnershipError is the runtime fault subclass raised by debug-mode
// ownership enforcement.
type OwnershipError struct {
	RuntimeError
	Violation ownership.Violation
	Binding   string
	Received  string
}

func (e *OwnershipError) Unwrap() error { return &e.RuntimeError }

func NewMovedValue(name string) *OwnershipError {
	return &OwnershipError{
		RuntimeError: RuntimeError{Code: ErrO001, Message: ownership.MovedValueMessage(name)},
		Violation:    ownership.MovedValue,
		Binding:      name,
	}
}

func NewSharedViolation(param, kind string) *OwnershipError {
	return &OwnershipError{
		RuntimeError: RuntimeError{Code: ErrO002, Message: ownership.SharedViolationMessage(param, kind)},
		Violation:    ownership.SharedRequired,
		Binding:      param,
		Received:     kind,
	}
}

// Advisory is a non-fatal note reported alongside a successful result.
type Advisory struct {
	Code    ErrorCode
	Message string
	Line    int
	Column  int
}

func NewAdvisory(fn, param string, mode ownership.Annotation, line, col int) Advisory {
	return Advisory{Code: ErrO100, Message: ownership.AdvisoryMessage(fn, param, mode), Line: line, Column: col}
}

func (a Advisory) String() string {
	return fmt.Sprintf("warning [%s] at %d:%d: %s", a.Code, a.Line, a.Column, a.Message)
}

// AsRuntime extracts the runtime fault carried by err, if any.
func AsRuntime(err error) (*RuntimeError, bool) {
	var rt *RuntimeError
	if errors.As(err, &rt) {
		return rt, true
	}
	return nil, false
}

// Locate attaches a position to err unless an inner frame already did.
func Locate(err error, line, col int) error {
	if rt, ok := AsRuntime(err); ok && !rt.Located() {
		rt.Line = line
		rt.Column = col
	}
	return err
}
