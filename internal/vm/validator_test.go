package vm

import (
	"errors"
	"testing"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/value"
)

// asm builds a chunk from raw instructions, all attributed to line 1.
type asm struct{ c *Chunk }

func newAsm() *asm { return &asm{c: NewChunk()} }

func (a *asm) op(op Opcode) *asm {
	a.c.WriteOp(op, 1, 1)
	return a
}

func (a *asm) u16(op Opcode, v int) *asm {
	a.c.WriteOp(op, 1, 1)
	a.c.WriteU16(v)
	return a
}

func (a *asm) raw(bs ...byte) *asm {
	for _, b := range bs {
		a.c.Write(b)
	}
	return a
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		chunk func() *Chunk
		kind  ValidationKind
	}{
		{
			name:  "empty",
			chunk: func() *Chunk { return NewChunk() },
			kind:  KindTermination,
		},
		{
			name:  "unknown opcode",
			chunk: func() *Chunk { return newAsm().raw(0x99).op(OP_HALT).c },
			kind:  KindDecode,
		},
		{
			name:  "truncated operand",
			chunk: func() *Chunk { return newAsm().op(OP_CONST).raw(0).c },
			kind:  KindDecode,
		},
		{
			name: "constant out of range",
			chunk: func() *Chunk {
				return newAsm().u16(OP_CONST, 5).op(OP_HALT).c
			},
			kind: KindConstant,
		},
		{
			name: "global name not a string",
			chunk: func() *Chunk {
				a := newAsm()
				a.c.AddConstant(value.Number(1))
				return a.u16(OP_GET_GLOBAL, 0).op(OP_HALT).c
			},
			kind: KindConstant,
		},
		{
			name: "jump outside code",
			chunk: func() *Chunk {
				return newAsm().u16(OP_JUMP, 100).op(OP_NULL).op(OP_HALT).c
			},
			kind: KindJump,
		},
		{
			name: "jump into operand",
			chunk: func() *Chunk {
				a := newAsm()
				a.c.AddConstant(value.Number(1))
				// JUMP at 0, CONST at 3 with its operand at 4.
				return a.u16(OP_JUMP, 1).u16(OP_CONST, 0).op(OP_HALT).c
			},
			kind: KindJump,
		},
		{
			name: "local slot out of range",
			chunk: func() *Chunk {
				return newAsm().u16(OP_GET_LOCAL, 0).op(OP_HALT).c
			},
			kind: KindLocal,
		},
		{
			name:  "stack underflow",
			chunk: func() *Chunk { return newAsm().op(OP_NULL).op(OP_ADD).op(OP_HALT).c },
			kind:  KindStack,
		},
		{
			name:  "dup2 underflow",
			chunk: func() *Chunk { return newAsm().op(OP_NULL).op(OP_DUP2).op(OP_HALT).c },
			kind:  KindStack,
		},
		{
			name: "ownership check in a release chunk",
			chunk: func() *Chunk {
				return newAsm().op(OP_NULL).op(OP_NULL).op(OP_CHECK_ARG).raw(0, 0, 0, 0).op(OP_POP).op(OP_HALT).c
			},
			kind: KindInstrumentation,
		},
		{
			name:  "falls off the end",
			chunk: func() *Chunk { return newAsm().op(OP_NULL).op(OP_POP).c },
			kind:  KindTermination,
		},
		{
			name: "depth mismatch at join",
			chunk: func() *Chunk {
				// TRUE; JUMP_IF_FALSE -> HALT; NULL; HALT
				return newAsm().op(OP_TRUE).u16(OP_JUMP_IF_FALSE, 1).op(OP_NULL).op(OP_HALT).c
			},
			kind: KindStack,
		},
		{
			name: "bad argument origin",
			chunk: func() *Chunk {
				a := newAsm().op(OP_NULL).op(OP_NULL)
				a.c.WriteOp(OP_CHECK_ARG, 1, 1)
				return a.raw(0, 7, 0, 0).op(OP_HALT).c
			},
			kind: KindDecode,
		},
		{
			name: "function entry inside instruction",
			chunk: func() *Chunk {
				a := newAsm()
				a.c.AddConstant(&value.Function{Name: "f", Entry: 1, LocalCount: 0})
				return a.u16(OP_CONST, 0).op(OP_HALT).c
			},
			kind: KindFunction,
		},
		{
			name: "main entry outside code",
			chunk: func() *Chunk {
				a := newAsm().op(OP_NULL).op(OP_HALT)
				a.c.Main.Entry = 9
				return a.c
			},
			kind: KindFunction,
		},
		{
			name: "fewer locals than parameters",
			chunk: func() *Chunk {
				a := newAsm()
				a.c.AddConstant(&value.Function{Name: "f", Entry: 4, Arity: 2, LocalCount: 1})
				// CONST f; HALT; then the body of f at 4.
				return a.u16(OP_CONST, 0).op(OP_HALT).op(OP_NULL).op(OP_RETURN).c
			},
			kind: KindFunction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := tt.chunk()
			_, err := Validate(chunk, DefaultValidatorOptions())
			var vf *ValidationFailure
			if !errors.As(err, &vf) {
				t.Fatalf("expected validation failure, got %v", err)
			}
			if !vf.Has(tt.kind) {
				t.Errorf("expected a %s finding, got:\n%v", tt.kind, vf)
			}
			if chunk.Validated() {
				t.Error("rejected chunk marked validated")
			}
		})
	}
}

func TestValidateStackLimit(t *testing.T) {
	chunk := newAsm().op(OP_NULL).op(OP_NULL).op(OP_NULL).op(OP_POP).op(OP_POP).op(OP_HALT).c

	if _, err := Validate(chunk, ValidatorOptions{MaxStackDepth: 2}); err == nil {
		t.Fatal("expected stack limit failure")
	}

	report, err := Validate(chunk, ValidatorOptions{MaxStackDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	if report.MaxDepth[0] != 3 {
		t.Errorf("max depth %d, want 3", report.MaxDepth[0])
	}
}

func TestUnreachableCodePolicy(t *testing.T) {
	build := func() *Chunk {
		return newAsm().op(OP_NULL).op(OP_HALT).op(OP_NULL).op(OP_HALT).c
	}

	chunk := build()
	report, err := Validate(chunk, ValidatorOptions{DeadCode: config.DeadCodeWarn})
	if err != nil {
		t.Fatalf("warn policy rejected chunk: %v", err)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Kind != KindUnreachable || report.Warnings[0].Offset != 2 {
		t.Errorf("unexpected warnings %v", report.Warnings)
	}
	if !chunk.Validated() {
		t.Error("chunk not marked validated")
	}

	chunk = build()
	_, err = Validate(chunk, ValidatorOptions{DeadCode: config.DeadCodeReject})
	var vf *ValidationFailure
	if !errors.As(err, &vf) || !vf.Has(KindUnreachable) {
		t.Fatalf("reject policy: got %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	if _, err := Validate(nil, DefaultValidatorOptions()); !errors.Is(err, ErrNilChunk) {
		t.Fatalf("got %v", err)
	}
}

func TestWriteInvalidates(t *testing.T) {
	chunk := newAsm().op(OP_NULL).op(OP_HALT).c
	if _, err := Validate(chunk, DefaultValidatorOptions()); err != nil {
		t.Fatal(err)
	}
	chunk.AddConstant(value.Number(1))
	if chunk.Validated() {
		t.Error("AddConstant kept the validation mark")
	}
	if _, err := Validate(chunk, DefaultValidatorOptions()); err != nil {
		t.Fatal(err)
	}
	chunk.Invalidate()
	if chunk.Validated() {
		t.Error("Invalidate kept the validation mark")
	}
}

// Every chunk the compiler emits must pass the strictest policy.
func TestCompiledChunksValidate(t *testing.T) {
	programs := []string{
		"1;",
		"let x = 1;",
		"fn f(own a, borrow b, shared c, d) -> own { return [a, b, c, d]; } f(1, 2, share(3), 4);",
		"fn f(n) { if (n > 0) { return 1; } else { return 2; } } f(1);",
		"fn f(n) { var k = n; while (k > 0) { k = k - 1; } return k; } f(3);",
		"var i = 0; while (i < 3) { let t = i * 2; i = i + 1; } i;",
		"if (true) { 1; } else if (false) { 2; } else { 3; }",
		"let a = true && false || !true;",
		"fn g() { let xs = [1, 2]; var ys = xs; ys[0] = 3; return ys; } g();",
		"var i = 0; while (true) { i += 1; if (i > 3) { break; } } i;",
		"fn f(xs) { var i = 0; var s = 0; while (i < len(xs)) { i++; if (xs[i - 1] < 0) { continue; } s += xs[i - 1]; } return s; } f([1, -2, 3]);",
		"while (true) { if (true) { break; } else { continue; } }",
		"var n = 0; while (n < 3) { n++; while (true) { if (n == 2) { break; } n += 10; continue; } }",
		"fn f() { while (true) { let x = 1; { break; } } return 0; } f();",
		"var xs = [1, 2]; xs[0] += 1; xs[1]--; xs[0] *= xs[1]; xs;",
	}
	for _, src := range programs {
		for _, debug := range []bool{false, true} {
			chunk := compileSource(t, src, debug)
			chunk.Invalidate()
			report, err := Validate(chunk, ValidatorOptions{DeadCode: config.DeadCodeReject})
			if err != nil {
				t.Errorf("%q debug=%v: %v", src, debug, err)
				continue
			}
			if len(report.Warnings) > 0 {
				t.Errorf("%q debug=%v: warnings %v", src, debug, report.Warnings)
			}
		}
	}
}
