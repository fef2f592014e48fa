package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/value"
)

// findOp returns the offset of the first op instruction in chunk, or -1.
func findOp(chunk *Chunk, op Opcode) int {
	for off := 0; off < len(chunk.Code); off += Opcode(chunk.Code[off]).Size() {
		if Opcode(chunk.Code[off]) == op {
			return off
		}
	}
	return -1
}

func TestDirectEditsInvalidate(t *testing.T) {
	const src = "fn step(n) { return n + 1; }\nvar i = 0;\nwhile (i < 3) { i = step(i); }\ni;"

	tests := []struct {
		name string
		edit func(c *Chunk)
	}{
		{"jump operand", func(c *Chunk) {
			off := findOp(c, OP_JUMP_IF_FALSE)
			c.Code[off+1], c.Code[off+2] = 0x7f, 0xff
		}},
		{"truncated code", func(c *Chunk) { c.Code = c.Code[:len(c.Code)-1] }},
		{"main locals", func(c *Chunk) { c.Main.LocalCount += 4 }},
		{"main entry", func(c *Chunk) { c.Main.Entry = 3 }},
		{"function locals", func(c *Chunk) { c.Functions()[0].LocalCount = 0 }},
		{"function entry", func(c *Chunk) { c.Functions()[0].Entry++ }},
		{"constant replaced", func(c *Chunk) { c.Constants[0] = value.String("edited") }},
		{"constant dropped", func(c *Chunk) { c.Constants = c.Constants[:len(c.Constants)-1] }},
		{"debug flag", func(c *Chunk) { c.Debug = !c.Debug }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := compileSource(t, src, false)
			if !chunk.Validated() {
				t.Fatal("compiled chunk not validated")
			}
			tt.edit(chunk)
			if chunk.Validated() {
				t.Fatal("edited chunk still reports validated")
			}
			if _, err := New().Run(chunk); !errors.Is(err, ErrUnvalidated) {
				t.Fatalf("expected ErrUnvalidated, got %v", err)
			}
		})
	}
}

func TestSpanEditsKeepValidation(t *testing.T) {
	chunk := compileSource(t, "1 + 2;", false)
	chunk.Spans[0].Line = 40
	chunk.File = "renamed.duet"
	if !chunk.Validated() {
		t.Error("position-only edits dropped the validation mark")
	}
}

func TestReleaseChunkRefusesInstrumentation(t *testing.T) {
	const src = "fn consume(own data) { return len(data); }\nlet arr = [1, 2, 3];\nconsume(arr);\narr;"

	data, err := Serialize(compileSource(t, src, true))
	if err != nil {
		t.Fatal(err)
	}
	chunk, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	chunk.Debug = false

	_, err = Validate(chunk, DefaultValidatorOptions())
	var vf *ValidationFailure
	if !errors.As(err, &vf) || !vf.Has(KindInstrumentation) {
		t.Fatalf("expected an instrumentation finding, got %v", err)
	}

	// Even when forced to run, a release chunk checks nothing.
	chunk.markValidated()
	res, err := New().Run(chunk)
	if err != nil {
		t.Fatalf("release run faulted: %v", err)
	}
	if got := value.Display(res); got != "[1, 2, 3]" {
		t.Errorf("got %s, want [1, 2, 3]", got)
	}
}

func TestSetLocalOutOfRangeFaults(t *testing.T) {
	chunk := newAsm().op(OP_NULL).u16(OP_SET_LOCAL, 3).op(OP_POP).op(OP_NULL).op(OP_HALT).c
	chunk.Main.LocalCount = 2

	if _, err := Validate(chunk, DefaultValidatorOptions()); err == nil {
		t.Fatal("validator accepted an out-of-range slot")
	}

	chunk.markValidated()
	_, err := New().Run(chunk)
	rt, ok := diagnostics.AsRuntime(err)
	if !ok {
		t.Fatalf("expected runtime fault, got %v", err)
	}
	if !strings.HasPrefix(rt.Message, "Invalid local slot 3 in <main> (local count 2)") {
		t.Errorf("message %q", rt.Message)
	}
	if rt.Line != 1 {
		t.Errorf("line %d, want 1", rt.Line)
	}
}

func TestStoreLocal(t *testing.T) {
	a, b := value.String("a"), value.String("b")
	v := value.Number(7)

	t.Run("slot below operand", func(t *testing.T) {
		machine := New()
		machine.stack = []value.Value{a, b, value.Null{}, v}
		f := &CallFrame{fn: &value.Function{Name: "f", LocalCount: 2}, base: 1}
		machine.storeLocal(f, 1)
		want := []string{"a", "b", "7", "7"}
		checkStack(t, machine.stack, want)
	})

	t.Run("slot above operand", func(t *testing.T) {
		machine := New()
		machine.stack = []value.Value{a, b, v}
		f := &CallFrame{fn: &value.Function{Name: "f", LocalCount: 4}, base: 1}
		machine.storeLocal(f, 3)
		// Slots 1 and 2 of the frame are filled with null, slot 3 holds the
		// value and the operand stays on top: len = base + slot + 2.
		want := []string{"a", "b", "null", "null", "7", "7"}
		checkStack(t, machine.stack, want)
	})

	t.Run("slot at operand", func(t *testing.T) {
		machine := New()
		machine.stack = []value.Value{a, v}
		f := &CallFrame{fn: &value.Function{Name: "f", LocalCount: 1}, base: 1}
		machine.storeLocal(f, 0)
		want := []string{"a", "7", "7"}
		checkStack(t, machine.stack, want)
	})
}

func checkStack(t *testing.T, stack []value.Value, want []string) {
	t.Helper()
	if len(stack) != len(want) {
		t.Fatalf("stack length %d, want %d", len(stack), len(want))
	}
	for i, w := range want {
		if got := value.Display(stack[i]); got != w {
			t.Errorf("stack[%d] = %s, want %s", i, got, w)
		}
	}
}

// Every declaration gets its own slot: parameters first, then block locals
// in source order, with no reuse between sibling blocks.
func TestSlotAllocation(t *testing.T) {
	src := `
fn f(a, b) {
  let c = 1;
  if (true) { let d = 2; } else { let e = 3; }
  var i = 0;
  while (i < 1) { let g = i; i += 1; }
  return a;
}
{ let x = 1; }
{ let y = 2; }
f(1, 2);
`
	chunk := compileSource(t, src, true)
	fn := chunk.Functions()[0]
	if fn.LocalCount != 7 {
		t.Errorf("f has %d locals, want 7", fn.LocalCount)
	}
	if got := strings.Join(fn.LocalNames, ","); got != "a,b,c,d,e,i,g" {
		t.Errorf("f slots %s", got)
	}
	if chunk.Main.LocalCount != 2 {
		t.Errorf("<main> has %d locals, want 2", chunk.Main.LocalCount)
	}

	res, _, err := runSource(t, src, true)
	if err != nil || value.Display(res) != "1" {
		t.Fatalf("got %v, %v", res, err)
	}
}
