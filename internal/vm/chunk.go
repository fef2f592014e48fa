package vm

import (
	"crypto/sha256"
	encbinary "encoding/binary"
	"sort"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/value"
)

// Span maps the instruction starting at Offset to its source position.
type Span struct {
	Offset int
	Line   int
	Column int
}

// Chunk represents a compiled program: one instruction stream shared by
// <main> and every function, the constant pool and the span table.
//
// Only Validate marks a chunk runnable. The mark records a fingerprint of
// the code, the constant pool, the function records and the debug flag, so
// any later edit, through the Chunk methods or directly, makes the chunk
// unvalidated again.
type Chunk struct {
	// Code is the bytecode instructions
	Code []byte

	// Constants pool: numbers, strings, global names and function refs
	Constants []value.Value

	// Spans holds one entry per instruction, in offset order
	Spans []Span

	// Main is the top-level pseudo-function starting at offset 0
	Main *value.Function

	// Debug records whether ownership instrumentation was emitted
	Debug bool

	// File is the source file name
	File string

	// seal is the fingerprint Validate accepted, nil when unvalidated.
	seal *[sha256.Size]byte
}

// NewChunk creates a new empty chunk
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Constants: make([]value.Value, 0, 64),
		Spans:     make([]Span, 0, 128),
		Main:      &value.Function{Name: config.MainFunctionName},
	}
}

// Write appends a raw byte
func (c *Chunk) Write(b byte) {
	c.Code = append(c.Code, b)
	c.seal = nil
}

// WriteOp appends an opcode, records its span and returns its offset
func (c *Chunk) WriteOp(op Opcode, line, col int) int {
	offset := len(c.Code)
	c.Spans = append(c.Spans, Span{Offset: offset, Line: line, Column: col})
	c.Write(byte(op))
	return offset
}

// WriteU16 appends a big-endian 16-bit operand
func (c *Chunk) WriteU16(v int) {
	c.Write(byte(v >> 8))
	c.Write(byte(v))
}

// AddConstant adds a constant to the pool and returns its index
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	c.seal = nil
	return len(c.Constants) - 1
}

// ReadU16 reads a 2-byte operand at offset
func (c *Chunk) ReadU16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

// Len returns the number of bytes in the chunk
func (c *Chunk) Len() int {
	return len(c.Code)
}

// Validated reports whether the chunk passed validation and is unchanged
// since.
func (c *Chunk) Validated() bool {
	return c.seal != nil && *c.seal == c.fingerprint()
}

// Invalidate clears the validation mark.
func (c *Chunk) Invalidate() { c.seal = nil }

func (c *Chunk) markValidated() {
	sum := c.fingerprint()
	c.seal = &sum
}

// fingerprint hashes everything the validator's verdict depends on. Spans
// and names only feed fault texts and are left out.
func (c *Chunk) fingerprint() [sha256.Size]byte {
	h := sha256.New()
	var buf [8]byte
	putInt := func(n int) {
		encbinary.BigEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	putString := func(s string) {
		putInt(len(s))
		h.Write([]byte(s))
	}
	putFn := func(fn *value.Function) {
		if fn == nil {
			putInt(-1)
			return
		}
		putInt(fn.Entry)
		putInt(fn.Arity)
		putInt(fn.LocalCount)
		putInt(len(fn.ParamOwnership))
		for _, m := range fn.ParamOwnership {
			putInt(int(m.Tag()))
		}
		if fn.IsBuiltin() {
			putString(fn.Name)
		}
	}

	putInt(len(c.Code))
	h.Write(c.Code)
	if c.Debug {
		putInt(1)
	} else {
		putInt(0)
	}
	putInt(len(c.Constants))
	for _, k := range c.Constants {
		switch k := k.(type) {
		case nil:
			putString("")
		case *value.Function:
			putString("function")
			putFn(k)
		default:
			putString(value.TypeName(k))
			putString(value.Display(k))
		}
	}
	putFn(c.Main)

	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return sum
}

// SpanAt returns the span of the instruction covering offset.
func (c *Chunk) SpanAt(offset int) (Span, bool) {
	i := sort.Search(len(c.Spans), func(i int) bool { return c.Spans[i].Offset > offset })
	if i == 0 {
		return Span{}, false
	}
	return c.Spans[i-1], true
}

// Functions returns the user function refs held in the constant pool.
func (c *Chunk) Functions() []*value.Function {
	var fns []*value.Function
	for _, k := range c.Constants {
		if fn, ok := k.(*value.Function); ok && !fn.IsBuiltin() {
			fns = append(fns, fn)
		}
	}
	return fns
}
