package vm

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/token"
	"github.com/funvibe/duet/internal/value"
)

// Compiler limits imposed by the operand encodings.
const (
	MaxConstants = 1 << 16
	MaxLocals    = 1 << 16
	MaxArgs      = 255
	MaxJump      = 0xffff
)

// funcState tracks slot allocation for the function being compiled.
// Slots are never reused: every declaration in any nested block gets the
// next index.
type funcState struct {
	fn       *value.Function
	scopes   []map[string]int
	nextSlot int
	isMain   bool
	loops    []*loopState
}

// loopState is the innermost enclosing loop: continue jumps back to start,
// break jumps are patched to the loop exit.
type loopState struct {
	start  int
	breaks []int
}

// Compiler compiles AST to bytecode
type Compiler struct {
	chunk *Chunk
	debug bool

	fn *funcState

	// names dedupes global-name constants
	names map[string]int

	// tok is the token errors are reported against
	tok    token.Token
	errors []*diagnostics.DiagnosticError
}

// NewCompiler creates a compiler. With debug set, every call argument is
// followed by an OP_CHECK_ARG carrying its ownership origin.
func NewCompiler(debug bool) *Compiler {
	chunk := NewChunk()
	chunk.Debug = debug
	return &Compiler{
		chunk: chunk,
		debug: debug,
		names: make(map[string]int),
	}
}

// Compile compiles program into an unvalidated chunk.
func (c *Compiler) Compile(program *ast.Program) (*Chunk, error) {
	c.chunk.File = program.File
	c.fn = &funcState{fn: c.chunk.Main, isMain: true}

	// Hoisting: every function is bound before any other statement runs.
	for _, decl := range program.Functions() {
		c.compileFunction(decl)
	}

	n := len(program.Statements)
	valued := false
	for i, stmt := range program.Statements {
		if _, ok := stmt.(*ast.FunctionStatement); ok {
			continue
		}
		if es, ok := stmt.(*ast.ExpressionStatement); ok && i == n-1 {
			// The program's value stays on the stack for HALT.
			c.setToken(es.Token)
			c.compileExpression(es.Expression)
			valued = true
			continue
		}
		c.compileStatement(stmt)
	}
	if !valued {
		c.emit(OP_NULL)
	}
	c.emit(OP_HALT)

	c.chunk.Main.LocalCount = c.fn.nextSlot

	if len(c.errors) > 0 {
		for _, err := range c.errors {
			err.File = program.File
		}
		return nil, diagnostics.Errors(c.errors)
	}
	return c.chunk, nil
}

// Compile is a convenience wrapper around NewCompiler(debug).Compile.
func Compile(program *ast.Program, debug bool) (*Chunk, error) {
	return NewCompiler(debug).Compile(program)
}

// compileFunction emits: JUMP over; body; CONST fn; SET_GLOBAL name; POP
func (c *Compiler) compileFunction(decl *ast.FunctionStatement) {
	c.setToken(decl.Token)
	over := c.emitJump(OP_JUMP)

	ref := &value.Function{
		Name:            decl.Name.Value,
		Arity:           len(decl.Parameters),
		Entry:           c.chunk.Len(),
		ParamNames:      decl.ParamNames(),
		ParamOwnership:  decl.ParamOwnership(),
		ReturnOwnership: decl.ReturnOwnership,
	}

	enclosing := c.fn
	c.fn = &funcState{fn: ref}
	c.beginScope()
	for _, p := range decl.Parameters {
		c.declareLocal(p.Name.Value)
	}
	c.compileStatements(decl.Body.Statements)
	if !blockTerminates(decl.Body) {
		c.setToken(decl.Body.RBraceToken)
		c.emit(OP_NULL)
		c.emit(OP_RETURN)
	}
	c.endScope()
	ref.LocalCount = c.fn.nextSlot
	c.fn = enclosing

	c.setToken(decl.Token)
	c.patchJump(over)
	c.emitConstant(ref)
	c.emitU16(OP_SET_GLOBAL, c.nameConstant(ref.Name))
	c.emit(OP_POP)
}

func (c *Compiler) setToken(tok token.Token) { c.tok = tok }

func (c *Compiler) addError(format string, args ...any) {
	c.errors = append(c.errors, diagnostics.NewError(diagnostics.ErrC001, c.tok, format, args...))
}

// nameConstant returns the pool index of a global name.
func (c *Compiler) nameConstant(name string) int {
	if idx, ok := c.names[name]; ok {
		return idx
	}
	idx := c.addConstant(value.String(name))
	c.names[name] = idx
	return idx
}

func (c *Compiler) addConstant(v value.Value) int {
	if len(c.chunk.Constants) >= MaxConstants {
		c.addError("too many constants in one program (limit %d)", MaxConstants)
		return 0
	}
	return c.chunk.AddConstant(v)
}
