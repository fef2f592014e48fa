package ast

import (
	"strings"

	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/token"
)

// TokenProvider is implemented by every node that can report its primary
// token for diagnostics.
type TokenProvider interface {
	GetToken() token.Token
}

// Node is the base interface for all AST nodes.
type Node interface {
	TokenLiteral() string
	String() string
}

// Statement is a Node that represents a statement.
type Statement interface {
	Node
	statementNode()
	GetToken() token.Token
}

// Expression is a Node that represents an expression.
type Expression interface {
	Node
	expressionNode()
	GetToken() token.Token
}

// Program is the root node of every AST our parser produces.
type Program struct {
	File       string
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var sb strings.Builder
	for _, s := range p.Statements {
		sb.WriteString(s.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Functions returns the top-level function declarations in source order.
func (p *Program) Functions() []*FunctionStatement {
	var fns []*FunctionStatement
	for _, s := range p.Statements {
		if fn, ok := s.(*FunctionStatement); ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// LetStatement declares a binding: let x = 1; or var x = 1;
type LetStatement struct {
	Token   token.Token // 'let' or 'var'
	Name    *Identifier
	Mutable bool
	Value   Expression
}

func (ls *LetStatement) statementNode()        {}
func (ls *LetStatement) TokenLiteral() string  { return ls.Token.Lexeme }
func (ls *LetStatement) GetToken() token.Token { return ls.Token }
func (ls *LetStatement) String() string {
	kw := "let"
	if ls.Mutable {
		kw = "var"
	}
	return kw + " " + ls.Name.String() + " = " + ls.Value.String() + ";"
}

// AssignStatement rebinds a mutable name: x = expr; x += expr; x++;
// Operator is empty for a plain assignment, otherwise the binary operator
// applied to the old value and Value. x++ carries Operator "+" and Value 1.
type AssignStatement struct {
	Token    token.Token // '=', 'op=', '++' or '--'
	Name     *Identifier
	Operator string
	Value    Expression
}

func (as *AssignStatement) statementNode()        {}
func (as *AssignStatement) TokenLiteral() string  { return as.Token.Lexeme }
func (as *AssignStatement) GetToken() token.Token { return as.Token }
func (as *AssignStatement) String() string {
	return as.Name.String() + assignSuffix(as.Token, as.Operator, as.Value)
}

// IndexAssignStatement replaces one element: xs[i] = expr; xs[i] op= expr;
// The aggregate is rebuilt and stored back into Target.
type IndexAssignStatement struct {
	Token    token.Token // '=', 'op=', '++' or '--'
	Target   *Identifier
	Index    Expression
	Operator string
	Value    Expression
}

func (ia *IndexAssignStatement) statementNode()        {}
func (ia *IndexAssignStatement) TokenLiteral() string  { return ia.Token.Lexeme }
func (ia *IndexAssignStatement) GetToken() token.Token { return ia.Token }
func (ia *IndexAssignStatement) String() string {
	return ia.Target.String() + "[" + ia.Index.String() + "]" + assignSuffix(ia.Token, ia.Operator, ia.Value)
}

// IsStep reports whether tok is '++' or '--'.
func IsStep(tok token.Token) bool {
	return tok.Type == token.INCREMENT || tok.Type == token.DECREMENT
}

func assignSuffix(tok token.Token, op string, val Expression) string {
	if IsStep(tok) {
		return tok.Lexeme + ";"
	}
	return " " + op + "= " + val.String() + ";"
}

// ExpressionStatement is a statement that consists of a single expression.
type ExpressionStatement struct {
	Token      token.Token // the first token of the expression
	Expression Expression
}

func (es *ExpressionStatement) statementNode()        {}
func (es *ExpressionStatement) TokenLiteral() string  { return es.Token.Lexeme }
func (es *ExpressionStatement) GetToken() token.Token { return es.Token }
func (es *ExpressionStatement) String() string        { return es.Expression.String() + ";" }

// BlockStatement represents a list of statements within curly braces.
type BlockStatement struct {
	Token       token.Token // {
	Statements  []Statement
	RBraceToken token.Token
}

func (bs *BlockStatement) statementNode()        {}
func (bs *BlockStatement) TokenLiteral() string  { return bs.Token.Lexeme }
func (bs *BlockStatement) GetToken() token.Token { return bs.Token }
func (bs *BlockStatement) String() string {
	parts := make([]string, len(bs.Statements))
	for i, s := range bs.Statements {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// IfStatement: if (cond) { ... } else { ... }
// Alternative is nil, a *BlockStatement or a nested *IfStatement.
type IfStatement struct {
	Token       token.Token
	Condition   Expression
	Consequence *BlockStatement
	Alternative Statement
}

func (is *IfStatement) statementNode()        {}
func (is *IfStatement) TokenLiteral() string  { return is.Token.Lexeme }
func (is *IfStatement) GetToken() token.Token { return is.Token }
func (is *IfStatement) String() string {
	s := "if (" + is.Condition.String() + ") " + is.Consequence.String()
	if is.Alternative != nil {
		s += " else " + is.Alternative.String()
	}
	return s
}

// WhileStatement: while (cond) { ... }
type WhileStatement struct {
	Token     token.Token
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode()        {}
func (ws *WhileStatement) TokenLiteral() string  { return ws.Token.Lexeme }
func (ws *WhileStatement) GetToken() token.Token { return ws.Token }
func (ws *WhileStatement) String() string {
	return "while (" + ws.Condition.String() + ") " + ws.Body.String()
}

// BreakStatement leaves the innermost loop.
type BreakStatement struct {
	Token token.Token
}

func (bs *BreakStatement) statementNode()        {}
func (bs *BreakStatement) TokenLiteral() string  { return bs.Token.Lexeme }
func (bs *BreakStatement) GetToken() token.Token { return bs.Token }
func (bs *BreakStatement) String() string        { return "break;" }

// ContinueStatement jumps to the next condition check of the innermost loop.
type ContinueStatement struct {
	Token token.Token
}

func (cs *ContinueStatement) statementNode()        {}
func (cs *ContinueStatement) TokenLiteral() string  { return cs.Token.Lexeme }
func (cs *ContinueStatement) GetToken() token.Token { return cs.Token }
func (cs *ContinueStatement) String() string        { return "continue;" }

// ReturnStatement: return expr; Value is nil for a bare return.
type ReturnStatement struct {
	Token token.Token
	Value Expression
}

func (rs *ReturnStatement) statementNode()        {}
func (rs *ReturnStatement) TokenLiteral() string  { return rs.Token.Lexeme }
func (rs *ReturnStatement) GetToken() token.Token { return rs.Token }
func (rs *ReturnStatement) String() string {
	if rs.Value == nil {
		return "return;"
	}
	return "return " + rs.Value.String() + ";"
}

// Parameter is one function parameter with its ownership mode.
type Parameter struct {
	Token     token.Token
	Name      *Identifier
	Ownership ownership.Annotation
}

func (p *Parameter) String() string {
	if p.Ownership == ownership.None {
		return p.Name.Value
	}
	return p.Ownership.String() + " " + p.Name.Value
}

// FunctionStatement represents a function definition.
// fn name(own a, borrow b) -> own { body }
type FunctionStatement struct {
	Token           token.Token // 'fn'
	Name            *Identifier
	Parameters      []*Parameter
	ReturnOwnership ownership.Annotation
	Body            *BlockStatement
}

func (fs *FunctionStatement) statementNode()        {}
func (fs *FunctionStatement) TokenLiteral() string  { return fs.Token.Lexeme }
func (fs *FunctionStatement) GetToken() token.Token { return fs.Token }
func (fs *FunctionStatement) String() string {
	params := make([]string, len(fs.Parameters))
	for i, p := range fs.Parameters {
		params[i] = p.String()
	}
	s := "fn " + fs.Name.Value + "(" + strings.Join(params, ", ") + ")"
	if fs.ReturnOwnership != ownership.None {
		s += " -> " + fs.ReturnOwnership.String()
	}
	return s + " " + fs.Body.String()
}

// ParamNames returns the parameter names in declaration order.
func (fs *FunctionStatement) ParamNames() []string {
	names := make([]string, len(fs.Parameters))
	for i, p := range fs.Parameters {
		names[i] = p.Name.Value
	}
	return names
}

// ParamOwnership returns one annotation per parameter, None when absent.
func (fs *FunctionStatement) ParamOwnership() []ownership.Annotation {
	modes := make([]ownership.Annotation, len(fs.Parameters))
	for i, p := range fs.Parameters {
		modes[i] = p.Ownership
	}
	return modes
}
