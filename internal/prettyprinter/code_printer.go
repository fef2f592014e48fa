// Package prettyprinter prints duet programs back as canonical source.
// Comments are not part of the AST and are not preserved.
package prettyprinter

import (
	"bytes"
	"strings"

	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/token"
)

// Operator precedence (higher = binds tighter), as the parser reads it.
var operatorPrecedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3,
	"!=": 3,
	"<":  4,
	">":  4,
	"<=": 4,
	">=": 4,
	"+":  5,
	"-":  5,
	"*":  6,
	"/":  6,
	"%":  6,
}

const prefixPrecedence = 7

func getPrecedence(op string) int {
	if p, ok := operatorPrecedence[op]; ok {
		return p
	}
	return prefixPrecedence + 1
}

type CodePrinter struct {
	buf       bytes.Buffer
	indent    int
	lineWidth int // max line width (0 = unlimited)
	column    int // current column position
}

func NewCodePrinter() *CodePrinter {
	return &CodePrinter{lineWidth: 100}
}

func NewCodePrinterWithWidth(width int) *CodePrinter {
	return &CodePrinter{lineWidth: width}
}

// Format prints program with the default line width.
func Format(program *ast.Program) string {
	p := NewCodePrinter()
	p.PrintProgram(program)
	return p.String()
}

func (p *CodePrinter) String() string {
	return p.buf.String()
}

func (p *CodePrinter) write(s string) {
	p.buf.WriteString(s)
	if idx := strings.LastIndex(s, "\n"); idx != -1 {
		p.column = len(s) - idx - 1
	} else {
		p.column += len(s)
	}
}

func (p *CodePrinter) writeln() {
	p.buf.WriteString("\n")
	p.column = 0
}

func (p *CodePrinter) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("    ")
	}
	p.column = p.indent * 4
}

// PrintProgram prints every top-level statement. Function declarations are
// separated from their neighbours by a blank line.
func (p *CodePrinter) PrintProgram(n *ast.Program) {
	var prev ast.Statement
	for _, stmt := range n.Statements {
		_, isFn := stmt.(*ast.FunctionStatement)
		_, prevFn := prev.(*ast.FunctionStatement)
		if prev != nil && (isFn || prevFn) {
			p.writeln()
		}
		p.printStatement(stmt)
		p.writeln()
		prev = stmt
	}
}

func (p *CodePrinter) printStatement(stmt ast.Statement) {
	p.writeIndent()
	switch s := stmt.(type) {
	case *ast.LetStatement:
		if s.Mutable {
			p.write("var ")
		} else {
			p.write("let ")
		}
		p.write(s.Name.Value + " = ")
		p.printExpr(s.Value, 0, false)
		p.write(";")
	case *ast.AssignStatement:
		p.write(s.Name.Value)
		p.printAssignTail(s.Token, s.Operator, s.Value)
	case *ast.IndexAssignStatement:
		p.write(s.Target.Value + "[")
		p.printExpr(s.Index, 0, false)
		p.write("]")
		p.printAssignTail(s.Token, s.Operator, s.Value)
	case *ast.BreakStatement:
		p.write("break;")
	case *ast.ContinueStatement:
		p.write("continue;")
	case *ast.ExpressionStatement:
		p.printExpr(s.Expression, 0, false)
		p.write(";")
	case *ast.ReturnStatement:
		p.write("return")
		if s.Value != nil {
			p.write(" ")
			p.printExpr(s.Value, 0, false)
		}
		p.write(";")
	case *ast.BlockStatement:
		p.printBlock(s)
	case *ast.IfStatement:
		p.printIf(s)
	case *ast.WhileStatement:
		p.write("while (")
		p.printExpr(s.Condition, 0, false)
		p.write(") ")
		p.printBlock(s.Body)
	case *ast.FunctionStatement:
		p.printFunction(s)
	default:
		p.write("<???>")
	}
}

// printAssignTail writes everything after the assignment target.
func (p *CodePrinter) printAssignTail(tok token.Token, op string, val ast.Expression) {
	if ast.IsStep(tok) {
		p.write(tok.Lexeme + ";")
		return
	}
	p.write(" " + op + "= ")
	p.printExpr(val, 0, false)
	p.write(";")
}

// printIf continues on the current line; else-if chains stay flat.
func (p *CodePrinter) printIf(s *ast.IfStatement) {
	p.write("if (")
	p.printExpr(s.Condition, 0, false)
	p.write(") ")
	p.printBlock(s.Consequence)
	switch alt := s.Alternative.(type) {
	case nil:
	case *ast.IfStatement:
		p.write(" else ")
		p.printIf(alt)
	case *ast.BlockStatement:
		p.write(" else ")
		p.printBlock(alt)
	}
}

func (p *CodePrinter) printBlock(b *ast.BlockStatement) {
	if len(b.Statements) == 0 {
		p.write("{}")
		return
	}
	p.write("{")
	p.writeln()
	p.indent++
	for _, stmt := range b.Statements {
		p.printStatement(stmt)
		p.writeln()
	}
	p.indent--
	p.writeIndent()
	p.write("}")
}

func (p *CodePrinter) printFunction(fn *ast.FunctionStatement) {
	p.write("fn " + fn.Name.Value + "(")
	for i, param := range fn.Parameters {
		if i > 0 {
			p.write(", ")
		}
		p.write(param.String())
	}
	p.write(")")
	if fn.ReturnOwnership != ownership.None {
		p.write(" -> " + fn.ReturnOwnership.String())
	}
	p.write(" ")
	p.printBlock(fn.Body)
}

// printExpr prints an expression, adding parentheses only if needed
func (p *CodePrinter) printExpr(expr ast.Expression, parentPrec int, isRight bool) {
	switch e := expr.(type) {
	case *ast.InfixExpression:
		prec := getPrecedence(e.Operator)
		// Every binary operator is left-associative.
		needParens := prec < parentPrec || (prec == parentPrec && isRight)
		if needParens {
			p.write("(")
		}
		p.printExpr(e.Left, prec, false)
		p.write(" " + e.Operator + " ")
		p.printExpr(e.Right, prec, true)
		if needParens {
			p.write(")")
		}
	case *ast.PrefixExpression:
		needParens := prefixPrecedence < parentPrec
		if needParens {
			p.write("(")
		}
		p.write(e.Operator)
		if _, nested := e.Right.(*ast.PrefixExpression); nested {
			p.write("(")
			p.printExpr(e.Right, 0, false)
			p.write(")")
		} else {
			p.printExpr(e.Right, prefixPrecedence, false)
		}
		if needParens {
			p.write(")")
		}
	case *ast.CallExpression:
		p.printExpr(e.Function, prefixPrecedence+1, false)
		p.printList("(", e.Arguments, ")")
	case *ast.IndexExpression:
		p.printExpr(e.Left, prefixPrecedence+1, false)
		p.write("[")
		p.printExpr(e.Index, 0, false)
		p.write("]")
	case *ast.ArrayLiteral:
		p.printList("[", e.Elements, "]")
	case nil:
		p.write("<???>")
	default:
		// Identifiers and literals print as they read.
		p.write(e.String())
	}
}

// printList prints comma separated items, one per line when they do not
// fit in the remaining width.
func (p *CodePrinter) printList(open string, items []ast.Expression, close string) {
	flat := NewCodePrinterWithWidth(0)
	for i, item := range items {
		if i > 0 {
			flat.write(", ")
		}
		flat.printExpr(item, 0, false)
	}
	oneLine := flat.String()
	if p.lineWidth == 0 || len(items) < 2 || p.column+len(open)+len(oneLine)+len(close) <= p.lineWidth {
		p.write(open + oneLine + close)
		return
	}

	p.write(open)
	p.writeln()
	p.indent++
	for i, item := range items {
		p.writeIndent()
		p.printExpr(item, 0, false)
		if i < len(items)-1 {
			p.write(",")
		}
		p.writeln()
	}
	p.indent--
	p.writeIndent()
	p.write(close)
}
