package parser

import (
	"github.com/funvibe/duet/internal/ast"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/token"
)

// ParseProgram parses every statement up to EOF.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}
	for !p.curTokenIs(token.EOF) {
		if stmt := p.parseStatement(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}
	return program
}

// parseStatement leaves curToken on the last token of the statement.
func (p *Parser) parseStatement() ast.Statement {
	before := len(p.errors)
	var stmt ast.Statement
	switch p.curToken.Type {
	case token.SEMICOLON:
		return nil
	case token.FN:
		stmt = p.parseFunctionStatement()
	case token.LET, token.VAR:
		stmt = p.parseLetStatement()
	case token.IF:
		stmt = p.parseIfStatement()
	case token.WHILE:
		stmt = p.parseWhileStatement()
	case token.RETURN:
		stmt = p.parseReturnStatement()
	case token.BREAK:
		stmt = p.parseLoopControl()
	case token.CONTINUE:
		stmt = p.parseLoopControl()
	case token.LBRACE:
		stmt = p.parseBlockStatement()
	default:
		stmt = p.parseExpressionOrAssignment()
	}
	if len(p.errors) > before {
		p.skipToStatementBoundary()
		return nil
	}
	return stmt
}

func (p *Parser) parseLetStatement() ast.Statement {
	stmt := &ast.LetStatement{Token: p.curToken, Mutable: p.curTokenIs(token.VAR)}
	if !p.expectPeek(token.IDENT_LOWER) {
		return nil
	}
	stmt.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	if !p.expectPeek(token.ASSIGN) {
		return nil
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil || !p.expectTerminator() {
		return nil
	}
	return stmt
}

func (p *Parser) parseFunctionStatement() ast.Statement {
	stmt := &ast.FunctionStatement{Token: p.curToken}
	if !p.expectPeek(token.IDENT_LOWER) {
		return nil
	}
	stmt.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	params, ok := p.parseParameters()
	if !ok {
		return nil
	}
	stmt.Parameters = params

	if p.peekTokenIs(token.ARROW) {
		p.nextToken()
		p.nextToken()
		switch p.curToken.Type {
		case token.OWN:
			stmt.ReturnOwnership = ownership.Own
		case token.BORROW:
			stmt.ReturnOwnership = ownership.Borrow
		case token.SHARED:
			p.addError(diagnostics.ErrP003, p.curToken,
				"`shared` is not valid as a return ownership annotation; return a shared value instead")
			return nil
		default:
			p.addError(diagnostics.ErrP003, p.curToken, "expected `own` or `borrow` after '->', got "+describe(p.curToken))
			return nil
		}
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	if stmt.Body == nil {
		return nil
	}
	return stmt
}

// parseParameters expects curToken on '(' and leaves it on ')'.
func (p *Parser) parseParameters() ([]*ast.Parameter, bool) {
	var params []*ast.Parameter
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params, true
	}
	for {
		p.nextToken()
		param := &ast.Parameter{Token: p.curToken}
		switch p.curToken.Type {
		case token.OWN:
			param.Ownership = ownership.Own
		case token.BORROW:
			param.Ownership = ownership.Borrow
		case token.SHARED:
			param.Ownership = ownership.Shared
		}
		if param.Ownership != ownership.None {
			if !p.peekTokenIs(token.IDENT_LOWER) {
				p.addError(diagnostics.ErrP003, p.peekToken,
					"expected parameter name after ownership annotation '"+param.Ownership.String()+"'")
				return nil, false
			}
			p.nextToken()
		}
		if !p.curTokenIs(token.IDENT_LOWER) {
			p.addError(diagnostics.ErrP001, p.curToken, "expected parameter name, got "+describe(p.curToken))
			return nil, false
		}
		param.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
		params = append(params, param)

		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(token.RPAREN) {
		return nil, false
	}
	return params, true
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	block := &ast.BlockStatement{Token: p.curToken}
	p.nextToken()
	for !p.curTokenIs(token.RBRACE) {
		if p.curTokenIs(token.EOF) {
			p.addError(diagnostics.ErrP001, p.curToken, "expected '}' to close block, got end of input")
			return nil
		}
		before := len(p.errors)
		if stmt := p.parseStatement(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		// A failed statement may already sit on the closing brace.
		if p.curTokenIs(token.RBRACE) && len(p.errors) > before {
			break
		}
		p.nextToken()
	}
	block.RBraceToken = p.curToken
	return block
}

func (p *Parser) parseIfStatement() ast.Statement {
	stmt := &ast.IfStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Consequence = p.parseBlockStatement()
	if stmt.Consequence == nil {
		return nil
	}
	if !p.peekTokenIs(token.ELSE) {
		return stmt
	}
	p.nextToken()
	if p.peekTokenIs(token.IF) {
		p.nextToken()
		alt := p.parseIfStatement()
		if alt == nil {
			return nil
		}
		stmt.Alternative = alt
		return stmt
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	alt := p.parseBlockStatement()
	if alt == nil {
		return nil
	}
	stmt.Alternative = alt
	return stmt
}

func (p *Parser) parseWhileStatement() ast.Statement {
	stmt := &ast.WhileStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil || !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	if stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseReturnStatement() ast.Statement {
	stmt := &ast.ReturnStatement{Token: p.curToken}
	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
		return stmt
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil || !p.expectTerminator() {
		return nil
	}
	return stmt
}

func (p *Parser) parseLoopControl() ast.Statement {
	tok := p.curToken
	if !p.expectTerminator() {
		return nil
	}
	if tok.Type == token.BREAK {
		return &ast.BreakStatement{Token: tok}
	}
	return &ast.ContinueStatement{Token: tok}
}

// parseExpressionOrAssignment handles `expr;`, `target = expr;`,
// `target op= expr;` and `target++;` where target is a name or `name[index]`.
func (p *Parser) parseExpressionOrAssignment() ast.Statement {
	first := p.curToken
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}

	op, compound := token.CompoundOperator(p.peekToken.Type)
	if !compound && !p.peekTokenIs(token.ASSIGN) {
		if !p.expectTerminator() {
			return nil
		}
		return &ast.ExpressionStatement{Token: first, Expression: expr}
	}

	p.nextToken()
	assignTok := p.curToken
	var val ast.Expression
	if ast.IsStep(assignTok) {
		one := token.Token{Type: token.NUMBER, Lexeme: "1", Literal: 1.0, Line: assignTok.Line, Column: assignTok.Column}
		val = &ast.NumberLiteral{Token: one, Value: 1}
	} else {
		p.nextToken()
		val = p.parseExpression(LOWEST)
	}
	if val == nil || !p.expectTerminator() {
		return nil
	}

	switch target := expr.(type) {
	case *ast.Identifier:
		return &ast.AssignStatement{Token: assignTok, Name: target, Operator: op, Value: val}
	case *ast.IndexExpression:
		if ident, ok := target.Left.(*ast.Identifier); ok {
			return &ast.IndexAssignStatement{Token: assignTok, Target: ident, Index: target.Index, Operator: op, Value: val}
		}
	}
	p.addError(diagnostics.ErrP001, assignTok, "invalid assignment target "+expr.String())
	return nil
}

// expectTerminator consumes the ';' ending a simple statement. The last
// statement of the input may omit it.
func (p *Parser) expectTerminator() bool {
	if p.peekTokenIs(token.EOF) {
		return true
	}
	return p.expectPeek(token.SEMICOLON)
}
