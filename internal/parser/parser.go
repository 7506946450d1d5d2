// Package parser builds the AST the evaluator walks (spec.md §6). It
// is grounded on the teacher's internal/parser/parser.go: a
// hand-written recursive-descent parser over a token slice, tracking
// current/Errors/file the same way, extended here with Lua-shaped
// statement and expression grammar (numeric/generic for, goto/label,
// method calls, table constructors, local attributes, multiple
// returns and varargs) that spec.md §6 names.
package parser

import (
	"fmt"

	"lumen/internal/ast"
	"lumen/internal/lexer"
)

// precedence mirrors spec.md §4.1's binary operator table, Lua-shaped:
// or < and < comparisons < bitwise-or < bitwise-xor < bitwise-and <
// shift < concat (right-assoc) < +/- < *,/,//,% < unary < ^ (right-assoc).
var binPrec = map[lexer.TokenType]int{
	lexer.TokenOr:      1,
	lexer.TokenAnd:     2,
	lexer.TokenLt:      3,
	lexer.TokenGt:      3,
	lexer.TokenLe:      3,
	lexer.TokenGe:      3,
	lexer.TokenNe:      3,
	lexer.TokenEq:      3,
	lexer.TokenPipe:    4,
	lexer.TokenTilde:   5,
	lexer.TokenAmp:     6,
	lexer.TokenShl:     7,
	lexer.TokenShr:     7,
	lexer.TokenConcat:  8,
	lexer.TokenPlus:    9,
	lexer.TokenMinus:   9,
	lexer.TokenStar:    10,
	lexer.TokenSlash:   10,
	lexer.TokenSlash2:  10,
	lexer.TokenPercent: 10,
	lexer.TokenCaret:   12,
}

const unaryPrec = 11

// opText maps a keyword-spelled operator token (and/or/not, whose
// TokenType constants are uppercase for readability in the token
// dump) to the lowercase operator spelling the evaluator and meta
// package switch on; symbol tokens already carry their operator text
// as the TokenType itself.
func opText(t lexer.TokenType) string {
	switch t {
	case lexer.TokenAnd:
		return "and"
	case lexer.TokenOr:
		return "or"
	case lexer.TokenNot:
		return "not"
	default:
		return string(t)
	}
}

var rightAssoc = map[lexer.TokenType]bool{
	lexer.TokenConcat: true,
	lexer.TokenCaret:  true,
}

// Error is a parse failure, reported as spec.md §6's SyntaxError kind.
type Error struct {
	Message string
	Line    int
	Col     int
}

func (e *Error) Error() string { return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Message) }

type Parser struct {
	tokens  []lexer.Token
	current int
	file    string
	Errors  []error
}

func New(tokens []lexer.Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// Parse parses a full chunk into a Program.
func Parse(source, file string) (*ast.Program, error) {
	sc := lexer.NewScanner(source, file)
	tokens, err := sc.ScanTokens()
	if err != nil {
		if le, ok := err.(*lexer.Error); ok {
			return nil, &Error{Message: le.Message, Line: le.Line, Col: le.Col}
		}
		return nil, err
	}
	p := New(tokens, file)
	block := p.block(nil)
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	return &ast.Program{Body: block}, nil
}

// ---- token cursor helpers ----

func (p *Parser) peek() lexer.Token  { return p.tokens[p.current] }
func (p *Parser) previous() lexer.Token {
	if p.current == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.current-1]
}
func (p *Parser) isAtEnd() bool { return p.peek().Type == lexer.TokenEOF }

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) check(t lexer.TokenType) bool {
	return !p.isAtEnd() && p.peek().Type == t
}

func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	tok := p.peek()
	p.errorf(tok, "%s (got %s)", msg, tok.Type)
	return tok
}

func (p *Parser) errorf(tok lexer.Token, format string, args ...interface{}) {
	p.Errors = append(p.Errors, &Error{Message: fmt.Sprintf(format, args...), Line: tok.Line, Col: tok.Col})
}

func (p *Parser) span(start lexer.Token) ast.Span {
	end := p.previous()
	return ast.NewSpan(p.file, start.Line, start.Col, end.Line, end.Col)
}

// atBlockEnd reports whether the next token terminates a statement list.
func (p *Parser) atBlockEnd() bool {
	switch p.peek().Type {
	case lexer.TokenEnd, lexer.TokenElse, lexer.TokenElseif, lexer.TokenUntil, lexer.TokenEOF:
		return true
	}
	return false
}

// ---- statements ----

func (p *Parser) block(labels map[string]bool) *ast.Block {
	start := p.peek()
	b := &ast.Block{}
	for !p.atBlockEnd() {
		if p.check(lexer.TokenReturn) {
			b.Stmts = append(b.Stmts, p.returnStatement())
			break
		}
		if p.match(lexer.TokenSemi) {
			continue
		}
		b.Stmts = append(b.Stmts, p.statement())
	}
	b.SetSpan(p.span(start))
	return b
}

func (p *Parser) statement() ast.Stmt {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenLocal:
		return p.localStatement()
	case lexer.TokenIf:
		return p.ifStatement()
	case lexer.TokenWhile:
		return p.whileStatement()
	case lexer.TokenRepeat:
		return p.repeatStatement()
	case lexer.TokenFor:
		return p.forStatement()
	case lexer.TokenFunction:
		return p.functionStatement()
	case lexer.TokenDo:
		p.advance()
		body := p.block(nil)
		p.expect(lexer.TokenEnd, "expected 'end' to close do block")
		db := &ast.DoBlock{Body: body}
		db.SetSpan(p.span(tok))
		return db
	case lexer.TokenBreak:
		p.advance()
		br := &ast.Break{}
		br.SetSpan(p.span(tok))
		return br
	case lexer.TokenGoto:
		p.advance()
		name := p.expect(lexer.TokenIdent, "expected label name after goto")
		g := &ast.Goto{Label: name.Lexeme}
		g.SetSpan(p.span(tok))
		return g
	case lexer.TokenDColon:
		p.advance()
		name := p.expect(lexer.TokenIdent, "expected label name")
		p.expect(lexer.TokenDColon, "expected '::' to close label")
		l := &ast.Label{Name: name.Lexeme}
		l.SetSpan(p.span(tok))
		return l
	default:
		return p.exprStatement()
	}
}

func (p *Parser) localStatement() ast.Stmt {
	start := p.advance() // 'local'
	if p.check(lexer.TokenFunction) {
		p.advance()
		name := p.expect(lexer.TokenIdent, "expected function name")
		fn := p.functionBody(name.Lexeme)
		ld := &ast.LocalFunctionDecl{Name: name.Lexeme, Fn: fn}
		ld.SetSpan(p.span(start))
		return ld
	}
	var names []string
	var attribs []string
	for {
		name := p.expect(lexer.TokenIdent, "expected variable name")
		names = append(names, name.Lexeme)
		attrib := ""
		if p.match(lexer.TokenLt) {
			a := p.expect(lexer.TokenIdent, "expected attribute name")
			attrib = a.Lexeme
			p.expect(lexer.TokenGt, "expected '>' to close attribute")
		}
		attribs = append(attribs, attrib)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	var exprs []ast.Expr
	if p.match(lexer.TokenAssign) {
		exprs = p.exprList()
	}
	ld := &ast.LocalDecl{Names: names, Attribs: attribs, Exprs: exprs}
	ld.SetSpan(p.span(start))
	return ld
}

func (p *Parser) ifStatement() ast.Stmt {
	start := p.advance() // 'if'
	cond := p.expression()
	p.expect(lexer.TokenThen, "expected 'then'")
	then := p.block(nil)
	node := &ast.If{Cond: cond, Then: then}
	for p.check(lexer.TokenElseif) {
		p.advance()
		c := p.expression()
		p.expect(lexer.TokenThen, "expected 'then'")
		b := p.block(nil)
		node.ElseIfs = append(node.ElseIfs, ast.ElseIf{Cond: c, Then: b})
	}
	if p.match(lexer.TokenElse) {
		node.Else = p.block(nil)
	}
	p.expect(lexer.TokenEnd, "expected 'end' to close if")
	node.SetSpan(p.span(start))
	return node
}

func (p *Parser) whileStatement() ast.Stmt {
	start := p.advance()
	cond := p.expression()
	p.expect(lexer.TokenDo, "expected 'do'")
	body := p.block(nil)
	p.expect(lexer.TokenEnd, "expected 'end' to close while")
	w := &ast.While{Cond: cond, Body: body}
	w.SetSpan(p.span(start))
	return w
}

func (p *Parser) repeatStatement() ast.Stmt {
	start := p.advance()
	body := p.block(nil)
	p.expect(lexer.TokenUntil, "expected 'until'")
	cond := p.expression()
	r := &ast.RepeatUntil{Body: body, Cond: cond}
	r.SetSpan(p.span(start))
	return r
}

func (p *Parser) forStatement() ast.Stmt {
	start := p.advance()
	first := p.expect(lexer.TokenIdent, "expected loop variable name")
	if p.check(lexer.TokenAssign) {
		p.advance()
		from := p.expression()
		p.expect(lexer.TokenComma, "expected ',' after for start expression")
		to := p.expression()
		var step ast.Expr
		if p.match(lexer.TokenComma) {
			step = p.expression()
		}
		p.expect(lexer.TokenDo, "expected 'do'")
		body := p.block(nil)
		p.expect(lexer.TokenEnd, "expected 'end' to close for")
		nf := &ast.NumericFor{Var: first.Lexeme, Start: from, Stop: to, Step: step, Body: body}
		nf.SetSpan(p.span(start))
		return nf
	}
	names := []string{first.Lexeme}
	for p.match(lexer.TokenComma) {
		n := p.expect(lexer.TokenIdent, "expected loop variable name")
		names = append(names, n.Lexeme)
	}
	p.expect(lexer.TokenIn, "expected 'in' in generic for")
	exprs := p.exprList()
	p.expect(lexer.TokenDo, "expected 'do'")
	body := p.block(nil)
	p.expect(lexer.TokenEnd, "expected 'end' to close for")
	gf := &ast.GenericFor{Names: names, Exprs: exprs, Body: body}
	gf.SetSpan(p.span(start))
	return gf
}

func (p *Parser) functionStatement() ast.Stmt {
	start := p.advance() // 'function'
	nameTok := p.expect(lexer.TokenIdent, "expected function name")
	var target ast.Expr = identAt(nameTok, p.file)
	fullName := nameTok.Lexeme
	isMethod := false
	for p.check(lexer.TokenDot) || p.check(lexer.TokenColon) {
		dot := p.advance().Type == lexer.TokenDot
		field := p.expect(lexer.TokenIdent, "expected field name")
		idx := &ast.IndexExpr{Object: target, Key: strLit(field, p.file), Dot: dot}
		idx.SetSpan(p.span(start))
		target = idx
		fullName += "." + field.Lexeme
		if !dot {
			isMethod = true
			break
		}
	}
	fn := p.functionBody(fullName)
	if isMethod {
		fn.Params = append([]string{"self"}, fn.Params...)
	}
	fd := &ast.FunctionDecl{Target: target, IsMethod: isMethod, Fn: fn}
	fd.SetSpan(p.span(start))
	return fd
}

func identAt(tok lexer.Token, file string) *ast.Identifier {
	id := &ast.Identifier{Name: tok.Lexeme}
	id.SetSpan(ast.NewSpan(file, tok.Line, tok.Col, tok.Line, tok.Col))
	return id
}

func strLit(tok lexer.Token, file string) *ast.StringLiteral {
	s := &ast.StringLiteral{Value: tok.Lexeme}
	s.SetSpan(ast.NewSpan(file, tok.Line, tok.Col, tok.Line, tok.Col))
	return s
}

func (p *Parser) functionBody(name string) *ast.FunctionLiteral {
	start := p.previous()
	p.expect(lexer.TokenLParen, "expected '(' after function name")
	var params []string
	vararg := false
	if !p.check(lexer.TokenRParen) {
		for {
			if p.check(lexer.TokenEllipsis) {
				p.advance()
				vararg = true
				break
			}
			n := p.expect(lexer.TokenIdent, "expected parameter name")
			params = append(params, n.Lexeme)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.expect(lexer.TokenRParen, "expected ')' after parameters")
	body := p.block(nil)
	p.expect(lexer.TokenEnd, "expected 'end' to close function")
	fn := &ast.FunctionLiteral{Name: name, Params: params, IsVararg: vararg, Body: body}
	fn.SetSpan(p.span(start))
	return fn
}

func (p *Parser) returnStatement() ast.Stmt {
	start := p.advance() // 'return'
	var exprs []ast.Expr
	if !p.atBlockEnd() && !p.check(lexer.TokenSemi) {
		exprs = p.exprList()
	}
	p.match(lexer.TokenSemi)
	r := &ast.Return{Exprs: exprs}
	r.SetSpan(p.span(start))
	return r
}

func (p *Parser) exprStatement() ast.Stmt {
	start := p.peek()
	first := p.suffixedExpr()
	if p.check(lexer.TokenAssign) || p.check(lexer.TokenComma) {
		targets := []ast.Expr{first}
		for p.match(lexer.TokenComma) {
			targets = append(targets, p.suffixedExpr())
		}
		p.expect(lexer.TokenAssign, "expected '=' in assignment")
		exprs := p.exprList()
		a := &ast.Assign{Targets: targets, Exprs: exprs}
		a.SetSpan(p.span(start))
		return a
	}
	es := &ast.ExprStmt{X: first}
	es.SetSpan(p.span(start))
	return es
}

// ---- expressions ----

func (p *Parser) exprList() []ast.Expr {
	var out []ast.Expr
	out = append(out, p.expression())
	for p.match(lexer.TokenComma) {
		out = append(out, p.expression())
	}
	return out
}

func (p *Parser) expression() ast.Expr { return p.binaryExpr(0) }

func (p *Parser) binaryExpr(minPrec int) ast.Expr {
	left := p.unaryExpr()
	for {
		tok := p.peek()
		prec, ok := binPrec[tok.Type]
		if !ok || prec < minPrec {
			return left
		}
		p.advance()
		nextMin := prec + 1
		if rightAssoc[tok.Type] {
			nextMin = prec
		}
		right := p.binaryExpr(nextMin)
		be := &ast.BinaryExpr{Op: opText(tok.Type), Left: left, Right: right}
		be.SetSpan(p.span(p.previous()))
		left = be
	}
}

func (p *Parser) unaryExpr() ast.Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenNot, lexer.TokenMinus, lexer.TokenHash, lexer.TokenTilde:
		p.advance()
		operand := p.binaryExpr(unaryPrec)
		u := &ast.UnaryExpr{Op: opText(tok.Type), Operand: operand}
		u.SetSpan(p.span(tok))
		return u
	default:
		return p.suffixedExpr()
	}
}

// suffixedExpr parses a primary expression followed by any chain of
// `.field`, `[expr]`, `(args)` and `:method(args)` suffixes.
func (p *Parser) suffixedExpr() ast.Expr {
	start := p.peek()
	e := p.primaryExpr()
	for {
		switch p.peek().Type {
		case lexer.TokenDot:
			p.advance()
			field := p.expect(lexer.TokenIdent, "expected field name after '.'")
			idx := &ast.IndexExpr{Object: e, Key: strLit(field, p.file), Dot: true}
			idx.SetSpan(p.span(start))
			e = idx
		case lexer.TokenLBracket:
			p.advance()
			key := p.expression()
			p.expect(lexer.TokenRBracket, "expected ']'")
			idx := &ast.IndexExpr{Object: e, Key: key, Dot: false}
			idx.SetSpan(p.span(start))
			e = idx
		case lexer.TokenColon:
			p.advance()
			method := p.expect(lexer.TokenIdent, "expected method name after ':'")
			args := p.callArgs()
			mc := &ast.MethodCall{Receiver: e, Method: method.Lexeme, Args: args}
			mc.SetSpan(p.span(start))
			e = mc
		case lexer.TokenLParen, lexer.TokenString, lexer.TokenLBrace:
			args := p.callArgs()
			c := &ast.Call{Callee: e, Args: args}
			c.SetSpan(p.span(start))
			e = c
		default:
			return e
		}
	}
}

func (p *Parser) callArgs() []ast.Expr {
	if p.check(lexer.TokenString) {
		tok := p.advance()
		return []ast.Expr{strLitValue(tok, p.file)}
	}
	if p.check(lexer.TokenLBrace) {
		return []ast.Expr{p.tableCtor()}
	}
	p.expect(lexer.TokenLParen, "expected '(' to begin call arguments")
	var args []ast.Expr
	if !p.check(lexer.TokenRParen) {
		args = p.exprList()
	}
	p.expect(lexer.TokenRParen, "expected ')' to close call arguments")
	return args
}

func strLitValue(tok lexer.Token, file string) *ast.StringLiteral {
	s := &ast.StringLiteral{Value: tok.Value.(string)}
	s.SetSpan(ast.NewSpan(file, tok.Line, tok.Col, tok.Line, tok.Col))
	return s
}

func (p *Parser) primaryExpr() ast.Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenNil:
		p.advance()
		n := &ast.NilLiteral{}
		n.SetSpan(p.span(tok))
		return n
	case lexer.TokenTrue:
		p.advance()
		b := &ast.BoolLiteral{Value: true}
		b.SetSpan(p.span(tok))
		return b
	case lexer.TokenFalse:
		p.advance()
		b := &ast.BoolLiteral{Value: false}
		b.SetSpan(p.span(tok))
		return b
	case lexer.TokenInt:
		p.advance()
		n := &ast.IntLiteral{Value: tok.Value.(int64)}
		n.SetSpan(p.span(tok))
		return n
	case lexer.TokenFloat:
		p.advance()
		n := &ast.FloatLiteral{Value: tok.Value.(float64)}
		n.SetSpan(p.span(tok))
		return n
	case lexer.TokenString:
		p.advance()
		return strLitValue(tok, p.file)
	case lexer.TokenEllipsis:
		p.advance()
		v := &ast.VarArg{}
		v.SetSpan(p.span(tok))
		return v
	case lexer.TokenFunction:
		p.advance()
		return p.functionBody("")
	case lexer.TokenIdent:
		p.advance()
		return identAt(tok, p.file)
	case lexer.TokenLParen:
		p.advance()
		inner := p.expression()
		p.expect(lexer.TokenRParen, "expected ')' to close parenthesized expression")
		pe := &ast.ParenExpr{Inner: inner}
		pe.SetSpan(p.span(tok))
		return pe
	case lexer.TokenLBrace:
		return p.tableCtor()
	default:
		p.errorf(tok, "unexpected token %s in expression", tok.Type)
		p.advance()
		n := &ast.NilLiteral{}
		n.SetSpan(p.span(tok))
		return n
	}
}

func (p *Parser) tableCtor() ast.Expr {
	start := p.expect(lexer.TokenLBrace, "expected '{'")
	tc := &ast.TableCtor{}
	for !p.check(lexer.TokenRBrace) {
		var entry ast.TableEntry
		switch {
		case p.check(lexer.TokenLBracket):
			p.advance()
			key := p.expression()
			p.expect(lexer.TokenRBracket, "expected ']'")
			p.expect(lexer.TokenAssign, "expected '=' after computed table key")
			entry = ast.TableEntry{Key: key, Value: p.expression()}
		case p.check(lexer.TokenIdent) && p.tokens[p.current+1].Type == lexer.TokenAssign:
			nameTok := p.advance()
			p.advance() // '='
			entry = ast.TableEntry{Key: strLit(nameTok, p.file), Value: p.expression()}
		default:
			entry = ast.TableEntry{Value: p.expression()}
		}
		tc.Entries = append(tc.Entries, entry)
		if !p.match(lexer.TokenComma) && !p.match(lexer.TokenSemi) {
			break
		}
	}
	p.expect(lexer.TokenRBrace, "expected '}' to close table constructor")
	tc.SetSpan(p.span(start))
	return tc
}
