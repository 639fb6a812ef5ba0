package barbql

import (
	"fmt"
	"strconv"
	"strings"
)

// ════════════════════════════════════════════════════════════════════
// Parser: Recursive Descent
// ════════════════════════════════════════════════════════════════════

// Parser transforms a token stream into an AST.
type Parser struct {
	tokens []Token
	pos    int
	source string // original source for error context
}

// NewParser creates a parser from a token slice.
func NewParser(tokens []Token, source string) *Parser {
	return &Parser{tokens: tokens, source: source}
}

// Parse parses the full expression. The tree may still contain constructs
// outside the language; use the package-level Parse to reject them.
func (p *Parser) Parse() (Node, error) {
	node, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		tok := p.peek()
		return nil, p.unexpected(tok)
	}
	return node, nil
}

// ParseTree tokenizes and parses input without the whitelist check.
func ParseTree(input string) (Node, error) {
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, input).Parse()
}

// Parse parses a Barb expression and rejects any construct outside the
// language: method calls, attribute access, subscripts, tuples and
// operators other than + - * / and the supported comparisons.
func Parse(input string) (Node, error) {
	node, err := ParseTree(input)
	if err != nil {
		return nil, err
	}
	var first *ParseError
	checkTree(node, nil, "", func(bad Node, msg string) {
		if first == nil {
			line, col := locate(input, bad.Pos())
			first = &ParseError{Position: bad.Pos(), Line: line, Column: col, Message: msg}
		}
	})
	if first != nil {
		return nil, first
	}
	return node, nil
}

// locate converts a rune offset into a 1-based line and column.
func locate(source string, pos int) (int, int) {
	line, col := 1, 1
	for i, r := range []rune(source) {
		if i >= pos {
			break
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// ────────────────────────────────────────────────────────────────────
// Token helpers
// ────────────────────────────────────────────────────────────────────

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens) || p.tokens[p.pos].Type == TokenEOF
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != typ {
		if tok.Type == TokenEOF {
			return tok, p.errorf(tok, "expected '%s' but the expression ended", typ)
		}
		return tok, p.errorf(tok, "expected '%s', got '%s'", typ, tok.Value)
	}
	return p.advance(), nil
}

func (p *Parser) errorf(tok Token, format string, args ...any) *ParseError {
	return &ParseError{
		Position: tok.Position,
		Line:     tok.Line,
		Column:   tok.Column,
		Message:  fmt.Sprintf(format, args...),
	}
}

// unexpected reports a token that cannot start or continue an expression,
// with a hint for the mistakes people actually make.
func (p *Parser) unexpected(tok Token) *ParseError {
	switch tok.Type {
	case TokenEOF:
		return p.errorf(tok, "unexpected end of expression")
	case TokenAssign:
		e := p.errorf(tok, "unexpected '='")
		e.Hint = "use '==' for comparison"
		return e
	case TokenLambda:
		return p.errorf(tok, "lambda expressions are not supported")
	}
	return p.errorf(tok, "unexpected '%s'", tok.Value)
}

// ────────────────────────────────────────────────────────────────────
// Grammar (precedence from lowest to highest):
//   OrExpr     → AndExpr ( 'or' AndExpr )*
//   AndExpr    → NotExpr ( 'and' NotExpr )*
//   NotExpr    → 'not' NotExpr | Comparison
//   Comparison → BitOr ( CompOp BitOr )*
//   CompOp     → '>' | '<' | '>=' | '<=' | '==' | '!=' | 'in' | 'not' 'in' | 'is' | 'is' 'not'
//   BitOr      → BitXor ( '|' BitXor )*
//   BitXor     → BitAnd ( '^' BitAnd )*
//   BitAnd     → Sum ( '&' Sum )*
//   Sum        → Term ( ('+'|'-') Term )*
//   Term       → Unary ( ('*'|'/'|'//'|'%') Unary )*
//   Unary      → ('-'|'+'|'~') Unary | Power
//   Power      → Postfix ( '**' Unary )?
//   Postfix    → Primary ( '(' Args ')' | '.' Name | '[' OrExpr ']' )*
//   Primary    → Number | String | Name | '(' OrExpr ( ',' OrExpr )* ')' | '[' List ']'
// ────────────────────────────────────────────────────────────────────

func (p *Parser) parseOrExpr() (Node, error) {
	return p.parseLogical(TokenOR, "or", p.parseAndExpr)
}

func (p *Parser) parseAndExpr() (Node, error) {
	return p.parseLogical(TokenAND, "and", p.parseNotExpr)
}

func (p *Parser) parseLogical(typ TokenType, op string, next func() (Node, error)) (Node, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != typ {
		return first, nil
	}
	node := &LogicalExpr{Position: first.Pos(), Op: op, Operands: []Node{first}}
	for p.peek().Type == typ {
		p.advance()
		operand, err := next()
		if err != nil {
			return nil, err
		}
		node.Operands = append(node.Operands, operand)
	}
	return node, nil
}

func (p *Parser) parseNotExpr() (Node, error) {
	if p.peek().Type == TokenNOT {
		tok := p.advance()
		operand, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Position: tok.Position, Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

var compareOps = map[TokenType]string{
	TokenGT:  ">",
	TokenLT:  "<",
	TokenGTE: ">=",
	TokenLTE: "<=",
	TokenEQ:  "==",
	TokenNEQ: "!=",
	TokenIN:  "in",
}

// compareOp consumes a comparison operator if one is next.
func (p *Parser) compareOp() (string, bool) {
	tok := p.peek()
	if op, ok := compareOps[tok.Type]; ok {
		p.advance()
		return op, true
	}
	switch {
	case tok.Type == TokenNOT && p.peekAt(1).Type == TokenIN:
		p.advance()
		p.advance()
		return "not in", true
	case tok.Type == TokenIS && p.peekAt(1).Type == TokenNOT:
		p.advance()
		p.advance()
		return "is not", true
	case tok.Type == TokenIS:
		p.advance()
		return "is", true
	}
	return "", false
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	var node *CompareExpr
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		if node == nil {
			node = &CompareExpr{Position: left.Pos(), Left: left}
		}
		node.Ops = append(node.Ops, op)
		node.Comparators = append(node.Comparators, right)
	}
	if node == nil {
		return left, nil
	}
	return node, nil
}

// parseBinary parses a left-associative run of the given operators.
func (p *Parser) parseBinary(ops map[TokenType]string, next func() (Node, error)) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek().Type]
		if !ok {
			return left, nil
		}
		tok := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Position: tok.Position, Op: op, Left: left, Right: right}
	}
}

var (
	bitOrOps  = map[TokenType]string{TokenPipe: "|"}
	bitXorOps = map[TokenType]string{TokenCaret: "^"}
	bitAndOps = map[TokenType]string{TokenAmp: "&"}
	sumOps    = map[TokenType]string{TokenPlus: "+", TokenMinus: "-"}
	termOps   = map[TokenType]string{
		TokenStar:        "*",
		TokenSlash:       "/",
		TokenDoubleSlash: "//",
		TokenPercent:     "%",
	}
	unaryOps = map[TokenType]string{TokenMinus: "-", TokenPlus: "+", TokenTilde: "~"}
)

func (p *Parser) parseBitOr() (Node, error)  { return p.parseBinary(bitOrOps, p.parseBitXor) }
func (p *Parser) parseBitXor() (Node, error) { return p.parseBinary(bitXorOps, p.parseBitAnd) }
func (p *Parser) parseBitAnd() (Node, error) { return p.parseBinary(bitAndOps, p.parseSum) }
func (p *Parser) parseSum() (Node, error)    { return p.parseBinary(sumOps, p.parseTerm) }
func (p *Parser) parseTerm() (Node, error)   { return p.parseBinary(termOps, p.parseUnary) }

func (p *Parser) parseUnary() (Node, error) {
	if op, ok := unaryOps[p.peek().Type]; ok {
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold -<number> so that prev(close, -1) reads as a literal.
		if num, ok := operand.(*NumberLiteral); ok && op == "-" {
			return &NumberLiteral{
				Position: tok.Position,
				Value:    -num.Value,
				IsInt:    num.IsInt,
				Raw:      "-" + num.Raw,
			}, nil
		}
		return &UnaryExpr{Position: tok.Position, Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (Node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == TokenDoubleStar {
		tok := p.advance()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Position: tok.Position, Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *Parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenLParen:
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			node = &CallExpr{Position: node.Pos(), Callee: node, Args: args}
		case TokenDot:
			tok := p.advance()
			name, err := p.expect(TokenIdentifier)
			if err != nil {
				return nil, err
			}
			node = &AttributeExpr{Position: tok.Position, Value: node, Attr: name.Value}
		case TokenLBracket:
			tok := p.advance()
			index, err := p.parseOrExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			node = &SubscriptExpr{Position: tok.Position, Value: node, Index: index}
		default:
			return node, nil
		}
	}
}

// parseArgs parses a call's argument list after the opening parenthesis.
func (p *Parser) parseArgs() ([]Node, error) {
	var args []Node
	for p.peek().Type != TokenRParen {
		if p.peek().Type == TokenIdentifier && p.peekAt(1).Type == TokenAssign {
			tok := p.peek()
			e := p.errorf(tok, "keyword arguments are not supported (%s=...)", tok.Value)
			e.Hint = "pass arguments by position, e.g. rsi(close, 14)"
			return nil, e
		}
		arg, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Type != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()

	switch tok.Type {
	case TokenNumber:
		p.advance()
		return p.parseNumber(tok)

	case TokenString:
		p.advance()
		return &StringLiteral{Position: tok.Position, Value: tok.Value}, nil

	case TokenIdentifier:
		p.advance()
		switch tok.Value {
		case "True":
			return &BoolLiteral{Position: tok.Position, Value: true}, nil
		case "False":
			return &BoolLiteral{Position: tok.Position, Value: false}, nil
		}
		return &Identifier{Position: tok.Position, Name: tok.Value}, nil

	case TokenLParen:
		p.advance()
		first, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().Type != TokenComma {
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			return first, nil
		}
		tuple := &TupleExpr{Position: tok.Position, Elements: []Node{first}}
		for p.peek().Type == TokenComma {
			p.advance()
			if p.peek().Type == TokenRParen {
				break
			}
			el, err := p.parseOrExpr()
			if err != nil {
				return nil, err
			}
			tuple.Elements = append(tuple.Elements, el)
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return tuple, nil

	case TokenLBracket:
		p.advance()
		list := &ListLiteral{Position: tok.Position}
		for p.peek().Type != TokenRBracket {
			el, err := p.parseOrExpr()
			if err != nil {
				return nil, err
			}
			list.Elements = append(list.Elements, el)
			if p.peek().Type != TokenComma {
				break
			}
			p.advance()
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return list, nil
	}

	return nil, p.unexpected(tok)
}

func (p *Parser) parseNumber(tok Token) (Node, error) {
	v, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return nil, p.errorf(tok, "invalid number %q", tok.Value)
	}
	isInt := !strings.ContainsAny(tok.Value, ".eE")
	return &NumberLiteral{Position: tok.Position, Value: v, IsInt: isInt, Raw: tok.Value}, nil
}
