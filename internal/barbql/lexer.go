package barbql

import (
	"fmt"
	"strings"
	"unicode"
)

// ════════════════════════════════════════════════════════════════════
// Token Types
// ════════════════════════════════════════════════════════════════════

// TokenType enumerates all token kinds produced by the lexer.
type TokenType int

const (
	// Special
	TokenEOF TokenType = iota

	// Literals
	TokenNumber     // 42, 3.14, 1e6
	TokenString     // "text", 'text'
	TokenIdentifier // close, rsi, my_column

	// Arithmetic
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenDoubleStar  // **
	TokenDoubleSlash // //

	// Bitwise, recognised only to be rejected
	TokenAmp   // &
	TokenPipe  // |
	TokenCaret // ^
	TokenTilde // ~

	// Comparison
	TokenGT  // >
	TokenLT  // <
	TokenGTE // >=
	TokenLTE // <=
	TokenEQ  // ==
	TokenNEQ // !=

	// Assignment, recognised only to be rejected
	TokenAssign // =

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenDot      // .
	TokenColon    // :

	// Keywords
	TokenAND    // and
	TokenOR     // or
	TokenNOT    // not
	TokenIN     // in
	TokenIS     // is
	TokenLambda // lambda
)

// tokenTypeNames maps token types to human-readable names.
var tokenTypeNames = map[TokenType]string{
	TokenEOF:         "end of expression",
	TokenNumber:      "number",
	TokenString:      "string",
	TokenIdentifier:  "name",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenDoubleStar:  "**",
	TokenDoubleSlash: "//",
	TokenAmp:         "&",
	TokenPipe:        "|",
	TokenCaret:       "^",
	TokenTilde:       "~",
	TokenGT:          ">",
	TokenLT:          "<",
	TokenGTE:         ">=",
	TokenLTE:         "<=",
	TokenEQ:          "==",
	TokenNEQ:         "!=",
	TokenAssign:      "=",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenComma:       ",",
	TokenDot:         ".",
	TokenColon:       ":",
	TokenAND:         "and",
	TokenOR:          "or",
	TokenNOT:         "not",
	TokenIN:          "in",
	TokenIS:          "is",
	TokenLambda:      "lambda",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"and":    TokenAND,
	"or":     TokenOR,
	"not":    TokenNOT,
	"in":     TokenIN,
	"is":     TokenIS,
	"lambda": TokenLambda,
}

// ════════════════════════════════════════════════════════════════════
// Token
// ════════════════════════════════════════════════════════════════════

// Token represents a single lexical token from the input.
type Token struct {
	Type     TokenType
	Value    string // literal text
	Position int    // rune offset in source
	Line     int    // 1-based
	Column   int    // 1-based
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Value, t.Line, t.Column)
}

// ════════════════════════════════════════════════════════════════════
// Lexer
// ════════════════════════════════════════════════════════════════════

// Lexer tokenizes a Barb expression.
type Lexer struct {
	input  []rune
	pos    int
	line   int
	col    int
	tokens []Token
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input), line: 1, col: 1}
}

// Tokenize performs the complete tokenization and returns all tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

// ────────────────────────────────────────────────────────────────────
// Internal scanning
// ────────────────────────────────────────────────────────────────────

func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.advance()
	}
}

func (l *Lexer) makeToken(typ TokenType, value string, pos, line, col int) Token {
	return Token{Type: typ, Value: value, Position: pos, Line: line, Column: col}
}

func (l *Lexer) errorAt(pos, line, col int, format string, args ...any) error {
	return &ParseError{Position: pos, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

// twoCharTokens lists operators that may be followed by a second character.
var twoCharTokens = map[rune]struct {
	next   rune
	single TokenType
	double TokenType
}{
	'*': {'*', TokenStar, TokenDoubleStar},
	'/': {'/', TokenSlash, TokenDoubleSlash},
	'>': {'=', TokenGT, TokenGTE},
	'<': {'=', TokenLT, TokenLTE},
	'=': {'=', TokenAssign, TokenEQ},
}

var singleCharTokens = map[rune]TokenType{
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	',': TokenComma,
	':': TokenColon,
	'+': TokenPlus,
	'-': TokenMinus,
	'%': TokenPercent,
	'&': TokenAmp,
	'|': TokenPipe,
	'^': TokenCaret,
	'~': TokenTilde,
}

func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return l.makeToken(TokenEOF, "", l.pos, l.line, l.col), nil
	}

	startPos, startLine, startCol := l.pos, l.line, l.col
	ch := l.peek()

	if typ, ok := singleCharTokens[ch]; ok {
		l.advance()
		return l.makeToken(typ, string(ch), startPos, startLine, startCol), nil
	}

	if tc, ok := twoCharTokens[ch]; ok {
		l.advance()
		if l.peek() == tc.next {
			l.advance()
			return l.makeToken(tc.double, string([]rune{ch, tc.next}), startPos, startLine, startCol), nil
		}
		return l.makeToken(tc.single, string(ch), startPos, startLine, startCol), nil
	}

	if ch == '!' {
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenNEQ, "!=", startPos, startLine, startCol), nil
		}
		return Token{}, &ParseError{
			Position: startPos,
			Line:     startLine,
			Column:   startCol,
			Message:  "unexpected '!'",
			Hint:     "use 'not' for negation or '!=' for inequality",
		}
	}

	// String literals
	if ch == '"' || ch == '\'' {
		return l.readString(ch, startPos, startLine, startCol)
	}

	// Numbers (digits or .digit)
	if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekAt(1))) {
		return l.readNumber(startPos, startLine, startCol)
	}

	if ch == '.' {
		l.advance()
		return l.makeToken(TokenDot, ".", startPos, startLine, startCol), nil
	}

	// Identifiers and keywords
	if unicode.IsLetter(ch) || ch == '_' {
		return l.readIdentifier(startPos, startLine, startCol)
	}

	l.advance()
	return Token{}, l.errorAt(startPos, startLine, startCol, "unexpected character %q", ch)
}

func (l *Lexer) readString(quote rune, startPos, startLine, startCol int) (Token, error) {
	l.advance() // consume opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.input) {
			return Token{}, l.errorAt(startPos, startLine, startCol, "unterminated string literal")
		}
		ch := l.advance()
		if ch == quote {
			break
		}
		if ch == '\\' {
			next := l.advance()
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '"', '\'':
				sb.WriteRune(next)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(next)
			}
			continue
		}
		sb.WriteRune(ch)
	}
	return l.makeToken(TokenString, sb.String(), startPos, startLine, startCol), nil
}

func (l *Lexer) readNumber(startPos, startLine, startCol int) (Token, error) {
	var sb strings.Builder
	hasDot, hasExp := false, false

	for l.pos < len(l.input) {
		ch := l.peek()
		switch {
		case unicode.IsDigit(ch):
			sb.WriteRune(l.advance())
		case ch == '_' && unicode.IsDigit(l.peekAt(1)):
			l.advance() // digit separator
		case ch == '.' && !hasDot && !hasExp:
			hasDot = true
			sb.WriteRune(l.advance())
		case (ch == 'e' || ch == 'E') && !hasExp && l.isExponentStart():
			hasExp = true
			sb.WriteRune(l.advance())
			if l.peek() == '+' || l.peek() == '-' {
				sb.WriteRune(l.advance())
			}
		default:
			if unicode.IsLetter(ch) || ch == '_' {
				return Token{}, l.errorAt(startPos, startLine, startCol, "invalid number literal %q", sb.String()+string(ch))
			}
			return l.makeToken(TokenNumber, sb.String(), startPos, startLine, startCol), nil
		}
	}
	return l.makeToken(TokenNumber, sb.String(), startPos, startLine, startCol), nil
}

// isExponentStart reports whether the 'e' under the cursor begins an exponent.
func (l *Lexer) isExponentStart() bool {
	next := l.peekAt(1)
	if next == '+' || next == '-' {
		next = l.peekAt(2)
	}
	return unicode.IsDigit(next)
}

func (l *Lexer) readIdentifier(startPos, startLine, startCol int) (Token, error) {
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.peek()
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			sb.WriteRune(l.advance())
		} else {
			break
		}
	}

	word := sb.String()
	if typ, ok := keywords[word]; ok {
		return l.makeToken(typ, word, startPos, startLine, startCol), nil
	}
	return l.makeToken(TokenIdentifier, word, startPos, startLine, startCol), nil
}
