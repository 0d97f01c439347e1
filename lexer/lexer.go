// Package lexer implements lexical analysis for the element-graph source
// language: a token stream with line tracking, #line handling, and a
// config-blob extractor used by the parser for parenthesised argument
// text.
//
// Grounded on this codebase's syntax package (a byte-at-a-time source
// reader feeding a token scanner), generalised to this language's simpler
// token set (no numeric literals -- digits are legal identifier
// characters here) and its richer comment/quote-aware config extraction.
package lexer

import (
	"fmt"
	"strconv"

	"github.com/elementgraph/corelang/token"
)

const pushbackCapacity = 4

// source is a byte-at-a-time reader with line tracking. \n, \r, and \r\n
// are all normalised to a single '\n' ch and counted as one line break.
type source struct {
	buf    []byte
	ch     int32 // current byte, -1 at EOF
	chOffs int   // byte offset in buf where ch starts
	offs   int   // offset of the next unread byte

	line                 int
	filename, origFilename string
}

func newSource(filename string, buf []byte) *source {
	s := &source{buf: buf, filename: filename, origFilename: filename, line: 1}
	s.nextch()
	return s
}

func (s *source) nextch() {
	if s.offs >= len(s.buf) {
		s.chOffs = len(s.buf)
		s.ch = -1
		return
	}
	c := s.buf[s.offs]
	startOffs := s.offs
	s.offs++

	if c == '\r' {
		if s.offs < len(s.buf) && s.buf[s.offs] == '\n' {
			s.offs++
		}
		s.line++
		s.ch = '\n'
		s.chOffs = startOffs
		return
	}
	if c == '\n' {
		s.line++
	}
	s.ch = int32(c)
	s.chOffs = startOffs
}

// peek returns the byte that follows the current ch, without consuming it,
// or -1 at EOF.
func (s *source) peek() int32 {
	if s.offs >= len(s.buf) {
		return -1
	}
	return int32(s.buf[s.offs])
}

func (s *source) pos() token.Pos {
	return token.Pos{Filename: s.filename, Line: s.line}
}

// Lexer turns source text into a stream of Lexemes, supporting a small
// bounded pushback so the parser can implement two-token lookahead via
// repeated Lex/Unlex pairs.
type Lexer struct {
	src *source
	errh func(pos token.Pos, msg string)

	atLineStart bool
	pending     []token.Lexeme // LIFO pushback stack
}

// New creates a Lexer over src, reporting lexical errors (unknown
// preprocessor directive, unterminated comment/string) through errh. errh
// may be nil to silently ignore lexical errors.
func New(filename string, src []byte, errh func(pos token.Pos, msg string)) *Lexer {
	return &Lexer{
		src:         newSource(filename, src),
		errh:        errh,
		atLineStart: true,
	}
}

func (lx *Lexer) error(format string, args ...any) {
	if lx.errh != nil {
		lx.errh(lx.src.pos(), fmt.Sprintf(format, args...))
	}
}

// Lex returns the next lexeme, either from the pushback stack or freshly
// scanned from the source.
func (lx *Lexer) Lex() token.Lexeme {
	if n := len(lx.pending); n > 0 {
		lex := lx.pending[n-1]
		lx.pending = lx.pending[:n-1]
		return lex
	}
	return lx.scanLexeme()
}

// Unlex pushes lex back, to be returned by the next Lex call. Pushing more
// than pushbackCapacity lexemes without an intervening Lex is a
// programming error.
func (lx *Lexer) Unlex(lex token.Lexeme) {
	if len(lx.pending) >= pushbackCapacity {
		panic("lexer: pushback capacity exceeded")
	}
	lx.pending = append(lx.pending, lex)
}

func (lx *Lexer) scanLexeme() token.Lexeme {
	for {
		lx.skipWhitespaceAndComments()

		if lx.atLineStart && lx.src.ch == '#' {
			lx.handleLineDirective()
			continue
		}
		lx.atLineStart = false

		pos := lx.src.pos()

		switch {
		case lx.src.ch == -1:
			return token.Lexeme{Kind: token.EOF, Pos: pos}

		case isIdentStart(lx.src.ch):
			return lx.scanIdent(pos)

		case lx.src.ch == '$':
			return lx.scanVariable(pos)

		default:
			if lex, ok := lx.scanPunct(pos); ok {
				return lex
			}
			lx.error("unexpected character %q", rune(lx.src.ch))
			lx.src.nextch()
			continue
		}
	}
}

func (lx *Lexer) skipWhitespaceAndComments() {
	for {
		switch lx.src.ch {
		case ' ', '\t':
			lx.src.nextch()
		case '\n':
			lx.src.nextch()
			lx.atLineStart = true
		case '/':
			if lx.src.peek() == '/' {
				lx.skipLineComment()
				continue
			}
			if lx.src.peek() == '*' {
				lx.skipBlockComment()
				continue
			}
			return
		default:
			return
		}
	}
}

func (lx *Lexer) skipLineComment() {
	lx.src.nextch() // second '/'
	lx.src.nextch()
	for lx.src.ch != '\n' && lx.src.ch != -1 {
		lx.src.nextch()
	}
}

func (lx *Lexer) skipBlockComment() {
	lx.src.nextch() // '*'
	lx.src.nextch()
	for {
		if lx.src.ch == -1 {
			lx.error("unterminated block comment")
			return
		}
		if lx.src.ch == '*' && lx.src.peek() == '/' {
			lx.src.nextch()
			lx.src.nextch()
			return
		}
		lx.src.nextch()
	}
}

// ----------------------------------------------------------------------------
// Identifiers and variables

func isDigit(c int32) bool  { return c >= '0' && c <= '9' }
func isAlpha(c int32) bool  { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isSpaceTab(c int32) bool { return c == ' ' || c == '\t' }

func isIdentStart(c int32) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '@'
}

func isIdentContinue(c int32) bool {
	return isIdentStart(c) || c == '/'
}

// scanIdent scans an identifier, a reserved word, or a `/`-joined
// identifier, honouring the rule that "//" or "/*" ends the identifier
// even mid-token (so "a/b" is one identifier but "a//comment" splits).
func (lx *Lexer) scanIdent(pos token.Pos) token.Lexeme {
	start := lx.src.chOffs
	for isIdentContinue(lx.src.ch) {
		if lx.src.ch == '/' && (lx.src.peek() == '/' || lx.src.peek() == '*') {
			break
		}
		lx.src.nextch()
	}
	text := string(lx.src.buf[start:lx.src.chOffs])

	if kind, ok := token.LookupReserved(text); ok {
		return token.Lexeme{Kind: kind, Text: text, Pos: pos}
	}
	return token.Lexeme{Kind: token.Identifier, Text: text, Pos: pos}
}

func (lx *Lexer) scanVariable(pos token.Pos) token.Lexeme {
	lx.src.nextch() // consume '$'
	start := lx.src.chOffs
	for isIdentContinue(lx.src.ch) {
		if lx.src.ch == '/' && (lx.src.peek() == '/' || lx.src.peek() == '*') {
			break
		}
		lx.src.nextch()
	}
	text := string(lx.src.buf[start:lx.src.chOffs])
	return token.Lexeme{Kind: token.Variable, Text: text, Pos: pos}
}

// ----------------------------------------------------------------------------
// Punctuation and multi-character operators

func (lx *Lexer) scanPunct(pos token.Pos) (token.Lexeme, bool) {
	ch := lx.src.ch
	switch ch {
	case '-':
		if lx.src.peek() == '>' {
			lx.src.nextch()
			lx.src.nextch()
			return token.Lexeme{Kind: token.Arrow, Text: "->", Pos: pos}, true
		}
		return token.Lexeme{}, false

	case ':':
		if lx.src.peek() == ':' {
			lx.src.nextch()
			lx.src.nextch()
			return token.Lexeme{Kind: token.DoubleColon, Text: "::", Pos: pos}, true
		}
		return token.Lexeme{}, false

	case '|':
		if lx.src.peek() == '|' {
			lx.src.nextch()
			lx.src.nextch()
			return token.Lexeme{Kind: token.DoubleBar, Text: "||", Pos: pos}, true
		}
		lx.src.nextch()
		return token.Lexeme{Kind: token.Bar, Text: "|", Pos: pos}, true

	case '.':
		// Ellipsis is the only valid use of '.'.
		save := *lx.src
		lx.src.nextch()
		if lx.src.ch == '.' {
			lx.src.nextch()
			if lx.src.ch == '.' {
				lx.src.nextch()
				return token.Lexeme{Kind: token.Ellipsis, Text: "...", Pos: pos}, true
			}
		}
		*lx.src = save
		return token.Lexeme{}, false

	case '(':
		lx.src.nextch()
		return token.Lexeme{Kind: token.LParen, Text: "(", Pos: pos}, true
	case ')':
		lx.src.nextch()
		return token.Lexeme{Kind: token.RParen, Text: ")", Pos: pos}, true
	case '{':
		lx.src.nextch()
		return token.Lexeme{Kind: token.LBrace, Text: "{", Pos: pos}, true
	case '}':
		lx.src.nextch()
		return token.Lexeme{Kind: token.RBrace, Text: "}", Pos: pos}, true
	case '[':
		lx.src.nextch()
		return token.Lexeme{Kind: token.LBracket, Text: "[", Pos: pos}, true
	case ']':
		lx.src.nextch()
		return token.Lexeme{Kind: token.RBracket, Text: "]", Pos: pos}, true
	case ',':
		lx.src.nextch()
		return token.Lexeme{Kind: token.Comma, Text: ",", Pos: pos}, true
	case ';':
		lx.src.nextch()
		return token.Lexeme{Kind: token.Semi, Text: ";", Pos: pos}, true
	}
	return token.Lexeme{}, false
}

// ----------------------------------------------------------------------------
// #line directives

func (lx *Lexer) skipSpaces() {
	for isSpaceTab(lx.src.ch) {
		lx.src.nextch()
	}
}

func (lx *Lexer) skipToEOL() {
	for lx.src.ch != '\n' && lx.src.ch != -1 {
		lx.src.nextch()
	}
}

// handleLineDirective parses "#line N [\"file\"]" (the "line" keyword is
// optional) occupying the rest of the current source line, and rewrites
// the lexer's notion of current line/filename accordingly.
func (lx *Lexer) handleLineDirective() {
	lx.src.nextch() // consume '#'
	lx.skipSpaces()

	if isAlpha(lx.src.ch) {
		start := lx.src.chOffs
		for isAlpha(lx.src.ch) {
			lx.src.nextch()
		}
		word := string(lx.src.buf[start:lx.src.chOffs])
		if word != "line" {
			lx.error("unknown preprocessor directive #%s", word)
			lx.skipToEOL()
			lx.consumeEOL()
			return
		}
		lx.skipSpaces()
	}

	if !isDigit(lx.src.ch) {
		lx.error("expected line number after #line")
		lx.skipToEOL()
		lx.consumeEOL()
		return
	}
	start := lx.src.chOffs
	for isDigit(lx.src.ch) {
		lx.src.nextch()
	}
	n, err := strconv.Atoi(string(lx.src.buf[start:lx.src.chOffs]))
	if err != nil {
		lx.error("invalid line number in #line directive")
		lx.skipToEOL()
		lx.consumeEOL()
		return
	}
	lx.skipSpaces()

	if lx.src.ch == '"' {
		filename, ok := lx.scanDirectiveFilename()
		if !ok {
			lx.error("unterminated filename in #line directive")
		} else if filename == "" {
			lx.src.filename = lx.src.origFilename
		} else {
			lx.src.filename = filename
		}
	}

	lx.skipToEOL()
	// The newline ending the directive is the current ch and was already
	// counted when it was read, so the line that follows it is line n.
	lx.src.line = n
	lx.consumeEOL()
}

// consumeEOL consumes exactly the newline ending the current line, if
// present. The line counter is not bumped here: source.nextch already
// counted that newline when it became the current ch.
func (lx *Lexer) consumeEOL() {
	if lx.src.ch == '\n' {
		lx.src.nextch()
	}
	lx.atLineStart = true
}

// scanDirectiveFilename parses a double-quoted filename with backslash
// escapes for the delimiter and for the backslash itself.
func (lx *Lexer) scanDirectiveFilename() (string, bool) {
	lx.src.nextch() // opening '"'
	var out []byte
	for {
		switch lx.src.ch {
		case -1, '\n':
			return string(out), false
		case '"':
			lx.src.nextch()
			return string(out), true
		case '\\':
			if lx.src.peek() == '"' || lx.src.peek() == '\\' {
				lx.src.nextch()
			}
			out = append(out, byte(lx.src.ch))
			lx.src.nextch()
		default:
			out = append(out, byte(lx.src.ch))
			lx.src.nextch()
		}
	}
}

// ----------------------------------------------------------------------------
// Configuration blobs

// LexConfig returns the substring from the current position up to (but
// not including) the balancing ')', respecting nested parentheses, single-
// quoted (raw) and double-quoted (\" and \$ escaped) strings, and line/
// block comments embedded in the blob. It does not consume the closing
// ')'. Line-counter updates continue across the span.
func (lx *Lexer) LexConfig() string {
	start := lx.src.chOffs
	depth := 0

	for {
		switch lx.src.ch {
		case -1:
			lx.error("unterminated configuration argument")
			return string(lx.src.buf[start:lx.src.chOffs])

		case '(':
			depth++
			lx.src.nextch()

		case ')':
			if depth == 0 {
				return string(lx.src.buf[start:lx.src.chOffs])
			}
			depth--
			lx.src.nextch()

		case '\'':
			lx.skipRawQuoted()

		case '"':
			lx.skipDoubleQuoted()

		case '/':
			if lx.src.peek() == '/' {
				lx.skipLineComment()
			} else if lx.src.peek() == '*' {
				lx.skipBlockComment()
			} else {
				lx.src.nextch()
			}

		default:
			lx.src.nextch()
		}
	}
}

func (lx *Lexer) skipRawQuoted() {
	lx.src.nextch() // opening '\''
	for lx.src.ch != '\'' && lx.src.ch != -1 {
		lx.src.nextch()
	}
	if lx.src.ch == '\'' {
		lx.src.nextch()
	} else {
		lx.error("unterminated string")
	}
}

func (lx *Lexer) skipDoubleQuoted() {
	lx.src.nextch() // opening '"'
	for {
		switch lx.src.ch {
		case -1, '\n':
			lx.error("unterminated string")
			return
		case '"':
			lx.src.nextch()
			return
		case '\\':
			if lx.src.peek() == '"' || lx.src.peek() == '$' || lx.src.peek() == '\\' {
				lx.src.nextch()
			}
			lx.src.nextch()
		default:
			lx.src.nextch()
		}
	}
}
