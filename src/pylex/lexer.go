package pylex

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandboxed-py/interp/src/pyerr"
)

// Tokenize lexes the full source into a flat token stream, per spec.md §2's
// source -> tokens stage. It never panics to the caller: internal failures
// (unterminated string, invalid character, inconsistent dedent) are raised
// with pyerr.Fail and recovered here into a returned *pyerr.Error, exactly
// as please/src/parse/asp's fail()/errorStack is recovered at Parser
// boundaries.
func Tokenize(src string) (toks []Token, err *pyerr.Error) {
	defer pyerr.Recover(&err)
	l := newLexer(src)
	for {
		t := l.next()
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks, nil
		}
	}
}

// lexer is a single-pass, one-rune-lookahead tokenizer. Its field shape
// (current/next rune pair, explicit indents stack, braces depth to
// suppress logical newlines inside brackets) mirrors please/src/parse/asp's
// lex struct.
type lexer struct {
	src        []rune
	pos        int // index into src of currentRune
	line, col  int
	current    rune
	next_      rune
	indents    []int
	braces     int
	pendingDed int
	lastNL     bool
	atLineStart bool
}

func newLexer(src string) *lexer {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	runes := []rune(src)
	l := &lexer{src: runes, line: 1, col: 1, indents: []int{0}, atLineStart: true}
	l.loadRunes()
	return l
}

func (l *lexer) loadRunes() {
	if l.pos < len(l.src) {
		l.current = l.src[l.pos]
	} else {
		l.current = 0
	}
	if l.pos+1 < len(l.src) {
		l.next_ = l.src[l.pos+1]
	} else {
		l.next_ = 0
	}
}

func (l *lexer) advance() {
	if l.current == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
	l.loadRunes()
}

func (l *lexer) peekRune() rune { return l.current }

// next produces the next token, handling indentation at the start of each
// logical line the way please's lex.nextToken does in its '\n' case, but
// generalised to emit an explicit Indent/Dedent/Newline token triple
// instead of folding indentation into the parser's grammar.
func (l *lexer) next() Token {
	if l.pendingDed > 0 {
		l.pendingDed--
		return Token{Kind: Dedent, Line: l.line}
	}
	if l.atLineStart {
		if tok, ok := l.consumeIndentation(); ok {
			return tok
		}
	}
	l.skipSpacesAndComments()

	if l.current == 0 {
		return l.atEOF()
	}
	if l.current == '\n' {
		l.advance()
		if l.braces > 0 {
			return l.next()
		}
		l.atLineStart = true
		if l.lastNL {
			return l.next()
		}
		l.lastNL = true
		return Token{Kind: Newline, Line: l.line - 1}
	}
	l.lastNL = false

	line := l.line
	switch {
	case l.current == '_' || unicode.IsLetter(l.current):
		return l.consumeName(line)
	case unicode.IsDigit(l.current):
		return l.consumeNumber(line)
	case l.current == '.' && unicode.IsDigit(l.next_):
		return l.consumeNumber(line)
	case l.current == '"' || l.current == '\'':
		return l.consumeString(line, false, false)
	}
	return l.consumeOperator(line)
}

// atEOF flushes all open indentation blocks, per spec.md §4.3 ("Dedents at
// end-of-file flush all open blocks").
func (l *lexer) atEOF() Token {
	if !l.lastNL && len(l.indents) > 1 {
		l.lastNL = true
		return Token{Kind: Newline, Line: l.line}
	}
	if len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		return Token{Kind: Dedent, Line: l.line}
	}
	return Token{Kind: EOF, Line: l.line}
}

// consumeIndentation reads leading whitespace of a logical line and emits
// Indent/Dedent tokens as needed. Returns ok=false if the line is blank or
// comment-only (in which case the caller falls through to normal lexing of
// the next logical line).
func (l *lexer) consumeIndentation() (Token, bool) {
	line := l.line
	width := 0
	sawTab, sawSpace := false, false
	for l.current == ' ' || l.current == '\t' {
		if l.current == '\t' {
			sawTab = true
		} else {
			sawSpace = true
		}
		width++
		l.advance()
	}
	if l.current == '\n' || l.current == '#' || l.current == 0 {
		// Blank or comment-only line: indentation is irrelevant.
		l.atLineStart = false
		return Token{}, false
	}
	if sawTab && sawSpace {
		pyerr.Fail(line, "inconsistent use of tabs and spaces in indentation")
	}
	l.atLineStart = false
	cur := l.indents[len(l.indents)-1]
	if width > cur {
		l.indents = append(l.indents, width)
		return Token{Kind: Indent, Line: line}, true
	}
	if width < cur {
		for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
			l.indents = l.indents[:len(l.indents)-1]
			l.pendingDed++
		}
		if l.indents[len(l.indents)-1] != width {
			pyerr.Fail(line, "unindent does not match any outer indentation level")
		}
		l.pendingDed--
		return Token{Kind: Dedent, Line: line}, true
	}
	return Token{}, false
}

func (l *lexer) skipSpacesAndComments() {
	for {
		for l.current == ' ' || l.current == '\t' {
			l.advance()
		}
		if l.current == '\\' && l.next_ == '\n' {
			l.advance()
			l.advance()
			continue
		}
		if l.current == '#' {
			for l.current != '\n' && l.current != 0 {
				l.advance()
			}
			continue
		}
		return
	}
}

func (l *lexer) consumeName(line int) Token {
	var b strings.Builder
	for l.current == '_' || unicode.IsLetter(l.current) || unicode.IsDigit(l.current) {
		b.WriteRune(l.current)
		l.advance()
	}
	s := b.String()
	// String/f-string prefixes: r"...", f"...", rf"...", fr"...", b"..." (rejected).
	if (l.current == '"' || l.current == '\'') && isStringPrefix(s) {
		raw := strings.ContainsAny(s, "rR")
		fstr := strings.ContainsAny(s, "fF")
		isBytes := strings.ContainsAny(s, "bB") && !fstr
		if isBytes {
			pyerr.Fail(line, "byte string literals are not supported")
		}
		return l.consumeString(line, raw, fstr)
	}
	if s == "inf" || s == "nan" {
		return Token{Kind: Float, Payload: s, Line: line}
	}
	if IsKeyword(s) {
		return Token{Kind: Keyword, Payload: s, Line: line}
	}
	if s == "async" || s == "await" {
		pyerr.Fail(line, "'%s' is not supported: cooperative-concurrency keywords are out of scope", s)
	}
	return Token{Kind: Name, Payload: s, Line: line}
}

func isStringPrefix(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, c := range s {
		switch c {
		case 'r', 'R', 'f', 'F', 'b', 'B':
		default:
			return false
		}
	}
	return true
}

func (l *lexer) consumeNumber(line int) Token {
	var b strings.Builder
	if l.current == '0' && (l.next_ == 'x' || l.next_ == 'X' || l.next_ == 'o' || l.next_ == 'O' || l.next_ == 'b' || l.next_ == 'B') {
		b.WriteRune(l.current)
		l.advance()
		b.WriteRune(l.current)
		l.advance()
		for isHexDigit(l.current) || l.current == '_' {
			if l.current != '_' {
				b.WriteRune(l.current)
			}
			l.advance()
		}
		return Token{Kind: Integer, Payload: b.String(), Line: line}
	}
	isFloat := false
	for unicode.IsDigit(l.current) || l.current == '_' {
		if l.current != '_' {
			b.WriteRune(l.current)
		}
		l.advance()
	}
	if l.current == '.' && unicode.IsDigit(l.next_) {
		isFloat = true
		b.WriteRune('.')
		l.advance()
		for unicode.IsDigit(l.current) || l.current == '_' {
			if l.current != '_' {
				b.WriteRune(l.current)
			}
			l.advance()
		}
	} else if l.current == '.' && !unicode.IsLetter(l.next_) && l.next_ != '.' {
		isFloat = true
		b.WriteRune('.')
		l.advance()
	}
	if l.current == 'e' || l.current == 'E' {
		save := b.String()
		var exp strings.Builder
		exp.WriteRune(l.current)
		savedPos, savedLine, savedCol, savedCur, savedNext := l.pos, l.line, l.col, l.current, l.next_
		l.advance()
		if l.current == '+' || l.current == '-' {
			exp.WriteRune(l.current)
			l.advance()
		}
		if unicode.IsDigit(l.current) {
			isFloat = true
			for unicode.IsDigit(l.current) {
				exp.WriteRune(l.current)
				l.advance()
			}
			b.WriteString(exp.String())
		} else {
			// Not actually an exponent; rewind.
			l.pos, l.line, l.col, l.current, l.next_ = savedPos, savedLine, savedCol, savedCur, savedNext
			_ = save
		}
	}
	if isFloat {
		return Token{Kind: Float, Payload: b.String(), Line: line}
	}
	return Token{Kind: Integer, Payload: b.String(), Line: line}
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') || r == 'x' || r == 'o' || r == 'b'
}

// consumeString handles single, double, triple-single, triple-double forms,
// raw strings (no escape processing), and f-strings (payload is the
// template text, which the parser splits into literal and expression
// parts), per spec.md §4.3.
func (l *lexer) consumeString(line int, raw, fstr bool) Token {
	quote := l.current
	triple := false
	l.advance()
	if l.current == quote && l.next_ == quote {
		triple = true
		l.advance()
		l.advance()
	}
	var b strings.Builder
	for {
		if l.current == 0 {
			pyerr.Fail(line, "unterminated string literal")
		}
		if l.current == quote {
			if !triple {
				l.advance()
				break
			}
			if l.next_ == quote && l.peekAt(2) == quote {
				l.advance()
				l.advance()
				l.advance()
				break
			}
			b.WriteRune(l.current)
			l.advance()
			continue
		}
		if l.current == '\n' && !triple {
			pyerr.Fail(line, "unterminated string literal")
		}
		if l.current == '\\' && !raw {
			l.advance()
			l.writeEscape(&b, line)
			continue
		}
		b.WriteRune(l.current)
		l.advance()
	}
	kind := String
	if fstr {
		kind = FString
	}
	return Token{Kind: kind, Payload: b.String(), Line: line}
}

func (l *lexer) peekAt(n int) rune {
	idx := l.pos + n
	if idx < len(l.src) {
		return l.src[idx]
	}
	return 0
}

func (l *lexer) writeEscape(b *strings.Builder, line int) {
	c := l.current
	l.advance()
	switch c {
	case 'n':
		b.WriteRune('\n')
	case 't':
		b.WriteRune('\t')
	case 'r':
		b.WriteRune('\r')
	case '0':
		b.WriteRune(0)
	case 'a':
		b.WriteRune('\a')
	case 'b':
		b.WriteRune('\b')
	case 'f':
		b.WriteRune('\f')
	case 'v':
		b.WriteRune('\v')
	case '\\':
		b.WriteRune('\\')
	case '\'':
		b.WriteRune('\'')
	case '"':
		b.WriteRune('"')
	case '\n':
		// line continuation inside a string: consumes the newline.
	case 'x':
		b.WriteRune(l.readHexEscape(2, line))
	case 'u':
		b.WriteRune(l.readHexEscape(4, line))
	case 'U':
		b.WriteRune(l.readHexEscape(8, line))
	default:
		b.WriteRune('\\')
		b.WriteRune(c)
	}
}

func (l *lexer) readHexEscape(n int, line int) rune {
	var v int32
	for i := 0; i < n; i++ {
		d := hexVal(l.current)
		if d < 0 {
			pyerr.Fail(line, "invalid \\x/\\u/\\U escape sequence")
		}
		v = v*16 + d
		l.advance()
	}
	return rune(v)
}

func hexVal(r rune) int32 {
	switch {
	case r >= '0' && r <= '9':
		return int32(r - '0')
	case r >= 'a' && r <= 'f':
		return int32(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int32(r-'A') + 10
	}
	return -1
}

// operators, longest first so multi-char operators are matched greedily.
var operators = []string{
	"**=", "//=", ">>=", "<<=",
	"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "->", ":=",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"+", "-", "*", "/", "%", "(", ")", "[", "]", "{", "}", ",", ":", ".",
	"=", "<", ">", "~", "^", "&", "|", ";", "@",
}

func (l *lexer) consumeOperator(line int) Token {
	rest := l.src[l.pos:]
	if len(rest) > utf8.UTFMax {
		rest = rest[:utf8.UTFMax]
	}
	for _, op := range operators {
		n := len([]rune(op))
		if n <= len(rest) && string(rest[:n]) == op {
			for i := 0; i < n; i++ {
				switch op[0] {
				case '(', '[', '{':
					l.braces++
				case ')', ']', '}':
					if l.braces > 0 {
						l.braces--
					}
				}
				l.advance()
			}
			return Token{Kind: Op, Payload: op, Line: line}
		}
	}
	pyerr.Fail(line, "invalid character %q", l.current)
	panic("unreachable")
}
