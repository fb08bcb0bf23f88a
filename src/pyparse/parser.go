// Package pyparse implements the token-stream -> AST stage of the pipeline
// (spec.md §2, §4.4): a classic recursive-descent parser with explicit
// precedence-climbing for expressions, ported in spirit from
// please/src/parse/asp's Parser (same "never crash on malformed input,
// always return {error, at line N}" contract, same panic-to-the-entry-point
// internal control flow) but driving pyast.Node construction instead of
// please's Statement/Expression grammar, and covering the richer construct
// set spec.md §3.2 names (comprehensions, match/case, with, try/except,
// f-strings, walrus, decorators, chained comparisons).
package pyparse

import (
	"strings"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyerr"
	"github.com/sandboxed-py/interp/src/pylex"
)

// Parse lexes and parses src into a *pyast.Module. Per spec.md §4.4 this
// never panics to the caller; the single recover lives here.
func Parse(src string) (mod *pyast.Module, err *pyerr.Error) {
	toks, lexErr := pylex.Tokenize(src)
	if lexErr != nil {
		return nil, lexErr
	}
	defer pyerr.Recover(&err)
	p := &parser{toks: toks}
	p.skipNewlines()
	body := p.parseStatements()
	p.expect(pylex.EOF)
	return &pyast.Module{Body: body}, nil
}

type parser struct {
	toks []pylex.Token
	pos  int
}

func (p *parser) cur() pylex.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return pylex.Token{Kind: pylex.EOF}
}

func (p *parser) peekAt(n int) pylex.Token {
	idx := p.pos + n
	if idx < len(p.toks) {
		return p.toks[idx]
	}
	return pylex.Token{Kind: pylex.EOF}
}

func (p *parser) advance() pylex.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) line() int { return p.cur().Line }

func (p *parser) at(kind pylex.Kind) bool { return p.cur().Kind == kind }

func (p *parser) atOp(op string) bool { return p.cur().Kind == pylex.Op && p.cur().Payload == op }

func (p *parser) atKeyword(kw string) bool {
	return p.cur().Kind == pylex.Keyword && p.cur().Payload == kw
}

// atName reports whether the current token is the bare identifier "match",
// "case", or "_" used contextually (spec.md §4.3: match is a Name, never a
// reserved Keyword).
func (p *parser) atName(name string) bool {
	return p.cur().Kind == pylex.Name && p.cur().Payload == name
}

func (p *parser) expect(kind pylex.Kind) pylex.Token {
	if p.cur().Kind != kind {
		pyerr.Fail(p.line(), "expected %s, got %s", kind, p.cur().Kind)
	}
	return p.advance()
}

func (p *parser) expectOp(op string) pylex.Token {
	if !p.atOp(op) {
		pyerr.Fail(p.line(), "expected %q, got %q", op, p.cur().Payload)
	}
	return p.advance()
}

func (p *parser) expectKeyword(kw string) pylex.Token {
	if !p.atKeyword(kw) {
		pyerr.Fail(p.line(), "expected %q, got %q", kw, p.cur().Payload)
	}
	return p.advance()
}

func (p *parser) skipNewlines() {
	for p.at(pylex.Newline) {
		p.advance()
	}
}

// ---- statement sequences --------------------------------------------------

// parseStatements parses a flat run of statements at the current
// indentation level, i.e. until Dedent or EOF.
func (p *parser) parseStatements() []pyast.Node {
	var out []pyast.Node
	p.skipNewlines()
	for !p.at(pylex.Dedent) && !p.at(pylex.EOF) {
		out = append(out, p.parseStatement())
		p.skipNewlines()
	}
	return out
}

// parseBlock parses ":" NEWLINE INDENT statements* DEDENT, the standard
// compound-statement body shape.
func (p *parser) parseBlock() []pyast.Node {
	p.expectOp(":")
	if p.at(pylex.Newline) {
		p.skipNewlines()
		p.expect(pylex.Indent)
		body := p.parseStatements()
		p.expect(pylex.Dedent)
		return body
	}
	// Single-line form: "if x: y".
	stmt := p.parseSimpleStatement()
	p.skipNewlines()
	return []pyast.Node{stmt}
}

func (p *parser) parseStatement() pyast.Node {
	line := p.line()
	switch {
	case p.atOp("@"):
		return p.parseDecorated()
	case p.atKeyword("def"):
		return p.parseDef(nil)
	case p.atKeyword("class"):
		return p.parseClass(nil)
	case p.atKeyword("if"):
		return p.parseIf()
	case p.atKeyword("while"):
		return p.parseWhile()
	case p.atKeyword("for"):
		return p.parseFor()
	case p.atKeyword("try"):
		return p.parseTry()
	case p.atKeyword("with"):
		return p.parseWith()
	case p.atName("match") && p.isMatchStatement():
		return p.parseMatch()
	default:
		s := p.parseSimpleStatement()
		p.expectStatementEnd()
		_ = line
		return s
	}
}

func (p *parser) expectStatementEnd() {
	if p.at(pylex.Newline) {
		p.advance()
		return
	}
	if p.at(pylex.EOF) || p.at(pylex.Dedent) {
		return
	}
	pyerr.Fail(p.line(), "expected end of line, got %q", p.cur().Payload)
}

// isMatchStatement disambiguates the contextual "match" keyword: it only
// introduces a match statement when followed by an expression and a colon
// at the end of the logical line, per spec.md §4.3.
func (p *parser) isMatchStatement() bool {
	// Heuristic lookahead: match statement is "match <expr>:" followed by
	// NEWLINE+INDENT. We scan forward for a ':' at brace-depth 0 before a
	// Newline token.
	depth := 0
	for i := p.pos + 1; i < len(p.toks); i++ {
		t := p.toks[i]
		switch t.Kind {
		case pylex.Newline, pylex.EOF:
			return false
		case pylex.Op:
			switch t.Payload {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ":":
				if depth == 0 {
					return true
				}
			case "=":
				if depth == 0 {
					return false
				}
			}
		}
	}
	return false
}

// parseDecorated parses one-or-more "@decorator" lines followed by a def or
// class, per spec.md §4.4 ("Decorators are collected and wrapped around the
// following def or class").
func (p *parser) parseDecorated() pyast.Node {
	var decs []pyast.Node
	for p.atOp("@") {
		p.advance()
		decs = append(decs, p.parseExpr())
		p.expectStatementEnd()
	}
	switch {
	case p.atKeyword("def"):
		return p.parseDef(decs)
	case p.atKeyword("class"):
		return p.parseClass(decs)
	}
	pyerr.Fail(p.line(), "expected def or class after decorator")
	panic("unreachable")
}

func (p *parser) parseSimpleStatement() pyast.Node {
	line := p.line()
	switch {
	case p.atKeyword("return"):
		p.advance()
		var vals []pyast.Node
		if !p.at(pylex.Newline) && !p.at(pylex.EOF) && !p.at(pylex.Dedent) {
			vals = p.parseExprList()
		}
		return &pyast.Return{Pos: pos(line), Values: vals}
	case p.atKeyword("pass"):
		p.advance()
		return &pyast.Pass{Pos: pos(line)}
	case p.atKeyword("break"):
		p.advance()
		return &pyast.Break{Pos: pos(line)}
	case p.atKeyword("continue"):
		p.advance()
		return &pyast.Continue{Pos: pos(line)}
	case p.atKeyword("raise"):
		p.advance()
		var exc pyast.Node
		if !p.at(pylex.Newline) && !p.at(pylex.EOF) {
			exc = p.parseExpr()
		}
		return &pyast.Raise{Pos: pos(line), Exc: exc}
	case p.atKeyword("assert"):
		p.advance()
		cond := p.parseExpr()
		var msg pyast.Node
		if p.atOp(",") {
			p.advance()
			msg = p.parseExpr()
		}
		return &pyast.Assert{Pos: pos(line), Cond: cond, Msg: msg}
	case p.atKeyword("del"):
		p.advance()
		targets := p.parseExprList()
		return &pyast.Del{Pos: pos(line), Targets: targets}
	case p.atKeyword("global"):
		p.advance()
		return &pyast.Global{Pos: pos(line), Names: p.parseNameList()}
	case p.atKeyword("nonlocal"):
		p.advance()
		return &pyast.Nonlocal{Pos: pos(line), Names: p.parseNameList()}
	case p.atKeyword("import"):
		return p.parseImport()
	case p.atKeyword("from"):
		return p.parseFromImport()
	default:
		return p.parseExprOrAssign()
	}
}

func (p *parser) parseNameList() []string {
	names := []string{p.expect(pylex.Name).Payload}
	for p.atOp(",") {
		p.advance()
		names = append(names, p.expect(pylex.Name).Payload)
	}
	return names
}

func (p *parser) parseImport() pyast.Node {
	line := p.line()
	p.expectKeyword("import")
	mod := p.parseDottedName()
	alias := ""
	if p.atKeyword("as") {
		p.advance()
		alias = p.expect(pylex.Name).Payload
	}
	return &pyast.Import{Pos: pos(line), Module: mod, Alias: alias}
}

func (p *parser) parseFromImport() pyast.Node {
	line := p.line()
	p.expectKeyword("from")
	mod := p.parseDottedName()
	p.expectKeyword("import")
	if p.atOp("*") {
		pyerr.Fail(line, "'from %s import *' is not supported", mod)
	}
	var names []pyast.ImportedName
	wrapped := p.atOp("(")
	if wrapped {
		p.advance()
	}
	for {
		n := p.expect(pylex.Name).Payload
		alias := ""
		if p.atKeyword("as") {
			p.advance()
			alias = p.expect(pylex.Name).Payload
		}
		names = append(names, pyast.ImportedName{Name: n, Alias: alias})
		if p.atOp(",") {
			p.advance()
			if wrapped && p.atOp(")") {
				break
			}
			continue
		}
		break
	}
	if wrapped {
		p.expectOp(")")
	}
	return &pyast.FromImport{Pos: pos(line), Module: mod, Names: names}
}

func (p *parser) parseDottedName() string {
	parts := []string{p.expect(pylex.Name).Payload}
	for p.atOp(".") {
		p.advance()
		parts = append(parts, p.expect(pylex.Name).Payload)
	}
	return strings.Join(parts, ".")
}

func pos(line int) pyast.Pos { return pyast.Pos{LineNo: line} }
