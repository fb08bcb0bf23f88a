package pyparse

import (
	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pylex"
)

func (p *parser) parseDef(decs []pyast.Node) pyast.Node {
	line := p.line()
	p.expectKeyword("def")
	name := p.expect(pylex.Name).Payload
	params := p.parseParams()
	if p.atOp("->") {
		p.advance()
		p.parseExpr() // return annotation, discarded per spec.md §4.4
	}
	body := p.parseBlock()
	def := &pyast.Def{Pos: pos(line), Name: name, Params: params, Body: body, Decorators: decs}
	def.IsGenerator = containsYield(body)
	return def
}

func (p *parser) parseParams() []pyast.Param {
	p.expectOp("(")
	var params []pyast.Param
	for !p.atOp(")") {
		var pr pyast.Param
		if p.atOp("*") {
			p.advance()
			if p.at(pylex.Name) {
				pr.IsStar = true
				pr.Name = p.expect(pylex.Name).Payload
			}
			// bare "*" (keyword-only marker) carries no name; skip it silently.
		} else if p.atOp("**") {
			p.advance()
			pr.IsDoubleStar = true
			pr.Name = p.expect(pylex.Name).Payload
		} else {
			pr.Name = p.expect(pylex.Name).Payload
			if p.atOp(":") {
				p.advance()
				pr.Annotation = p.parseTernary()
			}
			if p.atOp("=") {
				p.advance()
				pr.Default = p.parseTernary()
			}
		}
		if pr.Name != "" || pr.IsStar || pr.IsDoubleStar {
			params = append(params, pr)
		}
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(")")
	return params
}

func (p *parser) parseClass(decs []pyast.Node) pyast.Node {
	line := p.line()
	p.expectKeyword("class")
	name := p.expect(pylex.Name).Payload
	var bases []pyast.Node
	if p.atOp("(") {
		p.advance()
		for !p.atOp(")") {
			if p.atOp("**") { // metaclass=... kwargs, discarded
				p.advance()
				p.parseTernary()
			} else if p.at(pylex.Name) && p.peekAt(1).Kind == pylex.Op && p.peekAt(1).Payload == "=" {
				p.advance()
				p.advance()
				p.parseTernary()
			} else {
				bases = append(bases, p.parseExpr())
			}
			if p.atOp(",") {
				p.advance()
				continue
			}
			break
		}
		p.expectOp(")")
	}
	body := p.parseBlock()
	return &pyast.Class{Pos: pos(line), Name: name, Bases: bases, Body: body, Decorators: decs}
}

func (p *parser) parseIf() pyast.Node {
	line := p.line()
	p.expectKeyword("if")
	cond := p.parseExpr()
	body := p.parseBlock()
	node := &pyast.If{Pos: pos(line), Cond: cond, Body: body}
	switch {
	case p.atKeyword("elif"):
		elifLine := p.line()
		p.advance()
		cond2 := p.parseExpr()
		body2 := p.parseBlock()
		elif := &pyast.If{Pos: pos(elifLine), Cond: cond2, Body: body2}
		node.Else = p.finishElifChain(elif)
	case p.atKeyword("else"):
		p.advance()
		node.Else = p.parseBlock()
	}
	return node
}

// finishElifChain recursively attaches further elif/else clauses onto an
// already-parsed elif node, then returns it wrapped as a single-element
// Else body (spec.md §3.2: "Elif clauses are represented as nested If
// nodes in Else").
func (p *parser) finishElifChain(elif *pyast.If) []pyast.Node {
	switch {
	case p.atKeyword("elif"):
		line := p.line()
		p.advance()
		cond := p.parseExpr()
		body := p.parseBlock()
		next := &pyast.If{Pos: pos(line), Cond: cond, Body: body}
		elif.Else = p.finishElifChain(next)
	case p.atKeyword("else"):
		p.advance()
		elif.Else = p.parseBlock()
	}
	return []pyast.Node{elif}
}

func (p *parser) parseWhile() pyast.Node {
	line := p.line()
	p.expectKeyword("while")
	cond := p.parseExpr()
	body := p.parseBlock()
	node := &pyast.While{Pos: pos(line), Cond: cond, Body: body}
	if p.atKeyword("else") {
		p.advance()
		node.Else = p.parseBlock()
	}
	return node
}

func (p *parser) parseFor() pyast.Node {
	line := p.line()
	p.expectKeyword("for")
	targets := p.parseAssignTargetNames()
	p.expectKeyword("in")
	iter := p.parseExprListAsNode()
	body := p.parseBlock()
	node := &pyast.For{Pos: pos(line), Targets: targets, Iter: iter, Body: body}
	if p.atKeyword("else") {
		p.advance()
		node.Else = p.parseBlock()
	}
	return node
}

// parseAssignTargetNames parses a comma-separated list of bare names used
// as for-loop / comprehension targets, supporting "a, b" tuple unpacking
// and a single parenthesised form "(a, b)".
func (p *parser) parseAssignTargetNames() []string {
	if p.atOp("(") {
		p.advance()
		names := p.parseAssignTargetNames()
		p.expectOp(")")
		return names
	}
	names := []string{p.expect(pylex.Name).Payload}
	for p.atOp(",") {
		if p.peekAt(1).Kind == pylex.Keyword && p.peekAt(1).Payload == "in" {
			break
		}
		p.advance()
		names = append(names, p.expect(pylex.Name).Payload)
	}
	return names
}

func (p *parser) parseTry() pyast.Node {
	line := p.line()
	p.expectKeyword("try")
	body := p.parseBlock()
	node := &pyast.Try{Pos: pos(line), Body: body}
	for p.atKeyword("except") {
		p.advance()
		var ec pyast.ExceptClause
		if !p.atOp(":") {
			// "except (A, B):" - parenthesised alternation
			wrapped := p.atOp("(")
			if wrapped {
				p.advance()
			}
			ec.Classes = append(ec.Classes, p.parseDottedName())
			for p.atOp(",") {
				p.advance()
				if wrapped && p.atOp(")") {
					break
				}
				ec.Classes = append(ec.Classes, p.parseDottedName())
			}
			if wrapped {
				p.expectOp(")")
			}
			if p.atKeyword("as") {
				p.advance()
				ec.As = p.expect(pylex.Name).Payload
			}
		}
		ec.Body = p.parseBlock()
		node.Handlers = append(node.Handlers, ec)
	}
	if p.atKeyword("else") {
		p.advance()
		node.Else = p.parseBlock()
	}
	if p.atKeyword("finally") {
		p.advance()
		node.Finally = p.parseBlock()
	}
	return node
}

func (p *parser) parseWith() pyast.Node {
	line := p.line()
	p.expectKeyword("with")
	return p.parseWithItem(line)
}

// parseWithItem parses one with-item and, if more follow separated by
// commas, nests the remainder inside the first item's Body, matching
// Python's own desugaring of multi-item with statements.
func (p *parser) parseWithItem(line int) pyast.Node {
	expr := p.parseExpr()
	as := ""
	if p.atKeyword("as") {
		p.advance()
		as = p.expect(pylex.Name).Payload
	}
	if p.atOp(",") {
		p.advance()
		inner := p.parseWithItem(p.line())
		return &pyast.With{Pos: pos(line), Expr: expr, As: as, Body: []pyast.Node{inner}}
	}
	body := p.parseBlock()
	return &pyast.With{Pos: pos(line), Expr: expr, As: as, Body: body}
}

func (p *parser) parseMatch() pyast.Node {
	line := p.line()
	p.advance() // consume the "match" name token
	subject := p.parseExprListAsNode()
	p.expectOp(":")
	p.skipNewlines()
	p.expect(pylex.Indent)
	node := &pyast.Match{Pos: pos(line), Subject: subject}
	for p.atName("case") {
		p.advance()
		pat := p.parsePattern()
		var guard pyast.Node
		if p.atKeyword("if") {
			p.advance()
			guard = p.parseExpr()
		}
		body := p.parseBlock()
		node.Cases = append(node.Cases, pyast.CaseClause{Pattern: pat, Guard: guard, Body: body})
		p.skipNewlines()
	}
	p.expect(pylex.Dedent)
	return node
}

func (p *parser) parsePattern() pyast.Pattern {
	pat := p.parseOrPattern()
	return pat
}

func (p *parser) parseOrPattern() pyast.Pattern {
	first := p.parseAtomPattern()
	if !p.atOp("|") {
		return first
	}
	alts := []pyast.Pattern{first}
	for p.atOp("|") {
		p.advance()
		alts = append(alts, p.parseAtomPattern())
	}
	return pyast.Pattern{Kind: pyast.PatternOr, Alts: alts}
}

func (p *parser) parseAtomPattern() pyast.Pattern {
	switch {
	case p.atName("_"):
		p.advance()
		return pyast.Pattern{Kind: pyast.PatternWildcard}
	case p.atOp("["):
		return p.parseSequencePattern("[", "]")
	case p.atOp("("):
		return p.parseSequencePattern("(", ")")
	case p.atOp("{"):
		return p.parseMappingPattern()
	case p.at(pylex.Name) && p.peekAt(1).Kind == pylex.Op && (p.peekAt(1).Payload == "(" || p.peekAt(1).Payload == "."):
		return p.parseClassPattern()
	case p.at(pylex.Name):
		name := p.advance().Payload
		if p.atOp(":") || p.atOp(",") || p.atOp(")") || p.atOp("]") || p.atOp("|") || p.at(pylex.Newline) {
			return pyast.Pattern{Kind: pyast.PatternCapture, Capture: name}
		}
		return pyast.Pattern{Kind: pyast.PatternCapture, Capture: name}
	default:
		lit := p.parseUnaryArith()
		return pyast.Pattern{Kind: pyast.PatternLiteral, Literal: lit}
	}
}

func (p *parser) parseSequencePattern(open, close string) pyast.Pattern {
	p.expectOp(open)
	pat := pyast.Pattern{Kind: pyast.PatternSequence}
	for !p.atOp(close) {
		if p.atOp("*") {
			p.advance()
			pat.StarName = p.expect(pylex.Name).Payload
		} else {
			pat.Elems = append(pat.Elems, p.parseOrPattern())
		}
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(close)
	return pat
}

func (p *parser) parseMappingPattern() pyast.Pattern {
	p.expectOp("{")
	pat := pyast.Pattern{Kind: pyast.PatternMapping}
	for !p.atOp("}") {
		if p.atOp("**") {
			p.advance()
			p.expect(pylex.Name) // rest-capture, discarded: dict patterns rarely need it
		} else {
			key := p.expect(pylex.String).Payload
			p.expectOp(":")
			val := p.parseOrPattern()
			pat.Keys = append(pat.Keys, key)
			pat.Values = append(pat.Values, val)
		}
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp("}")
	return pat
}

func (p *parser) parseClassPattern() pyast.Pattern {
	name := p.parseDottedName()
	pat := pyast.Pattern{Kind: pyast.PatternClass, ClassName: name, Keywords: map[string]pyast.Pattern{}}
	p.expectOp("(")
	for !p.atOp(")") {
		if p.at(pylex.Name) && p.peekAt(1).Kind == pylex.Op && p.peekAt(1).Payload == "=" {
			kw := p.advance().Payload
			p.advance()
			pat.Keywords[kw] = p.parseOrPattern()
		} else {
			pat.Positional = append(pat.Positional, p.parseOrPattern())
		}
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(")")
	return pat
}

// containsYield scans a function body (shallowly, not descending into
// nested defs/lambdas) for yield/yield-from, classifying the Def as a
// generator per spec.md §4.6.
func containsYield(body []pyast.Node) bool {
	found := false
	var walk func(n pyast.Node)
	var walkList func(ns []pyast.Node)
	walkList = func(ns []pyast.Node) {
		for _, n := range ns {
			walk(n)
		}
	}
	walk = func(n pyast.Node) {
		if found || n == nil {
			return
		}
		switch v := n.(type) {
		case *pyast.Yield, *pyast.YieldFrom:
			found = true
		case *pyast.Def, *pyast.Lambda, *pyast.Class:
			return // nested scopes have their own generator-ness
		case *pyast.ExprStmt:
			walk(v.X)
		case *pyast.If:
			walk(v.Cond)
			walkList(v.Body)
			walkList(v.Else)
		case *pyast.While:
			walk(v.Cond)
			walkList(v.Body)
			walkList(v.Else)
		case *pyast.For:
			walk(v.Iter)
			walkList(v.Body)
			walkList(v.Else)
		case *pyast.Try:
			walkList(v.Body)
			for _, h := range v.Handlers {
				walkList(h.Body)
			}
			walkList(v.Else)
			walkList(v.Finally)
		case *pyast.With:
			walk(v.Expr)
			walkList(v.Body)
		case *pyast.Match:
			walk(v.Subject)
			for _, c := range v.Cases {
				walkList(c.Body)
			}
		case *pyast.Assign:
			walk(v.Value)
		case *pyast.MultiAssign:
			walk(v.Value)
		case *pyast.AugAssign:
			walk(v.Value)
		case *pyast.Return:
			walkList(v.Values)
		case *pyast.BinOp:
			walk(v.Left)
			walk(v.Right)
		case *pyast.Call:
			walk(v.Func)
			walkList(v.Args)
		}
	}
	walkList(body)
	return found
}
