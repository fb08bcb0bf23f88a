package pyparse

import (
	"strconv"
	"strings"

	"github.com/sandboxed-py/interp/src/pyast"
	"github.com/sandboxed-py/interp/src/pyerr"
	"github.com/sandboxed-py/interp/src/pylex"
)

// parseExpr parses one full expression at the lowest precedence (ternary),
// spec.md §4.4's top of the precedence ladder.
func (p *parser) parseExpr() pyast.Node {
	return p.parseTernary()
}

// parseExprList parses a comma-separated list of expressions, used for
// return/del/assignment-target lists. It does not wrap a single bare
// trailing comma into a tuple unless one is actually present.
func (p *parser) parseExprList() []pyast.Node {
	exprs := []pyast.Node{p.parseExpr()}
	for p.atOp(",") {
		p.advance()
		if p.atStatementBoundary() {
			break
		}
		exprs = append(exprs, p.parseExpr())
	}
	return exprs
}

// parseExprListAsNode parses a comma-separated expression list and, if more
// than one expression (or a trailing comma) was present, wraps it as a
// Tuple node; this is the form used for "for x in a, b" and bare tuple
// display without parens.
func (p *parser) parseExprListAsNode() pyast.Node {
	line := p.line()
	first := p.parseExpr()
	if !p.atOp(",") {
		return first
	}
	elems := []pyast.Node{first}
	for p.atOp(",") {
		p.advance()
		if p.atStatementBoundary() {
			break
		}
		elems = append(elems, p.parseExpr())
	}
	return &pyast.Tuple{Pos: pos(line), Elems: elems}
}

func (p *parser) atStatementBoundary() bool {
	return p.at(pylex.Newline) || p.at(pylex.EOF) || p.at(pylex.Dedent) ||
		p.atOp(":") || p.atOp(")") || p.atOp("]") || p.atOp("}") || p.atKeyword("in")
}

// ---- assignment dispatch --------------------------------------------------

// parseExprOrAssign parses a simple statement that starts with an
// expression: a bare expression statement, or one of the assignment forms
// (=, augmented, chained, annotated, tuple-unpacking).
func (p *parser) parseExprOrAssign() pyast.Node {
	line := p.line()
	first := p.parseExprListAsNode()

	if p.atOp(":") && isSimpleTarget(first) {
		p.advance()
		ann := p.parseExpr()
		var val pyast.Node
		if p.atOp("=") {
			p.advance()
			val = p.parseExprListAsNode()
		}
		return &pyast.AnnotatedAssign{Pos: pos(line), Target: first, Annotation: ann, Value: val}
	}

	if op, ok := augOp(p.cur()); ok {
		p.advance()
		val := p.parseExprListAsNode()
		return &pyast.AugAssign{Pos: pos(line), Target: first, Op: op, Value: val}
	}

	if !p.atOp("=") {
		return &pyast.ExprStmt{Pos: pos(line), X: first}
	}

	targets := []pyast.Node{first}
	for p.atOp("=") {
		p.advance()
		targets = append(targets, p.parseExprListAsNode())
	}
	value := targets[len(targets)-1]
	targets = targets[:len(targets)-1]

	if len(targets) == 1 {
		return buildAssign(line, targets[0], value)
	}
	return &pyast.ChainedAssign{Pos: pos(line), Targets: targets, Value: value}
}

// buildAssign specialises a single-target assignment by the target's
// syntactic shape: plain name, tuple/list unpacking, subscript, or
// attribute, matching spec.md §3.2's distinct assignment node types.
func buildAssign(line int, target, value pyast.Node) pyast.Node {
	switch t := target.(type) {
	case *pyast.Tuple:
		return &pyast.MultiAssign{Pos: pos(line), Targets: t.Elems, Value: value}
	case *pyast.List:
		return &pyast.MultiAssign{Pos: pos(line), Targets: t.Elems, Value: value}
	case *pyast.Subscript:
		return &pyast.SubscriptAssign{Pos: pos(line), Obj: t.Obj, Index: t.Index, Value: value}
	case *pyast.GetAttr:
		return &pyast.AttrAssign{Pos: pos(line), Obj: t.Obj, Attr: t.Attr, Value: value}
	default:
		return &pyast.Assign{Pos: pos(line), Target: target, Value: value}
	}
}

func isSimpleTarget(n pyast.Node) bool {
	_, ok := n.(*pyast.Var)
	return ok
}

var augOps = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "//=": "//", "%=": "%",
	"**=": "**", "&=": "&", "|=": "|", "^=": "^", "<<=": "<<", ">>=": ">>",
}

func augOp(t pylex.Token) (string, bool) {
	if t.Kind != pylex.Op {
		return "", false
	}
	op, ok := augOps[t.Payload]
	return op, ok
}

// ---- precedence ladder (spec.md §4.4) ------------------------------------
//
// ternary < or < and < not < comparison-chain < bitor < bitxor < bitand
// < shift < additive < multiplicative < unary < power < postfix < atom

func (p *parser) parseTernary() pyast.Node {
	line := p.line()
	if p.atKeyword("lambda") {
		return p.parseLambda()
	}
	body := p.parseOr()
	if p.atKeyword("if") {
		p.advance()
		cond := p.parseOr()
		p.expectKeyword("else")
		elseV := p.parseTernary()
		return &pyast.Ternary{Pos: pos(line), Cond: cond, Then: body, Else: elseV}
	}
	if p.atOp(":=") {
		p.advance()
		if v, ok := body.(*pyast.Var); ok {
			val := p.parseTernary()
			return &pyast.Walrus{Pos: pos(line), Name: v.Name, X: val}
		}
		pyerr.Fail(line, "walrus target must be a name")
	}
	return body
}

func (p *parser) parseLambda() pyast.Node {
	line := p.line()
	p.expectKeyword("lambda")
	var params []pyast.Param
	for !p.atOp(":") {
		var pr pyast.Param
		if p.atOp("*") {
			p.advance()
			pr.IsStar = true
			pr.Name = p.expect(pylex.Name).Payload
		} else if p.atOp("**") {
			p.advance()
			pr.IsDoubleStar = true
			pr.Name = p.expect(pylex.Name).Payload
		} else {
			pr.Name = p.expect(pylex.Name).Payload
			if p.atOp("=") {
				p.advance()
				pr.Default = p.parseTernary()
			}
		}
		params = append(params, pr)
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(":")
	body := p.parseTernary()
	return &pyast.Lambda{Pos: pos(line), Params: params, Body: body}
}

func (p *parser) parseOr() pyast.Node {
	line := p.line()
	left := p.parseAnd()
	for p.atKeyword("or") {
		p.advance()
		right := p.parseAnd()
		left = &pyast.BinOp{Pos: pos(line), Op: "or", Left: left, Right: right}
	}
	return left
}

func (p *parser) parseAnd() pyast.Node {
	line := p.line()
	left := p.parseNot()
	for p.atKeyword("and") {
		p.advance()
		right := p.parseNot()
		left = &pyast.BinOp{Pos: pos(line), Op: "and", Left: left, Right: right}
	}
	return left
}

func (p *parser) parseNot() pyast.Node {
	if p.atKeyword("not") {
		line := p.line()
		p.advance()
		return &pyast.UnaryOp{Pos: pos(line), Op: "not", X: p.parseNot()}
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{
	"<": true, ">": true, "<=": true, ">=": true, "==": true, "!=": true,
}

func (p *parser) parseComparison() pyast.Node {
	line := p.line()
	first := p.parseBitOr()
	var steps []pyast.CompareStep
	for {
		if p.cur().Kind == pylex.Op && compareOps[p.cur().Payload] {
			op := p.advance().Payload
			steps = append(steps, pyast.CompareStep{Op: op, Operand: p.parseBitOr()})
			continue
		}
		if p.atKeyword("in") {
			p.advance()
			steps = append(steps, pyast.CompareStep{Op: "in", Operand: p.parseBitOr()})
			continue
		}
		if p.atKeyword("not") && p.peekAt(1).Kind == pylex.Keyword && p.peekAt(1).Payload == "in" {
			p.advance()
			p.advance()
			steps = append(steps, pyast.CompareStep{Op: "not in", Operand: p.parseBitOr()})
			continue
		}
		if p.atKeyword("is") {
			p.advance()
			op := "is"
			if p.atKeyword("not") {
				p.advance()
				op = "is not"
			}
			steps = append(steps, pyast.CompareStep{Op: op, Operand: p.parseBitOr()})
			continue
		}
		break
	}
	if len(steps) == 0 {
		return first
	}
	if len(steps) == 1 {
		return &pyast.BinOp{Pos: pos(line), Op: steps[0].Op, Left: first, Right: steps[0].Operand}
	}
	return &pyast.ChainedCompare{Pos: pos(line), First: first, Rest: steps}
}

func (p *parser) parseBitOr() pyast.Node {
	line := p.line()
	left := p.parseBitXor()
	for p.atOp("|") {
		p.advance()
		left = &pyast.BinOp{Pos: pos(line), Op: "|", Left: left, Right: p.parseBitXor()}
	}
	return left
}

func (p *parser) parseBitXor() pyast.Node {
	line := p.line()
	left := p.parseBitAnd()
	for p.atOp("^") {
		p.advance()
		left = &pyast.BinOp{Pos: pos(line), Op: "^", Left: left, Right: p.parseBitAnd()}
	}
	return left
}

func (p *parser) parseBitAnd() pyast.Node {
	line := p.line()
	left := p.parseShift()
	for p.atOp("&") {
		p.advance()
		left = &pyast.BinOp{Pos: pos(line), Op: "&", Left: left, Right: p.parseShift()}
	}
	return left
}

func (p *parser) parseShift() pyast.Node {
	line := p.line()
	left := p.parseAdditive()
	for p.atOp("<<") || p.atOp(">>") {
		op := p.advance().Payload
		left = &pyast.BinOp{Pos: pos(line), Op: op, Left: left, Right: p.parseAdditive()}
	}
	return left
}

func (p *parser) parseAdditive() pyast.Node {
	line := p.line()
	left := p.parseMultiplicative()
	for p.atOp("+") || p.atOp("-") {
		op := p.advance().Payload
		left = &pyast.BinOp{Pos: pos(line), Op: op, Left: left, Right: p.parseMultiplicative()}
	}
	return left
}

func (p *parser) parseMultiplicative() pyast.Node {
	line := p.line()
	left := p.parseUnaryArith()
	for p.atOp("*") || p.atOp("/") || p.atOp("//") || p.atOp("%") || p.atOp("@") {
		op := p.advance().Payload
		left = &pyast.BinOp{Pos: pos(line), Op: op, Left: left, Right: p.parseUnaryArith()}
	}
	return left
}

func (p *parser) parseUnaryArith() pyast.Node {
	if p.atOp("-") || p.atOp("+") || p.atOp("~") {
		line := p.line()
		op := p.advance().Payload
		return &pyast.UnaryOp{Pos: pos(line), Op: op, X: p.parseUnaryArith()}
	}
	return p.parsePower()
}

func (p *parser) parsePower() pyast.Node {
	line := p.line()
	left := p.parsePostfix()
	if p.atOp("**") {
		p.advance()
		right := p.parseUnaryArith() // right-associative, binds tighter than the leading unary minus
		return &pyast.BinOp{Pos: pos(line), Op: "**", Left: left, Right: right}
	}
	return left
}

func (p *parser) parsePostfix() pyast.Node {
	x := p.parseAtom()
	for {
		line := p.line()
		switch {
		case p.atOp("."):
			p.advance()
			attr := p.expect(pylex.Name).Payload
			x = &pyast.GetAttr{Pos: pos(line), Obj: x, Attr: attr}
		case p.atOp("("):
			x = p.parseCallArgs(x, line)
		case p.atOp("["):
			x = p.parseSubscript(x, line)
		default:
			return x
		}
	}
}

func (p *parser) parseCallArgs(fn pyast.Node, line int) pyast.Node {
	p.advance() // "("
	call := &pyast.Call{Pos: pos(line), Func: fn}
	for !p.atOp(")") {
		switch {
		case p.atOp("*"):
			p.advance()
			call.Args = append(call.Args, &pyast.StarArg{Pos: pos(p.line()), X: p.parseTernary()})
		case p.atOp("**"):
			p.advance()
			call.Args = append(call.Args, &pyast.DoubleStarArg{Pos: pos(p.line()), X: p.parseTernary()})
		case p.at(pylex.Name) && p.peekAt(1).Kind == pylex.Op && p.peekAt(1).Payload == "=":
			name := p.advance().Payload
			p.advance()
			call.Kwargs = append(call.Kwargs, pyast.KwargNode{Pos: pos(p.line()), Name: name, Value: p.parseTernary()})
		default:
			e := p.parseTernary()
			if p.atKeyword("for") {
				e = p.parseGenExprTail(e, line)
			}
			call.Args = append(call.Args, e)
		}
		if p.atOp(",") {
			p.advance()
			continue
		}
		break
	}
	p.expectOp(")")
	return call
}

func (p *parser) parseGenExprTail(elem pyast.Node, line int) pyast.Node {
	clauses := p.parseCompClauses()
	return &pyast.GenExpr{Pos: pos(line), Elem: elem, Clauses: clauses}
}

func (p *parser) parseSubscript(obj pyast.Node, line int) pyast.Node {
	p.advance() // "["
	index := p.parseSliceOrExpr()
	p.expectOp("]")
	return &pyast.Subscript{Pos: pos(line), Obj: obj, Index: index}
}

func (p *parser) parseSliceOrExpr() pyast.Node {
	line := p.line()
	var start, stop, step pyast.Node
	hasColon := false
	if !p.atOp(":") {
		start = p.parseTernary()
	}
	if p.atOp(",") {
		// tuple subscript, e.g. numpy-style obj[a, b]: build a Tuple index.
		elems := []pyast.Node{start}
		for p.atOp(",") {
			p.advance()
			if p.atOp("]") {
				break
			}
			elems = append(elems, p.parseSliceOrExpr())
		}
		return &pyast.Tuple{Pos: pos(line), Elems: elems}
	}
	if p.atOp(":") {
		hasColon = true
		p.advance()
		if !p.atOp(":") && !p.atOp("]") {
			stop = p.parseTernary()
		}
		if p.atOp(":") {
			p.advance()
			if !p.atOp("]") {
				step = p.parseTernary()
			}
		}
	}
	if hasColon {
		return &pyast.Slice{Pos: pos(line), Start: start, Stop: stop, Step: step}
	}
	return start
}

// ---- atoms ----------------------------------------------------------------

func (p *parser) parseAtom() pyast.Node {
	t := p.cur()
	line := t.Line
	switch t.Kind {
	case pylex.Integer:
		p.advance()
		return &pyast.Lit{Pos: pos(line), Kind: pyast.LitInt, Str: t.Payload}
	case pylex.Float:
		p.advance()
		f, _ := strconv.ParseFloat(t.Payload, 64)
		return &pyast.Lit{Pos: pos(line), Kind: pyast.LitFloat, Num: f}
	case pylex.String:
		p.advance()
		lit := &pyast.Lit{Pos: pos(line), Kind: pyast.LitString, Str: t.Payload}
		return p.maybeConcatString(lit)
	case pylex.FString:
		p.advance()
		return p.parseFString(t.Payload, line)
	case pylex.Name:
		return p.parseNameAtom()
	case pylex.Op:
		switch t.Payload {
		case "(":
			return p.parseParenExpr()
		case "[":
			return p.parseListOrComp()
		case "{":
			return p.parseDictOrSetOrComp()
		case "...":
			p.advance()
			return &pyast.Lit{Pos: pos(line), Kind: pyast.LitNone}
		}
	case pylex.Keyword:
		switch t.Payload {
		case "True":
			p.advance()
			return &pyast.Lit{Pos: pos(line), Kind: pyast.LitBool, Bool: true}
		case "False":
			p.advance()
			return &pyast.Lit{Pos: pos(line), Kind: pyast.LitBool, Bool: false}
		case "None":
			p.advance()
			return &pyast.Lit{Pos: pos(line), Kind: pyast.LitNone}
		case "yield":
			return p.parseYield()
		case "lambda":
			return p.parseLambda()
		}
	}
	pyerr.Fail(line, "unexpected token %q", t.Payload)
	panic("unreachable")
}

// maybeConcatString implements Python's adjacent-string-literal
// concatenation: "a" "b" parses as a single literal.
func (p *parser) maybeConcatString(lit *pyast.Lit) pyast.Node {
	for p.at(pylex.String) {
		lit.Str += p.advance().Payload
	}
	return lit
}

func (p *parser) parseNameAtom() pyast.Node {
	name := p.advance().Payload
	line := p.toks[p.pos-1].Line
	return &pyast.Var{Pos: pos(line), Name: name}
}

func (p *parser) parseYield() pyast.Node {
	line := p.line()
	p.expectKeyword("yield")
	if p.atKeyword("from") {
		p.advance()
		return &pyast.YieldFrom{Pos: pos(line), X: p.parseExpr()}
	}
	if p.atStatementBoundary() || p.atOp(",") {
		return &pyast.Yield{Pos: pos(line)}
	}
	return &pyast.Yield{Pos: pos(line), Value: p.parseExprListAsNode()}
}

func (p *parser) parseParenExpr() pyast.Node {
	line := p.line()
	p.advance() // "("
	if p.atOp(")") {
		p.advance()
		return &pyast.Tuple{Pos: pos(line)}
	}
	first := p.parseTernary()
	if p.atKeyword("for") {
		clauses := p.parseCompClauses()
		p.expectOp(")")
		return &pyast.GenExpr{Pos: pos(line), Elem: first, Clauses: clauses}
	}
	if p.atOp(":=") {
		p.advance()
		v := first.(*pyast.Var)
		val := p.parseTernary()
		p.expectOp(")")
		return &pyast.Walrus{Pos: pos(line), Name: v.Name, X: val}
	}
	if p.atOp(",") {
		elems := []pyast.Node{first}
		for p.atOp(",") {
			p.advance()
			if p.atOp(")") {
				break
			}
			elems = append(elems, p.parseTernary())
		}
		p.expectOp(")")
		return &pyast.Tuple{Pos: pos(line), Elems: elems}
	}
	p.expectOp(")")
	return first
}

func (p *parser) parseListOrComp() pyast.Node {
	line := p.line()
	p.advance() // "["
	if p.atOp("]") {
		p.advance()
		return &pyast.List{Pos: pos(line)}
	}
	first := p.parseTernary()
	if p.atKeyword("for") {
		clauses := p.parseCompClauses()
		p.expectOp("]")
		return &pyast.ListComp{Pos: pos(line), Elem: first, Clauses: clauses}
	}
	elems := []pyast.Node{first}
	for p.atOp(",") {
		p.advance()
		if p.atOp("]") {
			break
		}
		elems = append(elems, p.parseTernary())
	}
	p.expectOp("]")
	return &pyast.List{Pos: pos(line), Elems: elems}
}

func (p *parser) parseDictOrSetOrComp() pyast.Node {
	line := p.line()
	p.advance() // "{"
	if p.atOp("}") {
		p.advance()
		return &pyast.Dict{Pos: pos(line)}
	}
	if p.atOp("**") {
		p.advance()
		spreadKey := &pyast.DoubleStarArg{Pos: pos(p.line()), X: p.parseTernary()}
		d := &pyast.Dict{Pos: pos(line), Entries: []pyast.DictEntry{{Key: spreadKey, Value: nil}}}
		for p.atOp(",") {
			p.advance()
			if p.atOp("}") {
				break
			}
			d.Entries = append(d.Entries, p.parseDictEntry())
		}
		p.expectOp("}")
		return d
	}
	first := p.parseTernary()
	if p.atOp(":") {
		p.advance()
		val := p.parseTernary()
		if p.atKeyword("for") {
			clauses := p.parseCompClauses()
			p.expectOp("}")
			return &pyast.DictComp{Pos: pos(line), Key: first, Value: val, Clauses: clauses}
		}
		d := &pyast.Dict{Pos: pos(line), Entries: []pyast.DictEntry{{Key: first, Value: val}}}
		for p.atOp(",") {
			p.advance()
			if p.atOp("}") {
				break
			}
			d.Entries = append(d.Entries, p.parseDictEntry())
		}
		p.expectOp("}")
		return d
	}
	if p.atKeyword("for") {
		clauses := p.parseCompClauses()
		p.expectOp("}")
		return &pyast.SetComp{Pos: pos(line), Elem: first, Clauses: clauses}
	}
	s := &pyast.Set{Pos: pos(line), Elems: []pyast.Node{first}}
	for p.atOp(",") {
		p.advance()
		if p.atOp("}") {
			break
		}
		s.Elems = append(s.Elems, p.parseTernary())
	}
	p.expectOp("}")
	return s
}

func (p *parser) parseDictEntry() pyast.DictEntry {
	if p.atOp("**") {
		p.advance()
		return pyast.DictEntry{Key: &pyast.DoubleStarArg{Pos: pos(p.line()), X: p.parseTernary()}, Value: nil}
	}
	key := p.parseTernary()
	p.expectOp(":")
	val := p.parseTernary()
	return pyast.DictEntry{Key: key, Value: val}
}

// parseCompClauses parses the "for ... [if ...]" clause chain shared by
// list/dict/set/generator comprehensions.
func (p *parser) parseCompClauses() []pyast.CompClause {
	var clauses []pyast.CompClause
	for p.atKeyword("for") {
		p.advance()
		targets := p.parseAssignTargetNames()
		p.expectKeyword("in")
		iter := p.parseOr() // "or" precedence: stops before a trailing "if" clause
		clauses = append(clauses, pyast.CompClause{Targets: targets, Iter: iter})
		for p.atKeyword("if") {
			p.advance()
			clauses = append(clauses, pyast.CompClause{IsIf: true, Cond: p.parseOr()})
		}
	}
	return clauses
}

// ---- f-strings --------------------------------------------------------

// parseFString splits the lexer's raw f-string payload into literal and
// expression parts, re-entering the parser for each embedded expression,
// per spec.md §4.4 ("f-strings are parsed into alternating literal and
// expression parts at parse time; each expression part is evaluated and
// stringified at evaluation time").
func (p *parser) parseFString(raw string, line int) pyast.Node {
	fs := &pyast.FString{Pos: pos(line)}
	var lit strings.Builder
	runes := []rune(raw)
	i := 0
	for i < len(runes) {
		c := runes[i]
		if c == '{' {
			if i+1 < len(runes) && runes[i+1] == '{' {
				lit.WriteRune('{')
				i += 2
				continue
			}
			if lit.Len() > 0 {
				fs.Parts = append(fs.Parts, pyast.FStringPart{Literal: lit.String()})
				lit.Reset()
			}
			depth := 1
			j := i + 1
			for j < len(runes) && depth > 0 {
				switch runes[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						goto done
					}
				}
				j++
			}
		done:
			exprSrc := string(runes[i+1 : j])
			conv := ""
			if idx := strings.LastIndex(exprSrc, "!"); idx > 0 && idx == len(exprSrc)-2 {
				tail := exprSrc[idx+1:]
				if tail == "r" || tail == "s" || tail == "a" {
					conv = tail
					exprSrc = exprSrc[:idx]
				}
			}
			spec := ""
			if idx := strings.Index(exprSrc, ":"); idx >= 0 && !strings.ContainsAny(exprSrc[:idx], "[]()") {
				spec = exprSrc[idx+1:]
				exprSrc = exprSrc[:idx]
			}
			sub, err := Parse(exprSrc + "\n")
			var exprNode pyast.Node
			if err != nil || len(sub.Body) == 0 {
				pyerr.Fail(line, "invalid f-string expression %q", exprSrc)
			} else if es, ok := sub.Body[0].(*pyast.ExprStmt); ok {
				exprNode = es.X
			}
			fs.Parts = append(fs.Parts, pyast.FStringPart{Expr: &pyast.FStringExprWrap{Pos: pos(line), X: exprNode, Conv: conv, Spec: spec}})
			i = j + 1
			continue
		}
		lit.WriteRune(c)
		i++
	}
	if lit.Len() > 0 {
		fs.Parts = append(fs.Parts, pyast.FStringPart{Literal: lit.String()})
	}
	return fs
}
