// Package pylex implements the source-to-token stage of the pipeline:
// source -> tokens -> AST -> value (spec.md §2).
//
// The lexer is a single-pass, rune-at-a-time reader that looks one rune
// ahead, ported from please/src/parse/asp's lex struct (same
// currentRune/nextRune/advance shape, same indents-stack approach to
// emitting indent/dedent), generalised from please's BUILD-language token
// set to spec.md §3.1/§4.3's fuller Python token set: float literals,
// f-strings as a distinct token kind, raw/triple-quoted strings, numeric
// base prefixes, and keyword recognition.
package pylex

// Kind identifies the lexical category of a Token, per spec.md §3.1.
type Kind int

// The token kinds named in spec.md §3.1.
const (
	Integer Kind = iota
	Float
	String
	FString
	Name
	Keyword
	Op
	Newline
	Indent
	Dedent
	EOF
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case String:
		return "string"
	case FString:
		return "fstring"
	case Name:
		return "name"
	case Keyword:
		return "keyword"
	case Op:
		return "op"
	case Newline:
		return "newline"
	case Indent:
		return "indent"
	case Dedent:
		return "dedent"
	case EOF:
		return "eof"
	}
	return "unknown"
}

// Token is one lexical element. Indent/Dedent/Newline tokens carry no
// payload. String tokens carry decoded text; FString tokens carry the
// template text (escapes decoded unless the literal is also raw), which
// the parser splits into literal fragments and embedded expressions and
// parses at parse time.
type Token struct {
	Kind    Kind
	Payload string
	Line    int
}

// keywords is the fixed keyword set. "match" is deliberately absent: per
// spec.md §4.3 it is a Name token and the parser decides contextually
// whether it introduces a match statement.
var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": false, "await": false, "break": true,
	"class": true, "continue": true, "def": true, "del": true, "elif": true,
	"else": true, "except": true, "finally": true, "for": true, "from": true,
	"global": true, "if": true, "import": true, "in": true, "is": true,
	"lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true,
	"yield": true,
}

// IsKeyword reports whether s is one of the fixed keywords. async/await are
// listed above as explicitly unsupported per spec.md §1 (cooperative
// concurrency keywords) and are never classified as keywords; the lexer
// rejects them itself with a precise "not supported" error.
func IsKeyword(s string) bool {
	return keywords[s] && s != "async" && s != "await"
}
