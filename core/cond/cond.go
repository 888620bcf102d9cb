// Package cond parses where-condition expressions for update and delete
// operations.
//
// The only supported form is an equality conjunction over original nested
// key names:
//
//	user_pri = 'U1'
//	details/age_ind = 25 AND details/address/city = 'Shanghai'
//
// Keys are written with the document's flat-key syntax ("/"-joined path
// segments); values are single-quoted strings or bare scalar tokens. The
// parsed condition renders to a parameterized WHERE fragment: key names are
// encoded to column identifiers, and every value is bound as a parameter,
// never interpolated into SQL text.
package cond

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/flatbeddb/flatbed/core/errors"
)

// Clause is one key = value equality.
type Clause struct {
	Key   string // Original flat key, e.g. "details/age_ind"
	Value string // Comparison value, unquoted
}

// Condition is a conjunction of equality clauses.
type Condition struct {
	Clauses []Clause
}

// condGrammar is the participle grammar for equality conjunctions.
//
type condGrammar struct {
	First *clausePart   `parser:"@@"`
	Rest  []*clausePart `parser:"( And @@ )*"`
}

type clausePart struct {
	Key   string     `parser:"@(Ident ( '/' Ident )*)"`
	Value *valuePart `parser:"'=' @@"`
}

type valuePart struct {
	Quoted *string `parser:"@String"`
	Bare   *string `parser:"| @(Ident | Number)"`
}

// condLexer tokenizes condition expressions.
// Note: And is matched before Ident so the keyword is not consumed as a key.
var condLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "And", Pattern: `(?i)\bAND\b`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Number", Pattern: `-?[0-9]+(?:\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[=/]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// condParser is the participle parser for condition expressions.
var condParser = participle.MustBuild[condGrammar](
	participle.Lexer(condLexer),
	participle.Elide("Whitespace"),
)

// Parse parses an equality-conjunction expression.
// Returns a ConditionError (matching ErrInvalidCondition) on any malformed
// input, including empty expressions.
func Parse(expr string) (*Condition, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, errors.NewCondition(expr, "empty expression")
	}

	parsed, err := condParser.ParseString("", trimmed)
	if err != nil {
		return nil, &errors.ConditionError{
			Expr:    expr,
			Message: "expected key = value [AND key = value ...]",
			Err:     err,
		}
	}

	cond := &Condition{}
	for _, part := range append([]*clausePart{parsed.First}, parsed.Rest...) {
		cond.Clauses = append(cond.Clauses, Clause{
			Key:   part.Key,
			Value: part.Value.text(),
		})
	}
	return cond, nil
}

// text returns the clause value with string quoting removed.
func (v *valuePart) text() string {
	if v.Quoted != nil {
		s := *v.Quoted
		s = s[1 : len(s)-1]               // strip surrounding quotes
		return strings.ReplaceAll(s, "''", "'") // unescape doubled quotes
	}
	if v.Bare != nil {
		return *v.Bare
	}
	return ""
}

// WhereSQL renders the condition as a parameterized WHERE fragment.
// encode maps each original key to its column identifier; the returned args
// line up with the ? placeholders.
func (c *Condition) WhereSQL(encode func(flatKey string) string) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(c.Clauses))
	for i, clause := range c.Clauses {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(`"`)
		sb.WriteString(encode(clause.Key))
		sb.WriteString(`" = ?`)
		args = append(args, clause.Value)
	}
	return sb.String(), args
}

// Keys returns the original flat keys referenced by the condition.
func (c *Condition) Keys() []string {
	keys := make([]string, len(c.Clauses))
	for i, clause := range c.Clauses {
		keys[i] = clause.Key
	}
	return keys
}
