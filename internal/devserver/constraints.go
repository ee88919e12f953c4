package devserver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/birbparty/flox-go/internal/wire"
)

// constraintKeywords maps the query language keywords to expr operators.
var constraintKeywords = map[string]string{
	"AND":  "and",
	"OR":   "or",
	"NOT":  "not",
	"IN":   "in",
	"NULL": "nil",
}

// Constraint is a compiled entity search filter. A nil Constraint matches
// every document.
type Constraint struct {
	source  string
	program *vm.Program
}

// CompileConstraint compiles a "where" clause as produced by the SDK, e.g.
// `score >= 100 AND name IN ["a", "b"]`. Fields that a document lacks
// evaluate to nil.
func CompileConstraint(where string) (*Constraint, error) {
	if strings.TrimSpace(where) == "" {
		return nil, nil
	}

	program, err := expr.Compile(translateConstraint(where),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint %q: %w", where, err)
	}
	return &Constraint{source: where, program: program}, nil
}

// Match reports whether doc satisfies the constraint. Evaluation errors,
// such as ordering a missing field against a number, count as no match.
func (c *Constraint) Match(doc Document) bool {
	if c == nil {
		return true
	}
	out, err := expr.Run(c.program, exprEnv(doc))
	if err != nil {
		return false
	}
	matched, _ := out.(bool)
	return matched
}

// exprEnv turns the json.Number values of a stored document into int64 or
// float64, which expr can compare against literals.
func exprEnv(doc Document) map[string]interface{} {
	env := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		env[k] = plainValue(v)
	}
	return env
}

func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		return exprEnv(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	}
	return v
}

// String returns the original clause
func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.source
}

// translateConstraint rewrites keywords and SQL-style comparison operators
// into expr syntax. String literals are copied unchanged.
func translateConstraint(where string) string {
	var sb strings.Builder
	runes := []rune(where)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			end := skipString(runes, i)
			sb.WriteString(string(runes[i:end]))
			i = end - 1

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}
			word := string(runes[i:j])
			if op, ok := constraintKeywords[strings.ToUpper(word)]; ok {
				word = op
			}
			sb.WriteString(word)
			i = j - 1

		case r == '<' && i+1 < len(runes) && runes[i+1] == '>':
			sb.WriteString("!=")
			i++

		case r == '=':
			prev := rune(0)
			if i > 0 {
				prev = runes[i-1]
			}
			if i+1 < len(runes) && runes[i+1] == '=' {
				sb.WriteString("==")
				i++
			} else if strings.ContainsRune("!<>", prev) {
				sb.WriteRune(r)
			} else {
				sb.WriteString("==")
			}

		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// skipString returns the index just past the literal starting at start.
// An unterminated literal runs to the end of the input.
func skipString(runes []rune, start int) int {
	quote := runes[start]
	for i := start + 1; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(runes)
}

// sortKey is one "field [ASC|DESC]" term of an orderBy clause.
type sortKey struct {
	field      string
	descending bool
}

// parseOrderBy reads a comma-separated list of sort keys.
func parseOrderBy(orderBy string) ([]sortKey, error) {
	var keys []sortKey
	for _, term := range strings.Split(orderBy, ",") {
		fields := strings.Fields(term)
		switch len(fields) {
		case 0:
			continue
		case 1:
			keys = append(keys, sortKey{field: fields[0]})
		case 2:
			switch strings.ToUpper(fields[1]) {
			case "ASC":
				keys = append(keys, sortKey{field: fields[0]})
			case "DESC":
				keys = append(keys, sortKey{field: fields[0], descending: true})
			default:
				return nil, fmt.Errorf("invalid sort direction %q", fields[1])
			}
		default:
			return nil, fmt.Errorf("invalid orderBy term %q", strings.TrimSpace(term))
		}
	}
	return keys, nil
}

// sortDocuments orders ids by the documents' values. Missing values sort
// last regardless of direction; ties fall back to the id.
func sortDocuments(ids []string, docs map[string]Document, keys []sortKey) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := docs[ids[i]], docs[ids[j]]
		for _, key := range keys {
			av, aok := a[key.field]
			bv, bok := b[key.field]
			if !aok || av == nil || !bok || bv == nil {
				if (aok && av != nil) != (bok && bv != nil) {
					return aok && av != nil
				}
				continue
			}
			if c := compareValues(av, bv); c != 0 {
				if key.descending {
					return c > 0
				}
				return c < 0
			}
		}
		return ids[i] < ids[j]
	})
}

// compareValues orders two decoded JSON values.
func compareValues(a, b interface{}) int {
	if c, ok := compareNumbers(a, b); ok {
		return c
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// compareNumbers orders two numbers, exactly when both are integers.
func compareNumbers(a, b interface{}) (int, bool) {
	ai, aok := plainValue(a).(int64)
	bi, bok := plainValue(b).(int64)
	if aok && bok {
		switch {
		case ai < bi:
			return -1, true
		case ai > bi:
			return 1, true
		}
		return 0, true
	}
	af, aok := wire.Float(a)
	bf, bok := wire.Float(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}
