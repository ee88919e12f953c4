package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/birbparty/flox-go/internal/wire"
)

// PlayerType is the server's reserved entity type for players.
const PlayerType = ".player"

// DefaultQueryLimit is the number of results a Query returns unless told
// otherwise.
const DefaultQueryLimit = 50

// CompileConstraints replaces every "?" in template, left to right, with the
// JSON form of the next argument. Times are converted to the wire timestamp
// format first, so they end up as quoted strings.
//
// Extra arguments are ignored. Too few arguments yield an *ArgumentError.
//
// Example:
//
//	c, _ := sdk.CompileConstraints("name == ? AND score > ?", "thomas", 500)
//	// name == "thomas" AND score > 500
//
//	c, _ = sdk.CompileConstraints("name IN ?", []string{"alfa", "bravo"})
//	// name IN ["alfa","bravo"]
func CompileConstraints(template string, args ...interface{}) (string, error) {
	placeholders := strings.Count(template, "?")
	if placeholders > len(args) {
		return "", &ArgumentError{Placeholders: placeholders, Arguments: len(args)}
	}

	var b strings.Builder
	next := 0
	for _, r := range template {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		literal, err := constraintLiteral(args[next])
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", next, err)
		}
		b.WriteString(literal)
		next++
	}
	return b.String(), nil
}

// constraintLiteral serializes one placeholder argument.
func constraintLiteral(arg interface{}) (string, error) {
	switch v := arg.(type) {
	case time.Time:
		arg = wire.FormatTime(v)
	case *time.Time:
		if v != nil {
			arg = wire.FormatTime(*v)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arg); err != nil {
		return "", fmt.Errorf("failed to serialize constraint argument: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Query retrieves entities narrowed down by SQL-like constraints. The server
// needs an index containing every property the constraints reference.
//
// Example:
//
//	query, err := sdk.NewQuery("Player", "level == ? AND score > ?", "tutorial", 500)
//	query.Limit = 1
//	results, err := client.FindEntities(ctx, query)
type Query struct {
	// Type is the entity type that is searched
	Type string
	// Constraints is the compiled where-clause; empty means no constraints
	Constraints string
	// Offset of the first returned result
	Offset int
	// Limit is the maximum number of returned entities
	Limit int
	// OrderBy sorts the results, e.g. "updatedAt DESC"
	OrderBy string
}

// NewQuery creates a query over entityType. "Player" is translated to the
// reserved player type. A non-empty constraints template is compiled with
// args as in Where.
func NewQuery(entityType string, constraints string, args ...interface{}) (*Query, error) {
	q := &Query{
		Type:  normalizeType(entityType),
		Limit: DefaultQueryLimit,
	}
	if constraints != "" {
		if err := q.Where(constraints, args...); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Where replaces the constraints of the query. Supported operators are
// ==, >, >=, <, <=, != and IN; combine them with AND and OR and group them
// with round brackets. Placeholders are filled as by CompileConstraints.
func (q *Query) Where(constraints string, args ...interface{}) error {
	compiled, err := CompileConstraints(constraints, args...)
	if err != nil {
		return err
	}
	q.Constraints = compiled
	return nil
}

// payload is the body of the search request.
func (q *Query) payload() map[string]interface{} {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	payload := map[string]interface{}{
		"where":  nullable(q.Constraints),
		"offset": q.Offset,
		"limit":  limit,
	}
	if q.OrderBy != "" {
		payload["orderBy"] = q.OrderBy
	}
	return payload
}

// path is the collection path the query runs against.
func (q *Query) path() string {
	return "entities/" + q.Type
}

func normalizeType(entityType string) string {
	if entityType == "Player" || entityType == PlayerType {
		return PlayerType
	}
	return entityType
}
