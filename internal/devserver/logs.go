package devserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/birbparty/flox-go/internal/wire"
)

// severities in increasing order. A "severity:warning" query matches
// warnings and errors.
var severities = map[string]int{
	"info":    0,
	"warning": 1,
	"error":   2,
}

// logFilter reports whether a stored log matches a query.
type logFilter func(doc Document) bool

// parseLogQuery compiles a log query such as "day:2014-02-20 severity:error".
// Terms are combined with AND. Besides day and severity, "key:value" compares
// a top-level field and a bare word searches the whole log.
func parseLogQuery(q string) (logFilter, error) {
	var filters []logFilter
	for _, term := range strings.Fields(q) {
		key, value, ok := strings.Cut(term, ":")
		switch {
		case !ok:
			word := strings.ToLower(term)
			filters = append(filters, func(doc Document) bool {
				data, _ := json.Marshal(doc)
				return strings.Contains(strings.ToLower(string(data)), word)
			})
		case key == "day":
			filters = append(filters, func(doc Document) bool {
				return strings.HasPrefix(stringOf(doc["time"]), value)
			})
		case key == "severity":
			level, known := severities[strings.ToLower(value)]
			if !known {
				return nil, fmt.Errorf("unknown severity %q", value)
			}
			filters = append(filters, func(doc Document) bool {
				return logSeverity(doc) >= level
			})
		default:
			filters = append(filters, func(doc Document) bool {
				v, present := doc[key]
				return present && strings.EqualFold(fmt.Sprint(v), value)
			})
		}
	}

	return func(doc Document) bool {
		for _, f := range filters {
			if !f(doc) {
				return false
			}
		}
		return true
	}, nil
}

// logSeverity is the log's own severity, or the highest severity among
// its entries. Logs without any count as info.
func logSeverity(doc Document) int {
	if s, ok := doc["severity"].(string); ok {
		return severities[strings.ToLower(s)]
	}
	highest := 0
	entries, _ := doc["entries"].([]interface{})
	for _, e := range entries {
		entry, _ := e.(map[string]interface{})
		if s, ok := entry["severity"].(string); ok && severities[strings.ToLower(s)] > highest {
			highest = severities[strings.ToLower(s)]
		}
	}
	return highest
}

func stringOf(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func intOf(v interface{}, fallback int) int {
	if n, ok := wire.Int(v); ok {
		return int(n)
	}
	return fallback
}
