package sdk

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/birbparty/flox-go/internal/wire"
)

// Score is one entry of a leaderboard.
type Score struct {
	// PlayerID is the id of the player who posted the score. This could be
	// a guest unknown to the server.
	PlayerID string
	// PlayerName is the name the score was posted under
	PlayerName string
	// Value is the actual score
	Value int
	// Country is the two-letter code of the country the score came from
	Country string
	// CreatedAt is when the score was posted
	CreatedAt time.Time
}

// newScore builds a Score from its server representation.
func newScore(data map[string]interface{}) Score {
	return Score{
		PlayerID:   textOf(data["playerId"]),
		PlayerName: textOf(data["playerName"]),
		Value:      intOf(data["value"]),
		Country:    textOf(data["country"]),
		CreatedAt:  timeField(data, "createdAt"),
	}
}

func textOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}

func intOf(v interface{}) int {
	if s, ok := v.(string); ok {
		n, _ := strconv.Atoi(s)
		return n
	}
	n, _ := wire.Int(v)
	return int(n)
}

// Scope selects which scores of a leaderboard are loaded: either a
// TimeScope or a PlayerScope, never both.
type Scope interface {
	query() url.Values
}

// TimeScope limits scores to a time window.
type TimeScope string

const (
	Today    TimeScope = "today"
	ThisWeek TimeScope = "thisWeek"
	AllTime  TimeScope = "allTime"
)

func (s TimeScope) query() url.Values {
	return url.Values{"t": {string(s)}}
}

// ParseTimeScope converts names like "this_week", "this-week", "all time"
// or "today" to a TimeScope.
func ParseTimeScope(name string) (TimeScope, error) {
	scope := TimeScope(toCamelCase(name))
	switch scope {
	case Today, ThisWeek, AllTime:
		return scope, nil
	}
	return "", fmt.Errorf("unknown time scope %q", name)
}

// PlayerScope limits scores to the given players.
type PlayerScope []string

func (s PlayerScope) query() url.Values {
	return url.Values{"p": append([]string(nil), s...)}
}

// toCamelCase converts words separated by spaces, underscores or dashes
// into camelCase. Input that is already camelCase is kept.
func toCamelCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return ""
	}
	if len(words) == 1 {
		w := words[0]
		return strings.ToLower(w[:1]) + w[1:]
	}
	var b strings.Builder
	for i, w := range words {
		w = strings.ToLower(w)
		if i > 0 {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		b.WriteString(w)
	}
	return b.String()
}
