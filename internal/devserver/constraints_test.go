package devserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateConstraint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`score > 3 AND name == "x"`, `score > 3 and name == "x"`},
		{`a = 1 OR NOT b`, `a == 1 or not b`},
		{`a <> 2`, `a != 2`},
		{`a >= 2 and b <= 3 and c != 4`, `a >= 2 and b <= 3 and c != 4`},
		{`name IN ["AND", 'OR']`, `name in ["AND", 'OR']`},
		{`text == "say \"AND\" = no"`, `text == "say \"AND\" = no"`},
		{`owner == NULL`, `owner == nil`},
		{`Android == 1`, `Android == 1`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, translateConstraint(tt.in), tt.in)
	}
}

func TestConstraintMatch(t *testing.T) {
	doc := Document{
		"id":        "abc",
		"score":     float64(120),
		"name":      "Donald",
		"tags":      []interface{}{"duck"},
		"createdAt": "2014-02-20T20:15:00.000Z",
	}

	tests := []struct {
		where string
		want  bool
	}{
		{"", true},
		{"score > 100", true},
		{"score > 100 AND name == \"Daisy\"", false},
		{"score > 100 OR name == \"Daisy\"", true},
		{"NOT (score < 100)", true},
		{"name IN [\"Donald\", \"Daisy\"]", true},
		{"id == \"abc\"", true},
		{"createdAt > \"2014-01-01T00:00:00.000Z\"", true},
		{"missing == nil", true},
		{"missing > 3", false},
		{"score = 120", true},
	}
	for _, tt := range tests {
		c, err := CompileConstraint(tt.where)
		require.NoError(t, err, tt.where)
		assert.Equal(t, tt.want, c.Match(doc), tt.where)
	}
}

func TestConstraintMatchDecodedNumbers(t *testing.T) {
	doc := Document{
		"level": json.Number("7"),
		"ratio": json.Number("0.5"),
		"coins": json.Number("9007199254740993"),
		"stats": map[string]interface{}{"wins": json.Number("3")},
	}

	tests := []struct {
		where string
		want  bool
	}{
		{"level > 5", true},
		{"level == 7", true},
		{"ratio < 1", true},
		{"coins > 9007199254740992", true},
		{"stats.wins == 3", true},
		{"level IN [1, 7]", true},
	}
	for _, tt := range tests {
		c, err := CompileConstraint(tt.where)
		require.NoError(t, err, tt.where)
		assert.Equal(t, tt.want, c.Match(doc), tt.where)
	}
}

func TestCompareValuesLargeIntegers(t *testing.T) {
	assert.Equal(t, 1, compareValues(json.Number("9007199254740993"), json.Number("9007199254740992")))
	assert.Equal(t, -1, compareValues(json.Number("2"), float64(2.5)))
	assert.Equal(t, 0, compareValues(json.Number("30"), float64(30)))
}

func TestCompileConstraintErrors(t *testing.T) {
	_, err := CompileConstraint("score >")
	assert.Error(t, err)

	_, err = CompileConstraint("(score > 1")
	assert.Error(t, err)
}

func TestParseOrderBy(t *testing.T) {
	keys, err := parseOrderBy("score DESC, name")
	require.NoError(t, err)
	assert.Equal(t, []sortKey{{field: "score", descending: true}, {field: "name"}}, keys)

	keys, err = parseOrderBy("")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = parseOrderBy("score SIDEWAYS")
	assert.Error(t, err)

	_, err = parseOrderBy("a b c")
	assert.Error(t, err)
}

func TestSortDocuments(t *testing.T) {
	docs := map[string]Document{
		"a": {"score": float64(10), "name": "x"},
		"b": {"score": float64(30)},
		"c": {"name": "y"},
		"d": {"score": float64(30)},
	}
	ids := []string{"a", "b", "c", "d"}

	sortDocuments(ids, docs, []sortKey{{field: "score", descending: true}})
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)

	sortDocuments(ids, docs, []sortKey{{field: "score"}})
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids)

	sortDocuments(ids, docs, nil)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestParseLogQuery(t *testing.T) {
	logs := map[string]Document{
		"info":    {"time": "2014-02-20T10:00:00.000Z", "entries": []interface{}{map[string]interface{}{"severity": "info"}}},
		"warning": {"time": "2014-02-20T11:00:00.000Z", "severity": "warning"},
		"error":   {"time": "2014-02-21T11:00:00.000Z", "entries": []interface{}{map[string]interface{}{"severity": "error", "message": "Boom"}}},
	}

	tests := []struct {
		q    string
		want []string
	}{
		{"", []string{"error", "info", "warning"}},
		{"day:2014-02-20", []string{"info", "warning"}},
		{"severity:warning", []string{"error", "warning"}},
		{"severity:error", []string{"error"}},
		{"day:2014-02-20 severity:error", []string{}},
		{"boom", []string{"error"}},
		{"severity:warning severity:WARNING", []string{"error", "warning"}},
	}
	for _, tt := range tests {
		filter, err := parseLogQuery(tt.q)
		require.NoError(t, err, tt.q)

		got := []string{}
		for _, id := range []string{"error", "info", "warning"} {
			if filter(logs[id]) {
				got = append(got, id)
			}
		}
		assert.Equal(t, tt.want, got, tt.q)
	}

	_, err := parseLogQuery("severity:fatal")
	assert.Error(t, err)
}
