package floxtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/flox-go/internal/wire"
)

func doRequest(t *testing.T, ms *MockServer, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := wire.EncodeBody(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ms.URL+"/api/games/g1/"+path, reader)
	require.NoError(t, err)

	meta, err := wire.EncodeMetadata(wire.SDKInfo{Type: "test", Version: "1"}, "k1", time.Now(),
		map[string]interface{}{"authType": "guest", "id": "guest-1"})
	require.NoError(t, err)
	req.Header.Set(wire.HeaderName, meta)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMockServerRecordsRequests(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.Respond("PUT entities/", http.StatusOK, map[string]string{"ok": "yes"})

	resp := doRequest(t, ms, http.MethodPut, "entities/T/1?x=1", map[string]int{"level": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := ms.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "g1", req.GameID)
	assert.Equal(t, "entities/T/1", req.Path)
	assert.Equal(t, "1", req.Query.Get("x"))
	assert.Equal(t, "k1", req.Metadata.GameKey)
	assert.Equal(t, "guest-1", req.Player()["id"])
	assert.Equal(t, map[string]interface{}{"level": json.Number("3")}, req.BodyMap())
	assert.Len(t, ms.RequestsTo(http.MethodPut, "entities/T/1"), 1)

	ms.Reset()
	assert.Equal(t, 0, ms.GetRequestCount())
	assert.Nil(t, ms.LastRequest())
}

func TestMockServerReplies(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()

	t.Run("compressed", func(t *testing.T) {
		ms.Respond("GET packed", http.StatusOK, Compressed{Value: map[string]int{"n": 1}})
		resp := doRequest(t, ms, http.MethodGet, "packed", nil)
		assert.Equal(t, wire.CompressionZlib, resp.Header.Get(wire.ContentEncodingHeader))

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"n": json.Number("1")}, wire.DecodeBody(raw, true))
	})

	t.Run("html", func(t *testing.T) {
		ms.WithHTMLError("GET broken", http.StatusBadGateway, "Oops")
		resp := doRequest(t, ms, http.MethodGet, "broken", nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "Oops", wire.ExtractMessage(raw))
	})

	t.Run("sequence repeats last reply", func(t *testing.T) {
		ms.Sequence("GET seq",
			Reply{Status: http.StatusOK, Body: map[string]int{"n": 1}},
			Reply{Status: http.StatusAccepted, Body: map[string]int{"n": 2}},
		)
		statuses := []int{}
		for i := 0; i < 3; i++ {
			statuses = append(statuses, doRequest(t, ms, http.MethodGet, "seq", nil).StatusCode)
		}
		assert.Equal(t, []int{200, 202, 202}, statuses)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp := doRequest(t, ms, http.MethodGet, "nothing/here", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("authenticate keeps carried id", func(t *testing.T) {
		resp := doRequest(t, ms, http.MethodPost, "authenticate", map[string]string{"authType": "key", "id": "g-1"})
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "g-1", body["id"])
	})
}
