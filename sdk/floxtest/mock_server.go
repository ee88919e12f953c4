// Package floxtest provides a recording Flox backend for tests. It speaks
// the Flox wire protocol: it decodes the metadata header and compressed
// request bodies, and can answer with JSON, compressed JSON or raw text
// such as HTML error pages.
package floxtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/birbparty/flox-go/internal/wire"
)

// HandlerFunc answers a recorded request with a status and a body. The body
// is JSON encoded unless it is a Raw or Compressed value.
type HandlerFunc func(r *RecordedRequest) (int, interface{})

// Raw is a reply body written verbatim.
type Raw struct {
	ContentType string
	Text        string
}

// Compressed is a reply body that is JSON encoded, deflated and base64
// encoded, with the compression marked in the response header.
type Compressed struct {
	Value interface{}
}

// Reply is one scripted answer.
type Reply struct {
	Status int
	Body   interface{}
}

// RecordedRequest stores information about a received request.
type RecordedRequest struct {
	Method string
	// GameID is the game segment of the URL
	GameID string
	// Path is relative to the game's root, e.g. "entities/SaveGame/1"
	Path    string
	Query   url.Values
	Headers http.Header
	// Metadata is the decoded X-Flox header, nil if it was missing or invalid
	Metadata *wire.Metadata
	// Body is the decoded JSON body, nil for requests without one
	Body    interface{}
	RawBody []byte
	Time    time.Time
}

// Player returns the session carried in the metadata header.
func (r *RecordedRequest) Player() map[string]interface{} {
	if r.Metadata == nil || len(r.Metadata.Player) == 0 {
		return nil
	}
	var player map[string]interface{}
	if err := json.Unmarshal(r.Metadata.Player, &player); err != nil {
		return nil
	}
	return player
}

// BodyMap returns the decoded body as an object, or nil.
func (r *RecordedRequest) BodyMap() map[string]interface{} {
	m, _ := r.Body.(map[string]interface{})
	return m
}

// MockServer is a configurable Flox backend on top of httptest.Server.
// Handlers are registered as "METHOD path" with the path relative to the
// game's root; patterns ending in "/" match every path with that prefix.
type MockServer struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// NewMockServer creates a new mock server with handlers for the status
// endpoint and for logins.
func NewMockServer() *MockServer {
	ms := newMockServer()
	ms.Server = httptest.NewServer(http.HandlerFunc(ms.handleRequest))
	return ms
}

// NewTLSMockServer is like NewMockServer but serves HTTPS with a
// self-signed certificate.
func NewTLSMockServer() *MockServer {
	ms := newMockServer()
	ms.Server = httptest.NewTLSServer(http.HandlerFunc(ms.handleRequest))
	return ms
}

func newMockServer() *MockServer {
	ms := &MockServer{
		handlers: make(map[string]HandlerFunc),
		requests: make([]RecordedRequest, 0),
	}
	ms.setupDefaultHandlers()
	return ms
}

// setupDefaultHandlers sets up common handlers
func (ms *MockServer) setupDefaultHandlers() {
	ms.RegisterHandler("GET ", func(r *RecordedRequest) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"status": "ok", "version": "test"}
	})

	// Logins succeed for everybody. A carried forward guest id is kept.
	ms.RegisterHandler("POST authenticate", func(r *RecordedRequest) (int, interface{}) {
		payload := r.BodyMap()
		id, _ := payload["id"].(string)
		if id == "" {
			id = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
		}
		return http.StatusOK, map[string]interface{}{
			"id": id,
			"entity": map[string]interface{}{
				"authType":     payload["authType"],
				"publicAccess": "r",
				"ownerId":      id,
			},
		}
	})
}

// RegisterHandler registers a handler for a method and path pattern.
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

// Respond registers a handler that always returns status and body.
func (ms *MockServer) Respond(pattern string, status int, body interface{}) {
	ms.RegisterHandler(pattern, func(*RecordedRequest) (int, interface{}) {
		return status, body
	})
}

// Sequence registers scripted replies that are returned in order. Once the
// script is exhausted the last reply repeats.
func (ms *MockServer) Sequence(pattern string, replies ...Reply) {
	var next atomic.Int32
	ms.RegisterHandler(pattern, func(*RecordedRequest) (int, interface{}) {
		i := int(next.Add(1)) - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		return replies[i].Status, replies[i].Body
	})
}

// WithErrorResponse registers a handler that fails with a JSON message.
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, message string) {
	ms.Respond(pattern, statusCode, map[string]string{"message": message})
}

// WithHTMLError registers a handler that fails with an HTML error page
// whose headline is message.
func (ms *MockServer) WithHTMLError(pattern string, statusCode int, message string) {
	ms.Respond(pattern, statusCode, Raw{
		ContentType: "text/html",
		Text:        "<html><head><title>Error</title></head><body><h1>" + message + "</h1></body></html>",
	})
}

// WithDelayedResponse registers a handler that sleeps before answering.
func (ms *MockServer) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	ms.RegisterHandler(pattern, func(r *RecordedRequest) (int, interface{}) {
		time.Sleep(delay)
		return handler(r)
	})
}

// handleRequest records and routes a request
func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	rec, ok := record(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
		return
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, *rec)
	ms.mu.Unlock()
	ms.requestCount.Add(1)

	pattern := rec.Method + " " + rec.Path
	ms.mu.RLock()
	handler, exact := ms.handlers[pattern]
	if !exact {
		// Longest prefix wins for dynamic paths
		best := ""
		for p, h := range ms.handlers {
			if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) && len(p) > len(best) {
				best, handler = p, h
			}
		}
	}
	ms.mu.RUnlock()

	if handler == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found: " + pattern})
		return
	}

	status, response := handler(rec)
	switch body := response.(type) {
	case Raw:
		if body.ContentType != "" {
			w.Header().Set("Content-Type", body.ContentType)
		}
		w.WriteHeader(status)
		io.WriteString(w, body.Text)
	case Compressed:
		data, _ := json.Marshal(body.Value)
		compressed, err := wire.Compress(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(wire.ContentEncodingHeader, wire.CompressionZlib)
		w.WriteHeader(status)
		w.Write(compressed)
	default:
		writeJSON(w, status, response)
	}
}

// record parses a request to /api/games/{game}/{path}.
func record(r *http.Request) (*RecordedRequest, bool) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/api/games/")
	if !ok {
		return nil, false
	}
	gameID, path, _ := strings.Cut(rest, "/")

	raw := make([]byte, 0)
	if r.Body != nil {
		raw, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}

	rec := &RecordedRequest{
		Method:  r.Method,
		GameID:  gameID,
		Path:    path,
		Query:   r.URL.Query(),
		Headers: r.Header.Clone(),
		RawBody: raw,
		Time:    time.Now(),
	}
	if meta, err := wire.DecodeMetadata(r.Header.Get(wire.HeaderName)); err == nil {
		rec.Metadata = meta
	}
	if len(raw) > 0 {
		compressed := rec.Metadata != nil && rec.Metadata.BodyCompression == wire.CompressionZlib
		rec.Body = wire.DecodeBody(raw, compressed)
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// GetRequests returns all recorded requests
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// LastRequest returns the most recent request, or nil if there was none.
func (ms *MockServer) LastRequest() *RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if len(ms.requests) == 0 {
		return nil
	}
	rec := ms.requests[len(ms.requests)-1]
	return &rec
}

// RequestsTo returns the recorded requests matching method and path.
func (ms *MockServer) RequestsTo(method, path string) []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []RecordedRequest
	for _, r := range ms.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears all recorded requests
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.requests = ms.requests[:0]
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
