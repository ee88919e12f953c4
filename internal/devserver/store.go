package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/birbparty/flox-go/internal/telemetry"
	"github.com/birbparty/flox-go/internal/wire"
)

// Document is a stored JSON object
type Document = map[string]interface{}

// Store defines the persistence used by the development backend. Documents
// are grouped in collections and addressed by id.
type Store interface {
	// Get retrieves a document, or ErrNotFound
	Get(ctx context.Context, collection, id string) (Document, error)

	// Put creates or replaces a document
	Put(ctx context.Context, collection, id string, doc Document) error

	// Delete removes a document, or returns ErrNotFound
	Delete(ctx context.Context, collection, id string) error

	// List returns every document of a collection keyed by id
	List(ctx context.Context, collection string) (map[string]Document, error)

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}

// Common errors
var (
	ErrNotFound    = NewStoreError("document not found", false)
	ErrStoreClosed = NewStoreError("store is closed", false)
)

// StoreError represents a store-specific error
type StoreError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewStoreError creates a new store error
func NewStoreError(message string, retryable bool) *StoreError {
	return &StoreError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// WithError returns a copy of e wrapping err
func (e *StoreError) WithError(err error) *StoreError {
	clone := *e
	clone.Underlying = err
	return &clone
}

// MemoryStore keeps documents in process memory. Documents are stored
// encoded so callers never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	closed      bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string][]byte)}
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	data, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDocument(data)
}

// Put implements Store
func (m *MemoryStore) Put(ctx context.Context, collection, id string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return NewStoreError("failed to encode document", false).WithError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		m.collections[collection] = docs
	}
	docs[id] = data
	return nil
}

// Delete implements Store
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], id)
	return nil
}

// List implements Store
func (m *MemoryStore) List(ctx context.Context, collection string) (map[string]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	result := make(map[string]Document, len(m.collections[collection]))
	for id, data := range m.collections[collection] {
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		result[id] = doc
	}
	return result, nil
}

// Ping implements Store
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.collections = nil
	return nil
}

func decodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := wire.Unmarshal(data, &doc); err != nil {
		return nil, NewStoreError("failed to decode document", false).WithError(err)
	}
	return doc, nil
}

// instrumentedStore records metrics and spans for every store call.
type instrumentedStore struct {
	Store
}

// Instrument wraps s so its operations are timed and traced.
func Instrument(s Store) Store {
	return &instrumentedStore{Store: s}
}

func (s *instrumentedStore) Get(ctx context.Context, collection, id string) (Document, error) {
	done := telemetry.TimeOperation(ctx, "get")
	doc, err := s.Store.Get(ctx, collection, id)
	done(operationStatus(err))
	return doc, err
}

func (s *instrumentedStore) Put(ctx context.Context, collection, id string, doc Document) error {
	done := telemetry.TimeOperation(ctx, "put")
	err := s.Store.Put(ctx, collection, id, doc)
	done(operationStatus(err))
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, collection, id string) error {
	done := telemetry.TimeOperation(ctx, "delete")
	err := s.Store.Delete(ctx, collection, id)
	done(operationStatus(err))
	return err
}

func (s *instrumentedStore) List(ctx context.Context, collection string) (map[string]Document, error) {
	done := telemetry.TimeOperation(ctx, "list")
	docs, err := s.Store.List(ctx, collection)
	done(operationStatus(err))
	return docs, err
}

// operationStatus treats a miss as a successful lookup.
func operationStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "miss"
	default:
		return "error"
	}
}

// Collection names are scoped by game.
func entityCollection(game, entityType string) string {
	return fmt.Sprintf("%s:entities:%s", game, entityType)
}

func scoreCollection(game, board string) string {
	return fmt.Sprintf("%s:scores:%s", game, board)
}

func logCollection(game string) string {
	return game + ":logs"
}

func authCollection(game string) string {
	return game + ":auth"
}
