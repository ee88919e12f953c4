package sdk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/birbparty/flox-go/internal/wire"
)

// messageOf extracts the human readable message from a decoded error body.
// It prefers the "message" field and otherwise renders the whole body.
//
// Example bodies it handles:
//
//	{"message": "Entity not found"}   -> "Entity not found"
//	{"error": "forbidden"}            -> `{"error":"forbidden"}`
//	"plain text"                      -> "plain text"
func messageOf(body interface{}) string {
	if m, ok := body.(map[string]interface{}); ok {
		if msg, ok := m["message"].(string); ok {
			return msg
		}
	}
	if s, ok := body.(string); ok {
		return s
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(data)
}

// asMap returns body as a JSON object or fails with ErrInvalidResponse.
func asMap(body interface{}, what string) (map[string]interface{}, error) {
	m, ok := body.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, expected an object", ErrInvalidResponse, what, body)
	}
	return m, nil
}

// asSlice returns body as a JSON array or fails with ErrInvalidResponse.
func asSlice(body interface{}, what string) ([]interface{}, error) {
	s, ok := body.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, expected an array", ErrInvalidResponse, what, body)
	}
	return s, nil
}

// stringField reads a string value from a decoded object.
func stringField(m map[string]interface{}, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// timeField reads a wire timestamp from a decoded object. Missing or
// malformed values yield the zero time.
func timeField(m map[string]interface{}, key string) time.Time {
	s, ok := m[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := wire.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// toMap converts a Go value into the generic map representation used for
// entity data, going through its JSON encoding.
func toMap(value interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value: %w", err)
	}
	var m map[string]interface{}
	if err := wire.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("value does not serialize to an object: %w", err)
	}
	return m, nil
}

// fromMap converts generic decoded data into the target type.
// The target must be a pointer.
func fromMap(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize value: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to deserialize value: %w", err)
	}
	return nil
}
