// Package export writes query results, typically Flox logs, to JSON-lines
// files on disk or in S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record is one exported document
type Record = map[string]interface{}

// Sink stores a named batch of records
type Sink interface {
	// Write stores records under name and returns where they went
	Write(ctx context.Context, name string, records []Record) (string, error)
}

// EncodeJSONLines renders one JSON document per line.
func EncodeJSONLines(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// FileSink writes <dir>/<name>.jsonl
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing into dir, which is created on demand.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{dir: dir}
}

// Write implements Sink
func (f *FileSink) Write(ctx context.Context, name string, records []Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	data, err := EncodeJSONLines(records)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(f.dir, name+".jsonl")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// validateName rejects names that would escape the sink's directory.
func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid export name %q", name)
	}
	return nil
}
