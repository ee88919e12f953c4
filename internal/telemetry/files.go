package telemetry

import (
	"os"
	"path/filepath"
	"sync"
)

// appendFile is a file that several goroutines append whole lines to.
// It backs the file exports of logs and spans.
type appendFile struct {
	mu   sync.Mutex
	file *os.File
}

func openAppendFile(path string) (*appendFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &appendFile{file: file}, nil
}

// writeLines writes lines, each already newline-terminated, in one locked
// section so concurrent writers never interleave.
func (a *appendFile) writeLines(lines ...[]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, line := range lines {
		if _, err := a.file.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (a *appendFile) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
