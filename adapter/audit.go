// Package adapter connects shm-counter participants to external sinks: hold
// logs on disk, health probes, telemetry and the diagnostics listener.
package adapter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/srediag/shm-counter/api"
)

// FileRecorder appends hold records as JSON lines to a file.
type FileRecorder struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

var _ api.HoldRecorder = (*FileRecorder)(nil)

// NewFileRecorder creates dir if needed and opens <dir>/<role>-<holder>.jsonl.
func NewFileRecorder(dir, role, holder string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", role, holder))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit file: %w", err)
	}
	return &FileRecorder{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the file being written.
func (r *FileRecorder) Path() string {
	return r.path
}

func (r *FileRecorder) RecordHold(rec api.HoldRecord) error {
	b, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return os.ErrClosed
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

// Close flushes and closes the file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	ferr := r.w.Flush()
	cerr := r.f.Close()
	r.f = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}
