package audit

import (
	"sync"

	"github.com/srediag/shm-counter/api"
)

// Memory is an in-process api.HoldRecorder, shareable by several loops.
type Memory struct {
	mu   sync.Mutex
	recs []api.HoldRecord
}

var _ api.HoldRecorder = (*Memory)(nil)

func (m *Memory) RecordHold(r api.HoldRecord) error {
	m.mu.Lock()
	m.recs = append(m.recs, r)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *Memory) Records() []api.HoldRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.HoldRecord, len(m.recs))
	copy(out, m.recs)
	return out
}
