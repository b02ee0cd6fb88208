package api

// HoldRecord describes one critical section: when the lock was held, what was
// observed and what, if anything, was written.
type HoldRecord struct {
	Holder      string `json:"holder"`
	Role        string `json:"role"`
	AcquiredNs  int64  `json:"acquired_ns"`
	ReleasedNs  int64  `json:"released_ns"`
	Observed    int32  `json:"observed"`
	Wrote       int32  `json:"wrote,omitempty"`
	Flips       int    `json:"flips,omitempty"`
	SetFinished bool   `json:"set_finished,omitempty"`
}

// DidWrite reports whether the hold performed an increment.
func (r HoldRecord) DidWrite() bool {
	return r.Wrote != 0
}

// HoldRecorder receives hold records as critical sections end.
type HoldRecorder interface {
	RecordHold(HoldRecord) error
}

// NopRecorder discards hold records.
type NopRecorder struct{}

func (NopRecorder) RecordHold(HoldRecord) error { return nil }
