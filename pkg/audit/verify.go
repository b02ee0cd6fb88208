package audit

import (
	"fmt"
	"sort"

	"github.com/srediag/shm-counter/api"
)

// HolderSummary aggregates the holds of one participant.
type HolderSummary struct {
	Holder string `json:"holder"`
	Role   string `json:"role"`
	Holds  int    `json:"holds"`
	Writes int    `json:"writes"`
	Flips  int    `json:"flips"`
}

// Report is the outcome of Verify.
type Report struct {
	Target       int32                    `json:"target"`
	Holds        int                      `json:"holds"`
	Writes       int                      `json:"writes"`
	Final        int32                    `json:"final"`
	FinishedSets int                      `json:"finished_sets"`
	Holders      map[string]HolderSummary `json:"holders"`
	Violations   []string                 `json:"violations,omitempty"`
}

// OK reports whether no property was violated.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) violate(format string, a ...any) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, a...))
}

// Verify checks the hold records of a complete run against target.
func Verify(records []api.HoldRecord, target int32) *Report {
	r := &Report{Target: target, Holds: len(records), Holders: make(map[string]HolderSummary)}

	for _, pair := range overlapping(records) {
		r.violate("holds overlap: %s [%d,%d] and %s [%d,%d]",
			pair[0].Holder, pair[0].AcquiredNs, pair[0].ReleasedNs,
			pair[1].Holder, pair[1].AcquiredNs, pair[1].ReleasedNs)
	}

	sorted := make([]api.HoldRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AcquiredNs < sorted[j].AcquiredNs
	})

	var last int32
	for _, h := range sorted {
		s := r.Holders[h.Holder]
		s.Holder, s.Role = h.Holder, h.Role
		s.Holds++
		s.Flips += h.Flips

		if h.ReleasedNs < h.AcquiredNs {
			r.violate("hold by %s released at %d before acquiring at %d", h.Holder, h.ReleasedNs, h.AcquiredNs)
		}
		if h.Observed != last {
			r.violate("hold by %s at %d observed %d, last written value was %d", h.Holder, h.AcquiredNs, h.Observed, last)
		}
		if h.SetFinished {
			r.FinishedSets++
		}
		if h.DidWrite() {
			s.Writes++
			r.Writes++
			if h.Observed >= target {
				r.violate("hold by %s wrote %d after the target was reached", h.Holder, h.Wrote)
			}
			if h.Wrote != last+1 {
				r.violate("hold by %s wrote %d, want %d", h.Holder, h.Wrote, last+1)
			}
			last = h.Wrote
		}
		r.Holders[h.Holder] = s
	}
	r.Final = last

	if r.Final != target {
		r.violate("final value %d, want %d", r.Final, target)
	}
	if r.FinishedSets != 1 {
		r.violate("finished flag set %d times, want exactly once", r.FinishedSets)
	}
	return r
}
