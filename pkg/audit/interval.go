// Package audit checks recorded critical sections for the properties the counter
// protocol guarantees: mutual exclusion, gap-free monotonic writes, no lost
// updates and a single finish.
package audit

import (
	"github.com/Workiva/go-datastructures/augmentedtree"

	"github.com/srediag/shm-counter/api"
)

// holdInterval adapts a HoldRecord to the interval tree. The tree compares
// bounds inclusively, so the high bound is stored one nanosecond before release:
// a hold released at t and the next acquired at t do not overlap.
type holdInterval struct {
	id  uint64
	rec api.HoldRecord
}

func (h *holdInterval) LowAtDimension(uint64) int64 {
	return h.rec.AcquiredNs
}

func (h *holdInterval) HighAtDimension(uint64) int64 {
	if h.rec.ReleasedNs-1 < h.rec.AcquiredNs {
		return h.rec.AcquiredNs
	}
	return h.rec.ReleasedNs - 1
}

func (h *holdInterval) OverlapsAtDimension(other augmentedtree.Interval, d uint64) bool {
	return h.LowAtDimension(d) <= other.HighAtDimension(d) &&
		other.LowAtDimension(d) <= h.HighAtDimension(d)
}

func (h *holdInterval) ID() uint64 {
	return h.id
}

// overlapping returns every pair of holds whose intervals intersect.
func overlapping(records []api.HoldRecord) [][2]api.HoldRecord {
	tree := augmentedtree.New(1)
	ivs := make([]*holdInterval, len(records))
	for i, r := range records {
		ivs[i] = &holdInterval{id: uint64(i + 1), rec: r}
		tree.Add(ivs[i])
	}
	var pairs [][2]api.HoldRecord
	for _, iv := range ivs {
		hits := tree.Query(iv)
		for _, hit := range hits {
			other := hit.(*holdInterval)
			// report each pair once
			if other.id <= iv.id {
				continue
			}
			if !iv.OverlapsAtDimension(other, 1) {
				continue
			}
			pairs = append(pairs, [2]api.HoldRecord{iv.rec, other.rec})
		}
		hits.Dispose()
	}
	return pairs
}
