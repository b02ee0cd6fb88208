package adapter

import (
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-counter/pkg/coordinator"
)

// Progress is what the health checks observe of a running loop.
type Progress interface {
	State() coordinator.State
	LastProgress() time.Time
}

// NewHealthHandler returns liveness and readiness probes for one participant.
// Liveness fails when the loop has not changed state for longer than stall,
// which is how a peer stuck inside the critical section shows up from outside.
// Readiness fails until ready returns nil. Check results are also exported as
// gauges on reg.
func NewHealthHandler(reg prometheus.Registerer, p Progress, stall time.Duration, ready func() error) healthcheck.Handler {
	h := healthcheck.NewMetricsHandler(reg, "shmcounter")
	h.AddLivenessCheck("loop-progress", func() error {
		state := p.State()
		if state == coordinator.StateTerminated || state == coordinator.StateIdle {
			return nil
		}
		if since := time.Since(p.LastProgress()); stall > 0 && since > stall {
			return fmt.Errorf("loop %s for %s", state, since.Round(time.Millisecond))
		}
		return nil
	})
	if ready != nil {
		h.AddReadinessCheck("resources-attached", ready)
	}
	return h
}
