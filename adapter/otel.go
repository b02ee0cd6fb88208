package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/shm-counter/pkg/coordinator"
)

// TelemetryOptions hooks a loop to the globally registered OpenTelemetry
// providers. Without an SDK installed these are no-ops.
func TelemetryOptions(name string) []coordinator.Option {
	return []coordinator.Option{
		coordinator.WithTracer(otel.Tracer(name)),
		coordinator.WithMeter(otel.Meter(name)),
	}
}
