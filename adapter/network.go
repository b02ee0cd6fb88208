package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DiagnosticsServer serves /metrics, /live and /ready for one participant.
type DiagnosticsServer struct {
	srv *http.Server
	ln  net.Listener
}

// StartDiagnostics listens on addr and serves in the background.
func StartDiagnostics(addr string, gatherer prometheus.Gatherer, health healthcheck.Handler, log *zap.Logger) (*DiagnosticsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("diagnostics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)

	d := &DiagnosticsServer{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := d.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("diagnostics server stopped", zap.Error(err))
		}
	}()
	log.Info("diagnostics listening", zap.String("addr", ln.Addr().String()))
	return d, nil
}

// Addr returns the bound address.
func (d *DiagnosticsServer) Addr() string {
	return d.ln.Addr().String()
}

// Shutdown stops the server.
func (d *DiagnosticsServer) Shutdown(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}
