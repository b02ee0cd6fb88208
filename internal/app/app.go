/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package app is the process entry point shared by the initiator and joiner binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srediag/shm-counter/adapter"
	"github.com/srediag/shm-counter/api"
	"github.com/srediag/shm-counter/internal/config"
	"github.com/srediag/shm-counter/internal/logging"
	"github.com/srediag/shm-counter/internal/metrics"
	"github.com/srediag/shm-counter/pkg/coordinator"
	"github.com/srediag/shm-counter/pkg/lifecycle"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Main runs one participant with configuration from the environment and returns
// the process exit code.
func Main(role lifecycle.Role, stdout io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitFailure
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, role, cfg, stdout)
}

// Run is Main with explicit context and configuration.
func Run(ctx context.Context, role lifecycle.Role, cfg *config.Config, stdout io.Writer) int {
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDev})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return ExitFailure
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("role", role.String()), zap.Int("pid", os.Getpid()))

	m := metrics.New()
	holder := uuid.NewString()

	var recorder api.HoldRecorder = api.NopRecorder{}
	if cfg.AuditDir != "" {
		fr, err := adapter.NewFileRecorder(cfg.AuditDir, role.String(), holder)
		if err != nil {
			log.Error("audit recorder", zap.Error(err))
			return ExitFailure
		}
		defer func() {
			if err := fr.Close(); err != nil {
				log.Warn("audit close", zap.Error(err))
			}
		}()
		recorder = fr
		log.Info("recording holds", zap.String("path", fr.Path()))
	}

	opts := lifecycle.OptionsFromConfig(cfg)
	opts.Logger = logging.Component(log, "lifecycle")
	opts.Metrics = m
	res, err := lifecycle.Attach(ctx, role, opts)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		writeMetrics(cfg, m, log)
		return ExitFailure
	}
	defer func() {
		// destroy failures are logged inside Teardown and never change the exit code
		_ = lifecycle.Teardown(res)
		writeMetrics(cfg, m, log)
	}()

	loopOpts := []coordinator.Option{
		coordinator.WithReporter(coordinator.NewConsoleReporter(stdout, role.Number())),
		coordinator.WithRecorder(recorder),
		coordinator.WithMetrics(m),
		coordinator.WithLogger(logging.Component(log, "loop")),
	}
	loopOpts = append(loopOpts, adapter.TelemetryOptions("shm-counter")...)
	loop, err := coordinator.New(res.Segment, coordinator.Config{
		Role:         role,
		Target:       cfg.Target,
		PollInterval: cfg.PollInterval,
		FlipDelay:    cfg.FlipDelay,
		HolderID:     holder,
	}, loopOpts...)
	if err != nil {
		log.Error("loop setup", zap.Error(err))
		return ExitFailure
	}

	if cfg.DebugAddr != "" {
		health := adapter.NewHealthHandler(m.Registry, loop, 30*time.Second, func() error { return nil })
		srv, err := adapter.StartDiagnostics(cfg.DebugAddr, m.Registry, health, logging.Component(log, "diagnostics"))
		if err != nil {
			log.Warn("diagnostics disabled", zap.Error(err))
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}
	}

	result, err := loop.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted", zap.Int("writes", result.Writes))
		} else {
			log.Error("loop failed", zap.Error(err))
		}
		return ExitFailure
	}
	return ExitOK
}

func writeMetrics(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warn("metrics file", zap.Error(err))
	}
}
