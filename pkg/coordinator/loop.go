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

// Package coordinator runs the increment loop both participants execute against
// the shared counter.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/srediag/shm-counter/api"
	"github.com/srediag/shm-counter/internal/metrics"
	internalshm "github.com/srediag/shm-counter/internal/shm"
	"github.com/srediag/shm-counter/pkg/lifecycle"
)

const instrumentationName = "github.com/srediag/shm-counter/pkg/coordinator"

// DefaultTarget is the value both participants count up to.
const DefaultTarget int32 = 1000

// Config holds the loop parameters. Target must be the same in both processes.
type Config struct {
	Role   lifecycle.Role
	Target int32
	// PollInterval paces iterations so the peer gets a chance at the lock.
	PollInterval time.Duration
	// FlipDelay is slept, with the lock held, after every tails.
	FlipDelay time.Duration
	// HolderID identifies this participant in hold records; generated when empty.
	HolderID string
}

// Result summarizes a finished run.
type Result struct {
	Iterations   int
	Writes       int
	Flips        int
	LastObserved int32
	SetFinished  bool
}

// Loop is one participant's increment loop.
type Loop struct {
	locker api.Locker
	cfg    Config

	flipper  Flipper
	reporter api.Reporter
	recorder api.HoldRecorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
	incs     metric.Int64Counter
	clock    func() int64
	sleep    func(time.Duration)
	limiter  *rate.Limiter

	state    atomic.Int32
	progress atomic.Int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithFlipper replaces the fair coin.
func WithFlipper(f Flipper) Option { return func(l *Loop) { l.flipper = f } }

// WithReporter sets where progress lines go.
func WithReporter(r api.Reporter) Option { return func(l *Loop) { l.reporter = r } }

// WithRecorder records every critical section.
func WithRecorder(r api.HoldRecorder) Option { return func(l *Loop) { l.recorder = r } }

// WithMetrics registers loop activity on m.
func WithMetrics(m *metrics.Metrics) Option { return func(l *Loop) { l.metrics = m } }

// WithLogger sets the diagnostics logger.
func WithLogger(z *zap.Logger) Option { return func(l *Loop) { l.logger = z } }

// WithTracer wraps every critical section in a span.
func WithTracer(t trace.Tracer) Option { return func(l *Loop) { l.tracer = t } }

// WithMeter counts increments on an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(l *Loop) {
		c, err := m.Int64Counter("shmcounter.increments",
			metric.WithDescription("Increments written to the shared counter."))
		if err == nil {
			l.incs = c
		}
	}
}

// WithClock replaces the monotonic nanosecond clock stamped on hold records.
func WithClock(clock func() int64) Option { return func(l *Loop) { l.clock = clock } }

// WithSleep replaces the sleep used between tails.
func WithSleep(sleep func(time.Duration)) Option { return func(l *Loop) { l.sleep = sleep } }

// New builds a loop over locker.
func New(locker api.Locker, cfg Config, opts ...Option) (*Loop, error) {
	if locker == nil {
		return nil, errors.New("coordinator: nil locker")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("coordinator: invalid role %d", cfg.Role)
	}
	if cfg.Target <= 0 {
		cfg.Target = DefaultTarget
	}
	if cfg.HolderID == "" {
		cfg.HolderID = uuid.NewString()
	}
	l := &Loop{
		locker:   locker,
		cfg:      cfg,
		flipper:  NewFairCoin(),
		reporter: nopReporter{},
		recorder: api.NopRecorder{},
		logger:   zap.NewNop(),
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		clock:    internalshm.MonotonicNanos,
		sleep:    time.Sleep,
	}
	WithMeter(metricnoop.NewMeterProvider().Meter(instrumentationName))(l)
	for _, opt := range opts {
		opt(l)
	}
	limit := rate.Inf
	if cfg.PollInterval > 0 {
		limit = rate.Every(cfg.PollInterval)
	}
	l.limiter = rate.NewLimiter(limit, 1)
	l.setState(StateIdle)
	return l, nil
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// LastProgress returns when the loop last changed state.
func (l *Loop) LastProgress() time.Time {
	return time.Unix(0, l.progress.Load())
}

// HolderID returns the identifier stamped on hold records.
func (l *Loop) HolderID() string {
	return l.cfg.HolderID
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.progress.Store(time.Now().UnixNano())
}

// Run iterates until the counter reaches the target or the run is marked
// finished. Cancellation is only observed outside the critical section, so the
// lock is never abandoned mid-iteration.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	var res Result
	l.setState(StateRunning)
	l.reporter.Started(l.cfg.Target)
	l.logger.Info("loop started",
		zap.String("role", l.cfg.Role.String()),
		zap.String("holder", l.cfg.HolderID),
		zap.Int32("target", l.cfg.Target))
	for {
		if err := ctx.Err(); err != nil {
			l.setState(StateTerminated)
			return res, err
		}
		done, err := l.iterate(ctx, &res)
		if err != nil {
			l.setState(StateTerminated)
			return res, err
		}
		if done {
			l.setState(StateTerminated)
			l.reporter.Finished()
			l.logger.Info("loop finished",
				zap.String("role", l.cfg.Role.String()),
				zap.Int("iterations", res.Iterations),
				zap.Int("writes", res.Writes),
				zap.Int("flips", res.Flips))
			return res, nil
		}
		if err := l.limiter.Wait(ctx); err != nil {
			l.setState(StateTerminated)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, err
		}
	}
}

// iterate runs one critical section and reports whether the loop is done.
func (l *Loop) iterate(ctx context.Context, res *Result) (bool, error) {
	role := l.cfg.Role.String()
	waitStart := time.Now()
	cs, err := l.locker.Lock()
	if err != nil {
		return false, fmt.Errorf("acquire: %w", err)
	}
	hold := api.HoldRecord{
		Holder:     l.cfg.HolderID,
		Role:       role,
		AcquiredNs: l.clock(),
	}
	lockedAt := time.Now()
	l.setState(StateLocked)
	res.Iterations++
	if l.metrics != nil {
		metrics.ObserveDuration(l.metrics.LockWait, role, lockedAt.Sub(waitStart))
	}
	_, span := l.tracer.Start(ctx, "critical_section",
		trace.WithAttributes(attribute.String("role", role)))

	done, outcome, err := l.critical(cs, &hold, res)

	hold.ReleasedNs = l.clock()
	uerr := cs.Unlock()
	l.setState(StateUnlocked)

	span.SetAttributes(
		attribute.Int64("observed", int64(hold.Observed)),
		attribute.Int("flips", hold.Flips),
		attribute.String("outcome", outcome))
	span.End()

	if l.metrics != nil {
		metrics.ObserveDuration(l.metrics.LockHold, role, time.Since(lockedAt))
		l.metrics.Iterations.WithLabelValues(role, outcome).Inc()
		l.metrics.Observed.WithLabelValues(role).Set(float64(hold.Observed))
	}
	if rerr := l.recorder.RecordHold(hold); rerr != nil {
		l.logger.Warn("record hold", zap.Error(rerr))
	}
	if err != nil {
		return false, errors.Join(err, uerr)
	}
	if uerr != nil {
		return false, fmt.Errorf("release: %w", uerr)
	}
	return done, nil
}

// critical is the body of the critical section; cs is held throughout.
func (l *Loop) critical(cs api.CriticalSection, hold *api.HoldRecord, res *Result) (bool, string, error) {
	rec, err := cs.Load()
	if err != nil {
		return false, "error", fmt.Errorf("load: %w", err)
	}
	hold.Observed = rec.Current
	res.LastObserved = rec.Current

	if rec.Finished || rec.Current >= l.cfg.Target {
		if l.cfg.Role.SetsFinished() && !rec.Finished {
			rec.Finished = true
			if err := cs.Store(rec); err != nil {
				return false, "error", fmt.Errorf("store finished: %w", err)
			}
			hold.SetFinished = true
			res.SetFinished = true
		}
		return true, "terminated", nil
	}

	l.setState(StateCoinFlipping)
	flips := l.flipUntilHeads()
	hold.Flips = flips
	res.Flips += flips

	if rec.Current >= l.cfg.Target {
		l.setState(StateSkipped)
		return false, "skipped", nil
	}
	rec.Current++
	if err := cs.Store(rec); err != nil {
		return false, "error", fmt.Errorf("store: %w", err)
	}
	hold.Wrote = rec.Current
	res.Writes++
	l.setState(StateWrote)
	l.reporter.Wrote(rec.Current)
	if l.metrics != nil {
		l.metrics.Increments.WithLabelValues(l.cfg.Role.String()).Inc()
	}
	if l.incs != nil {
		l.incs.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("role", l.cfg.Role.String())))
	}
	return false, "wrote", nil
}

// flipUntilHeads draws until heads, sleeping between tails, and returns the number
// of draws. There is no cap: the lock stays held for the whole run of tails.
func (l *Loop) flipUntilHeads() int {
	role := l.cfg.Role.String()
	for flips := 1; ; flips++ {
		if l.flipper.Flip() {
			if l.metrics != nil {
				l.metrics.CoinFlips.WithLabelValues(role, "heads").Inc()
			}
			return flips
		}
		if l.metrics != nil {
			l.metrics.CoinFlips.WithLabelValues(role, "tails").Inc()
		}
		if l.cfg.FlipDelay > 0 {
			l.sleep(l.cfg.FlipDelay)
		}
	}
}
