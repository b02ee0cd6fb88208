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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/srediag/shm-counter/internal/config"
	"github.com/srediag/shm-counter/internal/metrics"
	internalshm "github.com/srediag/shm-counter/internal/shm"
	"github.com/srediag/shm-counter/pkg/shm"
)

// Options controls how a participant reaches the named resources.
type Options struct {
	Dir         string
	CounterName string
	MutexName   string

	// StartupDelay is waited by the joiner before its first attempt.
	StartupDelay time.Duration
	// StartupMode is one of config.StartupLegacy, StartupBackoff or StartupWatch.
	StartupMode string
	// StartupTimeout bounds retrying and watching in the non-legacy modes.
	StartupTimeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// OptionsFromConfig derives Options from the process configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dir:            cfg.Dir,
		CounterName:    cfg.ShmName,
		MutexName:      cfg.SemName,
		StartupDelay:   cfg.StartupDelay,
		StartupMode:    cfg.StartupMode,
		StartupTimeout: cfg.StartupTimeout,
	}
}

// Resources are the attached primitives of one participant.
type Resources struct {
	Role    Role
	Segment *shm.Segment

	opts   Options
	closed bool
}

// Attach creates (initiator) or opens (joiner) the named counter and mutex.
// On failure nothing acquired along the way is left open.
func Attach(ctx context.Context, role Role, opts Options) (*Resources, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var (
		seg *shm.Segment
		err error
	)
	switch role {
	case RoleInitiator:
		seg, err = create(ctx, opts)
	case RoleJoiner:
		seg, err = join(ctx, opts)
	default:
		return nil, fmt.Errorf("attach: invalid role %d", role)
	}
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("attached",
		zap.String("role", role.String()),
		zap.String("counter", seg.Counter.Path()),
		zap.String("mutex", seg.Mutex.Name()))
	return &Resources{Role: role, Segment: seg, opts: opts}, nil
}

// create sets up fresh resources. The counter is initialized while holding the
// mutex so a peer that attaches early never reads a half-built record.
func create(ctx context.Context, opts Options) (seg *shm.Segment, err error) {
	defer func() { recordAttempt(opts, RoleInitiator, err) }()
	mutex, err := shm.CreateMutex(shm.MutexOptions{Dir: opts.Dir, Name: opts.MutexName})
	if err != nil {
		return nil, err
	}
	if err := mutex.Acquire(); err != nil {
		_ = mutex.Close()
		return nil, &shm.ResourceError{Op: "create", Name: opts.MutexName, Kind: shm.ErrResourceCreation, Err: err}
	}
	counter, err := shm.CreateCounter(ctx, shm.CounterOptions{Dir: opts.Dir, Name: opts.CounterName})
	if rerr := mutex.Release(); rerr != nil && err == nil {
		_ = counter.Close()
		err = &shm.ResourceError{Op: "create", Name: opts.MutexName, Kind: shm.ErrResourceCreation, Err: rerr}
	}
	if err != nil {
		_ = mutex.Close()
		return nil, err
	}
	return shm.NewSegment(counter, mutex), nil
}

func join(ctx context.Context, opts Options) (*shm.Segment, error) {
	log := opts.Logger
	if err := sleep(ctx, opts.StartupDelay); err != nil {
		return nil, err
	}
	switch opts.StartupMode {
	case config.StartupLegacy:
		return open(ctx, opts)
	case config.StartupWatch:
		if err := waitForObjects(ctx, opts); err != nil {
			log.Warn("resources did not appear, trying anyway", zap.Error(err))
		}
		return open(ctx, opts)
	case config.StartupBackoff, "":
		return openWithBackoff(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown startup mode %q", opts.StartupMode)
	}
}

// open attaches to existing resources. The counter is mapped while holding the
// mutex, so an initiator still setting it up is waited out.
func open(ctx context.Context, opts Options) (seg *shm.Segment, err error) {
	defer func() { recordAttempt(opts, RoleJoiner, err) }()
	mutex, err := shm.OpenMutex(shm.MutexOptions{Dir: opts.Dir, Name: opts.MutexName})
	if err != nil {
		return nil, err
	}
	if err := mutex.Acquire(); err != nil {
		_ = mutex.Close()
		return nil, &shm.ResourceError{Op: "open", Name: opts.MutexName, Kind: shm.ErrResourceAccess, Err: err}
	}
	counter, err := shm.OpenCounter(ctx, shm.CounterOptions{Dir: opts.Dir, Name: opts.CounterName})
	if rerr := mutex.Release(); rerr != nil && err == nil {
		_ = counter.Close()
		err = &shm.ResourceError{Op: "open", Name: opts.MutexName, Kind: shm.ErrResourceAccess, Err: rerr}
	}
	if err != nil {
		_ = mutex.Close()
		return nil, err
	}
	return shm.NewSegment(counter, mutex), nil
}

// recordAttempt counts one create or open attempt by outcome.
func recordAttempt(opts Options, role Role, err error) {
	if opts.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, shm.ErrResourceNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	opts.Metrics.Startup.WithLabelValues(role.String(), result).Inc()
}

func openWithBackoff(ctx context.Context, opts Options) (*shm.Segment, error) {
	if opts.StartupTimeout <= 0 {
		return open(ctx, opts)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = opts.StartupTimeout

	var seg *shm.Segment
	op := func() error {
		s, err := open(ctx, opts)
		if err != nil {
			if errors.Is(err, shm.ErrResourceNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		seg = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		opts.Logger.Debug("resources not ready", zap.Error(err), zap.Duration("retry_in", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return seg, nil
}

// waitForObjects blocks until both named objects exist and the counter is sized.
func waitForObjects(ctx context.Context, opts Options) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			opts.Logger.Warn("watcher close error", zap.Error(cerr))
		}
	}()
	dir := opts.Dir
	if dir == "" {
		dir = internalshm.DefaultDir
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if opts.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.StartupTimeout)
		defer cancel()
	}
	for !objectsReady(opts) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", dir, ctx.Err())
		case _, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

func objectsReady(opts Options) bool {
	if _, err := os.Stat(internalshm.LockPath(opts.Dir, opts.MutexName)); err != nil {
		return false
	}
	fi, err := os.Stat(internalshm.ObjectPath(opts.Dir, opts.CounterName))
	return err == nil && fi.Size() >= int64(shm.RecordSize)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
