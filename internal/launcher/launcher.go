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

// Package launcher starts an initiator and a joiner as child processes in the
// required order and collects their exit codes.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Command is one child process.
type Command struct {
	Path string
	Args []string
	Env  []string
}

// Plan describes a run of both participants.
type Plan struct {
	Initiator Command
	Joiner    Command
	// JoinerDelay is waited between starting the initiator and the joiner.
	JoinerDelay time.Duration
	// Timeout bounds the whole run; children still alive are killed.
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *zap.Logger
}

// Outcome is how one child ended.
type Outcome struct {
	Name     string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Defaults for Plan.
const (
	DefaultJoinerDelay = 500 * time.Millisecond
	DefaultTimeout     = 60 * time.Second
)

// Run starts the initiator, waits JoinerDelay, starts the joiner and waits for
// both. Children run from a two-worker pool. The returned outcomes are in
// start order; the error reports a setup failure or a timeout.
func Run(ctx context.Context, plan Plan) ([]Outcome, error) {
	if plan.JoinerDelay <= 0 {
		plan.JoinerDelay = DefaultJoinerDelay
	}
	if plan.Timeout <= 0 {
		plan.Timeout = DefaultTimeout
	}
	if plan.Stdout == nil {
		plan.Stdout = os.Stdout
	}
	if plan.Stderr == nil {
		plan.Stderr = os.Stderr
	}
	log := plan.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	pool, err := ants.NewPool(2, ants.WithPanicHandler(func(p any) {
		log.Error("child supervisor panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("launcher: worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make([]Outcome, 2)
	var wg sync.WaitGroup
	start := func(i int, name string, c Command) error {
		cmd := exec.CommandContext(ctx, c.Path, c.Args...)
		cmd.Env = append(os.Environ(), c.Env...)
		cmd.Stdout = plan.Stdout
		cmd.Stderr = plan.Stderr
		began := time.Now()
		if err := cmd.Start(); err != nil {
			outcomes[i] = Outcome{Name: name, ExitCode: -1, Err: err}
			return fmt.Errorf("launcher: start %s: %w", name, err)
		}
		log.Info("started", zap.String("child", name), zap.Int("pid", cmd.Process.Pid))
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = wait(name, cmd, began)
			log.Info("exited", zap.String("child", name), zap.Int("code", outcomes[i].ExitCode))
		})
		if err != nil {
			wg.Done()
			outcomes[i] = wait(name, cmd, began)
		}
		return nil
	}

	if err := start(0, "initiator", plan.Initiator); err != nil {
		return outcomes[:1], err
	}
	select {
	case <-time.After(plan.JoinerDelay):
	case <-ctx.Done():
		wg.Wait()
		return outcomes[:1], ctx.Err()
	}
	startErr := start(1, "joiner", plan.Joiner)
	wg.Wait()
	if startErr != nil {
		return outcomes, startErr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return outcomes, fmt.Errorf("launcher: run exceeded %s: %w", plan.Timeout, ctx.Err())
	}
	return outcomes, nil
}

func wait(name string, cmd *exec.Cmd, began time.Time) Outcome {
	err := cmd.Wait()
	o := Outcome{Name: name, Duration: time.Since(began), ExitCode: -1}
	if cmd.ProcessState != nil {
		o.ExitCode = cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		o.Err = err
	}
	return o
}

// Succeeded reports whether every outcome exited 0.
func Succeeded(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.ExitCode != 0 || o.Err != nil {
			return false
		}
	}
	return len(outcomes) > 0
}
