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

// Counterctl runs, inspects, verifies and cleans up shared counter runs.
//
//	counterctl run [-verify] [-initiator path -joiner path]
//	counterctl role initiator|joiner
//	counterctl verify [-target n] [-json] file.jsonl...
//	counterctl inspect [-wait]
//	counterctl cleanup
//
// Names, directory and target come from the same COUNTER_* variables the
// participants read.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/srediag/shm-counter/internal/app"
	"github.com/srediag/shm-counter/internal/config"
	"github.com/srediag/shm-counter/internal/launcher"
	"github.com/srediag/shm-counter/internal/logging"
	"github.com/srediag/shm-counter/pkg/audit"
	"github.com/srediag/shm-counter/pkg/lifecycle"
	"github.com/srediag/shm-counter/pkg/shm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "role":
		if len(args) != 2 {
			usage(stderr)
			return 2
		}
		role, err := lifecycle.ParseRole(args[1])
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		return app.Main(role, stdout)
	case "run":
		return runBoth(args[1:], stdout, stderr)
	case "verify":
		return verify(args[1:], stdout, stderr)
	case "inspect":
		return inspect(args[1:], stdout, stderr)
	case "cleanup":
		return cleanup(stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: counterctl run|role|verify|inspect|cleanup [flags]")
}

func loadConfig(stderr io.Writer) (*config.Config, bool) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, false
	}
	return cfg, true
}

func runBoth(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	initiator := fs.String("initiator", "", "initiator binary (default: this binary in role mode)")
	joiner := fs.String("joiner", "", "joiner binary (default: this binary in role mode)")
	delay := fs.Duration("delay", launcher.DefaultJoinerDelay, "delay before starting the joiner")
	timeout := fs.Duration("timeout", launcher.DefaultTimeout, "limit for the whole run")
	check := fs.Bool("verify", false, "record holds and verify them after the run")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, ok := loadConfig(stderr)
	if !ok {
		return 1
	}
	log := logging.NewOrNop(logging.Config{Level: cfg.LogLevel, Development: true})
	defer func() { _ = log.Sync() }()

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	initCmd := launcher.Command{Path: self, Args: []string{"role", "initiator"}}
	joinCmd := launcher.Command{Path: self, Args: []string{"role", "joiner"}}
	if *initiator != "" {
		initCmd = launcher.Command{Path: *initiator}
	}
	if *joiner != "" {
		joinCmd = launcher.Command{Path: *joiner}
	}

	var auditDir string
	if *check {
		auditDir, err = os.MkdirTemp("", "shmcounter-audit-")
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer os.RemoveAll(auditDir)
		env := []string{config.Prefix + "_AUDIT_DIR=" + auditDir}
		initCmd.Env = append(initCmd.Env, env...)
		joinCmd.Env = append(joinCmd.Env, env...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	outcomes, err := launcher.Run(ctx, launcher.Plan{
		Initiator:   initCmd,
		Joiner:      joinCmd,
		JoinerDelay: *delay,
		Timeout:     *timeout,
		Stdout:      stdout,
		Stderr:      stderr,
		Logger:      log,
	})
	for _, o := range outcomes {
		fmt.Fprintf(stdout, "%s exited %d after %s\n", o.Name, o.ExitCode, o.Duration.Round(time.Millisecond))
	}
	if err != nil {
		log.Error("run failed", zap.Error(err))
		return 1
	}
	if !launcher.Succeeded(outcomes) {
		return 1
	}
	if *check {
		files, _ := filepath.Glob(filepath.Join(auditDir, "*.jsonl"))
		return report(files, cfg.Target, false, stdout, stderr)
	}
	return 0
}

func verify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := fs.Int("target", int(config.Default().Target), "value the run counted to")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "verify: no hold logs given")
		return 2
	}
	return report(fs.Args(), int32(*target), *asJSON, stdout, stderr)
}

func report(files []string, target int32, asJSON bool, stdout, stderr io.Writer) int {
	c, err := audit.LoadFiles(files, 4)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	r := audit.Verify(c.Records(), target)
	if asJSON {
		b, err := sonic.MarshalIndent(r, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, string(b))
	} else {
		fmt.Fprintf(stdout, "holds=%d writes=%d final=%d finished_sets=%d\n", r.Holds, r.Writes, r.Final, r.FinishedSets)
		for _, h := range c.Holders() {
			s := r.Holders[h]
			fmt.Fprintf(stdout, "  %-9s %s holds=%d writes=%d flips=%d\n", s.Role, s.Holder, s.Holds, s.Writes, s.Flips)
		}
		for _, v := range r.Violations {
			fmt.Fprintln(stdout, "VIOLATION:", v)
		}
	}
	if !r.OK() {
		return 1
	}
	return 0
}

func inspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	wait := fs.Bool("wait", false, "block until the lock is free instead of giving up")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, ok := loadConfig(stderr)
	if !ok {
		return 1
	}
	mutex, err := shm.OpenMutex(shm.MutexOptions{Dir: cfg.Dir, Name: cfg.SemName})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	counter, err := shm.OpenCounter(context.Background(), shm.CounterOptions{Dir: cfg.Dir, Name: cfg.ShmName})
	if err != nil {
		_ = mutex.Close()
		fmt.Fprintln(stderr, err)
		return 1
	}
	seg := shm.NewSegment(counter, mutex)
	defer seg.Close()

	var g *shm.Guard
	if *wait {
		g, err = seg.Acquire()
	} else {
		g, err = seg.TryAcquire()
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if g == nil {
		fmt.Fprintln(stdout, "lock is held by a participant; retry with -wait")
		return 1
	}
	rec, err := g.Load()
	uerr := g.Unlock()
	if err = errors.Join(err, uerr); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "path:%s current_number:%d finished:%t target:%d\n", counter.Path(), rec.Current, rec.Finished, cfg.Target)
	return 0
}

func cleanup(stdout, stderr io.Writer) int {
	cfg, ok := loadConfig(stderr)
	if !ok {
		return 1
	}
	code := 0
	for _, step := range []struct {
		name string
		fn   func(dir, name string) error
		obj  string
	}{
		{"counter", shm.DestroyCounter, cfg.ShmName},
		{"mutex", shm.DestroyMutex, cfg.SemName},
	} {
		err := step.fn(cfg.Dir, step.obj)
		switch {
		case err == nil:
			fmt.Fprintf(stdout, "removed %s %s\n", step.name, step.obj)
		case errors.Is(err, shm.ErrResourceNotFound):
			fmt.Fprintf(stdout, "%s %s already gone\n", step.name, step.obj)
		default:
			fmt.Fprintln(stderr, err)
			code = 1
		}
	}
	return code
}
