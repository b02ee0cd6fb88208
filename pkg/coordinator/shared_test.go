//go:build unix

package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-counter/internal/config"
	"github.com/srediag/shm-counter/pkg/audit"
	"github.com/srediag/shm-counter/pkg/lifecycle"
	"github.com/srediag/shm-counter/pkg/shm"
)

func TestParticipantsOverNamedResources(t *testing.T) {
	const target = 250
	opts := lifecycle.Options{
		Dir:            t.TempDir(),
		CounterName:    "CounterSharedMemory",
		MutexName:      "CounterSemaphore",
		StartupMode:    config.StartupBackoff,
		StartupTimeout: 5 * time.Second,
	}
	rec := &audit.Memory{}
	clock := tickClock()

	run := func(role lifecycle.Role) (Result, error) {
		res, err := lifecycle.Attach(context.Background(), role, opts)
		if err != nil {
			return Result{}, err
		}
		defer lifecycle.Teardown(res)
		l, err := New(res.Segment, Config{
			Role:      role,
			Target:    target,
			FlipDelay: 10 * time.Microsecond,
		}, WithRecorder(rec), WithClock(clock))
		if err != nil {
			return Result{}, err
		}
		return l.Run(context.Background())
	}

	var (
		wg      sync.WaitGroup
		results [2]Result
	)
	for i, role := range []lifecycle.Role{lifecycle.RoleInitiator, lifecycle.RoleJoiner} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := run(role)
			assert.NoError(t, err, role.String())
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, target, results[0].Writes+results[1].Writes)
	assert.True(t, results[0].SetFinished)
	assert.False(t, results[1].SetFinished)

	report := audit.Verify(rec.Records(), target)
	require.True(t, report.OK(), report.Violations)
	assert.Equal(t, int32(target), report.Final)
	assert.Equal(t, 1, report.FinishedSets)

	err := shm.Destroy(opts.Dir, opts.CounterName, opts.MutexName)
	assert.ErrorIs(t, err, shm.ErrResourceNotFound)
}

func TestJoinerAttachedToLeftoversSharesInitiatorSegment(t *testing.T) {
	const target = 50
	opts := lifecycle.Options{
		Dir:         t.TempDir(),
		CounterName: "C",
		MutexName:   "M",
		StartupMode: config.StartupLegacy,
	}
	require.NoError(t, os.WriteFile(filepath.Join(opts.Dir, "C"), []byte{42, 0, 0, 0, 0, 0, 0, 0}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(opts.Dir, "M.lock"), nil, 0o600))

	joiner, err := lifecycle.Attach(context.Background(), lifecycle.RoleJoiner, opts)
	require.NoError(t, err)
	initiator, err := lifecycle.Attach(context.Background(), lifecycle.RoleInitiator, opts)
	require.NoError(t, err)

	rec := &audit.Memory{}
	clock := tickClock()
	var (
		wg      sync.WaitGroup
		results [2]Result
	)
	for i, res := range []*lifecycle.Resources{initiator, joiner} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer lifecycle.Teardown(res)
			l, err := New(res.Segment, Config{
				Role:      res.Role,
				Target:    target,
				FlipDelay: 10 * time.Microsecond,
			}, WithRecorder(rec), WithClock(clock))
			if !assert.NoError(t, err, res.Role.String()) {
				return
			}
			results[i], err = l.Run(context.Background())
			assert.NoError(t, err, res.Role.String())
		}()
	}
	wg.Wait()

	assert.Equal(t, target, results[0].Writes+results[1].Writes)
	report := audit.Verify(rec.Records(), target)
	require.True(t, report.OK(), report.Violations)
	assert.Equal(t, int32(target), report.Final)
	assert.Equal(t, 1, report.FinishedSets)
}
