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

package shm

import (
	"errors"
	"fmt"

	"github.com/srediag/shm-counter/api"
)

// Segment pairs a SharedCounter with the Mutex guarding it.
type Segment struct {
	Counter *SharedCounter
	Mutex   *Mutex
}

// NewSegment pairs counter with mutex.
func NewSegment(counter *SharedCounter, mutex *Mutex) *Segment {
	return &Segment{Counter: counter, Mutex: mutex}
}

// Acquire blocks until the mutex is held and returns the guard for the record.
func (s *Segment) Acquire() (*Guard, error) {
	if err := s.Mutex.Acquire(); err != nil {
		return nil, err
	}
	return &Guard{seg: s}, nil
}

// TryAcquire returns a guard if the mutex was free, or nil if it is held elsewhere.
func (s *Segment) TryAcquire() (*Guard, error) {
	ok, err := s.Mutex.TryAcquire()
	if err != nil || !ok {
		return nil, err
	}
	return &Guard{seg: s}, nil
}

// Lock implements api.Locker.
func (s *Segment) Lock() (api.CriticalSection, error) {
	g, err := s.Acquire()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// With runs fn while holding the mutex. The guard is released when fn returns.
func (s *Segment) With(fn func(g *Guard) error) error {
	g, err := s.Acquire()
	if err != nil {
		return err
	}
	ferr := fn(g)
	if uerr := g.Unlock(); uerr != nil && !errors.Is(uerr, ErrGuardReleased) {
		return errors.Join(ferr, uerr)
	}
	return ferr
}

// Close detaches both handles.
func (s *Segment) Close() error {
	return errors.Join(s.Counter.Close(), s.Mutex.Close())
}

// Guard is the proof that the mutex is held. It is the only way to read or
// write the shared record, and it stops working once unlocked.
type Guard struct {
	seg      *Segment
	released bool
}

var _ api.CriticalSection = (*Guard)(nil)

// Load reads the record.
func (g *Guard) Load() (api.Record, error) {
	if g.released {
		return api.Record{}, ErrGuardReleased
	}
	rec, err := g.seg.Counter.record()
	if err != nil {
		return api.Record{}, err
	}
	return api.Record{Current: rec.LoadCurrent(), Finished: rec.IsFinished()}, nil
}

// Store writes the record.
func (g *Guard) Store(r api.Record) error {
	if g.released {
		return ErrGuardReleased
	}
	if r.Current < 0 {
		return fmt.Errorf("negative counter value %d", r.Current)
	}
	rec, err := g.seg.Counter.record()
	if err != nil {
		return err
	}
	rec.StoreCurrent(r.Current)
	rec.SetFinished(r.Finished)
	return nil
}

// Unlock releases the mutex and invalidates the guard.
func (g *Guard) Unlock() error {
	if g.released {
		return ErrGuardReleased
	}
	g.released = true
	return g.seg.Mutex.Release()
}
