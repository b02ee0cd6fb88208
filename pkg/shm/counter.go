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
	"context"
	"errors"
	"sync"

	internalshm "github.com/srediag/shm-counter/internal/shm"
)

// RecordSize is the size in bytes of the shared segment.
const RecordSize = internalshm.RecordSize

// CounterOptions names a shared counter segment.
type CounterOptions struct {
	// Dir is the directory holding named objects, /dev/shm when empty.
	Dir string
	// Name identifies the segment across processes.
	Name string
}

// SharedCounter is a handle on the named segment holding the counter record.
// The record is only reachable through a Guard from a Segment.
type SharedCounter struct {
	name string

	mu     sync.Mutex
	region *internalshm.MappedRegion
	rec    *internalshm.Record
}

// CreateCounter creates the named segment, zero-initialized. A segment left
// behind by an earlier run is reused and reset in place, so peers already mapped
// to it follow along. Callers hold the mutex while creating.
func CreateCounter(ctx context.Context, opts CounterOptions) (*SharedCounter, error) {
	if err := internalshm.CheckSpace(opts.Dir, uint64(RecordSize)); err != nil {
		return nil, creationError(opts.Name, err)
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Dir:    opts.Dir,
		Name:   opts.Name,
		Size:   RecordSize,
		Create: true,
	})
	if err != nil {
		return nil, creationError(opts.Name, err)
	}
	return newSharedCounter(opts.Name, region), nil
}

// OpenCounter attaches to an existing segment. A segment that is missing, or still
// being sized by its creator, yields an error matching ErrResourceNotFound.
func OpenCounter(ctx context.Context, opts CounterOptions) (*SharedCounter, error) {
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Dir:  opts.Dir,
		Name: opts.Name,
		Size: RecordSize,
	})
	if err != nil {
		return nil, openError(opts.Name, err)
	}
	return newSharedCounter(opts.Name, region), nil
}

func newSharedCounter(name string, region *internalshm.MappedRegion) *SharedCounter {
	return &SharedCounter{
		name:   name,
		region: region,
		rec:    internalshm.RecordAt(region.Addr),
	}
}

// Name returns the segment name.
func (c *SharedCounter) Name() string {
	return c.name
}

// Path returns where the segment lives on the filesystem.
func (c *SharedCounter) Path() string {
	return c.region.Path
}

func (c *SharedCounter) record() (*internalshm.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return nil, ErrClosed
	}
	return c.rec, nil
}

// Close unmaps the segment. The named segment survives.
func (c *SharedCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return nil
	}
	c.rec = nil
	return internalshm.UnmapRegion(c.region)
}

// DestroyCounter removes the named segment. Processes still attached keep their
// mapping. Destroying a missing segment fails with an error matching both
// ErrResourceDestroy and ErrResourceNotFound.
func DestroyCounter(dir, name string) error {
	if err := internalshm.Unlink(internalshm.ObjectPath(dir, name)); err != nil {
		return destroyError(name, err)
	}
	return nil
}

// Destroy removes both named objects of a counter/mutex pair.
func Destroy(dir, counterName, mutexName string) error {
	return errors.Join(DestroyCounter(dir, counterName), DestroyMutex(dir, mutexName))
}
