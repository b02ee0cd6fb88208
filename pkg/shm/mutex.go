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
	"sync"

	internalshm "github.com/srediag/shm-counter/internal/shm"
)

// MutexOptions names a mutex.
type MutexOptions struct {
	// Dir is the directory holding named objects, /dev/shm when empty.
	Dir string
	// Name identifies the mutex across processes.
	Name string
}

// Mutex is a named binary lock shared between processes.
//
// Every participant needs its own handle: two handles on the same name exclude
// each other even inside one process, while a single handle is not meant to be
// acquired from several goroutines at once.
type Mutex struct {
	name string
	path string

	mu     sync.Mutex
	fd     int
	held   bool
	closed bool
}

// CreateMutex creates the named mutex, or reuses an existing one, in the unlocked state.
func CreateMutex(opts MutexOptions) (*Mutex, error) {
	path := internalshm.LockPath(opts.Dir, opts.Name)
	fd, err := internalshm.OpenLockFile(path, true)
	if err != nil {
		return nil, creationError(opts.Name, err)
	}
	return &Mutex{name: opts.Name, path: path, fd: fd}, nil
}

// OpenMutex attaches to an existing named mutex.
func OpenMutex(opts MutexOptions) (*Mutex, error) {
	path := internalshm.LockPath(opts.Dir, opts.Name)
	fd, err := internalshm.OpenLockFile(path, false)
	if err != nil {
		return nil, openError(opts.Name, err)
	}
	return &Mutex{name: opts.Name, path: path, fd: fd}, nil
}

// Name returns the name the mutex was created or opened with.
func (m *Mutex) Name() string {
	return m.name
}

// Acquire blocks until the lock is held. There is no timeout.
func (m *Mutex) Acquire() error {
	fd, err := m.descriptor()
	if err != nil {
		return err
	}
	if err := internalshm.LockFile(fd); err != nil {
		return err
	}
	m.mu.Lock()
	m.held = true
	m.mu.Unlock()
	return nil
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (m *Mutex) TryAcquire() (bool, error) {
	fd, err := m.descriptor()
	if err != nil {
		return false, err
	}
	switch err := internalshm.TryLockFile(fd); err {
	case nil:
	case internalshm.ErrWouldBlock:
		return false, nil
	default:
		return false, err
	}
	m.mu.Lock()
	m.held = true
	m.mu.Unlock()
	return true, nil
}

// Release gives the lock up.
func (m *Mutex) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.held {
		return ErrNotHeld
	}
	if err := internalshm.UnlockFile(m.fd); err != nil {
		return err
	}
	m.held = false
	return nil
}

// Held reports whether this handle currently holds the lock.
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Close detaches the handle, dropping the lock if it is still held.
// The named mutex itself survives.
func (m *Mutex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.held = false
	return internalshm.CloseFile(m.fd)
}

func (m *Mutex) descriptor() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return -1, ErrClosed
	}
	return m.fd, nil
}

// DestroyMutex removes the named mutex. Destroying a missing mutex fails with an
// error matching both ErrResourceDestroy and ErrResourceNotFound.
func DestroyMutex(dir, name string) error {
	if err := internalshm.Unlink(internalshm.LockPath(dir, name)); err != nil {
		return destroyError(name, err)
	}
	return nil
}
