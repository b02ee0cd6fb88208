package shm

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrResourceCreation marks failures creating a named object.
	ErrResourceCreation = errors.New("resource creation failed")
	// ErrResourceNotFound marks a named object that does not exist (yet).
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceAccess marks any other failure attaching to an existing object.
	ErrResourceAccess = errors.New("resource access failed")
	// ErrResourceDestroy marks failures removing a named object.
	ErrResourceDestroy = errors.New("resource destroy failed")
	// ErrGuardReleased is returned by a Guard used after Unlock.
	ErrGuardReleased = errors.New("guard already released")
	// ErrNotHeld is returned by Release on a handle that does not hold the lock.
	ErrNotHeld = errors.New("mutex not held")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("handle closed")
)

// ResourceError describes a failed operation on a named object.
// errors.Is matches both its Kind and the underlying cause.
type ResourceError struct {
	Op   string
	Name string
	Kind error
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Name, e.Kind, e.Err)
}

func (e *ResourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func creationError(name string, err error) error {
	return &ResourceError{Op: "create", Name: name, Kind: ErrResourceCreation, Err: err}
}

func openError(name string, err error) error {
	kind := ErrResourceAccess
	if errors.Is(err, fs.ErrNotExist) {
		kind = ErrResourceNotFound
	}
	return &ResourceError{Op: "open", Name: name, Kind: kind, Err: err}
}

func destroyError(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: %w", ErrResourceNotFound, err)
	}
	return &ResourceError{Op: "destroy", Name: name, Kind: ErrResourceDestroy, Err: err}
}
