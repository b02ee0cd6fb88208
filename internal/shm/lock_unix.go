//go:build unix

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryLockFile when another handle holds the lock.
var ErrWouldBlock = errors.New("lock is held elsewhere")

// OpenLockFile opens (and with create, creates) the file backing a named mutex.
// Locks taken through separate opens of the same path exclude each other, in the
// same process as well as across processes.
func OpenLockFile(path string, create bool) (int, error) {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0o644)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

// LockFile blocks until fd holds the exclusive lock.
func LockFile(fd int) error {
	for {
		err := unix.Flock(fd, unix.LOCK_EX)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("flock: %w", err)
		}
	}
}

// TryLockFile takes the exclusive lock without blocking.
func TryLockFile(fd int) error {
	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrWouldBlock
	}
	if err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

// UnlockFile releases the lock held through fd.
func UnlockFile(fd int) error {
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("flock unlock: %w", err)
	}
	return nil
}

// CloseFile closes a lock file descriptor, dropping any lock held through it.
func CloseFile(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd %d: %w", fd, err)
	}
	return nil
}

// MonotonicNanos reads CLOCK_MONOTONIC, which is shared by every process on the host.
func MonotonicNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}
