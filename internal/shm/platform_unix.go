//go:build unix

package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region.
//
// With Create set, an existing object of the same name is reused, resized and zeroed in
// place, so handles opened on it earlier see the new contents. Callers serialize Create
// with the object's lock. Without Create, the object must exist and already be sized to
// at least opts.Size.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ObjectPath(opts.Dir, opts.Name)
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat: %w", err)
		}
		// the creator truncates after open; a short file is still being set up
		if st.Size < int64(opts.Size) {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("%s is %d bytes, want %d: %w", path, st.Size, opts.Size, fs.ErrNotExist)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	if opts.Create {
		for i := range addr {
			addr[i] = 0
		}
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Path: path,
		Size: opts.Size,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region. The named object survives.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(region.Addr); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		errs = append(errs, fmt.Errorf("close fd %d: %w", region.Fd, err))
	}
	return errors.Join(errs...)
}

// Unlink removes a named object from the namespace. Existing mappings stay valid.
func Unlink(path string) error {
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}
