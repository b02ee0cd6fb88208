//go:build windows

package shm

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ErrWouldBlock is returned by TryLockFile when another handle holds the lock.
var ErrWouldBlock = errors.New("lock is held elsewhere")

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procOpenFileMappingW          = modkernel32.NewProc("OpenFileMappingW")
	procCreateSemaphoreW          = modkernel32.NewProc("CreateSemaphoreW")
	procOpenSemaphoreW            = modkernel32.NewProc("OpenSemaphoreW")
	procReleaseSemaphore          = modkernel32.NewProc("ReleaseSemaphore")
	procQueryPerformanceCounter   = modkernel32.NewProc("QueryPerformanceCounter")
	procQueryPerformanceFrequency = modkernel32.NewProc("QueryPerformanceFrequency")
)

// kernelName maps an object path onto the session-local kernel namespace.
// Objects under DefaultDir keep their bare name; other directories get a short
// prefix so that separate directories stay separate.
func kernelName(path string) (*uint16, string, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".lock")
	name := `Local\` + base
	if dir := filepath.Dir(path); dir != filepath.Clean(DefaultDir) {
		name = fmt.Sprintf(`Local\%08x.%s`, crc32.ChecksumIEEE([]byte(dir)), base)
	}
	p, err := windows.UTF16PtrFromString(name)
	return p, name, err
}

// MapRegion maps or creates a named file mapping backed by the paging file.
//
// With Create set, an existing mapping of the same name is reused and zeroed in
// place. Callers serialize Create with the object's lock. Without Create, the
// mapping must already exist.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ObjectPath(opts.Dir, opts.Name)
	namep, name, err := kernelName(path)
	if err != nil {
		return nil, fmt.Errorf("name %s: %w", path, err)
	}

	var h windows.Handle
	if opts.Create {
		h, err = windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(opts.Size), namep)
		if h == 0 {
			return nil, fmt.Errorf("create mapping %s: %w", name, err)
		}
	} else {
		r, _, e := procOpenFileMappingW.Call(
			uintptr(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE), 0, uintptr(unsafe.Pointer(namep)))
		if r == 0 {
			return nil, fmt.Errorf("open mapping %s: %w", name, e)
		}
		h = windows.Handle(r)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(opts.Size))
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, fmt.Errorf("map view %s: %w", name, err)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), opts.Size)
	if opts.Create {
		for i := range mem {
			mem[i] = 0
		}
	}
	return &MappedRegion{
		Addr: mem,
		Fd:   int(h),
		Path: path,
		Size: opts.Size,
	}, nil
}

// UnmapRegion unmaps the view and closes the mapping handle.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	var errs []error
	if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(unsafe.SliceData(region.Addr)))); err != nil {
		errs = append(errs, fmt.Errorf("unmap view: %w", err))
	}
	region.Addr = nil
	if err := windows.CloseHandle(windows.Handle(region.Fd)); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}

// Unlink is a no-op: kernel objects disappear with their last handle.
func Unlink(path string) error { return nil }

// OpenLockFile opens (and with create, creates) the named semaphore backing a
// mutex. Its count is capped at one and it has no owning thread, so any goroutine
// may release it.
func OpenLockFile(path string, create bool) (int, error) {
	namep, name, err := kernelName(path)
	if err != nil {
		return -1, fmt.Errorf("name %s: %w", path, err)
	}
	var r uintptr
	var e error
	if create {
		r, _, e = procCreateSemaphoreW.Call(0, 1, 1, uintptr(unsafe.Pointer(namep)))
	} else {
		r, _, e = procOpenSemaphoreW.Call(uintptr(windows.SEMAPHORE_ALL_ACCESS), 0, uintptr(unsafe.Pointer(namep)))
	}
	if r == 0 {
		return -1, fmt.Errorf("open semaphore %s: %w", name, e)
	}
	return int(r), nil
}

// LockFile blocks until the semaphore is taken.
func LockFile(fd int) error {
	ev, err := windows.WaitForSingleObject(windows.Handle(fd), windows.INFINITE)
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	if ev != windows.WAIT_OBJECT_0 {
		return fmt.Errorf("wait: unexpected result %#x", ev)
	}
	return nil
}

// TryLockFile takes the semaphore or fails with ErrWouldBlock.
func TryLockFile(fd int) error {
	ev, err := windows.WaitForSingleObject(windows.Handle(fd), 0)
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	switch ev {
	case windows.WAIT_OBJECT_0:
		return nil
	case uint32(windows.WAIT_TIMEOUT):
		return ErrWouldBlock
	default:
		return fmt.Errorf("wait: unexpected result %#x", ev)
	}
}

// UnlockFile gives the semaphore back.
func UnlockFile(fd int) error {
	r, _, e := procReleaseSemaphore.Call(uintptr(fd), 1, 0)
	if r == 0 {
		return fmt.Errorf("release semaphore: %w", e)
	}
	return nil
}

// CloseFile closes a semaphore handle.
func CloseFile(fd int) error {
	if err := windows.CloseHandle(windows.Handle(fd)); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// MonotonicNanos reads the performance counter, which is shared by all processes
// on the machine.
func MonotonicNanos() int64 {
	var count, freq int64
	if r, _, _ := procQueryPerformanceFrequency.Call(uintptr(unsafe.Pointer(&freq))); r == 0 || freq == 0 {
		return 0
	}
	if r, _, _ := procQueryPerformanceCounter.Call(uintptr(unsafe.Pointer(&count))); r == 0 {
		return 0
	}
	return count/freq*1e9 + count%freq*1e9/freq
}
