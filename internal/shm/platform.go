// Package shm contains the platform-specific pieces behind pkg/shm: mapping named
// shared-memory regions, the record layout inside them, and named lock files.
package shm

import (
	"path/filepath"
)

// DefaultDir is where named objects live when no directory is configured.
const DefaultDir = "/dev/shm"

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Path string
	Size int
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Dir    string
	Name   string
	Size   int
	Create bool
}

// ObjectPath returns the filesystem path of a named object.
func ObjectPath(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name)
}

// LockPath returns the path of the lock file backing a named mutex.
func LockPath(dir, name string) string {
	return ObjectPath(dir, name+".lock")
}
