// Package api defines public API contracts for shm-counter.
package api

// Record is the value of the shared counter as seen inside a critical section.
type Record struct {
	Current  int32
	Finished bool
}

// CriticalSection gives access to the shared record while the lock is held.
// Load and Store fail once Unlock has been called.
type CriticalSection interface {
	Load() (Record, error)
	Store(Record) error
	Unlock() error
}

// Locker hands out critical sections over the shared record. Lock blocks until
// the caller holds the lock exclusively.
type Locker interface {
	Lock() (CriticalSection, error)
}
