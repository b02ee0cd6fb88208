package shm

import (
	"sync/atomic"
	"unsafe"
)

// Record is the layout shared by both processes: an int32 counter immediately
// followed by a one-byte finished flag, padded to 8 bytes like a C struct{int; bool}.
type Record struct {
	Current  int32
	Finished uint8
	_        [3]uint8
}

// RecordSize is the exact size of the shared segment.
const RecordSize = int(unsafe.Sizeof(Record{}))

// RecordAt overlays a Record on mem, which must be at least RecordSize bytes
// and come from a page-aligned mapping.
func RecordAt(mem []byte) *Record {
	if len(mem) < RecordSize {
		panic("shm: region smaller than record")
	}
	return (*Record)(unsafe.Pointer(&mem[0]))
}

// LoadCurrent loads the counter word. Cross-process ordering comes from the lock;
// the atomic keeps the load a single word access.
func (r *Record) LoadCurrent() int32 {
	return atomic.LoadInt32(&r.Current)
}

// StoreCurrent stores the counter word.
func (r *Record) StoreCurrent(v int32) {
	atomic.StoreInt32(&r.Current, v)
}

// IsFinished reports the finished flag.
func (r *Record) IsFinished() bool {
	return r.Finished != 0
}

// SetFinished writes the finished flag.
func (r *Record) SetFinished(v bool) {
	if v {
		r.Finished = 1
	} else {
		r.Finished = 0
	}
}
