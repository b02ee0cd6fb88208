// Package shm provides the two named primitives shared by the counter processes:
// a SharedCounter living in a named shared-memory segment and a named Mutex.
//
// The record inside the segment is never exposed on the handle. It is reached
// through a Guard, which exists only while the paired Mutex is held:
//
//	seg := shm.NewSegment(counter, mutex)
//	err := seg.With(func(g *shm.Guard) error {
//		rec, err := g.Load()
//		if err != nil {
//			return err
//		}
//		rec.Current++
//		return g.Store(rec)
//	})
//
// Named objects live under a directory (default /dev/shm) and persist until they
// are destroyed with DestroyCounter and DestroyMutex.
package shm
