//go:build unix

package shm

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-counter/api"
)

type SegmentTestSuite struct {
	suite.Suite
	dir string
}

func TestSegmentTestSuite(t *testing.T) {
	suite.Run(t, new(SegmentTestSuite))
}

func (s *SegmentTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *SegmentTestSuite) create() *Segment {
	m, err := CreateMutex(MutexOptions{Dir: s.dir, Name: "sem"})
	s.Require().NoError(err)
	c, err := CreateCounter(context.Background(), CounterOptions{Dir: s.dir, Name: "mem"})
	s.Require().NoError(err)
	seg := NewSegment(c, m)
	s.T().Cleanup(func() { _ = seg.Close() })
	return seg
}

func (s *SegmentTestSuite) open() *Segment {
	m, err := OpenMutex(MutexOptions{Dir: s.dir, Name: "sem"})
	s.Require().NoError(err)
	c, err := OpenCounter(context.Background(), CounterOptions{Dir: s.dir, Name: "mem"})
	s.Require().NoError(err)
	seg := NewSegment(c, m)
	s.T().Cleanup(func() { _ = seg.Close() })
	return seg
}

func (s *SegmentTestSuite) TestCreatedRecordIsZero() {
	seg := s.create()
	g, err := seg.Acquire()
	s.Require().NoError(err)
	rec, err := g.Load()
	s.NoError(err)
	s.Equal(api.Record{}, rec)
	s.NoError(g.Unlock())
}

func (s *SegmentTestSuite) TestWritesAreVisibleToOtherHandle() {
	a := s.create()
	b := s.open()

	s.Require().NoError(a.With(func(g *Guard) error {
		return g.Store(api.Record{Current: 17, Finished: true})
	}))
	s.Require().NoError(b.With(func(g *Guard) error {
		rec, err := g.Load()
		s.Equal(api.Record{Current: 17, Finished: true}, rec)
		return err
	}))
}

func (s *SegmentTestSuite) TestGuardStopsWorkingAfterUnlock() {
	seg := s.create()
	g, err := seg.Acquire()
	s.Require().NoError(err)
	s.Require().NoError(g.Unlock())

	_, err = g.Load()
	s.ErrorIs(err, ErrGuardReleased)
	s.ErrorIs(g.Store(api.Record{Current: 1}), ErrGuardReleased)
	s.ErrorIs(g.Unlock(), ErrGuardReleased)
	s.False(seg.Mutex.Held())
}

func (s *SegmentTestSuite) TestStoreRejectsNegative() {
	seg := s.create()
	s.Error(seg.With(func(g *Guard) error {
		return g.Store(api.Record{Current: -1})
	}))
}

func (s *SegmentTestSuite) TestTryAcquireWhileHeldElsewhere() {
	a := s.create()
	b := s.open()

	g, err := a.Acquire()
	s.Require().NoError(err)

	busy, err := b.TryAcquire()
	s.NoError(err)
	s.Nil(busy)

	s.Require().NoError(g.Unlock())
	got, err := b.TryAcquire()
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.NoError(got.Unlock())
}

func (s *SegmentTestSuite) TestWithReleasesOnError() {
	seg := s.create()
	boom := errors.New("boom")
	s.ErrorIs(seg.With(func(*Guard) error { return boom }), boom)
	s.False(seg.Mutex.Held())
}

func (s *SegmentTestSuite) TestWithToleratesEarlyUnlock() {
	seg := s.create()
	s.NoError(seg.With(func(g *Guard) error { return g.Unlock() }))
}

func (s *SegmentTestSuite) TestUseAfterClose() {
	seg := s.create()
	s.Require().NoError(seg.Close())
	_, err := seg.Acquire()
	s.ErrorIs(err, ErrClosed)
	s.NoError(seg.Close())
}

func (s *SegmentTestSuite) TestDestroyRemovesBothObjects() {
	seg := s.create()
	s.Require().NoError(Destroy(s.dir, "mem", "sem"))
	_, err := os.Stat(seg.Counter.Path())
	s.True(os.IsNotExist(err))

	// an attached handle keeps working after the names are gone
	s.NoError(seg.With(func(g *Guard) error {
		return g.Store(api.Record{Current: 3})
	}))

	err = Destroy(s.dir, "mem", "sem")
	s.ErrorIs(err, ErrResourceDestroy)
	s.ErrorIs(err, ErrResourceNotFound)
}

func (s *SegmentTestSuite) TestOpenBeforeCreate() {
	_, err := OpenMutex(MutexOptions{Dir: s.dir, Name: "sem"})
	s.ErrorIs(err, ErrResourceNotFound)
	_, err = OpenCounter(context.Background(), CounterOptions{Dir: s.dir, Name: "mem"})
	s.ErrorIs(err, ErrResourceNotFound)

	var re *ResourceError
	s.Require().ErrorAs(err, &re)
	s.Equal("open", re.Op)
	s.Equal("mem", re.Name)
}

func (s *SegmentTestSuite) TestOpenHalfCreatedSegment() {
	f, err := os.Create(s.dir + "/mem")
	s.Require().NoError(err)
	s.Require().NoError(f.Close())

	_, err = OpenCounter(context.Background(), CounterOptions{Dir: s.dir, Name: "mem"})
	s.ErrorIs(err, ErrResourceNotFound)
}

func (s *SegmentTestSuite) TestCreateInMissingDirectory() {
	_, err := CreateCounter(context.Background(), CounterOptions{Dir: s.dir + "/nope", Name: "mem"})
	s.ErrorIs(err, ErrResourceCreation)
	_, err = CreateMutex(MutexOptions{Dir: s.dir + "/nope", Name: "sem"})
	s.ErrorIs(err, ErrResourceCreation)
}

func TestMutexRelease(t *testing.T) {
	m, err := CreateMutex(MutexOptions{Dir: t.TempDir(), Name: "sem"})
	require.NoError(t, err)
	defer m.Close()

	assert.ErrorIs(t, m.Release(), ErrNotHeld)
	require.NoError(t, m.Acquire())
	assert.True(t, m.Held())
	assert.NoError(t, m.Release())
	assert.False(t, m.Held())

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Release(), ErrClosed)
	_, err = m.TryAcquire()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMutexExcludesAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	seg := func() *Segment {
		m, err := CreateMutex(MutexOptions{Dir: dir, Name: "sem"})
		require.NoError(t, err)
		c, err := OpenCounter(context.Background(), CounterOptions{Dir: dir, Name: "mem"})
		require.NoError(t, err)
		s := NewSegment(c, m)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	c, err := CreateCounter(context.Background(), CounterOptions{Dir: dir, Name: "mem"})
	require.NoError(t, err)
	defer c.Close()

	const workers, rounds = 4, 200
	var wg sync.WaitGroup
	for range workers {
		s := seg()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				err := s.With(func(g *Guard) error {
					rec, err := g.Load()
					if err != nil {
						return err
					}
					rec.Current++
					return g.Store(rec)
				})
				if !assert.NoError(t, err) {
					return
				}
			}
		}()
	}
	wg.Wait()

	final := seg()
	require.NoError(t, final.With(func(g *Guard) error {
		rec, err := g.Load()
		assert.Equal(t, int32(workers*rounds), rec.Current)
		return err
	}))
}
