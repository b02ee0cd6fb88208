//go:build windows

package shm

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/suite"
)

type WindowsPlatformTestSuite struct {
	suite.Suite
	dir string
}

func TestWindowsPlatformTestSuite(t *testing.T) {
	suite.Run(t, new(WindowsPlatformTestSuite))
}

func (s *WindowsPlatformTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *WindowsPlatformTestSuite) TestCreateThenMapSharesMemory() {
	ctx := context.Background()
	created, err := MapRegion(ctx, MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	defer UnmapRegion(created)

	opened, err := MapRegion(ctx, MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize})
	s.Require().NoError(err)
	defer UnmapRegion(opened)

	RecordAt(created.Addr).StoreCurrent(42)
	s.Equal(int32(42), RecordAt(opened.Addr).LoadCurrent())
}

func (s *WindowsPlatformTestSuite) TestCreateAgainResetsInPlace() {
	ctx := context.Background()
	first, err := MapRegion(ctx, MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	defer UnmapRegion(first)
	RecordAt(first.Addr).StoreCurrent(7)
	RecordAt(first.Addr).SetFinished(true)

	second, err := MapRegion(ctx, MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	defer UnmapRegion(second)

	s.Equal(int32(0), RecordAt(first.Addr).LoadCurrent())
	s.False(RecordAt(first.Addr).IsFinished())
}

func (s *WindowsPlatformTestSuite) TestOpenMissing() {
	_, err := MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "missing", Size: RecordSize})
	s.ErrorIs(err, fs.ErrNotExist)
	_, err = OpenLockFile(LockPath(s.dir, "missing"), false)
	s.ErrorIs(err, fs.ErrNotExist)
}

func (s *WindowsPlatformTestSuite) TestUnmapTwice() {
	region, err := MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	s.NoError(UnmapRegion(region))
	s.NoError(UnmapRegion(region))
	s.NoError(Unlink(region.Path))
}

func (s *WindowsPlatformTestSuite) TestSemaphoresExcludeEachOther() {
	path := LockPath(s.dir, "sem")
	a, err := OpenLockFile(path, true)
	s.Require().NoError(err)
	defer CloseFile(a)
	b, err := OpenLockFile(path, false)
	s.Require().NoError(err)
	defer CloseFile(b)

	s.Require().NoError(LockFile(a))
	s.ErrorIs(TryLockFile(b), ErrWouldBlock)
	// no thread affinity: the other handle may give it back
	s.Require().NoError(UnlockFile(b))
	s.NoError(TryLockFile(b))
	s.NoError(UnlockFile(a))
	s.Error(UnlockFile(a), "count is capped at one")
}

func (s *WindowsPlatformTestSuite) TestMonotonicNanos() {
	a := MonotonicNanos()
	b := MonotonicNanos()
	s.Positive(a)
	s.GreaterOrEqual(b, a)
}
