//go:build unix

package shm

import (
	"context"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PlatformTestSuite struct {
	suite.Suite
	dir string
}

func TestPlatformTestSuite(t *testing.T) {
	suite.Run(t, new(PlatformTestSuite))
}

func (s *PlatformTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *PlatformTestSuite) TestRecordLayout() {
	s.Equal(8, RecordSize)
	mem := make([]byte, RecordSize)
	rec := RecordAt(mem)
	rec.StoreCurrent(0x01020304)
	rec.SetFinished(true)
	s.Equal(int32(0x01020304), rec.LoadCurrent())
	s.True(rec.IsFinished())
	s.Equal(byte(1), mem[4])
	s.Panics(func() { RecordAt(make([]byte, 4)) })
}

func (s *PlatformTestSuite) TestCreateThenMapSharesMemory() {
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

func (s *PlatformTestSuite) TestCreateResetsStaleObject() {
	path := ObjectPath(s.dir, "seg")
	s.Require().NoError(os.WriteFile(path, []byte{9, 9, 9, 9, 1, 0, 0, 0}, 0o600))

	region, err := MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	defer UnmapRegion(region)

	rec := RecordAt(region.Addr)
	s.Equal(int32(0), rec.LoadCurrent())
	s.False(rec.IsFinished())
}

func (s *PlatformTestSuite) TestCreateKeepsEarlierMappingsAttached() {
	ctx := context.Background()
	path := ObjectPath(s.dir, "seg")
	s.Require().NoError(os.WriteFile(path, []byte{7, 0, 0, 0, 1, 0, 0, 0}, 0o600))

	early, err := MapRegion(ctx, MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize})
	s.Require().NoError(err)
	defer UnmapRegion(early)
	s.Equal(int32(7), RecordAt(early.Addr).LoadCurrent())

	created, err := MapRegion(ctx, MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	defer UnmapRegion(created)

	// zeroed in place, not replaced
	s.Equal(int32(0), RecordAt(early.Addr).LoadCurrent())
	s.False(RecordAt(early.Addr).IsFinished())
	RecordAt(created.Addr).StoreCurrent(3)
	s.Equal(int32(3), RecordAt(early.Addr).LoadCurrent())
}

func (s *PlatformTestSuite) TestOpenMissingOrShort() {
	_, err := MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "missing", Size: RecordSize})
	s.ErrorIs(err, fs.ErrNotExist)

	s.Require().NoError(os.WriteFile(ObjectPath(s.dir, "short"), nil, 0o600))
	_, err = MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "short", Size: RecordSize})
	s.ErrorIs(err, fs.ErrNotExist)
}

func (s *PlatformTestSuite) TestUnmapTwice() {
	region, err := MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	s.NoError(UnmapRegion(region))
	s.NoError(UnmapRegion(region))
	s.NoError(UnmapRegion(nil))
}

func (s *PlatformTestSuite) TestLockFilesExcludeEachOther() {
	path := LockPath(s.dir, "sem")
	a, err := OpenLockFile(path, true)
	s.Require().NoError(err)
	defer CloseFile(a)
	b, err := OpenLockFile(path, false)
	s.Require().NoError(err)
	defer CloseFile(b)

	s.Require().NoError(LockFile(a))
	s.ErrorIs(TryLockFile(b), ErrWouldBlock)
	s.Require().NoError(UnlockFile(a))
	s.NoError(TryLockFile(b))
	s.NoError(UnlockFile(b))
}

func (s *PlatformTestSuite) TestOpenLockFileWithoutCreate() {
	_, err := OpenLockFile(LockPath(s.dir, "nope"), false)
	s.ErrorIs(err, fs.ErrNotExist)
}

func (s *PlatformTestSuite) TestUnlink() {
	region, err := MapRegion(context.Background(), MapOptions{Dir: s.dir, Name: "seg", Size: RecordSize, Create: true})
	s.Require().NoError(err)
	defer UnmapRegion(region)

	s.NoError(Unlink(region.Path))
	s.ErrorIs(Unlink(region.Path), fs.ErrNotExist)
	// the mapping outlives the name
	RecordAt(region.Addr).StoreCurrent(7)
	s.Equal(int32(7), RecordAt(region.Addr).LoadCurrent())
}

func (s *PlatformTestSuite) TestMonotonicNanos() {
	a := MonotonicNanos()
	b := MonotonicNanos()
	s.Positive(a)
	s.GreaterOrEqual(b, a)
}

func (s *PlatformTestSuite) TestCheckSpace() {
	s.NoError(CheckSpace(s.dir, 1))
	s.Error(CheckSpace(s.dir, ^uint64(0)))
}
