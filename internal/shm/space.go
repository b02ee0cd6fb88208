package shm

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/disk"
)

// CheckSpace fails when the filesystem holding dir has less than size bytes free.
// Directories gopsutil cannot stat are not rejected here; the create call reports them.
func CheckSpace(dir string, size uint64) error {
	if dir == "" {
		dir = DefaultDir
	}
	stat, err := disk.Usage(dir)
	if err != nil {
		return nil
	}
	if stat.Free < size {
		return fmt.Errorf("%s has %s free, need %s", dir,
			units.BytesSize(float64(stat.Free)), units.BytesSize(float64(size)))
	}
	return nil
}
