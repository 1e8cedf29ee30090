package collector

import (
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// IsMainDisk reports whether a Linux block device name is a whole disk
// rather than a partition or virtual device. Counting partitions as well
// would double the I/O totals.
func IsMainDisk(name string) bool {
	switch {
	case strings.HasPrefix(name, "nvme"):
		return !strings.Contains(name, "p")
	case strings.HasPrefix(name, "xvd"):
		return len(name) == 4
	case strings.HasPrefix(name, "sd"), strings.HasPrefix(name, "vd"), strings.HasPrefix(name, "hd"):
		return len(name) == 3
	default:
		return false
	}
}

// sumDiskIO totals cumulative read and write bytes. When mainOnly is set,
// devices rejected by IsMainDisk are skipped.
func sumDiskIO(counters map[string]disk.IOCountersStat, mainOnly bool) (read, written uint64) {
	for name, c := range counters {
		if c.Name != "" {
			name = c.Name
		}
		if mainOnly && !IsMainDisk(name) {
			continue
		}
		read += c.ReadBytes
		written += c.WriteBytes
	}
	return read, written
}
