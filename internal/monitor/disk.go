package monitor

import (
	"github.com/shirou/gopsutil/v4/disk"
)

// DiskMonitor reports usage of the filesystems holding the given paths,
// typically the persistence data directory.
type DiskMonitor struct {
	paths []string
}

func NewDiskMonitor(paths ...string) *DiskMonitor {
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	return &DiskMonitor{paths: paths}
}

func (m *DiskMonitor) Name() string {
	return "disk"
}

func (m *DiskMonitor) Collect() (any, error) {
	var disks []DiskState

	for _, path := range m.paths {
		usage, err := disk.Usage(path)
		if err != nil {
			// Skip paths that are not accessible
			continue
		}
		disks = append(disks, DiskState{
			Path:         path,
			UsedBytes:    usage.Used,
			TotalBytes:   usage.Total,
			UsagePercent: usage.UsedPercent,
		})
	}

	return disks, nil
}
