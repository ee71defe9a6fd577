package diskmanager

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/platewatch/internal/errors"
)

// DiskSpaceInfo describes the filesystem holding the image directory.
type DiskSpaceInfo struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage returns usage of the filesystem containing path.
func GetDiskUsage(path string) (DiskSpaceInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategorySystem).
			Context("path", path).
			Build()
	}
	return DiskSpaceInfo{
		TotalBytes:  usage.Total,
		UsedBytes:   usage.Used,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// Usage returns disk usage for the image directory.
func (s *ImageStore) Usage() (DiskSpaceInfo, error) {
	return GetDiskUsage(s.baseDir)
}
