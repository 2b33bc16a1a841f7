package storage

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// DirUsage walks a directory tree and sums regular file sizes.
func DirUsage(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// A file deleted mid-walk is not an error worth failing on.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// VolumeStats describes the filesystem backing the storage path.
type VolumeStats struct {
	TotalBytes  uint64  `json:"totalBytes"`
	FreeBytes   uint64  `json:"freeBytes"`
	UsedBytes   uint64  `json:"usedBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

// VolumeUsage reports usage of the filesystem containing path.
func VolumeUsage(path string) (VolumeStats, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return VolumeStats{}, err
	}
	return VolumeStats{
		TotalBytes:  u.Total,
		FreeBytes:   u.Free,
		UsedBytes:   u.Used,
		UsedPercent: u.UsedPercent,
	}, nil
}
