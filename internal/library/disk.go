package library

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the disk footprint of the library's files.
type Usage struct {
	DatabaseBytes int64 `json:"database_bytes"`
	IndexBytes    int64 `json:"index_bytes"`
	PreviewBytes  int64 `json:"preview_bytes"`
}

// Total returns the sum of all parts.
func (u Usage) Total() int64 {
	return u.DatabaseBytes + u.IndexBytes + u.PreviewBytes
}

// MeasureUsage sizes the database file (with its WAL side files), the text index directory
// and the preview directory.
func MeasureUsage(databasePath, indexPath, previewDir string) (Usage, error) {
	var u Usage
	var err error
	if databasePath != "" {
		if u.DatabaseBytes, err = DiskUsageBytes(databasePath, databasePath+"-wal", databasePath+"-shm"); err != nil {
			return Usage{}, err
		}
	}
	if u.IndexBytes, err = DiskUsageBytes(indexPath); err != nil {
		return Usage{}, err
	}
	if u.PreviewBytes, err = DiskUsageBytes(previewDir); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths and empty strings are skipped; errors during the walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
