package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the metadata database and the local index
// artifacts.
type Usage struct {
	Database  int64 `json:"database_bytes"`
	Artifacts int64 `json:"artifact_bytes"`
}

// Total returns the combined size in bytes.
func (u Usage) Total() int64 {
	return u.Database + u.Artifacts
}

// DiskUsage measures the SQLite database at databasePath, including its WAL
// and shared-memory files, and every file under artifactDir. Missing paths
// count as zero and an empty path is skipped.
func DiskUsage(databasePath, artifactDir string) (Usage, error) {
	var u Usage
	if databasePath != "" {
		for _, p := range []string{databasePath, databasePath + "-wal", databasePath + "-shm"} {
			n, err := fileSize(p)
			if err != nil {
				return Usage{}, err
			}
			u.Database += n
		}
	}
	if artifactDir != "" {
		n, err := dirSize(artifactDir)
		if err != nil {
			return Usage{}, err
		}
		u.Artifacts = n
	}
	return u, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
