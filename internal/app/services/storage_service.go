package services

import (
	"syscall"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
)

// StorageStatsProvider reports usage of the filesystem that holds the
// managed directories. The space gate consumes these numbers; tests
// substitute a fake.
type StorageStatsProvider interface {
	Stats(path string) (*entities.StorageStats, error)
}

// StatfsProvider reads real filesystem usage via statfs.
type StatfsProvider struct{}

// NewStatfsProvider creates a statfs-backed stats provider.
func NewStatfsProvider() *StatfsProvider {
	return &StatfsProvider{}
}

// Stats returns usage for the filesystem containing path.
func (p *StatfsProvider) Stats(path string) (*entities.StorageStats, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, errors.Wrap(err, "StatfsProvider.Stats", "statfs")
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	free := int64(stat.Bavail) * int64(stat.Bsize)

	used := 0.0
	if total > 0 {
		used = float64(total-free) / float64(total) * 100.0
	}

	return &entities.StorageStats{
		UsedPercent: used,
		TotalBytes:  total,
		FreeBytes:   free,
	}, nil
}
