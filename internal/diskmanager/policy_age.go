// policy_age.go - age based retention of stored images
package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/platewatch/internal/logger"
)

// CleanupOlderThan removes date directories whose whole day lies before
// cutoff and returns the number of directories removed. Directories that do
// not parse as dates are left alone.
func (s *ImageStore) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, s.ioError(err, s.baseDir, "readdir")
	}

	cutoffDay := cutoff.In(s.loc).Format(dateDirLayout)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			s.log.Info("image cleanup interrupted", logger.Int("removed", removed))
			return removed, nil
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := time.ParseInLocation(dateDirLayout, entry.Name(), s.loc); err != nil {
			continue
		}
		// the layout sorts lexically by date
		if entry.Name() >= cutoffDay {
			continue
		}

		dir := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("failed to remove image directory", logger.String("path", dir), logger.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("removed expired image directories",
			logger.Int("count", removed),
			logger.String("cutoff", cutoffDay))
	}
	return removed, nil
}
