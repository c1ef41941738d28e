package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Start prunes dir once and then on every interval until ctx is done.
func Start(ctx context.Context, dir string, interval, maxAge time.Duration, logger *zap.Logger) {
	logger.Info("report cache cleanup scheduled",
		zap.String("dir", dir),
		zap.Duration("interval", interval),
		zap.Duration("max_age", maxAge),
	)
	PruneReportCache(dir, maxAge, time.Now(), logger)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				PruneReportCache(dir, maxAge, now, logger)
			}
		}
	}()
}

// PruneReportCache removes cached report files older than maxAge and
// returns how many were removed. Leftover partial downloads are pruned too.
func PruneReportCache(dir string, maxAge time.Duration, now time.Time, logger *zap.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read report cache for cleanup", zap.String("dir", dir), zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".part")) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= maxAge {
			continue
		}

		fullPath := filepath.Join(dir, name)
		if err := os.Remove(fullPath); err != nil {
			logger.Warn("failed to remove cached report", zap.String("path", fullPath), zap.Error(err))
			continue
		}
		removed++
		logger.Debug("removed cached report", zap.String("path", fullPath), zap.Duration("age", age))
	}
	return removed
}
