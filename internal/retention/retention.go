// Package retention implements bounded oldest-first file eviction per
// cadence directory.
package retention

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/haldane-labs/backupd/internal/wire"
)

// Limits maps a cadence to the maximum number of files its directory may
// retain.
type Limits map[wire.Cadence]int

type fileInfo struct {
	path    string
	created time.Time
}

// Cleanup enforces the retention limit for the directory that metadata
// belongs to. A missing directory is not an error (a backup that was
// never written has nothing to prune). Per-entry stat/remove failures are
// logged and do not abort the rest of the pass. It returns the number of
// files actually removed, for the caller to report to metrics.
func Cleanup(log *slog.Logger, backupsRoot string, limits Limits, meta wire.Metadata) int {
	dir := meta.BackupDirectory(backupsRoot)
	limit := limits[meta.Cadence]

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.Warn("retention: directory does not exist, nothing to prune", "dir", dir)
		return 0
	}
	if err != nil {
		log.Error("retention: failed to list directory", "dir", dir, "error", err)
		return 0
	}

	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Warn("retention: skipping unreadable entry", "dir", dir, "name", e.Name(), "error", err)
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(dir, e.Name()),
			created: info.ModTime(),
		})
	}

	if len(files) <= limit {
		return 0
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].created.Equal(files[j].created) {
			return files[i].path < files[j].path
		}
		return files[i].created.Before(files[j].created)
	})

	toRemove := files[:len(files)-limit]
	removed := 0
	for _, f := range toRemove {
		if err := os.Remove(f.path); err != nil {
			log.Error("retention: failed to remove file", "path", f.path, "error", err)
			continue
		}
		log.Info("retention: removed file", "path", f.path, "cadence", meta.Cadence)
		removed++
	}
	return removed
}
