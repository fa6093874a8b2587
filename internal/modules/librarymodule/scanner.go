package librarymodule

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/metadata"
	"github.com/mondominator/audiora/internal/utils"
)

// DirectoryLocker is the view of the conversion module's lock table the
// scanner needs: it must treat a locked directory as not-ready and skip it.
type DirectoryLocker interface {
	IsLocked(directory string) bool
}

// ScanStats summarizes one scan pass.
type ScanStats struct {
	FilesSeen     int64         `json:"files_seen"`
	FilesImported int64         `json:"files_imported"`
	FilesSkipped  int64         `json:"files_skipped"`
	FilesErrored  int64         `json:"files_errored"`
	Duration      time.Duration `json:"duration"`
}

// Scanner walks the library tree and registers unseen audio files. Scans are
// idempotent: a second pass over an unchanged tree imports nothing.
type Scanner struct {
	logger    hclog.Logger
	registry  *PathRegistry
	extractor metadata.Extractor
	locker    DirectoryLocker
	bus       *events.Bus
	throttle  *loadThrottle

	scanning atomic.Bool

	statsMu   sync.Mutex
	lastStats *ScanStats
}

// NewScanner creates a library scanner. locker may not be nil; the scanner
// consults it before every import.
func NewScanner(logger hclog.Logger, registry *PathRegistry, extractor metadata.Extractor, locker DirectoryLocker, bus *events.Bus, throttleEnabled bool) *Scanner {
	var throttle *loadThrottle
	if throttleEnabled {
		throttle = newLoadThrottle()
	}
	return &Scanner{
		logger:    logger.Named("scanner"),
		registry:  registry,
		extractor: extractor,
		locker:    locker,
		bus:       bus,
		throttle:  throttle,
	}
}

// Scan walks root recursively and imports every recognized, unregistered
// audio file whose directory is not locked. Single-file failures are logged
// and skipped; only a walk-level failure aborts the scan. Overlapping Scan
// calls collapse: a second call while one is running returns immediately.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanStats, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		s.logger.Debug("scan already in progress, skipping")
		return &ScanStats{}, nil
	}
	defer s.scanning.Store(false)

	start := time.Now()
	stats := &ScanStats{}
	s.logger.Info("library scan started", "root", root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable subtree: log and move on, never fatal.
			s.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			s.throttle.pause()
			return nil
		}

		if !utils.IsAudioFile(path) || utils.IsTempFile(path) {
			return nil
		}
		stats.FilesSeen++

		s.scanFile(path, stats)
		return nil
	})
	stats.Duration = time.Since(start)

	s.statsMu.Lock()
	s.lastStats = stats
	s.statsMu.Unlock()

	if err != nil {
		s.logger.Error("library scan aborted", "error", err)
		return stats, err
	}

	s.logger.Info("library scan finished",
		"seen", stats.FilesSeen,
		"imported", stats.FilesImported,
		"skipped", stats.FilesSkipped,
		"errored", stats.FilesErrored,
		"duration", stats.Duration)
	return stats, nil
}

// LastStats returns the stats of the most recently finished scan, or nil when
// no scan has completed yet.
func (s *Scanner) LastStats() *ScanStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.lastStats == nil {
		return nil
	}
	copied := *s.lastStats
	return &copied
}

// scanFile imports a single file if it is unseen and its directory is free.
func (s *Scanner) scanFile(path string, stats *ScanStats) {
	if s.locker.IsLocked(filepath.Dir(path)) {
		s.logger.Debug("directory locked, deferring file", "path", path)
		stats.FilesSkipped++
		return
	}

	known, err := s.registry.Known(path)
	if err != nil {
		s.logger.Error("path registry check failed", "path", path, "error", err)
		stats.FilesErrored++
		return
	}
	if known {
		stats.FilesSkipped++
		return
	}

	meta, err := s.extractor.Extract(path)
	if err != nil {
		// Leave un-imported for manual attention; the walk continues.
		s.logger.Warn("metadata extraction failed, leaving file un-imported", "path", path, "error", err)
		stats.FilesErrored++
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		s.logger.Warn("file vanished during scan", "path", path, "error", err)
		stats.FilesErrored++
		return
	}

	book := &database.Audiobook{
		Path:           path,
		Title:          meta.Title,
		Author:         meta.Author,
		Narrator:       meta.Narrator,
		Series:         meta.Series,
		SeriesPosition: meta.SeriesPosition,
		Duration:       meta.Duration,
		SizeBytes:      info.Size(),
		Format:         meta.Format,
		Available:      true,
	}

	created, err := s.registry.Insert(book)
	if err != nil {
		s.logger.Error("failed to insert catalog entry", "path", path, "error", err)
		stats.FilesErrored++
		return
	}
	if !created {
		// Another actor imported it between our check and insert.
		stats.FilesSkipped++
		return
	}

	stats.FilesImported++
	s.logger.Info("imported audiobook", "path", path, "title", book.Title, "author", book.Author)
	s.bus.Publish(events.NewEvent(events.EventLibraryUpdate, map[string]interface{}{
		"audiobook_id": book.ID,
	}))
}
