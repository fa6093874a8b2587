package librarymodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/metadata"
	"github.com/mondominator/audiora/internal/utils"
)

// Watcher monitors the drop folder for new audio files and serializes them
// through a strictly FIFO, single-consumer import queue: exactly one file is
// being imported at any instant, so watch-folder imports never overlap.
type Watcher struct {
	logger            hclog.Logger
	watchDir          string
	registry          *PathRegistry
	extractor         metadata.Extractor
	organizer         *Organizer
	bus               *events.Bus
	settleInterval    time.Duration
	settleMaxAttempts int

	watcher *fsnotify.Watcher
	queue   chan string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a drop-folder watcher. Nothing is watched until Start.
func NewWatcher(logger hclog.Logger, watchDir string, registry *PathRegistry, extractor metadata.Extractor, organizer *Organizer, bus *events.Bus, settleInterval time.Duration, settleMaxAttempts int) *Watcher {
	return &Watcher{
		logger:            logger.Named("watcher"),
		watchDir:          watchDir,
		registry:          registry,
		extractor:         extractor,
		organizer:         organizer,
		bus:               bus,
		settleInterval:    settleInterval,
		settleMaxAttempts: settleMaxAttempts,
		queue:             make(chan string, 256),
	}
}

// Start begins watching. An unreadable watch root is the one fatal startup
// condition in this subsystem.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := os.ReadDir(w.watchDir); err != nil {
		return fmt.Errorf("watch directory is not readable: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsw

	if err := w.addRecursiveWatch(w.watchDir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.watchDir, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.watchEvents()
	go w.processQueue()

	w.logger.Info("watch folder monitoring started", "dir", w.watchDir)
	return nil
}

// Stop shuts the watcher down and waits for the in-flight import to finish.
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
	w.logger.Info("watch folder monitoring stopped")
	return nil
}

// addRecursiveWatch watches root and every subdirectory under it.
func (w *Watcher) addRecursiveWatch(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Debug("skipping unwatchable path", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch subdirectory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// watchEvents is the fsnotify loop. Creates and renames are queued; new
// directories get their own watch.
func (w *Watcher) watchEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Rename away or already gone; nothing to import.
		return
	}

	if info.IsDir() {
		if err := w.watcher.Add(event.Name); err != nil {
			w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
		}
		// Files copied in before the watch was added emit no events;
		// pick them up now.
		w.enqueueExisting(event.Name)
		return
	}

	w.enqueue(event.Name)
}

// enqueueExisting queues audio files already present under dir.
func (w *Watcher) enqueueExisting(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.enqueue(filepath.Join(dir, entry.Name()))
		}
	}
}

func (w *Watcher) enqueue(path string) {
	if !utils.IsAudioFile(path) || utils.IsTempFile(path) {
		return
	}
	select {
	case w.queue <- path:
		w.logger.Debug("queued file for import", "path", path)
	default:
		w.logger.Warn("import queue full, dropping event", "path", path)
	}
}

// processQueue is the single consumer: one file imports at a time, and one
// bad file never stalls the pipeline.
func (w *Watcher) processQueue() {
	defer w.wg.Done()

	for {
		select {
		case path := <-w.queue:
			if err := w.importFile(path); err != nil {
				w.logger.Warn("import failed, leaving file in place", "path", path, "error", err)
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// importFile runs the full pipeline for one dropped file: settle, extract,
// organize, register, announce.
func (w *Watcher) importFile(path string) error {
	size, err := utils.WaitForStableSize(path, w.settleInterval, w.settleMaxAttempts)
	if err != nil {
		return fmt.Errorf("file never settled: %w", err)
	}

	known, err := w.registry.Known(path)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	meta, err := w.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}

	newPath, err := w.organizer.Organize(path, meta)
	if err != nil {
		return err
	}

	book := &database.Audiobook{
		Path:           newPath,
		Title:          meta.Title,
		Author:         meta.Author,
		Narrator:       meta.Narrator,
		Series:         meta.Series,
		SeriesPosition: meta.SeriesPosition,
		Duration:       meta.Duration,
		SizeBytes:      size,
		Format:         meta.Format,
		Available:      true,
	}

	created, err := w.registry.Insert(book)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	w.logger.Info("imported from watch folder", "path", newPath, "title", book.Title, "author", book.Author)
	w.bus.Publish(events.NewEvent(events.EventLibraryUpdate, map[string]interface{}{
		"audiobook_id": book.ID,
	}))
	return nil
}
