// Package librarymodule owns the audiobook catalog: the path registry, the
// recursive library scanner, and the watch-folder importer.
package librarymodule

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/config"
	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/logger"
	"github.com/mondominator/audiora/internal/metadata"
)

// Module wires the scanner, watcher, and organizer into the application.
type Module struct {
	db        *gorm.DB
	bus       *events.Bus
	locker    DirectoryLocker
	extractor metadata.Extractor
	hclogger  hclog.Logger
	cfg       *config.LibraryConfig

	registry  *PathRegistry
	scanner   *Scanner
	organizer *Organizer
	watcher   *Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewModule creates the library module.
func NewModule(db *gorm.DB, bus *events.Bus, locker DirectoryLocker, extractor metadata.Extractor, hclogger hclog.Logger, cfg *config.LibraryConfig) *Module {
	return &Module{
		db:        db,
		bus:       bus,
		locker:    locker,
		extractor: extractor,
		hclogger:  hclogger,
		cfg:       cfg,
	}
}

// ID returns the module identifier
func (m *Module) ID() string { return "system.library" }

// Name returns the module display name
func (m *Module) Name() string { return "Library" }

// Core reports that this is a core module
func (m *Module) Core() bool { return true }

// Migrate runs the catalog schema migration.
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.Audiobook{})
}

// Init builds the registry, scanner, organizer, and watcher.
func (m *Module) Init() error {
	m.registry = NewPathRegistry(m.db)
	m.scanner = NewScanner(m.hclogger, m.registry, m.extractor, m.locker, m.bus, m.cfg.ThrottleEnabled)
	m.organizer = NewOrganizer(m.cfg.RootDir)
	m.watcher = NewWatcher(m.hclogger, m.cfg.WatchDir, m.registry, m.extractor, m.organizer, m.bus,
		m.cfg.SettleInterval, m.cfg.SettleMaxAttempts)
	return nil
}

// Scanner exposes the scanner to collaborators.
func (m *Module) Scanner() *Scanner { return m.scanner }

// Registry exposes the path registry to collaborators.
func (m *Module) Registry() *PathRegistry { return m.registry }

// Start launches the watch-folder importer and the interval rescan loop.
func (m *Module) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.watcher.Start(m.ctx); err != nil {
		return err
	}

	if m.cfg.AutoScanEnabled && m.cfg.ScanInterval > 0 {
		m.wg.Add(1)
		go m.scanLoop()
	}
	return nil
}

// Stop halts the watcher and the rescan loop.
func (m *Module) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	err := m.watcher.Stop()
	m.wg.Wait()
	return err
}

// scanLoop triggers a full scan once at startup and then on a fixed interval.
func (m *Module) scanLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	if _, err := m.scanner.Scan(m.ctx, m.cfg.RootDir); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("startup library scan failed: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := m.scanner.Scan(m.ctx, m.cfg.RootDir); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduled library scan failed: %v", err)
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// RegisterRoutes registers the library API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/library")
	{
		api.POST("/scan", m.triggerScan)
		api.GET("/scan/stats", m.getScanStats)
		api.GET("", m.listAudiobooks)
		api.GET("/:id", m.getAudiobook)
	}
}

// triggerScan kicks off a scan in the background; progress surfaces as
// library.update events.
func (m *Module) triggerScan(c *gin.Context) {
	go func() {
		if _, err := m.scanner.Scan(m.ctx, m.cfg.RootDir); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("manual library scan failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "scan started"})
}

func (m *Module) getScanStats(c *gin.Context) {
	stats := m.scanner.LastStats()
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{"status": "no scan completed yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (m *Module) listAudiobooks(c *gin.Context) {
	var books []database.Audiobook
	if err := m.db.Where("available = ?", true).Order("author, title").Find(&books).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audiobooks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audiobooks": books})
}

func (m *Module) getAudiobook(c *gin.Context) {
	var book database.Audiobook
	if err := m.db.First(&book, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "audiobook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audiobook"})
		return
	}
	c.JSON(http.StatusOK, book)
}
