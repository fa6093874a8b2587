// Package conversionmodule runs format-conversion jobs against catalog
// entries, one active job per audiobook, with advisory directory locking so
// conversions never race the scanner.
package conversionmodule

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/config"
	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
)

// Module wires the lock table and job manager into the application.
type Module struct {
	db      *gorm.DB
	bus     *events.Bus
	locks   *LockTable
	manager *JobManager
	logger  hclog.Logger
	cfg     *config.ConversionConfig
}

// NewModule creates the conversion module. The lock table is shared with the
// library module's scanner, which treats locked directories as not-ready.
func NewModule(db *gorm.DB, bus *events.Bus, locks *LockTable, logger hclog.Logger, cfg *config.ConversionConfig) *Module {
	return &Module{
		db:     db,
		bus:    bus,
		locks:  locks,
		logger: logger,
		cfg:    cfg,
	}
}

// ID returns the module identifier
func (m *Module) ID() string { return "system.conversion" }

// Name returns the module display name
func (m *Module) Name() string { return "Conversion" }

// Core reports that this is a core module
func (m *Module) Core() bool { return true }

// Migrate has nothing to do: jobs and locks are process memory only.
func (m *Module) Migrate(db *gorm.DB) error { return nil }

// Init builds the job manager.
func (m *Module) Init() error {
	m.manager = NewJobManager(m.logger, m.db, m.locks, m.bus,
		&FFmpegConverter{}, m.cfg.TargetFormat, m.cfg.RetainFinished, m.cfg.ProgressInterval)
	return nil
}

// Manager exposes the job manager to collaborators.
func (m *Module) Manager() *JobManager { return m.manager }

// RegisterRoutes registers the conversion API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/conversions")
	{
		api.POST("", m.startConversion)
		api.GET("", m.listActiveJobs)
		api.GET("/:id", m.getJob)
		api.DELETE("/:id", m.cancelJob)
		api.GET("/audiobook/:id", m.getActiveJobForAudiobook)
	}
}

type startConversionRequest struct {
	AudiobookID uint `json:"audiobook_id" binding:"required"`
}

func (m *Module) startConversion(c *gin.Context) {
	var req startConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audiobook_id is required"})
		return
	}

	var book database.Audiobook
	if err := m.db.First(&book, req.AudiobookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "audiobook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audiobook"})
		return
	}

	// The job outlives the request, so it must not inherit the request context.
	jobID, err := m.manager.Start(context.Background(), &book)
	switch {
	case errors.Is(err, ErrJobActive):
		c.JSON(http.StatusConflict, gin.H{"error": "a conversion is already active for this audiobook"})
	case errors.Is(err, ErrDirectoryLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "the audiobook's directory is locked by another job"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
	}
}

func (m *Module) getJob(c *gin.Context) {
	job, err := m.manager.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversion job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (m *Module) listActiveJobs(c *gin.Context) {
	jobs := m.manager.ActiveJobs()
	if jobs == nil {
		jobs = []*Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (m *Module) cancelJob(c *gin.Context) {
	if err := m.manager.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversion job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancellation requested"})
}

func (m *Module) getActiveJobForAudiobook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audiobook id"})
		return
	}

	job := m.manager.ActiveJobForAudiobook(uint(id))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active conversion for this audiobook"})
		return
	}
	c.JSON(http.StatusOK, job)
}
