// Package playbackmodule tracks active playback sessions in memory. Sessions
// are keyed per (user, audiobook) pair, refreshed by client heartbeats, and
// reaped once heartbeats stop.
package playbackmodule

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/config"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/utils"
)

// Module wires the session manager and reaper into the application.
type Module struct {
	bus     *events.Bus
	logger  hclog.Logger
	cfg     *config.PlaybackConfig
	manager *SessionManager
	reaper  *Reaper
}

// NewModule creates the playback module.
func NewModule(bus *events.Bus, logger hclog.Logger, cfg *config.PlaybackConfig) *Module {
	return &Module{
		bus:    bus,
		logger: logger,
		cfg:    cfg,
	}
}

// ID returns the module identifier
func (m *Module) ID() string { return "system.playback" }

// Name returns the module display name
func (m *Module) Name() string { return "Playback" }

// Core reports that this is a core module
func (m *Module) Core() bool { return true }

// Migrate has nothing to do: sessions live in process memory only.
func (m *Module) Migrate(db *gorm.DB) error { return nil }

// Init builds the session manager and its reaper.
func (m *Module) Init() error {
	m.manager = NewSessionManager(m.logger, m.bus, m.cfg.SessionTimeout)
	m.reaper = NewReaper(m.logger, m.manager, m.cfg.ReaperInterval)
	return nil
}

// Manager exposes the session manager to collaborators.
func (m *Module) Manager() *SessionManager { return m.manager }

// Start launches the session reaper.
func (m *Module) Start(ctx context.Context) error {
	return m.reaper.Start(ctx)
}

// Stop halts the session reaper.
func (m *Module) Stop() error {
	m.reaper.Stop()
	return nil
}

// RegisterRoutes registers the session API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/sessions")
	{
		api.POST("", m.upsertSession)
		api.GET("", m.listSessions)
		api.GET("/:id", m.getSession)
		api.GET("/user/:id", m.getUserSessions)
		api.DELETE("/:id", m.stopSession)
	}
}

type upsertSessionRequest struct {
	UserID      uint   `json:"user_id" binding:"required"`
	AudiobookID uint   `json:"audiobook_id" binding:"required"`
	Position    int    `json:"position"`
	State       string `json:"state" binding:"required"`
	Platform    string `json:"platform"`
}

func (m *Module) upsertSession(c *gin.Context) {
	var req upsertSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, audiobook_id and state are required"})
		return
	}

	state := SessionState(req.State)
	if !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be playing, paused or stopped"})
		return
	}
	if req.Position < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position must not be negative"})
		return
	}

	client := ClientInfo{
		Platform:  req.Platform,
		UserAgent: c.Request.UserAgent(),
		IPAddress: utils.RealClientIP(c.Request),
	}
	sessionID := m.manager.Upsert(req.UserID, req.AudiobookID, req.Position, state, client)
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "state": string(state)})
}

func (m *Module) getSession(c *gin.Context) {
	session, err := m.manager.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (m *Module) listSessions(c *gin.Context) {
	sessions := m.manager.GetAll()
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (m *Module) getUserSessions(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	sessions := m.manager.GetForUser(uint(id))
	if sessions == nil {
		sessions = []*PlaybackSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (m *Module) stopSession(c *gin.Context) {
	m.manager.Stop(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
