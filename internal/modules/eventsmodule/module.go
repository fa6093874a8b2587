// Package eventsmodule exposes the broadcast hub over HTTP: a websocket
// stream for live events and a stats endpoint for hub activity.
package eventsmodule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/events"
)

const writeTimeout = 10 * time.Second

// Module streams hub events to websocket clients.
type Module struct {
	bus      *events.Bus
	logger   hclog.Logger
	upgrader websocket.Upgrader
}

// NewModule creates the events module.
func NewModule(bus *events.Bus, logger hclog.Logger) *Module {
	return &Module{
		bus:    bus,
		logger: logger.Named("events-api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Browsers connect from the web UI's origin; auth is handled upstream.
				return true
			},
		},
	}
}

// ID returns the module identifier
func (m *Module) ID() string { return "system.events" }

// Name returns the module display name
func (m *Module) Name() string { return "Events" }

// Core reports that this is a core module
func (m *Module) Core() bool { return true }

// Migrate has nothing to do: events are never persisted.
func (m *Module) Migrate(db *gorm.DB) error { return nil }

// Init has nothing to build; the bus is constructed at startup.
func (m *Module) Init() error { return nil }

// RegisterRoutes registers the events API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/events")
	{
		api.GET("/ws", m.handleWebSocket)
		api.GET("/stats", m.getStats)
	}
}

// handleWebSocket upgrades the connection and pumps hub events to the client
// until either side disconnects. Each connection gets its own subscriber, so
// a slow client only drops its own events.
func (m *Module) handleWebSocket(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := m.bus.Subscribe()
	defer m.bus.Unsubscribe(sub.ID)

	m.logger.Debug("websocket client connected", "subscriberID", sub.ID)

	// Clients send no meaningful data; the read loop only detects disconnects.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readerDone:
			m.logger.Debug("websocket client disconnected", "subscriberID", sub.ID)
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				m.logger.Debug("websocket write failed, dropping client",
					"subscriberID", sub.ID, "error", err)
				return
			}
		}
	}
}

func (m *Module) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, m.bus.Stats())
}
