// Package modulemanager wires the application's modules together: migration,
// initialization, route registration, and shutdown in a defined order.
package modulemanager

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/logger"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that need to register routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// BackgroundRunner is an optional interface for modules that own long-running
// goroutines (scanner interval, watcher, session reaper).
type BackgroundRunner interface {
	Start(ctx context.Context) error
	Stop() error
}

// Registry manages module registration and initialization. It is
// constructor-owned rather than process-global so tests can build isolated
// instances.
type Registry struct {
	modules     []Module
	initialized bool
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a module. Registration order is initialization order.
func (r *Registry) Register(m Module) {
	if r.initialized {
		logger.Warn("Module %s (%s) registered after initialization", m.Name(), m.ID())
	}
	r.modules = append(r.modules, m)
	logger.Info("Module registered: %s (%s)", m.Name(), m.ID())
}

// LoadAll migrates and initializes all registered modules in order.
func (r *Registry) LoadAll(db *gorm.DB) error {
	if r.initialized {
		logger.Warn("Module system already initialized")
		return nil
	}

	logger.Info("Loading %d modules...", len(r.modules))
	for i, module := range r.modules {
		logger.Info("[%d/%d] Initializing module: %s", i+1, len(r.modules), module.Name())

		if err := module.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}
		if err := module.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}
	}

	r.initialized = true
	return nil
}

// StartAll starts background work for modules that have any.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, module := range r.modules {
		if runner, ok := module.(BackgroundRunner); ok {
			if err := runner.Start(ctx); err != nil {
				return fmt.Errorf("failed to start %s: %w", module.Name(), err)
			}
			logger.Info("Module started: %s", module.Name())
		}
	}
	return nil
}

// StopAll stops background work in reverse registration order.
func (r *Registry) StopAll() {
	for i := len(r.modules) - 1; i >= 0; i-- {
		if runner, ok := r.modules[i].(BackgroundRunner); ok {
			if err := runner.Stop(); err != nil {
				logger.Error("Failed to stop %s: %v", r.modules[i].Name(), err)
			}
		}
	}
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func (r *Registry) RegisterRoutes(router *gin.Engine) {
	for _, module := range r.modules {
		if registrar, ok := module.(RouteRegistrar); ok {
			logger.Info("Registering routes for module: %s", module.Name())
			registrar.RegisterRoutes(router)
		}
	}
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}
