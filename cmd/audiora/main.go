package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mondominator/audiora/internal/config"
	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/logger"
	"github.com/mondominator/audiora/internal/metadata"
	"github.com/mondominator/audiora/internal/middleware"
	"github.com/mondominator/audiora/internal/modules/conversionmodule"
	"github.com/mondominator/audiora/internal/modules/eventsmodule"
	"github.com/mondominator/audiora/internal/modules/librarymodule"
	"github.com/mondominator/audiora/internal/modules/modulemanager"
	"github.com/mondominator/audiora/internal/modules/playbackmodule"
	"github.com/mondominator/audiora/internal/server"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		logger.Error("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("AUDIORA_CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./audiora.yaml"); err == nil {
			configPath = "./audiora.yaml"
		}
	}
	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if configPath != "" {
		logger.Info("Configuration loaded from: %s", configPath)
	} else {
		logger.Info("Using default configuration")
	}
	cfg := config.Get()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	hclogger := hclog.New(&hclog.LoggerOptions{
		Name:  "audiora",
		Level: hclog.Info,
	})

	bus := events.NewBus(hclogger, cfg.Events.SubscriberBuffer, cfg.Events.RecentEvents)
	defer bus.Close()

	// The lock table is shared: conversion jobs hold directory locks and the
	// scanner skips locked directories.
	locks := conversionmodule.NewLockTable()

	registry := modulemanager.NewRegistry()
	registry.Register(librarymodule.NewModule(db, bus, locks, metadata.NewTagExtractor(), hclogger, &cfg.Library))
	registry.Register(conversionmodule.NewModule(db, bus, locks, hclogger, &cfg.Conversion))
	registry.Register(playbackmodule.NewModule(bus, hclogger, &cfg.Playback))
	registry.Register(eventsmodule.NewModule(bus, hclogger))

	if err := registry.LoadAll(db); err != nil {
		return fmt.Errorf("failed to load modules: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.StartAll(ctx); err != nil {
		registry.StopAll()
		return fmt.Errorf("failed to start modules: %w", err)
	}

	mw := []gin.HandlerFunc{middleware.RequestLogger()}
	if cfg.Server.EnableCORS {
		mw = append(mw, middleware.CORS())
	}
	router := server.BuildRouter(registry, mw...)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received %s, shutting down", sig)
	case err := <-errCh:
		registry.StopAll()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}

	cancel()
	registry.StopAll()

	logger.Info("Shutdown complete")
	return nil
}
