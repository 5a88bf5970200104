package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/catbridged/pkg/config"
	"github.com/dougsko/catbridged/pkg/engine"
	"github.com/dougsko/catbridged/pkg/gateway"
	"github.com/dougsko/catbridged/pkg/logging"
	"github.com/dougsko/catbridged/pkg/storage"
)

// Daemon ties the engine, the serial gateway and the web interface
// together.
type Daemon struct {
	config *config.Config
	wg     sync.WaitGroup

	gateway   *gateway.Gateway
	store     *storage.EventStore
	engine    *engine.Engine
	hub       *statusHub
	webServer *http.Server
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	gw, err := gateway.Open(cfg.Radio.Device, cfg.Radio.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("failed to open radio: %w", err)
	}

	store, err := storage.NewEventStore(cfg.Storage.DatabasePath, cfg.Storage.MaxEvents)
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	daemon := &Daemon{
		config:  cfg,
		gateway: gw,
		store:   store,
		engine:  engine.NewEngine(cfg, gw, store),
		hub:     newStatusHub(),
	}

	daemon.engine.OnStatusChange(daemon.hub.broadcastStatus)

	if err := daemon.setupWebServer(); err != nil {
		store.Close()
		gw.Close()
		return nil, fmt.Errorf("failed to setup web server: %w", err)
	}

	return daemon, nil
}

// Start starts the daemon
func (d *Daemon) Start() error {
	if err := d.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	d.hub.start()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logging.Infof("daemon", "starting web server on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("daemon", "web server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the daemon gracefully
func (d *Daemon) Stop() error {
	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Errorf("daemon", "web server shutdown error: %v", err)
		}
	}

	d.hub.stop()

	if err := d.engine.Stop(); err != nil {
		logging.Errorf("daemon", "engine shutdown error: %v", err)
	}

	if err := d.store.Close(); err != nil {
		logging.Errorf("daemon", "event store close error: %v", err)
	}

	if err := d.gateway.Close(); err != nil {
		logging.Errorf("daemon", "serial close error: %v", err)
	}

	d.wg.Wait()
	return nil
}

// setupWebServer initializes the web server and routes
func (d *Daemon) setupWebServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.PUT("/radio/frequency", d.handleSetFrequency)
		api.PUT("/radio/mode", d.handleSetMode)
		api.GET("/events", d.handleGetEvents)
		api.POST("/update/suspend", d.handleSuspend)
		api.POST("/update/resume", d.handleResume)
	}

	router.GET("/ws", d.handleStatusWebSocket)

	addr := fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port)
	d.webServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return nil
}
