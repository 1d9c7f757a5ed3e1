// Package main is the entry point for the nobreak-mcp server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/config"
	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/entity"
	"github.com/jamesprial/nobreak-mcp/internal/httpapi"
	"github.com/jamesprial/nobreak-mcp/internal/integration"
	"github.com/jamesprial/nobreak-mcp/internal/metrics"
	"github.com/jamesprial/nobreak-mcp/internal/publish"
	"github.com/jamesprial/nobreak-mcp/internal/safety"
	"github.com/jamesprial/nobreak-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/server"
)

const (
	defaultConfigPath = "/config/config.yaml"
	version           = "1.0.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run serves until a signal arrives or the HTTP server fails. Deferred
// closers run on every return path.
func run() error {
	cfg := loadConfig()
	config.ApplyEnvOverrides(cfg)

	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		log.Printf("warning: could not generate auth token: %v; running without authentication", err)
	} else if tokenBefore == "" {
		log.Printf("generated auth token (set NOBREAK_MCP_AUTH_TOKEN to persist): %s", token)
	}

	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		l, closeAudit, err := safety.OpenAuditLog(cfg.Audit.LogPath)
		if err != nil {
			log.Printf("warning: %v; audit logging disabled", err)
		} else {
			auditLogger = l
			defer closeAudit()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporter := metrics.NewExporter()
	registry := entity.NewMemoryRegistry()

	var hub *integration.Hub
	stream := httpapi.NewStream(func() (coordinator.Update, bool) {
		if hub == nil {
			return coordinator.Update{}, false
		}
		return hub.Coordinator.LastUpdate()
	})
	exporter.AddGaugeFunc("stream_clients", "Connected websocket stream clients.",
		func() float64 { return float64(stream.Clients()) })
	exporter.AddCounterFunc("stream_dropped_total", "Stream messages skipped for clients that fell behind.",
		func() float64 { return float64(stream.Dropped()) })

	opts := []integration.Option{
		integration.WithObserver(exporter),
		integration.WithObserver(stream),
	}

	if cfg.Redis.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pub, closePub, err := publish.Dial(dialCtx, cfg.Redis)
		cancel()
		if err != nil {
			log.Printf("warning: %v; snapshot publishing disabled", err)
		} else {
			log.Printf("publishing snapshots to redis %s channel %q", cfg.Redis.Addr, pub.Channel())
			opts = append(opts, integration.WithObserver(pub))
			defer closePub()
			exportPublisher(exporter, pub)
		}
	}

	hub, err = integration.Setup(ctx, cfg, registry, opts...)
	if err != nil {
		return fmt.Errorf("nobreak integration: %w", err)
	}
	// Runs before closePub, so the publisher sees no update after it closes.
	defer hub.Unload()

	mcpServer := server.NewMCPServer(
		"nobreak-mcp",
		version,
		server.WithToolCapabilities(false),
	)
	confirm := safety.NewConfirmationTracker(integration.DestructiveTools)
	exporter.AddGaugeFunc("confirmations_pending", "Unexpired confirmation tokens.",
		func() float64 { return float64(confirm.Pending()) })
	registrations := integration.Tools(hub, confirm, auditLogger)
	tools.RegisterAll(mcpServer, registrations)
	log.Printf("registered %d tools: %s", len(registrations), strings.Join(tools.Names(registrations), ", "))

	router := httpapi.NewRouter(httpapi.Options{
		Source:    hub.Coordinator,
		Stream:    stream,
		Metrics:   exporter.Handler(),
		MCP:       server.NewStreamableHTTPServer(mcpServer),
		AuthToken: cfg.Server.AuthToken,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("nobreak-mcp listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Printf("HTTP server error: %v", serveErr)
	}
	log.Println("shutting down...")

	stream.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
	log.Println("server stopped")
	return serveErr
}

// exportPublisher exposes the publisher's delivery counters.
func exportPublisher(e *metrics.Exporter, p *publish.RedisPublisher) {
	e.AddCounterFunc("publish_published_total", "Snapshots published to redis.", func() float64 {
		n, _, _ := p.Counts()
		return float64(n)
	})
	e.AddCounterFunc("publish_dropped_total", "Snapshots dropped because the publish queue was full.", func() float64 {
		_, n, _ := p.Counts()
		return float64(n)
	})
	e.AddCounterFunc("publish_failed_total", "Snapshots redis rejected.", func() float64 {
		_, _, n := p.Counts()
		return float64(n)
	})
}

// loadConfig reads the file named by NOBREAK_MCP_CONFIG_PATH, or
// /config/config.yaml. If it cannot be read, DefaultConfig is returned and
// the endpoint must come from the environment.
func loadConfig() *config.Config {
	path := os.Getenv("NOBREAK_MCP_CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Printf("could not load config from %q (%v), using defaults", path, err)
		return config.DefaultConfig()
	}

	log.Printf("loaded config from %q", path)
	return cfg
}
