package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/topocrawl/topocrawl/internal/api"
	"github.com/topocrawl/topocrawl/internal/auth"
	"github.com/topocrawl/topocrawl/internal/channels"
	"github.com/topocrawl/topocrawl/internal/config"
	"github.com/topocrawl/topocrawl/internal/crawler"
	"github.com/topocrawl/topocrawl/internal/credentials"
	"github.com/topocrawl/topocrawl/internal/probe"
	"github.com/topocrawl/topocrawl/internal/store"
	"github.com/topocrawl/topocrawl/internal/templates"
	"github.com/topocrawl/topocrawl/internal/transport"
	"github.com/topocrawl/topocrawl/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid server configuration: %v", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg.Logging)
	logger.Info("Starting topocrawl server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"transport", cfg.Transport.Kind,
		"max_hops", cfg.Crawl.MaxHops,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize authentication service
	authService, err := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.EncryptionKey,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	// Pick the run store: Postgres when configured, in-memory otherwise
	var runStore store.Store
	if cfg.Database.Enabled {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.GetDSN(), logger)
		if err != nil {
			log.Fatalf("Failed to initialize database store: %v", err)
		}
		runStore = pg
	} else {
		logger.Info("Database disabled, crawl runs are kept in memory")
		runStore = store.NewMemoryStore()
	}
	defer runStore.Close()

	// Load parse templates (builtin set plus optional override directory)
	registry := templates.NewRegistry(logger)
	if err := registry.Load(ctx, cfg.Templates.Directory); err != nil {
		log.Fatalf("Failed to load parse templates: %v", err)
	}

	// Load device credentials, decrypting sealed fields with the auth service
	credService := credentials.NewService(authService)
	credStore, err := credService.LoadFile(cfg.Credentials.File)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	logger.Info("Credentials loaded", "count", credStore.Len(), "file", cfg.Credentials.File)

	// Initialize reachability prober
	prober := probe.New(probe.Config{
		ICMPEnabled: cfg.Probe.ICMPEnabled,
		Privileged:  cfg.Probe.Privileged,
		Packets:     cfg.Probe.Packets,
		Port:        cfg.Transport.Port,
		Timeout:     cfg.Probe.GetTimeout(),
	}, logger)

	// Initialize the device transport
	var client transport.Client
	switch strings.ToLower(cfg.Transport.Kind) {
	case "winrm":
		client = transport.NewWinRMClient(cfg.Transport.Port, cfg.Transport.UseHTTPS, cfg.Transport.Domain, cfg.Crawl.GetConnectTimeout(), logger)
	default:
		client = transport.NewSSHClient(cfg.Transport.Port, cfg.Crawl.GetConnectTimeout(), logger)
	}

	// Optional SNMP identification for devices that reject every credential
	var identifier crawler.Identifier
	if cfg.SNMP.Enabled {
		identifier = probe.NewSNMPIdentifier(probe.SNMPConfig{
			Enabled:   true,
			Port:      cfg.SNMP.Port,
			Community: cfg.SNMP.Community,
			Timeout:   cfg.SNMP.GetTimeout(),
		})
	}

	crawlOpts := crawler.Options{
		MaxHops:        cfg.Crawl.MaxHops,
		CommandTimeout: cfg.Crawl.GetCommandTimeout(),
		Commands:       cfg.Crawl.Commands,
		Preference:     cfg.Crawl.ProtocolPreference,
	}
	engine := crawler.NewEngine(prober, client, credStore, registry, identifier, crawlOpts, logger)

	// Initialize EventChannels
	events := channels.NewEventChannels(channels.EventChannelsConfig{
		RequestBufferSize:   cfg.Events.RequestBufferSize,
		ProgressBufferSize:  cfg.Events.ProgressBufferSize,
		CompletedBufferSize: cfg.Events.CompletedBufferSize,
	})
	defer events.Close()

	// Websocket hub fans crawl events out to connected clients
	hub := api.NewHub(logger)
	go hub.Run(ctx)

	channels.StartProgressConsumer(ctx, events, hub, logger)
	channels.StartCompletionConsumer(ctx, events, hub, logger)

	// Start the crawl worker
	crawlWorker := worker.NewWorker(events, runStore, engine, logger)
	go func() {
		if err := crawlWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Crawl worker error", "error", err)
		}
	}()

	// Create API router
	router := api.NewRouter(&api.Dependencies{
		Config:      cfg,
		Auth:        authService,
		Store:       runStore,
		Events:      events,
		Registry:    registry,
		Credentials: credStore,
		CrawlOpts:   crawlOpts,
		Hub:         hub,
		Logger:      logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr, "tls", cfg.TLS.Enabled)
		var err error
		if cfg.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel the main context to signal the worker and hub to stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "file":
		if cfg.FilePath != "" {
			f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				log.Printf("Cannot open log file %s, falling back to stdout: %v", cfg.FilePath, err)
			} else {
				out = f
			}
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
