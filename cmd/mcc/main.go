// Package main runs the mirror control core service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirror-control/mcc/internal/api"
	"github.com/mirror-control/mcc/internal/audit"
	"github.com/mirror-control/mcc/internal/auth"
	"github.com/mirror-control/mcc/internal/bridge"
	"github.com/mirror-control/mcc/internal/config"
	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/link/fake"
	"github.com/mirror-control/mcc/internal/link/serial"
	"github.com/mirror-control/mcc/internal/metrics"
	"github.com/mirror-control/mcc/internal/notify"
	"github.com/mirror-control/mcc/internal/session"
	"github.com/mirror-control/mcc/internal/telemetry"
)

// eventQueueSize bounds the events waiting for the sinks.
const eventQueueSize = 256

func main() {
	log.Printf("Starting mirror control core v%s", api.Version)

	// Step 1: Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully")

	// Step 2: Initialize audit logger
	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}
	log.Println("Audit logger initialized")

	// Step 3: Metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// Step 4: Device link and session
	deviceLink, err := newLink(cfg.Link)
	if err != nil {
		log.Fatalf("Failed to create device link: %v", err)
	}
	opts := []session.Option{
		session.WithAuditLogger(auditLogger),
		session.WithMetrics(m),
	}
	if cfg.Files.FlatFile != "" {
		opts = append(opts, session.WithFlatFile(cfg.Files.FlatFile))
	}
	sess := session.New(deviceLink, cfg.Timing, opts...)
	log.Printf("Session created over %s link", cfg.Link.Kind)

	// Step 5: Telemetry hub and event fan-out
	telemetryHub := telemetry.NewHub(cfg.Timing, func() interface{} { return sess.Status() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinks := []notify.Sink{telemetryHub, m, notify.SinkFunc(auditLogger.LogEvent)}
	if cfg.MQTT.Enabled {
		client, err := bridge.NewClient(cfg.MQTT)
		if err != nil {
			log.Printf("MQTT bridge disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			publisher := bridge.NewPublisher(client, cfg.MQTT.TopicPrefix, eventQueueSize)
			go publisher.Start(ctx)
			sinks = append(sinks, publisher)
		}
	}
	dispatcher := notify.NewDispatcher(eventQueueSize, sinks...)
	dispatcher.SetDropRecorder(m)
	dispatcher.Start(ctx)
	sess.RegisterObserver(dispatcher)
	log.Printf("Event dispatcher started with %d sinks", len(sinks))

	// Step 6: Authentication
	var authMiddleware *auth.Middleware
	if cfg.Auth.Disabled {
		log.Println("WARNING: authentication disabled, every request gets full scope")
		authMiddleware = auth.NewMiddleware(nil)
	} else {
		verifier, err := auth.NewVerifier(cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to create token verifier: %v", err)
		}
		authMiddleware = auth.NewMiddleware(verifier)
	}

	if cfg.Files.Dir != "" {
		if err := os.MkdirAll(cfg.Files.Dir, 0o755); err != nil {
			log.Fatalf("Failed to create files directory %s: %v", cfg.Files.Dir, err)
		}
	}

	// Step 7: API server
	server := api.NewServer(sess, telemetryHub,
		api.WithAuth(authMiddleware),
		api.WithMetricsHandler(promhttp.Handler()),
		api.WithFilesDir(cfg.Files.Dir),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	addr := cfg.Server.Addr
	log.Printf("Starting HTTP server on %s", addr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	log.Printf("Health endpoint: http://localhost%s/api/v1/health", addr)

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		log.Printf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	// Relax and release the mirror if a client left it open.
	if sess.State() != session.StateClosed {
		if err := sess.Close(shutdownCtx); err != nil {
			log.Printf("Error closing mirror: %v", err)
		}
	}

	dispatcher.Stop()
	cancel()
	telemetryHub.Stop()
	log.Println("Telemetry hub stopped")

	if err := auditLogger.Close(); err != nil {
		log.Printf("Error closing audit logger: %v", err)
	}
	log.Println("Mirror control core shutdown complete")
}

// newLink builds the DeviceLink selected by cfg.Kind.
func newLink(cfg config.LinkConfig) (link.DeviceLink, error) {
	switch cfg.Kind {
	case "", "fake":
		return fake.New(fake.WithSmoothSteps(cfg.SmoothSteps), fake.WithStepDelay(cfg.StepInterval)), nil
	case "serial":
		return serial.New(serial.Config{
			Device:       cfg.Device,
			Baud:         cfg.Baud,
			ReadTimeout:  cfg.ReadTimeout,
			SmoothSteps:  cfg.SmoothSteps,
			StepInterval: cfg.StepInterval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown link kind %q", cfg.Kind)
	}
}
