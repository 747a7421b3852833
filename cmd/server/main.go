package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lessonpulse/notify/api/rest"
	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/config"
	"github.com/lessonpulse/notify/internal/dispatch"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/engine"
	"github.com/lessonpulse/notify/internal/ingest"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/internal/prefs"
	"github.com/lessonpulse/notify/pkg/metrics"
)

var (
	// Build information - set via ldflags during build
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger, _ := logging.NewFromConfig("info", "stdout")
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg.Logging.Level, cfg.Logging.OutputPath)
	if err != nil {
		logger, _ = logging.NewFromConfig(cfg.Logging.Level, "stdout")
		logger.Warnf("Failed to open log file, using stdout: %v", err)
	}

	logger.Infof("Starting notify %s (%s)", Version, GitCommit)
	if cfg.ConfigFile != "" {
		logger.Infof("Loaded configuration from: %s", cfg.ConfigFile)
	}
	if sanitized, err := json.MarshalIndent(cfg.Sanitize(), "", "  "); err == nil {
		logger.Debugf("Configuration:\n%s", string(sanitized))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Push provider: webhook-backed when configured, otherwise a noop that
	// keeps the push channel closed
	var provider domain.PushProvider
	if cfg.Push.Enabled {
		provider = dispatch.NewWebhookProvider(cfg.Push.URL, cfg.Push.Token)
		logger.Infof("Push provider: webhook at %s", cfg.Push.URL)
	} else {
		provider = dispatch.NoopProvider{}
		logger.Info("Push provider: none configured")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	eng, err := engine.New(
		logger,
		m,
		clock.NewReal(),
		prefs.NewFileStore(cfg.Preferences.Path),
		provider,
		engine.Options{
			MaxVisibleAlerts: cfg.Engine.MaxVisibleAlerts,
			ExitTransition:   cfg.Engine.ExitTransition,
			GroupingInterval: cfg.Engine.GroupingInterval,
			DisplayDuration:  cfg.Engine.DisplayDuration,
		},
	)
	if err != nil {
		logger.Fatalf("Failed to build engine: %v", err)
	}

	// Sound and vibration cues for the server binary just log; a real client
	// binds platform audio and haptics here
	cueLog := logger.Named("cue")
	if err := eng.RegisterSink(dispatch.NewSoundSink(logger, func(n *domain.Notification) error {
		cueLog.Infof("sound cue for %s notification %s", n.Category, n.ID)
		return nil
	})); err != nil {
		logger.Fatalf("Failed to register sound sink: %v", err)
	}
	if err := eng.RegisterSink(dispatch.NewVibrationSink(logger, func(n *domain.Notification) error {
		cueLog.Infof("vibration cue for %s notification %s", n.Category, n.ID)
		return nil
	})); err != nil {
		logger.Fatalf("Failed to register vibration sink: %v", err)
	}

	if err := eng.Start(ctx); err != nil {
		logger.Fatalf("Failed to start engine: %v", err)
	}

	// Event stream listener
	if cfg.EventStream.Enabled {
		listener := ingest.NewListener(
			logger,
			m,
			cfg.EventStream.URL,
			cfg.EventStream.BackoffMin,
			cfg.EventStream.BackoffMax,
			eng.HandleEvent,
		)
		go listener.Run(ctx)
		logger.Infof("Event stream listener started for %s", cfg.EventStream.URL)
	}

	// REST server
	router := rest.NewRouter(eng, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("REST server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infof("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}

	cancel()
	eng.Stop()
	logger.Info("Shutdown complete")
}
