package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mmdvmstate/internal/adapters/http/api"
	"mmdvmstate/internal/adapters/http/site"
	"mmdvmstate/internal/app"
	"mmdvmstate/internal/config"
	"mmdvmstate/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	logger.Init()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(
		app.WithLogger(log.Named("monitor")),
		app.WithLogPattern(cfg.LogMonitoring.LogPathPattern),
		app.WithPollInterval(time.Duration(cfg.LogMonitoring.RotationCheckIntervalMS)*time.Millisecond),
		app.WithReadBufferSize(cfg.LogMonitoring.ReadBufferSize),
		app.WithHistorySize(cfg.StateMachine.QSOHistorySize),
		app.WithQSOTimeout(time.Duration(cfg.StateMachine.QSOTimeoutSeconds)*time.Second),
		app.WithEventQueueSize(cfg.WebSocket.SendQueueSize),
		app.WithSupportedModes(cfg.StateMachine.SupportedModes),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start monitor: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer svc.Stop()

	// HTTP mux and routes. The dashboard sits at the root; the API and the
	// WebSocket stream hang off specific paths.
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	apiServer := api.NewServer(svc,
		api.WithPingPeriod(time.Duration(cfg.WebSocket.PingIntervalSeconds)*time.Second),
		api.WithMaxSessions(cfg.WebSocket.MaxConnections),
	)
	apiServer.Register(ctx, mux)

	// No WriteTimeout: /ws connections are long-lived.
	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.API.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}
