package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/archivist"
	"github.com/loykin/archivist/internal/auth"
	"github.com/loykin/archivist/internal/logger"
	"github.com/loykin/archivist/internal/server"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := archivist.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, nil)
}

// serve runs the API (and metrics) servers until ctx is done. ready, when
// non-nil, receives the API server once it is about to listen.
func serve(ctx context.Context, cfg *archivist.Config, ready chan<- *http.Server) error {
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closer.Close() }()

	opts := []archivist.Option{archivist.WithLogger(log)}
	if cfg.History.Enabled {
		sinks, err := archivist.NewHistorySinks(cfg.History.Sinks)
		if err != nil {
			return err
		}
		defer func() { _ = sinks.Close() }()
		opts = append(opts, archivist.WithSink(sinks))
		log.Info("history export enabled", "sinks", len(sinks))
	}

	var authSvc *auth.AuthService
	if cfg.Auth.Enabled {
		authSvc, err = auth.NewAuthService(cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	repo, err := archivist.OpenConfig(ctx, cfg.Store, opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = repo.Close() }()

	if cfg.Metrics.Enabled {
		if err := archivist.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		ms := archivist.NewMetricsServer(cfg.Metrics.Listen)
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(sctx)
		}()
		log.Info("serving metrics", "listen", cfg.Metrics.Listen)
	}

	srv, err := archivist.NewHTTPServer(cfg.Server, repo,
		server.WithAuth(authSvc),
		server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	protocol := "HTTP"
	if srv.TLSConfig != nil {
		protocol = "HTTPS"
	}
	log.Info("starting archivist server",
		slog.String("protocol", protocol),
		slog.String("listen", cfg.Server.Listen),
		slog.String("base_path", cfg.Server.BasePath),
		slog.Bool("auth", authSvc != nil))
	if ready != nil {
		ready <- srv
	}

	err = archivist.RunHTTPServer(ctx, srv, cfg.Server.ShutdownTimeout)
	log.Info("archivist server stopped")
	return err
}
