package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hausdesk/internal/app"
	"hausdesk/internal/config"
	"hausdesk/internal/server"
	"hausdesk/internal/util"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		slog.Error("parse session ttl", "err", err)
		os.Exit(1)
	}

	application, err := app.New(app.Config{
		DatabaseURL:              cfg.DatabaseURL,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SessionSecret:            cfg.SessionSecret,
		SessionTTL:               sessionTTL,
		MinioEndpoint:            cfg.MinioEndpoint,
		MinioAccessKey:           cfg.MinioAccessKey,
		MinioSecretKey:           cfg.MinioSecretKey,
		MinioBucket:              cfg.MinioBucket,
		MinioUseSSL:              cfg.MinioUseSSL,
		SignInRateLimitPerMinute: cfg.SignInRateLimitPerMinute,
		SignUpRateLimitPerMinute: cfg.SignUpRateLimitPerMinute,
		MaxUploadBytes:           cfg.MaxUploadBytes,
	})
	if err != nil {
		slog.Error("init app", "err", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{App: application})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: watch endpoints hold SSE streams open.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
