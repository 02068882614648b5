package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/logging"
	"github.com/danish296/Code-Drop/internal/relay"
	"github.com/danish296/Code-Drop/internal/server"
	"github.com/danish296/Code-Drop/internal/storage"
)

func main() {
	logging.Init(slog.LevelInfo)
	cfg := config.LoadServer()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.New(cfg.StorageDir, cfg.Retention)
	if err != nil {
		slog.Error("server: storage init failed", "dir", cfg.StorageDir, "err", err)
		os.Exit(1)
	}
	go store.RunSweeper(ctx)

	hub := relay.NewHub(relay.DefaultConfig())
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewRouter(hub, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server: listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server: listen failed", "err", err)
		os.Exit(1)
	}
	slog.Info("server: stopped")
}
