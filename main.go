package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livepoll-server/api"
	"livepoll-server/config"
	"livepoll-server/hub"
	"livepoll-server/protocol"
	"livepoll-server/store"
	ws "livepoll-server/websocket"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(2)
	}
	setupLogger(cfg.SlogLevel())

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run returns only after the coordinator, the HTTP server and the store
// have been shut down.
func run(cfg *config.Config) error {
	polls, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer polls.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinatorCtx, stopCoordinator := context.WithCancel(ctx)
	defer stopCoordinator()

	coordinator := hub.New(polls)
	go coordinator.Run(coordinatorCtx)

	resumeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := coordinator.Resume(resumeCtx); err != nil {
		slog.Error("resume active poll failed", "error", err)
	}
	cancel()

	handler := protocol.NewHandler(coordinator)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.Handler(ws.NewUpgrader(cfg.AllowedOrigins), coordinator, handler))
	mux.HandleFunc("/stats", statsHandler(coordinator))
	api.NewServer(polls, coordinator).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// websocket connections are hijacked, so server.Shutdown does not see
	// them; stopping the coordinator closes them
	stopCoordinator()
	select {
	case <-coordinator.Done():
	case <-shutdownCtx.Done():
		slog.Warn("coordinator did not stop before shutdown timeout")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return runErr
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func statsHandler(coordinator *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(coordinator.Stats())
	}
}
