package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/dronedash/relayhub/internal/bridge"
	"github.com/dronedash/relayhub/internal/config"
	"github.com/dronedash/relayhub/internal/hub"
	"github.com/dronedash/relayhub/internal/registry"
	"github.com/dronedash/relayhub/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relayhub.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting relayhub",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Shut down on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.New()

	h := hub.New(hub.Config{
		SendBufferSize: cfg.Server.SendBufferSize,
		WriteTimeout:   cfg.Server.WriteTimeout,
		PongWait:       cfg.Server.PongWait,
		MaxFrameBytes:  cfg.Server.MaxFrameBytes,
	}, reg, logger)

	var br *bridge.Bridge
	if cfg.Upstream.Enabled {
		br, err = bridge.New(bridge.Config{
			URL:            cfg.Upstream.URL,
			DialTimeout:    cfg.Upstream.DialTimeout,
			ReconnectDelay: cfg.Upstream.ReconnectDelay,
			MaxAttempts:    cfg.Upstream.MaxAttempts,
			PendingOrders:  cfg.Upstream.PendingOrders,
		}, h, reg, logger)
		if err != nil {
			logger.Error("failed to create bridge", "error", err)
			os.Exit(1)
		}
		h.SetUpstream(br)
		logger.Info("upstream bridge enabled", "url", cfg.Upstream.URL)
	} else {
		logger.Info("running in local relay mode")
	}

	router := mux.NewRouter()
	router.Handle("/ws", h)
	router.HandleFunc("/healthz", healthHandler(reg, br)).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: withCORS(router),
	}

	g, gctx := errgroup.WithContext(ctx)

	if br != nil {
		if err := br.Start(gctx); err != nil {
			logger.Error("failed to start bridge", "error", err)
			os.Exit(1)
		}
	}

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if br != nil {
			br.Stop(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("relayhub exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("relayhub stopped")
}

// withCORS applies the permissive cross-origin policy to every response and
// answers pre-flight requests with 204.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// healthHandler reports connection counts and upstream link state.
func healthHandler(reg *registry.Registry, br *bridge.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
			Upstream    string `json:"upstream"`
		}{
			Status:      "healthy",
			Connections: reg.Len(),
			Upstream:    "disabled",
		}

		if br != nil {
			state := br.State()
			health.Upstream = string(state.Phase)
			if state.Phase != bridge.PhaseConnected {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
