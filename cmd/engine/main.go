// Matching engine entry point: loads config, wires persistence and the
// engine facade, warm-loads resting orders for known markets, and serves
// the HTTP + WebSocket API until SIGINT/SIGTERM.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jamhan/predictionmarket/internal/api"
	"github.com/jamhan/predictionmarket/internal/config"
	"github.com/jamhan/predictionmarket/internal/engine"
	"github.com/jamhan/predictionmarket/internal/persistence"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ENGINE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	store, closeStore, err := openStore(cfg.Persistence, logger)
	if err != nil {
		logger.Error("failed to open persistence store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	eng := engine.New(store, cfg.Markets.KnownMarketIDs, logger)

	if cfg.Markets.WarmLoad {
		for _, marketID := range cfg.Markets.KnownMarketIDs {
			if err := eng.Load(marketID); err != nil {
				logger.Error("warm load failed", "market_id", marketID, "error", err)
				os.Exit(1)
			}
		}
		logger.Info("warm load complete", "markets", len(cfg.Markets.KnownMarketIDs))
	}

	apiServer := api.NewServer(cfg.API, eng, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server failed", "error", err)
		}
	}()
	logger.Info("matching engine started", "addr", fmt.Sprintf("http://localhost%s", cfg.API.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
}

func openStore(cfg config.PersistenceConfig, logger *slog.Logger) (persistence.Store, func(), error) {
	switch cfg.Backing {
	case "memory":
		return persistence.NewMemStore(), func() {}, nil
	default:
		store, err := persistence.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store at %q: %w", cfg.DataDir, err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close persistence store", "error", err)
			}
		}, nil
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
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
