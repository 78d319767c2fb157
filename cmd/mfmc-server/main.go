package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mfmc/core-go/internal/auth"
	"mfmc/core-go/internal/config"
	"mfmc/core-go/internal/db"
	"mfmc/core-go/internal/httpapi"
	"mfmc/core-go/internal/logging"
	"mfmc/core-go/internal/metrics"
	"mfmc/core-go/internal/store"
)

func main() {
	boot := logging.New(os.Stdout, "mfmc-server", "info")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(os.Stdout, "mfmc-server", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, logger, cfg.DatabaseURL)
	defer closeStore()

	gate, err := auth.NewGate(st, auth.NewHasher(cfg.BcryptCost))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build authentication gate")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	h := httpapi.NewHandler(logger, st, gate, m)
	h.SetRequestTimeout(cfg.Timeout())
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Bool("metrics", m != nil).Msg("mfmc-server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func openStore(ctx context.Context, logger zerolog.Logger, databaseURL string) (store.Store, func()) {
	if databaseURL == "" {
		// mfmcctl only talks to Postgres, so nothing can register devices here.
		logger.Warn().Msg("DATABASE_URL not set; using empty in-memory store for development only: mfmcctl cannot populate it, every device will get 401, and state is lost on restart")
		return store.NewMemory(), func() {}
	}
	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	return store.NewPostgres(pool), pool.Close
}
