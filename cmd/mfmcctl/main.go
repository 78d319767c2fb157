package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mfmc/core-go/internal/admin"
	"mfmc/core-go/internal/auth"
	"mfmc/core-go/internal/config"
	"mfmc/core-go/internal/db"
	"mfmc/core-go/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	cli := &admin.CLI{
		Store:  store.NewPostgres(pool),
		Hasher: auth.NewHasher(cfg.BcryptCost),
		Out:    os.Stdout,
	}
	return cli.Run(ctx, os.Args[1:])
}
