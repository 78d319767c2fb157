package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"mfmc/core-go/internal/audio"
	"mfmc/core-go/internal/client"
	"mfmc/core-go/internal/localstate"
	"mfmc/core-go/internal/logging"
)

const (
	cursorFile = "mfmc_last_command_id.txt"
	audioFile  = "mfmc_received.wav"
)

func main() {
	configPath := pflag.String("config", "", "optional YAML config file; MFMC_* environment variables override it")
	pflag.Parse()

	boot := logging.New(os.Stderr, "mfmc-client", "info")
	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	api := client.NewAPI(cfg, nil)
	remote := client.NewRemoteWriter(api, client.ParseWireLevel(cfg.ServerLogMinLevel), 256)

	var logFile io.WriteCloser
	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
			boot.Fatal().Err(err).Msg("failed to create log directory")
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			boot.Fatal().Err(err).Msg("failed to open log file")
		}
		logFile = f
	} else {
		logFile = client.NewDailyFile(cfg.LogDir)
	}
	defer logFile.Close()

	logger := client.NewLogger(cfg.LogLevel, uuid.NewString(), os.Stdout, logFile, remote)
	logger.Info().EmbedObject(cfg).Msg("CLIENT_START")

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("state_dir", cfg.StateDir).Msg("failed to create state directory")
	}

	player, err := audio.NewExecPlayer(cfg.Player)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid player command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := client.NewPoller(logger, api, localstate.NewCursor(filepath.Join(cfg.StateDir, cursorFile)), player, client.Options{
		PollInterval:      cfg.PollInterval.Std(),
		HeartbeatInterval: cfg.HeartbeatInterval.Std(),
		AudioPath:         filepath.Join(cfg.StateDir, audioFile),
	})
	poller.Run(ctx)

	if err := player.Stop(); err != nil {
		logger.Warn().Err(err).Msg("audio stop on shutdown failed")
	}
	logger.Info().Int64("remote_dropped", remote.Dropped()).Msg("CLIENT_STOP")
	remote.Close(cfg.TelemetryTimeout.Std() + time.Second)
}
