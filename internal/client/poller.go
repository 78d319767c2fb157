package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"mfmc/core-go/internal/audio"
	"mfmc/core-go/internal/localstate"
)

// State is the poller's position in its control loop.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopping
	StateDownloading
	StatePlaying
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePolling:
		return "POLLING"
	case StateStopping:
		return "STOPPING"
	case StateDownloading:
		return "DOWNLOADING"
	case StatePlaying:
		return "PLAYING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CommandAPI is the part of the server API the poller needs. *API satisfies it.
type CommandAPI interface {
	Status(ctx context.Context, cursor *int64) (Status, error)
	Download(ctx context.Context, commandID int64) ([]byte, error)
}

// CursorStore persists the last fully processed command id.
// *localstate.Cursor satisfies it.
type CursorStore interface {
	Load() (*int64, error)
	Save(id int64) error
}

type Options struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	// AudioPath is overwritten with every downloaded payload.
	AudioPath string
}

// Poller turns status answers into playback actions. It is single-threaded:
// Run and RunOnce must not be called concurrently.
type Poller struct {
	log    zerolog.Logger
	api    CommandAPI
	cursor CursorStore
	player audio.Player

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	audioPath         string
	now               func() time.Time

	state         State
	last          *int64
	lastHeartbeat time.Time
}

func NewPoller(log zerolog.Logger, api CommandAPI, cursor CursorStore, player audio.Player, opts Options) *Poller {
	pi := opts.PollInterval
	if pi <= 0 {
		pi = 3 * time.Second
	}
	hb := opts.HeartbeatInterval
	if hb < 0 {
		hb = 0
	}
	return &Poller{
		log:               log,
		api:               api,
		cursor:            cursor,
		player:            player,
		pollInterval:      pi,
		heartbeatInterval: hb,
		audioPath:         opts.AudioPath,
		now:               time.Now,
		state:             StateIdle,
	}
}

func (p *Poller) State() State { return p.state }

// Cursor returns the id of the last processed command, or nil.
func (p *Poller) Cursor() *int64 {
	if p.last == nil {
		return nil
	}
	v := *p.last
	return &v
}

// Restore loads the persisted cursor. A corrupt cursor file is reported and
// treated as absent.
func (p *Poller) Restore() {
	v, err := p.cursor.Load()
	if err != nil {
		p.log.Warn().Err(err).Msg("cursor unreadable; starting without one")
		return
	}
	p.last = v
	if v != nil {
		p.log.Info().Int64("last_command_id", *v).Msg("STATE_LOADED")
	}
}

// Run polls until ctx is cancelled. Failed cycles back off exponentially.
func (p *Poller) Run(ctx context.Context) {
	p.Restore()

	timer := time.NewTimer(0)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveFailures++
			p.log.Error().
				Err(err).
				Str("kind", errorKind(err)).
				Int("consecutive_failures", consecutiveFailures).
				Msg("poll cycle failed")
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(p.pollInterval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 3 * time.Second
	}
	if failures <= 0 {
		return base
	}

	// base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func errorKind(err error) string {
	var httpErr *HTTPError
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr):
		return "HTTP_ERROR"
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return "NETWORK_ERROR"
	default:
		return "UNEXPECTED"
	}
}

// RunOnce performs one poll and at most one action. The cursor only moves
// after the action for that command has been issued; a failed download
// leaves it untouched so the same command is offered again.
func (p *Poller) RunOnce(ctx context.Context) error {
	p.state = StatePolling
	st, err := p.api.Status(ctx, p.last)
	if err != nil {
		p.state = StateError
		return err
	}

	id, ok := CommandID(st)
	if !ok {
		p.maybeHeartbeat()
		p.state = StateIdle
		return nil
	}
	if p.last != nil && id <= *p.last {
		p.log.Debug().Int64("command_id", id).Int64("last_command_id", *p.last).Msg("command already processed")
		p.state = StateIdle
		return nil
	}

	switch cmd := st.(type) {
	case StopCommand:
		p.state = StateStopping
		p.log.Info().Str("action", "STOP").Int64("command_id", cmd.ID).Msg("CMD")
		if err := p.player.Stop(); err != nil {
			p.log.Error().Err(err).Int64("command_id", cmd.ID).Msg("audio stop failed")
		}

	case PlayCommand:
		p.state = StateDownloading
		p.log.Info().Str("action", "PLAY").Int64("command_id", cmd.ID).Str("file", cmd.Filename).Msg("CMD")
		if err := p.fetchAudio(ctx, cmd.ID); err != nil {
			p.state = StateError
			return err
		}
		p.state = StatePlaying
		if err := p.player.Play(p.audioPath); err != nil {
			p.log.Error().Err(err).Int64("command_id", cmd.ID).Msg("audio play failed")
		}

	case PingCommand:
		p.log.Info().Str("action", "PING").Int64("command_id", cmd.ID).Msg("CMD")

	case UnknownCommand:
		p.log.Warn().Str("action", cmd.Action).Int64("command_id", cmd.ID).Msg("CMD unrecognized action")
	}

	return p.advance(id)
}

func (p *Poller) fetchAudio(ctx context.Context, commandID int64) error {
	data, err := p.api.Download(ctx, commandID)
	if err != nil {
		return err
	}
	if err := audio.ValidateWAV(data); err != nil {
		return fmt.Errorf("command %d: %w", commandID, err)
	}
	if err := localstate.WriteFileAtomic(p.audioPath, data, 0o644); err != nil {
		return err
	}
	p.log.Info().Str("path", p.audioPath).Int("bytes", len(data)).Msg("FILE_SAVED")
	return nil
}

// advance records id as processed. The in-memory cursor moves even when the
// file write fails so the action is not repeated by this process.
func (p *Poller) advance(id int64) error {
	p.last = &id
	p.state = StateIdle
	if err := p.cursor.Save(id); err != nil {
		return fmt.Errorf("persist cursor %d: %w", id, err)
	}
	return nil
}

func (p *Poller) maybeHeartbeat() {
	if p.heartbeatInterval <= 0 {
		return
	}
	now := p.now()
	if !p.lastHeartbeat.IsZero() && now.Sub(p.lastHeartbeat) < p.heartbeatInterval {
		return
	}
	p.lastHeartbeat = now
	p.log.Info().Bool("has_command", false).Msg("HEARTBEAT")
}
