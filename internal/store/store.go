// Package store holds the broadcast domain records (devices, audio resources,
// commands, telemetry) and the storage contracts the server and the admin CLI
// are written against. Two implementations exist: Memory for tests and local
// development, and Postgres for production.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidScope    = errors.New("invalid command scope")
	ErrInvalidCommand  = errors.New("invalid command")
	ErrInvalidAudio    = errors.New("invalid audio resource")
	ErrMissingResource = errors.New("command has no audio resource")
	ErrDuplicate       = errors.New("already exists")
	ErrInvalidDevice   = errors.New("invalid device")
)

// Column bounds shared by every store, counted in characters.
const (
	MaxDeviceNameLen = 100
	MaxAudioNameLen  = 200
)

// Action is the wire value of a command action. Values are case-sensitive.
type Action string

const (
	ActionPlay Action = "PLAY"
	ActionStop Action = "STOP"
	ActionPing Action = "PING"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPlay, ActionStop, ActionPing:
		return true
	default:
		return false
	}
}

// Credential is the login identity a device authenticates with.
type Credential struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Device is a remote playback endpoint. At most one Device exists per
// credential. Inactive devices fail authentication and are never scoped.
type Device struct {
	ID           int64
	CredentialID int64
	Username     string
	Name         string
	Active       bool
	LastSeenAt   *time.Time
	CreatedAt    time.Time
}

// DisplayName mirrors how operators refer to a device: its name, or the
// username when no name was given.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Username
}

// validateNewDevice trims username and checks both fields against the
// column bounds.
func validateNewDevice(username, name string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidDevice)
	}
	if n := utf8.RuneCountInString(name); n > MaxDeviceNameLen {
		return "", fmt.Errorf("%w: name is %d characters, limit %d", ErrInvalidDevice, n, MaxDeviceNameLen)
	}
	return username, nil
}

// AudioResource is the metadata of a stored WAV payload.
type AudioResource struct {
	ID          int64
	Name        string
	Description string
	SizeBytes   int64
	UploadedAt  time.Time
}

// Command is an immutable entry of the command log. ID doubles as the
// cursor value clients compare against.
type Command struct {
	ID           int64
	Action       Action
	ResourceID   *int64
	ResourceName string
	Scope        Scope
	CreatedAt    time.Time
}

// HasResource reports whether the command still references an audio resource.
func (c Command) HasResource() bool {
	return c.ResourceID != nil
}

// NewCommand is the input of CommandLog.AppendCommand.
type NewCommand struct {
	Action     Action
	ResourceID *int64
	Scope      Scope
}

// Validate checks the action/resource pairing and the scope. PLAY requires a
// resource; STOP and PING must not carry one.
func (n NewCommand) Validate() error {
	if !n.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, n.Action)
	}
	if n.Action == ActionPlay && n.ResourceID == nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, ErrMissingResource)
	}
	if n.Action != ActionPlay && n.ResourceID != nil {
		return fmt.Errorf("%w: %s does not take an audio resource", ErrInvalidCommand, n.Action)
	}
	return n.Scope.Validate()
}

// TelemetryRecord is one device-originated log line.
type TelemetryRecord struct {
	ID        int64
	DeviceID  int64
	Level     string
	Message   string
	CreatedAt time.Time
}

// BroadcastLog records who issued a command from the administrative surface.
type BroadcastLog struct {
	ID         int64
	CommandID  int64
	Action     Action
	ResourceID *int64
	ExecutedBy string
	Scope      Scope
	ExecutedAt time.Time
}

// CommandLog is the append-only command sequence. AppendCommand is the only
// write path and assigns strictly increasing ids, even across concurrent
// callers.
type CommandLog interface {
	AppendCommand(ctx context.Context, cmd NewCommand) (Command, error)
	// LatestUnseen returns the highest-id command scoped to deviceID with an
	// id greater than cursor (any id when cursor is nil). Older qualifying
	// commands are never returned: delivery is latest-wins, not a backlog.
	LatestUnseen(ctx context.Context, deviceID int64, cursor *int64) (Command, bool, error)
	GetCommand(ctx context.Context, id int64) (Command, error)
}

// Devices resolves credentials to devices for the authentication gate.
type Devices interface {
	CredentialByUsername(ctx context.Context, username string) (Credential, error)
	DeviceByCredential(ctx context.Context, credentialID int64) (Device, error)
	TouchDevice(ctx context.Context, deviceID int64, at time.Time) error
}

// AudioResources serves stored WAV payloads.
type AudioResources interface {
	OpenAudio(ctx context.Context, id int64) (AudioResource, []byte, error)
}

// TelemetrySink appends device telemetry. Level and message are normalized
// by the sink itself (see NormalizeTelemetry).
type TelemetrySink interface {
	AppendTelemetry(ctx context.Context, deviceID int64, level, message string) (TelemetryRecord, error)
}

// Admin is the record-creation surface used by mfmcctl.
type Admin interface {
	CreateDevice(ctx context.Context, username, passwordHash, name string) (Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	GetDevice(ctx context.Context, id int64) (Device, error)
	DeactivateDevice(ctx context.Context, id int64) error
	SetDevicePassword(ctx context.Context, deviceID int64, passwordHash string) error
	PutAudio(ctx context.Context, name, description string, data []byte) (AudioResource, error)
	ListAudio(ctx context.Context) ([]AudioResource, error)
	RecordBroadcast(ctx context.Context, entry BroadcastLog) (BroadcastLog, error)
	RecentTelemetry(ctx context.Context, deviceID int64, limit int) ([]TelemetryRecord, error)
}

// Store is everything a backing implementation provides.
type Store interface {
	CommandLog
	Devices
	AudioResources
	TelemetrySink
	Admin
	Ping(ctx context.Context) error
}
