package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mfmc/core-go/internal/db"
	"mfmc/core-go/internal/sqlcgen"
)

// Postgres is the production Store backed by internal/db migrations.
type Postgres struct {
	pool *db.Pool
	q    *sqlcgen.Queries
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool.Queries()}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// AppendCommand inserts the command and its targets in one transaction that
// first takes the command-log advisory lock. Ids therefore become visible in
// increasing order, and a poller can never skip an id that commits later.
func (p *Postgres) AppendCommand(ctx context.Context, cmd NewCommand) (Command, error) {
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	scope := normalizeScope(cmd.Scope)

	var out Command
	err := p.pool.InTx(ctx, func(q *sqlcgen.Queries) error {
		if err := q.LockCommandLog(ctx); err != nil {
			return fmt.Errorf("lock command log: %w", err)
		}
		row, err := q.InsertCommand(ctx, sqlcgen.InsertCommandParams{
			Action:     string(cmd.Action),
			ResourceID: cmd.ResourceID,
			AllDevices: scope.AllDevices,
		})
		if err != nil {
			return translate(err, "insert command")
		}
		for _, deviceID := range scope.Targets {
			if err := q.InsertCommandTarget(ctx, sqlcgen.InsertCommandTargetParams{CommandID: row.ID, DeviceID: deviceID}); err != nil {
				return translate(err, fmt.Sprintf("target device %d", deviceID))
			}
		}
		out = commandFromRow(row, scope.Targets)
		return nil
	})
	if err != nil {
		return Command{}, err
	}
	return out, nil
}

func (p *Postgres) LatestUnseen(ctx context.Context, deviceID int64, cursor *int64) (Command, bool, error) {
	row, err := p.q.GetLatestUnseenCommand(ctx, sqlcgen.GetLatestUnseenCommandParams{DeviceID: deviceID, Cursor: cursor})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Command{}, false, nil
		}
		return Command{}, false, fmt.Errorf("latest unseen command: %w", err)
	}
	cmd, err := p.withTargets(ctx, row)
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}

func (p *Postgres) GetCommand(ctx context.Context, id int64) (Command, error) {
	row, err := p.q.GetCommand(ctx, id)
	if err != nil {
		return Command{}, translate(err, fmt.Sprintf("command %d", id))
	}
	return p.withTargets(ctx, row)
}

func (p *Postgres) withTargets(ctx context.Context, row sqlcgen.Command) (Command, error) {
	if row.AllDevices {
		return commandFromRow(row, nil), nil
	}
	targets, err := p.q.ListCommandTargets(ctx, row.ID)
	if err != nil {
		return Command{}, fmt.Errorf("command %d targets: %w", row.ID, err)
	}
	return commandFromRow(row, targets), nil
}

func (p *Postgres) CredentialByUsername(ctx context.Context, username string) (Credential, error) {
	row, err := p.q.GetCredentialByUsername(ctx, username)
	if err != nil {
		return Credential{}, translate(err, fmt.Sprintf("credential %q", username))
	}
	return Credential{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}, nil
}

func (p *Postgres) DeviceByCredential(ctx context.Context, credentialID int64) (Device, error) {
	row, err := p.q.GetDeviceByCredential(ctx, credentialID)
	if err != nil {
		return Device{}, translate(err, fmt.Sprintf("device for credential %d", credentialID))
	}
	return deviceFromRow(row), nil
}

func (p *Postgres) TouchDevice(ctx context.Context, deviceID int64, at time.Time) error {
	n, err := p.q.TouchDeviceLastSeen(ctx, sqlcgen.TouchDeviceLastSeenParams{ID: deviceID, LastSeenAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("touch device %d: %w", deviceID, err)
	}
	if n == 0 {
		return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) OpenAudio(ctx context.Context, id int64) (AudioResource, []byte, error) {
	row, err := p.q.GetAudioResourceData(ctx, id)
	if err != nil {
		return AudioResource{}, nil, translate(err, fmt.Sprintf("audio resource %d", id))
	}
	return audioFromRow(row.AudioResource), row.Data, nil
}

func (p *Postgres) AppendTelemetry(ctx context.Context, deviceID int64, level, message string) (TelemetryRecord, error) {
	level, message = NormalizeTelemetry(level, message)
	row, err := p.q.InsertDeviceLog(ctx, sqlcgen.InsertDeviceLogParams{DeviceID: deviceID, Level: level, Message: message})
	if err != nil {
		return TelemetryRecord{}, translate(err, fmt.Sprintf("device %d log", deviceID))
	}
	return telemetryFromRow(row), nil
}

func (p *Postgres) CreateDevice(ctx context.Context, username, passwordHash, name string) (Device, error) {
	username, err := validateNewDevice(username, name)
	if err != nil {
		return Device{}, err
	}
	var out Device
	err = p.pool.InTx(ctx, func(q *sqlcgen.Queries) error {
		cred, err := q.CreateCredential(ctx, sqlcgen.CreateCredentialParams{Username: username, PasswordHash: passwordHash})
		if err != nil {
			return translate(err, fmt.Sprintf("username %q", username))
		}
		row, err := q.CreateDevice(ctx, sqlcgen.CreateDeviceParams{CredentialID: cred.ID, Name: name})
		if err != nil {
			return translate(err, "create device")
		}
		out = deviceFromRow(row)
		return nil
	})
	return out, err
}

func (p *Postgres) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := p.q.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]Device, 0, len(rows))
	for _, r := range rows {
		out = append(out, deviceFromRow(r))
	}
	return out, nil
}

func (p *Postgres) GetDevice(ctx context.Context, id int64) (Device, error) {
	row, err := p.q.GetDevice(ctx, id)
	if err != nil {
		return Device{}, translate(err, fmt.Sprintf("device %d", id))
	}
	return deviceFromRow(row), nil
}

func (p *Postgres) DeactivateDevice(ctx context.Context, id int64) error {
	n, err := p.q.DeactivateDevice(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivate device %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) SetDevicePassword(ctx context.Context, deviceID int64, passwordHash string) error {
	n, err := p.q.UpdateDevicePassword(ctx, sqlcgen.UpdateDevicePasswordParams{DeviceID: deviceID, PasswordHash: passwordHash})
	if err != nil {
		return fmt.Errorf("set device %d password: %w", deviceID, err)
	}
	if n == 0 {
		return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) PutAudio(ctx context.Context, name, description string, data []byte) (AudioResource, error) {
	if err := validateAudioUpload(name, data); err != nil {
		return AudioResource{}, err
	}
	row, err := p.q.InsertAudioResource(ctx, sqlcgen.InsertAudioResourceParams{Name: name, Description: description, Data: data})
	if err != nil {
		return AudioResource{}, translate(err, "insert audio resource")
	}
	return audioFromRow(row), nil
}

func (p *Postgres) ListAudio(ctx context.Context) ([]AudioResource, error) {
	rows, err := p.q.ListAudioResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audio resources: %w", err)
	}
	out := make([]AudioResource, 0, len(rows))
	for _, r := range rows {
		out = append(out, audioFromRow(r))
	}
	return out, nil
}

func (p *Postgres) RecordBroadcast(ctx context.Context, entry BroadcastLog) (BroadcastLog, error) {
	var commandID *int64
	if entry.CommandID != 0 {
		commandID = &entry.CommandID
	}
	row, err := p.q.InsertBroadcastLog(ctx, sqlcgen.InsertBroadcastLogParams{
		CommandID:  commandID,
		Action:     string(entry.Action),
		ResourceID: entry.ResourceID,
		ExecutedBy: entry.ExecutedBy,
		AllDevices: entry.Scope.AllDevices,
		Targets:    entry.Scope.Targets,
	})
	if err != nil {
		return BroadcastLog{}, translate(err, "insert broadcast log")
	}
	out := BroadcastLog{
		ID:         row.ID,
		Action:     Action(row.Action),
		ResourceID: row.ResourceID,
		ExecutedBy: row.ExecutedBy,
		Scope:      Scope{AllDevices: row.AllDevices, Targets: row.Targets},
		ExecutedAt: row.ExecutedAt,
	}
	if row.CommandID != nil {
		out.CommandID = *row.CommandID
	}
	return out, nil
}

func (p *Postgres) RecentTelemetry(ctx context.Context, deviceID int64, limit int) ([]TelemetryRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := p.q.ListRecentDeviceLogs(ctx, sqlcgen.ListRecentDeviceLogsParams{DeviceID: deviceID, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("list device %d logs: %w", deviceID, err)
	}
	out := make([]TelemetryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, telemetryFromRow(r))
	}
	return out, nil
}

// translate maps pgx/Postgres errors onto the store sentinels.
func translate(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record: %w", what, ErrNotFound)
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", what, ErrDuplicate)
		case "23514": // check_violation
			return fmt.Errorf("%s: %w", what, ErrInvalidAudio)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func commandFromRow(row sqlcgen.Command, targets []int64) Command {
	c := Command{
		ID:         row.ID,
		Action:     Action(row.Action),
		ResourceID: row.ResourceID,
		Scope:      Scope{AllDevices: row.AllDevices, Targets: targets},
		CreatedAt:  row.CreatedAt.UTC(),
	}
	if row.ResourceName != nil {
		c.ResourceName = *row.ResourceName
	}
	return c
}

func deviceFromRow(row sqlcgen.Device) Device {
	return Device{
		ID:           row.ID,
		CredentialID: row.CredentialID,
		Username:     row.Username,
		Name:         row.Name,
		Active:       row.IsActive,
		LastSeenAt:   row.LastSeenAt,
		CreatedAt:    row.CreatedAt,
	}
}

func audioFromRow(row sqlcgen.AudioResource) AudioResource {
	return AudioResource{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		SizeBytes:   row.SizeBytes,
		UploadedAt:  row.UploadedAt,
	}
}

func telemetryFromRow(row sqlcgen.DeviceLog) TelemetryRecord {
	return TelemetryRecord{
		ID:        row.ID,
		DeviceID:  row.DeviceID,
		Level:     row.Level,
		Message:   row.Message,
		CreatedAt: row.CreatedAt,
	}
}
