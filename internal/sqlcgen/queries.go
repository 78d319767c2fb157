package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// CommandLogLockKey is the advisory lock serializing command inserts, so id
// order matches commit order.
const CommandLogLockKey int64 = 0x6d666d63

const lockCommandLog = `-- name: LockCommandLog :exec
SELECT pg_advisory_xact_lock($1)
`

func (q *Queries) LockCommandLog(ctx context.Context) error {
	_, err := q.db.Exec(ctx, lockCommandLog, CommandLogLockKey)
	return err
}

const getCredentialByUsername = `-- name: GetCredentialByUsername :one
SELECT id, username, password_hash, created_at
FROM credentials
WHERE username = $1
`

func (q *Queries) GetCredentialByUsername(ctx context.Context, username string) (Credential, error) {
	row := q.db.QueryRow(ctx, getCredentialByUsername, username)
	var i Credential
	err := row.Scan(&i.ID, &i.Username, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const createCredential = `-- name: CreateCredential :one
INSERT INTO credentials (username, password_hash)
VALUES ($1, $2)
RETURNING id, username, password_hash, created_at
`

type CreateCredentialParams struct {
	Username     string
	PasswordHash string
}

func (q *Queries) CreateCredential(ctx context.Context, arg CreateCredentialParams) (Credential, error) {
	row := q.db.QueryRow(ctx, createCredential, arg.Username, arg.PasswordHash)
	var i Credential
	err := row.Scan(&i.ID, &i.Username, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const updateDevicePassword = `-- name: UpdateDevicePassword :execrows
UPDATE credentials c
SET password_hash = $2
FROM devices d
WHERE d.id = $1
  AND d.credential_id = c.id
`

type UpdateDevicePasswordParams struct {
	DeviceID     int64
	PasswordHash string
}

func (q *Queries) UpdateDevicePassword(ctx context.Context, arg UpdateDevicePasswordParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateDevicePassword, arg.DeviceID, arg.PasswordHash)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deviceColumns = `d.id, d.credential_id, c.username, d.name, d.is_active, d.last_seen_at, d.created_at`

func scanDevice(row pgx.Row) (Device, error) {
	var i Device
	err := row.Scan(&i.ID, &i.CredentialID, &i.Username, &i.Name, &i.IsActive, &i.LastSeenAt, &i.CreatedAt)
	return i, err
}

const getDeviceByCredential = `-- name: GetDeviceByCredential :one
SELECT ` + deviceColumns + `
FROM devices d
JOIN credentials c ON c.id = d.credential_id
WHERE d.credential_id = $1
`

func (q *Queries) GetDeviceByCredential(ctx context.Context, credentialID int64) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDeviceByCredential, credentialID))
}

const getDevice = `-- name: GetDevice :one
SELECT ` + deviceColumns + `
FROM devices d
JOIN credentials c ON c.id = d.credential_id
WHERE d.id = $1
`

func (q *Queries) GetDevice(ctx context.Context, id int64) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDevice, id))
}

const listDevices = `-- name: ListDevices :many
SELECT ` + deviceColumns + `
FROM devices d
JOIN credentials c ON c.id = d.credential_id
ORDER BY d.id
`

func (q *Queries) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := q.db.Query(ctx, listDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Device
	for rows.Next() {
		i, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createDevice = `-- name: CreateDevice :one
WITH inserted AS (
  INSERT INTO devices (credential_id, name)
  VALUES ($1, $2)
  RETURNING id, credential_id, name, is_active, last_seen_at, created_at
)
SELECT i.id, i.credential_id, c.username, i.name, i.is_active, i.last_seen_at, i.created_at
FROM inserted i
JOIN credentials c ON c.id = i.credential_id
`

type CreateDeviceParams struct {
	CredentialID int64
	Name         string
}

func (q *Queries) CreateDevice(ctx context.Context, arg CreateDeviceParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, createDevice, arg.CredentialID, arg.Name))
}

const touchDeviceLastSeen = `-- name: TouchDeviceLastSeen :execrows
UPDATE devices
SET last_seen_at = $2
WHERE id = $1
`

type TouchDeviceLastSeenParams struct {
	ID         int64
	LastSeenAt time.Time
}

func (q *Queries) TouchDeviceLastSeen(ctx context.Context, arg TouchDeviceLastSeenParams) (int64, error) {
	tag, err := q.db.Exec(ctx, touchDeviceLastSeen, arg.ID, arg.LastSeenAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deactivateDevice = `-- name: DeactivateDevice :execrows
UPDATE devices
SET is_active = FALSE
WHERE id = $1
`

func (q *Queries) DeactivateDevice(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deactivateDevice, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertAudioResource = `-- name: InsertAudioResource :one
INSERT INTO audio_resources (name, description, data, size_bytes)
VALUES ($1, $2, $3, $4)
RETURNING id, name, description, size_bytes, uploaded_at
`

type InsertAudioResourceParams struct {
	Name        string
	Description string
	Data        []byte
}

func (q *Queries) InsertAudioResource(ctx context.Context, arg InsertAudioResourceParams) (AudioResource, error) {
	row := q.db.QueryRow(ctx, insertAudioResource, arg.Name, arg.Description, arg.Data, int64(len(arg.Data)))
	var i AudioResource
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.SizeBytes, &i.UploadedAt)
	return i, err
}

const getAudioResourceData = `-- name: GetAudioResourceData :one
SELECT id, name, description, size_bytes, uploaded_at, data
FROM audio_resources
WHERE id = $1
`

func (q *Queries) GetAudioResourceData(ctx context.Context, id int64) (AudioResourceData, error) {
	row := q.db.QueryRow(ctx, getAudioResourceData, id)
	var i AudioResourceData
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.SizeBytes, &i.UploadedAt, &i.Data)
	return i, err
}

const listAudioResources = `-- name: ListAudioResources :many
SELECT id, name, description, size_bytes, uploaded_at
FROM audio_resources
ORDER BY id
`

func (q *Queries) ListAudioResources(ctx context.Context) ([]AudioResource, error) {
	rows, err := q.db.Query(ctx, listAudioResources)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AudioResource
	for rows.Next() {
		var i AudioResource
		if err := rows.Scan(&i.ID, &i.Name, &i.Description, &i.SizeBytes, &i.UploadedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertCommand = `-- name: InsertCommand :one
WITH inserted AS (
  INSERT INTO commands (action, resource_id, all_devices)
  VALUES ($1, $2, $3)
  RETURNING id, action, resource_id, all_devices, created_at
)
SELECT i.id, i.action, i.resource_id, r.name, i.all_devices, i.created_at
FROM inserted i
LEFT JOIN audio_resources r ON r.id = i.resource_id
`

type InsertCommandParams struct {
	Action     string
	ResourceID *int64
	AllDevices bool
}

func (q *Queries) InsertCommand(ctx context.Context, arg InsertCommandParams) (Command, error) {
	row := q.db.QueryRow(ctx, insertCommand, arg.Action, arg.ResourceID, arg.AllDevices)
	var i Command
	err := row.Scan(&i.ID, &i.Action, &i.ResourceID, &i.ResourceName, &i.AllDevices, &i.CreatedAt)
	return i, err
}

const insertCommandTarget = `-- name: InsertCommandTarget :exec
INSERT INTO command_targets (command_id, device_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type InsertCommandTargetParams struct {
	CommandID int64
	DeviceID  int64
}

func (q *Queries) InsertCommandTarget(ctx context.Context, arg InsertCommandTargetParams) error {
	_, err := q.db.Exec(ctx, insertCommandTarget, arg.CommandID, arg.DeviceID)
	return err
}

const getCommand = `-- name: GetCommand :one
SELECT c.id, c.action, c.resource_id, r.name, c.all_devices, c.created_at
FROM commands c
LEFT JOIN audio_resources r ON r.id = c.resource_id
WHERE c.id = $1
`

func (q *Queries) GetCommand(ctx context.Context, id int64) (Command, error) {
	row := q.db.QueryRow(ctx, getCommand, id)
	var i Command
	err := row.Scan(&i.ID, &i.Action, &i.ResourceID, &i.ResourceName, &i.AllDevices, &i.CreatedAt)
	return i, err
}

const getLatestUnseenCommand = `-- name: GetLatestUnseenCommand :one
SELECT c.id, c.action, c.resource_id, r.name, c.all_devices, c.created_at
FROM commands c
LEFT JOIN audio_resources r ON r.id = c.resource_id
WHERE ($2::bigint IS NULL OR c.id > $2::bigint)
  AND (
    c.all_devices
    OR EXISTS (
      SELECT 1
      FROM command_targets t
      WHERE t.command_id = c.id
        AND t.device_id = $1
    )
  )
ORDER BY c.id DESC
LIMIT 1
`

type GetLatestUnseenCommandParams struct {
	DeviceID int64
	Cursor   *int64
}

func (q *Queries) GetLatestUnseenCommand(ctx context.Context, arg GetLatestUnseenCommandParams) (Command, error) {
	row := q.db.QueryRow(ctx, getLatestUnseenCommand, arg.DeviceID, arg.Cursor)
	var i Command
	err := row.Scan(&i.ID, &i.Action, &i.ResourceID, &i.ResourceName, &i.AllDevices, &i.CreatedAt)
	return i, err
}

const listCommandTargets = `-- name: ListCommandTargets :many
SELECT device_id
FROM command_targets
WHERE command_id = $1
ORDER BY device_id
`

func (q *Queries) ListCommandTargets(ctx context.Context, commandID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, listCommandTargets, commandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	return items, rows.Err()
}

const insertDeviceLog = `-- name: InsertDeviceLog :one
INSERT INTO device_logs (device_id, level, message)
VALUES ($1, $2, $3)
RETURNING id, device_id, level, message, created_at
`

type InsertDeviceLogParams struct {
	DeviceID int64
	Level    string
	Message  string
}

func (q *Queries) InsertDeviceLog(ctx context.Context, arg InsertDeviceLogParams) (DeviceLog, error) {
	row := q.db.QueryRow(ctx, insertDeviceLog, arg.DeviceID, arg.Level, arg.Message)
	var i DeviceLog
	err := row.Scan(&i.ID, &i.DeviceID, &i.Level, &i.Message, &i.CreatedAt)
	return i, err
}

const listRecentDeviceLogs = `-- name: ListRecentDeviceLogs :many
SELECT id, device_id, level, message, created_at
FROM device_logs
WHERE device_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

type ListRecentDeviceLogsParams struct {
	DeviceID int64
	Limit    int32
}

func (q *Queries) ListRecentDeviceLogs(ctx context.Context, arg ListRecentDeviceLogsParams) ([]DeviceLog, error) {
	rows, err := q.db.Query(ctx, listRecentDeviceLogs, arg.DeviceID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DeviceLog
	for rows.Next() {
		var i DeviceLog
		if err := rows.Scan(&i.ID, &i.DeviceID, &i.Level, &i.Message, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertBroadcastLog = `-- name: InsertBroadcastLog :one
INSERT INTO broadcast_logs (command_id, action, resource_id, executed_by, all_devices, targets)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, command_id, action, resource_id, executed_by, all_devices, targets, executed_at
`

type InsertBroadcastLogParams struct {
	CommandID  *int64
	Action     string
	ResourceID *int64
	ExecutedBy string
	AllDevices bool
	Targets    []int64
}

func (q *Queries) InsertBroadcastLog(ctx context.Context, arg InsertBroadcastLogParams) (BroadcastLog, error) {
	targets := arg.Targets
	if targets == nil {
		targets = []int64{}
	}
	row := q.db.QueryRow(ctx, insertBroadcastLog, arg.CommandID, arg.Action, arg.ResourceID, arg.ExecutedBy, arg.AllDevices, targets)
	var i BroadcastLog
	err := row.Scan(&i.ID, &i.CommandID, &i.Action, &i.ResourceID, &i.ExecutedBy, &i.AllDevices, &i.Targets, &i.ExecutedAt)
	return i, err
}
