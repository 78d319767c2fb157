package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// Memory is a process-local Store. Commands are kept in id order; appends
// serialize on the write lock, reads share the read lock.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	credentials map[int64]Credential
	usernames   map[string]int64
	devices     map[int64]Device
	audio       map[int64]memoryAudio
	commands    []Command
	telemetry   []TelemetryRecord
	broadcasts  []BroadcastLog

	nextCredentialID int64
	nextDeviceID     int64
	nextAudioID      int64
	nextCommandID    int64
	nextTelemetryID  int64
	nextBroadcastID  int64
}

type memoryAudio struct {
	meta AudioResource
	data []byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		credentials: make(map[int64]Credential),
		usernames:   make(map[string]int64),
		devices:     make(map[int64]Device),
		audio:       make(map[int64]memoryAudio),
	}
}

// SetClock replaces the time source used for server-assigned timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) AppendCommand(_ context.Context, cmd NewCommand) (Command, error) {
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var resourceName string
	if cmd.ResourceID != nil {
		a, ok := m.audio[*cmd.ResourceID]
		if !ok {
			return Command{}, fmt.Errorf("audio resource %d: %w", *cmd.ResourceID, ErrNotFound)
		}
		resourceName = a.meta.Name
	}
	for _, id := range cmd.Scope.Targets {
		if _, ok := m.devices[id]; !ok {
			return Command{}, fmt.Errorf("target device %d: %w", id, ErrNotFound)
		}
	}

	m.nextCommandID++
	c := Command{
		ID:           m.nextCommandID,
		Action:       cmd.Action,
		ResourceID:   copyID(cmd.ResourceID),
		ResourceName: resourceName,
		Scope:        normalizeScope(cmd.Scope),
		CreatedAt:    m.now().UTC(),
	}
	m.commands = append(m.commands, c)
	return cloneCommand(c), nil
}

func (m *Memory) LatestUnseen(_ context.Context, deviceID int64, cursor *int64) (Command, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.commands) - 1; i >= 0; i-- {
		c := m.commands[i]
		if cursor != nil && c.ID <= *cursor {
			break
		}
		if c.Scope.Includes(deviceID) {
			return cloneCommand(c), true, nil
		}
	}
	return Command{}, false, nil
}

func (m *Memory) GetCommand(_ context.Context, id int64) (Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := slices.BinarySearchFunc(m.commands, id, func(c Command, id int64) int {
		switch {
		case c.ID < id:
			return -1
		case c.ID > id:
			return 1
		default:
			return 0
		}
	})
	if !ok {
		return Command{}, fmt.Errorf("command %d: %w", id, ErrNotFound)
	}
	return cloneCommand(m.commands[i]), nil
}

func (m *Memory) CredentialByUsername(_ context.Context, username string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return Credential{}, fmt.Errorf("credential %q: %w", username, ErrNotFound)
	}
	return m.credentials[id], nil
}

func (m *Memory) DeviceByCredential(_ context.Context, credentialID int64) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.devices {
		if d.CredentialID == credentialID {
			return cloneDevice(d), nil
		}
	}
	return Device{}, fmt.Errorf("device for credential %d: %w", credentialID, ErrNotFound)
}

func (m *Memory) TouchDevice(_ context.Context, deviceID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	at = at.UTC()
	d.LastSeenAt = &at
	m.devices[deviceID] = d
	return nil
}

func (m *Memory) OpenAudio(_ context.Context, id int64) (AudioResource, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.audio[id]
	if !ok {
		return AudioResource{}, nil, fmt.Errorf("audio resource %d: %w", id, ErrNotFound)
	}
	return a.meta, slices.Clone(a.data), nil
}

func (m *Memory) AppendTelemetry(_ context.Context, deviceID int64, level, message string) (TelemetryRecord, error) {
	level, message = NormalizeTelemetry(level, message)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[deviceID]; !ok {
		return TelemetryRecord{}, fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	m.nextTelemetryID++
	rec := TelemetryRecord{
		ID:        m.nextTelemetryID,
		DeviceID:  deviceID,
		Level:     level,
		Message:   message,
		CreatedAt: m.now().UTC(),
	}
	m.telemetry = append(m.telemetry, rec)
	return rec, nil
}

func (m *Memory) CreateDevice(_ context.Context, username, passwordHash, name string) (Device, error) {
	username, err := validateNewDevice(username, name)
	if err != nil {
		return Device{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usernames[username]; ok {
		return Device{}, fmt.Errorf("username %q: %w", username, ErrDuplicate)
	}
	now := m.now().UTC()

	m.nextCredentialID++
	cred := Credential{ID: m.nextCredentialID, Username: username, PasswordHash: passwordHash, CreatedAt: now}
	m.credentials[cred.ID] = cred
	m.usernames[username] = cred.ID

	m.nextDeviceID++
	d := Device{
		ID:           m.nextDeviceID,
		CredentialID: cred.ID,
		Username:     username,
		Name:         name,
		Active:       true,
		CreatedAt:    now,
	}
	m.devices[d.ID] = d
	return d, nil
}

func (m *Memory) ListDevices(context.Context) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, cloneDevice(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDevice(_ context.Context, id int64) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return Device{}, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return cloneDevice(d), nil
}

func (m *Memory) DeactivateDevice(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	d.Active = false
	m.devices[id] = d
	return nil
}

func (m *Memory) SetDevicePassword(_ context.Context, deviceID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	cred := m.credentials[d.CredentialID]
	cred.PasswordHash = passwordHash
	m.credentials[cred.ID] = cred
	return nil
}

func (m *Memory) PutAudio(_ context.Context, name, description string, data []byte) (AudioResource, error) {
	if err := validateAudioUpload(name, data); err != nil {
		return AudioResource{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAudioID++
	meta := AudioResource{
		ID:          m.nextAudioID,
		Name:        name,
		Description: description,
		SizeBytes:   int64(len(data)),
		UploadedAt:  m.now().UTC(),
	}
	m.audio[meta.ID] = memoryAudio{meta: meta, data: slices.Clone(data)}
	return meta, nil
}

func (m *Memory) ListAudio(context.Context) ([]AudioResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AudioResource, 0, len(m.audio))
	for _, a := range m.audio {
		out = append(out, a.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RecordBroadcast(_ context.Context, entry BroadcastLog) (BroadcastLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextBroadcastID++
	entry.ID = m.nextBroadcastID
	entry.ResourceID = copyID(entry.ResourceID)
	entry.Scope = entry.Scope.clone()
	entry.ExecutedAt = m.now().UTC()
	m.broadcasts = append(m.broadcasts, entry)
	return entry, nil
}

func (m *Memory) RecentTelemetry(_ context.Context, deviceID int64, limit int) ([]TelemetryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []TelemetryRecord
	for i := len(m.telemetry) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.telemetry[i].DeviceID == deviceID {
			out = append(out, m.telemetry[i])
		}
	}
	return out, nil
}

// normalizeScope canonicalizes a validated scope: broadcast scopes carry no
// targets, explicit scopes are sorted and deduplicated.
func normalizeScope(s Scope) Scope {
	if s.AllDevices {
		return AllDevicesScope()
	}
	return TargetScope(s.Targets...)
}

func cloneCommand(c Command) Command {
	c.ResourceID = copyID(c.ResourceID)
	c.Scope = c.Scope.clone()
	return c
}

func cloneDevice(d Device) Device {
	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		d.LastSeenAt = &t
	}
	return d
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
