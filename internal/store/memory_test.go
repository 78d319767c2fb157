package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

var validWAV = append([]byte("RIFF\x00\x00\x00\x00WAVEfmt "), make([]byte, 16)...)

func mustDevice(t *testing.T, m *Memory, username string) Device {
	t.Helper()
	d, err := m.CreateDevice(context.Background(), username, "hash", "")
	if err != nil {
		t.Fatalf("create device %q: %v", username, err)
	}
	return d
}

func mustAppend(t *testing.T, m *Memory, cmd NewCommand) Command {
	t.Helper()
	c, err := m.AppendCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("append %+v: %v", cmd, err)
	}
	return c
}

func ptr(v int64) *int64 { return &v }

func TestScope_Validate(t *testing.T) {
	cases := []struct {
		name  string
		scope Scope
		ok    bool
	}{
		{name: "all", scope: AllDevicesScope(), ok: true},
		{name: "targets", scope: TargetScope(3, 1, 3), ok: true},
		{name: "empty", scope: Scope{}, ok: false},
		{name: "mixed", scope: Scope{AllDevices: true, Targets: []int64{1}}, ok: false},
		{name: "non-positive", scope: TargetScope(0), ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.scope.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidScope) {
				t.Fatalf("expected ErrInvalidScope, got %v", err)
			}
		})
	}

	s := TargetScope(3, 1, 3)
	if len(s.Targets) != 2 || s.Targets[0] != 1 || s.Targets[1] != 3 {
		t.Fatalf("expected sorted unique targets, got %v", s.Targets)
	}
	if !s.Includes(3) || s.Includes(2) {
		t.Fatalf("unexpected Includes result for %v", s.Targets)
	}
	if !AllDevicesScope().Includes(42) {
		t.Fatalf("all-devices scope must include every device")
	}
}

func TestNewCommand_Validate(t *testing.T) {
	cases := []struct {
		name string
		cmd  NewCommand
		want error
	}{
		{name: "play without resource", cmd: NewCommand{Action: ActionPlay, Scope: AllDevicesScope()}, want: ErrMissingResource},
		{name: "stop with resource", cmd: NewCommand{Action: ActionStop, ResourceID: ptr(1), Scope: AllDevicesScope()}, want: ErrInvalidCommand},
		{name: "lowercase action", cmd: NewCommand{Action: "play", ResourceID: ptr(1), Scope: AllDevicesScope()}, want: ErrInvalidCommand},
		{name: "bad scope", cmd: NewCommand{Action: ActionPing}, want: ErrInvalidScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cmd.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMemory_LatestUnseen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := mustDevice(t, m, "a")
	b := mustDevice(t, m, "b")
	res, err := m.PutAudio(ctx, "x.wav", "", validWAV)
	if err != nil {
		t.Fatalf("put audio: %v", err)
	}

	if _, ok, err := m.LatestUnseen(ctx, a.ID, nil); err != nil || ok {
		t.Fatalf("expected empty log to have nothing, got ok=%v err=%v", ok, err)
	}

	c1 := mustAppend(t, m, NewCommand{Action: ActionPing, Scope: AllDevicesScope()})
	c2 := mustAppend(t, m, NewCommand{Action: ActionStop, Scope: TargetScope(a.ID)})
	c3 := mustAppend(t, m, NewCommand{Action: ActionPlay, ResourceID: &res.ID, Scope: TargetScope(a.ID)})
	c4 := mustAppend(t, m, NewCommand{Action: ActionStop, Scope: TargetScope(b.ID)})

	if !(c1.ID < c2.ID && c2.ID < c3.ID && c3.ID < c4.ID) {
		t.Fatalf("ids must strictly increase: %d %d %d %d", c1.ID, c2.ID, c3.ID, c4.ID)
	}

	got, ok, err := m.LatestUnseen(ctx, a.ID, &c1.ID)
	if err != nil || !ok {
		t.Fatalf("expected a command, ok=%v err=%v", ok, err)
	}
	if got.ID != c3.ID || got.ResourceName != "x.wav" {
		t.Fatalf("expected latest-wins to return %d, got %+v", c3.ID, got)
	}

	if _, ok, _ := m.LatestUnseen(ctx, a.ID, &c3.ID); ok {
		t.Fatalf("expected nothing newer than %d for device a", c3.ID)
	}

	got, ok, _ = m.LatestUnseen(ctx, b.ID, nil)
	if !ok || got.ID != c4.ID {
		t.Fatalf("expected device b to see %d, got %+v ok=%v", c4.ID, got, ok)
	}
	got, ok, _ = m.LatestUnseen(ctx, b.ID, &c3.ID)
	if !ok || got.ID != c4.ID {
		t.Fatalf("expected device b to see %d after cursor %d, got %+v", c4.ID, c3.ID, got)
	}

	// Cursor ahead of the log (e.g. after a server reset) means nothing new.
	if _, ok, _ := m.LatestUnseen(ctx, a.ID, ptr(1000)); ok {
		t.Fatalf("expected nothing past a future cursor")
	}
}

func TestMemory_AppendRejectsUnknownReferences(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.AppendCommand(ctx, NewCommand{Action: ActionPlay, ResourceID: ptr(9), Scope: AllDevicesScope()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown resource, got %v", err)
	}
	if _, err := m.AppendCommand(ctx, NewCommand{Action: ActionStop, Scope: TargetScope(9)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}
	if _, err := m.GetCommand(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing to have been appended, got %v", err)
	}
}

func TestMemory_ConcurrentAppendsGetDistinctIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers, perWorker = 8, 50
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c, err := m.AppendCommand(ctx, NewCommand{Action: ActionPing, Scope: AllDevicesScope()})
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				ids <- c.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d ids, got %d", workers*perWorker, len(seen))
	}

	latest, ok, _ := m.LatestUnseen(ctx, 1, nil)
	if !ok || latest.ID != int64(workers*perWorker) {
		t.Fatalf("expected latest id %d, got %+v", workers*perWorker, latest)
	}
}

func TestMemory_CommandsAreImmutableCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := mustDevice(t, m, "a")
	c := mustAppend(t, m, NewCommand{Action: ActionStop, Scope: TargetScope(a.ID)})

	c.Scope.Targets[0] = 999
	got, err := m.GetCommand(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Scope.Targets[0] != a.ID {
		t.Fatalf("stored command was mutated through a returned value")
	}
}

func TestMemory_PutAudioValidatesHeader(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for name, data := range map[string][]byte{
		"short":    []byte("RIFF"),
		"not riff": append([]byte("RIFX\x00\x00\x00\x00WAVE"), 0),
		"not wave": append([]byte("RIFF\x00\x00\x00\x00AVI "), 0),
	} {
		if _, err := m.PutAudio(ctx, name, "", data); !errors.Is(err, ErrInvalidAudio) {
			t.Fatalf("%s: expected ErrInvalidAudio, got %v", name, err)
		}
	}
	if _, err := m.PutAudio(ctx, "  ", "", validWAV); !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("expected blank name to be rejected, got %v", err)
	}

	res, err := m.PutAudio(ctx, "ok.wav", "desc", validWAV)
	if err != nil {
		t.Fatalf("put audio: %v", err)
	}
	meta, data, err := m.OpenAudio(ctx, res.ID)
	if err != nil {
		t.Fatalf("open audio: %v", err)
	}
	if meta.SizeBytes != int64(len(validWAV)) || string(data) != string(validWAV) {
		t.Fatalf("unexpected audio %+v", meta)
	}
}

func TestNormalizeTelemetry(t *testing.T) {
	level, msg := NormalizeTelemetry("  ", "hi")
	if level != DefaultTelemetryLevel || msg != "hi" {
		t.Fatalf("expected default level, got %q %q", level, msg)
	}

	level, msg = NormalizeTelemetry(strings.Repeat("é", 30), strings.Repeat("ü", 4100))
	if n := len([]rune(level)); n != MaxTelemetryLevelLen {
		t.Fatalf("expected %d level runes, got %d", MaxTelemetryLevelLen, n)
	}
	if n := len([]rune(msg)); n != MaxTelemetryMessageLen {
		t.Fatalf("expected %d message runes, got %d", MaxTelemetryMessageLen, n)
	}
}

func TestNormalizeTelemetry_InvalidUTF8(t *testing.T) {
	level, msg := NormalizeTelemetry("WARN\xff", "disk \xffull")
	if !utf8.ValidString(level) || !utf8.ValidString(msg) {
		t.Fatalf("expected valid UTF-8, got %q %q", level, msg)
	}
	if msg != "disk \uFFFDull" {
		t.Fatalf("expected replacement character, got %q", msg)
	}
}

func TestMemory_RejectsOverlongNames(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.CreateDevice(ctx, "a", "hash", strings.Repeat("n", MaxDeviceNameLen+1)); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected ErrInvalidDevice for long device name, got %v", err)
	}
	if _, err := m.CreateDevice(ctx, "a", "hash", strings.Repeat("é", MaxDeviceNameLen)); err != nil {
		t.Fatalf("name at the limit should be accepted: %v", err)
	}
	if _, err := m.CreateDevice(ctx, "  ", "hash", ""); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected ErrInvalidDevice for blank username, got %v", err)
	}

	long := strings.Repeat("a", MaxAudioNameLen-3) + "wav."
	if _, err := m.PutAudio(ctx, long, "", validWAV); !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio for long audio name, got %v", err)
	}
}

func TestMemory_TelemetryRequiresDevice(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.AppendTelemetry(ctx, 7, "INFO", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	d := mustDevice(t, m, "a")
	rec, err := m.AppendTelemetry(ctx, d.ID, "", "boot")
	if err != nil {
		t.Fatalf("append telemetry: %v", err)
	}
	if rec.Level != DefaultTelemetryLevel || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestMemory_DeviceAdmin(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	d := mustDevice(t, m, "a")
	if _, err := m.CreateDevice(ctx, "a", "hash", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if d.DisplayName() != "a" {
		t.Fatalf("expected display name to fall back to username, got %q", d.DisplayName())
	}

	if err := m.SetDevicePassword(ctx, d.ID, "new-hash"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	cred, err := m.CredentialByUsername(ctx, "a")
	if err != nil || cred.PasswordHash != "new-hash" {
		t.Fatalf("expected rotated hash, got %+v err=%v", cred, err)
	}

	if err := m.DeactivateDevice(ctx, d.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := m.DeviceByCredential(ctx, cred.ID)
	if err != nil || got.Active {
		t.Fatalf("expected inactive device, got %+v err=%v", got, err)
	}
	if err := m.DeactivateDevice(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
