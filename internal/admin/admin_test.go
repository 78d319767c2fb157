package admin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"mfmc/core-go/internal/auth"
	"mfmc/core-go/internal/store"
)

var testWAV = append([]byte("RIFF\x00\x00\x00\x00WAVEfmt "), make([]byte, 16)...)

type fixture struct {
	mem    *store.Memory
	hasher *auth.Hasher
	out    *bytes.Buffer
}

func newFixture() *fixture {
	return &fixture{mem: store.NewMemory(), hasher: auth.NewHasher(bcrypt.MinCost), out: &bytes.Buffer{}}
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.out.Reset()
	cli := &CLI{Store: f.mem, Hasher: f.hasher, Out: f.out}
	return cli.Run(context.Background(), args)
}

func (f *fixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	if err := f.run(t, args...); err != nil {
		t.Fatalf("mfmcctl %s: %v", strings.Join(args, " "), err)
	}
	return f.out.String()
}

var passwordLine = regexp.MustCompile(`password: (\S+)`)

func TestDeviceAdd_PrintsPasswordThatAuthenticates(t *testing.T) {
	f := newFixture()
	out := f.mustRun(t, "device", "add", "--username", "lobby", "--name", "Lobby speaker")

	m := passwordLine.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("expected password in output, got %q", out)
	}
	cred, err := f.mem.CredentialByUsername(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if err := f.hasher.Compare(cred.PasswordHash, []byte(m[1])); err != nil {
		t.Fatalf("printed password does not match stored hash: %v", err)
	}

	if err := f.run(t, "device", "add", "--username", "lobby"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := f.run(t, "device", "add"); err == nil {
		t.Fatalf("expected missing --username error")
	}
}

func TestDevicePasswdAndDeactivate(t *testing.T) {
	f := newFixture()
	f.mustRun(t, "device", "add", "--username", "lobby")
	before, _ := f.mem.CredentialByUsername(context.Background(), "lobby")

	out := f.mustRun(t, "device", "passwd", "1")
	m := passwordLine.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("expected new password, got %q", out)
	}
	after, _ := f.mem.CredentialByUsername(context.Background(), "lobby")
	if after.PasswordHash == before.PasswordHash {
		t.Fatalf("expected password hash to change")
	}

	f.mustRun(t, "device", "deactivate", "1")
	out = f.mustRun(t, "device", "list")
	if !strings.Contains(out, "lobby") || !strings.Contains(out, "false") {
		t.Fatalf("expected inactive lobby in listing, got %q", out)
	}

	if err := f.run(t, "device", "deactivate", "abc"); err == nil {
		t.Fatalf("expected invalid id error")
	}
	if err := f.run(t, "device", "deactivate", "99"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAudioAdd(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()
	good := filepath.Join(dir, "chime.wav")
	bad := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(good, testWAV, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(bad, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := f.mustRun(t, "audio", "add", "--description", "door chime", good)
	if !strings.Contains(out, "audio 1 stored (chime.wav") {
		t.Fatalf("unexpected output %q", out)
	}
	if err := f.run(t, "audio", "add", bad); !errors.Is(err, store.ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio, got %v", err)
	}

	out = f.mustRun(t, "audio", "list")
	if !strings.Contains(out, "door chime") || strings.Contains(out, "notes.txt") {
		t.Fatalf("unexpected listing %q", out)
	}
}

func TestBroadcastCommands(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mustRun(t, "device", "add", "--username", "a")
	f.mustRun(t, "device", "add", "--username", "b")
	if _, err := f.mem.PutAudio(ctx, "x.wav", "", testWAV); err != nil {
		t.Fatalf("put audio: %v", err)
	}

	out := f.mustRun(t, "play", "--audio", "1", "--all", "--by", "ops")
	if !strings.Contains(out, "command 1 PLAY -> all devices") {
		t.Fatalf("unexpected output %q", out)
	}
	out = f.mustRun(t, "stop", "--device", "2", "--device", "1")
	if !strings.Contains(out, "command 2 STOP -> devices [1 2]") {
		t.Fatalf("unexpected output %q", out)
	}
	f.mustRun(t, "ping", "--device", "1")

	got, ok, err := f.mem.LatestUnseen(ctx, 2, nil)
	if err != nil || !ok || got.ID != 2 {
		t.Fatalf("expected device 2 to see stop, got %+v ok=%v err=%v", got, ok, err)
	}
	got, _, _ = f.mem.LatestUnseen(ctx, 1, nil)
	if got.Action != store.ActionPing {
		t.Fatalf("expected device 1 to see ping, got %+v", got)
	}

	for _, args := range [][]string{
		{"stop"},
		{"stop", "--all", "--device", "1"},
		{"play", "--all"},
		{"ping", "--all"},
		{"stop", "--device", "99"},
	} {
		if err := f.run(t, args...); err == nil {
			t.Fatalf("mfmcctl %s: expected error", strings.Join(args, " "))
		}
	}
}

func TestLogs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mustRun(t, "device", "add", "--username", "a")
	if _, err := f.mem.AppendTelemetry(ctx, 1, "WARNING", "disk low"); err != nil {
		t.Fatalf("append telemetry: %v", err)
	}

	out := f.mustRun(t, "logs", "--device", "1", "--limit", "5")
	if !strings.Contains(out, "WARNING") || !strings.Contains(out, "disk low") {
		t.Fatalf("unexpected logs %q", out)
	}
	if err := f.run(t, "logs"); err == nil {
		t.Fatalf("expected missing --device error")
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture()
	if err := f.run(t, "reboot"); err == nil || !strings.Contains(err.Error(), `unknown command "reboot"`) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := f.run(t, "device", "add", "--bogus"); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}
