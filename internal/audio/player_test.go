package audio

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"
)

func TestDefaultCommand(t *testing.T) {
	if got := DefaultCommand("darwin")[0]; got != "afplay" {
		t.Fatalf("expected afplay on darwin, got %q", got)
	}
	if got := DefaultCommand("linux"); !slices.Equal(got, []string{"aplay", "-q", PathPlaceholder}) {
		t.Fatalf("unexpected linux command %v", got)
	}
	if got := DefaultCommand("windows")[0]; got != "powershell" {
		t.Fatalf("expected powershell on windows, got %q", got)
	}
}

func TestArgs_PlaceholderOrAppend(t *testing.T) {
	p, err := NewExecPlayer("mpv --no-video")
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := p.args("/tmp/a.wav"); !slices.Equal(got, []string{"--no-video", "/tmp/a.wav"}) {
		t.Fatalf("expected appended path, got %v", got)
	}

	p, _ = NewExecPlayer("play {path} -q")
	if got := p.args("/tmp/a.wav"); !slices.Equal(got, []string{"/tmp/a.wav", "-q"}) {
		t.Fatalf("expected substituted path, got %v", got)
	}
}

// fakePlayer writes a script that ignores its arguments and sleeps.
func fakePlayer(t *testing.T) *ExecPlayer {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script player not available on windows")
	}
	script := filepath.Join(t.TempDir(), "player.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	p, err := NewExecPlayer(script)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	p.stopGrace = 500 * time.Millisecond
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestExecPlayer_PlayPreemptsAndStopIsIdempotent(t *testing.T) {
	p := fakePlayer(t)

	if err := p.Stop(); err != nil {
		t.Fatalf("stop with nothing playing: %v", err)
	}

	if err := p.Play("first.wav"); err != nil {
		t.Fatalf("play: %v", err)
	}
	first := p.current
	if !p.Running() {
		t.Fatalf("expected player to be running")
	}

	if err := p.Play("second.wav"); err != nil {
		t.Fatalf("second play: %v", err)
	}
	if p.current == first {
		t.Fatalf("expected a new process for the second play")
	}
	if first.ProcessState == nil {
		t.Fatalf("expected the first process to have been reaped")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Running() {
		t.Fatalf("expected nothing running after stop")
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestExecPlayer_MissingBinary(t *testing.T) {
	p, err := NewExecPlayer(filepath.Join(t.TempDir(), "no-such-player"))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if err := p.Play("x.wav"); err == nil {
		t.Fatalf("expected start error for missing binary")
	}
	if p.Running() {
		t.Fatalf("expected nothing running")
	}
}

func TestValidateWAV(t *testing.T) {
	ok := append([]byte("RIFF\x10\x00\x00\x00WAVE"), []byte("fmt ")...)
	if err := ValidateWAV(ok); err != nil {
		t.Fatalf("expected valid header, got %v", err)
	}
	for name, data := range map[string][]byte{
		"empty":    nil,
		"short":    []byte("RIFF1234WAV"),
		"not riff": []byte("RIFX1234WAVE"),
		"not wave": []byte("RIFF1234AVI "),
	} {
		if err := ValidateWAV(data); err != ErrNotWAV {
			t.Fatalf("%s: expected ErrNotWAV, got %v", name, err)
		}
	}
}
