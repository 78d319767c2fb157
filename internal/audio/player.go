// Package audio starts and stops local WAV playback by running the platform's
// command-line player as a child process.
package audio

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Player is the playback capability the client drives. Play begins playback
// asynchronously and preempts anything already playing. Stop is idempotent.
type Player interface {
	Play(path string) error
	Stop() error
}

// PathPlaceholder in a player command is replaced by the file to play. When
// absent the path is appended as the last argument.
const PathPlaceholder = "{path}"

const defaultStopGrace = 2 * time.Second

// DefaultCommand returns the player command line for goos.
func DefaultCommand(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"afplay", PathPlaceholder}
	case "windows":
		return []string{
			"powershell", "-NoProfile", "-NonInteractive", "-Command",
			"(New-Object Media.SoundPlayer '" + PathPlaceholder + "').PlaySync()",
		}
	default:
		return []string{"aplay", "-q", PathPlaceholder}
	}
}

// ExecPlayer runs one player process at a time.
type ExecPlayer struct {
	argv      []string
	stopGrace time.Duration

	mu      sync.Mutex
	current *exec.Cmd
	exited  chan struct{}
}

// NewExecPlayer uses command (split on whitespace) when non-empty, and the
// default for the running OS otherwise.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		argv = DefaultCommand(runtime.GOOS)
	}
	if argv[0] == "" {
		return nil, errors.New("player command is empty")
	}
	return &ExecPlayer{argv: argv, stopGrace: defaultStopGrace}, nil
}

func (p *ExecPlayer) args(path string) []string {
	out := make([]string, 0, len(p.argv)+1)
	substituted := false
	for _, a := range p.argv[1:] {
		if strings.Contains(a, PathPlaceholder) {
			a = strings.ReplaceAll(a, PathPlaceholder, path)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, path)
	}
	return out
}

func (p *ExecPlayer) Play(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	cmd := exec.Command(p.argv[0], p.args(path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.argv[0], err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	p.current = cmd
	p.exited = exited
	return nil
}

func (p *ExecPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// Running reports whether a player process is still alive.
func (p *ExecPlayer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// stopLocked asks the player to exit and kills it after the grace period.
func (p *ExecPlayer) stopLocked() {
	if p.current == nil {
		return
	}
	cmd, exited := p.current, p.exited
	p.current, p.exited = nil, nil

	select {
	case <-exited:
		return
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	timer := time.NewTimer(p.stopGrace)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-exited
	}
}

var _ Player = (*ExecPlayer)(nil)
