// Package player drives an external mpv process as the playback surface.
// Each surface owns one process and its IPC socket; Detach kills both. The
// process plays a single local file and holds it at EOF; the caller loops it
// through the eof-reached observer.
package player

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
)

const (
	defaultCommand = "mpv"
	socketTimeout  = 3 * time.Second
)

// Factory builds mpv-backed playback surfaces.
type Factory struct {
	command string
	args    []string
	logger  *slog.Logger

	mu  sync.Mutex
	seq int
}

// NewFactory creates a surface factory. An empty command uses mpv from PATH;
// extra args are appended to every launch.
func NewFactory(command string, args []string, logger *slog.Logger) *Factory {
	if command == "" {
		command = defaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{command: command, args: args, logger: logger}
}

// Available reports whether the player command can be found.
func (f *Factory) Available() bool {
	_, err := exec.LookPath(f.command)
	return err == nil
}

// Build launches a player process for the handle's file, paused and muted,
// and connects its control socket.
func (f *Factory) Build(handle domain.VideoHandle, muted bool) (domain.PlaySurface, error) {
	if _, err := exec.LookPath(f.command); err != nil {
		return nil, fmt.Errorf("player command %q not found: %w", f.command, err)
	}

	f.mu.Lock()
	f.seq++
	socket := filepath.Join(os.TempDir(), fmt.Sprintf("sweep-player-%d-%d.sock", os.Getpid(), f.seq))
	f.mu.Unlock()

	args := []string{
		"--input-ipc-server=" + socket,
		"--pause",
		"--mute=yes",
		"--volume=0",
		"--loop-file=no",
		"--keep-open=yes",
		"--no-terminal",
		"--force-window=no",
	}
	args = append(args, f.args...)
	args = append(args, handle.Path())

	cmd := exec.Command(f.command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting player: %w", err)
	}

	client, err := dialIPC(socket, socketTimeout)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.Remove(socket)
		return nil, err
	}

	s := &surface{
		client: client,
		cmd:    cmd,
		socket: socket,
		logger: f.logger,
	}
	client.setEventHandler(s.handleEvent)
	// keep-open pauses the player at EOF with the file still loaded, so
	// end-file never arrives. The eof-reached property flip is the end
	// signal instead.
	if err := client.observeProperty(1, "eof-reached"); err != nil {
		f.logger.Warn("observing eof-reached failed, looping disabled", "error", err)
	}
	if !muted {
		s.SetMuted(false)
	}

	// Reap the process when it exits for any reason.
	go func() {
		cmd.Wait()
		os.Remove(socket)
	}()

	f.logger.Debug("player surface attached", "path", handle.Path(), "socket", socket)
	return s, nil
}

// surface is one live player process.
type surface struct {
	client *ipcClient
	cmd    *exec.Cmd
	socket string
	logger *slog.Logger

	mu       sync.Mutex
	onEnded  func()
	detached bool
}

func (s *surface) Play() error {
	return s.client.setProperty("pause", false)
}

func (s *surface) Pause() {
	if err := s.client.setProperty("pause", true); err != nil {
		s.logger.Debug("pause failed", "error", err)
	}
}

func (s *surface) SetMuted(muted bool) {
	if err := s.client.setProperty("mute", muted); err != nil {
		s.logger.Debug("mute failed", "error", err)
	}
}

// SetVolume maps the 0..1 range onto the player's 0..100 scale.
func (s *surface) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	if err := s.client.setProperty("volume", v*100); err != nil {
		s.logger.Debug("volume failed", "error", err)
	}
}

func (s *surface) SeekStart() error {
	_, err := s.client.command("seek", 0, "absolute")
	return err
}

// Rate reports the effective playback rate: zero while paused or stalled,
// the speed property otherwise.
func (s *surface) Rate() float64 {
	var paused bool
	if err := s.client.getProperty("pause", &paused); err != nil || paused {
		return 0
	}
	var speed float64
	if err := s.client.getProperty("speed", &speed); err != nil {
		return 0
	}
	return speed
}

func (s *surface) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *surface) handleEvent(ev ipcEvent) {
	switch {
	case ev.Event == "property-change" && ev.Name == "eof-reached":
		var reached bool
		if err := json.Unmarshal(ev.Data, &reached); err != nil || !reached {
			return
		}
	case ev.Event == "end-file" && ev.Reason != "quit" && ev.Reason != "stop":
		// Normally suppressed by keep-open; still treated as an end
		// signal if the player sends it.
	default:
		return
	}

	s.mu.Lock()
	fn := s.onEnded
	detached := s.detached
	s.mu.Unlock()
	if fn != nil && !detached {
		// Off the read loop: the callback issues its own IPC commands
		// and must not block response delivery.
		go fn()
	}
}

// Detach quits the player process and closes the control socket. Safe to call
// more than once.
func (s *surface) Detach() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	s.onEnded = nil
	s.mu.Unlock()

	if _, err := s.client.command("quit"); err != nil {
		// Quit over IPC failed; the process gets killed outright.
		s.cmd.Process.Kill()
	}
	s.client.close()
}
