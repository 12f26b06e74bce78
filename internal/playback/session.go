// Package playback owns the single live playback surface. Navigating to a
// video acquires a decode handle, builds a surface and plays it looped and
// mute-respecting; navigating away tears the session down completely before
// the next one may attach. At most one non-torn-down session exists at any
// instant.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/mediacache"
)

// State is the lifecycle phase of the current session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateReady
	StatePlaying
	StateTornDown
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateTornDown:
		return "torndown"
	default:
		return "unknown"
	}
}

const (
	defaultLocalTimeout   = 5 * time.Second
	defaultNetworkTimeout = 10 * time.Second
)

// playRetryDelays guards against decoder warm-up stalls: if the rate stays
// zero after Play, retry at these offsets.
var playRetryDelays = []time.Duration{300 * time.Millisecond, 700 * time.Millisecond}

// Manager is the playback session manager. All surface attach/detach flows
// through it; background acquisitions re-check the target under the lock
// before attaching so a stale result can never become the live surface.
type Manager struct {
	media   domain.MediaStore
	cache   *mediacache.Cache
	factory domain.SurfaceFactory
	logger  *slog.Logger

	localTimeout   time.Duration
	networkTimeout time.Duration
	retryDelays    []time.Duration

	mu         sync.Mutex
	state      State
	targetID   string
	surface    domain.PlaySurface
	handle     domain.VideoHandle
	muted      bool
	dismissing bool
	generation uint64
}

// New creates a session manager. The cache is consulted for pre-acquired
// decode handles before hitting the store.
func New(media domain.MediaStore, cache *mediacache.Cache, factory domain.SurfaceFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		media:          media,
		cache:          cache,
		factory:        factory,
		logger:         logger,
		localTimeout:   defaultLocalTimeout,
		networkTimeout: defaultNetworkTimeout,
		retryDelays:    playRetryDelays,
		muted:          true,
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveSessions counts sessions in Ready or Playing. It can only ever be
// zero or one; tests assert it after every navigation.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.surface != nil && (m.state == StateReady || m.state == StatePlaying) {
		return 1
	}
	return 0
}

// Show navigates the session to a video asset: tears down the previous
// session, acquires a decode handle (cache first, then a local-only store
// request, then a network-permitted retry) and attaches a new surface in
// Ready state. If the user navigated away or the view started dismissing
// while the acquisition was in flight, the result is discarded untouched.
func (m *Manager) Show(ctx context.Context, asset domain.Asset, networkAllowed bool) error {
	m.mu.Lock()
	m.teardownLocked()
	m.state = StateAcquiring
	m.targetID = asset.ID
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	handle, err := m.acquire(ctx, asset.ID, networkAllowed)
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.generation != gen || m.dismissing || m.targetID != asset.ID {
		m.mu.Unlock()
		// Never attach a surface for a stale target.
		handle.Release()
		m.logger.Debug("discarding stale acquisition", "id", asset.ID)
		return nil
	}
	m.mu.Unlock()

	// Surface construction can be slow; keep it off the lock. The attach
	// below re-checks the target.
	surface, err := m.factory.Build(handle, true)
	if err != nil {
		handle.Release()
		m.mu.Lock()
		if m.generation == gen {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return err
	}
	surface.SetVolume(0)
	surface.SetMuted(true)

	m.mu.Lock()
	if m.generation != gen || m.dismissing || m.targetID != asset.ID {
		m.mu.Unlock()
		surface.Detach()
		handle.Release()
		return nil
	}
	surface.OnEnded(m.loopFunc(gen))
	m.surface = surface
	m.handle = handle
	m.state = StateReady
	m.mu.Unlock()

	return nil
}

// acquire obtains a decode handle: pre-acquired cache entry first, then a
// two-tier store request. Each tier carries its own timeout.
func (m *Manager) acquire(ctx context.Context, id string, networkAllowed bool) (domain.VideoHandle, error) {
	if handle, ok := m.cache.TakeVideo(id); ok {
		return handle, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, m.localTimeout)
	handle, err := m.media.RequestVideo(localCtx, id, false)
	cancel()
	if err == nil && handle != nil {
		return handle, nil
	}

	if !networkAllowed {
		if err == nil {
			err = domain.ErrAssetNotFound
		}
		return nil, err
	}

	netCtx, cancel := context.WithTimeout(ctx, m.networkTimeout)
	defer cancel()
	handle, err = m.media.RequestVideo(netCtx, id, true)
	if err != nil {
		if netCtx.Err() == context.DeadlineExceeded {
			return nil, domain.ErrAcquireTimeout
		}
		return nil, err
	}
	if handle == nil {
		return nil, domain.ErrAssetNotFound
	}
	return handle, nil
}

// Play transitions Ready -> Playing: seek to start (tolerant), apply the
// global mute state and start playback, retrying on decoder warm-up stalls.
func (m *Manager) Play() {
	m.mu.Lock()
	if m.state != StateReady || m.surface == nil {
		m.mu.Unlock()
		return
	}
	surface := m.surface
	muted := m.muted
	gen := m.generation
	m.state = StatePlaying
	m.mu.Unlock()

	// Seek failures here are tolerated; the surface starts at zero anyway.
	_ = surface.SeekStart()
	m.applyMute(surface, muted)
	if err := surface.Play(); err != nil {
		m.logger.Warn("play failed", "error", err)
	}

	for _, delay := range m.retryDelays {
		if surface.Rate() != 0 {
			break
		}
		time.Sleep(delay)
		m.mu.Lock()
		stale := m.generation != gen || m.dismissing
		m.mu.Unlock()
		if stale {
			return
		}
		if surface.Rate() == 0 {
			m.logger.Debug("playback rate still zero, retrying")
			_ = surface.SeekStart()
			_ = surface.Play()
		}
	}
}

// loopFunc builds the play-to-end callback for a session generation. If the
// surface is still current and the view is not mid-teardown, playback
// restarts from zero with the mute state reapplied.
func (m *Manager) loopFunc(gen uint64) func() {
	return func() {
		m.mu.Lock()
		if m.generation != gen || m.dismissing || m.surface == nil {
			m.mu.Unlock()
			return
		}
		surface := m.surface
		muted := m.muted
		m.mu.Unlock()

		m.applyMute(surface, muted)
		_ = surface.SeekStart()
		_ = surface.Play()
	}
}

func (m *Manager) applyMute(surface domain.PlaySurface, muted bool) {
	surface.SetMuted(muted)
	if muted {
		surface.SetVolume(0)
	} else {
		surface.SetVolume(1)
	}
}

// SetMuted updates the global mute state and applies it to the live surface.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	surface := m.surface
	m.mu.Unlock()
	if surface != nil {
		m.applyMute(surface, muted)
	}
}

// Muted returns the global mute state.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Dismiss force-mutes and pauses immediately, regardless of in-flight
// acquisition state. In-flight acquisitions observe the flag and discard
// their results instead of attaching.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	m.dismissing = true
	surface := m.surface
	m.mu.Unlock()
	if surface != nil {
		surface.Pause()
		surface.SetMuted(true)
		surface.SetVolume(0)
	}
}

// Resume clears the dismissing flag (view re-presented or app foregrounded).
func (m *Manager) Resume() {
	m.mu.Lock()
	m.dismissing = false
	m.mu.Unlock()
}

// Teardown destroys the current session: pause, force-mute, detach the
// surface and release the decode handle. Synchronous and side-effect
// complete on return.
func (m *Manager) Teardown() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
}

// teardownLocked runs the full teardown ordering under the lock so no new
// session can begin acquiring until it completes.
func (m *Manager) teardownLocked() {
	m.generation++
	if m.surface != nil {
		m.surface.Pause()
		m.surface.SetVolume(0)
		m.surface.SetMuted(true)
		m.surface.OnEnded(nil)
		m.surface.Detach()
		m.surface = nil
	}
	if m.handle != nil {
		m.handle.Release()
		m.handle = nil
	}
	if m.state != StateIdle {
		m.state = StateTornDown
	}
	// TornDown is terminal for the session; the slot is immediately
	// recyclable.
	m.state = StateIdle
	m.targetID = ""
}
