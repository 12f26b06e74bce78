package domain

import "context"

// MediaStore is the backing photo/video library. Implementations must be
// safe for concurrent use; every read may be slow (cloud-backed assets) and
// must honor ctx cancellation.
type MediaStore interface {
	// Enumerate returns all assets, unordered.
	Enumerate(ctx context.Context) ([]Asset, error)

	// RequestImage decodes the asset's image. targetSize bounds the longer
	// edge for QualityFast requests; QualityHigh ignores it. When
	// networkAllowed is false a cloud-only asset yields a degraded result
	// with Remote set (or ErrNetworkDisallowed when nothing local exists).
	RequestImage(ctx context.Context, id string, targetSize int, quality ImageQuality, networkAllowed bool) (ImageResult, error)

	// RequestVideo acquires a playable decode handle for a video asset.
	RequestVideo(ctx context.Context, id string, networkAllowed bool) (VideoHandle, error)

	// RequestMetadata fetches the cheap per-asset properties.
	RequestMetadata(ctx context.Context, id string) (AssetMetadata, error)

	// Delete removes the given assets as a single all-or-nothing batch.
	Delete(ctx context.Context, ids []string) error

	// SetFavorite toggles the favorite flag on an asset.
	SetFavorite(ctx context.Context, id string, favorite bool) error

	// StartPreheat asks the store's own read-ahead cache to warm the given
	// identifiers. Every StartPreheat must be paired with a StopPreheat for
	// the same identifiers when their window closes.
	StartPreheat(ids []string)
	StopPreheat(ids []string)
}

// VideoHandle is an acquired video decode resource. Release must be safe to
// call more than once.
type VideoHandle interface {
	// Path returns a local playable path for the decoded video.
	Path() string

	// Release frees the decode resource.
	Release()
}

// PlaySurface is an attached playback output for a single video session.
// All methods are called from the session manager only.
type PlaySurface interface {
	Play() error
	Pause()
	SetMuted(muted bool)
	SetVolume(volume float64)
	SeekStart() error

	// Rate reports the current playback rate; zero means stalled/not playing.
	Rate() float64

	// OnEnded registers the play-to-end callback. Registering nil clears it.
	OnEnded(fn func())

	// Detach tears the surface down and releases its output. Must be
	// synchronous and side-effect-complete on return.
	Detach()
}

// SurfaceFactory builds play surfaces from acquired video handles.
type SurfaceFactory interface {
	Build(handle VideoHandle, muted bool) (PlaySurface, error)
}

// Geocoder resolves a coordinate to a human-readable place description.
// Rate limiting is the caller's responsibility, not the service's.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c Coordinate) (string, error)
}

// QuotaGate is consulted before and after each recorded decision. The core
// never implements quota policy, it only calls out.
type QuotaGate interface {
	CanPerformSwipe(f Filter) bool
	RecordSwipe(f Filter)
}

// UnlimitedQuota is a QuotaGate that never denies.
type UnlimitedQuota struct{}

func (UnlimitedQuota) CanPerformSwipe(Filter) bool { return true }
func (UnlimitedQuota) RecordSwipe(Filter)          {}

// ProgressFunc reports fractional progress (0.0-1.0) of a long-running scan.
type ProgressFunc func(fraction float64)
