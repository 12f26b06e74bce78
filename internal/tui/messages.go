package tui

import (
	"github.com/mmcdole/sweep/internal/domain"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// LibraryLoadedMsg signals that the pipeline refreshed its sequence
type LibraryLoadedMsg struct {
	Total int
}

// BatchLoadedMsg carries the next batch of undecided assets
type BatchLoadedMsg struct {
	Batch      domain.Batch
	BatchIndex int
}

// CategoryCompleteMsg signals the active filter has no undecided assets left
type CategoryCompleteMsg struct{}

// EmptyLibraryMsg signals the backing store holds no media at all, distinct
// from a completed category
type EmptyLibraryMsg struct{}

// AccessDeniedMsg signals library permission was revoked
type AccessDeniedMsg struct{}

// ImageLoadedMsg delivers a decoded image for an asset
type ImageLoadedMsg struct {
	AssetID string
	Result  domain.ImageResult
	Quality domain.ImageQuality
}

// ImageFailedMsg signals both decode tiers failed for an asset
type ImageFailedMsg struct {
	AssetID string
}

// VideoReadyMsg signals the playback session reached Ready for an asset
type VideoReadyMsg struct {
	AssetID string
}

// VideoFailedMsg signals video acquisition failed or timed out
type VideoFailedMsg struct {
	AssetID string
}

// ConfirmDoneMsg signals the batch confirm completed
type ConfirmDoneMsg struct {
	Deleted int
}

// ConfirmFailedMsg signals the batched deletion was rejected; the ledger is
// preserved and review re-presented
type ConfirmFailedMsg struct {
	Err error
}

// CountLoadedMsg delivers a remaining-count for a filter
type CountLoadedMsg struct {
	FilterKey string
	Count     int
}

// ScanProgressMsg reports short-form scan progress; Fraction 1.0 arrives
// exactly once per scan
type ScanProgressMsg struct {
	Fraction float64
}

// ScanDoneMsg signals the short-form scan finished (or failed)
type ScanDoneMsg struct {
	Err error
}

// GeocodeResolvedMsg delivers a place description for the displayed asset
type GeocodeResolvedMsg struct {
	AssetID string
	Place   string
}

// PrefetchDoneMsg signals a background prefetch walk finished
type PrefetchDoneMsg struct{}

// LoadingStuckMsg fires after a loading state has lasted long enough to
// offer the user a skip affordance
type LoadingStuckMsg struct {
	AssetID string
}

// StatusMsg sets a temporary status line message
type StatusMsg struct {
	Message string
	IsError bool
}

// ClearStatusMsg clears the status line
type ClearStatusMsg struct{}
