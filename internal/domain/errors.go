package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrAssetNotFound indicates the requested asset does not exist
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAccessDenied indicates library access was revoked mid-session
	ErrAccessDenied = errors.New("library access denied")

	// ErrNetworkDisallowed indicates the asset needs network access but the
	// active storage-quality mode forbids it
	ErrNetworkDisallowed = errors.New("network access disallowed")

	// ErrDeleteRejected indicates the store refused the batched deletion
	ErrDeleteRejected = errors.New("deletion rejected by media store")

	// ErrCategoryComplete indicates the active filter has no undecided
	// assets left
	ErrCategoryComplete = errors.New("category complete")

	// ErrScanRequired indicates the short-form category was requested
	// before its duration scan finished
	ErrScanRequired = errors.New("short-form scan required")

	// ErrAcquireTimeout indicates a decode/acquisition exceeded its deadline
	ErrAcquireTimeout = errors.New("media acquisition timed out")

	// ErrSwipeLimitReached indicates the quota collaborator denied the swipe
	ErrSwipeLimitReached = errors.New("swipe limit reached")
)
