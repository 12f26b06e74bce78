package domain

import (
	"image"
	"time"
)

// MediaKind distinguishes content types
type MediaKind int

const (
	KindImage MediaKind = iota
	KindVideo
)

// String returns a human-readable representation of the media kind
func (k MediaKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ContentFilter restricts which media kinds the pipeline serves
type ContentFilter int

const (
	ContentAll ContentFilter = iota
	ContentImages
	ContentVideos
)

// Allows reports whether the content filter admits the given kind.
func (c ContentFilter) Allows(k MediaKind) bool {
	switch c {
	case ContentImages:
		return k == KindImage
	case ContentVideos:
		return k == KindVideo
	default:
		return true
	}
}

// Coordinate is a GPS position attached to an asset
type Coordinate struct {
	Lat float64
	Lon float64
}

// Asset represents one photo or video in the backing media store.
// Identity is the ID string; assets are never mutated, only referenced.
type Asset struct {
	ID         string        // Store-specific stable identifier
	Kind       MediaKind     // Image or video
	CreatedAt  time.Time     // Creation timestamp
	Coordinate *Coordinate   // Optional GPS position
	Duration   time.Duration // Video runtime (zero for images)
	FileSize   int64         // File size in bytes
	Favorite   bool          // User-favorited flag
	Screenshot bool          // Screenshot flag
}

// IsShortForm reports whether the asset qualifies for the short-form video
// category (video kind with duration at or under the cutoff).
func (a Asset) IsShortForm() bool {
	return a.Kind == KindVideo && a.Duration > 0 && a.Duration <= ShortFormMaxDuration
}

// AssetMetadata holds the cheap per-asset properties served by the store's
// metadata path, used for prefetching and display enrichment.
type AssetMetadata struct {
	CreatedAt  time.Time
	Coordinate *Coordinate
	Favorite   bool
	Duration   time.Duration
	Width      int
	Height     int
}

// ImageResult is the outcome of an image request against the media store.
type ImageResult struct {
	Image    image.Image // Decoded bitmap, nil on failure
	Degraded bool        // Low-quality/placeholder decode
	Remote   bool        // Asset required (or would require) network access
}

// ImageQuality selects the decode path for an image request
type ImageQuality int

const (
	// QualityFast requests an opportunistic low-resolution decode for
	// instant paint.
	QualityFast ImageQuality = iota

	// QualityHigh requests a full-quality decode.
	QualityHigh
)

// Decision is the outcome of a swipe on a single asset
type Decision int

const (
	DecisionKeep Decision = iota
	DecisionDelete
)

// String returns a human-readable representation of the decision
func (d Decision) String() string {
	switch d {
	case DecisionKeep:
		return "keep"
	case DecisionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SwipeRecord is one recorded decision in the active batch's ledger
type SwipeRecord struct {
	AssetID  string   `json:"assetId"`
	Decision Decision `json:"decision"`
}

// Batch is a fixed-capacity window over the filtered asset sequence.
// Membership excludes any asset already processed for the active filter.
type Batch struct {
	Index  int     // Zero-based batch index within the sequence
	Assets []Asset // At most the configured batch size
}

// DefaultBatchSize is the number of assets presented per review cycle.
const DefaultBatchSize = 15

// ShortFormMaxDuration is the duration cutoff for the short-form category.
const ShortFormMaxDuration = 10 * time.Second
