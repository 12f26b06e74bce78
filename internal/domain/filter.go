package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Filter is the category predicate applied when enumerating the library.
// It is a closed sum: Random, OnThisDay, Screenshots, Year, Favorites and
// ShortForm. Key() yields a stable discriminant used for persistence keys,
// counters and quota buckets; ParseFilter is its inverse.
type Filter interface {
	// Key returns the stable string discriminant ("random", "year:2019", ...)
	Key() string

	// Title returns the display name for the category
	Title() string

	// Matches reports whether the asset belongs to this category. The
	// reference time matters only for OnThisDay.
	Matches(a Asset, now time.Time) bool

	sealed()
}

// Random presents the whole library in shuffled order.
type Random struct{}

func (Random) Key() string                   { return "random" }
func (Random) Title() string                 { return "Shuffle" }
func (Random) Matches(Asset, time.Time) bool { return true }
func (Random) sealed()                       {}

// OnThisDay matches assets created on today's day and month in a past year.
type OnThisDay struct{}

func (OnThisDay) Key() string   { return "onthisday" }
func (OnThisDay) Title() string { return "On This Day" }
func (OnThisDay) Matches(a Asset, now time.Time) bool {
	return a.CreatedAt.Day() == now.Day() &&
		a.CreatedAt.Month() == now.Month() &&
		a.CreatedAt.Year() != now.Year()
}
func (OnThisDay) sealed() {}

// Screenshots matches flagged screenshots, presented oldest-first.
type Screenshots struct{}

func (Screenshots) Key() string                       { return "screenshots" }
func (Screenshots) Title() string                     { return "Screenshots" }
func (Screenshots) Matches(a Asset, _ time.Time) bool { return a.Screenshot }
func (Screenshots) sealed()                           {}

// Year matches assets created in a specific year.
type Year int

func (y Year) Key() string                       { return "year:" + strconv.Itoa(int(y)) }
func (y Year) Title() string                     { return strconv.Itoa(int(y)) }
func (y Year) Matches(a Asset, _ time.Time) bool { return a.CreatedAt.Year() == int(y) }
func (y Year) sealed()                           {}

// Favorites matches user-favorited assets.
type Favorites struct{}

func (Favorites) Key() string                       { return "favorites" }
func (Favorites) Title() string                     { return "Favorites" }
func (Favorites) Matches(a Asset, _ time.Time) bool { return a.Favorite }
func (Favorites) sealed()                           {}

// ShortForm matches videos with duration at or under ten seconds.
type ShortForm struct{}

func (ShortForm) Key() string                       { return "shortform" }
func (ShortForm) Title() string                     { return "Short Videos" }
func (ShortForm) Matches(a Asset, _ time.Time) bool { return a.IsShortForm() }
func (ShortForm) sealed()                           {}

// ParseFilter decodes a filter from its Key() discriminant.
func ParseFilter(key string) (Filter, error) {
	switch key {
	case "random":
		return Random{}, nil
	case "onthisday":
		return OnThisDay{}, nil
	case "screenshots":
		return Screenshots{}, nil
	case "favorites":
		return Favorites{}, nil
	case "shortform":
		return ShortForm{}, nil
	}
	if rest, ok := strings.CutPrefix(key, "year:"); ok {
		y, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid year filter %q: %w", key, err)
		}
		return Year(y), nil
	}
	return nil, fmt.Errorf("unknown filter key %q", key)
}

// AllFilters returns the selectable categories for a library spanning the
// given creation years (most recent first).
func AllFilters(years []int) []Filter {
	filters := []Filter{Random{}, OnThisDay{}, Screenshots{}, Favorites{}, ShortForm{}}
	for _, y := range years {
		filters = append(filters, Year(y))
	}
	return filters
}
