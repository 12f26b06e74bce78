package domain

import (
	"testing"
	"time"
)

func asset(id string, created time.Time) Asset {
	return Asset{ID: id, Kind: KindImage, CreatedAt: created}
}

func TestParseFilterRoundTrip(t *testing.T) {
	filters := []Filter{Random{}, OnThisDay{}, Screenshots{}, Favorites{}, ShortForm{}, Year(2019)}
	for _, f := range filters {
		parsed, err := ParseFilter(f.Key())
		if err != nil {
			t.Fatalf("ParseFilter(%q) failed: %v", f.Key(), err)
		}
		if parsed.Key() != f.Key() {
			t.Fatalf("round trip mismatch: got %q, want %q", parsed.Key(), f.Key())
		}
	}
}

func TestParseFilterRejectsUnknown(t *testing.T) {
	if _, err := ParseFilter("bogus"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if _, err := ParseFilter("year:abc"); err == nil {
		t.Fatalf("expected error for malformed year")
	}
}

func TestOnThisDayExcludesCurrentYear(t *testing.T) {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	f := OnThisDay{}

	pastSameDay := asset("a", time.Date(2019, time.August, 30, 9, 0, 0, 0, time.UTC))
	otherPastYear := asset("b", time.Date(2021, time.August, 30, 23, 0, 0, 0, time.UTC))
	currentYear := asset("c", time.Date(2026, time.August, 30, 8, 0, 0, 0, time.UTC))
	wrongDay := asset("d", time.Date(2019, time.August, 29, 9, 0, 0, 0, time.UTC))

	if !f.Matches(pastSameDay, now) || !f.Matches(otherPastYear, now) {
		t.Fatalf("expected past-year same-day assets to match")
	}
	if f.Matches(currentYear, now) {
		t.Fatalf("current-year asset must be excluded")
	}
	if f.Matches(wrongDay, now) {
		t.Fatalf("wrong-day asset must be excluded")
	}
}

func TestShortFormDurationBound(t *testing.T) {
	f := ShortForm{}
	now := time.Now()

	atCutoff := Asset{ID: "v1", Kind: KindVideo, Duration: 10 * time.Second}
	over := Asset{ID: "v2", Kind: KindVideo, Duration: 11 * time.Second}
	img := Asset{ID: "i1", Kind: KindImage, Duration: 5 * time.Second}
	unknown := Asset{ID: "v3", Kind: KindVideo}

	if !f.Matches(atCutoff, now) {
		t.Fatalf("10s video should qualify")
	}
	if f.Matches(over, now) {
		t.Fatalf("11s video should not qualify")
	}
	if f.Matches(img, now) {
		t.Fatalf("images never qualify")
	}
	if f.Matches(unknown, now) {
		t.Fatalf("zero-duration video should not qualify")
	}
}

func TestYearFilter(t *testing.T) {
	f := Year(2020)
	now := time.Now()
	if !f.Matches(asset("a", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), now) {
		t.Fatalf("2020 asset should match Year(2020)")
	}
	if f.Matches(asset("b", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)), now) {
		t.Fatalf("2021 asset should not match Year(2020)")
	}
	if f.Key() != "year:2020" {
		t.Fatalf("unexpected key %q", f.Key())
	}
}

func TestContentFilterAllows(t *testing.T) {
	if !ContentAll.Allows(KindImage) || !ContentAll.Allows(KindVideo) {
		t.Fatalf("ContentAll should allow everything")
	}
	if !ContentImages.Allows(KindImage) || ContentImages.Allows(KindVideo) {
		t.Fatalf("ContentImages should allow images only")
	}
	if ContentVideos.Allows(KindImage) || !ContentVideos.Allows(KindVideo) {
		t.Fatalf("ContentVideos should allow videos only")
	}
}
