package tui

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfnt/resize"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/tui/styles"
)

// View renders the application.
func (m Model) View() string {
	if m.showPicker {
		return m.centered(m.picker.view())
	}
	if m.showHelp {
		return m.centered(m.helpView())
	}

	var body string
	switch m.state {
	case StateLoading:
		body = m.loadingView()
	case StateSwiping:
		body = m.swipeView()
	case StateReviewing:
		body = m.reviewView()
	case StateCompleted:
		body = m.completedView()
	case StateCategoryComplete:
		body = m.categoryCompleteView()
	case StateLimitReached:
		body = styles.WarnStyle.Render("Daily swipe limit reached.") + "\n\n" +
			styles.DimStyle.Render("esc choose another category · q quit")
	case StateAccessDenied:
		body = styles.ErrorStyle.Render("Library access was revoked.") + "\n\n" +
			styles.DimStyle.Render("Grant access again and restart. q quit")
	case StateEmptyLibrary:
		body = styles.SubtitleStyle.Render("No photos or videos found in the library.") + "\n\n" +
			styles.DimStyle.Render("q quit")
	}

	out := m.centered(body)
	if m.status != "" {
		line := styles.SubtitleStyle.Render(m.status)
		if m.statusErr {
			line = styles.ErrorStyle.Render(m.status)
		}
		out += "\n" + line
	}
	return out
}

func (m Model) centered(content string) string {
	if m.width == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) loadingView() string {
	if m.scanning {
		return styles.AccentStyle.Render("Scanning video durations…") + "\n" +
			progressBar(m.picker.progress, 30)
	}
	return styles.DimStyle.Render("Loading…")
}

func (m Model) swipeView() string {
	asset, ok := m.currentAsset()
	if !ok {
		return styles.DimStyle.Render("…")
	}

	var b strings.Builder

	// Header: category and progress through the batch.
	b.WriteString(styles.TitleStyle.Render(m.filter.Title()))
	b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.batch.Assets))))
	b.WriteString("\n\n")

	// Preview.
	switch {
	case m.loadFailed:
		b.WriteString(styles.ErrorStyle.Render("Couldn't load this item."))
		b.WriteString("\n")
		b.WriteString(styles.DimStyle.Render("s skip"))
	case m.loading && asset.Kind == domain.KindVideo:
		b.WriteString(styles.DimStyle.Render("▶ loading video…"))
		if m.stuck {
			b.WriteString("\n" + styles.WarnStyle.Render("Taking a while. s skip"))
		}
	case m.loading:
		b.WriteString(styles.DimStyle.Render("loading…"))
		if m.stuck {
			b.WriteString("\n" + styles.WarnStyle.Render("Taking a while. s skip"))
		}
	case asset.Kind == domain.KindVideo:
		mutedTag := "muted"
		if !m.muted {
			mutedTag = "sound on"
		}
		b.WriteString(styles.AccentStyle.Render("▶ playing"))
		b.WriteString(styles.DimStyle.Render("  " + mutedTag))
	case m.image != nil && m.image.Image != nil:
		b.WriteString(renderPreview(m.image.Image, previewCols(m.width), previewRows(m.height)))
		if m.image.Degraded {
			b.WriteString("\n" + styles.DegradedTag)
		}
	}
	b.WriteString("\n\n")

	// Metadata line.
	var meta []string
	if !asset.CreatedAt.IsZero() {
		meta = append(meta, asset.CreatedAt.Format("Jan 2, 2006"))
	}
	if asset.Kind == domain.KindVideo && asset.Duration > 0 {
		meta = append(meta, asset.Duration.Round(time.Second).String())
	}
	if asset.FileSize > 0 {
		meta = append(meta, formatBytes(asset.FileSize))
	}
	if m.place != "" {
		meta = append(meta, m.place)
	}
	if asset.Favorite {
		meta = append(meta, styles.AccentStyle.Render("♥"))
	}
	b.WriteString(styles.SubtitleStyle.Render(strings.Join(meta, " · ")))
	b.WriteString("\n\n")

	b.WriteString(styles.DimStyle.Render("← delete · keep → · u undo · f favorite · m mute · / category · ? help"))
	return styles.CardBorder.Render(b.String())
}

func (m Model) reviewView() string {
	records := m.svc.Ledger.Records()

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Review this batch"))
	b.WriteString("\n\n")

	deletes := 0
	for row, r := range records {
		badge := styles.KeepBadge
		if r.Decision == domain.DecisionDelete {
			badge = styles.DeleteBadge
			deletes++
		}
		line := fmt.Sprintf("%s  %s", badge, r.AssetID)
		if row == m.reviewRow {
			line = styles.HighlightStyle.Render(line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if deletes > 0 {
		b.WriteString(styles.WarnStyle.Render(fmt.Sprintf("%d to delete · about %s reclaimed",
			deletes, formatBytes(m.svc.Ledger.ReclaimEstimate()))))
	} else {
		b.WriteString(styles.SuccessStyle.Render("Nothing to delete, everything kept."))
	}
	b.WriteString("\n\n")
	b.WriteString(styles.DimStyle.Render("space flip · y confirm · n start over"))
	return styles.CardBorder.Render(b.String())
}

func (m Model) completedView() string {
	var b strings.Builder
	b.WriteString(styles.SuccessStyle.Render("Category finished!"))
	b.WriteString("\n\n")
	if m.lastDeleted > 0 {
		b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("%d items deleted in the last batch.", m.lastDeleted)))
		b.WriteString("\n")
	}
	b.WriteString(styles.DimStyle.Render("/ choose another category · q quit"))
	return styles.CardBorder.Render(b.String())
}

func (m Model) categoryCompleteView() string {
	return styles.SubtitleStyle.Render("Nothing left to sort in "+m.filter.Title()+".") + "\n\n" +
		styles.DimStyle.Render("/ choose another category · q quit")
}

func (m Model) helpView() string {
	rows := []struct{ keys, desc string }{
		{"→ / k", "keep"},
		{"← / x", "delete"},
		{"u", "undo last decision"},
		{"f", "toggle favorite"},
		{"m", "toggle mute"},
		{"H", "force full-quality load"},
		{"s", "skip a stuck item"},
		{"/", "change category"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%s  %s\n", styles.AccentStyle.Render(fmt.Sprintf("%-6s", r.keys)), r.desc))
	}
	b.WriteString("\n")
	b.WriteString(styles.DimStyle.Render("any key to close"))
	return styles.CardBorder.Render(b.String())
}

func previewCols(width int) int {
	cols := width - 10
	if cols < 20 {
		cols = 20
	}
	if cols > 72 {
		cols = 72
	}
	return cols
}

func previewRows(height int) int {
	rows := height - 12
	if rows < 8 {
		rows = 8
	}
	if rows > 24 {
		rows = 24
	}
	return rows
}

// renderPreview draws a decoded image with half-block cells, two pixel rows
// per terminal row.
func renderPreview(img image.Image, cols, rows int) string {
	small := resize.Thumbnail(uint(cols), uint(rows*2), img, resize.NearestNeighbor)
	bounds := small.Bounds()

	var b strings.Builder
	for y := bounds.Min.Y; y+1 < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			top := toHex(small.At(x, y))
			bottom := toHex(small.At(x, y+1))
			cell := lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render("▀")
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func toHex(c interface{ RGBA() (r, g, b, a uint32) }) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

func progressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return styles.AccentStyle.Render(bar) + fmt.Sprintf(" %3.0f%%", fraction*100)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
