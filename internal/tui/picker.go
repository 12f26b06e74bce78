package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/tui/styles"
)

// FilterChosenMsg signals the user picked a category in the picker
type FilterChosenMsg struct {
	Filter domain.Filter
}

// filterPicker is the category selection modal: type to fuzzy-filter,
// arrows to move, enter to choose.
type filterPicker struct {
	input    textinput.Model
	filters  []domain.Filter
	visible  []int // Indices into filters, in match order
	cursor   int
	counts   map[string]int
	scanning bool
	progress float64
}

func newFilterPicker(filters []domain.Filter) filterPicker {
	ti := textinput.New()
	ti.Placeholder = "category"
	ti.Prompt = "/ "
	ti.CharLimit = 40
	ti.Focus()

	p := filterPicker{
		input:   ti,
		filters: filters,
		counts:  make(map[string]int),
	}
	p.refilter()
	return p
}

// titles returns the searchable strings, index-aligned with filters.
func (p *filterPicker) titles() []string {
	out := make([]string, len(p.filters))
	for i, f := range p.filters {
		out[i] = f.Title()
	}
	return out
}

func (p *filterPicker) refilter() {
	query := strings.TrimSpace(p.input.Value())
	if query == "" {
		p.visible = p.visible[:0]
		for i := range p.filters {
			p.visible = append(p.visible, i)
		}
	} else {
		matches := fuzzy.Find(query, p.titles())
		p.visible = p.visible[:0]
		for _, m := range matches {
			p.visible = append(p.visible, m.Index)
		}
	}
	if p.cursor >= len(p.visible) {
		p.cursor = 0
	}
}

func (p *filterPicker) setCount(filterKey string, n int) {
	p.counts[filterKey] = n
}

// selected returns the filter under the cursor.
func (p *filterPicker) selected() (domain.Filter, bool) {
	if len(p.visible) == 0 {
		return nil, false
	}
	return p.filters[p.visible[p.cursor]], true
}

func (p filterPicker) update(msg tea.Msg) (filterPicker, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "ctrl+k":
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil
		case "down", "ctrl+j":
			if p.cursor < len(p.visible)-1 {
				p.cursor++
			}
			return p, nil
		case "enter":
			if f, ok := p.selected(); ok {
				return p, func() tea.Msg { return FilterChosenMsg{Filter: f} }
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	p.refilter()
	return p, cmd
}

func (p filterPicker) view() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Choose a category"))
	b.WriteString("\n")
	b.WriteString(p.input.View())
	b.WriteString("\n\n")

	for row, idx := range p.visible {
		f := p.filters[idx]
		line := f.Title()
		if n, ok := p.counts[f.Key()]; ok {
			line = fmt.Sprintf("%s  %s", line, styles.DimStyle.Render(fmt.Sprintf("(%d left)", n)))
		}
		if _, isShort := f.(domain.ShortForm); isShort && p.scanning {
			line = fmt.Sprintf("%s  %s", f.Title(), styles.WarnStyle.Render(fmt.Sprintf("scanning %3.0f%%", p.progress*100)))
		}
		if row == p.cursor {
			b.WriteString(styles.HighlightStyle.Render(line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if len(p.visible) == 0 {
		b.WriteString(styles.DimStyle.Render("  no matching category"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.DimStyle.Render("enter select · esc cancel"))
	return styles.CardBorder.Render(b.String())
}
