// Package tui is the terminal front end: one bubbletea model owns all
// mutable UI state, background work runs in commands and hands results back
// as messages. The swipe flow is a reducer over explicit named states
// instead of a pile of booleans.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/sweep/internal/adapter"
	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/geocode"
	"github.com/mmcdole/sweep/internal/ledger"
	"github.com/mmcdole/sweep/internal/mediacache"
	"github.com/mmcdole/sweep/internal/pipeline"
	"github.com/mmcdole/sweep/internal/playback"
	"github.com/mmcdole/sweep/internal/prefetch"
)

// AppState names the top-level UI state.
type AppState int

const (
	StateLoading AppState = iota
	StateSwiping
	StateReviewing
	StateCompleted
	StateCategoryComplete
	StateLimitReached
	StateAccessDenied
	StateEmptyLibrary
)

// Services bundles the core collaborators the UI drives.
type Services struct {
	Media    domain.MediaStore
	Pipeline *pipeline.Pipeline
	Cache    *mediacache.Cache
	Prefetch *prefetch.Scheduler
	Sessions *playback.Manager
	Ledger   *ledger.Ledger
	Geocode  *geocode.Service // nil disables place enrichment
}

// Model is the application model.
type Model struct {
	svc    Services
	cfg    adapter.Config
	logger *slog.Logger
	keys   KeyMap

	width  int
	height int

	state      AppState
	filter     domain.Filter
	content    domain.ContentFilter
	batch      domain.Batch
	batchIndex int
	cursor     int
	reviewRow  int

	// Current asset presentation
	image      *domain.ImageResult
	place      string
	loading    bool
	loadFailed bool
	stuck      bool

	muted         bool
	networkWarned bool
	confirmedOnce bool
	lastDeleted   int

	showPicker bool
	picker     filterPicker
	showHelp   bool

	scanning     bool
	scanProgress chan float64

	status    string
	statusErr bool
}

// New builds the application model. The ledger must already be activated for
// the starting filter.
func New(svc Services, cfg adapter.Config, years []int, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	return Model{
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
		keys:    Keys,
		state:   StateLoading,
		filter:  domain.Random{},
		content: domain.ContentAll,
		muted:   true,
		picker:  newFilterPicker(domain.AllFilters(years)),
	}
}

// Init starts the first library refresh.
func (m Model) Init() tea.Cmd {
	return RefreshCmd(m.svc.Pipeline, m.content, m.filter)
}

// currentAsset returns the asset under the cursor.
func (m *Model) currentAsset() (domain.Asset, bool) {
	if m.cursor < 0 || m.cursor >= len(m.batch.Assets) {
		return domain.Asset{}, false
	}
	return m.batch.Assets[m.cursor], true
}

// globalIndex is the cursor's position in the pipeline's full sequence.
func (m *Model) globalIndex() int {
	return m.batch.Index*m.batchSize() + m.cursor
}

func (m *Model) batchSize() int {
	if m.cfg.Pipeline.BatchSize > 0 {
		return m.cfg.Pipeline.BatchSize
	}
	return domain.DefaultBatchSize
}

// showCurrent presents the asset under the cursor: advance the keep window,
// kick off the decode or playback session, and schedule enrichment plus the
// background prefetch walk.
func (m *Model) showCurrent() tea.Cmd {
	asset, ok := m.currentAsset()
	if !ok {
		return nil
	}

	m.image = nil
	m.place = ""
	m.loading = true
	m.loadFailed = false
	m.stuck = false

	m.svc.Cache.SetDisplayed(asset.ID)

	seq := m.svc.Pipeline.Sequence()
	start := m.globalIndex()
	window := m.cfg.Cache.KeepWindow
	if window <= 0 {
		window = 6
	}
	var keep []string
	for i := start; i < len(seq) && i < start+window; i++ {
		keep = append(keep, seq[i].ID)
	}
	m.svc.Cache.AdvanceWindow(keep)

	cmds := []tea.Cmd{
		LoadingStuckCmd(asset.ID),
		PrefetchCmd(m.svc.Prefetch, start, seq),
		GeocodeCmd(m.svc.Geocode, asset),
	}

	switch asset.Kind {
	case domain.KindImage:
		m.svc.Sessions.Teardown()
		cmds = append(cmds, LoadImageCmd(m.svc.Media, m.svc.Cache, asset.ID, 1024, m.cfg.NetworkAllowed()))
	case domain.KindVideo:
		cmds = append(cmds, ShowVideoCmd(m.svc.Sessions, asset, m.cfg.NetworkAllowed()))
	}
	return tea.Batch(cmds...)
}

// advance moves past the current asset after a decision.
func (m *Model) advance() tea.Cmd {
	m.cursor++
	if m.cursor >= len(m.batch.Assets) {
		// Batch resolved; the outgoing video session ends before review.
		m.svc.Sessions.Teardown()
		m.state = StateReviewing
		m.reviewRow = 0
		return nil
	}
	return m.showCurrent()
}

// switchFilter re-targets every collaborator at a new category.
func (m *Model) switchFilter(f domain.Filter) tea.Cmd {
	m.filter = f
	m.svc.Ledger.Flush()
	m.svc.Ledger.Activate(f)
	m.svc.Sessions.Teardown()
	m.svc.Cache.Clear()

	_, shortForm := f.(domain.ShortForm)
	m.svc.Prefetch.Configure(prefetch.ModeConfig(shortForm))

	m.state = StateLoading
	m.batchIndex = 0
	m.cursor = 0
	return RefreshCmd(m.svc.Pipeline, m.content, f)
}

// Update is the reducer.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case LibraryLoadedMsg:
		if msg.Total == 0 {
			m.state = StateCategoryComplete
			return m, nil
		}
		return m, NextBatchCmd(m.svc.Pipeline, m.batchIndex)

	case BatchLoadedMsg:
		m.batch = msg.Batch
		m.batchIndex = msg.BatchIndex
		m.cursor = 0
		m.state = StateSwiping
		return m, m.showCurrent()

	case CategoryCompleteMsg:
		// Right after a confirm this is the celebration screen; on a fresh
		// category load it is the plain nothing-left state.
		if m.confirmedOnce {
			m.state = StateCompleted
		} else {
			m.state = StateCategoryComplete
		}
		return m, nil

	case EmptyLibraryMsg:
		m.state = StateEmptyLibrary
		return m, nil

	case AccessDeniedMsg:
		m.svc.Sessions.Teardown()
		m.state = StateAccessDenied
		return m, nil

	case ImageLoadedMsg:
		return m.handleImageLoaded(msg)

	case ImageFailedMsg:
		if asset, ok := m.currentAsset(); ok && asset.ID == msg.AssetID {
			m.loading = false
			m.loadFailed = true
		}
		return m, nil

	case VideoReadyMsg:
		if asset, ok := m.currentAsset(); ok && asset.ID == msg.AssetID {
			m.loading = false
		}
		return m, nil

	case VideoFailedMsg:
		if asset, ok := m.currentAsset(); ok && asset.ID == msg.AssetID {
			m.loading = false
			m.loadFailed = true
		}
		return m, nil

	case LoadingStuckMsg:
		if asset, ok := m.currentAsset(); ok && asset.ID == msg.AssetID && m.loading {
			m.stuck = true
		}
		return m, nil

	case GeocodeResolvedMsg:
		if asset, ok := m.currentAsset(); ok && asset.ID == msg.AssetID {
			m.place = msg.Place
		}
		return m, nil

	case CountLoadedMsg:
		m.picker.setCount(msg.FilterKey, msg.Count)
		return m, nil

	case FilterChosenMsg:
		m.showPicker = false
		return m, m.switchFilter(msg.Filter)

	case ScanProgressMsg:
		m.picker.progress = msg.Fraction
		return m, ListenScanCmd(m.scanProgress)

	case ScanDoneMsg:
		return m.handleScanDone(msg)

	case ConfirmDoneMsg:
		m.lastDeleted = msg.Deleted
		m.confirmedOnce = true
		m.svc.Pipeline.InvalidateCounts()
		m.state = StateLoading
		return m, NextBatchCmd(m.svc.Pipeline, m.batch.Index+1)

	case ConfirmFailedMsg:
		// Decisions survive; review is re-presented.
		m.state = StateReviewing
		m.status = "Couldn't delete: " + msg.Err.Error()
		m.statusErr = true
		return m, ClearStatusCmd(5 * time.Second)

	case StatusMsg:
		m.status = msg.Message
		m.statusErr = msg.IsError
		return m, ClearStatusCmd(4 * time.Second)

	case ClearStatusMsg:
		m.status = ""
		m.statusErr = false
		return m, nil

	case PrefetchDoneMsg:
		return m, nil

	case ErrMsg:
		m.logger.Error("ui error", "context", msg.Context, "error", msg.Err)
		m.status = msg.Error()
		m.statusErr = true
		return m, ClearStatusCmd(5 * time.Second)
	}

	if m.showPicker {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleImageLoaded(msg ImageLoadedMsg) (tea.Model, tea.Cmd) {
	asset, ok := m.currentAsset()
	if !ok || asset.ID != msg.AssetID {
		// Stale completion for a superseded asset.
		return m, nil
	}

	m.loading = false
	result := msg.Result
	m.image = &result

	if msg.Quality == domain.QualityHigh || !result.Degraded {
		return m, nil
	}

	// Degraded paint landed. Upgrade in the background when policy allows;
	// otherwise it stays terminal until the user explicitly asks.
	if m.cfg.NetworkAllowed() || !result.Remote {
		return m, UpgradeImageCmd(m.svc.Media, m.svc.Cache, asset.ID, m.cfg.NetworkAllowed())
	}
	if !m.networkWarned {
		m.networkWarned = true
		return m, func() tea.Msg {
			return StatusMsg{Message: "Full quality needs network access (local-only mode). Press H to load anyway.", IsError: false}
		}
	}
	return m, nil
}

func (m Model) handleScanDone(msg ScanDoneMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.Err, domain.ErrScanRequired) {
		// The category needs its duration scan first.
		if m.scanning {
			return m, nil
		}
		m.scanning = true
		m.picker.scanning = true
		m.picker.progress = 0
		start, progress := StartScanCmd(m.svc.Pipeline)
		m.scanProgress = progress
		return m, tea.Batch(start, ListenScanCmd(progress))
	}

	m.scanning = false
	m.picker.scanning = false
	if msg.Err != nil {
		m.status = "Short video scan failed: " + msg.Err.Error()
		m.statusErr = true
		return m, ClearStatusCmd(5 * time.Second)
	}
	if _, ok := m.filter.(domain.ShortForm); ok {
		m.state = StateLoading
		return m, RefreshCmd(m.svc.Pipeline, m.content, m.filter)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && !m.showPicker {
		m.svc.Ledger.Flush()
		m.svc.Sessions.Teardown()
		if m.scanning {
			m.svc.Pipeline.CancelScan()
		}
		return m, tea.Quit
	}

	if m.showPicker {
		if key.Matches(msg, m.keys.Escape) {
			m.showPicker = false
			return m, nil
		}
		var cmd tea.Cmd
		m.picker, cmd = m.picker.update(msg)
		return m, cmd
	}

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if key.Matches(msg, m.keys.Help) {
		m.showHelp = true
		return m, nil
	}

	if key.Matches(msg, m.keys.Filter) {
		m.picker = newFilterPicker(m.picker.filters)
		m.picker.scanning = m.scanning
		m.showPicker = true
		var cmds []tea.Cmd
		for _, f := range m.picker.filters {
			cmds = append(cmds, CountCmd(m.svc.Pipeline, m.content, f))
		}
		return m, tea.Batch(cmds...)
	}

	switch m.state {
	case StateSwiping:
		return m.handleSwipeKey(msg)
	case StateReviewing:
		return m.handleReviewKey(msg)
	case StateCompleted, StateCategoryComplete, StateLimitReached:
		if key.Matches(msg, m.keys.Escape) {
			m.showPicker = true
			return m, nil
		}
	}
	return m, nil
}

func (m Model) handleSwipeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	asset, ok := m.currentAsset()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Keep), key.Matches(msg, m.keys.Delete):
		decision := domain.DecisionKeep
		if key.Matches(msg, m.keys.Delete) {
			decision = domain.DecisionDelete
		}
		if err := m.svc.Ledger.Record(asset, decision); err != nil {
			if errors.Is(err, domain.ErrSwipeLimitReached) {
				m.svc.Sessions.Teardown()
				m.state = StateLimitReached
				return m, nil
			}
			m.status = err.Error()
			m.statusErr = true
			return m, ClearStatusCmd(4 * time.Second)
		}
		m.svc.Pipeline.InvalidateCounts()
		return m, m.advance()

	case key.Matches(msg, m.keys.Undo):
		if _, ok := m.svc.Ledger.UndoLast(); !ok {
			return m, nil
		}
		m.svc.Pipeline.InvalidateCounts()
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.showCurrent()

	case key.Matches(msg, m.keys.Skip):
		if !m.stuck && !m.loadFailed {
			return m, nil
		}
		// Skipped assets stay undecided and come back next refresh.
		return m, m.advance()

	case key.Matches(msg, m.keys.Favorite):
		return m, m.toggleFavorite(asset)

	case key.Matches(msg, m.keys.Mute):
		m.muted = !m.muted
		m.svc.Sessions.SetMuted(m.muted)
		return m, nil

	case key.Matches(msg, m.keys.Upgrade):
		if m.image != nil && m.image.Degraded {
			return m, UpgradeImageCmd(m.svc.Media, m.svc.Cache, asset.ID, true)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	records := m.svc.Ledger.Records()

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.reviewRow > 0 {
			m.reviewRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.reviewRow < len(records)-1 {
			m.reviewRow++
		}
	case key.Matches(msg, m.keys.Flip):
		if m.reviewRow < len(records) {
			r := records[m.reviewRow]
			flipped := domain.DecisionKeep
			if r.Decision == domain.DecisionKeep {
				flipped = domain.DecisionDelete
			}
			m.svc.Ledger.Flip(r.AssetID, flipped)
		}
	case key.Matches(msg, m.keys.Confirm):
		m.state = StateLoading
		return m, ConfirmCmd(m.svc.Ledger)
	case key.Matches(msg, m.keys.Deny), key.Matches(msg, m.keys.Escape):
		// Back out of the whole batch; every decision is reversed.
		m.svc.Ledger.Abandon()
		m.svc.Pipeline.InvalidateCounts()
		m.state = StateLoading
		return m, RefreshCmd(m.svc.Pipeline, m.content, m.filter)
	}
	return m, nil
}

func (m *Model) toggleFavorite(asset domain.Asset) tea.Cmd {
	next := !asset.Favorite
	m.batch.Assets[m.cursor].Favorite = next
	media := m.svc.Media
	id := asset.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := media.SetFavorite(ctx, id, next); err != nil {
			return StatusMsg{Message: "Couldn't update favorite", IsError: true}
		}
		if next {
			return StatusMsg{Message: "Added to favorites"}
		}
		return StatusMsg{Message: "Removed from favorites"}
	}
}
