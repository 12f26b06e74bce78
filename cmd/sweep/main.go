package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/mmcdole/sweep/internal/adapter"
	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/geocode"
	"github.com/mmcdole/sweep/internal/ledger"
	"github.com/mmcdole/sweep/internal/mediacache"
	"github.com/mmcdole/sweep/internal/photodir"
	"github.com/mmcdole/sweep/internal/pipeline"
	"github.com/mmcdole/sweep/internal/playback"
	"github.com/mmcdole/sweep/internal/player"
	"github.com/mmcdole/sweep/internal/prefetch"
	"github.com/mmcdole/sweep/internal/store"
	"github.com/mmcdole/sweep/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	var libraryPath string
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&libraryPath, "library", "", "path to the photo library (overrides config)")
	flag.Parse()

	if showVersion {
		fmt.Printf("sweep %s\n", Version)
		return
	}

	if err := run(libraryPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(libraryPath string) error {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	firstRun := !cfg.IsConfigured()
	if libraryPath != "" {
		cfg.Library.Path = libraryPath
	}
	if !cfg.IsConfigured() {
		return fmt.Errorf("no library configured: pass -library or set library.path in the config file")
	}

	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting sweep", "version", Version, "library", cfg.Library.Path)

	// First run with -library: persist it so later launches need no flag.
	if firstRun && libraryPath != "" {
		if err := adapter.SaveConfig(cfg); err != nil {
			logger.Warn("could not save config", "error", err)
		}
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("sweep needs an interactive terminal")
	}

	swipes, err := store.NewSwipeStore(adapter.DefaultDataPath())
	if err != nil {
		return fmt.Errorf("opening swipe store: %w", err)
	}
	defer swipes.Close()

	library, err := photodir.Open(cfg.Library.Path, swipes, photodir.NewFFProbe(), logger)
	if err != nil {
		return fmt.Errorf("opening library: %w", err)
	}

	// First enumeration up front so year categories are known before the UI
	// starts.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	assets, err := library.Enumerate(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("scanning library: %w", err)
	}
	years := libraryYears(assets)

	cache := mediacache.New(library, logger)
	cache.SetCaps(cfg.Cache.MetadataCap, cfg.Cache.ExportCap)
	pipe := pipeline.New(library, swipes, pipeline.Config{
		BatchSize:      cfg.Pipeline.BatchSize,
		SampleMin:      cfg.Pipeline.SampleMin,
		SampleMax:      cfg.Pipeline.SampleMax,
		SampleFraction: cfg.Pipeline.SampleFraction,
	}, logger)

	sched := prefetch.New(library, cache, prefetch.Config{
		Ahead:            cfg.Cache.PreloadAhead,
		Wide:             cfg.Cache.PreloadWide,
		VideoConcurrency: cfg.Cache.VideoConcurrency,
	}, logger)
	sched.SetNetworkAllowed(cfg.NetworkAllowed())

	surfaces := player.NewFactory(cfg.Player.Command, cfg.Player.Args, logger)
	if !surfaces.Available() {
		logger.Warn("video player not found, videos will show metadata only", "command", cfg.Player.Command)
	}
	sessions := playback.New(library, cache, surfaces, logger)

	led := ledger.New(swipes, library, domain.UnlimitedQuota{}, logger)
	led.Activate(domain.Random{})
	defer led.Flush()

	var places *geocode.Service
	if cfg.Geocode.Enabled {
		nominatim := geocode.NewNominatimClient(cfg.Geocode.Endpoint, "sweep/"+Version)
		places = geocode.NewService(nominatim, geocode.Options{
			MaxRequests: cfg.Geocode.MaxRequests,
			Window:      cfg.Geocode.Window,
			CacheSize:   cfg.Geocode.CacheSize,
		}, logger)
	}

	// Old processed sets from inactive categories stay bounded.
	swipes.PruneProcessed("random", cfg.Cache.ProcessedSetCap)

	model := tui.New(tui.Services{
		Media:    library,
		Pipeline: pipe,
		Cache:    cache,
		Prefetch: sched,
		Sessions: sessions,
		Ledger:   led,
		Geocode:  places,
	}, *cfg, years, logger)

	p := tea.NewProgram(model, tea.WithAltScreen())
	logger.Info("starting TUI")
	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	sessions.Teardown()
	logger.Info("sweep exiting")
	return nil
}

// libraryYears collects the distinct creation years present, newest first.
func libraryYears(assets []domain.Asset) []int {
	seen := make(map[int]bool)
	for _, a := range assets {
		if !a.CreatedAt.IsZero() {
			seen[a.CreatedAt.Year()] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
