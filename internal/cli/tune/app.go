// Package tune wires configuration, the tuning catalog, the detection
// controller and the terminal display into the interactive tuner.
package tune

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/stringtuner/internal/catalog"
	"github.com/ColonelBlimp/stringtuner/internal/config"
	"github.com/ColonelBlimp/stringtuner/internal/display"
	"github.com/ColonelBlimp/stringtuner/internal/observe"
	"github.com/ColonelBlimp/stringtuner/internal/tuner"
)

// errQuit ends the session at the user's request.
var errQuit = errors.New("quit")

// Options are the collaborators of an App.
type Options struct {
	Settings *config.Settings
	Source   tuner.Source
	Analyzer tuner.Analyzer
	Provider catalog.Provider
	Metrics  *observe.Metrics // optional
	Logger   *slog.Logger     // optional
	In       io.Reader
	Out      io.Writer
	InPlace  bool // redraw the gauge on one line
}

// App is one interactive tuning session.
type App struct {
	opts     Options
	logger   *slog.Logger
	ctrl     *tuner.Controller
	renderer *display.Renderer
	feed     *tuner.Feed

	catalog catalog.Catalog
	tuning  catalog.Tuning
}

// New validates opts and builds the controller.
func New(opts Options) (*App, error) {
	switch {
	case opts.Settings == nil:
		return nil, errors.New("tune: settings are required")
	case opts.Source == nil || opts.Analyzer == nil:
		return nil, errors.New("tune: audio source and analyzer are required")
	case opts.Provider == nil:
		return nil, errors.New("tune: catalog provider is required")
	case opts.Out == nil:
		return nil, errors.New("tune: output writer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctrlOpts := []tuner.Option{
		tuner.WithLogger(logger),
		tuner.WithSampleRate(uint32(opts.Settings.SampleRate)),
	}
	if opts.Metrics != nil {
		ctrlOpts = append(ctrlOpts, tuner.WithMetrics(opts.Metrics))
	}

	return &App{
		opts:     opts,
		logger:   logger,
		ctrl:     tuner.NewController(opts.Source, opts.Analyzer, ctrlOpts...),
		renderer: display.NewRenderer(opts.Out, opts.InPlace),
		feed:     tuner.NewFeed(16),
	}, nil
}

// Run loads the catalog, starts detection and processes user input until
// ctx is cancelled, the user quits, or detection halts on an error.
func (a *App) Run(ctx context.Context) error {
	s := a.opts.Settings

	cat, err := LoadCatalog(ctx, a.opts.Provider, a.logger)
	if err != nil {
		return err
	}
	a.catalog = cat
	if a.tuning, err = cat.Lookup(s.Tuning); err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(cat.Names(), ", "))
	}

	target := tuner.NoTarget
	if s.Note != "" {
		n, err := a.tuning.Select(s.Note)
		if err != nil {
			return err
		}
		target = tuner.Target{Note: n.Name, Frequency: n.Frequency}
	}

	params := ParamsFrom(s)
	params.Target = target
	if err := a.ctrl.Start(params, a.feed.Observe); err != nil {
		return fmt.Errorf("start detection: %w", err)
	}

	a.printTuning()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.displayLoop(gctx) })
	if a.opts.In != nil {
		lines := readLines(a.opts.In)
		g.Go(func() error { return a.inputLoop(gctx, lines) })
	}
	err = g.Wait()

	if stopErr := a.ctrl.Stop(); stopErr != nil && !errors.Is(stopErr, tuner.ErrNotRunning) {
		a.logger.Error("stop detection", "error", stopErr)
	}
	a.drain()

	if errors.Is(err, errQuit) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Apply pushes reloaded settings into the running session. Thresholds,
// cadence and device take effect on the next cycle.
func (a *App) Apply(s *config.Settings) {
	p := ParamsFrom(s)
	if err := a.ctrl.SetThresholds(p.Thresholds); err != nil {
		a.logger.Warn("ignoring thresholds from config", "error", err)
	}
	if err := a.ctrl.SetCadence(p.Cadence); err != nil {
		a.logger.Warn("ignoring cadence from config", "error", err)
	}
	a.ctrl.SetDevice(p.DeviceID)
	a.logger.Info("settings reloaded",
		"green", p.Thresholds.Green,
		"red", p.Thresholds.Red,
		"cadence", p.Cadence,
		"device", p.DeviceID,
	)
}

func (a *App) displayLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-a.feed.Readings():
			if err := a.renderer.Render(r); err != nil {
				return fmt.Errorf("render: %w", err)
			}
			if r.Err != nil {
				return fmt.Errorf("detection halted: %w", r.Err)
			}
		}
	}
}

// drain renders whatever the controller delivered after the display loop
// exited, normally the final reset.
func (a *App) drain() {
	for {
		select {
		case r := <-a.feed.Readings():
			_ = a.renderer.Render(r)
		default:
			if a.opts.InPlace {
				_ = a.renderer.Message("")
			}
			return
		}
	}
}

// readLines scans r on its own goroutine. The channel closes at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func (a *App) inputLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep tuning until cancelled.
				return nil
			}
			if err := a.handle(strings.TrimSpace(line)); err != nil {
				return err
			}
		}
	}
}

// handle interprets one command line:
//
//	q, quit        stop and exit
//	l, list        show the strings of the current tuning
//	t <name>       switch tuning; the target resets until a string is picked
//	<n> | <note>   pick a string by 1-based index or note name
func (a *App) handle(line string) error {
	switch {
	case line == "":
		return nil
	case line == "q" || line == "quit":
		return errQuit
	case line == "l" || line == "list":
		a.printTuning()
		return nil
	case strings.HasPrefix(line, "t "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "t "))
		t, err := a.catalog.Lookup(name)
		if err != nil {
			_ = a.renderer.Message("%v (available: %s)", err, strings.Join(a.catalog.Names(), ", "))
			return nil
		}
		a.tuning = t
		if err := a.ctrl.SetTarget(tuner.NoTarget); err != nil {
			return err
		}
		a.printTuning()
		return nil
	}

	n, err := a.tuning.Select(line)
	if err != nil {
		_ = a.renderer.Message("%v", err)
		return nil
	}
	return a.ctrl.SetTarget(tuner.Target{Note: n.Name, Frequency: n.Frequency})
}

func (a *App) printTuning() {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:", a.tuning.Name)
	for i, n := range a.tuning.Notes {
		fmt.Fprintf(&b, "  [%d] %s", i+1, n)
	}
	_ = a.renderer.Message("%s", b.String())
}

// ParamsFrom maps settings onto detection parameters with no target.
func ParamsFrom(s *config.Settings) tuner.Params {
	return tuner.Params{
		Target:  tuner.NoTarget,
		Cadence: s.Cadence,
		Thresholds: tuner.Thresholds{
			Green: s.GreenThreshold,
			Red:   s.RedThreshold,
		},
		DeviceID: s.DeviceID,
	}
}

// NewProvider builds the catalog provider named by catalog_source.
func NewProvider(s *config.Settings) (catalog.Provider, error) {
	switch s.CatalogSource {
	case config.SourceServer:
		return catalog.NewHTTPProvider(s.CatalogURL, s.CatalogTimeout), nil
	case config.SourceFile:
		return catalog.NewFileProvider(s.CatalogFile)
	case config.SourceLocal, "":
		return catalog.LocalProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", s.CatalogSource)
	}
}

// LoadCatalog fetches from p. When the source is unavailable it logs the
// failure and falls back to the built-in catalog.
func LoadCatalog(ctx context.Context, p catalog.Provider, logger *slog.Logger) (catalog.Catalog, error) {
	src := describe(p)
	cat, err := p.Tunings(ctx)
	if err == nil {
		logger.Debug("tuning catalog loaded", "source", src, "tunings", len(cat.Tunings))
		return cat, nil
	}
	if !errors.Is(err, catalog.ErrUnavailable) {
		return catalog.Catalog{}, fmt.Errorf("%s: %w", src, err)
	}
	logger.Warn("tuning catalog unavailable, using built-in tunings", "source", src, "error", err)
	return catalog.Local(), nil
}

// describe names where p reads its catalog from.
func describe(p catalog.Provider) string {
	switch v := p.(type) {
	case *catalog.HTTPProvider:
		return v.URL()
	case *catalog.FileProvider:
		return v.Path()
	case catalog.LocalProvider:
		return "built-in"
	default:
		return fmt.Sprintf("%T", p)
	}
}

// ServeMetrics exposes the Prometheus endpoint on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(observe.Handler()))
	return catalog.Serve(ctx, e, addr)
}
