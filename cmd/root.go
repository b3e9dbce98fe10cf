// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/stringtuner/internal/audio"
	"github.com/ColonelBlimp/stringtuner/internal/cli/tune"
	"github.com/ColonelBlimp/stringtuner/internal/config"
	"github.com/ColonelBlimp/stringtuner/internal/dsp"
	"github.com/ColonelBlimp/stringtuner/internal/observe"
	"github.com/ColonelBlimp/stringtuner/internal/recovery"
)

var rootCmd = &cobra.Command{
	Use:   "stringtuner",
	Short: "Guitar string tuner driven by microphone input",
	Long: `A real-time string tuner. It captures audio from an input device, estimates
the dominant frequency and shows how far it is from the selected string.

While tuning, type a string number or note name to pick a target,
"t <tuning>" to switch tunings, "l" to list the strings and "q" to quit.`,
	SilenceUsage: true,
	RunE:         runTuner,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	pf := rootCmd.PersistentFlags()
	pf.StringP("device", "d", "", "audio device id (empty for the system default)")
	pf.IntP("sample-rate", "r", 44100, "capture sample rate in Hz")
	pf.DurationP("cadence", "c", 400*time.Millisecond, "length of each capture-analyze cycle")
	pf.Float64("green", 2, "in-tune threshold in Hz")
	pf.Float64("red", 50, "far-off threshold in Hz")
	pf.StringP("source", "s", "local", "tuning catalog source: local, server or file")
	pf.BoolP("debug", "D", false, "enable debug output")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("trace-file", "", `write cycle spans as JSON to this file ("-" for stderr)`)

	// Tuning flags
	f := rootCmd.Flags()
	f.StringP("tuning", "t", "Standard", "tuning selected at startup")
	f.StringP("note", "n", "", "string selected at startup (index or note name)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while tuning")
}

// bindFlags maps command-line flags onto config keys.
func bindFlags() {
	pf := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("device_id", pf.Lookup("device"))
	_ = viper.BindPFlag("sample_rate", pf.Lookup("sample-rate"))
	_ = viper.BindPFlag("cadence", pf.Lookup("cadence"))
	_ = viper.BindPFlag("green_threshold", pf.Lookup("green"))
	_ = viper.BindPFlag("red_threshold", pf.Lookup("red"))
	_ = viper.BindPFlag("catalog_source", pf.Lookup("source"))
	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("trace_file", pf.Lookup("trace-file"))

	f := rootCmd.Flags()
	_ = viper.BindPFlag("tuning", f.Lookup("tuning"))
	_ = viper.BindPFlag("note", f.Lookup("note"))
	_ = viper.BindPFlag("metrics_addr", f.Lookup("metrics-addr"))

	_ = viper.BindPFlag("serve_addr", serveCmd.Flags().Lookup("addr"))
}

func initConfig() {
	bindFlags()
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings reads validated settings and installs the default logger.
func loadSettings(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	s, err := config.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), s)
	slog.SetDefault(logger)
	return s, logger, nil
}

func newLogger(w io.Writer, s *config.Settings) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.Level()}))
}

func runTuner(cmd *cobra.Command, _ []string) error {
	s, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	provider, err := tune.NewProvider(s)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.MetricsAddr != "" || s.TraceFile != "" {
		stopTelemetry, err := startTelemetry(ctx, s, cmd.ErrOrStderr(), logger)
		if err != nil {
			return err
		}
		defer stopTelemetry()
	}

	input := audio.NewInput()
	if err := input.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer func() {
		if err := input.Close(); err != nil {
			logger.Warn("audio close", "error", err)
		}
	}()
	defer recovery.HandlePanicFunc(func() { _ = input.Close() })

	app, err := tune.New(tune.Options{
		Settings: s,
		Source:   input,
		Analyzer: dsp.NewAnalyzer(),
		Provider: provider,
		Metrics:  observe.DefaultMetrics(),
		Logger:   logger,
		In:       cmd.InOrStdin(),
		Out:      cmd.OutOrStdout(),
		InPlace:  isTerminal(cmd.OutOrStdout()),
	})
	if err != nil {
		return err
	}

	config.Watch(func(next *config.Settings, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "error", err)
			return
		}
		app.Apply(next)
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return app.Run(runCtx)
	})
	if s.MetricsAddr != "" {
		logger.Info("serving metrics", "addr", s.MetricsAddr)
		g.Go(func() error {
			if err := tune.ServeMetrics(runCtx, s.MetricsAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
