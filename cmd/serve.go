// cmd/serve.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/stringtuner/internal/catalog"
	"github.com/ColonelBlimp/stringtuner/internal/cli/tune"
	"github.com/ColonelBlimp/stringtuner/internal/observe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tuning catalog over HTTP",
	Long: `Serves the configured catalog as JSON on /api/tunings and an HTML listing on /.
Request counts by route and status are exposed to Prometheus on /metrics.
Other tuners can point catalog_url here.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", ":5000", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	stopTelemetry, err := startTelemetry(ctx, s, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	srv := catalog.NewServer(provider, logger, observe.DefaultMetrics())
	srv.GET("/metrics", echo.WrapHandler(observe.Handler()))

	logger.Info("serving tuning catalog", "addr", s.ServeAddr, "source", s.CatalogSource)
	return catalog.Serve(ctx, srv, s.ServeAddr)
}
