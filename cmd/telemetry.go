// cmd/telemetry.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ColonelBlimp/stringtuner/internal/config"
	"github.com/ColonelBlimp/stringtuner/internal/observe"
)

// openTraceWriter resolves trace_file: empty disables span export, "-" is
// stderr, anything else is a file opened for append.
func openTraceWriter(path string, stderr io.Writer) (io.Writer, func() error, error) {
	switch path {
	case "":
		return nil, func() error { return nil }, nil
	case "-":
		return stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	return f, f.Close, nil
}

// startTelemetry installs the metric and trace providers described by s.
// The returned stop function flushes spans and closes the trace file.
func startTelemetry(ctx context.Context, s *config.Settings, stderr io.Writer, logger *slog.Logger) (func(), error) {
	w, closeTrace, err := openTraceWriter(s.TraceFile, stderr)
	if err != nil {
		return nil, err
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{TraceWriter: w})
	if err != nil {
		_ = closeTrace()
		return nil, fmt.Errorf("telemetry init: %w", err)
	}
	if w != nil {
		logger.Debug("exporting cycle spans", "trace_file", s.TraceFile)
	}

	return func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
		if err := closeTrace(); err != nil {
			logger.Warn("close trace file", "error", err)
		}
	}, nil
}
