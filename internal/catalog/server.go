package catalog

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ColonelBlimp/stringtuner/internal/observe"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Tunings</title></head>
<body>
<h1>Guitar Tunings</h1>
{{range .Tunings}}<h2>{{.Name}}</h2>
<ul>
{{range .Notes}}<li>{{.Name}} - {{printf "%.2f" .Frequency}} Hz</li>
{{end}}</ul>
{{end}}</body>
</html>
`))

// NewServer returns an echo instance serving p:
//
//	GET /api/tunings  catalog as a flat JSON map, catalog order
//	GET /             HTML listing
//	GET /healthz      liveness
//
// When m is non-nil every response is counted by route and status.
func NewServer(p Provider, logger *slog.Logger, m *observe.Metrics) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRoutePath: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if m != nil {
				m.RecordRequest(c.Request().Context(), v.RoutePath, v.Status)
			}
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	h := handlers{provider: p, logger: logger}
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api/tunings", h.tunings)
	e.GET("/", h.index)
	return e
}

type handlers struct {
	provider Provider
	logger   *slog.Logger
}

func (h handlers) load(c echo.Context) (Catalog, error) {
	cat, err := h.provider.Tunings(c.Request().Context())
	if err != nil {
		h.logger.Error("load catalog", "error", err)
		return Catalog{}, echo.NewHTTPError(http.StatusServiceUnavailable, "tuning catalog unavailable")
	}
	return cat, nil
}

func (h handlers) tunings(c echo.Context) error {
	cat, err := h.load(c)
	if err != nil {
		return err
	}
	data, err := cat.MarshalJSON()
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (h handlers) index(c echo.Context) error {
	cat, err := h.load(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return indexTemplate.Execute(c.Response(), cat)
}

// Serve runs srv on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, srv *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
