package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ColonelBlimp/stringtuner/internal/observe"
)

type failingProvider struct{}

func (failingProvider) Tunings(context.Context) (Catalog, error) {
	return Catalog{}, &UnavailableError{Source: "test", Err: errors.New("down")}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServer_Tunings(t *testing.T) {
	e := NewServer(Static(twoTunings()), quietLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tunings", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `{"Standard":{"E2":82.41,"A2":110},"Drop D":{"D2":73.42,"A2":110}}`
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestServer_Index(t *testing.T) {
	e := NewServer(LocalProvider{}, quietLogger(), nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<h2>Standard</h2>", "<li>E2 - 82.41 Hz</li>", "<h2>Slash Tuning</h2>"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestServer_Healthz(t *testing.T) {
	e := NewServer(LocalProvider{}, quietLogger(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_ProviderFailure(t *testing.T) {
	e := NewServer(failingProvider{}, quietLogger(), nil)

	for _, path := range []string{"/api/tunings", "/"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestServer_CountsRequests(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ok := NewServer(LocalProvider{}, quietLogger(), m)
	down := NewServer(failingProvider{}, quietLogger(), m)
	for _, e := range []http.Handler{ok, ok, down} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tunings", nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[int64]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "stringtuner.catalog.requests" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				if route, _ := dp.Attributes.Value(attribute.Key("route")); route.AsString() != "/api/tunings" {
					t.Errorf("route = %q, want /api/tunings", route.AsString())
				}
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				got[status.AsInt64()] = dp.Value
			}
		}
	}
	if got[http.StatusOK] != 2 || got[http.StatusServiceUnavailable] != 1 {
		t.Errorf("requests by status = %v, want 200:2 503:1", got)
	}
}

func TestHTTPProvider_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(NewServer(LocalProvider{}, quietLogger(), nil))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/api/tunings", time.Second)
	got, err := p.Tunings(context.Background())
	if err != nil {
		t.Fatalf("Tunings() error = %v", err)
	}
	if !reflect.DeepEqual(got, Local()) {
		t.Errorf("Tunings() = %+v, want the local catalog", got)
	}
}

func TestHTTPProvider_ListShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = io.WriteString(w, `[{"Standard": [{"E2": 82.41}, {"A2": 110.00}]}, {"Drop D": [{"D2": 73.42}, {"A2": 110.00}]}]`)
	}))
	defer srv.Close()

	got, err := NewHTTPProvider(srv.URL, 0).Tunings(context.Background())
	if err != nil {
		t.Fatalf("Tunings() error = %v", err)
	}
	if !reflect.DeepEqual(got, twoTunings()) {
		t.Errorf("Tunings() = %+v", got)
	}
}

func TestHTTPProvider_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		}},
		{"bad body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "<html>")
		}},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewHTTPProvider(srv.URL, 100*time.Millisecond)
			_, err := p.Tunings(context.Background())

			var ue *UnavailableError
			if !errors.As(err, &ue) {
				t.Fatalf("Tunings() error = %v, want *UnavailableError", err)
			}
			if ue.Source != srv.URL {
				t.Errorf("Source = %q, want %q", ue.Source, srv.URL)
			}
			if !errors.Is(err, ErrUnavailable) {
				t.Error("errors.Is(err, ErrUnavailable) = false")
			}
		})
	}
}

func TestHTTPProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPProvider(url, time.Second).Tunings(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Tunings() error = %v, want ErrUnavailable", err)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, NewServer(LocalProvider{}, quietLogger(), nil), "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
