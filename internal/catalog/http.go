package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is where the companion catalog server listens by default.
const DefaultURL = "http://localhost:5000/api/tunings"

// DefaultTimeout bounds a single catalog fetch.
const DefaultTimeout = 5 * time.Second

// maxBody caps the size of a catalog response.
const maxBody = 1 << 20

// HTTPProvider fetches the catalog from a tuning server.
type HTTPProvider struct {
	url        string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for url. A non-positive timeout uses
// DefaultTimeout.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint queried by Tunings.
func (p *HTTPProvider) URL() string {
	return p.url
}

// Tunings performs GET on the endpoint. Every failure, including a non-200
// status and an undecodable body, is an *UnavailableError.
func (p *HTTPProvider) Tunings(ctx context.Context) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Catalog{}, &UnavailableError{Source: p.url, Err: fmt.Errorf("request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Catalog{}, &UnavailableError{Source: p.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Catalog{}, &UnavailableError{
			Source: p.url,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	cat, err := DecodeJSON(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Catalog{}, &UnavailableError{Source: p.url, Err: err}
	}
	return cat, nil
}
