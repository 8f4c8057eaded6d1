package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxRequestObjectSize = 64 * 1024

// HTTPRequestObjectFetcher dereferences request_uri values over HTTPS.
type HTTPRequestObjectFetcher struct {
	httpClient *http.Client
}

func NewHTTPRequestObjectFetcher(timeout time.Duration) *HTTPRequestObjectFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRequestObjectFetcher{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPRequestObjectFetcher) Fetch(ctx context.Context, requestURI string) (string, error) {
	if !strings.HasPrefix(requestURI, "https://") {
		return "", fmt.Errorf("request_uri must use https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURI, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request_uri fetch: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request_uri fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request_uri returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestObjectSize))
	if err != nil {
		return "", fmt.Errorf("request_uri read failed: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
