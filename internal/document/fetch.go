package document

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"formfill/internal/metrics"
)

const defaultFetchTimeout = 30 * time.Second

// Fetcher downloads template documents over HTTP(S).
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
	Metrics *metrics.Metrics
}

func NewFetcher(timeout time.Duration, m *metrics.Metrics) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{Client: &http.Client{}, Timeout: timeout, Metrics: m}
}

// Fetch returns the template bytes. Every failure is a *TemplateFetchError.
// file:// URLs are read from the local filesystem.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, &TemplateFetchError{URL: url, Err: errors.New("template url is required")}
	}
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &TemplateFetchError{URL: url, Err: err}
		}
		return data, nil
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	reqCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { f.Metrics.ObserveFetch(time.Since(start)) }()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TemplateFetchError{URL: url, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TemplateFetchError{URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TemplateFetchError{URL: url, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TemplateFetchError{URL: url, Err: err}
	}
	return data, nil
}
