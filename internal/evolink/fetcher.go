package evolink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/evolark/photogenbot/internal/config"
)

// Fetcher downloads a completed artifact. Each attempt streams the body and
// validates a minimum size, guarding against error pages served with a 200.
type Fetcher struct {
	httpClient *http.Client
	log        *slog.Logger
	maxRetries int
	minBytes   int64
	backoff    time.Duration
}

func NewFetcher(cfg config.Config, log *slog.Logger) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.FetchRetries
	if retries <= 0 {
		retries = 3
	}
	minBytes := cfg.FetchMinBytes
	if minBytes <= 0 {
		minBytes = 1024
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:        log,
		maxRetries: retries,
		minBytes:   minBytes,
		backoff:    2 * time.Second,
	}
}

// Download retrieves the artifact bytes, retrying transport errors and
// under-threshold payloads up to the configured attempt count.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		data, err := f.attempt(ctx, url)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if f.log != nil {
			f.log.Warn("artifact download failed", "attempt", attempt, "err", err)
		}
		if attempt < f.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoff):
			}
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", f.maxRetries, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artifact status: %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}
	if int64(buf.Len()) < f.minBytes {
		return nil, fmt.Errorf("artifact too small: %d bytes", buf.Len())
	}
	return buf.Bytes(), nil
}
