package evolink

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolark/photogenbot/internal/config"
)

func testFetcher(retries int) *Fetcher {
	f := NewFetcher(config.Config{
		FetchTimeout:  time.Second,
		FetchRetries:  retries,
		FetchMinBytes: 1024,
	}, nil)
	f.backoff = time.Millisecond
	return f
}

func validPayload() []byte {
	return bytes.Repeat([]byte("x"), 2048)
}

func TestDownloadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(validPayload())
	}))
	defer srv.Close()

	data, err := testFetcher(3).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
}

func TestDownloadRecoversWithinRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Two undersized payloads, then a valid one.
		if calls.Add(1) <= 2 {
			_, _ = w.Write([]byte("tiny"))
			return
		}
		_, _ = w.Write(validPayload())
	}))
	defer srv.Close()

	data, err := testFetcher(3).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("error page"))
	}))
	defer srv.Close()

	_, err := testFetcher(3).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadHTTPErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(validPayload())
	}))
	defer srv.Close()

	data, err := testFetcher(3).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
}

func TestDownloadContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testFetcher(3).Download(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
