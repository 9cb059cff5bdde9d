package evolink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/models"
)

func testPoller(baseURL string, maxWait time.Duration) *Poller {
	return NewPoller(config.Config{
		EvolinkAPIKey:  "test-key",
		EvolinkBaseURL: baseURL,
		PollInterval:   10 * time.Millisecond,
		PollTimeout:    time.Second,
		MaxWait:        maxWait,
	}, nil)
}

func TestAwaitCompletionImageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tasks/task-1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"output": map[string]any{"image_urls": []string{"https://cdn.example/a.png"}},
		})
	}))
	defer srv.Close()

	url, err := testPoller(srv.URL, time.Second).AwaitCompletion(context.Background(), "task-1", models.MediaImage)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", url)
}

func TestAwaitCompletionVideoURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"output": map[string]any{"video_urls": []string{"https://cdn.example/a.mp4"}},
		})
	}))
	defer srv.Close()

	url, err := testPoller(srv.URL, time.Second).AwaitCompletion(context.Background(), "t", models.MediaVideo)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.mp4", url)
}

func TestAwaitCompletionGenericURLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"url":    "https://cdn.example/generic.png",
		})
	}))
	defer srv.Close()

	url, err := testPoller(srv.URL, time.Second).AwaitCompletion(context.Background(), "t", models.MediaImage)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/generic.png", url)
}

func TestAwaitCompletionNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "completed"})
	}))
	defer srv.Close()

	_, err := testPoller(srv.URL, time.Second).AwaitCompletion(context.Background(), "t", models.MediaImage)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestAwaitCompletionIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"output": map[string]any{"image_urls": []string{"https://cdn.example/same.png"}},
		})
	}))
	defer srv.Close()

	poller := testPoller(srv.URL, time.Second)
	first, err := poller.AwaitCompletion(context.Background(), "t", models.MediaImage)
	require.NoError(t, err)
	second, err := poller.AwaitCompletion(context.Background(), "t", models.MediaImage)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAwaitCompletionTaskFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "failed",
			"error":  map[string]any{"message": "nsfw content rejected"},
		})
	}))
	defer srv.Close()

	_, err := testPoller(srv.URL, time.Second).AwaitCompletion(context.Background(), "t", models.MediaImage)
	var taskErr *TaskFailedError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "nsfw content rejected", taskErr.Message)
}

func TestAwaitCompletionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "processing", "progress": 40})
	}))
	defer srv.Close()

	_, err := testPoller(srv.URL, 50*time.Millisecond).AwaitCompletion(context.Background(), "t", models.MediaImage)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestAwaitCompletionTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"output": map[string]any{"image_urls": []string{"https://cdn.example/ok.png"}},
		})
	}))
	defer srv.Close()

	url, err := testPoller(srv.URL, time.Second).AwaitCompletion(context.Background(), "t", models.MediaImage)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/ok.png", url)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestAwaitCompletionContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "pending"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testPoller(srv.URL, time.Second).AwaitCompletion(ctx, "t", models.MediaImage)
	assert.ErrorIs(t, err, context.Canceled)
}
