package evolink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/models"
)

func testClient(baseURL string) *Client {
	return NewClient(config.Config{
		EvolinkAPIKey:  "test-key",
		EvolinkBaseURL: baseURL,
		SubmitTimeout:  5 * time.Second,
	}, nil)
}

func textToImageSpec() models.ModelSpec {
	return models.ModelSpec{
		ID:       "text-to-image",
		APIModel: "gpt-4o-image",
		Endpoint: "images/generations",
		Media:    models.MediaImage,
		Requires: models.InputText,
		Size:     "1024x1024",
	}
}

func imageEditSpec() models.ModelSpec {
	return models.ModelSpec{
		ID:       "image-to-image",
		APIModel: "qwen-image-edit-plus",
		Endpoint: "services/aigc/image2image/editing",
		Media:    models.MediaImage,
		Requires: models.InputBoth,
		Size:     "1024x1024",
	}
}

func imageToVideoSpec() models.ModelSpec {
	return models.ModelSpec{
		ID:              "image-to-video",
		APIModel:        "wan2.5-image-to-video",
		Endpoint:        "videos/generations",
		Media:           models.MediaVideo,
		Requires:        models.InputImage,
		Size:            "1024x576",
		DurationSeconds: 5,
	}
}

func TestSubmitAsyncTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4o-image", payload["model"])
		assert.Equal(t, "a red fox", payload["prompt"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        "task-123",
			"task_info": map[string]any{"estimated_time": 30},
		})
	}))
	defer srv.Close()

	task, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "a red fox", nil)
	require.NoError(t, err)
	assert.True(t, task.Async())
	assert.Equal(t, "task-123", task.TaskID)
	assert.Equal(t, 30, task.EstimatedSeconds)
	assert.Empty(t, task.ResultURL)
}

func TestSubmitTaskIDWinsOverInlineResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "task-9",
			"data": []map[string]any{{"url": "https://cdn.example/sync.png"}},
		})
	}))
	defer srv.Close()

	task, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	require.NoError(t, err)
	assert.True(t, task.Async())
	assert.Equal(t, "task-9", task.TaskID)
}

func TestSubmitDefaultEstimatedTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-1"})
	}))
	defer srv.Close()

	task, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultEstimatedSeconds, task.EstimatedSeconds)
}

func TestSubmitSyncResultList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"url": "https://cdn.example/result.png"}},
		})
	}))
	defer srv.Close()

	task, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	require.NoError(t, err)
	assert.False(t, task.Async())
	assert.Equal(t, "https://cdn.example/result.png", task.ResultURL)
}

func TestSubmitBareURLResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://cdn.example/bare.png"})
	}))
	defer srv.Close()

	task, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/bare.png", task.ResultURL)
}

func TestSubmitUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "weird"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	assert.Error(t, err)
}

func TestSubmitHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	assert.Error(t, err)
}

func TestSubmitImageEditRequiresImage(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), imageEditSpec(), "restyle", nil)
	require.ErrorIs(t, err, ErrMissingImage)
	assert.False(t, called, "precondition failures must not reach the network")
}

func TestSubmitImageEditPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		urls, ok := payload["image_urls"].([]any)
		require.True(t, ok)
		require.Len(t, urls, 1)
		assert.Contains(t, urls[0], "data:image/jpeg;base64,")
		assert.Equal(t, true, payload["prompt_extend"])
		assert.Equal(t, false, payload["watermark"])
		assert.Equal(t, float64(1), payload["n"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-edit"})
	}))
	defer srv.Close()

	image := &ImageInput{Bytes: []byte("fake-jpeg-bytes")}
	task, err := testClient(srv.URL).Submit(context.Background(), imageEditSpec(), "anime style", image)
	require.NoError(t, err)
	assert.True(t, task.Async())
}

func TestSubmitVideoAttachesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://cdn.example/ref.jpg", payload["image"])
		assert.Equal(t, float64(5), payload["duration"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-v"})
	}))
	defer srv.Close()

	image := &ImageInput{URL: "https://cdn.example/ref.jpg"}
	_, err := testClient(srv.URL).Submit(context.Background(), imageToVideoSpec(), "animate", image)
	require.NoError(t, err)
}

func TestSubmitVideoRequiresImageWhenSeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("must not be called")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), imageToVideoSpec(), "animate", nil)
	assert.ErrorIs(t, err, ErrMissingImage)
}

func TestSubmitTextModelOmitsImageField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, hasImage := payload["image"]
		assert.False(t, hasImage)
		_, hasImageURLs := payload["image_urls"]
		assert.False(t, hasImageURLs)

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "t"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), textToImageSpec(), "p", nil)
	require.NoError(t, err)
}
