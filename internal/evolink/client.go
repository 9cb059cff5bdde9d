package evolink

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/models"
)

const defaultEstimatedSeconds = 45

// ImageInput carries the user's reference image for image-seeded models.
// When URL is set it is sent as-is; otherwise the raw bytes go inline as a
// base64 data URI.
type ImageInput struct {
	Bytes []byte
	URL   string
}

func (i *ImageInput) reference() string {
	if i == nil {
		return ""
	}
	if i.URL != "" {
		return i.URL
	}
	if len(i.Bytes) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(i.Bytes)
}

// GenerationTask is the normalized submit outcome: either an asynchronous
// task id with an estimated completion time, or a synchronous result URL.
type GenerationTask struct {
	Media            models.MediaKind
	TaskID           string
	ResultURL        string
	EstimatedSeconds int
}

// Async reports whether the task must be polled to completion.
func (t *GenerationTask) Async() bool {
	return t.TaskID != ""
}

// Client submits generation requests to the Evolink API and normalizes the
// response shape. It never retries: retry policy belongs to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  cfg.EvolinkAPIKey,
		baseURL: strings.TrimRight(cfg.EvolinkBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Submit sends one generation request. The body shape depends on the model's
// required input kind; image-edit models fail with ErrMissingImage before any
// network call when no image is attached.
func (c *Client) Submit(ctx context.Context, spec models.ModelSpec, prompt string, image *ImageInput) (*GenerationTask, error) {
	payload, err := buildPayload(spec, prompt, image)
	if err != nil {
		return nil, err
	}

	fullURL := fmt.Sprintf("%s/v1/%s", c.baseURL, strings.TrimLeft(spec.Endpoint, "/"))
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.log != nil {
		c.log.Info("submitting generation", "model", spec.APIModel, "url", fullURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post evolink: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("evolink submit failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("evolink error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	return decodeSubmitResponse(spec.Media, rawBody)
}

func buildPayload(spec models.ModelSpec, prompt string, image *ImageInput) (map[string]any, error) {
	ref := image.reference()

	switch {
	case spec.Requires == models.InputBoth:
		if ref == "" {
			return nil, ErrMissingImage
		}
		return map[string]any{
			"model":           spec.APIModel,
			"prompt":          prompt,
			"image_urls":      []string{ref},
			"n":               1,
			"size":            spec.Size,
			"prompt_extend":   true,
			"watermark":       false,
			"negative_prompt": "blurry, low quality, distorted",
		}, nil

	case spec.Media == models.MediaVideo:
		payload := map[string]any{
			"model":    spec.APIModel,
			"prompt":   prompt,
			"size":     spec.Size,
			"duration": spec.DurationSeconds,
		}
		if spec.Requires == models.InputImage && ref == "" {
			return nil, ErrMissingImage
		}
		if ref != "" {
			payload["image"] = ref
		}
		return payload, nil

	default:
		return map[string]any{
			"model":  spec.APIModel,
			"prompt": prompt,
			"size":   spec.Size,
			"n":      1,
		}, nil
	}
}

// decodeSubmitResponse reduces the API's loose response into the tagged
// GenerationTask shape. A task id wins over any inline result.
func decodeSubmitResponse(media models.MediaKind, rawBody []byte) (*GenerationTask, error) {
	var parsed struct {
		ID       string `json:"id"`
		TaskInfo struct {
			EstimatedTime int `json:"estimated_time"`
		} `json:"task_info"`
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode submit response: %w (body=%s)", err, truncateBody(rawBody))
	}

	if parsed.ID != "" {
		estimated := parsed.TaskInfo.EstimatedTime
		if estimated <= 0 {
			estimated = defaultEstimatedSeconds
		}
		return &GenerationTask{
			Media:            media,
			TaskID:           parsed.ID,
			EstimatedSeconds: estimated,
		}, nil
	}
	if len(parsed.Data) > 0 && parsed.Data[0].URL != "" {
		return &GenerationTask{Media: media, ResultURL: parsed.Data[0].URL}, nil
	}
	if parsed.URL != "" {
		return &GenerationTask{Media: media, ResultURL: parsed.URL}, nil
	}
	return nil, fmt.Errorf("unexpected submit response shape: %s", truncateBody(rawBody))
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
