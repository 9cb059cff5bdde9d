package evolink

import (
	"context"
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

// Poller queries an asynchronous task until it completes, fails, or the wait
// budget runs out. Transient network errors during a poll are logged and
// treated as still-processing; they never abort the wait.
type Poller struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	interval   time.Duration
	maxWait    time.Duration
}

func NewPoller(cfg config.Config, log *slog.Logger) *Poller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 300 * time.Second
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{
		apiKey:  cfg.EvolinkAPIKey,
		baseURL: strings.TrimRight(cfg.EvolinkBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:      log,
		interval: interval,
		maxWait:  maxWait,
	}
}

type taskStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Output   struct {
		ImageURLs []string `json:"image_urls"`
		VideoURLs []string `json:"video_urls"`
	} `json:"output"`
	URL   string `json:"url"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AwaitCompletion polls the task and returns its artifact URL. It returns
// ErrWaitTimeout when maxWait elapses, a TaskFailedError on remote failure,
// and ErrNoResult when a completed task has no retrievable URL.
func (p *Poller) AwaitCompletion(ctx context.Context, taskID string, media models.MediaKind) (string, error) {
	deadline := time.Now().Add(p.maxWait)

	for time.Now().Before(deadline) {
		status, err := p.queryTask(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Transient; retried on the next tick.
			if p.log != nil {
				p.log.Warn("task status check failed", "task_id", taskID, "err", err)
			}
		} else {
			switch status.Status {
			case "completed":
				url := resultURL(status, media)
				if url == "" {
					return "", ErrNoResult
				}
				return url, nil
			case "failed":
				message := status.Error.Message
				if message == "" {
					message = "no error details"
				}
				return "", &TaskFailedError{Message: message}
			default:
				if p.log != nil {
					p.log.Info("task in progress", "task_id", taskID, "status", status.Status, "progress", status.Progress)
				}
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.interval):
		}
	}

	return "", ErrWaitTimeout
}

func (p *Poller) queryTask(ctx context.Context, taskID string) (*taskStatus, error) {
	url := fmt.Sprintf("%s/v1/tasks/%s", p.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get task status: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("evolink error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var status taskStatus
	if err := json.Unmarshal(rawBody, &status); err != nil {
		return nil, fmt.Errorf("decode task status: %w (body=%s)", err, truncateBody(rawBody))
	}
	return &status, nil
}

// resultURL extracts the artifact URL from the kind-specific output field,
// falling back to the generic url field.
func resultURL(status *taskStatus, media models.MediaKind) string {
	switch media {
	case models.MediaImage:
		if len(status.Output.ImageURLs) > 0 {
			return status.Output.ImageURLs[0]
		}
	case models.MediaVideo:
		if len(status.Output.VideoURLs) > 0 {
			return status.Output.VideoURLs[0]
		}
	}
	return status.URL
}
