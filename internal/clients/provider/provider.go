package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/introspecthq/agentlens-backend/internal/platform/httpx"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
)

// ExtractRequest asks the provider to distill one window of an owner's
// interaction timeline into an artifact payload.
type ExtractRequest struct {
	OwnerKey    string            `json:"owner_key"`
	Extractor   string            `json:"extractor"`
	WindowStart int               `json:"window_start"`
	WindowEnd   int               `json:"window_end"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ExtractResponse struct {
	Content json.RawMessage  `json:"content"`
	Stats   map[string]int64 `json:"stats,omitempty"`
}

// SummarizeRequest asks the provider to roll a batch of feedback items
// up into one summary.
type SummarizeRequest struct {
	AgentVersion string            `json:"agent_version"`
	FeedbackName string            `json:"feedback_name"`
	Items        []json.RawMessage `json:"items"`
}

type SummarizeResponse struct {
	Summary      json.RawMessage `json:"summary"`
	ClusterCount int             `json:"cluster_count"`
}

// SkillsRequest asks the provider to derive named skills from a
// feedback summary.
type SkillsRequest struct {
	AgentVersion string          `json:"agent_version"`
	FeedbackName string          `json:"feedback_name"`
	Summary      json.RawMessage `json:"summary"`
}

type SkillProposal struct {
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

type SkillsResponse struct {
	Skills []SkillProposal `json:"skills"`
}

// Client is the generation provider the background operations call for
// extraction, summarization, and skill synthesis.
type Client interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)
	Skills(ctx context.Context, req SkillsRequest) (*SkillsResponse, error)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(cfg Config, baseLog *logger.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing provider base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &client{
		log:        baseLog.With("service", "ProviderClient"),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
	}, nil
}

type providerHTTPError struct {
	StatusCode int
	Body       string
}

func (e *providerHTTPError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Body)
}

func (e *providerHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &providerHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("provider decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Provider request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	var out ExtractResponse
	if err := c.do(ctx, "/v1/extract", req, &out); err != nil {
		return nil, err
	}
	if len(out.Content) == 0 {
		return nil, fmt.Errorf("provider extract: empty content")
	}
	return &out, nil
}

func (c *client) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	var out SummarizeResponse
	if err := c.do(ctx, "/v1/summarize", req, &out); err != nil {
		return nil, err
	}
	if len(out.Summary) == 0 {
		return nil, fmt.Errorf("provider summarize: empty summary")
	}
	return &out, nil
}

func (c *client) Skills(ctx context.Context, req SkillsRequest) (*SkillsResponse, error) {
	var out SkillsResponse
	if err := c.do(ctx, "/v1/skills", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
