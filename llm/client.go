package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// maxResponseSize caps the response body read to protect memory.
const maxResponseSize = 10 * 1024 * 1024

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request. Components specify a capability, not a
// model; the client resolves it through the registry.
type Request struct {
	Capability  Capability
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// TokenUsage reports token consumption for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completion result. Provider names the endpoint that served
// it, which matters when a fallback answered.
type Response struct {
	Content      string
	Model        string
	Provider     string
	Usage        TokenUsage
	FinishReason string
}

// Float returns a pointer to v, for optional request parameters.
func Float(v float64) *float64 { return &v }

// RetryConfig controls per-endpoint retry behavior.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Observer is notified after every completed request, for metrics.
type Observer func(capability Capability, outcome string, elapsed time.Duration)

// Client resolves capabilities to endpoints and executes completions with
// retry and fallback.
type Client struct {
	registry    *Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	observer    Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) { client.retryConfig = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) { client.logger = logger }
}

// WithObserver registers a completion observer.
func WithObserver(obs Observer) ClientOption {
	return func(client *Client) { client.observer = obs }
}

// NewClient creates a client over the given registry.
func NewClient(registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // LLM responses are slow
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a completion request, walking the capability's endpoint
// chain until one succeeds. Fatal errors stop the walk immediately.
func (c *Client) Complete(ctx context.Context, req Request) (resp *Response, err error) {
	if c.observer != nil {
		start := time.Now()
		defer func() {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			c.observer(req.Capability, outcome, time.Since(start))
		}()
	}
	return c.complete(ctx, req)
}

func (c *Client) complete(ctx context.Context, req Request) (*Response, error) {
	if !req.Capability.IsValid() {
		return nil, fmt.Errorf("unknown capability %q", req.Capability)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	chain := c.registry.AvailableChain(req.Capability)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no endpoints configured for capability %s", req.Capability)
	}

	var lastErr error
	for _, name := range chain {
		ep := c.registry.Endpoint(name)
		if ep == nil {
			c.logger.Debug("no endpoint config, skipping", "endpoint", name)
			continue
		}

		resp, err := c.tryEndpoint(ctx, ep, name, req)
		if err == nil {
			resp.Provider = ep.Provider
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			c.logger.Warn("fatal LLM error, not trying fallbacks", "endpoint", name, "error", err)
			return nil, err
		}
		c.logger.Warn("endpoint failed, trying fallback", "endpoint", name, "error", err)
	}

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// tryEndpoint attempts one endpoint with retries and backoff.
func (c *Client) tryEndpoint(ctx context.Context, ep *EndpointConfig, name string, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkSuccess(name)
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			// Auth/config problems say nothing about endpoint health.
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.backoff(attempt)
			c.logger.Debug("request failed, retrying",
				"endpoint", name,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkFailure(name)
	return nil, lastErr
}

// backoff computes exponential backoff with +/-25% jitter to avoid
// synchronized retries.
func (c *Client) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}
	d := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if d > c.retryConfig.MaxBackoff {
		d = c.retryConfig.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

// doRequest executes one HTTP round trip against an endpoint.
func (c *Client) doRequest(ctx context.Context, ep *EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = ep.MaxTokens
	}

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, maxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := provider.BuildURL(ep.URL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// classifyHTTPError sorts HTTP failures into transient and fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
