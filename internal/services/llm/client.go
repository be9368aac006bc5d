package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reelscribe/internal/services"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout   = 120 * time.Second
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 10 * time.Second
	serviceName      = "llm"
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Referer           string
	Title             string
	TimeoutSeconds    int
	RequestsPerMinute int
}

// Client talks to an OpenRouter-compatible chat completion endpoint and only
// ever asks for JSON answers.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	backoff backoff
}

// backoff bounds how often and how long a request is retried.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleep    func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts sets how many requests one completion may issue.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.backoff.attempts = attempts }
}

// WithRetryBackoff sets the first retry delay and the delay ceiling.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff.base = baseDelay
		c.backoff.ceiling = maxDelay
	}
}

// WithSleeper replaces the retry sleep, for tests.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.backoff.sleep = sleeper }
}

// WithLimiter replaces the request rate limiter. A nil limiter disables
// limiting.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: PerMinuteLimiter(cfg.RequestsPerMinute),
		backoff: backoff{attempts: defaultAttempts, base: defaultBaseDelay, ceiling: defaultMaxDelay},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PerMinuteLimiter returns a limiter admitting perMinute requests per minute
// with a burst of one, or nil when perMinute is not positive.
func PerMinuteLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// CompleteJSON sends a system and a user prompt and returns the model's JSON
// answer. Failures carry a services marker: configuration problems and
// rejected requests are terminal, rate limits, server errors and timeouts
// are transient.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "":
		return "", services.Wrap(services.ErrValidation, serviceName, "complete", "system prompt required", nil)
	case userPrompt == "":
		return "", services.Wrap(services.ErrValidation, serviceName, "complete", "user prompt required", nil)
	case c.cfg.APIKey == "":
		return "", services.Wrap(services.ErrConfiguration, serviceName, "complete", "api key required", nil)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("llm complete: encode request: %w", err)
	}

	attempts := max(c.backoff.attempts, 1)
	for attempt := 1; ; attempt++ {
		content, err := c.exchange(ctx, body)
		if err == nil {
			return content, nil
		}
		wait, again := c.nextDelay(ctx, err)
		if !again || attempt >= attempts {
			if attempt > 1 {
				err = fmt.Errorf("gave up after %d attempts: %w", attempt, err)
			}
			return "", markFailure("complete", err)
		}
		if err := c.pause(ctx, wait, attempt); err != nil {
			return "", err
		}
	}
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.CompleteJSON(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrTransient, serviceName, "health", "parse payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrTransient, serviceName, "health", "unexpected response", nil)
	}
	return nil
}

// exchange performs one HTTP round trip and extracts the answer text.
func (c *Client) exchange(ctx context.Context, body []byte) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &statusError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(raw)),
			retryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var reply chatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(reply.Error.Message))
	}
	if len(reply.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	if text := reply.text(); text != "" {
		return text, nil
	}
	return "", &blankReplyError{
		finish:  reply.finishReason(),
		refusal: reply.refusal(),
		snippet: summarizePayloadSnippet(string(raw)),
	}
}

// nextDelay reports whether err is worth another attempt and how long to
// wait first.
func (c *Client) nextDelay(ctx context.Context, err error) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var blank *blankReplyError
	if errors.As(err, &blank) {
		return 0, true
	}
	var status *statusError
	if errors.As(err, &status) {
		if !status.transient() {
			return 0, false
		}
		return status.retryAfter, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	return 0, false
}

// pause waits before the next attempt. A server hint wins over the
// exponential schedule; both are capped by the ceiling.
func (c *Client) pause(ctx context.Context, hint time.Duration, attempt int) error {
	wait := hint
	if wait <= 0 && c.backoff.base > 0 {
		wait = c.backoff.base << (attempt - 1)
		if wait <= 0 {
			wait = c.backoff.ceiling
		}
	}
	if c.backoff.ceiling > 0 {
		wait = min(wait, c.backoff.ceiling)
	}
	if wait <= 0 {
		return nil
	}
	if c.backoff.sleep != nil {
		c.backoff.sleep(wait)
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// markFailure tags a failed completion with the marker the scheduler
// classifies on.
func markFailure(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, serviceName, op, "request deadline exceeded", err)
	}
	var status *statusError
	if errors.As(err, &status) {
		detail := "http " + strconv.Itoa(status.code)
		switch {
		case status.rejectedCredentials():
			return services.Wrap(services.ErrConfiguration, serviceName, op, detail, err)
		case status.transient():
			return services.Wrap(services.ErrTransient, serviceName, op, detail, err)
		default:
			return services.Wrap(services.ErrPermanent, serviceName, op, detail, err)
		}
	}
	return services.Wrap(services.ErrTransient, serviceName, op, "", err)
}

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

func (e *statusError) transient() bool {
	return e.code == http.StatusRequestTimeout ||
		e.code == http.StatusTooManyRequests ||
		e.code >= http.StatusInternalServerError
}

func (e *statusError) rejectedCredentials() bool {
	switch e.code {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// blankReplyError is a well-formed response without any answer text. Models
// produce these intermittently, so they are retried.
type blankReplyError struct {
	finish  string
	refusal string
	snippet string
}

func (e *blankReplyError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)", e.finish, e.refusal, e.snippet)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
