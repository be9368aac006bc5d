// Package gemini provides a Google Gemini backend for language detection,
// translation and evaluation using google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"reelscribe/internal/services"
	"reelscribe/internal/services/llm"
	"reelscribe/internal/subtitles"
)

const serviceName = "gemini"

// Config captures the Gemini API settings.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
}

// Client talks to the Gemini API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	models  *genai.Models
	limiter *rate.Limiter
	backend llm.Backend
}

// Option customizes the client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	hasLimiter bool
}

// WithHTTPClient overrides the HTTP client used by the genai SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLimiter replaces the request rate limiter. A nil limiter disables
// limiting.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(o *options) {
		o.limiter = limiter
		o.hasLimiter = true
	}
}

// NewClient constructs a Gemini client.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, "new client", "api key required", nil)
	}
	if cfg.Model == "" {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, "new client", "model required", nil)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	sdk, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, "new client", "", err)
	}
	limiter := llm.PerMinuteLimiter(cfg.RequestsPerMinute)
	if o.hasLimiter {
		limiter = o.limiter
	}
	client := &Client{cfg: cfg, models: sdk.Models, limiter: limiter}
	client.backend = llm.Backend{Completer: client, Service: serviceName}
	return client, nil
}

// CompleteJSON sends a system instruction and a user prompt and returns the
// model's JSON response text.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", services.Wrap(services.ErrTransient, serviceName, "rate limit", "", err)
		}
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, genai.Text(userPrompt), config)
	if err != nil {
		return "", classifyError("generate", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", services.Wrap(services.ErrTransient, serviceName, "generate", "empty response", nil)
	}
	return text, nil
}

// DetectLanguages implements subtitles.LanguageDetector.
func (c *Client) DetectLanguages(ctx context.Context, texts []string) ([]string, error) {
	return c.backend.DetectLanguages(ctx, texts)
}

// Translate implements subtitles.TextTranslator.
func (c *Client) Translate(ctx context.Context, texts []string, target string) ([]string, error) {
	return c.backend.Translate(ctx, texts, target)
}

// Evaluate implements subtitles.Evaluator.
func (c *Client) Evaluate(ctx context.Context, pairs []subtitles.Pair, target string) (subtitles.Assessment, error) {
	return c.backend.Evaluate(ctx, pairs, target)
}

// HealthCheck issues a minimal request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.CompleteJSON(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil || !parsed.OK {
		return services.Wrap(services.ErrTransient, serviceName, "health", "unexpected response", err)
	}
	return nil
}

func classifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, serviceName, op, "request deadline exceeded", err)
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) {
			return services.Wrap(services.ErrTransient, serviceName, op, "", err)
		}
		apiErr = *apiErrPtr
	}
	message := fmt.Sprintf("api error %d: %s", apiErr.Code, apiErr.Message)
	switch {
	case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden, apiErr.Code == http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, serviceName, op, message, err)
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusRequestTimeout, apiErr.Code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, serviceName, op, message, err)
	default:
		return services.Wrap(services.ErrPermanent, serviceName, op, message, err)
	}
}
