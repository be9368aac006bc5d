// Package libretranslate is a translation and detection backend for
// LibreTranslate-compatible servers.
package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reelscribe/internal/language"
	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

const (
	serviceName    = "libretranslate"
	defaultTimeout = 60 * time.Second
)

// Config captures the server location and credentials.
type Config struct {
	URL               string
	APIKey            string
	RequestsPerSecond float64
	TimeoutSeconds    int
}

// Client calls the LibreTranslate HTTP API.
type Client struct {
	base    string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// New constructs a client. RequestsPerSecond <= 0 disables rate limiting.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, "new client", "url required", nil)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		base:   base,
		apiKey: strings.TrimSpace(cfg.APIKey),
		http:   &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return client, nil
}

// Translate sends all texts in one request and expects one translation per
// text back. The source language is auto-detected by the server.
func (c *Client) Translate(ctx context.Context, texts []string, target string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	code := language.Normalize(target)
	if code == "" {
		return nil, services.Wrap(services.ErrValidation, serviceName, "translate", fmt.Sprintf("unknown target %q", target), nil)
	}
	payload := map[string]any{
		"q":      texts,
		"source": "auto",
		"target": code,
		"format": "text",
	}
	var resp struct {
		TranslatedText json.RawMessage `json:"translatedText"`
	}
	if err := c.post(ctx, "/translate", payload, &resp); err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(resp.TranslatedText, &out); err != nil {
		var single string
		if json.Unmarshal(resp.TranslatedText, &single) != nil {
			return nil, services.Wrap(services.ErrCardinality, serviceName, "translate", "unexpected translatedText shape", err)
		}
		out = []string{single}
	}
	if len(out) != len(texts) {
		return nil, services.Wrap(services.ErrCardinality, serviceName, "translate",
			fmt.Sprintf("expected %d translations, got %d", len(texts), len(out)), nil)
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out, nil
}

// DetectLanguages asks the server for the most likely language of each text.
// The detect endpoint takes one text per request.
func (c *Client) DetectLanguages(ctx context.Context, texts []string) ([]string, error) {
	tags := make([]string, len(texts))
	for i, text := range texts {
		var candidates []struct {
			Confidence float64 `json:"confidence"`
			Language   string  `json:"language"`
		}
		if err := c.post(ctx, "/detect", map[string]any{"q": text}, &candidates); err != nil {
			return nil, err
		}
		tags[i] = subtitles.UndeterminedLanguage
		best := -1.0
		for _, candidate := range candidates {
			if candidate.Confidence > best {
				if code := language.Normalize(candidate.Language); code != "" {
					tags[i] = code
					best = candidate.Confidence
				}
			}
		}
	}
	return tags, nil
}

// HealthCheck lists the server's languages.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/languages", nil)
	if err != nil {
		return fmt.Errorf("libretranslate health: new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyError("health", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyError("health", resp.StatusCode, nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any, target any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return services.Wrap(services.ErrTransient, serviceName, path, "rate limit", err)
		}
	}
	if c.apiKey != "" {
		payload["api_key"] = c.apiKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("libretranslate %s: encode body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("libretranslate %s: new request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyError(path, 0, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyError(path, 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return classifyError(path, resp.StatusCode, errors.New(strings.TrimSpace(apiErr.Error)))
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return services.Wrap(services.ErrTransient, serviceName, path, "decode response", err)
	}
	return nil
}

func classifyError(op string, status int, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, serviceName, op, "request deadline exceeded", err)
	}
	if status == 0 {
		return services.Wrap(services.ErrTransient, serviceName, op, "", err)
	}
	message := fmt.Sprintf("http %d", status)
	switch {
	case status == http.StatusForbidden, status == http.StatusUnauthorized, status == http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, serviceName, op, message, err)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, serviceName, op, message, err)
	default:
		return services.Wrap(services.ErrPermanent, serviceName, op, message, err)
	}
}
