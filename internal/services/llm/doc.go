// Package llm provides an OpenRouter-compatible chat client used as the
// language detection, translation and evaluation backend.
//
// # Requests
//
// Every call is a JSON-only chat completion. Subtitle lines are sent as
// numbered items and the model must answer with exactly one entry per item,
// keyed by the same id. Responses that cannot be mapped one to one onto the
// input are reported as services.ErrCardinality so the translator can fall
// back to per-line calls.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON response.
// Client.DetectLanguages, Client.Translate, Client.Evaluate: subtitle backends.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 3 attempts by default),
// honouring Retry-After. Context cancellation aborts retries immediately.
// Failures that survive the in-client retries carry a services marker so the
// scheduler can decide between a delayed stage retry and a terminal failure.
//
// # Rate Limiting
//
// Config.RequestsPerMinute bounds request starts per client instance via
// golang.org/x/time/rate. Zero disables limiting.
package llm
