package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

func contentServer(t *testing.T, contents ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		content := contents[min(n, len(contents))-1]
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": content,
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithRetryBackoff(0, 0), WithSleeper(func(time.Duration) {})}, opts...)
	return NewClient(Config{APIKey: "test", BaseURL: url, Model: "demo-model"}, opts...)
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"json_object"`) {
			t.Errorf("expected json response format in request, got %s", body)
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": `{"ok":true}`,
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server, _ := contentServer(t, "```json\n{\"ok\":true}\n```")
	if err := testClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckUnauthorizedIsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	err := testClient(server.URL).HealthCheck(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !services.Classify(err).Terminal {
		t.Fatal("expected unauthorized to be terminal")
	}
}

func TestClientMissingAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientServerErrorIsTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL, WithRetryMaxAttempts(2)).CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if services.Classify(err).Terminal {
		t.Fatal("expected 502 to be retryable")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestClientBadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := testClient(server.URL).CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retries for 400, got %d calls", calls.Load())
	}
}

func TestClientToolCallsArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type": "function",
								"id":   "call_1",
								"function": map[string]any{
									"name":      "detect",
									"arguments": `{"languages":[{"id":1,"language":"de"}]}`,
								},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	tags, err := testClient(server.URL).DetectLanguages(context.Background(), []string{"Guten Morgen"})
	if err != nil {
		t.Fatalf("DetectLanguages returned error: %v", err)
	}
	if len(tags) != 1 || tags[0] != "de" {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message": map[string]any{
						"content": "",
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	_, err := testClient(server.URL).CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientDeltaAndLegacyText(t *testing.T) {
	for name, choice := range map[string]map[string]any{
		"delta":  {"delta": map[string]any{"content": `{"ok":true}`}},
		"legacy": {"finish_reason": "stop", "text": `{"ok":true}`},
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{choice}})
			}))
			defer server.Close()
			if err := testClient(server.URL).HealthCheck(context.Background()); err != nil {
				t.Fatalf("HealthCheck returned error: %v", err)
			}
		})
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": `{"ok":true}`,
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	server, calls := contentServer(t, "", "", `{"ok":true}`)
	if err := testClient(server.URL, WithRetryMaxAttempts(5)).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDetectLanguages(t *testing.T) {
	server, _ := contentServer(t, `{"languages":[{"id":2,"language":"German"},{"id":1,"language":"en"},{"id":3,"language":"und"}]}`)
	tags, err := testClient(server.URL).DetectLanguages(context.Background(), []string{"Hello", "Hallo", "..."})
	if err != nil {
		t.Fatalf("DetectLanguages returned error: %v", err)
	}
	want := []string{"en", "de", subtitles.UndeterminedLanguage}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tags, want)
		}
	}
}

func TestDetectLanguagesCardinality(t *testing.T) {
	tests := map[string]string{
		"short":     `{"languages":[{"id":1,"language":"en"}]}`,
		"duplicate": `{"languages":[{"id":1,"language":"en"},{"id":1,"language":"de"}]}`,
		"garbage":   `I think these are English`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			server, _ := contentServer(t, content)
			_, err := testClient(server.URL).DetectLanguages(context.Background(), []string{"a", "b"})
			if !errors.Is(err, services.ErrCardinality) {
				t.Fatalf("expected cardinality error, got %v", err)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	var request string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		request = string(body)
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": `{"translations":[{"id":1,"text":" Guten Morgen "},{"id":2,"text":"Danke"}]}`,
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	out, err := testClient(server.URL).Translate(context.Background(), []string{"Good morning", "Thanks"}, "de")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if len(out) != 2 || out[0] != "Guten Morgen" || out[1] != "Danke" {
		t.Fatalf("unexpected translations %q", out)
	}
	if !strings.Contains(request, "German (de)") {
		t.Fatalf("expected target description in request, got %s", request)
	}
}

func TestTranslateCountMismatch(t *testing.T) {
	server, _ := contentServer(t, `{"translations":[{"id":1,"text":"Guten Morgen. Danke."}]}`)
	_, err := testClient(server.URL).Translate(context.Background(), []string{"Good morning.", "Thanks."}, "de")
	if !errors.Is(err, services.ErrCardinality) {
		t.Fatalf("expected cardinality error, got %v", err)
	}
}

func TestEvaluateClampsScore(t *testing.T) {
	server, _ := contentServer(t, `{"score":140,"notes":" fine "}`)
	got, err := testClient(server.URL).Evaluate(context.Background(), []subtitles.Pair{{Source: "Hi", Translation: "Hallo"}}, "de")
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got.Score != 100 || got.Notes != "fine" {
		t.Fatalf("unexpected assessment %+v", got)
	}
}

func TestPerMinuteLimiter(t *testing.T) {
	if PerMinuteLimiter(0) != nil {
		t.Fatal("expected nil limiter when unlimited")
	}
	limiter := PerMinuteLimiter(60)
	if limiter.Burst() != 1 {
		t.Fatalf("expected burst 1, got %d", limiter.Burst())
	}
	if got := time.Duration(float64(time.Second) / float64(limiter.Limit())); got != time.Second {
		t.Fatalf("expected one request per second, got interval %v", got)
	}
}
