package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelscribe/internal/services"
)

func geminiServer(t *testing.T, status int, text string) (*httptest.Server, *[]string) {
	t.Helper()
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": status, "message": "rejected", "status": "ERROR"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": text}},
					},
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server, &bodies
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), Config{APIKey: "test", Model: "gemini-test", BaseURL: url}, WithLimiter(nil))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Model: "gemini-test"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTranslate(t *testing.T) {
	server, bodies := geminiServer(t, http.StatusOK, `{"translations":[{"id":1,"text":"Hallo"},{"id":2,"text":"Danke"}]}`)
	client := newTestClient(t, server.URL)

	out, err := client.Translate(context.Background(), []string{"Hello", "Thanks"}, "de")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 2 || out[0] != "Hallo" || out[1] != "Danke" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(*bodies) != 1 || !strings.Contains((*bodies)[0], "application/json") {
		t.Fatalf("expected a JSON response request, got %v", *bodies)
	}
}

func TestDetectCardinality(t *testing.T) {
	server, _ := geminiServer(t, http.StatusOK, `{"languages":[{"id":1,"language":"en"}]}`)
	client := newTestClient(t, server.URL)

	_, err := client.DetectLanguages(context.Background(), []string{"Hello", "Hallo"})
	if !errors.Is(err, services.ErrCardinality) {
		t.Fatalf("expected cardinality error, got %v", err)
	}
}

func TestAPIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusServiceUnavailable, services.ErrTransient},
		{http.StatusForbidden, services.ErrConfiguration},
		{http.StatusBadRequest, services.ErrPermanent},
	}
	for _, tt := range tests {
		server, _ := geminiServer(t, tt.status, "")
		client := newTestClient(t, server.URL)
		_, err := client.CompleteJSON(context.Background(), "system", "user")
		if !errors.Is(err, tt.marker) {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.marker, err)
		}
	}
}
