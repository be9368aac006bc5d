package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelscribe/internal/config"
)

const userAgent = "reelscribe/0.1.0"

// Event names a workflow milestone that can be published.
type Event string

const (
	// EventFileCompleted fires when every stage of a file has completed.
	EventFileCompleted Event = "file_completed"
	// EventStageFailed fires when a stage fails terminally or runs out of attempts.
	EventStageFailed Event = "stage_failed"
	// EventTest is sent by the CLI to verify delivery.
	EventTest Event = "test"
)

// Payload carries event details keyed by field name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := config.Seconds(cfg.Notifications.RequestTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventFileCompleted: cfg.Notifications.FileCompleted,
			EventStageFailed:   cfg.Notifications.StageFailed,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventFileCompleted:
		body := fmt.Sprintf("✅ Subtitles ready: %s", textValue(payload, "path"))
		if langs := textValue(payload, "languages"); langs != "" {
			body += "\nLanguages: " + langs
		}
		return message{
			title: "reelscribe - File Complete",
			body:  body,
			tags:  []string{"reelscribe", "file", "completed"},
		}, true
	case EventStageFailed:
		var b strings.Builder
		b.WriteString("❌ ")
		b.WriteString(textValue(payload, "stage"))
		b.WriteString(" failed for ")
		b.WriteString(textValue(payload, "path"))
		if attempts := textValue(payload, "attempts"); attempts != "" {
			b.WriteString(" after ")
			b.WriteString(attempts)
			b.WriteString(" attempt(s)")
		}
		if errText := textValue(payload, "error"); errText != "" {
			b.WriteString(": ")
			b.WriteString(errText)
		}
		return message{
			title:    "reelscribe - Stage Failed",
			body:     b.String(),
			tags:     []string{"reelscribe", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "reelscribe - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reelscribe", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func textValue(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
