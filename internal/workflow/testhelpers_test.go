package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelscribe/internal/config"
	"reelscribe/internal/logging"
	"reelscribe/internal/notifications"
	"reelscribe/internal/queue"
	"reelscribe/internal/stage"
)

// fakeHandler records executions per (file, stage) and detects overlap.
type fakeHandler struct {
	mu      sync.Mutex
	calls   map[string]int
	running map[string]bool
	overlap bool

	active atomic.Int64
	peak   atomic.Int64

	delay   time.Duration
	execute func(ctx context.Context, claim queue.WorkClaim) (string, error)
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{calls: make(map[string]int), running: make(map[string]bool)}
}

func claimKey(claim queue.WorkClaim) string {
	return claim.FileID + "|" + claim.Stage.String()
}

func (f *fakeHandler) Prepare(context.Context, queue.WorkClaim) error { return nil }

func (f *fakeHandler) Execute(ctx context.Context, claim queue.WorkClaim) (string, error) {
	key := claimKey(claim)
	f.mu.Lock()
	if f.running[key] {
		f.overlap = true
	}
	f.running[key] = true
	f.calls[key]++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running[key] = false
		f.mu.Unlock()
	}()

	now := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if now <= peak || f.peak.CompareAndSwap(peak, now) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.execute != nil {
		return f.execute(ctx, claim)
	}
	return "/out/" + key, nil
}

func (f *fakeHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("fake")
}

func (f *fakeHandler) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeHandler) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, notifier notifications.Service, opts ...ManagerOption) *Manager {
	t.Helper()
	base := []ManagerOption{
		WithNotifier(notifier),
		WithPollIntervals(5*time.Millisecond, 20*time.Millisecond),
		WithHeartbeatInterval(10 * time.Millisecond),
		WithRetryPolicy(RetryPolicy{}),
	}
	return NewManager(cfg, store, logging.NewNop(), append(base, opts...)...)
}

func startManager(t *testing.T, m *Manager, set StageSet) {
	t.Helper()
	if err := m.ConfigureStages(set); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fileState(t *testing.T, store *queue.Store, fileID string) queue.State {
	t.Helper()
	state, err := store.FileState(context.Background(), fileID)
	if err != nil {
		t.Fatalf("FileState: %v", err)
	}
	return state
}

func stageState(t *testing.T, store *queue.Store, fileID string, stg queue.Stage) *queue.StageStatus {
	t.Helper()
	status, err := store.GetStage(context.Background(), fileID, stg)
	if err != nil {
		t.Fatalf("GetStage: %v", err)
	}
	if status == nil {
		t.Fatalf("stage %s missing for %s", stg, fileID)
	}
	return status
}
