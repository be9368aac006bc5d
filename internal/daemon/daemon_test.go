package daemon_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"reelscribe/internal/config"
	"reelscribe/internal/daemon"
	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
	"reelscribe/internal/stage"
	"reelscribe/internal/testsupport"
	"reelscribe/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, queue.WorkClaim) error { return nil }
func (noopStage) Execute(context.Context, queue.WorkClaim) (string, error) {
	return "", nil
}
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.ConfigureStages(workflow.StageSet{Transcription: noopStage{}, Translation: noopStage{}, Evaluation: noopStage{}}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = "token"
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatal("expected daemon and workflow to report running")
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected database path %q", status.DatabasePath)
	}

	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected API to be listening")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/health", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer token")
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.APIAddress() != "" {
		t.Fatal("expected API to be closed after Stop")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if running, err := daemon.Running(cfg.LockPath()); err != nil || running {
		t.Fatalf("Running before start = %v, %v", running, err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if running, err := daemon.Running(cfg.LockPath()); err != nil || !running {
		t.Fatalf("Running after start = %v, %v", running, err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second daemon to fail on the lock")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}
