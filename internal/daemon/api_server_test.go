package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelscribe/internal/api"
	"reelscribe/internal/config"
	"reelscribe/internal/queue"
	"reelscribe/internal/stage"
	"reelscribe/internal/testsupport"
	"reelscribe/internal/workflow"
)

type workflowStub struct{}

func (workflowStub) Status(context.Context) workflow.StatusSummary {
	return workflow.StatusSummary{
		Running: true,
		Pools:   []workflow.PoolStatus{{Stage: queue.StageTranscription, Workers: 1}},
		StageHealth: map[string]stage.Health{
			"transcription": stage.Healthy("transcription"),
		},
	}
}

func newTestAPIServer(t *testing.T, token string) (*apiServer, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("de"))
	cfg.Evaluation.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	srv := newAPIServer(config.API{Token: token}, api.NewStatusService(store), workflowStub{}, nil)
	return srv, store, cfg
}

func serve(t *testing.T, srv *apiServer, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.echo.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestAPIServerFiles(t *testing.T) {
	srv, store, cfg := newTestAPIServer(t, "")
	file := testsupport.RegisterFile(t, store, cfg, "lecture.mp4")

	w := serve(t, srv, "/api/files", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list api.FileListResponse
	decode(t, w, &list)
	if len(list.Files) != 1 || list.Files[0].File.ID != file.ID || list.Files[0].State != "not_started" {
		t.Fatalf("unexpected files %+v", list.Files)
	}

	w = serve(t, srv, "/api/files?state=failed", "")
	decode(t, w, &list)
	if len(list.Files) != 0 {
		t.Fatalf("expected no failed files, got %+v", list.Files)
	}

	if w := serve(t, srv, "/api/files?state=bogus", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown state, got %d", w.Code)
	}

	w = serve(t, srv, "/api/files/"+file.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for file detail, got %d", w.Code)
	}
	var detail api.FileResponse
	decode(t, w, &detail)
	if len(detail.File.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %+v", detail.File.Stages)
	}

	if w := serve(t, srv, "/api/files/unknown", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown file, got %d", w.Code)
	}
}

func TestAPIServerFileErrors(t *testing.T) {
	srv, store, cfg := newTestAPIServer(t, "")
	file := testsupport.RegisterFile(t, store, cfg, "noisy.wav")
	claim := testsupport.MustClaimOne(t, store, queue.StageTranscription)
	if _, err := store.Fail(context.Background(), claim, queue.Failure{
		Kind:     queue.ErrorPermanent,
		Message:  errors.New("input has no decodable audio").Error(),
		Terminal: true,
	}); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	w := serve(t, srv, "/api/files/"+file.ID+"/errors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.ErrorListResponse
	decode(t, w, &resp)
	if resp.FileID != file.ID || len(resp.Errors) != 1 || resp.Errors[0].Kind != "permanent" {
		t.Fatalf("unexpected errors %+v", resp)
	}
	if w := serve(t, srv, "/api/files/unknown/errors", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIServerSummaryAndHealth(t *testing.T) {
	srv, store, cfg := newTestAPIServer(t, "")
	testsupport.RegisterFile(t, store, cfg, "a.mp3")

	w := serve(t, srv, "/api/summary", "")
	var summary api.SummaryResponse
	decode(t, w, &summary)
	if summary.Summary.Files != 1 || summary.Workflow == nil || !summary.Workflow.Running {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Workflow.Pools) != 1 || summary.Workflow.Pools[0].Stage != "transcription" {
		t.Fatalf("unexpected pools %+v", summary.Workflow.Pools)
	}

	w = serve(t, srv, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", w.Code)
	}
	var health api.HealthResponse
	decode(t, w, &health)
	if !health.Database.Healthy || len(health.Workflow.StageHealth) != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	srv, _, _ := newTestAPIServer(t, "s3cret")

	if w := serve(t, srv, "/api/summary", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, srv, "/api/summary", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(t, srv, "/api/summary", "s3cret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}
