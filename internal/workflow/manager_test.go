package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reelscribe/internal/logging"
	"reelscribe/internal/notifications"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
	"reelscribe/internal/testsupport"
)

func TestManagerProcessesEveryStageOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en", "de"))
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.RegisterFile(t, store, cfg, "interview-1.mkv")
	second := testsupport.RegisterFile(t, store, cfg, "interview-2.mp3")

	transcription := newFakeHandler()
	translation := newFakeHandler()
	evaluation := newFakeHandler()

	var orderMu sync.Mutex
	var orderViolations []string
	requireCompleted := func(claim queue.WorkClaim) {
		status, err := store.GetStage(context.Background(), claim.FileID, claim.Stage.Prerequisite())
		if err != nil || status == nil || status.State != queue.StateCompleted {
			orderMu.Lock()
			orderViolations = append(orderViolations, claimKey(claim))
			orderMu.Unlock()
		}
	}
	translation.execute = func(_ context.Context, claim queue.WorkClaim) (string, error) {
		requireCompleted(claim)
		return "/out/" + claimKey(claim), nil
	}
	evaluation.execute = translation.execute

	notifier := &recordingNotifier{}
	m := newTestManager(t, cfg, store, notifier)
	startManager(t, m, StageSet{Transcription: transcription, Translation: translation, Evaluation: evaluation})

	waitFor(t, "both files to complete", func() bool {
		return fileState(t, store, first.ID) == queue.StateCompleted &&
			fileState(t, store, second.ID) == queue.StateCompleted
	})
	waitFor(t, "completion notifications", func() bool {
		return notifier.count(notifications.EventFileCompleted) == 2
	})
	m.Stop()

	for _, file := range []*queue.MediaFile{first, second} {
		for _, stg := range queue.StagesFor(cfg.Subtitles.TargetLanguages, true) {
			var handler *fakeHandler
			switch stg.Kind() {
			case queue.KindTranscription:
				handler = transcription
			case queue.KindTranslation:
				handler = translation
			default:
				handler = evaluation
			}
			key := file.ID + "|" + stg.String()
			if got := handler.callCount(key); got != 1 {
				t.Fatalf("%s executed %d times, want 1", key, got)
			}
			status := stageState(t, store, file.ID, stg)
			if status.OutputRef != "/out/"+key {
				t.Fatalf("%s output ref = %q", key, status.OutputRef)
			}
		}
	}
	if len(orderViolations) > 0 {
		t.Fatalf("stages ran before their prerequisite completed: %v", orderViolations)
	}
	if got := notifier.count(notifications.EventFileCompleted); got != 2 {
		t.Fatalf("expected 2 file_completed notifications, got %d", got)
	}
}

func TestManagerExhaustsAttemptsOnTransientErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"), testsupport.WithMaxAttempts(3))
	cfg.Evaluation.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "flaky.wav")

	transcription := newFakeHandler()
	transcription.execute = func(context.Context, queue.WorkClaim) (string, error) {
		return "", services.Wrap(services.ErrTransient, "whisperx", "transcribe", "503 from backend", nil)
	}
	translation := newFakeHandler()
	notifier := &recordingNotifier{}

	m := newTestManager(t, cfg, store, notifier)
	startManager(t, m, StageSet{Transcription: transcription, Translation: translation})

	waitFor(t, "stage_failed notification", func() bool {
		return notifier.count(notifications.EventStageFailed) == 1
	})
	m.Stop()

	status := stageState(t, store, file.ID, queue.StageTranscription)
	if status.State != queue.StateFailed || status.Attempts != 3 {
		t.Fatalf("expected failed after 3 attempts, got %s/%d", status.State, status.Attempts)
	}
	history, err := store.ErrorHistory(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("ErrorHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 error records, got %d", len(history))
	}
	for i, record := range history {
		if record.Kind != queue.ErrorTransient || record.Attempt != i+1 {
			t.Fatalf("record %d = %+v", i, record)
		}
	}
	if translation.totalCalls() != 0 {
		t.Fatal("translation must not run when transcription failed")
	}
	if got := transcription.totalCalls(); got != 3 {
		t.Fatalf("expected 3 transcription attempts, got %d", got)
	}
}

func TestManagerTerminalErrorSkipsRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("de"), testsupport.WithMaxAttempts(5))
	cfg.Evaluation.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "broken.mkv")

	transcription := newFakeHandler()
	translation := newFakeHandler()
	translation.execute = func(context.Context, queue.WorkClaim) (string, error) {
		return "", services.Wrap(services.ErrCardinality, "llm", "translate", "expected 50 entries, got 49", nil)
	}
	notifier := &recordingNotifier{}

	m := newTestManager(t, cfg, store, notifier)
	startManager(t, m, StageSet{Transcription: transcription, Translation: translation})

	waitFor(t, "file to fail", func() bool {
		return fileState(t, store, file.ID) == queue.StateFailed
	})
	waitFor(t, "stage_failed notification", func() bool {
		return notifier.count(notifications.EventStageFailed) == 1
	})
	m.Stop()

	status := stageState(t, store, file.ID, queue.TranslationStage("de"))
	if !status.Terminal || status.Attempts != 1 {
		t.Fatalf("expected terminal failure on first attempt, got terminal=%v attempts=%d", status.Terminal, status.Attempts)
	}
	history, err := store.ErrorHistory(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("ErrorHistory: %v", err)
	}
	if len(history) != 1 || history[0].Kind != queue.ErrorCardinality {
		t.Fatalf("unexpected history %+v", history)
	}
	if got := translation.totalCalls(); got != 1 {
		t.Fatalf("expected a single translation attempt, got %d", got)
	}
}

func TestManagerBoundsPoolConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	cfg.Evaluation.Enabled = false
	cfg.Workflow.TranscriptionWorkers = 2
	cfg.Workflow.ClaimBatch = 4
	store := testsupport.MustOpenStore(t, cfg)
	var files []*queue.MediaFile
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3", "f.mp3"} {
		files = append(files, testsupport.RegisterFile(t, store, cfg, name))
	}

	transcription := newFakeHandler()
	transcription.delay = 30 * time.Millisecond
	translation := newFakeHandler()

	m := newTestManager(t, cfg, store, &recordingNotifier{})
	startManager(t, m, StageSet{Transcription: transcription, Translation: translation})

	waitFor(t, "all files to complete", func() bool {
		for _, file := range files {
			if fileState(t, store, file.ID) != queue.StateCompleted {
				return false
			}
		}
		return true
	})
	m.Stop()

	if peak := transcription.peak.Load(); peak > 2 {
		t.Fatalf("transcription pool ran %d claims at once, limit is 2", peak)
	}
	if transcription.overlap || translation.overlap {
		t.Fatal("a (file, stage) pair executed twice concurrently")
	}
	if got := transcription.totalCalls(); got != len(files) {
		t.Fatalf("expected %d transcription runs, got %d", len(files), got)
	}
}

func TestReclaimerReturnsStuckWorkToPool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	cfg.Evaluation.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "stalled.mkv")

	// A worker that claimed the row and died.
	testsupport.MustClaimOne(t, store, queue.StageTranscription)
	time.Sleep(5 * time.Millisecond)

	reclaimer := NewReclaimer(store, time.Millisecond, logging.NewNop())
	rows, err := reclaimer.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(rows) != 1 || rows[0].FileID != file.ID || rows[0].State != queue.StatePending {
		t.Fatalf("unexpected reclaimed rows %+v", rows)
	}
	status := stageState(t, store, file.ID, queue.StageTranscription)
	if status.Attempts != 1 || status.Reclaims != 1 {
		t.Fatalf("reclaim must keep attempts and count reclaims, got %+v", status)
	}

	m := newTestManager(t, cfg, store, &recordingNotifier{})
	startManager(t, m, StageSet{Transcription: newFakeHandler(), Translation: newFakeHandler()})
	waitFor(t, "reclaimed file to complete", func() bool {
		return fileState(t, store, file.ID) == queue.StateCompleted
	})
	m.Stop()

	history, err := store.ErrorHistory(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("ErrorHistory: %v", err)
	}
	if len(history) != 1 || history[0].Kind != queue.ErrorStuckWork {
		t.Fatalf("expected one stuck_work record, got %+v", history)
	}
}

func TestReclaimerZeroTimeoutReclaimsEveryClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "fresh.mkv")
	testsupport.MustClaimOne(t, store, queue.StageTranscription)
	time.Sleep(time.Millisecond)

	rows, err := NewReclaimer(store, 0, logging.NewNop()).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(rows) != 1 || rows[0].FileID != file.ID {
		t.Fatalf("zero timeout must reclaim the live claim, got %+v", rows)
	}
	reason := rows[0].Err()
	if !errors.Is(reason, services.ErrStuckWork) {
		t.Fatalf("reclaim reason %v is not stuck work", reason)
	}
	if outcome := services.Classify(reason); outcome.Kind != services.KindStuckWork || string(outcome.Kind) != string(queue.ErrorStuckWork) {
		t.Fatalf("unexpected classification %+v", outcome)
	}
}

func TestReclaimerRejectsNegativeTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "kept.mkv")
	testsupport.MustClaimOne(t, store, queue.StageTranscription)

	if _, err := NewReclaimer(store, -time.Second, logging.NewNop()).Sweep(context.Background()); err == nil {
		t.Fatal("expected negative timeout to be rejected")
	}
	status := stageState(t, store, file.ID, queue.StageTranscription)
	if status.State != queue.StateInProgress {
		t.Fatalf("rejected sweep must not touch claims, got %+v", status)
	}
}

func TestManagerDispatchesClaimsTakenBeforeClaimError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	cfg.Evaluation.Enabled = false
	cfg.Workflow.TranscriptionWorkers = 2
	cfg.Workflow.ClaimBatch = 2
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.RegisterFile(t, store, cfg, "first.mkv")
	time.Sleep(2 * time.Millisecond)
	second := testsupport.RegisterFile(t, store, cfg, "second.mkv")

	// The second row of every batch fails to move to in_progress.
	db, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	trigger := fmt.Sprintf(`CREATE TRIGGER refuse_claim BEFORE UPDATE OF state ON stage_status
        WHEN NEW.file_id = '%s' AND NEW.state = 'in_progress'
        BEGIN SELECT RAISE(ABORT, 'claim refused'); END`, second.ID)
	if _, err := db.Exec(trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	transcription := newFakeHandler()
	m := newTestManager(t, cfg, store, &recordingNotifier{})
	startManager(t, m, StageSet{Transcription: transcription, Translation: newFakeHandler()})
	waitFor(t, "first file transcribed", func() bool {
		return stageState(t, store, first.ID, queue.StageTranscription).State == queue.StateCompleted
	})
	m.Stop()

	if got := transcription.callCount(first.ID + "|" + queue.StageTranscription.String()); got != 1 {
		t.Fatalf("first file ran %d times", got)
	}
	status := stageState(t, store, second.ID, queue.StageTranscription)
	if status.State == queue.StateInProgress || status.Attempts != 0 {
		t.Fatalf("refused claim must leave the row untouched, got %+v", status)
	}
}

func TestManagerAbandonsLostClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	cfg.Evaluation.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "slow.mkv")

	started := make(chan struct{})
	cancelled := make(chan error, 1)
	var once sync.Once
	transcription := newFakeHandler()
	transcription.execute = func(ctx context.Context, claim queue.WorkClaim) (string, error) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return "/out/source.srt", nil
		}
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return "", ctx.Err()
	}

	m := newTestManager(t, cfg, store, &recordingNotifier{})
	startManager(t, m, StageSet{Transcription: transcription, Translation: newFakeHandler()})

	<-started
	if _, err := store.ReclaimStuck(context.Background(), 0); err != nil {
		t.Fatalf("ReclaimStuck: %v", err)
	}
	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected handler context cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not cancelled after its claim was lost")
	}

	waitFor(t, "file to complete on the second claim", func() bool {
		return fileState(t, store, file.ID) == queue.StateCompleted
	})
	m.Stop()

	if got := transcription.callCount(file.ID + "|" + queue.StageTranscription.String()); got != 2 {
		t.Fatalf("expected 2 transcription runs, got %d", got)
	}
}

func TestConfigureStagesSkipsDisabledPools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en", "he"))
	cfg.Workflow.EvaluationWorkers = 0
	cfg.Workflow.TranslationWorkersByLanguage = map[string]int{"he": 4}
	store := testsupport.MustOpenStore(t, cfg)

	m := newTestManager(t, cfg, store, &recordingNotifier{})
	if err := m.ConfigureStages(StageSet{Transcription: newFakeHandler(), Translation: newFakeHandler(), Evaluation: newFakeHandler()}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	status := m.Status(context.Background())
	got := make(map[queue.Stage]int, len(status.Pools))
	for _, p := range status.Pools {
		got[p.Stage] = p.Workers
	}
	want := map[queue.Stage]int{
		queue.StageTranscription:      cfg.Workflow.TranscriptionWorkers,
		queue.TranslationStage("en"): cfg.Workflow.TranslationWorkers,
		queue.TranslationStage("he"): 4,
	}
	if len(got) != len(want) {
		t.Fatalf("pools = %v, want %v", got, want)
	}
	for stg, workers := range want {
		if got[stg] != workers {
			t.Fatalf("pool %s has %d workers, want %d", stg, got[stg], workers)
		}
	}
	if status.Running {
		t.Fatal("manager should not report running before Start")
	}
	if _, ok := status.StageHealth["transcription"]; !ok {
		t.Fatalf("missing transcription health: %v", status.StageHealth)
	}

	if err := m.ConfigureStages(StageSet{}); err == nil {
		t.Fatal("expected error when no handler is available")
	}
}

func TestStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := newTestManager(t, cfg, store, &recordingNotifier{})
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without configured stages")
	}
}
