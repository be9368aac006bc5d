package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"reelscribe/internal/config"
	"reelscribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RegisterFile writes a small media file under the config's base directory
// and registers it with the stages derived from the config.
func RegisterFile(t testing.TB, store *queue.Store, cfg *config.Config, name string) *queue.MediaFile {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "media", name)
	WriteFile(t, path, 1024)
	stages := queue.StagesFor(cfg.Subtitles.TargetLanguages, cfg.Evaluation.Enabled)
	file, _, err := store.Register(context.Background(), queue.MediaFile{Path: path, SizeBytes: 1024}, stages)
	if err != nil {
		t.Fatalf("store.Register: %v", err)
	}
	return file
}

// MustClaimOne claims exactly one row of stage or fails the test.
func MustClaimOne(t testing.TB, store *queue.Store, stage queue.Stage) queue.WorkClaim {
	t.Helper()

	claims, err := store.Claim(context.Background(), stage, 1)
	if err != nil {
		t.Fatalf("store.Claim(%s): %v", stage, err)
	}
	if len(claims) != 1 {
		t.Fatalf("store.Claim(%s): expected 1 claim, got %d", stage, len(claims))
	}
	return claims[0]
}
