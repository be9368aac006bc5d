package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reelscribe/internal/config"
)

// ConfigOption adjusts a test configuration after the defaults are applied.
type ConfigOption func(testing.TB, string, *config.Config)

// NewConfig returns the default configuration with every path rooted in a
// fresh temp directory, fast polling and a dummy LLM key.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		DataDir:   filepath.Join(root, "data"),
		OutputDir: filepath.Join(root, "output"),
		WorkDir:   filepath.Join(root, "work"),
		LogDir:    filepath.Join(root, "logs"),
	}
	cfg.LLM.APIKey = "test"
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.MaxIdleInterval = 1

	for _, opt := range opts {
		opt(t, root, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

func WithTargetLanguages(langs ...string) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Subtitles.TargetLanguages = langs
	}
}

func WithMaxAttempts(n int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Retry.MaxAttempts = n
	}
}

// WithStubbedBinaries puts no-op executables named after the given tools
// (ffmpeg and ffprobe by default) first on PATH for the test's duration.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"ffmpeg", "ffprobe"}
	}
	return func(t testing.TB, root string, _ *config.Config) {
		bin := filepath.Join(root, "bin")
		for _, name := range names {
			WriteText(t, filepath.Join(bin, name), "#!/bin/sh\nexit 0\n")
			if err := os.Chmod(filepath.Join(bin, name), 0o755); err != nil {
				t.Fatalf("chmod stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
