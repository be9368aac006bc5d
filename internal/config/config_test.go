package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reelscribe/internal/config"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsUseEnvKeyAndExpandPaths(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".local", "share", "reelscribe"); cfg.Paths.DataDir != want {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, want)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "reelscribe.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if got := strings.Join(cfg.Subtitles.TargetLanguages, ","); got != "en,de,he" {
		t.Fatalf("unexpected target languages %q", got)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected max_attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Workflow.BackendTimeout != 300 {
		t.Fatalf("expected backend timeout 300, got %d", cfg.Workflow.BackendTimeout)
	}
	if cfg.Subtitles.DetectionBatchSize != 50 || cfg.Subtitles.TranslationBatchSize != 50 {
		t.Fatalf("unexpected batch sizes %+v", cfg.Subtitles)
	}
}

func TestLoadCustomConfigNormalizesLanguages(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[paths]
data_dir = "`+filepath.ToSlash(filepath.Join(dir, "data"))+`"

[subtitles]
target_languages = ["English", "de-DE", "heb", "de"]
detector = "gemini"

[translation]
default_provider = "gemini"

[translation.providers]
German = "libretranslate"

[workflow.translation_workers_by_language]
"he" = 4

[gemini]
api_key = "g-key"

[libretranslate]
url = "http://localhost:5000/"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected existing config at %q, got %q exists=%v", path, resolved, exists)
	}
	if got := strings.Join(cfg.Subtitles.TargetLanguages, ","); got != "en,de,he" {
		t.Fatalf("unexpected target languages %q", got)
	}
	if got := cfg.TranslationProviderFor("de"); got != config.ProviderLibreTranslate {
		t.Fatalf("expected libretranslate for de, got %q", got)
	}
	if got := cfg.TranslationProviderFor("en"); got != config.ProviderGemini {
		t.Fatalf("expected gemini for en, got %q", got)
	}
	if cfg.TranslationWorkersFor("he") != 4 || cfg.TranslationWorkersFor("en") != 2 {
		t.Fatalf("unexpected worker counts he=%d en=%d", cfg.TranslationWorkersFor("he"), cfg.TranslationWorkersFor("en"))
	}
	if cfg.LibreTranslate.URL != "http://localhost:5000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.LibreTranslate.URL)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	os.Unsetenv("OPENROUTER_API_KEY")
	dir := t.TempDir()
	path := writeConfig(t, dir, "[paths]\ndata_dir = \""+filepath.ToSlash(filepath.Join(dir, "data"))+"\"\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENROUTER_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("OPENROUTER_API_KEY") })

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "k")
	path := writeConfig(t, t.TempDir(), "[workflow]\nunknown_knob = 3\n")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing key", func(c *config.Config) { c.LLM.APIKey = "" }, "llm.api_key"},
		{"reclaim timeout", func(c *config.Config) { c.Workflow.ReclaimTimeout = c.Workflow.HeartbeatInterval }, "reclaim_timeout"},
		{"attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"batch", func(c *config.Config) { c.Subtitles.DetectionBatchSize = 0 }, "detection_batch_size"},
		{"detector", func(c *config.Config) { c.Subtitles.Detector = "libretranslate" }, "subtitles.detector"},
		{"provider", func(c *config.Config) { c.Translation.DefaultProvider = "deepl" }, "default_provider"},
		{"jitter", func(c *config.Config) { c.Retry.JitterFraction = 2 }, "jitter_fraction"},
		{"languages", func(c *config.Config) { c.Subtitles.TargetLanguages = nil }, "target_languages"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.LLM.APIKey = "k"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	cfg := config.Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Workflow.ReclaimTimeout != 600 {
		t.Fatalf("unexpected reclaim timeout %d", cfg.Workflow.ReclaimTimeout)
	}
}
