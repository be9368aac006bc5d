package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory locations.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	EnvFile   string `toml:"env_file"`
}

// Workflow contains scheduler pool sizes, polling and timeout settings.
// Durations are expressed in seconds.
type Workflow struct {
	TranscriptionWorkers         int            `toml:"transcription_workers"`
	TranslationWorkers           int            `toml:"translation_workers"`
	TranslationWorkersByLanguage map[string]int `toml:"translation_workers_by_language"`
	EvaluationWorkers            int            `toml:"evaluation_workers"`
	ClaimBatch                   int            `toml:"claim_batch"`
	PollInterval                 int            `toml:"poll_interval"`
	MaxIdleInterval              int            `toml:"max_idle_interval"`
	HeartbeatInterval            int            `toml:"heartbeat_interval"`
	ReclaimInterval              int            `toml:"reclaim_interval"`
	ReclaimTimeout               int            `toml:"reclaim_timeout"`
	StageTimeout                 int            `toml:"stage_timeout"`
	BackendTimeout               int            `toml:"backend_timeout"`
}

// Retry contains the retry policy applied to transient stage failures.
type Retry struct {
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelay      int     `toml:"base_delay"`
	MaxDelay       int     `toml:"max_delay"`
	JitterFraction float64 `toml:"jitter_fraction"`
}

// Subtitles contains target languages and translator batching.
type Subtitles struct {
	TargetLanguages      []string `toml:"target_languages"`
	DetectionBatchSize   int      `toml:"detection_batch_size"`
	TranslationBatchSize int      `toml:"translation_batch_size"`
	BatchConcurrency     int      `toml:"batch_concurrency"`
	Detector             string   `toml:"detector"`
}

// Translation selects the translation provider per target language.
type Translation struct {
	DefaultProvider string            `toml:"default_provider"`
	Providers       map[string]string `toml:"providers"`
}

// Transcription contains WhisperX settings and provider input limits.
type Transcription struct {
	Model              string `toml:"model"`
	CUDAEnabled        bool   `toml:"cuda_enabled"`
	VADMethod          string `toml:"vad_method"`
	HuggingFaceToken   string `toml:"hf_token"`
	SourceLanguage     string `toml:"source_language"`
	MaxDurationMinutes int    `toml:"max_duration_minutes"`
	MaxSizeMB          int    `toml:"max_size_mb"`
	FFmpegBinary       string `toml:"ffmpeg_binary"`
	FFprobeBinary      string `toml:"ffprobe_binary"`
}

// LLM contains the OpenRouter-compatible chat completion settings used for
// detection, translation and evaluation.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Gemini contains Google Gemini API settings.
type Gemini struct {
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// LibreTranslate contains settings for a LibreTranslate-compatible server.
type LibreTranslate struct {
	URL               string  `toml:"url"`
	APIKey            string  `toml:"api_key"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Evaluation contains translation quality evaluation settings.
type Evaluation struct {
	Enabled    bool `toml:"enabled"`
	UseLLM     bool `toml:"use_llm"`
	SampleSize int  `toml:"sample_size"`
	MinScore   int  `toml:"min_score"`
}

// API contains the read-only status API settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	FileCompleted  bool   `toml:"file_completed"`
	StageFailed    bool   `toml:"stage_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for reelscribe.
//
// Configuration sections by subsystem:
//   - Paths: database, artifact, scratch and log directories
//   - Workflow: worker pool sizes, polling, heartbeat and reclaim timing
//   - Retry: attempt budget and backoff for transient failures
//   - Subtitles: target languages and translator batching
//   - Translation: provider per target language
//   - Transcription: WhisperX and provider limits
//   - LLM, Gemini, LibreTranslate: backend credentials
//   - Evaluation: translation quality checks
//   - API: read-only status endpoint
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level and retention
type Config struct {
	Paths          Paths          `toml:"paths"`
	Workflow       Workflow       `toml:"workflow"`
	Retry          Retry          `toml:"retry"`
	Subtitles      Subtitles      `toml:"subtitles"`
	Translation    Translation    `toml:"translation"`
	Transcription  Transcription  `toml:"transcription"`
	LLM            LLM            `toml:"llm"`
	Gemini         Gemini         `toml:"gemini"`
	LibreTranslate LibreTranslate `toml:"libretranslate"`
	Evaluation     Evaluation     `toml:"evaluation"`
	API            API            `toml:"api"`
	Notifications  Notifications  `toml:"notifications"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return expandPath(filepath.Join(base, "reelscribe", "config.toml"))
	}
	return expandPath("~/.config/reelscribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A missing file yields
// defaults with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile, resolvedPath); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile reads KEY=VALUE secrets into the process environment without
// overriding variables that are already set. An explicit env_file must exist;
// the implicit .env beside the config file is optional.
func loadEnvFile(explicit, configPath string) error {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		expanded, err := expandPath(explicit)
		if err != nil {
			return fmt.Errorf("paths.env_file: %w", err)
		}
		if err := godotenv.Load(expanded); err != nil {
			return fmt.Errorf("load env file %s: %w", expanded, err)
		}
		return nil
	}
	if configPath == "" {
		return nil
	}
	candidate := filepath.Join(filepath.Dir(configPath), ".env")
	if info, err := os.Stat(candidate); err != nil || info.IsDir() {
		return nil
	}
	if err := godotenv.Load(candidate); err != nil {
		return fmt.Errorf("load env file %s: %w", candidate, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reelscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.OutputDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the status store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "reelscribe.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reelscribed.lock")
}

// TranslationWorkersFor returns the pool size for one target language.
func (c *Config) TranslationWorkersFor(lang string) int {
	if n, ok := c.Workflow.TranslationWorkersByLanguage[lang]; ok && n > 0 {
		return n
	}
	return c.Workflow.TranslationWorkers
}

// TranslationProviderFor returns the provider name configured for a target language.
func (c *Config) TranslationProviderFor(lang string) string {
	if provider, ok := c.Translation.Providers[lang]; ok && provider != "" {
		return provider
	}
	return c.Translation.DefaultProvider
}

// RequiresProvider reports whether any configured language, the detector or
// the evaluator uses the named provider.
func (c *Config) RequiresProvider(name string) bool {
	if c.Subtitles.Detector == name {
		return true
	}
	if name == ProviderLLM && c.Evaluation.Enabled && c.Evaluation.UseLLM {
		return true
	}
	for _, lang := range c.Subtitles.TargetLanguages {
		if c.TranslationProviderFor(lang) == name {
			return true
		}
	}
	return false
}

// Seconds converts an integer seconds setting to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

// MaxDuration returns the transcription provider's input duration limit; zero means unlimited.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Transcription.MaxDurationMinutes) * time.Minute
}

// MaxSizeBytes returns the transcription provider's input size limit; zero means unlimited.
func (c *Config) MaxSizeBytes() int64 {
	return int64(c.Transcription.MaxSizeMB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
