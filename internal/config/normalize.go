package config

import (
	"fmt"
	"os"
	"strings"

	"reelscribe/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLanguages(); err != nil {
		return err
	}
	c.normalizeCredentials()
	c.normalizeTranscription()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// normalizeLanguages canonicalizes every language-keyed setting so stage
// names and provider lookups agree (e.g. "German" and "de-DE" become "de").
func (c *Config) normalizeLanguages() error {
	for _, raw := range c.Subtitles.TargetLanguages {
		if language.Normalize(raw) == "" {
			return fmt.Errorf("subtitles.target_languages: unrecognized language %q", raw)
		}
	}
	c.Subtitles.TargetLanguages = language.NormalizeList(c.Subtitles.TargetLanguages)
	c.Subtitles.Detector = strings.ToLower(strings.TrimSpace(c.Subtitles.Detector))
	c.Translation.DefaultProvider = strings.ToLower(strings.TrimSpace(c.Translation.DefaultProvider))

	if len(c.Translation.Providers) > 0 {
		providers := make(map[string]string, len(c.Translation.Providers))
		for lang, provider := range c.Translation.Providers {
			code := language.Normalize(lang)
			if code == "" {
				return fmt.Errorf("translation.providers: unrecognized language %q", lang)
			}
			providers[code] = strings.ToLower(strings.TrimSpace(provider))
		}
		c.Translation.Providers = providers
	}
	if len(c.Workflow.TranslationWorkersByLanguage) > 0 {
		workers := make(map[string]int, len(c.Workflow.TranslationWorkersByLanguage))
		for lang, n := range c.Workflow.TranslationWorkersByLanguage {
			code := language.Normalize(lang)
			if code == "" {
				return fmt.Errorf("workflow.translation_workers_by_language: unrecognized language %q", lang)
			}
			workers[code] = n
		}
		c.Workflow.TranslationWorkersByLanguage = workers
	}
	if src := strings.TrimSpace(c.Transcription.SourceLanguage); src != "" {
		code := language.Normalize(src)
		if code == "" {
			return fmt.Errorf("transcription.source_language: unrecognized language %q", src)
		}
		c.Transcription.SourceLanguage = code
	}
	return nil
}

func (c *Config) normalizeCredentials() {
	c.LLM.APIKey = envFallback(c.LLM.APIKey, "OPENROUTER_API_KEY", "LLM_API_KEY")
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}

	c.Gemini.APIKey = envFallback(c.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}

	c.LibreTranslate.URL = strings.TrimRight(strings.TrimSpace(c.LibreTranslate.URL), "/")
	c.LibreTranslate.APIKey = envFallback(c.LibreTranslate.APIKey, "LIBRETRANSLATE_API_KEY")
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperXModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultWhisperXVADMethod
	}
	c.Transcription.HuggingFaceToken = envFallback(c.Transcription.HuggingFaceToken, "HUGGING_FACE_HUB_TOKEN", "HF_TOKEN")
	if strings.TrimSpace(c.Transcription.FFmpegBinary) == "" {
		c.Transcription.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Transcription.FFprobeBinary) == "" {
		c.Transcription.FFprobeBinary = "ffprobe"
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// envFallback returns value trimmed, or the first non-empty environment
// variable among keys when value is blank.
func envFallback(value string, keys ...string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	for _, key := range keys {
		if env, ok := os.LookupEnv(key); ok && strings.TrimSpace(env) != "" {
			return strings.TrimSpace(env)
		}
	}
	return ""
}
