package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateEvaluation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorkflow() error {
	w := c.Workflow
	if w.TranscriptionWorkers < 0 || w.TranslationWorkers < 0 || w.EvaluationWorkers < 0 {
		return errors.New("workflow worker counts must be zero or positive")
	}
	for lang, n := range w.TranslationWorkersByLanguage {
		if n < 0 {
			return fmt.Errorf("workflow.translation_workers_by_language.%s must be zero or positive", lang)
		}
	}
	if w.ClaimBatch <= 0 {
		return errors.New("workflow.claim_batch must be positive")
	}
	if w.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if w.MaxIdleInterval < w.PollInterval {
		return errors.New("workflow.max_idle_interval must be at least workflow.poll_interval")
	}
	if w.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if w.ReclaimInterval <= 0 {
		return errors.New("workflow.reclaim_interval must be positive")
	}
	if w.ReclaimTimeout <= w.HeartbeatInterval {
		return errors.New("workflow.reclaim_timeout must be greater than workflow.heartbeat_interval")
	}
	if w.BackendTimeout <= 0 {
		return errors.New("workflow.backend_timeout must be positive")
	}
	if w.StageTimeout < w.BackendTimeout {
		return errors.New("workflow.stage_timeout must be at least workflow.backend_timeout")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelay < 0 {
		return errors.New("retry.base_delay must be zero or positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry.max_delay must be at least retry.base_delay")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return errors.New("retry.jitter_fraction must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if len(c.Subtitles.TargetLanguages) == 0 {
		return errors.New("subtitles.target_languages must list at least one language")
	}
	if c.Subtitles.DetectionBatchSize <= 0 {
		return errors.New("subtitles.detection_batch_size must be positive")
	}
	if c.Subtitles.TranslationBatchSize <= 0 {
		return errors.New("subtitles.translation_batch_size must be positive")
	}
	if c.Subtitles.BatchConcurrency <= 0 {
		return errors.New("subtitles.batch_concurrency must be positive")
	}
	if c.Transcription.MaxDurationMinutes < 0 || c.Transcription.MaxSizeMB < 0 {
		return errors.New("transcription limits must be zero (unlimited) or positive")
	}
	return nil
}

func (c *Config) validateProviders() error {
	switch c.Subtitles.Detector {
	case ProviderLLM, ProviderGemini:
	default:
		return fmt.Errorf("subtitles.detector: unsupported provider %q (use %q or %q)", c.Subtitles.Detector, ProviderLLM, ProviderGemini)
	}
	if err := checkProvider("translation.default_provider", c.Translation.DefaultProvider); err != nil {
		return err
	}
	for lang, provider := range c.Translation.Providers {
		if err := checkProvider("translation.providers."+lang, provider); err != nil {
			return err
		}
	}
	if c.RequiresProvider(ProviderLLM) && strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required (set OPENROUTER_API_KEY or edit the config; create one with 'reelscribe config init')")
	}
	if c.RequiresProvider(ProviderGemini) && strings.TrimSpace(c.Gemini.APIKey) == "" {
		return errors.New("gemini.api_key is required when gemini is selected (set GEMINI_API_KEY)")
	}
	if c.RequiresProvider(ProviderLibreTranslate) && c.LibreTranslate.URL == "" {
		return errors.New("libretranslate.url is required when libretranslate is selected")
	}
	return nil
}

func checkProvider(field, provider string) error {
	switch provider {
	case ProviderLLM, ProviderGemini, ProviderLibreTranslate:
		return nil
	default:
		return fmt.Errorf("%s: unsupported provider %q", field, provider)
	}
}

func (c *Config) validateEvaluation() error {
	if !c.Evaluation.Enabled {
		return nil
	}
	if c.Evaluation.SampleSize <= 0 {
		return errors.New("evaluation.sample_size must be positive")
	}
	if c.Evaluation.MinScore < 0 || c.Evaluation.MinScore > 100 {
		return errors.New("evaluation.min_score must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
