// Package backends builds the detection, translation and evaluation clients
// selected by configuration.
//
// Each provider is constructed once per Set so its rate limiter is shared by
// every worker that uses it.
package backends

import (
	"context"
	"fmt"
	"sort"

	"reelscribe/internal/config"
	"reelscribe/internal/services"
	"reelscribe/internal/services/gemini"
	"reelscribe/internal/services/libretranslate"
	"reelscribe/internal/services/llm"
	"reelscribe/internal/subtitles"
)

// HealthChecker is implemented by every provider client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Set holds the provider clients required by a configuration.
type Set struct {
	cfg    *config.Config
	llm    *llm.Client
	gemini *gemini.Client
	libre  *libretranslate.Client
}

// New constructs the clients for every provider the configuration uses.
func New(ctx context.Context, cfg *config.Config) (*Set, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "backends", "new", "configuration unavailable", nil)
	}
	set := &Set{cfg: cfg}
	if cfg.RequiresProvider(config.ProviderLLM) {
		set.llm = llm.NewClient(llm.Config{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			Referer:           cfg.LLM.Referer,
			Title:             cfg.LLM.Title,
			TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		})
	}
	if cfg.RequiresProvider(config.ProviderGemini) {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:            cfg.Gemini.APIKey,
			Model:             cfg.Gemini.Model,
			RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}
		set.gemini = client
	}
	if cfg.RequiresProvider(config.ProviderLibreTranslate) {
		client, err := libretranslate.New(libretranslate.Config{
			URL:               cfg.LibreTranslate.URL,
			APIKey:            cfg.LibreTranslate.APIKey,
			RequestsPerSecond: cfg.LibreTranslate.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		set.libre = client
	}
	return set, nil
}

// Detector returns the configured language detector.
func (s *Set) Detector() (subtitles.LanguageDetector, error) {
	name := s.cfg.Subtitles.Detector
	switch name {
	case config.ProviderLLM:
		if s.llm != nil {
			return s.llm, nil
		}
	case config.ProviderGemini:
		if s.gemini != nil {
			return s.gemini, nil
		}
	case config.ProviderLibreTranslate:
		if s.libre != nil {
			return s.libre, nil
		}
	}
	return nil, unavailable("detector", name)
}

// TranslatorFor returns the translator configured for a target language.
func (s *Set) TranslatorFor(lang string) (subtitles.TextTranslator, error) {
	name := s.cfg.TranslationProviderFor(lang)
	switch name {
	case config.ProviderLLM:
		if s.llm != nil {
			return s.llm, nil
		}
	case config.ProviderGemini:
		if s.gemini != nil {
			return s.gemini, nil
		}
	case config.ProviderLibreTranslate:
		if s.libre != nil {
			return s.libre, nil
		}
	}
	return nil, unavailable("translator for "+lang, name)
}

// Evaluator returns the LLM evaluator, or nil when LLM scoring is disabled.
func (s *Set) Evaluator() subtitles.Evaluator {
	if !s.cfg.Evaluation.Enabled || !s.cfg.Evaluation.UseLLM || s.llm == nil {
		return nil
	}
	return s.llm
}

// Checkers returns the constructed providers keyed by name.
func (s *Set) Checkers() map[string]HealthChecker {
	out := make(map[string]HealthChecker, 3)
	if s.llm != nil {
		out[config.ProviderLLM] = s.llm
	}
	if s.gemini != nil {
		out[config.ProviderGemini] = s.gemini
	}
	if s.libre != nil {
		out[config.ProviderLibreTranslate] = s.libre
	}
	return out
}

// Names lists the constructed providers in a stable order.
func (s *Set) Names() []string {
	checkers := s.Checkers()
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unavailable(role, provider string) error {
	return services.Wrap(
		services.ErrConfiguration,
		"backends",
		"resolve "+role,
		fmt.Sprintf("provider %q not configured", provider),
		nil,
	)
}
