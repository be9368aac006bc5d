package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reelscribe/internal/language"
	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

const detectionPrompt = `You identify the language of subtitle lines.
The input is JSON {"items":[{"id":1,"text":"..."}]}.
Respond with JSON only: {"languages":[{"id":1,"language":"en"}]}.
Return exactly one entry per input item with the same id, in input order.
Use ISO 639-1 codes. When a line mixes languages, return the dominant one.
Return "und" when the language cannot be determined.`

const translationPrompt = `You translate subtitle lines for an interview.
The input is JSON {"target":"...","items":[{"id":1,"text":"..."}]}.
Translate every item's text into the target language.
Respond with JSON only: {"translations":[{"id":1,"text":"..."}]}.
Return exactly one entry per input item with the same id, in input order.
Never merge, split, drop or reorder items. Keep names, numbers and line breaks.`

const evaluationPrompt = `You review subtitle translations.
The input is JSON {"target":"...","pairs":[{"source":"...","translation":"..."}]}.
Judge accuracy, fluency and completeness of the translations into the target language.
Respond with JSON only: {"score":0-100,"notes":"one short paragraph"}.`

type item struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// JSONCompleter sends a system and a user prompt and returns the model's
// JSON answer.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Backend implements language detection, translation and evaluation on top
// of any JSON-speaking model. Service names the backend in errors.
type Backend struct {
	Completer JSONCompleter
	Service   string
}

// DetectLanguages implements subtitles.LanguageDetector.
func (c *Client) DetectLanguages(ctx context.Context, texts []string) ([]string, error) {
	return Backend{Completer: c, Service: serviceName}.DetectLanguages(ctx, texts)
}

// Translate implements subtitles.TextTranslator.
func (c *Client) Translate(ctx context.Context, texts []string, target string) ([]string, error) {
	return Backend{Completer: c, Service: serviceName}.Translate(ctx, texts, target)
}

// Evaluate implements subtitles.Evaluator.
func (c *Client) Evaluate(ctx context.Context, pairs []subtitles.Pair, target string) (subtitles.Assessment, error) {
	return Backend{Completer: c, Service: serviceName}.Evaluate(ctx, pairs, target)
}

func numbered(texts []string) []item {
	items := make([]item, len(texts))
	for i, text := range texts {
		items[i] = item{ID: i + 1, Text: text}
	}
	return items
}

// DetectLanguages returns one language tag per text. A response that does
// not map one to one onto the input is reported as services.ErrCardinality.
func (b Backend) DetectLanguages(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request, err := json.Marshal(map[string]any{"items": numbered(texts)})
	if err != nil {
		return nil, fmt.Errorf("%s detect: encode request: %w", b.service(), err)
	}
	content, err := b.Completer.CompleteJSON(ctx, detectionPrompt, string(request))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Languages []struct {
			ID       int    `json:"id"`
			Language string `json:"language"`
		} `json:"languages"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrCardinality, b.service(), "detect", "parse payload", err)
	}
	tags := make([]string, len(texts))
	seen := 0
	for _, entry := range parsed.Languages {
		if entry.ID < 1 || entry.ID > len(texts) || tags[entry.ID-1] != "" {
			return nil, b.cardinalityError("detect", len(texts), len(parsed.Languages))
		}
		tag := language.Normalize(entry.Language)
		if tag == "" {
			tag = subtitles.UndeterminedLanguage
		}
		tags[entry.ID-1] = tag
		seen++
	}
	if seen != len(texts) {
		return nil, b.cardinalityError("detect", len(texts), seen)
	}
	return tags, nil
}

// Translate returns one translation per text, in order.
func (b Backend) Translate(ctx context.Context, texts []string, target string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request, err := json.Marshal(map[string]any{
		"target": targetDescription(target),
		"items":  numbered(texts),
	})
	if err != nil {
		return nil, fmt.Errorf("%s translate: encode request: %w", b.service(), err)
	}
	content, err := b.Completer.CompleteJSON(ctx, translationPrompt, string(request))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Translations []item `json:"translations"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrCardinality, b.service(), "translate", "parse payload", err)
	}
	if len(parsed.Translations) != len(texts) {
		return nil, b.cardinalityError("translate", len(texts), len(parsed.Translations))
	}
	out := make([]string, len(texts))
	filled := make([]bool, len(texts))
	for _, entry := range parsed.Translations {
		if entry.ID < 1 || entry.ID > len(texts) || filled[entry.ID-1] {
			return nil, b.cardinalityError("translate", len(texts), len(parsed.Translations))
		}
		out[entry.ID-1] = strings.TrimSpace(entry.Text)
		filled[entry.ID-1] = true
	}
	return out, nil
}

// Evaluate asks the model for a 0-100 quality score over the sampled pairs.
func (b Backend) Evaluate(ctx context.Context, pairs []subtitles.Pair, target string) (subtitles.Assessment, error) {
	if len(pairs) == 0 {
		return subtitles.Assessment{Score: 100}, nil
	}
	request, err := json.Marshal(map[string]any{
		"target": targetDescription(target),
		"pairs":  pairs,
	})
	if err != nil {
		return subtitles.Assessment{}, fmt.Errorf("%s evaluate: encode request: %w", b.service(), err)
	}
	content, err := b.Completer.CompleteJSON(ctx, evaluationPrompt, string(request))
	if err != nil {
		return subtitles.Assessment{}, err
	}
	var parsed subtitles.Assessment
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return subtitles.Assessment{}, services.Wrap(services.ErrTransient, b.service(), "evaluate", "parse payload", err)
	}
	parsed.Score = max(0, min(100, parsed.Score))
	parsed.Notes = strings.TrimSpace(parsed.Notes)
	return parsed, nil
}

func targetDescription(code string) string {
	name := language.DisplayName(code)
	if name == "" || name == code {
		return code
	}
	return fmt.Sprintf("%s (%s)", name, code)
}

func (b Backend) service() string {
	if b.Service == "" {
		return serviceName
	}
	return b.Service
}

func (b Backend) cardinalityError(op string, want, got int) error {
	return services.Wrap(
		services.ErrCardinality,
		b.service(),
		op,
		fmt.Sprintf("expected %d entries, got %d", want, got),
		nil,
	)
}
