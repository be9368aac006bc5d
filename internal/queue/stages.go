package queue

import (
	"fmt"
	"strings"

	"reelscribe/internal/language"
)

// Stage identifies a processing stage: "transcription",
// "translation:<lang>" or "evaluation:<lang>".
type Stage string

// StageKind is the stage without its language qualifier.
type StageKind string

const (
	KindTranscription StageKind = "transcription"
	KindTranslation   StageKind = "translation"
	KindEvaluation    StageKind = "evaluation"
)

// StageTranscription is the first stage of every file.
const StageTranscription Stage = "transcription"

// TranslationStage returns the translation stage for lang.
func TranslationStage(lang string) Stage {
	return qualified(KindTranslation, lang)
}

// EvaluationStage returns the evaluation stage for lang.
func EvaluationStage(lang string) Stage {
	return qualified(KindEvaluation, lang)
}

// qualified joins kind and lang. A code the language table does not know is
// kept lowercased rather than dropped, so handlers can reject it by name.
func qualified(kind StageKind, lang string) Stage {
	code := language.Normalize(lang)
	if code == "" {
		code = strings.ToLower(strings.TrimSpace(lang))
	}
	return Stage(string(kind) + ":" + code)
}

// ParseStage validates and normalizes a stage identifier.
func ParseStage(value string) (Stage, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == string(StageTranscription) {
		return StageTranscription, nil
	}
	kind, lang, ok := strings.Cut(value, ":")
	if !ok {
		return "", fmt.Errorf("unknown stage %q", value)
	}
	code := language.Normalize(lang)
	if code == "" {
		return "", fmt.Errorf("stage %q: unknown language %q", value, lang)
	}
	switch StageKind(kind) {
	case KindTranslation:
		return TranslationStage(code), nil
	case KindEvaluation:
		return EvaluationStage(code), nil
	case KindTranscription:
		return "", fmt.Errorf("stage %q: transcription takes no language", value)
	default:
		return "", fmt.Errorf("unknown stage %q", value)
	}
}

// Kind returns the stage kind.
func (s Stage) Kind() StageKind {
	kind, _, _ := strings.Cut(string(s), ":")
	return StageKind(kind)
}

// Language returns the target language of a translation or evaluation
// stage, or "" for transcription.
func (s Stage) Language() string {
	_, lang, ok := strings.Cut(string(s), ":")
	if !ok {
		return ""
	}
	return lang
}

// Prerequisite returns the stage that must be completed before s becomes
// claimable, or "" when s has none.
func (s Stage) Prerequisite() Stage {
	switch s.Kind() {
	case KindTranslation:
		return StageTranscription
	case KindEvaluation:
		return TranslationStage(s.Language())
	case KindTranscription:
		return ""
	default:
		return ""
	}
}

func (s Stage) String() string {
	return string(s)
}

// StagesFor returns the ordered stage list for the configured target
// languages: transcription, then one translation stage per language, then
// one evaluation stage per language when evaluation is enabled.
func StagesFor(languages []string, evaluation bool) []Stage {
	langs := language.NormalizeList(languages)
	stages := make([]Stage, 0, 1+2*len(langs))
	stages = append(stages, StageTranscription)
	for _, lang := range langs {
		stages = append(stages, TranslationStage(lang))
	}
	if evaluation {
		for _, lang := range langs {
			stages = append(stages, EvaluationStage(lang))
		}
	}
	return stages
}
