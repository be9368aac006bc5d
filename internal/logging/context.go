package logging

import (
	"context"
	"log/slog"

	"reelscribe/internal/services"
)

const (
	FieldComponent = "component"
	FieldFileID    = "file_id"
	// FieldStage holds a stage key such as "translation:de".
	FieldStage = "stage"
	// FieldWorker identifies the pool worker executing a claim.
	FieldWorker = "worker"
	// FieldLanguage is the target language of a translation or evaluation stage.
	FieldLanguage = "language"
	// FieldAttempt is the attempt number recorded on a claim.
	FieldAttempt = "attempt"
	// FieldCorrelationID ties together the records of one stage execution.
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the event a record describes (claim_acquired, stage_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells an operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// contextKeys pairs each correlation value carried on a context with the
// log key it is emitted under.
var contextKeys = []struct {
	field  string
	lookup func(context.Context) (string, bool)
}{
	{FieldFileID, services.FileIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldWorker, services.WorkerFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the correlation attributes present on ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, key := range contextKeys {
		if value, ok := key.lookup(ctx); ok {
			fields = append(fields, slog.String(key.field, value))
		}
	}
	return fields
}

// WithContext returns logger with the correlation attributes of ctx added.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
