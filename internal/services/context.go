package services

import "context"

// correlation keys carried through a claim's execution.
type ctxKey int

const (
	keyFileID ctxKey = iota
	keyStage
	keyWorker
	keyRequestID
)

func attach(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithFileID tags ctx with the media file being processed.
func WithFileID(ctx context.Context, id string) context.Context { return attach(ctx, keyFileID, id) }

// FileIDFromContext returns the media file ID set by WithFileID.
func FileIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyFileID) }

// WithStage tags ctx with a stage key such as "translation:de".
func WithStage(ctx context.Context, stage string) context.Context { return attach(ctx, keyStage, stage) }

// StageFromContext returns the stage key set by WithStage.
func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyStage) }

// WithWorker tags ctx with the pool worker label, e.g. "translation:de#2".
func WithWorker(ctx context.Context, worker string) context.Context {
	return attach(ctx, keyWorker, worker)
}

// WorkerFromContext returns the worker label set by WithWorker.
func WorkerFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyWorker) }

// WithRequestID tags ctx with a per-execution correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return attach(ctx, keyRequestID, id)
}

// RequestIDFromContext returns the correlation ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, keyRequestID) }
