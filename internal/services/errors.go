package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, rate limits, 5xx.
	ErrTransient = errors.New("transient backend error")
	// ErrPermanent marks corrupt or unsupported input; retrying cannot help.
	ErrPermanent = errors.New("permanent input error")
	// ErrCardinality marks a batched response whose item count differs from
	// the request after the per-item fallback was also exhausted.
	ErrCardinality = errors.New("cardinality mismatch")
	// ErrStuckWork marks a claim recovered by the reclaimer.
	ErrStuckWork = errors.New("stuck work")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// ServiceError carries a classification marker, stage context and the
// underlying cause.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Marker, detail)
}

// Unwrap exposes both the marker and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// FailureKind names the class of a failure as recorded in the error history.
type FailureKind string

const (
	KindTransient   FailureKind = "transient"
	KindPermanent   FailureKind = "permanent"
	KindCardinality FailureKind = "cardinality"
	KindStuckWork   FailureKind = "stuck_work"
)

// Outcome is the scheduler-facing classification of a stage error.
type Outcome struct {
	Kind     FailureKind
	Terminal bool
}

// Classify maps a stage error to the failure kind recorded in the error
// history and decides whether remaining attempts are skipped. Unrecognised
// errors are treated as transient so the attempt budget bounds them.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: KindTransient}
	case errors.Is(err, ErrCardinality):
		return Outcome{Kind: KindCardinality, Terminal: true}
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return Outcome{Kind: KindPermanent, Terminal: true}
	case errors.Is(err, ErrStuckWork):
		return Outcome{Kind: KindStuckWork}
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransient),
		errors.Is(err, ErrExternalTool),
		errors.Is(err, context.DeadlineExceeded):
		return Outcome{Kind: KindTransient}
	default:
		return Outcome{Kind: KindTransient}
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
