package logging

import (
	"context"
	"log/slog"

	"taunote/internal/services"
)

// Structured field keys shared by every package.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldStage     = "stage"
	// FieldEventType classifies a line for filtering, e.g. "stage_start".
	FieldEventType = "event_type"
	// FieldErrorHint is the suggested next step on warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// WithContext returns logger with the run ID and stage carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var attrs []any
	if id, ok := services.RunIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldStage, stage))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
