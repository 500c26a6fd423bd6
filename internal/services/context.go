package services

import "context"

type contextKey int

const (
	runIDKey contextKey = iota
	stageKey
)

// WithRunID tags ctx with the history run ID. Empty IDs leave ctx unchanged.
func WithRunID(ctx context.Context, id string) context.Context {
	return withValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run ID set by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return valueOf(ctx, runIDKey)
}

// WithStage tags ctx with the pipeline stage currently running.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage set by WithStage.
func StageFromContext(ctx context.Context) (string, bool) {
	return valueOf(ctx, stageKey)
}

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueOf(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}
