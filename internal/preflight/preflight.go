package preflight

import (
	"context"
	"slices"

	"taunote/internal/config"
	"taunote/internal/services/whisperx"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a passed check whose outcome could not be confirmed.
	Warning bool
	Detail  string
}

// Options adjusts how RunAll reaches remote services.
type Options struct {
	TokenValidator whisperx.TokenValidator
	// SkipRemote disables every check that leaves the machine.
	SkipRemote bool
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))

	if cfg.Transcription.Backend == config.BackendSherpa ||
		(cfg.Diarization.Enabled && cfg.Diarization.Backend == config.BackendSherpa) {
		results = append(results, CheckModelFiles(cfg))
	}

	if cfg.DiarizationNeedsToken() && cfg.Diarization.ValidateToken && !opts.SkipRemote {
		results = append(results, CheckHuggingFace(ctx, cfg.Diarization.HFToken, opts.TokenValidator))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	return slices.DeleteFunc(slices.Clone(results), func(r Result) bool { return r.Passed })
}
