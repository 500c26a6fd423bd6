package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"taunote/internal/config"
	"taunote/internal/deps"
	"taunote/internal/history"
	"taunote/internal/language"
	"taunote/internal/logging"
	"taunote/internal/notes"
	"taunote/internal/pipeline"
	"taunote/internal/preflight"
	"taunote/internal/services"
)

type transcribeOptions struct {
	input       string
	output      string
	model       string
	language    string
	format      string
	minSpeakers int
	maxSpeakers int
	noteKind    string
	skipChecks  bool
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe an audio file with speaker labels",
		Long: `Transcribe an audio file, align words, detect speakers, and write a
speaker-labelled transcript.

Each segment becomes one "[speaker] text" line in the default text format.
Segments no speaker could be matched to are labelled "unknown".`,
		Example: `  taunote transcribe -i meeting.m4a
  taunote transcribe -i lecture.wav -o notes/lecture.srt -l en
  taunote transcribe -i call.mp3 --max-speakers 2 --notes summary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerFor()

			result, store, err := runTranscribe(cmd.Context(), cfg, logger, opts)
			if store != nil {
				defer store.Close()
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("transcription cancelled", logging.String(logging.FieldRunID, result.RunID))
					return err
				}
				logging.ErrorWithContext(logger, "WhisperX processing failed", "run_failed",
					logging.Error(err),
					logging.String(logging.FieldRunID, result.RunID),
					logging.String("failure_kind", services.FailureKind(err)),
					logging.String(logging.FieldErrorHint, services.FailureHint(err)),
				)
				return reportedError{err: err}
			}

			out := cmd.OutOrStdout()
			printTranscribeSummary(out, result)

			if opts.noteKind != "" {
				if err := appendRunNote(cmd.Context(), cfg, store, logger, result, opts.noteKind, out); err != nil {
					logging.WarnWithContext(logger, "note generation failed", "notes_failed",
						logging.Error(err),
						logging.String(logging.FieldRunID, result.RunID),
						logging.String(logging.FieldErrorHint, fmt.Sprintf("retry with 'taunote notes %s --kind %s'", shortID(result.RunID), opts.noteKind)),
						logging.String(logging.FieldImpact, "transcript was written without notes"),
					)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Audio file to transcribe")
	cmd.Flags().StringVarP(&opts.output, "output", "o", pipeline.DefaultOutputPath, "Transcript output path")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Whisper model name (default from config, \"small\")")
	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "Language code; empty detects the language")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: txt, json, or srt (default from the output extension)")
	cmd.Flags().IntVar(&opts.minSpeakers, "min-speakers", 0, "Lower bound on the number of speakers")
	cmd.Flags().IntVar(&opts.maxSpeakers, "max-speakers", 0, "Upper bound on the number of speakers")
	cmd.Flags().StringVar(&opts.noteKind, "notes", "", "Generate LLM notes after transcription: "+kindList())
	cmd.Flags().BoolVar(&opts.skipChecks, "skip-checks", false, "Skip tool and token checks before running")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// runTranscribe performs the checks and runs the pipeline. The returned store
// stays open for note generation and must be closed by the caller.
func runTranscribe(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts transcribeOptions) (pipeline.Result, *history.Store, error) {
	if opts.noteKind != "" {
		if _, err := notes.ParseKind(opts.noteKind); err != nil {
			return pipeline.Result{}, nil, services.Wrap(services.ErrValidation, "cli", "notes", "", err)
		}
	}
	if err := cfg.RequireHFToken(); err != nil {
		return pipeline.Result{}, nil, services.Wrap(services.ErrConfiguration, "cli", "diarization", "", err)
	}
	if !opts.skipChecks {
		if err := checkEnvironment(ctx, cfg, logger); err != nil {
			return pipeline.Result{}, nil, err
		}
	}

	store, err := history.Open(cfg)
	if err != nil {
		return pipeline.Result{}, nil, services.Wrap(services.ErrConfiguration, "cli", "history", "open run history", err)
	}
	runner, err := pipeline.NewRunner(cfg, logger, pipeline.WithStore(store))
	if err != nil {
		return pipeline.Result{}, store, err
	}
	result, err := runner.Run(ctx, pipeline.Request{
		InputPath:   opts.input,
		OutputPath:  opts.output,
		Model:       opts.model,
		Language:    opts.language,
		Format:      opts.format,
		MinSpeakers: opts.minSpeakers,
		MaxSpeakers: opts.maxSpeakers,
	})
	return result, store, err
}

func checkEnvironment(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if missing := deps.Missing(preflight.CheckSystemDeps(ctx, cfg)); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, status := range missing {
			names = append(names, status.Name)
		}
		return services.Wrap(services.ErrExternalTool, "cli", "preflight", "missing tools: "+strings.Join(names, ", "), nil)
	}

	results := preflight.RunAll(ctx, cfg, preflight.Options{})
	for _, result := range results {
		if result.Passed && result.Warning {
			logging.WarnWithContext(logger, "preflight check could not be confirmed", "preflight_warning",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldImpact, "run continues; the stage may fail later"),
			)
		}
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, result := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
		return services.Wrap(services.ErrConfiguration, "cli", "preflight", strings.Join(parts, "; "), nil)
	}
	return nil
}

func printTranscribeSummary(out io.Writer, result pipeline.Result) {
	fmt.Fprintf(out, "Transcript written to %s\n", result.OutputPath)
	fmt.Fprintf(out, "  Run:      %s\n", shortID(result.RunID))
	fmt.Fprintf(out, "  Language: %s\n", languageLabel(result.Transcript.Language))
	fmt.Fprintf(out, "  Segments: %d\n", len(result.Transcript.Segments))
	if result.DiarizationSkipped {
		fmt.Fprintln(out, "  Speakers: diarization disabled")
	} else {
		fmt.Fprintf(out, "  Speakers: %d\n", len(result.Speakers))
	}
	if result.AlignmentSkipped {
		fmt.Fprintln(out, "  Words:    estimated timings (alignment skipped)")
	}
	fmt.Fprintf(out, "  Elapsed:  %s\n", formatDuration(result.Elapsed))
}

func kindList() string {
	kinds := notes.Kinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return strings.Join(names, ", ")
}

func languageLabel(code string) string {
	if strings.TrimSpace(code) == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", language.DisplayName(code), code)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
