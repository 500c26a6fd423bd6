package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"taunote/internal/config"
	"taunote/internal/history"
	"taunote/internal/logging"
	"taunote/internal/notes"
	"taunote/internal/pipeline"
	"taunote/internal/services"
	"taunote/internal/services/llm"
	"taunote/internal/transcript"
)

func newNotesCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var noSave bool

	cmd := &cobra.Command{
		Use:   "notes <run-id|transcript-file>",
		Short: "Generate LLM notes from a transcript",
		Long: `Generate a summary, follow-up email, or lecture notes from a finished run
or a transcript file. The transcript is truncated before prompting.

Notes generated from a run are stored with it in history.`,
		Example: `  taunote notes 3f2a9c1e --kind summary
  taunote notes tmp/transcript.txt --kind email`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			kind, err := notes.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			text, run, err := loadNoteSource(cmd.Context(), store, cfg, args[0])
			if err != nil {
				return err
			}
			note, err := generateNote(cmd.Context(), cfg, kind, text)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), note.Markdown())

			if run != nil && !noSave {
				if _, err := store.AddNote(cmd.Context(), history.Note{
					RunID:     run.ID,
					Kind:      string(note.Kind),
					Model:     note.Model,
					Content:   note.Content,
					CreatedAt: note.CreatedAt,
				}); err != nil {
					return fmt.Errorf("save note: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", string(notes.KindSummary), "Note kind: "+kindList())
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Print the note without storing it in history")
	return cmd
}

// loadNoteSource resolves a transcript file path or a run ID to prompt text.
// JSON transcripts are rendered as speaker lines; other files are used as is.
func loadNoteSource(ctx context.Context, store *history.Store, cfg *config.Config, ref string) (string, *history.Run, error) {
	ref = strings.TrimSpace(ref)
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", nil, fmt.Errorf("read transcript: %w", err)
		}
		if strings.EqualFold(filepath.Ext(ref), ".json") {
			var tr transcript.Transcript
			if err := json.Unmarshal(data, &tr); err != nil {
				return "", nil, services.Wrap(services.ErrValidation, "notes", "source", "parse transcript json", err)
			}
			return notes.PromptText(tr, cfg.Output.UnknownLabel), nil, nil
		}
		return string(data), nil, nil
	}

	run, err := store.GetRun(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	if run == nil {
		return "", nil, services.Wrap(services.ErrNotFound, "notes", "source", fmt.Sprintf("no transcript file or run matches %q", ref), nil)
	}
	if run.Status != history.StatusCompleted || strings.TrimSpace(run.TranscriptJSON) == "" {
		return "", nil, services.Wrap(services.ErrValidation, "notes", "source", fmt.Sprintf("run %s has no transcript (status %s)", run.ShortID(), run.Status), nil)
	}
	var tr transcript.Transcript
	if err := json.Unmarshal([]byte(run.TranscriptJSON), &tr); err != nil {
		return "", nil, services.Wrap(services.ErrValidation, "notes", "source", "parse stored transcript", err)
	}
	return notes.PromptText(tr, cfg.Output.UnknownLabel), run, nil
}

func generateNote(ctx context.Context, cfg *config.Config, kind notes.Kind, text string) (notes.Note, error) {
	llmCfg := cfg.GetLLM()
	if llmCfg.APIKey == "" {
		return notes.Note{}, services.Wrap(services.ErrConfiguration, "notes", "llm", "llm.api_key is required (set TAUNOTE_LLM_API_KEY or OPENROUTER_API_KEY)", nil)
	}
	client := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})
	return notes.NewGenerator(client, client.Model()).Generate(ctx, kind, text)
}

// appendRunNote generates a note for a run that just finished and stores it.
func appendRunNote(ctx context.Context, cfg *config.Config, store *history.Store, logger *slog.Logger, result pipeline.Result, kindValue string, out io.Writer) error {
	kind, err := notes.ParseKind(kindValue)
	if err != nil {
		return err
	}
	note, err := generateNote(ctx, cfg, kind, notes.PromptText(result.Transcript, cfg.Output.UnknownLabel))
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, note.Markdown())
	if store == nil {
		return nil
	}
	if _, err := store.AddNote(ctx, history.Note{
		RunID:     result.RunID,
		Kind:      string(note.Kind),
		Model:     note.Model,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
	}); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	logger.Info("note stored",
		logging.String(logging.FieldRunID, result.RunID),
		logging.String("kind", string(note.Kind)),
	)
	return nil
}
