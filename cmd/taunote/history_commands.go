package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taunote/internal/history"
	"taunote/internal/transcript"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"runs"},
		Short:   "Inspect past transcription runs",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryRemoveCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runViews(runs))
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderRunTable(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showTranscript bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			notes, err := store.ListNotes(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			if asJSON {
				view := newRunView(run)
				view.Notes = make([]noteView, 0, len(notes))
				for _, note := range notes {
					view.Notes = append(view.Notes, noteView{Kind: note.Kind, Model: note.Model, Content: note.Content, CreatedAt: note.CreatedAt})
				}
				if showTranscript && run.TranscriptJSON != "" {
					view.Transcript = json.RawMessage(run.TranscriptJSON)
				}
				return writeJSON(cmd.OutOrStdout(), view)
			}

			out := cmd.OutOrStdout()
			printRunDetail(out, run)
			for _, note := range notes {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "## %s (%s, %s)\n\n%s\n", strings.ToUpper(note.Kind[:1])+note.Kind[1:], valueOr(note.Model, "unknown model"), note.CreatedAt.Local().Format(time.DateTime), strings.TrimSpace(note.Content))
			}
			if showTranscript {
				if run.TranscriptJSON == "" {
					return errors.New("run has no stored transcript")
				}
				var tr transcript.Transcript
				if err := json.Unmarshal([]byte(run.TranscriptJSON), &tr); err != nil {
					return fmt.Errorf("parse stored transcript: %w", err)
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, transcript.RenderText(tr.Segments, cfg.Output.UnknownLabel))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&showTranscript, "transcript", "t", false, "Include the stored transcript")
	return cmd
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <run-id>...",
		Aliases: []string{"remove"},
		Short:   "Remove runs and their notes from history",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			var missing []string
			for _, ref := range args {
				run, err := store.GetRun(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if run == nil {
					missing = append(missing, ref)
					continue
				}
				if _, err := store.DeleteRun(cmd.Context(), run.ID); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed run %s\n", run.ShortID())
			}
			if len(missing) > 0 {
				return fmt.Errorf("runs not found: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func renderRunTable(runs []*history.Run) string {
	columns := []tableColumn{
		{Title: "ID"},
		{Title: "Started"},
		{Title: "Status"},
		{Title: "Input", MaxWidth: 40},
		{Title: "Model"},
		{Title: "Lang"},
		{Title: "Segments", Align: alignRight},
		{Title: "Speakers", Align: alignRight},
		{Title: "Audio", Align: alignRight},
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ShortID(),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			statusText(run),
			filepath.Base(run.InputPath),
			run.Model,
			run.Language,
			strconv.Itoa(run.Segments),
			strconv.Itoa(run.Speakers),
			formatDuration(time.Duration(run.AudioSeconds * float64(time.Second))),
		})
	}
	return renderTable(columns, rows)
}

func printRunDetail(out io.Writer, run *history.Run) {
	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Status:     %s\n", statusText(run))
	fmt.Fprintf(out, "Input:      %s\n", run.InputPath)
	fmt.Fprintf(out, "Output:     %s\n", valueOr(run.OutputPath, "-"))
	fmt.Fprintf(out, "Format:     %s\n", valueOr(run.Format, "-"))
	fmt.Fprintf(out, "Model:      %s (%s)\n", valueOr(run.Model, "-"), valueOr(run.Backend, "-"))
	fmt.Fprintf(out, "Language:   %s\n", languageLabel(run.Language))
	fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Elapsed:    %s\n", formatDuration(run.Elapsed()))
	}
	if run.Status == history.StatusCompleted {
		fmt.Fprintf(out, "Segments:   %d\n", run.Segments)
		fmt.Fprintf(out, "Speakers:   %d\n", run.Speakers)
		fmt.Fprintf(out, "Audio:      %s\n", formatDuration(time.Duration(run.AudioSeconds*float64(time.Second))))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", run.ErrorMessage)
	}
}

func statusText(run *history.Run) string {
	if run.Status == history.StatusFailed && run.ErrorKind != "" {
		return fmt.Sprintf("%s (%s)", run.Status, run.ErrorKind)
	}
	return string(run.Status)
}

type noteView struct {
	Kind      string    `json:"kind"`
	Model     string    `json:"model,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type runView struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	InputPath    string          `json:"input_path"`
	OutputPath   string          `json:"output_path,omitempty"`
	Format       string          `json:"format,omitempty"`
	Model        string          `json:"model,omitempty"`
	Backend      string          `json:"backend,omitempty"`
	Language     string          `json:"language,omitempty"`
	Segments     int             `json:"segments"`
	Speakers     int             `json:"speakers"`
	AudioSeconds float64         `json:"audio_seconds"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Notes        []noteView      `json:"notes,omitempty"`
	Transcript   json.RawMessage `json:"transcript,omitempty"`
}

func newRunView(run *history.Run) runView {
	return runView{
		ID:           run.ID,
		Status:       string(run.Status),
		InputPath:    run.InputPath,
		OutputPath:   run.OutputPath,
		Format:       run.Format,
		Model:        run.Model,
		Backend:      run.Backend,
		Language:     run.Language,
		Segments:     run.Segments,
		Speakers:     run.Speakers,
		AudioSeconds: run.AudioSeconds,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
}

func runViews(runs []*history.Run) []runView {
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	return views
}

// writeJSON encodes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
