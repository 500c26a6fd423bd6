package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrAmbiguousID is returned when a run ID prefix matches several runs.
var ErrAmbiguousID = errors.New("run id prefix is ambiguous")

// Run is one invocation of the transcription pipeline.
type Run struct {
	ID             string
	InputPath      string
	OutputPath     string
	Format         string
	Model          string
	Backend        string
	Language       string
	Status         Status
	Segments       int
	Speakers       int
	AudioSeconds   float64
	ErrorKind      string
	ErrorMessage   string
	TranscriptJSON string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// ShortID returns the first eight characters of the run ID.
func (r Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}

// Elapsed returns the wall time of a finished run, or 0 while running.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRun describes a run about to start.
type NewRun struct {
	InputPath  string
	OutputPath string
	Format     string
	Model      string
	Backend    string
	Language   string
}

// Outcome carries the results of a successful run.
type Outcome struct {
	OutputPath     string
	Language       string
	Segments       int
	Speakers       int
	AudioSeconds   float64
	TranscriptJSON string
}

// CreateRun inserts a running run with a fresh ID.
func (s *Store) CreateRun(ctx context.Context, in NewRun) (*Run, error) {
	if strings.TrimSpace(in.InputPath) == "" {
		return nil, errors.New("create run: input path required")
	}
	id := uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, input_path, output_path, format, model, backend, language, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		in.InputPath,
		nullableString(in.OutputPath),
		nullableString(in.Format),
		nullableString(in.Model),
		nullableString(in.Backend),
		nullableString(in.Language),
		StatusRunning,
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// FinishRun marks a run completed and stores its outcome.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	res, err := s.exec(ctx,
		`UPDATE runs
         SET status = ?, output_path = COALESCE(?, output_path), language = COALESCE(?, language),
             segments = ?, speakers = ?, audio_seconds = ?, transcript_json = ?, finished_at = ?
         WHERE id = ?`,
		StatusCompleted,
		nullableString(out.OutputPath),
		nullableString(out.Language),
		out.Segments,
		out.Speakers,
		out.AudioSeconds,
		nullableString(out.TranscriptJSON),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireAffected(res, id)
}

// FailRun marks a run failed with a classification and message.
func (s *Store) FailRun(ctx context.Context, id, kind, message string) error {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_kind = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		StatusFailed,
		nullableString(kind),
		nullableString(message),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return requireAffected(res, id)
}

// MarkInterrupted fails runs left in the running state by a process that
// died. Callers must hold the pipeline lock.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_kind = 'interrupted',
             error_message = 'process exited before the run finished', finished_at = ?
         WHERE status = ?`,
		StatusFailed,
		formatTime(time.Now()),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// GetRun fetches a run by full ID or unique prefix. It returns nil when no
// run matches.
func (s *Store) GetRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	key := strings.ToLower(strings.TrimSpace(idOrPrefix))
	if key == "" {
		return nil, errors.New("get run: id required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, key)
	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeLike(key)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run by prefix: %w", err)
	}
	defer rows.Close()
	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, idOrPrefix)
	}
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its notes.
func (s *Store) DeleteRun(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const runColumns = "id, input_path, output_path, format, model, backend, language, status, segments, speakers, audio_seconds, error_kind, error_message, transcript_json, started_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		outputPath   sql.NullString
		format       sql.NullString
		model        sql.NullString
		backend      sql.NullString
		language     sql.NullString
		status       string
		errorKind    sql.NullString
		errorMessage sql.NullString
		transcript   sql.NullString
		startedRaw   string
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.InputPath,
		&outputPath,
		&format,
		&model,
		&backend,
		&language,
		&status,
		&run.Segments,
		&run.Speakers,
		&run.AudioSeconds,
		&errorKind,
		&errorMessage,
		&transcript,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.OutputPath = outputPath.String
	run.Format = format.String
	run.Model = model.String
	run.Backend = backend.String
	run.Language = language.String
	run.Status = Status(status)
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMessage.String
	run.TranscriptJSON = transcript.String
	if started, err := parseTime(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTime(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

func requireAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
