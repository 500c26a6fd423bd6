package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Note is a stored LLM note attached to a run.
type Note struct {
	ID        int64
	RunID     string
	Kind      string
	Model     string
	Content   string
	CreatedAt time.Time
}

// AddNote attaches a note to a run.
func (s *Store) AddNote(ctx context.Context, note Note) (int64, error) {
	if strings.TrimSpace(note.RunID) == "" || strings.TrimSpace(note.Kind) == "" {
		return 0, errors.New("add note: run id and kind required")
	}
	created := note.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.exec(ctx,
		`INSERT INTO notes (run_id, kind, model, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		note.RunID,
		note.Kind,
		nullableString(note.Model),
		note.Content,
		formatTime(created),
	)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return res.LastInsertId()
}

// ListNotes returns the notes for a run, oldest first.
func (s *Store) ListNotes(ctx context.Context, runID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, COALESCE(model, ''), content, created_at FROM notes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var (
			note       Note
			createdRaw string
		)
		if err := rows.Scan(&note.ID, &note.RunID, &note.Kind, &note.Model, &note.Content, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTime(createdRaw); err == nil {
			note.CreatedAt = created
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
