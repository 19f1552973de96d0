package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thetanil/basicforms/internal/db"
)

// Submission is one stored set of form responses.
type Submission struct {
	ID       int64           `json:"submission_id"`
	FormID   string          `json:"form_id"`
	FormName string          `json:"form_name"`
	Data     json.RawMessage `json:"data"`
	Metadata json.RawMessage `json:"metadata"`
	// Timestamp is the unix time the submission was stored.
	Timestamp int64 `json:"timestamp"`
}

// SubmissionFilter narrows List. Zero fields do not filter.
type SubmissionFilter struct {
	ID     int64
	FormID string
	Since  time.Time
	Limit  int
}

// Submissions is the insert-only submission store.
type Submissions struct {
	db  *db.DB
	now func() time.Time
}

// NewSubmissions returns a submission store backed by d.
func NewSubmissions(d *db.DB) *Submissions {
	return &Submissions{db: d, now: time.Now}
}

// Insert stores a submission against an existing form. data and metadata
// must be JSON documents; empty values are stored as {}.
func (s *Submissions) Insert(ctx context.Context, formID string, data, metadata json.RawMessage) (int64, error) {
	if formID == "" {
		return 0, invalidInput("form id cannot be empty")
	}

	id, err := insert(ctx, s.db,
		`INSERT INTO submissions (form_id, data, metadata, created_at) VALUES (?, ?, ?, ?)`,
		formID, jsonText(data), jsonText(metadata), s.now().Unix())
	if err != nil {
		switch constraint(err) {
		case foreignKeyViolation:
			return 0, &Error{Code: CodeUnknownForm, Message: fmt.Sprintf("form not found: %s", formID), Err: err}
		case checkViolation, jsonViolation:
			return 0, &Error{Code: CodeInvalidJSON, Message: "submission data is not valid JSON", Err: err}
		}
		return 0, fmt.Errorf("failed to insert submission: %w", err)
	}
	return id, nil
}

// jsonText passes JSON to the driver as text. A []byte argument would be
// stored as a blob by SQLite. Absent and null payloads become {}.
func jsonText(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return "{}"
	}
	return text
}

// List returns submissions joined with their form's name, ordered by form
// name and then by submission id.
func (s *Submissions) List(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	var (
		where []string
		args  []any
	)
	if filter.ID != 0 {
		where = append(where, "s.id = ?")
		args = append(args, filter.ID)
	}
	if filter.FormID != "" {
		where = append(where, "s.form_id = ?")
		args = append(args, filter.FormID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "s.created_at >= ?")
		args = append(args, filter.Since.Unix())
	}

	query := `SELECT s.id, s.form_id, f.form_name, s.data, s.metadata, s.created_at
		FROM submissions s
		JOIN forms f ON f.form_id = s.form_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.form_name, s.id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	subs := []Submission{}
	for rows.Next() {
		var (
			sub            Submission
			data, metadata string
		)
		if err := rows.Scan(&sub.ID, &sub.FormID, &sub.FormName, &data, &metadata, &sub.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		sub.Data = json.RawMessage(data)
		sub.Metadata = json.RawMessage(metadata)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// Get returns one submission.
func (s *Submissions) Get(ctx context.Context, id int64) (*Submission, error) {
	subs, err := s.List(ctx, SubmissionFilter{ID: id})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, notFound("submission not found: %d", id)
	}
	return &subs[0], nil
}

// Count returns the number of submissions stored for a form.
func (s *Submissions) Count(ctx context.Context, formID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM submissions WHERE form_id = ?`), formID).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}
