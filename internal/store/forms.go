// Package store persists form schemas and their submissions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thetanil/basicforms/internal/db"
)

// Form is a stored form schema.
type Form struct {
	ID       int64  `json:"id"`
	FormID   string `json:"form_id"`
	FormName string `json:"form_name"`
	Config   string `json:"config"`
	Hook     string `json:"hook,omitempty"`
	// Timestamp is the unix time of creation or the last update.
	Timestamp int64 `json:"timestamp"`
}

// Forms is the form schema store.
type Forms struct {
	db  *db.DB
	now func() time.Time
}

// NewForms returns a form store backed by d.
func NewForms(d *db.DB) *Forms {
	return &Forms{db: d, now: time.Now}
}

const formColumns = `id, form_id, form_name, config, hook, updated_at`

func scanForm(row interface{ Scan(...any) error }) (Form, error) {
	var f Form
	err := row.Scan(&f.ID, &f.FormID, &f.FormName, &f.Config, &f.Hook, &f.Timestamp)
	return f, err
}

// Get returns the form with the given form id.
func (s *Forms) Get(ctx context.Context, formID string) (*Form, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+formColumns+` FROM forms WHERE form_id = ?`), formID)
	f, err := scanForm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("form not found: %s", formID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query form: %w", err)
	}
	return &f, nil
}

// List returns every form ordered by form id.
func (s *Forms) List(ctx context.Context) ([]Form, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+formColumns+` FROM forms ORDER BY form_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	forms := []Form{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return forms, nil
}

// Insert stores a new form and returns its surrogate id.
func (s *Forms) Insert(ctx context.Context, formID, formName, config string) (int64, error) {
	if formID == "" {
		return 0, invalidInput("form id cannot be empty")
	}
	if formName == "" {
		return 0, invalidInput("form name cannot be empty")
	}

	now := s.now().Unix()
	id, err := insert(ctx, s.db,
		`INSERT INTO forms (form_id, form_name, config, hook, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		formID, formName, config, now, now)
	if err != nil {
		switch constraint(err) {
		case uniqueViolation:
			return 0, &Error{Code: CodeDuplicateForm, Message: fmt.Sprintf("form with id %s already exists", formID), Err: err}
		case checkViolation, jsonViolation:
			return 0, &Error{Code: CodeInvalidJSON, Message: "form config is not valid JSON", Err: err}
		}
		return 0, fmt.Errorf("failed to insert form: %w", err)
	}
	return id, nil
}

// Update replaces the config of a form and refreshes its timestamp. It
// returns the number of rows changed, zero when the form does not exist.
func (s *Forms) Update(ctx context.Context, formID, config string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE forms SET config = ?, updated_at = ? WHERE form_id = ?`),
		config, s.now().Unix(), formID)
	if err != nil {
		switch constraint(err) {
		case checkViolation, jsonViolation:
			return 0, &Error{Code: CodeInvalidJSON, Message: "form config is not valid JSON", Err: err}
		}
		return 0, fmt.Errorf("failed to update form: %w", err)
	}
	return affected(res)
}

// SetHook replaces the validation script of a form. An empty script
// removes it.
func (s *Forms) SetHook(ctx context.Context, formID, script string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE forms SET hook = ?, updated_at = ? WHERE form_id = ?`),
		script, s.now().Unix(), formID)
	if err != nil {
		return 0, fmt.Errorf("failed to set hook: %w", err)
	}
	return affected(res)
}

// Delete removes a form together with its submissions.
func (s *Forms) Delete(ctx context.Context, formID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM forms WHERE form_id = ?`), formID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete form: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// insert runs an INSERT and returns the new row id. Postgres has no
// LastInsertId and reports it through RETURNING instead.
func insert(ctx context.Context, d *db.DB, query string, args ...any) (int64, error) {
	if d.Dialect == db.Postgres {
		var id int64
		err := d.QueryRowContext(ctx, d.Rebind(query+` RETURNING id`), args...).Scan(&id)
		return id, err
	}
	res, err := d.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
