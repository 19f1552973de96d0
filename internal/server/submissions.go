package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/store"
)

var submissionColumns = map[string]string{
	"submission_id": "ID",
	"form_id":       "Form ID",
	"form_name":     "Form Name",
	"timestamp":     "Created",
}

// handleCreateSubmission validates and stores a JSON submission
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FormID   string          `json:"form_id"`
		Data     json.RawMessage `json:"data"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.FormID == "" {
		writeError(w, http.StatusBadRequest, string(store.CodeInvalidInput), "form_id is required")
		return
	}
	if !isObject(req.Data) || !isObject(req.Metadata) {
		writeError(w, http.StatusBadRequest, string(store.CodeInvalidJSON), "data and metadata must be JSON objects")
		return
	}

	form, err := s.lookupForm(r.Context(), req.FormID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.accept(r.Context(), form, req.Data, req.Metadata)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sub, err := s.submissions.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// lookupForm loads the form a submission targets. A missing form is
// reported as unknown_form.
func (s *Server) lookupForm(ctx context.Context, formID string) (*store.Form, error) {
	form, err := s.forms.Get(ctx, formID)
	if store.IsCode(err, store.CodeNotFound) {
		return nil, &store.Error{Code: store.CodeUnknownForm, Message: "form not found: " + formID, Err: err}
	}
	return form, err
}

// accept runs the form's hook and stores the submission.
func (s *Server) accept(ctx context.Context, form *store.Form, data, metadata json.RawMessage) (int64, error) {
	attrs := metric.WithAttributes(attribute.String("form_id", form.FormID))

	if err := s.hooks.Validate(ctx, form.Hook, data, metadata); err != nil {
		s.metrics.SubmissionsRejected.Add(ctx, 1, attrs)
		return 0, err
	}

	id, err := s.submissions.Insert(ctx, form.FormID, data, metadata)
	if err != nil {
		s.metrics.SubmissionsRejected.Add(ctx, 1, attrs)
		return 0, err
	}

	s.metrics.SubmissionsAccepted.Add(ctx, 1, attrs)
	s.logger.Debug("stored submission", zap.String("form_id", form.FormID), zap.Int64("submission_id", id))
	return id, nil
}

// handleListSubmissions lists submissions, optionally for one form
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SubmissionFilter{FormID: q.Get("form_id")}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, string(store.CodeInvalidInput), "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(store.CodeInvalidInput), "since must be a unix timestamp")
			return
		}
		filter.Since = time.Unix(sec, 0)
	}

	subs, err := s.submissions.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing[store.Submission]{
		Schema:      submissionColumns,
		Data:        subs,
		DefaultSort: "form_name",
	})
}

// handleGetSubmission returns one submission
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, string(store.CodeInvalidInput), "invalid submission id")
		return
	}

	sub, err := s.submissions.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
