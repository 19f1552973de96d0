package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thetanil/basicforms/internal/render"
	"github.com/thetanil/basicforms/internal/schema"
	"github.com/thetanil/basicforms/internal/store"
)

// submitPath is the JSON endpoint rendered forms post to.
const submitPath = "/api/submissions"

// listing is the response of the list endpoints: the rows plus the labels
// and default sort column a table view needs.
type listing[T any] struct {
	Schema      map[string]string `json:"schema"`
	Data        []T               `json:"data"`
	DefaultSort string            `json:"default_sort"`
}

var formColumns = map[string]string{
	"form_id":   "Form ID",
	"form_name": "Form Name",
	"timestamp": "Created",
}

// handleListForms lists every stored schema
func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := s.forms.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing[store.Form]{
		Schema:      formColumns,
		Data:        forms,
		DefaultSort: "form_id",
	})
}

// handleGetForm returns one schema
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.forms.Get(r.Context(), r.PathValue("formID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// handleCreateForm stores a new schema
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FormID   string      `json:"form_id"`
		FormName string      `json:"form_name"`
		Config   configField `json:"config"`
	}
	if !decode(w, r, &req) {
		return
	}

	// Unsupported field types are refused here rather than at render time.
	if _, err := schema.Parse(string(req.Config)); err != nil {
		s.fail(w, r, err)
		return
	}

	if _, err := s.forms.Insert(r.Context(), req.FormID, req.FormName, string(req.Config)); err != nil {
		s.fail(w, r, err)
		return
	}

	form, err := s.forms.Get(r.Context(), req.FormID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

// handleUpdateForm replaces the config of a schema
func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")

	var req struct {
		FormID string      `json:"form_id"`
		Config configField `json:"config"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.FormID != "" && req.FormID != formID {
		writeError(w, http.StatusBadRequest, string(store.CodeInvalidInput), "form id in body does not match path")
		return
	}

	if _, err := schema.Parse(string(req.Config)); err != nil {
		s.fail(w, r, err)
		return
	}

	n, err := s.forms.Update(r.Context(), formID, string(req.Config))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, string(store.CodeNotFound), "form not found: "+formID)
		return
	}

	form, err := s.forms.Get(r.Context(), formID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// handleDeleteForm deletes a schema and its submissions
func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")

	n, err := s.forms.Delete(r.Context(), formID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, string(store.CodeNotFound), "form not found: "+formID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "form deleted successfully",
		"form_id": formID,
	})
}

// handleSetHook sets or clears the validation hook of a schema
func (s *Server) handleSetHook(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")

	var req struct {
		Script string `json:"script"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := s.hooks.Check(req.Script); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidHook, err.Error())
		return
	}

	n, err := s.forms.SetHook(r.Context(), formID, req.Script)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, string(store.CodeNotFound), "form not found: "+formID)
		return
	}

	form, err := s.forms.Get(r.Context(), formID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// handleRenderForm returns the HTML fragment of a schema
func (s *Server) handleRenderForm(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")

	prefill := 0
	if v := r.URL.Query().Get("prefill"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, string(store.CodeInvalidInput), "prefill must be a non-negative integer")
			return
		}
		prefill = n
	}

	form, err := s.forms.Get(r.Context(), formID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	markup, err := s.renderForm(r.Context(), form, prefill)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(markup))
}

// formOptions are the render options of a form served by this server.
func (s *Server) formOptions(formID string, prefill int) render.Options {
	return render.Options{
		Action:      "/forms/" + url.PathEscape(formID),
		SubmitURL:   submitPath,
		SubmitLabel: s.opts.SubmitLabel,
		Prefill:     prefill,
	}
}

func (s *Server) renderForm(ctx context.Context, form *store.Form, prefill int) (string, error) {
	_, span := s.tracer.Start(ctx, "render.Form")
	defer span.End()

	start := time.Now()
	markup, err := render.Form(form.FormID, form.Config, s.formOptions(form.FormID, prefill))
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	attrs := metric.WithAttributes(attribute.String("form_id", form.FormID))
	s.metrics.FormsRendered.Add(ctx, 1, attrs)
	s.metrics.RenderDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	return markup, nil
}
