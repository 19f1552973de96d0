package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/collect"
	"github.com/thetanil/basicforms/internal/hook"
	"github.com/thetanil/basicforms/internal/page"
	"github.com/thetanil/basicforms/internal/render"
	"github.com/thetanil/basicforms/internal/schema"
	"github.com/thetanil/basicforms/internal/store"
)

//go:embed static templates
var assets embed.FS

var (
	staticFiles = mustSub(assets, "static")
	pageLayout  = template.Must(template.ParseFS(assets, "templates/page.html"))
)

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// pageData fills templates/page.html.
type pageData struct {
	Title    string
	Form     template.HTML
	Notice   string
	Success  bool
	Messages []string
}

// handlePage serves the public page of a form
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	form, err := s.forms.Get(r.Context(), r.PathValue("formID"))
	if err != nil {
		s.failPage(w, r, err)
		return
	}

	data := pageData{Title: form.FormName}
	if r.URL.Query().Get("status") == "ok" {
		data.Notice = render.SuccessNotice
		data.Success = true
	}
	s.writePage(w, r, http.StatusOK, form, data)
}

// handlePagePost accepts a urlencoded submission from a browser without
// JavaScript and redirects back to the page on success.
func (s *Server) handlePagePost(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	if posted := r.PostForm.Get(collect.FormIDKey); posted != "" && posted != formID {
		http.Error(w, "form id does not match", http.StatusBadRequest)
		return
	}

	form, err := s.forms.Get(r.Context(), formID)
	if err != nil {
		s.failPage(w, r, err)
		return
	}

	// A malformed stored config still yields an empty config; every posted
	// value then lands in metadata.
	cfg, err := schema.Parse(form.Config)
	if err != nil && !errors.Is(err, schema.ErrMalformedConfig) {
		s.failPage(w, r, err)
		return
	}

	payload := collect.Partition(formID, cfg, r.PostForm)
	data, metadata, err := payload.JSON()
	if err != nil {
		s.failPage(w, r, err)
		return
	}

	if _, err := s.accept(r.Context(), form, data, metadata); err != nil {
		status := http.StatusInternalServerError
		pd := pageData{Title: form.FormName, Notice: render.ErrorNotice}

		var rejected *hook.RejectedError
		if errors.As(err, &rejected) {
			status = http.StatusUnprocessableEntity
			pd.Messages = rejected.Messages
		} else {
			s.logger.Error("page submission failed", zap.String("form_id", formID), zap.Error(err))
		}
		s.writePage(w, r, status, form, pd)
		return
	}

	http.Redirect(w, r, "/forms/"+url.PathEscape(formID)+"?status=ok", http.StatusSeeOther)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, form *store.Form, data pageData) {
	markup, err := s.renderForm(r.Context(), form, 0)
	if err != nil {
		s.failPage(w, r, err)
		return
	}
	data.Form = template.HTML(markup)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageLayout.Execute(w, data); err != nil {
		s.logger.Error("failed to write page", zap.Error(err))
	}
}

// failPage reports err as plain text for browser routes.
func (s *Server) failPage(w http.ResponseWriter, r *http.Request, err error) {
	var se *store.Error
	if errors.As(err, &se) && se.Code == store.CodeNotFound {
		http.NotFound(w, r)
		return
	}
	s.logger.Error("page failed", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// handlePreview expands [basicform] shortcodes and {{ }} expressions in
// page content and returns the resulting HTML
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content   string         `json:"content"`
		Variables map[string]any `json:"variables"`
		Sanitize  *bool          `json:"sanitize"`
	}
	if !decode(w, r, &req) {
		return
	}

	sanitize := true
	if req.Sanitize != nil {
		sanitize = *req.Sanitize
	}

	out, err := page.Render(r.Context(), req.Content, page.Options{
		Variables: req.Variables,
		Loader: func(ctx context.Context, formID string) (string, error) {
			form, err := s.forms.Get(ctx, formID)
			if err != nil {
				return "", err
			}
			return form.Config, nil
		},
		Form: render.Options{
			SubmitURL:   submitPath,
			SubmitLabel: s.opts.SubmitLabel,
		},
		ActionPrefix: "/forms/",
		Sanitize:     sanitize,
		Timeout:      s.opts.ScriptTimeout,
		MaxSteps:     s.opts.ScriptMaxSteps,
		Logger:       s.logger,
	})
	if err != nil {
		var (
			se          *store.Error
			unsupported *schema.UnsupportedFieldError
		)
		if errors.As(err, &se) || errors.As(err, &unsupported) {
			s.fail(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidPage, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}
