package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/thetanil/basicforms/internal/db"
	"github.com/thetanil/basicforms/internal/hook"
	"github.com/thetanil/basicforms/internal/render"
	"github.com/thetanil/basicforms/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const emailConfig = `{"fieldsets":[{"fields":[{"type":"text","name":"email","label":"Email"}]}]}`

type fixture struct {
	srv         *Server
	forms       *store.Forms
	submissions *store.Submissions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	d, err := db.Open(context.Background(), db.Config{
		Driver: db.DriverSQLite3,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	logger := zaptest.NewLogger(t)
	forms := store.NewForms(d)
	submissions := store.NewSubmissions(d)

	srv, err := New(Options{SubmitLabel: "Register"}, forms, submissions, hook.New(hook.Config{}, logger), logger)
	require.NoError(t, err)

	return &fixture{srv: srv, forms: forms, submissions: submissions}
}

// do sends a request through the full handler. A string body is sent as
// is; anything else is JSON encoded.
func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createForm(t *testing.T, formID, name, config string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/forms", map[string]any{
		"form_id":   formID,
		"form_name": name,
		"config":    config,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"basicforms"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestFormLifecycle(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodGet, "/api/forms/signup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	form := decodeAs[store.Form](t, rec)
	assert.Equal(t, "Sign up", form.FormName)
	assert.Equal(t, emailConfig, form.Config)

	rec = f.do(t, http.MethodGet, "/api/forms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[listing[store.Form]](t, rec)
	assert.Equal(t, "form_id", list.DefaultSort)
	assert.Equal(t, "Form Name", list.Schema["form_name"])
	require.Len(t, list.Data, 1)

	// Config may also be sent inline.
	rec = f.do(t, http.MethodPut, "/api/forms/signup",
		`{"config": {"fieldsets": [{"fields": [{"type": "checkbox", "name": "agree"}]}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	form = decodeAs[store.Form](t, rec)
	assert.Equal(t, `{"fieldsets":[{"fields":[{"type":"checkbox","name":"agree"}]}]}`, form.Config)

	rec = f.do(t, http.MethodDelete, "/api/forms/signup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/forms/signup", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeAs[errorBody](t, rec).Code)
}

func TestCreateFormErrors(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"duplicate", map[string]any{"form_id": "signup", "form_name": "Again", "config": emailConfig}, http.StatusConflict, "duplicate_form"},
		{"unsupported field", map[string]any{"form_id": "x", "form_name": "X", "config": `{"fieldsets":[{"fields":[{"type":"date","name":"d"}]}]}`}, http.StatusBadRequest, "invalid_config"},
		{"malformed config", map[string]any{"form_id": "x", "form_name": "X", "config": `{"fieldsets":`}, http.StatusBadRequest, "invalid_json"},
		{"empty name", map[string]any{"form_id": "x", "form_name": "", "config": emailConfig}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/forms", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeAs[errorBody](t, rec).Code)
		})
	}

	rec := f.do(t, http.MethodPost, "/api/forms", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMissingForm(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/forms/ghost", map[string]any{"config": emailConfig})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/forms/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.createForm(t, "signup", "Sign up", emailConfig)
	rec = f.do(t, http.MethodPut, "/api/forms/signup", map[string]any{"form_id": "other", "config": emailConfig})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmailFormEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodGet, "/api/forms/signup/render", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	doc, err := html.Parse(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	inputs := findInputs(doc, "email")
	require.Len(t, inputs, 1)

	rec = f.do(t, http.MethodPost, "/api/submissions", map[string]any{
		"form_id":  "signup",
		"data":     map[string]any{"email": "ada@example.com"},
		"metadata": map[string]any{"source": "test"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decodeAs[store.Submission](t, rec)
	assert.Equal(t, "Sign up", sub.FormName)
	assert.JSONEq(t, `{"email":"ada@example.com"}`, string(sub.Data))

	rec = f.do(t, http.MethodGet, "/api/submissions?form_id=signup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[listing[store.Submission]](t, rec)
	assert.Equal(t, "form_name", list.DefaultSort)
	assert.Equal(t, "ID", list.Schema["submission_id"])
	require.Len(t, list.Data, 1)
	assert.Equal(t, sub.ID, list.Data[0].ID)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/submissions/%d", sub.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"source":"test"}`, string(decodeAs[store.Submission](t, rec).Metadata))
}

func findInputs(n *html.Node, name string) []*html.Node {
	var out []*html.Node
	if n.Type == html.ElementNode && n.Data == "input" {
		for _, a := range n.Attr {
			if a.Key == "name" && a.Val == name {
				out = append(out, n)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findInputs(c, name)...)
	}
	return out
}

func TestRenderPrefill(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "kids", "Kids",
		`{"fieldsets":[{"type":"repeatable","fields":[{"type":"text","name":"child"}]}]}`)

	rec := f.do(t, http.MethodGet, "/api/forms/kids/render?prefill=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="child_1"`)
	assert.Contains(t, rec.Body.String(), `name="child_2"`)
	assert.NotContains(t, rec.Body.String(), `name="child_3"`)

	rec = f.do(t, http.MethodGet, "/api/forms/kids/render?prefill=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/forms/ghost/render", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && strings.Contains(" "+attr(n, "class")+" ", " "+class+" ") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func TestRepeatableMarkupForClientScript(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "kids", "Kids", `{"fieldsets":[{
		"type":"repeatable",
		"repeater":{"type":"select","name":"children","options":[1,2,3]},
		"fields":[{"type":"text","name":"child"}]
	}]}`)

	rec := f.do(t, http.MethodGet, "/api/forms/kids/render", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	doc, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)

	repeater := findClass(doc, "bf-repeater")
	require.NotNil(t, repeater)

	container := findByID(doc, attr(repeater, "data-container"))
	require.NotNil(t, container, "container %q", attr(repeater, "data-container"))
	assert.Equal(t, "div", container.Data)
	assert.Nil(t, container.FirstChild, "container starts empty")

	tmpl := findByID(doc, attr(repeater, "data-template"))
	require.NotNil(t, tmpl, "template %q", attr(repeater, "data-template"))
	assert.Equal(t, "template", tmpl.Data)

	start := strings.Index(body, "<template")
	end := strings.Index(body, "</template>")
	require.True(t, start >= 0 && end > start)
	assert.Contains(t, body[start:end], `name="child_`+render.RepeatPlaceholder+`"`)
	assert.NotContains(t, body[:start]+body[end:], render.RepeatPlaceholder)
}

func TestSubmissionErrors(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodPost, "/api/submissions", map[string]any{"form_id": "ghost", "data": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_form", decodeAs[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/submissions", map[string]any{"data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/submissions", `{"form_id":"signup","data":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeAs[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/api/submissions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/submissions/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/submissions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const requireEmailHook = `
def validate(data, metadata):
    if not data.get("email"):
        return {"email": "is required"}
    return None
`

func TestHookRejectsSubmission(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodPut, "/api/forms/signup/hook", map[string]any{"script": requireEmailHook})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, requireEmailHook, decodeAs[store.Form](t, rec).Hook)

	rec = f.do(t, http.MethodPost, "/api/submissions", map[string]any{
		"form_id": "signup",
		"data":    map[string]any{"email": ""},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeAs[errorBody](t, rec)
	assert.Equal(t, "rejected", body.Code)
	assert.Equal(t, map[string]string{"email": "is required"}, body.Fields)

	subs, err := f.submissions.List(context.Background(), store.SubmissionFilter{FormID: "signup"})
	require.NoError(t, err)
	assert.Empty(t, subs)

	rec = f.do(t, http.MethodPost, "/api/submissions", map[string]any{
		"form_id": "signup",
		"data":    map[string]any{"email": "ada@example.com"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Clearing the hook accepts everything again.
	rec = f.do(t, http.MethodPut, "/api/forms/signup/hook", map[string]any{"script": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/submissions", map[string]any{"form_id": "signup", "data": map[string]any{}})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSetHookErrors(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodPut, "/api/forms/signup/hook", map[string]any{"script": "def validate(:\n"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_hook", decodeAs[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPut, "/api/forms/ghost/hook", map[string]any{"script": requireEmailHook})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicPage(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodGet, "/forms/signup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Sign up</title>")
	assert.Contains(t, body, `<form id="form_signup"`)
	assert.Contains(t, body, `action="/forms/signup"`)
	assert.Contains(t, body, `data-submit-url="/api/submissions"`)
	assert.Contains(t, body, `/static/forms.js`)
	assert.NotContains(t, body, "bf-page-notice")

	rec = f.do(t, http.MethodGet, "/forms/signup?status=ok", nil)
	assert.Contains(t, rec.Body.String(), render.SuccessNotice)

	rec = f.do(t, http.MethodGet, "/forms/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postForm(t *testing.T, f *fixture, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPagePostPartitionsValues(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "prefs", "Preferences", `{"fieldsets":[{"fields":[
		{"type":"multiselect","name":"colors","label":"Colors","options":["red","green","blue"]},
		{"type":"checkbox","name":"agree","label":"Agree"},
		{"type":"text","name":"email","label":"Email"}]}]}`)

	rec := postForm(t, f, "/forms/prefs", url.Values{
		"form_id":         {"prefs"},
		"colors":          {"red", "blue"},
		"email":           {"ada@example.com"},
		"utm":             {"newsletter"},
		"bf_prefs-submit": {"Register"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/forms/prefs?status=ok", rec.Header().Get("Location"))

	subs, err := f.submissions.List(context.Background(), store.SubmissionFilter{FormID: "prefs"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.JSONEq(t, `{"agree":false,"colors":["red","blue"],"email":"ada@example.com"}`, string(subs[0].Data))
	assert.JSONEq(t, `{"utm":"newsletter"}`, string(subs[0].Metadata))
}

func TestPagePostRejected(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)
	_, err := f.forms.SetHook(context.Background(), "signup",
		"def validate(data, metadata):\n    return \"email is required\"\n")
	require.NoError(t, err)

	rec := postForm(t, f, "/forms/signup", url.Values{"form_id": {"signup"}, "email": {""}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), render.ErrorNotice)
	assert.Contains(t, rec.Body.String(), "<li>email is required</li>")

	rec = postForm(t, f, "/forms/signup", url.Values{"form_id": {"other"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/static/forms.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), render.RepeatPlaceholder)
	assert.Contains(t, rec.Body.String(), render.DataFieldClass)

	rec = f.do(t, http.MethodGet, "/static/forms.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/static/page.html", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	f.createForm(t, "signup", "Sign up", emailConfig)

	rec := f.do(t, http.MethodPost, "/api/preview", map[string]any{
		"content":   `<p>{{ greeting + ", " + name }}</p>[basicform schema="signup" label="Join"]<script>alert(1)</script>`,
		"variables": map[string]any{"greeting": "Hello", "name": "Ada"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "Hello, Ada")
	assert.Contains(t, body, `action="/forms/signup"`)
	assert.Contains(t, body, `value="Join"`)
	assert.NotContains(t, body, "<script")

	rec = f.do(t, http.MethodPost, "/api/preview", map[string]any{"content": `[basicform schema="ghost"]`})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/preview", map[string]any{"content": `{{ undefined_name }}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_page", decodeAs[errorBody](t, rec).Code)
}

func TestConfigFieldAcceptsStringOrObject(t *testing.T) {
	var req struct {
		Config configField `json:"config"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"config": "{\"fieldsets\":[]}"}`), &req))
	assert.Equal(t, configField(`{"fieldsets":[]}`), req.Config)

	require.NoError(t, json.Unmarshal([]byte(`{"config": { "fieldsets": [ ] }}`), &req))
	assert.Equal(t, configField(`{"fieldsets":[]}`), req.Config)

	require.NoError(t, json.Unmarshal([]byte(`{"config": null}`), &req))
	assert.Equal(t, configField(""), req.Config)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server took too long to stop")
	}
}
