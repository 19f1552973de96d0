package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/hook"
	"github.com/thetanil/basicforms/internal/schema"
	"github.com/thetanil/basicforms/internal/store"
)

// Error codes the API adds to the storage codes.
const (
	codeInvalidConfig = "invalid_config"
	codeInvalidHook   = "invalid_hook"
	codeInvalidPage   = "invalid_page"
	codeRejected      = "rejected"
	codeInternal      = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Fields and Messages carry a validation hook's verdict.
	Fields   map[string]string `json:"fields,omitempty"`
	Messages []string          `json:"messages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// statusOf maps a storage error code to an HTTP status.
func statusOf(code store.Code) int {
	switch code {
	case store.CodeDuplicateForm:
		return http.StatusConflict
	case store.CodeUnknownForm, store.CodeNotFound:
		return http.StatusNotFound
	case store.CodeInvalidJSON, store.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the response for err. Errors the client cannot act on are
// logged and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		se          *store.Error
		rejected    *hook.RejectedError
		unsupported *schema.UnsupportedFieldError
	)
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:    rejected.Error(),
			Code:     codeRejected,
			Fields:   rejected.Fields,
			Messages: rejected.Messages,
		})
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, codeInvalidConfig, unsupported.Error())
	case errors.Is(err, schema.ErrMalformedConfig):
		writeError(w, http.StatusBadRequest, string(store.CodeInvalidJSON), "form config is not valid JSON")
	case errors.As(err, &se):
		status := statusOf(se.Code)
		if status == http.StatusInternalServerError {
			s.logger.Error("storage error", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeError(w, status, string(se.Code), se.Message)
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, string(store.CodeInvalidJSON), "invalid request body")
		return false
	}
	return true
}

// configField accepts a form config either as a JSON-encoded string or as
// an inline JSON value, which is stored compacted.
type configField string

func (c *configField) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*c = configField(text)
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = ""
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*c = configField(buf.String())
	return nil
}

// isObject reports whether raw is a JSON object. Empty input counts as
// one.
func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return true
	}
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil
}
