// Package server exposes the form and submission stores over HTTP: a JSON
// API, public form pages and the static assets the rendered forms need.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/store"
	"github.com/thetanil/basicforms/internal/telemetry"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// FormStore is the form schema storage the server needs.
type FormStore interface {
	Get(ctx context.Context, formID string) (*store.Form, error)
	List(ctx context.Context) ([]store.Form, error)
	Insert(ctx context.Context, formID, formName, config string) (int64, error)
	Update(ctx context.Context, formID, config string) (int64, error)
	Delete(ctx context.Context, formID string) (int64, error)
	SetHook(ctx context.Context, formID, script string) (int64, error)
}

// SubmissionStore is the submission storage the server needs.
type SubmissionStore interface {
	Insert(ctx context.Context, formID string, data, metadata json.RawMessage) (int64, error)
	List(ctx context.Context, filter store.SubmissionFilter) ([]store.Submission, error)
	Get(ctx context.Context, id int64) (*store.Submission, error)
}

// Validator runs per-form validation hooks.
type Validator interface {
	Check(src string) error
	Validate(ctx context.Context, src string, data, metadata json.RawMessage) error
}

// Options configure the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SubmitLabel is the submit text of every rendered form.
	SubmitLabel string
	// ScriptTimeout and ScriptMaxSteps bound page expressions in previews.
	ScriptTimeout  time.Duration
	ScriptMaxSteps uint64
}

// Server represents the basicforms HTTP server
type Server struct {
	opts        Options
	forms       FormStore
	submissions SubmissionStore
	hooks       Validator
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
	handler     http.Handler
}

// New creates a new Server instance
func New(opts Options, forms FormStore, submissions SubmissionStore, hooks Validator, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	metrics, err := telemetry.NewMetrics(telemetry.Meter())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	s := &Server{
		opts:        opts,
		forms:       forms,
		submissions: submissions,
		hooks:       hooks,
		logger:      logger,
		metrics:     metrics,
		tracer:      telemetry.Tracer(),
	}
	s.handler = s.middleware(s.routes())
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFiles)))

	mux.HandleFunc("GET /forms/{formID}", s.handlePage)
	mux.HandleFunc("POST /forms/{formID}", s.handlePagePost)

	mux.HandleFunc("GET /api/forms", s.handleListForms)
	mux.HandleFunc("POST /api/forms", s.handleCreateForm)
	mux.HandleFunc("GET /api/forms/{formID}", s.handleGetForm)
	mux.HandleFunc("PUT /api/forms/{formID}", s.handleUpdateForm)
	mux.HandleFunc("DELETE /api/forms/{formID}", s.handleDeleteForm)
	mux.HandleFunc("PUT /api/forms/{formID}/hook", s.handleSetHook)
	mux.HandleFunc("GET /api/forms/{formID}/render", s.handleRenderForm)

	mux.HandleFunc("GET /api/submissions", s.handleListSubmissions)
	mux.HandleFunc("POST /api/submissions", s.handleCreateSubmission)
	mux.HandleFunc("GET /api/submissions/{id}", s.handleGetSubmission)

	mux.HandleFunc("POST /api/preview", s.handlePreview)

	return mux
}

// Handler returns the routed handler wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully, giving outstanding requests ShutdownTimeout to complete.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", ln.Addr().String()))
		serverErrors <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.logger.Info("starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
			return fmt.Errorf("could not gracefully shutdown server: %w", err)
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "basicforms"})
}

// middleware tags every request with an id, wraps it in a span and logs
// it once the handler returns.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			))
		defer span.End()
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// The mux records the matched pattern on r.
		if r.Pattern != "" {
			span.SetName(r.Pattern)
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(wrapped.statusCode))
		if wrapped.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
		}

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
