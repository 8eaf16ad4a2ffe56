// Package api exposes the registration endpoint, health, the static frontend
// and the signed admin endpoints over net/http.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/config"
	"github.com/dharsanguruparan/RegiDesk/internal/intake"
	"github.com/dharsanguruparan/RegiDesk/internal/logging"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/ratelimit"
	"github.com/dharsanguruparan/RegiDesk/internal/repository"
	"github.com/dharsanguruparan/RegiDesk/internal/signing"
	"github.com/dharsanguruparan/RegiDesk/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// Submitter runs the intake pipeline.
type Submitter interface {
	Submit(ctx context.Context, rec model.SubmissionRecord) (intake.Receipt, error)
}

// BatchController is the accumulator surface the admin endpoints use.
type BatchController interface {
	Pending() []model.ArtifactRef
	Flushing() bool
	DrainAndSend(ctx context.Context, trigger string) (batch.Report, error)
}

// LedgerExporter snapshots the ledger workbook.
type LedgerExporter interface {
	Export(ctx context.Context) (model.LedgerExport, error)
}

// FlushHistory lists recent drains, newest first.
type FlushHistory interface {
	Recent(n int) []batch.Report
	Get(id string) (batch.Report, error)
}

// Schedule reports upcoming firings.
type Schedule interface {
	Next(t time.Time) []time.Time
}

// AuditTrail reads the persisted audit records.
type AuditTrail interface {
	GetSubmission(ctx context.Context, id string) (*repository.SubmissionRow, error)
	RecentFlushes(ctx context.Context, limit int) ([]batch.Report, error)
}

// Archive links archived objects.
type Archive interface {
	PresignURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// Deps are the collaborators of the HTTP layer. Intake is required; the
// admin endpoints are mounted only when Signer is set, and Audit and Archive
// are optional.
type Deps struct {
	Intake   Submitter
	Batch    BatchController
	Ledger   LedgerExporter
	History  FlushHistory
	Schedule Schedule
	Signer   *signing.Signer
	Limiter  ratelimit.Limiter
	Audit    AuditTrail
	Archive  Archive
	Tracer   trace.Tracer
	Logger   *log.Logger
}

// Server exposes HTTP endpoints for registrations and administration.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *log.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("api")
	}
	return &Server{cfg: cfg, deps: deps, logger: deps.Logger.With("component", "api")}
}

// Handler builds the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	submit := http.Handler(http.HandlerFunc(s.handleSubmit))
	if s.deps.Limiter != nil {
		submit = ratelimit.Middleware(s.deps.Limiter, ratelimit.ClientIP,
			s.cfg.RateLimit.Requests, s.cfg.RateLimit.Window, s.rejectRateLimited)(submit)
	}
	mux.Handle("POST /api/submit-form", submit)

	if s.deps.Signer != nil {
		mux.Handle("GET /admin/batch", s.requireAdmin(s.handleBatchStatus))
		mux.Handle("POST /admin/flush", s.requireAdmin(s.handleFlush))
		mux.Handle("GET /admin/flushes", s.requireAdmin(s.handleFlushes))
		mux.Handle("GET /admin/flushes/{id}", s.requireAdmin(s.handleFlushReport))
		mux.Handle("GET /admin/ledger", s.requireAdmin(s.handleLedger))
		mux.Handle("GET /admin/submissions/{id}", s.requireAdmin(s.handleSubmission))
	}
	if s.cfg.FrontendDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.FrontendDir)))
	}
	return tracing.Middleware(s.deps.Tracer, corsMiddleware(s.loggingMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "addr", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,"+signing.HeaderExpires+","+signing.HeaderSignature)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", sw.status, "took", time.Since(start))
	})
}
