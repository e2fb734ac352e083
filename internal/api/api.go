// Package api exposes cycle triggers and the committed changelog over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/model"
	"github.com/roach88/docsync/internal/store"
)

// Triggerer starts cycles. Implemented by *scheduler.Scheduler.
type Triggerer interface {
	Trigger(ctx context.Context, opts engine.RunOpts) (*model.CycleRun, error)
}

// Reader is the read side of the canonical store. Implemented by
// *store.Store.
type Reader interface {
	GetCycleRun(ctx context.Context, id string) (model.CycleRun, error)
	ListCycleRuns(ctx context.Context, limit int) ([]model.CycleRun, error)
	ListChangelog(ctx context.Context, afterSeq int64, limit int) ([]model.ChangelogEntry, error)
	ListDocuments(ctx context.Context) ([]model.TrackedDocument, error)
	DocumentHistory(ctx context.Context, documentID string) ([]model.ChangelogEntry, error)
	Stats(ctx context.Context) (store.Stats, error)
}

const (
	defaultRunLimit       = 20
	defaultChangelogLimit = 100
	maxLimit              = 1000
)

// Server holds the HTTP handlers.
type Server struct {
	trigger Triggerer
	reader  Reader
	logger  *slog.Logger
}

// NewServer creates a Server. A nil logger discards output.
func NewServer(t Triggerer, r Reader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{trigger: t, reader: r, logger: logger}
}

// Routes returns the router.
//
//	GET  /ping                  liveness, responds "pong"
//	GET  /status                store counters
//	POST /run/sync              run a full cycle now
//	POST /documents/{id}/sync   run a cycle for one document
//	GET  /cycles                recent cycle runs, newest first
//	GET  /cycles/{id}           one cycle run with its failures
//	GET  /changelog             committed entries after ?after=, in commit order
//	GET  /documents             tracked documents by number, without bodies
//	GET  /documents/{id}/changelog  every entry for one document, in commit order
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "pong")
	})
	r.Get("/status", s.handleStatus)
	r.Post("/run/sync", s.handleSync)
	r.Post("/documents/{id}/sync", s.handleDocumentSync)
	r.Get("/cycles", s.handleListCycles)
	r.Get("/cycles/{id}", s.handleGetCycle)
	r.Get("/changelog", s.handleChangelog)
	r.Get("/documents", s.handleListDocuments)
	r.Get("/documents/{id}/changelog", s.handleDocumentHistory)
	return r
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	dryRun, err := boolParam(r, "dry_run")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	s.runCycle(w, r, engine.RunOpts{Trigger: model.TriggerManual, DryRun: dryRun})
}

func (s *Server) handleDocumentSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := model.ParseID(id); !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid document id "+strconv.Quote(id))
		return
	}
	dryRun, err := boolParam(r, "dry_run")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	s.runCycle(w, r, engine.RunOpts{Trigger: model.TriggerDocument, Targets: []string{id}, DryRun: dryRun})
}

// runCycle maps a cycle outcome to a status: 409 when another cycle is
// active, 500 with the run body when the cycle failed, 200 otherwise. A
// partially failed run is a 200 whose body lists the failures.
func (s *Server) runCycle(w http.ResponseWriter, r *http.Request, opts engine.RunOpts) {
	// A client that hangs up must not abort the commit; the scheduler
	// bounds the cycle with its own timeout.
	run, err := s.trigger.Trigger(context.WithoutCancel(r.Context()), opts)
	switch {
	case engine.IsSchedulingConflict(err):
		writeError(w, http.StatusConflict, string(engine.ErrCodeSchedulingConflict), err.Error())
	case err != nil && run != nil:
		writeJSON(w, http.StatusInternalServerError, run)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "SYNC_FAILED", err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	runs, err := s.reader.ListCycleRuns(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": runs})
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	run, err := s.reader.GetCycleRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "cycle not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleChangelog(w http.ResponseWriter, r *http.Request) {
	after, err := intParam(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	limit, err := intParam(r, "limit", defaultChangelogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	entries, err := s.reader.ListChangelog(r.Context(), int64(after), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := map[string]any{"entries": entries}
	if len(entries) > 0 {
		resp["next_after"] = entries[len(entries)-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.reader.ListDocuments(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	for i := range docs {
		docs[i].Body = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := model.ParseID(id); !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid document id "+strconv.Quote(id))
		return
	}
	entries, err := s.reader.DocumentHistory(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": id, "entries": entries})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("query parameter " + name + " must be a non-negative integer")
	}
	if name == "limit" && (n == 0 || n > maxLimit) {
		n = maxLimit
	}
	return n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("query parameter " + name + " must be a boolean")
	}
	return b, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
