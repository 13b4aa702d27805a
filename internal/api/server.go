// Package api serves analysis reports over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"TSNSpectra/internal/analyzer"
	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/query"
	"TSNSpectra/internal/report"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handler holds the dependencies of the API handlers.
type Handler struct {
	store   *report.Store
	querier query.Querier // nil when no history backend is configured
	log     *logrus.Entry
}

// NewRouter wires every route. gatherer may be nil to leave out /metrics.
func NewRouter(store *report.Store, querier query.Querier, gatherer prometheus.Gatherer, log *logrus.Entry) *mux.Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &Handler{store: store, querier: querier, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/report", h.latestReportHandler).Methods(http.MethodGet)
	v1.HandleFunc("/reports", h.listReportsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/reports/{id}", h.reportHandler).Methods(http.MethodGet)
	v1.HandleFunc("/gcl", h.gclHandler).Methods(http.MethodGet)
	v1.HandleFunc("/classes/{class:[0-9]+}", h.classHandler).Methods(http.MethodGet)
	v1.HandleFunc("/history/sessions", h.sessionsHistoryHandler).Methods(http.MethodGet)
	v1.HandleFunc("/history/classes/{class:[0-9]+}", h.classHistoryHandler).Methods(http.MethodGet)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Use(h.logRequests)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Request served")
	})
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) latestReportHandler(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.store.Latest()
	if !ok {
		http.Error(w, "no report available yet", http.StatusNotFound)
		return
	}
	h.renderReport(w, r, rep)
}

func (h *Handler) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": h.store.IDs()})
}

func (h *Handler) reportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rep, ok := h.store.Get(id)
	if !ok {
		http.Error(w, fmt.Sprintf("session %s not found", id), http.StatusNotFound)
		return
	}
	h.renderReport(w, r, rep)
}

func (h *Handler) renderReport(w http.ResponseWriter, r *http.Request, rep *model.Report) {
	format := r.URL.Query().Get("format")
	var buf bytes.Buffer
	if err := report.Render(&buf, rep, format); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch format {
	case report.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	case report.FormatTable:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) gclHandler(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestOrNamed(r)
	if !ok {
		http.Error(w, "no report available", http.StatusNotFound)
		return
	}
	doc, err := analyzer.Document(rep)
	switch {
	case errors.Is(err, model.ErrNoPeriodicity):
		http.Error(w, rep.TASError, http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tas.Encode(&buf, doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) classHandler(w http.ResponseWriter, r *http.Request) {
	class, ok := parseClass(w, r)
	if !ok {
		return
	}
	rep, ok := h.latestOrNamed(r)
	if !ok {
		http.Error(w, "no report available", http.StatusNotFound)
		return
	}
	cr, ok := rep.Class(class)
	if !ok {
		http.Error(w, fmt.Sprintf("class %d was not observed", class), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (h *Handler) sessionsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "no history backend configured", http.StatusNotImplemented)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sessions, err := h.querier.Sessions(r.Context(), f)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query sessions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) classHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "no history backend configured", http.StatusNotImplemented)
		return
	}
	class, ok := parseClass(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	points, err := h.querier.ClassHistory(r.Context(), class, f)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query class history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// latestOrNamed picks the report named by the session query parameter, or
// the latest one.
func (h *Handler) latestOrNamed(r *http.Request) (*model.Report, bool) {
	if id := r.URL.Query().Get("session"); id != "" {
		return h.store.Get(id)
	}
	return h.store.Latest()
}

func parseClass(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	c, err := strconv.Atoi(mux.Vars(r)["class"])
	if err != nil || c < 0 || c >= model.NumClasses {
		http.Error(w, "class must be between 0 and 7", http.StatusBadRequest)
		return 0, false
	}
	return uint8(c), true
}

func parseFilter(r *http.Request) (query.Filter, error) {
	var f query.Filter
	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid since: %w", err)
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// Server runs the router until its context ends.
type Server struct {
	srv *http.Server
	log *logrus.Entry
}

// NewServer creates an HTTP server listening on addr.
func NewServer(addr string, handler http.Handler, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		srv: &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API server starting on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", s.srv.Addr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("API server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("API server exited.")
	return nil
}
