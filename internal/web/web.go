package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/export"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
)

// dateParam is the YYYY-MM-DD layout accepted by query parameters.
const dateParam = "2006-01-02"

// Server provides the HTTP API over the most recent snapshot of all
// configured sources. Handlers never fetch; Refresh (startup, cron, or
// POST /api/refresh) loads and parses sources and swaps the snapshot.
type Server struct {
	cfg    *config.Config
	loader *ics.Loader
	mux    *http.ServeMux

	// Snapshot of loaded + parsed sources, replaced wholesale by
	// Refresh and read under RLock by the handlers.
	mu   sync.RWMutex
	snap *snapshot
}

// sourceSchedule pairs one source with its parsed schedule.
type sourceSchedule struct {
	source    ics.Source
	schedule  ics.Schedule
	fromCache bool
}

// snapshot holds the result of one refresh pass and its timestamp.
type snapshot struct {
	schedules []sourceSchedule
	updatedAt time.Time
}

// NewServer constructs a new Server. loader may be nil, in which case
// one is built from the config's cache and timeout settings.
func NewServer(cfg *config.Config, loader *ics.Loader) *Server {
	if loader == nil {
		loader = ics.NewLoader(cfg.CacheDir, time.Duration(cfg.FetchTimeoutSec)*time.Second)
	}
	s := &Server{
		cfg:    cfg,
		loader: loader,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return metrics.Middleware(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password is treated as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health and /metrics
// with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probes and scrapers stay reachable without credentials.
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server bound to cfg.Listen until ctx is canceled,
// then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Refresh loads and parses every configured source and swaps the
// snapshot. A failed source does not stop the pass; the aggregate
// error reports every failure. When every source fails the previous
// snapshot is kept, so the API keeps serving the last known data.
func (s *Server) Refresh(ctx context.Context) error {
	sources := sourcesFromConfig(s.cfg)

	results, errs := s.loader.LoadAll(ctx, sources)

	if len(results) == 0 && len(errs) > 0 {
		metrics.ObserveRefresh("error")
		return fmt.Errorf("refresh: all %d sources failed: %v", len(sources), errorsAggregate(errs))
	}

	schedules := make([]sourceSchedule, 0, len(results))
	for _, res := range results {
		sched := ics.Parse(res.Body)
		schedules = append(schedules, sourceSchedule{
			source:    res.Source,
			schedule:  sched,
			fromCache: res.FromCache,
		})
		metrics.SetParsedEvents(res.Source.ID, len(sched.Events))
		if res.FromCache {
			metrics.ObserveCacheHit(res.Source.ID)
		}
		appLog.Info("source refreshed",
			"id", res.Source.ID,
			"events", len(sched.Events),
			"from_cache", res.FromCache,
		)
	}

	s.mu.Lock()
	s.snap = &snapshot{schedules: schedules, updatedAt: time.Now()}
	s.mu.Unlock()

	if len(errs) > 0 {
		metrics.ObserveRefresh("partial")
		return fmt.Errorf("refresh: %d of %d sources failed: %v", len(errs), len(sources), errorsAggregate(errs))
	}
	metrics.ObserveRefresh("ok")
	return nil
}

// current returns the latest snapshot, or nil before the first
// successful refresh.
func (s *Server) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// sourcesFromConfig converts configured sources into loader sources,
// skipping entries without a location and defaulting empty IDs.
func sourcesFromConfig(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		if sc.Location == "" {
			continue
		}
		id := sc.ID
		if id == "" {
			if sc.Name != "" {
				id = sc.Name
			} else {
				id = sc.Location
			}
		}
		sources = append(sources, ics.Source{
			ID:       id,
			Location: sc.Location,
		})
	}
	return sources
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/export.ics", s.handleExportICS)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.Handle("/metrics", metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scheduleResponse is the JSON response shape for /api/schedule.
type scheduleResponse struct {
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
	Sources   []sourceScheduleDTO `json:"sources"`
}

// sourceScheduleDTO is one source's parsed schedule as served by the API.
type sourceScheduleDTO struct {
	ID        string            `json:"id"`
	FromCache bool              `json:"from_cache"`
	Events    []export.EventDTO `json:"events"`
}

// handleSchedule returns the parsed (unexpanded) schedule of every
// source in the current snapshot.
//
// GET /api/schedule
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	resp := scheduleResponse{Sources: []sourceScheduleDTO{}}
	if snap := s.current(); snap != nil {
		ts := snap.updatedAt
		resp.UpdatedAt = &ts
		for _, ss := range snap.schedules {
			resp.Sources = append(resp.Sources, sourceScheduleDTO{
				ID:        ss.source.ID,
				FromCache: ss.fromCache,
				Events:    export.FromSchedule(ss.schedule).Events,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences []export.OccurrenceDTO `json:"occurrences"`
	From        string                 `json:"from"`
	To          string                 `json:"to"`
}

// handleEvents expands the current snapshot into concrete occurrences
// within a requested day window.
//
// GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD
//   - from: first day of the window, inclusive (default today)
//   - to:   last day of the window, inclusive (default from + window_days)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from := time.Now()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateParam, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, s.cfg.WindowDays)
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateParam, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
			return
		}
		to = t
	}

	appLog.Debug("api events request",
		"from", from.Format(dateParam),
		"to", to.Format(dateParam),
	)

	occs := make([]model.Occurrence, 0)
	if snap := s.current(); snap != nil {
		for _, ss := range snap.schedules {
			occs = append(occs, ics.ExpandAll(ss.source.ID, ss.schedule, from, to)...)
		}
	}
	// Per-source expansion is already ordered; merge across sources.
	sort.Slice(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		if occs[i].Summary != occs[j].Summary {
			return occs[i].Summary < occs[j].Summary
		}
		return occs[i].SourceID < occs[j].SourceID
	})

	writeJSON(w, http.StatusOK, eventsResponse{
		Occurrences: export.FromOccurrences(occs),
		From:        from.Format(dateParam),
		To:          to.Format(dateParam),
	})
}

// handleExportICS re-publishes one source's parsed schedule as
// normalized ICS text.
//
// GET /api/export.ics?source=ID
func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("source")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing source parameter")
		return
	}

	if snap := s.current(); snap != nil {
		for _, ss := range snap.schedules {
			if ss.source.ID != id {
				continue
			}
			body := export.BuildCalendar(id, ss.schedule, time.Now())
			w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(body))
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown source")
}

// refreshResponse is the JSON response shape for /api/refresh.
type refreshResponse struct {
	Status  string `json:"status"`
	Sources int    `json:"sources"`
}

// handleRefresh triggers an immediate refresh of every source.
//
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.Refresh(r.Context()); err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	n := 0
	if snap := s.current(); snap != nil {
		n = len(snap.schedules)
	}
	writeJSON(w, http.StatusOK, refreshResponse{Status: "ok", Sources: n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// errorsAggregate flattens a slice of errors into one.
func errorsAggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
