// Package dashboard serves the JSON API the web dashboard consumes:
// topics, activity, statistics, runtime configuration, and lifecycle
// control of the relay loop.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/config"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/stats"
)

const (
	defaultActivityLimit = 100
	shutdownTimeout      = 5 * time.Second
	readHeaderTimeout    = 10 * time.Second
	requestTimeout       = 30 * time.Second
)

// RuntimeSettingsKey is the settings row holding dashboard overrides.
// The app reads it on startup to layer persisted changes over the
// environment configuration.
const RuntimeSettingsKey = "runtime_overrides"

// TopicLister exposes the registry's known topics.
type TopicLister interface {
	ListTopics() []domain.Topic
}

// ActivityReader reads the persisted forwarding log.
type ActivityReader interface {
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityRecord, error)
	ListActivitySince(ctx context.Context, since time.Time) ([]domain.ActivityRecord, error)
}

// SettingsStore persists dashboard configuration overrides.
type SettingsStore interface {
	SaveSetting(ctx context.Context, key string, value interface{}) error
}

// StatsProvider cuts the current rollup.
type StatsProvider interface {
	Snapshot(now time.Time) stats.Snapshot
}

type Server struct {
	addr       string
	topics     TopicLister
	activity   ActivityReader
	settings   SettingsStore
	stats      StatsProvider
	runtime    *config.Store
	supervisor *Supervisor
	logger     *zerolog.Logger
}

func NewServer(addr string, topics TopicLister, activity ActivityReader, settings SettingsStore, statsProvider StatsProvider, runtime *config.Store, supervisor *Supervisor, logger *zerolog.Logger) *Server {
	return &Server{
		addr:       addr,
		topics:     topics,
		activity:   activity,
		settings:   settings,
		stats:      statsProvider,
		runtime:    runtime,
		supervisor: supervisor,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Get("/topics", s.handleTopics)
		r.Get("/activity", s.handleActivity)
		r.Get("/stats", s.handleStats)
		r.Get("/status", s.handleStatus)
		r.Post("/control", s.handleControl)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
	})

	return r
}

// Start serves the API until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("Dashboard API server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard server error: %w", err)
	}

	return nil
}

type topicView struct {
	ID            string  `json:"id"`
	ThreadID      int64   `json:"thread_id"`
	Name          string  `json:"name"`
	NormalizedKey string  `json:"normalized_key"`
	SourceChatID  int64   `json:"source_chat_id"`
	AliasChatIDs  []int64 `json:"alias_chat_ids"`
	CreatedAt     string  `json:"created_at"`
}

func (s *Server) handleTopics(w http.ResponseWriter, _ *http.Request) {
	topics := s.topics.ListTopics()

	views := make([]topicView, 0, len(topics))
	for _, t := range topics {
		views = append(views, topicView{
			ID:            t.ID,
			ThreadID:      t.ThreadID,
			Name:          t.Name,
			NormalizedKey: t.NormalizedKey,
			SourceChatID:  t.SourceChatID,
			AliasChatIDs:  t.AliasChatIDs,
			CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	s.respond(w, http.StatusOK, map[string]interface{}{"topics": views})
}

type activityView struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	ChatID     int64  `json:"chat_id"`
	SourceName string `json:"source_name"`
	Kind       string `json:"kind"`
	ThreadID   int64  `json:"thread_id"`
	Outcome    string `json:"outcome"`
	FileSize   int64  `json:"file_size"`
	Duration   int    `json:"duration_secs"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}

		limit = n
	}

	records, err := s.activity.ListActivity(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("activity query failed")
		s.respondError(w, http.StatusInternalServerError, "activity query failed")

		return
	}

	views := make([]activityView, 0, len(records))
	for _, rec := range records {
		views = append(views, activityView{
			ID:         rec.ID,
			Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339),
			ChatID:     rec.SourceChatID,
			SourceName: rec.SourceName,
			Kind:       string(rec.Kind),
			ThreadID:   rec.ThreadID,
			Outcome:    string(rec.Outcome),
			FileSize:   rec.FileSize,
			Duration:   rec.Duration,
		})
	}

	s.respond(w, http.StatusOK, map[string]interface{}{"activity": views})
}

// handleStats serves the incremental rollup. A window parameter recomputes
// the rollup over persisted records: the shorthands 7d and 24h, or any
// absolute date dateparse understands.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	raw := r.URL.Query().Get("window")
	if raw == "" {
		s.respond(w, http.StatusOK, s.stats.Snapshot(now))
		return
	}

	since, err := parseWindow(raw, now)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid window %q", raw))
		return
	}

	records, err := s.activity.ListActivitySince(r.Context(), since)
	if err != nil {
		s.logger.Error().Err(err).Msg("activity window query failed")
		s.respondError(w, http.StatusInternalServerError, "stats query failed")

		return
	}

	s.respond(w, http.StatusOK, stats.Rollup(records, now))
}

func parseWindow(raw string, now time.Time) (time.Time, error) {
	switch raw {
	case "7d":
		return now.AddDate(0, 0, -7), nil
	case "24h":
		return now.Add(-24 * time.Hour), nil
	}

	return dateparse.ParseAny(raw)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state, since, lastErr := s.supervisor.Status()

	status := map[string]interface{}{
		"state": string(state),
		"since": since.UTC().Format(time.RFC3339),
	}

	if lastErr != nil {
		status["error"] = lastErr.Error()
	}

	s.respond(w, http.StatusOK, status)
}

type controlRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid control request body")
		return
	}

	var err error

	switch req.Action {
	case "start":
		err = s.supervisor.Start(context.WithoutCancel(r.Context()))
	case "stop":
		err = s.supervisor.Stop()
	case "restart":
		err = s.supervisor.Restart(context.WithoutCancel(r.Context()))
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrNotRunning) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}

		s.logger.Error().Err(err).Str("action", req.Action).Msg("control action failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())

		return
	}

	state, _, _ := s.supervisor.Status()
	s.respond(w, http.StatusOK, map[string]interface{}{"state": string(state)})
}

// RuntimeOverrides is the persisted shape of dashboard configuration
// changes, layered over the environment on startup.
type RuntimeOverrides struct {
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	IgnoredChatIDs      *[]int64 `json:"ignored_chat_ids,omitempty"`
}

// Apply layers the overrides onto a runtime record.
func (o RuntimeOverrides) Apply(rt config.Runtime) config.Runtime {
	if o.SimilarityThreshold != nil {
		rt.SimilarityThreshold = *o.SimilarityThreshold
	}

	if o.IgnoredChatIDs != nil {
		ignored := make(map[int64]struct{}, len(*o.IgnoredChatIDs))
		for _, id := range *o.IgnoredChatIDs {
			ignored[id] = struct{}{}
		}

		rt.IgnoredChatIDs = ignored
	}

	return rt
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	rt := s.runtime.Snapshot()

	s.respond(w, http.StatusOK, map[string]interface{}{
		"backup_group_id":      rt.BackupGroupID,
		"similarity_threshold": rt.SimilarityThreshold,
		"ignored_chat_ids":     rt.IgnoredList(),
	})
}

// handlePutConfig validates the new values, persists them, and swaps the
// runtime record atomically. In-flight events keep the snapshot they
// already took.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var overrides RuntimeOverrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid config body")
		return
	}

	if t := overrides.SimilarityThreshold; t != nil && (*t <= 0 || *t > 1) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("similarity_threshold %v outside (0,1]", *t))
		return
	}

	next := overrides.Apply(s.runtime.Snapshot())

	// Persist the full effective record so a restart restores every
	// override, not just the fields of the last request.
	ignored := next.IgnoredList()
	effective := RuntimeOverrides{
		SimilarityThreshold: &next.SimilarityThreshold,
		IgnoredChatIDs:      &ignored,
	}

	if err := s.settings.SaveSetting(r.Context(), RuntimeSettingsKey, effective); err != nil {
		s.logger.Error().Err(err).Msg("persisting config overrides failed")
		s.respondError(w, http.StatusInternalServerError, "persisting config failed")

		return
	}

	s.runtime.Replace(next)

	s.logger.Info().Msg("runtime configuration replaced")
	s.handleGetConfig(w, r)
}

func (s *Server) respond(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encoding response failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respond(w, code, map[string]string{"error": msg})
}
