package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/search"
	"github.com/hyperjump/statsearch/internal/storage"
)

const (
	msgSearchDisabled   = "Search functionality not available in fast mode. Set search.fast_mode=false (or STATSEARCH_FAST_MODE=false) to enable search."
	msgIndexUnavailable = "Search index not initialized"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Welcome to the Statistics Search API",
		"mode":             s.engine.Mode(),
		"search_available": s.engine.SearchAvailable(),
		"index_loaded":     s.engine.IndexLoaded(),
	})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("find request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	records, err := s.engine.Find(r.Context(), &query)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleStreamFind(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("stream find request", zap.String("query", query.Query))

	ctx := r.Context()
	stream := newEventStream(w, s.config.Server.StreamDelay)
	err := s.engine.Stream(ctx, query.Query, func(rec *models.Record) error {
		return stream.send(ctx, rec)
	})
	if err != nil {
		if !stream.started {
			s.respondSearchError(w, err)
			return
		}
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("stream aborted", zap.Error(err))
		}
		return
	}
	stream.start()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.storage.CountRecords(r.Context())
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"mode":             s.engine.Mode(),
		"search_available": s.engine.SearchAvailable(),
		"index_loaded":     s.engine.IndexLoaded(),
		"index_size":       s.engine.IndexSize(),
		"dimension":        s.engine.Dimension(),
		"records":          count,
		"artifact_backend": s.config.Artifacts.Backend,
	}
	if usage, err := storage.DiskUsage(s.config.Storage.DatabasePath, s.config.LocalArtifactDir()); err == nil {
		resp["disk_usage_bytes"] = usage.Total()
		resp["disk_usage"] = usage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondSearchError maps engine errors to status codes.
func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrSearchDisabled):
		s.respondError(w, http.StatusServiceUnavailable, msgSearchDisabled)
	case errors.Is(err, search.ErrIndexUnavailable):
		s.respondError(w, http.StatusInternalServerError, msgIndexUnavailable)
	case errors.Is(err, models.ErrInvalidQuery):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// eventStream writes server-sent events. Headers are sent with the first
// event so errors raised before any result can still get a JSON error reply.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	limiter *rate.Limiter
	started bool
}

func newEventStream(w http.ResponseWriter, delay time.Duration) *eventStream {
	es := &eventStream{w: w, rc: http.NewResponseController(w)}
	if delay > 0 {
		es.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return es
}

func (es *eventStream) start() {
	if es.started {
		return
	}
	es.started = true
	h := es.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	es.w.WriteHeader(http.StatusOK)
	_ = es.rc.Flush()
}

func (es *eventStream) send(ctx context.Context, v interface{}) error {
	if es.limiter != nil {
		if err := es.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	es.start()
	if _, err := fmt.Fprintf(es.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := es.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
