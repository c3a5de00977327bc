package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/knot/internal/runtime"
	"github.com/aretw0/knot/pkg/observability"
)

// APIVersion is reported by GET /info.
const APIVersion = "0.1.0"

// Inspector is the read side of the change recorder.
type Inspector interface {
	Knots() []observability.KnotRecord
	Knot(id string) (observability.KnotRecord, bool)
	Changes(limit int) []observability.Change
	Subscribe(ctx context.Context) <-chan observability.Event
}

// Live gives access to knots that are currently tied.
type Live interface {
	Knot(id string) (*runtime.Knot, bool)
}

// LiveStats are the runtime counters of a tied knot.
type LiveStats struct {
	Monitored    int      `json:"monitored"`
	Propagations uint64   `json:"propagations"`
	Suppressed   uint64   `json:"suppressed"`
	Warnings     []string `json:"warnings,omitempty"`
}

// KnotDetail is the body of GET /knots/{id}.
type KnotDetail struct {
	observability.KnotRecord
	Live *LiveStats `json:"live,omitempty"`
}

// Server serves the read-only inspection API.
type Server struct {
	Inspector Inspector
	Live      Live
	Version   string
	gatherer  prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLive adds runtime counters of tied knots to knot details.
func WithLive(live Live) Option {
	return func(s *Server) {
		s.Live = live
	}
}

// WithGatherer exposes the given Prometheus registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the application version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// NewHandler creates the HTTP handler for the inspector.
func NewHandler(inspector Inspector, opts ...Option) http.Handler {
	s := &Server{Inspector: inspector, Version: "dev"}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/knots", s.ListKnots)
	r.Get("/knots/{id}", s.GetKnot)
	r.Get("/changes", s.ListChanges)
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "knot-inspector",
		"version":     s.Version,
		"api_version": APIVersion,
	})
}

// ListKnots handles GET /knots.
func (s *Server) ListKnots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Inspector.Knots())
}

// GetKnot handles GET /knots/{id}.
func (s *Server) GetKnot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.Inspector.Knot(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("knot %q not found", id))
		return
	}

	detail := KnotDetail{KnotRecord: rec}
	if s.Live != nil {
		if k, ok := s.Live.Knot(id); ok {
			detail.Live = liveStats(k)
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListChanges handles GET /changes?limit=N.
func (s *Server) ListChanges(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.Inspector.Changes(limit))
}

// SubscribeEvents handles GET /events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.Inspector.Subscribe(r.Context())

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func liveStats(k *runtime.Knot) *LiveStats {
	stats := &LiveStats{
		Monitored:    k.Monitored(),
		Propagations: k.Propagations(),
		Suppressed:   k.Suppressed(),
	}
	for _, w := range k.Warnings() {
		stats.Warnings = append(stats.Warnings, w.Error())
	}
	return stats
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
