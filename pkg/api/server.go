// Package api implements Harbor's HTTP surface: Ship lifecycle, session
// introspection, execution history, and the terminal websocket proxy.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/harborctl/harbor/pkg/core"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/metrics"
	"github.com/harborctl/harbor/pkg/types"
)

// buildVersion is overridden at link time (-ldflags "-X ...buildVersion=...").
var buildVersion = "dev"

// Server wires Core into an http.Handler implementing the full API
// surface described in the external interfaces section.
type Server struct {
	core *core.Core
	mux  *http.ServeMux
}

// NewServer builds a Server backed by c. Handlers are registered
// immediately; call Handler to get the wrapped http.Handler to serve.
func NewServer(c *core.Core) *Server {
	s := &Server{core: c, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stat", s.handleStat)
	s.mux.Handle("/metrics", metrics.Handler())

	s.mux.Handle("GET /stat/overview", s.authenticated(s.handleOverview))
	s.mux.Handle("GET /ships", s.authenticated(s.handleListShips))
	s.mux.Handle("POST /ship", s.authenticated(s.handleCreateShip))
	s.mux.Handle("GET /ship/{id}", s.authenticated(s.handleGetShip))
	s.mux.Handle("DELETE /ship/{id}", s.authenticated(s.handleDeleteShip))
	s.mux.Handle("DELETE /ship/{id}/permanent", s.authenticated(s.handleDeleteShipPermanent))
	s.mux.Handle("POST /ship/{id}/exec", s.authenticated(s.handleExec))
	s.mux.Handle("GET /ship/logs/{id}", s.authenticated(s.handleShipLogs))
	s.mux.Handle("POST /ship/{id}/extend-ttl", s.authenticated(s.handleExtendShipTTL))
	s.mux.Handle("POST /ship/{id}/start", s.authenticated(s.handleStartShip))
	s.mux.Handle("POST /ship/{id}/upload", s.authenticated(s.handleUpload))
	s.mux.Handle("GET /ship/{id}/download", s.authenticated(s.handleDownload))
	s.mux.HandleFunc("GET /ship/{id}/term", s.handleTerminal) // token travels in the query string, not a header

	s.mux.Handle("GET /sessions", s.authenticated(s.handleListSessions))
	s.mux.Handle("GET /sessions/{id}", s.authenticated(s.handleGetSession))
	s.mux.Handle("GET /ship/{id}/sessions", s.authenticated(s.handleListShipSessions))
	s.mux.Handle("POST /sessions/{id}/extend-ttl", s.authenticated(s.handleExtendSessionTTL))
	s.mux.Handle("DELETE /sessions/{id}", s.authenticated(s.handleDeleteSession))
	s.mux.Handle("GET /sessions/{id}/history", s.authenticated(s.handleSessionHistory))
	s.mux.Handle("GET /sessions/{id}/history/last", s.authenticated(s.handleSessionHistoryLast))
	s.mux.Handle("GET /sessions/{id}/history/{exec_id}", s.authenticated(s.handleSessionHistoryEntry))
	s.mux.Handle("PATCH /sessions/{id}/history/{exec_id}", s.authenticated(s.handleAnnotateHistoryEntry))
}

// Handler returns the fully wrapped handler, instrumenting every
// request with the API request counter/histogram.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// Start runs the HTTP server on addr until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming downloads and the terminal proxy run long
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// instrument records route, status, and duration for every request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		log.WithComponent("api").Debug().
			Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.status).Dur("elapsed", time.Since(start)).Msg("request")
	})
}

// authenticated enforces the bearer access token before delegating to
// next, per spec.md §6 ("bearer-token authenticated").
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(token) > len(prefix) && token[:len(prefix)] == prefix {
			token = token[len(prefix):]
		}
		if token != s.core.Config.AccessToken {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statResponse{Service: "harbor", Version: buildVersion, Status: "ok"})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ships, err := s.core.Store.ListShips()
	if err != nil {
		writeError(w, err)
		return
	}
	bindings, err := s.core.Store.ListBindings()
	if err != nil {
		writeError(w, err)
		return
	}

	var counts shipCounts
	counts.Total = len(ships)
	for _, ship := range ships {
		switch ship.Status {
		case types.ShipRunning:
			counts.Running++
		case types.ShipStopped:
			counts.Stopped++
		case types.ShipCreating:
			counts.Creating++
		}
	}

	sessions := map[string]bool{}
	now := time.Now().UTC()
	var activeSessions int
	for _, b := range bindings {
		sessions[b.SessionID] = true
		if b.ExpiresAt.After(now) {
			activeSessions++
		}
	}

	writeJSON(w, http.StatusOK, overviewResponse{
		statResponse: statResponse{Service: "harbor", Version: buildVersion, Status: "ok"},
		Ships:        counts,
		Sessions:     sessionCounts{Total: len(sessions), Active: activeSessions},
	})
}
