package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/playbeacon/beacon/pkg/gate"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/metrics"
	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/types"
)

// Server is the HTTP ingest and read API.
type Server struct {
	gate    *gate.Gate
	derived storage.DerivedStore
	audit   storage.AuditStore

	httpServer *http.Server
}

// New creates the API server listening on addr.
func New(addr string, g *gate.Gate, derived storage.DerivedStore, audit storage.AuditStore) *Server {
	s := &Server{
		gate:    g,
		derived: derived,
		audit:   audit,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /api/v1/servers", s.handleListServers)
	mux.HandleFunc("GET /api/v1/servers/{id}", s.handleGetServer)
	mux.HandleFunc("GET /api/v1/servers/{id}/rejections", s.handleRejections)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	logger := log.WithComponent("api")
	logger.Info().Str("addr", s.httpServer.Addr).Msg("api listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// heartbeatResponse is the wire response for heartbeat submissions.
type heartbeatResponse struct {
	Received bool   `json:"received"`
	ServerID string `json:"server_id"`
	Processed bool  `json:"processed"`
	Replay   bool   `json:"replay"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, "/api/v1/heartbeat")

	sub, ok := decodeSubmission(w, r)
	if !ok {
		s.count("/api/v1/heartbeat", http.StatusBadRequest)
		return
	}

	res, err := s.gate.Admit(r.Context(), sub)
	if err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Str("server_id", sub.ServerID).Msg("admit failed")
		s.count("/api/v1/heartbeat", http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := statusFor(res)
	s.count("/api/v1/heartbeat", status)
	writeJSON(w, status, heartbeatResponse{
		Received: res.Accepted || res.Replay,
		ServerID: sub.ServerID,
		// Derived-state processing is asynchronous; processed is always
		// false at submission time.
		Processed: false,
		Replay:    res.Replay,
		Reason:    string(res.Reason),
	})
}

// statusFor maps an admission result to an HTTP status code.
func statusFor(res *gate.Result) int {
	if res.Accepted || res.Replay {
		return http.StatusOK
	}
	switch res.Reason {
	case types.ReasonInvalidPayload:
		return http.StatusBadRequest
	case types.ReasonConsentDenied:
		return http.StatusForbidden
	case types.ReasonInvalidSignature:
		return http.StatusUnauthorized
	case types.ReasonKeyVersionMismatch, types.ReasonIDConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	states, err := s.derived.List(r.Context())
	if err != nil {
		s.count("/api/v1/servers", http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.count("/api/v1/servers", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]any{"servers": states})
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	state, err := s.derived.Get(r.Context(), r.PathValue("id"))
	if err == storage.ErrNotFound {
		s.count("/api/v1/servers/{id}", http.StatusNotFound)
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		s.count("/api/v1/servers/{id}", http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.count("/api/v1/servers/{id}", http.StatusOK)
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := s.audit.Rejections(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.count("/api/v1/servers/{id}/rejections", http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.count("/api/v1/servers/{id}/rejections", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]any{"rejections": recs})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) count(endpoint string, status int) {
	metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
