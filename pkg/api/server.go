package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chainlane/utr/pkg/executor"
	"github.com/chainlane/utr/pkg/observability"
	"github.com/chainlane/utr/pkg/registry"
	"github.com/chainlane/utr/pkg/router"
)

// Server serves the daemon's HTTP API over a router and a grant registry.
type Server struct {
	router   *router.Router
	registry *registry.Registry
	logger   *slog.Logger
	obs      *observability.Provider
}

// NewServer creates the API server.
func NewServer(rt *router.Router, reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: rt, registry: reg, logger: logger}
}

// WithObservability records execute requests through the given provider.
func (s *Server) WithObservability(obs *observability.Provider) *Server {
	s.obs = obs
	return s
}

// Handler builds the route table wrapped in logging and rate limiting.
func (s *Server) Handler(limiter *GlobalRateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/execute", s.handleExecute)
	mux.HandleFunc("POST /v1/grants", s.handleCreateGrant)
	mux.HandleFunc("GET /v1/grants", s.handleListGrants)
	mux.HandleFunc("GET /v1/grants/{id}", s.handleGetGrant)
	mux.HandleFunc("PUT /v1/grants/{id}", s.handleUpdateGrant)
	mux.HandleFunc("DELETE /v1/grants/{id}", s.handleDeleteGrant)
	mux.HandleFunc("GET /v1/ledger/verify", s.handleVerifyLedger)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return RequestLogger(s.logger, h)
}

// ExecuteRequest is the wire form of one router call.
type ExecuteRequest struct {
	Caller  string            `json:"caller"`
	Value   uint64            `json:"value"`
	Outputs []router.Output   `json:"outputs,omitempty"`
	Actions []executor.Action `json:"actions,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Caller == "" {
		WriteBadRequest(w, "Missing required field: caller")
		return
	}

	ctx := r.Context()
	var done func(error)
	if s.obs != nil {
		ctx, done = s.obs.TrackRequest(ctx, "utr.api.execute",
			attribute.String("utr.caller", req.Caller),
			attribute.Int("utr.actions", len(req.Actions)))
	}
	receipt, err := s.router.Execute(ctx, req.Caller, req.Value, req.Outputs, req.Actions)
	if done != nil {
		done(err)
	}
	if err != nil {
		// The call rolled back; the failure is the client's to act on.
		WriteUnprocessable(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleCreateGrant(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var g registry.Grant
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	created, err := s.registry.Create(r.Context(), &g)
	if err != nil {
		// Creation fails on caller input: missing fields or bad metadata.
		WriteBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	grants, err := s.registry.List(r.Context(), limit)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if grants == nil {
		grants = []*registry.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
}

func (s *Server) handleGetGrant(w http.ResponseWriter, r *http.Request) {
	g, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrGrantNotFound) {
			WriteNotFound(w, err.Error())
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpdateGrant(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var g registry.Grant
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	g.ID = r.PathValue("id")

	updated, err := s.registry.Update(r.Context(), &g)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrGrantNotFound):
			WriteNotFound(w, err.Error())
		case errors.Is(err, registry.ErrImmutableField):
			WriteConflict(w, err.Error())
		case errors.Is(err, registry.ErrInvalidMetadata):
			WriteBadRequest(w, err.Error())
		default:
			WriteInternal(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGrant(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, registry.ErrGrantNotFound) {
			WriteNotFound(w, err.Error())
			return
		}
		WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	runLog := s.router.RunLedger()
	resp := map[string]any{
		"entries": runLog.Length(),
		"head":    runLog.Head(),
	}
	ok, reason := runLog.Verify()
	resp["ok"] = ok
	if !ok {
		resp["error"] = reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
