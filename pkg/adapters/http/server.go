package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/aretw0/authtree"
	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RootRealm is the path segment addressing the "/" realm.
const RootRealm = "root"

// maxBodySize bounds request bodies; answers are further limited by the sanitizer.
const maxBodySize = 1 << 20

// Engine is the part of *authtree.Engine the server needs.
type Engine interface {
	Advance(ctx context.Context, req authtree.AdvanceRequest) (*domain.Step, error)
	AuthID(state *domain.FlowState) (string, error)
	ValidateEmbedding(ctx context.Context, realm, outerFlow string, nodeID uuid.UUID, targetFlow string) error
	ValidateFlow(ctx context.Context, flow *domain.Flow) error
	SaveFlow(ctx context.Context, flow *domain.Flow) error
	Graph(ctx context.Context, realm, name string) (string, error)
	Flow(ctx context.Context, realm, name string) (*domain.Flow, error)
}

// Server exposes an Engine over HTTP.
type Server struct {
	Engine  Engine
	Logger  *slog.Logger
	Metrics prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// WithMetrics serves gatherer on GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.Metrics = gatherer
	}
}

// NewHandler creates a new HTTP handler for the engine.
//
//	POST /realms/{realm}/authenticate?flow=Name      start or resume an authentication
//	PUT  /realms/{realm}/flows/{flow}                validate and store a flow definition
//	POST /realms/{realm}/flows/{flow}/validate       validate a stored flow, or the definition in the body
//	POST /realms/{realm}/flows/{flow}/embeddings     check that a node may embed a flow
//	GET  /realms/{realm}/flows/{flow}/graph          Mermaid diagram of a flow
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/realms/{realm}", func(r chi.Router) {
		r.Post("/authenticate", s.Authenticate)
		r.Post("/flows/{flow}/validate", s.ValidateFlow)
		r.Put("/flows/{flow}", s.SaveFlow)
		r.Post("/flows/{flow}/embeddings", s.ValidateEmbedding)
		r.Get("/flows/{flow}/graph", s.Graph)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthenticateRequest is the body of POST /authenticate. Both fields are optional.
type AuthenticateRequest struct {
	AuthID  string         `json:"authId,omitempty"`
	Answers map[string]any `json:"answers,omitempty"`
}

// AuthenticateResponse is either a pending step (AuthID and Callbacks) or an outcome.
type AuthenticateResponse struct {
	AuthID    string            `json:"authId,omitempty"`
	NodeID    string            `json:"nodeId,omitempty"`
	Callbacks []domain.Callback `json:"callbacks,omitempty"`
	Outcome   domain.Outcome    `json:"outcome,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
}

// ErrorResponse is the body of every error reply. Messages never carry internal details.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// EmbeddingRequest is the body of POST /embeddings.
type EmbeddingRequest struct {
	NodeID uuid.UUID `json:"nodeId"`
	Target string    `json:"targetFlow"`
}

// Authenticate handles the POST /realms/{realm}/authenticate request.
func (s *Server) Authenticate(w http.ResponseWriter, r *http.Request) {
	var body AuthenticateRequest
	if err := decode(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.Logger.Warn("Authenticate: invalid request body", "err", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	realm := realmParam(r)
	step, err := s.Engine.Advance(r.Context(), authtree.AdvanceRequest{
		Realm:    realm,
		Flow:     r.URL.Query().Get("flow"),
		AuthID:   body.AuthID,
		Answers:  body.Answers,
		ClientIP: clientIP(r),
	})

	if step != nil && step.Result != nil {
		if err != nil {
			s.Logger.Warn("authentication failed with an error", "realm", realm, "err", err)
		}
		s.writeResult(w, step.Result)
		return
	}
	if err != nil {
		s.writeAdvanceError(w, realm, err)
		return
	}

	authID, err := s.Engine.AuthID(step.State)
	if err != nil {
		s.Logger.Error("failed to sign auth id", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, AuthenticateResponse{
		AuthID:    authID,
		NodeID:    step.Pending.NodeID.String(),
		Callbacks: step.Pending.Callbacks,
	})
}

func (s *Server) writeResult(w http.ResponseWriter, result *domain.FlowResult) {
	if result.FinalOutcome == domain.OutcomeSuccess {
		resp := AuthenticateResponse{Outcome: result.FinalOutcome}
		if result.FinalState != nil {
			resp.SessionID = result.FinalState.SessionID
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusUnauthorized, AuthenticateResponse{Outcome: result.FinalOutcome})
}

func (s *Server) writeAdvanceError(w http.ResponseWriter, realm string, err error) {
	var done *domain.FlowAlreadyCompletedError
	switch {
	case errors.Is(err, domain.ErrInvalidAuthID), errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "Invalid or expired auth id")
	case errors.As(err, &done):
		writeError(w, http.StatusConflict, "Authentication already completed")
	case errors.Is(err, domain.ErrFlowNotFound):
		writeError(w, http.StatusNotFound, "No such flow")
	case errors.Is(err, runner.ErrInputTooLarge), errors.Is(err, runner.ErrInvalidUTF8), errors.Is(err, runner.ErrInvalidAnswer):
		writeError(w, http.StatusBadRequest, "Invalid answers")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		s.Logger.Error("advance failed", "realm", realm, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// ValidateEmbedding handles the POST /realms/{realm}/flows/{flow}/embeddings request.
func (s *Server) ValidateEmbedding(w http.ResponseWriter, r *http.Request) {
	var body EmbeddingRequest
	if err := decode(w, r, &body); err != nil || body.Target == "" || body.NodeID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "nodeId and targetFlow are required")
		return
	}

	err := s.Engine.ValidateEmbedding(r.Context(), realmParam(r), chi.URLParam(r, "flow"), body.NodeID, body.Target)
	s.writeValidation(w, err)
}

// ValidateFlow handles the POST /realms/{realm}/flows/{flow}/validate request.
// Without a body the stored flow is validated.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "flow")
	if r.ContentLength == 0 {
		flow, err := s.Engine.Flow(r.Context(), realmParam(r), name)
		if err != nil {
			s.writeValidation(w, err)
			return
		}
		s.writeValidation(w, s.Engine.ValidateFlow(r.Context(), flow))
		return
	}

	flow, ok := s.readFlow(w, r, name)
	if !ok {
		return
	}
	s.writeValidation(w, s.Engine.ValidateFlow(r.Context(), flow))
}

// SaveFlow handles the PUT /realms/{realm}/flows/{flow} request.
func (s *Server) SaveFlow(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.readFlow(w, r, chi.URLParam(r, "flow"))
	if !ok {
		return
	}
	s.writeValidation(w, s.Engine.SaveFlow(r.Context(), flow))
}

// readFlow decodes a flow definition, defaulting its realm and name from the URL.
func (s *Server) readFlow(w http.ResponseWriter, r *http.Request, name string) (*domain.Flow, bool) {
	var def domain.FlowDefinition
	if err := decode(w, r, &def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid flow definition")
		return nil, false
	}

	realm := realmParam(r)
	if def.Realm == "" {
		def.Realm = realm
	}
	if def.Name == "" {
		def.Name = name
	}
	if def.Realm != realm || def.Name != name {
		writeError(w, http.StatusBadRequest, "Flow identity does not match the URL")
		return nil, false
	}

	flow, err := domain.NewFlow(def)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Reason:  http.StatusText(http.StatusBadRequest),
			Message: err.Error(),
		})
		return nil, false
	}
	return flow, true
}

func (s *Server) writeValidation(w http.ResponseWriter, err error) {
	var invalid *domain.ConfigurationValidationError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &invalid) && !errors.Is(err, domain.ErrFlowNotFound):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Code:    http.StatusConflict,
			Reason:  http.StatusText(http.StatusConflict),
			Message: invalid.Reason,
		})
	case errors.Is(err, domain.ErrFlowNotFound):
		writeError(w, http.StatusNotFound, "No such flow")
	default:
		s.Logger.Error("validation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// Graph handles the GET /realms/{realm}/flows/{flow}/graph request.
func (s *Server) Graph(w http.ResponseWriter, r *http.Request) {
	out, err := s.Engine.Graph(r.Context(), realmParam(r), chi.URLParam(r, "flow"))
	if err != nil {
		if errors.Is(err, domain.ErrFlowNotFound) {
			writeError(w, http.StatusNotFound, "No such flow")
			return
		}
		s.Logger.Error("graph failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// realmParam maps the {realm} segment to a realm path: "root" is "/", "a" is "/a".
// Nested realms use "-" as separator ("a-b" is "/a/b").
func realmParam(r *http.Request) string {
	seg := chi.URLParam(r, "realm")
	if seg == "" || seg == RootRealm {
		return "/"
	}
	return "/" + strings.ReplaceAll(seg, "-", "/")
}

// clientIP is the first X-Forwarded-For hop, or the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Code: code, Reason: http.StatusText(code), Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
