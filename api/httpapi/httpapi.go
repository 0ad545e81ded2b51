package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	wsadapter "coderhack/adapters/websocket"
	"coderhack/core"
	"coderhack/engine"
	"coderhack/realtime"
)

// DefaultPathPrefix is where the API is mounted when Options.PathPrefix is empty.
const DefaultPathPrefix = "/coderhack/api/v1"

const maxBodyBytes = 1 << 16

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix is prepended to all routes. Empty means DefaultPathPrefix; "/" mounts at the root.
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Logger receives request logs at debug level. Defaults to slog.Default().
	Logger *slog.Logger
	// Metrics, if set, registers request counters and latency histograms.
	Metrics prometheus.Registerer
}

type handler struct {
	svc    *engine.UserService
	logger *slog.Logger
}

// NewRouter builds the REST API and WebSocket stream.
// Routes, relative to the prefix:
//   - POST   /users
//   - GET    /users
//   - GET    /users/{userId}
//   - PUT    /users/{userId}    body {"score": n}
//   - DELETE /users/{userId}
//   - GET    /healthz
//   - WS     /ws
func NewRouter(svc *engine.UserService, hub *realtime.Hub, opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(logger))
	if opts.Metrics != nil {
		m, err := newRequestMetrics(opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		r.Use(m.middleware)
	}
	if opts.AllowCORSOrigin != "" {
		r.Use(cors(opts.AllowCORSOrigin))
	}
	if len(opts.APIKeys) > 0 {
		r.Use(apiKeyAuth(opts.APIKeys))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		r.Use(rateLimit(newClientLimiter(opts.RateLimitRPM, opts.RateLimitBurst)))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", h.health)
		if hub != nil {
			r.Handle("/ws", wsadapter.Handler(hub))
		}
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.register)
			r.Get("/", h.list)
			r.Get("/{userId}", h.get)
			r.Put("/{userId}", h.updateScore)
			r.Delete("/{userId}", h.delete)
		})
	}
	if p := prefix(opts.PathPrefix); p == "/" {
		routes(r)
	} else {
		r.Route(p, routes)
	}
	return r, nil
}

func prefix(p string) string {
	switch {
	case p == "":
		return DefaultPathPrefix
	case p == "/":
		return "/"
	case p[len(p)-1] == '/':
		return p[:len(p)-1]
	}
	return p
}

type registerRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}
	user, err := h.svc.Register(r.Context(), core.UserID(req.UserID), req.Username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// userIDParam returns the decoded {userId} segment. chi matches on RawPath when
// the request carries escapes such as %2F, leaving the parameter encoded.
func userIDParam(r *http.Request) (core.UserID, error) {
	raw := chi.URLParam(r, "userId")
	if r.URL.RawPath == "" {
		return core.UserID(raw), nil
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("malformed user id %q: %w", raw, core.ErrInvalidArgument)
	}
	return core.UserID(id), nil
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	user, ok, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("user %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) updateScore(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	score, err := parseScore(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_score", err.Error())
		return
	}
	user, err := h.svc.UpdateScore(r.Context(), id, score)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{"storage": "ok"},
	}
	code := http.StatusOK
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"storage": "failed"}
	}
	writeJSON(w, code, status)
}

var errScoreBody = errors.New(`body must be {"score": <integer>}`)

// parseScore accepts exactly one key, "score", holding a JSON integer or a string
// with a base-10 integer. Fractions, booleans and null are rejected.
func parseScore(body io.Reader) (int, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || len(fields) != 1 {
		return 0, errScoreBody
	}
	v, ok := fields["score"]
	if !ok {
		return 0, errScoreBody
	}
	var text string
	switch s := v.(type) {
	case json.Number:
		text = s.String()
	case string:
		text = s
	default:
		return 0, fmt.Errorf("score must be an integer")
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("score must be an integer, got %q", text)
	}
	return n, nil
}

func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}
