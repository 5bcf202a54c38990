// Package server exposes discussions over HTTP and websockets for `bob serve`.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/iksnae/bob-the-lawyer/internal/config"
	"github.com/iksnae/bob-the-lawyer/internal/observability"
)

// RequestIDHeader carries the per-request identifier
const RequestIDHeader = "X-Request-ID"

type Server struct {
	cfg      config.Config
	chat     *chat.Service
	replies  chat.Generator // nil until a backend is ready
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc *chat.Service, replies chat.Generator, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		chat:    svc,
		replies: replies,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/v1/generate", s.handleGenerate)

	r.Route("/v1/discussions", func(r chi.Router) {
		r.Get("/", s.handleListDiscussions)
		r.Post("/", s.handleCreateDiscussion)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDiscussion)
			r.Delete("/", s.handleDeleteDiscussion)
			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handlePostMessage)
			r.Post("/attachments", s.handleAttach)
			r.Get("/ws", s.handleWS)
		})
	})

	return r
}

type ctxKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestIDFrom returns the request identifier stored in ctx
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			// hijacked by the websocket upgrade
			status = http.StatusSwitchingProtocols
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(r.Method, route, status, elapsed)
		internal.LogDebug("%s %s %d %s [%s]", r.Method, r.URL.Path, status, elapsed, RequestIDFrom(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.chat.Store().Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	backend := ""
	if named, ok := s.replies.(interface{ BackendName() string }); ok {
		backend = named.BackendName()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"backend":     backend,
		"ready":       s.replies != nil,
		"discussions": stats.Discussions,
		"messages":    stats.Messages,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, internal.ErrInvalidDiscussionID):
		return http.StatusBadRequest, "invalid_discussion_id"
	case errors.Is(err, internal.ErrDiscussionNotFound):
		return http.StatusNotFound, "discussion_not_found"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, "reply_pending"
	case errors.Is(err, chat.ErrEmptyPrompt):
		return http.StatusBadRequest, "empty_prompt"
	case errors.Is(err, chat.ErrNoBackend):
		return http.StatusServiceUnavailable, "backend_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondErr(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		internal.LogError("Request failed: %v", err)
	}
	respondError(w, status, code, err.Error())
}
