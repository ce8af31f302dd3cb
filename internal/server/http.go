// HTTP API for messages, mounted under /api and /api/v1
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nainya/msgstore/internal/logger"
	"github.com/nainya/msgstore/pkg/apierror"
)

// maxBodyBytes bounds request bodies. A bulk insert of many maximum-size
// messages fits comfortably.
const maxBodyBytes = 16 << 20

var errInvalidBody = apierror.New(apierror.InvalidMessage, "Message is not valid.")

// Handler returns the HTTP API router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Mount("/api/v1", s.apiRouter())
	r.Mount("/api", s.apiRouter())
	return r
}

func (s *Server) apiRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleVersion)
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", s.handleFindMessages)
		r.Post("/", s.handleCreateMessages)
		r.Put("/", s.handleUpdateMessages)
		r.Delete("/", s.handleDeleteMessages)

		r.Get("/{id}", s.handleGetMessage)
		r.Put("/{id}", s.handleUpdateMessage)
		r.Delete("/{id}", s.handleDeleteMessage)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "healthy",
		"service":        "msgstore",
		"uptime_seconds": int64(s.Uptime().Seconds()),
	}
	if err := s.Ready(r.Context()); err != nil {
		resp["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFindMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.FindMessages(r.Context(), r.URL.RawQuery)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleCreateMessages(w http.ResponseWriter, r *http.Request) {
	payloads, err := decodePayloads(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	ids, err := s.CreateMessages(r.Context(), payloads)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"inserted_ids": ids})
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	n, err := s.UpdateMessage(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modified_count": n})
}

func (s *Server) handleUpdateMessages(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	n, err := s.UpdateMessages(r.Context(), r.URL.RawQuery, fields)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modified_count": n})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	n, err := s.DeleteMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	n, err := s.DeleteMessages(r.Context(), r.URL.RawQuery)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

// decodePayloads reads a body holding either one JSON object or an array of
// objects.
func decodePayloads(w http.ResponseWriter, r *http.Request) ([]map[string]any, error) {
	var body any
	if err := decodeJSON(w, r, &body); err != nil {
		return nil, err
	}

	switch v := body.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, errInvalidBody
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, errInvalidBody
	}
}

func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errInvalidBody
	}
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

// writeFailure maps err to a status code and writes the error body.
// Internal errors are logged and never exposed.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	s.recordError(err)
	status, kind := httpStatus(err)

	log := s.log.HTTPLogger(r.Method, routePattern(r))
	if status >= http.StatusInternalServerError {
		log.Error("request failed").
			Str("request_id", middleware.GetReqID(r.Context())).
			Err(err).
			Send()
		writeError(w, status, string(kind), "internal server error")
		return
	}

	log.Warn("request rejected").
		Str("kind", string(kind)).
		Str("reason", err.Error()).
		Send()
	writeError(w, status, string(kind), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

// instrument records metrics and a log line for every request
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.HTTPRequestsInFlight.Inc()
		defer s.metrics.HTTPRequestsInFlight.Dec()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		s.metrics.RecordHTTPRequest(r.Method, routePattern(r), strconv.Itoa(wrapped.status), duration)
		s.log.LogHTTPRequest(r.Method, r.URL.Path, wrapped.status, duration)
	})
}

// routePattern returns the matched chi route, which keeps metric label
// cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// HTTPServer serves the HTTP API
type HTTPServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewHTTPServer creates an HTTP server for handler on port
func NewHTTPServer(port int, handler http.Handler, log *logger.Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving requests until Shutdown is called
func (h *HTTPServer) Start() error {
	h.log.Info("Starting HTTP API server").Str("addr", h.server.Addr).Send()
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	h.log.Info("Shutting down HTTP API server").Send()
	return h.server.Shutdown(ctx)
}
