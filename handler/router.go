package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "restaurant-agent/internal/log"
	"restaurant-agent/internal/usecase"
)

// headerUserID carries the caller's id, set by the authenticating proxy in
// front of the HTTP server.
const headerUserID = "X-User-Id"

const maxBodyBytes = 64 << 10

type RouterConfig struct {
	// RateLimitPerMinute caps chat requests per client IP. Zero disables it.
	RateLimitPerMinute int
}

// Router serves the same chat operations as Handle over net/http, plus
// /metrics and /healthz.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlation)
	r.Use(h.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(rateLimit(cfg.RateLimitPerMinute, time.Minute))
		}
		r.Post(conversationsPath, func(w http.ResponseWriter, req *http.Request) {
			status, payload := h.createConversation(req.Context(), req.Header.Get(headerUserID))
			writeJSON(w, status, payload)
		})
		r.Post(conversationsPath+"/{conversationId}", func(w http.ResponseWriter, req *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
				return
			}
			status, payload := h.turn(req.Context(), req.Header.Get(headerUserID), chi.URLParam(req, "conversationId"), body)
			writeJSON(w, status, payload)
		})
		r.Get(conversationsPath+"/{conversationId}/messages", func(w http.ResponseWriter, req *http.Request) {
			status, payload := h.history(req.Context(), req.Header.Get(headerUserID), chi.URLParam(req, "conversationId"))
			writeJSON(w, status, payload)
		})
	})
	return r
}

func correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerCorrelationID, id)
		ctx := applog.ContextWithCorrelationID(r.Context(), id)
		ctx = applog.ContextWithRequestID(ctx, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := applog.WithContext(r.Context(), h.logger)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int64(applog.FieldElapsedMS, time.Since(start).Milliseconds()).
			Msg("http request")
	})
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: string(usecase.ErrorRateLimited), Retryable: true})
		}),
	)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
