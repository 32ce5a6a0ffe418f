package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"findost/internal/usecase"
)

// Routes returns the HTTP surface: chat relay, insights, onboarding checks
// and a health probe.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.correlate)
	r.Use(h.logRequests)
	r.Use(h.recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     h.allowedOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", correlationHeader},
		ExposedHeaders:     []string{correlationHeader},
		AllowCredentials:   false,
		MaxAge:             300,
		OptionsPassthrough: true,
	}))
	r.Use(answerPreflight)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		status, payload := notFound()
		writeJSON(w, status, payload)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		status, payload := methodNotAllowed()
		writeJSON(w, status, payload)
	})

	r.Get("/healthz", h.serve(h.health))
	r.Post("/chat", h.serve(h.chat))
	r.Post("/insights", h.serve(h.insights))
	r.Post("/onboarding/validate", h.serve(h.validateOnboarding))
	return r
}

func (h *Handler) serve(ep endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			status  int
			payload any
		)
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.bodyLimit))
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			status, payload = bodyTooLarge()
		case err != nil:
			status, payload = invalidBody()
		default:
			status, payload = ep(r.Context(), body)
		}
		writeJSON(w, status, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(marshalPayload(payload))
}

// correlate reuses the caller's X-Correlation-Id or mints one, and echoes it
// on the response.
func (h *Handler) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.correlationID(r.Header.Get(correlationHeader))
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(withCorrelationID(r.Context(), id)))
	})
}

// answerPreflight ends every OPTIONS request with 204 once the CORS headers
// are set.
func answerPreflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error("panic in handler",
				zap.Any("panic", rec),
				zap.String("correlation_id", CorrelationID(r.Context())),
				zap.Stack("stack"))
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   msgFailed,
				Code:    string(usecase.ErrorInternal),
				Details: fmt.Sprint(rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("correlation_id", CorrelationID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
