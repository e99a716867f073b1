package redirect

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const serviceName = "redirect-service"

// Handler handles HTTP requests for the redirect service.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Redirect handles GET /{shortCode}.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	ip := extractClientIP(r)
	userAgent := r.Header.Get("User-Agent")
	referrer := r.Header.Get("Referer")

	result, err := h.service.Resolve(r.Context(), shortCode, ip, userAgent, referrer)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "Short URL not found")
		case errors.Is(err, ErrExpired):
			writeError(w, http.StatusGone, "Short URL has expired")
		default:
			h.logger.Error("resolve failed",
				zap.String("short_code", shortCode),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	http.Redirect(w, r, result.LongURL, result.Status)
}

// Health handles GET /_health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// extractClientIP prefers proxy headers over the raw remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
