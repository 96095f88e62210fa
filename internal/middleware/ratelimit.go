package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/service"
)

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware runs the enforcement dispatcher before a limited
// handler and translates decisions into HTTP response headers.
type RateLimitMiddleware struct {
	enforcer service.Enforcer
	logger   *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(enforcer service.Enforcer, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		enforcer: enforcer,
		logger:   logger,
	}
}

// Limit returns middleware that enforces the given operation kind. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; denials additionally carry Retry-After and answer
// 429 (window limits) or 402 (exhausted monthly allowances).
func (m *RateLimitMiddleware) Limit(kind domain.OperationKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())

			decision, err := m.enforcer.Enforce(r.Context(), identity, kind)
			setRateLimitHeaders(w, decision)

			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var rle *domain.RateLimitError
			if errors.As(err, &rle) {
				m.logger.Warn("rate limit exceeded",
					"operation", kind,
					"path", r.URL.Path,
					"retry_after", rle.RetryAfter,
				)
				writeDenial(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", domain.ErrorMessage(err), rle.RetryAfter)
				return
			}

			var ae *domain.AllowanceError
			if errors.As(err, &ae) {
				writeDenial(w, r, http.StatusPaymentRequired, "allowance_exhausted", ae.UpgradeMessage(), 0)
				return
			}

			// Store or configuration failure: surfaced as 500, never as a
			// denial.
			m.logger.Error("enforcement failed", "operation", kind, "path", r.URL.Path, "error", err)
			http.Error(w, "An internal error occurred. Please try again later.", http.StatusInternalServerError)
		})
	}
}

// setRateLimitHeaders emits the decision metadata on every response,
// allowed or denied.
func setRateLimitHeaders(w http.ResponseWriter, d domain.Decision) {
	if d.Limit == 0 && d.ResetAt.IsZero() {
		return
	}
	if d.Limit == domain.Unlimited {
		w.Header().Set("X-RateLimit-Limit", "unlimited")
	} else {
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	}
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// writeDenial renders a denial as JSON for API clients and a minimal HTML
// page otherwise.
func writeDenial(w http.ResponseWriter, r *http.Request, status int, code, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	if isAPIRequest(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   code,
			"message": message,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Too Many Requests</title></head>
<body>
<h1>Too Many Requests</h1>
<p>` + message + `</p>
</body>
</html>`))
}

// isAPIRequest reports whether the client expects a JSON response.
func isAPIRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
