package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/metrics"
	"github.com/resumeflow/resumeflow/internal/middleware"
	"github.com/resumeflow/resumeflow/internal/repository"
	"github.com/resumeflow/resumeflow/internal/service"
)

// UsageEventLister reads recent usage ledger entries.
type UsageEventLister interface {
	ListUsageEvents(ctx context.Context, userID uuid.UUID, limit int32) ([]repository.UsageEvent, error)
}

// QuotaHandler serves the remaining-quota and allowance administration
// endpoints.
type QuotaHandler struct {
	enforcer   service.Enforcer
	allowance  service.AllowanceService
	events     UsageEventLister
	logger     *slog.Logger
	adminToken string
}

// NewQuotaHandler creates a new QuotaHandler. An empty adminToken disables
// the administrative endpoints.
func NewQuotaHandler(enforcer service.Enforcer, allowance service.AllowanceService, events UsageEventLister, logger *slog.Logger, adminToken string) *QuotaHandler {
	return &QuotaHandler{
		enforcer:   enforcer,
		allowance:  allowance,
		events:     events,
		logger:     logger,
		adminToken: adminToken,
	}
}

// RegisterRoutes attaches the quota endpoints to the mux.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quota/status", h.Status)
	mux.HandleFunc("GET /api/quota/events", h.Events)
	mux.HandleFunc("POST /api/quota/applications/sync", h.SyncApplications)
	mux.HandleFunc("POST /api/admin/quota/reset", h.ResetAllowance)
}

// Status returns remaining quota across all operation kinds for the
// calling identity. Read-only: no counter is incremented.
func (h *QuotaHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.enforcer.Status(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// usageEventResponse is the JSON shape of one ledger entry.
type usageEventResponse struct {
	Feature    string          `json:"feature"`
	OccurredAt time.Time       `json:"occurred_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Events returns the calling identity's most recent usage events.
func (h *QuotaHandler) Events(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("quota.events", "Authentication required"))
		return
	}

	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			ErrorResponse(w, r, h.logger, domain.Invalid("quota.events", "limit must be between 1 and 200"))
			return
		}
		limit = int32(n)
	}

	events, err := h.events.ListUsageEvents(r.Context(), *identity, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, "quota.events", "failed to list usage events"))
		return
	}

	resp := make([]usageEventResponse, 0, len(events))
	for _, e := range events {
		out := usageEventResponse{
			Feature:    e.Feature,
			OccurredAt: e.OccurredAt,
		}
		if e.Metadata.Valid {
			out.Metadata = e.Metadata.RawMessage
		}
		resp = append(resp, out)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": resp})
}

// SyncApplications recomputes the calling identity's derived
// active-applications counter from its job application records.
func (h *QuotaHandler) SyncApplications(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("quota.sync_applications", "Authentication required"))
		return
	}

	count, err := h.allowance.SyncActiveApplications(r.Context(), *identity)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"active_job_applications": count})
}

// resetRequest is the administrative reset request body.
type resetRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// ResetAllowance zeroes a user's monthly counters. Requires the admin
// token; billing-cycle resets normally arrive from the billing process,
// this endpoint exists for support operations.
func (h *QuotaHandler) ResetAllowance(w http.ResponseWriter, r *http.Request) {
	const op = "quota.admin_reset"

	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Token")), []byte(h.adminToken)) != 1 {
		ErrorResponse(w, r, h.logger, domain.Forbidden(op, "Administrative access required"))
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "a valid user_id is required"))
		return
	}

	if err := h.allowance.Reset(r.Context(), req.UserID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.AllowanceResets.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
