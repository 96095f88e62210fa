package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/resumeflow/resumeflow/internal/domain"
	"github.com/resumeflow/resumeflow/internal/middleware"
	"github.com/resumeflow/resumeflow/internal/repository"
)

// =============================================================================
// Stubs
// =============================================================================

type stubEnforcer struct {
	status *domain.QuotaStatus
	err    error
}

func (s *stubEnforcer) Enforce(ctx context.Context, userID *uuid.UUID, kind domain.OperationKind) (domain.Decision, error) {
	return domain.Decision{}, nil
}

func (s *stubEnforcer) Status(ctx context.Context, userID *uuid.UUID) (*domain.QuotaStatus, error) {
	return s.status, s.err
}

type stubAllowance struct {
	resets    []uuid.UUID
	syncCount int64
	err       error
}

func (s *stubAllowance) CheckAndTrack(ctx context.Context, userID uuid.UUID, kind domain.OperationKind) (domain.Decision, error) {
	return domain.Decision{}, nil
}

func (s *stubAllowance) Usage(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) (*domain.AllowanceUsage, error) {
	return nil, nil
}

func (s *stubAllowance) Reset(ctx context.Context, userID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.resets = append(s.resets, userID)
	return nil
}

func (s *stubAllowance) SyncActiveApplications(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.syncCount, s.err
}

type stubEventLister struct {
	events []repository.UsageEvent
	err    error
}

func (s *stubEventLister) ListUsageEvents(ctx context.Context, userID uuid.UUID, limit int32) ([]repository.UsageEvent, error) {
	return s.events, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve runs a request through the identity middleware and the handler's
// routes, the way the server wires them.
func serve(h *QuotaHandler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	middleware.NewIdentityMiddleware(testLogger()).WithIdentity(mux).ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestStatusEndpoint(t *testing.T) {
	enforcer := &stubEnforcer{status: &domain.QuotaStatus{
		Tier:      domain.SubscriptionTierApplicant,
		Anonymous: true,
	}}
	h := NewQuotaHandler(enforcer, &stubAllowance{}, &stubEventLister{}, testLogger(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/quota/status", nil)
	rec := serve(h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"anonymous":true`) {
		t.Errorf("expected anonymous status in body, got %s", rec.Body.String())
	}
}

func TestEventsRequiresIdentity(t *testing.T) {
	h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{}, &stubEventLister{}, testLogger(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/quota/events", nil)
	rec := serve(h, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestEventsReturnsLedgerEntries(t *testing.T) {
	id := uuid.New()
	events := &stubEventLister{events: []repository.UsageEvent{
		{
			ID:         uuid.New(),
			UserID:     id,
			Feature:    "optimization",
			OccurredAt: time.Now(),
			Metadata:   pqtype.NullRawMessage{RawMessage: []byte(`{"resume_id":"r1"}`), Valid: true},
		},
	}}
	h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{}, events, testLogger(), "")

	req := httptest.NewRequest(http.MethodGet, "/api/quota/events", nil)
	req.Header.Set(middleware.IdentityHeader, id.String())
	rec := serve(h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "optimization") {
		t.Errorf("expected ledger entry in body, got %s", rec.Body.String())
	}
}

func TestEventsRejectsBadLimit(t *testing.T) {
	id := uuid.New()
	h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{}, &stubEventLister{}, testLogger(), "")

	for _, limit := range []string{"0", "201", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/quota/events?limit="+limit, nil)
		req.Header.Set(middleware.IdentityHeader, id.String())
		rec := serve(h, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected 400, got %d", limit, rec.Code)
		}
	}
}

func TestSyncApplications(t *testing.T) {
	id := uuid.New()
	h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{syncCount: 6}, &stubEventLister{}, testLogger(), "")

	req := httptest.NewRequest(http.MethodPost, "/api/quota/applications/sync", nil)
	req.Header.Set(middleware.IdentityHeader, id.String())
	rec := serve(h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"active_job_applications":6`) {
		t.Errorf("expected synced count in body, got %s", rec.Body.String())
	}
}

func TestResetAllowance(t *testing.T) {
	id := uuid.New()

	t.Run("disabled without configured token", func(t *testing.T) {
		h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{}, &stubEventLister{}, testLogger(), "")

		req := httptest.NewRequest(http.MethodPost, "/api/admin/quota/reset", strings.NewReader(`{"user_id":"`+id.String()+`"}`))
		rec := serve(h, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403 when admin access is disabled, got %d", rec.Code)
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{}, &stubEventLister{}, testLogger(), "secret")

		req := httptest.NewRequest(http.MethodPost, "/api/admin/quota/reset", strings.NewReader(`{"user_id":"`+id.String()+`"}`))
		req.Header.Set("X-Admin-Token", "wrong")
		rec := serve(h, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403 for wrong token, got %d", rec.Code)
		}
	})

	t.Run("rejects missing user id", func(t *testing.T) {
		h := NewQuotaHandler(&stubEnforcer{}, &stubAllowance{}, &stubEventLister{}, testLogger(), "secret")

		req := httptest.NewRequest(http.MethodPost, "/api/admin/quota/reset", strings.NewReader(`{}`))
		req.Header.Set("X-Admin-Token", "secret")
		rec := serve(h, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing user_id, got %d", rec.Code)
		}
	})

	t.Run("resets with valid token", func(t *testing.T) {
		allowance := &stubAllowance{}
		h := NewQuotaHandler(&stubEnforcer{}, allowance, &stubEventLister{}, testLogger(), "secret")

		req := httptest.NewRequest(http.MethodPost, "/api/admin/quota/reset", strings.NewReader(`{"user_id":"`+id.String()+`"}`))
		req.Header.Set("X-Admin-Token", "secret")
		rec := serve(h, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(allowance.resets) != 1 || allowance.resets[0] != id {
			t.Errorf("expected one reset for %s, got %v", id, allowance.resets)
		}
	})
}
