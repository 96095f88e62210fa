package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/resumeflow/resumeflow/internal/domain"
)

type stubEnforcer struct {
	decision domain.Decision
	err      error
	gotUser  *uuid.UUID
	gotKind  domain.OperationKind
}

func (s *stubEnforcer) Enforce(ctx context.Context, userID *uuid.UUID, kind domain.OperationKind) (domain.Decision, error) {
	s.gotUser = userID
	s.gotKind = kind
	return s.decision, s.err
}

func (s *stubEnforcer) Status(ctx context.Context, userID *uuid.UUID) (*domain.QuotaStatus, error) {
	return nil, errors.New("not implemented")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestLimitAllowsAndSetsHeaders(t *testing.T) {
	resetAt := time.Now().Add(time.Hour)
	enforcer := &stubEnforcer{decision: domain.Decision{
		Allowed:   true,
		Kind:      domain.OpJobExtract,
		Limit:     5,
		Remaining: 4,
		ResetAt:   resetAt,
	}}
	mw := NewRateLimitMiddleware(enforcer, testLogger())
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/enforce/job.extract", nil)
	req = req.WithContext(setIdentity(req.Context(), id))
	rec := httptest.NewRecorder()

	mw.Limit(domain.OpJobExtract)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request to pass through, got %d", rec.Code)
	}
	if enforcer.gotUser == nil || *enforcer.gotUser != id {
		t.Errorf("expected identity to reach the enforcer, got %v", enforcer.gotUser)
	}
	if enforcer.gotKind != domain.OpJobExtract {
		t.Errorf("expected kind job.extract, got %s", enforcer.gotKind)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("expected limit header 5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected remaining header 4, got %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected reset header on allowed responses")
	}
}

func TestLimitWindowDenial(t *testing.T) {
	enforcer := &stubEnforcer{
		decision: domain.Decision{
			Allowed:    false,
			Kind:       domain.OpJobExtract,
			Limit:      5,
			Remaining:  0,
			ResetAt:    time.Now().Add(10 * time.Minute),
			RetryAfter: 10 * time.Minute,
		},
		err: &domain.RateLimitError{
			Op:         "enforce",
			Kind:       domain.OpJobExtract,
			Limit:      5,
			RetryAfter: 10 * time.Minute,
		},
	}
	mw := NewRateLimitMiddleware(enforcer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/enforce/job.extract", nil)
	rec := httptest.NewRecorder()

	mw.Limit(domain.OpJobExtract)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "600" {
		t.Errorf("expected Retry-After 600, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected remaining header 0, got %q", got)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON denial for API paths: %v", err)
	}
	if body["error"] != "rate_limit_exceeded" {
		t.Errorf("unexpected error code in body: %q", body["error"])
	}
}

func TestLimitWindowDenialHTML(t *testing.T) {
	enforcer := &stubEnforcer{
		decision: domain.Decision{Allowed: false, Limit: 5, ResetAt: time.Now().Add(time.Minute), RetryAfter: time.Minute},
		err:      &domain.RateLimitError{Op: "enforce", Kind: domain.OpJobExtract, RetryAfter: time.Minute},
	}
	mw := NewRateLimitMiddleware(enforcer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/jobs/extract", nil)
	rec := httptest.NewRecorder()

	mw.Limit(domain.OpJobExtract)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected HTML denial for browser paths, got %q", ct)
	}
}

func TestLimitAllowanceDenial(t *testing.T) {
	resetAt := time.Now().AddDate(0, 1, 0)
	enforcer := &stubEnforcer{
		decision: domain.Decision{
			Allowed:   false,
			Kind:      domain.OpResumeOptimize,
			Limit:     50,
			Remaining: 0,
			ResetAt:   resetAt,
		},
		err: &domain.AllowanceError{
			Op:      "enforce",
			Feature: domain.FeatureOptimization,
			Used:    50,
			Limit:   50,
			ResetAt: resetAt,
		},
	}
	mw := NewRateLimitMiddleware(enforcer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/enforce/resume.optimize", nil)
	rec := httptest.NewRecorder()

	mw.Limit(domain.OpResumeOptimize)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	// Monthly denials carry the same rate limit headers as window denials.
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "50" {
		t.Errorf("expected limit header 50, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected remaining header 0, got %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected reset header on 402 responses")
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON denial: %v", err)
	}
	if !strings.Contains(body["message"], "Upgrade your plan") {
		t.Errorf("expected upgrade steer in message, got %q", body["message"])
	}
}

func TestLimitInternalError(t *testing.T) {
	enforcer := &stubEnforcer{err: domain.Internal(errors.New("boom"), "enforce", "store unavailable")}
	mw := NewRateLimitMiddleware(enforcer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/enforce/resume.optimize", nil)
	rec := httptest.NewRecorder()

	mw.Limit(domain.OpResumeOptimize)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("internal error details must not leak to clients")
	}
}
