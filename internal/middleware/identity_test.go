package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithIdentity(t *testing.T) {
	id := uuid.New()

	testCases := []struct {
		name   string
		header string
		want   *uuid.UUID
	}{
		{"valid identity header", id.String(), &id},
		{"missing header is anonymous", "", nil},
		{"malformed header is anonymous", "not-a-uuid", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got *uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetIdentity(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/quota/status", nil)
			if tc.header != "" {
				req.Header.Set(IdentityHeader, tc.header)
			}
			rec := httptest.NewRecorder()

			NewIdentityMiddleware(testLogger()).WithIdentity(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected the request to reach the handler, got %d", rec.Code)
			}
			if tc.want == nil {
				if got != nil {
					t.Errorf("expected anonymous, got %s", got)
				}
				return
			}
			if got == nil || *got != *tc.want {
				t.Errorf("expected identity %s, got %v", tc.want, got)
			}
		})
	}
}

func TestGetIdentityWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetIdentity(req.Context()); got != nil {
		t.Errorf("expected nil identity on a bare context, got %s", got)
	}
}

func TestStackOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Stack(mark("outer"), mark("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "handler" {
		t.Errorf("unexpected middleware order: %v", order)
	}
}
