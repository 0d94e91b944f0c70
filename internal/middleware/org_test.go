package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOrgID_HeaderPresent(t *testing.T) {
	var captured string
	handler := OrgID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = OrgIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Org-ID", "org-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "org-42" {
		t.Errorf("expected org-42, got %q", captured)
	}
}

func TestOrgID_HeaderAbsent(t *testing.T) {
	var captured string
	handler := OrgID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = OrgIDFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if captured != DefaultOrgID {
		t.Errorf("expected default org id, got %q", captured)
	}
}

func TestWithOrgID(t *testing.T) {
	ctx := WithOrgID(context.Background(), "org-7")
	if got := OrgIDFromContext(ctx); got != "org-7" {
		t.Errorf("expected org-7, got %q", got)
	}
	if got := OrgIDFromContext(context.Background()); got != DefaultOrgID {
		t.Errorf("expected default org id from empty context, got %q", got)
	}
}
