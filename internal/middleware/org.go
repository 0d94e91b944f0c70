// Package middleware provides HTTP middleware for Ledgerline.
package middleware

import (
	"context"
	"net/http"
)

// DefaultOrgID is the single-org default used when no X-Org-ID header is set.
const DefaultOrgID = "00000000-0000-0000-0000-000000000000"

const headerOrgID = "X-Org-ID"

type orgCtxKey struct{}

// OrgID is middleware that extracts the organization ID from the X-Org-ID
// header and stores it in the request context. Falls back to DefaultOrgID
// if absent.
func OrgID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oid := r.Header.Get(headerOrgID)
		if oid == "" {
			oid = DefaultOrgID
		}
		ctx := context.WithValue(r.Context(), orgCtxKey{}, oid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgIDFromContext returns the org ID stored in ctx, or DefaultOrgID if absent.
func OrgIDFromContext(ctx context.Context) string {
	if oid, ok := ctx.Value(orgCtxKey{}).(string); ok {
		return oid
	}
	return DefaultOrgID
}

// WithOrgID returns a context carrying the given org ID. Used by pollers
// and tests that run outside an HTTP request.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgCtxKey{}, orgID)
}
