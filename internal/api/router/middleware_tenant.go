package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/tenancy"
)

const tenantHeader = "X-Tenant-Id"

// requireTenant checks that X-Tenant-Id matches the {tenantID} path segment
// and stores it in the request context.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(tenantHeader))
		if header == "" {
			http.Error(w, "missing X-Tenant-Id", http.StatusBadRequest)
			return
		}
		if path := chi.URLParam(r, "tenantID"); path != "" && path != header {
			http.Error(w, "tenant mismatch", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithTenantID(r.Context(), header)))
	})
}
