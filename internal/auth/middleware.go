package auth

import (
	"net/http"

	"github.com/odyssey-erp/retail-authz/internal/platform/httpx"
	"github.com/odyssey-erp/retail-authz/internal/rbac"
)

// Middleware authenticates bearer tokens.
type Middleware struct {
	Sessions *SessionManager
}

// Authenticate rejects requests without a valid access token and stores the
// principal in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.Sessions.Validate(r.Context(), BearerToken(r))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), p)))
	})
}
