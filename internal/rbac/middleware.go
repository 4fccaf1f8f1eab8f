package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/platform/httpx"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// Middleware wires menu authorization helpers for HTTP handlers. It expects
// the auth middleware to have stored a Principal in the request context.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireMenu ensures the principal holds at least min on menuID.
func (m Middleware) RequireMenu(menuID menus.MenuID, min grants.PermissionType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrTokenInvalid)
				return
			}
			decision, err := m.Service.Check(r.Context(), p, menuID, min)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require menu", slog.String("menu_id", string(menuID)), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !decision.Allowed {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin ensures the principal carries an admin role.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrTokenInvalid)
				return
			}
			if !p.IsAdmin() {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
