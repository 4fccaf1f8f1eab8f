package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/platform/httpx"
	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// GrantManager is the grant management surface used by PermissionsHandler.
type GrantManager interface {
	Grant(ctx context.Context, actor string, input grants.GrantInput) (grants.Grant, error)
	BulkGrant(ctx context.Context, actor, key string, inputs []grants.GrantInput) ([]grants.Grant, error)
	Revoke(ctx context.Context, actor string, rawID string) (grants.Grant, error)
	List(ctx context.Context, filter grants.ListFilter, page, size int) (grants.Page, error)
}

// PermissionsHandler manages menu permission grants.
type PermissionsHandler struct {
	logger  *slog.Logger
	service GrantManager
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service GrantManager, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Get("/", h.listGrants)
		r.Post("/", h.createGrant)
		r.Post("/bulk", h.bulkGrant)
		r.Delete("/{id}", h.revokeGrant)
	})
}

type bulkRequest struct {
	Grants []grants.GrantInput `json:"grants"`
}

func (h *PermissionsHandler) createGrant(w http.ResponseWriter, r *http.Request) {
	actor, _ := PrincipalFromContext(r.Context())
	var input grants.GrantInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := authorizeTarget(actor, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	g, err := h.service.Grant(r.Context(), actor.UserID, input)
	if err != nil {
		h.fail(w, "create grant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *PermissionsHandler) bulkGrant(w http.ResponseWriter, r *http.Request) {
	actor, _ := PrincipalFromContext(r.Context())
	var req bulkRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	for _, in := range req.Grants {
		if err := authorizeTarget(actor, in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	created, err := h.service.BulkGrant(r.Context(), actor.UserID, key, req.Grants)
	if err != nil {
		h.fail(w, "bulk grant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"grants": created})
}

func (h *PermissionsHandler) revokeGrant(w http.ResponseWriter, r *http.Request) {
	actor, _ := PrincipalFromContext(r.Context())
	g, err := h.service.Revoke(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "revoke grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *PermissionsHandler) listGrants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := grants.ListFilter{
		MenuID:     menus.MenuID(strings.TrimSpace(q.Get("menuId"))),
		TargetType: grants.TargetType(strings.ToUpper(strings.TrimSpace(q.Get("targetType")))),
		TargetID:   strings.TrimSpace(q.Get("targetId")),
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: active must be a boolean", shared.ErrValidation))
			return
		}
		filter.ActiveOnly = active
	}
	page, err := queryInt(q.Get("page"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	size, err := queryInt(q.Get("size"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), filter, page, size)
	if err != nil {
		h.fail(w, "list grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

// authorizeTarget stops an admin from granting to a role above their own.
func authorizeTarget(actor Principal, input grants.GrantInput) error {
	if grants.TargetType(strings.ToUpper(strings.TrimSpace(input.TargetType))) != grants.TargetRole {
		return nil
	}
	target, err := roles.Parse(input.TargetID)
	if err != nil {
		return err
	}
	highest, ok := roles.Highest(actor.Roles)
	if !ok || !roles.HasHigherOrEqualLevel(highest, target) {
		return fmt.Errorf("rbac: grant to role %s: %w", target, shared.ErrForbidden)
	}
	return nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", shared.ErrValidation, raw)
	}
	return v, nil
}
