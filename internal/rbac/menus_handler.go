package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/platform/httpx"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// MenusHandler serves the caller's resolved menu tree and single-menu
// access decisions.
type MenusHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewMenusHandler builds MenusHandler instance.
func NewMenusHandler(logger *slog.Logger, service *Service) *MenusHandler {
	return &MenusHandler{logger: logger, service: service}
}

// MountRoutes registers menu routes.
func (h *MenusHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myMenus)
	r.Get("/{id}/access", h.checkAccess)
}

// checkAccess answers whether the caller holds ?permission= (default READ)
// on one menu. A denial is a 200 with allowed=false.
func (h *MenusHandler) checkAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	menuID, err := menus.ParseMenuID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	min := grants.PermissionRead
	if raw := r.URL.Query().Get("permission"); raw != "" {
		if min, err = grants.ParsePermissionType(raw); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	decision, err := h.service.Check(r.Context(), p, menuID, min)
	if err != nil {
		if !errors.Is(err, shared.ErrUnknownMenu) {
			h.logger.Error("check menu access", slog.String("user_id", p.UserID), slog.String("menu_id", string(menuID)), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *MenusHandler) myMenus(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	showAll := false
	if raw := r.URL.Query().Get("showAll"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: showAll must be a boolean", shared.ErrValidation))
			return
		}
		showAll = v
	}
	tree, err := h.service.Resolve(r.Context(), p, showAll)
	if err != nil {
		h.logger.Error("resolve menus", slog.String("user_id", p.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"menus": tree})
}
