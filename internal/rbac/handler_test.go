package rbac

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withPrincipal(p Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func TestRequireMenu(t *testing.T) {
	loader := &stubLoader{grants: []grants.Grant{
		grant("g1", "M1", grants.TargetStore, "S1", grants.PermissionWrite),
	}}
	svc, _ := newTestService(t, loader)
	mw := Middleware{Service: svc, Logger: discardLogger()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name   string
		menu   string
		min    grants.PermissionType
		status int
	}{
		{"covered", "M1", grants.PermissionRead, http.StatusNoContent},
		{"too low", "M1", grants.PermissionDelete, http.StatusForbidden},
		{"no grant", "C1", grants.PermissionRead, http.StatusForbidden},
		{"unknown", "nope", grants.PermissionRead, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := withPrincipal(storeManager())(mw.RequireMenu(menus.MenuID(tc.menu), tc.min)(ok))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, tc.status, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	mw.RequireMenu("M1", grants.PermissionRead)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAdmin(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rr := httptest.NewRecorder()
	withPrincipal(storeManager())(mw.RequireAdmin()(ok)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	admin := Principal{UserID: "a", Roles: []roles.Role{roles.SystemAdmin}, OrganizationID: "HQ1", OrganizationType: OrgHeadquarters}
	rr = httptest.NewRecorder()
	withPrincipal(admin)(mw.RequireAdmin()(ok)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMyMenus(t *testing.T) {
	loader := &stubLoader{grants: []grants.Grant{
		grant("g1", "M1", grants.TargetStore, "S1", grants.PermissionWrite),
	}}
	svc, _ := newTestService(t, loader)
	h := NewMenusHandler(discardLogger(), svc)
	r := chi.NewRouter()
	r.Use(withPrincipal(storeManager()))
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Menus []struct {
			ID        string `json:"id"`
			HasAccess bool   `json:"hasAccess"`
			Children  []struct {
				ID         string `json:"id"`
				Permission string `json:"permissionType"`
			} `json:"children"`
		} `json:"menus"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Menus, 1)
	require.Equal(t, "C1", body.Menus[0].ID)
	require.False(t, body.Menus[0].HasAccess)
	require.Equal(t, "WRITE", body.Menus[0].Children[0].Permission)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me?showAll=maybe", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckAccess(t *testing.T) {
	loader := &stubLoader{grants: []grants.Grant{
		grant("g1", "M1", grants.TargetStore, "S1", grants.PermissionWrite),
	}}
	svc, _ := newTestService(t, loader)
	r := chi.NewRouter()
	r.Use(withPrincipal(storeManager()))
	NewMenusHandler(discardLogger(), svc).MountRoutes(r)

	cases := []struct {
		name    string
		path    string
		status  int
		allowed bool
	}{
		{"default read", "/M1/access", http.StatusOK, true},
		{"write", "/M1/access?permission=write", http.StatusOK, true},
		{"delete denied", "/M1/access?permission=DELETE", http.StatusOK, false},
		{"child without grant", "/F1/access", http.StatusOK, false},
		{"unknown menu", "/nope/access", http.StatusNotFound, false},
		{"bad permission", "/M1/access?permission=OWNER", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var d Decision
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
			require.Equal(t, tc.allowed, d.Allowed)
		})
	}

	bare := chi.NewRouter()
	NewMenusHandler(discardLogger(), svc).MountRoutes(bare)
	rr := httptest.NewRecorder()
	bare.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/M1/access", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

type stubGrantManager struct {
	actor  string
	inputs []grants.GrantInput
	key    string
	filter grants.ListFilter
}

func (s *stubGrantManager) Grant(_ context.Context, actor string, in grants.GrantInput) (grants.Grant, error) {
	s.actor = actor
	s.inputs = append(s.inputs, in)
	return grants.Grant{ID: "p-1", Active: true}, nil
}

func (s *stubGrantManager) BulkGrant(_ context.Context, actor, key string, in []grants.GrantInput) ([]grants.Grant, error) {
	s.actor, s.key = actor, key
	s.inputs = append(s.inputs, in...)
	return make([]grants.Grant, len(in)), nil
}

func (s *stubGrantManager) Revoke(_ context.Context, actor, id string) (grants.Grant, error) {
	s.actor = actor
	if id != "p-1" {
		return grants.Grant{}, shared.ErrNotFound
	}
	return grants.Grant{ID: "p-1"}, nil
}

func (s *stubGrantManager) List(_ context.Context, filter grants.ListFilter, page, size int) (grants.Page, error) {
	s.filter = filter
	return grants.Page{Items: []grants.Grant{}, Pagination: shared.NewPagination(page, size, 0)}, nil
}

func newPermissionsRouter(p Principal, svc GrantManager) http.Handler {
	r := chi.NewRouter()
	r.Use(withPrincipal(p))
	r.Route("/permissions", NewPermissionsHandler(discardLogger(), svc, Middleware{}).MountRoutes)
	return r
}

func systemAdmin() Principal {
	return Principal{UserID: "admin-1", Roles: []roles.Role{roles.SystemAdmin}, OrganizationID: "HQ1", OrganizationType: OrgHeadquarters}
}

func TestPermissionsHandlerCreate(t *testing.T) {
	svc := &stubGrantManager{}
	h := newPermissionsRouter(systemAdmin(), svc)

	body := `{"menuId":"M1","targetType":"STORE","targetId":"S1","permissionType":"WRITE"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/permissions", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "admin-1", svc.actor)
	require.Equal(t, "S1", svc.inputs[0].TargetID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/permissions", strings.NewReader(`{"menu":"M1"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPermissionsHandlerRejectsGrantAboveOwnRole(t *testing.T) {
	svc := &stubGrantManager{}
	h := newPermissionsRouter(systemAdmin(), svc)

	body := `{"menuId":"M1","targetType":"ROLE","targetId":"SUPER_ADMIN","permissionType":"ADMIN"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/permissions", strings.NewReader(body)))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, svc.inputs)
}

func TestPermissionsHandlerRequiresAdmin(t *testing.T) {
	h := newPermissionsRouter(storeManager(), &stubGrantManager{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/permissions", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPermissionsHandlerBulkRevokeList(t *testing.T) {
	svc := &stubGrantManager{}
	h := newPermissionsRouter(systemAdmin(), svc)

	body := `{"grants":[{"menuId":"M1","targetType":"USER","targetId":"u1","permissionType":"READ"},{"menuId":"M2","targetType":"USER","targetId":"u1","permissionType":"READ"}]}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/bulk", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "abc", svc.key)
	require.Len(t, svc.inputs, 2)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/permissions/p-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/permissions/p-2", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/permissions?menuId=M1&targetType=store&active=true&page=2&size=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, grants.TargetStore, svc.filter.TargetType)
	require.True(t, svc.filter.ActiveOnly)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/permissions?page=x", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
