package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-authz/internal/auth"
	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/observability"
	"github.com/odyssey-erp/retail-authz/internal/rbac"
	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
	"github.com/odyssey-erp/retail-authz/internal/users"
)

type singleUser struct {
	user users.User
}

func (s singleUser) FindByUsername(_ context.Context, username string) (users.User, error) {
	if username != s.user.Username {
		return users.User{}, shared.ErrNotFound
	}
	return s.user, nil
}

type staticMenus []menus.MenuNode

func (s staticMenus) ListMenus(context.Context) ([]menus.MenuNode, error) { return s, nil }

type staticGrants []grants.Grant

func (s staticGrants) LoadForTargets(context.Context, []grants.Target) ([]grants.Grant, error) {
	return s, nil
}

func newTestRouter(t *testing.T, limit int) http.Handler {
	t.Helper()
	hash, err := auth.BcryptHasher{Cost: 4}.Hash("secret-pass")
	require.NoError(t, err)
	lookup := singleUser{user: users.User{
		ID: "u-1", Username: "admin", PasswordHash: hash, IsActive: true,
		Roles: []roles.Role{roles.SystemAdmin}, OrganizationID: "HQ", OrganizationType: "HEADQUARTERS",
	}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	sessions, err := auth.NewSessionManager(lookup, auth.NewRedisStore(client, "test"), auth.Config{
		Secret:     []byte(strings.Repeat("k", 32)),
		AccessTTL:  time.Hour,
		RefreshTTL: 2 * time.Hour,
		Hasher:     auth.BcryptHasher{Cost: 4},
		Observer:   metrics,
		Logger:     logger,
	})
	require.NoError(t, err)

	c1 := menus.MenuID("C1")
	tree := menus.NewProvider(staticMenus{
		{ID: "C1", Code: "SALES", Type: menus.TypeCategory, Active: true},
		{ID: "M1", Code: "ORDERS", ParentID: &c1, Type: menus.TypeMenu, Active: true},
		{ID: "C2", Code: "STOCK", Type: menus.TypeCategory, Active: true},
	}, time.Minute, nil)
	loader := staticGrants{{
		ID: "g1", MenuID: "C1", TargetType: grants.TargetUser, TargetID: "u-1",
		Permission: grants.PermissionAdmin, GrantedAt: time.Now().Add(-time.Hour), Active: true,
	}}
	rbacService := rbac.NewService(tree, loader, nil, metrics)

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: limit}
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    auth.NewHandler(logger, sessions),
		AuthMiddleware: auth.Middleware{Sessions: sessions},
		MenusHandler:   rbac.NewMenusHandler(logger, rbacService),
		RolesHandler:   roles.NewHandler(logger),
		Metrics:        metrics,
	})
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t, 10)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("Cache-Control"))
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	router := newTestRouter(t, 10)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, 10)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"secret-pass"}`))
	login.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rr, login)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var session struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.NotEmpty(t, session.AccessToken)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "STORE_STAFF")
}

func TestRouterMenuAccessDecision(t *testing.T) {
	router := newTestRouter(t, 10)
	token := login(t, router)

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/menus/M1/access?permission=DELETE")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var d rbac.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	require.True(t, d.Allowed)
	require.True(t, d.Inherited)
	require.Equal(t, grants.PermissionAdmin, d.Permission)

	rr = get("/menus/C2/access")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	require.False(t, d.Allowed)

	require.Equal(t, http.StatusNotFound, get("/menus/X9/access").Code)

	token = ""
	require.Equal(t, http.StatusUnauthorized, get("/menus/M1/access").Code)
}

func login(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"secret-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var session struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	require.NotEmpty(t, session.AccessToken)
	return session.AccessToken
}

func TestRouterLoginRateLimited(t *testing.T) {
	router := newTestRouter(t, 2)

	codes := make([]int, 0, 3)
	for range 3 {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"wrong-pass"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestClientInfoMiddleware(t *testing.T) {
	var got shared.ClientInfo
	h := ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ClientInfoFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3"
	req.Header.Set("User-Agent", "pos-terminal/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "10.1.2.3", got.IP)
	require.Equal(t, "pos-terminal/1.0", got.UserAgent)
}
