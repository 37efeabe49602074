package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"route-gateway/internal/config"
	"route-gateway/internal/metrics"
	"route-gateway/internal/middleware/auth"
	"route-gateway/internal/routing"
)

type fakeRouteAdmin struct {
	locator    *routing.Locator
	refreshErr error
	refreshes  atomic.Int32
}

func (f *fakeRouteAdmin) Routes() []*routing.Route {
	return f.locator.Routes()
}

func (f *fakeRouteAdmin) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	if f.refreshErr != nil {
		return f.refreshErr
	}
	return f.locator.Refresh(ctx)
}

func newAdminMux(t *testing.T, admin RouteAdmin) (*http.ServeMux, func(scope string) string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwtMiddleware := auth.NewJWTMiddleware(auth.JWTConfig{
		PublicKeys: map[string]*rsa.PublicKey{"admin": &key.PublicKey},
	})

	h := NewAdminRoutesHandler(AdminRoutesConfig{
		Locator:      admin,
		Authenticate: jwtMiddleware.Handler,
		Authorize:    auth.RequireScope,
		Logger:       slog.New(slog.DiscardHandler),
	})
	mux := http.NewServeMux()
	h.Register(mux, "/admin/")

	sign := func(scope string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub":   "operator",
			"scope": scope,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		token.Header["kid"] = "admin"
		s, err := token.SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + s
	}
	return mux, sign
}

func TestAdminRoutesHandler_ListRoutes(t *testing.T) {
	admin := &fakeRouteAdmin{locator: newTestLocator(t, routing.LocatorConfig{})}
	mux, sign := newAdminMux(t, admin)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{name: "トークンなし", wantStatus: http.StatusUnauthorized},
		{name: "スコープ不足", auth: sign(ScopeRoutesWrite), wantStatus: http.StatusForbidden},
		{name: "参照スコープあり", auth: sign(ScopeRoutesRead), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/routes", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				Count  int         `json:"count"`
				Routes []RouteView `json:"routes"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Count != 5 || len(body.Routes) != 5 {
				t.Fatalf("count = %d, routes = %d", body.Count, len(body.Routes))
			}

			account := body.Routes[0]
			if account.ID != "account" || account.Backend != "http://account:8080/v1" || account.Timeout != "5s" || !account.StripPrefix {
				t.Errorf("routes[0] = %+v", account)
			}
		})
	}
}

func TestAdminRoutesHandler_RefreshRoutes(t *testing.T) {
	tests := []struct {
		name       string
		refreshErr error
		wantStatus int
	}{
		{name: "成功", wantStatus: http.StatusOK},
		{name: "失敗", refreshErr: errors.New("route already exists for path: /a/"), wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := &fakeRouteAdmin{locator: newTestLocator(t, routing.LocatorConfig{}), refreshErr: tt.refreshErr}
			mux, sign := newAdminMux(t, admin)

			req := httptest.NewRequest(http.MethodPost, "/admin/routes/refresh", nil)
			req.Header.Set("Authorization", sign(ScopeRoutesRead+" "+ScopeRoutesWrite))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if admin.refreshes.Load() != 1 {
				t.Errorf("refreshes = %d, want 1", admin.refreshes.Load())
			}
		})
	}
}

func TestAdminRoutesHandler_RefreshRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	src := routing.StaticSource{
		{ID: "account", Path: "/account/**", Backend: config.BackendConfig{URL: "http://account:8080"}},
		{ID: "uaa", Path: "/uaa/", Backend: config.BackendConfig{URL: "http://uaa:8080"}},
	}
	l, err := routing.NewLocator(routing.LocatorConfig{}, src, nil, routing.WithRefreshObserver(m.ObserveRefresh))
	if err != nil {
		t.Fatal(err)
	}
	mux, sign := newAdminMux(t, l)

	req := httptest.NewRequest(http.MethodPost, "/admin/routes/refresh", nil)
	req.Header.Set("Authorization", sign(ScopeRoutesRead+" "+ScopeRoutesWrite))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	expected := `
# HELP route_gateway_route_refreshes_total Total number of route table refreshes by result.
# TYPE route_gateway_route_refreshes_total counter
route_gateway_route_refreshes_total{result="success"} 1
# HELP route_gateway_routes Number of routes in the active route table.
# TYPE route_gateway_routes gauge
route_gateway_routes 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"route_gateway_route_refreshes_total", "route_gateway_routes"); err != nil {
		t.Error(err)
	}
}

func TestAdminRoutesHandler_MethodNotAllowed(t *testing.T) {
	admin := &fakeRouteAdmin{locator: newTestLocator(t, routing.LocatorConfig{})}
	mux, sign := newAdminMux(t, admin)

	req := httptest.NewRequest(http.MethodGet, "/admin/routes/refresh", nil)
	req.Header.Set("Authorization", sign(ScopeRoutesWrite))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if admin.refreshes.Load() != 0 {
		t.Error("refresh should not be called")
	}
}

func TestAdminRoutesHandler_NoAuth(t *testing.T) {
	admin := &fakeRouteAdmin{locator: newTestLocator(t, routing.LocatorConfig{})}
	h := NewAdminRoutesHandler(AdminRoutesConfig{Locator: admin})

	mux := http.NewServeMux()
	h.Register(mux, "/")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/routes", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
