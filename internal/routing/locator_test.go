package routing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"route-gateway/internal/config"
	gwerrors "route-gateway/internal/errors"
	"route-gateway/internal/trie"
)

func boolPtr(b bool) *bool { return &b }

func newTestLocator(t *testing.T, cfg LocatorConfig, routes ...config.Route) *Locator {
	t.Helper()

	l, err := NewLocator(cfg, StaticSource(routes), nil)
	if err != nil {
		t.Fatalf("NewLocator() error = %v", err)
	}
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	return l
}

func testRoutes() []config.Route {
	return []config.Route{
		{ID: "account", Path: "/account/**", Backend: config.BackendConfig{URL: "http://account:8080"}},
		{ID: "uaa", Path: "/uaa/", Backend: config.BackendConfig{URL: "http://uaa:8080"}, Retryable: boolPtr(true)},
		{
			ID:          "files",
			Path:        "/files/**",
			Methods:     []string{http.MethodGet},
			StripPrefix: boolPtr(false),
			Backend:     config.BackendConfig{URL: "http://files:8080/storage"},
		},
	}
}

func TestLocator_MatchingRoute(t *testing.T) {
	tests := []struct {
		name       string
		config     LocatorConfig
		path       string
		wantOK     bool
		wantID     string
		wantPath   string
		wantPrefix string
		wantRetry  bool
	}{
		{
			name:       "wildcard route strips route prefix",
			path:       "/account/details",
			wantOK:     true,
			wantID:     "account",
			wantPath:   "/details",
			wantPrefix: "/account",
		},
		{
			name:       "wildcard route matches its own key",
			path:       "/account/",
			wantOK:     true,
			wantID:     "account",
			wantPath:   "/",
			wantPrefix: "/account",
		},
		{
			name:      "exact route keeps path and uses route retryable",
			path:      "/uaa/",
			wantOK:    true,
			wantID:    "uaa",
			wantPath:  "/uaa/",
			wantRetry: true,
		},
		{
			name:     "route without strip prefix forwards full path",
			path:     "/files/a/b.txt",
			wantOK:   true,
			wantID:   "files",
			wantPath: "/files/a/b.txt",
		},
		{
			name:       "servlet path is stripped once",
			config:     LocatorConfig{ServletPath: "/gateway"},
			path:       "/gateway/account/details",
			wantOK:     true,
			wantID:     "account",
			wantPath:   "/details",
			wantPrefix: "/account",
		},
		{
			name:   "servlet path is not stripped twice",
			config: LocatorConfig{ServletPath: "/gateway"},
			path:   "/gateway/gateway/account/details",
		},
		{
			name:      "root servlet path is ignored",
			config:    LocatorConfig{ServletPath: "/", Retryable: true},
			path:      "/uaa/",
			wantOK:    true,
			wantID:    "uaa",
			wantPath:  "/uaa/",
			wantRetry: true,
		},
		{
			name:       "global retryable applies when route has none",
			config:     LocatorConfig{Retryable: true},
			path:       "/account/x",
			wantOK:     true,
			wantID:     "account",
			wantPath:   "/x",
			wantPrefix: "/account",
			wantRetry:  true,
		},
		{
			name:       "global prefix is stripped",
			config:     LocatorConfig{Prefix: "/api", StripPrefix: true},
			path:       "/api/account/details",
			wantOK:     true,
			wantID:     "account",
			wantPath:   "/details",
			wantPrefix: "/api/account",
		},
		{
			name:       "global prefix is kept without strip prefix",
			config:     LocatorConfig{Prefix: "api/"},
			path:       "/api/files/a",
			wantOK:     true,
			wantID:     "files",
			wantPath:   "/api/files/a",
			wantPrefix: "/api",
		},
		{
			name:   "route without global prefix does not match",
			config: LocatorConfig{Prefix: "/api"},
			path:   "/account/details",
		},
		{name: "exact route does not match extension", path: "/uaa/authorize"},
		{name: "diverging path does not match", path: "/accounts/"},
		{name: "empty path", path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLocator(t, tt.config, testRoutes()...)

			spec, ok := l.MatchingRoute(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("MatchingRoute(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if !ok {
				if spec != nil {
					t.Errorf("MatchingRoute(%q) spec = %+v, want nil", tt.path, spec)
				}
				return
			}

			if spec.ID != tt.wantID {
				t.Errorf("ID = %s, want %s", spec.ID, tt.wantID)
			}
			if spec.Path != tt.wantPath {
				t.Errorf("Path = %s, want %s", spec.Path, tt.wantPath)
			}
			if spec.Prefix != tt.wantPrefix {
				t.Errorf("Prefix = %s, want %s", spec.Prefix, tt.wantPrefix)
			}
			if spec.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", spec.Retryable, tt.wantRetry)
			}
			if spec.Location == nil || spec.Location != spec.Route.Backend.URL {
				t.Errorf("Location = %v, want route backend url", spec.Location)
			}
		})
	}
}

func TestLocator_Match(t *testing.T) {
	l := newTestLocator(t, LocatorConfig{}, testRoutes()...)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "any method allowed", method: http.MethodDelete, path: "/account/1"},
		{name: "allowed method", method: http.MethodGet, path: "/files/a"},
		{name: "method not allowed", method: http.MethodPost, path: "/files/a", wantStatus: http.StatusMethodNotAllowed},
		{name: "no route", method: http.MethodGet, path: "/unknown", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := l.Match(tt.method, tt.path)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Match() error = %v", err)
				}
				if result.Route != result.Spec.Route {
					t.Error("MatchResult.Route differs from Spec.Route")
				}
				return
			}

			var gwErr gwerrors.GatewayError
			if !errors.As(err, &gwErr) {
				t.Fatalf("Match() error = %v, want GatewayError", err)
			}
			if gwErr.StatusCode() != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", gwErr.StatusCode(), tt.wantStatus)
			}
		})
	}
}

func TestLocator_Refresh(t *testing.T) {
	tests := []struct {
		name    string
		routes  []config.Route
		wantErr bool
		wantLen int
	}{
		{
			name: "leading slash is added",
			routes: []config.Route{
				{Path: "orders/**", Backend: config.BackendConfig{URL: "http://orders"}},
			},
			wantLen: 1,
		},
		{
			name: "duplicate pattern",
			routes: []config.Route{
				{Path: "/orders/**", Backend: config.BackendConfig{URL: "http://orders"}},
				{Path: "/orders/**", Backend: config.BackendConfig{URL: "http://orders-v2"}},
			},
			wantErr: true,
		},
		{
			name: "wildcard and exact route normalize to the same key",
			routes: []config.Route{
				{Path: "/orders/**", Backend: config.BackendConfig{URL: "http://orders"}},
				{Path: "/orders/", Backend: config.BackendConfig{URL: "http://orders"}},
			},
			wantErr: true,
		},
		{
			name: "relative backend url",
			routes: []config.Route{
				{Path: "/orders/**", Backend: config.BackendConfig{URL: "orders"}},
			},
			wantErr: true,
		},
		{
			name: "missing backend url",
			routes: []config.Route{
				{Path: "/orders/**"},
			},
			wantErr: true,
		},
		{
			name: "bare wildcard becomes the root route",
			routes: []config.Route{
				{Path: "**", Backend: config.BackendConfig{URL: "http://all"}},
			},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLocator(LocatorConfig{}, StaticSource(tt.routes), nil)
			if err != nil {
				t.Fatalf("NewLocator() error = %v", err)
			}

			err = l.Refresh(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Refresh() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := len(l.Routes()); got != tt.wantLen {
				t.Errorf("len(Routes()) = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

type flakySource struct {
	routes []config.Route
	err    error
}

func (s *flakySource) Routes(context.Context) ([]config.Route, error) {
	return s.routes, s.err
}

func TestLocator_FailedRefreshKeepsRoutes(t *testing.T) {
	src := &flakySource{routes: testRoutes()}
	l, err := NewLocator(LocatorConfig{Trie: trie.Config{Kind: trie.KindArray}}, src, nil)
	if err != nil {
		t.Fatalf("NewLocator() error = %v", err)
	}
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	src.err = errors.New("source unavailable")
	if err := l.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() error = nil, want error")
	}

	// 配列の容量を超える文字を含むルート
	src.err = nil
	src.routes = append(testRoutes(), config.Route{Path: "/café/**", Backend: config.BackendConfig{URL: "http://cafe"}})
	err = l.Refresh(context.Background())
	if !errors.Is(err, trie.ErrInvalidKey) {
		t.Fatalf("Refresh() error = %v, want ErrInvalidKey", err)
	}

	if _, ok := l.MatchingRoute("/account/details"); !ok {
		t.Error("previous routes should still be served")
	}
	if _, ok := l.MatchingRoute("/café/menu"); ok {
		t.Error("route from failed refresh should not be served")
	}
}

func TestLocator_RefreshObserver(t *testing.T) {
	type observation struct {
		routes int
		err    error
	}
	var got []observation

	src := &flakySource{routes: testRoutes()}
	l, err := NewLocator(LocatorConfig{}, src, nil, WithRefreshObserver(func(routes int, err error) {
		got = append(got, observation{routes: routes, err: err})
	}))
	if err != nil {
		t.Fatalf("NewLocator() error = %v", err)
	}

	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	errUnavailable := errors.New("source unavailable")
	src.err = errUnavailable
	if err := l.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() error = nil, want error")
	}
	src.err = nil
	src.routes = testRoutes()[:1]
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("observations = %d, want 3", len(got))
	}
	if got[0].routes != 3 || got[0].err != nil {
		t.Errorf("first refresh = %+v, want 3 routes and no error", got[0])
	}
	// 失敗時は直前のルート数のまま
	if got[1].routes != 3 || !errors.Is(got[1].err, errUnavailable) {
		t.Errorf("failed refresh = %+v, want 3 routes and an error", got[1])
	}
	if got[2].routes != 1 || got[2].err != nil {
		t.Errorf("third refresh = %+v, want 1 route and no error", got[2])
	}
}

func TestLocator_RefreshReplacesRoutes(t *testing.T) {
	src := &flakySource{routes: testRoutes()}
	l, err := NewLocator(LocatorConfig{}, src, nil)
	if err != nil {
		t.Fatalf("NewLocator() error = %v", err)
	}
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	src.routes = []config.Route{{ID: "orders", Path: "/orders/**", Backend: config.BackendConfig{URL: "http://orders"}}}
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if _, ok := l.MatchingRoute("/account/details"); ok {
		t.Error("removed route should not match")
	}
	spec, ok := l.MatchingRoute("/orders/1")
	if !ok || spec.ID != "orders" {
		t.Errorf("MatchingRoute(/orders/1) = %+v, %v", spec, ok)
	}
}

func TestLocator_Routes(t *testing.T) {
	l := newTestLocator(t, LocatorConfig{}, testRoutes()...)

	routes := l.Routes()
	want := []string{"account", "files", "uaa"}
	if len(routes) != len(want) {
		t.Fatalf("len(Routes()) = %d, want %d", len(routes), len(want))
	}
	for i, r := range routes {
		if r.ID != want[i] {
			t.Errorf("Routes()[%d].ID = %s, want %s", i, r.ID, want[i])
		}
	}
}

func TestLocator_NoRefreshYet(t *testing.T) {
	l, err := NewLocator(LocatorConfig{}, StaticSource(testRoutes()), nil)
	if err != nil {
		t.Fatalf("NewLocator() error = %v", err)
	}

	if _, ok := l.MatchingRoute("/account/details"); ok {
		t.Error("MatchingRoute() before Refresh should not match")
	}
	if len(l.Routes()) != 0 {
		t.Error("Routes() before Refresh should be empty")
	}
}

func TestNewLocator_Invalid(t *testing.T) {
	if _, err := NewLocator(LocatorConfig{}, nil, nil); err == nil {
		t.Error("NewLocator() with nil source should fail")
	}
	if _, err := NewLocator(LocatorConfig{Trie: trie.Config{Kind: "btree"}}, StaticSource(nil), nil); err == nil {
		t.Error("NewLocator() with unknown trie kind should fail")
	}
}
