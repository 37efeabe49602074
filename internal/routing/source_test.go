package routing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"route-gateway/internal/config"
	redisclient "route-gateway/pkg/redis"
)

func newRedisSource(t *testing.T) (*RedisSource, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(context.Background(), redisclient.Config{Host: mr.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisSource(client, "gateway:routes"), mr
}

func TestFileSource_Routes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	write := func(content string) {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write(`
routes:
  - id: "account"
    path: "/account/**"
    backend:
      url: "http://account:8080"
`)

	src := NewFileSource(path)
	routes, err := src.Routes(context.Background())
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	if len(routes) != 1 || routes[0].ID != "account" {
		t.Fatalf("Routes() = %+v", routes)
	}

	// ファイルは呼び出しのたびに読み直される
	write(`
routes:
  - path: "/account/**"
    backend:
      url: "http://account:8080"
  - path: "/uaa/"
    backend:
      url: "http://uaa:8080"
`)

	routes, err = src.Routes(context.Background())
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Errorf("len(Routes()) = %d, want 2", len(routes))
	}

	if _, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Routes(context.Background()); err == nil {
		t.Error("Routes() for missing file should fail")
	}
}

func TestStaticSource_Routes(t *testing.T) {
	src := StaticSource(testRoutes())

	routes, err := src.Routes(context.Background())
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	routes[0].Path = "/mutated/**"

	again, _ := src.Routes(context.Background())
	if again[0].Path != "/account/**" {
		t.Error("StaticSource should return a copy")
	}
}

func TestRedisSource_Routes(t *testing.T) {
	src, mr := newRedisSource(t)

	mr.HSet("gateway:routes",
		"/uaa/", "id: uaa\nbackend:\n  url: http://uaa:8080\nretryable: true\n",
		"/account/**", "id: account\nmethods: [GET]\nbackend:\n  url: http://account:8080\n  timeout: 5s\n",
	)

	routes, err := src.Routes(context.Background())
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("len(Routes()) = %d, want 2", len(routes))
	}

	account := routes[0]
	if account.Path != "/account/**" || account.ID != "account" {
		t.Errorf("routes[0] = %s %s", account.ID, account.Path)
	}
	if account.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", account.Backend.Timeout)
	}

	uaa := routes[1]
	if uaa.Path != "/uaa/" || uaa.Retryable == nil || !*uaa.Retryable {
		t.Errorf("routes[1] = %+v", uaa)
	}
}

func TestRedisSource_RoutesInvalidDocument(t *testing.T) {
	src, mr := newRedisSource(t)
	mr.HSet("gateway:routes", "/broken/**", "backend: [")

	if _, err := src.Routes(context.Background()); err == nil {
		t.Error("Routes() with malformed document should fail")
	}
}

func TestRedisSource_RouteInvalidDocument(t *testing.T) {
	src, mr := newRedisSource(t)
	mr.HSet("gateway:routes", "/broken/**", "backend: [")

	if _, _, err := src.Route(context.Background(), "/broken/**"); err == nil {
		t.Error("Route() with malformed document should fail")
	}
}

func TestRedisSource_PutDelete(t *testing.T) {
	src, mr := newRedisSource(t)
	ctx := context.Background()

	route := config.Route{
		ID:      "orders",
		Path:    "/orders/**",
		Backend: config.BackendConfig{URL: "http://orders:8080", Timeout: 3 * time.Second},
	}
	if err := src.Put(ctx, route); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if mr.HGet("gateway:routes", "/orders/**") == "" {
		t.Fatal("route was not stored")
	}

	routes, err := src.Routes(ctx)
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	if len(routes) != 1 || routes[0].ID != "orders" || routes[0].Backend.Timeout != 3*time.Second {
		t.Errorf("Routes() = %+v", routes)
	}

	if err := src.Put(ctx, config.Route{Path: "/bad/**", Backend: config.BackendConfig{URL: "bad"}}); err == nil {
		t.Error("Put() with relative backend url should fail")
	}

	got, ok, err := src.Route(ctx, "/orders/**")
	if err != nil || !ok || got.ID != "orders" || got.Path != "/orders/**" {
		t.Errorf("Route() = %+v, %v, %v", got, ok, err)
	}

	deleted, err := src.Delete(ctx, "/orders/**")
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	if _, ok, err := src.Route(ctx, "/orders/**"); err != nil || ok {
		t.Errorf("Route() after delete ok = %v, err = %v", ok, err)
	}
	deleted, err = src.Delete(ctx, "/orders/**")
	if err != nil || deleted {
		t.Errorf("Delete() of missing route = %v, %v", deleted, err)
	}
}

func TestRedisSource_WatchRefreshesLocator(t *testing.T) {
	src, _ := newRedisSource(t)

	l, err := NewLocator(LocatorConfig{}, src, nil)
	if err != nil {
		t.Fatalf("NewLocator() error = %v", err)
	}
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refreshed := make(chan struct{}, 16)
	go src.Watch(ctx, func() {
		if err := l.Refresh(ctx); err == nil {
			select {
			case refreshed <- struct{}{}:
			default:
			}
		}
	})

	route := config.Route{ID: "orders", Path: "/orders/**", Backend: config.BackendConfig{URL: "http://orders:8080"}}

	// 購読が確立するまで書き込みを繰り返す
	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-refreshed:
			spec, ok := l.MatchingRoute("/orders/1")
			if !ok || spec.ID != "orders" {
				t.Errorf("MatchingRoute(/orders/1) = %+v, %v", spec, ok)
			}
			return
		case <-ticker.C:
			if err := src.Put(context.Background(), route); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		case <-deadline:
			t.Fatal("locator was not refreshed")
		}
	}
}
