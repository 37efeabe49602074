package routing

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"route-gateway/internal/config"
)

// Route はルート定義を保持する
type Route struct {
	ID          string
	Path        string // ルートパターン（例: "/account/**"）
	Methods     []string
	Backend     *Backend
	StripPrefix bool
	Retryable   *bool
	Middleware  []config.MiddlewareConfig
	Priority    int
}

// Backend はバックエンドサービスの情報
type Backend struct {
	URL     *url.URL
	Timeout time.Duration
}

// ProxyRouteSpec はリクエストパスに対して解決された転送先
type ProxyRouteSpec struct {
	ID string
	// Path はバックエンドに転送するパス
	Path string
	// Location はバックエンドのURL
	Location *url.URL
	// Prefix は転送時に取り除いたプレフィックス
	Prefix    string
	Retryable bool
	Route     *Route
}

// MatchResult はルーティングマッチの結果
type MatchResult struct {
	Route *Route
	Spec  *ProxyRouteSpec
}

// NewRoute は設定からRouteを作成する
// strip_prefix が未指定の場合は true として扱う
func NewRoute(cfg config.Route) (*Route, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("route path is empty")
	}
	if cfg.Backend.URL == "" {
		return nil, fmt.Errorf("route %s has no backend url", cfg.Path)
	}

	backendURL, err := url.Parse(cfg.Backend.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url for %s: %w", cfg.Path, err)
	}
	if backendURL.Scheme == "" || backendURL.Host == "" {
		return nil, fmt.Errorf("backend url for %s must be absolute: %s", cfg.Path, cfg.Backend.URL)
	}

	stripPrefix := true
	if cfg.StripPrefix != nil {
		stripPrefix = *cfg.StripPrefix
	}

	id := cfg.ID
	if id == "" {
		id = cfg.Path
	}

	return &Route{
		ID:      id,
		Path:    cfg.Path,
		Methods: cfg.Methods,
		Backend: &Backend{
			URL:     backendURL,
			Timeout: cfg.Backend.Timeout,
		},
		StripPrefix: stripPrefix,
		Retryable:   cfg.Retryable,
		Middleware:  cfg.Middleware,
		Priority:    cfg.Priority,
	}, nil
}

// HasMethod はRouteが指定されたHTTPメソッドをサポートしているか確認する
func (r *Route) HasMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true // メソッド指定がない場合は全メソッドを許可
	}
	return slices.Contains(r.Methods, method)
}
