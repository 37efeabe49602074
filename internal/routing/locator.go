// Package routing はルート定義を読み込み、リクエストパスを転送先に解決する
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"route-gateway/internal/errors"
	"route-gateway/internal/matcher"
	"route-gateway/internal/trie"
)

// LocatorConfig はLocatorの設定
type LocatorConfig struct {
	// ServletPath はマッチングの前にリクエストパスから取り除くベースパス
	ServletPath string
	// Prefix は全てのルートパターンに付与するプレフィックス
	Prefix string
	// StripPrefix は転送パスから Prefix を取り除くか
	StripPrefix bool
	// Retryable はルートで指定が無い場合のリトライ可否
	Retryable bool
	Trie      trie.Config
}

// Locator はルートの取得元とトライのマッチャーをつなぐ
type Locator struct {
	config  LocatorConfig
	source  Source
	matcher *matcher.Matcher[*Route]
	logger  *slog.Logger

	// onRefresh は Refresh の結果を受け取る。成功時は新しいルート数、失敗時はエラーが渡される
	onRefresh func(routes int, err error)

	// Refresh を直列化する。読み取り側はロックを取らない
	mu sync.Mutex
}

// LocatorOption はLocatorのオプション
type LocatorOption func(*Locator)

// WithRefreshObserver は Refresh のたびに fn を呼び出す
// 管理APIや変更通知など、どの経路の再読み込みも fn に届く
func WithRefreshObserver(fn func(routes int, err error)) LocatorOption {
	return func(l *Locator) {
		l.onRefresh = fn
	}
}

// NewLocator は新しいLocatorを作成する
// ルートは Refresh を呼ぶまで登録されない
func NewLocator(cfg LocatorConfig, source Source, logger *slog.Logger, opts ...LocatorOption) (*Locator, error) {
	if source == nil {
		return nil, fmt.Errorf("route source is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m, err := matcher.New[*Route](cfg.Trie)
	if err != nil {
		return nil, err
	}

	if cfg.Prefix != "" {
		cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")
	}

	l := &Locator{
		config:  cfg,
		source:  source,
		matcher: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Refresh は取得元からルートを読み直し、テーブルを丸ごと置き換える
// 失敗した場合は以前のテーブルを使い続ける
func (l *Locator) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.refresh(ctx)
	if l.onRefresh != nil {
		l.onRefresh(l.matcher.Len(), err)
	}
	return err
}

func (l *Locator) refresh(ctx context.Context) error {
	cfgs, err := l.source.Routes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}

	table := make(map[string]*Route, len(cfgs))
	patterns := make(map[string]string, len(cfgs))
	for _, rc := range cfgs {
		route, err := NewRoute(rc)
		if err != nil {
			return fmt.Errorf("failed to create route for %s: %w", rc.Path, err)
		}

		pattern := routeKey(l.config.Prefix, route.Path)
		key, _ := matcher.NormalizePattern(pattern)
		if prev, ok := patterns[key]; ok {
			return fmt.Errorf("route already exists for path: %s (conflicts with %s)", pattern, prev)
		}
		patterns[key] = pattern
		table[pattern] = route
	}

	if err := l.matcher.SetRoutes(table); err != nil {
		return fmt.Errorf("failed to publish routes: %w", err)
	}

	l.logger.Info("routes refreshed", slog.Int("routes", len(table)))
	return nil
}

// MatchingRoute はリクエストパスにマッチするルートを転送先に変換して返す
func (l *Locator) MatchingRoute(path string) (*ProxyRouteSpec, bool) {
	path = stripServletPath(l.config.ServletPath, path)

	route, ok := l.matcher.MatchingRoute(path)
	if !ok {
		l.logger.Debug("no route matched", slog.String("path", path))
		return nil, false
	}
	return l.toProxyRouteSpec(path, route), true
}

// Match はメソッドとパスにマッチするルートを検索する
func (l *Locator) Match(method, path string) (*MatchResult, error) {
	spec, ok := l.MatchingRoute(path)
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no route found for path: %s", path))
	}

	if !spec.Route.HasMethod(method) {
		return nil, errors.NewMethodNotAllowedError(fmt.Sprintf("method %s not allowed", method), spec.Route.Methods)
	}

	return &MatchResult{Route: spec.Route, Spec: spec}, nil
}

// Routes は現在登録されているルートをパターンの昇順で返す
func (l *Locator) Routes() []*Route {
	entries := l.matcher.Routes()
	routes := make([]*Route, 0, len(entries))
	for _, e := range entries {
		routes = append(routes, e.Spec)
	}
	return routes
}

func (l *Locator) toProxyRouteSpec(path string, route *Route) *ProxyRouteSpec {
	target := path
	prefix := l.config.Prefix

	if l.config.StripPrefix && prefix != "" && strings.HasPrefix(target, prefix) {
		target = target[len(prefix):]
	}

	if route.StripPrefix {
		if rp, ok := routePrefix(route.Path); ok {
			target = strings.Replace(target, rp, "", 1)
			prefix += rp
		}
	}

	retryable := l.config.Retryable
	if route.Retryable != nil {
		retryable = *route.Retryable
	}

	return &ProxyRouteSpec{
		ID:        route.ID,
		Path:      target,
		Location:  route.Backend.URL,
		Prefix:    prefix,
		Retryable: retryable,
		Route:     route,
	}
}
