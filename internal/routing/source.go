package routing

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"route-gateway/internal/config"
)

// Source はルート定義の取得元
type Source interface {
	// Routes は現在のルート定義を全て返す
	Routes(ctx context.Context) ([]config.Route, error)
}

// FileSource はYAMLのルーティング設定ファイルからルートを読み込む
// 呼び出しのたびにファイルを読み直す
type FileSource struct {
	Path string
}

// NewFileSource は新しいFileSourceを作成する
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Routes はファイルからルート定義を読み込む
func (s *FileSource) Routes(context.Context) ([]config.Route, error) {
	cfg, err := config.LoadRoutingConfig(s.Path)
	if err != nil {
		return nil, err
	}
	return cfg.Routes, nil
}

// StaticSource は固定のルート定義を返す
type StaticSource []config.Route

// Routes はルート定義のコピーを返す
func (s StaticSource) Routes(context.Context) ([]config.Route, error) {
	return slices.Clone([]config.Route(s)), nil
}

// HashStore はRedisSourceが使うハッシュ操作
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key, field string) (bool, error)
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string, fn func(payload string)) error
}

// RedisSource はRedisのハッシュからルートを読み込む
// フィールドがルートパターン、値がルートのYAMLドキュメント
type RedisSource struct {
	store HashStore
	key   string
}

// NewRedisSource は新しいRedisSourceを作成する
func NewRedisSource(store HashStore, key string) *RedisSource {
	return &RedisSource{store: store, key: key}
}

// Key はルート定義を格納しているハッシュのキーを返す
func (s *RedisSource) Key() string {
	return s.key
}

// Channel はルート定義の変更を通知するチャネル名を返す
func (s *RedisSource) Channel() string {
	return s.key + ":changed"
}

// Routes はハッシュから全てのルート定義を読み込む
// フィールド名の昇順で返す
func (s *RedisSource) Routes(ctx context.Context) ([]config.Route, error) {
	fields, err := s.store.HGetAll(ctx, s.key)
	if err != nil {
		return nil, err
	}

	routes := make([]config.Route, 0, len(fields))
	for _, pattern := range slices.Sorted(maps.Keys(fields)) {
		var route config.Route
		if err := yaml.Unmarshal([]byte(fields[pattern]), &route); err != nil {
			return nil, fmt.Errorf("failed to unmarshal route %s: %w", pattern, err)
		}
		route.Path = pattern
		routes = append(routes, route)
	}
	return routes, nil
}

// Route は pattern のルート定義を1件読み込む
// 存在しない場合は ok が false になる
func (s *RedisSource) Route(ctx context.Context, pattern string) (config.Route, bool, error) {
	doc, ok, err := s.store.HGet(ctx, s.key, pattern)
	if err != nil || !ok {
		return config.Route{}, false, err
	}

	var route config.Route
	if err := yaml.Unmarshal([]byte(doc), &route); err != nil {
		return config.Route{}, false, fmt.Errorf("failed to unmarshal route %s: %w", pattern, err)
	}
	route.Path = pattern
	return route, true, nil
}

// Put はルート定義を保存し、変更を通知する
func (s *RedisSource) Put(ctx context.Context, route config.Route) error {
	if route.Path == "" {
		return fmt.Errorf("route path is empty")
	}
	if _, err := NewRoute(route); err != nil {
		return err
	}

	data, err := yaml.Marshal(route)
	if err != nil {
		return fmt.Errorf("failed to marshal route %s: %w", route.Path, err)
	}
	if err := s.store.HSet(ctx, s.key, route.Path, string(data)); err != nil {
		return err
	}
	return s.store.Publish(ctx, s.Channel(), route.Path)
}

// Delete はルート定義を削除し、変更を通知する
// ルートが存在しなかった場合は false を返す
func (s *RedisSource) Delete(ctx context.Context, pattern string) (bool, error) {
	deleted, err := s.store.HDel(ctx, s.key, pattern)
	if err != nil || !deleted {
		return deleted, err
	}
	return true, s.store.Publish(ctx, s.Channel(), pattern)
}

// Watch はルート定義の変更通知を購読し、通知のたびに fn を呼び出す
// ctx がキャンセルされるまでブロックする
func (s *RedisSource) Watch(ctx context.Context, fn func()) error {
	return s.store.Subscribe(ctx, s.Channel(), func(string) { fn() })
}
