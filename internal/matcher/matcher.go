// Package matcher はトライの最長プレフィックス検索を使ってリクエストパスをルートに解決する
package matcher

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"route-gateway/internal/trie"
)

// Wildcard はルートパターンの末尾に付けるワイルドカード記号
// "/account/**" は "/account/" で始まる全てのパスにマッチする
const Wildcard = "**"

// RouteMatcher はパスに最も具体的にマッチするルートを返す
type RouteMatcher[S any] interface {
	// SetRoutes はルートの集合を丸ごと置き換える
	SetRoutes(routes map[string]S) error
	// MatchingRoute はパスにマッチするルートを返す
	MatchingRoute(path string) (S, bool)
}

// Entry はトライに格納するルートの値
// プレフィックス検索でヒットした後に完全一致を再検証するため、パスとワイルドカードかどうかを保持する
type Entry[S any] struct {
	Path     string
	Spec     S
	Wildcard bool
}

// Matcher はトライを使った RouteMatcher の実装
// ルートテーブルは不変のスナップショットとして atomic.Pointer で公開され、
// 読み取り側はロックを取らずに常に一貫したテーブルを参照する
type Matcher[S any] struct {
	config   trie.Config
	snapshot atomic.Pointer[trie.Trie[Entry[S]]]
}

var _ RouteMatcher[struct{}] = (*Matcher[struct{}])(nil)

// New は指定した格納方式でトライを構築する Matcher を作成する
func New[S any](cfg trie.Config) (*Matcher[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	return &Matcher[S]{config: cfg}, nil
}

// NormalizePattern はルートパターンからトライのキーを取り出す
// 末尾のワイルドカード記号だけを取り除き、途中の記号はそのまま残す
func NormalizePattern(pattern string) (string, bool) {
	if strings.HasSuffix(pattern, Wildcard) {
		return strings.TrimSuffix(pattern, Wildcard), true
	}
	return pattern, false
}

// SetRoutes は新しいトライを構築してから1回の atomic な書き込みで公開する
// 構築に失敗した場合は何も公開せず、以前のテーブルを使い続ける
func (m *Matcher[S]) SetRoutes(routes map[string]S) error {
	t, err := trie.New[Entry[S]](m.config)
	if err != nil {
		return err
	}

	// 同じキーに正規化されるパターンがあっても結果が決まるように、パターン順に挿入する
	for _, pattern := range slices.Sorted(maps.Keys(routes)) {
		key, wildcard := NormalizePattern(pattern)
		entry := Entry[S]{Path: key, Spec: routes[pattern], Wildcard: wildcard}
		if _, _, err := t.Put(key, entry); err != nil {
			return fmt.Errorf("failed to register route %q: %w", pattern, err)
		}
	}

	m.snapshot.Store(t)
	return nil
}

// MatchingRoute はパスにマッチするルートを返す
// ワイルドカードのルートはプレフィックスが一致すればマッチし、
// それ以外のルートはパスと完全に一致する場合だけマッチする
func (m *Matcher[S]) MatchingRoute(path string) (S, bool) {
	var zero S

	t := m.snapshot.Load()
	if t == nil || path == "" {
		return zero, false
	}

	entry, ok, err := t.Prefix(path)
	if err != nil || !ok {
		return zero, false
	}
	if !entry.Wildcard && entry.Path != path {
		return zero, false
	}
	return entry.Spec, true
}

// Routes は現在のテーブルに登録されているルートをキーの昇順で返す
func (m *Matcher[S]) Routes() []Entry[S] {
	t := m.snapshot.Load()
	if t == nil {
		return nil
	}

	entries := make([]Entry[S], 0, t.Size())
	t.Walk(func(_ string, e Entry[S]) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

// Len は現在のテーブルに登録されているルートの数を返す
func (m *Matcher[S]) Len() int {
	t := m.snapshot.Load()
	if t == nil {
		return 0
	}
	return t.Size()
}
