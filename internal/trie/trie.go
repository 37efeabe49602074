// Package trie は文字列をキーとするプレフィックスツリーを提供する
//
// 探索・挿入・削除のアルゴリズムは Node インターフェースに対して一度だけ実装され、
// 子ノードの格納方式（配列・疎なマップ・小さなハッシュマップ）は生成時に選択する。
// Trie は並行な変更に対して安全ではない。共有する場合は構築後に変更しないこと。
package trie

import (
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// ErrInvalidKey は空のキー、UTF-8 として不正なキー、または格納方式で扱えない文字を含むキーが渡されたことを表す
// キーが存在しないことはエラーではなく、戻り値の bool で表す
var ErrInvalidKey = errors.New("invalid key")

// Trie はプレフィックスツリー
type Trie[V any] struct {
	newNode NodeFactory[V]
	root    Node[V]
}

// NewWithFactory は指定したノードファクトリーを使う空のトライを作成する
func NewWithFactory[V any](factory NodeFactory[V]) *Trie[V] {
	return &Trie[V]{
		newNode: factory,
		root:    factory(),
	}
}

// Put はキーに値を設定する
// 既に値があった場合は古い値と true を返し、サイズは変わらない
func (t *Trie[V]) Put(key string, value V) (V, bool, error) {
	var zero V
	if err := checkKey(key); err != nil {
		return zero, false, err
	}

	// ノードを作り始める前に全ての文字を検証し、途中で失敗して木を壊さないようにする
	for c := range units(key) {
		if !t.root.Accepts(c) {
			return zero, false, errors.Wrapf(ErrInvalidKey, "character %#04x is out of node capacity", uint16(c))
		}
	}

	path := make([]Node[V], 0, len(key)+1)
	node := t.root
	path = append(path, node)
	for c := range units(key) {
		next := node.Child(c)
		if next == nil {
			next = t.newNode()
			node.SetChild(c, next)
		}
		node = next
		path = append(path, node)
	}

	if old, ok := node.Value(); ok {
		node.SetValue(value)
		return old, true, nil
	}

	node.SetValue(value)
	for _, n := range path {
		n.SetSize(n.Size() + 1)
	}
	return zero, false, nil
}

// Get はキーに完全一致する値を返す
func (t *Trie[V]) Get(key string) (V, bool, error) {
	var zero V
	if err := checkKey(key); err != nil {
		return zero, false, err
	}

	node := t.find(key)
	if node == nil {
		return zero, false, nil
	}
	v, ok := node.Value()
	return v, ok, nil
}

// ContainsKey はキーに値が設定されているか返す
func (t *Trie[V]) ContainsKey(key string) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// Prefix はキーの経路上で値を持つ最も深いノード（キー自身を含む）の値を返す
// 木の中で最も深いノードではなく、キーに対して最も具体的な登録済みの祖先を探す
func (t *Trie[V]) Prefix(key string) (V, bool, error) {
	var (
		best  V
		found bool
	)
	if err := checkKey(key); err != nil {
		return best, false, err
	}

	node := t.root
	if v, ok := node.Value(); ok {
		best, found = v, true
	}
	for c := range units(key) {
		node = node.Child(c)
		if node == nil {
			break
		}
		if v, ok := node.Value(); ok {
			best, found = v, true
		}
	}
	return best, found, nil
}

// Remove はキーに完全一致する値を削除して返す
// 値を持たなくなり子も無くなったノードは、末端から根に向かって刈り込む
func (t *Trie[V]) Remove(key string) (V, bool, error) {
	var zero V
	if err := checkKey(key); err != nil {
		return zero, false, err
	}

	type step struct {
		parent Node[V]
		c      Char
	}
	steps := make([]step, 0, len(key))

	node := t.root
	for c := range units(key) {
		next := node.Child(c)
		if next == nil {
			return zero, false, nil
		}
		steps = append(steps, step{parent: node, c: c})
		node = next
	}

	old, ok := node.Value()
	if !ok {
		return zero, false, nil
	}

	node.ClearValue()
	node.SetSize(node.Size() - 1)

	child := node
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if !child.HasValue() && child.ChildCount() == 0 {
			s.parent.RemoveChild(s.c)
		}
		s.parent.SetSize(s.parent.Size() - 1)
		child = s.parent
	}
	return old, true, nil
}

// Size は格納されているキーの数を返す
func (t *Trie[V]) Size() int {
	return t.root.Size()
}

// IsEmpty はキーが1つも格納されていないか返す
func (t *Trie[V]) IsEmpty() bool {
	return t.Size() == 0
}

// Walk は全てのキーと値をコードユニットの昇順で列挙する
// fn が false を返すと列挙を中断する
func (t *Trie[V]) Walk(fn func(key string, value V) bool) {
	buf := make([]Char, 0, 32)
	walk(t.root, buf, fn)
}

func walk[V any](node Node[V], buf []Char, fn func(string, V) bool) bool {
	if v, ok := node.Value(); ok {
		if !fn(decode(buf), v) {
			return false
		}
	}
	for c, child := range node.Children() {
		if !walk(child, append(buf, c), fn) {
			return false
		}
	}
	return true
}

func (t *Trie[V]) find(key string) Node[V] {
	node := t.root
	for c := range units(key) {
		node = node.Child(c)
		if node == nil {
			return nil
		}
	}
	return node
}

func checkKey(key string) error {
	if key == "" {
		return errors.WithStack(ErrInvalidKey)
	}
	// 不正なバイトは全て U+FFFD になり、別のキーと同じ経路を共有してしまう
	if !utf8.ValidString(key) {
		return errors.Wrapf(ErrInvalidKey, "key is not valid UTF-8: %q", key)
	}
	return nil
}
