package trie

import (
	"iter"
	"unicode/utf16"
)

// Char はトライのアルファベットを構成する 16bit の UTF-16 コードユニット
type Char uint16

// Node は子ノードの格納方式ごとに実装されるノードの契約
// エンジンはこのインターフェースだけを使って走査・挿入・削除を行う
type Node[V any] interface {
	// Child は文字 c に対応する子ノードを返す（存在しなければ nil）
	Child(c Char) Node[V]
	// SetChild は文字 c に子ノードを設定する
	SetChild(c Char, n Node[V])
	// RemoveChild は文字 c の子ノードへのリンクを削除する
	RemoveChild(c Char)
	// Accepts は文字 c をこの格納方式で保持できるか返す
	Accepts(c Char) bool
	// ChildCount は子ノードの数を返す
	ChildCount() int
	// Children は子ノードをコードユニットの昇順で列挙する
	Children() iter.Seq2[Char, Node[V]]

	Value() (V, bool)
	SetValue(v V)
	ClearValue()
	HasValue() bool

	// Size はこのノードを根とする部分木に含まれる値の数
	Size() int
	SetSize(n int)
}

// NodeFactory は新しいノードを生成する
// 1つのトライは1つのファクトリーだけを使うため、格納方式が混在することはない
type NodeFactory[V any] func() Node[V]

// nodeValue は全ての格納方式で共通の値とサイズの保持部分
type nodeValue[V any] struct {
	value    V
	hasValue bool
	size     int
}

func (n *nodeValue[V]) Value() (V, bool) {
	return n.value, n.hasValue
}

func (n *nodeValue[V]) SetValue(v V) {
	n.value = v
	n.hasValue = true
}

func (n *nodeValue[V]) ClearValue() {
	var zero V
	n.value = zero
	n.hasValue = false
}

func (n *nodeValue[V]) HasValue() bool {
	return n.hasValue
}

func (n *nodeValue[V]) Size() int {
	return n.size
}

func (n *nodeValue[V]) SetSize(size int) {
	n.size = size
}

// units はキーを UTF-16 コードユニットの列として列挙する
// U+FFFF を超える文字はサロゲートペアとして2ユニットになる
// key は checkKey で UTF-8 として検証済みであること
func units(key string) iter.Seq[Char] {
	return func(yield func(Char) bool) {
		for _, r := range key {
			if r > 0xFFFF {
				r1, r2 := utf16.EncodeRune(r)
				if !yield(Char(r1)) || !yield(Char(r2)) {
					return
				}
				continue
			}
			if !yield(Char(r)) {
				return
			}
		}
	}
}

// decode はコードユニット列を文字列に戻す
func decode(chars []Char) string {
	u := make([]uint16, len(chars))
	for i, c := range chars {
		u[i] = uint16(c)
	}
	return string(utf16.Decode(u))
}
