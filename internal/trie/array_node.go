package trie

import "iter"

const (
	// MaxArrayCapacity は配列ノードが扱える最大の文字数（0x0000 から 0xFFFF まで）
	MaxArrayCapacity = 0x10000

	// DefaultArrayCapacity は配列ノードの既定の文字数（ASCII）
	DefaultArrayCapacity = 128
)

// arrayNode は文字コードで直接添字付けする密な配列で子を保持する
// アクセスは O(1) だが、ノードごとに capacity 分のメモリを使う
type arrayNode[V any] struct {
	nodeValue[V]
	next  []Node[V]
	count int
}

func newArrayNode[V any](capacity int) *arrayNode[V] {
	return &arrayNode[V]{next: make([]Node[V], capacity)}
}

func (n *arrayNode[V]) Accepts(c Char) bool {
	return int(c) < len(n.next)
}

func (n *arrayNode[V]) Child(c Char) Node[V] {
	if !n.Accepts(c) {
		return nil
	}
	return n.next[c]
}

// SetChild は容量を超える文字に対して panic する
// エンジンは挿入前に Accepts で全文字を検証している
func (n *arrayNode[V]) SetChild(c Char, child Node[V]) {
	if n.next[c] == nil {
		n.count++
	}
	n.next[c] = child
}

func (n *arrayNode[V]) RemoveChild(c Char) {
	if !n.Accepts(c) || n.next[c] == nil {
		return
	}
	n.next[c] = nil
	n.count--
}

func (n *arrayNode[V]) ChildCount() int {
	return n.count
}

func (n *arrayNode[V]) Children() iter.Seq2[Char, Node[V]] {
	return func(yield func(Char, Node[V]) bool) {
		if n.count == 0 {
			return
		}
		for i, child := range n.next {
			if child == nil {
				continue
			}
			if !yield(Char(i), child) {
				return
			}
		}
	}
}
