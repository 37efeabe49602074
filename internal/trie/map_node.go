package trie

import (
	"iter"
	"maps"
	"slices"
)

// charMapNode は文字コードをキーとする疎なマップで子を保持する
// 分岐が少なく長いキー（URL パスなど）に向いている
type charMapNode[V any] struct {
	nodeValue[V]
	hint int
	next map[Char]Node[V]
}

func newCharMapNode[V any](initialCapacity int) *charMapNode[V] {
	return &charMapNode[V]{hint: initialCapacity}
}

func (n *charMapNode[V]) Accepts(Char) bool {
	return true
}

func (n *charMapNode[V]) Child(c Char) Node[V] {
	return n.next[c]
}

func (n *charMapNode[V]) SetChild(c Char, child Node[V]) {
	if n.next == nil {
		n.next = make(map[Char]Node[V], n.hint)
	}
	n.next[c] = child
}

func (n *charMapNode[V]) RemoveChild(c Char) {
	delete(n.next, c)
}

func (n *charMapNode[V]) ChildCount() int {
	return len(n.next)
}

func (n *charMapNode[V]) Children() iter.Seq2[Char, Node[V]] {
	return func(yield func(Char, Node[V]) bool) {
		for _, c := range slices.Sorted(maps.Keys(n.next)) {
			if !yield(c, n.next[c]) {
				return
			}
		}
	}
}

type childEntry[V any] struct {
	c    Char
	node Node[V]
}

// hashMapNode は子が少ないうちはスライスを線形探索し、
// initialCapacity * loadFactor を超えた時点でハッシュマップに移行する
type hashMapNode[V any] struct {
	nodeValue[V]
	threshold int
	entries   []childEntry[V]
	m         map[Char]Node[V]
}

func newHashMapNode[V any](threshold int) *hashMapNode[V] {
	return &hashMapNode[V]{threshold: threshold}
}

func (n *hashMapNode[V]) Accepts(Char) bool {
	return true
}

func (n *hashMapNode[V]) Child(c Char) Node[V] {
	if n.m != nil {
		return n.m[c]
	}
	for _, e := range n.entries {
		if e.c == c {
			return e.node
		}
	}
	return nil
}

func (n *hashMapNode[V]) SetChild(c Char, child Node[V]) {
	if n.m != nil {
		n.m[c] = child
		return
	}

	for i := range n.entries {
		if n.entries[i].c == c {
			n.entries[i].node = child
			return
		}
	}

	if len(n.entries)+1 > n.threshold {
		n.escapeToMap()
		n.m[c] = child
		return
	}

	n.entries = append(n.entries, childEntry[V]{c: c, node: child})
}

func (n *hashMapNode[V]) escapeToMap() {
	n.m = make(map[Char]Node[V], len(n.entries)*2+1)
	for _, e := range n.entries {
		n.m[e.c] = e.node
	}
	n.entries = nil
}

func (n *hashMapNode[V]) RemoveChild(c Char) {
	if n.m != nil {
		delete(n.m, c)
		return
	}
	n.entries = slices.DeleteFunc(n.entries, func(e childEntry[V]) bool {
		return e.c == c
	})
}

func (n *hashMapNode[V]) ChildCount() int {
	if n.m != nil {
		return len(n.m)
	}
	return len(n.entries)
}

func (n *hashMapNode[V]) Children() iter.Seq2[Char, Node[V]] {
	return func(yield func(Char, Node[V]) bool) {
		if n.m != nil {
			for _, c := range slices.Sorted(maps.Keys(n.m)) {
				if !yield(c, n.m[c]) {
					return
				}
			}
			return
		}

		sorted := slices.SortedFunc(slices.Values(n.entries), func(a, b childEntry[V]) int {
			return int(a.c) - int(b.c)
		})
		for _, e := range sorted {
			if !yield(e.c, e.node) {
				return
			}
		}
	}
}
