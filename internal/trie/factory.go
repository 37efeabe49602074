package trie

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Kind は子ノードの格納方式
type Kind string

const (
	// KindArray は文字コードで添字付けする密な配列
	KindArray Kind = "array"
	// KindCharMap は文字コードをキーとする疎なマップ
	KindCharMap Kind = "char_map"
	// KindHashMap は負荷率で容量を調整する小さなハッシュマップ
	KindHashMap Kind = "hash_map"
)

const (
	// DefaultInitialCapacity はハッシュ系の格納方式の既定の初期容量
	DefaultInitialCapacity = 16
	// DefaultLoadFactor はハッシュ系の格納方式の既定の負荷率
	DefaultLoadFactor = 0.75
)

// Config はトライの生成設定
type Config struct {
	// Kind は格納方式（未指定の場合は char_map）
	Kind Kind `yaml:"kind"`
	// Capacity は array で扱う文字数の上限（未指定の場合は 128）
	Capacity int `yaml:"capacity,omitempty"`
	// InitialCapacity は char_map / hash_map の初期容量
	InitialCapacity int `yaml:"initial_capacity,omitempty"`
	// LoadFactor は hash_map がマップに移行する負荷率
	LoadFactor float64 `yaml:"load_factor,omitempty"`
}

// ParseKind は文字列から格納方式を取得する
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindArray, KindCharMap, KindHashMap:
		return k, nil
	case "":
		return KindCharMap, nil
	default:
		return "", errors.Newf("unknown trie kind: %q", s)
	}
}

// Validate は設定の妥当性を検証する
func (c Config) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Capacity < 0 || c.Capacity > MaxArrayCapacity {
		return errors.Newf("capacity must be in range [0, %d]: %d", MaxArrayCapacity, c.Capacity)
	}
	if c.InitialCapacity < 0 {
		return errors.Newf("initial_capacity must be non-negative: %d", c.InitialCapacity)
	}
	if c.LoadFactor < 0 || math.IsNaN(c.LoadFactor) || math.IsInf(c.LoadFactor, 0) {
		return errors.Newf("load_factor must be a positive number: %v", c.LoadFactor)
	}
	return nil
}

// withDefaults は未指定の値を既定値で埋めた設定を返す
func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = KindCharMap
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultArrayCapacity
	}
	if c.InitialCapacity == 0 {
		c.InitialCapacity = DefaultInitialCapacity
	}
	if c.LoadFactor == 0 {
		c.LoadFactor = DefaultLoadFactor
	}
	return c
}

// Factory は設定に対応するノードファクトリーを返す
func Factory[V any](cfg Config) (NodeFactory[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid trie config")
	}
	cfg = cfg.withDefaults()

	switch cfg.Kind {
	case KindArray:
		capacity := cfg.Capacity
		return func() Node[V] { return newArrayNode[V](capacity) }, nil
	case KindHashMap:
		threshold := max(int(math.Ceil(float64(cfg.InitialCapacity)*cfg.LoadFactor)), 1)
		return func() Node[V] { return newHashMapNode[V](threshold) }, nil
	default:
		hint := cfg.InitialCapacity
		return func() Node[V] { return newCharMapNode[V](hint) }, nil
	}
}

// New は設定に従った格納方式の空のトライを作成する
func New[V any](cfg Config) (*Trie[V], error) {
	factory, err := Factory[V](cfg)
	if err != nil {
		return nil, err
	}
	return NewWithFactory(factory), nil
}

// NewArray は配列方式のトライを作成する
func NewArray[V any](capacity int) (*Trie[V], error) {
	return New[V](Config{Kind: KindArray, Capacity: capacity})
}

// NewCharMap は疎なマップ方式のトライを作成する
func NewCharMap[V any](initialCapacity int) (*Trie[V], error) {
	return New[V](Config{Kind: KindCharMap, InitialCapacity: initialCapacity})
}

// NewHashMap は負荷率付きのハッシュマップ方式のトライを作成する
func NewHashMap[V any](initialCapacity int, loadFactor float64) (*Trie[V], error) {
	return New[V](Config{Kind: KindHashMap, InitialCapacity: initialCapacity, LoadFactor: loadFactor})
}
