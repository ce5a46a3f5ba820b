// Package types 定义 chatcore 的基础类型
//
// 本文件定义 Selector：跨平台实体寻址的有序键值路径。
package types

import (
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"

	"github.com/spaolacci/murmur3"
)

// ============================================================================
//                              常量
// ============================================================================

const (
	// PlatformKey 平台段的键名
	//
	// Selector 的 platform 段决定由哪个协议实现负责该实体。
	PlatformKey = "platform"

	// segmentSep 文本形式中段与段之间的分隔符
	segmentSep = "/"

	// pairSep 文本形式中键与值之间的分隔符
	pairSep = "="
)

// ============================================================================
//                              Pair
// ============================================================================

// Pair Selector 中的一个键值段
type Pair struct {
	Key   string
	Value string
}

// P 构造 Pair 的简写
func P(key, value string) Pair {
	return Pair{Key: key, Value: value}
}

// ============================================================================
//                              Selector
// ============================================================================

// Selector 不可变的有序键值路径
//
// 例如 platform=irc/land=#chat/member=alice。段名由所属协议实现定义，
// 段的顺序有意义。Selector 构造后不可修改，Extend/Mixin 均返回新值。
// 零值是合法的空 Selector。
type Selector struct {
	pairs []Pair
}

// NewSelector 由有序键值对构造 Selector
//
// 键为空或重复时返回 ErrMalformedSelector。
func NewSelector(pairs ...Pair) (Selector, error) {
	if err := validatePairs(pairs); err != nil {
		return Selector{}, err
	}
	cp := make([]Pair, len(pairs))
	copy(cp, pairs)
	return Selector{pairs: cp}, nil
}

// MustSelector 同 NewSelector，失败时 panic
//
// 仅用于字面量构造，调用方错误必须尽早暴露。
func MustSelector(pairs ...Pair) Selector {
	s, err := NewSelector(pairs...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSelector 解析 String() 输出的文本形式
func ParseSelector(s string) (Selector, error) {
	if s == "" {
		return Selector{}, nil
	}
	parts := strings.Split(s, segmentSep)
	pairs := make([]Pair, 0, len(parts))
	for _, part := range parts {
		k, v, ok := strings.Cut(part, pairSep)
		if !ok {
			return Selector{}, fmt.Errorf("%w: segment %q has no %q", ErrMalformedSelector, part, pairSep)
		}
		key, err := url.PathUnescape(k)
		if err != nil {
			return Selector{}, fmt.Errorf("%w: %v", ErrMalformedSelector, err)
		}
		value, err := url.PathUnescape(v)
		if err != nil {
			return Selector{}, fmt.Errorf("%w: %v", ErrMalformedSelector, err)
		}
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return NewSelector(pairs...)
}

func validatePairs(pairs []Pair) error {
	seen := make(map[string]struct{}, len(pairs))
	for i, p := range pairs {
		if p.Key == "" {
			return fmt.Errorf("%w: empty key at segment %d", ErrMalformedSelector, i)
		}
		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("%w: duplicated key %q", ErrMalformedSelector, p.Key)
		}
		seen[p.Key] = struct{}{}
	}
	return nil
}

// ============================================================================
//                              访问
// ============================================================================

// Pairs 返回键值对的副本
func (s Selector) Pairs() []Pair {
	out := make([]Pair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Len 返回段数
func (s Selector) Len() int {
	return len(s.pairs)
}

// IsEmpty 是否为空 Selector
func (s Selector) IsEmpty() bool {
	return len(s.pairs) == 0
}

// Keys 返回按顺序排列的段名
func (s Selector) Keys() []string {
	keys := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Get 返回指定段的值
func (s Selector) Get(key string) (string, bool) {
	for _, p := range s.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Has 是否包含指定段
func (s Selector) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Last 返回最后一段
func (s Selector) Last() (Pair, bool) {
	if len(s.pairs) == 0 {
		return Pair{}, false
	}
	return s.pairs[len(s.pairs)-1], true
}

// Platform 返回 platform 段的值，不存在时返回空串
func (s Selector) Platform() string {
	v, _ := s.Get(PlatformKey)
	return v
}

// Path 返回以 "." 连接的段名路径，例如 platform.land.member
func (s Selector) Path() string {
	return strings.Join(s.Keys(), ".")
}

// ============================================================================
//                              派生
// ============================================================================

// Extend 返回追加一段后的新 Selector
//
// 原 Selector 不受影响。
func (s Selector) Extend(key, value string) (Selector, error) {
	if key == "" {
		return Selector{}, fmt.Errorf("%w: empty key", ErrMalformedSelector)
	}
	if s.Has(key) {
		return Selector{}, fmt.Errorf("%w: duplicated key %q", ErrMalformedSelector, key)
	}
	// 三下标切片保证 append 总是分配新数组
	return Selector{pairs: append(s.pairs[:len(s.pairs):len(s.pairs)], Pair{Key: key, Value: value})}, nil
}

// MustExtend 同 Extend，失败时 panic
func (s Selector) MustExtend(key, value string) Selector {
	out, err := s.Extend(key, value)
	if err != nil {
		panic(err)
	}
	return out
}

// Parent 返回去掉最后一段的 Selector
func (s Selector) Parent() Selector {
	if len(s.pairs) <= 1 {
		return Selector{}
	}
	return Selector{pairs: s.pairs[: len(s.pairs)-1 : len(s.pairs)-1]}
}

// HasPrefix 判断 prefix 是否为 s 的前缀（按段比较）
func (s Selector) HasPrefix(prefix Selector) bool {
	if len(prefix.pairs) > len(s.pairs) {
		return false
	}
	for i, p := range prefix.pairs {
		if s.pairs[i] != p {
			return false
		}
	}
	return true
}

// Mixin 用 base 的前导段补全 s
//
// 取 base 中位于 s 已定义的第一个键之前的段，作为 s 的前缀。
// 例如 base=platform=irc/land=#chat/member=alice，s=member=bob，
// 结果为 platform=irc/land=#chat/member=bob。s 已以 base 的首段开头时原样返回。
func (s Selector) Mixin(base Selector) Selector {
	if len(base.pairs) == 0 {
		return s
	}
	if len(s.pairs) > 0 && s.pairs[0].Key == base.pairs[0].Key {
		return s
	}
	lead := make([]Pair, 0, len(base.pairs)+len(s.pairs))
	for _, p := range base.pairs {
		if s.Has(p.Key) {
			break
		}
		lead = append(lead, p)
	}
	return Selector{pairs: append(lead, s.pairs...)}
}

// ============================================================================
//                              比较
// ============================================================================

// Equal 结构相等：相同顺序的相同键值对
func (s Selector) Equal(other Selector) bool {
	if len(s.pairs) != len(other.pairs) {
		return false
	}
	for i := range s.pairs {
		if s.pairs[i] != other.pairs[i] {
			return false
		}
	}
	return true
}

// Hash 结构哈希
//
// 相等的 Selector 哈希一定相同。编码对每个键值带长度前缀，避免拼接歧义。
func (s Selector) Hash() uint64 {
	return murmur3.Sum64(s.encode())
}

// Key 返回可用作 map 键的规范字符串
func (s Selector) Key() string {
	return string(s.encode())
}

func (s Selector) encode() []byte {
	size := 0
	for _, p := range s.pairs {
		size += len(p.Key) + len(p.Value) + 2*binary.MaxVarintLen64
	}
	buf := make([]byte, 0, size)
	for _, p := range s.pairs {
		buf = binary.AppendUvarint(buf, uint64(len(p.Key)))
		buf = append(buf, p.Key...)
		buf = binary.AppendUvarint(buf, uint64(len(p.Value)))
		buf = append(buf, p.Value...)
	}
	return buf
}

// String 返回文本形式，例如 platform=irc/land=#chat/member=alice
func (s Selector) String() string {
	var b strings.Builder
	for i, p := range s.pairs {
		if i > 0 {
			b.WriteString(segmentSep)
		}
		b.WriteString(escapeSegment(p.Key))
		b.WriteString(pairSep)
		b.WriteString(escapeSegment(p.Value))
	}
	return b.String()
}

var segmentEscaper = strings.NewReplacer("%", "%25", segmentSep, "%2F", pairSep, "%3D")

func escapeSegment(s string) string {
	return segmentEscaper.Replace(s)
}

// MarshalText 实现 encoding.TextMarshaler
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
