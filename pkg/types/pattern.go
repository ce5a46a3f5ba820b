package types

import "fmt"

// Wildcard 模式中匹配任意值的占位符
const Wildcard = "*"

// Pattern Selector 匹配模式
//
// 与 Selector 结构相同，值可以是 Wildcard。默认要求键集合与顺序完全一致；
// 前缀模式只要求模式的各段是 Selector 的前导段。
type Pattern struct {
	pairs  []Pair
	prefix bool
}

// NewPattern 构造精确匹配模式
func NewPattern(pairs ...Pair) (Pattern, error) {
	if err := validatePairs(pairs); err != nil {
		return Pattern{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	cp := make([]Pair, len(pairs))
	copy(cp, pairs)
	return Pattern{pairs: cp}, nil
}

// MustPattern 同 NewPattern，失败时 panic
func MustPattern(pairs ...Pair) Pattern {
	p, err := NewPattern(pairs...)
	if err != nil {
		panic(err)
	}
	return p
}

// PatternOf 把 Selector 转为精确匹配模式
func PatternOf(s Selector) Pattern {
	return Pattern{pairs: s.pairs}
}

// PrefixOf 把 Selector 转为前缀匹配模式
func PrefixOf(s Selector) Pattern {
	return Pattern{pairs: s.pairs, prefix: true}
}

// AnyPattern 匹配所有 Selector
func AnyPattern() Pattern {
	return Pattern{prefix: true}
}

// Prefix 返回前缀匹配版本
func (p Pattern) Prefix() Pattern {
	return Pattern{pairs: p.pairs, prefix: true}
}

// IsPrefix 是否前缀匹配
func (p Pattern) IsPrefix() bool {
	return p.prefix
}

// Pairs 返回模式段的副本
func (p Pattern) Pairs() []Pair {
	out := make([]Pair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// Match 判断 Selector 是否匹配
func (p Pattern) Match(s Selector) bool {
	if p.prefix {
		if len(p.pairs) > len(s.pairs) {
			return false
		}
	} else if len(p.pairs) != len(s.pairs) {
		return false
	}
	for i, want := range p.pairs {
		got := s.pairs[i]
		if got.Key != want.Key {
			return false
		}
		if want.Value != Wildcard && got.Value != want.Value {
			return false
		}
	}
	return true
}

// String 返回模式文本形式
func (p Pattern) String() string {
	s := Selector{pairs: p.pairs}.String()
	if p.prefix {
		if s == "" {
			return "**"
		}
		return s + segmentSep + "**"
	}
	return s
}

// Matches 判断 s 是否匹配模式 p
func (s Selector) Matches(p Pattern) bool {
	return p.Match(s)
}
