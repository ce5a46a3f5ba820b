package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              构造
// ============================================================================

func TestNewSelector_RoundTrip(t *testing.T) {
	cases := [][]Pair{
		nil,
		{P("platform", "irc")},
		{P("platform", "irc"), P("land", "#chat"), P("member", "alice")},
		{P("a", ""), P("b", "x/y=z%"), P("c", "中文")},
	}
	for _, pairs := range cases {
		sel, err := NewSelector(pairs...)
		require.NoError(t, err)
		got := sel.Pairs()
		if len(pairs) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, pairs, got)
	}
}

func TestNewSelector_Malformed(t *testing.T) {
	_, err := NewSelector(P("platform", "irc"), P("", "x"))
	assert.ErrorIs(t, err, ErrMalformedSelector)

	_, err = NewSelector(P("land", "a"), P("land", "b"))
	assert.ErrorIs(t, err, ErrMalformedSelector)

	assert.Panics(t, func() { MustSelector(P("", "")) })
}

func TestSelector_PairsIsCopy(t *testing.T) {
	pairs := []Pair{P("platform", "irc"), P("land", "#chat")}
	sel := MustSelector(pairs...)

	pairs[0].Value = "changed"
	out := sel.Pairs()
	out[1].Value = "changed"

	assert.Equal(t, "irc", sel.Platform())
	v, _ := sel.Get("land")
	assert.Equal(t, "#chat", v)
}

// ============================================================================
//                              相等与哈希
// ============================================================================

func TestSelector_EqualAndHash(t *testing.T) {
	a := MustSelector(P("platform", "irc"), P("land", "#chat"))
	b := MustSelector(P("platform", "irc"), P("land", "#chat"))
	reordered := MustSelector(P("land", "#chat"), P("platform", "irc"))
	other := MustSelector(P("platform", "irc"), P("land", "#other"))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Key(), b.Key())

	assert.False(t, a.Equal(reordered))
	assert.False(t, a.Equal(other))
	assert.NotEqual(t, a.Key(), reordered.Key())
}

func TestSelector_KeyIsUnambiguous(t *testing.T) {
	a := MustSelector(P("ab", "c"))
	b := MustSelector(P("a", "bc"))
	assert.NotEqual(t, a.Key(), b.Key())
	assert.False(t, a.Equal(b))
}

// ============================================================================
//                              派生
// ============================================================================

func TestSelector_ExtendDoesNotMutate(t *testing.T) {
	base := MustSelector(P("platform", "irc"), P("land", "#chat"))

	alice, err := base.Extend("member", "alice")
	require.NoError(t, err)
	bob, err := base.Extend("member", "bob")
	require.NoError(t, err)

	assert.Equal(t, 2, base.Len())
	assert.Equal(t, "platform=irc/land=#chat/member=alice", alice.String())
	assert.Equal(t, "platform=irc/land=#chat/member=bob", bob.String())

	_, err = base.Extend("land", "#x")
	assert.ErrorIs(t, err, ErrMalformedSelector)
	_, err = base.Extend("", "x")
	assert.ErrorIs(t, err, ErrMalformedSelector)
}

func TestSelector_ParentAndPrefix(t *testing.T) {
	sel := MustSelector(P("platform", "irc"), P("land", "#chat"), P("member", "alice"))
	parent := sel.Parent()

	assert.Equal(t, "platform=irc/land=#chat", parent.String())
	assert.True(t, sel.HasPrefix(parent))
	assert.True(t, sel.HasPrefix(Selector{}))
	assert.False(t, parent.HasPrefix(sel))
	assert.Equal(t, "platform.land.member", sel.Path())

	last, ok := sel.Last()
	require.True(t, ok)
	assert.Equal(t, P("member", "alice"), last)
}

func TestSelector_Mixin(t *testing.T) {
	base := MustSelector(P("platform", "irc"), P("land", "#chat"), P("member", "alice"))

	got := MustSelector(P("member", "bob")).Mixin(base)
	assert.Equal(t, "platform=irc/land=#chat/member=bob", got.String())

	full := MustSelector(P("platform", "irc"), P("land", "#x"))
	assert.True(t, full.Mixin(base).Equal(full))

	msg := MustSelector(P("message", "42")).Mixin(base)
	assert.Equal(t, "platform=irc/land=#chat/member=alice/message=42", msg.String())
}

// ============================================================================
//                              文本形式
// ============================================================================

func TestParseSelector_RoundTrip(t *testing.T) {
	sel := MustSelector(P("platform", "irc"), P("land", "#chat"), P("x", "a/b=c%d"))
	parsed, err := ParseSelector(sel.String())
	require.NoError(t, err)
	assert.True(t, sel.Equal(parsed))

	empty, err := ParseSelector("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = ParseSelector("platform")
	assert.True(t, errors.Is(err, ErrMalformedSelector))
}

func TestSelector_TextMarshal(t *testing.T) {
	sel := MustSelector(P("platform", "irc"), P("member", "alice"))
	text, err := sel.MarshalText()
	require.NoError(t, err)

	var out Selector
	require.NoError(t, out.UnmarshalText(text))
	assert.True(t, sel.Equal(out))
}

// ============================================================================
//                              模式匹配
// ============================================================================

func TestPattern_Match(t *testing.T) {
	alice := MustSelector(P("platform", "irc"), P("land", "#chat"), P("member", "alice"))
	room := MustSelector(P("platform", "irc"), P("land", "#chat"))

	exact := PatternOf(alice)
	assert.True(t, alice.Matches(exact))
	assert.False(t, room.Matches(exact))

	wild := MustPattern(P("platform", "irc"), P("land", Wildcard), P("member", "alice"))
	assert.True(t, wild.Match(alice))

	reordered := MustPattern(P("land", "#chat"), P("platform", "irc"))
	assert.False(t, reordered.Match(room))

	prefix := MustPattern(P("platform", "irc")).Prefix()
	assert.True(t, prefix.Match(alice))
	assert.True(t, prefix.Match(room))
	assert.False(t, prefix.Match(MustSelector(P("platform", "matrix"))))

	assert.True(t, AnyPattern().Match(Selector{}))
	assert.True(t, AnyPattern().Match(alice))
	assert.True(t, PrefixOf(room).Match(alice))

	_, err := NewPattern(P("a", "1"), P("a", "2"))
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestPattern_String(t *testing.T) {
	assert.Equal(t, "**", AnyPattern().String())
	assert.Equal(t, "platform=irc/**", MustPattern(P("platform", "irc")).Prefix().String())
	assert.Equal(t, "platform=irc/land=*", MustPattern(P("platform", "irc"), P("land", Wildcard)).String())
}
