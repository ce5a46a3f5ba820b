package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceState_Transitions(t *testing.T) {
	assert.True(t, StatePending.CanTransition(StateStarting))
	assert.True(t, StatePending.CanTransition(StateFailed))
	assert.True(t, StateStarting.CanTransition(StateActive))
	assert.True(t, StateActive.CanTransition(StateFailed))
	assert.True(t, StateStopping.CanTransition(StateStopped))
	assert.True(t, StateFailed.CanTransition(StatePending))

	assert.False(t, StatePending.CanTransition(StateActive))
	assert.False(t, StateStopped.CanTransition(StateActive))
	assert.False(t, StateActive.CanTransition(StatePending))

	assert.Equal(t, "active", StateActive.String())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateStarting.IsTerminal())
}

func TestRestartPolicy_NextDelay(t *testing.T) {
	fixed := RestartPolicy{Mode: RestartFixedDelay, Delay: time.Second}
	assert.Equal(t, time.Second, fixed.NextDelay(1))
	assert.Equal(t, time.Second, fixed.NextDelay(7))

	backoff := RestartPolicy{Mode: RestartBackoff, Delay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, backoff.NextDelay(1))
	assert.Equal(t, 2*time.Second, backoff.NextDelay(2))
	assert.Equal(t, 4*time.Second, backoff.NextDelay(3))
	assert.Equal(t, 5*time.Second, backoff.NextDelay(4))
	assert.Equal(t, 5*time.Second, backoff.NextDelay(50))

	none := RestartPolicy{}
	assert.Equal(t, time.Duration(0), none.NextDelay(1))
	assert.False(t, none.Allows(1))

	limited := RestartPolicy{Mode: RestartFixedDelay, MaxRestarts: 2}
	assert.True(t, limited.Allows(2))
	assert.False(t, limited.Allows(3))
}

func TestParseRestartMode(t *testing.T) {
	for in, want := range map[string]RestartMode{
		"":            RestartNone,
		"none":        RestartNone,
		"fixed-delay": RestartFixedDelay,
		"Backoff":     RestartBackoff,
	} {
		got, err := ParseRestartMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRestartMode("sometimes")
	assert.Error(t, err)
}

func TestActionError_Unwrap(t *testing.T) {
	root := errors.New("kicked")
	err := error(&ActionError{Platform: "irc", Kind: "message.send", Code: "404", Err: root})

	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "[404]")

	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "irc", ae.Platform)
}

func TestCapabilities(t *testing.T) {
	caps := NewCapabilities([]ActionKind{"message.send", "member.kick"}, []string{"land", "member"})
	assert.True(t, caps.CanAct("message.send"))
	assert.False(t, caps.CanAct("message.edit"))
	assert.True(t, caps.HasSegment("member"))
	assert.Equal(t, []ActionKind{"member.kick", "message.send"}, caps.Actions())
	assert.Equal(t, []string{"land", "member"}, caps.Segments())

	var zero Capabilities
	assert.False(t, zero.CanAct("message.send"))
}

func TestAttributes_Pick(t *testing.T) {
	attrs := Attributes{"display_name": "Alice", "avatar": "a.png"}
	assert.Equal(t, Attributes{"display_name": "Alice"}, attrs.Pick("display_name", "missing"))
	assert.Equal(t, attrs, attrs.Pick())

	name, ok := attrs.String("display_name")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)
}
