package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-chatcore/pkg/types"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventPublished("irc-main", 3, time.Millisecond)
		m.SequenceAnomaly("irc-main", true)
		m.HandlerFailed("h", false)
		m.MetadataRequest(ResultHit)
		m.MetadataFetch(nil)
		m.MetadataEvicted()
		m.ServiceTransition("irc-main", types.StateActive)
		m.ServiceRestarted("irc-main")
		m.ActionExecuted("irc", "message.send", nil, time.Millisecond)
	})
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.EventPublished("irc-main", 2, time.Millisecond)
	m.EventPublished("irc-main", 0, time.Millisecond)
	m.SequenceAnomaly("irc-main", false)
	m.HandlerFailed("printer", true)
	m.MetadataFetch(errors.New("gone"))
	m.ServiceTransition("irc-main", types.StateFailed)
	m.ActionExecuted("irc", "message.send", errors.New("flood"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("irc-main")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDelivered.WithLabelValues("irc-main")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceAnomalies.WithLabelValues("irc-main", "gap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerFailures.WithLabelValues("printer", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetadataFetches.WithLabelValues(ResultError)))
	assert.Equal(t, float64(types.StateFailed), testutil.ToFloat64(m.ServiceState.WithLabelValues("irc-main")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("irc", "message.send", ResultError)))
}

func TestMetrics_RegisterTwiceReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.MetadataRequest(ResultHit)
	b.MetadataRequest(ResultHit)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.MetadataRequests.WithLabelValues(ResultHit)))
}

func TestModule_Provides(t *testing.T) {
	var m *Metrics
	app := fxtest.New(t,
		Module,
		fx.Populate(&m),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, m)
}

func TestModule_Disabled(t *testing.T) {
	var m *Metrics
	app := fxtest.New(t,
		fx.Supply(&Config{Enabled: false}),
		Module,
		fx.Populate(&m),
	)
	defer app.RequireStart().RequireStop()

	assert.Nil(t, m)
}
