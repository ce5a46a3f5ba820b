package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	userconfig "github.com/dep2p/go-chatcore/config"
	"github.com/dep2p/go-chatcore/internal/core/lifecycle"
	"github.com/dep2p/go-chatcore/internal/core/metadata"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/protocol/loopback"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// TestProvider_Convert 测试组件配置转换
func TestProvider_Convert(t *testing.T) {
	cfg := userconfig.NewConfig()
	cfg.Metadata.Capacity = 12
	cfg.Lifecycle.ShutdownTimeout = userconfig.Duration(3 * time.Second)

	p := NewProvider(cfg)
	assert.Equal(t, 12, p.Metadata().Capacity)
	assert.Equal(t, 3*time.Second, p.Lifecycle().ShutdownTimeout)
	assert.Equal(t, 64, p.EventBus().ObservationBuffer)
	assert.True(t, p.Metrics().Enabled)

	require.NoError(t, p.Metadata().Validate())
	require.NoError(t, p.Lifecycle().Validate())
}

// TestProvider_ServiceSpecs 测试服务描述组装
func TestProvider_ServiceSpecs(t *testing.T) {
	cfg := userconfig.NewConfig()
	cfg.Services = []userconfig.ServiceConfig{
		{
			ID:       "irc-main",
			Platform: "irc",
			Restart:  userconfig.RestartConfig{Policy: "backoff"},
			Settings: map[string]string{"server": "irc.example.org"},
		},
		{ID: "bridge", Platform: "irc", DependsOn: []string{"irc-main"}, StartTimeout: userconfig.Duration(time.Second)},
	}
	irc := loopback.New("irc")

	specs, err := NewProvider(cfg).ServiceSpecs(map[string]pkgif.Protocol{"irc": irc})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "irc-main", specs[0].ID)
	assert.Same(t, irc, specs[0].Protocol)
	assert.Equal(t, types.RestartBackoff, specs[0].Restart.Mode)
	assert.Equal(t, "irc.example.org", specs[0].Settings["server"])
	assert.Equal(t, []string{"irc-main"}, specs[1].DependsOn)
	assert.Equal(t, time.Second, specs[1].StartTimeout)

	_, err = NewProvider(cfg).ServiceSpecs(nil)
	assert.ErrorIs(t, err, userconfig.ErrInvalidConfig)
}

// TestModule 测试 fx 模块提供组件配置
func TestModule(t *testing.T) {
	cfg := userconfig.NewConfig()
	cfg.Metadata.Capacity = 7

	var (
		mc *metadata.Config
		lc *lifecycle.Config
	)
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&mc, &lc),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, 7, mc.Capacity)
	assert.Equal(t, 30*time.Second, lc.StartTimeout)
}

// TestModule_InvalidConfig 测试无效配置阻止启动
func TestModule_InvalidConfig(t *testing.T) {
	cfg := userconfig.NewConfig()
	cfg.Metadata.Capacity = -1

	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		Module(),
		fx.Invoke(func(*metadata.Config) {}),
	)
	assert.ErrorIs(t, app.Err(), userconfig.ErrInvalidConfig)
}
