package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// TestModule 测试 Fx 模块提供总线与分发器
func TestModule(t *testing.T) {
	var (
		bus pkgif.EventBus
		d   pkgif.Dispatcher
	)

	app := fxtest.New(t,
		fx.Supply(&Config{ObservationBuffer: 8}),
		Module,
		fx.Populate(&bus, &d),
	)
	app.RequireStart()

	require.NotNil(t, bus)
	require.NotNil(t, d)

	src, err := d.Claim("svc")
	require.NoError(t, err)

	app.RequireStop()

	// 停止后分发器已关闭
	_, err = src.Emit("x", alice, nil)
	assert.ErrorIs(t, err, types.ErrBusClosed)
}
