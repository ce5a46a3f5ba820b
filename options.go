package chatcore

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/config"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	// protocols 以平台名为键，配置文件中的服务按 platform 引用
	protocols map[string]pkgif.Protocol

	// services 以代码注册的服务，排在配置文件的服务之后
	services []pkgif.ServiceSpec

	middlewares []pkgif.ActionMiddleware
	clock       clock.Clock
	registerer  prometheus.Registerer

	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{
		config:    config.NewConfig(),
		protocols: make(map[string]pkgif.Protocol),
	}
}

// WithConfig 使用配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config is nil", config.ErrInvalidConfig)
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithProtocol 注册协议实现，配置文件中的服务通过平台名找到它
func WithProtocol(protocols ...pkgif.Protocol) Option {
	return func(o *options) error {
		for _, p := range protocols {
			if p == nil || p.Name() == "" {
				return fmt.Errorf("%w: protocol without name", config.ErrInvalidConfig)
			}
			if _, ok := o.protocols[p.Name()]; ok {
				return fmt.Errorf("%w: %s", ErrProtocolExists, p.Name())
			}
			o.protocols[p.Name()] = p
		}
		return nil
	}
}

// WithService 以代码注册服务
func WithService(specs ...pkgif.ServiceSpec) Option {
	return func(o *options) error {
		o.services = append(o.services, specs...)
		return nil
	}
}

// WithMiddleware 追加全局动作中间件，先添加者在外层
func WithMiddleware(mw ...pkgif.ActionMiddleware) Option {
	return func(o *options) error {
		o.middlewares = append(o.middlewares, mw...)
		return nil
	}
}

// WithClock 替换时钟，测试中使用 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegisterer 指标注册到 reg，默认使用私有注册表
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithFxOptions 追加 fx 选项
//
// 用于向应用注入额外组件或在启动时调用自定义逻辑。
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
