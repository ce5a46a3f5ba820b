package chatcore

import (
	"io"
	"os"

	"github.com/dep2p/go-chatcore/config"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
)

// SetupLogging 按配置设置全局日志
//
// 环境变量 CHATCORE_LOG_LEVEL 与 CHATCORE_LOG_FORMAT 优先于配置。
// w 为 nil 时输出到 os.Stderr。
func SetupLogging(cfg config.LogConfig, w io.Writer) {
	lc := log.ConfigFromEnv()
	if os.Getenv(log.EnvLogLevel) == "" {
		if level, ok := log.ParseLevel(cfg.Level); ok {
			lc.DefaultLevel = level
		}
	}
	if os.Getenv(log.EnvLogFormat) == "" {
		lc.Format = log.ParseFormat(cfg.Format)
	}
	log.Setup(lc, w)
}
