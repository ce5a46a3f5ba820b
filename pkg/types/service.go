package types

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
//                              ServiceState
// ============================================================================

// ServiceState 服务生命周期状态
type ServiceState int

const (
	// StatePending 等待依赖就绪
	StatePending ServiceState = iota
	// StateStarting 正在启动，等待协议就绪信号
	StateStarting
	// StateActive 运行中
	StateActive
	// StateStopping 正在关闭
	StateStopping
	// StateStopped 已关闭
	StateStopped
	// StateFailed 启动或运行失败
	StateFailed
)

// String 返回状态字符串
func (s ServiceState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsTerminal 是否为不会自行变化的状态
func (s ServiceState) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// transitions 合法的状态迁移
//
// Failed/Stopped -> Pending 用于重启与单服务循环；
// Pending/Failed -> Stopped 用于全局关闭时收尾。
var transitions = map[ServiceState][]ServiceState{
	StatePending:  {StateStarting, StateFailed, StateStopped},
	StateStarting: {StateActive, StateFailed, StateStopping},
	StateActive:   {StateStopping, StateFailed},
	StateStopping: {StateStopped},
	StateStopped:  {StatePending},
	StateFailed:   {StatePending, StateStopped},
}

// CanTransition 判断迁移是否合法
func (s ServiceState) CanTransition(to ServiceState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ServiceStatus 服务状态单元中保存的值
type ServiceStatus struct {
	// State 当前状态
	State ServiceState

	// Err 进入 Failed 的原因；离开 Failed 后保留最近一次错误
	Err error

	// Since 进入当前状态的时间
	Since time.Time

	// Restarts 已自动重启次数
	Restarts int
}

// ============================================================================
//                              RestartPolicy
// ============================================================================

// RestartMode 重启策略
type RestartMode int

const (
	// RestartNone 失败后不重启
	RestartNone RestartMode = iota
	// RestartFixedDelay 固定延迟重启
	RestartFixedDelay
	// RestartBackoff 指数退避重启，延迟有上限
	RestartBackoff
)

// String 返回策略名
func (m RestartMode) String() string {
	switch m {
	case RestartNone:
		return "none"
	case RestartFixedDelay:
		return "fixed-delay"
	case RestartBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseRestartMode 解析策略名
func ParseRestartMode(s string) (RestartMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RestartNone, nil
	case "fixed-delay", "fixed":
		return RestartFixedDelay, nil
	case "backoff", "exponential-backoff", "exponential":
		return RestartBackoff, nil
	default:
		return RestartNone, fmt.Errorf("unknown restart policy %q", s)
	}
}

// RestartPolicy 服务失败后的重启策略
type RestartPolicy struct {
	// Mode 策略
	Mode RestartMode

	// Delay 固定延迟，或退避的初始延迟
	Delay time.Duration

	// MaxDelay 退避上限
	MaxDelay time.Duration

	// Multiplier 退避倍数，小于 1 时按 1 处理
	Multiplier float64

	// MaxRestarts 最大重启次数，0 表示不限
	MaxRestarts int
}

// NextDelay 返回第 attempt 次重启（从 1 开始）前的等待时间
func (p RestartPolicy) NextDelay(attempt int) time.Duration {
	switch p.Mode {
	case RestartFixedDelay:
		return p.Delay
	case RestartBackoff:
		if attempt <= 1 || p.Delay <= 0 {
			return p.Delay
		}
		mult := p.Multiplier
		if mult < 1.0 {
			mult = 1.0
		}
		delay := float64(p.Delay)
		for i := 1; i < attempt; i++ {
			delay *= mult
			if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
				return p.MaxDelay
			}
		}
		return time.Duration(delay)
	default:
		return 0
	}
}

// Allows 是否允许第 attempt 次重启
func (p RestartPolicy) Allows(attempt int) bool {
	if p.Mode == RestartNone {
		return false
	}
	return p.MaxRestarts <= 0 || attempt <= p.MaxRestarts
}
