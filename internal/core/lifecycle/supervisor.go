package lifecycle

import (
	"context"
	"fmt"
	"time"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// ============================================================================
//                              supervisor
// ============================================================================

// exitReason 一个服务实例结束的原因
type exitReason int

const (
	// exitFailed 实例进入 Failed
	exitFailed exitReason = iota
	// exitCycled 实例被关闭并回到 Pending
	exitCycled
	// exitStopped 全局关闭，实例已 Stopped
	exitStopped
)

// instance 一次成功的 Protocol.Start
type instance struct {
	host    *host
	session pkgif.Session
}

// supervise 驱动单个服务的状态机，直到全局关闭
func (m *Manager) supervise(s *service) {
	defer m.wg.Done()
	defer close(s.done)
	defer func() {
		for _, cancel := range s.unwatch {
			cancel()
		}
	}()

	// attempt 连续失败次数，进入 Active 后清零
	attempt := 0
	for {
		depErr, stop := m.awaitDependencies(s)
		if stop {
			m.transition(s, types.StateStopped, nil)
			return
		}
		if depErr != nil {
			m.transition(s, types.StateFailed, depErr)
			if m.awaitRecovery(s) {
				return
			}
			continue
		}

		reason, stopErr := m.runInstance(s, &attempt)
		switch reason {
		case exitStopped:
			s.finalErr = stopErr
			return
		case exitCycled:
			continue
		}

		attempt++
		if m.awaitRestart(s, attempt) {
			return
		}
	}
}

// awaitDependencies 在 Pending 中等待所有依赖进入 Active
//
// 任一依赖处于 Failed 时返回 ErrDependencyFailed；stop 为 true 表示收到全局关闭。
func (m *Manager) awaitDependencies(s *service) (depErr error, stop bool) {
	for {
		if failed := s.failedDependency(); failed != "" {
			return fmt.Errorf("%w: %s depends on %s", types.ErrDependencyFailed, s.spec.ID, failed), false
		}
		if s.dependenciesActive() {
			return nil, false
		}

		select {
		case <-s.wake:
		case req := <-s.restartCh:
			// 已在 Pending
			req.ack()
		case <-s.stopCh:
			return nil, true
		}
	}
}

// awaitRecovery 因依赖失败而 Failed 时，等待依赖恢复
//
// 依赖失败不消耗重启次数。没有依赖处于 Failed 时回到 Pending。
// 返回 true 表示收到全局关闭，服务已 Stopped。
func (m *Manager) awaitRecovery(s *service) bool {
	for {
		if s.failedDependency() == "" {
			m.transition(s, types.StatePending, nil)
			return false
		}

		select {
		case <-s.wake:
		case req := <-s.restartCh:
			m.transition(s, types.StatePending, nil)
			req.ack()
			return false
		case <-s.stopCh:
			m.transition(s, types.StateStopped, nil)
			return true
		}
	}
}

// awaitRestart 在 Failed 中按重启策略等待
//
// 策略不允许再重启时一直等待手动 Restart 或全局关闭。
// 返回 true 表示收到全局关闭，服务已 Stopped。
func (m *Manager) awaitRestart(s *service, attempt int) bool {
	policy := s.spec.Restart

	var fire <-chan time.Time
	if policy.Allows(attempt) {
		delay := policy.NextDelay(attempt)
		logger.Info("服务将自动重启",
			"service", s.spec.ID,
			"attempt", attempt,
			"delay", delay)
		if delay <= 0 {
			now := make(chan time.Time, 1)
			now <- m.clock.Now()
			fire = now
		} else {
			timer := m.clock.Timer(delay)
			defer timer.Stop()
			fire = timer.C
		}
	} else if policy.Mode != types.RestartNone {
		logger.Warn("服务重启次数已用尽",
			"service", s.spec.ID,
			"maxRestarts", policy.MaxRestarts)
	}

	select {
	case <-fire:
		m.setState(s, types.StatePending, nil, true)
		return false
	case req := <-s.restartCh:
		m.transition(s, types.StatePending, nil)
		req.ack()
		return false
	case <-s.stopCh:
		m.transition(s, types.StateStopped, nil)
		return true
	}
}

// startResult Protocol.Start 的返回
type startResult struct {
	session pkgif.Session
	err     error
}

// runInstance 启动一个实例并等待它结束
//
// 启动超时从调用 Protocol.Start 之前开始计时，Start 本身阻塞也会超时。
// 返回 exitStopped 时 stopErr 为本次关闭的错误。
func (m *Manager) runInstance(s *service, attempt *int) (reason exitReason, stopErr error) {
	id := s.spec.ID
	m.transition(s, types.StateStarting, nil)

	var src pkgif.Source
	if m.dispatcher != nil {
		var err error
		if src, err = m.dispatcher.Claim(id); err != nil {
			m.transition(s, types.StateFailed, fmt.Errorf("claim event source %s: %w", id, err))
			return exitFailed, nil
		}
	}

	h := newHost(m, s, src)

	startTimeout := m.startTimeout(s)
	timer := m.clock.Timer(startTimeout)
	defer timer.Stop()
	timeoutErr := fmt.Errorf("%w: %s not ready after %s", types.ErrStartTimeout, id, startTimeout)

	started := make(chan startResult, 1)
	go func() {
		session, err := m.startProtocol(s, h)
		started <- startResult{session: session, err: err}
	}()

	var inst *instance
	select {
	case res := <-started:
		if res.err != nil {
			h.close()
			m.transition(s, types.StateFailed, fmt.Errorf("start %s: %w", id, res.err))
			return exitFailed, nil
		}
		inst = &instance{host: h, session: res.session}

	case <-timer.C:
		m.transition(s, types.StateFailed, timeoutErr)
		m.abandonStart(s, h, started)
		return exitFailed, nil

	case req := <-s.restartCh:
		m.transition(s, types.StateStopping, nil)
		m.transition(s, types.StateStopped, m.abandonStart(s, h, started))
		m.transition(s, types.StatePending, nil)
		req.ack()
		return exitCycled, nil

	case <-s.stopCh:
		m.transition(s, types.StateStopping, nil)
		err := m.abandonStart(s, h, started)
		m.transition(s, types.StateStopped, err)
		return exitStopped, err
	}

	ready := h.ready
	timeout := timer.C
	for {
		select {
		case <-ready:
			ready, timeout = nil, nil
			timer.Stop()
			if !s.dependenciesActive() {
				logger.Info("依赖在启动期间离开 Active，服务回到 Pending", "service", id)
				m.cycle(s, inst)
				m.transition(s, types.StatePending, nil)
				return exitCycled, nil
			}
			m.transition(s, types.StateActive, nil)
			*attempt = 0

		case err := <-h.failed:
			m.transition(s, types.StateFailed, err)
			m.stopInstance(s, inst)
			return exitFailed, nil

		case <-timeout:
			m.transition(s, types.StateFailed, timeoutErr)
			m.stopInstance(s, inst)
			return exitFailed, nil

		case <-s.wake:
			if s.dependenciesActive() {
				continue
			}
			logger.Info("依赖离开 Active，服务回到 Pending", "service", id)
			m.cycle(s, inst)
			m.transition(s, types.StatePending, nil)
			return exitCycled, nil

		case req := <-s.restartCh:
			m.cycle(s, inst)
			m.transition(s, types.StatePending, nil)
			req.ack()
			return exitCycled, nil

		case <-s.stopCh:
			return exitStopped, m.cycle(s, inst)
		}
	}
}

// abandonStart 放弃仍在进行的 Protocol.Start
//
// 取消实例上下文后最多等待 ShutdownTimeout。Start 在此期间成功返回时照常关闭会话；
// 超时后不再等待，晚到的会话由后台 goroutine 关闭。
func (m *Manager) abandonStart(s *service, h *host, started <-chan startResult) error {
	h.cancel()

	timeout := m.shutdownTimeout(s)
	timer := m.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case res := <-started:
		if res.err != nil {
			h.close()
			return nil
		}
		return m.stopInstance(s, &instance{host: h, session: res.session})

	case <-timer.C:
		h.close()
		logger.Warn("服务启动未响应取消，放弃等待",
			"service", s.spec.ID,
			"timeout", timeout)
		go func() {
			res := <-started
			if res.err == nil {
				m.stopInstance(s, &instance{host: h, session: res.session})
			}
		}()
		return fmt.Errorf("%w: %s start did not return after %s", types.ErrShutdownTimeout, s.spec.ID, timeout)
	}
}

// startProtocol 调用 Protocol.Start，panic 视为启动失败
func (m *Manager) startProtocol(s *service, h *host) (session pkgif.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("protocol start panicked: %v", r)
		}
	}()
	return s.spec.Protocol.Start(h.ctx, h)
}

// cycle 关闭实例：Stopping -> Stopped
func (m *Manager) cycle(s *service, inst *instance) error {
	m.transition(s, types.StateStopping, nil)
	err := m.stopInstance(s, inst)
	m.transition(s, types.StateStopped, err)
	return err
}

// stopInstance 调用 Protocol.Stop，超时后不再等待
func (m *Manager) stopInstance(s *service, inst *instance) error {
	defer inst.host.close()

	timeout := m.shutdownTimeout(s)
	ctx, cancel := m.clock.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("protocol stop panicked: %v", r)
			}
		}()
		done <- s.spec.Protocol.Stop(ctx, inst.session)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("服务关闭出错", "service", s.spec.ID, "error", err)
			return fmt.Errorf("stop %s: %w", s.spec.ID, err)
		}
		return nil
	case <-ctx.Done():
		logger.Warn("服务关闭超时，强制结束",
			"service", s.spec.ID,
			"timeout", timeout)
		return fmt.Errorf("%w: %s after %s", types.ErrShutdownTimeout, s.spec.ID, timeout)
	}
}
