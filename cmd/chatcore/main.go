// Package main 提供 chatcore 命令行入口
//
// 按配置文件启动服务，每个平台使用进程内 loopback 协议，
// 把收到的事件与服务状态变化打印到标准输出。用于验证配置与依赖图。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	chatcore "github.com/dep2p/go-chatcore"
	"github.com/dep2p/go-chatcore/config"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/protocol/loopback"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var logger = log.Logger("chatcore/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖（日志级别、日志文件）
//   配置文件：服务、依赖与重启策略
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile = flag.String("config", "", "配置文件路径（.json / .yaml）")
	logLevel   = flag.String("log-level", "", "日志级别（debug/info/warn/error），覆盖配置文件")
	logFile    = flag.String("log", "", "日志文件路径（默认输出到 stderr）")

	stopTimeout = flag.Duration("stop-timeout", 30*time.Second, "关闭超时")
	checkOnly   = flag.Bool("check", false, "只验证配置文件")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatcore %s\n", chatcore.Version)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if *checkOnly {
		fmt.Printf("配置有效，%d 个服务\n", len(cfg.Services))
		return nil
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	protocols := protocolsFor(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Lifecycle.StartTimeout.Duration())
	defer cancel()

	logger.Info("启动 chatcore", "version", chatcore.Version, "services", len(cfg.Services))
	core, err := chatcore.Start(ctx,
		chatcore.WithConfig(cfg),
		chatcore.WithProtocol(protocols...),
	)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	sub, err := core.Subscribe(types.AnyPattern(), printEvent, pkgif.WithName("cmd/print"))
	if err != nil {
		core.Close()
		return err
	}
	defer sub.Close()

	stateSub, err := core.Observe(new(types.EvtServiceStateChanged))
	if err != nil {
		core.Close()
		return err
	}
	go printStates(stateSub)

	fmt.Println("chatcore 已启动，按 Ctrl+C 退出")
	waitForSignal()
	fmt.Println("\n正在关闭...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), *stopTimeout)
	defer stopCancel()
	err = core.Stop(stopCtx)
	stateSub.Close()
	return err
}

// loadConfig 加载配置文件，没有配置文件时使用单个 loopback 服务
func loadConfig() (*config.Config, error) {
	if *configFile == "" {
		cfg := config.NewConfig()
		cfg.Services = []config.ServiceConfig{{ID: "loopback-main", Platform: "loopback"}}
		return cfg, nil
	}
	return config.LoadFile(*configFile)
}

// protocolsFor 为配置中出现的每个平台创建 loopback 协议
func protocolsFor(cfg *config.Config) []pkgif.Protocol {
	seen := make(map[string]bool)
	var out []pkgif.Protocol
	for _, s := range cfg.Services {
		if seen[s.Platform] {
			continue
		}
		seen[s.Platform] = true
		out = append(out, loopback.New(s.Platform,
			loopback.WithActions(loopback.ActionSend, loopback.ActionKick)))
	}
	return out
}

// setupLogging 设置日志，返回关闭日志文件的函数
func setupLogging(cfg *config.Config) (func(), error) {
	lc := cfg.Log
	if *logLevel != "" {
		lc.Level = *logLevel
	}

	if *logFile == "" {
		chatcore.SetupLogging(lc, os.Stderr)
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(*logFile), 0750); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	file, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	chatcore.SetupLogging(lc, file)
	return func() { _ = file.Close() }, nil
}

func printEvent(evt types.Event) error {
	fmt.Printf("%s  %-20s %-18s %s\n",
		evt.Timestamp.Format("15:04:05.000"), evt.Source, evt.Kind, evt.Origin)
	return nil
}

func printStates(sub pkgif.Subscription) {
	for e := range sub.Out() {
		evt, ok := e.(types.EvtServiceStateChanged)
		if !ok {
			continue
		}
		if evt.Err != nil {
			fmt.Printf("服务 %s: %s -> %s (%v)\n", evt.ServiceID, evt.Old, evt.New, evt.Err)
			continue
		}
		fmt.Printf("服务 %s: %s -> %s\n", evt.ServiceID, evt.Old, evt.New)
	}
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
