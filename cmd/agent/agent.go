package agent

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/truenas-collector/cmd/server"
	"github.com/truenas-collector/pkg/config"
	"github.com/truenas-collector/pkg/link"
	"github.com/truenas-collector/pkg/logger"
	"github.com/truenas-collector/pkg/registers"
	"github.com/truenas-collector/pkg/signal"
	"github.com/truenas-collector/pkg/util"
)

func runServer(ctx context.Context, cfg *config.Config) error {
	// 1, 初始化日志
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// 2, banner
	target := link.DialConfig{Host: cfg.TrueNAS.Host, Path: cfg.TrueNAS.Path, UseTLS: cfg.TrueNAS.UseTLS}.URL()
	util.PrintBanner(os.Stdout, "truenas-collector", "blue", "target "+target)
	logger.Info("log initialization successful",
		zap.String("path", cfg.Log.Path),
		zap.String("level", cfg.Log.Level),
		zap.String("format", cfg.Log.Format))
	logger.Debug("configuration loaded",
		zap.String("config", cfgFile),
		zap.Strings("collectors", cfg.Monitor.Collectors.Enabled()))

	// 3, 组装 registry / supervisor / orchestrator
	rt, err := registers.InitPromRegistry(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx)
	defer stop()

	// 4, 连接监督器独立运行，退出时负责 drain
	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		if err := rt.Supervisor.Run(ctx); err != nil {
			logger.Error("link supervisor stopped", zap.Error(err))
		}
	}()

	// 5, 定时采集
	rt.Orchestrator.Start(ctx)

	// 6, HTTP
	httpServer := server.NewHTTPServer(cfg, log.Named("http"), rt.Registry, rt.Supervisor)
	if err := httpServer.Start(); err != nil {
		stop()
		<-linkDone
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	// 收到 SIGINT/SIGTERM 后 ctx 取消：监督器 drain，调度器停表
	return signal.WaitForShutdown(ctx, log, func(shutdownCtx context.Context) error {
		if err := rt.Orchestrator.Shutdown(shutdownCtx); err != nil {
			logger.Warn("collection did not stop in time", zap.Error(err))
		}
		select {
		case <-linkDone:
		case <-shutdownCtx.Done():
			logger.Warn("link supervisor did not drain in time")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server failed: %w", err)
		}
		logger.Info("all services shutdown successfully")
		return nil
	})
}
