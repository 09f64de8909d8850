package signal

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout bounds the whole shutdown sequence.
const ShutdownTimeout = 5 * time.Second

// NotifyContext 返回在收到 SIGINT/SIGTERM 时取消的 context
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// WaitForShutdown 阻塞到 ctx 结束（通常是收到退出信号），再在超时内执行优雅关闭
func WaitForShutdown(ctx context.Context, logger *zap.Logger, shutdownFunc func(ctx context.Context) error) error {
	<-ctx.Done()
	logger.Info("received shutdown signal", zap.NamedError("cause", context.Cause(ctx)))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- shutdownFunc(shutdownCtx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out", zap.Duration("timeout", ShutdownTimeout))
		return shutdownCtx.Err()
	}
}
