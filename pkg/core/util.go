package core

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

var startedEvent = sync.Once{}
var stoppingEvent = sync.Once{}

func NotifyStarted() {
	startedEvent.Do(func() {
		Bus.Publish(EventStarted)
		zap.L().Info("service started.")
	})
}

// NotifyStopping publishes EventStopping once and waits for async subscribers.
func NotifyStopping() {
	stoppingEvent.Do(func() {
		Bus.Publish(EventStopping)
		Bus.WaitAsync()
		zap.L().Info("service stopped")
	})
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is done, then runs NotifyStopping.
func WaitForSignal(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	zap.L().Info("app exiting...")
	NotifyStopping()
}

func PrintVersion() {
	zap.L().Info("Application info:", zap.String("appName", AppName),
		zap.String("verion", Version),
		zap.String("Go version", runtime.Version()),
	)
}
