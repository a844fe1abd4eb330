package utils

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var exitFunc = os.Exit

// ShutdownContext 在收到 SIGINT/SIGTERM 时取消；关闭完成前的第二次信号直接退出进程
// 返回的 stop 需在关闭完成后调用，用于释放信号监听
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	ctx, stop, _ := watchShutdown(parent, c)
	return ctx, stop
}

// watchShutdown 监听信号通道，finished 在监听协程退出后关闭
func watchShutdown(parent context.Context, c chan os.Signal) (context.Context, context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	stopped := make(chan struct{})
	finished := make(chan struct{})

	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopped) })
		cancel()
	}

	go func() {
		defer close(finished)
		defer signal.Stop(c)

		select {
		case <-c:
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-c:
			exitFunc(1)
		case <-stopped:
		}
	}()

	return ctx, stop, finished
}

// OnReload 每次收到 SIGHUP 调用 fn，直到 ctx 结束
func OnReload(ctx context.Context, fn func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP)
	go func() {
		defer signal.Stop(c)
		for {
			select {
			case <-c:
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()
}
