package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook runs during graceful shutdown, before the HTTP server is
// drained. Hooks close the resources the handlers depend on: the render
// cache, the database pool.
type ShutdownHook func(ctx context.Context) error

// GracefulShutdown runs a server until an interrupt signal arrives, then
// drains it within the timeout.
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	signals []os.Signal
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook

	once    sync.Once
	done    chan struct{}
	doneErr error
}

// NewGracefulShutdown wraps the server with signal handling. A zero timeout
// defaults to 30 seconds.
func NewGracefulShutdown(server *Server, timeout time.Duration) *GracefulShutdown {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GracefulShutdown{
		server:  server,
		timeout: timeout,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		logger:  server.logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook adds a cleanup hook. Hooks run in registration order.
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Start serves until a shutdown signal or a server error.
func (gs *GracefulShutdown) Start() error {
	errChan := make(chan error, 1)
	go func() {
		if err := gs.server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, gs.signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		gs.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		return gs.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown drains the server and runs the hooks. Safe to call more than
// once; later calls wait for the first to finish.
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		gs.mu.Lock()
		hooks := make([]ShutdownHook, len(gs.hooks))
		copy(hooks, gs.hooks)
		gs.mu.Unlock()

		for _, hook := range hooks {
			if err := hook(ctx); err != nil {
				gs.logger.Warn("shutdown hook failed", zap.Error(err))
			}
		}

		if err := gs.server.Shutdown(ctx); err != nil {
			gs.doneErr = err
			gs.logger.Error("server shutdown failed", zap.Error(err))
		}
		close(gs.done)
	})

	<-gs.done
	return gs.doneErr
}
