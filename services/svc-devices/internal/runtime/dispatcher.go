package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type ServiceCtx struct {
	deps              *dependencies
	dependencyOptions []DependencyOption
	shutdownChannel   chan os.Signal
	serverCtx         context.Context
	serverStopFunc    context.CancelFunc
	serverReady       chan struct{}
	readyOnce         sync.Once
}

func New(opts ...ServiceOption) *ServiceCtx {
	ctx := &ServiceCtx{
		shutdownChannel: make(chan os.Signal, 1),
	}

	for _, opt := range opts {
		opt(ctx)
	}

	return ctx
}

// Run builds every dependency, serves until a termination signal arrives or
// a server fails, then shuts down gracefully.
func (c *ServiceCtx) Run() error {
	if err := c.build(); err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	c.startService()
	c.shutdownHook()
	c.monitorConfigChanges()

	// Waits for one of the following shutdown conditions to happen.
	select {
	case <-c.serverCtx.Done():
	case <-c.shutdownChannel:
	}

	return c.shutdown()
}

func (c *ServiceCtx) build() error {
	c.serverCtx, c.serverStopFunc = context.WithCancel(context.Background())

	var err error

	c.deps, err = initializeDependencies(c.serverCtx, c.dependencyOptions...)
	if err != nil {
		c.serverStopFunc()

		return fmt.Errorf("initializing dependencies: %w", err)
	}

	return nil
}

func (c *ServiceCtx) startService() {
	infra := c.deps.infra

	c.serveHTTP("public http", infra.publicHTTPServer, true)
	c.serveHTTP("admin http", infra.adminHTTPServer, false)

	if infra.grpcServer == nil {
		return
	}

	cfg := c.deps.config.GRPCServer

	go infra.healthReporter.Run(c.serverCtx, cfg.HealthInterval)

	go func() {
		addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			c.fail("grpc", fmt.Errorf("listening on %s: %w", addr, err))

			return
		}

		infra.logger.Info().Str("address", addr).Msg("starting the gRPC server")

		if err := infra.grpcServer.Serve(listener); err != nil {
			c.fail("grpc", err)
		}
	}()
}

func (c *ServiceCtx) serveHTTP(name string, server *http.Server, signalsReady bool) {
	if server == nil {
		return
	}

	go func() {
		listener, err := net.Listen("tcp", server.Addr)
		if err != nil {
			c.fail(name, fmt.Errorf("listening on %s: %w", server.Addr, err))

			return
		}

		c.deps.infra.logger.Info().
			Str("address", listener.Addr().String()).
			Msgf("starting the %s server", name)

		if signalsReady {
			c.markReady()
		}

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.fail(name, err)
		}
	}()
}

// fail stops the service when one of its servers cannot keep serving.
func (c *ServiceCtx) fail(server string, err error) {
	c.deps.infra.logger.Error().Err(err).Str("server", server).Msg("server stopped unexpectedly")
	c.markReady()
	c.serverStopFunc()
}

func (c *ServiceCtx) markReady() {
	if c.serverReady == nil {
		return
	}

	c.readyOnce.Do(func() {
		close(c.serverReady)
	})
}

func (c *ServiceCtx) monitorConfigChanges() {
	if c.deps.configLoader == nil {
		return
	}

	reloadErrors := c.deps.configLoader.WatchConfigSignals(c.serverCtx)
	go func() {
		for err := range reloadErrors {
			if err != nil {
				c.deps.infra.logger.Error().Err(err).Msg("config reload failed")
			} else {
				c.deps.infra.logger.Info().Msg("config reloaded successfully")
			}
		}
	}()
}

func (c *ServiceCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
}

func (c *ServiceCtx) shutdown() error {
	c.deps.infra.logger.Info().Msg("shutting down service...")

	signal.Stop(c.shutdownChannel)

	// Cancel context that underlying processes would start cleanup.
	c.serverStopFunc()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.deps.config.App.ShutdownTimeout)
	defer cancel()

	err := c.cleanup(shutdownCtx)

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		c.deps.infra.logger.Error().Msg("graceful shutdown timed out")
	}

	c.deps.infra.logger.Info().Msg("service shutdown complete")

	return err
}

// WaitForServer blocks until the public http server is listening.
// If you want to be notified when the server is running,
// make sure you instantiate your server with WithWaitingForServer.
//
// Example:
//
//	srv := runtime.New(WithWaitingForServer())
//	go func() {
//		_ = srv.Run()
//	}()
//
//	srv.WaitForServer()
func (c *ServiceCtx) WaitForServer() {
	if c.serverReady != nil {
		<-c.serverReady
	}
}

func (c *ServiceCtx) cleanup(shutdownCtx context.Context) error {
	c.deps.infra.logger.Info().Msg("cleaning up resources...")

	errs := c.deps.release(shutdownCtx)
	for _, err := range errs {
		c.deps.infra.logger.Error().
			Err(err).
			Msg("failed to shutdown the resource gracefully")
	}

	c.deps.infra.logger.Info().Msg("cleanup completed")

	return errors.Join(errs...)
}
