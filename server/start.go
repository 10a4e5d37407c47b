package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/relay4ai/mcp/server/extra"
	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/server/mcp/validators"
	"github.com/relay4ai/mcp/server/transport"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
	"go.uber.org/zap"
)

// Start builds and runs the MCP server with the provided options. It returns
// a channel reporting listener errors after startup; the server stops when
// ctx is cancelled.
func Start(ctx context.Context, logger *zap.Logger, cfg config.IConfig, options ...ServerOption) (
	<-chan error,
	error,
) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	listenAddr, err := cfg.ListenAddr()
	if err != nil {
		return nil, fmt.Errorf("failed to get listen address: %w", err)
	}

	sessionManager, err := mcp.NewManager(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	builder := &ServerBuilder{
		ctx:          ctx,
		logger:       logger,
		cfg:          cfg,
		listenAddr:   listenAddr,
		manager:      sessionManager,
		mux:          http.NewServeMux(),
		capabilities: make([]shared.IServerCapability, 0),
	}

	logger.Info("Applying server configuration options...")
	for _, option := range options {
		if err := option(builder); err != nil {
			return nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}
	// A server with no explicit capability still answers the handshake.
	if err := builder.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}
	logger.Info("Server options applied successfully.")

	sessionManager.AddValidator(validators.CreateDefaultValidators(cfg)...)
	logger.Info("Registering capabilities with session manager", zap.Int("count", len(builder.capabilities)))
	sessionManager.AddCapability(builder.capabilities...)

	transportInstance, err := transport.New(sessionManager, logger, cfg, builder.transportOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	transportInstance.RegisterHandlers(builder.mux)

	logger.Info("Registering status handler", zap.String("path", "/status"))
	builder.mux.HandleFunc("/status", extra.StatusHandler(cfg, sessionManager, logger))

	metrics := extra.NewMetrics(sessionManager)
	builder.mux.Handle("/metrics", metrics.Handler())
	if builder.runner != nil {
		builder.runner.SetStatusObserver(metrics.ObserveTaskStatus)
	}

	serverInstance, listenerErrChan, startErr := transport.StartHTTPServer(
		ctx,
		logger,
		cfg,
		metrics.Wrap(builder.mux),
		builder.listenAddr,
	)
	if startErr != nil {
		return nil, fmt.Errorf("failed to start HTTP server: %w", startErr)
	}

	go func() {
		select {
		case err, ok := <-listenerErrChan:
			if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server listener failed", zap.Error(err))
			} else {
				logger.Info("Server listener stopped.")
			}
		case <-ctx.Done():
			logger.Info("Shutdown signal received, stopping server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if builder.runner != nil {
				builder.runner.Shutdown()
			}
			sessionManager.CloseAllSessions()
			sessionManager.Stop()
			transportInstance.Shutdown()
			if builder.taskStore != nil {
				if err := builder.taskStore.Close(); err != nil {
					logger.Error("Error closing task store", zap.Error(err))
				}
			}
			transport.ShutdownHTTPServer(shutdownCtx, logger, serverInstance)
			logger.Info("Server stopped.")
		}
	}()

	return listenerErrChan, nil
}
