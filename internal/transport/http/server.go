// Package httptransport builds the HTTP server and the middleware chain shared by the API.
package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// ServerConfig holds the listen address and timeouts of a server.
type ServerConfig struct {
	Address       string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration
}

// DefaultServerConfig returns the timeouts used by the api and the worker metrics endpoints.
func DefaultServerConfig(address string) ServerConfig {
	return ServerConfig{
		Address:       address,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   60 * time.Second,
		ShutdownGrace: 15 * time.Second,
	}
}

// NewServer wraps handler in an *http.Server configured from cfg.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Serve accepts connections on ln until ctx is done, then drains in-flight requests
// for at most grace. It returns nil after a clean shutdown.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on cfg.Address and runs Serve.
func ListenAndServe(ctx context.Context, cfg ServerConfig, handler http.Handler) error {
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}
	return Serve(ctx, NewServer(cfg, handler), ln, cfg.ShutdownGrace)
}

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so the first argument is the outermost wrapper.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
