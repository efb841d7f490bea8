package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/nicktill/ntk-tracker/pkg/logging"
)

// SupervisorConfig tunes restart behaviour.
type SupervisorConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultSupervisorConfig matches suture's defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// NewSupervisor creates the root supervisor. Service restarts, panics and
// backoffs are logged through zerolog.
func NewSupervisor(name string, cfg SupervisorConfig) *suture.Supervisor {
	log := logging.Component("supervisor")
	return suture.New(name, suture.Spec{
		EventHook:        eventHook(log),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

func eventHook(log zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			ev = log.Error()
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server under the supervisor.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. Shutdown waits up to shutdownTimeout for
// in-flight requests.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve blocks until ctx is cancelled or the server fails.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }
