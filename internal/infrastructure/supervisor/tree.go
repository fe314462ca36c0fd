// Package supervisor runs the bridge's long-lived services under a suture
// supervisor tree.
//
// A service that fails is restarted with backoff. Shutdown waits for every
// service up to the configured timeout; the status poller checks for
// cancellation only between cycles, so the default timeout covers one
// controller request plus one pause.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 20s
	ShutdownTimeout time.Duration
}

// Tree is the supervisor tree of the bridge.
type Tree struct {
	root   *suture.Supervisor
	config TreeConfig
}

// NewTree creates a supervisor tree logging lifecycle events to logger.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 20 * time.Second
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	root := suture.New("verabridge", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	})
	return &Tree{root: root, config: config}
}

// Add registers a service. Services added before Serve start with it.
func (t *Tree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Serve runs the tree and blocks until ctx is cancelled.
// A clean shutdown returns nil.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.root.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// UnstoppedServiceReport lists services that outlived the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// RunFunc is the body of a supervised service.
type RunFunc func(ctx context.Context) error

// Service adapts a RunFunc to suture.Service.
//
// An error matching one of the permanent errors stops the service for good
// instead of restarting it.
type Service struct {
	name      string
	run       RunFunc
	permanent []error
	logger    *slog.Logger
}

// NewService wraps run as a named service.
func NewService(name string, run RunFunc, logger *slog.Logger, permanent ...error) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{name: name, run: run, permanent: permanent, logger: logger}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	err := s.run(ctx)
	for _, target := range s.permanent {
		if err != nil && errors.Is(err, target) {
			s.logger.Error("service stopped permanently", "service", s.name, "error", err)
			return suture.ErrDoNotRestart
		}
	}
	return err
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return s.name
}
