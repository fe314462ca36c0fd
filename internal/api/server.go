package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/logging"
)

// Server timeouts.
const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	readTimeout  = 5 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 120 * time.Second
)

// DirectoryView is the read side of the device directory.
type DirectoryView interface {
	Size() (rooms, devices int)
	Rooms() []vera.RoomEntry
}

// SnapshotFetcher reads the full controller document.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*vera.SnapshotDocument, error)
}

// Deps holds the dependencies required by the API server.
//
// The status funcs are optional; a nil func is reported as absent.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Directory DirectoryView
	Snapshots SnapshotFetcher
	Version   string

	// SinkIP returns the current sink address.
	SinkIP func() string

	// SinkBreaker returns the sink circuit breaker state.
	SinkBreaker func() string

	// MQTTConnected reports the command dispatcher connection.
	MQTTConnected func() bool

	// ExporterConnected reports the event export connection.
	ExporterConnected func() bool

	// PollerRunning reports whether the poll loop is active.
	PollerRunning func() bool

	// Now is the clock stamped into snapshot reports (default time.Now).
	Now func() time.Time
}

// Server is the local HTTP status API of the bridge.
//
// It implements suture.Service: Serve blocks until the context is cancelled
// and then shuts the listener down gracefully.
type Server struct {
	deps      Deps
	logger    *logging.Logger
	handler   http.Handler
	startTime time.Time
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Required dependencies (logger, directory, snapshot source)
//
// Returns:
//   - *Server: Configured server ready to serve
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		deps:      deps,
		logger:    deps.Logger.With("component", "api"),
		startTime: time.Now(),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address until ctx is cancelled.
//
// Returns:
//   - error: ctx.Err() after a clean shutdown, or the listener failure
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.deps.Config.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.deps.Config.Addr(), err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API server listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down API server: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "api"
}
