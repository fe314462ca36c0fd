package vera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/metrics"
)

// Poller timing defaults.
const (
	defaultPollInterval = 2 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// Fetcher retrieves controller documents. *Client satisfies it.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*SnapshotDocument, error)
	FetchStatus(ctx context.Context) (*StatusDocument, error)
}

// Exporter is the connection lifecycle of the export publisher.
type Exporter interface {
	Connect()
	Disconnect()
	Sweep() int
}

// PollerOptions holds configuration for creating a poller.
type PollerOptions struct {
	Fetcher   Fetcher
	Directory *Directory
	Detector  *Detector
	RawDedup  *DedupCache

	// Exporter is connected once the directory is built and disconnected
	// when the loop ends. Optional.
	Exporter Exporter

	// PollInterval is the pause after a successful poll (default 2s).
	PollInterval time.Duration

	// ErrorBackoff is the pause after a failed poll (default 5s).
	ErrorBackoff time.Duration

	// RequestTimeout bounds each controller call (default 10s).
	RequestTimeout time.Duration

	// DirectoryRefresh rebuilds the directory this often; zero disables it.
	DirectoryRefresh time.Duration

	Logger Logger

	// Sleep and Now are injectable for tests.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// Poller runs the status polling loop.
//
// Stopping is cooperative: cancellation of the Run context is checked
// between iterations, so an in-flight fetch or pause completes first.
type Poller struct {
	opts    PollerOptions
	logger  Logger
	running atomic.Bool

	lastRefresh time.Time
}

// NewPoller creates a poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Fetcher == nil || opts.Directory == nil || opts.Detector == nil || opts.RawDedup == nil {
		return nil, fmt.Errorf("fetcher, directory, detector and raw dedup cache are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{opts: opts, logger: logger}, nil
}

// Run builds the directory and then polls until ctx is cancelled.
//
// Returns:
//   - error: ErrDirectoryUnavailable when the initial directory build
//     fails (the loop is not entered and nothing is retried), nil after
//     a cooperative stop
func (p *Poller) Run(ctx context.Context) error {
	if err := p.RefreshDirectory(ctx); err != nil {
		p.logger.Error("failed to build device directory", "error", err)
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	if p.opts.Exporter != nil {
		p.opts.Exporter.Connect()
		defer p.opts.Exporter.Disconnect()
	}

	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("starting status polling", "interval", p.opts.PollInterval)
	for ctx.Err() == nil {
		p.maybeRefresh(ctx)

		pause := p.opts.PollInterval
		if err := p.PollOnce(ctx); err != nil {
			p.logger.Error("status poll failed", "error", err)
			pause = p.opts.ErrorBackoff
		}
		p.sweep()
		p.opts.Sleep(pause)
	}
	p.logger.Info("status polling stopped")
	return nil
}

// Running reports whether the polling loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// PollOnce fetches one status report and hands it to the detector.
func (p *Poller) PollOnce(ctx context.Context) error {
	fetchCtx, cancel := p.requestContext(ctx)
	defer cancel()

	doc, err := p.opts.Fetcher.FetchStatus(fetchCtx)
	if err != nil {
		metrics.RecordPoll(metrics.ResultError)
		return err
	}
	metrics.RecordPoll(metrics.ResultSuccess)
	p.opts.Detector.Process(doc)
	return nil
}

// RefreshDirectory rebuilds the directory from a fresh snapshot and drops
// cached state of devices that are no longer present.
func (p *Poller) RefreshDirectory(ctx context.Context) error {
	fetchCtx, cancel := p.requestContext(ctx)
	defer cancel()

	doc, err := p.opts.Fetcher.FetchSnapshot(fetchCtx)
	if err != nil {
		return err
	}
	if _, err := p.opts.Directory.Build(doc); err != nil {
		return err
	}
	p.lastRefresh = p.opts.Now()

	rooms, devices := p.opts.Directory.Size()
	metrics.SetDirectorySize(rooms, devices)

	prunedValues := p.opts.Detector.PruneLastValues(p.opts.Directory.Contains)
	prunedKeys := p.opts.RawDedup.Prune(func(key string) bool {
		id, ok := rawKeyDevice(key)
		return ok && p.opts.Directory.Contains(id)
	})
	p.logger.Info("device directory built", "rooms", rooms, "devices", devices,
		"pruned_values", prunedValues, "pruned_keys", prunedKeys)
	return nil
}

// maybeRefresh rebuilds the directory when the refresh interval elapsed.
// A failed refresh keeps the current directory.
func (p *Poller) maybeRefresh(ctx context.Context) {
	every := p.opts.DirectoryRefresh
	if every <= 0 || p.opts.Now().Sub(p.lastRefresh) < every {
		return
	}
	if err := p.RefreshDirectory(ctx); err != nil {
		p.logger.Warn("directory refresh failed, keeping current directory", "error", err)
		p.lastRefresh = p.opts.Now()
	}
}

func (p *Poller) sweep() {
	p.opts.RawDedup.Sweep()
	if p.opts.Exporter != nil {
		p.opts.Exporter.Sweep()
	}
}

// requestContext bounds a controller call by the request timeout. Stopping
// the poller does not cut short a call already in flight.
func (p *Poller) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.opts.RequestTimeout)
}
