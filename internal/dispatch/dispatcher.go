// Package dispatch routes MQTT commands addressed to the bridge.
//
// Two topics are handled:
//   - client/con_ip announces a new sink address
//   - read/data with payload "vera" requests a snapshot pushed to the
//     sink's state port
//
// Handler failures are logged and swallowed so a bad message never reaches
// the MQTT router.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/vera-bridge/internal/snapshot"
)

// snapshotKeyword is the data request payload that selects the controller.
const snapshotKeyword = "vera"

// defaultRequestTimeout bounds one on-demand snapshot (fetch and push).
const defaultRequestTimeout = 60 * time.Second

// Subscriber registers topic handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// AddressUpdater applies sink address announcements. *sink.Address satisfies it.
type AddressUpdater interface {
	UpdateFromPayload(ctx context.Context, payload []byte) (bool, error)
	Current() string
}

// SnapshotFetcher reads the full controller document.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*vera.SnapshotDocument, error)
}

// StatePusher sends a body to a sink port. *sink.Pusher satisfies it.
type StatePusher interface {
	Push(ctx context.Context, port int, body any) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Dispatcher.
type Options struct {
	Address   AddressUpdater
	Snapshots SnapshotFetcher
	Pusher    StatePusher

	// StatePort receives on-demand snapshot reports.
	StatePort int

	// QoS used for both subscriptions.
	QoS byte

	// RequestTimeout bounds one snapshot request (default 60s).
	RequestTimeout time.Duration

	Logger Logger

	// Now is the clock stamped into reports (default time.Now).
	Now func() time.Time
}

// Dispatcher handles bridge command topics.
type Dispatcher struct {
	addr      AddressUpdater
	snapshots SnapshotFetcher
	pusher    StatePusher
	statePort int
	qos       byte
	timeout   time.Duration
	logger    Logger
	now       func() time.Time
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		addr:      opts.Address,
		snapshots: opts.Snapshots,
		pusher:    opts.Pusher,
		statePort: opts.StatePort,
		qos:       opts.QoS,
		timeout:   opts.RequestTimeout,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if d.timeout <= 0 {
		d.timeout = defaultRequestTimeout
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Start subscribes to the command topics.
func (d *Dispatcher) Start(sub Subscriber) error {
	topics := mqtt.Topics{}
	if err := sub.Subscribe(topics.SinkIP(), d.qos, d.HandleSinkIP); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topics.SinkIP(), err)
	}
	if err := sub.Subscribe(topics.DataRequest(), d.qos, d.HandleDataRequest); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topics.DataRequest(), err)
	}
	d.logger.Info("command dispatcher subscribed", "topics", []string{topics.SinkIP(), topics.DataRequest()})
	return nil
}

// HandleSinkIP applies a sink address announcement. It always returns nil.
func (d *Dispatcher) HandleSinkIP(_ string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	changed, err := d.addr.UpdateFromPayload(ctx, payload)
	switch {
	case err != nil && changed:
		d.logger.Error("sink address changed but not persisted", "ip", d.addr.Current(), "error", err)
	case err != nil:
		d.logger.Warn("ignoring sink address announcement", "payload", string(payload), "error", err)
	case changed:
		d.logger.Info("sink address updated", "ip", d.addr.Current())
	default:
		d.logger.Debug("sink address unchanged", "ip", d.addr.Current())
	}
	return nil
}

// HandleDataRequest runs an on-demand snapshot when the payload names the
// controller. Other payloads are ignored. It always returns nil.
func (d *Dispatcher) HandleDataRequest(_ string, payload []byte) error {
	if !strings.EqualFold(strings.TrimSpace(string(payload)), snapshotKeyword) {
		d.logger.Debug("ignoring data request", "payload", string(payload))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.pushSnapshot(ctx); err != nil {
		d.logger.Error("snapshot request failed", "error", err)
	}
	return nil
}

func (d *Dispatcher) pushSnapshot(ctx context.Context) error {
	doc, err := d.snapshots.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetching snapshot: %w", err)
	}

	report := snapshot.Normalize(doc, d.now())
	if err := d.pusher.Push(ctx, d.statePort, report); err != nil {
		return fmt.Errorf("pushing snapshot: %w", err)
	}

	d.logger.Info("snapshot pushed",
		"devices", report.Summary.TotalDevices,
		"rooms", report.Summary.TotalRooms,
		"port", d.statePort,
	)
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
