package vera

import (
	"fmt"
	"sync"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client used by the export publisher.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Close() error
}

// Dialer opens a broker connection for the export publisher.
type Dialer func() (MQTTClient, error)

// ExportOptions holds configuration for creating an export publisher.
type ExportOptions struct {
	// Dial opens the broker connection on Connect. Required.
	Dial Dialer

	// Dedup suppresses repeats of (room, device, type). Required.
	Dedup *DedupCache

	// QoS for event publishes.
	QoS byte

	// Logger is optional structured logger.
	Logger Logger
}

// ExportPublisher publishes event messages to vera/events/{room}/{device}.
//
// Messages are dropped, never queued, while disconnected. Within the dedup
// window only the first message of a (room, device, type) is published,
// whatever its value.
//
// Thread Safety: All methods are safe for concurrent use.
type ExportPublisher struct {
	dial   Dialer
	dedup  *DedupCache
	qos    byte
	logger Logger

	mu        sync.RWMutex
	client    MQTTClient
	connected bool
}

// NewExportPublisher creates a disconnected export publisher.
func NewExportPublisher(opts ExportOptions) (*ExportPublisher, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if opts.Dedup == nil {
		return nil, fmt.Errorf("export dedup cache is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &ExportPublisher{
		dial:   opts.Dial,
		dedup:  opts.Dedup,
		qos:    opts.QoS,
		logger: logger,
	}, nil
}

// Connect opens the broker connection. It is a no-op when already
// connected; failures are logged and leave the publisher disconnected.
func (p *ExportPublisher) Connect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return
	}
	client, err := p.dial()
	if err != nil {
		p.logger.Error("export connection failed", "error", err)
		return
	}
	p.client = client
	p.connected = true
	p.logger.Info("export connected")
}

// Disconnect closes the broker connection. It is a no-op when not connected.
func (p *ExportPublisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return
	}
	if err := p.client.Close(); err != nil {
		p.logger.Error("export disconnect failed", "error", err)
	}
	p.client = nil
	p.connected = false
}

// Connected reports whether events can currently be published.
func (p *ExportPublisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// Publish sends msg to the message bus and reports whether it was published.
func (p *ExportPublisher) Publish(msg Message) bool {
	p.mu.RLock()
	client, connected := p.client, p.connected
	p.mu.RUnlock()

	if !connected || !client.IsConnected() {
		p.logger.Warn("MQTT not connected, skipping export", "room", msg.Room, "device", msg.Device)
		metrics.RecordExport(metrics.ResultDisconnected)
		return false
	}

	if p.dedup.Seen(exportKey(msg)) {
		p.logger.Debug("duplicate export filtered", "room", msg.Room, "device", msg.Device, "type", msg.Type)
		metrics.RecordExport(metrics.ResultDuplicate)
		return false
	}

	payload, err := msg.JSON()
	if err != nil {
		p.logger.Error("encoding export message", "error", err)
		metrics.RecordExport(metrics.ResultError)
		return false
	}

	topic := mqtt.Topics{}.DeviceEvent(msg.Room, msg.Device)
	if err := client.Publish(topic, payload, p.qos, false); err != nil {
		p.logger.Error("export publish failed", "topic", topic, "error", err)
		metrics.RecordExport(metrics.ResultError)
		return false
	}

	p.logger.Debug("event exported", "topic", topic)
	metrics.RecordExport(metrics.ResultSuccess)
	return true
}

// Sweep drops expired export dedup keys.
func (p *ExportPublisher) Sweep() int {
	return p.dedup.Sweep()
}

// exportKey is the export dedup key "<room>_<device>_<type>".
func exportKey(msg Message) string {
	return msg.Room + "_" + msg.Device + "_" + msg.Type
}
