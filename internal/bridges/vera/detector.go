package vera

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/metrics"
)

// Message is the event emitted for a changed device state.
type Message struct {
	Room   string  `json:"room"`
	Device string  `json:"device"`
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
}

// JSON encodes the message with non-ASCII characters kept as UTF-8.
func (m Message) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Logger interface for optional logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventPublisher receives messages for the message bus.
type EventPublisher interface {
	Publish(msg Message) bool
}

// EventSink receives messages for the HTTP sink. Deliver must not block.
type EventSink interface {
	Deliver(msg Message)
}

// DetectorOptions holds the collaborators of a Detector.
type DetectorOptions struct {
	// Directory resolves device ids. Required.
	Directory *Directory

	// Filter is the event allow-list. A nil filter rejects every event.
	Filter *Filter

	// RawDedup suppresses bursts of identical raw values. Required.
	RawDedup *DedupCache

	// Exporter publishes to the message bus. Optional.
	Exporter EventPublisher

	// Sink pushes to the HTTP sink. Optional.
	Sink EventSink

	// Logger is optional structured logger.
	Logger Logger
}

// lastKey identifies one variable of one device.
type lastKey struct {
	device   ID
	variable string
}

// normalized is a normalizer result; ok is false for unconvertible input.
type normalized struct {
	value float64
	ok    bool
}

// Detector turns status reports into event messages.
//
// For every tracked variable it applies, in order: raw-value dedup,
// directory lookup, filter, last-value suppression, normalization. The
// resulting message goes to both the sink and the exporter.
//
// Thread Safety: Process may be called concurrently; shared tables are
// lock-protected.
type Detector struct {
	dir      *Directory
	filter   *Filter
	raw      *DedupCache
	exporter EventPublisher
	sink     EventSink
	logger   Logger

	lastMu sync.Mutex
	last   map[lastKey]normalized
}

// NewDetector creates a detector.
func NewDetector(opts DetectorOptions) (*Detector, error) {
	if opts.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if opts.RawDedup == nil {
		return nil, fmt.Errorf("raw dedup cache is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Detector{
		dir:      opts.Directory,
		filter:   opts.Filter,
		raw:      opts.RawDedup,
		exporter: opts.Exporter,
		sink:     opts.Sink,
		logger:   logger,
		last:     make(map[lastKey]normalized),
	}, nil
}

// Process runs every device of doc through the pipeline and returns the
// number of messages emitted. A failure on one device never stops the
// others.
func (d *Detector) Process(doc *StatusDocument) int {
	if doc == nil {
		return 0
	}
	emitted := 0
	for _, dev := range doc.Devices {
		emitted += d.processDevice(dev)
	}
	if emitted > 0 {
		d.logger.Info("sent status changes", "count", emitted)
	}
	return emitted
}

func (d *Detector) processDevice(dev StatusDevice) (emitted int) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("status processing panic recovered", "device_id", dev.ID, "panic", r)
		}
	}()

	if dev.Err != nil {
		d.logger.Error("skipping malformed status entry", "device_id", dev.ID, "error", dev.Err)
		return 0
	}

	for _, sv := range dev.States {
		if sv.Variable == "" || !sv.Value.Present() || !IsTracked(sv.Variable) {
			continue
		}
		msg, outcome := d.evaluate(dev.ID, sv)
		metrics.RecordRawEvent(outcome)
		if outcome != metrics.OutcomeEmitted {
			continue
		}
		d.deliver(msg)
		emitted++
	}
	return emitted
}

// evaluate applies the per-variable pipeline and reports its outcome.
func (d *Detector) evaluate(deviceID ID, sv StateVariable) (Message, string) {
	if d.raw.Seen(rawKey(deviceID, sv.Variable, sv.Value)) {
		d.logger.Debug("duplicate event filtered", "device_id", deviceID, "variable", sv.Variable, "value", sv.Value.String())
		return Message{}, metrics.OutcomeDuplicate
	}

	loc, ok := d.dir.Lookup(deviceID)
	if !ok {
		d.logger.Debug("device not in directory", "device_id", deviceID)
		return Message{}, metrics.OutcomeUnknownDevice
	}

	if !d.filter.Matches(loc.RoomName, loc.Device.Name) {
		return Message{}, metrics.OutcomeFiltered
	}

	value, valid := NormalizeValue(sv.Value, sv.Variable)
	if !d.recordLast(deviceID, sv.Variable, normalized{value: value, ok: valid}) {
		return Message{}, metrics.OutcomeUnchanged
	}
	if !valid {
		d.logger.Error("cannot normalize value", "device_id", deviceID, "variable", sv.Variable, "value", sv.Value.String())
		return Message{}, metrics.OutcomeInvalidValue
	}

	return Message{
		Room:   loc.RoomName,
		Device: loc.Device.Name,
		Type:   sv.Variable,
		Value:  value,
	}, metrics.OutcomeEmitted
}

// recordLast stores n as the last value of the variable and reports whether
// it differs from the value stored before.
func (d *Detector) recordLast(id ID, variable string, n normalized) bool {
	key := lastKey{device: id, variable: variable}

	d.lastMu.Lock()
	defer d.lastMu.Unlock()

	if prev, ok := d.last[key]; ok && prev == n {
		return false
	}
	d.last[key] = n
	return true
}

func (d *Detector) deliver(msg Message) {
	d.logger.Info("status change", "room", msg.Room, "device", msg.Device, "type", msg.Type, "value", msg.Value)
	if d.sink != nil {
		d.sink.Deliver(msg)
	}
	if d.exporter != nil {
		d.exporter.Publish(msg)
	}
}

// LastValue returns the last recorded value of a device variable. The
// second result is false when nothing was recorded or the last input could
// not be normalized.
func (d *Detector) LastValue(id ID, variable string) (float64, bool) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	n, ok := d.last[lastKey{device: id, variable: variable}]
	return n.value, ok && n.ok
}

// PruneLastValues forgets devices for which keep returns false.
func (d *Detector) PruneLastValues(keep func(ID) bool) int {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()

	removed := 0
	for key := range d.last {
		if !keep(key.device) {
			delete(d.last, key)
			removed++
		}
	}
	return removed
}

// rawKey is the raw-event dedup key "<deviceId>_<variable>_<value>".
func rawKey(id ID, variable string, v Value) string {
	return id.String() + "_" + variable + "_" + v.String()
}

// rawKeyDevice extracts the device id from a raw dedup key.
func rawKeyDevice(key string) (ID, bool) {
	head, _, found := strings.Cut(key, "_")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return ID(n), true
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
