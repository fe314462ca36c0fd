package vera

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSink collects delivered messages.
type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSink) Deliver(msg Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *recordingSink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

// recordingExporter collects published messages.
type recordingExporter struct {
	recordingSink
}

func (e *recordingExporter) Publish(msg Message) bool {
	e.Deliver(msg)
	return true
}

// published is one call to mockMQTT.Publish.
type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// mockMQTT is a mock MQTT client.
type mockMQTT struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	messages   []published
	closed     int
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{topic, string(payload), qos, retained})
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.closed++
	return nil
}

func (m *mockMQTT) Messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.messages...)
}

// mockFetcher serves canned documents.
type mockFetcher struct {
	mu          sync.Mutex
	snapshot    *SnapshotDocument
	snapshotErr error
	status      *StatusDocument
	statusErr   error
	statusCalls int
	onStatus    func(call int)
}

func (f *mockFetcher) FetchSnapshot(context.Context) (*SnapshotDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.snapshotErr
}

func (f *mockFetcher) FetchStatus(context.Context) (*StatusDocument, error) {
	f.mu.Lock()
	f.statusCalls++
	call, hook := f.statusCalls, f.onStatus
	doc, err := f.status, f.statusErr
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return doc, err
}

// testSnapshotJSON has two rooms, a device in each, and one device whose
// room does not exist.
const testSnapshotJSON = `{
	"rooms": [
		{"id": 1, "name": "Nappali", "section": 1},
		{"id": 2, "name": "Konyha", "section": 1}
	],
	"devices": [
		{"id": 12, "name": "Lámpa", "category": 2, "room": 1},
		{"id": 13, "name": "Light 1", "category": 3, "room": 2},
		{"id": 14, "name": "Switch 1", "category": 3, "room": 2},
		{"id": 99, "name": "Orphan", "category": 3, "room": 77}
	],
	"scenes": [],
	"categories": [{"id": 2, "name": "Dimmable Light"}]
}`

func testSnapshot(t *testing.T) *SnapshotDocument {
	t.Helper()
	var doc SnapshotDocument
	if err := json.Unmarshal([]byte(testSnapshotJSON), &doc); err != nil {
		t.Fatalf("decoding test snapshot: %v", err)
	}
	return &doc
}

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	dir := NewDirectory()
	if _, err := dir.Build(testSnapshot(t)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return dir
}

// statusDoc builds a status document for one variable of one device.
func statusDoc(id ID, variable string, value Value) *StatusDocument {
	return &StatusDocument{Devices: []StatusDevice{{
		ID:     id,
		States: []StateVariable{{Variable: variable, Value: value}},
	}}}
}

func mustFilter(t *testing.T, config string) *Filter {
	t.Helper()
	f, err := ParseFilter(config)
	if err != nil {
		t.Fatalf("ParseFilter(%q) error = %v", config, err)
	}
	return f
}
