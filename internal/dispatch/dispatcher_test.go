package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
	"github.com/nerrad567/vera-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/vera-bridge/internal/snapshot"
)

// =============================================================================
// Test doubles
// =============================================================================

type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	failOn   string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if topic == f.failOn {
		return mqtt.ErrNotConnected
	}
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

type fakeAddress struct {
	ip       string
	payloads []string
	changed  bool
	err      error
}

func (f *fakeAddress) UpdateFromPayload(_ context.Context, payload []byte) (bool, error) {
	f.payloads = append(f.payloads, string(payload))
	return f.changed, f.err
}

func (f *fakeAddress) Current() string { return f.ip }

type fakeFetcher struct {
	doc   *vera.SnapshotDocument
	err   error
	calls int
}

func (f *fakeFetcher) FetchSnapshot(context.Context) (*vera.SnapshotDocument, error) {
	f.calls++
	return f.doc, f.err
}

type push struct {
	port int
	body any
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []push
	err    error
}

func (f *fakePusher) Push(_ context.Context, port int, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{port: port, body: body})
	return f.err
}

func testDocument(t *testing.T) *vera.SnapshotDocument {
	t.Helper()
	var doc vera.SnapshotDocument
	raw := `{
		"rooms": [{"id": 1, "name": "Nappali", "section": 1}],
		"devices": [{"id": 12, "name": "Lámpa", "room": 1, "category": 2, "level": "40"}],
		"scenes": [],
		"categories": [{"id": 2, "name": "Dimmable Light"}]
	}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("decoding test document: %v", err)
	}
	return &doc
}

// =============================================================================
// Tests
// =============================================================================

func TestStart_SubscribesCommandTopics(t *testing.T) {
	sub := &fakeSubscriber{}
	d := New(Options{Address: &fakeAddress{}})

	if err := d.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, topic := range []string{mqtt.TopicSinkIP, mqtt.TopicDataRequest} {
		if sub.handlers[topic] == nil {
			t.Errorf("no handler subscribed for %q", topic)
		}
	}
}

func TestStart_SubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{failOn: mqtt.TopicDataRequest}
	d := New(Options{})

	err := d.Start(sub)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleSinkIP(t *testing.T) {
	tests := []struct {
		name    string
		changed bool
		err     error
	}{
		{name: "changed", changed: true},
		{name: "unchanged"},
		{name: "invalid", err: errors.New("bad ip")},
		{name: "changed but not persisted", changed: true, err: errors.New("disk")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := &fakeAddress{ip: "192.168.2.100", changed: tt.changed, err: tt.err}
			d := New(Options{Address: addr})

			if err := d.HandleSinkIP(mqtt.TopicSinkIP, []byte(`{"ip":"192.168.2.5"}`)); err != nil {
				t.Errorf("HandleSinkIP() error = %v, want nil", err)
			}
			if len(addr.payloads) != 1 || addr.payloads[0] != `{"ip":"192.168.2.5"}` {
				t.Errorf("payloads = %v", addr.payloads)
			}
		})
	}
}

func TestHandleDataRequest_PushesReport(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{doc: testDocument(t)}
	pusher := &fakePusher{}
	d := New(Options{
		Snapshots: fetcher,
		Pusher:    pusher,
		StatePort: 1904,
		Now:       func() time.Time { return now },
	})

	for _, payload := range []string{"vera", " VERA\n", "Vera"} {
		if err := d.HandleDataRequest(mqtt.TopicDataRequest, []byte(payload)); err != nil {
			t.Errorf("HandleDataRequest(%q) error = %v", payload, err)
		}
	}

	if fetcher.calls != 3 {
		t.Errorf("FetchSnapshot calls = %d, want 3", fetcher.calls)
	}
	if len(pusher.pushes) != 3 {
		t.Fatalf("pushes = %d, want 3", len(pusher.pushes))
	}

	got := pusher.pushes[0]
	if got.port != 1904 {
		t.Errorf("port = %d, want 1904", got.port)
	}
	report, ok := got.body.(*snapshot.Report)
	if !ok {
		t.Fatalf("body type = %T, want *snapshot.Report", got.body)
	}
	if report.Summary.TotalDevices != 1 || report.Devices[0].Name != "Lámpa" {
		t.Errorf("report = %+v", report.Summary)
	}
	if report.Metadata.Timestamp != now.Format(time.RFC3339) {
		t.Errorf("Timestamp = %q, want %q", report.Metadata.Timestamp, now.Format(time.RFC3339))
	}
}

func TestHandleDataRequest_IgnoresOtherPayloads(t *testing.T) {
	fetcher := &fakeFetcher{doc: testDocument(t)}
	pusher := &fakePusher{}
	d := New(Options{Snapshots: fetcher, Pusher: pusher})

	for _, payload := range []string{"", "knx", "veranda", `{"target":"vera"}`} {
		if err := d.HandleDataRequest(mqtt.TopicDataRequest, []byte(payload)); err != nil {
			t.Errorf("HandleDataRequest(%q) error = %v", payload, err)
		}
	}
	if fetcher.calls != 0 || len(pusher.pushes) != 0 {
		t.Errorf("fetch calls = %d, pushes = %d; want none", fetcher.calls, len(pusher.pushes))
	}
}

func TestHandleDataRequest_FailuresAreSwallowed(t *testing.T) {
	t.Run("fetch error skips push", func(t *testing.T) {
		pusher := &fakePusher{}
		d := New(Options{Snapshots: &fakeFetcher{err: vera.ErrControllerUnavailable}, Pusher: pusher})

		if err := d.HandleDataRequest(mqtt.TopicDataRequest, []byte("vera")); err != nil {
			t.Errorf("HandleDataRequest() error = %v, want nil", err)
		}
		if len(pusher.pushes) != 0 {
			t.Errorf("pushes = %d, want 0", len(pusher.pushes))
		}
	})

	t.Run("push error", func(t *testing.T) {
		pusher := &fakePusher{err: errors.New("sink down")}
		d := New(Options{Snapshots: &fakeFetcher{doc: testDocument(t)}, Pusher: pusher})

		if err := d.HandleDataRequest(mqtt.TopicDataRequest, []byte("vera")); err != nil {
			t.Errorf("HandleDataRequest() error = %v, want nil", err)
		}
	})
}
