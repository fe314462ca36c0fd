package vera

import (
	"context"
	"errors"
	"testing"
	"time"
)

// lifecycleExporter records Connect/Disconnect calls.
type lifecycleExporter struct {
	connects, disconnects, sweeps int
}

func (e *lifecycleExporter) Connect()    { e.connects++ }
func (e *lifecycleExporter) Disconnect() { e.disconnects++ }
func (e *lifecycleExporter) Sweep() int  { e.sweeps++; return 0 }

type pollerFixture struct {
	fetcher  *mockFetcher
	exporter *lifecycleExporter
	sink     *recordingSink
	clock    *fakeClock
	sleeps   []time.Duration
	poller   *Poller
	dir      *Directory
	detector *Detector
}

func newPollerFixture(t *testing.T, refresh time.Duration) *pollerFixture {
	t.Helper()
	f := &pollerFixture{
		fetcher:  &mockFetcher{snapshot: testSnapshot(t)},
		exporter: &lifecycleExporter{},
		sink:     &recordingSink{},
		clock:    newFakeClock(),
		dir:      NewDirectory(),
	}
	raw := NewDedupCache(3*time.Second, f.clock.Now)
	det, err := NewDetector(DetectorOptions{
		Directory: f.dir,
		Filter:    mustFilter(t, "Nappali#Konyha"),
		RawDedup:  raw,
		Sink:      f.sink,
	})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	f.detector = det

	p, err := NewPoller(PollerOptions{
		Fetcher:          f.fetcher,
		Directory:        f.dir,
		Detector:         det,
		RawDedup:         raw,
		Exporter:         f.exporter,
		DirectoryRefresh: refresh,
		Sleep: func(d time.Duration) {
			f.sleeps = append(f.sleeps, d)
			f.clock.Advance(d)
		},
		Now: f.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	f.poller = p
	return f
}

func TestPoller_AbortsWhenDirectoryFails(t *testing.T) {
	f := newPollerFixture(t, 0)
	f.fetcher.snapshotErr = ErrControllerUnavailable

	err := f.poller.Run(context.Background())
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("Run() error = %v, want ErrDirectoryUnavailable", err)
	}
	if f.fetcher.statusCalls != 0 {
		t.Errorf("status polled %d times after failed directory build", f.fetcher.statusCalls)
	}
	if f.exporter.connects != 0 {
		t.Error("exporter connected after failed directory build")
	}
}

func TestPoller_LoopTimingAndCooperativeStop(t *testing.T) {
	f := newPollerFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	f.fetcher.status = statusDoc(12, VariableStatus, StringValue("1"))
	f.fetcher.onStatus = func(call int) {
		switch call {
		case 2:
			f.fetcher.mu.Lock()
			f.fetcher.statusErr = ErrControllerUnavailable
			f.fetcher.mu.Unlock()
		case 3:
			// Cancellation is observed only after this iteration finishes.
			cancel()
		}
	}

	if err := f.poller.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// call 1 ok → 2s, call 2 ok → 2s (error set for next), call 3 fails → 5s
	want := []time.Duration{2 * time.Second, 2 * time.Second, 5 * time.Second}
	if len(f.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", f.sleeps, want)
	}
	for i := range want {
		if f.sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, f.sleeps[i], want[i])
		}
	}

	if len(f.sink.Messages()) != 1 {
		t.Errorf("messages = %d, want 1", len(f.sink.Messages()))
	}
	if f.exporter.connects != 1 || f.exporter.disconnects != 1 {
		t.Errorf("exporter connects=%d disconnects=%d, want 1/1", f.exporter.connects, f.exporter.disconnects)
	}
	if f.exporter.sweeps != 3 {
		t.Errorf("exporter sweeps = %d, want 3", f.exporter.sweeps)
	}
	if f.poller.Running() {
		t.Error("Running() = true after Run returned")
	}
}

func TestPoller_DirectoryRefreshPrunes(t *testing.T) {
	f := newPollerFixture(t, time.Minute)
	ctx := context.Background()

	if err := f.poller.RefreshDirectory(ctx); err != nil {
		t.Fatalf("RefreshDirectory() error = %v", err)
	}
	f.detector.Process(&StatusDocument{Devices: []StatusDevice{
		{ID: 12, States: []StateVariable{{Variable: VariableStatus, Value: StringValue("1")}}},
		{ID: 13, States: []StateVariable{{Variable: VariableStatus, Value: StringValue("1")}}},
	}})

	// Device 13 disappears from the controller.
	f.fetcher.snapshot = &SnapshotDocument{
		Rooms:   []Room{{ID: 1, Name: "Nappali"}},
		Devices: []Device{{ID: 12, Name: "Lámpa", Room: 1}},
	}
	f.clock.Advance(time.Minute)
	f.poller.maybeRefresh(ctx)

	if f.dir.Contains(13) {
		t.Fatal("directory was not refreshed")
	}
	if _, ok := f.detector.LastValue(13, VariableStatus); ok {
		t.Error("last value of removed device was kept")
	}
	if _, ok := f.detector.LastValue(12, VariableStatus); !ok {
		t.Error("last value of present device was dropped")
	}
}

func TestPoller_FailedRefreshKeepsDirectory(t *testing.T) {
	f := newPollerFixture(t, time.Minute)
	ctx := context.Background()

	if err := f.poller.RefreshDirectory(ctx); err != nil {
		t.Fatalf("RefreshDirectory() error = %v", err)
	}
	f.fetcher.snapshotErr = ErrControllerUnavailable
	f.clock.Advance(time.Minute)
	f.poller.maybeRefresh(ctx)

	if !f.dir.Contains(12) {
		t.Error("failed refresh discarded the directory")
	}
}

func TestPoller_PollOnce(t *testing.T) {
	f := newPollerFixture(t, 0)
	if err := f.poller.RefreshDirectory(context.Background()); err != nil {
		t.Fatalf("RefreshDirectory() error = %v", err)
	}

	f.fetcher.status = statusDoc(13, VariableTripped, StringValue("1"))
	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if len(f.sink.Messages()) != 1 {
		t.Errorf("messages = %d, want 1", len(f.sink.Messages()))
	}

	f.fetcher.statusErr = ErrInvalidDocument
	if err := f.poller.PollOnce(context.Background()); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("PollOnce() error = %v, want ErrInvalidDocument", err)
	}
}

func TestNewPoller_Validation(t *testing.T) {
	if _, err := NewPoller(PollerOptions{}); err == nil {
		t.Error("NewPoller() with no collaborators error = nil")
	}
}
