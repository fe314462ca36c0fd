package vera

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
)

// newTestClient points a Client at an httptest server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, _ := strconv.Atoi(portStr) //nolint:errcheck // Listener port is numeric
	return NewClient(config.ControllerConfig{Host: host, Port: port, Timeout: 2 * time.Second})
}

func TestClient_FetchSnapshot(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/data_request" {
			t.Errorf("path = %q, want /data_request", r.URL.Path)
		}
		w.Write([]byte(testSnapshotJSON)) //nolint:errcheck // Test handler
	})

	doc, err := c.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if gotQuery != "id=lu_sdata&output_format=json" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(doc.Rooms) != 2 || len(doc.Devices) != 4 {
		t.Errorf("doc has %d rooms, %d devices", len(doc.Rooms), len(doc.Devices))
	}
}

func TestClient_FetchSnapshot_MalformedDeviceBuildsDirectory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"rooms": [{"id": 1, "name": "Nappali"}, {"id": "", "name": "Broken"}],
			"devices": [
				{"id": 12, "name": "Lámpa", "category": 2, "room": 1},
				{"id": 13, "name": "Unassigned", "category": 3, "room": ""},
				{"id": 14, "name": "Odd", "category": "x", "room": 1}
			]
		}`)) //nolint:errcheck // Test handler
	})

	doc, err := c.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v, want nil", err)
	}
	if doc.Devices[1].Err == nil || doc.Devices[2].Err == nil || doc.Rooms[1].Err == nil {
		t.Error("malformed entries decoded without error")
	}

	dir := NewDirectory()
	n, err := dir.Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if n != 1 || !dir.Contains(12) {
		t.Errorf("Build() = %d devices, want only device 12", n)
	}
	if rooms, _ := dir.Size(); rooms != 1 {
		t.Errorf("Size() rooms = %d, want 1", rooms)
	}
}

func TestClient_FetchStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "status" {
			t.Errorf("id = %q, want status", r.URL.Query().Get("id"))
		}
		w.Write([]byte(`{"devices":[{"id":"12","states":[{"variable":"Status","value":"1"}]}]}`)) //nolint:errcheck // Test handler
	})

	doc, err := c.FetchStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchStatus() error = %v", err)
	}
	if len(doc.Devices) != 1 || doc.Devices[0].ID != 12 {
		t.Errorf("devices = %+v", doc.Devices)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:    ErrControllerUnavailable,
		},
		{
			name:    "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("{not json")) }, //nolint:errcheck // Test handler
			want:    ErrInvalidDocument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			if _, err := c.FetchStatus(context.Background()); !errors.Is(err, tt.want) {
				t.Errorf("FetchStatus() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient(config.ControllerConfig{Host: "127.0.0.1", Port: 1, Timeout: time.Second})
	if _, err := c.FetchSnapshot(context.Background()); !errors.Is(err, ErrControllerUnavailable) {
		t.Errorf("FetchSnapshot() error = %v, want ErrControllerUnavailable", err)
	}
}

func TestClient_BaseURL(t *testing.T) {
	c := NewClient(config.ControllerConfig{Host: "192.168.4.10", Port: 3480})
	if c.BaseURL() != "http://192.168.4.10:3480" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}
