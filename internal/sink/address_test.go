package sink

import (
	"context"
	"errors"
	"testing"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	ip      string
	found   bool
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) LoadSinkIP(context.Context) (string, bool, error) {
	return m.ip, m.found, m.loadErr
}

func (m *memStore) SaveSinkIP(_ context.Context, ip string) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ip, m.found = ip, true
	return nil
}

func TestNewAddress(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		store Store
		want  string
	}{
		{name: "no store uses initial", store: nil, want: "192.168.2.100"},
		{name: "empty store uses initial", store: &memStore{}, want: "192.168.2.100"},
		{name: "stored address wins", store: &memStore{ip: "192.168.2.7", found: true}, want: "192.168.2.7"},
		{name: "invalid stored address ignored", store: &memStore{ip: "999.1.1.1", found: true}, want: "192.168.2.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := NewAddress(ctx, "192.168.2.100", tt.store, nil)
			if err != nil {
				t.Fatalf("NewAddress() error = %v", err)
			}
			if got := addr.Current(); got != tt.want {
				t.Errorf("Current() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewAddress_LoadError(t *testing.T) {
	_, err := NewAddress(context.Background(), "192.168.2.100", &memStore{loadErr: errors.New("disk")}, nil)
	if err == nil {
		t.Error("NewAddress() error = nil, want error")
	}
}

func TestAddress_UpdateFromPayload(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantChanged bool
		wantErr     error
		wantIP      string
	}{
		{name: "json object", payload: `{"ip": "192.168.2.55"}`, wantChanged: true, wantIP: "192.168.2.55"},
		{name: "json string", payload: `"192.168.2.56"`, wantChanged: true, wantIP: "192.168.2.56"},
		{name: "bare address with whitespace", payload: " 192.168.2.57\n", wantChanged: true, wantIP: "192.168.2.57"},
		{name: "same address", payload: `{"ip":"192.168.2.100"}`, wantIP: "192.168.2.100"},
		{name: "octet out of range", payload: `{"ip":"192.168.2.256"}`, wantErr: ErrInvalidAddress, wantIP: "192.168.2.100"},
		{name: "missing ip key", payload: `{"addr":"192.168.2.9"}`, wantErr: ErrInvalidAddress, wantIP: "192.168.2.100"},
		{name: "non-string ip", payload: `{"ip":5}`, wantErr: ErrInvalidAddress, wantIP: "192.168.2.100"},
		{name: "garbage", payload: "hello", wantErr: ErrInvalidAddress, wantIP: "192.168.2.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			addr, err := NewAddress(context.Background(), "192.168.2.100", store, nil)
			if err != nil {
				t.Fatalf("NewAddress() error = %v", err)
			}

			changed, err := addr.UpdateFromPayload(context.Background(), []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateFromPayload() error = %v, want %v", err, tt.wantErr)
			}
			if changed != tt.wantChanged {
				t.Errorf("UpdateFromPayload() changed = %v, want %v", changed, tt.wantChanged)
			}
			if got := addr.Current(); got != tt.wantIP {
				t.Errorf("Current() = %q, want %q", got, tt.wantIP)
			}
			wantSaves := 0
			if tt.wantChanged {
				wantSaves = 1
			}
			if store.saves != wantSaves {
				t.Errorf("store saves = %d, want %d", store.saves, wantSaves)
			}
		})
	}
}

func TestAddress_UpdateFromPayload_SaveFailureKeepsNewAddress(t *testing.T) {
	store := &memStore{saveErr: errors.New("read-only")}
	addr, err := NewAddress(context.Background(), "192.168.2.100", store, nil)
	if err != nil {
		t.Fatalf("NewAddress() error = %v", err)
	}

	changed, err := addr.UpdateFromPayload(context.Background(), []byte(`{"ip":"10.0.0.1"}`))
	if err == nil {
		t.Error("UpdateFromPayload() error = nil, want persistence error")
	}
	if !changed {
		t.Error("UpdateFromPayload() changed = false, want true")
	}
	if addr.Current() != "10.0.0.1" {
		t.Errorf("Current() = %q, want 10.0.0.1", addr.Current())
	}
}
