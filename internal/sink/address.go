package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
)

// Store persists the sink address across restarts.
type Store interface {
	LoadSinkIP(ctx context.Context) (ip string, found bool, err error)
	SaveSinkIP(ctx context.Context, ip string) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Address owns the current sink IP.
//
// Thread Safety: All methods are safe for concurrent use.
type Address struct {
	mu     sync.RWMutex
	ip     string
	store  Store
	logger Logger
}

// NewAddress returns the sink address, preferring a valid persisted value
// over initial. A nil store disables persistence.
func NewAddress(ctx context.Context, initial string, store Store, logger Logger) (*Address, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	a := &Address{ip: initial, store: store, logger: logger}
	if store == nil {
		return a, nil
	}

	stored, found, err := store.LoadSinkIP(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading sink address: %w", err)
	}
	switch {
	case !found:
	case config.ValidIPv4(stored):
		a.ip = stored
	default:
		logger.Warn("ignoring invalid stored sink address", "ip", stored)
	}
	return a, nil
}

// Current returns the sink IP.
func (a *Address) Current() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ip
}

// UpdateFromPayload applies an address announcement.
//
// The payload may be a JSON object {"ip": "..."}, a JSON string, or the
// bare address. An unchanged address is not an error.
//
// Returns:
//   - bool: true when the current address changed
//   - error: ErrInvalidAddress for unusable payloads, or a persistence
//     failure (the new address is in effect either way)
func (a *Address) UpdateFromPayload(ctx context.Context, payload []byte) (bool, error) {
	ip := ExtractIP(payload)
	if !config.ValidIPv4(ip) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}

	a.mu.Lock()
	old := a.ip
	if ip == old {
		a.mu.Unlock()
		return false, nil
	}
	a.ip = ip
	a.mu.Unlock()

	a.logger.Info("sink address changed", "old", old, "new", ip)

	if a.store != nil {
		if err := a.store.SaveSinkIP(ctx, ip); err != nil {
			return true, fmt.Errorf("persisting sink address: %w", err)
		}
	}
	return true, nil
}

// ExtractIP returns the address carried by an announcement payload.
func ExtractIP(payload []byte) string {
	text := strings.TrimSpace(string(payload))

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return text
	}
	switch v := decoded.(type) {
	case map[string]any:
		ip, _ := v["ip"].(string) //nolint:errcheck // Non-string ip yields ""
		return strings.TrimSpace(ip)
	case string:
		return strings.TrimSpace(v)
	default:
		return text
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
