package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDSuffixLen is how much of a UUID is appended to client IDs.
	clientIDSuffixLen = 8
)

// connectWait bounds how long Connect waits for the first CONNACK.
var connectWait = defaultConnectTimeout

// statusPayload is published on the bridge status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// clientID builds a broker-unique client ID from the configured base and a
// role name, e.g. "verabridge-export-1b4e28ba".
func clientID(base, role string) string {
	suffix := uuid.NewString()[:clientIDSuffixLen]
	if role == "" {
		return fmt.Sprintf("%s-%s", base, suffix)
	}
	return fmt.Sprintf("%s-%s-%s", base, role, suffix)
}

// buildClientOptions creates paho MQTT options from the bridge config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with capped backoff
//   - TLS configuration (if enabled)
func buildClientOptions(cfg config.MQTTConfig, id string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(id)

	if cfg.Auth.Username != "" && cfg.Auth.Password != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// Topic: vera/bridge/status
// QoS: 1
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, id string) {
	opts.SetWill(TopicBridgeStatus, string(buildStatusPayload("offline", id, "unexpected_disconnect")), 1, true)
}

// buildStatusPayload creates the JSON payload for status messages.
func buildStatusPayload(status, id, reason string) []byte {
	data, err := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  id,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return []byte(`{"status":"` + status + `"}`)
	}
	return data
}
