package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Vera bridge.
// Values come from defaults, an optional YAML file, an optional .env file
// and finally the process environment.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Filter     FilterConfig     `yaml:"filter"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Sink       SinkConfig       `yaml:"sink"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig describes how to reach the Vera controller's REST API.
type ControllerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Timeout bounds every controller request.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is the pause after a successful status poll.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ErrorBackoff is the pause after a failed status poll.
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// DirectoryRefresh rebuilds the room/device directory periodically.
	// Zero keeps the directory built at startup for the process lifetime.
	DirectoryRefresh time.Duration `yaml:"directory_refresh"`
}

// FilterConfig holds the event allow-list.
//
// Entries are separated by '#'; each entry is either "Room" or
// "Room:pattern" where '*' matches any run of characters.
type FilterConfig struct {
	Events string `yaml:"events"`
}

// DedupConfig holds the time windows of the two deduplication caches.
type DedupConfig struct {
	RawTTL    time.Duration `yaml:"raw_ttl"`
	ExportTTL time.Duration `yaml:"export_ttl"`
}

// SinkConfig describes the HTTP push destination.
type SinkConfig struct {
	// IP is the initial sink address. A persisted address announced over
	// MQTT takes precedence at startup.
	IP         string        `yaml:"ip"`
	DevicePort int           `yaml:"device_port"`
	StatePort  int           `yaml:"state_port"`
	Method     string        `yaml:"method"`
	Timeout    time.Duration `yaml:"timeout"`

	// QueueSize bounds device events waiting for the sink; overflow is dropped.
	QueueSize int `yaml:"queue_size"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// Enabled reports whether a broker has been configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker.Host != ""
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the local status API settings.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps requests per client IP. Requests of 0 disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Addr returns the listen address of the status API.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoggingConfig contains logging settings.
// Output is "stdout", "stderr" or a log file path.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values
//  2. YAML file values, when path is not empty
//  3. The .env file at envFile, when it exists (never overrides variables
//     already present in the environment)
//  4. Environment variables
//
// Parameters:
//   - path: YAML configuration file, or "" for defaults only
//   - envFile: dotenv file, or "" to skip
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read or parsed, or validation fails
func Load(path, envFile string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the stock installation.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Host:         "192.168.4.10",
			Port:         3480,
			Timeout:      10 * time.Second,
			PollInterval: 2 * time.Second,
			ErrorBackoff: 5 * time.Second,
		},
		Dedup: DedupConfig{
			RawTTL:    3000 * time.Millisecond,
			ExportTTL: 5000 * time.Millisecond,
		},
		Sink: SinkConfig{
			IP:         "192.168.2.100",
			DevicePort: 1910,
			StatePort:  1904,
			Method:     "GET",
			Timeout:    30 * time.Second,
			QueueSize:  16,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:     52888,
				ClientID: "verabridge",
			},
			Auth: MQTTAuthConfig{
				Username: "gtladmin",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/verabridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			RateLimit: RateLimitConfig{
				Requests: 60,
				Window:   time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
// Controller, broker and sink variables keep the names used by existing
// deployments; the rest follow VERABRIDGE_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VERA_IP"); v != "" {
		cfg.Controller.Host = v
	}
	setPort(&cfg.Controller.Port, "VERA_PORT")
	if v, ok := os.LookupEnv("VERA_EVENT_FILTER"); ok {
		cfg.Filter.Events = v
	}

	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	setPort(&cfg.MQTT.Broker.Port, "MQTT_PORT")
	if v := os.Getenv("MQTT_USER"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HTTP_CLIENT_IP"); v != "" {
		cfg.Sink.IP = v
	}
	setPort(&cfg.Sink.DevicePort, "HTTP_DEVICE_PORT")
	setPort(&cfg.Sink.StatePort, "HTTP_STATE_PORT")

	if v := os.Getenv("VERABRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	setPort(&cfg.API.Port, "VERABRIDGE_API_PORT")
	if v := os.Getenv("VERABRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VERABRIDGE_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
}

// setPort overrides *dst when the variable holds only digits.
// Empty or malformed values leave the current value in place.
func setPort(dst *int, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return
		}
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Controller.Host == "" {
		errs = append(errs, "controller.host is required")
	}
	if !validPort(c.Controller.Port) {
		errs = append(errs, "controller.port must be between 1 and 65535")
	}
	if c.Controller.Timeout <= 0 || c.Controller.PollInterval <= 0 || c.Controller.ErrorBackoff <= 0 {
		errs = append(errs, "controller timeout, poll_interval and error_backoff must be positive")
	}
	if c.Controller.DirectoryRefresh < 0 {
		errs = append(errs, "controller.directory_refresh must not be negative")
	}

	if c.Dedup.RawTTL <= 0 || c.Dedup.ExportTTL <= 0 {
		errs = append(errs, "dedup.raw_ttl and dedup.export_ttl must be positive")
	}

	if !ValidIPv4(c.Sink.IP) {
		errs = append(errs, fmt.Sprintf("sink.ip %q is not a valid IPv4 address", c.Sink.IP))
	}
	if !validPort(c.Sink.DevicePort) || !validPort(c.Sink.StatePort) {
		errs = append(errs, "sink ports must be between 1 and 65535")
	}
	if c.Sink.Timeout <= 0 {
		errs = append(errs, "sink.timeout must be positive")
	}
	if c.Sink.QueueSize <= 0 {
		errs = append(errs, "sink.queue_size must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled() && !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.RateLimit.Requests < 0 || (c.API.RateLimit.Requests > 0 && c.API.RateLimit.Window <= 0) {
		errs = append(errs, "api.rate_limit needs a positive window when requests is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 address with every
// octet in 0..255.
func ValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > 3 {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || strings.ContainsAny(p, "+-") {
			return false
		}
	}
	return true
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
