// Package config defines the engine configuration surface: heartbeat,
// command, stream buffer, reconnect, transport, event bridge, and metrics
// settings. Configuration loads from a YAML or JSON file with environment
// variable overrides and validation before use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/security"
)

// Duration wraps time.Duration so config files can use "5s"-style values
// in both YAML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// HeartbeatConfig controls per-connection liveness probing.
type HeartbeatConfig struct {
	Interval      Duration `json:"interval" yaml:"interval"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
	MissThreshold int      `json:"missThreshold" yaml:"missThreshold"`
	MinInterval   Duration `json:"minInterval" yaml:"minInterval"`
	MaxInterval   Duration `json:"maxInterval" yaml:"maxInterval"`
	DegradedGrace Duration `json:"degradedGrace" yaml:"degradedGrace"`
}

// CommandConfig controls command dispatch defaults.
type CommandConfig struct {
	DefaultTimeout Duration `json:"defaultTimeout" yaml:"defaultTimeout"`
	MaxRetries     int      `json:"maxRetries" yaml:"maxRetries"`
	MaxBackoff     Duration `json:"maxBackoff" yaml:"maxBackoff"`
}

// StreamConfig is the per-stream buffer configuration.
type StreamConfig struct {
	Capacity       int      `json:"capacity" yaml:"capacity"`
	Strategy       string   `json:"strategy" yaml:"strategy"`
	OverflowPolicy string   `json:"overflowPolicy" yaml:"overflowPolicy"`
	MaxBlock       Duration `json:"maxBlock" yaml:"maxBlock"`
	Window         Duration `json:"window" yaml:"window"`
}

// ReconnectConfig controls connection retry backoff.
type ReconnectConfig struct {
	MinDelay    Duration `json:"minDelay" yaml:"minDelay"`
	MaxDelay    Duration `json:"maxDelay" yaml:"maxDelay"`
	Multiplier  float64  `json:"multiplier" yaml:"multiplier"`
	MaxAttempts int      `json:"maxAttempts" yaml:"maxAttempts"`
}

// TransportConfig controls the websocket listener.
type TransportConfig struct {
	ListenAddr    string  `json:"listenAddr" yaml:"listenAddr"`
	RatePerSecond float64 `json:"ratePerSecond" yaml:"ratePerSecond"`
	RateBurst     int     `json:"rateBurst" yaml:"rateBurst"`
	WriteTimeout  Duration `json:"writeTimeout" yaml:"writeTimeout"`
}

// NATSConfig controls the optional event bridge.
type NATSConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	SubjectPrefix string `json:"subjectPrefix" yaml:"subjectPrefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// ConnectorSpec declares a device the hub connects to at startup.
type ConnectorSpec struct {
	ID       string `json:"id" yaml:"id"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Secret   string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// Config is the complete engine configuration.
type Config struct {
	Heartbeat     HeartbeatConfig         `json:"heartbeat" yaml:"heartbeat"`
	Command       CommandConfig           `json:"command" yaml:"command"`
	StreamDefault StreamConfig            `json:"streamDefault" yaml:"streamDefault"`
	Streams       map[string]StreamConfig `json:"streams" yaml:"streams"`
	Reconnect     ReconnectConfig         `json:"reconnect" yaml:"reconnect"`
	Transport     TransportConfig         `json:"transport" yaml:"transport"`
	NATS          NATSConfig              `json:"nats" yaml:"nats"`
	Metrics       MetricsConfig           `json:"metrics" yaml:"metrics"`
	Security      security.Config         `json:"security,omitempty" yaml:"security,omitempty"`
	EventQueue    int                     `json:"eventQueue" yaml:"eventQueue"`
	// ConfigCacheTTL bounds how long device config reads are served
	// from cache. Zero disables caching.
	ConfigCacheTTL Duration        `json:"configCacheTTL" yaml:"configCacheTTL"`
	Connectors     []ConnectorSpec `json:"connectors,omitempty" yaml:"connectors,omitempty"`
}

// Default returns the engine defaults.
func Default() *Config {
	return &Config{
		Heartbeat: HeartbeatConfig{
			Interval:      Duration(5 * time.Second),
			Timeout:       Duration(2 * time.Second),
			MissThreshold: 3,
			MinInterval:   Duration(time.Second),
			MaxInterval:   Duration(60 * time.Second),
			DegradedGrace: Duration(30 * time.Second),
		},
		Command: CommandConfig{
			DefaultTimeout: Duration(5 * time.Second),
			MaxRetries:     2,
			MaxBackoff:     Duration(30 * time.Second),
		},
		StreamDefault: StreamConfig{
			Capacity:       256,
			Strategy:       "fifo",
			OverflowPolicy: "drop-oldest",
			MaxBlock:       Duration(time.Second),
			Window:         Duration(time.Minute),
		},
		Reconnect: ReconnectConfig{
			MinDelay:    Duration(500 * time.Millisecond),
			MaxDelay:    Duration(30 * time.Second),
			Multiplier:  2.0,
			MaxAttempts: 5,
		},
		Transport: TransportConfig{
			ListenAddr:    ":8443",
			RatePerSecond: 500,
			RateBurst:     100,
			WriteTimeout:  Duration(10 * time.Second),
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "synapse",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		EventQueue:     256,
		ConfigCacheTTL: Duration(30 * time.Second),
	}
}

// StreamFor returns the buffer configuration for a stream, falling back to
// the engine-wide default for streams with no explicit entry.
func (c *Config) StreamFor(streamID string) StreamConfig {
	if sc, ok := c.Streams[streamID]; ok {
		merged := sc
		if merged.Capacity == 0 {
			merged.Capacity = c.StreamDefault.Capacity
		}
		if merged.Strategy == "" {
			merged.Strategy = c.StreamDefault.Strategy
		}
		if merged.OverflowPolicy == "" {
			merged.OverflowPolicy = c.StreamDefault.OverflowPolicy
		}
		if merged.MaxBlock == 0 {
			merged.MaxBlock = c.StreamDefault.MaxBlock
		}
		if merged.Window == 0 {
			merged.Window = c.StreamDefault.Window
		}
		return merged
	}
	return c.StreamDefault
}

// Load reads a config file (YAML or JSON by extension), applies environment
// overrides, and validates the result. An empty path returns the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "Config", "Load", "parse YAML config")
			}
		case ".json":
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "Config", "Load", "parse JSON config")
			}
		default:
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Load",
				"unsupported config extension "+filepath.Ext(path))
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays SYNAPSE_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SYNAPSE_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("SYNAPSE_LISTEN_ADDR"); v != "" {
		c.Transport.ListenAddr = v
	}
	if v := os.Getenv("SYNAPSE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
