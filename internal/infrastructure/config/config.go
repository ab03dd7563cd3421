package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Perimeter Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Vendor    VendorConfig    `yaml:"vendor"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	// NightStart and NightEnd bound the night SPL window, as HH:MM in site local time.
	NightStart string `yaml:"night_start"`
	NightEnd   string `yaml:"night_end"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT carries device commands out to hardware and sensor reports in.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// RedisConfig contains the vendor message bus connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig contains settings for relaying broadcasts onto NATS.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	MaxRetries    int    `yaml:"max_retries"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains observer WebSocket settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains settings for verifying identity-service tokens.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// IngestConfig contains event ingest gateway settings.
type IngestConfig struct {
	// DedupSize is the maximum number of event identities remembered.
	DedupSize int `yaml:"dedup_size"`
	// DedupTTL is how long an identity stays in the dedup window (seconds).
	DedupTTL int `yaml:"dedup_ttl"`
	// StoreTimeout bounds every durable store call (milliseconds).
	StoreTimeout int `yaml:"store_timeout"`
	// CommandTimeout bounds every device command (milliseconds).
	CommandTimeout int `yaml:"command_timeout"`
	// DefaultDeterrent is the acoustic deterrent targeted by automated responses.
	DefaultDeterrent string `yaml:"default_deterrent"`
	// DefaultCamera is the PTZ camera targeted by automated slew responses.
	DefaultCamera string `yaml:"default_camera"`
}

// BroadcastConfig contains observer fan-out settings.
type BroadcastConfig struct {
	// QueueSize is the per-observer outbound queue length.
	// An observer whose queue overflows is disconnected.
	QueueSize int `yaml:"queue_size"`
}

// VendorConfig contains vendor bridge settings.
type VendorConfig struct {
	Enabled bool `yaml:"enabled"`
	// MinConfidence drops acoustic alarms below this confidence.
	MinConfidence float64 `yaml:"min_confidence"`
	// Backoff bounds between reconnect attempts (milliseconds).
	BackoffInitial int `yaml:"backoff_initial"`
	BackoffMax     int `yaml:"backoff_max"`
}

// SensorsConfig contains settings for the MQTT sensor bridge.
type SensorsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SimulatorConfig contains settings for the development producers.
type SimulatorConfig struct {
	Enabled bool `yaml:"enabled"`
	// StatusInterval is the system status broadcast interval (seconds).
	StatusInterval int `yaml:"status_interval"`
	// DetectionInterval is the mock detection interval (seconds). 0 disables mock detections.
	DetectionInterval int `yaml:"detection_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PERIMETER_SECTION_KEY
// For example: PERIMETER_DATABASE_PATH, PERIMETER_REDIS_ADDR
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:         "site-001",
			Name:       "Perimeter",
			Timezone:   "UTC",
			NightStart: "22:00",
			NightEnd:   "06:00",
		},
		Database: DatabaseConfig{
			Path:        "./data/perimeter.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "perimeter-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "perimeter",
			MaxRetries:    3,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Ingest: IngestConfig{
			DedupSize:        10000,
			DedupTTL:         600,
			StoreTimeout:     3000,
			CommandTimeout:   5000,
			DefaultDeterrent: "lrad_01",
			DefaultCamera:    "ptz_01",
		},
		Broadcast: BroadcastConfig{
			QueueSize: 256,
		},
		Vendor: VendorConfig{
			Enabled:        true,
			MinConfidence:  0.7,
			BackoffInitial: 1000,
			BackoffMax:     30000,
		},
		Simulator: SimulatorConfig{
			StatusInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PERIMETER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PERIMETER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PERIMETER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PERIMETER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PERIMETER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("PERIMETER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PERIMETER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("PERIMETER_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}

	if v := os.Getenv("PERIMETER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PERIMETER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("PERIMETER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Shared secret with the identity service (always override in production)
	if v := os.Getenv("PERIMETER_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("PERIMETER_DEFAULT_DETERRENT"); v != "" {
		cfg.Ingest.DefaultDeterrent = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}
	if _, err := ParseClock(c.Site.NightStart); err != nil {
		errs = append(errs, "site.night_start must be HH:MM")
	}
	if _, err := ParseClock(c.Site.NightEnd); err != nil {
		errs = append(errs, "site.night_end must be HH:MM")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Vendor.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when vendor bridge is enabled")
	}
	if c.Vendor.MinConfidence < 0 || c.Vendor.MinConfidence > 1 {
		errs = append(errs, "vendor.min_confidence must be between 0 and 1")
	}
	if c.Vendor.BackoffInitial <= 0 || c.Vendor.BackoffMax < c.Vendor.BackoffInitial {
		errs = append(errs, "vendor backoff must satisfy 0 < backoff_initial <= backoff_max")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Ingest.DedupSize <= 0 {
		errs = append(errs, "ingest.dedup_size must be positive")
	}
	if c.Ingest.StoreTimeout <= 0 || c.Ingest.CommandTimeout <= 0 {
		errs = append(errs, "ingest timeouts must be positive")
	}
	if c.Ingest.DefaultDeterrent == "" {
		errs = append(errs, "ingest.default_deterrent is required")
	}

	if c.Broadcast.QueueSize <= 0 {
		errs = append(errs, "broadcast.queue_size must be positive")
	}

	// Tokens signed with a short secret can be forged, and a forged operator
	// token can fire acoustic deterrents.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set PERIMETER_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ParseClock parses an HH:MM clock string into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parsing clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetStoreTimeout returns the durable store call bound.
func (c IngestConfig) GetStoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Millisecond
}

// GetCommandTimeout returns the device command bound.
func (c IngestConfig) GetCommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Millisecond
}

// GetDedupTTL returns how long an event identity stays deduplicated.
func (c IngestConfig) GetDedupTTL() time.Duration {
	return time.Duration(c.DedupTTL) * time.Second
}

// GetBackoffInitial returns the first reconnect delay.
func (c VendorConfig) GetBackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitial) * time.Millisecond
}

// GetBackoffMax returns the reconnect delay cap.
func (c VendorConfig) GetBackoffMax() time.Duration {
	return time.Duration(c.BackoffMax) * time.Millisecond
}
