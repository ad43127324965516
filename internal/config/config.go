// Package config loads service settings from defaults, the environment and
// an optional JSON or YAML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "CODEPAIR_"

	// EnvConfigFile names the environment variable holding the config file path.
	EnvConfigFile = envPrefix + "CONFIG_FILE"
)

type Config struct {
	Store     *StoreConfig     `json:"store"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Hub       *HubConfig       `json:"hub"`
	Log       *LogConfig       `json:"log"`
}

// StoreConfig selects the session store. Path applies to sqlite, the Redis
// fields to redis.
type StoreConfig struct {
	Backend       string        `json:"backend"`
	Path          string        `json:"path"`
	Timeout       time.Duration `json:"timeout"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	KeyPrefix     string        `json:"key_prefix"`
}

// HTTPConfig configures the listener. Port 0 picks a free port.
type HTTPConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	BufferSize      int           `json:"buffer_size"`
	MaxMessageSize  int64         `json:"max_message_size"`
	EventsPerMinute int           `json:"max_events_per_minute"`
}

type HubConfig struct {
	QueueSize    int           `json:"queue_size"`
	StoreTimeout time.Duration `json:"store_timeout"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Addr is the listen address for the HTTP server.
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DefaultConfig returns settings for a single in-memory instance on :8080.
func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			Backend:   "memory",
			Path:      ":memory:",
			Timeout:   5 * time.Second,
			RedisAddr: "localhost:6379",
			KeyPrefix: "codepair:session:",
		},
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			BufferSize:      100,
			MaxMessageSize:  1 << 20,
			EventsPerMinute: 0,
		},
		Hub: &HubConfig{
			QueueSize:    1024,
			StoreTimeout: 5 * time.Second,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

var validBackends = map[string]bool{"memory": true, "sqlite": true, "redis": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("store configuration is required")
	}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return errors.New("sqlite store path cannot be empty")
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		return errors.New("redis address cannot be empty")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.Store.RedisDB < 0 {
		return errors.New("redis db cannot be negative")
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}
	if c.WebSocket.EventsPerMinute < 0 {
		return errors.New("WebSocket events per minute cannot be negative")
	}

	if c.Hub == nil {
		return errors.New("hub configuration is required")
	}
	if c.Hub.QueueSize <= 0 {
		return errors.New("hub queue size must be positive")
	}
	if c.Hub.StoreTimeout <= 0 {
		return errors.New("hub store timeout must be positive")
	}

	if c.Log == nil {
		return errors.New("log configuration is required")
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

type envSetter func(value string) error

func stringVar(dst *string) envSetter {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func intVar(dst *int) envSetter {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func int64Var(dst *int64) envSetter {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolVar(dst *bool) envSetter {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func durationVar(dst *time.Duration) envSetter {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// ApplyEnv overrides config with any CODEPAIR_* variables that are set.
func (c *Config) ApplyEnv() error {
	vars := map[string]envSetter{
		"STORE_BACKEND":                   stringVar(&c.Store.Backend),
		"STORE_PATH":                      stringVar(&c.Store.Path),
		"STORE_TIMEOUT":                   durationVar(&c.Store.Timeout),
		"REDIS_ADDR":                      stringVar(&c.Store.RedisAddr),
		"REDIS_PASSWORD":                  stringVar(&c.Store.RedisPassword),
		"REDIS_DB":                        intVar(&c.Store.RedisDB),
		"REDIS_KEY_PREFIX":                stringVar(&c.Store.KeyPrefix),
		"HTTP_PORT":                       intVar(&c.HTTP.Port),
		"HTTP_HOST":                       stringVar(&c.HTTP.Host),
		"HTTP_READ_TIMEOUT":               durationVar(&c.HTTP.ReadTimeout),
		"HTTP_WRITE_TIMEOUT":              durationVar(&c.HTTP.WriteTimeout),
		"HTTP_SHUTDOWN_TIMEOUT":           durationVar(&c.HTTP.ShutdownTimeout),
		"WEBSOCKET_PING_INTERVAL":         durationVar(&c.WebSocket.PingInterval),
		"WEBSOCKET_READ_TIMEOUT":          durationVar(&c.WebSocket.ReadTimeout),
		"WEBSOCKET_WRITE_TIMEOUT":         durationVar(&c.WebSocket.WriteTimeout),
		"WEBSOCKET_BUFFER_SIZE":           intVar(&c.WebSocket.BufferSize),
		"WEBSOCKET_MAX_MESSAGE_SIZE":      int64Var(&c.WebSocket.MaxMessageSize),
		"WEBSOCKET_MAX_EVENTS_PER_MINUTE": intVar(&c.WebSocket.EventsPerMinute),
		"HUB_QUEUE_SIZE":                  intVar(&c.Hub.QueueSize),
		"HUB_STORE_TIMEOUT":               durationVar(&c.Hub.StoreTimeout),
		"LOG_LEVEL":                       stringVar(&c.Log.Level),
		"LOG_DEVELOPMENT":                 boolVar(&c.Log.Development),
	}

	for name, set := range vars {
		value, ok := os.LookupEnv(envPrefix + name)
		if !ok || value == "" {
			continue
		}
		if err := set(value); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", envPrefix, name, value, err)
		}
	}
	return nil
}

// LoadFromEnv returns defaults overridden by the environment.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// ConfigFile mirrors Config for decoding. Durations are strings such as "30s"
// and zero values mean "keep the current setting".
type ConfigFile struct {
	Store     *StoreConfigFile     `json:"store" yaml:"store"`
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	Hub       *HubConfigFile       `json:"hub" yaml:"hub"`
	Log       *LogConfigFile       `json:"log" yaml:"log"`
}

type StoreConfigFile struct {
	Backend       string `json:"backend" yaml:"backend"`
	Path          string `json:"path" yaml:"path"`
	Timeout       string `json:"timeout" yaml:"timeout"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       *int   `json:"redis_db" yaml:"redis_db"`
	KeyPrefix     string `json:"key_prefix" yaml:"key_prefix"`
}

type HTTPConfigFile struct {
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	ReadTimeout     string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval    string `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout     string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `json:"write_timeout" yaml:"write_timeout"`
	BufferSize      int    `json:"buffer_size" yaml:"buffer_size"`
	MaxMessageSize  int64  `json:"max_message_size" yaml:"max_message_size"`
	EventsPerMinute *int   `json:"max_events_per_minute" yaml:"max_events_per_minute"`
}

type HubConfigFile struct {
	QueueSize    int    `json:"queue_size" yaml:"queue_size"`
	StoreTimeout string `json:"store_timeout" yaml:"store_timeout"`
}

type LogConfigFile struct {
	Level       string `json:"level" yaml:"level"`
	Development *bool  `json:"development" yaml:"development"`
}

// ReadFile decodes a JSON or YAML config file. The format follows the file
// extension; anything other than .yaml or .yml is read as JSON.
func ReadFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &file, nil
}

func setDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	*dst = d
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Apply layers the non-zero settings of f onto c.
func (f *ConfigFile) Apply(c *Config) error {
	if s := f.Store; s != nil {
		setString(&c.Store.Backend, s.Backend)
		setString(&c.Store.Path, s.Path)
		setString(&c.Store.RedisAddr, s.RedisAddr)
		setString(&c.Store.RedisPassword, s.RedisPassword)
		setString(&c.Store.KeyPrefix, s.KeyPrefix)
		if s.RedisDB != nil {
			c.Store.RedisDB = *s.RedisDB
		}
		if err := setDuration(&c.Store.Timeout, s.Timeout, "store.timeout"); err != nil {
			return err
		}
	}

	if h := f.HTTP; h != nil {
		if h.Port > 0 {
			c.HTTP.Port = h.Port
		}
		setString(&c.HTTP.Host, h.Host)
		if err := setDuration(&c.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&c.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout"); err != nil {
			return err
		}
		if err := setDuration(&c.HTTP.ShutdownTimeout, h.ShutdownTimeout, "http.shutdown_timeout"); err != nil {
			return err
		}
	}

	if w := f.WebSocket; w != nil {
		if w.BufferSize > 0 {
			c.WebSocket.BufferSize = w.BufferSize
		}
		if w.MaxMessageSize > 0 {
			c.WebSocket.MaxMessageSize = w.MaxMessageSize
		}
		if w.EventsPerMinute != nil {
			c.WebSocket.EventsPerMinute = *w.EventsPerMinute
		}
		if err := setDuration(&c.WebSocket.PingInterval, w.PingInterval, "websocket.ping_interval"); err != nil {
			return err
		}
		if err := setDuration(&c.WebSocket.ReadTimeout, w.ReadTimeout, "websocket.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&c.WebSocket.WriteTimeout, w.WriteTimeout, "websocket.write_timeout"); err != nil {
			return err
		}
	}

	if h := f.Hub; h != nil {
		if h.QueueSize > 0 {
			c.Hub.QueueSize = h.QueueSize
		}
		if err := setDuration(&c.Hub.StoreTimeout, h.StoreTimeout, "hub.store_timeout"); err != nil {
			return err
		}
	}

	if l := f.Log; l != nil {
		setString(&c.Log.Level, l.Level)
		if l.Development != nil {
			c.Log.Development = *l.Development
		}
	}
	return nil
}

// LoadFromFile returns defaults overridden by the file at path.
func LoadFromFile(path string) (*Config, error) {
	file, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := file.Apply(config); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// Load builds the runtime configuration. Precedence: file > environment >
// defaults. An empty path falls back to $CODEPAIR_CONFIG_FILE; with neither
// set only defaults and environment apply.
func Load(path string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		file, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := file.Apply(config); err != nil {
			return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
