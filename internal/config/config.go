// Package config loads application configuration from an optional YAML file
// with environment variable overrides and struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Library    LibraryConfig    `yaml:"library"`
	Conversion ConversionConfig `yaml:"conversion"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Events     EventsConfig     `yaml:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" env:"AUDIORA_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" env:"AUDIORA_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"AUDIORA_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"AUDIORA_WRITE_TIMEOUT" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" env:"AUDIORA_ENABLE_CORS" default:"true"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" env:"DATABASE_TYPE" default:"sqlite"`
	DatabasePath string `yaml:"database_path" env:"AUDIORA_DATABASE_PATH" default:"./data/audiora.db"`
	Host         string `yaml:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port         int    `yaml:"port" env:"POSTGRES_PORT" default:"5432"`
	Username     string `yaml:"username" env:"POSTGRES_USER" default:"audiora"`
	Password     string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" env:"POSTGRES_DB" default:"audiora"`
	LogQueries   bool   `yaml:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// LibraryConfig holds scanner and watch-folder configuration
type LibraryConfig struct {
	RootDir           string        `yaml:"root_dir" env:"AUDIORA_LIBRARY_DIR" default:"./data/library"`
	WatchDir          string        `yaml:"watch_dir" env:"AUDIORA_WATCH_DIR" default:"./data/incoming"`
	ScanInterval      time.Duration `yaml:"scan_interval" env:"AUDIORA_SCAN_INTERVAL" default:"1h"`
	AutoScanEnabled   bool          `yaml:"auto_scan_enabled" env:"AUDIORA_AUTO_SCAN" default:"true"`
	SettleInterval    time.Duration `yaml:"settle_interval" env:"AUDIORA_SETTLE_INTERVAL" default:"2s"`
	SettleMaxAttempts int           `yaml:"settle_max_attempts" env:"AUDIORA_SETTLE_MAX_ATTEMPTS" default:"30"`
	ThrottleEnabled   bool          `yaml:"throttle_enabled" env:"AUDIORA_SCAN_THROTTLE" default:"true"`
}

// ConversionConfig holds conversion job manager configuration
type ConversionConfig struct {
	// ProgressInterval is the minimum interval between conversion.progress
	// events per job; 0 publishes on every change.
	ProgressInterval time.Duration `yaml:"progress_interval" env:"AUDIORA_CONVERSION_PROGRESS_INTERVAL" default:"500ms"`
	TargetFormat     string        `yaml:"target_format" env:"AUDIORA_CONVERSION_FORMAT" default:"m4b"`
	RetainFinished   time.Duration `yaml:"retain_finished" env:"AUDIORA_CONVERSION_RETAIN" default:"1h"`
}

// PlaybackConfig holds session registry configuration
type PlaybackConfig struct {
	SessionTimeout time.Duration `yaml:"session_timeout" env:"AUDIORA_SESSION_TIMEOUT" default:"5m"`
	ReaperInterval time.Duration `yaml:"reaper_interval" env:"AUDIORA_REAPER_INTERVAL" default:"15s"`
}

// EventsConfig holds broadcast hub configuration
type EventsConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer" env:"AUDIORA_EVENT_BUFFER" default:"64"`
	RecentEvents     int `yaml:"recent_events" env:"AUDIORA_RECENT_EVENTS" default:"100"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load reads configuration from the given path (optional) and applies
// defaults and environment overrides. An empty path loads defaults only.
func Load(path string) error {
	cfg := &Config{}
	applyDefaults(reflect.ValueOf(cfg).Elem())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(reflect.ValueOf(cfg).Elem())

	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Get returns the current configuration, loading defaults if Load was never called.
func Get() *Config {
	mu.RLock()
	if current != nil {
		defer mu.RUnlock()
		return current
	}
	mu.RUnlock()

	_ = Load("")
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetConfig replaces the current configuration (tests only)
func SetConfig(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Library.SettleMaxAttempts < 1 {
		return fmt.Errorf("library.settle_max_attempts must be at least 1")
	}
	if c.Playback.SessionTimeout <= 0 {
		return fmt.Errorf("playback.session_timeout must be positive")
	}
	if c.Playback.ReaperInterval <= 0 {
		return fmt.Errorf("playback.reaper_interval must be positive")
	}
	if c.Events.SubscriberBuffer < 1 {
		return fmt.Errorf("events.subscriber_buffer must be at least 1")
	}
	return nil
}

// applyDefaults walks the struct and sets values from `default` tags on
// fields that are still zero.
func applyDefaults(v reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			applyDefaults(field)
			continue
		}
		def := t.Field(i).Tag.Get("default")
		if def == "" || !field.IsZero() {
			continue
		}
		setField(field, def)
	}
}

// applyEnv walks the struct and overrides fields from `env` tags.
func applyEnv(v reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			applyEnv(field)
			continue
		}
		env := t.Field(i).Tag.Get("env")
		if env == "" {
			continue
		}
		if val, ok := os.LookupEnv(env); ok && val != "" {
			setField(field, val)
		}
	}
}

func setField(field reflect.Value, raw string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(raw); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	}
}
