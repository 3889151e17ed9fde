// Package config loads the JSON configuration document spec §6 describes,
// validates it, and republishes it atomically whenever the file on disk
// changes — unlike the teacher's env-var (caarlos0/env) config, this one
// must be watched and hot-reloaded, so it's built fresh in the teacher's
// fail-loud idiom rather than adapted from the teacher's config.go.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Config holds every setting spec §6's "Configuration file" names.
type Config struct {
	DatabaseUsername string `json:"database_username"`
	DatabasePassword string `json:"database_password"`
	DatabaseName     string `json:"database_name"`
	DatabaseServer   string `json:"database_server"`
	DatabasePort     int    `json:"database_port"` // 0 => 5432

	InboundHostAddress           string `json:"inbound_host_address"`
	InboundPort                  int    `json:"inbound_port"`
	MaximumConcurrentConnections int    `json:"maximum_concurrent_connections"`

	InboundAPIKey string `json:"inbound_api_key"` // base64

	WebsiteAuthority string `json:"website_authority"`
	WebsiteAPIKey    string `json:"website_api_key"`

	PollingServerAPIKey string `json:"polling_server_api_key"`
	PollingServerScheme string `json:"polling_server_scheme"` // "http" or "https"
	PollingServerPort   int    `json:"polling_server_port"`   // 0 => scheme default

	CustomerSecretsEncryptionKey string `json:"customer_secrets_encryption_key"` // base64, 32 bytes
	CustomerIdentifierKey        string `json:"customer_identifier_key"`         // base64, 16 bytes

	CustomerSecretsCacheSize      uint64 `json:"customer_secrets_cache_size"`
	CustomerCapabilitiesCacheSize uint64 `json:"customer_capabilities_cache_size"`

	AggregationAge          uint32 `json:"aggregation_age"`
	AggregationSamplePeriod uint32 `json:"aggregation_sample_period"`
	ExpungeAge              uint32 `json:"expunge_age"`

	RedisURL string `json:"redis_url"`

	// SlackBotToken/SlackEventChannel are optional: pkg/event.Notifier
	// no-ops when either is empty (spec says nothing about outbound
	// notification, so this stays a best-effort convenience, not a gate).
	SlackBotToken    string `json:"slack_bot_token"`
	SlackEventChannel string `json:"slack_event_channel"`

	Verbose bool `json:"verbose"`
}

// DecodedSecretsKey base64-decodes CustomerSecretsEncryptionKey into the
// 32-byte AES-CBC key C4 needs. Callers must Validate first.
func (c *Config) DecodedSecretsKey() [32]byte {
	var key [32]byte
	raw, _ := base64.StdEncoding.DecodeString(c.CustomerSecretsEncryptionKey)
	copy(key[:], raw)
	return key
}

// DecodedIdentifierKey base64-decodes CustomerIdentifierKey into the
// 16-byte XTEA key C2 needs. Callers must Validate first.
func (c *Config) DecodedIdentifierKey() [16]byte {
	var key [16]byte
	raw, _ := base64.StdEncoding.DecodeString(c.CustomerIdentifierKey)
	copy(key[:], raw)
	return key
}

// DecodedInboundAPIKey base64-decodes InboundAPIKey.
func (c *Config) DecodedInboundAPIKey() []byte {
	raw, _ := base64.StdEncoding.DecodeString(c.InboundAPIKey)
	return raw
}

// Validate checks every field spec §6 constrains, returning every violation
// found rather than stopping at the first — boot logs all of them before
// exiting 1.
func (c *Config) Validate() []string {
	var errs []string

	if c.DatabaseUsername == "" {
		errs = append(errs, "database_username must not be empty")
	}
	if c.DatabaseName == "" {
		errs = append(errs, "database_name must not be empty")
	}
	if c.DatabaseServer == "" {
		errs = append(errs, "database_server must not be empty")
	}
	if c.InboundPort < 0 || c.InboundPort > 65535 {
		errs = append(errs, "inbound_port must be between 0 and 65535")
	}
	if c.MaximumConcurrentConnections <= 0 {
		errs = append(errs, "maximum_concurrent_connections must be positive")
	}
	if c.DatabasePort < 0 || c.DatabasePort > 65535 {
		errs = append(errs, "database_port must be between 0 and 65535")
	}

	if raw, err := base64.StdEncoding.DecodeString(c.InboundAPIKey); err != nil || len(raw) == 0 {
		errs = append(errs, "inbound_api_key must be valid base64")
	}

	switch c.PollingServerScheme {
	case "http", "https":
	default:
		errs = append(errs, `polling_server_scheme must be "http" or "https"`)
	}
	if c.PollingServerPort < 0 || c.PollingServerPort > 65535 {
		errs = append(errs, "polling_server_port must be between 0 and 65535")
	}

	if raw, err := base64.StdEncoding.DecodeString(c.CustomerSecretsEncryptionKey); err != nil || len(raw) != 32 {
		errs = append(errs, "customer_secrets_encryption_key must be base64 for exactly 32 bytes")
	}
	if raw, err := base64.StdEncoding.DecodeString(c.CustomerIdentifierKey); err != nil || len(raw) != 16 {
		errs = append(errs, "customer_identifier_key must be base64 for exactly 16 bytes")
	}

	if c.CustomerSecretsCacheSize == 0 {
		errs = append(errs, "customer_secrets_cache_size must be positive")
	}
	if c.CustomerCapabilitiesCacheSize == 0 {
		errs = append(errs, "customer_capabilities_cache_size must be positive")
	}
	if c.AggregationSamplePeriod == 0 {
		errs = append(errs, "aggregation_sample_period must be positive")
	}
	if c.ExpungeAge < c.AggregationAge {
		errs = append(errs, "expunge_age must be >= aggregation_age")
	}

	return errs
}

// DatabaseURL builds the libpq-style connection string that pgxpool and
// platform.RunMigrations consume; dbmux builds its own DSN from Settings.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.DatabaseUsername, c.DatabasePassword, c.DatabaseServer, c.DatabaseName)
}

// ResolvedDatabasePort returns DatabasePort, or Postgres's conventional
// 5432 when unset.
func (c *Config) ResolvedDatabasePort() int {
	if c.DatabasePort != 0 {
		return c.DatabasePort
	}
	return 5432
}

// PollingServerDefaultPort returns the configured polling-server port, or
// the scheme's conventional default when unset. fleet.Client does not read
// it: a registered server with Port 0 is addressed without an explicit port.
func (c *Config) PollingServerDefaultPort() int {
	if c.PollingServerPort != 0 {
		return c.PollingServerPort
	}
	if c.PollingServerScheme == "https" {
		return 443
	}
	return 80
}

// Load reads and validates the JSON configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs)
	}

	return &cfg, nil
}

// Watcher republishes a fresh *Config through an atomic.Pointer whenever
// the backing file changes on disk, so readers always see either the
// previous valid config or the newly validated one, never a partial
// write. A write that fails validation is reported through onError and
// the prior config is kept in place rather than applied.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	fsw     *fsnotify.Watcher
	onError func(error)
}

// NewWatcher loads path once and starts watching it for changes. onError,
// if non-nil, is called for every reload that fails to parse or validate.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	w := &Watcher{path: path, fsw: fsw, onError: onError}
	w.current.Store(cfg)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			w.current.Store(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// Current returns the most recently published valid Config.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Close stops the underlying file watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
