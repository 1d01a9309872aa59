// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Broker configuration: TOML file, defaults and a snapshot store with
// reload hooks.

package control

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/kbroker/api"
)

// Config is the broker configuration.
type Config struct {
	SocketPath        string `toml:"socket_path"`
	MaxUsers          int    `toml:"max_users"`
	MaxHandles        int    `toml:"max_handles"`
	MaxRequestData    int    `toml:"max_request_data"`
	LogLevel          string `toml:"log_level"`
	LogDevelopment    bool   `toml:"log_development"`
	DebugDumpOnSignal bool   `toml:"debug_dump_on_signal"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		SocketPath:        "/tmp/kbroker.sock",
		MaxUsers:          4096,
		MaxHandles:        1 << 16,
		MaxRequestData:    64 << 10,
		LogLevel:          "info",
		DebugDumpOnSignal: true,
	}
}

// LoadConfig reads path over the defaults. Keys absent from the file keep
// their default; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return finish(cfg, md)
}

// ParseConfig decodes TOML text over the defaults.
func ParseConfig(text string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg, md)
}

func finish(cfg Config, md toml.MetaData) (Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, api.ErrInvalidParameter.WithContext("unknown_key", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and the log level.
func (c Config) Validate() error {
	switch {
	case c.SocketPath == "":
		return api.ErrInvalidParameter.WithContext("key", "socket_path")
	case c.MaxUsers <= 0:
		return api.ErrInvalidParameter.WithContext("key", "max_users")
	case c.MaxHandles <= 0:
		return api.ErrInvalidParameter.WithContext("key", "max_handles")
	case c.MaxRequestData <= 0:
		return api.ErrInvalidParameter.WithContext("key", "max_request_data")
	}
	if _, err := c.Level(); err != nil {
		return api.ErrInvalidParameter.WithContext("log_level", c.LogLevel)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// ConfigStore holds the live configuration snapshot.
type ConfigStore struct {
	mu    sync.RWMutex
	cfg   Config
	hooks *ReloadHooks
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{cfg: cfg, hooks: NewReloadHooks()}
}

// Snapshot returns the current configuration.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cfg
}

// Set validates and installs cfg, then runs the reload hooks with it.
func (cs *ConfigStore) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.cfg = cfg
	cs.mu.Unlock()
	return cs.hooks.Run(cfg)
}

// OnReload registers a hook called after every Set.
func (cs *ConfigStore) OnReload(name string, fn func(Config) error) {
	cs.hooks.Register(name, fn)
}
