// Package config loads a declarative YAML configuration for a pool: the
// connection surface (host/port/credentials/TLS) plus the §4.8 pool
// defaults, with ${VAR} environment substitution and optional fsnotify
// hot-reload. Most callers construct mysql.Config/pool.Config directly in
// code; this package exists for operators who want to declare a pool via
// file instead.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level declarative pool configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Pool       PoolDefaults     `yaml:"pool"`
}

// ConnectionConfig is the YAML-facing subset of mysql.Config.
type ConnectionConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	TLSMode        string `yaml:"tls_mode"` // disabled|trusted|verify-ca|verify-identity
	TLSTrustStore  string `yaml:"tls_trust_store,omitempty"`
	TLSServerName  string `yaml:"tls_server_name,omitempty"`

	AllowPublicKeyRetrieval     bool `yaml:"allow_public_key_retrieval"`
	UseServerPreparedStatements bool `yaml:"use_server_prepared_statements"`
	RewriteBatchedStatements    bool `yaml:"rewrite_batched_statements"`
	ZeroDateBehavior            string `yaml:"zero_date_behavior"` // convertToNull|exception|round
	AllowLocalInfile            bool `yaml:"allow_local_infile"`
}

// PoolDefaults mirrors pool.Config's YAML-serializable fields (§4.8).
type PoolDefaults struct {
	MinConnections          int           `yaml:"min_connections"`
	MaxConnections          int           `yaml:"max_connections"`
	ConnectionTimeout       time.Duration `yaml:"connection_timeout"`
	IdleTimeout             time.Duration `yaml:"idle_timeout"`
	MaxLifetime             time.Duration `yaml:"max_lifetime"`
	KeepaliveTime           time.Duration `yaml:"keepalive_time"`
	ValidationTimeout       time.Duration `yaml:"validation_timeout"`
	MaintenanceInterval     time.Duration `yaml:"maintenance_interval"`
	LeakDetectionThreshold  time.Duration `yaml:"leak_detection_threshold,omitempty"`
	AliveBypassWindow       time.Duration `yaml:"alive_bypass_window,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values, leaving unresolved references untouched.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with ${VAR} substitution and
// default application.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ldbc: config: reading %s: %w", path, err)
	}
	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ldbc: config: parsing %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("ldbc: config: validating %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Connection.Host == "" {
		return fmt.Errorf("connection.host is required")
	}
	if cfg.Connection.User == "" {
		return fmt.Errorf("connection.user is required")
	}
	switch cfg.Connection.TLSMode {
	case "", "disabled", "trusted", "verify-ca", "verify-identity":
	default:
		return fmt.Errorf("connection.tls_mode %q is not one of disabled|trusted|verify-ca|verify-identity", cfg.Connection.TLSMode)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Connection.Port == 0 {
		cfg.Connection.Port = 3306
	}
	if cfg.Pool.MaxConnections == 0 {
		cfg.Pool.MaxConnections = 10
	}
	if cfg.Pool.ConnectionTimeout == 0 {
		cfg.Pool.ConnectionTimeout = 30 * time.Second
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = 10 * time.Minute
	}
	if cfg.Pool.MaxLifetime == 0 {
		cfg.Pool.MaxLifetime = 30 * time.Minute
	}
	if cfg.Pool.KeepaliveTime == 0 {
		cfg.Pool.KeepaliveTime = 1 * time.Minute
	}
	if cfg.Pool.ValidationTimeout == 0 {
		cfg.Pool.ValidationTimeout = 1 * time.Second
	}
	if cfg.Pool.MaintenanceInterval == 0 {
		cfg.Pool.MaintenanceInterval = 30 * time.Second
	}
}

// Watcher watches a config file for changes and calls callback with the
// reloaded Config, debounced so a burst of filesystem events triggers one
// reload.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a Watcher for path, starting its run loop
// immediately.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ldbc: config: creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("ldbc: config: watching %s: %w", path, err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("ldbc: config: watcher error", "err", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		slog.Warn("ldbc: config: hot-reload failed", "path", cw.path, "err", err)
		return
	}
	slog.Info("ldbc: config: reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
