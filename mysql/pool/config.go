package pool

import (
	"fmt"
	"time"
)

// Config validates and holds the tunables of §4.8. Every field has a
// spec-mandated floor; New returns an error if any is violated.
type Config struct {
	// MinConnections is the floor the maintenance loop keeps filled.
	MinConnections int
	// MaxConnections is the hard ceiling on live connections.
	MaxConnections int
	// ConnectionTimeout bounds how long Acquire waits for an entry.
	ConnectionTimeout time.Duration
	// IdleTimeout retires connections idle longer than this.
	IdleTimeout time.Duration
	// MaxLifetime retires connections older than this regardless of use.
	MaxLifetime time.Duration
	// KeepaliveTime is the periodic validation interval.
	KeepaliveTime time.Duration
	// ValidationTimeout bounds a single validation probe.
	ValidationTimeout time.Duration
	// MaintenanceInterval is the housekeeper's run period.
	MaintenanceInterval time.Duration
	// LeakDetectionThreshold, if non-zero, logs a warning when a borrowed
	// entry hasn't been released after this long.
	LeakDetectionThreshold time.Duration
	// AliveBypassWindow, if non-zero, skips validation on acquire for
	// entries whose last successful validation is within this long.
	AliveBypassWindow time.Duration
}

const (
	minConnectionTimeout   = 250 * time.Millisecond
	minIdleTimeout         = 10 * time.Second
	minMaxLifetime         = 40 * time.Second
	minKeepaliveTime       = 30 * time.Second
	minValidationTimeout   = 250 * time.Millisecond
	minMaintenanceInterval = 1 * time.Second
)

// DefaultConfig returns a Config satisfying every floor in §4.8, suitable
// as a starting point for callers that only need to override a few
// fields.
func DefaultConfig() Config {
	return Config{
		MinConnections:      0,
		MaxConnections:      10,
		ConnectionTimeout:   30 * time.Second,
		IdleTimeout:         10 * time.Minute,
		MaxLifetime:         30 * time.Minute,
		KeepaliveTime:       1 * time.Minute,
		ValidationTimeout:   1 * time.Second,
		MaintenanceInterval: 30 * time.Second,
	}
}

// Validate checks every field against its spec-mandated floor and the
// cross-field constraints (max >= min, idleTimeout/keepaliveTime <
// maxLifetime).
func (c Config) Validate() error {
	if c.MinConnections < 0 {
		return fmt.Errorf("mysql: pool: minConnections must be >= 0, got %d", c.MinConnections)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("mysql: pool: maxConnections must be >= 1, got %d", c.MaxConnections)
	}
	if c.MaxConnections < c.MinConnections {
		return fmt.Errorf("mysql: pool: maxConnections (%d) must be >= minConnections (%d)", c.MaxConnections, c.MinConnections)
	}
	if c.ConnectionTimeout < minConnectionTimeout {
		return fmt.Errorf("mysql: pool: connectionTimeout must be >= %s, got %s", minConnectionTimeout, c.ConnectionTimeout)
	}
	if c.MaxLifetime < minMaxLifetime {
		return fmt.Errorf("mysql: pool: maxLifetime must be >= %s, got %s", minMaxLifetime, c.MaxLifetime)
	}
	if c.IdleTimeout < minIdleTimeout {
		return fmt.Errorf("mysql: pool: idleTimeout must be >= %s, got %s", minIdleTimeout, c.IdleTimeout)
	}
	if c.IdleTimeout >= c.MaxLifetime {
		return fmt.Errorf("mysql: pool: idleTimeout (%s) must be < maxLifetime (%s)", c.IdleTimeout, c.MaxLifetime)
	}
	if c.KeepaliveTime < minKeepaliveTime {
		return fmt.Errorf("mysql: pool: keepaliveTime must be >= %s, got %s", minKeepaliveTime, c.KeepaliveTime)
	}
	if c.KeepaliveTime >= c.MaxLifetime {
		return fmt.Errorf("mysql: pool: keepaliveTime (%s) must be < maxLifetime (%s)", c.KeepaliveTime, c.MaxLifetime)
	}
	if c.ValidationTimeout < minValidationTimeout {
		return fmt.Errorf("mysql: pool: validationTimeout must be >= %s, got %s", minValidationTimeout, c.ValidationTimeout)
	}
	if c.MaintenanceInterval < minMaintenanceInterval {
		return fmt.Errorf("mysql: pool: maintenanceInterval must be >= %s, got %s", minMaintenanceInterval, c.MaintenanceInterval)
	}
	return nil
}
