// Command ldbc-smoketest dials a MySQL server, runs a small pool through
// its paces, and reports the result. It is a smoke test, not a load
// generator: it exercises Dial, the pool's acquire/release path and a text
// query, then exits.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/takapi327/ldbc/mysql"
	"github.com/takapi327/ldbc/mysql/config"
	"github.com/takapi327/ldbc/mysql/pool"
)

func main() {
	configPath := flag.String("config", "", "path to a pool config YAML file (overrides the connection flags below)")
	host := flag.String("host", "127.0.0.1", "MySQL host")
	port := flag.Int("port", 3306, "MySQL port")
	user := flag.String("user", "root", "MySQL user")
	password := flag.String("password", "", "MySQL password")
	database := flag.String("database", "", "initial schema")
	query := flag.String("query", "SELECT 1", "query to run once a connection is acquired")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("ldbc-smoketest starting...")

	cfg := mysql.Config{
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Database: *database,
	}.WithDefaults()

	poolCfg := pool.Config{
		MinConnections:      1,
		MaxConnections:      4,
		ConnectionTimeout:   5 * time.Second,
		IdleTimeout:         5 * time.Minute,
		MaxLifetime:         30 * time.Minute,
		KeepaliveTime:       30 * time.Second,
		ValidationTimeout:   time.Second,
		MaintenanceInterval: 10 * time.Second,
	}

	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = mysql.Config{
			Host:     fileCfg.Connection.Host,
			Port:     fileCfg.Connection.Port,
			User:     fileCfg.Connection.User,
			Password: fileCfg.Connection.Password,
			Database: fileCfg.Connection.Database,
		}.WithDefaults()
		poolCfg = pool.Config{
			MinConnections:      fileCfg.Pool.MinConnections,
			MaxConnections:      fileCfg.Pool.MaxConnections,
			ConnectionTimeout:   fileCfg.Pool.ConnectionTimeout,
			IdleTimeout:         fileCfg.Pool.IdleTimeout,
			MaxLifetime:         fileCfg.Pool.MaxLifetime,
			KeepaliveTime:       fileCfg.Pool.KeepaliveTime,
			ValidationTimeout:   fileCfg.Pool.ValidationTimeout,
			MaintenanceInterval: fileCfg.Pool.MaintenanceInterval,
		}
		log.Printf("Configuration loaded from %s", *configPath)
	}

	observer := mysql.NewSlogObserver(slog.Default())
	metrics := pool.NewMetrics()

	label := cfg.Addr()
	if cfg.Database != "" {
		label += "/" + cfg.Database
	}

	p, err := mysql.NewPool(label, cfg, observer, poolCfg, metrics)
	if err != nil {
		log.Fatalf("Failed to build pool against %s: %v", label, err)
	}
	log.Printf("Pool ready against %s (min=%d max=%d)", label, poolCfg.MinConnections, poolCfg.MaxConnections)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mysql.Use(ctx, p, func(conn *mysql.Conn) error {
		res, err := conn.ExecuteQuery(ctx, *query)
		if err != nil {
			return err
		}
		log.Printf("Query %q returned %d row(s)", *query, len(res.Rows))
		return nil
	}); err != nil {
		log.Fatalf("Smoke query failed: %v", err)
	}

	status := p.Status()
	log.Printf("Pool status: active=%d idle=%d total=%d waiting=%d", status.Active, status.Idle, status.Total, status.Waiting)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %s, shutting down...", sig)
	case <-time.After(200 * time.Millisecond):
		log.Printf("Smoke test complete, shutting down...")
	}

	p.Close()
	log.Printf("ldbc-smoketest stopped")
}
