package mysql

import (
	"fmt"
	"time"

	"github.com/takapi327/ldbc/mysql/command"
	"github.com/takapi327/ldbc/mysql/resultset"
	"github.com/takapi327/ldbc/mysql/tlsconn"
)

// Config is the connection configuration surface enumerated in §6: host,
// port, credentials, TLS mode, connection attributes, charset, and the
// handful of behavioral toggles the protocol leaves to the client.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	TLS tlsconn.Config

	// ConnectAttrs are sent as the handshake's connection-attributes map
	// (program_name, client version, etc).
	ConnectAttrs map[string]string

	// Charset is the collation id (which also selects the connection's
	// character set) sent as part of HandshakeResponse41.
	Charset byte

	// AllowPublicKeyRetrieval permits requesting the server's RSA public
	// key over an unencrypted connection during caching_sha2_password /
	// sha256_password full authentication. Off by default: doing this
	// over plaintext leaks nothing secret (the key is public) but is
	// still an explicit opt-in per most driver conventions.
	AllowPublicKeyRetrieval bool

	// UseServerPreparedStatements selects COM_STMT_PREPARE/EXECUTE over
	// folding every query into COM_QUERY text.
	UseServerPreparedStatements bool

	// RewriteBatchedStatements folds a batch of single-row INSERTs into
	// one multi-VALUES INSERT where the SQL shape allows it.
	RewriteBatchedStatements bool

	// ZeroDateBehavior controls how an all-zero DATE/DATETIME/TIMESTAMP
	// is surfaced to callers.
	ZeroDateBehavior resultset.ZeroDateBehavior

	// AllowLocalInfile opts in to honoring a server's LOCAL INFILE
	// request; rejected by default (§9 design note).
	AllowLocalInfile bool
	// LocalInfileHandler supplies file content when AllowLocalInfile is
	// set; required if AllowLocalInfile is true.
	LocalInfileHandler command.LocalInfileHandler

	// ReadTimeout/WriteTimeout bound individual socket operations, set on
	// the net.Conn's deadlines independent of any context passed in.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DialTimeout bounds the initial TCP connect.
	DialTimeout time.Duration
}

const defaultPort = 3306

// Validate checks the configuration surface for the mistakes that are
// cheap to catch before ever dialing: missing host, a port out of range,
// missing user, a LOCAL INFILE opt-in with no handler.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ConfigError{Field: "Host", Reason: "must not be empty"}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Reason: fmt.Sprintf("must be in [1,65535], got %d", c.Port)}
	}
	if c.User == "" {
		return &ConfigError{Field: "User", Reason: "must not be empty"}
	}
	if c.AllowLocalInfile && c.LocalInfileHandler == nil {
		return &ConfigError{Field: "LocalInfileHandler", Reason: "required when AllowLocalInfile is true"}
	}
	return nil
}

// Addr returns the host:port dial target, defaulting the port to 3306.
func (c *Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// WithDefaults returns a copy of c with zero-valued optional fields set
// to their documented defaults.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Charset == 0 {
		c.Charset = 0x2d // utf8mb4_general_ci
	}
	return c
}
