package mysql

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/takapi327/ldbc/mysql/auth"
	"github.com/takapi327/ldbc/mysql/command"
	"github.com/takapi327/ldbc/mysql/protocol"
	"github.com/takapi327/ldbc/mysql/resultset"
	"github.com/takapi327/ldbc/mysql/tlsconn"
	"github.com/takapi327/ldbc/mysql/wire"
)

// TxIsolationLevel names a SQL transaction isolation level for
// setTransactionIsolation.
type TxIsolationLevel string

const (
	IsolationReadUncommitted TxIsolationLevel = "READ UNCOMMITTED"
	IsolationReadCommitted   TxIsolationLevel = "READ COMMITTED"
	IsolationRepeatableRead  TxIsolationLevel = "REPEATABLE READ"
	IsolationSerializable    TxIsolationLevel = "SERIALIZABLE"
)

// Conn is the Connection Handle of §4.7: a stateful object layered over
// the session machine exposing statements, transactions, isolation,
// read-only mode, autocommit, and warnings. All operations are
// sequential on one Conn; concurrent use from more than one goroutine is
// a programmer error and is not guarded against, matching the
// single-owner contract the pool enforces.
type Conn struct {
	cfg      Config
	wc       *wire.Conn
	session  *protocol.Session
	caps     wire.Capability
	observer Observer

	mu       sync.Mutex
	poisoned bool
	closed   bool

	warnings uint16
}

// Dial opens a TCP connection to cfg.Addr(), performs the MySQL
// handshake (including an optional TLS upgrade) and authentication, and
// returns a ready Conn in COMMAND_READY state.
func Dial(ctx context.Context, cfg Config, observer Observer) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = noopObserver{}
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &ConnectError{Addr: cfg.Addr(), Err: err}
	}

	wc := wire.NewConn(nc)
	wc.SetTimeouts(cfg.ReadTimeout, cfg.WriteTimeout)
	session := protocol.NewSession()

	c := &Conn{
		cfg:      cfg,
		wc:       wc,
		session:  session,
		observer: observer,
	}

	if err := c.handshake(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	payload, _, err := c.wc.ReadPacket()
	if err != nil {
		return &ConnectError{Addr: c.cfg.Addr(), Err: err}
	}
	hs, err := protocol.ParseHandshakeV10(payload)
	if err != nil {
		return &ProtocolError{Detail: "parsing handshake", Err: err}
	}
	if err := c.session.ReceiveHandshake(); err != nil {
		return &ProtocolError{Detail: "session transition on handshake", Err: err}
	}

	caps := wire.DefaultClientCapabilities
	if c.cfg.Database != "" {
		caps |= wire.ClientConnectWithDB
	}
	if len(c.cfg.ConnectAttrs) > 0 {
		caps |= wire.ClientConnectAttrs
	}
	wantTLS := c.cfg.TLS.Enabled() && hs.Capabilities.Has(wire.ClientSSL)
	if wantTLS {
		caps |= wire.ClientSSL
	}
	caps &= hs.Capabilities // only request what the server actually advertises

	if wantTLS {
		if err := c.upgradeTLS(caps); err != nil {
			return err
		}
	}

	plugin, err := auth.ByName(hs.AuthPluginName)
	if err != nil {
		return &AuthenticationError{Reason: "selecting plugin", Err: err}
	}
	authResponse, err := plugin.Hash(c.cfg.Password, hs.AuthPluginData)
	if err != nil {
		return &AuthenticationError{Reason: "computing auth response", Err: err}
	}

	resp := protocol.HandshakeResponse{
		Capabilities:   caps,
		MaxPacketSize:  wire.MaxPayloadLen,
		Charset:        c.cfg.Charset,
		Username:       c.cfg.User,
		AuthResponse:   authResponse,
		Database:       c.cfg.Database,
		AuthPluginName: plugin.Name(),
		ConnectAttrs:   c.cfg.ConnectAttrs,
	}
	if _, err := c.wc.WritePacket(resp.Build(), c.wc.Sequence()); err != nil {
		return &ConnectError{Addr: c.cfg.Addr(), Err: err}
	}
	if err := c.session.BeginAuth(); err != nil {
		return &ProtocolError{Detail: "session transition beginning auth", Err: err}
	}
	c.caps = caps

	if err := c.authDialogue(ctx, plugin, hs.AuthPluginData); err != nil {
		return err
	}
	if err := c.session.CompleteAuth(); err != nil {
		return &ProtocolError{Detail: "session transition completing auth", Err: err}
	}
	return nil
}

func (c *Conn) upgradeTLS(caps wire.Capability) error {
	ssl := tlsconn.SSLRequestPayload(caps, wire.MaxPayloadLen, c.cfg.Charset)
	if _, err := c.wc.WritePacket(ssl, c.wc.Sequence()); err != nil {
		return &TlsError{Err: err}
	}
	tcfg := c.cfg.TLS
	if tcfg.ServerName == "" {
		tcfg.ServerName = c.cfg.Host
	}
	tlsConn, err := tlsconn.Upgrade(c.wc.Raw(), tcfg)
	if err != nil {
		return &TlsError{Err: err}
	}
	c.wc.SetRaw(tlsConn)
	return nil
}

// authDialogue drives the post-HandshakeResponse exchange: a fast-path
// OK/ERR, an AuthSwitchRequest to a different plugin, or (for
// caching_sha2_password/sha256_password) the full-auth sub-dialogue that
// may itself request the server's RSA public key.
func (c *Conn) authDialogue(ctx context.Context, plugin auth.Plugin, scramble []byte) error {
	payload, _, err := c.wc.ReadPacket()
	if err != nil {
		return &AuthenticationError{Reason: "reading auth response", Err: err}
	}

	for {
		switch {
		case len(payload) > 0 && payload[0] == 0x00:
			if _, perr := command.ParseOK(payload, c.caps); perr != nil {
				return &ProtocolError{Detail: "parsing auth OK", Err: perr}
			}
			return nil

		case len(payload) > 0 && payload[0] == 0xFF:
			se, perr := command.ParseErr(payload, c.caps)
			if perr != nil {
				return &AuthenticationError{Reason: "parsing auth ERR", Err: perr}
			}
			return &AuthenticationError{Reason: "server rejected credentials", Err: se}

		case len(payload) > 0 && payload[0] == 0xFE && len(payload) > 1:
			// AuthSwitchRequest: server wants a different plugin.
			req, perr := protocol.ParseAuthSwitchRequest(payload[1:])
			if perr != nil {
				return &ProtocolError{Detail: "parsing auth switch request", Err: perr}
			}
			if err := c.session.ContinueAuth(); err != nil {
				return &ProtocolError{Detail: "session transition on auth switch", Err: err}
			}
			newPlugin, perr := auth.ByName(req.PluginName)
			if perr != nil {
				return &AuthenticationError{Reason: "unsupported plugin on switch", Err: perr}
			}
			plugin = newPlugin
			scramble = req.Scramble
			resp, herr := plugin.Hash(c.cfg.Password, scramble)
			if herr != nil {
				return &AuthenticationError{Reason: "computing switched auth response", Err: herr}
			}
			if _, werr := c.wc.WritePacket(resp, c.wc.Sequence()); werr != nil {
				return &AuthenticationError{Reason: "sending auth switch response", Err: werr}
			}
			payload, _, err = c.wc.ReadPacket()
			if err != nil {
				return &AuthenticationError{Reason: "reading post-switch response", Err: err}
			}
			continue

		case len(payload) == 1 && payload[0] == auth.StatusFastAuthSuccess:
			payload, _, err = c.wc.ReadPacket()
			if err != nil {
				return &AuthenticationError{Reason: "reading post-fast-auth OK", Err: err}
			}
			continue

		case len(payload) == 1 && payload[0] == auth.StatusFullAuthRequired:
			if err := c.fullAuth(plugin, scramble); err != nil {
				return err
			}
			payload, _, err = c.wc.ReadPacket()
			if err != nil {
				return &AuthenticationError{Reason: "reading post-full-auth response", Err: err}
			}
			continue

		default:
			return &ProtocolError{Detail: "unexpected byte in auth dialogue"}
		}
	}
}

func (c *Conn) fullAuth(plugin auth.Plugin, scramble []byte) error {
	fa, ok := plugin.(auth.FullAuth)
	if !ok {
		return &AuthenticationError{Reason: fmt.Sprintf("plugin %s does not support full authentication", plugin.Name())}
	}
	overSecure := c.caps.Has(wire.ClientSSL)

	var pubKeyPEM []byte
	if !overSecure {
		if !c.cfg.AllowPublicKeyRetrieval {
			return &AuthenticationError{Reason: "full authentication requires TLS or AllowPublicKeyRetrieval"}
		}
		if _, err := c.wc.WritePacket([]byte{auth.StatusRequestPublicKey}, c.wc.Sequence()); err != nil {
			return &AuthenticationError{Reason: "requesting server public key", Err: err}
		}
		payload, _, err := c.wc.ReadPacket()
		if err != nil {
			return &AuthenticationError{Reason: "reading server public key", Err: err}
		}
		pubKeyPEM = payload
	}

	out, err := fa.EncryptForFullAuth(c.cfg.Password, scramble, overSecure, pubKeyPEM)
	if err != nil {
		return &AuthenticationError{Reason: "encrypting full-auth payload", Err: err}
	}
	if _, err := c.wc.WritePacket(out, c.wc.Sequence()); err != nil {
		return &AuthenticationError{Reason: "sending full-auth payload", Err: err}
	}
	return nil
}

// --- Connection Handle operations (§4.7) ---

func (c *Conn) trace(op, table string, start time.Time, err error) error {
	dur := time.Since(start)
	if err == nil {
		c.observer.OnSuccess(op, table, dur)
		return nil
	}
	if _, ok := err.(*command.ServerError); ok {
		c.observer.OnExecFailure(op, table, dur, err)
	} else {
		c.observer.OnProcessingFailure(op, table, dur, err)
	}
	return err
}

func (c *Conn) poison() {
	c.mu.Lock()
	c.poisoned = true
	c.mu.Unlock()
}

// Poisoned reports whether a ProtocolError, TlsError, decoder failure or
// cancelled in-flight command has occurred, per the pool's
// destroy-don't-recycle policy (§7).
func (c *Conn) Poisoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}

func (c *Conn) guardOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return nil
}

// ExecuteQuery runs sql as a text-protocol COM_QUERY and returns the
// decoded result set.
func (c *Conn) ExecuteQuery(ctx context.Context, sql string) (*command.QueryResult, error) {
	if err := c.guardOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := c.session.SendCommand(); err != nil {
		c.poison()
		return nil, c.trace("query", "", start, &ProtocolError{Detail: "sending query", Err: err})
	}
	res, err := command.Query(c.wc, c.caps, sql, c.cfg.AllowLocalInfile, c.cfg.LocalInfileHandler)
	if cerr := c.afterCommand(err); cerr != nil {
		return nil, c.trace("query", "", start, cerr)
	}
	if err == nil {
		c.mu.Lock()
		c.warnings = 0
		if res.OK != nil {
			c.warnings = res.OK.Warnings
		}
		c.mu.Unlock()
	}
	return res, c.trace("query", "", start, err)
}

// ExecuteUpdate runs sql as a text-protocol COM_QUERY expected to return
// an OK (DML/DDL), returning affected row count.
func (c *Conn) ExecuteUpdate(ctx context.Context, sql string) (uint64, error) {
	res, err := c.ExecuteQuery(ctx, sql)
	if err != nil {
		return 0, err
	}
	if res.OK == nil {
		return 0, &ProtocolError{Detail: "executeUpdate: statement returned a result set"}
	}
	return res.OK.AffectedRows, nil
}

// Execute is the general entry point mirroring JDBC's Statement.execute:
// it runs sql and returns whatever the server sent back, OK or rows.
func (c *Conn) Execute(ctx context.Context, sql string) (*command.QueryResult, error) {
	return c.ExecuteQuery(ctx, sql)
}

// PrepareStatement issues COM_STMT_PREPARE and returns an owned Stmt
// handle.
func (c *Conn) PrepareStatement(ctx context.Context, sql string) (*Stmt, error) {
	if err := c.guardOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := c.session.SendCommand(); err != nil {
		c.poison()
		return nil, c.trace("prepare", "", start, &ProtocolError{Detail: "sending prepare", Err: err})
	}
	ps, err := command.Prepare(c.wc, c.caps, sql)
	if cerr := c.afterCommand(err); cerr != nil {
		return nil, c.trace("prepare", "", start, cerr)
	}
	c.trace("prepare", "", start, nil)
	return &Stmt{conn: c, ps: ps}, nil
}

// CreateStatement is the unprepared counterpart to PrepareStatement: it
// returns a thin handle that runs text-protocol queries through this
// Conn, for callers that never want server-side preparation.
func (c *Conn) CreateStatement() *SimpleStatement {
	return &SimpleStatement{conn: c}
}

// Ping sends COM_PING; it doubles as the pool's validation probe (§4.8),
// since *Conn satisfies pool.Conn directly. When ctx has a deadline, the
// probe's read and write timeouts are bounded by it.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok {
		remaining := time.Until(d)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		c.wc.SetTimeouts(remaining, remaining)
		defer c.wc.SetTimeouts(c.cfg.ReadTimeout, c.cfg.WriteTimeout)
	}
	start := time.Now()
	if err := c.session.SendCommand(); err != nil {
		c.poison()
		return c.trace("ping", "", start, &ProtocolError{Detail: "sending ping", Err: err})
	}
	err := command.Ping(c.wc, c.caps)
	if cerr := c.afterCommand(err); cerr != nil {
		return c.trace("ping", "", start, cerr)
	}
	return c.trace("ping", "", start, nil)
}

// IsValid pings the server within timeout and reports whether it
// responded successfully.
func (c *Conn) IsValid(ctx context.Context, timeout time.Duration) bool {
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Ping(vctx) == nil
}

// SetAutoCommit toggles autocommit via SET SESSION autocommit.
func (c *Conn) SetAutoCommit(ctx context.Context, on bool) error {
	val := "0"
	if on {
		val = "1"
	}
	_, err := c.ExecuteUpdate(ctx, "SET SESSION autocommit = "+val)
	return err
}

// Commit issues COMMIT.
func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.ExecuteUpdate(ctx, "COMMIT")
	return err
}

// Rollback issues ROLLBACK.
func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.ExecuteUpdate(ctx, "ROLLBACK")
	return err
}

// SetTransactionIsolation issues SET SESSION TRANSACTION ISOLATION LEVEL.
func (c *Conn) SetTransactionIsolation(ctx context.Context, level TxIsolationLevel) error {
	_, err := c.ExecuteUpdate(ctx, "SET SESSION TRANSACTION ISOLATION LEVEL "+string(level))
	return err
}

// SetReadOnly always issues SET SESSION TRANSACTION READ ONLY/READ WRITE
// against the server, so server-side state always matches the handle's
// recorded intent rather than relying on a client-side-only flag.
func (c *Conn) SetReadOnly(ctx context.Context, readOnly bool) error {
	mode := "READ WRITE"
	if readOnly {
		mode = "READ ONLY"
	}
	_, err := c.ExecuteUpdate(ctx, "SET SESSION TRANSACTION "+mode)
	return err
}

// SetCatalog changes the default schema via COM_INIT_DB.
func (c *Conn) SetCatalog(ctx context.Context, schema string) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	start := time.Now()
	if err := c.session.SendCommand(); err != nil {
		c.poison()
		return c.trace("init_db", schema, start, &ProtocolError{Detail: "sending init db", Err: err})
	}
	err := command.InitDB(c.wc, c.caps, schema)
	if cerr := c.afterCommand(err); cerr != nil {
		return c.trace("init_db", schema, start, cerr)
	}
	c.cfg.Database = schema
	return c.trace("init_db", schema, start, nil)
}

// SetSchema is an alias for SetCatalog; MySQL has no catalog/schema
// distinction, so both the JDBC-style names resolve to the same command.
func (c *Conn) SetSchema(ctx context.Context, schema string) error {
	return c.SetCatalog(ctx, schema)
}

// GetWarnings returns the warning count from the OK packet of the most
// recent successful text-protocol query (ExecuteQuery and the methods
// built on it); it is 0 when that query returned a result set, and after
// Reset. Prepared-statement executions do not change it.
func (c *Conn) GetWarnings() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnings
}

// Reset recycles the connection for reuse by the pool without a full
// reconnect: COM_RESET_CONNECTION clears session variables, transaction
// state and prepared statements while keeping authentication in place.
func (c *Conn) Reset(ctx context.Context) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	start := time.Now()
	if err := c.session.SendCommand(); err != nil {
		c.poison()
		return c.trace("reset_connection", "", start, &ProtocolError{Detail: "sending reset", Err: err})
	}
	err := command.ResetConnection(c.wc, c.caps)
	if cerr := c.afterCommand(err); cerr != nil {
		return c.trace("reset_connection", "", start, cerr)
	}
	c.mu.Lock()
	c.warnings = 0
	c.mu.Unlock()
	return c.trace("reset_connection", "", start, nil)
}

// Close sends COM_QUIT and closes the underlying socket. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = command.Quit(c.wc)
	c.session.Quit()
	return c.wc.Raw().Close()
}

// afterCommand advances the session machine past the just-completed
// command. A *command.ServerError is a first-class, fully-read reply
// (§7): the wire is back in COMMAND_READY and the connection stays
// usable, so it takes the same ResultConsumed transition as success.
// Anything else — a protocol/decode failure or a cancelled command —
// leaves the wire in an unknown state, so it poisons the connection and
// aborts the session instead.
func (c *Conn) afterCommand(cmdErr error) error {
	if cmdErr != nil {
		if _, isServerErr := cmdErr.(*command.ServerError); isServerErr {
			if err := c.session.ResultConsumed(); err != nil {
				c.poison()
				return &ProtocolError{Detail: "session transition after server error", Err: err}
			}
			return nil
		}
		c.poison()
		c.session.Abort(cmdErr)
		return nil
	}
	if err := c.session.ResultConsumed(); err != nil {
		c.poison()
		return &ProtocolError{Detail: "session transition after result", Err: err}
	}
	return nil
}
