package command

import (
	"fmt"

	"github.com/takapi327/ldbc/mysql/auth"
	"github.com/takapi327/ldbc/mysql/wire"
)

// Ping sends COM_PING and waits for the server's OK.
func Ping(c *wire.Conn, caps wire.Capability) error {
	if err := sendCommand(c, ComPing, nil); err != nil {
		return fmt.Errorf("mysql: sending COM_PING: %w", err)
	}
	return readSimpleOK(c, caps, "COM_PING")
}

// InitDB sends COM_INIT_DB to change the default schema of the current
// connection without reopening it.
func InitDB(c *wire.Conn, caps wire.Capability, schema string) error {
	if err := sendCommand(c, ComInitDB, []byte(schema)); err != nil {
		return fmt.Errorf("mysql: sending COM_INIT_DB: %w", err)
	}
	return readSimpleOK(c, caps, "COM_INIT_DB")
}

// ResetConnection sends COM_RESET_CONNECTION: the server resets session
// variables, transaction state and prepared statements, but keeps the TCP
// connection and authentication in place. mysql.Conn.Reset issues it; the
// pool's Release does not.
func ResetConnection(c *wire.Conn, caps wire.Capability) error {
	if err := sendCommand(c, ComResetConnection, nil); err != nil {
		return fmt.Errorf("mysql: sending COM_RESET_CONNECTION: %w", err)
	}
	return readSimpleOK(c, caps, "COM_RESET_CONNECTION")
}

// Quit sends COM_QUIT. The server closes the connection without replying;
// callers should close the underlying net.Conn immediately afterward.
func Quit(c *wire.Conn) error {
	if err := sendCommand(c, ComQuit, nil); err != nil {
		return fmt.Errorf("mysql: sending COM_QUIT: %w", err)
	}
	return nil
}

// ChangeUserRequest carries the credentials COM_CHANGE_USER re-authenticates
// with: the auth response is Plugin's hash of Password over Scramble.
type ChangeUserRequest struct {
	Username     string
	Password     string
	Database     string
	Charset      byte
	Plugin       auth.Plugin
	Scramble     []byte
	ConnectAttrs map[string]string
}

// ChangeUser sends COM_CHANGE_USER, re-authenticating the existing TCP
// connection as a different user and resetting session state. The reply
// is read as a single OK or ERR packet; an AuthSwitchRequest or a
// full-authentication request from the server is not answered.
func ChangeUser(c *wire.Conn, caps wire.Capability, req ChangeUserRequest) error {
	authResponse, err := req.Plugin.Hash(req.Password, req.Scramble)
	if err != nil {
		return fmt.Errorf("mysql: computing COM_CHANGE_USER auth response: %w", err)
	}

	w := wire.NewWriter()
	w.NullTerminatedString(req.Username)
	if caps.Has(wire.ClientPluginAuthLenencClientData) {
		w.LenencString(authResponse)
	} else {
		w.Int1(byte(len(authResponse)))
		w.Raw(authResponse)
	}
	w.NullTerminatedString(req.Database)
	w.Int2(uint16(req.Charset))
	if caps.Has(wire.ClientPluginAuth) {
		w.NullTerminatedString(req.Plugin.Name())
	}
	if caps.Has(wire.ClientConnectAttrs) {
		attrs := wire.NewWriter()
		for k, v := range req.ConnectAttrs {
			attrs.LenencString([]byte(k))
			attrs.LenencString([]byte(v))
		}
		w.LenencString(attrs.Bytes())
	}

	if err := sendCommand(c, ComChangeUser, w.Bytes()); err != nil {
		return fmt.Errorf("mysql: sending COM_CHANGE_USER: %w", err)
	}
	return readSimpleOK(c, caps, "COM_CHANGE_USER")
}

func readSimpleOK(c *wire.Conn, caps wire.Capability, op string) error {
	payload, _, err := c.ReadPacket()
	if err != nil {
		return fmt.Errorf("mysql: reading %s response: %w", op, err)
	}
	if isErrPacket(payload) {
		se, err := parseErrPacket(payload, caps)
		if err != nil {
			return err
		}
		return se
	}
	_, err = parseOKPacket(payload, caps)
	return err
}
