// Package command implements the MySQL text and binary command protocol
// (§4.5): COM_QUERY, the COM_STMT_* prepared-statement family, the
// connection-utility commands, and batched statement execution.
package command

import (
	"fmt"

	"github.com/takapi327/ldbc/mysql/wire"
)

// ID is a COM_* command byte, sent as the first byte of a command packet's
// payload at sequence id 0.
type ID byte

const (
	ComQuit               ID = 0x01
	ComInitDB             ID = 0x02
	ComQuery              ID = 0x03
	ComFieldList          ID = 0x04
	ComPing               ID = 0x0e
	ComChangeUser         ID = 0x11
	ComStmtPrepare        ID = 0x16
	ComStmtExecute        ID = 0x17
	ComStmtSendLongData   ID = 0x18
	ComStmtClose          ID = 0x19
	ComStmtReset          ID = 0x1a
	ComSetOption          ID = 0x1b
	ComStmtFetch          ID = 0x1c
	ComResetConnection    ID = 0x1f
)

// statusFlag bits relevant to command processing (the full set lives
// alongside OKResult.StatusFlags for callers that need the rest).
const (
	statusMoreResultsExists uint16 = 0x0008
)

// ServerError is the typed decoding of an ERR_Packet (§7 error taxonomy).
// mysql.ServerError wraps this for callers outside the command package.
type ServerError struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ServerError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("mysql: server error %d (%s): %s", e.Code, e.SQLState, e.Message)
	}
	return fmt.Sprintf("mysql: server error %d: %s", e.Code, e.Message)
}

// OKResult is the typed decoding of an OK_Packet.
type OKResult struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
	Info         string
}

// MoreResultsExist reports whether the SERVER_MORE_RESULTS_EXISTS status
// flag is set, i.e. a multi-statement/batch reply has further results.
func (r *OKResult) MoreResultsExist() bool {
	return r.StatusFlags&statusMoreResultsExists != 0
}

// isOKPacket reports whether payload is an OK_Packet for the given header
// byte and negotiated capabilities. With CLIENT_DEPRECATE_EOF, 0xFE can
// also introduce an OK packet when the payload is shorter than 9 bytes.
func isOKPacket(payload []byte, caps wire.Capability) bool {
	if len(payload) == 0 {
		return false
	}
	switch payload[0] {
	case 0x00:
		return true
	case 0xfe:
		return caps.Has(wire.ClientDeprecateEOF) && len(payload) < 0xFFFFFF && len(payload) < 9
	default:
		return false
	}
}

// isErrPacket reports whether payload is an ERR_Packet.
func isErrPacket(payload []byte) bool {
	return len(payload) > 0 && payload[0] == 0xff
}

// isEOFPacket reports whether payload is a legacy EOF_Packet. Servers that
// negotiated CLIENT_DEPRECATE_EOF never send this; callers must check
// isOKPacket first in that mode.
func isEOFPacket(payload []byte, caps wire.Capability) bool {
	return !caps.Has(wire.ClientDeprecateEOF) && len(payload) < 9 && len(payload) > 0 && payload[0] == 0xfe
}

// isLocalInfileRequest reports whether the server is asking the client to
// stream a local file's contents (§4.5 LOCAL INFILE handling).
func isLocalInfileRequest(payload []byte) bool {
	return len(payload) > 0 && payload[0] == 0xfb
}

// ParseOK decodes an OK_Packet. Exported for the handshake/auth dialogue
// in the mysql package, which reads OK/ERR bytes outside of a normal
// sendCommand/readResponse round trip.
func ParseOK(payload []byte, caps wire.Capability) (*OKResult, error) {
	return parseOKPacket(payload, caps)
}

// ParseErr decodes an ERR_Packet. See ParseOK.
func ParseErr(payload []byte, caps wire.Capability) (*ServerError, error) {
	return parseErrPacket(payload, caps)
}

func parseOKPacket(payload []byte, caps wire.Capability) (*OKResult, error) {
	r := wire.NewReader(payload)
	r.Skip(1) // header byte (0x00 or 0xfe)
	res := &OKResult{}
	res.AffectedRows = r.LenencInt()
	res.LastInsertID = r.LenencInt()
	if caps.Has(wire.ClientProtocol41) {
		res.StatusFlags = r.Int2()
		res.Warnings = r.Int2()
	} else if caps.Has(wire.ClientTransactions) {
		res.StatusFlags = r.Int2()
	}
	if r.Len() > 0 {
		res.Info = string(r.RestOfPacketString())
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing OK packet: %w", r.Err())
	}
	return res, nil
}

func parseErrPacket(payload []byte, caps wire.Capability) (*ServerError, error) {
	r := wire.NewReader(payload)
	r.Skip(1) // 0xff
	code := r.Int2()
	se := &ServerError{Code: code}
	if caps.Has(wire.ClientProtocol41) {
		r.Skip(1) // '#' sql state marker
		se.SQLState = string(r.FixedBytes(5))
	}
	se.Message = string(r.RestOfPacketString())
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing ERR packet: %w", r.Err())
	}
	return se, nil
}

// sendCommand writes a command packet and resets the sequence id to 0 per
// the command-boundary invariant.
func sendCommand(c *wire.Conn, id ID, rest []byte) error {
	c.ResetSequence()
	payload := append([]byte{byte(id)}, rest...)
	_, err := c.WritePacket(payload, 0)
	return err
}
