// Package protocol drives the MySQL connection-phase state machine:
// handshake parsing, HandshakeResponse41 construction, and the
// connect -> handshake -> auth -> command-ready transitions of §4.4.
package protocol

import (
	"fmt"

	"github.com/takapi327/ldbc/mysql/wire"
)

// HandshakeV10 is the server's initial greeting (§3 data model).
type HandshakeV10 struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte // 20-byte scramble, reassembled from both parts
	Capabilities    wire.Capability
	Charset         byte
	StatusFlags     uint16
	AuthPluginName  string
}

// ParseHandshakeV10 decodes the server's Protocol::HandshakeV10 packet,
// including the auth-plugin-data-part-2 length quirk (max(13, len-8)) that
// every MySQL client has to special-case.
func ParseHandshakeV10(payload []byte) (*HandshakeV10, error) {
	r := wire.NewReader(payload)

	h := &HandshakeV10{}
	h.ProtocolVersion = r.Int1()
	h.ServerVersion = string(r.NullTerminatedString())
	h.ConnectionID = r.Int4()

	part1 := r.FixedBytes(8)
	r.Skip(1) // filler

	capLow := uint32(r.Int2())

	h.Charset = r.Int1()
	h.StatusFlags = r.Int2()
	capHigh := uint32(r.Int2())
	h.Capabilities = wire.Capability(capLow | capHigh<<16)

	authPluginDataLen := int(r.Int1())
	r.Skip(10) // reserved

	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing handshake: %w", r.Err())
	}

	part2Len := authPluginDataLen - 8
	if part2Len < 13 {
		part2Len = 13
	}
	part2 := r.FixedBytes(part2Len)
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing handshake auth data: %w", r.Err())
	}
	// trim trailing NUL terminator from part 2
	if n := len(part2); n > 0 && part2[n-1] == 0 {
		part2 = part2[:n-1]
	}

	h.AuthPluginData = append(append([]byte{}, part1...), part2...)

	if h.Capabilities.Has(wire.ClientPluginAuth) {
		h.AuthPluginName = string(r.NullTerminatedString())
	} else {
		h.AuthPluginName = "mysql_native_password"
	}

	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing handshake plugin name: %w", r.Err())
	}
	return h, nil
}

// HandshakeResponse holds everything needed to build a
// HandshakeResponse41 packet.
type HandshakeResponse struct {
	Capabilities   wire.Capability
	MaxPacketSize  uint32
	Charset        byte
	Username       string
	AuthResponse   []byte
	Database       string
	AuthPluginName string
	ConnectAttrs   map[string]string
}

// Build encodes a HandshakeResponse41 packet body (§6).
func (r HandshakeResponse) Build() []byte {
	w := wire.NewWriter()
	w.Int4(uint32(r.Capabilities))
	w.Int4(r.MaxPacketSize)
	w.Int1(r.Charset)
	w.Zero(23)
	w.NullTerminatedString(r.Username)

	switch {
	case r.Capabilities.Has(wire.ClientPluginAuthLenencClientData):
		w.LenencString(r.AuthResponse)
	case r.Capabilities.Has(wire.ClientSecureConnection):
		w.Int1(byte(len(r.AuthResponse)))
		w.Raw(r.AuthResponse)
	default:
		w.NullTerminatedString(string(r.AuthResponse))
	}

	if r.Capabilities.Has(wire.ClientConnectWithDB) {
		w.NullTerminatedString(r.Database)
	}
	if r.Capabilities.Has(wire.ClientPluginAuth) {
		w.NullTerminatedString(r.AuthPluginName)
	}
	if r.Capabilities.Has(wire.ClientConnectAttrs) {
		attrs := wire.NewWriter()
		for k, v := range r.ConnectAttrs {
			attrs.LenencString([]byte(k))
			attrs.LenencString([]byte(v))
		}
		w.LenencString(attrs.Bytes())
	}
	return w.Bytes()
}

// AuthSwitchRequest is sent by the server when it wants the client to use
// a different plugin than the one advertised in the handshake (§4.3).
type AuthSwitchRequest struct {
	PluginName string
	Scramble   []byte
}

// ParseAuthSwitchRequest decodes an AuthSwitchRequest packet (header byte
// 0xFE already stripped by the caller).
func ParseAuthSwitchRequest(payload []byte) (*AuthSwitchRequest, error) {
	r := wire.NewReader(payload)
	name := string(r.NullTerminatedString())
	scramble := r.RestOfPacketString()
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing auth switch request: %w", r.Err())
	}
	// trailing NUL on the scramble, if present
	if n := len(scramble); n > 0 && scramble[n-1] == 0 {
		scramble = scramble[:n-1]
	}
	return &AuthSwitchRequest{PluginName: name, Scramble: scramble}, nil
}
