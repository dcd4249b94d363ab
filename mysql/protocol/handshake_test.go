package protocol

import (
	"bytes"
	"testing"

	"github.com/takapi327/ldbc/mysql/wire"
)

// buildHandshakeV10 constructs a realistic server greeting packet body for
// test fixtures.
func buildHandshakeV10(pluginName string, scramble []byte) []byte {
	w := wire.NewWriter()
	w.Int1(10)
	w.NullTerminatedString("8.0.34-ldbc")
	w.Int4(42)
	w.Raw(scramble[:8])
	w.Int1(0) // filler
	caps := uint32(wire.ClientProtocol41 | wire.ClientSecureConnection | wire.ClientPluginAuth)
	w.Int2(uint16(caps))
	w.Int1(33) // utf8
	w.Int2(2)  // status flags
	w.Int2(uint16(caps >> 16))
	w.Int1(byte(len(scramble) + 1))
	w.Zero(10)
	w.Raw(scramble[8:])
	w.Int1(0) // NUL terminator on auth-plugin-data-part-2
	w.NullTerminatedString(pluginName)
	return w.Bytes()
}

func TestParseHandshakeV10(t *testing.T) {
	scramble := []byte("0123456789012345678a")[:20]
	payload := buildHandshakeV10("caching_sha2_password", scramble)

	h, err := ParseHandshakeV10(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ProtocolVersion != 10 {
		t.Errorf("protocol version = %d", h.ProtocolVersion)
	}
	if h.ServerVersion != "8.0.34-ldbc" {
		t.Errorf("server version = %q", h.ServerVersion)
	}
	if h.ConnectionID != 42 {
		t.Errorf("connection id = %d", h.ConnectionID)
	}
	if h.AuthPluginName != "caching_sha2_password" {
		t.Errorf("auth plugin name = %q", h.AuthPluginName)
	}
	if !bytes.Equal(h.AuthPluginData, scramble) {
		t.Errorf("auth plugin data = %x, want %x", h.AuthPluginData, scramble)
	}
	if !h.Capabilities.Has(wire.ClientProtocol41) {
		t.Error("expected CLIENT_PROTOCOL_41 to be set")
	}
}

func TestHandshakeResponseBuildAndParseAuthSwitch(t *testing.T) {
	resp := HandshakeResponse{
		Capabilities:   wire.ClientProtocol41 | wire.ClientSecureConnection | wire.ClientPluginAuth | wire.ClientConnectWithDB,
		MaxPacketSize:  1<<24 - 1,
		Charset:        33,
		Username:       "root",
		AuthResponse:   []byte{1, 2, 3, 4},
		Database:       "testdb",
		AuthPluginName: "mysql_native_password",
	}
	body := resp.Build()

	r := wire.NewReader(body)
	caps := r.Int4()
	if wire.Capability(caps) != resp.Capabilities {
		t.Errorf("capabilities = %x, want %x", caps, resp.Capabilities)
	}
	r.Int4() // max packet size
	r.Int1() // charset
	r.Skip(23)
	if string(r.NullTerminatedString()) != "root" {
		t.Error("username mismatch")
	}
	authLen := int(r.Int1())
	if !bytes.Equal(r.FixedBytes(authLen), resp.AuthResponse) {
		t.Error("auth response mismatch")
	}
	if string(r.NullTerminatedString()) != "testdb" {
		t.Error("database mismatch")
	}
	if string(r.NullTerminatedString()) != "mysql_native_password" {
		t.Error("plugin name mismatch")
	}
}

func TestParseAuthSwitchRequest(t *testing.T) {
	w := wire.NewWriter()
	w.NullTerminatedString("caching_sha2_password")
	w.Raw([]byte("newscramble1234567890"))

	req, err := ParseAuthSwitchRequest(w.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.PluginName != "caching_sha2_password" {
		t.Errorf("plugin name = %q", req.PluginName)
	}
	if string(req.Scramble) != "newscramble1234567890" {
		t.Errorf("scramble = %q", req.Scramble)
	}
}
