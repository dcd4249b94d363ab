// Package auth implements the pluggable MySQL authentication strategies:
// mysql_native_password, caching_sha2_password and sha256_password, plus
// the RSA public-key sub-dialogue the latter two fall back to outside TLS
// (§4.3).
package auth

import "fmt"

// Plugin computes the initial authentication response for a scramble
// handed out by the server during the handshake or an auth-plugin switch.
type Plugin interface {
	// Name is the MySQL plugin name, e.g. "mysql_native_password".
	Name() string
	// Hash computes the initial auth response bytes sent in
	// HandshakeResponse41 or an AuthSwitchResponse.
	Hash(password string, scramble []byte) ([]byte, error)
}

// FullAuth is implemented by plugins that may require a further exchange
// beyond the initial challenge response (caching_sha2_password,
// sha256_password).
type FullAuth interface {
	Plugin
	// NeedsFullAuth inspects the server's fast-path reply (for
	// caching_sha2_password: 0x03 success / 0x04 full-auth-required) and
	// reports whether the full-auth sub-dialogue must run.
	NeedsFullAuth(fastAuthResult byte) (needed bool, err error)
	// EncryptForFullAuth produces the payload sent during full
	// authentication: cleartext password+NUL over a secure channel (TLS),
	// or RSA-OAEP ciphertext under serverPubKeyPEM otherwise. serverPubKeyPEM may be
	// nil when the channel is already encrypted (TLS).
	EncryptForFullAuth(password string, scramble []byte, overSecureChannel bool, serverPubKeyPEM []byte) ([]byte, error)
}

// ErrUnsupportedPlugin is returned when the server names a plugin this
// client does not implement, including during an AuthSwitchRequest.
type ErrUnsupportedPlugin struct {
	Plugin string
}

func (e *ErrUnsupportedPlugin) Error() string {
	return fmt.Sprintf("mysql: unsupported authentication plugin %q", e.Plugin)
}

// registry of built-in plugins by MySQL wire name.
var registry = map[string]Plugin{}

func register(p Plugin) { registry[p.Name()] = p }

// ByName resolves a plugin by its MySQL wire name, used both for the
// handshake's initial plugin and for AuthSwitchRequest dialogues.
func ByName(name string) (Plugin, error) {
	p, ok := registry[name]
	if !ok {
		return nil, &ErrUnsupportedPlugin{Plugin: name}
	}
	return p, nil
}

func init() {
	register(NativePassword{})
	register(CachingSHA2Password{})
	register(SHA256Password{})
}
