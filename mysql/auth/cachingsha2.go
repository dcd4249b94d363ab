package auth

import (
	"crypto/sha256"
	"fmt"
)

// caching_sha2_password fast-path / full-auth status bytes (§4.3).
const (
	StatusRequestPublicKey byte = 0x02
	StatusFastAuthSuccess  byte = 0x03
	StatusFullAuthRequired byte = 0x04
)

// CachingSHA2Password implements caching_sha2_password: a SHA-256
// challenge response with a fast-path, and a full-auth fallback that
// sends cleartext over a secure channel (TLS) or, otherwise, RSA-OAEP
// ciphertext under the server's public key.
type CachingSHA2Password struct{}

func (CachingSHA2Password) Name() string { return "caching_sha2_password" }

// Hash computes SHA256(password) XOR SHA256(SHA256(SHA256(password)) || scramble).
func (CachingSHA2Password) Hash(password string, scramble []byte) ([]byte, error) {
	if password == "" {
		return []byte{}, nil
	}
	h1 := sha256.Sum256([]byte(password))
	h2 := sha256.Sum256(h1[:])

	h := sha256.New()
	h.Write(h2[:])
	h.Write(scramble)
	h3 := h.Sum(nil)

	out := make([]byte, len(h1))
	for i := range out {
		out[i] = h1[i] ^ h3[i]
	}
	return out, nil
}

func (CachingSHA2Password) NeedsFullAuth(fastAuthResult byte) (bool, error) {
	switch fastAuthResult {
	case StatusFastAuthSuccess:
		return false, nil
	case StatusFullAuthRequired:
		return true, nil
	default:
		return false, fmt.Errorf("mysql: unexpected caching_sha2_password status byte 0x%02x", fastAuthResult)
	}
}

func (CachingSHA2Password) EncryptForFullAuth(password string, scramble []byte, overSecureChannel bool, serverPubKeyPEM []byte) ([]byte, error) {
	if overSecureChannel {
		out := make([]byte, len(password)+1)
		copy(out, password)
		return out, nil // cleartext + NUL terminator, safe under TLS/unix-socket
	}
	if len(serverPubKeyPEM) == 0 {
		return nil, fmt.Errorf("mysql: full authentication requires TLS or the server's RSA public key")
	}
	pub, err := parseRSAPublicKeyPEM(serverPubKeyPEM)
	if err != nil {
		return nil, err
	}
	return encryptRSAOAEP(pub, xorPasswordWithScramble(password, scramble))
}
