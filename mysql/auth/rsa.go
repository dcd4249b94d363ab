package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // MySQL's RSA full-auth path is defined as OAEP-SHA1-MGF1-SHA1
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// xorPasswordWithScramble XORs password against scramble, repeating (or
// truncating) scramble to the password's length, per §4.3's
// "password XOR scramble (XOR extended to password length)".
func xorPasswordWithScramble(password string, scramble []byte) []byte {
	out := make([]byte, len(password))
	for i := range out {
		out[i] = password[i] ^ scramble[i%len(scramble)]
	}
	return out
}

// parseRSAPublicKeyPEM parses the PEM-encoded RSA public key the server
// returns in response to a public-key-retrieval request (0x02).
func parseRSAPublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("mysql: no PEM block found in server public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("mysql: parsing server public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("mysql: server public key is not RSA")
	}
	return rsaPub, nil
}

// encryptRSAOAEP encrypts plaintext with RSA-OAEP-SHA1-MGF1-SHA1, the
// scheme MySQL uses for the full-auth fallback over a plaintext channel.
func encryptRSAOAEP(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil) //nolint:gosec
}
