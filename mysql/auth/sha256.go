package auth

// SHA256Password implements sha256_password: the non-caching sibling of
// caching_sha2_password. There is no fast-path — every authentication is
// a full-auth exchange (§4.3, "sha256_password: analogous to
// caching_sha2 full-auth path, no fast-path").
type SHA256Password struct{}

func (SHA256Password) Name() string { return "sha256_password" }

// Hash has nothing to contribute to the initial HandshakeResponse41: the
// real exchange happens in EncryptForFullAuth. An empty slice signals the
// client wants to proceed straight to full authentication.
func (SHA256Password) Hash(password string, scramble []byte) ([]byte, error) {
	return []byte{}, nil
}

func (SHA256Password) NeedsFullAuth(fastAuthResult byte) (bool, error) {
	return true, nil
}

func (SHA256Password) EncryptForFullAuth(password string, scramble []byte, overSecureChannel bool, serverPubKeyPEM []byte) ([]byte, error) {
	return CachingSHA2Password{}.EncryptForFullAuth(password, scramble, overSecureChannel, serverPubKeyPEM)
}
