package auth

import "crypto/sha1" //nolint:gosec // mysql_native_password is defined in terms of SHA-1

// NativePassword implements mysql_native_password:
// SHA1(password) XOR SHA1(scramble || SHA1(SHA1(password))), empty
// response when the password is empty (§4.3).
type NativePassword struct{}

func (NativePassword) Name() string { return "mysql_native_password" }

func (NativePassword) Hash(password string, scramble []byte) ([]byte, error) {
	if password == "" {
		return []byte{}, nil
	}
	h1 := sha1.Sum([]byte(password)) //nolint:gosec
	h2 := sha1.Sum(h1[:])            //nolint:gosec

	h := sha1.New() //nolint:gosec
	h.Write(scramble)
	h.Write(h2[:])
	h3 := h.Sum(nil)

	out := make([]byte, len(h1))
	for i := range out {
		out[i] = h1[i] ^ h3[i]
	}
	return out, nil
}
