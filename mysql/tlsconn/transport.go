// Package tlsconn implements the MySQL "SSL request" flow: the client
// sends a truncated HandshakeResponse41 (capabilities only, no credentials)
// before upgrading the raw socket to TLS, then sends the full
// HandshakeResponse41 over the encrypted channel (§4.2).
package tlsconn

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/takapi327/ldbc/mysql/wire"
)

// Mode selects how aggressively the client validates the server's
// certificate, per the Configuration surface enumerated in spec §6.
type Mode int

const (
	// ModeDisabled never attempts TLS.
	ModeDisabled Mode = iota
	// ModeTrusted upgrades to TLS using the system root trust store, but
	// does not verify the server's identity against it.
	ModeTrusted
	// ModeVerifyCA verifies the certificate chain against a trust store
	// (system or custom) but not the server hostname.
	ModeVerifyCA
	// ModeVerifyIdentity performs full chain + hostname verification.
	ModeVerifyIdentity
)

// Config configures the TLS upgrade.
type Config struct {
	Mode Mode
	// TrustStorePath, if set, is a PEM file of CA certificates used
	// instead of the system roots.
	TrustStorePath string
	// ServerName overrides SNI / hostname verification target.
	ServerName string
}

// Enabled reports whether the client should request SSL at all.
func (c Config) Enabled() bool { return c.Mode != ModeDisabled }

// ErrTLS wraps any failure to establish the TLS layer (§7 TlsError).
type ErrTLS struct {
	Op  string
	Err error
}

func (e *ErrTLS) Error() string { return fmt.Sprintf("mysql: tls %s: %v", e.Op, e.Err) }
func (e *ErrTLS) Unwrap() error { return e.Err }

// SSLRequestPayload builds the SSLRequest packet body: capability flags,
// max packet size, charset, and 23 bytes of reserved filler — i.e. the
// first part of HandshakeResponse41 with no username/auth/database.
func SSLRequestPayload(capabilities wire.Capability, maxPacketSize uint32, charset byte) []byte {
	w := wire.NewWriter()
	w.Int4(uint32(capabilities))
	w.Int4(maxPacketSize)
	w.Int1(charset)
	w.Zero(23)
	return w.Bytes()
}

// tlsClientConfig builds the stdlib tls.Config for the given Config.
func tlsClientConfig(cfg Config) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName: cfg.ServerName,
		MinVersion: tls.VersionTLS12,
	}

	switch cfg.Mode {
	case ModeTrusted:
		tc.InsecureSkipVerify = true
	case ModeVerifyCA:
		tc.InsecureSkipVerify = true
		tc.VerifyPeerCertificate = verifyChainOnly(cfg)
	case ModeVerifyIdentity:
		// default verification (chain + hostname) applies.
	}

	if cfg.TrustStorePath != "" {
		pool, err := loadTrustStore(cfg.TrustStorePath)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}

	return tc, nil
}

func loadTrustStore(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trust store: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from trust store %s", path)
	}
	return pool, nil
}

// verifyChainOnly builds a VerifyPeerCertificate callback that checks the
// certificate chain against the configured roots without checking the
// server hostname (ModeVerifyCA: chain trust, no identity check).
func verifyChainOnly(cfg Config) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no server certificate presented")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parsing server certificate: %w", err)
		}

		var roots *x509.CertPool
		if cfg.TrustStorePath != "" {
			roots, err = loadTrustStore(cfg.TrustStorePath)
			if err != nil {
				return err
			}
		} else {
			roots, err = x509.SystemCertPool()
			if err != nil || roots == nil {
				roots = x509.NewCertPool()
			}
		}

		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			if ic, err := x509.ParseCertificate(raw); err == nil {
				intermediates.AddCert(ic)
			}
		}

		_, err = cert.Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
		return err
	}
}

// Upgrade performs the client-side TLS handshake on nc and returns the
// wrapped *tls.Conn. The caller must have already sent the SSLRequest
// packet to the server before calling Upgrade.
func Upgrade(nc net.Conn, cfg Config) (*tls.Conn, error) {
	tc, err := tlsClientConfig(cfg)
	if err != nil {
		return nil, &ErrTLS{Op: "configure", Err: err}
	}
	tlsConn := tls.Client(nc, tc)
	if err := tlsConn.Handshake(); err != nil {
		return nil, &ErrTLS{Op: "handshake", Err: err}
	}
	return tlsConn, nil
}
