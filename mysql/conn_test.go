package mysql

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/takapi327/ldbc/mysql/wire"
)

// fakeServer is a minimal single-connection MySQL server good enough to
// drive Dial's handshake/auth dance and a handful of commands, without a
// real mysqld. It speaks mysql_native_password unconditionally and never
// actually verifies the client's auth response.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeServer{ln: ln}
}

func (s *fakeServer) addr() (string, int) {
	tcp := s.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

// serve accepts exactly one connection, completes the handshake, then
// hands subsequent command packets to handle until the client quits or
// the connection closes.
func (s *fakeServer) serve(t *testing.T, handle func(sc *wire.Conn, cmd byte, payload []byte) (done bool)) {
	t.Helper()
	go func() {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		sc := wire.NewConn(nc)

		scramble := []byte("0123456789012345678a")[:20]
		w := wire.NewWriter()
		w.Int1(10)
		w.NullTerminatedString("8.0.34-ldbc")
		w.Int4(1)
		w.Raw(scramble[:8])
		w.Int1(0)
		caps := uint32(wire.ClientProtocol41 | wire.ClientSecureConnection | wire.ClientPluginAuth | wire.ClientDeprecateEOF)
		w.Int2(uint16(caps))
		w.Int1(33)
		w.Int2(2)
		w.Int2(uint16(caps >> 16))
		w.Int1(byte(len(scramble) + 1))
		w.Zero(10)
		w.Raw(scramble[8:])
		w.Int1(0)
		w.NullTerminatedString("mysql_native_password")
		seq, err := sc.WritePacket(w.Bytes(), 0)
		if err != nil {
			t.Errorf("server: writing handshake: %v", err)
			return
		}

		if _, _, err := sc.ReadPacket(); err != nil {
			t.Errorf("server: reading handshake response: %v", err)
			return
		}

		ok := wire.NewWriter()
		ok.Int1(0x00)
		ok.LenencInt(0)
		ok.LenencInt(0)
		ok.Int2(2)
		ok.Int2(0)
		if _, err := sc.WritePacket(ok.Bytes(), seq); err != nil {
			t.Errorf("server: writing auth OK: %v", err)
			return
		}

		for {
			payload, _, err := sc.ReadPacket()
			if err != nil {
				return
			}
			if len(payload) == 0 {
				continue
			}
			if handle(sc, payload[0], payload) {
				return
			}
		}
	}()
}

func writeServerOK(sc *wire.Conn, affectedRows uint64) {
	sc.ResetSequence()
	w := wire.NewWriter()
	w.Int1(0x00)
	w.LenencInt(affectedRows)
	w.LenencInt(0)
	w.Int2(2)
	w.Int2(0)
	sc.WritePacket(w.Bytes(), 1)
}

func dialTestConn(t *testing.T, host string, port int) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Dial(ctx, Config{Host: host, Port: port, User: "root"}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestDialAndExecuteUpdate(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve(t, func(sc *wire.Conn, cmd byte, payload []byte) bool {
		switch cmd {
		case 0x03: // COM_QUERY
			writeServerOK(sc, 1)
			return false
		case 0x01: // COM_QUIT
			return true
		default:
			return true
		}
	})

	host, port := srv.addr()
	conn := dialTestConn(t, host, port)
	defer conn.Close()

	n, err := conn.ExecuteUpdate(context.Background(), "INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("execute update: %v", err)
	}
	if n != 1 {
		t.Errorf("affected rows = %d, want 1", n)
	}
	if conn.Poisoned() {
		t.Error("connection unexpectedly poisoned")
	}
}

func TestPingRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve(t, func(sc *wire.Conn, cmd byte, payload []byte) bool {
		switch cmd {
		case 0x0e: // COM_PING
			writeServerOK(sc, 0)
			return false
		case 0x01:
			return true
		default:
			return true
		}
	})

	host, port := srv.addr()
	conn := dialTestConn(t, host, port)
	defer conn.Close()

	if err := conn.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !conn.IsValid(context.Background(), time.Second) {
		t.Error("expected connection to be valid")
	}
}

func TestServerErrorDoesNotPoison(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	queries := 0
	srv.serve(t, func(sc *wire.Conn, cmd byte, payload []byte) bool {
		switch cmd {
		case 0x03:
			queries++
			if queries == 1 {
				sc.ResetSequence()
				w := wire.NewWriter()
				w.Int1(0xff)
				w.Int2(1146)
				w.Raw([]byte("#"))
				w.Raw([]byte("42S02"))
				w.Raw([]byte("Table 'x' doesn't exist"))
				sc.WritePacket(w.Bytes(), 1)
				return false
			}
			writeServerOK(sc, 0)
			return false
		case 0x01:
			return true
		default:
			return true
		}
	})

	host, port := srv.addr()
	conn := dialTestConn(t, host, port)
	defer conn.Close()

	_, err := conn.ExecuteQuery(context.Background(), "SELECT * FROM x")
	if err == nil {
		t.Fatal("expected a server error")
	}
	if conn.Poisoned() {
		t.Error("a server ERR packet must not poison the connection")
	}

	// The §7 guarantee only matters if the connection is still usable
	// afterward: a second command on the same Conn must succeed rather
	// than hit ErrInvalidTransition from a session stuck in Abort.
	if _, err := conn.ExecuteQuery(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("second command after a server error failed: %v", err)
	}
	if conn.Poisoned() {
		t.Error("connection should still be usable after a server error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serve(t, func(sc *wire.Conn, cmd byte, payload []byte) bool {
		return true
	})

	host, port := srv.addr()
	conn := dialTestConn(t, host, port)

	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := conn.ExecuteQuery(context.Background(), "SELECT 1"); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed after close, got %v", err)
	}
}
