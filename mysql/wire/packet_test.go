package wire

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{
		{},
		[]byte("select 1"),
		bytes.Repeat([]byte{0x42}, 300),
	}

	go func() {
		sc := NewConn(server)
		seq := byte(0)
		for _, p := range payloads {
			var err error
			seq, err = sc.WritePacket(p, seq)
			if err != nil {
				t.Errorf("server write: %v", err)
				return
			}
		}
	}()

	cc := NewConn(client)
	for i, want := range payloads {
		got, seq, err := cc.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: read error: %v", i, err)
		}
		if seq != byte(i) {
			t.Errorf("packet %d: seq = %d, want %d", i, seq, i)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("packet %d: payload = %x, want %x", i, got, want)
		}
	}
}

func TestPacketFragmentation(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	big := bytes.Repeat([]byte{0x7a}, MaxPayloadLen+1000)

	go func() {
		sc := NewConn(server)
		if _, err := sc.WritePacket(big, 0); err != nil {
			t.Errorf("server write: %v", err)
		}
	}()

	cc := NewConn(client)
	got, _, err := cc.ReadPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("reassembled payload mismatch: got %d bytes, want %d", len(got), len(big))
	}
}

func TestPacketExactMultipleOfMaxPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	exact := bytes.Repeat([]byte{0x11}, MaxPayloadLen)

	go func() {
		sc := NewConn(server)
		if _, err := sc.WritePacket(exact, 0); err != nil {
			t.Errorf("server write: %v", err)
		}
	}()

	cc := NewConn(client)
	got, _, err := cc.ReadPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, exact) {
		t.Fatalf("reassembled payload length = %d, want %d", len(got), len(exact))
	}
}

func TestReadPacketHonorsReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	cc.SetTimeouts(20*time.Millisecond, 0)

	_, _, err := cc.ReadPacket()
	if err == nil {
		t.Fatal("expected a read timeout error")
	}
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Errorf("error = %v (%T), want a net.Error Timeout", err, err)
	}
}

func TestWritePacketHonorsWriteTimeout(t *testing.T) {
	// net.Pipe's Write blocks until a reader drains it, so a short write
	// deadline on an unread connection reliably trips.
	client, server := net.Pipe()
	defer server.Close()

	cc := NewConn(client)
	cc.SetTimeouts(0, 20*time.Millisecond)

	_, err := cc.WritePacket([]byte("select 1"), 0)
	if err == nil {
		t.Fatal("expected a write timeout error")
	}
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Errorf("error = %v (%T), want a net.Error Timeout", err, err)
	}
}

func TestSequenceWrapsModulo256(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		sc := NewConn(server)
		seq := byte(250)
		for i := 0; i < 10; i++ {
			var err error
			seq, err = sc.WritePacket([]byte{byte(i)}, seq)
			if err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
	}()

	cc := NewConn(client)
	want := byte(250)
	for i := 0; i < 10; i++ {
		_, seq, err := cc.ReadPacket()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if seq != want {
			t.Errorf("packet %d: seq = %d, want %d", i, seq, want)
		}
		want++
	}
}
