package wire

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxPayloadLen is the largest payload a single MySQL packet fragment can
// carry; longer payloads are split into consecutive fragments that share
// incrementing sequence ids (§4.1).
const MaxPayloadLen = 1<<24 - 1

// ErrMalformedPacket is returned whenever a decoder is given fewer bytes
// than a field requires, or an enumerator byte is out of range.
type ErrMalformedPacket struct {
	Reason string
}

func (e *ErrMalformedPacket) Error() string {
	return fmt.Sprintf("mysql: malformed packet: %s", e.Reason)
}

func malformed(reason string) error {
	return &ErrMalformedPacket{Reason: reason}
}

// Conn is the framed packet reader/writer over a raw network connection.
// It tracks the sequence id for the current command and resets it at each
// command boundary, per the Invariant in spec §3 ("sequence id is strictly
// (previous + 1) mod 256 within one command; server resets it to 0 for each
// new command boundary").
type Conn struct {
	nc  net.Conn
	br  *bufio.Reader
	seq byte

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps nc for MySQL packet framing.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, br: bufio.NewReaderSize(nc, 16*1024)}
}

// SetTimeouts bounds every subsequent ReadPacket/WritePacket call with a
// deadline of now+timeout on the underlying net.Conn (§5: "every network
// read/write is a suspension point"). A zero duration leaves that
// direction's deadline unset.
func (c *Conn) SetTimeouts(readTimeout, writeTimeout time.Duration) {
	c.readTimeout = readTimeout
	c.writeTimeout = writeTimeout
}

// Raw returns the underlying net.Conn, e.g. to perform a TLS upgrade or
// adjust read/write deadlines.
func (c *Conn) Raw() net.Conn { return c.nc }

// SetRaw swaps the underlying net.Conn, used after a TLS upgrade: the same
// sequence-id state is preserved but subsequent packets flow through the
// new (TLS) conn.
func (c *Conn) SetRaw(nc net.Conn) {
	c.nc = nc
	c.br = bufio.NewReaderSize(nc, 16*1024)
}

// ResetSequence resets the sequence id to 0, called at each new command
// boundary (§3 Invariants).
func (c *Conn) ResetSequence() { c.seq = 0 }

// Sequence returns the next sequence id that will be used for a write, or
// was used for the most recent read.
func (c *Conn) Sequence() byte { return c.seq }

// ReadPacket reads one logical packet, transparently reassembling
// fragments whose payload length equals MaxPayloadLen. It returns the
// payload and the sequence id of the last fragment read.
func (c *Conn) ReadPacket() (payload []byte, seq byte, err error) {
	if c.readTimeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	var out []byte
	for {
		var hdr [4]byte
		if _, err = io.ReadFull(c.br, hdr[:]); err != nil {
			return nil, 0, err
		}
		length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
		seq = hdr[3]
		c.seq = seq + 1

		frag := make([]byte, length)
		if length > 0 {
			if _, err = io.ReadFull(c.br, frag); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, frag...)
		if length < MaxPayloadLen {
			return out, seq, nil
		}
		// Fragment continues; loop to read the next one. Per the MySQL
		// protocol, a payload that is an exact multiple of MaxPayloadLen
		// is terminated by a zero-length packet.
	}
}

// WritePacket writes payload as one or more fragments starting at
// sequence id seq, returning the next sequence id to use.
func (c *Conn) WritePacket(payload []byte, seq byte) (nextSeq byte, err error) {
	if c.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for {
		n := len(payload)
		if n > MaxPayloadLen {
			n = MaxPayloadLen
		}
		var hdr [4]byte
		hdr[0] = byte(n)
		hdr[1] = byte(n >> 8)
		hdr[2] = byte(n >> 16)
		hdr[3] = seq
		if _, err = c.nc.Write(hdr[:]); err != nil {
			return seq, err
		}
		if n > 0 {
			if _, err = c.nc.Write(payload[:n]); err != nil {
				return seq, err
			}
		}
		seq++
		payload = payload[n:]
		if n < MaxPayloadLen {
			c.seq = seq
			return seq, nil
		}
		if len(payload) == 0 {
			// exact multiple of MaxPayloadLen: emit a trailing empty packet
			var zero [4]byte
			zero[3] = seq
			if _, err = c.nc.Write(zero[:]); err != nil {
				return seq, err
			}
			seq++
			c.seq = seq
			return seq, nil
		}
	}
}

// Packet is a framed protocol message, used where a caller needs to build
// or inspect a packet without immediately writing it (e.g. forwarding an
// already-read payload under a different sequence id).
type Packet struct {
	Payload []byte
	Seq     byte
}
