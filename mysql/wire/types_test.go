package wire

import (
	"bytes"
	"testing"
)

func TestLenencIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 65535, 65536, 16777215, 16777216, 1<<64 - 1}
	for _, v := range cases {
		w := NewWriter()
		w.LenencInt(v)
		r := NewReader(w.Bytes())
		got := r.LenencInt()
		if r.Err() != nil {
			t.Fatalf("value %d: unexpected error %v", v, r.Err())
		}
		if got != v {
			t.Errorf("value %d: round-tripped as %d", v, got)
		}
	}
}

func TestLenencIntNullMarker(t *testing.T) {
	w := NewWriter()
	w.LenencNull()
	r := NewReader(w.Bytes())
	_, isNull := r.LenencIntNull()
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if !isNull {
		t.Fatal("expected NULL marker")
	}
}

func TestLenencStringRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0x01}, 70000), // forces the 0xfd length form
	}
	for _, v := range cases {
		w := NewWriter()
		w.LenencString(v)
		r := NewReader(w.Bytes())
		got := r.LenencString()
		if r.Err() != nil {
			t.Fatalf("len %d: unexpected error %v", len(v), r.Err())
		}
		if !bytes.Equal(got, v) {
			t.Errorf("len %d: round-trip mismatch", len(v))
		}
	}
}

func TestNullTerminatedStringRoundTrip(t *testing.T) {
	w := NewWriter()
	w.NullTerminatedString("root")
	w.Int1(0xAA) // trailing byte must survive
	r := NewReader(w.Bytes())
	got := r.NullTerminatedString()
	if string(got) != "root" {
		t.Errorf("got %q", got)
	}
	if r.Int1() != 0xAA {
		t.Error("trailing byte not preserved")
	}
}

func TestFixedWidthIntRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Int1(0xAB).Int2(0x1234).Int3(0x123456).Int4(0x12345678).Int6(0x123456789abc).Int8(0x0102030405060708)
	r := NewReader(w.Bytes())
	if got := r.Int1(); got != 0xAB {
		t.Errorf("Int1 = %x", got)
	}
	if got := r.Int2(); got != 0x1234 {
		t.Errorf("Int2 = %x", got)
	}
	if got := r.Int3(); got != 0x123456 {
		t.Errorf("Int3 = %x", got)
	}
	if got := r.Int4(); got != 0x12345678 {
		t.Errorf("Int4 = %x", got)
	}
	if got := r.Int6(); got != 0x123456789abc {
		t.Errorf("Int6 = %x", got)
	}
	if got := r.Int8(); got != 0x0102030405060708 {
		t.Errorf("Int8 = %x", got)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func TestReaderFailsOnShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	_ = r.Int4()
	if r.Err() == nil {
		t.Fatal("expected malformed packet error")
	}
	if _, ok := r.Err().(*ErrMalformedPacket); !ok {
		t.Errorf("error type = %T, want *ErrMalformedPacket", r.Err())
	}
}

func TestReaderFailsOnInvalidLenencPrefix(t *testing.T) {
	r := NewReader([]byte{0xff})
	_ = r.LenencInt()
	if r.Err() == nil {
		t.Fatal("expected malformed packet error for 0xff prefix")
	}
}
