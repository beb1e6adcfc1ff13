package protocol

import (
	"bytes"
	"testing"
)

func TestVLQRoundTripInt(t *testing.T) {
	values := []int32{
		0, 1, -1, 95, 96, -32, -33,
		127, -127, 8191, -8192, 1 << 20, -(1 << 20),
		1000000, -1000000, 0x7FFFFFFF, -0x80000000,
	}
	for _, want := range values {
		out := NewScratchOutput()
		EncodeVLQInt(out, want)
		data := out.Result()
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Decode %d: %v", want, err)
			continue
		}
		if got != want {
			t.Errorf("Expected %d, got %d (% x)", want, got, out.Result())
		}
		if len(data) != 0 {
			t.Errorf("Value %d left %d bytes", want, len(data))
		}
	}
}

func TestVLQEncodedLength(t *testing.T) {
	tests := []struct {
		v    int32
		want int
	}{
		{0, 1},
		{95, 1},
		{-32, 1},
		{96, 2},
		{-33, 2},
		{12287, 2},
		{12288, 3},
		{1 << 26, 4},
		{3 << 26, 5},
		{-1 << 27, 5},
	}
	for _, tt := range tests {
		out := NewScratchOutput()
		EncodeVLQInt(out, tt.v)
		if n := len(out.Result()); n != tt.want {
			t.Errorf("Value %d encoded in %d bytes, want %d", tt.v, n, tt.want)
		}
	}
}

func TestVLQUintKeepsHighValues(t *testing.T) {
	for _, want := range []uint32{0, 127, 128, 65535, 0x80000000, 0xFFFFFFFF} {
		out := NewScratchOutput()
		EncodeVLQUint(out, want)
		data := out.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil || got != want {
			t.Errorf("Expected %d, got %d err=%v", want, got, err)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	for _, want := range [][]byte{{}, {0x01}, {0xFF, 0xFE, 0xFD}, make([]byte, 50)} {
		out := NewScratchOutput()
		EncodeVLQBytes(out, want)
		EncodeVLQUint(out, 7)

		data := out.Result()
		got, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Fatalf("DecodeVLQBytes: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Expected % x, got % x", want, got)
		}
		if next, _ := DecodeVLQUint(&data); next != 7 {
			t.Errorf("Trailing value not preserved, got %d", next)
		}
	}
}

func TestVLQTruncated(t *testing.T) {
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}
	if len(data) != 1 {
		t.Error("Failed decode consumed input")
	}

	data = []byte{0x03, 0xAA}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall for short string, got %v", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
