package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("zlib.NewReader: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}

func TestStandardReaderAccepts(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 300},
		{"exact block", MaxBlock},
		{"two blocks", MaxBlock + 17},
		{"three blocks", 2*MaxBlock + 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]byte, tc.size)
			for i := range in {
				in[i] = byte(i * 7)
			}
			got := inflate(t, Compress(in))
			if !bytes.Equal(got, in) {
				t.Errorf("Round trip mismatch: %d bytes in, %d out", len(in), len(got))
			}
		})
	}
}

func TestWriterChunkedWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterSize(&buf, 4)
	for _, s := range []string{`{"version":`, `"gopcnt"`, `}`} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if buf.Bytes()[0] != 0x78 {
		t.Errorf("Missing zlib header: %#x", buf.Bytes()[0])
	}
	if got := string(inflate(t, buf.Bytes())); got != `{"version":"gopcnt"}` {
		t.Errorf("Unexpected payload %q", got)
	}

	if _, err := w.Write([]byte("x")); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
