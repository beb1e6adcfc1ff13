// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
//
// The firmware only needs output that a standard zlib reader accepts, not a
// good ratio, so no Huffman coding is done. Input is buffered and emitted
// on Close.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// MaxBlock is the largest payload of one stored DEFLATE block.
const MaxBlock = 0xFFFF

// zlib header: deflate, 32K window, default level, FCHECK so the pair is a
// multiple of 31.
var header = [2]byte{0x78, 0x9C}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers input and emits it as a zlib stream on Close.
type Writer struct {
	out    io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer with capacity for a typical dictionary
// preallocated, so Write does not grow the buffer on the hot path.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, 8192)
}

// NewWriterSize is NewWriter with an explicit initial buffer size.
func NewWriterSize(w io.Writer, size int) *Writer {
	return &Writer{out: w, buf: make([]byte, 0, size)}
}

// Write appends p to the pending stream.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if cap(w.buf)-len(w.buf) < len(p) {
		grown := make([]byte, len(w.buf), len(w.buf)+len(p))
		copy(grown, w.buf)
		w.buf = grown
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, the buffered data as stored blocks and the
// Adler-32 trailer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.out.Write(header[:]); err != nil {
		return err
	}

	data := w.buf
	for {
		n := len(data)
		final := byte(1)
		if n > MaxBlock {
			n = MaxBlock
			final = 0
		}
		if err := w.storedBlock(data[:n], final); err != nil {
			return err
		}
		data = data[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(w.buf)
	_, err := w.out.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// storedBlock emits BTYPE=00 with LEN/NLEN little endian.
func (w *Writer) storedBlock(p []byte, final byte) error {
	n := uint16(len(p))
	hdr := []byte{final, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)}
	if _, err := w.out.Write(hdr); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	_, err := w.out.Write(p)
	return err
}

// Compress is a convenience wrapper returning the zlib stream for p.
func Compress(p []byte) []byte {
	var sink sliceWriter
	w := NewWriterSize(&sink, len(p))
	w.Write(p)
	w.Close()
	return sink.b
}

type sliceWriter struct{ b []byte }

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}
