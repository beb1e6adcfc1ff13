package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("vlq longer than 5 bytes")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// vlqShifts are the 7-bit groups above the lowest, most significant first.
var vlqShifts = [...]uint{28, 21, 14, 7}

// EncodeVLQInt writes v in Klipper's variable length encoding. Each byte
// carries 7 bits, high bit set on all but the last. Values in
// [-32, 96) fit one byte; bit 6 of the first byte is the sign.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 0
	for _, s := range vlqShifts {
		lim := int32(1) << (s - 2)
		if v < -lim || v >= 3*lim {
			buf[n] = byte(v>>s)&0x7F | 0x80
			n++
		}
	}
	buf[n] = byte(v) & 0x7F
	output.Output(buf[:n+1])
}

// EncodeVLQUint writes v as its 32-bit two's complement value.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances *data past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}
	c := buf[0]
	v := uint32(c & 0x7F)
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = buf[i]
		v = v<<7 | uint32(c&0x7F)
		i++
	}
	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one value as unsigned.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length-prefixed byte string (%*s, %.*s).
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length-prefixed byte string. The result aliases
// *data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrBufferTooSmall
	}
	out := (*data)[:n]
	*data = (*data)[n:]
	return out, nil
}
