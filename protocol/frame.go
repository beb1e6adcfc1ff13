package protocol

import "bytes"

// Frame is one validated block.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// ScanFrame validates the block at the start of data and returns it with
// its length. ErrFrameShort means more input is needed; any other error
// means data[0] does not start a block and the reader must resync.
// Payload aliases data.
func ScanFrame(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, ErrFrameShort
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Frame{}, 0, ErrFrameLength
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, ErrFrameSeq
	}
	if len(data) < n {
		return Frame{}, 0, ErrFrameShort
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, ErrFrameSync
	}
	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return Frame{}, 0, ErrFrameCRC
	}
	return Frame{Seq: seq, Payload: data[MessageHeaderSize : n-MessageTrailerSize]}, n, nil
}

// skipToSync drops everything up to and including the next sync byte. It
// reports false, with nil data, if there is none.
func skipToSync(data []byte) ([]byte, bool) {
	i := bytes.IndexByte(data, MessageValueSync)
	if i < 0 {
		return nil, false
	}
	return data[i+1:], true
}

// AppendFrame appends a complete block carrying payload.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MessagePayloadMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, byte(len(payload)+MessageLengthMin), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageValueSync), nil
}
