// Package protocol implements the Klipper serial protocol used between the
// counter firmware and the host: VLQ argument encoding, CRC16 framed blocks,
// and the MCU and host sides of the transport.
package protocol

import "errors"

// Version is reported in the data dictionary.
const Version = "gopcnt-0.1.0"

// Block layout: len, seq, payload..., crc_hi, crc_lo, sync.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F

	// MessageMax sizes scratch buffers. Several blocks may be queued in
	// one output buffer.
	MessageMax = 512
)

var (
	ErrFrameShort   = errors.New("frame incomplete")
	ErrFrameLength  = errors.New("frame length out of range")
	ErrFrameSeq     = errors.New("frame sequence byte invalid")
	ErrFrameSync    = errors.New("frame missing sync byte")
	ErrFrameCRC     = errors.New("frame crc mismatch")
	ErrFrameTooLong = errors.New("payload exceeds block size")
)

// NextSequence advances a sequence byte within the 0x10-0x1F window.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
