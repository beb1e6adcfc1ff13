package protocol

import "sync/atomic"

// CommandHandler is called for each command decoded from a block. data
// starts at the command's arguments; the handler consumes them.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the link. It validates incoming blocks,
// acknowledges them and frames responses into an OutputBuffer.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // next expected host sequence, 0x10-0x1F

	output  OutputBuffer
	handler CommandHandler

	onReset func()
	onFlush func()
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes every complete block in input. A partial block is left
// in place for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for len(data) > 0 {
		if !t.synced.Load() {
			var found bool
			if data, found = skipToSync(data); found {
				t.synced.Store(true)
				t.sendAck()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, err := ScanFrame(data)
		if err == ErrFrameShort {
			break
		}
		if err != nil {
			t.synced.Store(false)
			continue
		}
		data = data[n:]
		t.accept(frame)
	}
	input.Pop(input.Available() - len(data))
}

// accept runs a frame if it carries the expected sequence, then always
// acks with the sequence wanted next. A mismatched ack acts as a NAK.
func (t *Transport) accept(frame Frame) {
	want := uint8(t.nextSeq.Load())
	if frame.Seq == MessageDest && want != MessageDest {
		// Host restarted its sequence.
		want = MessageDest
		t.nextSeq.Store(MessageDest)
		if t.onReset != nil {
			t.onReset()
		}
	}
	if frame.Seq == want {
		t.nextSeq.Store(uint32(NextSequence(want)))
		t.dispatch(frame.Payload)
	}
	t.sendAck()
}

// dispatch decodes and runs the commands in payload. A panicking handler
// drops the link into resync instead of taking the firmware down.
func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.synced.Store(false)
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced.Store(false)
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			// Remaining arguments can no longer be located.
			return
		}
	}
}

// sendAck emits an empty block and flushes it ahead of any responses.
func (t *Transport) sendAck() {
	t.output.Output(appendCRC([]byte{MessageLengthMin, uint8(t.nextSeq.Load())}))
	if t.onFlush != nil {
		t.onFlush()
	}
}

// EncodeFrame writes one block whose payload is produced by frameData.
// Responses carry the current sequence, the same as the ack.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSeq.Load())})
	frameData(t.output)
	n := len(t.output.DataSince(start)) + MessageTrailerSize
	t.output.Update(start, uint8(n))

	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand frames a response with the given id and arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on sequence, for example after USB reconnect.
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

// SetResetCallback sets the function run when the host restarts its
// sequence.
func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// SetFlushCallback sets the function run after each ack so the ack can be
// pushed out before responses are queued behind it.
func (t *Transport) SetFlushCallback(fn func()) { t.onFlush = fn }
