package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds SendCommand.
const DefaultAckTimeout = 2 * time.Second

var ErrTransportClosed = errors.New("transport closed")

// ResponseHandler receives each response as it arrives. data starts at the
// response arguments.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is a block received from the MCU.
type Message struct {
	Sequence uint8
	Payload  []byte
}

// HostTransport is the host side of the link: it frames commands, waits for
// the MCU ack and delivers responses. A goroutine reads the port until
// Close.
type HostTransport struct {
	port io.ReadWriteCloser
	seq  atomic.Uint32

	writeMu sync.Mutex
	input   *FifoBuffer
	synced  bool

	acks      chan uint8
	responses chan *Message

	handlerMu sync.RWMutex
	handler   ResponseHandler

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		input:     NewFifoBuffer(4 * MessageMax),
		synced:    true,
		acks:      make(chan uint8, 1),
		responses: make(chan *Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.seq.Store(MessageDest)
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits up to DefaultAckTimeout for its ack.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultAckTimeout)
	defer cancel()
	return t.Send(ctx, cmdID, args)
}

// Send writes one command block and blocks until the MCU acks it or ctx
// ends.
func (t *HostTransport) Send(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(t.seq.Load())
	block, err := AppendFrame(nil, seq, payload.Result())
	if err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}
	// Drop an ack left over from a timed out send.
	select {
	case <-t.acks:
	default:
	}
	if _, err := t.port.Write(block); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}

	want := NextSequence(seq)
	for {
		select {
		case got := <-t.acks:
			if got != want {
				// NAK: the MCU wants a different sequence.
				continue
			}
			t.seq.Store(uint32(want))
			return nil
		case <-ctx.Done():
			return fmt.Errorf("ack for command %d: %w", cmdID, ctx.Err())
		case <-t.stop:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse returns the next queued response.
func (t *HostTransport) ReceiveResponse(ctx context.Context) (*Message, error) {
	select {
	case m := <-t.responses:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stop:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler installs a callback run from the read goroutine for
// every response, before it is queued for ReceiveResponse.
func (t *HostTransport) SetResponseHandler(h ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

// Sequence returns the sequence byte of the next command.
func (t *HostTransport) Sequence() uint8 {
	return uint8(t.seq.Load())
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.process()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// process parses every complete block in the input buffer. Only the read
// goroutine calls it.
func (t *HostTransport) process() {
	data := t.input.Data()
	for len(data) > 0 {
		if !t.synced {
			data, t.synced = skipToSync(data)
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
			t.synced = false
			continue
		}
		data = data[n:]
		t.deliver(frame)
	}
	t.input.Pop(t.input.Available() - len(data))
}

func (t *HostTransport) deliver(frame Frame) {
	if len(frame.Payload) == 0 {
		select {
		case t.acks <- frame.Seq:
		default:
		}
		return
	}

	msg := &Message{Sequence: frame.Seq, Payload: append([]byte(nil), frame.Payload...)}

	t.handlerMu.RLock()
	h := t.handler
	t.handlerMu.RUnlock()
	if h != nil {
		args := msg.Payload
		if id, err := DecodeVLQUint(&args); err == nil {
			_ = h(uint16(id), &args)
		}
	}

	// Keep the newest responses when nobody is reading.
	for {
		select {
		case t.responses <- msg:
			return
		default:
		}
		select {
		case <-t.responses:
		default:
		}
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.stop)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.done
	})
	return err
}
