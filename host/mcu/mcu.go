// Package mcu talks to counter firmware over the Klipper protocol: it
// fetches the data dictionary, sends commands by name and routes
// responses to registered handlers.
package mcu

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"gopcnt/host/serial"
	"gopcnt/protocol"
)

// Bootstrap message ids, fixed before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1

	// identifyChunk is the dictionary bytes requested per identify.
	identifyChunk = 40

	defaultClockFreq = 1000000
)

var (
	ErrNoDictionary   = errors.New("dictionary not loaded")
	ErrUnknownCommand = errors.New("unknown command")
)

// Dictionary is the JSON document served by identify.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// ResponseFunc receives the numeric fields of a response in format order.
type ResponseFunc func(args []uint32)

// MCU is a connection to one counter board.
type MCU struct {
	transport *protocol.HostTransport

	mu        sync.RWMutex
	dict      *Dictionary
	raw       []byte
	commands  map[string]msgFormat
	responses map[int]msgFormat
	handlers  map[string][]handlerEntry
	nextID    int
}

type handlerEntry struct {
	id int
	fn ResponseFunc
}

// New wraps an open link.
func New(link io.ReadWriteCloser) *MCU {
	m := &MCU{
		transport: protocol.NewHostTransport(link),
		handlers:  make(map[string][]handlerEntry),
	}
	m.transport.SetResponseHandler(m.dispatch)
	return m
}

// Connect opens the serial device and wraps it.
func Connect(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", cfg.Device, err)
	}
	// Let a board that was just reset by the open finish booting.
	time.Sleep(100 * time.Millisecond)
	return New(port), nil
}

func (m *MCU) Close() error {
	return m.transport.Close()
}

// RetrieveDictionary downloads, inflates and parses the dictionary.
func (m *MCU) RetrieveDictionary(ctx context.Context) error {
	var buf bytes.Buffer
	for {
		chunk, err := m.identify(ctx, uint32(buf.Len()))
		if err != nil {
			return fmt.Errorf("dictionary at offset %d: %w", buf.Len(), err)
		}
		buf.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	return m.loadDictionary(buf.Bytes())
}

// identify fetches one dictionary chunk.
func (m *MCU) identify(ctx context.Context, offset uint32) ([]byte, error) {
	err := m.transport.Send(ctx, identifyID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, identifyChunk)
	})
	if err != nil {
		return nil, err
	}
	for {
		msg, err := m.transport.ReceiveResponse(ctx)
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || id != identifyResponseID {
			continue
		}
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, err
		}
		if got != offset {
			continue
		}
		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}
}

// loadDictionary parses raw, inflating it first when it carries a zlib
// header.
func (m *MCU) loadDictionary(raw []byte) error {
	text := raw
	if len(raw) >= 2 && raw[0] == 0x78 {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("inflate dictionary: %w", err)
		}
		text, err = io.ReadAll(zr)
		if err != nil {
			return fmt.Errorf("inflate dictionary: %w", err)
		}
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(text, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}

	commands := make(map[string]msgFormat, len(dict.Commands))
	for sig, id := range dict.Commands {
		f, err := parseFormat(id, sig)
		if err != nil {
			return err
		}
		commands[f.name] = f
	}
	responses := make(map[int]msgFormat, len(dict.Responses))
	for sig, id := range dict.Responses {
		f, err := parseFormat(id, sig)
		if err != nil {
			return err
		}
		responses[id] = f
	}

	m.mu.Lock()
	m.dict, m.raw = dict, text
	m.commands, m.responses = commands, responses
	m.mu.Unlock()
	return nil
}

// Dictionary returns the parsed dictionary or nil.
func (m *MCU) Dictionary() *Dictionary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dict
}

// RawDictionary returns the dictionary JSON.
func (m *MCU) RawDictionary() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw
}

// Constant returns a dictionary constant as an integer.
func (m *MCU) Constant(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dict == nil {
		return 0, false
	}
	v, ok := m.dict.Config[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 0, 64)
	return n, err == nil
}

// ClockFreq is the MCU timer frequency in Hz.
func (m *MCU) ClockFreq() float64 {
	if f, ok := m.Constant("CLOCK_FREQ"); ok && f > 0 {
		return float64(f)
	}
	return defaultClockFreq
}

// OnResponse registers fn for every response called name. The returned
// function removes it.
func (m *MCU) OnResponse(name string, fn ResponseFunc) (cancel func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers[name] = append(m.handlers[name], handlerEntry{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		hs := m.handlers[name]
		for i, h := range hs {
			if h.id == id {
				m.handlers[name] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// dispatch runs on the transport reader goroutine.
func (m *MCU) dispatch(id uint16, data *[]byte) error {
	m.mu.RLock()
	f, ok := m.responses[int(id)]
	fns := append([]handlerEntry(nil), m.handlers[f.name]...)
	m.mu.RUnlock()
	if !ok || len(fns) == 0 {
		return nil
	}
	args, err := f.decode(data)
	if err != nil {
		return err
	}
	for _, h := range fns {
		h.fn(args)
	}
	return nil
}

// Send encodes args against the dictionary format of command name.
func (m *MCU) Send(ctx context.Context, name string, args ...uint32) error {
	f, err := m.command(name)
	if err != nil {
		return err
	}
	enc, err := f.encode(args)
	if err != nil {
		return err
	}
	return m.transport.Send(ctx, uint16(f.id), enc)
}

// SendTokens sends a console command: a name followed by arguments as
// "name=value" or bare values.
func (m *MCU) SendTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return ErrUnknownCommand
	}
	f, err := m.command(tokens[0])
	if err != nil {
		return err
	}
	args, err := f.parseArgs(tokens[1:])
	if err != nil {
		return err
	}
	return m.Send(ctx, tokens[0], args...)
}

func (m *MCU) command(name string) (msgFormat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dict == nil {
		return msgFormat{}, ErrNoDictionary
	}
	f, ok := m.commands[name]
	if !ok {
		return msgFormat{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return f, nil
}

// Request sends command name and waits for the next response called
// reply.
func (m *MCU) Request(ctx context.Context, name, reply string, args ...uint32) ([]uint32, error) {
	ch := make(chan []uint32, 1)
	cancel := m.OnResponse(reply, func(vals []uint32) {
		select {
		case ch <- vals:
		default:
		}
	})
	defer cancel()

	if err := m.Send(ctx, name, args...); err != nil {
		return nil, err
	}
	select {
	case vals := <-ch:
		return vals, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", reply, ctx.Err())
	}
}
