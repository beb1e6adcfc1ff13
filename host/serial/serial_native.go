//go:build !wasm

package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

var errNoConfig = errors.New("serial: nil config")

// NativePort is a tarm/serial port.
type NativePort struct {
	*serial.Port
	device string
}

// Open opens cfg.Device.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errNoConfig
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &NativePort{Port: p, device: cfg.Device}, nil
}

// Flush discards unread input.
func (p *NativePort) Flush() error {
	return p.Port.Flush()
}

func (p *NativePort) String() string { return p.device }
