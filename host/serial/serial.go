// Package serial opens the link to a counter MCU.
package serial

import "io"

// Port is an open serial link.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config describes the serial device. USB CDC links ignore Baud.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout int // milliseconds, 0 blocks
}

// DefaultBaud matches Klipper's default serial speed.
const DefaultBaud = 250000

func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
