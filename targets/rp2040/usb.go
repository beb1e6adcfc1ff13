//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers"
)

// usbLink adapts the USB CDC serial port to drivers.UART.
type usbLink struct {
	port machine.Serialer
}

var _ drivers.UART = usbLink{}

func newUSBLink() usbLink {
	machine.Serial.Configure(machine.UARTConfig{})
	return usbLink{port: machine.Serial}
}

func (l usbLink) Buffered() int { return l.port.Buffered() }

func (l usbLink) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && l.port.Buffered() > 0 {
		b, err := l.port.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (l usbLink) Write(p []byte) (int, error) {
	return l.port.Write(p)
}
