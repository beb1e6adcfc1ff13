//go:build esp32

package main

import (
	"runtime/volatile"
	"unsafe"

	"tinygo.org/x/drivers"
)

const (
	// UART0 through the AHB FIFO alias; the DPORT alias drops bytes on
	// back-to-back access.
	uart0FIFO   = 0x60000000
	uart0Base   = 0x3FF40000
	uartStatus  = 0x1C
	uartClkdiv  = 0x14
	uartFIFOLen = 128

	apbFreq = 80000000
)

// fifoUART is a polled UART0. The ROM loader leaves the pins and framing
// configured; Configure only changes the baud rate.
type fifoUART struct {
	fifo   *volatile.Register32
	status *volatile.Register32
	clkdiv *volatile.Register32
}

var _ drivers.UART = (*fifoUART)(nil)

func newUART0() *fifoUART {
	return &fifoUART{
		fifo:   (*volatile.Register32)(unsafe.Pointer(uintptr(uart0FIFO))),
		status: (*volatile.Register32)(unsafe.Pointer(uintptr(uart0Base + uartStatus))),
		clkdiv: (*volatile.Register32)(unsafe.Pointer(uintptr(uart0Base + uartClkdiv))),
	}
}

func (u *fifoUART) Configure(baud uint32) {
	if baud == 0 {
		baud = 115200
	}
	u.clkdiv.Set(apbFreq / baud)
}

// Buffered returns the number of bytes in the RX FIFO.
func (u *fifoUART) Buffered() int {
	return int(u.status.Get() & 0xFF)
}

func (u *fifoUART) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && u.Buffered() > 0 {
		p[n] = byte(u.fifo.Get())
		n++
	}
	return n, nil
}

func (u *fifoUART) Write(p []byte) (int, error) {
	for _, b := range p {
		for (u.status.Get()>>16)&0xFF >= uartFIFOLen {
		}
		u.fifo.Set(uint32(b))
	}
	return len(p), nil
}
