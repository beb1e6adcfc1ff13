//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"gopcnt/core"
)

// RP2040 TIMER raw counter, 1 MHz
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock registers the clock constants for the host.
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
}

// UpdateSystemTime copies the low word of the hardware timer into the
// scheduler clock.
func UpdateSystemTime() {
	core.SetTime(timerRAWL.Get())
}
