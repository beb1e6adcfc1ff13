//go:build esp32

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"

	"gopcnt/core"
)

const (
	dportPeripClkEn = 0x3FF000C0
	dportPeripRstEn = 0x3FF000C4
)

var (
	peripClkEn = (*volatile.Register32)(unsafe.Pointer(uintptr(dportPeripClkEn)))
	peripRstEn = (*volatile.Register32)(unsafe.Pointer(uintptr(dportPeripRstEn)))
)

// dportGate implements pcnt.ClockGate. module is the DPORT bit number.
type dportGate struct{}

func (dportGate) Reset(module int) {
	peripRstEn.SetBits(1 << module)
	peripRstEn.ClearBits(1 << module)
}

func (dportGate) Enable(module int) {
	peripClkEn.SetBits(1 << module)
	peripRstEn.ClearBits(1 << module)
}

var bootTime time.Time

// InitClock registers the clock constants. Scheduler ticks are microseconds
// since boot taken from the runtime clock.
func InitClock() {
	bootTime = time.Now()
	core.RegisterConstant("MCU", "esp32")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
	core.RegisterConstant("APB_FREQ", uint32(core.APBClockHz))
}

// UpdateSystemTime is called from the main loop.
func UpdateSystemTime() {
	core.SetTime(uint32(time.Since(bootTime).Microseconds()))
}
