//go:build esp32

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"gopcnt/core"
	"gopcnt/debug"
	"gopcnt/pcnt"
)

const (
	// GPIO_FUNCn_IN_SEL_CFG_REG, one word per peripheral input signal.
	gpioFuncInSelBase = 0x3FF44130

	inSelPinMask   = 0x3F
	inSelUseMatrix = 1 << 7

	numGPIO = 40
)

// Pads that do not exist on the ESP32.
var reservedPins = [numGPIO]bool{20: true, 24: true, 28: true, 29: true, 30: true, 31: true}

// pcntSignals are the GPIO matrix input indices of every unit channel.
// Units 5-7 sit after the LEDC signals.
var pcntSignals = pcnt.SignalTable{
	{{Pulse: 39, Control: 41}, {Pulse: 40, Control: 42}},
	{{Pulse: 43, Control: 45}, {Pulse: 44, Control: 46}},
	{{Pulse: 47, Control: 49}, {Pulse: 48, Control: 50}},
	{{Pulse: 51, Control: 53}, {Pulse: 52, Control: 54}},
	{{Pulse: 55, Control: 57}, {Pulse: 56, Control: 58}},
	{{Pulse: 71, Control: 73}, {Pulse: 72, Control: 74}},
	{{Pulse: 75, Control: 77}, {Pulse: 76, Control: 78}},
	{{Pulse: 79, Control: 81}, {Pulse: 80, Control: 82}},
}

// gpioMatrix implements pcnt.SignalRouter.
type gpioMatrix struct{}

func (gpioMatrix) ValidPin(pin int) bool {
	return pin >= 0 && pin < numGPIO && !reservedPins[pin]
}

func (gpioMatrix) ConfigureInputPullUp(pin int) {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (gpioMatrix) ConnectInput(pin int, signal uint32) {
	sel := (*volatile.Register32)(unsafe.Pointer(uintptr(gpioFuncInSelBase + 4*signal)))
	sel.Set(uint32(pin)&inSelPinMask | inSelUseMatrix)
}

// registerPins exports the usable pads to the host.
func registerPins() {
	names := make([]string, numGPIO)
	for i := range names {
		if !reservedPins[i] {
			names[i] = "gpio" + debug.Itoa(i)
		}
	}
	core.RegisterEnumeration("pin", names)
}

