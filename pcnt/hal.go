package pcnt

import "sync"

// Registers is the register-level view of one port. Every method is a
// bounded register access and cannot fail once its arguments are in range;
// the driver validates before calling.
type Registers interface {
	SetMode(unit Unit, ch Channel, pos, neg CountMode, hctrl, lctrl ControlMode)
	Counter(unit Unit) int16

	Pause(unit Unit)
	Resume(unit Unit)
	Clear(unit Unit)

	EnableInterrupt(unit Unit)
	DisableInterrupt(unit Unit)

	EnableEvent(unit Unit, ev EventType)
	DisableEvent(unit Unit, ev EventType)
	SetEventValue(unit Unit, ev EventType, value int16)
	EventValue(unit Unit, ev EventType) int16
	// EventStatus returns the latched event bits of the unit.
	EventStatus(unit Unit) EventType

	SetFilter(unit Unit, value uint16)
	Filter(unit Unit) uint16
	EnableFilter(unit Unit)
	DisableFilter(unit Unit)

	// PendingMask has bit u set when unit u has an unacknowledged interrupt.
	PendingMask() uint32
	ClearPending(mask uint32)
}

// Binder takes ownership of a port's registers. It fails when the port's
// register window cannot be claimed.
type Binder func(port Port) (Registers, error)

// SignalRouter connects GPIO pads to peripheral input signals.
type SignalRouter interface {
	// ValidPin reports whether pin can be routed as an input.
	ValidPin(pin int) bool

	// ConfigureInputPullUp makes pin a GPIO input with its pull-up enabled.
	ConfigureInputPullUp(pin int)

	// ConnectInput routes pin to the peripheral input signal.
	ConnectInput(pin int, signal uint32)
}

// Signals names the peripheral input signal indices of one channel.
type Signals struct {
	Pulse   uint32
	Control uint32
}

// SignalTable maps each unit channel to its input signals.
type SignalTable [UnitMax][ChannelMax]Signals

// IntrHandle is the opaque registration returned by an InterruptController.
type IntrHandle interface{}

// InterruptController allocates hardware interrupt bindings.
type InterruptController interface {
	Register(source int, flags IntrFlags, fn ISRFunc, arg any) (IntrHandle, error)
	Unregister(h IntrHandle) error
}

// ClockGate controls peripheral reset and clock enable.
type ClockGate interface {
	Reset(module int)
	Enable(module int)
}

// Platform bundles the collaborators a Driver needs.
type Platform struct {
	Bind       Binder
	Router     SignalRouter
	Signals    SignalTable
	Interrupts InterruptController
	Clock      ClockGate

	// Source is the interrupt source id; zero selects SourcePCNT.
	Source int
}

// ClearPolicy selects the mask the dispatch routine acknowledges.
type ClearPolicy uint8

const (
	// ClearDrained acknowledges the local mask after it has been drained to
	// zero. Pending bits therefore stay latched in hardware.
	ClearDrained ClearPolicy = iota

	// ClearServiced acknowledges the mask read at the start of dispatch.
	ClearServiced
)

// Options tune a Driver.
type Options struct {
	// Lock is the driver-wide critical section. Nil selects the shared
	// process lock, so every driver in the process serializes together.
	Lock sync.Locker

	ClearPolicy ClearPolicy
}
