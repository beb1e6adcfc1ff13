// Package pcnt drives a pulse counter peripheral: an array of hardware
// counter units, each fed by up to two pulse/control channel pairs, sharing
// one interrupt line.
//
// The driver owns the port table, unit configuration, event and filter
// programming, and the shared interrupt dispatch service. Register access,
// pin routing, interrupt allocation and clock gating are supplied by the
// platform through the interfaces in hal.go.
//
// All counter-mutating register writes are serialized by one critical
// section for the whole driver, never per unit or per port.
package pcnt

// Port identifies one physical pulse counter controller.
type Port uint8

// Unit identifies a counter unit within a port.
type Unit uint8

// Channel identifies a pulse/control pin pair within a unit.
type Channel uint8

const (
	Port0 Port = 0

	PortMax    = 1
	UnitMax    = 8
	ChannelMax = 2

	// PinNotUsed marks a pulse or control pin as unconnected.
	PinNotUsed = -1

	// FilterMax is the exclusive upper bound of the 10-bit glitch filter.
	FilterMax = 1024

	// ModulePCNT identifies the peripheral to the clock gate.
	ModulePCNT = 10

	// SourcePCNT is the interrupt source of the peripheral.
	SourcePCNT = 48
)

const (
	Channel0 Channel = 0
	Channel1 Channel = 1
)

// CountMode selects what an edge on the pulse input does to the counter.
type CountMode uint8

const (
	CountHold      CountMode = iota // counter keeps its value
	CountIncrement                  // counter increases
	CountDecrement                  // counter decreases
	countModeMax
)

func (m CountMode) String() string {
	switch m {
	case CountHold:
		return "hold"
	case CountIncrement:
		return "increment"
	case CountDecrement:
		return "decrement"
	}
	return "invalid"
}

// ControlMode selects how the control input level modifies counting.
type ControlMode uint8

const (
	ControlKeep    ControlMode = iota // count mode unchanged
	ControlReverse                    // increment and decrement swap
	ControlDisable                    // counting inhibited
	controlModeMax
)

func (m ControlMode) String() string {
	switch m {
	case ControlKeep:
		return "keep"
	case ControlReverse:
		return "reverse"
	case ControlDisable:
		return "disable"
	}
	return "invalid"
}

// EventType is a threshold condition that can latch a status bit and raise
// the unit interrupt. Values match the unit status register bits.
type EventType uint32

const (
	EventThresOne  EventType = 0x04
	EventThresZero EventType = 0x08
	EventLowLimit  EventType = 0x10
	EventHighLimit EventType = 0x20
	EventZero      EventType = 0x40

	// EventMask covers every event status bit.
	EventMask = EventThresOne | EventThresZero | EventLowLimit | EventHighLimit | EventZero
)

// Events lists the recognized event types in status bit order.
var Events = [...]EventType{EventThresOne, EventThresZero, EventLowLimit, EventHighLimit, EventZero}

func (e EventType) String() string {
	switch e {
	case EventThresOne:
		return "thres1"
	case EventThresZero:
		return "thres0"
	case EventLowLimit:
		return "low_limit"
	case EventHighLimit:
		return "high_limit"
	case EventZero:
		return "zero"
	}
	return "invalid"
}

// valid reports whether e names exactly one recognized event.
func (e EventType) valid() bool {
	switch e {
	case EventThresOne, EventThresZero, EventLowLimit, EventHighLimit, EventZero:
		return true
	}
	return false
}

// IntrFlags are the interrupt allocation flags passed to the interrupt
// controller when the ISR service is installed.
type IntrFlags uint32

const (
	IntrLevel1   IntrFlags = 1 << 1
	IntrLevel2   IntrFlags = 1 << 2
	IntrLevel3   IntrFlags = 1 << 3
	IntrShared   IntrFlags = 1 << 8
	IntrEdge     IntrFlags = 1 << 9
	IntrIRAM     IntrFlags = 1 << 10
	IntrDisabled IntrFlags = 1 << 11
)

// ISRFunc is a per-unit interrupt callback. It runs in interrupt context and
// receives the argument stored with it.
type ISRFunc func(arg any)

// UnitConfig is the full wiring and mode description of one unit channel.
type UnitConfig struct {
	Unit       Unit
	Channel    Channel
	PulsePin   int // PinNotUsed when unconnected
	ControlPin int // PinNotUsed when unconnected

	PosMode      CountMode   // action on rising pulse edge
	NegMode      CountMode   // action on falling pulse edge
	HighCtrlMode ControlMode // modifier while control is high
	LowCtrlMode  ControlMode // modifier while control is low

	HighLimit int16 // must be >= 0
	LowLimit  int16 // must be <= 0
}

// ParseCountMode parses the names produced by CountMode.String.
func ParseCountMode(s string) (CountMode, error) {
	for m := CountHold; m < countModeMax; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, &Error{Code: InvalidArgument, Op: "parse", Msg: "unknown count mode " + s}
}

// ParseControlMode parses the names produced by ControlMode.String.
func ParseControlMode(s string) (ControlMode, error) {
	for m := ControlKeep; m < controlModeMax; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, &Error{Code: InvalidArgument, Op: "parse", Msg: "unknown control mode " + s}
}
