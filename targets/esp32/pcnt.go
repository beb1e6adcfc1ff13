//go:build esp32

package main

import (
	"runtime/volatile"
	"unsafe"

	"gopcnt/pcnt"
)

// ESP32 PCNT register map
const (
	pcntBase = 0x3FF57000

	pcntUnitStride = 0x0C // CONF0/CONF1/CONF2 per unit
	pcntCNT        = 0x60 // U0_CNT, 4 bytes per unit
	pcntINTST      = 0x84
	pcntINTENA     = 0x88
	pcntINTCLR     = 0x8C
	pcntSTATUS     = 0x90 // U0_STATUS, 4 bytes per unit
	pcntCTRL       = 0xB0
)

// CONF0 fields
const (
	conf0FilterMask = 0x3FF
	conf0FilterEn   = 1 << 10
	conf0ZeroEn     = 1 << 11
	conf0HLimEn     = 1 << 12
	conf0LLimEn     = 1 << 13
	conf0Thres0En   = 1 << 14
	conf0Thres1En   = 1 << 15

	// Channel 0 modes start at bit 16, channel 1 at bit 24:
	// neg, pos, hctrl, lctrl, two bits each.
	conf0ChShift = 16
	conf0ChWidth = 8
)

func reg(offset uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(pcntBase) + offset))
}

func conf0(u pcnt.Unit) *volatile.Register32 { return reg(uintptr(u) * pcntUnitStride) }
func conf1(u pcnt.Unit) *volatile.Register32 { return reg(uintptr(u)*pcntUnitStride + 4) }
func conf2(u pcnt.Unit) *volatile.Register32 { return reg(uintptr(u)*pcntUnitStride + 8) }

// eventEnableBit maps an event to its CONF0 enable bit.
func eventEnableBit(ev pcnt.EventType) uint32 {
	switch ev {
	case pcnt.EventZero:
		return conf0ZeroEn
	case pcnt.EventHighLimit:
		return conf0HLimEn
	case pcnt.EventLowLimit:
		return conf0LLimEn
	case pcnt.EventThresZero:
		return conf0Thres0En
	case pcnt.EventThresOne:
		return conf0Thres1En
	}
	return 0
}

// esp32Regs implements pcnt.Registers on the memory mapped peripheral.
// The driver serializes all writes; read-modify-write here is not atomic
// on its own.
type esp32Regs struct{}

func bindPCNT(port pcnt.Port) (pcnt.Registers, error) {
	return esp32Regs{}, nil
}

func (esp32Regs) SetMode(u pcnt.Unit, ch pcnt.Channel, pos, neg pcnt.CountMode, hctrl, lctrl pcnt.ControlMode) {
	shift := conf0ChShift + uint32(ch)*conf0ChWidth
	field := uint32(neg) | uint32(pos)<<2 | uint32(hctrl)<<4 | uint32(lctrl)<<6
	conf0(u).ReplaceBits(field, 0xFF, uint8(shift))
}

func (esp32Regs) Counter(u pcnt.Unit) int16 {
	return int16(reg(pcntCNT + uintptr(u)*4).Get())
}

func (esp32Regs) Pause(u pcnt.Unit)  { reg(pcntCTRL).SetBits(1 << (2*uint32(u) + 1)) }
func (esp32Regs) Resume(u pcnt.Unit) { reg(pcntCTRL).ClearBits(1 << (2*uint32(u) + 1)) }

// Clear pulses the unit's counter reset bit.
func (esp32Regs) Clear(u pcnt.Unit) {
	ctrl := reg(pcntCTRL)
	ctrl.SetBits(1 << (2 * uint32(u)))
	ctrl.ClearBits(1 << (2 * uint32(u)))
}

func (esp32Regs) EnableInterrupt(u pcnt.Unit)  { reg(pcntINTENA).SetBits(1 << u) }
func (esp32Regs) DisableInterrupt(u pcnt.Unit) { reg(pcntINTENA).ClearBits(1 << u) }

func (esp32Regs) EnableEvent(u pcnt.Unit, ev pcnt.EventType) {
	conf0(u).SetBits(eventEnableBit(ev))
}

func (esp32Regs) DisableEvent(u pcnt.Unit, ev pcnt.EventType) {
	conf0(u).ClearBits(eventEnableBit(ev))
}

func (esp32Regs) SetEventValue(u pcnt.Unit, ev pcnt.EventType, value int16) {
	v := uint32(uint16(value))
	switch ev {
	case pcnt.EventThresZero:
		conf1(u).ReplaceBits(v, 0xFFFF, 0)
	case pcnt.EventThresOne:
		conf1(u).ReplaceBits(v, 0xFFFF, 16)
	case pcnt.EventHighLimit:
		conf2(u).ReplaceBits(v, 0xFFFF, 0)
	case pcnt.EventLowLimit:
		conf2(u).ReplaceBits(v, 0xFFFF, 16)
	}
}

func (esp32Regs) EventValue(u pcnt.Unit, ev pcnt.EventType) int16 {
	switch ev {
	case pcnt.EventThresZero:
		return int16(conf1(u).Get())
	case pcnt.EventThresOne:
		return int16(conf1(u).Get() >> 16)
	case pcnt.EventHighLimit:
		return int16(conf2(u).Get())
	case pcnt.EventLowLimit:
		return int16(conf2(u).Get() >> 16)
	}
	return 0
}

func (esp32Regs) EventStatus(u pcnt.Unit) pcnt.EventType {
	return pcnt.EventType(reg(pcntSTATUS+uintptr(u)*4).Get()) & pcnt.EventMask
}

func (esp32Regs) SetFilter(u pcnt.Unit, value uint16) {
	conf0(u).ReplaceBits(uint32(value), conf0FilterMask, 0)
}

func (esp32Regs) Filter(u pcnt.Unit) uint16 {
	return uint16(conf0(u).Get() & conf0FilterMask)
}

func (esp32Regs) EnableFilter(u pcnt.Unit)  { conf0(u).SetBits(conf0FilterEn) }
func (esp32Regs) DisableFilter(u pcnt.Unit) { conf0(u).ClearBits(conf0FilterEn) }

func (esp32Regs) PendingMask() uint32 {
	return reg(pcntINTST).Get() & (1<<pcnt.UnitMax - 1)
}

func (esp32Regs) ClearPending(mask uint32) {
	reg(pcntINTCLR).Set(mask)
}

var _ pcnt.Registers = esp32Regs{}
