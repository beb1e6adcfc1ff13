// Package emu models a pulse counter register bank in software.
//
// A Bank implements pcnt.Registers. Edges are fed in with Edge; the bank
// applies channel modes, the glitch filter, limits and threshold events the
// way the hardware does, latching status and pending interrupt bits.
package emu

import (
	"sync"

	"gopcnt/pcnt"
)

type channel struct {
	pos, neg     pcnt.CountMode
	hctrl, lctrl pcnt.ControlMode
}

type unit struct {
	count  int16
	paused bool

	ch [pcnt.ChannelMax]channel

	highLimit, lowLimit int16
	thres0, thres1      int16
	eventEn             pcnt.EventType
	status              pcnt.EventType

	filter   uint16
	filterEn bool
}

// Bank is the software register state of one port.
type Bank struct {
	mu    sync.Mutex
	units [pcnt.UnitMax]unit

	intRaw uint32
	intEna uint32

	// Notify, when set, is called after an edge latches a pending bit on an
	// interrupt-enabled unit. It runs without the bank lock held.
	Notify func()
}

// New returns a bank in its power-on state.
func New() *Bank {
	b := &Bank{}
	b.Reset()
	return b
}

// Reset restores the power-on state: counters zero, limit and zero events
// enabled, filter enabled with its default width, interrupts masked.
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.units {
		b.units[i] = unit{
			eventEn:  pcnt.EventHighLimit | pcnt.EventLowLimit | pcnt.EventZero,
			filter:   0x10,
			filterEn: true,
		}
	}
	b.intRaw = 0
	b.intEna = 0
}

// Edge applies one clean edge on the pulse input of (u, ch). ctrlHigh is the
// level of the channel's control input.
func (b *Bank) Edge(u pcnt.Unit, ch pcnt.Channel, rising, ctrlHigh bool) {
	b.EdgeWidth(u, ch, rising, ctrlHigh, 0xFFFF)
}

// EdgeWidth is Edge for a pulse of width APB cycles; narrower pulses than
// the enabled filter are dropped.
func (b *Bank) EdgeWidth(u pcnt.Unit, ch pcnt.Channel, rising, ctrlHigh bool, width uint16) {
	if u >= pcnt.UnitMax || ch >= pcnt.ChannelMax {
		return
	}

	b.mu.Lock()
	un := &b.units[u]
	if un.paused || (un.filterEn && width < un.filter) {
		b.mu.Unlock()
		return
	}
	delta := step(un.ch[ch], rising, ctrlHigh)
	fired := false
	if delta != 0 {
		fired = b.apply(u, delta)
	}
	notify := b.Notify
	b.mu.Unlock()

	if fired && notify != nil {
		notify()
	}
}

// Add applies n counted steps of delta (+1 or -1) directly, bypassing
// channel modes. Used by backends that count edges outside the bank.
// Notify runs after every step that latches an interrupt, as it would on
// hardware.
func (b *Bank) Add(u pcnt.Unit, delta int8, n uint32) {
	if u >= pcnt.UnitMax || delta == 0 {
		return
	}
	for i := uint32(0); i < n; i++ {
		b.mu.Lock()
		if b.units[u].paused {
			b.mu.Unlock()
			return
		}
		fired := b.apply(u, int16(delta))
		notify := b.Notify
		b.mu.Unlock()

		if fired && notify != nil {
			notify()
		}
	}
}

// step resolves the count direction of one edge.
func step(c channel, rising, ctrlHigh bool) int16 {
	mode := c.neg
	if rising {
		mode = c.pos
	}
	ctrl := c.lctrl
	if ctrlHigh {
		ctrl = c.hctrl
	}

	var d int16
	switch mode {
	case pcnt.CountIncrement:
		d = 1
	case pcnt.CountDecrement:
		d = -1
	}
	switch ctrl {
	case pcnt.ControlReverse:
		d = -d
	case pcnt.ControlDisable:
		d = 0
	}
	return d
}

// apply moves the counter of u by delta and latches events.
// Reports whether an interrupt became pending. Caller holds mu.
func (b *Bank) apply(u pcnt.Unit, delta int16) bool {
	un := &b.units[u]
	prev := un.count
	un.count += delta

	var hit pcnt.EventType
	if un.count == un.thres1 {
		hit |= pcnt.EventThresOne
	}
	if un.count == un.thres0 {
		hit |= pcnt.EventThresZero
	}
	if un.count == 0 && prev != 0 {
		hit |= pcnt.EventZero
	}

	// Reaching a limit always wraps the counter to zero; the event only
	// latches when enabled.
	if un.highLimit > 0 && un.count >= un.highLimit {
		un.count = 0
		hit |= pcnt.EventHighLimit
	} else if un.lowLimit < 0 && un.count <= un.lowLimit {
		un.count = 0
		hit |= pcnt.EventLowLimit
	}

	hit &= un.eventEn
	if hit == 0 {
		return false
	}
	un.status |= hit
	b.intRaw |= 1 << u
	return b.intEna&(1<<u) != 0
}

func (b *Bank) SetMode(u pcnt.Unit, ch pcnt.Channel, pos, neg pcnt.CountMode, hctrl, lctrl pcnt.ControlMode) {
	b.mu.Lock()
	b.units[u].ch[ch] = channel{pos: pos, neg: neg, hctrl: hctrl, lctrl: lctrl}
	b.mu.Unlock()
}

func (b *Bank) Counter(u pcnt.Unit) int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[u].count
}

func (b *Bank) Pause(u pcnt.Unit) {
	b.mu.Lock()
	b.units[u].paused = true
	b.mu.Unlock()
}

func (b *Bank) Resume(u pcnt.Unit) {
	b.mu.Lock()
	b.units[u].paused = false
	b.mu.Unlock()
}

func (b *Bank) Clear(u pcnt.Unit) {
	b.mu.Lock()
	b.units[u].count = 0
	b.units[u].status = 0
	b.mu.Unlock()
}

func (b *Bank) EnableInterrupt(u pcnt.Unit) {
	b.mu.Lock()
	b.intEna |= 1 << u
	fire := b.intRaw&(1<<u) != 0
	notify := b.Notify
	b.mu.Unlock()
	if fire && notify != nil {
		notify()
	}
}

func (b *Bank) DisableInterrupt(u pcnt.Unit) {
	b.mu.Lock()
	b.intEna &^= 1 << u
	b.mu.Unlock()
}

// InterruptEnabled reports the interrupt enable bit of u.
func (b *Bank) InterruptEnabled(u pcnt.Unit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intEna&(1<<u) != 0
}

func (b *Bank) EnableEvent(u pcnt.Unit, ev pcnt.EventType) {
	b.mu.Lock()
	b.units[u].eventEn |= ev
	b.mu.Unlock()
}

func (b *Bank) DisableEvent(u pcnt.Unit, ev pcnt.EventType) {
	b.mu.Lock()
	b.units[u].eventEn &^= ev
	b.mu.Unlock()
}

// EventEnabled reports whether ev is armed on u.
func (b *Bank) EventEnabled(u pcnt.Unit, ev pcnt.EventType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[u].eventEn&ev != 0
}

func (b *Bank) SetEventValue(u pcnt.Unit, ev pcnt.EventType, v int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	un := &b.units[u]
	switch ev {
	case pcnt.EventHighLimit:
		un.highLimit = v
	case pcnt.EventLowLimit:
		un.lowLimit = v
	case pcnt.EventThresZero:
		un.thres0 = v
	case pcnt.EventThresOne:
		un.thres1 = v
	}
}

func (b *Bank) EventValue(u pcnt.Unit, ev pcnt.EventType) int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	un := &b.units[u]
	switch ev {
	case pcnt.EventHighLimit:
		return un.highLimit
	case pcnt.EventLowLimit:
		return un.lowLimit
	case pcnt.EventThresZero:
		return un.thres0
	case pcnt.EventThresOne:
		return un.thres1
	}
	return 0
}

func (b *Bank) EventStatus(u pcnt.Unit) pcnt.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[u].status
}

func (b *Bank) SetFilter(u pcnt.Unit, v uint16) {
	b.mu.Lock()
	b.units[u].filter = v
	b.mu.Unlock()
}

func (b *Bank) Filter(u pcnt.Unit) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[u].filter
}

func (b *Bank) EnableFilter(u pcnt.Unit) {
	b.mu.Lock()
	b.units[u].filterEn = true
	b.mu.Unlock()
}

func (b *Bank) DisableFilter(u pcnt.Unit) {
	b.mu.Lock()
	b.units[u].filterEn = false
	b.mu.Unlock()
}

// FilterEnabled reports the filter enable bit of u.
func (b *Bank) FilterEnabled(u pcnt.Unit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[u].filterEn
}

// Paused reports whether u is paused.
func (b *Bank) Paused(u pcnt.Unit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[u].paused
}

func (b *Bank) PendingMask() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intRaw & b.intEna
}

// Raise latches the pending bits in mask as if events had fired.
func (b *Bank) Raise(mask uint32) {
	b.mu.Lock()
	b.intRaw |= mask
	b.mu.Unlock()
}

func (b *Bank) ClearPending(mask uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intRaw &^= mask
	for u := range b.units {
		if mask&(1<<u) != 0 {
			b.units[u].status = 0
		}
	}
}

var _ pcnt.Registers = (*Bank)(nil)
