package pcntsim

import (
	"sync"

	"gopcnt/pcnt"
	"gopcnt/pcnt/emu"
)

// NumPins is the GPIO count of the simulated chip.
const NumPins = 40

// reserved pads do not exist on the simulated chip.
var reserved = map[int]bool{20: true, 24: true, 28: true, 29: true, 30: true, 31: true}

type route struct {
	unit  pcnt.Unit
	ch    pcnt.Channel
	pulse bool
}

// Board is a simulated GPIO matrix. It implements pcnt.SignalRouter and
// converts level changes on routed pins into counter edges.
type Board struct {
	mu      sync.Mutex
	bank    *emu.Bank
	signals map[uint32]route

	level  [NumPins]bool
	pullUp [NumPins]bool
	input  [NumPins]bool

	// conn maps a peripheral signal to the pin driving it.
	conn map[uint32]int
}

// NewBoard creates a board feeding bank through the signal table.
func NewBoard(bank *emu.Bank, table pcnt.SignalTable) *Board {
	b := &Board{
		bank:    bank,
		signals: make(map[uint32]route),
		conn:    make(map[uint32]int),
	}
	for u := 0; u < pcnt.UnitMax; u++ {
		for ch := 0; ch < pcnt.ChannelMax; ch++ {
			s := table[u][ch]
			b.signals[s.Pulse] = route{unit: pcnt.Unit(u), ch: pcnt.Channel(ch), pulse: true}
			b.signals[s.Control] = route{unit: pcnt.Unit(u), ch: pcnt.Channel(ch)}
		}
	}
	return b
}

func (b *Board) ValidPin(pin int) bool {
	return pin >= 0 && pin < NumPins && !reserved[pin]
}

func (b *Board) ConfigureInputPullUp(pin int) {
	if !b.ValidPin(pin) {
		return
	}
	b.mu.Lock()
	b.input[pin] = true
	b.pullUp[pin] = true
	b.level[pin] = true
	b.mu.Unlock()
}

func (b *Board) ConnectInput(pin int, signal uint32) {
	b.mu.Lock()
	b.conn[signal] = pin
	b.mu.Unlock()
}

// Routed returns the pin driving signal, or -1.
func (b *Board) Routed(signal uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin, ok := b.conn[signal]; ok {
		return pin
	}
	return -1
}

// PulledUp reports whether pin was configured as a pulled-up input.
func (b *Board) PulledUp(pin int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ValidPin(pin) && b.input[pin] && b.pullUp[pin]
}

// Level returns the current level of pin.
func (b *Board) Level(pin int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ValidPin(pin) && b.level[pin]
}

// Set drives pin to level. A change on a pin routed to a pulse signal
// produces an edge on that unit channel.
func (b *Board) Set(pin int, level bool) {
	if !b.ValidPin(pin) {
		return
	}

	type edge struct {
		unit     pcnt.Unit
		ch       pcnt.Channel
		ctrlHigh bool
	}
	var edges []edge

	b.mu.Lock()
	if b.level[pin] == level {
		b.mu.Unlock()
		return
	}
	b.level[pin] = level
	for sig, p := range b.conn {
		r, ok := b.signals[sig]
		if p != pin || !ok || !r.pulse {
			continue
		}
		edges = append(edges, edge{unit: r.unit, ch: r.ch, ctrlHigh: b.controlLevel(r.unit, r.ch)})
	}
	b.mu.Unlock()

	for _, e := range edges {
		b.bank.Edge(e.unit, e.ch, level, e.ctrlHigh)
	}
}

// controlLevel is the level seen by the control input of (u, ch); an
// unrouted control input reads low. Caller holds mu.
func (b *Board) controlLevel(u pcnt.Unit, ch pcnt.Channel) bool {
	for sig, p := range b.conn {
		r, ok := b.signals[sig]
		if ok && !r.pulse && r.unit == u && r.ch == ch {
			return b.level[p]
		}
	}
	return false
}

// Pulse toggles pin away from its current level and back, n times. Each
// pulse produces one rising and one falling edge.
func (b *Board) Pulse(pin, n int) {
	for i := 0; i < n; i++ {
		idle := b.Level(pin)
		b.Set(pin, !idle)
		b.Set(pin, idle)
	}
}
