// Package pcntsim is a host-side pulse counter platform for tests and
// examples: instrumented registers over an emu.Bank, a simulated board that
// turns pin toggles into counter edges, a fake interrupt controller and a
// fake clock gate.
package pcntsim

import (
	"errors"
	"sync"

	"gopcnt/pcnt"
	"gopcnt/pcnt/emu"
)

// Registers records every mutating register call before applying it to
// the underlying bank.
type Registers struct {
	*emu.Bank

	mu      sync.Mutex
	writes  []string
	cleared []uint32
}

// NewRegisters wraps bank.
func NewRegisters(bank *emu.Bank) *Registers {
	return &Registers{Bank: bank}
}

func (r *Registers) log(op string) {
	r.mu.Lock()
	r.writes = append(r.writes, op)
	r.mu.Unlock()
}

// Writes returns the names of the mutating calls made so far.
func (r *Registers) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.writes))
	copy(out, r.writes)
	return out
}

// Cleared returns every mask passed to ClearPending, in order.
func (r *Registers) Cleared() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, len(r.cleared))
	copy(out, r.cleared)
	return out
}

// ResetLog forgets recorded calls.
func (r *Registers) ResetLog() {
	r.mu.Lock()
	r.writes = nil
	r.cleared = nil
	r.mu.Unlock()
}

func (r *Registers) SetMode(u pcnt.Unit, ch pcnt.Channel, pos, neg pcnt.CountMode, hctrl, lctrl pcnt.ControlMode) {
	r.log("set_mode")
	r.Bank.SetMode(u, ch, pos, neg, hctrl, lctrl)
}

func (r *Registers) Pause(u pcnt.Unit)  { r.log("pause"); r.Bank.Pause(u) }
func (r *Registers) Resume(u pcnt.Unit) { r.log("resume"); r.Bank.Resume(u) }
func (r *Registers) Clear(u pcnt.Unit)  { r.log("clear"); r.Bank.Clear(u) }

func (r *Registers) EnableInterrupt(u pcnt.Unit) {
	r.log("enable_interrupt")
	r.Bank.EnableInterrupt(u)
}

func (r *Registers) DisableInterrupt(u pcnt.Unit) {
	r.log("disable_interrupt")
	r.Bank.DisableInterrupt(u)
}

func (r *Registers) EnableEvent(u pcnt.Unit, ev pcnt.EventType) {
	r.log("enable_event")
	r.Bank.EnableEvent(u, ev)
}

func (r *Registers) DisableEvent(u pcnt.Unit, ev pcnt.EventType) {
	r.log("disable_event")
	r.Bank.DisableEvent(u, ev)
}

func (r *Registers) SetEventValue(u pcnt.Unit, ev pcnt.EventType, v int16) {
	r.log("set_event_value")
	r.Bank.SetEventValue(u, ev, v)
}

func (r *Registers) SetFilter(u pcnt.Unit, v uint16) {
	r.log("set_filter")
	r.Bank.SetFilter(u, v)
}

func (r *Registers) EnableFilter(u pcnt.Unit)  { r.log("enable_filter"); r.Bank.EnableFilter(u) }
func (r *Registers) DisableFilter(u pcnt.Unit) { r.log("disable_filter"); r.Bank.DisableFilter(u) }

func (r *Registers) ClearPending(mask uint32) {
	r.mu.Lock()
	r.writes = append(r.writes, "clear_pending")
	r.cleared = append(r.cleared, mask)
	r.mu.Unlock()
	r.Bank.ClearPending(mask)
}

var _ pcnt.Registers = (*Registers)(nil)

// ErrUnknownHandle is returned when unregistering a handle twice.
var ErrUnknownHandle = errors.New("unknown interrupt handle")

type binding struct {
	id     int
	source int
	flags  pcnt.IntrFlags
	fn     pcnt.ISRFunc
	arg    any
}

// Interrupts is a fake interrupt controller with one shared line per
// source. Fire invokes every binding synchronously.
type Interrupts struct {
	mu       sync.Mutex
	bindings []*binding
	nextID   int

	// RegisterErr and UnregisterErr, when set, are returned by the next
	// calls instead of succeeding.
	RegisterErr   error
	UnregisterErr error
}

func (c *Interrupts) Register(source int, flags pcnt.IntrFlags, fn pcnt.ISRFunc, arg any) (pcnt.IntrHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RegisterErr != nil {
		return nil, c.RegisterErr
	}
	c.nextID++
	b := &binding{id: c.nextID, source: source, flags: flags, fn: fn, arg: arg}
	c.bindings = append(c.bindings, b)
	return b, nil
}

func (c *Interrupts) Unregister(h pcnt.IntrHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range c.bindings {
		if b == h {
			c.bindings = append(c.bindings[:i], c.bindings[i+1:]...)
			return c.UnregisterErr
		}
	}
	return ErrUnknownHandle
}

// Active returns the number of live bindings.
func (c *Interrupts) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bindings)
}

// Flags returns the flags of the most recent live binding.
func (c *Interrupts) Flags() pcnt.IntrFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bindings) == 0 {
		return 0
	}
	return c.bindings[len(c.bindings)-1].flags
}

// Source returns the source of the most recent live binding, or -1.
func (c *Interrupts) Source() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bindings) == 0 {
		return -1
	}
	return c.bindings[len(c.bindings)-1].source
}

// Fire raises the shared interrupt line.
func (c *Interrupts) Fire() {
	c.mu.Lock()
	bs := make([]*binding, len(c.bindings))
	copy(bs, c.bindings)
	c.mu.Unlock()

	for _, b := range bs {
		b.fn(b.arg)
	}
}

// Clock is a fake clock gate. Reset also resets the attached bank, like
// the peripheral reset line does.
type Clock struct {
	mu      sync.Mutex
	resets  int
	enables int
	bank    *emu.Bank
}

func (c *Clock) Reset(module int) {
	c.mu.Lock()
	c.resets++
	bank := c.bank
	c.mu.Unlock()
	if bank != nil && module == pcnt.ModulePCNT {
		bank.Reset()
	}
}

func (c *Clock) Enable(module int) {
	c.mu.Lock()
	c.enables++
	c.mu.Unlock()
}

// Counts returns how many resets and enables were issued.
func (c *Clock) Counts() (resets, enables int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets, c.enables
}

// Sim bundles a complete simulated platform for one port.
type Sim struct {
	Bank       *emu.Bank
	Regs       *Registers
	Board      *Board
	Interrupts *Interrupts
	Clock      *Clock

	// BindErr, when set, makes the binder fail.
	BindErr error
}

// New returns a simulated platform with an ESP32-sized GPIO bank.
func New() *Sim {
	bank := emu.New()
	s := &Sim{
		Bank:       bank,
		Regs:       NewRegisters(bank),
		Interrupts: &Interrupts{},
		Clock:      &Clock{bank: bank},
	}
	s.Board = NewBoard(bank, Signals())
	return s
}

// AutoFire raises the interrupt line whenever the bank latches a pending
// bit on an enabled unit, like real hardware.
func (s *Sim) AutoFire() {
	s.Bank.Notify = s.Interrupts.Fire
}

// Platform returns the collaborators for pcnt.New.
func (s *Sim) Platform() pcnt.Platform {
	return pcnt.Platform{
		Bind: func(port pcnt.Port) (pcnt.Registers, error) {
			if s.BindErr != nil {
				return nil, s.BindErr
			}
			return s.Regs, nil
		},
		Router:     s.Board,
		Signals:    Signals(),
		Interrupts: s.Interrupts,
		Clock:      s.Clock,
	}
}

// Signals returns the simulated signal numbering: four consecutive signals
// per unit, pulse inputs first.
func Signals() pcnt.SignalTable {
	var t pcnt.SignalTable
	for u := 0; u < pcnt.UnitMax; u++ {
		for ch := 0; ch < pcnt.ChannelMax; ch++ {
			t[u][ch] = pcnt.Signals{
				Pulse:   uint32(u*4 + ch),
				Control: uint32(u*4 + 2 + ch),
			}
		}
	}
	return t
}
