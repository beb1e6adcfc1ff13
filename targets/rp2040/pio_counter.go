//go:build rp2040

package main

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gopcnt/debug"
	"gopcnt/intr"
	"gopcnt/pcnt"
	"gopcnt/pcnt/emu"
)

// The RP2040 has no pulse counter. Each routed pulse input gets a PIO state
// machine that counts rising and falling edges; the main loop drains the
// RX FIFOs into an emu.Bank, which applies channel modes, limits and
// events and raises the software interrupt.

// Edge counter program, loaded at origin 0 in each PIO block.
// X counts rising edges down, Y falling edges; after every full period the
// low halves of both are pushed as one word.
//
// WAIT is encoded by hand: 0x2000 | polarity<<7 | src(pin)=1<<5 | index.
const (
	pioWaitHighPin0 = 0x20A0
	pioWaitLowPin0  = 0x2020

	edgeCounterOrigin = 0
)

func buildEdgeCounterProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		pioWaitHighPin0,                          // 0: wait 1 pin 0
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(), // 1: jmp x--, 2
		pioWaitLowPin0,                           // 2: wait 0 pin 0
		asm.Jmp(4, rp2pio.JmpYNZeroDec).Encode(), // 3: jmp y--, 4
		asm.In(rp2pio.InSrcX, 16).Encode(),       // 4: in x, 16
		asm.In(rp2pio.InSrcY, 16).Encode(),       // 5: in y, 16
		asm.Push(false, false).Encode(),          // 6: push noblock
		// .wrap
	}
}

var errNoStateMachine = errors.New("no free PIO state machine")

// pioSignals numbers the inputs like the ESP32 table does per unit: two
// pulse inputs, then two control inputs.
func pioSignals() pcnt.SignalTable {
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

// edgeChannel is one unit channel fed by a state machine.
type edgeChannel struct {
	sm      rp2pio.StateMachine
	pio     *rp2pio.PIO
	offset  uint8
	pin     machine.Pin
	ctrl    machine.Pin
	hasCtrl bool

	// last rising and falling totals seen, modulo 2^16
	rise, fall uint16
}

// pioCounter is the RP2040 pulse counter backend. It implements
// pcnt.SignalRouter and owns the bank exposed as pcnt.Registers.
type pioCounter struct {
	bank *emu.Bank

	loaded [2]bool
	offset [2]uint8

	// free is the pool of claimed but unassigned state machines.
	free  []rp2pio.StateMachine
	pool  bool
	chans [pcnt.UnitMax][pcnt.ChannelMax]*edgeChannel
}

func newPIOCounter() *pioCounter {
	return &pioCounter{bank: emu.New()}
}

func (c *pioCounter) bind(port pcnt.Port) (pcnt.Registers, error) {
	return c.bank, nil
}

func (c *pioCounter) ValidPin(pin int) bool {
	return pin >= 0 && pin < 30
}

func (c *pioCounter) ConfigureInputPullUp(pin int) {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (c *pioCounter) ConnectInput(pin int, signal uint32) {
	u := pcnt.Unit(signal / 4)
	ch := pcnt.Channel(signal % 2)
	if u >= pcnt.UnitMax {
		return
	}
	if signal%4 >= 2 {
		ec := c.chans[u][ch]
		if ec == nil {
			ec = &edgeChannel{}
			c.chans[u][ch] = ec
		}
		ec.ctrl = machine.Pin(pin)
		ec.hasCtrl = true
		return
	}
	if err := c.attach(u, ch, machine.Pin(pin)); err != nil {
		debug.Println("[PIO] unit " + debug.Itoa(int(u)) + ": " + err.Error())
	}
}

// claimPool claims every state machine not used elsewhere in the firmware.
func (c *pioCounter) claimPool() {
	c.pool = true
	for _, p := range []*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1} {
		for i := uint8(0); i < 4; i++ {
			sm := p.StateMachine(i)
			if sm.TryClaim() {
				c.free = append(c.free, sm)
			}
		}
	}
}

func (c *pioCounter) program(block uint8, p *rp2pio.PIO) (uint8, error) {
	if c.loaded[block] {
		return c.offset[block], nil
	}
	offset, err := p.AddProgram(buildEdgeCounterProgram(), edgeCounterOrigin)
	if err != nil {
		return 0, err
	}
	c.loaded[block] = true
	c.offset[block] = offset
	return offset, nil
}

// attach starts counting edges of pin on (u, ch), reusing the channel's
// state machine when it already has one.
func (c *pioCounter) attach(u pcnt.Unit, ch pcnt.Channel, pin machine.Pin) error {
	ec := c.chans[u][ch]
	if ec == nil {
		ec = &edgeChannel{}
		c.chans[u][ch] = ec
	}
	if ec.pio == nil {
		if !c.pool {
			c.claimPool()
		}
		if len(c.free) == 0 {
			return errNoStateMachine
		}
		ec.sm = c.free[0]
		c.free = c.free[1:]
		ec.pio = ec.sm.PIO()
		block := uint8(0)
		if ec.pio == rp2pio.PIO1 {
			block = 1
		}
		offset, err := c.program(block, ec.pio)
		if err != nil {
			c.free = append(c.free, ec.sm)
			ec.pio = nil
			return err
		}
		ec.offset = offset
	}
	ec.pin = pin

	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetInPins(pin, 1)
	cfg.SetInShift(false, false, 32)
	cfg.SetWrap(ec.offset+6, ec.offset)
	cfg.SetClkDivIntFrac(1, 0)

	ec.sm.SetEnabled(false)
	ec.sm.Init(ec.offset, cfg)
	ec.sm.Exec(asm.Set(rp2pio.SetDestX, 0).Encode())
	ec.sm.Exec(asm.Set(rp2pio.SetDestY, 0).Encode())
	ec.sm.ClearFIFOs()
	ec.rise, ec.fall = 0, 0
	ec.sm.SetEnabled(true)
	return nil
}

// Pump moves the edges counted since the last call into the bank. Called
// from the main loop.
func (c *pioCounter) Pump() {
	for u := range c.chans {
		for ch, ec := range c.chans[u] {
			if ec == nil || ec.pio == nil {
				continue
			}
			c.drain(pcnt.Unit(u), pcnt.Channel(ch), ec)
		}
	}
}

func (c *pioCounter) drain(u pcnt.Unit, ch pcnt.Channel, ec *edgeChannel) {
	var word uint32
	got := false
	for !ec.sm.IsRxFIFOEmpty() {
		word = ec.sm.RxGet()
		got = true
	}
	if !got {
		return
	}

	// Registers count down from zero.
	rise := -uint16(word >> 16)
	fall := -uint16(word)
	nRise := rise - ec.rise
	nFall := fall - ec.fall
	ec.rise, ec.fall = rise, fall

	ctrlHigh := ec.hasCtrl && ec.ctrl.Get()
	for i := uint16(0); i < nRise; i++ {
		c.bank.Edge(u, ch, true, ctrlHigh)
	}
	for i := uint16(0); i < nFall; i++ {
		c.bank.Edge(u, ch, false, ctrlHigh)
	}
}

type softBinding struct {
	fn  pcnt.ISRFunc
	arg any
}

// softInterrupts implements pcnt.InterruptController. The bank's Notify
// hook plays the role of the interrupt line.
type softInterrupts struct {
	bindings []*softBinding
}

var errUnknownBinding = errors.New("interrupt binding not registered")

func (s *softInterrupts) Register(source int, flags pcnt.IntrFlags, fn pcnt.ISRFunc, arg any) (pcnt.IntrHandle, error) {
	b := &softBinding{fn: fn, arg: arg}
	state := intr.Disable()
	s.bindings = append(s.bindings, b)
	intr.Restore(state)
	return b, nil
}

func (s *softInterrupts) Unregister(h pcnt.IntrHandle) error {
	state := intr.Disable()
	defer intr.Restore(state)
	for i, b := range s.bindings {
		if b == h {
			s.bindings = append(s.bindings[:i], s.bindings[i+1:]...)
			return nil
		}
	}
	return errUnknownBinding
}

// fire runs every binding with interrupts masked.
func (s *softInterrupts) fire() {
	state := intr.Disable()
	for _, b := range s.bindings {
		b.fn(b.arg)
	}
	intr.Restore(state)
}

// bankGate implements pcnt.ClockGate. Reset clears the bank; there is no
// clock to ungate.
type bankGate struct {
	bank *emu.Bank
}

func (g bankGate) Reset(module int) {
	if module == pcnt.ModulePCNT {
		g.bank.Reset()
	}
}

func (bankGate) Enable(module int) {}

// newPlatform wires the PIO backend into a pcnt.Platform.
func newPlatform(c *pioCounter) pcnt.Platform {
	irq := &softInterrupts{}
	c.bank.Notify = irq.fire
	return pcnt.Platform{
		Bind:       c.bind,
		Router:     c,
		Signals:    pioSignals(),
		Interrupts: irq,
		Clock:      bankGate{bank: c.bank},
	}
}
