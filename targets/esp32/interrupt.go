//go:build esp32

package main

import (
	"errors"
	"time"

	"gopcnt/intr"
	"gopcnt/pcnt"
)

// pollInterval is the sampling period of the PCNT interrupt status.
const pollInterval = 50 * time.Microsecond

var errUnknownBinding = errors.New("interrupt binding not registered")

type binding struct {
	source int
	fn     pcnt.ISRFunc
	arg    any
}

// pollingController implements pcnt.InterruptController without an xtensa
// vector: a goroutine watches INT_ST and runs the bound handlers with
// interrupts masked.
type pollingController struct {
	bindings []*binding
	running  bool
}

func (c *pollingController) Register(source int, flags pcnt.IntrFlags, fn pcnt.ISRFunc, arg any) (pcnt.IntrHandle, error) {
	b := &binding{source: source, fn: fn, arg: arg}

	state := intr.Disable()
	c.bindings = append(c.bindings, b)
	start := !c.running
	c.running = true
	intr.Restore(state)

	if start {
		go c.poll()
	}
	return b, nil
}

func (c *pollingController) Unregister(h pcnt.IntrHandle) error {
	state := intr.Disable()
	defer intr.Restore(state)
	for i, b := range c.bindings {
		if b == h {
			c.bindings = append(c.bindings[:i], c.bindings[i+1:]...)
			return nil
		}
	}
	return errUnknownBinding
}

func (c *pollingController) poll() {
	var regs esp32Regs
	for {
		state := intr.Disable()
		if len(c.bindings) == 0 {
			c.running = false
			intr.Restore(state)
			return
		}
		if regs.PendingMask() != 0 {
			for _, b := range c.bindings {
				if b.source == pcnt.SourcePCNT {
					b.fn(b.arg)
				}
			}
		}
		intr.Restore(state)
		time.Sleep(pollInterval)
	}
}
