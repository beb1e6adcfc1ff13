//go:build tinygo

package intr

import "runtime/interrupt"

// State is the saved interrupt mask
type State = interrupt.State

// Disable disables interrupts and returns the previous state
func Disable() State {
	return interrupt.Disable()
}

// Restore restores the interrupt state
func Restore(state State) {
	interrupt.Restore(state)
}

// Spinlock is a critical section that masks interrupts on the current
// core until the outermost Unlock. TinyGo schedules goroutines on a single
// core, so masking is sufficient. Nested Lock calls only count; the state
// saved by the outermost Lock is the one restored.
type Spinlock struct {
	state interrupt.State
	depth uint32
}

// Lock enters the critical section.
func (l *Spinlock) Lock() {
	state := interrupt.Disable()
	if l.depth == 0 {
		l.state = state
	}
	l.depth++
}

// Unlock leaves the critical section.
func (l *Spinlock) Unlock() {
	l.depth--
	if l.depth == 0 {
		interrupt.Restore(l.state)
	}
}
