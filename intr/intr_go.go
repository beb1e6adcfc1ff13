//go:build !tinygo

package intr

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// Disable is a no-op on regular Go (for testing)
func Disable() State {
	return 0
}

// Restore is a no-op on regular Go (for testing)
func Restore(state State) {
	// No-op
}

// Spinlock is a non-reentrant critical section.
// The zero value is unlocked.
type Spinlock struct {
	mu sync.Mutex
}

// Lock enters the critical section.
func (l *Spinlock) Lock() {
	l.mu.Lock()
}

// Unlock leaves the critical section.
func (l *Spinlock) Unlock() {
	l.mu.Unlock()
}
