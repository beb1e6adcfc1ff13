// Package intr provides the interrupt masking primitives shared by the
// scheduler and the pulse counter driver.
//
// On TinyGo builds Disable/Restore mask interrupts on the current core. On
// regular Go builds (host tests) there are no interrupts, so masking is a
// no-op and Spinlock falls back to a mutex so concurrent goroutines still
// serialize.
package intr

// Global is the process-wide critical section used when a component is not
// given its own lock.
var Global Spinlock
