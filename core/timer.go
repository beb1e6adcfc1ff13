package core

import "sync/atomic"

// TimerFreq is the scheduler tick rate. Targets advance the clock with
// SetTime in these units.
const TimerFreq = 1000000

var systemTicks uint32

// GetTime returns the current system time in timer ticks.
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current system time. Targets call it from their clock
// source; tests call it directly.
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// GetUptime returns the 64-bit uptime. Only the low word is tracked.
func GetUptime() uint64 {
	return uint64(GetTime())
}

func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// ProcessTimers runs every timer that is due at the current time.
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}

// timeBefore compares clocks across a 32-bit wrap.
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
