package mcu

import (
	"context"
	"sync"

	"golang.org/x/exp/constraints"
)

// Poll and debounce bounds for query_counter, in seconds.
const (
	MinPollTime   = 0.001
	MaxPollTime   = 10.0
	MaxSampleTime = 0.01
)

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FrequencyFunc receives the sample time (seconds of MCU clock) and the
// measured frequency in Hz.
type FrequencyFunc func(t float64, hz float64)

// FrequencyCounter turns counter_state reports for one oid into a
// frequency. The 32-bit firmware count is extended to 64 bits on the host.
type FrequencyCounter struct {
	OID       uint8
	clockFreq float64
	pollTicks uint32

	mu        sync.Mutex
	started   bool
	lastClock uint64
	lastCount uint64
	lastTime  float64
	freq      float64
	callback  FrequencyFunc
}

// NewFrequencyCounter creates a counter for oid on an MCU running at
// clockFreq.
func NewFrequencyCounter(oid uint8, clockFreq float64) *FrequencyCounter {
	return &FrequencyCounter{OID: oid, clockFreq: clockFreq}
}

// SetCallback sets the function run for every computed sample.
func (c *FrequencyCounter) SetCallback(fn FrequencyFunc) {
	c.mu.Lock()
	c.callback = fn
	c.mu.Unlock()
}

// Frequency returns the most recent measurement.
func (c *FrequencyCounter) Frequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// Ticks converts seconds to MCU clock ticks.
func (c *FrequencyCounter) Ticks(seconds float64) uint32 {
	return uint32(seconds * c.clockFreq)
}

// Start configures the counter on pin and begins polling every pollTime
// seconds with a sampleTime debounce.
func (c *FrequencyCounter) Start(ctx context.Context, m *MCU, pin uint32, pullUp bool, pollTime, sampleTime float64) error {
	pollTime = clamp(pollTime, MinPollTime, MaxPollTime)
	sampleTime = clamp(sampleTime, 0, MaxSampleTime)
	c.pollTicks = c.Ticks(pollTime)

	m.OnResponse("counter_state", func(args []uint32) {
		if len(args) == 4 && uint8(args[0]) == c.OID {
			c.HandleState(args[1], args[2], args[3])
		}
	})

	pu := uint32(0)
	if pullUp {
		pu = 1
	}
	if err := m.Send(ctx, "config_counter", uint32(c.OID), pin, pu); err != nil {
		return err
	}
	clock, err := m.Request(ctx, "get_clock", "clock")
	if err != nil {
		return err
	}
	start := clock[0] + c.Ticks(0.1)
	return m.Send(ctx, "query_counter", uint32(c.OID), start, c.pollTicks, c.Ticks(sampleTime))
}

// HandleState consumes one counter_state report. The first report only
// primes the counter.
func (c *FrequencyCounter) HandleState(nextClock, count, countClock uint32) {
	c.mu.Lock()
	if !c.started {
		c.started = true
		c.lastClock = uint64(countClock)
		c.lastCount = uint64(count)
		c.lastTime = c.seconds(c.extend(nextClock) - uint64(c.pollTicks))
		c.mu.Unlock()
		return
	}

	countAt := c.extend(countClock)
	sampleTime := c.seconds(c.extend(nextClock) - uint64(c.pollTicks))
	countTime := c.seconds(countAt)
	c.lastClock = countAt

	total := c.lastCount + uint64(count-uint32(c.lastCount))
	if dt := countTime - c.lastTime; dt > 0 {
		c.lastTime = countTime
		c.freq = float64(total-c.lastCount) / dt
	} else {
		// No edges since the last sample.
		c.lastTime = sampleTime
		c.freq = 0
	}
	c.lastCount = total
	hz, fn := c.freq, c.callback
	c.mu.Unlock()

	if fn != nil {
		fn(sampleTime, hz)
	}
}

// extend widens a 32-bit MCU clock using the last clock seen. Clocks up
// to 2^31 ticks either side of it resolve correctly.
func (c *FrequencyCounter) extend(clock uint32) uint64 {
	diff := int32(clock - uint32(c.lastClock))
	return uint64(int64(c.lastClock) + int64(diff))
}

func (c *FrequencyCounter) seconds(clock uint64) float64 {
	return float64(clock) / c.clockFreq
}
