// Pulse counter support.
// Implements Klipper's counter protocol on top of the PCNT driver: the
// hardware unit counts edges, the high limit interrupt extends the count to
// 32 bits, and a timer samples it periodically for the host.
package core

import (
	"errors"
	"sync/atomic"

	"gopcnt/debug"
	"gopcnt/intr"
	"gopcnt/pcnt"
	"gopcnt/protocol"
)

const (
	// CounterLimit is the high limit programmed into each unit. The unit
	// wraps to zero there and the interrupt adds CounterLimit to the
	// software overflow.
	CounterLimit = 0x7FFF

	// APBClockHz drives the glitch filter.
	APBClockHz = 80000000

	counterPort  = pcnt.Port0
	counterFlags = pcnt.IntrLevel1
)

// Counter states
const (
	CounterStateIdle    = 0
	CounterStatePolling = 1
	// CounterStateReportPending means a sample was taken and counter_state
	// must be sent from task context.
	CounterStateReportPending = 2
)

var (
	ErrCounterExists   = errors.New("counter oid already configured")
	ErrNoFreeUnit      = errors.New("no free pulse counter unit")
	ErrUnknownCounter  = errors.New("counter oid not configured")
	ErrCounterShutdown = errors.New("counter configured during shutdown")
)

// Counter is one configured pulse input.
type Counter struct {
	OID   uint8
	Pin   uint32
	Unit  pcnt.Unit
	State uint8

	Timer       Timer
	PollTicks   uint32
	SampleTicks uint32

	// overflow accumulates CounterLimit per high limit event. Written from
	// interrupt context.
	overflow uint32

	// Last sample, handed from the timer to CounterTask.
	PendingCount uint32
	PendingClock uint32
	NextClock    uint32
}

var (
	counters    = make(map[uint8]*Counter)
	unitsInUse  [pcnt.UnitMax]bool
	counterWake bool
)

// InitCounterCommands registers the counter commands with the registry.
func InitCounterCommands() {
	RegisterCommand("config_counter", "oid=%c pin=%u pull_up=%c", handleConfigCounter)
	RegisterCommand("query_counter", "oid=%c clock=%u poll_ticks=%u sample_ticks=%u", handleQueryCounter)
	RegisterResponse("counter_state", "oid=%c next_clock=%u count=%u count_clock=%u")

	RegisterConstant("PCNT_UNITS", uint32(pcnt.UnitMax))
	RegisterConstant("PCNT_COUNTER_LIMIT", uint32(CounterLimit))
}

func handleConfigCounter(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	// pull_up is decoded for wire compatibility only: the driver routes
	// every counter input with its pull-up enabled.
	pullUp, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if IsShutdown() {
		return ErrCounterShutdown
	}
	if _, exists := counters[uint8(oid)]; exists {
		return ErrCounterExists
	}
	unit, ok := allocUnit()
	if !ok {
		debug.Println("[COUNTER] oid=" + debug.Utoa(oid) + ": no free unit")
		return ErrNoFreeUnit
	}

	if pullUp == 0 {
		debug.Println("[COUNTER] oid=" + debug.Utoa(oid) + ": pull_up=0 ignored, pull-up forced")
	}

	c := &Counter{
		OID:  uint8(oid),
		Pin:  pin,
		Unit: unit,
	}
	if err := setupCounterUnit(c); err != nil {
		unitsInUse[unit] = false
		debug.Println("[COUNTER] oid=" + debug.Utoa(oid) + ": " + err.Error())
		return err
	}

	counters[c.OID] = c
	debug.Record(debug.EvtCounterConfig, uint8(unit), GetTime(), pin, oid)
	debug.Println("[COUNTER] oid=" + debug.Utoa(oid) + " pin=" + debug.Utoa(pin) +
		" unit=" + debug.Itoa(int(unit)))
	return nil
}

// allocUnit claims the lowest free unit.
func allocUnit() (pcnt.Unit, bool) {
	for u := range unitsInUse {
		if !unitsInUse[u] {
			unitsInUse[u] = true
			return pcnt.Unit(u), true
		}
	}
	return 0, false
}

// setupCounterUnit programs c.Unit as a rising edge counter on c.Pin with
// overflow tracking.
func setupCounterUnit(c *Counter) error {
	drv := MustCounter()
	if !drv.Initialized(counterPort) {
		if err := drv.Init(counterPort); err != nil {
			return err
		}
	}

	cfg := pcnt.UnitConfig{
		Unit:         c.Unit,
		Channel:      pcnt.Channel0,
		PulsePin:     int(c.Pin),
		ControlPin:   pcnt.PinNotUsed,
		PosMode:      pcnt.CountIncrement,
		NegMode:      pcnt.CountHold,
		HighCtrlMode: pcnt.ControlKeep,
		LowCtrlMode:  pcnt.ControlKeep,
		HighLimit:    CounterLimit,
		LowLimit:     -CounterLimit,
	}
	if err := drv.ConfigureUnit(counterPort, cfg); err != nil {
		return err
	}
	if err := drv.EnableEvent(counterPort, c.Unit, pcnt.EventHighLimit); err != nil {
		return err
	}

	if !drv.ISRServiceInstalled() {
		if err := drv.InstallISRService(counterFlags); err != nil {
			return err
		}
	}
	if err := drv.AddISRHandler(c.Unit, counterOverflow, c); err != nil {
		return err
	}

	if err := drv.ClearCounter(counterPort, c.Unit); err != nil {
		return err
	}
	return drv.Resume(counterPort, c.Unit)
}

// counterOverflow runs in interrupt context for the unit of arg.
func counterOverflow(arg any) {
	c, ok := arg.(*Counter)
	if !ok {
		return
	}
	status, err := MustCounter().GetEventStatus(counterPort, c.Unit)
	if err != nil || status&pcnt.EventHighLimit == 0 {
		return
	}
	total := atomic.AddUint32(&c.overflow, CounterLimit)
	debug.Record(debug.EvtCounterOverflow, uint8(c.Unit), GetTime(), total, uint32(status))
}

// Count returns the 32-bit extended count. The overflow is read on both
// sides of the hardware counter so a wrap in between is not lost. A wrap
// whose interrupt is still latched has already restarted the hardware
// counter, so its CounterLimit is added here. This relies on the status
// being acknowledged together with the handler run (pcnt.ClearServiced).
func (c *Counter) Count() uint32 {
	drv := MustCounter()
	for {
		before := atomic.LoadUint32(&c.overflow)
		hw, err := drv.GetCounterValue(counterPort, c.Unit)
		if err != nil {
			return before
		}
		status, err := drv.GetEventStatus(counterPort, c.Unit)
		if err != nil {
			return before
		}
		if atomic.LoadUint32(&c.overflow) != before {
			continue
		}
		total := before + uint32(int32(hw))
		if status&pcnt.EventHighLimit != 0 {
			total += CounterLimit
		}
		return total
	}
}

func handleQueryCounter(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pollTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	sampleTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	c, exists := counters[uint8(oid)]
	if !exists {
		return ErrUnknownCounter
	}

	CancelTimer(&c.Timer)
	c.PollTicks = pollTicks
	c.SampleTicks = sampleTicks
	applySampleFilter(c)
	debug.Record(debug.EvtCounterQuery, uint8(c.Unit), clock, pollTicks, sampleTicks)

	// Klipper semantics: a zero poll interval stops reporting.
	if pollTicks == 0 {
		c.State = CounterStateIdle
		return nil
	}

	c.State = CounterStatePolling
	c.Timer.Next = nil
	c.Timer.WakeTime = clock
	c.Timer.Handler = counterTimerHandler
	ScheduleTimer(&c.Timer)
	return nil
}

// applySampleFilter maps the host debounce interval onto the glitch
// filter, clamped to what the hardware can hold.
func applySampleFilter(c *Counter) {
	drv := MustCounter()
	if c.SampleTicks == 0 {
		drv.DisableFilter(counterPort, c.Unit)
		return
	}
	cycles := uint64(c.SampleTicks) * (APBClockHz / TimerFreq)
	if cycles >= pcnt.FilterMax {
		cycles = pcnt.FilterMax - 1
	}
	drv.SetFilterValue(counterPort, c.Unit, uint16(cycles))
	drv.EnableFilter(counterPort, c.Unit)
}

// counterFromTimer finds the counter that owns t.
func counterFromTimer(t *Timer) *Counter {
	for _, c := range counters {
		if c != nil && &c.Timer == t {
			return c
		}
	}
	return nil
}

func counterTimerHandler(t *Timer) uint8 {
	c := counterFromTimer(t)
	if c == nil || c.State == CounterStateIdle || c.PollTicks == 0 {
		return SF_DONE
	}

	now := GetTime()
	c.PendingCount = c.Count()
	c.PendingClock = now
	c.NextClock = t.WakeTime + c.PollTicks
	c.State = CounterStateReportPending
	debug.Record(debug.EvtCounterPoll, uint8(c.Unit), now, c.PendingCount, c.NextClock)

	t.WakeTime = c.NextClock
	wakeCounterTask()
	return SF_RESCHEDULE
}

func wakeCounterTask() {
	state := intr.Disable()
	counterWake = true
	intr.Restore(state)
}

// CounterTask sends counter_state for every counter with a pending sample.
// It runs from the main loop, not from the timer.
func CounterTask() {
	state := intr.Disable()
	if !counterWake {
		intr.Restore(state)
		return
	}
	counterWake = false
	intr.Restore(state)

	for oid, c := range counters {
		if c == nil || c.State != CounterStateReportPending {
			continue
		}

		state = intr.Disable()
		if c.State != CounterStateReportPending {
			intr.Restore(state)
			continue
		}
		count, countClock, nextClock := c.PendingCount, c.PendingClock, c.NextClock
		c.State = CounterStatePolling
		intr.Restore(state)

		SendResponse("counter_state", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(oid))
			protocol.EncodeVLQUint(output, nextClock)
			protocol.EncodeVLQUint(output, count)
			protocol.EncodeVLQUint(output, countClock)
		})
	}
}

// ShutdownCounter stops polling and pauses the unit. The count is kept.
func ShutdownCounter(c *Counter) {
	c.State = CounterStateIdle
	CancelTimer(&c.Timer)
	if counterDriver != nil {
		counterDriver.Pause(counterPort, c.Unit)
	}
}

// ShutdownAllCounters stops every configured counter.
func ShutdownAllCounters() {
	for _, c := range counters {
		if c != nil {
			ShutdownCounter(c)
		}
	}
}

// resetCounters detaches and forgets every counter so the host can
// configure from scratch.
func resetCounters() {
	for oid, c := range counters {
		ShutdownCounter(c)
		if counterDriver != nil && counterDriver.ISRServiceInstalled() {
			counterDriver.RemoveISRHandler(c.Unit)
		}
		unitsInUse[c.Unit] = false
		delete(counters, oid)
	}
	counterWake = false
}

// GetCounter returns the counter for oid.
func GetCounter(oid uint8) (*Counter, bool) {
	c, ok := counters[oid]
	return c, ok
}
