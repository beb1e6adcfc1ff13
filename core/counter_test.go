package core

import (
	"errors"
	"testing"

	"gopcnt/intr"
	"gopcnt/pcnt"
	"gopcnt/pcnt/pcntsim"
	"gopcnt/protocol"
)

type sentFrame struct {
	name string
	args []uint32
}

// recorder captures responses and decodes their VLQ arguments.
type recorder struct {
	frames []sentFrame
}

func (r *recorder) SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) {
	out := protocol.NewScratchOutput()
	args(out)
	data := append([]byte(nil), out.Result()...)

	name := "?"
	if cmd, ok := globalRegistry.GetCommand(cmdID); ok {
		name = cmd.Name
	}
	var vals []uint32
	for len(data) > 0 {
		v, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			break
		}
		vals = append(vals, v)
	}
	r.frames = append(r.frames, sentFrame{name: name, args: vals})
}

func (r *recorder) named(name string) []sentFrame {
	var out []sentFrame
	for _, f := range r.frames {
		if f.name == name {
			out = append(out, f)
		}
	}
	return out
}

// setupCounters installs a fresh registry, firmware state and simulated
// counter driver for one test.
func setupCounters(t *testing.T) (*pcntsim.Sim, *recorder) {
	t.Helper()

	oldReg, oldDict := globalRegistry, globalDictionary
	oldState, oldTransport, oldDriver := globalState, globalTransport, counterDriver
	oldCounters, oldUnits := counters, unitsInUse

	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	globalState = &FirmwareState{moveCount: 16}
	counters = make(map[uint8]*Counter)
	unitsInUse = [pcnt.UnitMax]bool{}
	counterWake = false
	resetTimers()
	SetTime(0)

	InitCoreCommands()
	InitCounterCommands()

	sim := pcntsim.New()
	SetCounterDriver(pcnt.New(sim.Platform(), pcnt.Options{
		Lock:        &intr.Spinlock{},
		ClearPolicy: pcnt.ClearServiced,
	}))
	rec := &recorder{}
	SetGlobalTransport(rec)

	t.Cleanup(func() {
		resetTimers()
		SetTime(0)
		globalRegistry, globalDictionary = oldReg, oldDict
		globalState, globalTransport, counterDriver = oldState, oldTransport, oldDriver
		counters, unitsInUse = oldCounters, oldUnits
		counterWake = false
	})
	return sim, rec
}

func runCommand(t *testing.T, name string, args ...uint32) error {
	t.Helper()
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		t.Fatalf("Command %s not registered", name)
	}
	data := encodeArgs(args...)
	return globalRegistry.Dispatch(cmd.ID, &data)
}

func TestConfigCounterAllocatesUnits(t *testing.T) {
	sim, _ := setupCounters(t)

	if err := runCommand(t, "config_counter", 1, 4, 1); err != nil {
		t.Fatalf("config_counter oid=1: %v", err)
	}
	if err := runCommand(t, "config_counter", 2, 5, 0); err != nil {
		t.Fatalf("config_counter oid=2: %v", err)
	}

	c1, _ := GetCounter(1)
	c2, _ := GetCounter(2)
	if c1.Unit != 0 || c2.Unit != 1 {
		t.Errorf("Expected units 0 and 1, got %d and %d", c1.Unit, c2.Unit)
	}
	// pull_up=0 is accepted but the input is still pulled up.
	if !sim.Board.PulledUp(4) || !sim.Board.PulledUp(5) {
		t.Error("Counter input routed without its pull-up")
	}
	if !sim.Bank.EventEnabled(0, pcnt.EventHighLimit) || !sim.Bank.InterruptEnabled(0) {
		t.Error("Overflow interrupt not armed on unit 0")
	}
	if sim.Interrupts.Active() != 1 {
		t.Errorf("Expected one shared interrupt binding, got %d", sim.Interrupts.Active())
	}

	if err := runCommand(t, "config_counter", 1, 6, 0); !errors.Is(err, ErrCounterExists) {
		t.Errorf("Expected ErrCounterExists, got %v", err)
	}
}

func TestConfigCounterRunsOutOfUnits(t *testing.T) {
	setupCounters(t)

	for oid := uint32(0); oid < pcnt.UnitMax; oid++ {
		if err := runCommand(t, "config_counter", oid, 4, 0); err != nil {
			t.Fatalf("config_counter oid=%d: %v", oid, err)
		}
	}
	if err := runCommand(t, "config_counter", 50, 4, 0); !errors.Is(err, ErrNoFreeUnit) {
		t.Errorf("Expected ErrNoFreeUnit, got %v", err)
	}
}

func TestConfigCounterBadPinReleasesUnit(t *testing.T) {
	setupCounters(t)

	if err := runCommand(t, "config_counter", 1, 20, 0); pcnt.CodeOf(err) != pcnt.InvalidArgument {
		t.Fatalf("Expected invalid_argument for reserved pin, got %v", err)
	}
	if err := runCommand(t, "config_counter", 1, 4, 0); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if c, _ := GetCounter(1); c.Unit != 0 {
		t.Errorf("Unit 0 not released after failure, got unit %d", c.Unit)
	}
}

func TestQueryCounterReportsSamples(t *testing.T) {
	sim, rec := setupCounters(t)

	runCommand(t, "config_counter", 3, 4, 0)
	SetTime(1000)
	if err := runCommand(t, "query_counter", 3, 1000, 500, 0); err != nil {
		t.Fatalf("query_counter: %v", err)
	}

	sim.Board.Pulse(4, 5)
	ProcessTimers()
	CounterTask()

	states := rec.named("counter_state")
	if len(states) != 1 {
		t.Fatalf("Expected one counter_state, got %d", len(states))
	}
	want := []uint32{3, 1500, 5, 1000}
	for i, v := range want {
		if states[0].args[i] != v {
			t.Errorf("counter_state arg %d: expected %d, got %d", i, v, states[0].args[i])
		}
	}

	// Nothing new to report until the next poll.
	CounterTask()
	if len(rec.named("counter_state")) != 1 {
		t.Error("CounterTask reported without a new sample")
	}

	sim.Board.Pulse(4, 2)
	SetTime(1500)
	ProcessTimers()
	CounterTask()
	states = rec.named("counter_state")
	if len(states) != 2 || states[1].args[1] != 2000 || states[1].args[2] != 7 {
		t.Errorf("Second sample wrong: %+v", states)
	}
}

func TestQueryCounterZeroPollStops(t *testing.T) {
	_, rec := setupCounters(t)

	runCommand(t, "config_counter", 1, 4, 0)
	runCommand(t, "query_counter", 1, 0, 100, 0)
	runCommand(t, "query_counter", 1, 0, 0, 0)

	SetTime(1000)
	ProcessTimers()
	CounterTask()

	if c, _ := GetCounter(1); c.State != CounterStateIdle {
		t.Errorf("Expected idle state, got %d", c.State)
	}
	if len(rec.named("counter_state")) != 0 {
		t.Error("Stopped counter still reporting")
	}
}

func TestQueryCounterUnknownOID(t *testing.T) {
	setupCounters(t)
	if err := runCommand(t, "query_counter", 9, 0, 100, 0); !errors.Is(err, ErrUnknownCounter) {
		t.Errorf("Expected ErrUnknownCounter, got %v", err)
	}
}

func TestCounterOverflowExtendsCount(t *testing.T) {
	sim, _ := setupCounters(t)
	sim.AutoFire()

	runCommand(t, "config_counter", 1, 4, 0)
	sim.Bank.Add(0, 1, CounterLimit+3)

	c, _ := GetCounter(1)
	if got := c.Count(); got != CounterLimit+3 {
		t.Errorf("Expected %d, got %d", CounterLimit+3, got)
	}
	if sim.Bank.PendingMask() != 0 {
		t.Errorf("Pending bits left after overflow: %#x", sim.Bank.PendingMask())
	}
}

func TestCounterCountsUndispatchedWrap(t *testing.T) {
	sim, _ := setupCounters(t)
	runCommand(t, "config_counter", 1, 4, 1)

	// No AutoFire: the wrap latches but the handler has not run.
	sim.Bank.Add(0, 1, CounterLimit+3)
	c, _ := GetCounter(1)
	if got := c.Count(); got != CounterLimit+3 {
		t.Errorf("Expected %d before dispatch, got %d", CounterLimit+3, got)
	}

	sim.Interrupts.Fire()
	if got := c.Count(); got != CounterLimit+3 {
		t.Errorf("Expected %d after dispatch, got %d", CounterLimit+3, got)
	}
}

func TestSampleTicksProgramFilter(t *testing.T) {
	sim, _ := setupCounters(t)
	runCommand(t, "config_counter", 1, 4, 0)

	runCommand(t, "query_counter", 1, 0, 0, 2)
	if sim.Bank.Filter(0) != 160 || !sim.Bank.FilterEnabled(0) {
		t.Errorf("Expected filter 160 enabled, got %d enabled=%v", sim.Bank.Filter(0), sim.Bank.FilterEnabled(0))
	}

	runCommand(t, "query_counter", 1, 0, 0, 100)
	if sim.Bank.Filter(0) != pcnt.FilterMax-1 {
		t.Errorf("Expected filter clamped to %d, got %d", pcnt.FilterMax-1, sim.Bank.Filter(0))
	}

	runCommand(t, "query_counter", 1, 0, 0, 0)
	if sim.Bank.FilterEnabled(0) {
		t.Error("Zero sample_ticks should disable the filter")
	}
}

func TestEmergencyStopPausesCounters(t *testing.T) {
	sim, rec := setupCounters(t)

	runCommand(t, "config_counter", 1, 4, 0)
	runCommand(t, "query_counter", 1, 0, 100, 0)
	if err := runCommand(t, "emergency_stop"); err != nil {
		t.Fatal(err)
	}

	if !IsShutdown() {
		t.Fatal("Not in shutdown after emergency_stop")
	}
	if !sim.Bank.Paused(0) {
		t.Error("Unit 0 still counting after shutdown")
	}
	if len(rec.named("shutdown")) != 1 {
		t.Errorf("Expected one shutdown response, got %d", len(rec.named("shutdown")))
	}

	// A second stop does not repeat the notification.
	runCommand(t, "emergency_stop")
	if len(rec.named("shutdown")) != 1 {
		t.Error("Shutdown reported twice")
	}

	if err := runCommand(t, "config_counter", 2, 5, 0); !errors.Is(err, ErrCounterShutdown) {
		t.Errorf("Expected ErrCounterShutdown, got %v", err)
	}
}

func TestResetFirmwareStateFreesUnits(t *testing.T) {
	sim, _ := setupCounters(t)

	runCommand(t, "config_counter", 1, 4, 0)
	runCommand(t, "config_counter", 2, 5, 0)
	TryShutdown("test")
	ResetFirmwareState()

	if IsShutdown() {
		t.Error("Shutdown flag survived reset")
	}
	if _, ok := GetCounter(1); ok {
		t.Error("Counter survived reset")
	}
	if sim.Bank.InterruptEnabled(0) || sim.Bank.InterruptEnabled(1) {
		t.Error("Interrupts still enabled after reset")
	}

	if err := runCommand(t, "config_counter", 7, 4, 0); err != nil {
		t.Fatalf("Reconfigure after reset: %v", err)
	}
	if c, _ := GetCounter(7); c.Unit != 0 {
		t.Errorf("Expected unit 0 to be reused, got %d", c.Unit)
	}
}

func TestIdentifyServesDictionary(t *testing.T) {
	_, rec := setupCounters(t)

	if err := runCommand(t, "identify", 0, 40); err != nil {
		t.Fatal(err)
	}
	frames := rec.named("identify_response")
	if len(frames) != 1 {
		t.Fatalf("Expected identify_response, got %+v", rec.frames)
	}
	if frames[0].args[0] != 0 {
		t.Errorf("Expected offset 0, got %d", frames[0].args[0])
	}
}
