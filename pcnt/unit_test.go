package pcnt_test

import (
	"testing"

	"gopcnt/pcnt"
	"gopcnt/pcnt/pcntsim"
)

func counterConfig() pcnt.UnitConfig {
	return pcnt.UnitConfig{
		Unit:         0,
		Channel:      0,
		PulsePin:     4,
		ControlPin:   pcnt.PinNotUsed,
		PosMode:      pcnt.CountIncrement,
		NegMode:      pcnt.CountHold,
		HighCtrlMode: pcnt.ControlKeep,
		LowCtrlMode:  pcnt.ControlKeep,
		HighLimit:    100,
		LowLimit:     -100,
	}
}

func TestFiveRisingEdges(t *testing.T) {
	d, sim := newInitialized(t)

	if err := d.ConfigureUnit(pcnt.Port0, counterConfig()); err != nil {
		t.Fatalf("ConfigureUnit failed: %v", err)
	}
	if err := d.ClearCounter(pcnt.Port0, 0); err != nil {
		t.Fatalf("ClearCounter failed: %v", err)
	}

	count, err := d.GetCounterValue(pcnt.Port0, 0)
	if err != nil || count != 0 {
		t.Fatalf("Expected 0 after clear, got %d (%v)", count, err)
	}

	// Pin 4 idles high through its pull-up; each pulse is a falling edge
	// (held) followed by a rising edge (counted).
	sim.Board.Pulse(4, 5)

	count, err = d.GetCounterValue(pcnt.Port0, 0)
	if err != nil {
		t.Fatalf("GetCounterValue failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5, got %d", count)
	}
}

func TestConfigureUnitSideEffects(t *testing.T) {
	d, sim := newInitialized(t)
	cfg := counterConfig()
	cfg.Unit = 3
	cfg.Channel = 1
	cfg.ControlPin = 5

	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatalf("ConfigureUnit failed: %v", err)
	}

	want := []string{
		"set_event_value", "set_event_value",
		"disable_event", "disable_event", "disable_event",
		"disable_filter",
		"set_mode",
	}
	got := sim.Regs.Writes()
	if len(got) != len(want) {
		t.Fatalf("Expected writes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Write %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if v := sim.Bank.EventValue(3, pcnt.EventHighLimit); v != 100 {
		t.Errorf("Expected high limit 100, got %d", v)
	}
	if v := sim.Bank.EventValue(3, pcnt.EventLowLimit); v != -100 {
		t.Errorf("Expected low limit -100, got %d", v)
	}
	for _, ev := range []pcnt.EventType{pcnt.EventHighLimit, pcnt.EventLowLimit, pcnt.EventZero} {
		if sim.Bank.EventEnabled(3, ev) {
			t.Errorf("Event %s left enabled", ev)
		}
	}
	if sim.Bank.FilterEnabled(3) {
		t.Error("Filter left enabled")
	}

	sig := pcntsim.Signals()[3][1]
	if pin := sim.Board.Routed(sig.Pulse); pin != 4 {
		t.Errorf("Pulse signal routed to %d, expected 4", pin)
	}
	if pin := sim.Board.Routed(sig.Control); pin != 5 {
		t.Errorf("Control signal routed to %d, expected 5", pin)
	}
	if !sim.Board.PulledUp(4) || !sim.Board.PulledUp(5) {
		t.Error("Routed pins not configured as pulled-up inputs")
	}
}

func TestConfigureUnitUnusedPinsNotRouted(t *testing.T) {
	d, sim := newInitialized(t)
	cfg := counterConfig()
	cfg.PulsePin = pcnt.PinNotUsed

	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatalf("ConfigureUnit failed: %v", err)
	}
	sig := pcntsim.Signals()[0][0]
	if sim.Board.Routed(sig.Pulse) != -1 || sim.Board.Routed(sig.Control) != -1 {
		t.Error("Unused pins were routed")
	}
}

func TestModuleResetLatch(t *testing.T) {
	d, sim := newInitialized(t)

	for i := 0; i < 3; i++ {
		cfg := counterConfig()
		cfg.Unit = pcnt.Unit(i)
		if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
			t.Fatalf("ConfigureUnit %d failed: %v", i, err)
		}
	}

	resets, enables := sim.Clock.Counts()
	if resets != 1 {
		t.Errorf("Expected exactly 1 module reset, got %d", resets)
	}
	if enables != 3 {
		t.Errorf("Expected a clock enable per configure, got %d", enables)
	}

	// The latch survives a port restart.
	d.Deinit(pcnt.Port0)
	d.Init(pcnt.Port0)
	d.ConfigureUnit(pcnt.Port0, counterConfig())
	if resets, _ = sim.Clock.Counts(); resets != 1 {
		t.Errorf("Module reset again after re-init: %d", resets)
	}
}

func TestConfigureUnitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pcnt.UnitConfig)
	}{
		{"unit out of range", func(c *pcnt.UnitConfig) { c.Unit = pcnt.UnitMax }},
		{"channel out of range", func(c *pcnt.UnitConfig) { c.Channel = pcnt.ChannelMax }},
		{"pulse pin invalid", func(c *pcnt.UnitConfig) { c.PulsePin = 20 }},
		{"pulse pin beyond chip", func(c *pcnt.UnitConfig) { c.PulsePin = 40 }},
		{"pulse equals control", func(c *pcnt.UnitConfig) { c.ControlPin = 4 }},
		{"control pin invalid", func(c *pcnt.UnitConfig) { c.ControlPin = 24 }},
		{"pos mode", func(c *pcnt.UnitConfig) { c.PosMode = 3 }},
		{"neg mode", func(c *pcnt.UnitConfig) { c.NegMode = 9 }},
		{"high ctrl mode", func(c *pcnt.UnitConfig) { c.HighCtrlMode = 3 }},
		{"low ctrl mode", func(c *pcnt.UnitConfig) { c.LowCtrlMode = 200 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, sim := newInitialized(t)
			cfg := counterConfig()
			tc.mutate(&cfg)

			expectCode(t, d.ConfigureUnit(pcnt.Port0, cfg), pcnt.InvalidArgument)
			if w := sim.Regs.Writes(); len(w) != 0 {
				t.Errorf("Rejected config wrote registers: %v", w)
			}
			if resets, enables := sim.Clock.Counts(); resets != 0 || enables != 0 {
				t.Errorf("Rejected config touched the clock gate: %d/%d", resets, enables)
			}
		})
	}
}

func TestConfigureUnitSkipsWrongSignLimits(t *testing.T) {
	d, sim := newInitialized(t)
	if err := d.ConfigureUnit(pcnt.Port0, counterConfig()); err != nil {
		t.Fatal(err)
	}
	sim.Regs.ResetLog()

	cfg := counterConfig()
	cfg.HighLimit = -1
	cfg.LowLimit = 1
	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatalf("ConfigureUnit rejected limit signs: %v", err)
	}
	for _, w := range sim.Regs.Writes() {
		if w == "set_event_value" {
			t.Errorf("Wrong-sign limit was written")
		}
	}
	if v, _ := d.GetEventValue(pcnt.Port0, 0, pcnt.EventHighLimit); v != 100 {
		t.Errorf("Expected high limit 100, got %d", v)
	}
	if v, _ := d.GetEventValue(pcnt.Port0, 0, pcnt.EventLowLimit); v != -100 {
		t.Errorf("Expected low limit -100, got %d", v)
	}

	// Only the offending limit is skipped.
	cfg.LowLimit = -50
	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatal(err)
	}
	if v, _ := d.GetEventValue(pcnt.Port0, 0, pcnt.EventLowLimit); v != -50 {
		t.Errorf("Expected low limit -50, got %d", v)
	}
}

func TestValidateWithoutRouter(t *testing.T) {
	cfg := counterConfig()
	cfg.PulsePin = 20 // only a router can reject this pad
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate rejected a pin it cannot judge: %v", err)
	}
	cfg.ControlPin = 20
	expectCode(t, cfg.Validate(), pcnt.InvalidArgument)
}

func TestSetModeAndPin(t *testing.T) {
	d, sim := newInitialized(t)
	if err := d.ConfigureUnit(pcnt.Port0, counterConfig()); err != nil {
		t.Fatal(err)
	}

	// Count down on both edges.
	if err := d.SetMode(pcnt.Port0, 0, 0, pcnt.CountDecrement, pcnt.CountDecrement, pcnt.ControlKeep, pcnt.ControlKeep); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	sim.Board.Pulse(4, 2)
	if c, _ := d.GetCounterValue(pcnt.Port0, 0); c != -4 {
		t.Errorf("Expected -4, got %d", c)
	}

	if err := d.SetPin(pcnt.Port0, 0, 0, 12, pcnt.PinNotUsed); err != nil {
		t.Fatalf("SetPin failed: %v", err)
	}
	if pin := sim.Board.Routed(pcntsim.Signals()[0][0].Pulse); pin != 12 {
		t.Errorf("Expected pulse rerouted to 12, got %d", pin)
	}

	expectCode(t, d.SetMode(pcnt.Port0, 0, 2, 0, 0, 0, 0), pcnt.InvalidArgument)
	expectCode(t, d.SetMode(pcnt.Port0, 0, 0, 5, 0, 0, 0), pcnt.InvalidArgument)
	expectCode(t, d.SetPin(pcnt.Port0, 0, 0, 7, 7), pcnt.InvalidArgument)
	expectCode(t, d.SetPin(pcnt.Port0, 0, 0, 7, 99), pcnt.InvalidArgument)
}

func TestControlPinReverses(t *testing.T) {
	d, sim := newInitialized(t)
	cfg := counterConfig()
	cfg.ControlPin = 5
	cfg.HighCtrlMode = pcnt.ControlReverse
	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatal(err)
	}

	// Control is pulled up, so counting runs reversed.
	sim.Board.Pulse(4, 3)
	if c, _ := d.GetCounterValue(pcnt.Port0, 0); c != -3 {
		t.Errorf("Expected -3 with control high, got %d", c)
	}

	sim.Board.Set(5, false)
	sim.Board.Pulse(4, 3)
	if c, _ := d.GetCounterValue(pcnt.Port0, 0); c != 0 {
		t.Errorf("Expected 0 after counting up with control low, got %d", c)
	}
}

func TestParseModes(t *testing.T) {
	for m := pcnt.CountHold; m <= pcnt.CountDecrement; m++ {
		got, err := pcnt.ParseCountMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseCountMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	for m := pcnt.ControlKeep; m <= pcnt.ControlDisable; m++ {
		got, err := pcnt.ParseControlMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseControlMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := pcnt.ParseCountMode("sideways"); err == nil {
		t.Error("Expected error for unknown count mode")
	}
}
