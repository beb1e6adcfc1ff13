package tachometer

import (
	"math"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"gopcnt/intr"
	"gopcnt/pcnt"
	"gopcnt/pcnt/pcntsim"
)

func newTach(t *testing.T, cfg Config) (*Device, *pcntsim.Sim, *time.Duration) {
	t.Helper()
	sim := pcntsim.New()
	sim.AutoFire()
	drv := pcnt.New(sim.Platform(), pcnt.Options{
		Lock:        &intr.Spinlock{},
		ClearPolicy: pcnt.ClearServiced,
	})

	d := New(drv)
	now := new(time.Duration)
	d.Now = func() time.Duration { return *now }
	if err := d.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return d, sim, now
}

func TestRPM(t *testing.T) {
	d, sim, now := newTach(t, Config{Unit: 2, Pin: 12, PulsesPerRev: 2})

	if err := d.Update(drivers.AngularVelocity); err != nil {
		t.Fatal(err)
	}
	if d.RPM() != 0 {
		t.Errorf("Priming update reported %v RPM", d.RPM())
	}

	// 40 pulses at 2 per rev in 1s = 20 rev/s.
	sim.Board.Pulse(12, 40)
	*now += time.Second
	if err := d.Update(drivers.AngularVelocity); err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(d.RPM())-1200) > 0.01 {
		t.Errorf("Expected 1200 RPM, got %v", d.RPM())
	}
	if d.Pulses() != 40 {
		t.Errorf("Pulses = %d", d.Pulses())
	}
	if d.AngularVelocity() != math.MaxInt32 {
		t.Errorf("AngularVelocity should saturate, got %d", d.AngularVelocity())
	}
}

func TestUpdateIgnoresOtherMeasurements(t *testing.T) {
	d, sim, now := newTach(t, Config{Unit: 0, Pin: 4, PulsesPerRev: 1})
	d.Update(drivers.AngularVelocity)

	sim.Board.Pulse(4, 10)
	*now += time.Second
	if err := d.Update(drivers.Temperature); err != nil {
		t.Fatal(err)
	}
	if d.Pulses() != 0 {
		t.Error("Temperature update sampled the counter")
	}
}

func TestOverflowCarried(t *testing.T) {
	d, sim, now := newTach(t, Config{Unit: 1, Pin: 5, PulsesPerRev: 1})
	d.Update(drivers.AngularVelocity)

	sim.Bank.Add(1, 1, 3*Limit+7)
	*now += time.Minute
	d.Update(drivers.AngularVelocity)

	if d.Pulses() != 3*Limit+7 {
		t.Errorf("Expected %d pulses, got %d", 3*Limit+7, d.Pulses())
	}
	if math.Abs(float64(d.RPM())-float64(3*Limit+7)) > 0.5 {
		t.Errorf("RPM = %v", d.RPM())
	}
}

func TestTotalCountsUndispatchedWrap(t *testing.T) {
	d, sim, _ := newTach(t, Config{Unit: 3, Pin: 6, PulsesPerRev: 1})
	sim.Bank.Notify = nil

	sim.Bank.Add(3, 1, Limit+9)
	if total, err := d.Total(); err != nil || total != Limit+9 {
		t.Errorf("Expected %d before dispatch, got %d (%v)", Limit+9, total, err)
	}

	sim.Interrupts.Fire()
	if total, _ := d.Total(); total != Limit+9 {
		t.Errorf("Expected %d after dispatch, got %d", Limit+9, total)
	}
}

func TestFilterAndClose(t *testing.T) {
	d, sim, _ := newTach(t, Config{Unit: 3, Pin: 6, PulsesPerRev: 1, Filter: 80})
	if sim.Bank.Filter(3) != 80 || !sim.Bank.FilterEnabled(3) {
		t.Error("Filter not programmed")
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !sim.Bank.Paused(3) || sim.Bank.InterruptEnabled(3) {
		t.Error("Close left the unit running")
	}
}

func TestConfigureRejectsZeroPulsesPerRev(t *testing.T) {
	sim := pcntsim.New()
	d := New(pcnt.New(sim.Platform(), pcnt.Options{Lock: &intr.Spinlock{}}))
	if err := d.Configure(Config{Pin: 4}); err != ErrPulsesPerRev {
		t.Errorf("Expected ErrPulsesPerRev, got %v", err)
	}
}
