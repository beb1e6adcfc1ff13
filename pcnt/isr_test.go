package pcnt_test

import (
	"errors"
	"testing"
	"time"

	"gopcnt/pcnt"
	"gopcnt/pcnt/pcntsim"
)

func TestISRServiceLifecycle(t *testing.T) {
	d, sim := newInitialized(t)
	flags := pcnt.IntrLevel1 | pcnt.IntrShared

	expectCode(t, d.UninstallISRService(), pcnt.InvalidState)
	expectCode(t, d.AddISRHandler(0, func(any) {}, nil), pcnt.InvalidState)
	expectCode(t, d.RemoveISRHandler(0), pcnt.InvalidState)

	if err := d.InstallISRService(flags); err != nil {
		t.Fatalf("InstallISRService failed: %v", err)
	}
	if !d.ISRServiceInstalled() {
		t.Fatal("Service not reported installed")
	}
	if sim.Interrupts.Active() != 1 {
		t.Errorf("Expected 1 binding, got %d", sim.Interrupts.Active())
	}
	if sim.Interrupts.Flags() != flags {
		t.Errorf("Flags not passed through: %#x", sim.Interrupts.Flags())
	}
	if sim.Interrupts.Source() != pcnt.SourcePCNT {
		t.Errorf("Expected source %d, got %d", pcnt.SourcePCNT, sim.Interrupts.Source())
	}

	expectCode(t, d.InstallISRService(flags), pcnt.InvalidState)

	if err := d.UninstallISRService(); err != nil {
		t.Fatalf("UninstallISRService failed: %v", err)
	}
	if d.ISRServiceInstalled() || sim.Interrupts.Active() != 0 {
		t.Error("Service still registered after uninstall")
	}
	expectCode(t, d.UninstallISRService(), pcnt.InvalidState)
}

func TestInstallRegisterFailure(t *testing.T) {
	d, sim := newInitialized(t)
	cause := errors.New("no free interrupt")
	sim.Interrupts.RegisterErr = cause

	err := d.InstallISRService(0)
	expectCode(t, err, pcnt.ResourceExhausted)
	if !errors.Is(err, cause) {
		t.Errorf("Cause not wrapped: %v", err)
	}
	if d.ISRServiceInstalled() {
		t.Error("Failed install left the service installed")
	}

	sim.Interrupts.RegisterErr = nil
	if err := d.InstallISRService(0); err != nil {
		t.Errorf("Install after failure: %v", err)
	}
}

func TestUninstallUnregisterFailure(t *testing.T) {
	d, sim := newInitialized(t)
	if err := d.InstallISRService(0); err != nil {
		t.Fatal(err)
	}
	sim.Interrupts.UnregisterErr = errors.New("busy")

	expectCode(t, d.UninstallISRService(), pcnt.Propagated)
	if d.ISRServiceInstalled() {
		t.Error("Teardown did not complete")
	}

	sim.Interrupts.UnregisterErr = nil
	if err := d.InstallISRService(0); err != nil {
		t.Errorf("Reinstall after failed uninstall: %v", err)
	}
}

func TestAddRemoveHandler(t *testing.T) {
	d, sim := newInitialized(t)
	if err := d.InstallISRService(0); err != nil {
		t.Fatal(err)
	}

	expectCode(t, d.AddISRHandler(pcnt.UnitMax, func(any) {}, nil), pcnt.InvalidArgument)
	expectCode(t, d.RemoveISRHandler(pcnt.UnitMax), pcnt.InvalidArgument)

	sim.Regs.ResetLog()
	if err := d.AddISRHandler(3, func(any) {}, nil); err != nil {
		t.Fatalf("AddISRHandler failed: %v", err)
	}
	want := []string{"disable_interrupt", "enable_interrupt"}
	got := sim.Regs.Writes()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if !sim.Bank.InterruptEnabled(3) {
		t.Error("Interrupt not enabled after add")
	}

	if err := d.RemoveISRHandler(3); err != nil {
		t.Fatalf("RemoveISRHandler failed: %v", err)
	}
	if sim.Bank.InterruptEnabled(3) {
		t.Error("Interrupt left enabled after remove")
	}
}

func TestDispatchLowestUnitFirst(t *testing.T) {
	d, sim := newInitialized(t)
	if err := d.InstallISRService(0); err != nil {
		t.Fatal(err)
	}

	var order []int
	record := func(arg any) { order = append(order, arg.(int)) }
	// Add in reverse to show order comes from the mask, not registration.
	d.AddISRHandler(5, record, 5)
	d.AddISRHandler(3, record, 3)

	sim.Regs.ResetLog()
	sim.Bank.Raise(1<<3 | 1<<5)
	sim.Interrupts.Fire()

	if len(order) != 2 || order[0] != 3 || order[1] != 5 {
		t.Fatalf("Expected handlers [3 5], got %v", order)
	}

	// The default policy acknowledges the drained status, which is zero.
	cleared := sim.Regs.Cleared()
	if len(cleared) != 1 || cleared[0] != 0 {
		t.Errorf("Expected one clear with mask 0, got %v", cleared)
	}
	if sim.Bank.PendingMask() != 1<<3|1<<5 {
		t.Errorf("Pending bits changed: %#x", sim.Bank.PendingMask())
	}
}

func TestDispatchClearServiced(t *testing.T) {
	sim := pcntsim.New()
	d := pcnt.New(sim.Platform(), pcnt.Options{ClearPolicy: pcnt.ClearServiced})
	if err := d.Init(pcnt.Port0); err != nil {
		t.Fatal(err)
	}
	d.InstallISRService(0)
	calls := 0
	d.AddISRHandler(3, func(any) { calls++ }, nil)
	d.AddISRHandler(5, func(any) { calls++ }, nil)

	sim.Bank.Raise(1<<3 | 1<<5)
	sim.Interrupts.Fire()

	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
	cleared := sim.Regs.Cleared()
	if len(cleared) != 1 || cleared[0] != 1<<3|1<<5 {
		t.Errorf("Expected serviced mask cleared, got %v", cleared)
	}
	if sim.Bank.PendingMask() != 0 {
		t.Errorf("Pending bits left: %#x", sim.Bank.PendingMask())
	}
}

func TestDispatchSkipsEmptySlots(t *testing.T) {
	d, sim := newInitialized(t)
	d.InstallISRService(0)

	called := 0
	d.AddISRHandler(3, func(any) { called++ }, nil)
	// Unit 6 can interrupt but nobody listens.
	d.EnableInterrupt(pcnt.Port0, 6)

	sim.Bank.Raise(1<<3 | 1<<6)
	sim.Interrupts.Fire()

	if called != 1 {
		t.Errorf("Expected 1 call, got %d", called)
	}
}

func TestDispatchAfterUninstallIsNoop(t *testing.T) {
	d, sim := newInitialized(t)
	d.InstallISRService(0)
	called := false
	d.AddISRHandler(0, func(any) { called = true }, nil)

	d.UninstallISRService()
	sim.Bank.Raise(1)
	sim.Interrupts.Fire()
	if called {
		t.Error("Handler ran after uninstall")
	}
}

func TestHandlerCanCallDriver(t *testing.T) {
	d, sim := newInitialized(t)
	if err := d.ConfigureUnit(pcnt.Port0, counterConfig()); err != nil {
		t.Fatal(err)
	}
	d.InstallISRService(0)

	var seen int16 = -1
	d.AddISRHandler(0, func(any) {
		// Re-entering the driver must not deadlock on the critical section.
		seen, _ = d.GetCounterValue(pcnt.Port0, 0)
		d.ClearCounter(pcnt.Port0, 0)
	}, nil)

	sim.Board.Pulse(4, 4)
	sim.Bank.Raise(1)
	sim.Interrupts.Fire()

	if seen != 4 {
		t.Errorf("Handler saw %d, expected 4", seen)
	}
	if c, _ := d.GetCounterValue(pcnt.Port0, 0); c != 0 {
		t.Errorf("Handler clear did not apply: %d", c)
	}
}

func TestHighLimitInterruptEndToEnd(t *testing.T) {
	d, sim := newInitialized(t)
	sim.AutoFire()

	cfg := counterConfig()
	cfg.HighLimit = 5
	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatal(err)
	}
	d.EnableEvent(pcnt.Port0, 0, pcnt.EventHighLimit)
	d.InstallISRService(pcnt.IntrLevel1)

	var status pcnt.EventType
	overflows := 0
	d.AddISRHandler(0, func(arg any) {
		overflows++
		status, _ = d.GetEventStatus(pcnt.Port0, arg.(pcnt.Unit))
	}, pcnt.Unit(0))

	sim.Board.Pulse(4, 7)

	if overflows != 1 {
		t.Fatalf("Expected 1 overflow, got %d", overflows)
	}
	if status&pcnt.EventHighLimit == 0 {
		t.Errorf("Expected high limit status in handler, got %#x", uint32(status))
	}
	if c, _ := d.GetCounterValue(pcnt.Port0, 0); c != 2 {
		t.Errorf("Expected count 2 after wrap, got %d", c)
	}
}

func TestAddHandlerWithoutLivePort(t *testing.T) {
	d, sim := newDriver(t)
	if err := d.InstallISRService(0); err != nil {
		t.Fatal(err)
	}

	called := false
	if err := d.AddISRHandler(2, func(any) { called = true }, nil); err != nil {
		t.Fatalf("AddISRHandler failed: %v", err)
	}
	if w := sim.Regs.Writes(); len(w) != 0 {
		t.Errorf("Register writes without a live port: %v", w)
	}

	// The slot is stored; it fires once the port is up.
	d.Init(pcnt.Port0)
	d.EnableInterrupt(pcnt.Port0, 2)
	sim.Bank.Raise(1 << 2)
	sim.Interrupts.Fire()
	if !called {
		t.Error("Stored handler did not fire")
	}
}

func TestRegisterISR(t *testing.T) {
	d, sim := newDriver(t)

	_, err := d.RegisterISR(nil, nil, 0)
	expectCode(t, err, pcnt.InvalidArgument)

	fired := 0
	h, err := d.RegisterISR(func(any) { fired++ }, nil, pcnt.IntrShared)
	if err != nil {
		t.Fatalf("RegisterISR failed: %v", err)
	}
	sim.Interrupts.Fire()
	if fired != 1 {
		t.Errorf("Expected raw ISR to fire once, got %d", fired)
	}

	if err := d.UnregisterISR(h); err != nil {
		t.Fatalf("UnregisterISR failed: %v", err)
	}
	err = d.UnregisterISR(h)
	expectCode(t, err, pcnt.Propagated)
	if !errors.Is(err, pcntsim.ErrUnknownHandle) {
		t.Errorf("Expected unknown handle cause, got %v", err)
	}
}

// finishes fails the test when fn does not return within a second.
func finishes(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s did not return", what)
	}
}

// latchedOverflow configures unit 0 to overflow at 2, installs the service
// and latches a high-limit event while the unit interrupt is still masked.
func latchedOverflow(t *testing.T, opts pcnt.Options) (*pcnt.Driver, *pcntsim.Sim) {
	t.Helper()
	sim := pcntsim.New()
	sim.AutoFire()
	d := pcnt.New(sim.Platform(), opts)
	if err := d.Init(pcnt.Port0); err != nil {
		t.Fatal(err)
	}
	cfg := counterConfig()
	cfg.HighLimit = 2
	if err := d.ConfigureUnit(pcnt.Port0, cfg); err != nil {
		t.Fatal(err)
	}
	d.EnableEvent(pcnt.Port0, 0, pcnt.EventHighLimit)
	if err := d.InstallISRService(0); err != nil {
		t.Fatal(err)
	}
	sim.Board.Pulse(4, 2)
	if sim.Bank.PendingMask() != 0 {
		t.Fatalf("Masked unit reported pending %#x", sim.Bank.PendingMask())
	}
	return d, sim
}

func TestAddHandlerDeliversLatchedInterrupt(t *testing.T) {
	d, sim := latchedOverflow(t, pcnt.Options{ClearPolicy: pcnt.ClearServiced})

	calls := 0
	var seen int16 = -1
	finishes(t, "AddISRHandler", func() {
		d.AddISRHandler(0, func(any) {
			calls++
			seen, _ = d.GetCounterValue(pcnt.Port0, 0)
			d.ClearCounter(pcnt.Port0, 0)
		}, nil)
	})

	if calls != 1 {
		t.Fatalf("Expected the latched interrupt once, got %d", calls)
	}
	if seen != 0 {
		t.Errorf("Handler saw %d after wrap, expected 0", seen)
	}
	if got := sim.Regs.Cleared(); len(got) == 0 || got[len(got)-1] != 1 {
		t.Errorf("Expected unit 0 acknowledged, cleared %v", got)
	}

	// The shared critical section is released: another driver still works.
	finishes(t, "Init on a fresh driver", func() {
		other, _ := newDriver(t)
		if err := other.Init(pcnt.Port0); err != nil {
			t.Errorf("Init failed: %v", err)
		}
	})
}

func TestEnableInterruptDeliversLatchedInterrupt(t *testing.T) {
	// ClearDrained never acknowledges, so the raw bit stays latched.
	d, _ := latchedOverflow(t, pcnt.Options{})

	calls := 0
	d.AddISRHandler(0, func(any) {
		calls++
		d.Pause(pcnt.Port0, 0)
	}, nil)
	if calls != 1 {
		t.Fatalf("Expected 1 call from AddISRHandler, got %d", calls)
	}

	d.DisableInterrupt(pcnt.Port0, 0)
	finishes(t, "EnableInterrupt", func() {
		if err := d.EnableInterrupt(pcnt.Port0, 0); err != nil {
			t.Errorf("EnableInterrupt failed: %v", err)
		}
	})
	if calls != 2 {
		t.Errorf("Expected the still-latched bit delivered again, got %d calls", calls)
	}
}
