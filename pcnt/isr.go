package pcnt

import (
	"math/bits"

	"gopcnt/debug"
)

type isrSlot struct {
	fn  ISRFunc
	arg any
}

type slotTable [UnitMax]isrSlot

// InstallISRService registers the shared dispatch routine for the
// peripheral interrupt and creates an empty per-unit handler table.
func (d *Driver) InstallISRService(flags IntrFlags) error {
	const op = "install_isr_service"
	if d.ISRServiceInstalled() {
		return fail(InvalidState, op, msgInstalled)
	}

	h, err := d.platform.Interrupts.Register(d.platform.Source, flags, d.dispatch, Port0)
	if err != nil {
		debug.Println("[PCNT] " + op + ": interrupt registration failed: " + err.Error())
		return &Error{Code: ResourceExhausted, Op: op, Msg: "interrupt registration failed", Err: err}
	}

	d.enter()
	d.service = h
	d.isrPort = Port0
	d.slots.Store(&slotTable{})
	d.exit()
	debug.Println("[PCNT] isr service installed")
	return nil
}

// UninstallISRService unregisters the dispatch routine and drops the
// handler table. Teardown completes even when unregistration fails; that
// error is still returned.
func (d *Driver) UninstallISRService() error {
	const op = "uninstall_isr_service"
	d.enter()
	if d.slots.Swap(nil) == nil {
		d.exit()
		return fail(InvalidState, op, msgNoService)
	}
	h := d.service
	d.service = nil
	d.exit()

	if err := d.platform.Interrupts.Unregister(h); err != nil {
		debug.Println("[PCNT] " + op + ": " + err.Error())
		return &Error{Code: Propagated, Op: op, Msg: "interrupt unregistration failed", Err: err}
	}
	debug.Println("[PCNT] isr service uninstalled")
	return nil
}

// ISRServiceInstalled reports whether the dispatch routine is registered.
func (d *Driver) ISRServiceInstalled() bool {
	return d.slots.Load() != nil
}

// AddISRHandler attaches fn to unit. The unit interrupt is masked while
// the slot is written and unmasked afterwards; a bit that latched while it
// was masked is dispatched once the critical section is left.
func (d *Driver) AddISRHandler(unit Unit, fn ISRFunc, arg any) error {
	const op = "add_isr_handler"
	if !d.ISRServiceInstalled() {
		return fail(InvalidState, op, msgNoService)
	}
	if !inRange(unit, 0, UnitMax) {
		return fail(InvalidArgument, op, msgUnit)
	}

	d.enter()
	hal := d.serviceRegs()
	if hal != nil {
		hal.DisableInterrupt(unit)
	}
	d.setSlot(unit, isrSlot{fn: fn, arg: arg})
	if hal != nil {
		hal.EnableInterrupt(unit)
	}
	d.exit()
	return nil
}

// RemoveISRHandler detaches the handler of unit and leaves the unit
// interrupt masked.
func (d *Driver) RemoveISRHandler(unit Unit) error {
	const op = "remove_isr_handler"
	if !d.ISRServiceInstalled() {
		return fail(InvalidState, op, msgNoService)
	}
	if !inRange(unit, 0, UnitMax) {
		return fail(InvalidArgument, op, msgUnit)
	}

	d.enter()
	if hal := d.serviceRegs(); hal != nil {
		hal.DisableInterrupt(unit)
	}
	d.setSlot(unit, isrSlot{})
	d.exit()
	return nil
}

// RegisterISR binds fn directly to the peripheral interrupt, bypassing the
// per-unit dispatch table. fn is then responsible for acknowledging status.
func (d *Driver) RegisterISR(fn ISRFunc, arg any, flags IntrFlags) (IntrHandle, error) {
	const op = "register_isr"
	if fn == nil {
		return nil, fail(InvalidArgument, op, msgHandler)
	}
	h, err := d.platform.Interrupts.Register(d.platform.Source, flags, fn, arg)
	if err != nil {
		return nil, &Error{Code: ResourceExhausted, Op: op, Msg: "interrupt registration failed", Err: err}
	}
	return h, nil
}

// UnregisterISR releases a binding made by RegisterISR.
func (d *Driver) UnregisterISR(h IntrHandle) error {
	if err := d.platform.Interrupts.Unregister(h); err != nil {
		return &Error{Code: Propagated, Op: "unregister_isr", Err: err}
	}
	return nil
}

// setSlot publishes a copy of the table with unit replaced. Caller holds
// the lock.
func (d *Driver) setSlot(unit Unit, slot isrSlot) {
	old := d.slots.Load()
	if old == nil {
		return
	}
	t := *old
	t[unit] = slot
	d.slots.Store(&t)
}

// serviceRegs returns the registers of the port the service is bound to,
// or nil when that port is not initialized.
func (d *Driver) serviceRegs() Registers {
	if ps := d.ports[d.isrPort].Load(); ps != nil {
		return ps.hal
	}
	return nil
}

// dispatch is the shared interrupt routine. Raised inside the driver
// critical section it only latches, and exit delivers it, like a masked
// line. It never takes the lock itself.
func (d *Driver) dispatch(arg any) {
	if d.masked.Load() {
		d.deferred.Store(true)
		// exit may have run between the two loads; whoever clears the
		// latch delivers.
		if d.masked.Load() || !d.deferred.CompareAndSwap(true, false) {
			return
		}
	}
	port, _ := arg.(Port)
	d.serve(port)
}

// serve fans the pending mask of port out to unit handlers, lowest unit
// first. Handlers may call back into the driver.
func (d *Driver) serve(port Port) {
	slots := d.slots.Load()
	if slots == nil || !inRange(port, 0, PortMax) {
		return
	}
	ps := d.ports[port].Load()
	if ps == nil {
		return
	}
	hal := ps.hal

	status := hal.PendingMask()
	serviced := status
	debug.Record(debug.EvtISRDispatch, uint8(port), 0, status, 0)
	for status != 0 {
		unit := bits.TrailingZeros32(status)
		status &^= 1 << unit
		if unit < UnitMax && slots[unit].fn != nil {
			slots[unit].fn(slots[unit].arg)
		}
	}

	// ClearDrained acknowledges the drained copy, which is always zero here.
	if d.policy == ClearServiced {
		hal.ClearPending(serviced)
	} else {
		hal.ClearPending(status)
	}
}
