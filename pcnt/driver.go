package pcnt

import (
	"sync"
	"sync/atomic"

	"gopcnt/debug"
	"gopcnt/intr"
)

// portState is the runtime record of an initialized port.
type portState struct {
	hal Registers
}

// Driver is the public operation surface. The zero value is not usable;
// construct with New.
type Driver struct {
	platform Platform
	lock     sync.Locker
	policy   ClearPolicy

	// ports and slots are swapped whole under the lock and loaded without
	// it, so the interrupt path never takes the critical section.
	ports [PortMax]atomic.Pointer[portState]

	// moduleReset latches after the first peripheral reset and is never
	// cleared for the lifetime of the driver.
	moduleReset bool

	// slots is the ISR callback table; nil while the service is uninstalled.
	slots   atomic.Pointer[slotTable]
	service IntrHandle
	isrPort Port

	// masked is set while the critical section is held. An interrupt raised
	// meanwhile latches deferred and is dispatched by exit.
	masked   atomic.Bool
	deferred atomic.Bool
}

// New creates a driver over the platform collaborators.
func New(p Platform, opts Options) *Driver {
	if p.Source == 0 {
		p.Source = SourcePCNT
	}
	lock := opts.Lock
	if lock == nil {
		lock = &intr.Global
	}
	return &Driver{
		platform: p,
		lock:     lock,
		policy:   opts.ClearPolicy,
	}
}

// Init binds the registers of port and marks it initialized.
func (d *Driver) Init(port Port) error {
	const op = "init"
	if !inRange(port, 0, PortMax) {
		return fail(InvalidArgument, op, msgPort)
	}
	if d.ports[port].Load() != nil {
		return fail(InvalidState, op, msgInitTwice)
	}

	hal, err := d.platform.Bind(port)
	if err != nil || hal == nil {
		debug.Println("[PCNT] " + op + ": register bind failed")
		return &Error{Code: ResourceExhausted, Op: op, Msg: "register bind failed", Err: err}
	}

	if !d.ports[port].CompareAndSwap(nil, &portState{hal: hal}) {
		return fail(InvalidState, op, msgInitTwice)
	}
	return nil
}

// Deinit releases port. Interrupt registrations are left untouched; the ISR
// service has its own lifecycle and must be uninstalled separately.
func (d *Driver) Deinit(port Port) error {
	const op = "deinit"
	if !inRange(port, 0, PortMax) {
		return fail(InvalidArgument, op, msgPort)
	}
	if d.ports[port].Swap(nil) == nil {
		return fail(InvalidState, op, msgNotInit)
	}
	return nil
}

// Initialized reports whether port has a live state.
func (d *Driver) Initialized(port Port) bool {
	return inRange(port, 0, PortMax) && d.ports[port].Load() != nil
}

// live returns the registers of an initialized port.
func (d *Driver) live(op string, port Port) (Registers, error) {
	if !inRange(port, 0, PortMax) {
		return nil, fail(InvalidArgument, op, msgPort)
	}
	ps := d.ports[port].Load()
	if ps == nil {
		return nil, fail(InvalidState, op, msgNotInit)
	}
	return ps.hal, nil
}

// unitRegs validates port then unit.
func (d *Driver) unitRegs(op string, port Port, unit Unit) (Registers, error) {
	hal, err := d.live(op, port)
	if err != nil {
		return nil, err
	}
	if !inRange(unit, 0, UnitMax) {
		return nil, fail(InvalidArgument, op, msgUnit)
	}
	return hal, nil
}

// enter takes the driver critical section.
func (d *Driver) enter() {
	d.lock.Lock()
	d.masked.Store(true)
}

// exit leaves the critical section and delivers an interrupt that was
// raised inside it.
func (d *Driver) exit() {
	port := d.isrPort
	d.masked.Store(false)
	d.lock.Unlock()
	if d.deferred.Swap(false) {
		d.serve(port)
	}
}

// locked runs one register mutation inside the driver critical section.
func (d *Driver) locked(fn func()) {
	d.enter()
	fn()
	d.exit()
}

func fail(code Code, op, msg string) error {
	debug.Println("[PCNT] " + op + ": " + msg)
	return &Error{Code: code, Op: op, Msg: msg}
}
