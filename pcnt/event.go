package pcnt

// GetCounterValue reads the current count of unit.
func (d *Driver) GetCounterValue(port Port, unit Unit) (int16, error) {
	hal, err := d.unitRegs("get_counter_value", port, unit)
	if err != nil {
		return 0, err
	}
	return hal.Counter(unit), nil
}

// Pause stops unit from counting.
func (d *Driver) Pause(port Port, unit Unit) error {
	hal, err := d.unitRegs("pause", port, unit)
	if err != nil {
		return err
	}
	d.locked(func() { hal.Pause(unit) })
	return nil
}

// Resume restarts counting on unit.
func (d *Driver) Resume(port Port, unit Unit) error {
	hal, err := d.unitRegs("resume", port, unit)
	if err != nil {
		return err
	}
	d.locked(func() { hal.Resume(unit) })
	return nil
}

// ClearCounter resets the count of unit to zero.
func (d *Driver) ClearCounter(port Port, unit Unit) error {
	hal, err := d.unitRegs("clear_counter", port, unit)
	if err != nil {
		return err
	}
	d.locked(func() { hal.Clear(unit) })
	return nil
}

// EnableInterrupt lets enabled events of unit raise the shared interrupt.
func (d *Driver) EnableInterrupt(port Port, unit Unit) error {
	hal, err := d.unitRegs("enable_interrupt", port, unit)
	if err != nil {
		return err
	}
	d.locked(func() { hal.EnableInterrupt(unit) })
	return nil
}

// DisableInterrupt masks the interrupt of unit.
func (d *Driver) DisableInterrupt(port Port, unit Unit) error {
	hal, err := d.unitRegs("disable_interrupt", port, unit)
	if err != nil {
		return err
	}
	d.locked(func() { hal.DisableInterrupt(unit) })
	return nil
}

// EnableEvent arms ev on unit.
// Event enables are written outside the critical section.
func (d *Driver) EnableEvent(port Port, unit Unit, ev EventType) error {
	const op = "enable_event"
	hal, err := d.unitRegs(op, port, unit)
	if err != nil {
		return err
	}
	if !ev.valid() {
		return fail(InvalidArgument, op, msgEvent)
	}
	hal.EnableEvent(unit, ev)
	return nil
}

// DisableEvent disarms ev on unit.
func (d *Driver) DisableEvent(port Port, unit Unit, ev EventType) error {
	const op = "disable_event"
	hal, err := d.unitRegs(op, port, unit)
	if err != nil {
		return err
	}
	if !ev.valid() {
		return fail(InvalidArgument, op, msgEvent)
	}
	hal.DisableEvent(unit, ev)
	return nil
}

// SetEventValue programs the threshold of ev. The low limit may not be
// positive and the high limit may not be negative.
func (d *Driver) SetEventValue(port Port, unit Unit, ev EventType, value int16) error {
	const op = "set_event_value"
	hal, err := d.unitRegs(op, port, unit)
	if err != nil {
		return err
	}
	if !ev.valid() {
		return fail(InvalidArgument, op, msgEvent)
	}
	if (ev == EventLowLimit && value > 0) || (ev == EventHighLimit && value < 0) {
		return fail(InvalidArgument, op, msgLimit)
	}
	hal.SetEventValue(unit, ev, value)
	return nil
}

// GetEventValue reads the threshold of ev.
func (d *Driver) GetEventValue(port Port, unit Unit, ev EventType) (int16, error) {
	const op = "get_event_value"
	hal, err := d.unitRegs(op, port, unit)
	if err != nil {
		return 0, err
	}
	if !ev.valid() {
		return 0, fail(InvalidArgument, op, msgEvent)
	}
	return hal.EventValue(unit, ev), nil
}

// GetEventStatus returns the latched event bits of unit.
func (d *Driver) GetEventStatus(port Port, unit Unit) (EventType, error) {
	hal, err := d.unitRegs("get_event_status", port, unit)
	if err != nil {
		return 0, err
	}
	return hal.EventStatus(unit) & EventMask, nil
}

// SetFilterValue sets the glitch filter width in APB clock cycles.
func (d *Driver) SetFilterValue(port Port, unit Unit, value uint16) error {
	const op = "set_filter_value"
	hal, err := d.unitRegs(op, port, unit)
	if err != nil {
		return err
	}
	if !inRange(value, 0, FilterMax) {
		return fail(InvalidArgument, op, msgParam)
	}
	hal.SetFilter(unit, value)
	return nil
}

// GetFilterValue reads the glitch filter width.
func (d *Driver) GetFilterValue(port Port, unit Unit) (uint16, error) {
	hal, err := d.unitRegs("get_filter_value", port, unit)
	if err != nil {
		return 0, err
	}
	return hal.Filter(unit), nil
}

// EnableFilter turns on the glitch filter of unit.
func (d *Driver) EnableFilter(port Port, unit Unit) error {
	hal, err := d.unitRegs("enable_filter", port, unit)
	if err != nil {
		return err
	}
	hal.EnableFilter(unit)
	return nil
}

// DisableFilter turns off the glitch filter of unit.
func (d *Driver) DisableFilter(port Port, unit Unit) error {
	hal, err := d.unitRegs("disable_filter", port, unit)
	if err != nil {
		return err
	}
	hal.DisableFilter(unit)
	return nil
}
