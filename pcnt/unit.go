package pcnt

import "gopcnt/debug"

// check returns the first violated constraint of c, or "" when c is
// acceptable. validPin decides which GPIOs can be routed.
func (c *UnitConfig) check(validPin func(int) bool) string {
	switch {
	case !inRange(c.Unit, 0, UnitMax):
		return msgUnit
	case !inRange(c.Channel, 0, ChannelMax):
		return msgChannel
	}
	if msg := checkPins(c.PulsePin, c.ControlPin, validPin); msg != "" {
		return msg
	}
	return checkModes(c.PosMode, c.NegMode, c.HighCtrlMode, c.LowCtrlMode)
}

func checkPins(pulse, ctrl int, validPin func(int) bool) string {
	if pulse >= 0 && (!validPin(pulse) || pulse == ctrl) {
		return msgPulsePin
	}
	if ctrl >= 0 && !validPin(ctrl) {
		return msgCtrlPin
	}
	return ""
}

func checkModes(pos, neg CountMode, hctrl, lctrl ControlMode) string {
	if !inRange(pos, 0, countModeMax) || !inRange(neg, 0, countModeMax) {
		return msgCountMode
	}
	if !inRange(hctrl, 0, controlModeMax) || !inRange(lctrl, 0, controlModeMax) {
		return msgCtrlMode
	}
	return ""
}

// Validate checks c without consulting a pin router, so any non-negative
// pin is accepted.
func (c UnitConfig) Validate() error {
	if msg := c.check(func(int) bool { return true }); msg != "" {
		return &Error{Code: InvalidArgument, Op: "validate", Msg: msg}
	}
	return nil
}

// ConfigureUnit validates cfg and programs it onto port. Nothing is written
// unless every check passes; once writing starts there is no rollback.
// Limit signs are not part of validation: a negative high limit or a
// positive low limit is logged and that one write is skipped.
func (d *Driver) ConfigureUnit(port Port, cfg UnitConfig) error {
	const op = "configure_unit"
	hal, err := d.live(op, port)
	if err != nil {
		return err
	}
	if msg := cfg.check(d.platform.Router.ValidPin); msg != "" {
		return fail(InvalidArgument, op, msg)
	}

	d.enableModule()

	if cfg.HighLimit >= 0 {
		hal.SetEventValue(cfg.Unit, EventHighLimit, cfg.HighLimit)
	} else {
		debug.Println("[PCNT] " + op + ": high limit " + debug.Itoa(int(cfg.HighLimit)) + " skipped")
	}
	if cfg.LowLimit <= 0 {
		hal.SetEventValue(cfg.Unit, EventLowLimit, cfg.LowLimit)
	} else {
		debug.Println("[PCNT] " + op + ": low limit " + debug.Itoa(int(cfg.LowLimit)) + " skipped")
	}

	// Event enables power up set; start every unit from all-off.
	hal.DisableEvent(cfg.Unit, EventHighLimit)
	hal.DisableEvent(cfg.Unit, EventLowLimit)
	hal.DisableEvent(cfg.Unit, EventZero)
	hal.DisableFilter(cfg.Unit)

	hal.SetMode(cfg.Unit, cfg.Channel, cfg.PosMode, cfg.NegMode, cfg.HighCtrlMode, cfg.LowCtrlMode)
	d.routePins(cfg.Unit, cfg.Channel, cfg.PulsePin, cfg.ControlPin)
	return nil
}

// SetMode rewrites the count and control modes of one channel.
func (d *Driver) SetMode(port Port, unit Unit, ch Channel, pos, neg CountMode, hctrl, lctrl ControlMode) error {
	const op = "set_mode"
	hal, err := d.unitRegs(op, port, unit)
	if err != nil {
		return err
	}
	if !inRange(ch, 0, ChannelMax) {
		return fail(InvalidArgument, op, msgChannel)
	}
	if msg := checkModes(pos, neg, hctrl, lctrl); msg != "" {
		return fail(InvalidArgument, op, msg)
	}
	hal.SetMode(unit, ch, pos, neg, hctrl, lctrl)
	return nil
}

// SetPin reroutes the pulse and control pins of one channel.
func (d *Driver) SetPin(port Port, unit Unit, ch Channel, pulsePin, controlPin int) error {
	const op = "set_pin"
	if _, err := d.unitRegs(op, port, unit); err != nil {
		return err
	}
	if !inRange(ch, 0, ChannelMax) {
		return fail(InvalidArgument, op, msgChannel)
	}
	if msg := checkPins(pulsePin, controlPin, d.platform.Router.ValidPin); msg != "" {
		return fail(InvalidArgument, op, msg)
	}
	d.routePins(unit, ch, pulsePin, controlPin)
	return nil
}

// enableModule resets the peripheral on first use, then ungates its clock.
func (d *Driver) enableModule() {
	if !d.moduleReset {
		d.platform.Clock.Reset(ModulePCNT)
		d.moduleReset = true
	}
	d.platform.Clock.Enable(ModulePCNT)
}

func (d *Driver) routePins(unit Unit, ch Channel, pulsePin, controlPin int) {
	sig := d.platform.Signals[unit][ch]
	r := d.platform.Router
	if pulsePin >= 0 {
		r.ConfigureInputPullUp(pulsePin)
		r.ConnectInput(pulsePin, sig.Pulse)
	}
	if controlPin >= 0 {
		r.ConfigureInputPullUp(controlPin)
		r.ConnectInput(controlPin, sig.Control)
	}
}
