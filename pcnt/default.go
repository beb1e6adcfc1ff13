package pcnt

// Default-port convenience layer. Every function delegates to the default
// driver with Port0.

var defaultDriver *Driver

// SetDefault is called by target-specific code to register its driver.
func SetDefault(d *Driver) {
	defaultDriver = d
}

// MustDefault returns the default driver or panics if missing.
func MustDefault() *Driver {
	if defaultDriver == nil {
		panic("PCNT driver not configured")
	}
	return defaultDriver
}

// ConfigureUnit configures a unit on Port0, initializing the port first if
// needed.
// NOTE: only this entry point lazily initializes; the others below return
// InvalidState on an uninitialized port.
func ConfigureUnit(cfg UnitConfig) error {
	d := MustDefault()
	if !d.Initialized(Port0) {
		if err := d.Init(Port0); err != nil {
			return err
		}
	}
	return d.ConfigureUnit(Port0, cfg)
}

func GetCounterValue(unit Unit) (int16, error) { return MustDefault().GetCounterValue(Port0, unit) }
func Pause(unit Unit) error                    { return MustDefault().Pause(Port0, unit) }
func Resume(unit Unit) error                   { return MustDefault().Resume(Port0, unit) }
func ClearCounter(unit Unit) error             { return MustDefault().ClearCounter(Port0, unit) }
func EnableInterrupt(unit Unit) error          { return MustDefault().EnableInterrupt(Port0, unit) }
func DisableInterrupt(unit Unit) error         { return MustDefault().DisableInterrupt(Port0, unit) }

func EnableEvent(unit Unit, ev EventType) error  { return MustDefault().EnableEvent(Port0, unit, ev) }
func DisableEvent(unit Unit, ev EventType) error { return MustDefault().DisableEvent(Port0, unit, ev) }

func SetEventValue(unit Unit, ev EventType, value int16) error {
	return MustDefault().SetEventValue(Port0, unit, ev, value)
}

func GetEventValue(unit Unit, ev EventType) (int16, error) {
	return MustDefault().GetEventValue(Port0, unit, ev)
}

func GetEventStatus(unit Unit) (EventType, error) { return MustDefault().GetEventStatus(Port0, unit) }

func SetFilterValue(unit Unit, value uint16) error { return MustDefault().SetFilterValue(Port0, unit, value) }
func GetFilterValue(unit Unit) (uint16, error)     { return MustDefault().GetFilterValue(Port0, unit) }
func EnableFilter(unit Unit) error                 { return MustDefault().EnableFilter(Port0, unit) }
func DisableFilter(unit Unit) error                { return MustDefault().DisableFilter(Port0, unit) }

func SetMode(unit Unit, ch Channel, pos, neg CountMode, hctrl, lctrl ControlMode) error {
	return MustDefault().SetMode(Port0, unit, ch, pos, neg, hctrl, lctrl)
}

func SetPin(unit Unit, ch Channel, pulsePin, controlPin int) error {
	return MustDefault().SetPin(Port0, unit, ch, pulsePin, controlPin)
}

func InstallISRService(flags IntrFlags) error { return MustDefault().InstallISRService(flags) }
func UninstallISRService() error              { return MustDefault().UninstallISRService() }

func AddISRHandler(unit Unit, fn ISRFunc, arg any) error {
	return MustDefault().AddISRHandler(unit, fn, arg)
}

func RemoveISRHandler(unit Unit) error { return MustDefault().RemoveISRHandler(unit) }
