package core

import "gopcnt/pcnt"

// CounterDriver is the pulse counter surface the counter commands use.
// *pcnt.Driver implements it.
type CounterDriver interface {
	Init(port pcnt.Port) error
	Initialized(port pcnt.Port) bool
	ConfigureUnit(port pcnt.Port, cfg pcnt.UnitConfig) error
	GetCounterValue(port pcnt.Port, unit pcnt.Unit) (int16, error)
	Pause(port pcnt.Port, unit pcnt.Unit) error
	Resume(port pcnt.Port, unit pcnt.Unit) error
	ClearCounter(port pcnt.Port, unit pcnt.Unit) error
	EnableEvent(port pcnt.Port, unit pcnt.Unit, ev pcnt.EventType) error
	GetEventStatus(port pcnt.Port, unit pcnt.Unit) (pcnt.EventType, error)
	SetFilterValue(port pcnt.Port, unit pcnt.Unit, value uint16) error
	EnableFilter(port pcnt.Port, unit pcnt.Unit) error
	DisableFilter(port pcnt.Port, unit pcnt.Unit) error

	InstallISRService(flags pcnt.IntrFlags) error
	ISRServiceInstalled() bool
	AddISRHandler(unit pcnt.Unit, fn pcnt.ISRFunc, arg any) error
	RemoveISRHandler(unit pcnt.Unit) error
}

var _ CounterDriver = (*pcnt.Driver)(nil)

// Global singleton used by core code.
var counterDriver CounterDriver

// SetCounterDriver is called by target-specific code to register its driver.
func SetCounterDriver(d CounterDriver) {
	counterDriver = d
}

// MustCounter returns the configured driver or panics if missing.
func MustCounter() CounterDriver {
	if counterDriver == nil {
		panic("counter driver not configured")
	}
	return counterDriver
}
