// Package tachometer measures shaft speed from a pulse counter unit.
//
// The unit counts rising edges up to Limit and wraps; the high limit
// interrupt carries the wrap into a 64-bit total. Update samples the total
// and derives revolutions per minute from the change since the previous
// sample.
package tachometer

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"

	"gopcnt/pcnt"
)

// Limit is the counter high limit used for overflow tracking.
const Limit = 0x7FFF

var ErrPulsesPerRev = errors.New("tachometer: pulses per revolution must be positive")

// Config selects the unit, input and scaling.
type Config struct {
	Port         pcnt.Port
	Unit         pcnt.Unit
	Pin          int
	PulsesPerRev uint32
	Filter       uint16 // APB cycles, 0 disables
	ISRFlags     pcnt.IntrFlags
}

// Device is a tachometer on one counter unit. It implements
// drivers.Sensor for drivers.AngularVelocity.
type Device struct {
	drv *pcnt.Driver
	cfg Config

	overflow atomic.Int64

	// Now returns a monotonic timestamp. Tests replace it.
	Now func() time.Duration

	lastTotal int64
	lastTime  time.Duration
	primed    bool

	rpm   float32
	total int64
}

var _ drivers.Sensor = (*Device)(nil)

// New returns an unconfigured tachometer using drv.
func New(drv *pcnt.Driver) *Device {
	start := time.Now()
	return &Device{
		drv: drv,
		Now: func() time.Duration { return time.Since(start) },
	}
}

// Configure programs the unit and starts counting.
func (d *Device) Configure(cfg Config) error {
	if cfg.PulsesPerRev == 0 {
		return ErrPulsesPerRev
	}
	if cfg.ISRFlags == 0 {
		cfg.ISRFlags = pcnt.IntrLevel1
	}
	d.cfg = cfg

	drv := d.drv
	if !drv.Initialized(cfg.Port) {
		if err := drv.Init(cfg.Port); err != nil {
			return err
		}
	}
	err := drv.ConfigureUnit(cfg.Port, pcnt.UnitConfig{
		Unit:         cfg.Unit,
		Channel:      pcnt.Channel0,
		PulsePin:     cfg.Pin,
		ControlPin:   pcnt.PinNotUsed,
		PosMode:      pcnt.CountIncrement,
		NegMode:      pcnt.CountHold,
		HighCtrlMode: pcnt.ControlKeep,
		LowCtrlMode:  pcnt.ControlKeep,
		HighLimit:    Limit,
		LowLimit:     -Limit,
	})
	if err != nil {
		return err
	}

	if cfg.Filter > 0 {
		if err := drv.SetFilterValue(cfg.Port, cfg.Unit, cfg.Filter); err != nil {
			return err
		}
		if err := drv.EnableFilter(cfg.Port, cfg.Unit); err != nil {
			return err
		}
	}

	if err := drv.EnableEvent(cfg.Port, cfg.Unit, pcnt.EventHighLimit); err != nil {
		return err
	}
	if !drv.ISRServiceInstalled() {
		if err := drv.InstallISRService(cfg.ISRFlags); err != nil {
			return err
		}
	}
	if err := drv.AddISRHandler(cfg.Unit, d.wrapped, nil); err != nil {
		return err
	}

	d.overflow.Store(0)
	d.primed = false
	if err := drv.ClearCounter(cfg.Port, cfg.Unit); err != nil {
		return err
	}
	return drv.Resume(cfg.Port, cfg.Unit)
}

// wrapped runs in interrupt context.
func (d *Device) wrapped(any) {
	st, err := d.drv.GetEventStatus(d.cfg.Port, d.cfg.Unit)
	if err == nil && st&pcnt.EventHighLimit != 0 {
		d.overflow.Add(Limit)
	}
}

// Total returns every pulse counted since Configure. A high limit event
// still latched means the unit wrapped and the handler has not run yet.
func (d *Device) Total() (int64, error) {
	for {
		before := d.overflow.Load()
		hw, err := d.drv.GetCounterValue(d.cfg.Port, d.cfg.Unit)
		if err != nil {
			return 0, err
		}
		st, err := d.drv.GetEventStatus(d.cfg.Port, d.cfg.Unit)
		if err != nil {
			return 0, err
		}
		if d.overflow.Load() != before {
			continue
		}
		total := before + int64(hw)
		if st&pcnt.EventHighLimit != 0 {
			total += Limit
		}
		return total, nil
	}
}

// Update samples the counter. Only drivers.AngularVelocity is supported;
// other measurements are ignored. The first call after Configure primes
// the sample and reports 0.
func (d *Device) Update(which drivers.Measurement) error {
	if which&drivers.AngularVelocity == 0 {
		return nil
	}
	total, err := d.Total()
	if err != nil {
		return err
	}
	now := d.Now()
	d.total = total

	if !d.primed {
		d.primed = true
		d.lastTotal, d.lastTime = total, now
		d.rpm = 0
		return nil
	}
	dt := now - d.lastTime
	if dt <= 0 {
		return nil
	}
	revs := float64(total-d.lastTotal) / float64(d.cfg.PulsesPerRev)
	d.rpm = float32(revs / dt.Minutes())
	d.lastTotal, d.lastTime = total, now
	return nil
}

// RPM returns the speed from the last Update.
func (d *Device) RPM() float32 { return d.rpm }

// AngularVelocity returns the speed from the last Update in micro-degrees
// per second, the unit drivers use for gyroscopes. It saturates above
// about 357 RPM.
func (d *Device) AngularVelocity() int32 {
	v := float64(d.rpm) * 6e6
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Pulses returns the total seen by the last Update.
func (d *Device) Pulses() int64 { return d.total }

// Close detaches the interrupt handler and pauses the unit.
func (d *Device) Close() error {
	if d.drv.ISRServiceInstalled() {
		if err := d.drv.RemoveISRHandler(d.cfg.Unit); err != nil {
			return err
		}
	}
	return d.drv.Pause(d.cfg.Port, d.cfg.Unit)
}
