// Package config loads the JSON description of a board's pulse counter
// channels and applies it to a pcnt driver.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopcnt/pcnt"
)

// DefaultLimit is used for both limits when a counter sets neither.
const DefaultLimit = 0x7FFF

// Board is the top-level configuration document.
type Board struct {
	Name     string    `json:"name"`
	MCU      string    `json:"mcu"`
	ISRFlags []string  `json:"isr_flags"`
	Counters []Counter `json:"counters"`
}

// Counter configures one unit channel. Pins left out are not connected.
type Counter struct {
	Name       string `json:"name"`
	Unit       int    `json:"unit"`
	Channel    int    `json:"channel"`
	PulsePin   *int   `json:"pulse_pin,omitempty"`
	ControlPin *int   `json:"control_pin,omitempty"`

	PosMode  string `json:"pos_mode"`
	NegMode  string `json:"neg_mode"`
	HighCtrl string `json:"high_ctrl"`
	LowCtrl  string `json:"low_ctrl"`

	HighLimit int16  `json:"high_limit"`
	LowLimit  int16  `json:"low_limit"`
	Filter    uint16 `json:"filter"` // APB cycles, 0 disables

	PulsesPerRev int `json:"pulses_per_rev"`
}

var intrFlagNames = map[string]pcnt.IntrFlags{
	"level1":   pcnt.IntrLevel1,
	"level2":   pcnt.IntrLevel2,
	"level3":   pcnt.IntrLevel3,
	"shared":   pcnt.IntrShared,
	"edge":     pcnt.IntrEdge,
	"iram":     pcnt.IntrIRAM,
	"disabled": pcnt.IntrDisabled,
}

// Load parses and validates a board configuration.
func Load(data []byte) (*Board, error) {
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&b)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads and loads path.
func LoadFile(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Load(data)
}

// applyDefaults fills in missing values
func applyDefaults(b *Board) {
	if b.Name == "" {
		b.Name = "gopcnt"
	}
	if len(b.ISRFlags) == 0 {
		b.ISRFlags = []string{"level1"}
	}
	for i := range b.Counters {
		c := &b.Counters[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("unit%d_ch%d", c.Unit, c.Channel)
		}
		if c.PosMode == "" {
			c.PosMode = pcnt.CountIncrement.String()
		}
		if c.NegMode == "" {
			c.NegMode = pcnt.CountHold.String()
		}
		if c.HighCtrl == "" {
			c.HighCtrl = pcnt.ControlKeep.String()
		}
		if c.LowCtrl == "" {
			c.LowCtrl = pcnt.ControlKeep.String()
		}
		if c.HighLimit == 0 && c.LowLimit == 0 {
			c.HighLimit, c.LowLimit = DefaultLimit, -DefaultLimit
		}
		if c.PulsesPerRev == 0 {
			c.PulsesPerRev = 1
		}
	}
}

// Validate checks every counter without touching hardware.
func (b *Board) Validate() error {
	if _, err := b.Flags(); err != nil {
		return err
	}
	type slot struct{ unit, ch int }
	seen := make(map[slot]string)
	names := make(map[string]bool)
	for _, c := range b.Counters {
		if _, err := c.UnitConfig(); err != nil {
			return fmt.Errorf("counter %s: %w", c.Name, err)
		}
		if c.Filter >= pcnt.FilterMax {
			return fmt.Errorf("counter %s: filter %d exceeds %d", c.Name, c.Filter, pcnt.FilterMax-1)
		}
		if c.PulsesPerRev < 0 {
			return fmt.Errorf("counter %s: negative pulses_per_rev", c.Name)
		}
		k := slot{c.Unit, c.Channel}
		if other, dup := seen[k]; dup {
			return fmt.Errorf("counter %s: unit %d channel %d already used by %s", c.Name, c.Unit, c.Channel, other)
		}
		seen[k] = c.Name
		if names[c.Name] {
			return fmt.Errorf("counter %s: duplicate name", c.Name)
		}
		names[c.Name] = true
	}
	return nil
}

// Flags combines the isr_flags names.
func (b *Board) Flags() (pcnt.IntrFlags, error) {
	var flags pcnt.IntrFlags
	for _, name := range b.ISRFlags {
		f, ok := intrFlagNames[strings.ToLower(name)]
		if !ok {
			return 0, fmt.Errorf("config: unknown isr flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

// Counter returns the counter called name.
func (b *Board) Counter(name string) (Counter, bool) {
	for _, c := range b.Counters {
		if c.Name == name {
			return c, true
		}
	}
	return Counter{}, false
}

func pin(p *int) int {
	if p == nil {
		return pcnt.PinNotUsed
	}
	return *p
}

// UnitConfig converts c to a driver configuration.
func (c Counter) UnitConfig() (pcnt.UnitConfig, error) {
	pos, err := pcnt.ParseCountMode(c.PosMode)
	if err != nil {
		return pcnt.UnitConfig{}, err
	}
	neg, err := pcnt.ParseCountMode(c.NegMode)
	if err != nil {
		return pcnt.UnitConfig{}, err
	}
	hctrl, err := pcnt.ParseControlMode(c.HighCtrl)
	if err != nil {
		return pcnt.UnitConfig{}, err
	}
	lctrl, err := pcnt.ParseControlMode(c.LowCtrl)
	if err != nil {
		return pcnt.UnitConfig{}, err
	}
	if c.Unit < 0 || c.Unit >= pcnt.UnitMax {
		return pcnt.UnitConfig{}, fmt.Errorf("unit %d out of range", c.Unit)
	}
	if c.Channel < 0 || c.Channel >= pcnt.ChannelMax {
		return pcnt.UnitConfig{}, fmt.Errorf("channel %d out of range", c.Channel)
	}
	// The driver would skip these writes and count against stale limits.
	if c.HighLimit < 0 || c.LowLimit > 0 {
		return pcnt.UnitConfig{}, fmt.Errorf("high_limit %d / low_limit %d: wrong limit sign", c.HighLimit, c.LowLimit)
	}
	cfg := pcnt.UnitConfig{
		Unit:         pcnt.Unit(c.Unit),
		Channel:      pcnt.Channel(c.Channel),
		PulsePin:     pin(c.PulsePin),
		ControlPin:   pin(c.ControlPin),
		PosMode:      pos,
		NegMode:      neg,
		HighCtrlMode: hctrl,
		LowCtrlMode:  lctrl,
		HighLimit:    c.HighLimit,
		LowLimit:     c.LowLimit,
	}
	return cfg, cfg.Validate()
}

// Apply initializes port if needed and programs every counter: unit
// configuration, glitch filter, then clear and resume.
func (b *Board) Apply(d *pcnt.Driver, port pcnt.Port) error {
	if !d.Initialized(port) {
		if err := d.Init(port); err != nil {
			return err
		}
	}
	for _, c := range b.Counters {
		cfg, err := c.UnitConfig()
		if err != nil {
			return fmt.Errorf("counter %s: %w", c.Name, err)
		}
		if err := d.ConfigureUnit(port, cfg); err != nil {
			return fmt.Errorf("counter %s: %w", c.Name, err)
		}
		if c.Filter > 0 {
			if err := d.SetFilterValue(port, cfg.Unit, c.Filter); err != nil {
				return fmt.Errorf("counter %s: %w", c.Name, err)
			}
			if err := d.EnableFilter(port, cfg.Unit); err != nil {
				return fmt.Errorf("counter %s: %w", c.Name, err)
			}
		}
		if err := d.ClearCounter(port, cfg.Unit); err != nil {
			return fmt.Errorf("counter %s: %w", c.Name, err)
		}
		if err := d.Resume(port, cfg.Unit); err != nil {
			return fmt.Errorf("counter %s: %w", c.Name, err)
		}
	}
	return nil
}

func intp(v int) *int { return &v }

// Default returns a single tachometer input on GPIO4 with a 1us filter.
func Default() *Board {
	b := &Board{
		Name: "gopcnt",
		MCU:  "esp32",
		Counters: []Counter{{
			Name:         "tach",
			Unit:         0,
			Channel:      0,
			PulsePin:     intp(4),
			Filter:       80,
			PulsesPerRev: 2,
		}},
	}
	applyDefaults(b)
	return b
}
