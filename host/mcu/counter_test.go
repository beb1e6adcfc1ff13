package mcu

import (
	"math"
	"testing"
)

func TestFrequencyCounter(t *testing.T) {
	c := NewFrequencyCounter(1, 1000000)
	c.pollTicks = 100000

	var got []float64
	c.SetCallback(func(_ float64, hz float64) { got = append(got, hz) })

	c.HandleState(200000, 0, 100000)
	if len(got) != 0 {
		t.Fatal("First report should only prime the counter")
	}

	// 50 edges in 0.1s.
	c.HandleState(300000, 50, 200000)
	// 200 edges in 0.1s.
	c.HandleState(400000, 250, 300000)

	if len(got) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(got))
	}
	if math.Abs(got[0]-500) > 1e-6 || math.Abs(got[1]-2000) > 1e-6 {
		t.Errorf("Frequencies = %v", got)
	}
	if c.Frequency() != got[1] {
		t.Errorf("Frequency() = %v", c.Frequency())
	}
}

func TestFrequencyCounterWraps(t *testing.T) {
	c := NewFrequencyCounter(1, 1000000)
	c.pollTicks = 0x100

	var hz float64
	c.SetCallback(func(_ float64, f float64) { hz = f })

	// Both the count and the clock cross 2^32 between reports.
	c.HandleState(0xFFFFFF00, 0xFFFFFFF0, 0xFFFFFE00)
	c.HandleState(0x00000300, 0x00000010, 0x00000200)

	// 0x20 edges in 0x400 ticks.
	want := float64(0x20) / (float64(0x400) / 1000000)
	if math.Abs(hz-want) > 1e-3 {
		t.Errorf("Expected %.3f Hz across wrap, got %.3f", want, hz)
	}
}

func TestFrequencyCounterIdle(t *testing.T) {
	c := NewFrequencyCounter(1, 1000000)
	c.pollTicks = 1000

	var hz float64 = -1
	c.SetCallback(func(_ float64, f float64) { hz = f })

	c.HandleState(2000, 7, 1000)
	// A report whose count clock did not move reports zero.
	c.HandleState(3000, 7, 1000)
	if hz != 0 {
		t.Errorf("Expected 0 Hz, got %v", hz)
	}
}

func TestClamp(t *testing.T) {
	if clamp(0.0001, MinPollTime, MaxPollTime) != MinPollTime {
		t.Error("Poll time not raised to minimum")
	}
	if clamp(50.0, MinPollTime, MaxPollTime) != MaxPollTime {
		t.Error("Poll time not limited to maximum")
	}
	if clamp(5, 1, 10) != 5 {
		t.Error("In-range int changed")
	}
	if clamp[uint32](0, 3, 9) != 3 {
		t.Error("uint32 clamp")
	}
}
