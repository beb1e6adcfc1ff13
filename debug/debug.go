// Package debug is the firmware logging sink. Platform code points it at a
// UART or USB writer; everything else calls Println.
package debug

// Writer is a function type for writing debug messages
type Writer func(string)

// Event captures an interrupt-side event for post-mortem analysis.
// Interrupt handlers must not print, so they record here instead.
type Event struct {
	Kind   uint8  // Event kind code
	Unit   uint8  // Counter unit or object ID
	Clock  uint32 // System clock at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event kind codes
const (
	EvtCounterConfig   = 1 // config_counter applied
	EvtCounterQuery    = 2 // query_counter received
	EvtCounterOverflow = 3 // limit event accumulated
	EvtCounterPoll     = 4 // poll timer fired
	EvtISRDispatch     = 5 // shared interrupt dispatched
)

const (
	RingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// writer is the global debug print function (can be set by platform code)
	writer Writer = func(s string) {} // No-op by default

	// enabled controls whether debug output is active
	enabled bool = false

	ring     [RingSize]Event
	ringHead uint8

	// Async debug output channel
	asyncChan chan string
)

// SetWriter sets the platform-specific debug output function
func SetWriter(w Writer) {
	writer = w
}

// SetEnabled enables or disables debug output
func SetEnabled(on bool) {
	enabled = on
}

// IsEnabled returns whether debug output is enabled
func IsEnabled() bool {
	return enabled
}

// InitAsync starts the async debug output goroutine
// Call this from main() after SetWriter
func InitAsync() {
	asyncChan = make(chan string, 16)
	go asyncWorker(asyncChan)
}

func asyncWorker(ch chan string) {
	for msg := range ch {
		if writer != nil {
			writer(msg)
		}
	}
}

// Println writes a debug message using the platform-specific writer.
// Blocks while the writer runs; use Async from latency-sensitive paths.
func Println(msg string) {
	if enabled && writer != nil {
		writer(msg)
	}
}

// Async queues a debug message for async output (non-blocking).
// Drops the message when the channel is full or InitAsync was not called.
func Async(msg string) {
	if !enabled || asyncChan == nil {
		return
	}
	select {
	case asyncChan <- msg:
	default:
	}
}

// Record captures an event in the ring buffer. Safe to call from an
// interrupt handler: no allocation, no output.
func Record(kind, unit uint8, clock, value1, value2 uint32) {
	idx := ringHead
	ring[idx] = Event{
		Kind:   kind,
		Unit:   unit,
		Clock:  clock,
		Value1: value1,
		Value2: value2,
	}
	ringHead = (idx + 1) % RingSize
}

// Events returns the recorded events from oldest to newest.
func Events() []Event {
	out := make([]Event, 0, RingSize)
	start := ringHead
	for i := uint8(0); i < RingSize; i++ {
		evt := ring[(start+i)%RingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Dump outputs the event ring (call on shutdown/error)
func Dump() {
	if writer == nil {
		return
	}

	writer("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		var name string
		switch evt.Kind {
		case EvtCounterConfig:
			name = "COUNTER_CFG"
		case EvtCounterQuery:
			name = "COUNTER_QUERY"
		case EvtCounterOverflow:
			name = "OVERFLOW"
		case EvtCounterPoll:
			name = "POLL"
		case EvtISRDispatch:
			name = "ISR"
		default:
			name = "UNKNOWN"
		}

		writer("[EVENTS] " + name +
			" unit=" + Itoa(int(evt.Unit)) +
			" clock=" + Utoa(evt.Clock) +
			" v1=" + Utoa(evt.Value1) +
			" v2=" + Utoa(evt.Value2))
	}
	writer("[EVENTS] === End Dump ===")
}

// ClearEvents clears the event ring
func ClearEvents() {
	for i := range ring {
		ring[i] = Event{}
	}
	ringHead = 0
}
