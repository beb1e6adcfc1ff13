package core

import "gopcnt/intr"

// Timer is a scheduled callback. Handler returns SF_DONE or SF_RESCHEDULE;
// to reschedule it updates WakeTime first.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// ScheduleTimer inserts t sorted by WakeTime. t must not already be queued.
func ScheduleTimer(t *Timer) {
	state := intr.Disable()
	defer intr.Restore(state)
	insertTimer(t)
}

// CancelTimer removes t from the schedule if present.
func CancelTimer(t *Timer) {
	state := intr.Disable()
	defer intr.Restore(state)

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return
	}
	for cur := timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

func insertTimer(t *Timer) {
	if timerList == nil || timeBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	cur := timerList
	for cur.Next != nil && !timeBefore(t.WakeTime, cur.Next.WakeTime) {
		cur = cur.Next
	}
	t.Next = cur.Next
	cur.Next = t
}

// TimerDispatch runs every timer with WakeTime <= currentTime.
func TimerDispatch() {
	state := intr.Disable()
	defer intr.Restore(state)

	for timerList != nil && !timeBefore(currentTime, timerList.WakeTime) {
		t := timerList
		timerList = t.Next
		t.Next = nil

		if t.Handler(t) == SF_RESCHEDULE {
			insertTimer(t)
		}
	}
}

// resetTimers drops every queued timer.
func resetTimers() {
	state := intr.Disable()
	timerList = nil
	intr.Restore(state)
}
