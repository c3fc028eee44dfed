package models

import "time"

// eventTransitions lists, for every status, the statuses it may move to.
// completed and rejected are terminal.
var eventTransitions = map[EventStatus][]EventStatus{
	EventPending:  {EventApproved, EventRejected},
	EventApproved: {EventCompleted},
}

var eventStatuses = []EventStatus{EventPending, EventApproved, EventRejected, EventCompleted}

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPending, EventApproved, EventRejected, EventCompleted:
		return true
	}
	return false
}

// CanTransition reports whether an event in status s may move to next.
func (s EventStatus) CanTransition(next EventStatus) bool {
	for _, allowed := range eventTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Predecessors returns the statuses from which an event may move into s,
// in declaration order. The store uses it as the guard of a
// compare-and-set UPDATE.
func (s EventStatus) Predecessors() []EventStatus {
	var out []EventStatus
	for _, from := range eventStatuses {
		if from.CanTransition(s) {
			out = append(out, from)
		}
	}
	return out
}

// IsOpen reports whether the shift has not been checked out yet.
func (a *Attendance) IsOpen() bool {
	return a.CheckOutTime == nil
}

// Duration is the length of a closed shift, or the time elapsed since
// check-in (measured against now) for an open one.
func (a *Attendance) Duration(now time.Time) time.Duration {
	end := now
	if a.CheckOutTime != nil {
		end = *a.CheckOutTime
	}
	if end.Before(a.CheckInTime) {
		return 0
	}
	return end.Sub(a.CheckInTime)
}
