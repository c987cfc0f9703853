package service

import (
	"time"

	"github.com/iliyamo/study-room-booking/internal/model"
)

// Event drives a lifecycle transition.
type Event string

const (
	EventCheckIn  Event = "check-in"
	EventCheckOut Event = "check-out"
	EventCancel   Event = "cancel"
)

// transition is one row of the state table: the states an event may fire
// from and the state it lands in.
type transition struct {
	from func(model.BookingState) bool
	to   model.BookingState
}

var transitions = map[Event]transition{
	EventCheckIn:  {from: model.BookingState.Reserved, to: model.StateCheckedIn},
	EventCheckOut: {from: func(s model.BookingState) bool { return s == model.StateCheckedIn }, to: model.StateCheckedOut},
	EventCancel:   {from: func(s model.BookingState) bool { return !s.Terminal() }, to: model.StateCancelled},
}

// Apply fires ev on b at instant now and returns the updated booking.  b
// itself is never modified, so a rejected transition leaves no trace.
func Apply(b model.Booking, ev Event, now time.Time) (model.Booking, error) {
	t, ok := transitions[ev]
	if !ok {
		return b, newError(KindInvalidTransition, "unknown event %q", ev)
	}
	if !t.from(b.State) {
		return b, newError(KindInvalidTransition, "cannot %s booking %s in state %s", ev, b.ID, b.State)
	}

	next := b
	at := now.UTC()
	switch ev {
	case EventCheckIn:
		// both ends inclusive
		if now.Before(b.StartTime) || now.After(b.EndTime) {
			return b, newError(KindOutOfWindow, "check-in at %s is outside %s to %s",
				at.Format(time.RFC3339), b.StartTime.UTC().Format(time.RFC3339), b.EndTime.UTC().Format(time.RFC3339))
		}
		next.CheckInTime = &at
	case EventCheckOut:
		next.CheckOutTime = &at
	}
	next.State = t.to
	return next, nil
}

// CheckConsistency verifies that the state of b agrees with which of its
// check-in and check-out timestamps are set.
func CheckConsistency(b model.Booking) error {
	in, out := b.CheckInTime != nil, b.CheckOutTime != nil
	var ok bool
	switch b.State {
	case model.StatePending, model.StateConfirmed:
		ok = !in && !out
	case model.StateCheckedIn:
		ok = in && !out
	case model.StateCheckedOut:
		ok = in && out
	case model.StateCancelled:
		// a checked-in booking may still be cancelled
		ok = !out
	default:
		return newError(KindInvalidTransition, "unknown state %q", b.State)
	}
	if !ok {
		return newError(KindInvalidTransition, "state %s does not match check-in/check-out timestamps", b.State)
	}
	return nil
}
