package model

import "time"

// BookingState is the lifecycle state of a booking.  Values are stored
// verbatim in bookings.state.
type BookingState string

const (
	StatePending    BookingState = "PENDING"
	StateConfirmed  BookingState = "CONFIRMED"
	StateCancelled  BookingState = "CANCELLED"
	StateCheckedIn  BookingState = "CHECKED_IN"
	StateCheckedOut BookingState = "CHECKED_OUT"
)

// Valid reports whether s is one of the five known states.
func (s BookingState) Valid() bool {
	switch s {
	case StatePending, StateConfirmed, StateCancelled, StateCheckedIn, StateCheckedOut:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s BookingState) Terminal() bool {
	return s == StateCancelled || s == StateCheckedOut
}

// Reserved reports whether s is one of the "reserved, not yet arrived"
// states.  PENDING and CONFIRMED are interchangeable for every guard.
func (s BookingState) Reserved() bool {
	return s == StatePending || s == StateConfirmed
}

// Booking is a reservation of one seat by one user for the half-open
// interval [StartTime, EndTime).  User and seat are referenced by id only.
//
// Fields:
//
//	ID           – time-sortable unique id, assigned at creation.
//	UserID       – user who owns the booking.
//	SeatID       – seat being reserved.
//	CreateTime   – creation instant, immutable.
//	StartTime    – first instant of the reservation (inclusive).
//	EndTime      – end of the reservation (exclusive for overlap).
//	CheckInTime  – set by the check-in transition.
//	CheckOutTime – set by the check-out transition.
//	State        – lifecycle state.
type Booking struct {
	ID           string       `db:"id" json:"id"`                                 // bookings.id
	UserID       string       `db:"user_id" json:"user_id"`                       // bookings.user_id
	SeatID       string       `db:"seat_id" json:"seat_id"`                       // bookings.seat_id
	CreateTime   time.Time    `db:"create_time" json:"create_time"`               // bookings.create_time
	StartTime    time.Time    `db:"start_time" json:"start_time"`                 // bookings.start_time
	EndTime      time.Time    `db:"end_time" json:"end_time"`                     // bookings.end_time
	CheckInTime  *time.Time   `db:"check_in_time" json:"check_in_time,omitempty"` // bookings.check_in_time (nullable)
	CheckOutTime *time.Time   `db:"check_out_time" json:"check_out_time,omitempty"`
	State        BookingState `db:"state" json:"state"` // bookings.state
}

// Interval returns the reserved interval of b.
func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether i and o share at least one instant.  Intervals
// that only touch at an endpoint do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// UTC returns i with both endpoints converted to UTC.
func (i Interval) UTC() Interval {
	return Interval{Start: i.Start.UTC(), End: i.End.UTC()}
}
