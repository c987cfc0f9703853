package model

import "time"

// BookingFilter narrows a booking search.  Zero values are ignored.  From
// and To select bookings whose interval intersects [From, To].
type BookingFilter struct {
	SeatID string
	UserID string
	State  BookingState
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Page size bounds for searches.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// PageLimit is Limit, or DefaultLimit when Limit is unset or above MaxLimit.
func (f BookingFilter) PageLimit() int {
	if f.Limit <= 0 || f.Limit > MaxLimit {
		return DefaultLimit
	}
	return f.Limit
}
