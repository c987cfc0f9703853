package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/study-room-booking/internal/model"
)

// Kind classifies a business-rule rejection.  The set is closed: the
// boundary layer switches over every value.
type Kind int

const (
	KindInvalidInterval Kind = iota + 1
	KindPastInterval
	KindBookingConflict
	KindNotFound
	KindOutOfWindow
	KindInvalidTransition
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	KindInvalidInterval,
	KindPastInterval,
	KindBookingConflict,
	KindNotFound,
	KindOutOfWindow,
	KindInvalidTransition,
}

func (k Kind) String() string {
	switch k {
	case KindInvalidInterval:
		return "invalid_interval"
	case KindPastInterval:
		return "past_interval"
	case KindBookingConflict:
		return "booking_conflict"
	case KindNotFound:
		return "not_found"
	case KindOutOfWindow:
		return "out_of_window"
	case KindInvalidTransition:
		return "invalid_transition"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed failure returned by every booking operation.  It is
// never retried: each one rejects a single request.
type Error struct {
	Kind    Kind
	Message string

	// Set for KindBookingConflict only.
	ConflictID       string
	ConflictInterval *model.Interval
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound)
// works for wrapped failures.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInterval   = &Error{Kind: KindInvalidInterval}
	ErrPastInterval      = &Error{Kind: KindPastInterval}
	ErrBookingConflict   = &Error{Kind: KindBookingConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrOutOfWindow       = &Error{Kind: KindOutOfWindow}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
)

// KindOf returns the Kind of err, or 0 if err is not a booking failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func conflictError(b model.Booking) *Error {
	iv := b.Interval().UTC()
	return &Error{
		Kind:             KindBookingConflict,
		Message:          fmt.Sprintf("seat %s is already booked from %s to %s", b.SeatID, iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339)),
		ConflictID:       b.ID,
		ConflictInterval: &iv,
	}
}
