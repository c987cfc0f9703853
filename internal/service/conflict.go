package service

import (
	"slices"
	"time"

	"github.com/iliyamo/study-room-booking/internal/model"
)

// ConflictChecker decides whether a candidate interval may be admitted on
// a seat.  It never fetches data: the caller hands it the seat's existing
// bookings, so implementations stay pure.  An indexed implementation can
// replace LinearChecker without touching callers.
type ConflictChecker interface {
	// Admit runs the full admission check for a new booking.
	Admit(seatID string, candidate model.Interval, existing []model.Booking, now time.Time) error
	// CheckOverlap only tests candidate against existing bookings of seatID
	// and fails with KindBookingConflict.
	CheckOverlap(seatID string, candidate model.Interval, existing []model.Booking) error
}

// LinearChecker scans every existing booking of the seat.
type LinearChecker struct {
	// MaxDuration caps the length of a booking.  Zero means no cap.
	MaxDuration time.Duration
}

// Admit returns nil when candidate is well formed, lies in the future
// relative to now and overlaps no non-cancelled booking of seatID.
// Otherwise it returns KindInvalidInterval, KindPastInterval or
// KindBookingConflict.
func (c LinearChecker) Admit(seatID string, candidate model.Interval, existing []model.Booking, now time.Time) error {
	if err := c.validate(candidate); err != nil {
		return err
	}
	if !candidate.Start.After(now) {
		return newError(KindPastInterval, "start time %s is not after current time %s",
			candidate.Start.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return c.CheckOverlap(seatID, candidate, existing)
}

func (c LinearChecker) CheckOverlap(seatID string, candidate model.Interval, existing []model.Booking) error {
	if b, ok := firstConflict(seatID, candidate, existing); ok {
		return conflictError(b)
	}
	return nil
}

func (c LinearChecker) validate(iv model.Interval) error {
	if err := validInterval(iv); err != nil {
		return err
	}
	if c.MaxDuration > 0 && iv.End.Sub(iv.Start) > c.MaxDuration {
		return newError(KindInvalidInterval, "booking longer than %s is not allowed", c.MaxDuration)
	}
	return nil
}

func validInterval(iv model.Interval) error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return newError(KindInvalidInterval, "start and end time are required")
	}
	if !iv.End.After(iv.Start) {
		return newError(KindInvalidInterval, "end time must be after start time")
	}
	return nil
}

// firstConflict returns the first booking of seatID that is not cancelled
// and overlaps candidate.  time.Time comparisons are instant based, so
// mixed zones compare correctly.
func firstConflict(seatID string, candidate model.Interval, existing []model.Booking) (model.Booking, bool) {
	for _, b := range existing {
		if b.SeatID != seatID || b.State == model.StateCancelled {
			continue
		}
		if candidate.Overlaps(b.Interval()) {
			return b, true
		}
	}
	return model.Booking{}, false
}

// freeGaps returns the parts of window not covered by any non-cancelled
// booking, in chronological order.
func freeGaps(window model.Interval, existing []model.Booking) []model.Interval {
	busy := make([]model.Interval, 0, len(existing))
	for _, b := range existing {
		if b.State == model.StateCancelled || !window.Overlaps(b.Interval()) {
			continue
		}
		busy = append(busy, b.Interval().UTC())
	}
	slices.SortFunc(busy, func(a, b model.Interval) int { return a.Start.Compare(b.Start) })

	gaps := []model.Interval{}
	cursor := window.Start.UTC()
	end := window.End.UTC()
	for _, iv := range busy {
		if cursor.Before(iv.Start) {
			gaps = append(gaps, model.Interval{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(end) {
		gaps = append(gaps, model.Interval{Start: cursor, End: end})
	}
	return gaps
}
