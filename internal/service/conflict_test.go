package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/study-room-booking/internal/model"
)

var day = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func booking(id, seat string, start, end time.Time, state model.BookingState) model.Booking {
	return model.Booking{ID: id, UserID: "u-1", SeatID: seat, StartTime: start, EndTime: end, State: state}
}

func TestLinearCheckerAdmit(t *testing.T) {
	now := at(8, 0)
	existing := []model.Booking{
		booking("A", "S1", at(10, 0), at(11, 0), model.StatePending),
		booking("C", "S1", at(14, 0), at(15, 0), model.StateCancelled),
		booking("O", "S2", at(12, 0), at(13, 0), model.StatePending),
	}

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		wantKind Kind
	}{
		{"overlapping A", at(10, 30), at(11, 30), KindBookingConflict},
		{"back to back after A", at(11, 0), at(12, 0), 0},
		{"back to back before A", at(9, 0), at(10, 0), 0},
		{"over cancelled booking", at(14, 0), at(15, 0), 0},
		{"over other seat", at(12, 0), at(13, 0), 0},
		{"end equals start", at(12, 0), at(12, 0), KindInvalidInterval},
		{"end before start", at(13, 0), at(12, 0), KindInvalidInterval},
		{"start equals now", now, at(9, 0), KindPastInterval},
		{"start in past", at(7, 0), at(9, 0), KindPastInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := LinearChecker{}.Admit("S1", model.Interval{Start: tt.start, End: tt.end}, existing, now)
			if tt.wantKind == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestLinearCheckerConflictNamesInterval(t *testing.T) {
	existing := []model.Booking{booking("A", "S1", at(10, 0), at(11, 0), model.StateCheckedIn)}
	err := LinearChecker{}.Admit("S1", model.Interval{Start: at(10, 30), End: at(11, 30)}, existing, at(8, 0))

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindBookingConflict, be.Kind)
	assert.Equal(t, "A", be.ConflictID)
	require.NotNil(t, be.ConflictInterval)
	assert.True(t, be.ConflictInterval.Start.Equal(at(10, 0)))
	assert.True(t, be.ConflictInterval.End.Equal(at(11, 0)))
	assert.ErrorIs(t, err, ErrBookingConflict)
}

func TestLinearCheckerMaxDuration(t *testing.T) {
	c := LinearChecker{MaxDuration: 4 * time.Hour}
	assert.NoError(t, c.Admit("S1", model.Interval{Start: at(9, 0), End: at(13, 0)}, nil, at(8, 0)))
	err := c.Admit("S1", model.Interval{Start: at(9, 0), End: at(13, 1)}, nil, at(8, 0))
	assert.Equal(t, KindInvalidInterval, KindOf(err))
}

func TestLinearCheckerMixedZones(t *testing.T) {
	plus8 := time.FixedZone("UTC+8", 8*60*60)
	existing := []model.Booking{booking("A", "S1", at(10, 0), at(11, 0), model.StatePending)}
	// 18:30 +08:00 == 10:30 UTC
	cand := model.Interval{
		Start: time.Date(2025, 1, 1, 18, 30, 0, 0, plus8),
		End:   time.Date(2025, 1, 1, 19, 30, 0, 0, plus8),
	}
	err := LinearChecker{}.Admit("S1", cand, existing, at(8, 0))
	assert.Equal(t, KindBookingConflict, KindOf(err))
}

func TestFreeGaps(t *testing.T) {
	existing := []model.Booking{
		booking("B", "S1", at(13, 0), at(14, 0), model.StatePending),
		booking("A", "S1", at(9, 0), at(10, 30), model.StateCheckedIn),
		booking("C", "S1", at(11, 0), at(12, 0), model.StateCancelled),
		booking("D", "S1", at(13, 30), at(15, 0), model.StatePending),
	}
	gaps := freeGaps(model.Interval{Start: at(10, 0), End: at(16, 0)}, existing)

	want := []model.Interval{
		{Start: at(10, 30), End: at(13, 0)},
		{Start: at(15, 0), End: at(16, 0)},
	}
	require.Len(t, gaps, len(want))
	for i := range want {
		assert.True(t, want[i].Start.Equal(gaps[i].Start), "gap %d start", i)
		assert.True(t, want[i].End.Equal(gaps[i].End), "gap %d end", i)
	}
}

func TestFreeGapsFullyBooked(t *testing.T) {
	existing := []model.Booking{booking("A", "S1", at(9, 0), at(12, 0), model.StatePending)}
	assert.Empty(t, freeGaps(model.Interval{Start: at(10, 0), End: at(11, 0)}, existing))
}
