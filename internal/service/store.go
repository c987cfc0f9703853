package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/study-room-booking/internal/model"
)

// BookingStore is durable keyed storage of bookings.  FindByID, Update and
// Delete report a missing id with an error wrapping repository.ErrNotFound.
type BookingStore interface {
	FindByID(ctx context.Context, id string) (model.Booking, error)
	FindByUser(ctx context.Context, userID string) ([]model.Booking, error)
	FindBySeat(ctx context.Context, seatID string) ([]model.Booking, error)
	Search(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	Insert(ctx context.Context, b model.Booking) error
	Update(ctx context.Context, b model.Booking) error
	Delete(ctx context.Context, id string) error
}

// SeatLocker serialises admission per seat.  While the returned unlock
// function has not been called no other holder can lock the same seat,
// which closes the race between reading a seat's bookings and inserting
// a new one.
type SeatLocker interface {
	Lock(ctx context.Context, seatID string) (unlock func(), err error)
}

// LocalSeatLocker is an in-process SeatLocker.  It only protects callers
// sharing the same instance.
type LocalSeatLocker struct {
	mu    sync.Mutex
	seats map[string]*seatLock
}

type seatLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalSeatLocker() *LocalSeatLocker {
	return &LocalSeatLocker{seats: make(map[string]*seatLock)}
}

// Lock blocks until seatID is free or ctx is done.
func (l *LocalSeatLocker) Lock(ctx context.Context, seatID string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.seats[seatID]
	if !ok {
		sl = &seatLock{ch: make(chan struct{}, 1)}
		l.seats[seatID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(seatID, sl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			l.release(seatID, sl)
		})
	}, nil
}

func (l *LocalSeatLocker) release(seatID string, sl *seatLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.seats, seatID)
	}
}

// EventPublisher receives a notification after every successful mutation.
type EventPublisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
}

// BookingEvent describes a committed lifecycle change.
type BookingEvent struct {
	Type       string        `json:"type"`
	Booking    model.Booking `json:"booking"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Event types.
const (
	EventTypeCreated    = "booking.created"
	EventTypeCancelled  = "booking.cancelled"
	EventTypeCheckedIn  = "booking.checked_in"
	EventTypeCheckedOut = "booking.checked_out"
	EventTypeUpdated    = "booking.updated"
	EventTypeDeleted    = "booking.deleted"
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, BookingEvent) error { return nil }
