package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/study-room-booking/internal/model"
	"github.com/iliyamo/study-room-booking/internal/repository"
)

// Options carries the collaborators of BookingService.  Nil fields fall
// back to SystemClock, UUIDGenerator, LinearChecker, a LocalSeatLocker and
// a publisher that drops events.
type Options struct {
	Clock     Clock
	IDs       IDGenerator
	Checker   ConflictChecker
	Locker    SeatLocker
	Publisher EventPublisher

	// RevalidateOnUpdate re-runs the overlap check when Update changes a
	// booking.  Off by default: Update then trusts the caller.
	RevalidateOnUpdate bool

	// PublishTimeout bounds each event publish.  Defaults to
	// DefaultPublishTimeout.
	PublishTimeout time.Duration
}

const DefaultPublishTimeout = 2 * time.Second

// BookingService exposes the booking operations.  It keeps no mutable
// state of its own; every mutation is written to the store before the
// call returns.
type BookingService struct {
	store      BookingStore
	clock      Clock
	ids        IDGenerator
	checker    ConflictChecker
	locker     SeatLocker
	publisher  EventPublisher
	pubTimeout time.Duration
	revalidate bool
	logger     *zap.Logger
}

func NewBookingService(store BookingStore, logger *zap.Logger, opts Options) *BookingService {
	if store == nil {
		panic("nil store passed to NewBookingService")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BookingService{
		store:      store,
		clock:      opts.Clock,
		ids:        opts.IDs,
		checker:    opts.Checker,
		locker:     opts.Locker,
		publisher:  opts.Publisher,
		pubTimeout: opts.PublishTimeout,
		revalidate: opts.RevalidateOnUpdate,
		logger:     logger,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.ids == nil {
		s.ids = UUIDGenerator{}
	}
	if s.checker == nil {
		s.checker = LinearChecker{}
	}
	if s.locker == nil {
		s.locker = NewLocalSeatLocker()
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.pubTimeout <= 0 {
		s.pubTimeout = DefaultPublishTimeout
	}
	return s
}

// UpdateResult is returned by Update.  ConflictRevalidated tells the
// caller whether the new interval was checked against the seat's other
// bookings; when false an update may overlap an existing booking.
type UpdateResult struct {
	Booking             model.Booking `json:"booking"`
	ConflictRevalidated bool          `json:"conflict_revalidated"`
}

func (s *BookingService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// Create admits a new PENDING booking of seatID for userID over
// [start, end).  It fails with KindInvalidInterval, KindPastInterval or
// KindBookingConflict.
func (s *BookingService) Create(ctx context.Context, userID, seatID string, start, end time.Time) (model.Booking, error) {
	b, err := s.admit(ctx, userID, seatID, model.Interval{Start: start, End: end}.UTC())
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Info("Booking created",
		zap.String("booking_id", b.ID),
		zap.String("seat_id", b.SeatID),
		zap.String("user_id", b.UserID),
		zap.Time("start_time", b.StartTime),
		zap.Time("end_time", b.EndTime),
	)
	s.publish(ctx, EventTypeCreated, b)
	return b, nil
}

// admit runs the overlap check and the insert under the seat lock.  The
// lock is released before Create publishes.
func (s *BookingService) admit(ctx context.Context, userID, seatID string, candidate model.Interval) (model.Booking, error) {
	unlock, err := s.locker.Lock(ctx, seatID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("lock seat %s: %w", seatID, err)
	}
	defer unlock()

	existing, err := s.store.FindBySeat(ctx, seatID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("load seat bookings: %w", err)
	}
	now := s.now()
	if err := s.checker.Admit(seatID, candidate, existing, now); err != nil {
		return model.Booking{}, err
	}

	id, err := s.ids.NewID()
	if err != nil {
		return model.Booking{}, fmt.Errorf("generate booking id: %w", err)
	}
	b := model.Booking{
		ID:         id,
		UserID:     userID,
		SeatID:     seatID,
		CreateTime: now,
		StartTime:  candidate.Start,
		EndTime:    candidate.End,
		State:      model.StatePending,
	}
	if err := s.store.Insert(ctx, b); err != nil {
		return model.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

// Get returns the booking with id or fails with KindNotFound.
func (s *BookingService) Get(ctx context.Context, id string) (model.Booking, error) {
	b, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.Booking{}, s.storeError(id, err)
	}
	return b, nil
}

// ListByUser returns every booking of userID, possibly none.
func (s *BookingService) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	list, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by user: %w", err)
	}
	return nonNil(list), nil
}

// ListBySeat returns every booking of seatID, possibly none.
func (s *BookingService) ListBySeat(ctx context.Context, seatID string) ([]model.Booking, error) {
	list, err := s.store.FindBySeat(ctx, seatID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by seat: %w", err)
	}
	return nonNil(list), nil
}

// PageByUser returns one page of userID's bookings, newest CreateTime
// first.  A zero limit selects model.DefaultLimit.
func (s *BookingService) PageByUser(ctx context.Context, userID string, limit, offset int) ([]model.Booking, error) {
	return s.Search(ctx, model.BookingFilter{UserID: userID, Limit: limit, Offset: offset})
}

// Search lists bookings matching f, newest first.  Callers validate
// f.State; an unknown state is not a business failure.
func (s *BookingService) Search(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, newError(KindInvalidInterval, "search window ends before it starts")
	}
	if f.State != "" && !f.State.Valid() {
		return nil, fmt.Errorf("search bookings: unknown state %q", f.State)
	}
	list, err := s.store.Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search bookings: %w", err)
	}
	return nonNil(list), nil
}

// Availability returns the free parts of [from, to) on seatID.
func (s *BookingService) Availability(ctx context.Context, seatID string, from, to time.Time) ([]model.Interval, error) {
	window := model.Interval{Start: from, End: to}.UTC()
	if err := validInterval(window); err != nil {
		return nil, err
	}
	existing, err := s.store.FindBySeat(ctx, seatID)
	if err != nil {
		return nil, fmt.Errorf("load seat bookings: %w", err)
	}
	return freeGaps(window, existing), nil
}

// CheckIn moves a reserved booking to CHECKED_IN when the current time
// lies within [StartTime, EndTime].
func (s *BookingService) CheckIn(ctx context.Context, id string) (model.Booking, error) {
	return s.transition(ctx, id, EventCheckIn, EventTypeCheckedIn)
}

// CheckOut moves a CHECKED_IN booking to CHECKED_OUT.
func (s *BookingService) CheckOut(ctx context.Context, id string) (model.Booking, error) {
	return s.transition(ctx, id, EventCheckOut, EventTypeCheckedOut)
}

// Cancel moves any non-terminal booking to CANCELLED, freeing its interval.
func (s *BookingService) Cancel(ctx context.Context, id string) (model.Booking, error) {
	return s.transition(ctx, id, EventCancel, EventTypeCancelled)
}

func (s *BookingService) transition(ctx context.Context, id string, ev Event, eventType string) (model.Booking, error) {
	var from model.BookingState
	next, err := s.underSeatLock(ctx, id, func(current model.Booking) (model.Booking, error) {
		from = current.State
		next, err := Apply(current, ev, s.now())
		if err != nil {
			return model.Booking{}, err
		}
		if err := s.store.Update(ctx, next); err != nil {
			return model.Booking{}, s.storeError(id, err)
		}
		return next, nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	s.logger.Info("Booking transitioned",
		zap.String("booking_id", next.ID),
		zap.String("event", string(ev)),
		zap.String("from", string(from)),
		zap.String("state", string(next.State)),
	)
	s.publish(ctx, eventType, next)
	return next, nil
}

// underSeatLock locks the seat of booking id plus any extra seats, in
// sorted order, re-reads the booking and calls fn with it.  When the
// booking moved to another seat between the unlocked read and the locked
// one, the locks are dropped and the whole step is retried.
func (s *BookingService) underSeatLock(ctx context.Context, id string, fn func(current model.Booking) (model.Booking, error), extra ...string) (model.Booking, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	for {
		unlock, err := s.lockSeats(ctx, append([]string{current.SeatID}, extra...))
		if err != nil {
			return model.Booking{}, err
		}
		fresh, err := s.Get(ctx, id)
		if err != nil {
			unlock()
			return model.Booking{}, err
		}
		if fresh.SeatID != current.SeatID {
			unlock()
			s.logger.Debug("Booking changed seat while locking, retrying",
				zap.String("booking_id", id),
				zap.String("from_seat", current.SeatID),
				zap.String("to_seat", fresh.SeatID),
			)
			current = fresh
			continue
		}
		next, err := fn(fresh)
		unlock()
		return next, err
	}
}

// lockSeats locks each distinct seat in sorted order.
func (s *BookingService) lockSeats(ctx context.Context, seats []string) (func(), error) {
	seats = slices.DeleteFunc(seats, func(seat string) bool { return seat == "" })
	slices.Sort(seats)
	seats = slices.Compact(seats)

	unlocks := make([]func(), 0, len(seats))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, seat := range seats {
		unlock, err := s.locker.Lock(ctx, seat)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock seat %s: %w", seat, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

// Update replaces the mutable fields of an existing booking: seat,
// interval, state and check-in/check-out timestamps.  ID, UserID and
// CreateTime are kept from the stored record.
//
// Unless the service was built with RevalidateOnUpdate the new interval
// is NOT checked for conflicts; UpdateResult.ConflictRevalidated reports
// which behaviour applied.
func (s *BookingService) Update(ctx context.Context, b model.Booking) (UpdateResult, error) {
	next, err := s.underSeatLock(ctx, b.ID, func(current model.Booking) (model.Booking, error) {
		return s.replace(ctx, current, b)
	}, b.SeatID)
	if err != nil {
		return UpdateResult{}, err
	}
	s.logger.Info("Booking updated",
		zap.String("booking_id", next.ID),
		zap.String("seat_id", next.SeatID),
		zap.String("state", string(next.State)),
		zap.Bool("conflict_revalidated", s.revalidate),
	)
	s.publish(ctx, EventTypeUpdated, next)
	return UpdateResult{Booking: next, ConflictRevalidated: s.revalidate}, nil
}

// replace validates b against current and writes it.  Callers hold the
// locks of both seats.
func (s *BookingService) replace(ctx context.Context, current, b model.Booking) (model.Booking, error) {
	next := current
	if b.SeatID != "" {
		next.SeatID = b.SeatID
	}
	next.StartTime = b.StartTime.UTC()
	next.EndTime = b.EndTime.UTC()
	next.State = b.State
	next.CheckInTime = utcPtr(b.CheckInTime)
	next.CheckOutTime = utcPtr(b.CheckOutTime)

	if err := validInterval(next.Interval()); err != nil {
		return model.Booking{}, err
	}
	if err := CheckConsistency(next); err != nil {
		return model.Booking{}, err
	}

	if s.revalidate && next.State != model.StateCancelled {
		existing, err := s.store.FindBySeat(ctx, next.SeatID)
		if err != nil {
			return model.Booking{}, fmt.Errorf("load seat bookings: %w", err)
		}
		others := slices.DeleteFunc(existing, func(o model.Booking) bool { return o.ID == next.ID })
		if err := s.checker.CheckOverlap(next.SeatID, next.Interval(), others); err != nil {
			return model.Booking{}, err
		}
	}

	if err := s.store.Update(ctx, next); err != nil {
		return model.Booking{}, s.storeError(next.ID, err)
	}
	return next, nil
}

// Delete removes the booking unconditionally or fails with KindNotFound.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.storeError(id, err)
	}
	s.logger.Info("Booking deleted", zap.String("booking_id", id), zap.String("seat_id", b.SeatID))
	s.publish(ctx, EventTypeDeleted, b)
	return nil
}

func (s *BookingService) storeError(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrNotFound) {
		return newError(KindNotFound, "booking %s not found", id)
	}
	return fmt.Errorf("booking store: %w", err)
}

// publish must be called after every seat lock is released.
func (s *BookingService) publish(ctx context.Context, eventType string, b model.Booking) {
	ctx, cancel := context.WithTimeout(ctx, s.pubTimeout)
	defer cancel()
	ev := BookingEvent{Type: eventType, Booking: b, OccurredAt: s.now()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish booking event",
			zap.String("event", eventType),
			zap.String("booking_id", b.ID),
			zap.Error(err),
		)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonNil(list []model.Booking) []model.Booking {
	if list == nil {
		return []model.Booking{}
	}
	return list
}
