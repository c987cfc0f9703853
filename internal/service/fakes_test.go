package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/study-room-booking/internal/model"
	"github.com/iliyamo/study-room-booking/internal/repository"
)

// memStore is an in-memory BookingStore.  readDelay widens the window
// between reading a seat's bookings and inserting a new one.
type memStore struct {
	mu        sync.Mutex
	byID      map[string]model.Booking
	readDelay time.Duration
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]model.Booking)}
}

func (m *memStore) FindByID(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return model.Booking{}, m.failWith
	}
	b, ok := m.byID[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("find %s: %w", id, repository.ErrNotFound)
	}
	return b, nil
}

func (m *memStore) filter(keep func(model.Booking) bool) []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.byID {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

func (m *memStore) FindByUser(_ context.Context, userID string) ([]model.Booking, error) {
	return m.filter(func(b model.Booking) bool { return b.UserID == userID }), nil
}

func (m *memStore) FindBySeat(_ context.Context, seatID string) ([]model.Booking, error) {
	out := m.filter(func(b model.Booking) bool { return b.SeatID == seatID })
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	return out, nil
}

// Search orders by CreateTime then ID, newest first, and pages the result
// the way the SQL store does.
func (m *memStore) Search(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	out := m.filter(func(b model.Booking) bool {
		if f.SeatID != "" && b.SeatID != f.SeatID {
			return false
		}
		if f.UserID != "" && b.UserID != f.UserID {
			return false
		}
		if f.State != "" && b.State != f.State {
			return false
		}
		if !f.From.IsZero() && b.EndTime.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && b.StartTime.After(f.To) {
			return false
		}
		return true
	})
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := b.CreateTime.Compare(a.CreateTime); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if f.Offset >= len(out) {
		return []model.Booking{}, nil
	}
	out = out[f.Offset:]
	return out[:min(len(out), f.PageLimit())], nil
}

func (m *memStore) Insert(_ context.Context, b model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[b.ID]; ok {
		return repository.ErrConflict
	}
	m.byID[b.ID] = b
	return nil
}

func (m *memStore) Update(_ context.Context, b model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[b.ID]; !ok {
		return repository.ErrNotFound
	}
	m.byID[b.ID] = b
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// fakeClock returns a settable instant.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// seqIDs hands out b-1, b-2, ...
type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("b-%d", s.n.Add(1)), nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// blockingPublisher parks its first Publish call until release is closed
// or the call's context ends.  Later calls return at once.
type blockingPublisher struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
}

func (p *blockingPublisher) Publish(ctx context.Context, _ BookingEvent) error {
	if p.calls.Add(1) != 1 {
		return nil
	}
	close(p.entered)
	select {
	case <-p.release:
		p.ctxErr <- nil
		return nil
	case <-ctx.Done():
		p.ctxErr <- ctx.Err()
		return ctx.Err()
	}
}

// movingStore moves booking moveID to seat moveTo the first time it is read.
type movingStore struct {
	*memStore
	moveID, moveTo string
	moved          atomic.Bool
}

func (m *movingStore) FindByID(ctx context.Context, id string) (model.Booking, error) {
	b, err := m.memStore.FindByID(ctx, id)
	if err != nil || id != m.moveID || !m.moved.CompareAndSwap(false, true) {
		return b, err
	}
	moved := b
	moved.SeatID = m.moveTo
	return b, m.memStore.Update(ctx, moved)
}

// recordingLocker wraps a SeatLocker and remembers which seats were held.
type recordingLocker struct {
	SeatLocker
	mu    sync.Mutex
	seats []string
}

func (l *recordingLocker) Lock(ctx context.Context, seatID string) (func(), error) {
	l.mu.Lock()
	l.seats = append(l.seats, seatID)
	l.mu.Unlock()
	return l.SeatLocker.Lock(ctx, seatID)
}

func (l *recordingLocker) locked() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.seats)
}
