package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/study-room-booking/internal/model"
	"github.com/iliyamo/study-room-booking/internal/service"
)

func sampleEvent() service.BookingEvent {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	in := start.Add(5 * time.Minute)
	return service.BookingEvent{
		Type: service.EventTypeCheckedIn,
		Booking: model.Booking{
			ID:          "b-1",
			UserID:      "u-1",
			SeatID:      "S1",
			CreateTime:  start.Add(-2 * time.Hour),
			StartTime:   start,
			EndTime:     start.Add(time.Hour),
			CheckInTime: &in,
			State:       model.StateCheckedIn,
		},
		OccurredAt: in,
	}
}

func TestEncodeDecode(t *testing.T) {
	ev := sampleEvent()
	body, err := Encode(ev)
	require.NoError(t, err)

	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.Booking.ID, got.Booking.ID)
	require.NotNil(t, got.Booking.CheckInTime)
	assert.True(t, got.Booking.CheckInTime.Equal(*ev.Booking.CheckInTime))
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"type":"booking.created","booking":{}}`))
	assert.Error(t, err)
}

func TestNewPublishing(t *testing.T) {
	ev := sampleEvent()
	msg, err := newPublishing(ev)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "b-1:booking.checked_in", msg.MessageId)
	assert.Equal(t, service.EventTypeCheckedIn, msg.Type)
	assert.True(t, msg.Timestamp.Equal(ev.OccurredAt))
}

func TestConsumerHandleWritesAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "booking.log")
	audit, err := NewAuditLog(path)
	require.NoError(t, err)
	c := NewConsumer("amqp://unused", "booking_events", audit, zap.NewNop())

	body, err := Encode(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, c.handle(body))
	assert.Error(t, c.handle([]byte("{}")))
	_ = audit.Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "Booking checked in", lines[0]["msg"])
	assert.Equal(t, "b-1", lines[0]["booking_id"])
	assert.Equal(t, "CHECKED_IN", lines[0]["state"])
	assert.Contains(t, lines[0], "check_in_time")
	assert.NotContains(t, lines[0], "check_out_time")
}

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishDoesNotWaitOnDial(t *testing.T) {
	p := NewPublisher(silentBroker(t), "booking.events", zap.NewNop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	first := make(chan error, 1)
	go func() { first <- p.Publish(ctx, sampleEvent()) }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.dialing
	}, time.Second, time.Millisecond)

	start := time.Now()
	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	err = <-first
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBrokerUnavailable)
	assert.Contains(t, err.Error(), "rabbitmq dial")

	// a failed dial is not retried straight away
	assert.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), ErrBrokerUnavailable)
}

func TestPublishExpiredContext(t *testing.T) {
	p := NewPublisher(silentBroker(t), "booking.events", zap.NewNop())
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := p.Publish(ctx, sampleEvent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
