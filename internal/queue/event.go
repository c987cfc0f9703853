// Package queue carries booking events over RabbitMQ and keeps the audit
// log fed from them.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/study-room-booking/internal/service"
)

// Encode serialises ev as the JSON message body.
func Encode(ev service.BookingEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return body, nil
}

// Decode parses a message body produced by Encode.
func Decode(body []byte) (service.BookingEvent, error) {
	var ev service.BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return service.BookingEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" || ev.Booking.ID == "" {
		return service.BookingEvent{}, errors.New("event without type or booking id")
	}
	return ev, nil
}
