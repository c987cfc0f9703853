package service

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces unique identifiers for new bookings.
type IDGenerator interface {
	NewID() (string, error)
}

// UUIDGenerator issues UUIDv7 values, which sort by creation time.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
