// Package repository holds the MySQL booking store and the Redis seat
// lock.  Absent rows are reported as ErrNotFound so the service layer can
// tell them apart from infrastructure failures.
package repository

import "errors"

// ErrNotFound is returned when no booking has the requested id.
var ErrNotFound = errors.New("booking not found")

// ErrConflict is returned when an insert collides with an existing
// primary key.
var ErrConflict = errors.New("conflict")
