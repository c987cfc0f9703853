package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/study-room-booking/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const bookingColumns = `id, user_id, seat_id, create_time, start_time, end_time, check_in_time, check_out_time, state`

// BookingRepo stores bookings in the bookings table.  All timestamps are
// written and read in UTC.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// FindByID returns the booking with id, or ErrNotFound.
func (r *BookingRepo) FindByID(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("select booking %s: %w", id, err)
	}
	return utc(b), nil
}

// FindByUser returns every booking of userID ordered by start time.
func (r *BookingRepo) FindByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return r.selectMany(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY start_time, id`, userID)
}

// FindBySeat returns every booking of seatID, cancelled ones included,
// ordered by start time.
func (r *BookingRepo) FindBySeat(ctx context.Context, seatID string) ([]model.Booking, error) {
	return r.selectMany(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE seat_id = ? ORDER BY start_time, id`, seatID)
}

// Search lists bookings matching f, newest first.  From keeps bookings
// ending at or after it, To keeps bookings starting at or before it.
func (r *BookingRepo) Search(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	q, args := buildSearch(f)
	return r.selectMany(ctx, q, args...)
}

func buildSearch(f model.BookingFilter) (string, []any) {
	var where []string
	var args []any
	if f.SeatID != "" {
		where = append(where, "seat_id = ?")
		args = append(args, f.SeatID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}
	if !f.From.IsZero() {
		where = append(where, "end_time >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "start_time <= ?")
		args = append(args, f.To.UTC())
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + bookingColumns + ` FROM bookings`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY create_time DESC, id DESC")

	sb.WriteString(" LIMIT ?")
	args = append(args, f.PageLimit())
	if f.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, f.Offset)
	}
	return sb.String(), args
}

func (r *BookingRepo) selectMany(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	list := []model.Booking{}
	if err := r.db.SelectContext(ctx, &list, q, args...); err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	for i := range list {
		list[i] = utc(list[i])
	}
	return list, nil
}

// Insert writes a new booking.  A duplicate id yields ErrConflict.
func (r *BookingRepo) Insert(ctx context.Context, b model.Booking) error {
	const q = `INSERT INTO bookings (` + bookingColumns + `)
		VALUES (:id, :user_id, :seat_id, :create_time, :start_time, :end_time, :check_in_time, :check_out_time, :state)`
	if _, err := r.db.NamedExecContext(ctx, q, utc(b)); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return fmt.Errorf("booking %s: %w", b.ID, ErrConflict)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of an existing booking.
// create_time and user_id are never rewritten.
func (r *BookingRepo) Update(ctx context.Context, b model.Booking) error {
	const q = `UPDATE bookings
		SET seat_id = :seat_id, start_time = :start_time, end_time = :end_time,
			check_in_time = :check_in_time, check_out_time = :check_out_time, state = :state
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, q, utc(b))
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return expectOne(res, b.ID)
}

// Delete removes the booking with id.
func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

func utc(b model.Booking) model.Booking {
	b.CreateTime = b.CreateTime.UTC()
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	if b.CheckInTime != nil {
		t := b.CheckInTime.UTC()
		b.CheckInTime = &t
	}
	if b.CheckOutTime != nil {
		t := b.CheckOutTime.UTC()
		b.CheckOutTime = &t
	}
	return b
}
