package queue

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iliyamo/study-room-booking/internal/service"
)

var auditMessages = map[string]string{
	service.EventTypeCreated:    "Booking created",
	service.EventTypeCancelled:  "Booking cancelled",
	service.EventTypeCheckedIn:  "Booking checked in",
	service.EventTypeCheckedOut: "Booking checked out",
	service.EventTypeUpdated:    "Booking updated",
	service.EventTypeDeleted:    "Booking deleted",
}

// AuditLog appends one JSON line per booking event to a file.
type AuditLog struct {
	logger *zap.Logger
}

// NewAuditLog opens path for appending, creating its directory if needed.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir audit log dir: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "logged_at"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLog{logger: logger}, nil
}

// Record writes ev.  Unknown event types are still recorded under their
// raw type name.
func (a *AuditLog) Record(ev service.BookingEvent) {
	msg, ok := auditMessages[ev.Type]
	if !ok {
		msg = ev.Type
	}
	b := ev.Booking
	fields := []zap.Field{
		zap.String("event", ev.Type),
		zap.Time("occurred_at", ev.OccurredAt),
		zap.String("booking_id", b.ID),
		zap.String("user_id", b.UserID),
		zap.String("seat_id", b.SeatID),
		zap.String("state", string(b.State)),
		zap.Time("start_time", b.StartTime),
		zap.Time("end_time", b.EndTime),
	}
	if b.CheckInTime != nil {
		fields = append(fields, zap.Time("check_in_time", *b.CheckInTime))
	}
	if b.CheckOutTime != nil {
		fields = append(fields, zap.Time("check_out_time", *b.CheckOutTime))
	}
	a.logger.Info(msg, fields...)
}

// Close flushes buffered entries.
func (a *AuditLog) Close() error {
	return a.logger.Sync()
}
