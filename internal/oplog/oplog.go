// Package oplog writes booking operations to a zap logger.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	"go.uber.org/zap"
)

const statusError = "error"

// Logger implements booking.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger. A nil zap logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("booking")}
}

// LogOperation writes one structured line per operation. Failures are logged at warn,
// or at error when the cause is not a domain outcome.
func (operationLogger *Logger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.ReservationID != 0 {
		fields = append(fields, zap.Int64("reservation_id", entry.ReservationID.Int64()))
	}
	if entry.Slot.Date.String() != "" {
		fields = append(fields,
			zap.String("date", entry.Slot.Date.String()),
			zap.String("time_slot", entry.Slot.TimeSlot.String()),
		)
	}
	if entry.Guests != 0 {
		fields = append(fields, zap.Int64("guests", entry.Guests.Int64()))
	}
	if entry.ConfigKey != "" {
		fields = append(fields, zap.String("config_key", entry.ConfigKey.String()))
	}
	if entry.Username != "" {
		fields = append(fields, zap.String("username", entry.Username))
	}
	if entry.DishID != 0 {
		fields = append(fields, zap.Int64("dish_id", entry.DishID))
	}
	if entry.Status != statusError {
		operationLogger.logger.Info("booking operation", fields...)
		return
	}
	fields = append(fields, zap.Error(entry.Error))
	if booking.IsStorageFailure(entry.Error) {
		operationLogger.logger.Error("booking operation failed", fields...)
		return
	}
	operationLogger.logger.Warn("booking operation rejected", fields...)
}
