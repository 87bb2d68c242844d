package booking

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation     string
	ReservationID ReservationID
	Slot          Slot
	Guests        GuestCount
	ConfigKey     ConfigKey
	Username      string
	DishID        int64
	Status        string
	Error         error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
// It may be given more than once; every logger receives every entry.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.loggers = append(service.loggers, logger)
		}
	}
}
