package booking

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service contains the domain logic over a Store.
type Service struct {
	store         Store
	nowFn         func() time.Time
	loggers       []OperationLogger
	passwordCost  int
	tokenSource   io.Reader
	advanceNotice bool
	location      *time.Location
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:        store,
		nowFn:        now,
		passwordCost: bcrypt.DefaultCost,
		tokenSource:  rand.Reader,
		location:     time.UTC,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.passwordCost < bcrypt.MinCost || service.passwordCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: password cost %d out of range", ErrInvalidServiceConfig, service.passwordCost)
	}
	if service.tokenSource == nil {
		return nil, fmt.Errorf("%w: token source is nil", ErrInvalidServiceConfig)
	}
	if service.location == nil {
		return nil, fmt.Errorf("%w: location is nil", ErrInvalidServiceConfig)
	}
	return service, nil
}

// WithPasswordCost sets the bcrypt cost used for new password hashes.
func WithPasswordCost(cost int) ServiceOption {
	return func(service *Service) {
		service.passwordCost = cost
	}
}

// WithTokenSource replaces the entropy source for session tokens.
func WithTokenSource(source io.Reader) ServiceOption {
	return func(service *Service) {
		service.tokenSource = source
	}
}

// WithAdvanceNotice rejects reservations whose slot starts sooner than the configured
// minHours, evaluating slot start times in location.
func WithAdvanceNotice(location *time.Location) ServiceOption {
	return func(service *Service) {
		service.advanceNotice = true
		service.location = location
	}
}

// Bootstrap seeds default configuration and the administrator account. Existing rows are left alone.
func (service *Service) Bootstrap(ctx context.Context, adminPassword string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		for key, value := range defaultConfigEntries() {
			if err := transactionStore.InsertConfigEntryIfAbsent(ctx, key, value.Encode()); err != nil {
				return err
			}
		}
		passwordHash, err := service.hashPassword(adminPassword)
		if err != nil {
			return err
		}
		return transactionStore.InsertAdminIfAbsent(ctx, DefaultAdminUsername, passwordHash)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationBootstrap,
		Username:  DefaultAdminUsername,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if len(service.loggers) == 0 {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	for _, logger := range service.loggers {
		logger.LogOperation(ctx, entry)
	}
}
