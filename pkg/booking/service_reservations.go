package booking

import (
	"context"
	"fmt"
	"time"
)

// CheckCapacity reports whether guests more people fit into slot.
// The guest count is not validated here; CreateReservation does that before calling in.
func (service *Service) CheckCapacity(ctx context.Context, slot Slot, guests int64) (CapacityCheck, error) {
	return checkCapacity(ctx, service.store, slot, guests)
}

func checkCapacity(ctx context.Context, store Store, slot Slot, guests int64) (CapacityCheck, error) {
	maxCapacity := DefaultMaxCapacity
	stored, err := store.GetConfigEntry(ctx, ConfigKeyMaxCapacity)
	switch {
	case err == nil:
		maxCapacity = maxCapacityFrom(stored)
	case isConfigNotFound(err):
	default:
		return CapacityCheck{}, err
	}
	reserved, err := store.SumGuests(ctx, slot)
	if err != nil {
		return CapacityCheck{}, err
	}
	available := maxCapacity - reserved
	return CapacityCheck{
		Allowed:     guests <= available,
		Available:   available,
		Reserved:    reserved,
		MaxCapacity: maxCapacity,
	}, nil
}

// Availability reports the capacity state of each slot on date. When timeSlots is empty
// the configured slots are used.
func (service *Service) Availability(ctx context.Context, date SlotDate, timeSlots []TimeSlot) ([]SlotAvailability, error) {
	if len(timeSlots) == 0 {
		settings, err := service.Settings(ctx)
		if err != nil {
			return nil, err
		}
		for _, label := range settings.TimeSlots {
			timeSlot, err := NewTimeSlot(label)
			if err != nil {
				continue
			}
			timeSlots = append(timeSlots, timeSlot)
		}
	}
	availability := make([]SlotAvailability, 0, len(timeSlots))
	for _, timeSlot := range timeSlots {
		check, err := service.CheckCapacity(ctx, Slot{Date: date, TimeSlot: timeSlot}, 0)
		if err != nil {
			return nil, err
		}
		availability = append(availability, SlotAvailability{TimeSlot: timeSlot, CapacityCheck: check})
	}
	return availability, nil
}

// SlotAvailability pairs a time slot with its capacity state.
type SlotAvailability struct {
	TimeSlot TimeSlot
	CapacityCheck
}

// CreateReservation checks capacity and inserts the reservation in one transaction,
// holding the slot lock so concurrent requests cannot both pass the check.
func (service *Service) CreateReservation(ctx context.Context, request ReservationRequest) (ReservationID, CapacityCheck, error) {
	var (
		reservationID ReservationID
		capacity      CapacityCheck
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := service.checkAdvanceNotice(ctx, transactionStore, request.Slot); err != nil {
			return err
		}
		if err := transactionStore.LockSlot(ctx, request.Slot); err != nil {
			return err
		}
		check, err := checkCapacity(ctx, transactionStore, request.Slot, request.Guests.Int64())
		if err != nil {
			return err
		}
		capacity = check
		if !check.Allowed {
			return CapacityExceededError{
				Slot:        request.Slot,
				Requested:   request.Guests,
				Available:   check.Available,
				MaxCapacity: check.MaxCapacity,
			}
		}
		insertedID, err := transactionStore.InsertReservation(ctx, request, service.nowFn().UTC())
		if err != nil {
			return err
		}
		reservationID = insertedID
		capacity.Available -= request.Guests.Int64()
		capacity.Reserved += request.Guests.Int64()
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCreateReservation,
		ReservationID: reservationID,
		Slot:          request.Slot,
		Guests:        request.Guests,
		Error:         operationError,
	})
	if operationError != nil {
		return 0, capacity, operationError
	}
	return reservationID, capacity, nil
}

// ListReservations returns every reservation, latest date first.
func (service *Service) ListReservations(ctx context.Context) ([]Reservation, error) {
	return service.store.ListReservations(ctx)
}

// GetReservation returns one reservation or ErrReservationNotFound.
func (service *Service) GetReservation(ctx context.Context, id ReservationID) (Reservation, error) {
	return service.store.GetReservation(ctx, id)
}

// DeleteReservation removes a reservation. Deleting an unknown id returns ErrReservationNotFound.
func (service *Service) DeleteReservation(ctx context.Context, id ReservationID) error {
	operationError := service.store.DeleteReservation(ctx, id)
	service.logOperation(ctx, OperationLog{
		Operation:     operationDeleteReservation,
		ReservationID: id,
		Error:         operationError,
	})
	return operationError
}

func (service *Service) checkAdvanceNotice(ctx context.Context, store Store, slot Slot) error {
	if !service.advanceNotice {
		return nil
	}
	minHours := DefaultMinHours
	stored, err := store.GetConfigEntry(ctx, ConfigKeyMinHours)
	switch {
	case err == nil:
		if hours, ok := DecodeConfigValue(stored).Int(); ok && hours >= 0 {
			minHours = hours
		}
	case isConfigNotFound(err):
	default:
		return err
	}
	startsAt, err := slot.StartsAt(service.location)
	if err != nil {
		return err
	}
	earliest := service.nowFn().In(service.location).Add(time.Duration(minHours) * time.Hour)
	if startsAt.Before(earliest) {
		return fmt.Errorf("%w: %s starts before %s", ErrTooLate, slot, earliest.Format(time.RFC3339))
	}
	return nil
}
