package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04"
	timeRangeSymbol = "-"
)

// ReservationID identifies a stored reservation.
type ReservationID int64

// NewReservationID validates a reservation id.
func NewReservationID(raw int64) (ReservationID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidReservationID)
	}
	return ReservationID(raw), nil
}

// ParseReservationID parses a reservation id from its decimal form.
func ParseReservationID(raw string) (ReservationID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidReservationID, raw)
	}
	return NewReservationID(value)
}

// Int64 returns the raw id.
func (id ReservationID) Int64() int64 {
	return int64(id)
}

// SlotDate is a calendar day in YYYY-MM-DD form.
type SlotDate struct {
	value string
}

// NewSlotDate validates a YYYY-MM-DD date. Surrounding whitespace is rejected, not stripped.
func NewSlotDate(raw string) (SlotDate, error) {
	if raw == "" {
		return SlotDate{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return SlotDate{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, raw)
	}
	return SlotDate{value: raw}, nil
}

// String returns the date.
func (date SlotDate) String() string {
	return date.value
}

// TimeSlot is a slot label such as "12:00-13:00". Labels are matched exactly.
type TimeSlot struct {
	value string
}

// NewTimeSlot validates a slot label. Blank labels are rejected; anything else is kept
// byte for byte, so " 12:00-13:00" and "12:00-13:00" are different slots.
func NewTimeSlot(raw string) (TimeSlot, error) {
	if strings.TrimSpace(raw) == "" {
		return TimeSlot{}, fmt.Errorf("%w: empty value", ErrInvalidTimeSlot)
	}
	return TimeSlot{value: raw}, nil
}

// ParseTimeSlotRange validates a label in HH:MM-HH:MM form with start before end.
func ParseTimeSlotRange(raw string) (TimeSlot, error) {
	slot, err := NewTimeSlot(raw)
	if err != nil {
		return TimeSlot{}, err
	}
	if _, err := slot.TimeRange(); err != nil {
		return TimeSlot{}, err
	}
	return slot, nil
}

// String returns the slot label.
func (slot TimeSlot) String() string {
	return slot.value
}

// TimeRange is the clock range a slot label describes, as minutes after midnight.
type TimeRange struct {
	StartMinute int
	EndMinute   int
}

// TimeRange parses the label as HH:MM-HH:MM.
func (slot TimeSlot) TimeRange() (TimeRange, error) {
	startRaw, endRaw, found := strings.Cut(slot.value, timeRangeSymbol)
	if !found {
		return TimeRange{}, fmt.Errorf("%w: %q is not HH:MM-HH:MM", ErrInvalidTimeSlot, slot.value)
	}
	start, err := time.Parse(clockLayout, strings.TrimSpace(startRaw))
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: bad start in %q", ErrInvalidTimeSlot, slot.value)
	}
	end, err := time.Parse(clockLayout, strings.TrimSpace(endRaw))
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: bad end in %q", ErrInvalidTimeSlot, slot.value)
	}
	timeRange := TimeRange{
		StartMinute: start.Hour()*60 + start.Minute(),
		EndMinute:   end.Hour()*60 + end.Minute(),
	}
	if timeRange.StartMinute >= timeRange.EndMinute {
		return TimeRange{}, fmt.Errorf("%w: start must be before end in %q", ErrInvalidTimeSlot, slot.value)
	}
	return timeRange, nil
}

// Slot is the unit capacity is accounted against.
type Slot struct {
	Date     SlotDate
	TimeSlot TimeSlot
}

// NewSlot validates both halves of a slot.
func NewSlot(rawDate string, rawTimeSlot string) (Slot, error) {
	date, err := NewSlotDate(rawDate)
	if err != nil {
		return Slot{}, err
	}
	timeSlot, err := NewTimeSlot(rawTimeSlot)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Date: date, TimeSlot: timeSlot}, nil
}

// String returns "date timeSlot".
func (slot Slot) String() string {
	return slot.Date.String() + " " + slot.TimeSlot.String()
}

// StartsAt returns the slot start in the given location.
func (slot Slot) StartsAt(location *time.Location) (time.Time, error) {
	timeRange, err := slot.TimeSlot.TimeRange()
	if err != nil {
		return time.Time{}, err
	}
	day, err := time.ParseInLocation(dateLayout, slot.Date.String(), location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return day.Add(time.Duration(timeRange.StartMinute) * time.Minute), nil
}

// GuestCount is the number of people on a reservation.
type GuestCount int64

// NewGuestCount validates a guest count and ensures it is strictly positive.
func NewGuestCount(raw int64) (GuestCount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidGuestCount)
	}
	return GuestCount(raw), nil
}

// Int64 returns the raw count.
func (count GuestCount) Int64() int64 {
	return int64(count)
}

// AmountPesos is a whole-peso amount.
type AmountPesos int64

// NewAmountPesos validates an amount and ensures it is not negative.
func NewAmountPesos(raw int64) (AmountPesos, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return AmountPesos(raw), nil
}

// Int64 returns the raw amount.
func (amount AmountPesos) Int64() int64 {
	return int64(amount)
}

// OrderItem is one line of the pre-order attached to a reservation.
type OrderItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Qty      int64  `json:"qty"`
	Subtotal int64  `json:"subtotal"`
}

// EncodeOrderItems renders items in their storage form.
func EncodeOrderItems(items []OrderItem) (string, error) {
	if items == nil {
		items = []OrderItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidItems, err)
	}
	return string(encoded), nil
}

// DecodeOrderItems parses stored items. Corrupt or legacy values decode to an empty list.
func DecodeOrderItems(raw string) []OrderItem {
	var items []OrderItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil || items == nil {
		return []OrderItem{}
	}
	return items
}

// ReservationRequest is a validated reservation submitted by a guest.
type ReservationRequest struct {
	Name   string
	Phone  string
	Slot   Slot
	Guests GuestCount
	Items  []OrderItem
	Total  AmountPesos
}

// NewReservationRequest validates the fields a reservation requires.
// A nil items slice means the field was absent; an empty slice is accepted.
func NewReservationRequest(name string, phone string, date string, timeSlot string, guests int64, items []OrderItem, total int64) (ReservationRequest, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return ReservationRequest{}, fmt.Errorf("%w: empty value", ErrInvalidName)
	}
	slot, err := NewSlot(date, timeSlot)
	if err != nil {
		return ReservationRequest{}, err
	}
	guestCount, err := NewGuestCount(guests)
	if err != nil {
		return ReservationRequest{}, err
	}
	if items == nil {
		return ReservationRequest{}, fmt.Errorf("%w: missing", ErrInvalidItems)
	}
	amount, err := NewAmountPesos(total)
	if err != nil {
		return ReservationRequest{}, err
	}
	return ReservationRequest{
		Name:   trimmedName,
		Phone:  strings.TrimSpace(phone),
		Slot:   slot,
		Guests: guestCount,
		Items:  append([]OrderItem{}, items...),
		Total:  amount,
	}, nil
}

// Reservation is a stored reservation record.
type Reservation struct {
	ID        ReservationID
	Name      string
	Phone     string
	Date      string
	TimeSlot  string
	Guests    int64
	Items     []OrderItem
	Total     int64
	CreatedAt time.Time
}

// CapacityCheck is the outcome of a capacity evaluation for a slot.
type CapacityCheck struct {
	Allowed     bool
	Available   int64
	Reserved    int64
	MaxCapacity int64
}

// AdminAccount is the administrator identity. Password holds the stored hash.
type AdminAccount struct {
	ID           int64
	Username     string
	Password     string
	CurrentToken *SessionToken
}

// SessionToken is an opaque bearer credential.
type SessionToken struct {
	value string
}

// NewSessionToken wraps a presented token. An empty value is a missing credential.
func NewSessionToken(raw string) (SessionToken, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SessionToken{}, ErrMissingCredential
	}
	return SessionToken{value: trimmed}, nil
}

// String returns the token text.
func (token SessionToken) String() string {
	return token.value
}

// Dish is a menu entry.
type Dish struct {
	ID          int64
	Name        string
	Category    string
	Price       int64
	Description string
	Image       string
	CreatedAt   time.Time
}

// ParseDishID parses a dish id from its decimal form.
func ParseDishID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDishID, raw)
	}
	return value, nil
}

// NewDish validates a dish before insertion.
func NewDish(name string, category string, price int64, description string, image string) (Dish, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Dish{}, fmt.Errorf("%w: empty dish name", ErrInvalidName)
	}
	if _, err := NewAmountPesos(price); err != nil {
		return Dish{}, err
	}
	return Dish{
		Name:        trimmedName,
		Category:    strings.TrimSpace(category),
		Price:       price,
		Description: description,
		Image:       image,
	}, nil
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	LockSlot(ctx context.Context, slot Slot) error

	GetConfigEntry(ctx context.Context, key ConfigKey) (string, error)
	ListConfigEntries(ctx context.Context) (map[ConfigKey]string, error)
	UpsertConfigEntry(ctx context.Context, key ConfigKey, value string) error
	InsertConfigEntryIfAbsent(ctx context.Context, key ConfigKey, value string) error

	SumGuests(ctx context.Context, slot Slot) (int64, error)
	InsertReservation(ctx context.Context, request ReservationRequest, createdAt time.Time) (ReservationID, error)
	ListReservations(ctx context.Context) ([]Reservation, error)
	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)
	DeleteReservation(ctx context.Context, id ReservationID) error

	GetAdminByUsername(ctx context.Context, username string) (AdminAccount, error)
	GetAdminByToken(ctx context.Context, token SessionToken) (AdminAccount, error)
	InsertAdminIfAbsent(ctx context.Context, username string, passwordHash string) error
	SetAdminToken(ctx context.Context, adminID int64, token SessionToken) error
	ClearAdminTokens(ctx context.Context) error
	SetAdminPassword(ctx context.Context, adminID int64, passwordHash string) error

	ListDishes(ctx context.Context) ([]Dish, error)
	InsertDish(ctx context.Context, dish Dish, createdAt time.Time) (int64, error)
	DeleteDish(ctx context.Context, id int64) error
}
