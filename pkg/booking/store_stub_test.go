package booking

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2025, time.May, 30, 15, 0, 0, 0, time.UTC)

type stubStore struct {
	config        map[ConfigKey]string
	reservations  map[ReservationID]Reservation
	nextID        ReservationID
	admins        map[int64]AdminAccount
	dishes        map[int64]Dish
	nextDishID    int64
	lockedSlots   []Slot
	transactions  int
	configUpserts int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		config:       make(map[ConfigKey]string),
		reservations: make(map[ReservationID]Reservation),
		admins:       make(map[int64]AdminAccount),
		dishes:       make(map[int64]Dish),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.transactions++
	return fn(ctx, store)
}

func (store *stubStore) LockSlot(ctx context.Context, slot Slot) error {
	store.lockedSlots = append(store.lockedSlots, slot)
	return nil
}

func (store *stubStore) GetConfigEntry(ctx context.Context, key ConfigKey) (string, error) {
	value, ok := store.config[key]
	if !ok {
		return "", ErrConfigNotFound
	}
	return value, nil
}

func (store *stubStore) ListConfigEntries(ctx context.Context) (map[ConfigKey]string, error) {
	entries := make(map[ConfigKey]string, len(store.config))
	for key, value := range store.config {
		entries[key] = value
	}
	return entries, nil
}

func (store *stubStore) UpsertConfigEntry(ctx context.Context, key ConfigKey, value string) error {
	store.configUpserts++
	store.config[key] = value
	return nil
}

func (store *stubStore) InsertConfigEntryIfAbsent(ctx context.Context, key ConfigKey, value string) error {
	if _, exists := store.config[key]; !exists {
		store.config[key] = value
	}
	return nil
}

func (store *stubStore) SumGuests(ctx context.Context, slot Slot) (int64, error) {
	var sum int64
	for _, reservation := range store.reservations {
		if reservation.Date == slot.Date.String() && reservation.TimeSlot == slot.TimeSlot.String() {
			sum += reservation.Guests
		}
	}
	return sum, nil
}

func (store *stubStore) InsertReservation(ctx context.Context, request ReservationRequest, createdAt time.Time) (ReservationID, error) {
	store.nextID++
	store.reservations[store.nextID] = Reservation{
		ID:        store.nextID,
		Name:      request.Name,
		Phone:     request.Phone,
		Date:      request.Slot.Date.String(),
		TimeSlot:  request.Slot.TimeSlot.String(),
		Guests:    request.Guests.Int64(),
		Items:     request.Items,
		Total:     request.Total.Int64(),
		CreatedAt: createdAt,
	}
	return store.nextID, nil
}

func (store *stubStore) ListReservations(ctx context.Context) ([]Reservation, error) {
	out := make([]Reservation, 0, len(store.reservations))
	for _, reservation := range store.reservations {
		out = append(out, reservation)
	}
	sort.Slice(out, func(left, right int) bool {
		if out[left].Date != out[right].Date {
			return out[left].Date > out[right].Date
		}
		return out[left].ID < out[right].ID
	})
	return out, nil
}

func (store *stubStore) GetReservation(ctx context.Context, id ReservationID) (Reservation, error) {
	reservation, ok := store.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return reservation, nil
}

func (store *stubStore) DeleteReservation(ctx context.Context, id ReservationID) error {
	if _, ok := store.reservations[id]; !ok {
		return ErrReservationNotFound
	}
	delete(store.reservations, id)
	return nil
}

func (store *stubStore) GetAdminByUsername(ctx context.Context, username string) (AdminAccount, error) {
	for _, account := range store.admins {
		if account.Username == username {
			return account, nil
		}
	}
	return AdminAccount{}, ErrAdminNotFound
}

func (store *stubStore) GetAdminByToken(ctx context.Context, token SessionToken) (AdminAccount, error) {
	for _, account := range store.admins {
		if account.CurrentToken != nil && *account.CurrentToken == token {
			return account, nil
		}
	}
	return AdminAccount{}, ErrAdminNotFound
}

func (store *stubStore) InsertAdminIfAbsent(ctx context.Context, username string, passwordHash string) error {
	if _, err := store.GetAdminByUsername(ctx, username); err == nil {
		return nil
	}
	adminID := int64(len(store.admins) + 1)
	store.admins[adminID] = AdminAccount{ID: adminID, Username: username, Password: passwordHash}
	return nil
}

func (store *stubStore) SetAdminToken(ctx context.Context, adminID int64, token SessionToken) error {
	account, ok := store.admins[adminID]
	if !ok {
		return ErrAdminNotFound
	}
	account.CurrentToken = &token
	store.admins[adminID] = account
	return nil
}

func (store *stubStore) ClearAdminTokens(ctx context.Context) error {
	for adminID, account := range store.admins {
		account.CurrentToken = nil
		store.admins[adminID] = account
	}
	return nil
}

func (store *stubStore) SetAdminPassword(ctx context.Context, adminID int64, passwordHash string) error {
	account, ok := store.admins[adminID]
	if !ok {
		return ErrAdminNotFound
	}
	account.Password = passwordHash
	store.admins[adminID] = account
	return nil
}

func (store *stubStore) ListDishes(ctx context.Context) ([]Dish, error) {
	out := make([]Dish, 0, len(store.dishes))
	for _, dish := range store.dishes {
		out = append(out, dish)
	}
	sort.Slice(out, func(left, right int) bool { return out[left].ID > out[right].ID })
	return out, nil
}

func (store *stubStore) InsertDish(ctx context.Context, dish Dish, createdAt time.Time) (int64, error) {
	store.nextDishID++
	dish.ID = store.nextDishID
	dish.CreatedAt = createdAt
	store.dishes[dish.ID] = dish
	return dish.ID, nil
}

func (store *stubStore) DeleteDish(ctx context.Context, id int64) error {
	if _, ok := store.dishes[id]; !ok {
		return ErrDishNotFound
	}
	delete(store.dishes, id)
	return nil
}

func (store *stubStore) seedReservation(test *testing.T, date string, timeSlot string, guests int64) {
	test.Helper()
	request := mustReservationRequest(test, "Seeded", date, timeSlot, guests)
	if _, err := store.InsertReservation(context.Background(), request, fixedNow); err != nil {
		test.Fatalf("seed reservation: %v", err)
	}
}

func (store *stubStore) mustAdmin(test *testing.T, username string) AdminAccount {
	test.Helper()
	account, err := store.GetAdminByUsername(context.Background(), username)
	if err != nil {
		test.Fatalf("admin %s: %v", username, err)
	}
	return account
}

type failingStore struct {
	*stubStore
	err error
}

func newFailingStore(test *testing.T, err error) *failingStore {
	test.Helper()
	return &failingStore{stubStore: newStubStore(test), err: err}
}

func (store *failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *failingStore) GetConfigEntry(ctx context.Context, key ConfigKey) (string, error) {
	return "", store.err
}

func (store *failingStore) ListConfigEntries(ctx context.Context) (map[ConfigKey]string, error) {
	return nil, store.err
}

func (store *failingStore) UpsertConfigEntry(ctx context.Context, key ConfigKey, value string) error {
	return store.err
}

func (store *failingStore) SumGuests(ctx context.Context, slot Slot) (int64, error) {
	return 0, store.err
}

func (store *failingStore) DeleteReservation(ctx context.Context, id ReservationID) error {
	return store.err
}

func (store *failingStore) GetAdminByToken(ctx context.Context, token SessionToken) (AdminAccount, error) {
	return AdminAccount{}, store.err
}

func (store *failingStore) InsertDish(ctx context.Context, dish Dish, createdAt time.Time) (int64, error) {
	return 0, store.err
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithPasswordCost(bcrypt.MinCost)}, options...)
	service, err := NewService(store, func() time.Time { return fixedNow }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustBootstrappedService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service := mustNewService(test, store, options...)
	if err := service.Bootstrap(context.Background(), DefaultAdminPassword); err != nil {
		test.Fatalf("bootstrap: %v", err)
	}
	return service
}

func mustSlot(test *testing.T, date string, timeSlot string) Slot {
	test.Helper()
	slot, err := NewSlot(date, timeSlot)
	if err != nil {
		test.Fatalf("slot %s %s: %v", date, timeSlot, err)
	}
	return slot
}

func mustReservationRequest(test *testing.T, name string, date string, timeSlot string, guests int64) ReservationRequest {
	test.Helper()
	request, err := NewReservationRequest(name, "3001234567", date, timeSlot, guests, []OrderItem{}, 0)
	if err != nil {
		test.Fatalf("reservation request: %v", err)
	}
	return request
}

func mustLogin(test *testing.T, service *Service, username string, password string) SessionToken {
	test.Helper()
	token, err := service.Login(context.Background(), username, password)
	if err != nil {
		test.Fatalf("login %s: %v", username, err)
	}
	return token
}

type sequenceReader struct {
	next byte
}

// Read fills buffer with a counter so each token drawn from it differs.
func (reader *sequenceReader) Read(buffer []byte) (int, error) {
	reader.next++
	copy(buffer, bytes.Repeat([]byte{reader.next}, len(buffer)))
	return len(buffer), nil
}
