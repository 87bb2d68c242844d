package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dialectPostgres          = "postgres"
	pgSerializationFailure   = "40001"
	pgDeadlockDetected       = "40P01"
	sqliteBusyCode           = 5
	sqliteLockedCode         = 6
	maxTransactionAttempts   = 3
	errorOperationStore      = "store"
	errorSubjectAdmin        = "admin"
	errorSubjectConfig       = "config"
	errorSubjectDish         = "dish"
	errorSubjectReservation  = "reservation"
	errorSubjectSlot         = "slot"
	errorSubjectTransaction  = "transaction"
	errorCodeClearTokens     = "clear_tokens"
	errorCodeCommit          = "commit"
	errorCodeDelete          = "delete"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
	errorCodeList            = "list"
	errorCodeLock            = "lock"
	errorCodeLookup          = "lookup"
	errorCodeSumGuests       = "sum_guests"
	errorCodeUpdatePassword  = "update_password"
	errorCodeUpdateToken     = "update_token"
	errorCodeUpsert          = "upsert"
	sqlAdvisorySlotLock      = "SELECT pg_advisory_xact_lock(hashtext(?))"
	sqlSumGuestsSelectClause = "coalesce(sum(guests),0) as total"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction, retrying when the database reports lock contention.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	var err error
	for attempt := 0; attempt < maxTransactionAttempts; attempt++ {
		err = store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
			return fn(ctx, &Store{db: transaction})
		})
		if !isTransientConflict(err) {
			return err
		}
	}
	return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
}

// LockSlot serialises writers of one slot until the surrounding transaction ends.
// SQLite runs on a single connection, so only PostgreSQL needs an explicit lock.
func (store *Store) LockSlot(ctx context.Context, slot booking.Slot) error {
	if store.db.Dialector.Name() != dialectPostgres {
		return nil
	}
	if err := store.db.WithContext(ctx).Exec(sqlAdvisorySlotLock, slot.String()).Error; err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeLock, err)
	}
	return nil
}

func (store *Store) GetConfigEntry(ctx context.Context, key booking.ConfigKey) (string, error) {
	var entry ConfigEntry
	err := store.db.WithContext(ctx).Where(&ConfigEntry{Key: key.String()}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", wrapStoreError(errorSubjectConfig, errorCodeGet, booking.ErrConfigNotFound)
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectConfig, errorCodeGet, err)
	}
	return entry.Value, nil
}

func (store *Store) ListConfigEntries(ctx context.Context) (map[booking.ConfigKey]string, error) {
	var rows []ConfigEntry
	if err := store.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectConfig, errorCodeList, err)
	}
	entries := make(map[booking.ConfigKey]string, len(rows))
	for _, row := range rows {
		entries[booking.ConfigKey(row.Key)] = row.Value
	}
	return entries, nil
}

func (store *Store) UpsertConfigEntry(ctx context.Context, key booking.ConfigKey, value string) error {
	entry := ConfigEntry{Key: key.String(), Value: value}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&entry).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) InsertConfigEntryIfAbsent(ctx context.Context, key booking.ConfigKey, value string) error {
	entry := ConfigEntry{Key: key.String(), Value: value}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&entry).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SumGuests(ctx context.Context, slot booking.Slot) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Select(sqlSumGuestsSelectClause).
		Where(&Reservation{Date: slot.Date.String(), TimeSlot: slot.TimeSlot.String()}).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeSumGuests, err)
	}
	return sum.Total, nil
}

func (store *Store) InsertReservation(ctx context.Context, request booking.ReservationRequest, createdAt time.Time) (booking.ReservationID, error) {
	encodedItems, err := booking.EncodeOrderItems(request.Items)
	if err != nil {
		return 0, err
	}
	items := datatypes.JSON(encodedItems)
	model := Reservation{
		Name:      request.Name,
		Phone:     request.Phone,
		Date:      request.Slot.Date.String(),
		TimeSlot:  request.Slot.TimeSlot.String(),
		Guests:    request.Guests.Int64(),
		Items:     &items,
		Total:     request.Total.Int64(),
		CreatedAt: createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeInsert, err)
	}
	return booking.ReservationID(model.ID), nil
}

func (store *Store) ListReservations(ctx context.Context) ([]booking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "date"}, Desc: true},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservations = append(reservations, mapReservation(row))
	}
	return reservations, nil
}

func (store *Store) GetReservation(ctx context.Context, id booking.ReservationID) (booking.Reservation, error) {
	var row Reservation
	err := store.db.WithContext(ctx).Where(&Reservation{ID: id.Int64()}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, booking.ErrReservationNotFound)
	}
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	return mapReservation(row), nil
}

func (store *Store) DeleteReservation(ctx context.Context, id booking.ReservationID) error {
	result := store.db.WithContext(ctx).Delete(&Reservation{}, id.Int64())
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeDelete, booking.ErrReservationNotFound)
	}
	return nil
}

func (store *Store) GetAdminByUsername(ctx context.Context, username string) (booking.AdminAccount, error) {
	var row AdminAccount
	err := store.db.WithContext(ctx).Where(map[string]any{"username": username}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, booking.ErrAdminNotFound)
	}
	if err != nil {
		return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, err)
	}
	return mapAdmin(row)
}

func (store *Store) GetAdminByToken(ctx context.Context, token booking.SessionToken) (booking.AdminAccount, error) {
	var row AdminAccount
	err := store.db.WithContext(ctx).Where(map[string]any{"token": token.String()}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, booking.ErrAdminNotFound)
	}
	if err != nil {
		return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, err)
	}
	return mapAdmin(row)
}

func (store *Store) InsertAdminIfAbsent(ctx context.Context, username string, passwordHash string) error {
	row := AdminAccount{Username: username, Password: passwordHash}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "username"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SetAdminToken(ctx context.Context, adminID int64, token booking.SessionToken) error {
	result := store.db.WithContext(ctx).
		Model(&AdminAccount{}).
		Where(&AdminAccount{ID: adminID}).
		Update("token", token.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodeUpdateToken, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAdmin, errorCodeUpdateToken, booking.ErrAdminNotFound)
	}
	return nil
}

func (store *Store) ClearAdminTokens(ctx context.Context) error {
	err := store.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&AdminAccount{}).
		Update("token", gorm.Expr("NULL")).Error
	if err != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodeClearTokens, err)
	}
	return nil
}

func (store *Store) SetAdminPassword(ctx context.Context, adminID int64, passwordHash string) error {
	result := store.db.WithContext(ctx).
		Model(&AdminAccount{}).
		Where(&AdminAccount{ID: adminID}).
		Update("password", passwordHash)
	if result.Error != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodeUpdatePassword, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAdmin, errorCodeUpdatePassword, booking.ErrAdminNotFound)
	}
	return nil
}

func (store *Store) ListDishes(ctx context.Context) ([]booking.Dish, error) {
	var rows []Dish
	if err := store.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectDish, errorCodeList, err)
	}
	dishes := make([]booking.Dish, 0, len(rows))
	for _, row := range rows {
		dishes = append(dishes, booking.Dish{
			ID:          row.ID,
			Name:        row.Name,
			Category:    row.Category,
			Price:       row.Price,
			Description: row.Description,
			Image:       row.Image,
			CreatedAt:   row.CreatedAt,
		})
	}
	return dishes, nil
}

func (store *Store) InsertDish(ctx context.Context, dish booking.Dish, createdAt time.Time) (int64, error) {
	row := Dish{
		Name:        dish.Name,
		Category:    dish.Category,
		Price:       dish.Price,
		Description: dish.Description,
		Image:       dish.Image,
		CreatedAt:   createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, wrapStoreError(errorSubjectDish, errorCodeInsert, err)
	}
	return row.ID, nil
}

func (store *Store) DeleteDish(ctx context.Context, id int64) error {
	result := store.db.WithContext(ctx).Delete(&Dish{}, id)
	if result.Error != nil {
		return wrapStoreError(errorSubjectDish, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectDish, errorCodeDelete, booking.ErrDishNotFound)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapReservation(row Reservation) booking.Reservation {
	var rawItems string
	if row.Items != nil {
		rawItems = string(*row.Items)
	}
	return booking.Reservation{
		ID:        booking.ReservationID(row.ID),
		Name:      row.Name,
		Phone:     row.Phone,
		Date:      row.Date,
		TimeSlot:  row.TimeSlot,
		Guests:    row.Guests,
		Items:     booking.DecodeOrderItems(rawItems),
		Total:     row.Total,
		CreatedAt: row.CreatedAt,
	}
}

func mapAdmin(row AdminAccount) (booking.AdminAccount, error) {
	account := booking.AdminAccount{
		ID:       row.ID,
		Username: row.Username,
		Password: row.Password,
	}
	if row.Token != nil && *row.Token != "" {
		token, err := booking.NewSessionToken(*row.Token)
		if err != nil {
			return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, err)
		}
		account.CurrentToken = &token
	}
	return account, nil
}

func isTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}
