package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	maxTransactionAttempts  = 3
	errorOperationStore     = "store"
	errorSubjectAdmin       = "admin"
	errorSubjectConfig      = "config"
	errorSubjectDish        = "dish"
	errorSubjectReservation = "reservation"
	errorSubjectSchema      = "schema"
	errorSubjectSlot        = "slot"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeClearTokens    = "clear_tokens"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeLookup         = "lookup"
	errorCodeSumGuests      = "sum_guests"
	errorCodeUpdatePassword = "update_password"
	errorCodeUpdateToken    = "update_token"
	errorCodeUpsert         = "upsert"

	sqlAdvisorySlotLock = `select pg_advisory_xact_lock(hashtext($1))`

	sqlSelectConfigEntry   = `select coalesce(value,'') from config where key = $1`
	sqlListConfigEntries   = `select key, coalesce(value,'') from config order by id`
	sqlUpsertConfigEntry   = `insert into config(key, value) values ($1, $2) on conflict (key) do update set value = excluded.value`
	sqlInsertConfigIfEmpty = `insert into config(key, value) values ($1, $2) on conflict (key) do nothing`

	sqlSumGuests = `
		select coalesce(sum(guests),0)::bigint from reservations
		where date = $1 and "timeSlot" = $2
	`

	sqlInsertReservation = `
		insert into reservations(name, phone, date, "timeSlot", guests, items, total, "createdAt")
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id
	`

	sqlReservationColumns = `
		select id, coalesce(name,''), coalesce(phone,''), coalesce(date,''), coalesce("timeSlot",''),
			coalesce(guests,0), items, coalesce(total,0), "createdAt"
		from reservations
	`
	sqlListReservations   = sqlReservationColumns + ` order by date desc, id`
	sqlSelectReservation  = sqlReservationColumns + ` where id = $1`
	sqlDeleteReservation  = `delete from reservations where id = $1`
	sqlAdminColumns       = `select id, username, password, token from admin`
	sqlSelectAdminByName  = sqlAdminColumns + ` where username = $1`
	sqlSelectAdminByToken = sqlAdminColumns + ` where token = $1`
	sqlInsertAdminIfEmpty = `insert into admin(username, password) values ($1, $2) on conflict (username) do nothing`
	sqlUpdateAdminToken   = `update admin set token = $2 where id = $1`
	sqlClearAdminTokens   = `update admin set token = null`
	sqlUpdateAdminPass    = `update admin set password = $2 where id = $1`

	sqlListDishes = `
		select id, coalesce(name,''), coalesce(category,''), coalesce(price,0),
			coalesce(description,''), coalesce(image,''), "createdAt"
		from dishes
		order by id desc
	`
	sqlInsertDish = `
		insert into dishes(name, category, price, description, image, "createdAt")
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`
	sqlDeleteDish = `delete from dishes where id = $1`
)

// schemaStatements matches the layout gormstore creates, so either store can open the same database.
var schemaStatements = []string{
	`create table if not exists config (id bigserial primary key, key text not null, value text)`,
	`create unique index if not exists idx_config_key on config(key)`,
	`create table if not exists reservations (
		id bigserial primary key, name text, phone text, date text, "timeSlot" text,
		guests bigint, items text, total bigint, "createdAt" timestamptz
	)`,
	`create index if not exists idx_reservations_slot on reservations(date, "timeSlot")`,
	`create table if not exists admin (id bigserial primary key, username text not null, password text not null, token text)`,
	`create unique index if not exists idx_admin_username on admin(username)`,
	`create index if not exists idx_admin_token on admin(token)`,
	`create table if not exists dishes (
		id bigserial primary key, name text, category text, price bigint,
		description text, image text, "createdAt" timestamptz
	)`,
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store with pgx. A Store returned by WithTx runs every
// statement inside that transaction.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Connect opens a pool for dsn and verifies the server is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return connectWithConfig(ctx, poolConfig)
}

func connectWithConfig(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables and indexes when they are absent.
func (store *Store) EnsureSchema(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := store.db.Exec(ctx, statement); err != nil {
			return wrapStoreError(errorSubjectSchema, errorCodeCreate, err)
		}
	}
	return nil
}

// WithTx runs fn in a transaction, retrying serialization failures and deadlocks.
// Nested calls reuse the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	var err error
	for attempt := 0; attempt < maxTransactionAttempts; attempt++ {
		err = store.runTx(ctx, fn)
		if !isTransientConflict(err) {
			return err
		}
	}
	return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
}

func (store *Store) runTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{pool: store.pool, db: tx, inTx: true}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// LockSlot takes a transaction-scoped advisory lock keyed on the slot.
func (store *Store) LockSlot(ctx context.Context, slot booking.Slot) error {
	if _, err := store.db.Exec(ctx, sqlAdvisorySlotLock, slot.String()); err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeLock, err)
	}
	return nil
}

func (store *Store) GetConfigEntry(ctx context.Context, key booking.ConfigKey) (string, error) {
	var value string
	err := store.db.QueryRow(ctx, sqlSelectConfigEntry, key.String()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", wrapStoreError(errorSubjectConfig, errorCodeGet, booking.ErrConfigNotFound)
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectConfig, errorCodeGet, err)
	}
	return value, nil
}

func (store *Store) ListConfigEntries(ctx context.Context) (map[booking.ConfigKey]string, error) {
	rows, err := store.db.Query(ctx, sqlListConfigEntries)
	if err != nil {
		return nil, wrapStoreError(errorSubjectConfig, errorCodeList, err)
	}
	defer rows.Close()
	entries := make(map[booking.ConfigKey]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapStoreError(errorSubjectConfig, errorCodeList, err)
		}
		entries[booking.ConfigKey(key)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectConfig, errorCodeList, err)
	}
	return entries, nil
}

func (store *Store) UpsertConfigEntry(ctx context.Context, key booking.ConfigKey, value string) error {
	if _, err := store.db.Exec(ctx, sqlUpsertConfigEntry, key.String(), value); err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) InsertConfigEntryIfAbsent(ctx context.Context, key booking.ConfigKey, value string) error {
	if _, err := store.db.Exec(ctx, sqlInsertConfigIfEmpty, key.String(), value); err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SumGuests(ctx context.Context, slot booking.Slot) (int64, error) {
	var total int64
	err := store.db.QueryRow(ctx, sqlSumGuests, slot.Date.String(), slot.TimeSlot.String()).Scan(&total)
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeSumGuests, err)
	}
	return total, nil
}

func (store *Store) InsertReservation(ctx context.Context, request booking.ReservationRequest, createdAt time.Time) (booking.ReservationID, error) {
	encodedItems, err := booking.EncodeOrderItems(request.Items)
	if err != nil {
		return 0, err
	}
	var id int64
	err = store.db.QueryRow(ctx, sqlInsertReservation,
		request.Name,
		request.Phone,
		request.Slot.Date.String(),
		request.Slot.TimeSlot.String(),
		request.Guests.Int64(),
		encodedItems,
		request.Total.Int64(),
		createdAt,
	).Scan(&id)
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeInsert, err)
	}
	return booking.ReservationID(id), nil
}

func (store *Store) ListReservations(ctx context.Context) ([]booking.Reservation, error) {
	rows, err := store.db.Query(ctx, sqlListReservations)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	reservations := make([]booking.Reservation, 0, 32)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return reservations, nil
}

func (store *Store) GetReservation(ctx context.Context, id booking.ReservationID) (booking.Reservation, error) {
	reservation, err := scanReservation(store.db.QueryRow(ctx, sqlSelectReservation, id.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, booking.ErrReservationNotFound)
	}
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	return reservation, nil
}

func (store *Store) DeleteReservation(ctx context.Context, id booking.ReservationID) error {
	tag, err := store.db.Exec(ctx, sqlDeleteReservation, id.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeDelete, booking.ErrReservationNotFound)
	}
	return nil
}

func (store *Store) GetAdminByUsername(ctx context.Context, username string) (booking.AdminAccount, error) {
	return store.getAdmin(ctx, sqlSelectAdminByName, username)
}

func (store *Store) GetAdminByToken(ctx context.Context, token booking.SessionToken) (booking.AdminAccount, error) {
	return store.getAdmin(ctx, sqlSelectAdminByToken, token.String())
}

func (store *Store) getAdmin(ctx context.Context, query string, argument string) (booking.AdminAccount, error) {
	var (
		account booking.AdminAccount
		token   *string
	)
	err := store.db.QueryRow(ctx, query, argument).Scan(&account.ID, &account.Username, &account.Password, &token)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, booking.ErrAdminNotFound)
	}
	if err != nil {
		return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, err)
	}
	if token != nil && *token != "" {
		sessionToken, err := booking.NewSessionToken(*token)
		if err != nil {
			return booking.AdminAccount{}, wrapStoreError(errorSubjectAdmin, errorCodeLookup, err)
		}
		account.CurrentToken = &sessionToken
	}
	return account, nil
}

func (store *Store) InsertAdminIfAbsent(ctx context.Context, username string, passwordHash string) error {
	if _, err := store.db.Exec(ctx, sqlInsertAdminIfEmpty, username, passwordHash); err != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SetAdminToken(ctx context.Context, adminID int64, token booking.SessionToken) error {
	return store.updateAdmin(ctx, sqlUpdateAdminToken, errorCodeUpdateToken, adminID, token.String())
}

func (store *Store) ClearAdminTokens(ctx context.Context) error {
	if _, err := store.db.Exec(ctx, sqlClearAdminTokens); err != nil {
		return wrapStoreError(errorSubjectAdmin, errorCodeClearTokens, err)
	}
	return nil
}

func (store *Store) SetAdminPassword(ctx context.Context, adminID int64, passwordHash string) error {
	return store.updateAdmin(ctx, sqlUpdateAdminPass, errorCodeUpdatePassword, adminID, passwordHash)
}

func (store *Store) updateAdmin(ctx context.Context, query string, code string, adminID int64, value string) error {
	tag, err := store.db.Exec(ctx, query, adminID, value)
	if err != nil {
		return wrapStoreError(errorSubjectAdmin, code, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAdmin, code, booking.ErrAdminNotFound)
	}
	return nil
}

func (store *Store) ListDishes(ctx context.Context) ([]booking.Dish, error) {
	rows, err := store.db.Query(ctx, sqlListDishes)
	if err != nil {
		return nil, wrapStoreError(errorSubjectDish, errorCodeList, err)
	}
	defer rows.Close()
	dishes := make([]booking.Dish, 0, 16)
	for rows.Next() {
		var (
			dish      booking.Dish
			createdAt *time.Time
		)
		if err := rows.Scan(&dish.ID, &dish.Name, &dish.Category, &dish.Price, &dish.Description, &dish.Image, &createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectDish, errorCodeList, err)
		}
		if createdAt != nil {
			dish.CreatedAt = createdAt.UTC()
		}
		dishes = append(dishes, dish)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectDish, errorCodeList, err)
	}
	return dishes, nil
}

func (store *Store) InsertDish(ctx context.Context, dish booking.Dish, createdAt time.Time) (int64, error) {
	var id int64
	err := store.db.QueryRow(ctx, sqlInsertDish,
		dish.Name,
		dish.Category,
		dish.Price,
		dish.Description,
		dish.Image,
		createdAt,
	).Scan(&id)
	if err != nil {
		return 0, wrapStoreError(errorSubjectDish, errorCodeInsert, err)
	}
	return id, nil
}

func (store *Store) DeleteDish(ctx context.Context, id int64) error {
	tag, err := store.db.Exec(ctx, sqlDeleteDish, id)
	if err != nil {
		return wrapStoreError(errorSubjectDish, errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectDish, errorCodeDelete, booking.ErrDishNotFound)
	}
	return nil
}

func scanReservation(row pgx.Row) (booking.Reservation, error) {
	var (
		reservation booking.Reservation
		id          int64
		items       *string
		createdAt   *time.Time
	)
	err := row.Scan(
		&id,
		&reservation.Name,
		&reservation.Phone,
		&reservation.Date,
		&reservation.TimeSlot,
		&reservation.Guests,
		&items,
		&reservation.Total,
		&createdAt,
	)
	if err != nil {
		return booking.Reservation{}, err
	}
	reservation.ID = booking.ReservationID(id)
	var rawItems string
	if items != nil {
		rawItems = *items
	}
	reservation.Items = booking.DecodeOrderItems(rawItems)
	if createdAt != nil {
		reservation.CreatedAt = createdAt.UTC()
	}
	return reservation, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}
