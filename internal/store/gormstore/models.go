package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Table and column names follow the schema the site has always used, so an existing
// database file opens without a migration step.

// ConfigEntry represents the config table.
type ConfigEntry struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Key   string `gorm:"column:key;not null;uniqueIndex:idx_config_key"`
	Value string `gorm:"column:value;type:text"`
}

func (ConfigEntry) TableName() string { return "config" }

// Reservation mirrors the reservations table.
type Reservation struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string          `gorm:"column:name"`
	Phone     string          `gorm:"column:phone"`
	Date      string          `gorm:"column:date;index:idx_reservations_slot,priority:1"`
	TimeSlot  string          `gorm:"column:timeSlot;index:idx_reservations_slot,priority:2"`
	Guests    int64           `gorm:"column:guests"`
	Items     *datatypes.JSON `gorm:"column:items;type:text"`
	Total     int64           `gorm:"column:total"`
	CreatedAt time.Time       `gorm:"column:createdAt"`
}

func (Reservation) TableName() string { return "reservations" }

// AdminAccount mirrors the admin table. Token is NULL while logged out.
type AdminAccount struct {
	ID       int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Username string  `gorm:"column:username;not null;uniqueIndex:idx_admin_username"`
	Password string  `gorm:"column:password;not null"`
	Token    *string `gorm:"column:token;index:idx_admin_token"`
}

func (AdminAccount) TableName() string { return "admin" }

// Dish mirrors the dishes table.
type Dish struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name"`
	Category    string    `gorm:"column:category"`
	Price       int64     `gorm:"column:price"`
	Description string    `gorm:"column:description"`
	Image       string    `gorm:"column:image;type:text"`
	CreatedAt   time.Time `gorm:"column:createdAt"`
}

func (Dish) TableName() string { return "dishes" }

// Models lists every table managed by the store.
func Models() []any {
	return []any{&ConfigEntry{}, &Reservation{}, &AdminAccount{}, &Dish{}}
}
