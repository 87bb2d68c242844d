package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
)

// flexibleInt accepts a JSON number or a numeric string. The admin form posts prices as strings.
type flexibleInt int64

func (value *flexibleInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*value = 0
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		trimmed = []byte(strings.TrimSpace(text))
	}
	parsed, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", data)
	}
	*value = flexibleInt(parsed)
	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type setConfigRequest struct {
	Value json.RawMessage `json:"value"`
}

type createReservationRequest struct {
	Name     string              `json:"name"`
	Phone    string              `json:"phone"`
	Date     string              `json:"date"`
	TimeSlot string              `json:"timeSlot"`
	Guests   flexibleInt         `json:"guests"`
	Items    []booking.OrderItem `json:"items"`
	Total    flexibleInt         `json:"total"`
}

type createDishRequest struct {
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Price       flexibleInt `json:"price"`
	Description string      `json:"description"`
	Image       *string     `json:"image"`
}

type reservationPayload struct {
	ID        int64               `json:"id"`
	Name      string              `json:"name"`
	Phone     string              `json:"phone"`
	Date      string              `json:"date"`
	TimeSlot  string              `json:"timeSlot"`
	Guests    int64               `json:"guests"`
	Items     []booking.OrderItem `json:"items"`
	Total     int64               `json:"total"`
	CreatedAt string              `json:"createdAt"`
}

type dishPayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	Image       string `json:"image"`
	CreatedAt   string `json:"createdAt"`
}

type slotAvailabilityPayload struct {
	TimeSlot    string `json:"timeSlot"`
	MaxCapacity int64  `json:"maxCapacity"`
	Reserved    int64  `json:"reserved"`
	Available   int64  `json:"available"`
}

func toReservationPayload(reservation booking.Reservation) reservationPayload {
	items := reservation.Items
	if items == nil {
		items = []booking.OrderItem{}
	}
	return reservationPayload{
		ID:        reservation.ID.Int64(),
		Name:      reservation.Name,
		Phone:     reservation.Phone,
		Date:      reservation.Date,
		TimeSlot:  reservation.TimeSlot,
		Guests:    reservation.Guests,
		Items:     items,
		Total:     reservation.Total,
		CreatedAt: formatTimestamp(reservation.CreatedAt),
	}
}

func toDishPayload(dish booking.Dish) dishPayload {
	return dishPayload{
		ID:          dish.ID,
		Name:        dish.Name,
		Category:    dish.Category,
		Price:       dish.Price,
		Description: dish.Description,
		Image:       dish.Image,
		CreatedAt:   formatTimestamp(dish.CreatedAt),
	}
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
