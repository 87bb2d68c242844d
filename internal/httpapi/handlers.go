package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidPayload     = "invalid_payload"
	errorCodeValidation         = "validation_failed"
	errorCodeTooLate            = "too_late"
	errorCodeCapacityExceeded   = "capacity_exceeded"
	errorCodeMissingCredentials = "missing_credentials"
	errorCodeInvalidSession     = "invalid_session"
	errorCodeInvalidCredentials = "invalid_credentials"
	errorCodeNotFound           = "not_found"
	errorCodePayloadTooLarge    = "payload_too_large"
	errorCodeRateLimited        = "rate_limited"
	errorCodeInternal           = "internal_error"
)

type httpHandler struct {
	logger  *zap.Logger
	service BookingService
	cfg     Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	token, err := handler.service.Login(requestCtx, request.Username, request.Password)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "OK", "token": token.String()})
}

func (handler *httpHandler) handleLogout(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.Logout(requestCtx); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (handler *httpHandler) handleChangePassword(ctx *gin.Context) {
	account, ok := adminFromContext(ctx)
	if !ok {
		handler.respondError(ctx, booking.ErrMissingCredential)
		return
	}
	var request changePasswordRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.ChangePassword(requestCtx, account, request.CurrentPassword, request.NewPassword); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (handler *httpHandler) handleGetConfig(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.AllConfig(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, entries)
}

func (handler *httpHandler) handleSetConfig(ctx *gin.Context) {
	key, err := booking.NewConfigKey(ctx.Param("key"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request setConfigRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	if len(request.Value) == 0 {
		handler.respondError(ctx, fmt.Errorf("%w: value is required", booking.ErrInvalidConfigValue))
		return
	}
	var value booking.ConfigValue
	if err := json.Unmarshal(request.Value, &value); err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.SetConfig(requestCtx, key, value); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "saved", "key": key.String(), "value": value})
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	date, err := booking.NewSlotDate(ctx.Query("date"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var timeSlots []booking.TimeSlot
	if raw := ctx.Query("timeSlot"); raw != "" {
		timeSlot, err := booking.NewTimeSlot(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		timeSlots = append(timeSlots, timeSlot)
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	availability, err := handler.service.Availability(requestCtx, date, timeSlots)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	slots := make([]slotAvailabilityPayload, 0, len(availability))
	for _, slot := range availability {
		slots = append(slots, slotAvailabilityPayload{
			TimeSlot:    slot.TimeSlot.String(),
			MaxCapacity: slot.MaxCapacity,
			Reserved:    slot.Reserved,
			Available:   slot.Available,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"date": date.String(), "slots": slots})
}

func (handler *httpHandler) handleCreateReservation(ctx *gin.Context) {
	var payload createReservationRequest
	if !handler.bindJSON(ctx, &payload) {
		return
	}
	request, err := booking.NewReservationRequest(payload.Name, payload.Phone, payload.Date, payload.TimeSlot,
		int64(payload.Guests), payload.Items, int64(payload.Total))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservationID, check, err := handler.service.CreateReservation(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"message":   "reservation created",
		"id":        reservationID.Int64(),
		"available": check.Available,
	})
}

func (handler *httpHandler) handleListReservations(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservations, err := handler.service.ListReservations(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]reservationPayload, 0, len(reservations))
	for _, reservation := range reservations {
		payload = append(payload, toReservationPayload(reservation))
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) handleGetReservation(ctx *gin.Context) {
	reservationID, err := booking.ParseReservationID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.GetReservation(requestCtx, reservationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toReservationPayload(reservation))
}

func (handler *httpHandler) handleDeleteReservation(ctx *gin.Context) {
	reservationID, err := booking.ParseReservationID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteReservation(requestCtx, reservationID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (handler *httpHandler) handleListDishes(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	dishes, err := handler.service.ListDishes(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]dishPayload, 0, len(dishes))
	for _, dish := range dishes {
		payload = append(payload, toDishPayload(dish))
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) handleCreateDish(ctx *gin.Context) {
	var request createDishRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	var image string
	if request.Image != nil {
		image = *request.Image
	}
	dish, err := booking.NewDish(request.Name, request.Category, int64(request.Price), request.Description, image)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	dishID, err := handler.service.CreateDish(requestCtx, dish)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "created", "id": dishID})
}

func (handler *httpHandler) handleDeleteDish(ctx *gin.Context) {
	dishID, err := booking.ParseDishID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteDish(requestCtx, dishID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (handler *httpHandler) bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, errorResponse(errorCodePayloadTooLarge, "request body too large"))
			return false
		}
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return false
	}
	return true
}

// respondError maps domain errors onto status codes. Anything unrecognised is a storage
// failure: it is logged with detail and the client gets a generic message.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	var capacityError booking.CapacityExceededError
	switch {
	case errors.As(err, &capacityError):
		body := errorResponse(errorCodeCapacityExceeded, "not enough seats for the selected slot")
		body["available"] = capacityError.Available
		ctx.JSON(http.StatusConflict, body)
	case errors.Is(err, booking.ErrTooLate):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeTooLate, err.Error()))
	case errors.Is(err, booking.ErrValidation):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeValidation, err.Error()))
	case errors.Is(err, booking.ErrMissingCredential):
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeMissingCredentials, "authorization required"))
	case errors.Is(err, booking.ErrInvalidSession):
		ctx.JSON(http.StatusForbidden, errorResponse(errorCodeInvalidSession, "session expired"))
	case errors.Is(err, booking.ErrInvalidCredentials):
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeInvalidCredentials, "invalid credentials"))
	case errors.Is(err, booking.ErrReservationNotFound), errors.Is(err, booking.ErrDishNotFound),
		errors.Is(err, booking.ErrConfigNotFound), errors.Is(err, booking.ErrAdminNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, err.Error()))
	default:
		handler.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(contextKeyRequestID)),
			zap.Error(err),
		)
		ctx.JSON(http.StatusInternalServerError, errorResponse(errorCodeInternal, "internal error"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
