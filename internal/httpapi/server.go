package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contextKeyAdmin     = "admin_account"
	contextKeyRequestID = "request_id"
	headerRequestID     = "X-Request-ID"
	headerAuthorize     = "Authorization"
	bearerScheme        = "Bearer"
	apiPathPrefix       = "/api/"
	readHeaderTimeout   = 10 * time.Second
)

// BookingService is the domain surface the HTTP layer drives.
type BookingService interface {
	Authenticate(ctx context.Context, rawToken string) (booking.AdminAccount, error)
	Login(ctx context.Context, username string, password string) (booking.SessionToken, error)
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, account booking.AdminAccount, currentPassword string, newPassword string) error

	AllConfig(ctx context.Context) (map[booking.ConfigKey]booking.ConfigValue, error)
	SetConfig(ctx context.Context, key booking.ConfigKey, value booking.ConfigValue) error

	CreateReservation(ctx context.Context, request booking.ReservationRequest) (booking.ReservationID, booking.CapacityCheck, error)
	ListReservations(ctx context.Context) ([]booking.Reservation, error)
	GetReservation(ctx context.Context, id booking.ReservationID) (booking.Reservation, error)
	DeleteReservation(ctx context.Context, id booking.ReservationID) error
	Availability(ctx context.Context, date booking.SlotDate, timeSlots []booking.TimeSlot) ([]booking.SlotAvailability, error)

	ListDishes(ctx context.Context) ([]booking.Dish, error)
	CreateDish(ctx context.Context, dish booking.Dish) (int64, error)
	DeleteDish(ctx context.Context, dishID int64) error
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, service BookingService, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(cfg, service, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("manacoffee api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine. cfg must already be validated.
func NewRouter(cfg Config, service BookingService, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(securityHeaders())
	router.Use(cors.New(corsConfig(cfg)))
	router.Use(limitBody(cfg.MaxBodyBytes))

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	requireAdmin := handler.requireAdmin()
	throttleLogin := newLoginLimiter(cfg.LoginRatePerMinute).middleware()

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)

	api.POST("/admin/login", throttleLogin, handler.handleLogin)
	api.POST("/admin/logout", handler.handleLogout)
	api.PUT("/admin/password", requireAdmin, handler.handleChangePassword)

	api.GET("/config", handler.handleGetConfig)
	api.PUT("/config/:key", requireAdmin, handler.handleSetConfig)

	api.GET("/availability", handler.handleAvailability)
	api.POST("/reservations", handler.handleCreateReservation)
	api.GET("/reservations", requireAdmin, handler.handleListReservations)
	api.GET("/reservations/:id", requireAdmin, handler.handleGetReservation)
	api.DELETE("/reservations/:id", requireAdmin, handler.handleDeleteReservation)

	api.GET("/dishes", handler.handleListDishes)
	api.POST("/dishes", requireAdmin, handler.handleCreateDish)
	api.DELETE("/dishes/:id", requireAdmin, handler.handleDeleteDish)

	router.NoRoute(staticFallback(cfg.StaticDir))
	return router
}

func corsConfig(cfg Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept", headerAuthorize},
		MaxAge:       12 * time.Hour,
	}
	if cfg.allowsAllOrigins() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	return corsCfg
}

// requestID echoes a client-supplied X-Request-ID or assigns a fresh one.
func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identifier := strings.TrimSpace(ctx.GetHeader(headerRequestID))
		if identifier == "" {
			identifier = uuid.NewString()
		}
		ctx.Set(contextKeyRequestID, identifier)
		ctx.Writer.Header().Set(headerRequestID, identifier)
		ctx.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.Writer.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "same-origin")
		ctx.Next()
	}
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBytes)
		}
		ctx.Next()
	}
}

func staticFallback(staticDir string) gin.HandlerFunc {
	var files http.Handler
	if staticDir != "" {
		files = http.FileServer(http.Dir(staticDir))
	}
	return func(ctx *gin.Context) {
		if files == nil || strings.HasPrefix(ctx.Request.URL.Path, apiPathPrefix) {
			ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, "route not found"))
			return
		}
		if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
			ctx.JSON(http.StatusMethodNotAllowed, errorResponse(errorCodeNotFound, "route not found"))
			return
		}
		files.ServeHTTP(ctx.Writer, ctx.Request)
	}
}

// requireAdmin resolves the bearer token and stores the account on the context.
// No token answers 401; an unknown token answers 403.
func (handler *httpHandler) requireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		account, err := handler.service.Authenticate(requestCtx, bearerToken(ctx.GetHeader(headerAuthorize)))
		if err != nil {
			handler.respondError(ctx, err)
			ctx.Abort()
			return
		}
		ctx.Set(contextKeyAdmin, account)
		ctx.Next()
	}
}

func bearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], bearerScheme) {
		return ""
	}
	return fields[1]
}

func adminFromContext(ctx *gin.Context) (booking.AdminAccount, bool) {
	value, ok := ctx.Get(contextKeyAdmin)
	if !ok {
		return booking.AdminAccount{}, false
	}
	account, ok := value.(booking.AdminAccount)
	return account, ok
}
