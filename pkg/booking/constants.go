package booking

const (
	operationLogin             = "login"
	operationLogout            = "logout"
	operationChangePassword    = "change_password"
	operationSetConfig         = "set_config"
	operationCreateReservation = "create_reservation"
	operationDeleteReservation = "delete_reservation"
	operationCreateDish        = "create_dish"
	operationDeleteDish        = "delete_dish"
	operationBootstrap         = "bootstrap"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultAdminUsername is the single administrator seeded on first boot.
	DefaultAdminUsername = "admin"
	// DefaultAdminPassword is the seeded password until an administrator changes it.
	DefaultAdminPassword = "1234"

	sessionTokenBytes = 32
)

// Operation names exposed to OperationLogger implementations.
const (
	OperationCreateReservation = operationCreateReservation
	OperationDeleteReservation = operationDeleteReservation
)
