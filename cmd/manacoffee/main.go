package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/manacoffee/internal/events"
	"github.com/MarkoPoloResearchLab/manacoffee/internal/httpapi"
	"github.com/MarkoPoloResearchLab/manacoffee/internal/oplog"
	"github.com/MarkoPoloResearchLab/manacoffee/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/manacoffee/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/manacoffee/pkg/booking"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL     = "database-url"
	flagStore           = "store"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagStaticDir       = "static-dir"
	flagMaxBodyBytes    = "max-body-bytes"
	flagLoginRate       = "login-rate-per-minute"
	flagAdminPassword   = "default-admin-password"
	flagEnforceMinHours = "enforce-min-hours"
	flagTimezone        = "timezone"
	flagAMQPURL         = "amqp-url"
	flagAMQPExchange    = "amqp-exchange"
	flagUsername        = "username"
	flagPassword        = "password"

	envPrefix  = "MANACOFFEE"
	envPort    = "PORT"
	envListen  = envPrefix + "_LISTEN_ADDR"
	dotEnvFile = ".env"

	defaultDatabaseURL  = "manacoffee.db"
	storeGORM           = "gorm"
	storePGX            = "pgx"
	defaultListenAddr   = ":5000"
	defaultOrigins      = "*"
	defaultMaxBodyBytes = int64(50 << 20)
	defaultLoginRate    = 10
	defaultTimezone     = "America/Bogota"
	defaultExchange     = "manacoffee"
)

type runtimeConfig struct {
	DatabaseURL     string
	Store           string
	HTTP            httpapi.Config
	AdminPassword   string
	EnforceMinHours bool
	Location        *time.Location
	AMQPURL         string
	AMQPExchange    string
}

func main() {
	if err := loadDotEnv(dotEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "manacoffee: %v\n", err)
	}
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "manacoffee: %v\n", err)
		os.Exit(1)
	}
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "manacoffee",
		Short:         "Mana Coffee reservations API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "SQLite path, sqlite:// URL or postgres:// URL")
	cmd.PersistentFlags().String(flagStore, storeGORM, "storage backend: gorm (SQLite or PostgreSQL) or pgx (PostgreSQL only)")
	cmd.PersistentFlags().String(flagAdminPassword, booking.DefaultAdminPassword, "password for the admin account when it is first created")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address (PORT is honoured as well)")
	cmd.Flags().String(flagAllowedOrigins, defaultOrigins, "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagStaticDir, "", "directory with the public frontend, served for non-API routes")
	cmd.Flags().Int64(flagMaxBodyBytes, defaultMaxBodyBytes, "maximum request body size in bytes")
	cmd.Flags().Int(flagLoginRate, defaultLoginRate, "login attempts allowed per client per minute")
	cmd.Flags().Bool(flagEnforceMinHours, false, "reject reservations inside the minHours advance notice window")
	cmd.Flags().String(flagTimezone, defaultTimezone, "IANA timezone used to evaluate slot start times")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL; reservation events are published when set")
	cmd.Flags().String(flagAMQPExchange, defaultExchange, "RabbitMQ topic exchange for reservation events")

	cmd.AddCommand(newSetAdminPasswordCommand(cfg))
	return cmd
}

func newSetAdminPasswordCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-admin-password",
		Short: "Overwrite an administrator password",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString(flagUsername)
			password, _ := cmd.Flags().GetString(flagPassword)
			if err := resetAdminPassword(cmd.Context(), cfg, username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", username)
			return nil
		},
	}
	cmd.Flags().String(flagUsername, booking.DefaultAdminUsername, "administrator username")
	cmd.Flags().String(flagPassword, "", "new password (required)")
	_ = cmd.MarkFlagRequired(flagPassword)
	return cmd
}

// loadConfig resolves flags and MANACOFFEE_* variables into cfg. Flags the command does
// not define keep their zero values.
func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagDatabaseURL, flagStore, flagAdminPassword, flagListenAddr, flagAllowedOrigins, flagStaticDir, flagMaxBodyBytes, flagLoginRate, flagEnforceMinHours, flagTimezone, flagAMQPURL, flagAMQPExchange} {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(flagName, flag); err != nil {
			return err
		}
	}
	if err := v.BindEnv(flagListenAddr, envListen, envPort); err != nil {
		return err
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(v.GetString(flagStore)))
	if err := validateStore(cfg.Store, cfg.DatabaseURL); err != nil {
		return err
	}
	cfg.AdminPassword = v.GetString(flagAdminPassword)
	if cfg.AdminPassword == "" {
		return fmt.Errorf("%s must not be empty", flagAdminPassword)
	}
	if cmd.Flags().Lookup(flagListenAddr) == nil {
		return nil
	}

	cfg.HTTP = httpapi.Config{
		ListenAddr:         normalizeListenAddr(v.GetString(flagListenAddr)),
		AllowedOrigins:     httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		StaticDir:          v.GetString(flagStaticDir),
		MaxBodyBytes:       v.GetInt64(flagMaxBodyBytes),
		LoginRatePerMinute: v.GetInt(flagLoginRate),
	}
	cfg.EnforceMinHours = v.GetBool(flagEnforceMinHours)
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString(flagAMQPExchange))
	if cfg.AMQPURL != "" && cfg.AMQPExchange == "" {
		return fmt.Errorf("%s is required when %s is set", flagAMQPExchange, flagAMQPURL)
	}

	location, err := time.LoadLocation(strings.TrimSpace(v.GetString(flagTimezone)))
	if err != nil {
		return fmt.Errorf("%s: %w", flagTimezone, err)
	}
	cfg.Location = location

	return cfg.HTTP.Validate()
}

func validateStore(store string, databaseURL string) error {
	switch store {
	case storeGORM:
		return nil
	case storePGX:
		driver, _, err := gormstore.ResolveDriver(databaseURL)
		if err != nil {
			return err
		}
		if driver != gormstore.DriverPostgres {
			return fmt.Errorf("%s=%s requires a postgres:// %s", flagStore, storePGX, flagDatabaseURL)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", flagStore, store)
	}
}

// normalizeListenAddr accepts a bare port as PORT-style hosts provide it.
func normalizeListenAddr(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !strings.Contains(trimmed, ":") {
		return ":" + trimmed
	}
	return trimmed
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	options := []booking.ServiceOption{booking.WithOperationLogger(oplog.New(logger))}
	if cfg.EnforceMinHours {
		options = append(options, booking.WithAdvanceNotice(cfg.Location))
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Warn("event publisher close", zap.Error(closeErr))
			}
		}()
		options = append(options, booking.WithOperationLogger(publisher))
		logger.Info("publishing reservation events", zap.String("exchange", cfg.AMQPExchange))
	}

	service, cleanup, err := openService(ctx, cfg, options...)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	return httpapi.Run(ctx, cfg.HTTP, service, logger)
}

// openService opens and prepares the configured store, then seeds defaults and the admin account.
func openService(ctx context.Context, cfg *runtimeConfig, options ...booking.ServiceOption) (*booking.Service, func() error, error) {
	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	service, err := prepareService(ctx, store, cfg.AdminPassword, options...)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return service, cleanup, nil
}

func openStore(ctx context.Context, cfg *runtimeConfig) (booking.Store, func() error, error) {
	if cfg.Store == storePGX {
		pool, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database open: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, func() error { pool.Close(); return nil }, nil
	}
	gormDB, cleanup, _, err := gormstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := gormstore.AutoMigrate(gormDB); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return gormstore.New(gormDB), cleanup, nil
}

func prepareService(ctx context.Context, store booking.Store, adminPassword string, options ...booking.ServiceOption) (*booking.Service, error) {
	service, err := booking.NewService(store, time.Now, options...)
	if err != nil {
		return nil, fmt.Errorf("booking service init: %w", err)
	}
	if err := service.Bootstrap(ctx, adminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return service, nil
}

func resetAdminPassword(ctx context.Context, cfg *runtimeConfig, username string, password string) error {
	service, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()
	return service.ResetPassword(ctx, username, password)
}
