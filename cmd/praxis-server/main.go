package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/praxis/praxis/internal/config"
	"github.com/praxis/praxis/internal/domain/billingsync"
	"github.com/praxis/praxis/internal/domain/registration"
	"github.com/praxis/praxis/internal/domain/securitytoken"
	"github.com/praxis/praxis/internal/domain/welcome"
	"github.com/praxis/praxis/internal/platform/auth"
	"github.com/praxis/praxis/internal/platform/db"
	"github.com/praxis/praxis/internal/platform/event"
	"github.com/praxis/praxis/internal/platform/identity"
	"github.com/praxis/praxis/internal/platform/middleware"
	"github.com/praxis/praxis/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "praxis-server",
		Short: "Practice onboarding and billing automation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Tenant middleware
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Operator surfaces require an operator (or admin) role on top of auth.
	operatorV1 := apiV1.Group("", auth.RequireRole("operator"))

	// Identity platform client. Registration and the welcome workflow stay
	// dark until all admin credentials are configured.
	var platformClient *identity.Client
	if err := cfg.ValidateRegistration(); err == nil {
		platformClient = identity.NewClient(identity.Config{
			BaseURL:      cfg.PlatformBaseURL,
			ClientID:     cfg.PlatformClientID,
			ClientSecret: cfg.PlatformClientSecret,
			ProjectID:    cfg.PlatformProjectID,
		}, logger)
		logger.Info().Str("base_url", cfg.PlatformBaseURL).Msg("identity platform client configured")
	} else {
		logger.Warn().Err(err).Msg("identity platform not configured; registration disabled")
	}

	// Security token relay
	tokenRepo := securitytoken.NewRepoPG(pool)
	tokenSvc := securitytoken.NewService(tokenRepo, logger)

	// Registration
	var regSvc *registration.Service
	if platformClient != nil {
		regSvc = registration.NewService(platformClient, tokenSvc, cfg.AccessPolicyID, logger)
	} else {
		regSvc = registration.NewService(nil, tokenSvc, "", logger)
	}
	registration.NewHandler(regSvc).RegisterRoutes(apiV1)

	// Notifications
	var emailSender notification.EmailSender
	if cfg.SMTPHost != "" {
		emailSender = notification.NewSMTPEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
	} else {
		logger.Warn().Msg("SMTP_HOST not set; outbound email is recorded but not delivered")
		emailSender = &notification.MockEmailSender{}
	}
	notifyMgr := notification.NewManager(emailSender, &notification.MockSMSSender{}, notification.NewTemplateEngine())
	notification.NewHandler(notifyMgr).RegisterRoutes(operatorV1)

	// Event dispatcher for identity platform resource events. Ingest sits
	// outside bearer auth and authenticates by shared secret; the handler
	// management routes are operator-only.
	dispatcher := event.NewDispatcher(logger)
	if cfg.PlatformEventSecret == "" {
		logger.Warn().Msg("PLATFORM_EVENT_SECRET not set; event ingest is unauthenticated")
	}
	eventHandler := event.NewHandler(dispatcher, cfg.PlatformEventSecret)
	eventHandler.RegisterIngest(apiV1)
	eventHandler.RegisterRoutes(operatorV1)

	// Welcome workflow
	if platformClient != nil {
		notifier := welcome.NewNotifier(platformClient, tokenSvc, notifyMgr, welcome.Config{
			AppBaseURL:    cfg.AppBaseURL,
			RetryAttempts: cfg.WelcomeRetryAttempts,
			RetryDelay:    cfg.WelcomeRetryDelay,
		}, logger)
		if err := notifier.Register(dispatcher); err != nil {
			logger.Fatal().Err(err).Msg("failed to register welcome handlers")
		}
	}

	// Billing reconciler
	billingRepo := billingsync.NewRepoPG(pool)
	billingSvc := billingsync.NewService(billingRepo, logger)
	billingHandler := billingsync.NewHandler(billingSvc, billingRepo, billingsync.HandlerConfig{
		SigningSecret: cfg.BillingSigningSecret,
	})
	billingHandler.RegisterWebhook(e)
	billingHandler.RegisterRoutes(operatorV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
