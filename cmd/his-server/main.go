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

	"github.com/Bernardyao/HMS-backend-sub001/internal/config"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/charge"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/directory"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/medicine"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/prescription"
	"github.com/Bernardyao/HMS-backend-sub001/internal/domain/registration"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/auth"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/db"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "his-server",
		Short: "Hospital visit and billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
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
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Per-request database connection + audit trail
	e.Use(db.ConnMiddleware(pool))
	e.Use(middleware.Audit(logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Repositories
	tx := db.NewTransactor(pool)
	regRepo := registration.NewRepoPG(pool)
	regHistRepo := registration.NewHistoryRepoPG(pool)
	rxRepo := prescription.NewRepoPG(pool)
	rxHistRepo := prescription.NewHistoryRepoPG(pool)
	medRepo := medicine.NewRepoPG(pool)
	movementRepo := medicine.NewMovementRepoPG(pool)
	chargeRepo := charge.NewRepoPG(pool)
	dirRepo := directory.NewRepoPG(pool)

	// Services
	regSvc := registration.NewService(regRepo, regHistRepo, tx)
	rxSvc := prescription.NewService(rxRepo, rxHistRepo, tx)
	medSvc := medicine.NewService(medRepo, movementRepo, tx)
	chargeSvc := charge.NewService(chargeRepo, regSvc, rxSvc, medSvc, tx)

	// Cross-package wiring: the charge orchestrator refunds registration
	// fees during cancel, and the medicine service adjusts stock during
	// dispense. Both are attached here to keep the packages acyclic.
	regSvc.SetFeeRefunder(chargeSvc)
	rxSvc.SetStockAdjuster(medSvc)

	// Routes
	apiV1 := e.Group("/api/v1")
	registration.NewHandler(regSvc).RegisterRoutes(apiV1)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)
	medicine.NewHandler(medSvc).RegisterRoutes(apiV1)
	charge.NewHandler(chargeSvc).RegisterRoutes(apiV1)
	directory.NewHandler(dirRepo).RegisterRoutes(apiV1)

	// Start server with graceful shutdown
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

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
