package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/coa"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/config"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/database"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/enforcement"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/handlers"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/logging"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/middleware"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/mikrotik"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/provisioning"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/radiusdb"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/security"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/services"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/settings"
)

func main() {
	cfg := config.Load()

	logger := logging.Init(cfg.Debug)
	defer logging.Sync()

	if err := security.InitKey(cfg.SecretKey); err != nil {
		log.Fatalf("Invalid SECRET_KEY: %v", err)
	}

	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seedAdminUser()

	settingsStore := settings.NewStore(database.DB)

	// CoA timeout and retry policy are resolved once at startup.
	coaClient := coa.NewClient(
		time.Duration(settings.Int(settingsStore, settings.DomainEnforcement, settings.KeyCoATimeoutSec, 3))*time.Second,
		settings.Int(settingsStore, settings.DomainEnforcement, settings.KeyCoARetries, 1),
	)
	shell := mikrotik.NewSSHRunner()

	store := enforcement.NewGormStore(database.DB)
	engine := enforcement.NewEngine(store, settingsStore, coaClient, shell, logger)
	dispatcher := enforcement.NewDispatcher(logger)
	lifecycle := enforcement.NewHandler(engine, store, settingsStore, dispatcher, logger)
	lifecycle.Register()

	radiusSync := radiusdb.NewSyncer(settingsStore, logger)
	defer radiusSync.Close()
	cleaner := enforcement.NewCleaner(store, engine, shell, radiusSync, logger)

	validateNasRules(logger)

	staleSessions := services.NewStaleSessionService(database.DB, 30)
	staleSessions.Start()

	var backup *services.BackupService
	if cfg.BackupEnabled {
		backup = services.NewBackupService(database.DB, cfg)
		backup.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:      "Dotmac Operations API v1.0",
		ServerHeader: "Dotmac",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "dotmac-api",
		})
	})

	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	sessionHandler := handlers.NewSessionHandler(engine, store)
	enforcementHandler := handlers.NewEnforcementHandler(dispatcher, cleaner)
	provisioningHandler := handlers.NewProvisioningHandler()
	nasHandler := handlers.NewNasHandler()
	settingsHandler := handlers.NewSettingsHandler(settingsStore)

	api := app.Group("/api")
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	api.Post("/auth/login", authHandler.Login)

	protected := api.Group("", middleware.AuthRequired(cfg))
	protected.Get("/auth/me", authHandler.Me)

	twoFA := protected.Group("/auth/2fa")
	twoFA.Get("/status", twoFAHandler.Status)
	twoFA.Post("/setup", twoFAHandler.Setup)
	twoFA.Post("/verify", twoFAHandler.Verify)
	twoFA.Post("/disable", twoFAHandler.Disable)

	sessions := protected.Group("/sessions")
	sessions.Get("/", sessionHandler.List)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.Get("/:id/connection-type", provisioningHandler.ConnectionType)
	subscriptions.Get("/:id/radius-attributes", provisioningHandler.Attributes)
	subscriptions.Get("/:id/nas-commands", provisioningHandler.Commands)
	subscriptions.Post("/:id/disconnect", sessionHandler.Disconnect)
	subscriptions.Post("/:id/refresh", sessionHandler.Refresh)
	subscriptions.Post("/:id/block", sessionHandler.Block)
	subscriptions.Post("/:id/unblock", sessionHandler.Unblock)
	subscriptions.Post("/:id/cleanup", middleware.AdminOnly(), enforcementHandler.Cleanup)

	protected.Post("/events", enforcementHandler.Emit)

	nas := protected.Group("/nas")
	nas.Get("/", nasHandler.List)
	nas.Get("/:id", nasHandler.Get)
	nas.Post("/", middleware.AdminOnly(), nasHandler.Create)
	nas.Put("/:id/rules", middleware.AdminOnly(), nasHandler.SetRules)
	nas.Post("/:id/provision", middleware.AdminOnly(), provisioningHandler.Provision)

	settingsRoutes := protected.Group("/settings", middleware.AdminOnly())
	settingsRoutes.Get("/", settingsHandler.List)
	settingsRoutes.Put("/", settingsHandler.Set)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")
		staleSessions.Stop()
		if backup != nil {
			backup.Stop()
		}
		app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	logger.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// validateNasRules logs malformed connection rules once at startup so
// misconfigured devices are visible before the first provisioning call.
func validateNasRules(logger *zap.Logger) {
	var devices []models.NasDevice
	if err := database.DB.Where("is_active = ?", true).Find(&devices).Error; err != nil {
		logger.Warn("nas rule validation skipped", zap.Error(err))
		return
	}
	for _, dev := range devices {
		var rules []models.NasConnectionRule
		if err := database.DB.Where("nas_device_id = ?", dev.ID).Find(&rules).Error; err != nil {
			continue
		}
		if malformed := provisioning.ValidateConnectionRules(rules, logger); malformed > 0 {
			logger.Warn("nas device has malformed connection rules",
				zap.String("nas", dev.Name),
				zap.Int("malformed", malformed))
		}
	}
}

func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		return
	}

	log.Println("Creating default admin user...")
	hashed, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

	admin := models.User{
		Username:     "admin",
		PasswordHash: string(hashed),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := database.DB.Create(&admin).Error; err != nil {
		log.Printf("Failed to create admin user: %v", err)
		return
	}
	log.Println("Admin user created (username: admin, password: admin123)")
}
