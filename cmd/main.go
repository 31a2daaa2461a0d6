package main

import (
	"os"
	"strings"

	"crm-service/internal/handler"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("crm-service")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting CRM service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	if err := database.MigrateModels(
		&model.Tenant{},
		&model.Company{},
		&model.Role{},
		&model.User{},
		&model.Client{},
		&model.Lead{},
	); err != nil {
		log.Fatal("Failed to migrate models", zap.Error(err))
	}
	log.Info("Database migrations applied")

	if err := model.SeedRoles(db); err != nil {
		log.Fatal("Failed to seed roles", zap.Error(err))
	}
	if err := seedSuperAdmin(db, log); err != nil {
		log.Fatal("Failed to seed super admin", zap.Error(err))
	}

	// Initialize JWT utility
	jwtUtil := jwtutil.NewJWTUtil(&cfg.JWT)
	log.Info("JWT utility initialized")

	e := buildServer(db, jwtUtil, cfg)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// buildServer wires middleware, handlers and routes onto a fresh Echo
// instance. Kept separate from main so tests can assemble the same
// router.
func buildServer(db *gorm.DB, jwtUtil *jwtutil.JWTUtil, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	authHandler := handler.NewAuthHandler(db, jwtUtil, &cfg.Auth)
	userHandler := handler.NewUserHandler(db)
	companyHandler := handler.NewCompanyHandler(db)
	clientHandler := handler.NewClientHandler(db)
	leadHandler := handler.NewLeadHandler(db)
	dashboardHandler := handler.NewDashboardHandler(db)
	superAdminHandler := handler.NewSuperAdminHandler(db)

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes. Login resolves the tenant from the request
	// host or header before credentials are checked; registration
	// bootstraps a tenant and needs no tenant context.
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login, middleware.TenantResolver(db, &cfg.Tenant))
	auth.POST("/register", authHandler.Register)

	// API routes - authentication first, then tenant resolution
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(db, jwtUtil))
	api.Use(middleware.TenantResolver(db, &cfg.Tenant))

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/change-password", authHandler.ChangePassword)

	// User management
	users := api.Group("/users")
	users.GET("", userHandler.ListUsers, middleware.RequirePermission(model.PermViewUsers))
	users.POST("", userHandler.CreateUser, middleware.RequirePermission(model.PermCreateUsers))
	users.GET("/:id", userHandler.GetUser, middleware.RequirePermission(model.PermViewUsers))
	users.PATCH("/:id", userHandler.UpdateUser, middleware.RequirePermission(model.PermEditUsers))
	users.POST("/:id/deactivate", userHandler.DeactivateUser, middleware.RequirePermission(model.PermEditUsers))
	users.POST("/:id/activate", userHandler.ActivateUser, middleware.RequirePermission(model.PermEditUsers))
	users.DELETE("/:id", userHandler.DeleteUser, middleware.RequirePermission(model.PermDeleteUsers))

	// Company management
	companies := api.Group("/companies")
	companies.GET("", companyHandler.ListCompanies, middleware.RequirePermission(model.PermViewCompanies))
	companies.POST("", companyHandler.CreateCompany, middleware.RequirePermission(model.PermCreateCompanies))
	companies.GET("/:id", companyHandler.GetCompany, middleware.RequirePermission(model.PermViewCompanies))
	companies.PATCH("/:id", companyHandler.UpdateCompany, middleware.RequirePermission(model.PermEditCompanies))
	companies.DELETE("/:id", companyHandler.DeleteCompany, middleware.RequirePermission(model.PermDeleteCompanies))

	// Client management
	clients := api.Group("/clients")
	clients.GET("", clientHandler.ListClients, middleware.RequirePermission(model.PermViewClients))
	clients.POST("", clientHandler.CreateClient, middleware.RequirePermission(model.PermCreateClients))
	clients.GET("/:id", clientHandler.GetClient, middleware.RequirePermission(model.PermViewClients))
	clients.PATCH("/:id", clientHandler.UpdateClient, middleware.RequirePermission(model.PermEditClients))
	clients.DELETE("/:id", clientHandler.DeleteClient, middleware.RequirePermission(model.PermDeleteClients))

	// Lead management and pipeline
	leads := api.Group("/leads")
	leads.GET("", leadHandler.ListLeads, middleware.RequirePermission(model.PermViewLeads))
	leads.POST("", leadHandler.CreateLead, middleware.RequirePermission(model.PermCreateLeads))
	leads.GET("/:id", leadHandler.GetLead, middleware.RequirePermission(model.PermViewLeads))
	leads.PATCH("/:id", leadHandler.UpdateLead, middleware.RequirePermission(model.PermEditLeads))
	leads.DELETE("/:id", leadHandler.DeleteLead, middleware.RequirePermission(model.PermDeleteLeads))
	leads.POST("/:id/assign", leadHandler.AssignLead, middleware.RequirePermission(model.PermAssignLeads))
	leads.POST("/:id/convert", leadHandler.ConvertLead, middleware.RequirePermission(model.PermConvertLeads))

	// Dashboard
	dashboard := api.Group("/dashboard")
	dashboard.Use(middleware.RequirePermission(model.PermViewDashboard))
	dashboard.GET("/stats", dashboardHandler.Stats)
	dashboard.GET("/pipeline", dashboardHandler.Pipeline)

	// Platform administration - super_admin only, no tenant context
	superAdmin := e.Group(middleware.SuperAdminPrefix)
	superAdmin.Use(middleware.AuthMiddleware(db, jwtUtil))
	superAdmin.Use(middleware.RequireRole(model.RoleSuperAdmin))
	superAdmin.GET("/tenants", superAdminHandler.ListTenants)
	superAdmin.POST("/tenants", superAdminHandler.CreateTenant)
	superAdmin.GET("/tenants/:id", superAdminHandler.GetTenant)
	superAdmin.PATCH("/tenants/:id", superAdminHandler.UpdateTenant)
	superAdmin.POST("/tenants/:id/suspend", superAdminHandler.SuspendTenant)
	superAdmin.POST("/tenants/:id/activate", superAdminHandler.ActivateTenant)
	superAdmin.DELETE("/tenants/:id", superAdminHandler.DeleteTenant)

	return e
}

// seedSuperAdmin creates the platform operator account on first boot
// when SUPER_ADMIN_EMAIL and SUPER_ADMIN_PASSWORD are set. The account
// lives in a dedicated system tenant so every user row has a tenant.
func seedSuperAdmin(db *gorm.DB, log *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("SUPER_ADMIN_EMAIL")))
	password := os.Getenv("SUPER_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var role model.Role
	if err := db.Where("name = ?", model.RoleSuperAdmin).First(&role).Error; err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		tenant := model.Tenant{
			Name:         "System",
			Subdomain:    "system",
			Status:       model.TenantStatusActive,
			Plan:         model.PlanEnterprise,
			MaxUsers:     1,
			CurrentUsers: 1,
		}
		if err := tx.Where("subdomain = ?", tenant.Subdomain).
			FirstOrCreate(&tenant).Error; err != nil {
			return err
		}

		user := model.User{
			TenantID:     tenant.ID,
			RoleID:       role.ID,
			Email:        email,
			PasswordHash: string(hashed),
			FirstName:    "Platform",
			LastName:     "Operator",
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		log.Info("Super admin seeded", zap.String("email", email))
		return nil
	})
}
