package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/config"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler carries the dependencies of the authentication endpoints.
type AuthHandler struct {
	db  *gorm.DB
	jwt *jwtutil.JWTUtil
	cfg *config.AuthConfig
}

// NewAuthHandler creates an AuthHandler with its dependencies.
func NewAuthHandler(db *gorm.DB, jwt *jwtutil.JWTUtil, cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt, cfg: cfg}
}

// Login authenticates a user by email and password within the resolved
// tenant and issues a JWT with tenant/company/role context. Repeated
// failures lock the account for the configured duration.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_login")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Scope the lookup to the resolved tenant; on dev hosts the resolver
	// may have allowed the request through without one. Email is unique
	// per tenant only, so an unscoped lookup must not silently pick one
	// of several same-email accounts.
	defer prometheus.TrackDBOperation("query")(time.Now())
	query := h.db.Preload("Role").Preload("Tenant").Preload("Company").Where("email = ?", email)
	if tenant, ok := middleware.TenantFromEcho(c); ok {
		query = query.Where("tenant_id = ?", tenant.ID)
	}

	var matches []model.User
	if result := query.Limit(2).Find(&matches); result.Error != nil {
		log.Error("Login lookup failed", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	candidate, err := loginCandidate(matches)
	if err != nil {
		if errors.Is(err, errAmbiguousAccount) {
			log.Warn("Ambiguous login without tenant context", zap.String("email", email))
			prometheus.RecordAuthError("ambiguous_account")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant not identified"})
		}
		log.Warn("Login for unknown user", zap.String("email", email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	user := *candidate

	if !user.IsActive {
		prometheus.RecordAuthError("user_inactive")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account is deactivated"})
	}

	now := time.Now()

	if user.IsLocked(now) {
		log.Warn("Login attempt on locked account", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("account_locked")
		return c.JSON(http.StatusLocked, echo.Map{"error": "account is locked, try again later"})
	}

	// The tenant resolver already rejects suspended and trial-expired
	// tenants when it resolves one; repeat the check here for logins that
	// came through the dev-host exception.
	if !user.IsSuperAdmin() {
		if user.Tenant.TrialExpired(now) {
			prometheus.RecordAuthError("trial_expired")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "trial period has expired"})
		}
		if !user.Tenant.IsActive() {
			prometheus.RecordAuthError("tenant_" + user.Tenant.Status)
			return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant is " + user.Tenant.Status})
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.registerFailedAttempt(&user, now)
		log.Warn("Invalid password",
			zap.String("email", email),
			zap.Int("failed_attempts", user.FailedLoginAttempts))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Success resets the lockout state and records the login time.
	user.ResetLoginState(now)
	defer prometheus.TrackDBOperation("update")(time.Now())
	updates := map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	}
	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		log.Error("Failed to record login", zap.Error(err))
	}

	token, err := h.jwt.GenerateToken(user.Email, user.ID, user.TenantID, user.CompanyID, user.Role.Name)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.Uint("tenant_id", user.TenantID),
		zap.String("role", user.Role.Name))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": echo.Map{
			"id":         user.ID,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"role":       user.Role.Name,
			"tenant_id":  user.TenantID,
			"company_id": user.CompanyID,
		},
	})
}

// registerFailedAttempt advances the lockout state machine and persists
// it.
func (h *AuthHandler) registerFailedAttempt(user *model.User, now time.Time) {
	user.RegisterFailedLogin(now, h.cfg.MaxLoginAttempts, h.cfg.LockoutDuration)

	updates := map[string]interface{}{"failed_login_attempts": user.FailedLoginAttempts}
	if user.LockedUntil != nil {
		updates["locked_until"] = *user.LockedUntil
	}
	if err := h.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		logger.GetLogger().Error("Failed to record login attempt", zap.Error(err))
	}
}

// Register bootstraps a new tenant with its admin user. The subdomain
// becomes the tenant's routing slug and the created user is assigned
// the tenant_admin role and recorded as the tenant's admin.
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		TenantName string `json:"tenant_name"`
		Subdomain  string `json:"subdomain"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		Phone      string `json:"phone,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.TenantName == "" || req.Subdomain == "" || req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_name, subdomain, email and password are required"})
	}

	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validSubdomain(subdomain) {
		prometheus.RecordAuthError("invalid_subdomain")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subdomain"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	var adminRole model.Role
	if result := h.db.Where("name = ?", model.RoleTenantAdmin).First(&adminRole); result.Error != nil {
		log.Error("tenant_admin role missing", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	var tenant model.Tenant
	var user model.User

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Tenant{}).Where("subdomain = ?", subdomain).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errSubdomainTaken
		}

		now := time.Now()
		trialEnd := now.AddDate(0, 0, 14)
		tenant = model.Tenant{
			Name:       req.TenantName,
			Subdomain:  subdomain,
			Status:     model.TenantStatusActive,
			Plan:       model.PlanTrial,
			TrialStart: &now,
			TrialEnd:   &trialEnd,
			// The admin seat is consumed below.
			CurrentUsers: 1,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		user = model.User{
			TenantID:     tenant.ID,
			RoleID:       adminRole.ID,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        email,
			PasswordHash: string(hashedPassword),
			Phone:        req.Phone,
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		return tx.Model(&tenant).Update("admin_user_id", user.ID).Error
	})

	if err != nil {
		if err == errSubdomainTaken {
			prometheus.RecordAuthError("subdomain_taken")
			return c.JSON(http.StatusConflict, echo.Map{"error": "subdomain is already taken"})
		}
		log.Error("Registration failed", zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	log.Info("Tenant registered",
		zap.String("subdomain", tenant.Subdomain),
		zap.Uint("tenant_id", tenant.ID),
		zap.Uint("admin_user_id", user.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant registered successfully",
		"tenant": echo.Map{
			"id":        tenant.ID,
			"name":      tenant.Name,
			"subdomain": tenant.Subdomain,
			"plan":      tenant.Plan,
			"trial_end": tenant.TrialEnd,
		},
		"user": echo.Map{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// Me returns the authenticated user's profile with role, tenant and
// company context.
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":         user.ID,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"phone":      user.Phone,
		"is_active":  user.IsActive,
		"last_login": user.LastLoginAt,
		"role": echo.Map{
			"name":         user.Role.Name,
			"display_name": user.Role.DisplayName,
			"permissions":  user.Role.PermissionList(),
		},
		"tenant": echo.Map{
			"id":        user.Tenant.ID,
			"name":      user.Tenant.Name,
			"subdomain": user.Tenant.Subdomain,
			"plan":      user.Tenant.Plan,
		},
		"company":    user.Company,
		"tenant_id":  user.TenantID,
		"company_id": user.CompanyID,
	})
}

// ChangePassword updates the authenticated user's password after
// verifying the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	log := logger.FromEcho(c)

	user, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password and new_password are required"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Model(user).Update("password_hash", string(hashed)).Error; err != nil {
		log.Error("Failed to update password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	log.Info("Password changed", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed successfully"})
}
