package middleware

import (
	"net/http"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthMiddleware validates the JWT token from the Authorization header
// and loads the acting user with its role, tenant and company resolved.
// The loaded *model.User is stored in the context under "user".
func AuthMiddleware(db *gorm.DB, jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// Load the user with role, tenant and company eagerly resolved.
			var user model.User
			result := db.
				Preload("Role").
				Preload("Tenant").
				Preload("Company").
				First(&user, claims.UserID)
			if result.Error != nil {
				log.Warn("Token subject not found", zap.Uint("user_id", claims.UserID))
				prometheus.RecordAuthError("user_not_found")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found"})
			}

			if !user.IsActive {
				log.Warn("Inactive user attempted access", zap.Uint("user_id", user.ID))
				prometheus.RecordAuthError("user_inactive")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account is deactivated"})
			}

			// Every role except super_admin requires a live tenant.
			if !user.IsSuperAdmin() {
				if user.Tenant.TrialExpired(time.Now()) {
					log.Warn("Trial expired", zap.Uint("tenant_id", user.TenantID))
					prometheus.RecordAuthError("trial_expired")
					return c.JSON(http.StatusForbidden, echo.Map{"error": "trial period has expired"})
				}
				if !user.Tenant.IsActive() {
					log.Warn("Tenant not active",
						zap.Uint("tenant_id", user.TenantID),
						zap.String("status", user.Tenant.Status))
					prometheus.RecordAuthError("tenant_" + user.Tenant.Status)
					return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant is " + user.Tenant.Status})
				}
			}

			c.Set("user", &user)

			log.Debug("Request authenticated",
				zap.Uint("user_id", user.ID),
				zap.Uint("tenant_id", user.TenantID),
				zap.String("role", user.Role.Name))

			return next(c)
		}
	}
}

// UserFromEcho retrieves the authenticated user placed in the context by
// AuthMiddleware.
func UserFromEcho(c echo.Context) (*model.User, bool) {
	user, ok := c.Get("user").(*model.User)
	return user, ok
}
