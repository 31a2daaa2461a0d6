package middleware

import (
	"net/http"

	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequireRole allows the request through only when the acting user's
// role name is in the given allow-list.
func RequireRole(names ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			user, ok := UserFromEcho(c)
			if !ok {
				prometheus.RecordAuthError("missing_user_context")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			if !user.HasRole(names...) {
				log.Warn("Role check failed",
					zap.Uint("user_id", user.ID),
					zap.String("role", user.Role.Name))
				prometheus.RecordAuthError("role_denied")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
			}

			return next(c)
		}
	}
}

// RequirePermission allows the request through only when the acting
// user's role carries the given permission string.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			user, ok := UserFromEcho(c)
			if !ok {
				prometheus.RecordAuthError("missing_user_context")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			if !user.HasPermission(perm) {
				log.Warn("Permission check failed",
					zap.Uint("user_id", user.ID),
					zap.String("role", user.Role.Name),
					zap.String("permission", perm))
				prometheus.RecordAuthError("permission_denied")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
			}

			return next(c)
		}
	}
}
