package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/config"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SuperAdminPrefix marks routes exempt from tenant resolution.
const SuperAdminPrefix = "/api/super-admin"

// TenantResolver determines the active tenant for a request and stores
// it in the context under "tenant". Resolution order, first success
// wins:
//
//  1. super-admin route prefix: no tenant required, short-circuit.
//  2. request subdomain, looked up against Tenant.Subdomain.
//  3. X-Tenant-ID header.
//  4. the tenant of an already-authenticated user.
//
// A request against a loopback/dev host with no authenticated user may
// proceed without a tenant (covers login during local development).
// A resolved tenant must be active and, on a trial plan, inside its
// trial window.
func TenantResolver(db *gorm.DB, cfg *config.TenantConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			if strings.HasPrefix(c.Request().URL.Path, SuperAdminPrefix) {
				return next(c)
			}

			tenant, err := resolveTenant(c, db, cfg)
			if err != nil {
				log.Error("Tenant lookup failed", zap.Error(err))
				prometheus.RecordTenantError("lookup_failed")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant lookup failed"})
			}

			if tenant == nil {
				if devHostException(c, cfg) {
					log.Debug("Proceeding without tenant on dev host")
					return next(c)
				}
				prometheus.RecordTenantError("not_identified")
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant not identified"})
			}

			if tenant.TrialExpired(time.Now()) {
				log.Warn("Trial expired", zap.Uint("tenant_id", tenant.ID), zap.String("subdomain", tenant.Subdomain))
				prometheus.RecordTenantError("trial_expired")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "trial period has expired"})
			}

			if !tenant.IsActive() {
				log.Warn("Tenant not active",
					zap.Uint("tenant_id", tenant.ID),
					zap.String("status", tenant.Status))
				prometheus.RecordTenantError("status_" + tenant.Status)
				return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant is " + tenant.Status})
			}

			c.Set("tenant", tenant)

			// Record last activity without blocking the response. The
			// request context ends with the response, so the touch runs
			// on a fresh one carrying the request-scoped logger.
			go touchLastActivity(logger.WithContext(context.Background(), log), db, tenant.ID)

			return next(c)
		}
	}
}

func resolveTenant(c echo.Context, db *gorm.DB, cfg *config.TenantConfig) (*model.Tenant, error) {
	if sub := ExtractSubdomain(c.Request().Host, cfg); sub != "" {
		var tenant model.Tenant
		result := db.Where("subdomain = ?", sub).First(&tenant)
		if result.Error == nil {
			return &tenant, nil
		}
		// An unknown subdomain falls through to the other methods; any
		// other store error is fatal.
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, result.Error
		}
	}

	if header := c.Request().Header.Get("X-Tenant-ID"); header != "" {
		id, err := strconv.ParseUint(header, 10, 32)
		if err == nil {
			var tenant model.Tenant
			result := db.First(&tenant, uint(id))
			if result.Error == nil {
				return &tenant, nil
			}
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil, result.Error
			}
		}
	}

	if user, ok := UserFromEcho(c); ok && !user.IsSuperAdmin() {
		var tenant model.Tenant
		result := db.First(&tenant, user.TenantID)
		if result.Error != nil {
			return nil, result.Error
		}
		return &tenant, nil
	}

	return nil, nil
}

func devHostException(c echo.Context, cfg *config.TenantConfig) bool {
	if _, authenticated := UserFromEcho(c); authenticated {
		return false
	}
	host := stripPort(c.Request().Host)
	for _, dev := range cfg.DevHosts {
		if host == dev {
			return true
		}
	}
	return false
}

// ExtractSubdomain derives a candidate tenant slug from a request host.
// Ports are stripped, IP literals and dev hosts yield nothing, and
// reserved labels (www, api, ...) are ignored. The host must carry at
// least three labels for the first one to count as a subdomain.
func ExtractSubdomain(host string, cfg *config.TenantConfig) string {
	host = stripPort(host)

	if net.ParseIP(host) != nil {
		return ""
	}
	for _, dev := range cfg.DevHosts {
		if host == dev {
			return ""
		}
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}

	sub := strings.ToLower(labels[0])
	for _, reserved := range cfg.ReservedSubdomains {
		if sub == reserved {
			return ""
		}
	}
	return sub
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func touchLastActivity(ctx context.Context, db *gorm.DB, tenantID uint) {
	now := time.Now()
	err := db.WithContext(ctx).Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		UpdateColumn("last_activity_at", now).Error
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to record tenant activity",
			zap.Uint("tenant_id", tenantID),
			zap.Error(err))
	}
}

// TenantFromEcho retrieves the tenant resolved for this request, if any.
func TenantFromEcho(c echo.Context) (*model.Tenant, bool) {
	tenant, ok := c.Get("tenant").(*model.Tenant)
	return tenant, ok
}
