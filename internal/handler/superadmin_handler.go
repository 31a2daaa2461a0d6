package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SuperAdminHandler owns the platform-level tenant administration
// endpoints. Routes mounted here are already gated on the super_admin
// role, so the handlers deal only with tenant lifecycle, not access.
type SuperAdminHandler struct {
	db *gorm.DB
}

// NewSuperAdminHandler creates a SuperAdminHandler.
func NewSuperAdminHandler(db *gorm.DB) *SuperAdminHandler {
	return &SuperAdminHandler{db: db}
}

// ListTenants returns all tenants, optionally filtered by status or
// plan.
func (h *SuperAdminHandler) ListTenants(c echo.Context) error {
	log := logger.FromEcho(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := h.db.Model(&model.Tenant{})
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if plan := c.QueryParam("plan"); plan != "" {
		query = query.Where("plan = ?", plan)
	}

	var tenants []model.Tenant
	if result := query.Order("id").Find(&tenants); result.Error != nil {
		log.Error("Failed to list tenants", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	prometheus.ActiveTenantsGauge.Set(float64(countActive(tenants)))
	return c.JSON(http.StatusOK, tenants)
}

// GetTenant returns a single tenant with its user count.
func (h *SuperAdminHandler) GetTenant(c echo.Context) error {
	log := logger.FromEcho(c)

	tenant, err := h.loadTenant(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "tenant")
	}

	var users int64
	if err := h.db.Model(&model.User{}).Where("tenant_id = ?", tenant.ID).Count(&users).Error; err != nil {
		log.Error("Failed to count tenant users", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenant"})
	}
	prometheus.UsersPerTenantGauge.
		WithLabelValues(strconv.FormatUint(uint64(tenant.ID), 10), tenant.Name).
		Set(float64(users))

	return c.JSON(http.StatusOK, echo.Map{
		"tenant":     tenant,
		"user_count": users,
	})
}

// CreateTenant provisions a tenant directly, bypassing the trial
// bootstrap that self-service registration performs.
func (h *SuperAdminHandler) CreateTenant(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Name         string `json:"name"`
		Subdomain    string `json:"subdomain"`
		Plan         string `json:"plan,omitempty"`
		MaxUsers     int    `json:"max_users,omitempty"`
		MaxStorageMB int    `json:"max_storage_mb,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.Subdomain == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and subdomain are required"})
	}
	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))
	if !validSubdomain(subdomain) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subdomain"})
	}

	tenant := model.Tenant{
		Name:         req.Name,
		Subdomain:    subdomain,
		Status:       model.TenantStatusActive,
		Plan:         model.PlanBasic,
		MaxUsers:     5,
		MaxStorageMB: 512,
	}
	if req.Plan != "" {
		tenant.Plan = req.Plan
	}
	if req.MaxUsers > 0 {
		tenant.MaxUsers = req.MaxUsers
	}
	if req.MaxStorageMB > 0 {
		tenant.MaxStorageMB = req.MaxStorageMB
	}
	if tenant.Plan == model.PlanTrial {
		now := time.Now()
		end := now.AddDate(0, 0, 14)
		tenant.TrialStart = &now
		tenant.TrialEnd = &end
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := h.db.Create(&tenant); result.Error != nil {
		if isDuplicateKey(result.Error) {
			return c.JSON(http.StatusConflict, echo.Map{"error": errSubdomainTaken.Error()})
		}
		return storeError(c, log, result.Error, "tenant")
	}

	prometheus.RecordTenantOperation("create")
	log.Info("Tenant created",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("subdomain", tenant.Subdomain),
		zap.String("plan", tenant.Plan))

	return c.JSON(http.StatusCreated, tenant)
}

// UpdateTenant changes a tenant's name, plan, quotas or settings. The
// subdomain is immutable after creation. Shrinking max_users below the
// seats already consumed is rejected.
func (h *SuperAdminHandler) UpdateTenant(c echo.Context) error {
	log := logger.FromEcho(c)

	tenant, err := h.loadTenant(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "tenant")
	}

	var req struct {
		Name         *string `json:"name,omitempty"`
		Plan         *string `json:"plan,omitempty"`
		MaxUsers     *int    `json:"max_users,omitempty"`
		MaxStorageMB *int    `json:"max_storage_mb,omitempty"`
		Settings     *string `json:"settings,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.Plan != nil {
		tenant.Plan = *req.Plan
	}
	if req.MaxUsers != nil {
		if *req.MaxUsers < tenant.CurrentUsers {
			return c.JSON(http.StatusConflict, echo.Map{"error": "max_users below current seat usage"})
		}
		tenant.MaxUsers = *req.MaxUsers
	}
	if req.MaxStorageMB != nil {
		tenant.MaxStorageMB = *req.MaxStorageMB
	}
	if req.Settings != nil {
		tenant.Settings = *req.Settings
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Save(tenant).Error; err != nil {
		return storeError(c, log, err, "tenant")
	}

	prometheus.RecordTenantOperation("update")
	log.Info("Tenant updated", zap.Uint("tenant_id", tenant.ID))
	return c.JSON(http.StatusOK, tenant)
}

// SuspendTenant takes a tenant out of service. Its users keep their
// records but every authenticated request is refused until the tenant
// is re-activated.
func (h *SuperAdminHandler) SuspendTenant(c echo.Context) error {
	return h.setStatus(c, model.TenantStatusSuspended, "suspend")
}

// ActivateTenant returns a suspended or expired tenant to service.
func (h *SuperAdminHandler) ActivateTenant(c echo.Context) error {
	return h.setStatus(c, model.TenantStatusActive, "activate")
}

func (h *SuperAdminHandler) setStatus(c echo.Context, status, operation string) error {
	log := logger.FromEcho(c)

	tenant, err := h.loadTenant(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "tenant")
	}

	if tenant.Status == status {
		return c.JSON(http.StatusOK, tenant)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Model(tenant).Update("status", status).Error; err != nil {
		return storeError(c, log, err, "tenant")
	}
	tenant.Status = status

	prometheus.RecordTenantOperation(operation)
	log.Info("Tenant status changed",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("status", status))
	return c.JSON(http.StatusOK, tenant)
}

// DeleteTenant soft-deletes a tenant and everything it owns. The
// cascade runs in one transaction so a partial delete never leaves
// orphaned rows visible.
func (h *SuperAdminHandler) DeleteTenant(c echo.Context) error {
	log := logger.FromEcho(c)

	tenant, err := h.loadTenant(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "tenant")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = h.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&model.Lead{}, &model.Client{}, &model.User{}, &model.Company{}} {
			if err := tx.Where("tenant_id = ?", tenant.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(tenant).Error
	})
	if err != nil {
		return storeError(c, log, err, "tenant")
	}

	prometheus.RecordTenantOperation("delete")
	log.Info("Tenant deleted", zap.Uint("tenant_id", tenant.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "tenant deleted"})
}

func (h *SuperAdminHandler) loadTenant(rawID string) (*model.Tenant, error) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var tenant model.Tenant
	if result := h.db.First(&tenant, uint(id)); result.Error != nil {
		return nil, result.Error
	}
	return &tenant, nil
}

func countActive(tenants []model.Tenant) int {
	n := 0
	for i := range tenants {
		if tenants[i].IsActive() {
			n++
		}
	}
	return n
}

// validSubdomain accepts lowercase DNS labels: letters, digits and
// hyphens, no leading or trailing hyphen, at most 63 characters.
func validSubdomain(s string) bool {
	if len(s) == 0 || len(s) > 63 {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' || ch == '-' {
			continue
		}
		return false
	}
	return true
}
