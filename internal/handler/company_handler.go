package handler

import (
	"net/http"
	"strconv"
	"time"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/scope"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CompanyHandler carries the dependencies of the company endpoints.
type CompanyHandler struct {
	db *gorm.DB
}

// NewCompanyHandler creates a CompanyHandler.
func NewCompanyHandler(db *gorm.DB) *CompanyHandler {
	return &CompanyHandler{db: db}
}

// ListCompanies returns the companies of the acting user's tenant.
// super_admin sees every tenant's companies.
func (h *CompanyHandler) ListCompanies(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := h.db.Model(&model.Company{})
	if !actor.IsSuperAdmin() {
		query = query.Where("tenant_id = ?", actor.TenantID)
	}

	var companies []model.Company
	if result := query.Find(&companies); result.Error != nil {
		log.Error("Failed to list companies", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve companies"})
	}

	return c.JSON(http.StatusOK, companies)
}

// GetCompany returns a single company within the acting user's tenant.
func (h *CompanyHandler) GetCompany(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	company, err := h.loadCompany(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "company")
	}

	if !scope.CanAccessTenant(actor, company.TenantID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, company)
}

// CreateCompany creates a company inside the acting user's tenant. The
// monthly price is derived from plan and seat limit at write time.
func (h *CompanyHandler) CreateCompany(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email,omitempty"`
		Phone    string `json:"phone,omitempty"`
		Address  string `json:"address,omitempty"`
		Plan     string `json:"plan,omitempty"`
		MaxUsers int    `json:"max_users,omitempty"`
		TenantID *uint  `json:"tenant_id,omitempty"` // super_admin only
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	tenantID := actor.TenantID
	if req.TenantID != nil {
		if !actor.IsSuperAdmin() {
			prometheus.RecordAuthError("scope_denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		tenantID = *req.TenantID
	}

	company := model.Company{
		TenantID: tenantID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Plan:     model.PlanBasic,
		MaxUsers: 5,
	}
	if req.Plan != "" {
		company.Plan = req.Plan
	}
	if req.MaxUsers > 0 {
		company.MaxUsers = req.MaxUsers
	}
	company.MonthlyPriceCents = company.ComputeMonthlyPrice()

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := h.db.Create(&company); result.Error != nil {
		return storeError(c, log, result.Error, "company")
	}

	log.Info("Company created",
		zap.Uint("company_id", company.ID),
		zap.Uint("tenant_id", company.TenantID))

	return c.JSON(http.StatusCreated, company)
}

// UpdateCompany updates company attributes. The owning tenant is
// immutable; plan or seat-limit changes recompute the monthly price.
func (h *CompanyHandler) UpdateCompany(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	company, err := h.loadCompany(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "company")
	}

	if !scope.CanAccessTenant(actor, company.TenantID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req struct {
		Name     *string `json:"name,omitempty"`
		Email    *string `json:"email,omitempty"`
		Phone    *string `json:"phone,omitempty"`
		Address  *string `json:"address,omitempty"`
		Plan     *string `json:"plan,omitempty"`
		MaxUsers *int    `json:"max_users,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name != nil {
		company.Name = *req.Name
	}
	if req.Email != nil {
		company.Email = *req.Email
	}
	if req.Phone != nil {
		company.Phone = *req.Phone
	}
	if req.Address != nil {
		company.Address = *req.Address
	}
	if req.Plan != nil {
		company.Plan = *req.Plan
	}
	if req.MaxUsers != nil {
		if *req.MaxUsers < company.CurrentUsers {
			return c.JSON(http.StatusConflict, echo.Map{"error": "max_users cannot be below current usage"})
		}
		company.MaxUsers = *req.MaxUsers
	}
	company.MonthlyPriceCents = company.ComputeMonthlyPrice()

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Save(company).Error; err != nil {
		return storeError(c, log, err, "company")
	}

	log.Info("Company updated", zap.Uint("company_id", company.ID))
	return c.JSON(http.StatusOK, company)
}

// DeleteCompany soft-deletes a company. Companies with active users are
// protected.
func (h *CompanyHandler) DeleteCompany(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	company, err := h.loadCompany(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "company")
	}

	if !scope.CanAccessTenant(actor, company.TenantID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	if company.CurrentUsers > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "company still has active users"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := h.db.Delete(company).Error; err != nil {
		return storeError(c, log, err, "company")
	}

	log.Info("Company deleted", zap.Uint("company_id", company.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "company deleted"})
}

func (h *CompanyHandler) loadCompany(rawID string) (*model.Company, error) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var company model.Company
	result := h.db.First(&company, uint(id))
	if result.Error != nil {
		return nil, result.Error
	}
	return &company, nil
}
