package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/scope"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserHandler carries the dependencies of the user management endpoints.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// ListUsers returns the users visible to the acting user. An explicit
// company_id query parameter is honored for elevated roles after the
// company's tenant membership is validated.
func (h *UserHandler) ListUsers(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	requestedCompany, err := h.requestedCompany(c, actor)
	if err != nil {
		if errors.Is(err, scope.ErrAccessDenied) {
			prometheus.RecordAuthError("scope_denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid company_id"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	query := scope.Filter(h.db.Model(&model.User{}), actor, requestedCompany).
		Preload("Role").Preload("Company")
	if result := query.Find(&users); result.Error != nil {
		log.Error("Failed to list users", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve users"})
	}

	return c.JSON(http.StatusOK, users)
}

// requestedCompany parses an optional company_id query parameter and
// validates that the acting user may query it.
func (h *UserHandler) requestedCompany(c echo.Context, actor *model.User) (*uint, error) {
	raw := c.QueryParam("company_id")
	if raw == "" {
		return nil, nil
	}

	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, err
	}
	companyID := uint(parsed)

	if actor.IsSuperAdmin() {
		return &companyID, nil
	}

	// Cross-company queries are an elevated-role privilege and only
	// within the actor's own tenant.
	if !actor.HasRole(model.RoleTenantAdmin, model.RoleCompanyAdmin) {
		if actor.CompanyID == nil || *actor.CompanyID != companyID {
			return nil, scope.ErrAccessDenied
		}
		return &companyID, nil
	}

	ok, err := scope.CompanyInTenant(h.db, companyID, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, scope.ErrAccessDenied
	}
	return &companyID, nil
}

// GetUser returns a single user within the acting user's scope.
func (h *UserHandler) GetUser(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	target, err := h.loadUser(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "user")
	}

	if !scope.CanAccessTenant(actor, target.TenantID) ||
		!scope.CanAccessCompany(actor, target.TenantID, derefCompany(target.CompanyID)) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, target)
}

// CreateUser creates a user inside the acting user's tenant, consuming
// one seat on the tenant and, when a company is assigned, one on the
// company. Both counters move atomically with the creation: a quota
// rejection rolls the whole operation back.
func (h *UserHandler) CreateUser(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Phone     string `json:"phone,omitempty"`
		Role      string `json:"role"`
		CompanyID *uint  `json:"company_id,omitempty"`
		TenantID  *uint  `json:"tenant_id,omitempty"` // super_admin only
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.FirstName == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "first_name, email, password and role are required"})
	}

	tenantID := actor.TenantID
	if req.TenantID != nil {
		if !actor.IsSuperAdmin() {
			prometheus.RecordAuthError("scope_denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		tenantID = *req.TenantID
	}

	// Only super_admin may mint other super_admin accounts.
	if req.Role == model.RoleSuperAdmin && !actor.IsSuperAdmin() {
		prometheus.RecordAuthError("role_escalation_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var role model.Role
	if result := h.db.Where("name = ?", req.Role).First(&role); result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	if req.CompanyID != nil {
		ok, err := scope.CompanyInTenant(h.db, *req.CompanyID, tenantID)
		if err != nil {
			return storeError(c, log, err, "company")
		}
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "company does not belong to the tenant"})
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	user := model.User{
		TenantID:     tenantID,
		CompanyID:    req.CompanyID,
		RoleID:       role.ID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hashed),
		Phone:        req.Phone,
		IsActive:     true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := consumeSeats(tx, tenantID, req.CompanyID); err != nil {
			return err
		}
		return tx.Create(&user).Error
	})

	if err != nil {
		if errors.Is(err, database.ErrQuotaExceeded) {
			log.Warn("User quota exceeded", zap.Uint("tenant_id", tenantID))
			return c.JSON(http.StatusConflict, echo.Map{"error": "user quota exceeded"})
		}
		return storeError(c, log, err, "user")
	}

	log.Info("User created",
		zap.Uint("user_id", user.ID),
		zap.Uint("tenant_id", user.TenantID),
		zap.String("role", req.Role))

	user.Role = role
	return c.JSON(http.StatusCreated, user)
}

// UpdateUser updates a user's profile and, for privileged actors, its
// role, company and active state. The write guards run before any
// mutation.
func (h *UserHandler) UpdateUser(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	target, err := h.loadUser(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "user")
	}

	var req struct {
		FirstName *string `json:"first_name,omitempty"`
		LastName  *string `json:"last_name,omitempty"`
		Phone     *string `json:"phone,omitempty"`
		Role      *string `json:"role,omitempty"`
		CompanyID *uint   `json:"company_id,omitempty"`
		IsActive  *bool   `json:"is_active,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	upd := scope.UserUpdate{CompanyID: req.CompanyID, IsActive: req.IsActive}

	var newRole *model.Role
	if req.Role != nil {
		var role model.Role
		if result := h.db.Where("name = ?", *req.Role).First(&role); result.Error != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
		}
		if role.Name == model.RoleSuperAdmin && !actor.IsSuperAdmin() {
			prometheus.RecordAuthError("role_escalation_blocked")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		newRole = &role
		upd.RoleID = &role.ID
	}

	if err := scope.CheckUserWrite(actor, target, upd); err != nil {
		log.Warn("User write rejected",
			zap.Uint("actor_id", actor.ID),
			zap.Uint("target_id", target.ID),
			zap.Error(err))
		prometheus.RecordAuthError("user_write_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	}

	if req.CompanyID != nil {
		ok, err := scope.CompanyInTenant(h.db, *req.CompanyID, target.TenantID)
		if err != nil {
			return storeError(c, log, err, "company")
		}
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "company does not belong to the tenant"})
		}
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if newRole != nil {
		updates["role_id"] = newRole.ID
	}
	if req.CompanyID != nil {
		updates["company_id"] = *req.CompanyID
	}

	// Final state after the update decides the seat movements: the
	// tenant seat follows the active flag, the company seat follows the
	// active flag and the company assignment together.
	wasActive := target.IsActive
	willBeActive := wasActive
	if req.IsActive != nil {
		willBeActive = *req.IsActive
		if willBeActive != wasActive {
			updates["is_active"] = willBeActive
		}
	}
	oldCompany := target.CompanyID
	newCompany := oldCompany
	if req.CompanyID != nil {
		newCompany = req.CompanyID
	}
	sameCompany := oldCompany != nil && newCompany != nil && *oldCompany == *newCompany

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if wasActive && !willBeActive {
			if err := database.ReleaseUserSeat(tx, "tenants", target.TenantID); err != nil {
				return err
			}
		}
		if !wasActive && willBeActive {
			if err := database.ConsumeUserSeat(tx, "tenants", target.TenantID); err != nil {
				if errors.Is(err, database.ErrQuotaExceeded) {
					prometheus.RecordQuotaRejection("tenant")
				}
				return err
			}
		}

		if wasActive && oldCompany != nil && !(willBeActive && sameCompany) {
			if err := database.ReleaseUserSeat(tx, "companies", *oldCompany); err != nil {
				return err
			}
		}
		if willBeActive && newCompany != nil && !(wasActive && sameCompany) {
			if err := database.ConsumeUserSeat(tx, "companies", *newCompany); err != nil {
				if errors.Is(err, database.ErrQuotaExceeded) {
					prometheus.RecordQuotaRejection("company")
				}
				return err
			}
		}

		if len(updates) == 0 {
			return nil
		}
		return tx.Model(target).Updates(updates).Error
	})

	if err != nil {
		if errors.Is(err, database.ErrQuotaExceeded) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "user quota exceeded"})
		}
		return storeError(c, log, err, "user")
	}

	log.Info("User updated", zap.Uint("user_id", target.ID))
	return c.JSON(http.StatusOK, target)
}

// DeactivateUser soft-disables an account and releases its seats.
func (h *UserHandler) DeactivateUser(c echo.Context) error {
	return h.setActive(c, false)
}

// ActivateUser re-enables an account, consuming seats again. Rejected
// when the owning tenant or company has no quota left.
func (h *UserHandler) ActivateUser(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *UserHandler) setActive(c echo.Context, active bool) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	target, err := h.loadUser(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "user")
	}

	if err := scope.CheckUserWrite(actor, target, scope.UserUpdate{IsActive: &active}); err != nil {
		prometheus.RecordAuthError("user_write_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	}

	if target.IsActive == active {
		return c.JSON(http.StatusOK, echo.Map{"message": "no change"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if active {
			if err := consumeSeats(tx, target.TenantID, target.CompanyID); err != nil {
				return err
			}
		} else {
			if err := releaseSeats(tx, target.TenantID, target.CompanyID); err != nil {
				return err
			}
		}
		return tx.Model(target).Update("is_active", active).Error
	})

	if err != nil {
		if errors.Is(err, database.ErrQuotaExceeded) {
			log.Warn("Activation rejected by quota", zap.Uint("tenant_id", target.TenantID))
			return c.JSON(http.StatusConflict, echo.Map{"error": "user quota exceeded"})
		}
		return storeError(c, log, err, "user")
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	log.Info("User "+state, zap.Uint("user_id", target.ID), zap.Uint("actor_id", actor.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "user " + state})
}

// DeleteUser soft-deletes an account. Removal is a deactivation plus a
// soft delete; self-deletion is always rejected.
func (h *UserHandler) DeleteUser(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	target, err := h.loadUser(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "user")
	}

	if err := scope.CheckUserDelete(actor, target); err != nil {
		log.Warn("User delete rejected",
			zap.Uint("actor_id", actor.ID),
			zap.Uint("target_id", target.ID),
			zap.Error(err))
		prometheus.RecordAuthError("user_delete_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if target.IsActive {
			if err := releaseSeats(tx, target.TenantID, target.CompanyID); err != nil {
				return err
			}
			if err := tx.Model(target).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Delete(target).Error
	})
	if err != nil {
		return storeError(c, log, err, "user")
	}

	log.Info("User deleted", zap.Uint("user_id", target.ID), zap.Uint("actor_id", actor.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}

func (h *UserHandler) loadUser(rawID string) (*model.User, error) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var user model.User
	result := h.db.Preload("Role").Preload("Company").First(&user, uint(id))
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

// consumeSeats takes one seat on the tenant and, when set, one on the
// company. Both use the guarded atomic increments in pkg/database, so a
// full tenant or company yields ErrQuotaExceeded without moving either
// counter past its limit.
func consumeSeats(tx *gorm.DB, tenantID uint, companyID *uint) error {
	if err := database.ConsumeUserSeat(tx, "tenants", tenantID); err != nil {
		if errors.Is(err, database.ErrQuotaExceeded) {
			prometheus.RecordQuotaRejection("tenant")
		}
		return err
	}
	if companyID != nil {
		if err := database.ConsumeUserSeat(tx, "companies", *companyID); err != nil {
			if errors.Is(err, database.ErrQuotaExceeded) {
				prometheus.RecordQuotaRejection("company")
			}
			return err
		}
	}
	return nil
}

func releaseSeats(tx *gorm.DB, tenantID uint, companyID *uint) error {
	if err := database.ReleaseUserSeat(tx, "tenants", tenantID); err != nil {
		return err
	}
	if companyID != nil {
		return database.ReleaseUserSeat(tx, "companies", *companyID)
	}
	return nil
}

func derefCompany(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
