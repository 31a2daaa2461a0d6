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

// ClientHandler carries the dependencies of the client endpoints.
type ClientHandler struct {
	db *gorm.DB
}

// NewClientHandler creates a ClientHandler.
func NewClientHandler(db *gorm.DB) *ClientHandler {
	return &ClientHandler{db: db}
}

// ListClients returns the clients visible to the acting user, scoped by
// tenant and, where applicable, company. An optional status query
// parameter filters further.
func (h *ClientHandler) ListClients(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := scope.Filter(h.db.Model(&model.Client{}), actor, nil).
		Preload("AssignedTo")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var clients []model.Client
	if result := query.Find(&clients); result.Error != nil {
		log.Error("Failed to list clients", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve clients"})
	}

	return c.JSON(http.StatusOK, clients)
}

// GetClient returns a single client within the acting user's scope.
func (h *ClientHandler) GetClient(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	client, err := h.loadClient(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "client")
	}

	if !scope.CanAccessCompany(actor, client.TenantID, client.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, client)
}

// CreateClient creates a client record. Actors with a company create
// within it; company-less actors name the target company explicitly.
func (h *ClientHandler) CreateClient(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name         string `json:"name"`
		Email        string `json:"email,omitempty"`
		Phone        string `json:"phone,omitempty"`
		CompanyName  string `json:"company_name,omitempty"`
		Notes        string `json:"notes,omitempty"`
		CompanyID    *uint  `json:"company_id,omitempty"`
		AssignedToID *uint  `json:"assigned_to_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	companyID, errResp := h.resolveTargetCompany(c, actor, req.CompanyID)
	if errResp != nil {
		return errResp
	}

	if req.AssignedToID != nil {
		if err := h.checkAssignee(c, actor, *req.AssignedToID); err != nil {
			return err
		}
	}

	client := model.Client{
		TenantID:     actor.TenantID,
		CompanyID:    companyID,
		AssignedToID: req.AssignedToID,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		CompanyName:  req.CompanyName,
		Status:       model.ClientStatusActive,
		Notes:        req.Notes,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := h.db.Create(&client); result.Error != nil {
		return storeError(c, log, result.Error, "client")
	}

	log.Info("Client created",
		zap.Uint("client_id", client.ID),
		zap.Uint("tenant_id", client.TenantID),
		zap.Uint("company_id", client.CompanyID))

	return c.JSON(http.StatusCreated, client)
}

// UpdateClient updates a client's attributes within the acting user's
// scope.
func (h *ClientHandler) UpdateClient(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	client, err := h.loadClient(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "client")
	}

	if !scope.CanAccessCompany(actor, client.TenantID, client.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req struct {
		Name         *string `json:"name,omitempty"`
		Email        *string `json:"email,omitempty"`
		Phone        *string `json:"phone,omitempty"`
		CompanyName  *string `json:"company_name,omitempty"`
		Status       *string `json:"status,omitempty"`
		Notes        *string `json:"notes,omitempty"`
		AssignedToID *uint   `json:"assigned_to_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.AssignedToID != nil {
		if err := h.checkAssignee(c, actor, *req.AssignedToID); err != nil {
			return err
		}
		client.AssignedToID = req.AssignedToID
	}
	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.CompanyName != nil {
		client.CompanyName = *req.CompanyName
	}
	if req.Status != nil {
		client.Status = *req.Status
	}
	if req.Notes != nil {
		client.Notes = *req.Notes
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Save(client).Error; err != nil {
		return storeError(c, log, err, "client")
	}

	log.Info("Client updated", zap.Uint("client_id", client.ID))
	return c.JSON(http.StatusOK, client)
}

// DeleteClient soft-deletes a client within the acting user's scope.
func (h *ClientHandler) DeleteClient(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	client, err := h.loadClient(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "client")
	}

	if !scope.CanAccessCompany(actor, client.TenantID, client.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := h.db.Delete(client).Error; err != nil {
		return storeError(c, log, err, "client")
	}

	log.Info("Client deleted", zap.Uint("client_id", client.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "client deleted"})
}

// resolveTargetCompany decides which company a new record lands in. A
// company-bound actor always writes into its own company; others must
// name a company of the tenant explicitly.
func (h *ClientHandler) resolveTargetCompany(c echo.Context, actor *model.User, requested *uint) (uint, error) {
	if actor.CompanyID != nil && !actor.HasRole(model.RoleSuperAdmin, model.RoleTenantAdmin, model.RoleCompanyAdmin) {
		return *actor.CompanyID, nil
	}

	if requested == nil {
		if actor.CompanyID != nil {
			return *actor.CompanyID, nil
		}
		return 0, c.JSON(http.StatusBadRequest, echo.Map{"error": "company_id is required"})
	}

	if actor.IsSuperAdmin() {
		return *requested, nil
	}

	ok, err := scope.CompanyInTenant(h.db, *requested, actor.TenantID)
	if err != nil {
		return 0, storeError(c, logger.FromEcho(c), err, "company")
	}
	if !ok {
		return 0, c.JSON(http.StatusBadRequest, echo.Map{"error": "company does not belong to the tenant"})
	}
	return *requested, nil
}

// checkAssignee validates that an assigned user belongs to the actor's
// tenant. The check is an explicit call at the write site, not a store
// hook.
func (h *ClientHandler) checkAssignee(c echo.Context, actor *model.User, assigneeID uint) error {
	var assignee model.User
	if result := h.db.First(&assignee, assigneeID); result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assigned user not found"})
	}
	if !actor.IsSuperAdmin() && assignee.TenantID != actor.TenantID {
		prometheus.RecordAuthError("cross_tenant_assignment")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assigned user belongs to another tenant"})
	}
	return nil
}

func (h *ClientHandler) loadClient(rawID string) (*model.Client, error) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var client model.Client
	result := h.db.Preload("AssignedTo").First(&client, uint(id))
	if result.Error != nil {
		return nil, result.Error
	}
	return &client, nil
}
