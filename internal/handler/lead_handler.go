package handler

import (
	"errors"
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
	"gorm.io/gorm/clause"
)

func lockForUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// LeadHandler carries the dependencies of the lead endpoints.
type LeadHandler struct {
	db *gorm.DB
}

// NewLeadHandler creates a LeadHandler.
func NewLeadHandler(db *gorm.DB) *LeadHandler {
	return &LeadHandler{db: db}
}

// ListLeads returns the leads visible to the acting user. Optional
// status and source query parameters filter further.
func (h *LeadHandler) ListLeads(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := scope.Filter(h.db.Model(&model.Lead{}), actor, nil).
		Preload("AssignedTo")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if source := c.QueryParam("source"); source != "" {
		query = query.Where("source = ?", source)
	}

	var leads []model.Lead
	if result := query.Find(&leads); result.Error != nil {
		log.Error("Failed to list leads", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve leads"})
	}

	return c.JSON(http.StatusOK, leads)
}

// GetLead returns a single lead within the acting user's scope.
func (h *LeadHandler) GetLead(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	lead, err := h.loadLead(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "lead")
	}

	if !scope.CanAccessCompany(actor, lead.TenantID, lead.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, lead)
}

// CreateLead creates a lead record in the acting user's scope.
func (h *LeadHandler) CreateLead(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name                string `json:"name"`
		Email               string `json:"email,omitempty"`
		Phone               string `json:"phone,omitempty"`
		Source              string `json:"source,omitempty"`
		EstimatedValueCents int64  `json:"estimated_value_cents,omitempty"`
		Notes               string `json:"notes,omitempty"`
		CompanyID           *uint  `json:"company_id,omitempty"`
		AssignedToID        *uint  `json:"assigned_to_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	clients := ClientHandler{db: h.db}
	companyID, errResp := clients.resolveTargetCompany(c, actor, req.CompanyID)
	if errResp != nil {
		return errResp
	}

	if req.AssignedToID != nil {
		if err := clients.checkAssignee(c, actor, *req.AssignedToID); err != nil {
			return err
		}
	}

	lead := model.Lead{
		TenantID:            actor.TenantID,
		CompanyID:           companyID,
		AssignedToID:        req.AssignedToID,
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		Source:              req.Source,
		Status:              model.LeadStatusNew,
		EstimatedValueCents: req.EstimatedValueCents,
		Notes:               req.Notes,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := h.db.Create(&lead); result.Error != nil {
		return storeError(c, log, result.Error, "lead")
	}

	log.Info("Lead created",
		zap.Uint("lead_id", lead.ID),
		zap.Uint("tenant_id", lead.TenantID),
		zap.String("source", lead.Source))

	return c.JSON(http.StatusCreated, lead)
}

// UpdateLead updates a lead's attributes. Converted leads are frozen:
// their status cannot leave closed_won.
func (h *LeadHandler) UpdateLead(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	lead, err := h.loadLead(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "lead")
	}

	if !scope.CanAccessCompany(actor, lead.TenantID, lead.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req struct {
		Name                *string `json:"name,omitempty"`
		Email               *string `json:"email,omitempty"`
		Phone               *string `json:"phone,omitempty"`
		Source              *string `json:"source,omitempty"`
		Status              *string `json:"status,omitempty"`
		EstimatedValueCents *int64  `json:"estimated_value_cents,omitempty"`
		Notes               *string `json:"notes,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Status != nil && lead.ConvertedToClient && *req.Status != model.LeadStatusClosedWon {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "converted lead status is final"})
	}

	if req.Name != nil {
		lead.Name = *req.Name
	}
	if req.Email != nil {
		lead.Email = *req.Email
	}
	if req.Phone != nil {
		lead.Phone = *req.Phone
	}
	if req.Source != nil {
		lead.Source = *req.Source
	}
	if req.Status != nil {
		lead.Status = *req.Status
	}
	if req.EstimatedValueCents != nil {
		lead.EstimatedValueCents = *req.EstimatedValueCents
	}
	if req.Notes != nil {
		lead.Notes = *req.Notes
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Save(lead).Error; err != nil {
		return storeError(c, log, err, "lead")
	}

	log.Info("Lead updated", zap.Uint("lead_id", lead.ID))
	return c.JSON(http.StatusOK, lead)
}

// DeleteLead soft-deletes a lead within the acting user's scope.
func (h *LeadHandler) DeleteLead(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	lead, err := h.loadLead(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "lead")
	}

	if !scope.CanAccessCompany(actor, lead.TenantID, lead.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := h.db.Delete(lead).Error; err != nil {
		return storeError(c, log, err, "lead")
	}

	log.Info("Lead deleted", zap.Uint("lead_id", lead.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "lead deleted"})
}

// AssignLead routes a lead to a user of the same tenant.
func (h *LeadHandler) AssignLead(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	lead, err := h.loadLead(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "lead")
	}

	if !scope.CanAccessCompany(actor, lead.TenantID, lead.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req struct {
		AssignedToID uint `json:"assigned_to_id"`
	}

	if err := c.Bind(&req); err != nil || req.AssignedToID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assigned_to_id is required"})
	}

	clients := ClientHandler{db: h.db}
	if err := clients.checkAssignee(c, actor, req.AssignedToID); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Model(lead).Update("assigned_to_id", req.AssignedToID).Error; err != nil {
		return storeError(c, log, err, "lead")
	}

	log.Info("Lead assigned",
		zap.Uint("lead_id", lead.ID),
		zap.Uint("assigned_to_id", req.AssignedToID))
	return c.JSON(http.StatusOK, echo.Map{"message": "lead assigned"})
}

// ConvertLead converts a lead into a client exactly once. The lead is
// re-read inside the transaction so two concurrent conversions cannot
// both pass the eligibility check and create two clients. On success
// the lead carries the conversion timestamp, the new client's id, and
// the terminal closed_won status.
func (h *LeadHandler) ConvertLead(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	lead, err := h.loadLead(c.Param("id"))
	if err != nil {
		return storeError(c, log, err, "lead")
	}

	if !scope.CanAccessCompany(actor, lead.TenantID, lead.CompanyID) {
		prometheus.RecordAuthError("scope_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	if err := lead.CanConvert(); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}

	var client model.Client

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = h.db.Transaction(func(tx *gorm.DB) error {
		var fresh model.Lead
		if err := tx.Clauses(lockForUpdate()).First(&fresh, lead.ID).Error; err != nil {
			return err
		}
		if err := fresh.CanConvert(); err != nil {
			return err
		}

		client = model.Client{
			TenantID:     fresh.TenantID,
			CompanyID:    fresh.CompanyID,
			AssignedToID: fresh.AssignedToID,
			Name:         fresh.Name,
			Email:        fresh.Email,
			Phone:        fresh.Phone,
			Status:       model.ClientStatusActive,
			Notes:        fresh.Notes,
		}
		if err := tx.Create(&client).Error; err != nil {
			return err
		}

		fresh.MarkConverted(client.ID, time.Now())
		if err := tx.Save(&fresh).Error; err != nil {
			return err
		}
		*lead = fresh
		return nil
	})

	if err != nil {
		if errors.Is(err, model.ErrLeadAlreadyConverted) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}
		return storeError(c, log, err, "lead")
	}

	prometheus.LeadConversionCounter.Inc()
	log.Info("Lead converted",
		zap.Uint("lead_id", lead.ID),
		zap.Uint("client_id", client.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "lead converted",
		"lead":    lead,
		"client":  client,
	})
}

func (h *LeadHandler) loadLead(rawID string) (*model.Lead, error) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var lead model.Lead
	result := h.db.Preload("AssignedTo").First(&lead, uint(id))
	if result.Error != nil {
		return nil, result.Error
	}
	return &lead, nil
}
