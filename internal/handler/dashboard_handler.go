package handler

import (
	"net/http"
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

// DashboardHandler aggregates pipeline figures for the acting user's
// visible slice of data. All queries reuse the same scope filter the
// list endpoints use, so the dashboard never reveals more than a list
// would.
type DashboardHandler struct {
	db *gorm.DB
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Stats returns headline counts: totals per entity, lead/client status
// breakdowns, conversion figures, and the estimated value of the open
// pipeline.
func (h *DashboardHandler) Stats(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var totalLeads, totalClients, totalUsers, convertedLeads int64
	if err := scope.Filter(h.db.Model(&model.Lead{}), actor, nil).Count(&totalLeads).Error; err != nil {
		log.Error("Failed to count leads", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}
	if err := scope.Filter(h.db.Model(&model.Client{}), actor, nil).Count(&totalClients).Error; err != nil {
		log.Error("Failed to count clients", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}
	if err := scope.Filter(h.db.Model(&model.User{}), actor, nil).Count(&totalUsers).Error; err != nil {
		log.Error("Failed to count users", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}
	if err := scope.Filter(h.db.Model(&model.Lead{}), actor, nil).
		Where("converted_to_client = ?", true).
		Count(&convertedLeads).Error; err != nil {
		log.Error("Failed to count conversions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}

	var openPipelineCents int64
	if err := scope.Filter(h.db.Model(&model.Lead{}), actor, nil).
		Where("status NOT IN ?", []string{model.LeadStatusClosedWon, model.LeadStatusClosedLost}).
		Select("COALESCE(SUM(estimated_value_cents), 0)").
		Scan(&openPipelineCents).Error; err != nil {
		log.Error("Failed to sum pipeline value", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}

	leadsByStatus, err := h.countByStatus(&model.Lead{}, actor)
	if err != nil {
		log.Error("Failed to group leads", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}
	clientsByStatus, err := h.countByStatus(&model.Client{}, actor)
	if err != nil {
		log.Error("Failed to group clients", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}

	var conversionRate float64
	if totalLeads > 0 {
		conversionRate = float64(convertedLeads) / float64(totalLeads)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_leads":         totalLeads,
		"total_clients":       totalClients,
		"total_users":         totalUsers,
		"converted_leads":     convertedLeads,
		"conversion_rate":     conversionRate,
		"open_pipeline_cents": openPipelineCents,
		"leads_by_status":     leadsByStatus,
		"clients_by_status":   clientsByStatus,
	})
}

// Pipeline returns the lead funnel in stage order with per-stage counts
// and estimated value, including stages with no leads.
func (h *DashboardHandler) Pipeline(c echo.Context) error {
	log := logger.FromEcho(c)

	actor, ok := middleware.UserFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	type stageRow struct {
		Status     string `json:"status"`
		Count      int64  `json:"count"`
		ValueCents int64  `json:"value_cents"`
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var rows []stageRow
	if err := scope.Filter(h.db.Model(&model.Lead{}), actor, nil).
		Select("status, COUNT(*) AS count, COALESCE(SUM(estimated_value_cents), 0) AS value_cents").
		Group("status").
		Scan(&rows).Error; err != nil {
		log.Error("Failed to build pipeline", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute pipeline"})
	}

	byStatus := make(map[string]stageRow, len(rows))
	for _, r := range rows {
		byStatus[r.Status] = r
	}

	stages := []string{
		model.LeadStatusNew,
		model.LeadStatusContacted,
		model.LeadStatusQualified,
		model.LeadStatusProposal,
		model.LeadStatusNegotiation,
		model.LeadStatusClosedWon,
		model.LeadStatusClosedLost,
	}
	funnel := make([]stageRow, 0, len(stages))
	for _, s := range stages {
		row := byStatus[s]
		row.Status = s
		funnel = append(funnel, row)
	}

	return c.JSON(http.StatusOK, echo.Map{"pipeline": funnel})
}

func (h *DashboardHandler) countByStatus(m interface{}, actor *model.User) ([]statusCount, error) {
	var rows []statusCount
	err := scope.Filter(h.db.Model(m), actor, nil).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
