package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/trailmark/rotor/pkg/rotation"
)

func (s *Server) registerAdminRoutes(r *gin.Engine) {
	admin := r.Group("/v1/admin", s.requireAdmin)
	admin.POST("/replenish", s.handleReplenish)
	admin.POST("/campaigns", s.handleCreateCampaign)
	admin.GET("/campaigns", s.handleListCampaigns)
	admin.GET("/campaigns/:campaign_id", s.handleGetCampaign)
	admin.PUT("/campaigns/:campaign_id", s.handleUpdateCampaign)
	admin.DELETE("/campaigns/:campaign_id", s.handleDeleteCampaign)
	admin.GET("/campaigns/:campaign_id/stock", s.handleCampaignStock)

	s.registerTokenRoutes(r)
}

// handleReplenish is the scheduler hook: it tops pools up to their
// watermarks, for one campaign or for every enabled one.
func (s *Server) handleReplenish(c *gin.Context) {
	result, err := s.engine.Replenish(c.Request.Context(), c.Query("campaign_id"))
	if err != nil {
		respondEngineError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, result)
}

type campaignBody struct {
	CampaignID     string `json:"campaign_id"`
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	DestinationURL string `json:"destination_url"`
	CycleMinutes   int    `json:"cycle_minutes"`
	ClickThreshold int64  `json:"click_threshold"`
	Enabled        *bool  `json:"enabled"`
}

func (s *Server) validateCampaignCycle(cycleMinutes int) bool {
	return cycleMinutes >= s.cfg.Rotation.CycleMinutesMin && cycleMinutes <= s.cfg.Rotation.CycleMinutesMax
}

func (s *Server) handleCreateCampaign(c *gin.Context) {
	var req campaignBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if req.CampaignID == "" || req.UserID == "" {
		respondError(c, http.StatusBadRequest, "missing campaign or user id", s.logger)
		return
	}
	if !s.validateCampaignCycle(req.CycleMinutes) {
		respondError(c, http.StatusBadRequest, "cycle_minutes out of range", s.logger)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	camp := rotation.Campaign{
		CampaignID:     req.CampaignID,
		UserID:         req.UserID,
		Name:           req.Name,
		DestinationURL: req.DestinationURL,
		CycleMinutes:   req.CycleMinutes,
		ClickThreshold: req.ClickThreshold,
		Enabled:        enabled,
	}
	if err := s.db.Create(&camp).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "campaign already exists", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to persist campaign", s.logger)
		return
	}
	c.JSON(http.StatusCreated, camp)
}

func (s *Server) handleListCampaigns(c *gin.Context) {
	var campaigns []rotation.Campaign
	q := s.db.Order("campaign_id")
	if userID := c.Query("user_id"); userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&campaigns).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list campaigns", s.logger)
		return
	}
	c.JSON(http.StatusOK, campaigns)
}

func (s *Server) handleGetCampaign(c *gin.Context) {
	var camp rotation.Campaign
	if err := s.db.Where("campaign_id = ?", c.Param("campaign_id")).First(&camp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "campaign not found", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load campaign", s.logger)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (s *Server) handleUpdateCampaign(c *gin.Context) {
	var camp rotation.Campaign
	if err := s.db.Where("campaign_id = ?", c.Param("campaign_id")).First(&camp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "campaign not found", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load campaign", s.logger)
		return
	}

	var req campaignBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	updates := map[string]any{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.DestinationURL != "" {
		updates["destination_url"] = req.DestinationURL
	}
	if req.CycleMinutes != 0 {
		if !s.validateCampaignCycle(req.CycleMinutes) {
			respondError(c, http.StatusBadRequest, "cycle_minutes out of range", s.logger)
			return
		}
		updates["cycle_minutes"] = req.CycleMinutes
	}
	if req.ClickThreshold != 0 {
		updates["click_threshold"] = req.ClickThreshold
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}

	if len(updates) > 0 {
		if err := s.db.Model(&camp).Updates(updates).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "failed to update campaign", s.logger)
			return
		}
	}
	c.JSON(http.StatusOK, camp)
}

func (s *Server) handleDeleteCampaign(c *gin.Context) {
	result := s.db.Where("campaign_id = ?", c.Param("campaign_id")).Delete(&rotation.Campaign{})
	if result.Error != nil {
		respondError(c, http.StatusInternalServerError, "failed to delete campaign", s.logger)
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, "campaign not found", s.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCampaignStock(c *gin.Context) {
	campaignID := c.Param("campaign_id")
	var camp rotation.Campaign
	if err := s.db.Where("campaign_id = ?", campaignID).First(&camp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "campaign not found", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load campaign", s.logger)
		return
	}

	counts := gin.H{}
	for _, status := range []string{rotation.StockAvailable, rotation.StockLeased, rotation.StockConsumed, rotation.StockFailed} {
		var n int64
		if err := s.db.Model(&rotation.StockItem{}).
			Where("campaign_id = ? AND status = ?", campaignID, status).
			Count(&n).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "failed to count stock", s.logger)
			return
		}
		counts[status] = n
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": campaignID, "stock": counts})
}
