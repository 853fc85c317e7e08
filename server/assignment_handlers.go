package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/trailmark/rotor/pkg/rotation"
)

func (s *Server) registerAssignmentRoutes(r *gin.Engine) {
	limit := s.cfg.Server.RateLimitPerMinute
	api := r.Group("/v1/assignments", s.requireUser)
	api.POST("/decide", s.rateLimited("decide", limit, time.Minute, callerUserID, s.handleDecideBatch))
	api.POST("/ack", s.rateLimited("ack", limit, time.Minute, callerUserID, s.handleAck))
	api.POST("/report", s.rateLimited("report", limit, time.Minute, callerUserID, s.handleReport))
	api.POST("/report/batch", s.rateLimited("report-batch", limit, time.Minute, callerUserID, s.handleReportBatch))
}

func (s *Server) handleDecideBatch(c *gin.Context) {
	var req struct {
		Requests []rotation.AssignmentRequest `json:"requests"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	results, err := s.engine.DecideBatch(c.Request.Context(), callerUserID(c), req.Requests)
	if err != nil {
		respondEngineError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleAck(c *gin.Context) {
	var req struct {
		LeaseID    string    `json:"lease_id"`
		CampaignID string    `json:"campaign_id"`
		Applied    bool      `json:"applied"`
		AppliedAt  time.Time `json:"applied_at"`
		NowClicks  *int64    `json:"now_clicks"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	result, err := s.engine.Ack(c.Request.Context(), rotation.AckRequest{
		UserID:     callerUserID(c),
		LeaseID:    req.LeaseID,
		CampaignID: req.CampaignID,
		Applied:    req.Applied,
		AppliedAt:  req.AppliedAt,
		NowClicks:  req.NowClicks,
	})
	if err != nil {
		respondEngineError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, result)
}

type reportBody struct {
	AssignmentID string    `json:"assignment_id"`
	CampaignID   string    `json:"campaign_id"`
	WriteSuccess bool      `json:"write_success"`
	ReportedAt   time.Time `json:"reported_at"`
}

func (b reportBody) toRequest(userID string) rotation.ReportRequest {
	return rotation.ReportRequest{
		UserID:       userID,
		AssignmentID: b.AssignmentID,
		CampaignID:   b.CampaignID,
		WriteSuccess: b.WriteSuccess,
		ReportedAt:   b.ReportedAt,
	}
}

func (s *Server) handleReport(c *gin.Context) {
	var req reportBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	result, err := s.engine.Report(c.Request.Context(), req.toRequest(callerUserID(c)))
	if err != nil {
		respondEngineError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleReportBatch(c *gin.Context) {
	var req struct {
		Reports []reportBody `json:"reports"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	userID := callerUserID(c)
	reqs := make([]rotation.ReportRequest, len(req.Reports))
	for i, body := range req.Reports {
		reqs[i] = body.toRequest(userID)
	}

	results, err := s.engine.ReportBatch(c.Request.Context(), userID, reqs)
	if err != nil {
		respondEngineError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// respondEngineError maps engine error codes onto HTTP statuses for
// whole-call failures; per-item errors ride inside the result array.
func respondEngineError(c *gin.Context, err error, fallback zerolog.Logger) {
	status := http.StatusInternalServerError
	switch rotation.CodeOf(err) {
	case rotation.CodeValidation:
		status = http.StatusBadRequest
	case rotation.CodeNotFound:
		status = http.StatusNotFound
	case rotation.CodeConflict:
		status = http.StatusConflict
	}
	respondError(c, status, err.Error(), fallback)
}
