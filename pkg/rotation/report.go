package rotation

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Report logs the caller's downstream write outcome for one assignment.
// It is pure append: pool and lease state are never touched, and a
// duplicate report for the same (assignment, campaign) is answered
// without creating a second record.
func (e *Engine) Report(ctx context.Context, req ReportRequest) (ReportResult, error) {
	if err := validateReport(req); err != nil {
		e.incReport("error")
		return ReportResult{}, err
	}

	var out ReportResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease Lease
		if err := tx.Where("lease_id = ? AND campaign_id = ? AND user_id = ?",
			req.AssignmentID, req.CampaignID, req.UserID).
			First(&lease).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeNotFound, "unknown assignment")
			}
			return err
		}

		var existing AssignmentReport
		err := tx.Where("assignment_id = ? AND campaign_id = ?", req.AssignmentID, req.CampaignID).
			First(&existing).Error
		switch {
		case err == nil:
			out = ReportResult{
				AssignmentID: req.AssignmentID,
				OK:           true,
				Duplicate:    true,
				Message:      "report already recorded",
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		record := AssignmentReport{
			AssignmentID: req.AssignmentID,
			CampaignID:   req.CampaignID,
			UserID:       req.UserID,
			WriteSuccess: req.WriteSuccess,
			ReportedAt:   req.ReportedAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				out = ReportResult{
					AssignmentID: req.AssignmentID,
					OK:           true,
					Duplicate:    true,
					Message:      "report already recorded",
				}
				return nil
			}
			return err
		}

		out = ReportResult{AssignmentID: req.AssignmentID, OK: true, Message: "report recorded"}
		return nil
	})
	if err != nil {
		e.incReport("error")
		return ReportResult{}, err
	}

	if out.Duplicate {
		e.incReport("duplicate")
	} else {
		e.incReport("recorded")
	}
	return out, nil
}

// ReportBatch resolves each report independently, mirroring the decide
// batch's isolation: a bad entry yields an error result for that item
// only, and the response always matches the request in length.
func (e *Engine) ReportBatch(ctx context.Context, userID string, reqs []ReportRequest) ([]ReportResult, error) {
	if userID == "" {
		return nil, newError(CodeValidation, "user id is required")
	}
	if len(reqs) == 0 {
		return nil, newError(CodeValidation, "at least one report is required")
	}
	if len(reqs) > e.cfg.MaxBatchSize {
		return nil, newError(CodeValidation, "too many reports in one batch")
	}

	results := make([]ReportResult, len(reqs))
	for i, req := range reqs {
		req.UserID = userID
		res, err := e.Report(ctx, req)
		if err != nil {
			msg := "internal error"
			var re *Error
			if errors.As(err, &re) {
				msg = re.Message
			}
			results[i] = ReportResult{
				AssignmentID: req.AssignmentID,
				OK:           false,
				Code:         CodeOf(err),
				Message:      msg,
			}
			continue
		}
		results[i] = res
	}
	return results, nil
}

func validateReport(req ReportRequest) error {
	if req.UserID == "" {
		return newError(CodeValidation, "user id is required")
	}
	if req.AssignmentID == "" {
		return newError(CodeValidation, "assignment id is required")
	}
	if req.CampaignID == "" {
		return newError(CodeValidation, "campaign id is required")
	}
	return nil
}
