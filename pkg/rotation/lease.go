package rotation

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Ack settles a pending lease. The protocol is idempotent by
// construction: a lease that is already terminal is reported as a replay
// with its original outcome and neither the lease nor its stock item is
// mutated again. On applied=true the stock item is consumed for good; on
// applied=false it is released back to available so the same suffix can
// be retried in a later window. Lease and item move in one transaction.
func (e *Engine) Ack(ctx context.Context, req AckRequest) (AckResult, error) {
	if req.UserID == "" {
		return AckResult{}, newError(CodeValidation, "user id is required")
	}
	if req.LeaseID == "" {
		return AckResult{}, newError(CodeValidation, "lease id is required")
	}
	if req.CampaignID == "" {
		return AckResult{}, newError(CodeValidation, "campaign id is required")
	}

	unlock := e.locks.lock("lease:" + req.LeaseID)
	defer unlock()

	var out AckResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease Lease
		if err := tx.Where("lease_id = ? AND campaign_id = ? AND user_id = ?",
			req.LeaseID, req.CampaignID, req.UserID).
			First(&lease).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeNotFound, "lease not found")
			}
			return err
		}

		if lease.Status != LeasePending {
			out = AckResult{
				OK:               true,
				AlreadyProcessed: true,
				Status:           lease.Status,
				PreviousStatus:   lease.Status,
				Message:          "lease already settled",
			}
			return nil
		}

		leaseUpdates := map[string]any{"status": LeaseConsumed}
		itemStatus := StockConsumed
		if req.Applied {
			if req.NowClicks != nil {
				leaseUpdates["last_applied_clicks"] = *req.NowClicks
			}
		} else {
			leaseUpdates["status"] = LeaseFailed
			itemStatus = StockAvailable
		}

		settle := tx.Model(&Lease{}).
			Where("id = ? AND status = ?", lease.ID, LeasePending).
			Updates(leaseUpdates)
		if settle.Error != nil {
			return settle.Error
		}
		if settle.RowsAffected == 0 {
			return newError(CodeConflict, "lease settled concurrently")
		}

		itemUpdates := map[string]any{"status": itemStatus}
		if itemStatus == StockAvailable {
			itemUpdates["lease_id"] = ""
		}
		if err := tx.Model(&StockItem{}).
			Where("id = ? AND status = ?", lease.StockItemID, StockLeased).
			Updates(itemUpdates).Error; err != nil {
			return err
		}

		status := LeaseConsumed
		if !req.Applied {
			status = LeaseFailed
		}
		out = AckResult{OK: true, Status: status}
		return nil
	})
	if err != nil {
		e.incAck("error")
		return AckResult{}, err
	}

	switch {
	case out.AlreadyProcessed:
		e.incAck("replay")
	case out.Status == LeaseConsumed:
		e.incAck("consumed")
	default:
		e.incAck("failed")
	}

	e.logger.Debug().
		Str("lease", req.LeaseID).
		Str("campaign", req.CampaignID).
		Bool("applied", req.Applied).
		Bool("replay", out.AlreadyProcessed).
		Str("status", out.Status).
		Msg("lease acknowledged")
	return out, nil
}
