package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trailmark/rotor/pkg/window"
)

// DecideBatch evaluates up to MaxBatchSize assignment requests for one
// caller. Each campaign is decided independently: an internal failure
// becomes that item's error result and never aborts siblings, so the
// response always has one entry per request.
func (e *Engine) DecideBatch(ctx context.Context, userID string, reqs []AssignmentRequest) ([]AssignmentResult, error) {
	if userID == "" {
		return nil, newError(CodeValidation, "user id is required")
	}
	if len(reqs) == 0 {
		return nil, newError(CodeValidation, "at least one request is required")
	}
	if len(reqs) > e.cfg.MaxBatchSize {
		return nil, newError(CodeValidation, fmt.Sprintf("batch exceeds limit of %d requests", e.cfg.MaxBatchSize))
	}

	results := make([]AssignmentResult, len(reqs))
	for i, req := range reqs {
		results[i] = e.decideIsolated(ctx, userID, req)
	}
	return results, nil
}

// decideIsolated applies the per-item timeout budget and converts
// failures (including panics from a bad entry) into an error result.
func (e *Engine) decideIsolated(ctx context.Context, userID string, req AssignmentRequest) (result AssignmentResult) {
	start := e.now()
	itemCtx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("campaign", req.CampaignID).Interface("panic", r).Msg("decision panicked")
			result = AssignmentResult{
				CampaignID: req.CampaignID,
				Action:     ActionError,
				Code:       CodeInternal,
				Message:    "internal error",
			}
		}
	}()

	res, err := e.decideOne(itemCtx, userID, req)
	if err != nil {
		code := CodeOf(err)
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeInternal
		}
		msg := "internal error"
		var re *Error
		if errors.As(err, &re) {
			msg = re.Message
		}
		e.observeDecision(ActionError, string(code), start)
		return AssignmentResult{
			CampaignID: req.CampaignID,
			Action:     ActionError,
			Code:       code,
			Message:    msg,
		}
	}
	return res
}

func (e *Engine) decideOne(ctx context.Context, userID string, req AssignmentRequest) (AssignmentResult, error) {
	start := e.now()

	if req.CampaignID == "" {
		return AssignmentResult{}, newError(CodeValidation, "campaign id is required")
	}
	if req.ObservedAt.IsZero() {
		return AssignmentResult{}, newError(CodeValidation, "observed_at is required")
	}
	if req.NowClicks < 0 {
		return AssignmentResult{}, newError(CodeValidation, "now_clicks must not be negative")
	}

	var camp Campaign
	if err := e.db.WithContext(ctx).
		Where("campaign_id = ? AND user_id = ?", req.CampaignID, userID).
		First(&camp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AssignmentResult{}, newError(CodeNotFound, "unknown campaign")
		}
		return AssignmentResult{}, err
	}
	if !camp.Enabled {
		return AssignmentResult{}, newError(CodeValidation, "campaign is disabled")
	}
	if camp.CycleMinutes < e.cfg.CycleMinutesMin || camp.CycleMinutes > e.cfg.CycleMinutesMax {
		return AssignmentResult{}, newError(CodeValidation, "campaign cycle out of range")
	}

	// The idempotency key is always recomputed from the observation time
	// and the campaign's configured cycle; client-supplied keys are not
	// trusted for window math.
	windowStart := window.Start(time.Duration(camp.CycleMinutes)*time.Minute, req.ObservedAt)
	key := window.Key(camp.CampaignID, windowStart)

	unlock := e.locks.lock(key)
	defer unlock()

	var result AssignmentResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Lease
		err := tx.Where("campaign_id = ? AND idempotency_key = ?", camp.CampaignID, key).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.Status == LeasePending {
				result = noopResult(camp.CampaignID, ReasonAwaitingAck)
			} else {
				result = noopResult(camp.CampaignID, ReasonAlreadyDecided)
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		baseline, err := e.clickBaseline(tx, camp.CampaignID)
		if err != nil {
			return err
		}
		threshold := camp.ClickThreshold
		if threshold <= 0 {
			threshold = e.cfg.DefaultClickThreshold
		}
		if req.NowClicks-baseline <= threshold {
			result = noopResult(camp.CampaignID, ReasonNoClickGrowth)
			return nil
		}

		item, err := e.pickItem(tx, userID, camp.CampaignID)
		if err != nil {
			return err
		}
		if item == nil {
			if e.metrics != nil {
				e.metrics.StockExhaustedTotal.Inc()
			}
			result = AssignmentResult{
				CampaignID: camp.CampaignID,
				Action:     ActionNoop,
				Reason:     ReasonStockExhausted,
				Code:       CodeStockExhausted,
			}
			return nil
		}

		leaseID := uuid.NewString()
		claim := tx.Model(&StockItem{}).
			Where("id = ? AND status = ?", item.ID, StockAvailable).
			Updates(map[string]any{"status": StockLeased, "lease_id": leaseID})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return newError(CodeConflict, "stock item claimed concurrently")
		}

		lease := Lease{
			LeaseID:        leaseID,
			CampaignID:     camp.CampaignID,
			IdempotencyKey: key,
			UserID:         userID,
			StockItemID:    item.ID,
			Status:         LeasePending,
			WindowStart:    windowStart,
		}
		if err := tx.Create(&lease).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(CodeConflict, "decision already in flight for this window")
			}
			return err
		}

		if item.ExitIP != "" {
			usage := ExitIPUsage{CampaignID: camp.CampaignID, ExitIP: item.ExitIP, UsedAt: e.now()}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
		}

		result = AssignmentResult{
			CampaignID:  camp.CampaignID,
			Action:      ActionApply,
			LeaseID:     leaseID,
			SuffixValue: item.SuffixValue,
		}
		return nil
	})
	if err != nil {
		return AssignmentResult{}, err
	}

	e.observeDecision(result.Action, result.Reason, start)
	e.logger.Debug().
		Str("campaign", camp.CampaignID).
		Str("action", result.Action).
		Str("reason", result.Reason).
		Int64("window_start", windowStart).
		Msg("assignment decided")
	return result, nil
}

// clickBaseline returns lastAppliedClicks from the campaign's most
// recent consumed lease, or 0 when no suffix has ever been applied.
func (e *Engine) clickBaseline(tx *gorm.DB, campaignID string) (int64, error) {
	var last Lease
	err := tx.Where("campaign_id = ? AND status = ?", campaignID, LeaseConsumed).
		Order("updated_at DESC").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if last.LastAppliedClicks == nil {
		return 0, nil
	}
	return *last.LastAppliedClicks, nil
}

// pickItem selects an available stock item, preferring one whose exit IP
// the campaign has not used within the dedup window. When every
// available item collides, the least-recently-produced one wins rather
// than failing the decision.
func (e *Engine) pickItem(tx *gorm.DB, userID, campaignID string) (*StockItem, error) {
	var items []StockItem
	if err := tx.Where("user_id = ? AND campaign_id = ? AND status = ?", userID, campaignID, StockAvailable).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	recent, err := e.recentExitIPs(tx, campaignID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ExitIP == "" {
			return &items[i], nil
		}
		if _, used := recent[items[i].ExitIP]; !used {
			return &items[i], nil
		}
	}
	return &items[0], nil
}

func noopResult(campaignID, reason string) AssignmentResult {
	return AssignmentResult{CampaignID: campaignID, Action: ActionNoop, Reason: reason}
}
