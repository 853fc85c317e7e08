package rotation

import (
	"context"
	"math"

	"gorm.io/gorm"
)

// dedup retries per produced item before falling back to whatever
// candidate the source last offered.
const maxCandidateAttempts = 5

// Replenish tops every campaign's pool up to its demand-derived
// watermark, or a single campaign's when campaignID is non-empty. It is
// invoked by an external scheduler and is safe to run alongside live
// decision and ack traffic: it only ever inserts new available items.
// Per-campaign failures are logged and skipped, never aborting the run.
func (e *Engine) Replenish(ctx context.Context, campaignID string) (ReplenishResult, error) {
	var campaigns []Campaign
	q := e.db.WithContext(ctx)
	if campaignID != "" {
		if err := q.Where("campaign_id = ?", campaignID).Find(&campaigns).Error; err != nil {
			return ReplenishResult{}, err
		}
		if len(campaigns) == 0 {
			return ReplenishResult{}, newError(CodeNotFound, "unknown campaign")
		}
	} else {
		if err := q.Where("enabled = ?", true).Find(&campaigns).Error; err != nil {
			return ReplenishResult{}, err
		}
	}

	out := ReplenishResult{Campaigns: len(campaigns)}
	for _, camp := range campaigns {
		created, err := e.replenishCampaign(ctx, camp)
		if err != nil {
			e.logger.Warn().Err(err).Str("campaign", camp.CampaignID).Msg("replenishment failed for campaign")
			continue
		}
		out.Created += created
	}

	if e.metrics != nil && out.Created > 0 {
		e.metrics.ReplenishedTotal.Add(float64(out.Created))
	}
	return out, nil
}

func (e *Engine) replenishCampaign(ctx context.Context, camp Campaign) (int, error) {
	db := e.db.WithContext(ctx)

	target, err := e.watermarkTarget(db, camp.CampaignID)
	if err != nil {
		return 0, err
	}

	var available int64
	if err := db.Model(&StockItem{}).
		Where("campaign_id = ? AND status = ?", camp.CampaignID, StockAvailable).
		Count(&available).Error; err != nil {
		return 0, err
	}

	deficit := target - int(available)
	created := 0
	for i := 0; i < deficit; i++ {
		ip, err := e.selectExitIP(ctx, db, camp.CampaignID)
		if err != nil {
			return created, err
		}
		suffix, err := newSuffixValue()
		if err != nil {
			return created, err
		}
		item := StockItem{
			UserID:      camp.UserID,
			CampaignID:  camp.CampaignID,
			SuffixValue: suffix,
			Status:      StockAvailable,
			ExitIP:      ip,
		}
		if err := db.Create(&item).Error; err != nil {
			return created, err
		}
		created++
	}

	if e.metrics != nil {
		e.metrics.StockAvailable.WithLabelValues(camp.CampaignID).Set(float64(int(available) + created))
	}
	if created > 0 {
		e.logger.Info().
			Str("campaign", camp.CampaignID).
			Int("target", target).
			Int("created", created).
			Msg("replenished stock")
	}
	return created, nil
}

// watermarkTarget derives the desired available count from the trailing
// consumption history times the safety factor, clamped to the configured
// bounds. A campaign with no history gets the fixed default.
func (e *Engine) watermarkTarget(db *gorm.DB, campaignID string) (int, error) {
	cutoff := e.now().Add(-e.cfg.Watermark.HistoryWindow)
	var consumed int64
	if err := db.Model(&Lease{}).
		Where("campaign_id = ? AND status = ? AND updated_at >= ?", campaignID, LeaseConsumed, cutoff).
		Count(&consumed).Error; err != nil {
		return 0, err
	}

	wm := e.cfg.Watermark
	if consumed == 0 {
		return clampWatermark(wm.Default, wm), nil
	}
	target := int(math.Ceil(float64(consumed) * wm.SafetyFactor))
	return clampWatermark(target, wm), nil
}

func clampWatermark(target int, wm WatermarkConfig) int {
	if target < wm.Min {
		return wm.Min
	}
	if target > wm.Max {
		return wm.Max
	}
	return target
}

// selectExitIP pulls candidates from the proxy source until one passes
// the dedup policy: not used by the campaign inside the dedup window and
// not already sitting on an available item. When every attempt collides,
// a pool duplicate is an acceptable fallback; a recently used IP never is.
func (e *Engine) selectExitIP(ctx context.Context, db *gorm.DB, campaignID string) (string, error) {
	if e.ips == nil {
		return "", nil
	}
	recent, err := e.recentExitIPs(db, campaignID)
	if err != nil {
		return "", err
	}

	var fallback string
	for attempt := 0; attempt < maxCandidateAttempts; attempt++ {
		ip, err := e.ips.CandidateIP(ctx, campaignID)
		if err != nil {
			return "", err
		}
		if ip == "" {
			break
		}
		if _, used := recent[ip]; used {
			continue
		}
		stocked, err := e.stockedExitIP(db, campaignID, ip)
		if err != nil {
			return "", err
		}
		if !stocked {
			return ip, nil
		}
		fallback = ip
	}
	return fallback, nil
}

// AvailableCount reports how many items are ready for a campaign. The
// admin surface uses it for stock inspection.
func (e *Engine) AvailableCount(ctx context.Context, campaignID string) (int64, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&StockItem{}).
		Where("campaign_id = ? AND status = ?", campaignID, StockAvailable).
		Count(&n).Error
	return n, err
}
