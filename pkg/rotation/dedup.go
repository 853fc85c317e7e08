package rotation

import "gorm.io/gorm"

// recentExitIPs returns the set of exit IPs the campaign has used inside
// the trailing dedup window, from the append-only usage log.
func (e *Engine) recentExitIPs(tx *gorm.DB, campaignID string) (map[string]struct{}, error) {
	cutoff := e.now().Add(-e.cfg.DedupWindow)
	var rows []ExitIPUsage
	if err := tx.Where("campaign_id = ? AND used_at >= ?", campaignID, cutoff).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	recent := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		recent[row.ExitIP] = struct{}{}
	}
	return recent, nil
}

// stockedExitIP reports whether an available item for the campaign
// already carries this exit IP.
func (e *Engine) stockedExitIP(tx *gorm.DB, campaignID, ip string) (bool, error) {
	var n int64
	if err := tx.Model(&StockItem{}).
		Where("campaign_id = ? AND status = ? AND exit_ip = ?", campaignID, StockAvailable, ip).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
