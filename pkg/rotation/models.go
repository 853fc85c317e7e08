package rotation

import (
	"time"

	"gorm.io/gorm"
)

// StockItem status values. An item moves available -> leased -> consumed
// or failed; a failed ack releases the item back to available, every
// other transition is one-way.
const (
	StockAvailable = "available"
	StockLeased    = "leased"
	StockConsumed  = "consumed"
	StockFailed    = "failed"
)

// Lease status values. Pending is the only non-terminal state.
const (
	LeasePending  = "pending"
	LeaseConsumed = "consumed"
	LeaseFailed   = "failed"
)

// Campaign holds per-campaign rotation settings managed through the admin
// API. The engine reads the cycle length and click threshold from it.
type Campaign struct {
	ID             uint   `gorm:"primaryKey"`
	CampaignID     string `gorm:"uniqueIndex"`
	UserID         string `gorm:"index"`
	Name           string
	DestinationURL string
	CycleMinutes   int
	ClickThreshold int64
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StockItem is one suffix value in a campaign's pool, tagged with the
// exit IP used when it was produced.
type StockItem struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_stock_owner,priority:1"`
	CampaignID  string `gorm:"index:idx_stock_owner,priority:2"`
	SuffixValue string
	Status      string `gorm:"index"`
	ExitIP      string
	LeaseID     string `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// Lease is a claim on one stock item awaiting caller acknowledgment.
// The composite unique index enforces at most one lease per campaign
// window; a duplicate insert is the CONFLICT signal.
type Lease struct {
	ID                uint   `gorm:"primaryKey"`
	LeaseID           string `gorm:"uniqueIndex"`
	CampaignID        string `gorm:"uniqueIndex:ux_lease_window,priority:1"`
	IdempotencyKey    string `gorm:"uniqueIndex:ux_lease_window,priority:2"`
	UserID            string `gorm:"index"`
	StockItemID       uint
	Status            string `gorm:"index"`
	WindowStart       int64
	LastAppliedClicks *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ExitIPUsage is an append-only record of an exit IP handed out for a
// campaign. Pruning is handled by external retention.
type ExitIPUsage struct {
	ID         uint      `gorm:"primaryKey"`
	CampaignID string    `gorm:"index:idx_usage_campaign_time,priority:1"`
	ExitIP     string    `gorm:"index"`
	UsedAt     time.Time `gorm:"index:idx_usage_campaign_time,priority:2"`
}

// AssignmentReport logs the caller's downstream write outcome for one
// handed-out assignment. The unique index makes duplicate reports
// detectable without a second record.
type AssignmentReport struct {
	ID           uint   `gorm:"primaryKey"`
	AssignmentID string `gorm:"uniqueIndex:ux_report_assignment,priority:1"`
	CampaignID   string `gorm:"uniqueIndex:ux_report_assignment,priority:2"`
	UserID       string `gorm:"index"`
	WriteSuccess bool
	ReportedAt   time.Time
	CreatedAt    time.Time
}

// Models returns every table the engine owns, for migration.
func Models() []any {
	return []any{
		&Campaign{},
		&StockItem{},
		&Lease{},
		&ExitIPUsage{},
		&AssignmentReport{},
	}
}
