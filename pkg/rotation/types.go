package rotation

import "time"

// Decision actions.
const (
	ActionApply = "APPLY"
	ActionNoop  = "NOOP"
	ActionError = "ERROR"
)

// NOOP reasons surfaced to callers.
const (
	ReasonAlreadyDecided = "already decided this window"
	ReasonAwaitingAck    = "awaiting ack"
	ReasonNoClickGrowth  = "no click growth"
	ReasonStockExhausted = "no available stock"
)

// AssignmentRequest is one campaign's observation inside a decide batch.
type AssignmentRequest struct {
	CampaignID string    `json:"campaign_id"`
	NowClicks  int64     `json:"now_clicks"`
	ObservedAt time.Time `json:"observed_at"`
}

// AssignmentResult is the per-request outcome. Code and Message are set
// for NOOPs that need alerting (stock exhaustion) and for per-item errors.
type AssignmentResult struct {
	CampaignID  string `json:"campaign_id"`
	Action      string `json:"action"`
	LeaseID     string `json:"lease_id,omitempty"`
	SuffixValue string `json:"suffix_value,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Code        Code   `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

// AckRequest settles one pending lease.
type AckRequest struct {
	UserID     string
	LeaseID    string
	CampaignID string
	Applied    bool
	AppliedAt  time.Time
	NowClicks  *int64
}

// AckResult reports the lease's terminal state. AlreadyProcessed marks a
// replay; PreviousStatus then carries the original outcome.
type AckResult struct {
	OK               bool   `json:"ok"`
	AlreadyProcessed bool   `json:"already_processed"`
	Status           string `json:"status,omitempty"`
	PreviousStatus   string `json:"previous_status,omitempty"`
	Message          string `json:"message,omitempty"`
}

// ReportRequest records the caller's downstream write outcome for one
// handed-out assignment.
type ReportRequest struct {
	UserID       string
	AssignmentID string
	CampaignID   string
	WriteSuccess bool
	ReportedAt   time.Time
}

// ReportResult is the per-report outcome; batch reports resolve each
// item independently.
type ReportResult struct {
	AssignmentID string `json:"assignment_id"`
	OK           bool   `json:"ok"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	Code         Code   `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// ReplenishResult summarizes one replenishment run.
type ReplenishResult struct {
	Campaigns int `json:"campaigns"`
	Created   int `json:"created"`
}
