// Package window computes the fixed rotation windows that scope one
// assignment decision per campaign, and the idempotency keys derived
// from them.
package window

import (
	"strconv"
	"time"
)

// Start floors t to the enclosing fixed window of the given cycle length,
// measured from the Unix epoch, and returns the window start in epoch
// seconds. A timestamp exactly on a boundary maps to itself.
func Start(cycle time.Duration, t time.Time) int64 {
	cycleSec := int64(cycle / time.Second)
	if cycleSec <= 0 {
		return t.Unix()
	}
	sec := t.Unix()
	return sec - (sec % cycleSec)
}

// Key builds the idempotency key for one campaign window. Campaign IDs
// never contain ':', so distinct (campaign, window) pairs yield distinct
// keys.
func Key(campaignID string, windowStart int64) string {
	return campaignID + ":" + strconv.FormatInt(windowStart, 10)
}
