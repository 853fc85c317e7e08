package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReportRecordsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "cmp-1")
	env.seedStock(t, "cmp-1", "sid=alpha", "", time.Hour)
	res := applyOnce(t, env, 50)

	ctx := context.Background()
	first, err := env.engine.Report(ctx, ReportRequest{
		UserID: "user-1", AssignmentID: res.LeaseID, CampaignID: "cmp-1",
		WriteSuccess: true, ReportedAt: env.now,
	})
	require.NoError(t, err)
	require.True(t, first.OK)
	require.False(t, first.Duplicate)

	second, err := env.engine.Report(ctx, ReportRequest{
		UserID: "user-1", AssignmentID: res.LeaseID, CampaignID: "cmp-1",
		WriteSuccess: false, ReportedAt: env.now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, second.OK)
	require.True(t, second.Duplicate)

	var count int64
	require.NoError(t, env.db.Model(&AssignmentReport{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	// The original outcome survives the duplicate.
	var record AssignmentReport
	require.NoError(t, env.db.First(&record).Error)
	require.True(t, record.WriteSuccess)
}

func TestReportNeverTouchesLeaseState(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "cmp-1")
	item := env.seedStock(t, "cmp-1", "sid=alpha", "", time.Hour)
	res := applyOnce(t, env, 50)

	_, err := env.engine.Report(context.Background(), ReportRequest{
		UserID: "user-1", AssignmentID: res.LeaseID, CampaignID: "cmp-1",
		WriteSuccess: false, ReportedAt: env.now,
	})
	require.NoError(t, err)

	var lease Lease
	require.NoError(t, env.db.Where("lease_id = ?", res.LeaseID).First(&lease).Error)
	require.Equal(t, LeasePending, lease.Status)

	var got StockItem
	require.NoError(t, env.db.First(&got, item.ID).Error)
	require.Equal(t, StockLeased, got.Status)
}

func TestReportUnknownAssignment(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "cmp-1")

	_, err := env.engine.Report(context.Background(), ReportRequest{
		UserID: "user-1", AssignmentID: "ghost", CampaignID: "cmp-1", ReportedAt: env.now,
	})
	require.Error(t, err)
	require.Equal(t, CodeNotFound, CodeOf(err))
}

func TestReportBatchIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "cmp-1")
	env.seedStock(t, "cmp-1", "sid=alpha", "", time.Hour)
	res := applyOnce(t, env, 50)

	results, err := env.engine.ReportBatch(context.Background(), "user-1", []ReportRequest{
		{AssignmentID: res.LeaseID, CampaignID: "cmp-1", WriteSuccess: true, ReportedAt: env.now},
		{AssignmentID: "", CampaignID: "cmp-1", ReportedAt: env.now},
		{AssignmentID: "ghost", CampaignID: "cmp-1", ReportedAt: env.now},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.True(t, results[0].OK)
	require.False(t, results[1].OK)
	require.Equal(t, CodeValidation, results[1].Code)
	require.False(t, results[2].OK)
	require.Equal(t, CodeNotFound, results[2].Code)
}
