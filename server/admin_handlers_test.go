package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trailmark/rotor/pkg/rotation"
)

func campaignPayload(id string, cycle int) map[string]any {
	return map[string]any{
		"campaign_id":     id,
		"user_id":         "user-1",
		"name":            "spring sale",
		"destination_url": "https://example.com/landing",
		"cycle_minutes":   cycle,
		"click_threshold": 5,
	}
}

func TestAdminRoutesRejectUserToken(t *testing.T) {
	env := newAPITestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/admin/campaigns", testUserToken, campaignPayload("cmp-1", 10))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(t, http.MethodPost, "/v1/admin/replenish", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCampaignCRUD(t *testing.T) {
	env := newAPITestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/admin/campaigns", testAdminToken, campaignPayload("cmp-1", 10))
	require.Equal(t, http.StatusCreated, resp.Code)

	// Duplicate campaign ID conflicts rather than overwriting.
	resp = env.do(t, http.MethodPost, "/v1/admin/campaigns", testAdminToken, campaignPayload("cmp-1", 10))
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = env.do(t, http.MethodPost, "/v1/admin/campaigns", testAdminToken, campaignPayload("cmp-2", 5))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodGet, "/v1/admin/campaigns/cmp-1", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var fetched rotation.Campaign
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &fetched))
	require.Equal(t, 10, fetched.CycleMinutes)
	require.True(t, fetched.Enabled)

	resp = env.do(t, http.MethodPut, "/v1/admin/campaigns/cmp-1", testAdminToken, map[string]any{
		"cycle_minutes": 30,
		"enabled":       false,
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(t, http.MethodGet, "/v1/admin/campaigns/cmp-1", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &fetched))
	require.Equal(t, 30, fetched.CycleMinutes)
	require.False(t, fetched.Enabled)

	resp = env.do(t, http.MethodDelete, "/v1/admin/campaigns/cmp-1", testAdminToken, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.do(t, http.MethodGet, "/v1/admin/campaigns/cmp-1", testAdminToken, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestReplenishEndpointFillsStock(t *testing.T) {
	env := newAPITestEnv(t)
	env.seedCampaign(t)

	resp := env.do(t, http.MethodPost, "/v1/admin/replenish?campaign_id=cmp-1", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var result rotation.ReplenishResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, 1, result.Campaigns)
	require.Equal(t, env.server.engine.Config().Watermark.Default, result.Created)

	resp = env.do(t, http.MethodGet, "/v1/admin/campaigns/cmp-1/stock", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var stock struct {
		CampaignID string           `json:"campaign_id"`
		Stock      map[string]int64 `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stock))
	require.Equal(t, int64(result.Created), stock.Stock[rotation.StockAvailable])
}

func TestReplenishUnknownCampaign(t *testing.T) {
	env := newAPITestEnv(t)
	resp := env.do(t, http.MethodPost, "/v1/admin/replenish?campaign_id=ghost", testAdminToken, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTokenLifecycle(t *testing.T) {
	env := newAPITestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/admin/tokens", testAdminToken, map[string]any{
		"user_id": "user-2",
		"label":   "ci",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var issued struct {
		ID    uint   `json:"id"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Token)

	// The freshly issued token authenticates assignment calls.
	resp = env.do(t, http.MethodPost, "/v1/assignments/decide", issued.Token, decideBody(1))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/v1/admin/tokens/%d", issued.ID), testAdminToken, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.do(t, http.MethodPost, "/v1/assignments/decide", issued.Token, decideBody(1))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
