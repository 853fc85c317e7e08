package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trailmark/rotor/pkg/rotation"
)

func TestDecideBatchSendsAuthAndDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/assignments/decide", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var body struct {
			Requests []rotation.AssignmentRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Requests, 1)
		require.Equal(t, "cmp-1", body.Requests[0].CampaignID)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []rotation.AssignmentResult{{
				CampaignID:  "cmp-1",
				Action:      rotation.ActionApply,
				LeaseID:     "lease-1",
				SuffixValue: "sid=alpha",
			}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", Options{})
	results, err := c.DecideBatch(context.Background(), []rotation.AssignmentRequest{{
		CampaignID: "cmp-1",
		NowClicks:  50,
		ObservedAt: time.Now(),
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "lease-1", results[0].LeaseID)
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(rotation.AckResult{OK: true, Status: rotation.LeaseConsumed})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", Options{RetryInitialMs: 1, RetryMaxMs: 2, MaxRetries: 2})
	result, err := c.Ack(context.Background(), "lease-1", "cmp-1", true, time.Now(), nil)
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, int32(2), calls.Load())
}

func TestPostSurfacesClientErrorsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "lease not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", Options{MaxRetries: 3})
	_, err := c.Report(context.Background(), "lease-ghost", "cmp-1", true, time.Now())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Status)
	require.Equal(t, "lease not found", statusErr.Message)
	require.Equal(t, int32(1), calls.Load())
}
