package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadscope/pkg/database/dbtest"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/maps"
)

func TestDescribeResponse(t *testing.T) {
	tests := []struct {
		code    int
		status  string
		message string
	}{
		{200, "Success", "OK"},
		{204, "Success", "No Content"},
		{404, "Client Error", "Not Found"},
		{429, "Client Error", "Too Many Requests"},
		{503, "Server Error", "Service Unavailable"},
		{0, "Unknown", "Unknown Error"},
		{418, "Unknown", "Unknown Error"},
	}

	for _, tt := range tests {
		status, message := DescribeResponse(tt.code)
		assert.Equal(t, tt.status, status, "code %d", tt.code)
		assert.Equal(t, tt.message, message, "code %d", tt.code)
	}
}

func TestService_ObserveCall(t *testing.T) {
	db := dbtest.Open(t)
	service := NewService(db, logger.Nop())
	ctx := WithUserID(context.Background(), 7)
	start := time.Now().Add(-time.Minute)

	service.ObserveCall(ctx, maps.Call{
		APIName:    maps.APIGeocoding,
		Endpoint:   "https://maps.example/geocode/json",
		Params:     map[string]string{"address": "Boston, MA"},
		StatusCode: 200,
		Latency:    120 * time.Millisecond,
		Timestamp:  time.Now(),
	})
	service.ObserveCall(ctx, maps.Call{
		APIName:    maps.APIPlaceDetails,
		Endpoint:   "https://maps.example/place/details/json",
		StatusCode: 0,
		Timestamp:  time.Now(),
	})
	service.ObserveCall(context.Background(), maps.Call{
		APIName:    maps.APIGeocoding,
		StatusCode: 200,
		Timestamp:  time.Now(),
	})

	t.Run("Rows carry mapped status", func(t *testing.T) {
		var status, message, params string
		var userID int
		err := db.DB.QueryRow(`SELECT user_id, response_status, response_message, request_parameters
			FROM api_usage_logs WHERE api_name = ? AND user_id IS NOT NULL`, maps.APIGeocoding).
			Scan(&userID, &status, &message, &params)
		require.NoError(t, err)
		assert.Equal(t, 7, userID)
		assert.Equal(t, "Success", status)
		assert.Equal(t, "OK", message)
		assert.JSONEq(t, `{"address":"Boston, MA"}`, params)
	})

	t.Run("Usage is aggregated per user", func(t *testing.T) {
		usage, err := service.UsageByUser(context.Background(), 7, start)
		require.NoError(t, err)
		require.Len(t, usage, 2)
		assert.Equal(t, Usage{APIName: maps.APIGeocoding, Calls: 1, Errors: 0}, usage[0])
		assert.Equal(t, Usage{APIName: maps.APIPlaceDetails, Calls: 1, Errors: 1}, usage[1])
	})
}

func TestUserIDFromContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), 3))
	assert.True(t, ok)
	assert.Equal(t, 3, id)
}
