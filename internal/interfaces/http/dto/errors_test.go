package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeUnavailable, http.StatusServiceUnavailable},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeSyncLoad, http.StatusInternalServerError},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeSyncUpstream, "upstream unavailable", "req-1")

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"ERR_SYNC_UPSTREAM","message":"upstream unavailable","request_id":"req-1"}}`, string(data))
}

func TestNewSuccessResponse(t *testing.T) {
	data, err := json.Marshal(NewSuccessResponse(SyncResponse{Message: "Full sync completed successfully"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"message":"Full sync completed successfully"}}`, string(data))
}

func TestNewRunResponse(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	msg := errors.New("constraint violation").Error()

	resp := NewRunResponse(etl.SyncRun{
		ID:               3,
		JobName:          etl.JobLoadSales,
		StartTime:        start,
		EndTime:          &end,
		RecordsProcessed: 100,
		Status:           etl.SyncStatusFailed,
		Error:            &msg,
	})

	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, int64(1500), resp.DurationMS)
	assert.Equal(t, "constraint violation", resp.Error)

	running := NewRunResponses([]etl.SyncRun{{ID: 4, Status: etl.SyncStatusRunning, StartTime: start}})
	require.Len(t, running, 1)
	assert.Nil(t, running[0].EndTime)
	assert.Zero(t, running[0].DurationMS)
}
