package dto

import (
	"time"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
)

// SyncResponse is returned by the sync trigger endpoints
type SyncResponse struct {
	Message string `json:"message"`
}

// RunResponse describes one etl_stats row
type RunResponse struct {
	ID               uint       `json:"id"`
	JobName          string     `json:"job_name"`
	Status           string     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	DurationMS       int64      `json:"duration_ms"`
	RecordsProcessed int        `json:"records_processed"`
	Error            string     `json:"error,omitempty"`
}

// NewRunResponse converts a run to its response shape
func NewRunResponse(r etl.SyncRun) RunResponse {
	resp := RunResponse{
		ID:               r.ID,
		JobName:          r.JobName,
		Status:           r.Status.String(),
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		DurationMS:       r.Duration().Milliseconds(),
		RecordsProcessed: r.RecordsProcessed,
	}
	if r.Error != nil {
		resp.Error = *r.Error
	}
	return resp
}

// NewRunResponses converts runs preserving order
func NewRunResponses(runs []etl.SyncRun) []RunResponse {
	out := make([]RunResponse, len(runs))
	for i, r := range runs {
		out[i] = NewRunResponse(r)
	}
	return out
}

// StatusResponse summarizes the ETL state for the dashboard
type StatusResponse struct {
	State        string          `json:"state"`
	LastSyncDate *time.Time      `json:"last_sync_date,omitempty"`
	Counts       etl.TableCounts `json:"counts"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}
