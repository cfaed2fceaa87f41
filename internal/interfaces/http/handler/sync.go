package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appetl "github.com/Juliiscoding/MercuriosAIgoinglive/internal/application/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/dto"
)

// Response messages of the sync trigger endpoints
const (
	MsgFullSyncCompleted        = "Full sync completed successfully"
	MsgIncrementalSyncCompleted = "Incremental sync completed successfully"
)

// SyncRunner runs syncs on demand
type SyncRunner interface {
	RunFullSync(ctx context.Context) error
	RunIncrementalSync(ctx context.Context) error
	State() appetl.State
}

// RunStore reads the sync history and table sizes
type RunStore interface {
	ListRecentRuns(ctx context.Context, limit int) ([]etl.SyncRun, error)
	GetLastSyncDate(ctx context.Context) (*time.Time, error)
	CountRows(ctx context.Context) (etl.TableCounts, error)
}

// SyncHandler serves the /api/v1/etl endpoints
type SyncHandler struct {
	BaseHandler
	runner      SyncRunner
	runs        RunStore
	recentLimit int
	logger      *zap.Logger
}

// NewSyncHandler creates a SyncHandler listing recentLimit runs on /stats
func NewSyncHandler(runner SyncRunner, runs RunStore, recentLimit int, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		runner:      runner,
		runs:        runs,
		recentLimit: recentLimit,
		logger:      logger.Named("sync_handler"),
	}
}

// SyncFull runs a full sync and replies once it finishes.
// POST /api/v1/etl/sync-full
func (h *SyncHandler) SyncFull(c *gin.Context) {
	h.trigger(c, appetl.ModeFull, h.runner.RunFullSync, MsgFullSyncCompleted)
}

// SyncIncremental runs an incremental sync and replies once it finishes.
// POST /api/v1/etl/sync-incremental
func (h *SyncHandler) SyncIncremental(c *gin.Context) {
	h.trigger(c, appetl.ModeIncremental, h.runner.RunIncrementalSync, MsgIncrementalSyncCompleted)
}

// The sync keeps running when the client disconnects.
func (h *SyncHandler) trigger(c *gin.Context, mode appetl.Mode, run func(context.Context) error, msg string) {
	if err := run(context.WithoutCancel(c.Request.Context())); err != nil {
		h.logger.Error("Sync request failed",
			zap.String("mode", string(mode)),
			zap.String("request_id", getRequestID(c)),
			zap.Error(err),
		)
		h.HandleSyncError(c, err)
		return
	}
	h.Success(c, dto.SyncResponse{Message: msg})
}

// Stats lists the most recent etl_stats rows.
// GET /api/v1/etl/stats
func (h *SyncHandler) Stats(c *gin.Context) {
	runs, err := h.runs.ListRecentRuns(c.Request.Context(), h.recentLimit)
	if err != nil {
		h.logger.Error("Failed to list sync runs", zap.Error(err))
		h.InternalError(c, "Failed to load sync history")
		return
	}
	h.Success(c, dto.NewRunResponses(runs))
}

// Status reports the orchestrator state, the last sales sync and table sizes.
// GET /api/v1/etl/status
func (h *SyncHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	last, err := h.runs.GetLastSyncDate(ctx)
	if err != nil {
		h.logger.Error("Failed to read last sync date", zap.Error(err))
		h.InternalError(c, "Failed to load sync status")
		return
	}
	counts, err := h.runs.CountRows(ctx)
	if err != nil {
		h.logger.Error("Failed to count rows", zap.Error(err))
		h.InternalError(c, "Failed to load sync status")
		return
	}

	h.Success(c, dto.StatusResponse{
		State:        string(h.runner.State()),
		LastSyncDate: last,
		Counts:       counts,
	})
}
