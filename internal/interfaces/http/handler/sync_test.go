package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appetl "github.com/Juliiscoding/MercuriosAIgoinglive/internal/application/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/dto"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct {
	fullErr        error
	incrementalErr error
	state          appetl.State
	ctxErr         error
	calls          []appetl.Mode
}

func (r *stubRunner) RunFullSync(ctx context.Context) error {
	r.calls = append(r.calls, appetl.ModeFull)
	r.ctxErr = ctx.Err()
	return r.fullErr
}

func (r *stubRunner) RunIncrementalSync(ctx context.Context) error {
	r.calls = append(r.calls, appetl.ModeIncremental)
	r.ctxErr = ctx.Err()
	return r.incrementalErr
}

func (r *stubRunner) State() appetl.State {
	if r.state == "" {
		return appetl.StateIdle
	}
	return r.state
}

type stubRunStore struct {
	runs      []etl.SyncRun
	lastSync  *time.Time
	counts    etl.TableCounts
	err       error
	lastLimit int
}

func (s *stubRunStore) ListRecentRuns(_ context.Context, limit int) ([]etl.SyncRun, error) {
	s.lastLimit = limit
	return s.runs, s.err
}

func (s *stubRunStore) GetLastSyncDate(context.Context) (*time.Time, error) {
	return s.lastSync, s.err
}

func (s *stubRunStore) CountRows(context.Context) (etl.TableCounts, error) {
	return s.counts, s.err
}

func newSyncRouter(runner SyncRunner, runs RunStore) *gin.Engine {
	h := NewSyncHandler(runner, runs, 20, zap.NewNop())
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/sync-full", h.SyncFull)
	r.POST("/sync-incremental", h.SyncIncremental)
	r.GET("/stats", h.Stats)
	r.GET("/status", h.Status)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(middleware.RequestIDHeader, "req-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSyncHandler_SyncFull(t *testing.T) {
	runner := &stubRunner{}
	w, resp := doRequest(t, newSyncRouter(runner, &stubRunStore{}), http.MethodPost, "/sync-full")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"success":true,"data":{"message":"Full sync completed successfully"}}`, w.Body.String())
	assert.Equal(t, []appetl.Mode{appetl.ModeFull}, runner.calls)
	assert.NoError(t, runner.ctxErr)
}

func TestSyncHandler_SyncIncremental(t *testing.T) {
	runner := &stubRunner{}
	w, resp := doRequest(t, newSyncRouter(runner, &stubRunStore{}), http.MethodPost, "/sync-incremental")

	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, MsgIncrementalSyncCompleted, data["message"])
	assert.Equal(t, []appetl.Mode{appetl.ModeIncremental}, runner.calls)
}

func TestSyncHandler_SyncErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"authentication", etl.NewAuthenticationError("authenticate", errors.New("401")), dto.ErrCodeSyncAuthentication},
		{"upstream", etl.NewTransientNetworkError("GET /sale", "status 503", nil), dto.ErrCodeSyncUpstream},
		{"transform", etl.NewTransformError("sale", "quantity", errors.New("not a number")), dto.ErrCodeSyncTransform},
		{"load", etl.NewLoadError(etl.JobLoadSales, errors.New("fk violation")), dto.ErrCodeSyncLoad},
		{"other", errors.New("lock backend down"), dto.ErrCodeSyncFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{fullErr: tt.err}
			w, resp := doRequest(t, newSyncRouter(runner, &stubRunStore{}), http.MethodPost, "/sync-full")

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.err.Error(), resp.Error.Message)
			assert.Equal(t, "req-test", resp.Error.RequestID)
		})
	}
}

func TestSyncHandler_Stats(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	store := &stubRunStore{runs: []etl.SyncRun{
		{ID: 2, JobName: etl.JobLoadSales, StartTime: start, EndTime: &end, RecordsProcessed: 400, Status: etl.SyncStatusCompleted},
		{ID: 1, JobName: etl.JobLoadBranches, StartTime: start.Add(-time.Hour), Status: etl.SyncStatusRunning},
	}}

	w, resp := doRequest(t, newSyncRouter(&stubRunner{}, store), http.MethodGet, "/stats")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, store.lastLimit)
	runs, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, runs, 2)
	first := runs[0].(map[string]any)
	assert.Equal(t, "load_sales", first["job_name"])
	assert.Equal(t, "completed", first["status"])
	assert.EqualValues(t, 2000, first["duration_ms"])
}

func TestSyncHandler_Status(t *testing.T) {
	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubRunStore{
		lastSync: &last,
		counts:   etl.TableCounts{Branches: 3, Articles: 10, Customers: 5, Sales: 42, Runs: 8},
	}

	w, _ := doRequest(t, newSyncRouter(&stubRunner{state: appetl.StateRunning}, store), http.MethodGet, "/status")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"success": true,
		"data": {
			"state": "running",
			"last_sync_date": "2026-03-01T09:00:00Z",
			"counts": {"branches": 3, "articles": 10, "customers": 5, "sales": 42, "runs": 8}
		}
	}`, w.Body.String())
}

func TestSyncHandler_StoreFailure(t *testing.T) {
	store := &stubRunStore{err: errors.New("connection refused")}
	router := newSyncRouter(&stubRunner{}, store)

	for _, path := range []string{"/stats", "/status"} {
		t.Run(path, func(t *testing.T) {
			w, resp := doRequest(t, router, http.MethodGet, path)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "connection refused")
		})
	}
}
