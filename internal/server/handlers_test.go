package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsyaclean/internal/config"
	"rsyaclean/internal/database"
	"rsyaclean/internal/model"
	"rsyaclean/internal/orchestrator"
)

type fakeServerController struct {
	dbErr     error
	cacheErr  error
	rabbitErr error
}

func (f fakeServerController) DBHealth() error      { return f.dbErr }
func (f fakeServerController) HistoryHealth() error { return nil }
func (f fakeServerController) CacheHealth() error   { return f.cacheErr }
func (f fakeServerController) RabbitHealth() error  { return f.rabbitErr }
func (f fakeServerController) ArchiveHealth() error { return nil }
func (f fakeServerController) Online() string       { return "Online" }

type fakeEngine struct {
	batchErr    error
	analysisErr error
	batchIDs    []int64
	analyzed    [][2]int64
}

func (f *fakeEngine) ProcessBatch(_ context.Context, batchID int64) (model.BatchMetrics, error) {
	f.batchIDs = append(f.batchIDs, batchID)
	if f.batchErr != nil {
		return model.BatchMetrics{}, f.batchErr
	}
	return model.BatchMetrics{ProcessedItems: 2, SuccessCount: 2}, nil
}

func (f *fakeEngine) Dispatch(context.Context) (orchestrator.DispatchSummary, error) {
	return orchestrator.DispatchSummary{Projects: 1, Batches: 3, Published: 3}, nil
}

func (f *fakeEngine) PollReports(context.Context) (orchestrator.PollSummary, error) {
	return orchestrator.PollSummary{Due: 2, Completed: 1, Retrying: 1}, nil
}

func (f *fakeEngine) AnalyzeCampaign(_ context.Context, projectID, campaignID int64) (*orchestrator.Analysis, error) {
	f.analyzed = append(f.analyzed, [2]int64{projectID, campaignID})
	if f.analysisErr != nil {
		return nil, f.analysisErr
	}
	return &orchestrator.Analysis{ProjectID: projectID, CampaignID: campaignID, Placements: 4}, nil
}

func newTestServer(token string, sc fakeServerController, ec *fakeEngine) http.Handler {
	gin.SetMode(gin.TestMode)
	s := &Server{
		sc:       sc,
		ec:       ec,
		registry: prometheus.NewRegistry(),
		config: config.Config{
			Invoke: config.InvokeConfig{Token: token},
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"https://panel.example.org"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
			},
		},
	}
	return s.RegisterRoutes()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsComponents(t *testing.T) {
	h := newTestServer("", fakeServerController{cacheErr: errors.New("down")}, &fakeEngine{})

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["database"])
	assert.False(t, body["cache"])
}

func TestHealthUnavailableWithoutDatabase(t *testing.T) {
	h := newTestServer("", fakeServerController{dbErr: errors.New("down")}, &fakeEngine{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOnline(t *testing.T) {
	h := newTestServer("", fakeServerController{}, &fakeEngine{})

	rec := do(t, h, http.MethodGet, "/online", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Online", rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := newTestServer("", fakeServerController{}, &fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/online", nil)
	req.Header.Set("Origin", "https://panel.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://panel.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/online", nil)
	req.Header.Set("Origin", "https://elsewhere.example.net")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoutesWithoutCORSConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{sc: fakeServerController{}, ec: &fakeEngine{}}

	var h http.Handler
	require.NotPanics(t, func() { h = s.RegisterRoutes() })

	req := httptest.NewRequest(http.MethodGet, "/online", nil)
	req.Header.Set("Origin", "https://anywhere.example.net")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer("", fakeServerController{}, &fakeEngine{})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	ec := &fakeEngine{}
	h := newTestServer("secret", fakeServerController{}, ec)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/v1/dispatch", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/v1/dispatch", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/dispatch", "secret").Code)
}

func TestProcessBatch(t *testing.T) {
	ec := &fakeEngine{}
	h := newTestServer("", fakeServerController{}, ec)

	rec := do(t, h, http.MethodPost, "/v1/batches/42/process", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{42}, ec.batchIDs)

	var metrics model.BatchMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, 2, metrics.SuccessCount)
}

func TestProcessBatchErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{name: "bad id", path: "/v1/batches/abc/process", want: http.StatusBadRequest},
		{name: "claimed elsewhere", path: "/v1/batches/1/process", err: orchestrator.ErrBatchNotClaimable, want: http.StatusConflict},
		{name: "missing", path: "/v1/batches/1/process", err: database.ErrNotFound, want: http.StatusNotFound},
		{name: "failure", path: "/v1/batches/1/process", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer("", fakeServerController{}, &fakeEngine{batchErr: tt.err})
			assert.Equal(t, tt.want, do(t, h, http.MethodPost, tt.path, "").Code)
		})
	}
}

func TestPollReports(t *testing.T) {
	h := newTestServer("", fakeServerController{}, &fakeEngine{})

	rec := do(t, h, http.MethodPost, "/v1/pending-reports/poll", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary orchestrator.PollSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Due)
}

func TestAnalysis(t *testing.T) {
	ec := &fakeEngine{}
	h := newTestServer("", fakeServerController{}, ec)

	rec := do(t, h, http.MethodGet, "/v1/campaigns/10/analysis?project_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]int64{{1, 10}}, ec.analyzed)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/campaigns/10/analysis", "").Code)

	ec.analysisErr = fmt.Errorf("%w: 10", orchestrator.ErrUnknownCampaign)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/campaigns/10/analysis?project_id=1", "").Code)
}
