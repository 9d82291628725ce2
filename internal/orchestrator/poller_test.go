package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsyaclean/internal/model"
	"rsyaclean/internal/queue"
	"rsyaclean/pkg/direct"
)

func addPending(t *testing.T, h *harness, name string) *model.PendingReport {
	t.Helper()
	r := &model.PendingReport{
		ProjectID:   1,
		CampaignIDs: []int64{10},
		DateFrom:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		DateTo:      time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC),
		ReportName:  name,
	}
	created, err := h.store.CreatePendingReport(context.Background(), r)
	require.NoError(t, err)
	require.True(t, created)
	return h.store.pending[r.ID]
}

func TestPollerDeliversReadyReport(t *testing.T) {
	h := newHarness()
	h.store.addProject(*scenarioProject())
	addPending(t, h, "rsya-1")
	h.reports.placements = scenarioPlacements

	summary, err := NewPoller(h.services(), h.engine).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, model.ReportCompleted, h.store.pending[1].Status)

	require.Len(t, h.reports.calls, 1)
	assert.Equal(t, "rsya-1", h.reports.calls[0].ReportName)

	require.Len(t, h.publisher.messages, 1)
	msg := h.publisher.messages[0]
	assert.Equal(t, queue.TypePlacements, msg.Type)
	assert.Len(t, msg.Placements, 2)
	assert.Contains(t, h.history.metrics, "casino-x.com")
}

func TestPollerRetriesStillPendingReport(t *testing.T) {
	h := newHarness()
	h.store.addProject(*scenarioProject())
	addPending(t, h, "rsya-1")
	h.reports.respond = func(direct.ReportRequest) (*direct.Report, error) {
		return &direct.Report{Status: direct.ReportPending, Name: "rsya-1"}, nil
	}

	summary, err := NewPoller(h.services(), h.engine).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Retrying)
	r := h.store.pending[1]
	assert.Equal(t, model.ReportPending, r.Status)
	assert.Equal(t, 1, r.RetryCount)
	assert.NotNil(t, r.LastAttemptAt)
	assert.Empty(t, h.publisher.messages)
}

func TestPollerFailsReportAtRetryCeiling(t *testing.T) {
	h := newHarness()
	h.store.addProject(*scenarioProject())
	r := addPending(t, h, "rsya-1")
	r.RetryCount = 9
	h.reports.respond = func(direct.ReportRequest) (*direct.Report, error) {
		return nil, &direct.APIError{StatusCode: 500}
	}

	summary, err := NewPoller(h.services(), h.engine).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.ReportFailed, h.store.pending[1].Status)
	assert.Equal(t, 10, h.store.pending[1].RetryCount)
}

func TestPollerSkipsRecentlyAttempted(t *testing.T) {
	h := newHarness()
	h.store.addProject(*scenarioProject())
	r := addPending(t, h, "rsya-1")
	recent := time.Now().Add(-time.Minute)
	r.LastAttemptAt = &recent

	summary, err := NewPoller(h.services(), h.engine).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Due)
	assert.Zero(t, h.reports.callCount())
}

func TestPollerExpiresStaleReports(t *testing.T) {
	h := newHarness()
	h.store.addProject(*scenarioProject())
	r := addPending(t, h, "rsya-1")
	r.CreatedAt = time.Now().Add(-48 * time.Hour)

	summary, err := NewPoller(h.services(), h.engine).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Expired)
	assert.Equal(t, model.ReportFailed, h.store.pending[1].Status)
}

func TestPollerCountsPublishFailureAsAttempt(t *testing.T) {
	h := newHarness()
	h.store.addProject(*scenarioProject())
	addPending(t, h, "rsya-1")
	h.reports.placements = scenarioPlacements
	h.publisher.err = errors.New("broker down")

	summary, err := NewPoller(h.services(), h.engine).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retrying)
	assert.Equal(t, model.ReportPending, h.store.pending[1].Status)
	assert.Equal(t, 1, h.store.pending[1].RetryCount)
}

func TestJanitorSweepsExpiredLocks(t *testing.T) {
	h := newHarness()
	h.store.holdLock(1)
	require.NoError(t, h.store.ReleaseCampaignLock(context.Background(), 2))
	h.store.locks[3] = model.CampaignLock{CampaignID: 3, ExpiresAt: time.Now().Add(-time.Minute)}

	n, err := NewJanitor(h.store).SweepLocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, h.store.lockHeld(1))
}
