package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsyaclean/internal/database"
	"rsyaclean/internal/model"
)

var batchColumns = []string{
	"id", "project_id", "campaign_ids", "batch_number", "total_batches", "status",
	"retry_count", "error_message", "created_at", "updated_at", "completed_at",
}

func TestCreateBatches_SequentialNumbers(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO batches").
		WithArgs(int64(5), sqlmock.AnyArg(), 1, 2).
		WillReturnRows(sqlmock.NewRows(batchColumns).
			AddRow(100, 5, "{1,2}", 1, 2, "pending", 0, nil, now, now, nil))
	mock.ExpectQuery("INSERT INTO batches").
		WithArgs(int64(5), sqlmock.AnyArg(), 2, 2).
		WillReturnRows(sqlmock.NewRows(batchColumns).
			AddRow(101, 5, "{3}", 2, 2, "pending", 0, nil, now, now, nil))
	mock.ExpectCommit()

	batches, err := db.CreateBatches(context.Background(), 5, [][]int64{{1, 2}, {3}})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 1, batches[0].BatchNumber)
	assert.Equal(t, 2, batches[1].BatchNumber)
	assert.Equal(t, []int64{1, 2}, []int64(batches[0].CampaignIDs))
	assert.Equal(t, model.BatchPending, batches[1].Status)

	expectationsMet(t, mock)
}

func TestGetBatch_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM batches WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(batchColumns))

	_, err := db.GetBatch(context.Background(), 9)
	assert.ErrorIs(t, err, database.ErrNotFound)

	expectationsMet(t, mock)
}

func TestMarkBatchProcessing(t *testing.T) {
	testCases := []struct {
		name string
		rows int64
		want bool
	}{
		{"claims pending batch", 1, true},
		{"batch owned or completed", 0, false},
		{"failed batch out of retries", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newMockDB(t)
			defer cleanup()

			mock.ExpectExec(`UPDATE batches SET status = 'processing'.*status = 'failed' AND retry_count < \$3`).
				WithArgs(int64(3), sqlmock.AnyArg(), 3).
				WillReturnResult(sqlmock.NewResult(0, tc.rows))

			got, err := db.MarkBatchProcessing(context.Background(), 3, 5*time.Minute, 3)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			expectationsMet(t, mock)
		})
	}
}

func TestFailBatch(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE batches").
		WithArgs(int64(3), "report source unavailable").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.FailBatch(context.Background(), 3, "report source unavailable"))

	expectationsMet(t, mock)
}

func TestListRetryableBatches(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now()
	msg := "boom"
	mock.ExpectQuery("SELECT (.+) FROM batches").
		WithArgs(3, 10).
		WillReturnRows(sqlmock.NewRows(batchColumns).
			AddRow(7, 1, "{4,5}", 1, 1, "failed", 1, msg, now, now, nil))

	batches, err := db.ListRetryableBatches(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, model.BatchFailed, batches[0].Status)
	require.NotNil(t, batches[0].ErrorMessage)
	assert.Equal(t, "boom", *batches[0].ErrorMessage)

	expectationsMet(t, mock)
}
