package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsyaclean/internal/database"
)

func TestListDueProjects(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM projects p").
		WithArgs(int64(4), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "campaign_ids", "oauth_token", "client_login", "target_cpa", "interval_seconds"}).
			AddRow(5, "shop", "{100,101}", "token", "shop-login", 800.0, 900))

	projects, err := db.ListDueProjects(context.Background(), 4, 50)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, []int64{100, 101}, []int64(projects[0].CampaignIDs))
	assert.Equal(t, "shop-login", projects[0].ClientLogin)
	assert.Equal(t, 15*time.Minute, projects[0].ScheduleEvery(time.Hour))

	expectationsMet(t, mock)
}

func TestGetProject_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM projects p WHERE p.id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.GetProject(context.Background(), 1)
	assert.ErrorIs(t, err, database.ErrNotFound)

	expectationsMet(t, mock)
}

func TestListEnabledTasks_SkipsMalformedConfig(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "project_id", "name", "enabled", "config", "last_executed_at"}).
		AddRow(1, 5, "casino", true, []byte(`{"keywords":["casino"],"max_ctr":100}`), nil).
		AddRow(2, 5, "broken", true, []byte(`{"colour":"red"}`), nil)

	mock.ExpectQuery("SELECT (.+) FROM tasks").
		WithArgs(int64(5)).
		WillReturnRows(rows)

	tasks, err := db.ListEnabledTasks(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"casino"}, tasks[0].Config.Keywords)
	require.NotNil(t, tasks[0].Config.MaxCTR)
	assert.Equal(t, 100.0, *tasks[0].Config.MaxCTR)

	expectationsMet(t, mock)
}
