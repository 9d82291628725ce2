package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCursor(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		want      int64
		wantErr   bool
	}{
		{
			name: "returns stored position",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM engine_cursors").
					WithArgs("dispatch").
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(17))
			},
			want: 17,
		},
		{
			name: "missing cursor starts at zero",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM engine_cursors").
					WithArgs("dispatch").
					WillReturnError(sql.ErrNoRows)
			},
			want: 0,
		},
		{
			name: "database failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM engine_cursors").
					WithArgs("dispatch").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newMockDB(t)
			defer cleanup()

			tc.setupMock(mock)

			got, err := db.GetCursor(context.Background(), "dispatch")
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}

			expectationsMet(t, mock)
		})
	}
}

func TestSetCursor(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO engine_cursors").
		WithArgs("dispatch", int64(25), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.SetCursor(context.Background(), "dispatch", 25))

	expectationsMet(t, mock)
}
