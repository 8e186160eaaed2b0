package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosen-dev/timetable-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows(id, requestedBy string, status models.RequestStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "original_schedule_id", "new_day_of_week", "new_period_id", "reason", "status",
		"requested_by", "decided_by", "decision_comment", "created_at", "decided_at", "updated_at",
		"requester_name", "decider_name",
	}).AddRow(id, "slot-1", 3, "p2", "projector is broken", status, requestedBy, nil, nil, now, nil, now, "Teacher A", nil)
}

func TestRequestRepositoryCreateInsertsRooms(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO change_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO change_request_rooms").
		WithArgs(sqlmock.AnyArg(), "r1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO change_request_rooms").
		WithArgs(sqlmock.AnyArg(), "r2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.ChangeRequest{
		OriginalScheduleID: "slot-1",
		NewDayOfWeek:       3,
		NewPeriodID:        "p2",
		NewRoomIDs:         []string{"r1", "r2"},
		Reason:             "projector is broken",
		RequestedBy:        "t1",
	}
	err := repo.Create(context.Background(), request)
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT r.id, r.original_schedule_id").
		WithArgs("req-1").
		WillReturnRows(requestRows("req-1", "t1", models.RequestStatusPending))
	mock.ExpectQuery("SELECT request_id, room_id FROM change_request_rooms").
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "room_id"}).
			AddRow("req-1", "r1").
			AddRow("req-1", "r2"))

	request, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", request.ID)
	assert.Equal(t, []string{"r1", "r2"}, request.NewRoomIDs)
	assert.Equal(t, "Teacher A", request.RequesterName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT r.id, r.original_schedule_id").
		WithArgs(models.RequestStatusPending, "t1").
		WillReturnRows(requestRows("req-1", "t1", models.RequestStatusPending))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM change_requests`).
		WithArgs(models.RequestStatusPending, "t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT request_id, room_id FROM change_request_rooms").
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "room_id"}))

	requests, total, err := repo.List(context.Background(), models.RequestFilter{
		Status:      models.RequestStatusPending,
		RequestedBy: "t1",
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{}, requests[0].NewRoomIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDecide(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("UPDATE change_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Decide(context.Background(), DecisionParams{
		ID:        "req-1",
		Status:    models.RequestStatusApproved,
		DecidedBy: "admin-1",
		DecidedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDecideAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("UPDATE change_requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Decide(context.Background(), DecisionParams{
		ID:        "req-1",
		Status:    models.RequestStatusRejected,
		DecidedBy: "admin-1",
		DecidedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCancelGuardsOwnership(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE change_requests SET status = 'cancelled'").
		WithArgs("req-1", "t1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel(context.Background(), "req-1", "t1", at)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
