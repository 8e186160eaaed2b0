package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/dto"
	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/repository"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
)

type mockRequestRepo struct {
	requests    map[string]*models.ChangeRequest
	createCalls int
	decideCalls int
	cancelCalls int
	createErr   error
	decideErr   error
	cancelErr   error
	lastDecided repository.DecisionParams
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.ChangeRequest) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	request.ID = "req-1"
	request.CreatedAt = time.Now().UTC()
	request.UpdatedAt = request.CreatedAt
	if m.requests == nil {
		m.requests = make(map[string]*models.ChangeRequest)
	}
	m.requests[request.ID] = request
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return req, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter models.RequestFilter) ([]models.ChangeRequest, int, error) {
	var out []models.ChangeRequest
	for _, req := range m.requests {
		if filter.RequestedBy != "" && req.RequestedBy != filter.RequestedBy {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (m *mockRequestRepo) Decide(ctx context.Context, params repository.DecisionParams) error {
	m.decideCalls++
	if m.decideErr != nil {
		return m.decideErr
	}
	m.lastDecided = params
	return nil
}

func (m *mockRequestRepo) Cancel(ctx context.Context, id, requesterID string, at time.Time) error {
	m.cancelCalls++
	return m.cancelErr
}

type mockRequestSchedules struct {
	slots          map[string]*models.ScheduleSlot
	canonical      *models.ScheduleSlot
	applyMoveCalls int
	applyMoveErr   error
}

func (m *mockRequestSchedules) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	slot, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return slot, nil
}

func (m *mockRequestSchedules) FindCanonical(ctx context.Context, classID string, dayOfWeek int, periodID string) (*models.ScheduleSlot, error) {
	if m.canonical == nil {
		return nil, sql.ErrNoRows
	}
	return m.canonical, nil
}

func (m *mockRequestSchedules) ApplyMove(ctx context.Context, originalID string, newDayOfWeek int, newPeriodID string, newRoomIDs []string) (*models.ScheduleSlot, error) {
	m.applyMoveCalls++
	if m.applyMoveErr != nil {
		return nil, m.applyMoveErr
	}
	return &models.ScheduleSlot{ID: "slot-new", DayOfWeek: newDayOfWeek, PeriodID: newPeriodID}, nil
}

type mockRequestAudit struct {
	logs []*models.AuditLog
}

func (m *mockRequestAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type mockRequestNotifier struct {
	notified []*models.ChangeRequest
}

func (m *mockRequestNotifier) NotifyRequestDecided(ctx context.Context, request *models.ChangeRequest) {
	m.notified = append(m.notified, request)
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}
}

func newRequestServiceForTest(repo *mockRequestRepo, schedules *mockRequestSchedules, notifier *mockRequestNotifier) (*RequestService, *mockRequestAudit) {
	audit := &mockRequestAudit{}
	svc := NewRequestService(repo, schedules, audit, notifier, nil, RequestPolicy{MinReasonLength: 10}, nil, zap.NewNop())
	return svc, audit
}

func TestRequestServiceCreatePending(t *testing.T) {
	repo := &mockRequestRepo{}
	schedules := &mockRequestSchedules{slots: map[string]*models.ScheduleSlot{
		"slot-1": {ID: "slot-1", ClassID: "c1", DayOfWeek: 1, PeriodID: "p1"},
	}}
	svc, audit := newRequestServiceForTest(repo, schedules, nil)

	req, err := svc.Create(context.Background(), teacherClaims(), dto.CreateChangeRequest{
		OriginalScheduleID: "slot-1",
		NewDayOfWeek:       3,
		NewPeriodID:        "p2",
		NewRoomIDs:         []string{"r1"},
		Reason:             "projector broken in the original room",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, "t1", req.RequestedBy)
	assert.Equal(t, 1, repo.createCalls)
	assert.Len(t, audit.logs, 1)
}

func TestRequestServiceCreateShortReason(t *testing.T) {
	repo := &mockRequestRepo{}
	schedules := &mockRequestSchedules{}
	svc, _ := newRequestServiceForTest(repo, schedules, nil)

	_, err := svc.Create(context.Background(), teacherClaims(), dto.CreateChangeRequest{
		OriginalScheduleID: "slot-1",
		NewDayOfWeek:       3,
		NewPeriodID:        "p2",
		NewRoomIDs:         []string{"r1"},
		Reason:             "too short",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.createCalls)
}

func TestRequestServiceCreateForbiddenForStudents(t *testing.T) {
	repo := &mockRequestRepo{}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	_, err := svc.Create(context.Background(), &models.JWTClaims{UserID: "s1", Role: models.RoleStudent}, dto.CreateChangeRequest{
		OriginalScheduleID: "slot-1",
		NewDayOfWeek:       2,
		NewPeriodID:        "p1",
		NewRoomIDs:         []string{"r1"},
		Reason:             "a perfectly valid reason text",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.createCalls)
}

func TestRequestServiceCreateInvalidDay(t *testing.T) {
	svc, _ := newRequestServiceForTest(&mockRequestRepo{}, &mockRequestSchedules{}, nil)

	_, err := svc.Create(context.Background(), teacherClaims(), dto.CreateChangeRequest{
		OriginalScheduleID: "slot-1",
		NewDayOfWeek:       6,
		NewPeriodID:        "p1",
		NewRoomIDs:         []string{"r1"},
		Reason:             "a perfectly valid reason text",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCreateMissingSlot(t *testing.T) {
	svc, _ := newRequestServiceForTest(&mockRequestRepo{}, &mockRequestSchedules{}, nil)

	_, err := svc.Create(context.Background(), teacherClaims(), dto.CreateChangeRequest{
		OriginalScheduleID: "ghost",
		NewDayOfWeek:       2,
		NewPeriodID:        "p1",
		NewRoomIDs:         []string{"r1"},
		Reason:             "a perfectly valid reason text",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceApproveAppliesMove(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", OriginalScheduleID: "slot-1", NewDayOfWeek: 3, NewPeriodID: "p2", NewRoomIDs: []string{"r2"}, Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	schedules := &mockRequestSchedules{slots: map[string]*models.ScheduleSlot{
		"slot-1": {ID: "slot-1", ClassID: "c1", DayOfWeek: 1, PeriodID: "p1"},
	}}
	notifier := &mockRequestNotifier{}
	svc, audit := newRequestServiceForTest(repo, schedules, notifier)

	decided, err := svc.Approve(context.Background(), adminClaims(), "req-1", dto.ApproveRequest{Comment: "makes sense"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, "a1", *decided.DecidedBy)
	assert.Equal(t, 1, repo.decideCalls)
	assert.Equal(t, 1, schedules.applyMoveCalls)
	assert.Equal(t, models.RequestStatusApproved, repo.lastDecided.Status)
	assert.Len(t, notifier.notified, 1)
	assert.Len(t, audit.logs, 1)
}

func TestRequestServiceApproveMoveFailureKeepsRequestPending(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", OriginalScheduleID: "slot-1", NewDayOfWeek: 3, NewPeriodID: "p2", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	schedules := &mockRequestSchedules{
		slots:        map[string]*models.ScheduleSlot{"slot-1": {ID: "slot-1", ClassID: "c1"}},
		applyMoveErr: errors.New("deadlock detected"),
	}
	notifier := &mockRequestNotifier{}
	svc, audit := newRequestServiceForTest(repo, schedules, notifier)

	_, err := svc.Approve(context.Background(), adminClaims(), "req-1", dto.ApproveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	// the grid rewrite failed, so no terminal status may have been written
	assert.Equal(t, 1, schedules.applyMoveCalls)
	assert.Equal(t, 0, repo.decideCalls)
	assert.Equal(t, models.RequestStatusPending, repo.requests["req-1"].Status)
	assert.Empty(t, notifier.notified)
	assert.Empty(t, audit.logs)
}

func TestRequestServiceApproveAlreadyDecided(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", OriginalScheduleID: "slot-1", Status: models.RequestStatusRejected, RequestedBy: "t1"},
	}}
	schedules := &mockRequestSchedules{}
	svc, _ := newRequestServiceForTest(repo, schedules, nil)

	_, err := svc.Approve(context.Background(), adminClaims(), "req-1", dto.ApproveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.decideCalls)
	assert.Equal(t, 0, schedules.applyMoveCalls)
}

func TestRequestServiceApproveTargetOccupied(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", OriginalScheduleID: "slot-1", NewDayOfWeek: 3, NewPeriodID: "p2", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	schedules := &mockRequestSchedules{
		slots:     map[string]*models.ScheduleSlot{"slot-1": {ID: "slot-1", ClassID: "c1"}},
		canonical: &models.ScheduleSlot{ID: "slot-other", ClassID: "c1", DayOfWeek: 3, PeriodID: "p2"},
	}
	svc, _ := newRequestServiceForTest(repo, schedules, nil)

	_, err := svc.Approve(context.Background(), adminClaims(), "req-1", dto.ApproveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, schedules.applyMoveCalls)
}

func TestRequestServiceApproveForbiddenForTeachers(t *testing.T) {
	svc, _ := newRequestServiceForTest(&mockRequestRepo{}, &mockRequestSchedules{}, nil)

	_, err := svc.Approve(context.Background(), teacherClaims(), "req-1", dto.ApproveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceRejectRequiresReason(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	_, err := svc.Reject(context.Background(), adminClaims(), "req-1", dto.RejectRequest{Reason: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.decideCalls)
}

func TestRequestServiceReject(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	notifier := &mockRequestNotifier{}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, notifier)

	decided, err := svc.Reject(context.Background(), adminClaims(), "req-1", dto.RejectRequest{Reason: "room is reserved for exams"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, decided.Status)
	require.NotNil(t, decided.DecisionComment)
	assert.Equal(t, "room is reserved for exams", *decided.DecisionComment)
	assert.Len(t, notifier.notified, 1)
}

func TestRequestServiceCancelByRequester(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	cancelled, err := svc.Cancel(context.Background(), teacherClaims(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, repo.cancelCalls)
}

func TestRequestServiceCancelByOtherUser(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "someone-else"},
	}}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	_, err := svc.Cancel(context.Background(), teacherClaims(), "req-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.cancelCalls)
}

func TestRequestServiceCancelDecided(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusApproved, RequestedBy: "t1"},
	}}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	_, err := svc.Cancel(context.Background(), teacherClaims(), "req-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceListScopesTeachersToOwn(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t1"},
		"req-2": {ID: "req-2", Status: models.RequestStatusPending, RequestedBy: "t2"},
	}}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	own, _, err := svc.List(context.Background(), teacherClaims(), dto.RequestQuery{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "req-1", own[0].ID)

	all, pagination, err := svc.List(context.Background(), adminClaims(), dto.RequestQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestRequestServiceGetHidesForeignRequests(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t2"},
	}}
	svc, _ := newRequestServiceForTest(repo, &mockRequestSchedules{}, nil)

	_, err := svc.Get(context.Background(), teacherClaims(), "req-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.Get(context.Background(), adminClaims(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.ID)
}
