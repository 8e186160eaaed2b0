package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/middleware"
	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/repository"
	"github.com/kosen-dev/timetable-api/internal/service"
	"github.com/kosen-dev/timetable-api/pkg/response"
)

type requestRepoStub struct {
	requests map[string]*models.ChangeRequest
}

func (m *requestRepoStub) Create(ctx context.Context, request *models.ChangeRequest) error {
	request.ID = "req-1"
	if m.requests == nil {
		m.requests = make(map[string]*models.ChangeRequest)
	}
	m.requests[request.ID] = request
	return nil
}

func (m *requestRepoStub) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return req, nil
}

func (m *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.ChangeRequest, int, error) {
	var out []models.ChangeRequest
	for _, req := range m.requests {
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (m *requestRepoStub) Decide(ctx context.Context, params repository.DecisionParams) error {
	return nil
}

func (m *requestRepoStub) Cancel(ctx context.Context, id, requesterID string, at time.Time) error {
	return nil
}

type scheduleRepoStub struct {
	slots map[string]*models.ScheduleSlot
}

func (m *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	slot, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return slot, nil
}

func (m *scheduleRepoStub) FindCanonical(ctx context.Context, classID string, dayOfWeek int, periodID string) (*models.ScheduleSlot, error) {
	return nil, sql.ErrNoRows
}

func (m *scheduleRepoStub) ApplyMove(ctx context.Context, originalID string, newDayOfWeek int, newPeriodID string, newRoomIDs []string) (*models.ScheduleSlot, error) {
	return &models.ScheduleSlot{ID: "slot-new"}, nil
}

func newRequestHandlerForTest(repo *requestRepoStub, schedules *scheduleRepoStub) *RequestHandler {
	svc := service.NewRequestService(repo, schedules, nil, nil, nil, service.RequestPolicy{}, nil, zap.NewNop())
	return NewRequestHandler(svc)
}

func withClaims(w *httptest.ResponseRecorder, claims *models.JWTClaims) (*gin.Context, *gin.Engine) {
	c, r := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, claims)
	return c, r
}

func TestRequestHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandlerForTest(&requestRepoStub{}, &scheduleRepoStub{slots: map[string]*models.ScheduleSlot{
		"slot-1": {ID: "slot-1", ClassID: "c1"},
	}})

	body, _ := json.Marshal(map[string]interface{}{
		"original_schedule_id": "slot-1",
		"new_day_of_week":      3,
		"new_period_id":        "p2",
		"new_room_ids":         []string{"r1"},
		"reason":               "the lab is closed for maintenance",
	})

	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	req, _ := http.NewRequest(http.MethodPost, "/requests", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Error)
}

func TestRequestHandlerCreateShortReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandlerForTest(&requestRepoStub{}, &scheduleRepoStub{})

	body, _ := json.Marshal(map[string]interface{}{
		"original_schedule_id": "slot-1",
		"new_day_of_week":      3,
		"new_period_id":        "p2",
		"new_room_ids":         []string{"r1"},
		"reason":               "short",
	})

	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	req, _ := http.NewRequest(http.MethodPost, "/requests", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerApproveAlreadyDecidedConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &requestRepoStub{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", OriginalScheduleID: "slot-1", Status: models.RequestStatusRejected, RequestedBy: "t1"},
	}}
	handler := newRequestHandlerForTest(repo, &scheduleRepoStub{})

	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	req, _ := http.NewRequest(http.MethodPost, "/requests/req-1/approve", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ALREADY_DECIDED", envelope.Error.Code)
}

func TestRequestHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &requestRepoStub{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", OriginalScheduleID: "slot-1", NewDayOfWeek: 3, NewPeriodID: "p2", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	schedules := &scheduleRepoStub{slots: map[string]*models.ScheduleSlot{
		"slot-1": {ID: "slot-1", ClassID: "c1"},
	}}
	handler := newRequestHandlerForTest(repo, schedules)

	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	req, _ := http.NewRequest(http.MethodPost, "/requests/req-1/approve", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"approved"`)
}

func TestRequestHandlerRejectMissingReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &requestRepoStub{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	handler := newRequestHandlerForTest(repo, &scheduleRepoStub{})

	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	req, _ := http.NewRequest(http.MethodPost, "/requests/req-1/reject", bytes.NewBufferString(`{"reason":""}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerListPageSizeAlias(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &requestRepoStub{requests: map[string]*models.ChangeRequest{
		"req-1": {ID: "req-1", Status: models.RequestStatusPending, RequestedBy: "t1"},
	}}
	handler := newRequestHandlerForTest(repo, &scheduleRepoStub{})

	// camelCase alias for clients following the older contract
	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	req, _ := http.NewRequest(http.MethodGet, "/requests?pageSize=5", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"page_size":5`)

	// snake_case wins when both are present
	w = httptest.NewRecorder()
	c, _ = withClaims(w, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	req, _ = http.NewRequest(http.MethodGet, "/requests?page_size=7&pageSize=5", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"page_size":7`)
}

func TestRequestHandlerUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandlerForTest(&requestRepoStub{}, &scheduleRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/requests", nil)
	c.Request = req

	handler.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
