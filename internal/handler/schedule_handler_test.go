package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/service"
)

type scheduleListStub struct {
	slots []models.ScheduleSlot
}

func (m *scheduleListStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, int, error) {
	return m.slots, len(m.slots), nil
}

func (m *scheduleListStub) ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error) {
	return m.slots, nil
}

func (m *scheduleListStub) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	return nil, sql.ErrNoRows
}

func (m *scheduleListStub) FindCanonical(ctx context.Context, classID string, dayOfWeek int, periodID string) (*models.ScheduleSlot, error) {
	return nil, sql.ErrNoRows
}

func (m *scheduleListStub) Create(ctx context.Context, slot *models.ScheduleSlot) error { return nil }
func (m *scheduleListStub) Update(ctx context.Context, slot *models.ScheduleSlot) error { return nil }
func (m *scheduleListStub) Delete(ctx context.Context, id string) error                 { return nil }

func TestScheduleHandlerListEmptyRendersEmptyArray(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewScheduleService(&scheduleListStub{slots: make([]models.ScheduleSlot, 0)}, nil, nil, zap.NewNop())
	handler := NewScheduleHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/schedules", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
	assert.Contains(t, w.Body.String(), `"total_count":0`)
}

func TestScheduleHandlerListRejectsBadDayOfWeek(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewScheduleService(&scheduleListStub{}, nil, nil, zap.NewNop())
	handler := NewScheduleHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/schedules?day_of_week=wed", nil)
	c.Request = req

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
