package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/dto"
	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/service"
	"github.com/kosen-dev/timetable-api/pkg/response"
)

type timetableSchedulesStub struct {
	slots []models.ScheduleSlot
}

func (m *timetableSchedulesStub) ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error) {
	return m.slots, nil
}

type timetablePeriodsStub struct {
	periods []models.Period
}

func (m *timetablePeriodsStub) ListOrdered(ctx context.Context) ([]models.Period, error) {
	return m.periods, nil
}

type timetableClassesStub struct {
	class *models.Class
}

func (m *timetableClassesStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if m.class == nil {
		return nil, sql.ErrNoRows
	}
	return m.class, nil
}

func newTimetableHandlerForTest(slots []models.ScheduleSlot, class *models.Class) *TimetableHandler {
	svc := service.NewTimetableService(
		&timetableSchedulesStub{slots: slots},
		&timetablePeriodsStub{periods: []models.Period{
			{ID: "p1", Ordinal: 1, Name: "1st Period"},
			{ID: "p2", Ordinal: 2, Name: "2nd Period"},
		}},
		&timetableClassesStub{class: class},
		nil, nil, 0, zap.NewNop(),
	)
	return NewTimetableHandler(svc)
}

func TestTimetableHandlerWeekly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTimetableHandlerForTest([]models.ScheduleSlot{
		{ID: "s1", ClassID: "c1", DayOfWeek: 1, PeriodID: "p1", SubjectName: "Math"},
	}, &models.Class{ID: "c1", Name: "1-A"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/timetables/c1/weekly", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "class_id", Value: "c1"}}

	handler.Weekly(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.WeeklyTimetable `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "c1", envelope.Data.ClassID)
	assert.Len(t, envelope.Data.Days, 5)
	assert.Len(t, envelope.Data.Grid["monday"][1], 1)
	assert.Empty(t, envelope.Data.Grid["friday"][2])
}

func TestTimetableHandlerWeeklyUnknownClass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTimetableHandlerForTest(nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/timetables/ghost/weekly", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "class_id", Value: "ghost"}}

	handler.Weekly(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestTimetableHandlerExportPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTimetableHandlerForTest([]models.ScheduleSlot{
		{ID: "s1", ClassID: "c1", DayOfWeek: 1, PeriodID: "p1", SubjectName: "Math"},
	}, &models.Class{ID: "c1", Name: "1-A"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/timetables/c1/export.pdf", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "class_id", Value: "c1"}}

	handler.ExportPDF(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.NotEmpty(t, w.Body.Bytes())
}
