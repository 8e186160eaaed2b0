package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/models"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
)

func fourPeriods() []models.Period {
	return []models.Period{
		{ID: "p1", Ordinal: 1, Name: "1st Period"},
		{ID: "p2", Ordinal: 2, Name: "2nd Period"},
		{ID: "p3", Ordinal: 3, Name: "3rd Period"},
		{ID: "p4", Ordinal: 4, Name: "4th Period"},
	}
}

func TestBuildWeeklyGridCoversEveryCell(t *testing.T) {
	periods := fourPeriods()
	slots := []models.ScheduleSlot{
		{ID: "s1", ClassID: "c1", DayOfWeek: models.DayMonday, PeriodID: "p1", SubjectName: "Math"},
		{ID: "s2", ClassID: "c1", DayOfWeek: models.DayFriday, PeriodID: "p4", SubjectName: "Art"},
	}

	grid := BuildWeeklyGrid("c1", slots, periods)

	assert.Equal(t, []string{"monday", "tuesday", "wednesday", "thursday", "friday"}, grid.Days)
	assert.Equal(t, 20, grid.CellCount())
	for _, day := range grid.Days {
		require.Len(t, grid.Grid[day], len(periods))
		for _, p := range periods {
			require.NotNil(t, grid.Grid[day][p.Ordinal], "cell %s/%d missing", day, p.Ordinal)
		}
	}
	assert.Len(t, grid.Grid["monday"][1], 1)
	assert.Len(t, grid.Grid["friday"][4], 1)
	assert.Empty(t, grid.Grid["wednesday"][2])
}

func TestBuildWeeklyGridEmptyInput(t *testing.T) {
	grid := BuildWeeklyGrid("c1", nil, fourPeriods())

	assert.Equal(t, 20, grid.CellCount())
	for _, day := range grid.Days {
		for ordinal, cell := range grid.Grid[day] {
			assert.Emptyf(t, cell, "expected empty cell %s/%d", day, ordinal)
			assert.NotNil(t, cell)
		}
	}
}

func TestBuildWeeklyGridKeepsParallelSections(t *testing.T) {
	slots := []models.ScheduleSlot{
		{ID: "s2", ClassID: "c1", DayOfWeek: models.DayTuesday, PeriodID: "p2", SubjectName: "Physics"},
		{ID: "s1", ClassID: "c1", DayOfWeek: models.DayTuesday, PeriodID: "p2", SubjectName: "Chemistry"},
	}

	grid := BuildWeeklyGrid("c1", slots, fourPeriods())

	cell := grid.Grid["tuesday"][2]
	require.Len(t, cell, 2)
	assert.Equal(t, "Chemistry", cell[0].SubjectName)
	assert.Equal(t, "Physics", cell[1].SubjectName)
}

func TestBuildWeeklyGridDropsOutOfRangeSlots(t *testing.T) {
	slots := []models.ScheduleSlot{
		{ID: "s1", DayOfWeek: 0, PeriodID: "p1"},
		{ID: "s2", DayOfWeek: 6, PeriodID: "p1"},
		{ID: "s3", DayOfWeek: models.DayMonday, PeriodID: "unknown-period"},
		{ID: "s4", DayOfWeek: models.DayMonday, PeriodID: "p1", SubjectName: "Math"},
	}

	grid := BuildWeeklyGrid("c1", slots, fourPeriods())

	total := 0
	for _, day := range grid.Days {
		for _, cell := range grid.Grid[day] {
			total += len(cell)
		}
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, "s4", grid.Grid["monday"][1][0].ID)
}

func TestBuildWeeklyGridOrderIndependent(t *testing.T) {
	a := []models.ScheduleSlot{
		{ID: "s1", DayOfWeek: 1, PeriodID: "p1", SubjectName: "Math"},
		{ID: "s2", DayOfWeek: 1, PeriodID: "p1", SubjectName: "Biology"},
	}
	b := []models.ScheduleSlot{a[1], a[0]}

	gridA := BuildWeeklyGrid("c1", a, fourPeriods())
	gridB := BuildWeeklyGrid("c1", b, fourPeriods())

	assert.Equal(t, gridA.Grid, gridB.Grid)
}

type mockTimetableSchedules struct {
	slots []models.ScheduleSlot
	calls int
}

func (m *mockTimetableSchedules) ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error) {
	m.calls++
	return m.slots, nil
}

type mockTimetablePeriods struct {
	periods []models.Period
}

func (m *mockTimetablePeriods) ListOrdered(ctx context.Context) ([]models.Period, error) {
	return m.periods, nil
}

type mockTimetableClasses struct {
	class *models.Class
}

func (m *mockTimetableClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if m.class == nil {
		return nil, sql.ErrNoRows
	}
	return m.class, nil
}

func TestTimetableServiceGetWeekly(t *testing.T) {
	schedules := &mockTimetableSchedules{slots: []models.ScheduleSlot{
		{ID: "s1", ClassID: "c1", DayOfWeek: 1, PeriodID: "p1", SubjectName: "Math"},
	}}
	svc := NewTimetableService(schedules, &mockTimetablePeriods{periods: fourPeriods()},
		&mockTimetableClasses{class: &models.Class{ID: "c1", Name: "1-A"}}, nil, nil, 0, zap.NewNop())

	grid, err := svc.GetWeekly(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", grid.ClassID)
	assert.Len(t, grid.Grid["monday"][1], 1)
	assert.Equal(t, 1, schedules.calls)
}

func TestTimetableServiceGetWeeklyUnknownClass(t *testing.T) {
	svc := NewTimetableService(&mockTimetableSchedules{}, &mockTimetablePeriods{periods: fourPeriods()},
		&mockTimetableClasses{}, nil, nil, 0, zap.NewNop())

	_, err := svc.GetWeekly(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceExportWeeklyPDF(t *testing.T) {
	schedules := &mockTimetableSchedules{slots: []models.ScheduleSlot{
		{ID: "s1", ClassID: "c1", DayOfWeek: 1, PeriodID: "p1", SubjectName: "Math"},
	}}
	svc := NewTimetableService(schedules, &mockTimetablePeriods{periods: fourPeriods()},
		&mockTimetableClasses{class: &models.Class{ID: "c1", Name: "1-A"}}, nil, nil, 0, zap.NewNop())

	payload, filename, err := svc.ExportWeeklyPDF(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
	assert.Contains(t, filename, "timetable_1-A")
	assert.Contains(t, filename, ".pdf")
}
