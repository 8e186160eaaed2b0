package dto

import "github.com/kosen-dev/timetable-api/internal/models"

// WeeklyTimetable is the derived day × period grid of a class-group's slots.
// Every (day, period) cell is present; cells hold every slot matching the
// coordinate so parallel sections are never silently dropped.
type WeeklyTimetable struct {
	ClassID string                                 `json:"class_id"`
	Days    []string                               `json:"days"`
	Periods []models.Period                        `json:"periods"`
	Grid    map[string]map[int][]models.ScheduleSlot `json:"grid"`
}

// CellCount returns the number of cells in the grid domain.
func (w *WeeklyTimetable) CellCount() int {
	return len(w.Days) * len(w.Periods)
}
