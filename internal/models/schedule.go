package models

import "time"

// Day-of-week ordinals used by schedule slots (Monday..Friday).
const (
	DayMonday = 1 + iota
	DayTuesday
	DayWednesday
	DayThursday
	DayFriday
)

var dayKeys = map[int]string{
	DayMonday:    "monday",
	DayTuesday:   "tuesday",
	DayWednesday: "wednesday",
	DayThursday:  "thursday",
	DayFriday:    "friday",
}

// DayKey returns the lowercase day name for an ordinal, or "" when out of range.
func DayKey(dayOfWeek int) string {
	return dayKeys[dayOfWeek]
}

// WeekDayOrdinals returns the ordered ordinal domain of the teaching week.
func WeekDayOrdinals() []int {
	return []int{DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday}
}

// ValidDayOfWeek reports whether the ordinal falls inside the teaching week.
func ValidDayOfWeek(dayOfWeek int) bool {
	return dayOfWeek >= DayMonday && dayOfWeek <= DayFriday
}

// ScheduleSlot represents one class-group occupying one day/period combination.
type ScheduleSlot struct {
	ID         string    `db:"id" json:"id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	PeriodID   string    `db:"period_id" json:"period_id"`
	IsOriginal bool      `db:"is_original" json:"is_original"`
	Term       string    `db:"term" json:"term"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	// Joined columns for list responses.
	ClassName     string `db:"class_name" json:"class_name"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	PeriodOrdinal int    `db:"period_ordinal" json:"period_ordinal"`

	// Assignment sets loaded from join tables.
	TeacherIDs []string `db:"-" json:"teacher_ids"`
	RoomIDs    []string `db:"-" json:"room_ids"`
}

// ScheduleFilter describes query params for listing schedule slots.
// Filters narrow each other (AND semantics).
type ScheduleFilter struct {
	ClassID   string
	TeacherID string
	RoomID    string
	DayOfWeek *int
	Term      string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ScheduleConflict describes an existing canonical slot that causes a conflict.
type ScheduleConflict struct {
	SlotID    string `json:"slot_id"`
	ClassID   string `json:"class_id"`
	SubjectID string `json:"subject_id"`
	DayOfWeek int    `json:"day_of_week"`
	PeriodID  string `json:"period_id"`
}

// ScheduleConflictError is returned when a canonical slot collides with an existing one.
type ScheduleConflictError struct {
	Message  string           `json:"message"`
	Conflict ScheduleConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
