package models

import "time"

// Class represents a class-group, the cohort of students sharing a timetable.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Grade     int       `db:"grade" json:"grade"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Grade     *int
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
