package models

import "time"

// Period is an ordinal teaching block with a display name and time bounds.
// The period master defines the vertical axis of the weekly grid.
type Period struct {
	ID        string    `db:"id" json:"id"`
	Ordinal   int       `db:"ordinal" json:"ordinal"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
