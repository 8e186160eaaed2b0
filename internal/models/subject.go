package models

import "time"

// Subject terms as used by the curriculum master.
const (
	TermFirstSemester  = "first_semester"
	TermSecondSemester = "second_semester"
	TermFullYear       = "full_year"
)

// Subject represents an academic subject.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Term      string    `db:"term" json:"term"`
	Credits   int       `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Category  string
	Term      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
