package models

import "time"

// CSVImportResult summarises a processed upload. Rows that fail validation
// are reported individually; the import continues past them.
type CSVImportResult struct {
	Success       bool          `json:"success"`
	TotalRows     int           `json:"total_rows"`
	ProcessedRows int           `json:"processed_rows"`
	ErrorRows     []CSVErrorRow `json:"error_rows"`
	ProcessedAt   time.Time     `json:"processed_at"`
}

// CSVErrorRow pinpoints a rejected input row.
type CSVErrorRow struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
	Data  string `json:"data"`
}

// SubjectCSVRow is one record of the subject master import layout.
type SubjectCSVRow struct {
	Code     string
	Name     string
	Category string
	Term     string
	Credits  string
}

// TimetableCSVRow is one record of the timetable import layout: a class
// column followed by one subject-code column per (day, period) cell.
type TimetableCSVRow struct {
	Class string
	Cells []string
}
