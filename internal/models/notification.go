package models

import "time"

// Notification informs a user about a change-request decision.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	RequestID *string    `db:"request_id" json:"request_id,omitempty"`
	Message   string     `db:"message" json:"message"`
	Read      bool       `db:"read" json:"read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
}
