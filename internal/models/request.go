package models

import "time"

// RequestStatus captures workflow states for timetable change requests.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// ChangeRequest proposes moving one schedule slot to a new day/period/room set.
type ChangeRequest struct {
	ID                 string        `db:"id" json:"id"`
	OriginalScheduleID string        `db:"original_schedule_id" json:"original_schedule_id"`
	NewDayOfWeek       int           `db:"new_day_of_week" json:"new_day_of_week"`
	NewPeriodID        string        `db:"new_period_id" json:"new_period_id"`
	Reason             string        `db:"reason" json:"reason"`
	Status             RequestStatus `db:"status" json:"status"`
	RequestedBy        string        `db:"requested_by" json:"requested_by"`
	DecidedBy          *string       `db:"decided_by" json:"decided_by,omitempty"`
	DecisionComment    *string       `db:"decision_comment" json:"decision_comment,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	DecidedAt          *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`

	// Joined columns for list responses.
	RequesterName string  `db:"requester_name" json:"requester_name"`
	DeciderName   *string `db:"decider_name" json:"decider_name,omitempty"`

	// Proposed room set, loaded from the join table.
	NewRoomIDs []string `db:"-" json:"new_room_ids"`
}

// RequestFilter constrains change-request listing queries.
type RequestFilter struct {
	Status      RequestStatus
	RequestedBy string
	Page        int
	PageSize    int
}
