package dto

import "github.com/kosen-dev/timetable-api/internal/models"

// CreateChangeRequest payload for proposing a slot move.
type CreateChangeRequest struct {
	OriginalScheduleID string   `json:"original_schedule_id"`
	NewDayOfWeek       int      `json:"new_day_of_week"`
	NewPeriodID        string   `json:"new_period_id"`
	NewRoomIDs         []string `json:"new_room_ids"`
	Reason             string   `json:"reason"`
}

// ApproveRequest carries the optional approval comment.
type ApproveRequest struct {
	Comment string `json:"comment"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status   models.RequestStatus
	Page     int
	PageSize int
}
