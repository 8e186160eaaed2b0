package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	ClassID      *string    `db:"class_id" json:"class_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Capability names an action a role may perform. Clients derive their
// navigation from this table rather than hard-coding per-role menus.
type Capability string

const (
	CapViewTimetable   Capability = "timetable:view"
	CapManageSchedules Capability = "schedules:manage"
	CapCreateRequest   Capability = "requests:create"
	CapReviewRequest   Capability = "requests:review"
	CapManageMasters   Capability = "masters:manage"
	CapManageUsers     Capability = "users:manage"
	CapImportCSV       Capability = "csv:import"
	CapExportCSV       Capability = "csv:export"
)

var roleCapabilities = map[UserRole][]Capability{
	RoleAdmin: {
		CapViewTimetable, CapManageSchedules, CapCreateRequest, CapReviewRequest,
		CapManageMasters, CapManageUsers, CapImportCSV, CapExportCSV,
	},
	RoleTeacher: {CapViewTimetable, CapCreateRequest, CapExportCSV},
	RoleStudent: {CapViewTimetable},
}

// Capabilities returns the declarative capability set for a role.
func Capabilities(role UserRole) []Capability {
	caps := roleCapabilities[role]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Can reports whether the role holds the capability.
func Can(role UserRole, cap Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == cap {
			return true
		}
	}
	return false
}
