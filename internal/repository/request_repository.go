package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kosen-dev/timetable-api/internal/models"
)

// RequestRepository persists change-request workflow data.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestSelect = `SELECT r.id, r.original_schedule_id, r.new_day_of_week, r.new_period_id, r.reason, r.status,
       r.requested_by, r.decided_by, r.decision_comment, r.created_at, r.decided_at, r.updated_at,
       u1.full_name AS requester_name, u2.full_name AS decider_name
FROM change_requests r
JOIN users u1 ON r.requested_by = u1.id
LEFT JOIN users u2 ON r.decided_by = u2.id`

// Create inserts a new pending request with its proposed room set.
func (r *RequestRepository) Create(ctx context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO change_requests
	(id, original_schedule_id, new_day_of_week, new_period_id, reason, status, requested_by, decided_by, decision_comment, created_at, decided_at, updated_at)
	VALUES (:id, :original_schedule_id, :new_day_of_week, :new_period_id, :reason, :status, :requested_by, :decided_by, :decision_comment, :created_at, :decided_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for _, roomID := range request.NewRoomIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO change_request_rooms (request_id, room_id) VALUES ($1, $2)`, request.ID, roomID); err != nil {
			return fmt.Errorf("insert request room: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	query := requestSelect + ` WHERE r.id = $1`
	var request models.ChangeRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	requests := []models.ChangeRequest{request}
	if err := r.loadRooms(ctx, requests); err != nil {
		return nil, err
	}
	return &requests[0], nil
}

// List returns requests matching the filter with total count, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ChangeRequest, int, error) {
	base := " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.RequestedBy != "" {
		conditions = append(conditions, fmt.Sprintf("r.requested_by = $%d", len(args)+1))
		args = append(args, filter.RequestedBy)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY r.created_at DESC, r.id DESC LIMIT %d OFFSET %d", requestSelect, base, size, offset)
	requests := make([]models.ChangeRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM change_requests r%s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	if err := r.loadRooms(ctx, requests); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// DecisionParams groups mutable columns for workflow transitions.
type DecisionParams struct {
	ID        string
	Status    models.RequestStatus
	DecidedBy string
	DecidedAt time.Time
	Comment   *string
}

// Decide transitions a pending request to a terminal status. The UPDATE is
// conditional on the current status still being pending; zero affected rows
// means the request was already decided and sql.ErrNoRows is returned.
func (r *RequestRepository) Decide(ctx context.Context, params DecisionParams) error {
	const query = `UPDATE change_requests
	SET status = :status, decided_by = :decided_by, decision_comment = :comment, decided_at = :decided_at, updated_at = :decided_at
	WHERE id = :id AND status = 'pending'`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         params.ID,
		"status":     params.Status,
		"decided_by": params.DecidedBy,
		"decided_at": params.DecidedAt,
		"comment":    params.Comment,
	})
	if err != nil {
		return fmt.Errorf("decide request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decide rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Cancel marks a pending request cancelled. Ownership is part of the
// predicate so a stale caller cannot withdraw someone else's request.
func (r *RequestRepository) Cancel(ctx context.Context, id, requesterID string, at time.Time) error {
	const query = `UPDATE change_requests SET status = 'cancelled', decided_at = $3, updated_at = $3
	WHERE id = $1 AND requested_by = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, requesterID, at)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check cancel rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type requestRoom struct {
	RequestID string `db:"request_id"`
	RoomID    string `db:"room_id"`
}

func (r *RequestRepository) loadRooms(ctx context.Context, requests []models.ChangeRequest) error {
	if len(requests) == 0 {
		return nil
	}
	ids := make([]string, len(requests))
	index := make(map[string]int, len(requests))
	for i := range requests {
		ids[i] = requests[i].ID
		index[requests[i].ID] = i
		requests[i].NewRoomIDs = []string{}
	}

	var rows []requestRoom
	const query = `SELECT request_id, room_id FROM change_request_rooms WHERE request_id = ANY($1) ORDER BY room_id ASC`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load request rooms: %w", err)
	}
	for _, row := range rows {
		i := index[row.RequestID]
		requests[i].NewRoomIDs = append(requests[i].NewRoomIDs, row.RoomID)
	}
	return nil
}
