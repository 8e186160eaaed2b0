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

// ScheduleRepository provides persistence for schedule slots and their
// teacher/room assignment sets.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const slotSelect = `SELECT s.id, s.class_id, s.subject_id, s.day_of_week, s.period_id, s.is_original, s.term, s.created_at, s.updated_at,
       c.name AS class_name, sub.name AS subject_name, p.ordinal AS period_ordinal
FROM schedule_slots s
JOIN classes c ON s.class_id = c.id
JOIN subjects sub ON s.subject_id = sub.id
JOIN periods p ON s.period_id = p.id`

// List returns slots matching the filter with total count. All filters
// narrow each other (AND semantics); ordering is day, period, id so results
// are stable regardless of insertion order.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, int, error) {
	base := " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM schedule_teachers st WHERE st.schedule_id = s.id AND st.teacher_id = $%d)", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM schedule_rooms sr WHERE sr.schedule_id = s.id AND sr.room_id = $%d)", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("s.day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("s.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY s.day_of_week ASC, p.ordinal ASC, s.id ASC LIMIT %d OFFSET %d", slotSelect, base, size, offset)
	slots := make([]models.ScheduleSlot, 0)
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM schedule_slots s%s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule slots: %w", err)
	}

	if err := r.loadAssignments(ctx, slots); err != nil {
		return nil, 0, err
	}
	return slots, total, nil
}

// ListByClass returns every slot for a class ordered by day/period.
func (r *ScheduleRepository) ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error) {
	query := slotSelect + ` WHERE s.class_id = $1 ORDER BY s.day_of_week ASC, p.ordinal ASC, s.id ASC`
	slots := make([]models.ScheduleSlot, 0)
	if err := r.db.SelectContext(ctx, &slots, query, classID); err != nil {
		return nil, fmt.Errorf("list schedule slots by class: %w", err)
	}
	if err := r.loadAssignments(ctx, slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// FindByID loads a slot by id including its assignment sets.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	query := slotSelect + ` WHERE s.id = $1`
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule slot by id: %w", err)
	}
	slots := []models.ScheduleSlot{slot}
	if err := r.loadAssignments(ctx, slots); err != nil {
		return nil, err
	}
	return &slots[0], nil
}

// FindCanonical returns the canonical slot occupying (class, day, period),
// or sql.ErrNoRows when the cell is free.
func (r *ScheduleRepository) FindCanonical(ctx context.Context, classID string, dayOfWeek int, periodID string) (*models.ScheduleSlot, error) {
	query := slotSelect + ` WHERE s.class_id = $1 AND s.day_of_week = $2 AND s.period_id = $3 AND s.is_original = true LIMIT 1`
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, classID, dayOfWeek, periodID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find canonical slot: %w", err)
	}
	return &slot, nil
}

// Create stores a new slot with its teacher and room assignments in one transaction.
func (r *ScheduleRepository) Create(ctx context.Context, slot *models.ScheduleSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create slot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.insertSlot(ctx, tx, slot); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create slot: %w", err)
	}
	return nil
}

// Update rewrites a slot's columns and assignment sets.
func (r *ScheduleRepository) Update(ctx context.Context, slot *models.ScheduleSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update slot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_slots SET class_id = :class_id, subject_id = :subject_id, day_of_week = :day_of_week, period_id = :period_id, is_original = :is_original, term = :term, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_teachers WHERE schedule_id = $1`, slot.ID); err != nil {
		return fmt.Errorf("clear slot teachers: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_rooms WHERE schedule_id = $1`, slot.ID); err != nil {
		return fmt.Errorf("clear slot rooms: %w", err)
	}
	if err = r.insertAssignments(ctx, tx, slot); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update slot: %w", err)
	}
	return nil
}

// Delete removes a slot; assignment rows cascade.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

// ApplyMove executes an approved change request: the original slot loses its
// canonical flag and a new canonical slot is written at the proposed
// coordinates, inheriting class/subject/teachers and taking the proposed rooms.
func (r *ScheduleRepository) ApplyMove(ctx context.Context, originalID string, newDayOfWeek int, newPeriodID string, newRoomIDs []string) (*models.ScheduleSlot, error) {
	original, err := r.FindByID(ctx, originalID)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin apply move: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE schedule_slots SET is_original = false, updated_at = $2 WHERE id = $1`, originalID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("demote original slot: %w", err)
	}

	moved := &models.ScheduleSlot{
		ClassID:    original.ClassID,
		SubjectID:  original.SubjectID,
		DayOfWeek:  newDayOfWeek,
		PeriodID:   newPeriodID,
		IsOriginal: true,
		Term:       original.Term,
		TeacherIDs: original.TeacherIDs,
		RoomIDs:    newRoomIDs,
	}
	if err = r.insertSlot(ctx, tx, moved); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit apply move: %w", err)
	}
	return moved, nil
}

// ReplaceClassSlots swaps out every slot of a class inside one transaction.
// Used by the timetable CSV import.
func (r *ScheduleRepository) ReplaceClassSlots(ctx context.Context, classID string, slots []models.ScheduleSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace class slots: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_slots WHERE class_id = $1`, classID); err != nil {
		return fmt.Errorf("clear class slots: %w", err)
	}
	for i := range slots {
		if err = r.insertSlot(ctx, tx, &slots[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace class slots: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) insertSlot(ctx context.Context, tx *sqlx.Tx, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO schedule_slots (id, class_id, subject_id, day_of_week, period_id, is_original, term, created_at, updated_at)
	VALUES (:id, :class_id, :subject_id, :day_of_week, :period_id, :is_original, :term, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return r.insertAssignments(ctx, tx, slot)
}

func (r *ScheduleRepository) insertAssignments(ctx context.Context, tx *sqlx.Tx, slot *models.ScheduleSlot) error {
	for _, teacherID := range slot.TeacherIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schedule_teachers (schedule_id, teacher_id) VALUES ($1, $2)`, slot.ID, teacherID); err != nil {
			return fmt.Errorf("insert slot teacher: %w", err)
		}
	}
	for _, roomID := range slot.RoomIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schedule_rooms (schedule_id, room_id) VALUES ($1, $2)`, slot.ID, roomID); err != nil {
			return fmt.Errorf("insert slot room: %w", err)
		}
	}
	return nil
}

type slotAssignment struct {
	ScheduleID string `db:"schedule_id"`
	MemberID   string `db:"member_id"`
}

func (r *ScheduleRepository) loadAssignments(ctx context.Context, slots []models.ScheduleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	ids := make([]string, len(slots))
	index := make(map[string]int, len(slots))
	for i := range slots {
		ids[i] = slots[i].ID
		index[slots[i].ID] = i
		slots[i].TeacherIDs = []string{}
		slots[i].RoomIDs = []string{}
	}

	var teachers []slotAssignment
	const teacherQuery = `SELECT schedule_id, teacher_id AS member_id FROM schedule_teachers WHERE schedule_id = ANY($1) ORDER BY teacher_id ASC`
	if err := r.db.SelectContext(ctx, &teachers, teacherQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("load slot teachers: %w", err)
	}
	for _, row := range teachers {
		i := index[row.ScheduleID]
		slots[i].TeacherIDs = append(slots[i].TeacherIDs, row.MemberID)
	}

	var rooms []slotAssignment
	const roomQuery = `SELECT schedule_id, room_id AS member_id FROM schedule_rooms WHERE schedule_id = ANY($1) ORDER BY room_id ASC`
	if err := r.db.SelectContext(ctx, &rooms, roomQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("load slot rooms: %w", err)
	}
	for _, row := range rooms {
		i := index[row.ScheduleID]
		slots[i].RoomIDs = append(slots[i].RoomIDs, row.MemberID)
	}
	return nil
}
