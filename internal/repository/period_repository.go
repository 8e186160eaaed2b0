package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kosen-dev/timetable-api/internal/models"
)

// PeriodRepository provides persistence for the period master list.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository creates a new period repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// ListOrdered returns all periods sorted by ordinal. The result defines the
// vertical axis of every weekly grid.
func (r *PeriodRepository) ListOrdered(ctx context.Context) ([]models.Period, error) {
	const query = `SELECT id, ordinal, name, start_time, end_time, created_at, updated_at FROM periods ORDER BY ordinal ASC`
	periods := make([]models.Period, 0)
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// FindByID loads a period by id.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.Period, error) {
	const query = `SELECT id, ordinal, name, start_time, end_time, created_at, updated_at FROM periods WHERE id = $1`
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find period by id: %w", err)
	}
	return &period, nil
}

// FindByOrdinal loads a period by its ordinal within the day.
func (r *PeriodRepository) FindByOrdinal(ctx context.Context, ordinal int) (*models.Period, error) {
	const query = `SELECT id, ordinal, name, start_time, end_time, created_at, updated_at FROM periods WHERE ordinal = $1 LIMIT 1`
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, ordinal); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find period by ordinal: %w", err)
	}
	return &period, nil
}

// Create stores a new period record.
func (r *PeriodRepository) Create(ctx context.Context, period *models.Period) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now

	const query = `INSERT INTO periods (id, ordinal, name, start_time, end_time, created_at, updated_at)
	VALUES (:id, :ordinal, :name, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

// Update modifies a period record.
func (r *PeriodRepository) Update(ctx context.Context, period *models.Period) error {
	period.UpdatedAt = time.Now().UTC()
	const query = `UPDATE periods SET ordinal = :ordinal, name = :name, start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	return nil
}

// Delete removes a period by id.
func (r *PeriodRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM periods WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	return nil
}
