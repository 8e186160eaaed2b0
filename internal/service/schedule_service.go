package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/models"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, int, error)
	ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error)
	FindCanonical(ctx context.Context, classID string, dayOfWeek int, periodID string) (*models.ScheduleSlot, error)
	Create(ctx context.Context, slot *models.ScheduleSlot) error
	Update(ctx context.Context, slot *models.ScheduleSlot) error
	Delete(ctx context.Context, id string) error
}

// CreateScheduleRequest captures fields for placing a slot on the grid.
type CreateScheduleRequest struct {
	ClassID    string   `json:"class_id" validate:"required"`
	SubjectID  string   `json:"subject_id" validate:"required"`
	DayOfWeek  int      `json:"day_of_week" validate:"required,min=1,max=5"`
	PeriodID   string   `json:"period_id" validate:"required"`
	Term       string   `json:"term" validate:"required,oneof=first_semester second_semester full_year"`
	TeacherIDs []string `json:"teacher_ids" validate:"required,min=1"`
	RoomIDs    []string `json:"room_ids" validate:"required,min=1"`
}

// UpdateScheduleRequest modifies an existing slot.
type UpdateScheduleRequest struct {
	SubjectID  string   `json:"subject_id" validate:"required"`
	DayOfWeek  int      `json:"day_of_week" validate:"required,min=1,max=5"`
	PeriodID   string   `json:"period_id" validate:"required"`
	Term       string   `json:"term" validate:"required,oneof=first_semester second_semester full_year"`
	TeacherIDs []string `json:"teacher_ids" validate:"required,min=1"`
	RoomIDs    []string `json:"room_ids" validate:"required,min=1"`
}

// ScheduleService manages schedule slots and guards grid consistency.
type ScheduleService struct {
	repo      scheduleRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService creates a new schedule service.
func NewScheduleService(repo scheduleRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns slots matching the filter. Filters combine with AND
// semantics, so a teacher+day query narrows to that teacher's slots on
// that day only.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, *models.Pagination, error) {
	if filter.DayOfWeek != nil && !models.ValidDayOfWeek(*filter.DayOfWeek) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 1 and 5")
	}

	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return slots, pagination, nil
}

// Get returns a slot by identifier.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slot")
	}
	return slot, nil
}

// Create places a new canonical slot, rejecting day/period collisions for
// the class.
func (s *ScheduleService) Create(ctx context.Context, req CreateScheduleRequest) (*models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	if err := s.checkCollision(ctx, req.ClassID, req.DayOfWeek, req.PeriodID, ""); err != nil {
		return nil, err
	}

	slot := &models.ScheduleSlot{
		ClassID:    req.ClassID,
		SubjectID:  req.SubjectID,
		DayOfWeek:  req.DayOfWeek,
		PeriodID:   req.PeriodID,
		IsOriginal: true,
		Term:       req.Term,
		TeacherIDs: req.TeacherIDs,
		RoomIDs:    req.RoomIDs,
	}

	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule slot")
	}

	s.invalidateClass(ctx, slot.ClassID)
	return slot, nil
}

// Update rewrites a slot's placement and assignments.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpdateScheduleRequest) (*models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slot")
	}

	if slot.IsOriginal {
		if err := s.checkCollision(ctx, slot.ClassID, req.DayOfWeek, req.PeriodID, slot.ID); err != nil {
			return nil, err
		}
	}

	slot.SubjectID = req.SubjectID
	slot.DayOfWeek = req.DayOfWeek
	slot.PeriodID = req.PeriodID
	slot.Term = req.Term
	slot.TeacherIDs = req.TeacherIDs
	slot.RoomIDs = req.RoomIDs

	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule slot")
	}

	s.invalidateClass(ctx, slot.ClassID)
	return slot, nil
}

// Delete removes a slot from the grid.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slot")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule slot")
	}

	s.invalidateClass(ctx, slot.ClassID)
	return nil
}

func (s *ScheduleService) checkCollision(ctx context.Context, classID string, dayOfWeek int, periodID string, excludeID string) error {
	existing, err := s.repo.FindCanonical(ctx, classID, dayOfWeek, periodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot collision")
	}
	if existing.ID == excludeID {
		return nil
	}
	conflict := &models.ScheduleConflictError{
		Message: fmt.Sprintf("class already has a slot on day %d period %s", dayOfWeek, periodID),
		Conflict: models.ScheduleConflict{
			SlotID:    existing.ID,
			ClassID:   existing.ClassID,
			SubjectID: existing.SubjectID,
			DayOfWeek: existing.DayOfWeek,
			PeriodID:  existing.PeriodID,
		},
	}
	return appErrors.Wrap(conflict, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, conflict.Message)
}

func (s *ScheduleService) invalidateClass(ctx context.Context, classID string) {
	if err := s.cache.Invalidate(ctx, ClassCachePattern(classID)); err != nil {
		s.logger.Warn("failed to invalidate timetable cache", zap.String("class_id", classID), zap.Error(err))
	}
}
