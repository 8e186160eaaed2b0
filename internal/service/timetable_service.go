package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/dto"
	"github.com/kosen-dev/timetable-api/internal/models"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
	"github.com/kosen-dev/timetable-api/pkg/export"
)

type timetableScheduleRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error)
}

type timetablePeriodRepository interface {
	ListOrdered(ctx context.Context) ([]models.Period, error)
}

type timetableClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// TimetableService derives the weekly day × period grid consumed by clients.
type TimetableService struct {
	schedules timetableScheduleRepository
	periods   timetablePeriodRepository
	classes   timetableClassRepository
	cache     *CacheService
	metrics   *MetricsService
	pdf       *export.PDFExporter
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewTimetableService creates a new timetable service.
func NewTimetableService(
	schedules timetableScheduleRepository,
	periods timetablePeriodRepository,
	classes timetableClassRepository,
	cache *CacheService,
	metrics *MetricsService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		schedules: schedules,
		periods:   periods,
		classes:   classes,
		cache:     cache,
		metrics:   metrics,
		pdf:       export.NewPDFExporter(),
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// BuildWeeklyGrid assembles the full day × period grid from a flat slot list.
// Every cell of the domain is present even when empty, a nil slot list yields
// an all-empty grid, and cells keep every slot that maps to them so parallel
// sections survive. Slots with out-of-range coordinates are dropped.
func BuildWeeklyGrid(classID string, slots []models.ScheduleSlot, periods []models.Period) *dto.WeeklyTimetable {
	dayOrdinals := models.WeekDayOrdinals()
	days := make([]string, 0, len(dayOrdinals))
	grid := make(map[string]map[int][]models.ScheduleSlot, len(dayOrdinals))

	ordinals := make(map[string]int, len(periods))
	for _, p := range periods {
		ordinals[p.ID] = p.Ordinal
	}

	for _, day := range dayOrdinals {
		key := models.DayKey(day)
		days = append(days, key)
		cells := make(map[int][]models.ScheduleSlot, len(periods))
		for _, p := range periods {
			cells[p.Ordinal] = []models.ScheduleSlot{}
		}
		grid[key] = cells
	}

	for _, slot := range slots {
		if !models.ValidDayOfWeek(slot.DayOfWeek) {
			continue
		}
		ordinal, ok := ordinals[slot.PeriodID]
		if !ok {
			continue
		}
		key := models.DayKey(slot.DayOfWeek)
		grid[key][ordinal] = append(grid[key][ordinal], slot)
	}

	// Deterministic cell order regardless of input order.
	for _, cells := range grid {
		for _, cell := range cells {
			sort.Slice(cell, func(i, j int) bool {
				if cell[i].SubjectName != cell[j].SubjectName {
					return cell[i].SubjectName < cell[j].SubjectName
				}
				return cell[i].ID < cell[j].ID
			})
		}
	}

	return &dto.WeeklyTimetable{
		ClassID: classID,
		Days:    days,
		Periods: periods,
		Grid:    grid,
	}
}

// GetWeekly returns the cached weekly grid for a class, rebuilding it from
// storage on a miss.
func (s *TimetableService) GetWeekly(ctx context.Context, classID string) (*dto.WeeklyTimetable, error) {
	cacheKey := WeeklyTimetableKey(classID)

	var cached dto.WeeklyTimetable
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	periods, err := s.periods.ListOrdered(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load periods")
	}

	start := time.Now()
	slots, err := s.schedules.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slots")
	}
	s.metrics.ObserveDBQuery("timetable_slots", time.Since(start))

	timetable := BuildWeeklyGrid(classID, slots, periods)

	if err := s.cache.Set(ctx, cacheKey, timetable, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache weekly timetable", zap.String("class_id", classID), zap.Error(err))
	}

	return timetable, nil
}

// ExportWeeklyPDF renders the weekly grid as a landscape PDF document.
func (s *TimetableService) ExportWeeklyPDF(ctx context.Context, classID string) ([]byte, string, error) {
	timetable, err := s.GetWeekly(ctx, classID)
	if err != nil {
		return nil, "", err
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	headers := make([]string, 0, len(timetable.Days)+1)
	headers = append(headers, "Period")
	headers = append(headers, timetable.Days...)

	rows := make([][]string, 0, len(timetable.Periods))
	for _, period := range timetable.Periods {
		row := make([]string, 0, len(timetable.Days)+1)
		row = append(row, period.Name)
		for _, day := range timetable.Days {
			names := make([]string, 0, 1)
			for _, slot := range timetable.Grid[day][period.Ordinal] {
				names = append(names, slot.SubjectName)
			}
			row = append(row, strings.Join(names, " / "))
		}
		rows = append(rows, row)
	}

	payload, err := s.pdf.Render(export.Dataset{Headers: headers, Rows: rows}, fmt.Sprintf("Weekly Timetable - %s", class.Name))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable pdf")
	}

	filename := export.Filename("timetable_"+class.Name, "pdf", time.Now().UTC())
	return payload, filename, nil
}
