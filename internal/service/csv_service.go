package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/models"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
	"github.com/kosen-dev/timetable-api/pkg/export"
)

type csvSubjectRepository interface {
	Upsert(ctx context.Context, subject *models.Subject) error
	ListAll(ctx context.Context) ([]models.Subject, error)
}

type csvClassRepository interface {
	FindByName(ctx context.Context, name string) (*models.Class, error)
	ListAll(ctx context.Context) ([]models.Class, error)
}

type csvPeriodRepository interface {
	ListOrdered(ctx context.Context) ([]models.Period, error)
}

type csvScheduleRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.ScheduleSlot, error)
	ReplaceClassSlots(ctx context.Context, classID string, slots []models.ScheduleSlot) error
}

type csvAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

var subjectCSVHeader = []string{"code", "name", "category", "term", "credits"}

var validTerms = map[string]bool{
	models.TermFirstSemester:  true,
	models.TermSecondSemester: true,
	models.TermFullYear:       true,
}

// CSVService imports and exports master data and timetables as CSV. Imports
// validate row by row and keep going: a bad row becomes an error entry, not
// an aborted upload.
type CSVService struct {
	subjects  csvSubjectRepository
	classes   csvClassRepository
	periods   csvPeriodRepository
	schedules csvScheduleRepository
	audit     csvAuditRepository
	cache     *CacheService
	exporter  *export.CSVExporter
	logger    *zap.Logger
}

// NewCSVService creates a new CSV service.
func NewCSVService(
	subjects csvSubjectRepository,
	classes csvClassRepository,
	periods csvPeriodRepository,
	schedules csvScheduleRepository,
	audit csvAuditRepository,
	cache *CacheService,
	logger *zap.Logger,
) *CSVService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVService{
		subjects:  subjects,
		classes:   classes,
		periods:   periods,
		schedules: schedules,
		audit:     audit,
		cache:     cache,
		exporter:  export.NewCSVExporter(),
		logger:    logger,
	}
}

// ImportSubjects processes a subject master upload.
func (s *CSVService) ImportSubjects(ctx context.Context, actorID string, r io.Reader) (*models.CSVImportResult, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse csv")
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csv file is empty")
	}
	if err := checkHeader(records[0], subjectCSVHeader); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unexpected csv header")
	}

	result := &models.CSVImportResult{ErrorRows: []models.CSVErrorRow{}}

	for i, record := range records[1:] {
		rowNum := i + 2 // 1-based, header is row 1
		result.TotalRows++

		subject, rowErr := parseSubjectRow(record)
		if rowErr != nil {
			result.ErrorRows = append(result.ErrorRows, models.CSVErrorRow{
				Row:   rowNum,
				Error: rowErr.Error(),
				Data:  strings.Join(record, ","),
			})
			continue
		}

		if err := s.subjects.Upsert(ctx, subject); err != nil {
			result.ErrorRows = append(result.ErrorRows, models.CSVErrorRow{
				Row:   rowNum,
				Error: "failed to store subject",
				Data:  strings.Join(record, ","),
			})
			s.logger.Warn("subject upsert failed during import", zap.Int("row", rowNum), zap.Error(err))
			continue
		}
		result.ProcessedRows++
	}

	result.Success = len(result.ErrorRows) == 0
	result.ProcessedAt = time.Now().UTC()

	s.recordImportAudit(ctx, actorID, "subjects", result)
	return result, nil
}

// ImportTimetables processes a weekly timetable upload. Each row is one
// class: a class column followed by one subject-code column per (day,
// period) cell in day-major order. A processed row replaces the class's
// existing slots wholesale.
func (s *CSVService) ImportTimetables(ctx context.Context, actorID string, r io.Reader) (*models.CSVImportResult, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse csv")
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csv file is empty")
	}

	periods, err := s.periods.ListOrdered(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load periods")
	}
	if len(periods) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no periods defined")
	}

	days := models.WeekDayOrdinals()
	wantColumns := 1 + len(days)*len(periods)
	if len(records[0]) != wantColumns {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("expected %d columns (class + %d cells), got %d", wantColumns, wantColumns-1, len(records[0])))
	}

	subjectsByCode, err := s.subjectCodeIndex(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.CSVImportResult{ErrorRows: []models.CSVErrorRow{}}

	for i, record := range records[1:] {
		rowNum := i + 2
		result.TotalRows++

		className := strings.TrimSpace(record[0])
		if className == "" {
			result.ErrorRows = append(result.ErrorRows, models.CSVErrorRow{Row: rowNum, Error: "class is required", Data: strings.Join(record, ",")})
			continue
		}

		class, err := s.classes.FindByName(ctx, className)
		if err != nil {
			msg := "failed to look up class"
			if errors.Is(err, sql.ErrNoRows) {
				msg = fmt.Sprintf("unknown class %q", className)
			}
			result.ErrorRows = append(result.ErrorRows, models.CSVErrorRow{Row: rowNum, Error: msg, Data: strings.Join(record, ",")})
			continue
		}

		slots, rowErr := buildSlotsFromRow(class.ID, record[1:], days, periods, subjectsByCode)
		if rowErr != nil {
			result.ErrorRows = append(result.ErrorRows, models.CSVErrorRow{Row: rowNum, Error: rowErr.Error(), Data: strings.Join(record, ",")})
			continue
		}

		if err := s.schedules.ReplaceClassSlots(ctx, class.ID, slots); err != nil {
			result.ErrorRows = append(result.ErrorRows, models.CSVErrorRow{Row: rowNum, Error: "failed to store timetable", Data: strings.Join(record, ",")})
			s.logger.Warn("timetable replace failed during import", zap.Int("row", rowNum), zap.Error(err))
			continue
		}

		if err := s.cache.Invalidate(ctx, ClassCachePattern(class.ID)); err != nil {
			s.logger.Warn("failed to invalidate timetable cache", zap.String("class_id", class.ID), zap.Error(err))
		}
		result.ProcessedRows++
	}

	result.Success = len(result.ErrorRows) == 0
	result.ProcessedAt = time.Now().UTC()

	s.recordImportAudit(ctx, actorID, "timetables", result)
	return result, nil
}

// ExportSubjects renders the subject master as CSV.
func (s *CSVService) ExportSubjects(ctx context.Context) ([]byte, string, error) {
	subjects, err := s.subjects.ListAll(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	rows := make([][]string, 0, len(subjects))
	for _, subject := range subjects {
		rows = append(rows, []string{
			subject.Code,
			subject.Name,
			subject.Category,
			subject.Term,
			strconv.Itoa(subject.Credits),
		})
	}

	payload, err := s.exporter.Render(export.Dataset{Headers: subjectCSVHeader, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render subjects csv")
	}
	return payload, export.Filename("subjects", "csv", time.Now().UTC()), nil
}

// ExportTimetables renders every class's weekly timetable in the same
// day-major layout the import accepts. Parallel sections in one cell are
// joined with "/".
func (s *CSVService) ExportTimetables(ctx context.Context) ([]byte, string, error) {
	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}
	periods, err := s.periods.ListOrdered(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load periods")
	}
	subjects, err := s.subjects.ListAll(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	codeByID := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		codeByID[subject.ID] = subject.Code
	}

	days := models.WeekDayOrdinals()
	headers := make([]string, 0, 1+len(days)*len(periods))
	headers = append(headers, "class")
	for _, day := range days {
		for _, period := range periods {
			headers = append(headers, fmt.Sprintf("%s%d", models.DayKey(day)[:3], period.Ordinal))
		}
	}

	ordinalByPeriodID := make(map[string]int, len(periods))
	for _, period := range periods {
		ordinalByPeriodID[period.ID] = period.Ordinal
	}

	rows := make([][]string, 0, len(classes))
	for _, class := range classes {
		slots, err := s.schedules.ListByClass(ctx, class.ID)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class slots")
		}

		cells := make(map[int]map[int][]string, len(days))
		for _, slot := range slots {
			ordinal, ok := ordinalByPeriodID[slot.PeriodID]
			if !ok {
				continue
			}
			if cells[slot.DayOfWeek] == nil {
				cells[slot.DayOfWeek] = make(map[int][]string)
			}
			code := codeByID[slot.SubjectID]
			if code == "" {
				code = slot.SubjectID
			}
			cells[slot.DayOfWeek][ordinal] = append(cells[slot.DayOfWeek][ordinal], code)
		}

		row := make([]string, 0, len(headers))
		row = append(row, class.Name)
		for _, day := range days {
			for _, period := range periods {
				row = append(row, strings.Join(cells[day][period.Ordinal], "/"))
			}
		}
		rows = append(rows, row)
	}

	payload, err := s.exporter.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetables csv")
	}
	return payload, export.Filename("timetables", "csv", time.Now().UTC()), nil
}

func (s *CSVService) subjectCodeIndex(ctx context.Context) (map[string]*models.Subject, error) {
	subjects, err := s.subjects.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	index := make(map[string]*models.Subject, len(subjects))
	for i := range subjects {
		index[subjects[i].Code] = &subjects[i]
	}
	return index, nil
}

func (s *CSVService) recordImportAudit(ctx context.Context, actorID, kind string, result *models.CSVImportResult) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"kind":           kind,
		"total_rows":     result.TotalRows,
		"processed_rows": result.ProcessedRows,
		"error_rows":     len(result.ErrorRows),
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &actorID,
		Action:    models.AuditActionCSVImport,
		Resource:  "csv",
		NewValues: payload,
	}); err != nil {
		s.logger.Warn("failed to record csv import audit log", zap.Error(err))
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func checkHeader(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(got[i]), want[i]) {
			return fmt.Errorf("expected column %q at position %d, got %q", want[i], i+1, got[i])
		}
	}
	return nil
}

func parseSubjectRow(record []string) (*models.Subject, error) {
	if len(record) != len(subjectCSVHeader) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(subjectCSVHeader), len(record))
	}

	code := strings.ToUpper(strings.TrimSpace(record[0]))
	name := strings.TrimSpace(record[1])
	category := strings.TrimSpace(record[2])
	term := strings.TrimSpace(record[3])
	creditsRaw := strings.TrimSpace(record[4])

	if code == "" {
		return nil, errors.New("code is required")
	}
	if name == "" {
		return nil, errors.New("name is required")
	}
	if !validTerms[term] {
		return nil, fmt.Errorf("invalid term %q", term)
	}
	credits, err := strconv.Atoi(creditsRaw)
	if err != nil || credits < 1 || credits > 10 {
		return nil, fmt.Errorf("invalid credits %q", creditsRaw)
	}

	return &models.Subject{
		Code:     code,
		Name:     name,
		Category: category,
		Term:     term,
		Credits:  credits,
	}, nil
}

func buildSlotsFromRow(classID string, cells []string, days []int, periods []models.Period, subjectsByCode map[string]*models.Subject) ([]models.ScheduleSlot, error) {
	slots := make([]models.ScheduleSlot, 0, len(cells))
	idx := 0
	for _, day := range days {
		for _, period := range periods {
			cell := strings.TrimSpace(cells[idx])
			idx++
			if cell == "" {
				continue
			}
			for _, code := range strings.Split(cell, "/") {
				code = strings.ToUpper(strings.TrimSpace(code))
				if code == "" {
					continue
				}
				subject, ok := subjectsByCode[code]
				if !ok {
					return nil, fmt.Errorf("unknown subject code %q", code)
				}
				slots = append(slots, models.ScheduleSlot{
					ClassID:    classID,
					SubjectID:  subject.ID,
					DayOfWeek:  day,
					PeriodID:   period.ID,
					IsOriginal: true,
					Term:       subject.Term,
					TeacherIDs: []string{},
					RoomIDs:    []string{},
				})
			}
		}
	}
	return slots, nil
}
