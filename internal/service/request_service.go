package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/dto"
	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/repository"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
)

type requestRepository interface {
	Create(ctx context.Context, request *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.ChangeRequest, int, error)
	Decide(ctx context.Context, params repository.DecisionParams) error
	Cancel(ctx context.Context, id, requesterID string, at time.Time) error
}

type requestScheduleRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error)
	FindCanonical(ctx context.Context, classID string, dayOfWeek int, periodID string) (*models.ScheduleSlot, error)
	ApplyMove(ctx context.Context, originalID string, newDayOfWeek int, newPeriodID string, newRoomIDs []string) (*models.ScheduleSlot, error)
}

type requestAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type requestNotifier interface {
	NotifyRequestDecided(ctx context.Context, request *models.ChangeRequest)
}

// RequestPolicy holds tunable workflow rules.
type RequestPolicy struct {
	MinReasonLength int
}

// RequestService runs the change-request workflow: teachers propose slot
// moves, admins decide them, approval rewrites the grid.
type RequestService struct {
	requests  requestRepository
	schedules requestScheduleRepository
	audit     requestAuditRepository
	notifier  requestNotifier
	cache     *CacheService
	policy    RequestPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService creates a new request service.
func NewRequestService(
	requests requestRepository,
	schedules requestScheduleRepository,
	audit requestAuditRepository,
	notifier requestNotifier,
	cache *CacheService,
	policy RequestPolicy,
	validate *validator.Validate,
	logger *zap.Logger,
) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MinReasonLength <= 0 {
		policy.MinReasonLength = 10
	}
	return &RequestService{
		requests:  requests,
		schedules: schedules,
		audit:     audit,
		notifier:  notifier,
		cache:     cache,
		policy:    policy,
		validator: validate,
		logger:    logger,
	}
}

// Create files a new pending request on behalf of the actor. Students may
// not file requests. Validation failures never touch storage.
func (s *RequestService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateChangeRequest) (*models.ChangeRequest, error) {
	if !models.Can(actor.Role, models.CapCreateRequest) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not create change requests")
	}

	if req.OriginalScheduleID == "" || req.NewPeriodID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "original_schedule_id and new_period_id are required")
	}
	if !models.ValidDayOfWeek(req.NewDayOfWeek) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new_day_of_week must be between 1 and 5")
	}
	if len(req.NewRoomIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one room is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if len([]rune(reason)) < s.policy.MinReasonLength {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("reason must be at least %d characters", s.policy.MinReasonLength))
	}

	slot, err := s.schedules.FindByID(ctx, req.OriginalScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "original schedule slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load original slot")
	}

	request := &models.ChangeRequest{
		OriginalScheduleID: slot.ID,
		NewDayOfWeek:       req.NewDayOfWeek,
		NewPeriodID:        req.NewPeriodID,
		NewRoomIDs:         req.NewRoomIDs,
		Reason:             reason,
		Status:             models.RequestStatusPending,
		RequestedBy:        actor.UserID,
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}

	s.recordAudit(ctx, actor.UserID, models.AuditActionRequestCreate, request.ID, map[string]interface{}{
		"original_schedule_id": request.OriginalScheduleID,
		"new_day_of_week":      request.NewDayOfWeek,
		"new_period_id":        request.NewPeriodID,
	})

	return request, nil
}

// Get returns a request visible to the actor. Teachers see only their own.
func (s *RequestService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ChangeRequest, error) {
	if !models.Can(actor.Role, models.CapCreateRequest) && !models.Can(actor.Role, models.CapReviewRequest) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not view change requests")
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}

	if !models.Can(actor.Role, models.CapReviewRequest) && request.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another user")
	}

	return request, nil
}

// List returns requests visible to the actor with pagination. Admins see
// every request, teachers only their own.
func (s *RequestService) List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.ChangeRequest, *models.Pagination, error) {
	if !models.Can(actor.Role, models.CapCreateRequest) && !models.Can(actor.Role, models.CapReviewRequest) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role may not view change requests")
	}

	filter := models.RequestFilter{
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if !models.Can(actor.Role, models.CapReviewRequest) {
		filter.RequestedBy = actor.UserID
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return requests, pagination, nil
}

// Approve transitions a pending request to approved and rewrites the grid:
// the original slot is demoted and a replacement slot appears at the
// requested coordinates. A request that is no longer pending yields a
// conflict, as does a collision at the target cell.
func (s *RequestService) Approve(ctx context.Context, actor *models.JWTClaims, id string, input dto.ApproveRequest) (*models.ChangeRequest, error) {
	if !models.Can(actor.Role, models.CapReviewRequest) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may approve requests")
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "request already decided")
	}

	slot, err := s.schedules.FindByID(ctx, request.OriginalScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "original schedule slot no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load original slot")
	}

	if existing, err := s.schedules.FindCanonical(ctx, slot.ClassID, request.NewDayOfWeek, request.NewPeriodID); err == nil && existing.ID != slot.ID {
		return nil, appErrors.Clone(appErrors.ErrScheduleConflict, "target day/period is already occupied for the class")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check target cell")
	}

	now := time.Now().UTC()
	var comment *string
	if trimmed := strings.TrimSpace(input.Comment); trimmed != "" {
		comment = &trimmed
	}

	// Rewrite the grid before persisting the terminal status: if the move
	// fails the request stays pending and a retry is still possible, whereas
	// an approved request with an untouched grid could never be repaired.
	if _, err := s.schedules.ApplyMove(ctx, request.OriginalScheduleID, request.NewDayOfWeek, request.NewPeriodID, request.NewRoomIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply schedule move")
	}

	if err := s.requests.Decide(ctx, repository.DecisionParams{
		ID:        request.ID,
		Status:    models.RequestStatusApproved,
		DecidedBy: actor.UserID,
		DecidedAt: now,
		Comment:   comment,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "request already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve request")
	}

	s.invalidateClass(ctx, slot.ClassID)

	request.Status = models.RequestStatusApproved
	request.DecidedBy = &actor.UserID
	request.DecisionComment = comment
	request.DecidedAt = &now
	request.UpdatedAt = now

	s.recordAudit(ctx, actor.UserID, models.AuditActionRequestApprove, request.ID, map[string]interface{}{"status": request.Status})
	if s.notifier != nil {
		s.notifier.NotifyRequestDecided(ctx, request)
	}

	return request, nil
}

// Reject transitions a pending request to rejected. The reason is mandatory.
func (s *RequestService) Reject(ctx context.Context, actor *models.JWTClaims, id string, input dto.RejectRequest) (*models.ChangeRequest, error) {
	if !models.Can(actor.Role, models.CapReviewRequest) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may reject requests")
	}

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "request already decided")
	}

	now := time.Now().UTC()
	if err := s.requests.Decide(ctx, repository.DecisionParams{
		ID:        request.ID,
		Status:    models.RequestStatusRejected,
		DecidedBy: actor.UserID,
		DecidedAt: now,
		Comment:   &reason,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "request already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject request")
	}

	request.Status = models.RequestStatusRejected
	request.DecidedBy = &actor.UserID
	request.DecisionComment = &reason
	request.DecidedAt = &now
	request.UpdatedAt = now

	s.recordAudit(ctx, actor.UserID, models.AuditActionRequestReject, request.ID, map[string]interface{}{"status": request.Status, "reason": reason})
	if s.notifier != nil {
		s.notifier.NotifyRequestDecided(ctx, request)
	}

	return request, nil
}

// Cancel withdraws a pending request. Only the requester may cancel, and a
// decided request can no longer be withdrawn.
func (s *RequestService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.ChangeRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}

	if request.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester may cancel a request")
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "request already decided")
	}

	now := time.Now().UTC()
	if err := s.requests.Cancel(ctx, request.ID, actor.UserID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "request already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}

	request.Status = models.RequestStatusCancelled
	request.DecidedAt = &now
	request.UpdatedAt = now

	s.recordAudit(ctx, actor.UserID, models.AuditActionRequestCancel, request.ID, map[string]interface{}{"status": request.Status})

	return request, nil
}

func (s *RequestService) recordAudit(ctx context.Context, actorID string, action string, requestID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "change_requests",
		ResourceID: &requestID,
		NewValues:  raw,
	}); err != nil {
		s.logger.Warn("failed to record request audit log", zap.Error(err))
	}
}

func (s *RequestService) invalidateClass(ctx context.Context, classID string) {
	if err := s.cache.Invalidate(ctx, ClassCachePattern(classID)); err != nil {
		s.logger.Warn("failed to invalidate timetable cache", zap.String("class_id", classID), zap.Error(err))
	}
}
