package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kosen-dev/timetable-api/internal/models"
	appErrors "github.com/kosen-dev/timetable-api/pkg/errors"
	"github.com/kosen-dev/timetable-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationService delivers workflow notifications to users. Writes go
// through a background queue so request decisions never block on delivery.
type NotificationService struct {
	repo    notificationRepository
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the service and its dispatch queue.
func NewNotificationService(repo notificationRepository, logger *zap.Logger, enabled bool, workers, retries int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, logger: logger, enabled: enabled}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the queue and stops the workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// NotifyRequestDecided enqueues a decision notification for the requester.
func (s *NotificationService) NotifyRequestDecided(ctx context.Context, request *models.ChangeRequest) {
	if !s.enabled || request == nil {
		return
	}

	requestID := request.ID
	notification := &models.Notification{
		UserID:    request.RequestedBy,
		RequestID: &requestID,
		Message:   decisionMessage(request),
	}

	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "request_decided",
		Payload: notification,
	}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("request_id", request.ID), zap.Error(err))
	}
}

// List returns the actor's notifications.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(*models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	return s.repo.Create(ctx, notification)
}

func decisionMessage(request *models.ChangeRequest) string {
	switch request.Status {
	case models.RequestStatusApproved:
		return fmt.Sprintf("Your change request for slot %s was approved.", request.OriginalScheduleID)
	case models.RequestStatusRejected:
		reason := ""
		if request.DecisionComment != nil {
			reason = " Reason: " + *request.DecisionComment
		}
		return fmt.Sprintf("Your change request for slot %s was rejected.%s", request.OriginalScheduleID, reason)
	default:
		return fmt.Sprintf("Your change request for slot %s was updated to %s.", request.OriginalScheduleID, request.Status)
	}
}
