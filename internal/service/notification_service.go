package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
	"github.com/noah-isme/dorm-adp-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) error
}

type notificationUserResolver interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type notificationJob struct {
	StudentID string
	Type      models.NotificationType
	Title     string
	Body      string
}

// NotificationService fans out workflow events to in-app notifications via a
// background worker pool. Delivery is best effort; a student without a login
// account simply receives nothing.
type NotificationService struct {
	repo     notificationRepository
	students assignmentStudentReader
	users    notificationUserResolver
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewNotificationService constructs the service and its queue.
func NewNotificationService(repo notificationRepository, students assignmentStudentReader, users notificationUserResolver, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s := &NotificationService{repo: repo, students: students, users: users, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.process, cfg)
	return s
}

// Start launches the notification workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyStudent queues an in-app notification for the student's user account.
func (s *NotificationService) NotifyStudent(studentID string, notificationType models.NotificationType, title, body string) {
	err := s.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: string(notificationType),
		Payload: notificationJob{
			StudentID: studentID,
			Type:      notificationType,
			Title:     title,
			Body:      body,
		},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("student_id", studentID),
			zap.String("type", string(notificationType)),
			zap.Error(err))
	}
}

// ListForUser returns notifications for the authenticated user.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead stamps a notification as read for its owner.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	student, err := s.students.FindByID(ctx, payload.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug("notification dropped, student gone", zap.String("student_id", payload.StudentID))
			return nil
		}
		return fmt.Errorf("load student for notification: %w", err)
	}
	user, err := s.users.FindByEmail(ctx, student.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug("notification dropped, no user account",
				zap.String("student_id", payload.StudentID),
				zap.String("type", string(payload.Type)))
			return nil
		}
		return fmt.Errorf("resolve notification user: %w", err)
	}
	notification := &models.Notification{
		UserID: user.ID,
		Type:   payload.Type,
		Title:  payload.Title,
		Body:   payload.Body,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	return nil
}
