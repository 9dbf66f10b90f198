package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type applicationRepository interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	ExistsSubmitted(ctx context.Context, studentID, roomID string) (bool, error)
	Create(ctx context.Context, application *models.Application) error
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, decidedBy *string) error
}

type applicationAssigner interface {
	Assign(ctx context.Context, roomID, studentID string) (*models.RoomDetail, error)
	Unassign(ctx context.Context, roomID, studentID string) (*models.RoomDetail, error)
}

// SubmitApplicationRequest describes the payload for a new housing application.
type SubmitApplicationRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	RoomID         string `json:"room_id" validate:"required"`
	PreferredFloor *int   `json:"preferred_floor"`
	RoommateGender string `json:"roommate_gender" validate:"omitempty,oneof=ANY MALE FEMALE"`
	StudyHabits    string `json:"study_habits"`
	SleepSchedule  string `json:"sleep_schedule"`
	QuietStudy     bool   `json:"quiet_study"`
	Note           string `json:"note" validate:"max=2000"`
}

// ApplicationService orchestrates the housing application review workflow.
// Approving an application runs the assignment transaction, so an approval
// against a room that filled up in the meantime fails and leaves the
// application submitted.
type ApplicationService struct {
	repo        applicationRepository
	students    assignmentStudentReader
	rooms       assignmentRoomReader
	assignments applicationAssigner
	notifier    studentNotifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewApplicationService constructs ApplicationService. Notifier may be nil.
func NewApplicationService(repo applicationRepository, students assignmentStudentReader, rooms assignmentRoomReader, assignments applicationAssigner, notifier studentNotifier, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, students: students, rooms: rooms, assignments: assignments, notifier: notifier, validator: validate, logger: logger}
}

// List returns applications with pagination metadata.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	applications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return applications, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single application with student and room labels.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return detail, nil
}

// Submit files a new application. Submission never touches occupancy.
func (s *ApplicationService) Submit(ctx context.Context, req SubmitApplicationRequest) (*models.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}
	room, err := s.rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if room.GenderPreference != models.GenderPreferenceAny && string(room.GenderPreference) != student.Gender {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "room gender preference does not match student")
	}
	exists, err := s.repo.ExistsSubmitted(ctx, req.StudentID, req.RoomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate application")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application already submitted for this room")
	}

	application := &models.Application{
		StudentID:      req.StudentID,
		RoomID:         req.RoomID,
		Status:         models.ApplicationStatusSubmitted,
		PreferredFloor: req.PreferredFloor,
		RoommateGender: req.RoommateGender,
		StudyHabits:    req.StudyHabits,
		SleepSchedule:  req.SleepSchedule,
		QuietStudy:     req.QuietStudy,
		Note:           req.Note,
	}
	if err := s.repo.Create(ctx, application); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	s.logger.Info("application submitted",
		zap.String("application_id", application.ID),
		zap.String("student_id", req.StudentID),
		zap.String("room_id", req.RoomID))
	return s.detailOf(ctx, application.ID)
}

// Approve accepts a submitted application and assigns the student to the
// applied room in the same call. The status flips only after the assignment
// transaction commits.
func (s *ApplicationService) Approve(ctx context.Context, id, decidedBy string) (*models.ApplicationDetail, error) {
	application, err := s.loadSubmitted(ctx, id)
	if err != nil {
		return nil, err
	}
	detail, err := s.assignments.Assign(ctx, application.RoomID, application.StudentID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ApplicationStatusApproved, &decidedBy); err != nil {
		// The assignment already committed; release the room again so the
		// application stays SUBMITTED and a retried approval can succeed.
		if _, unassignErr := s.assignments.Unassign(ctx, application.RoomID, application.StudentID); unassignErr != nil {
			s.logger.Error("failed to release room after status write failure",
				zap.String("application_id", id),
				zap.String("room_id", application.RoomID),
				zap.String("student_id", application.StudentID),
				zap.Error(unassignErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}
	if s.notifier != nil {
		s.notifier.NotifyStudent(application.StudentID, models.NotificationAppApproved,
			"Application approved",
			fmt.Sprintf("Your application for room %s was approved.", detail.RoomNumber))
	}
	s.logger.Info("application approved", zap.String("application_id", id), zap.String("decided_by", decidedBy))
	return s.detailOf(ctx, id)
}

// Reject declines a submitted application.
func (s *ApplicationService) Reject(ctx context.Context, id, decidedBy, reason string) (*models.ApplicationDetail, error) {
	application, err := s.loadSubmitted(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ApplicationStatusRejected, &decidedBy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}
	if s.notifier != nil {
		body := "Your housing application was rejected."
		if reason != "" {
			body = fmt.Sprintf("Your housing application was rejected: %s", reason)
		}
		s.notifier.NotifyStudent(application.StudentID, models.NotificationAppRejected, "Application rejected", body)
	}
	s.logger.Info("application rejected", zap.String("application_id", id), zap.String("decided_by", decidedBy))
	return s.detailOf(ctx, id)
}

// Cancel withdraws a submitted application. Only the applicant withdraws;
// staff decisions go through Approve or Reject.
func (s *ApplicationService) Cancel(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	if _, err := s.loadSubmitted(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ApplicationStatusCancelled, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}
	s.logger.Info("application cancelled", zap.String("application_id", id))
	return s.detailOf(ctx, id)
}

func (s *ApplicationService) detailOf(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}

func (s *ApplicationService) loadSubmitted(ctx context.Context, id string) (*models.Application, error) {
	application, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if application.Status != models.ApplicationStatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("application already %s", application.Status))
	}
	return application, nil
}
