package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type assignmentRepository interface {
	Assign(ctx context.Context, roomID, studentID string) (*models.Room, error)
	Unassign(ctx context.Context, roomID, studentID string) (*models.Room, error)
}

type assignmentRoomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	Occupants(ctx context.Context, roomID string) ([]models.RoomOccupant, error)
}

type assignmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type studentNotifier interface {
	NotifyStudent(studentID string, notificationType models.NotificationType, title, body string)
}

type roomCacheInvalidator interface {
	InvalidateRooms(ctx context.Context)
}

type assignmentRecorder interface {
	RecordAssignment(action, outcome string)
	SetRoomOccupancy(roomID string, occupied, capacity int)
}

// AssignmentService orchestrates the room/student occupancy workflow. The
// occupancy writes themselves are transactional in the repository; this layer
// adds precondition checks, notifications, cache invalidation and metrics.
type AssignmentService struct {
	repo     assignmentRepository
	rooms    assignmentRoomReader
	students assignmentStudentReader
	notifier studentNotifier
	cache    roomCacheInvalidator
	metrics  assignmentRecorder
	logger   *zap.Logger
}

// NewAssignmentService constructs AssignmentService. Notifier, cache and
// metrics may be nil.
func NewAssignmentService(repo assignmentRepository, rooms assignmentRoomReader, students assignmentStudentReader, notifier studentNotifier, cache roomCacheInvalidator, metrics assignmentRecorder, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, rooms: rooms, students: students, notifier: notifier, cache: cache, metrics: metrics, logger: logger}
}

// Assign places a student into a room and returns the room with its updated
// occupant roster.
func (s *AssignmentService) Assign(ctx context.Context, roomID, studentID string) (*models.RoomDetail, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if room.GenderPreference != models.GenderPreferenceAny && string(room.GenderPreference) != student.Gender {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "room gender preference does not match student")
	}

	updated, err := s.repo.Assign(ctx, roomID, studentID)
	if err != nil {
		s.record("assign", "rejected")
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign student")
	}
	s.record("assign", "ok")
	s.observeOccupancy(updated)
	s.invalidateRooms(ctx)
	if s.notifier != nil {
		s.notifier.NotifyStudent(studentID, models.NotificationRoomAssigned,
			"Room assigned",
			fmt.Sprintf("You have been assigned to room %s.", updated.RoomNumber))
	}
	s.logger.Info("student assigned to room",
		zap.String("room_id", roomID),
		zap.String("student_id", studentID),
		zap.Int("occupied", updated.Occupied),
		zap.Int("capacity", updated.Capacity))

	return s.detail(ctx, updated)
}

// Unassign removes a student from a room and returns the updated room detail.
func (s *AssignmentService) Unassign(ctx context.Context, roomID, studentID string) (*models.RoomDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	updated, err := s.repo.Unassign(ctx, roomID, studentID)
	if err != nil {
		s.record("unassign", "rejected")
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign student")
	}
	s.record("unassign", "ok")
	s.observeOccupancy(updated)
	s.invalidateRooms(ctx)
	if s.notifier != nil {
		s.notifier.NotifyStudent(studentID, models.NotificationRoomUnassigned,
			"Room unassigned",
			fmt.Sprintf("You have been removed from room %s.", updated.RoomNumber))
	}
	s.logger.Info("student unassigned from room",
		zap.String("room_id", roomID),
		zap.String("student_id", studentID),
		zap.Int("occupied", updated.Occupied))

	return s.detail(ctx, updated)
}

func (s *AssignmentService) detail(ctx context.Context, room *models.Room) (*models.RoomDetail, error) {
	occupants, err := s.rooms.Occupants(ctx, room.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room occupants")
	}
	return &models.RoomDetail{Room: *room, Occupants: occupants}, nil
}

func (s *AssignmentService) record(action, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAssignment(action, outcome)
	}
}

func (s *AssignmentService) observeOccupancy(room *models.Room) {
	if s.metrics != nil {
		s.metrics.SetRoomOccupancy(room.ID, room.Occupied, room.Capacity)
	}
}

func (s *AssignmentService) invalidateRooms(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateRooms(ctx)
	}
}
