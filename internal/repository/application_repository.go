package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-adp-api/internal/models"
)

// ApplicationRepository handles persistence of housing applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	base := `FROM applications a
LEFT JOIN students s ON s.id = a.student_id
LEFT JOIN rooms r ON r.id = a.room_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("a.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "a.created_at",
		"student_name": "s.full_name",
		"room_number":  "r.room_number",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "a.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.room_id, a.status, a.preferred_floor, a.roommate_gender, a.study_habits, a.sleep_schedule, a.quiet_study, a.note, a.decided_by, a.decided_at, a.created_at, a.updated_at,
        s.full_name AS student_name, s.student_number AS student_number, r.room_number AS room_number
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var applications []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	const query = `SELECT id, student_id, room_id, status, preferred_floor, roommate_gender, study_habits, sleep_schedule, quiet_study, note, decided_by, decided_at, created_at, updated_at
        FROM applications WHERE id = $1`
	var application models.Application
	if err := r.db.GetContext(ctx, &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// FindDetailByID returns an application with contextual info.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.student_id, a.room_id, a.status, a.preferred_floor, a.roommate_gender, a.study_habits, a.sleep_schedule, a.quiet_study, a.note, a.decided_by, a.decided_at, a.created_at, a.updated_at,
        s.full_name AS student_name, s.student_number AS student_number, r.room_number AS room_number
        FROM applications a
        LEFT JOIN students s ON s.id = a.student_id
        LEFT JOIN rooms r ON r.id = a.room_id
        WHERE a.id = $1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsSubmitted checks if the student already has a pending application for the room.
func (r *ApplicationRepository) ExistsSubmitted(ctx context.Context, studentID, roomID string) (bool, error) {
	const query = `SELECT 1 FROM applications WHERE student_id = $1 AND room_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, roomID, models.ApplicationStatusSubmitted); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check submitted application: %w", err)
	}
	return true, nil
}

// Create persists a new application record.
func (r *ApplicationRepository) Create(ctx context.Context, application *models.Application) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if application.CreatedAt.IsZero() {
		application.CreatedAt = now
	}
	application.UpdatedAt = now
	if application.Status == "" {
		application.Status = models.ApplicationStatusSubmitted
	}
	const query = `INSERT INTO applications (id, student_id, room_id, status, preferred_floor, roommate_gender, study_habits, sleep_schedule, quiet_study, note, decided_by, decided_at, created_at, updated_at)
        VALUES (:id, :student_id, :room_id, :status, :preferred_floor, :roommate_gender, :study_habits, :sleep_schedule, :quiet_study, :note, :decided_by, :decided_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// UpdateStatus records a review decision on an application.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, decidedBy *string) error {
	now := time.Now().UTC()
	const query = `UPDATE applications SET status = $2, decided_by = $3, decided_at = $4, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, decidedBy, now); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}
