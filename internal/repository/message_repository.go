package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-adp-api/internal/models"
)

// MessageRepository handles persistence of direct messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a new message.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, recipient_id, body, read_at, created_at)
        VALUES (:id, :sender_id, :recipient_id, :body, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FindByID returns a single message.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	const query = `SELECT id, sender_id, recipient_id, body, read_at, created_at FROM messages WHERE id = $1`
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, id); err != nil {
		return nil, err
	}
	return &message, nil
}

// Thread returns the conversation between two users, newest first.
func (r *MessageRepository) Thread(ctx context.Context, filter models.MessageFilter) ([]models.Message, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, sender_id, recipient_id, body, read_at, created_at
        FROM messages
        WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
        ORDER BY created_at DESC LIMIT %d OFFSET %d`, size, offset)
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, filter.UserID, filter.CounterpartID); err != nil {
		return nil, 0, fmt.Errorf("list thread: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM messages
        WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, filter.UserID, filter.CounterpartID); err != nil {
		return nil, 0, fmt.Errorf("count thread: %w", err)
	}
	return messages, total, nil
}

// Threads summarises conversations involving the user, most recent first.
func (r *MessageRepository) Threads(ctx context.Context, userID string) ([]models.MessageThread, error) {
	const query = `SELECT c.counterpart_id, u.full_name AS counterpart_name, c.last_body, c.last_at, c.unread_count
        FROM (
            SELECT DISTINCT ON (counterpart_id)
                CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS counterpart_id,
                body AS last_body,
                created_at AS last_at,
                (SELECT COUNT(*) FROM messages mu WHERE mu.recipient_id = $1
                    AND mu.sender_id = CASE WHEN m.sender_id = $1 THEN m.recipient_id ELSE m.sender_id END
                    AND mu.read_at IS NULL) AS unread_count
            FROM messages m
            WHERE sender_id = $1 OR recipient_id = $1
            ORDER BY counterpart_id, created_at DESC
        ) c
        LEFT JOIN users u ON u.id = c.counterpart_id
        ORDER BY c.last_at DESC`
	var threads []models.MessageThread
	if err := r.db.SelectContext(ctx, &threads, query, userID); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

// MarkRead stamps a message as read by its recipient. Returns false when the
// message does not belong to the reader or was already read.
func (r *MessageRepository) MarkRead(ctx context.Context, id, recipientID string, readAt time.Time) (bool, error) {
	const query = `UPDATE messages SET read_at = $3 WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, recipientID, readAt)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	return affected > 0, nil
}
