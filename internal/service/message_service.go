package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	Thread(ctx context.Context, filter models.MessageFilter) ([]models.Message, int, error)
	Threads(ctx context.Context, userID string) ([]models.MessageThread, error)
	MarkRead(ctx context.Context, id, recipientID string, readAt time.Time) (bool, error)
}

type messageUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// SendMessageRequest describes a direct message payload.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Body        string `json:"body" validate:"required,max=4000"`
}

// MessageService handles direct messaging between staff and students.
type MessageService struct {
	repo      messageRepository
	users     messageUserReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService constructs MessageService.
func NewMessageService(repo messageRepository, users messageUserReader, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{repo: repo, users: users, validator: validate, logger: logger}
}

// Send delivers a message from sender to recipient.
func (s *MessageService) Send(ctx context.Context, senderID string, req SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if senderID == req.RecipientID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot message yourself")
	}
	recipient, err := s.users.FindByID(ctx, req.RecipientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
	}
	if !recipient.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "recipient account inactive")
	}
	message := &models.Message{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Body:        req.Body,
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	s.logger.Debug("message sent", zap.String("message_id", message.ID), zap.String("recipient_id", req.RecipientID))
	return message, nil
}

// Thread returns the conversation between the caller and a counterpart.
func (s *MessageService) Thread(ctx context.Context, userID, counterpartID string, page, pageSize int) ([]models.Message, *models.Pagination, error) {
	messages, total, err := s.repo.Thread(ctx, models.MessageFilter{
		UserID:        userID,
		CounterpartID: counterpartID,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return messages, paginationFor(page, pageSize, total), nil
}

// Threads summarises the caller's conversations.
func (s *MessageService) Threads(ctx context.Context, userID string) ([]models.MessageThread, error) {
	threads, err := s.repo.Threads(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversations")
	}
	return threads, nil
}

// MarkRead marks a received message as read. Only the recipient can read a
// message; anyone else gets not found.
func (s *MessageService) MarkRead(ctx context.Context, id, readerID string) (*models.Message, error) {
	message, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if message.RecipientID != readerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if message.ReadAt != nil {
		return message, nil
	}
	readAt := time.Now().UTC()
	updated, err := s.repo.MarkRead(ctx, id, readerID, readAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark message read")
	}
	if updated {
		message.ReadAt = &readAt
	}
	return message, nil
}
