package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/types"
)

// ContactService stores contact messages and notifies the admin in the background.
type ContactService struct {
	db       *gorm.DB
	email    IEmailService
	validate *validator.Validate
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewContactService(db *gorm.DB, email IEmailService, log *zap.Logger) *ContactService {
	return &ContactService{
		db:       db,
		email:    email,
		validate: newValidator(),
		log:      log,
	}
}

func (s *ContactService) Submit(ctx context.Context, req *types.ContactRequest, userID *uuid.UUID, userAgent string) (*models.ContactMessage, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	userAgent = truncate(userAgent, 255)

	msg := models.ContactMessage{
		UserID:    userID,
		Name:      req.Name,
		Email:     req.Email,
		Subject:   strings.TrimSpace(req.Subject),
		Message:   req.Message,
		UserAgent: userAgent,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to save contact message: %w", err)
	}

	notified := msg
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.email.SendContactNotification(&notified); err != nil {
			s.log.Warn("Failed to send contact notification",
				zap.String("message_id", notified.ID.String()),
				zap.Error(err))
		}
	}()

	return &msg, nil
}

// Wait blocks until every pending notification has finished.
func (s *ContactService) Wait() {
	s.wg.Wait()
}
