package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wager-service/internal/model"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"
	"wager-service/pkg/utils/random"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages player accounts: lookup, creation on first login, bans and
// gaming suspensions.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErr.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateByPhone finds the account for a phone number, creating it on
// first login.
func (s *Service) GetOrCreateByPhone(ctx context.Context, phone string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u = model.User{
		Phone:      phone,
		Nickname:   "player" + random.Numeric(6),
		InviteCode: random.Code(8),
		Status:     "normal",
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("user registered", zap.Int64("user", u.ID))
	return &u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, nickname, avatar string) (*model.User, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if nickname != "" {
		u.Nickname = nickname
	}
	if avatar != "" {
		u.Avatar = avatar
	}
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// Suspend blocks a user from betting until the given time. Their balance and
// withdrawals are unaffected.
func (s *Service) Suspend(ctx context.Context, userID int64, until time.Time, reason string) (*model.User, error) {
	if until.Before(time.Now()) {
		return nil, appErr.ErrInvalidSuspendPayload
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.GamingSuspendedUntil = &until
	u.SuspendReason = reason
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("user suspended",
		zap.Int64("user", userID),
		zap.Time("until", until),
		zap.String("reason", reason),
	)
	return u, nil
}

// LiftSuspension clears an active suspension early.
func (s *Service) LiftSuspension(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.GamingSuspendedUntil = nil
	u.SuspendReason = ""
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// SetStatus bans or restores an account.
func (s *Service) SetStatus(ctx context.Context, userID int64, status string) (*model.User, error) {
	if status != "normal" && status != "banned" {
		return nil, fmt.Errorf("unknown user status %q", status)
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Status = status
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// List pages users for the admin console.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]model.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []model.User
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	return users, total, err
}
