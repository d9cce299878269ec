package admin

import (
	"context"
	"errors"
	"time"

	"wager-service/internal/config"
	"wager-service/internal/model"
	pkgAuth "wager-service/pkg/auth"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service handles operator accounts and their console login.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EnsureDefaultAdmin creates the bootstrap operator account from config when
// no admins exist yet.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, seed config.AdminSeedConfig) error {
	if seed.DefaultUsername == "" || seed.DefaultPassword == "" {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Admin{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := model.Admin{
		Username:     seed.DefaultUsername,
		PasswordHash: string(hash),
		DisplayName:  "Administrator",
		Status:       "active",
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	logger.Log.Info("default admin created", zap.String("username", seed.DefaultUsername))
	return nil
}

// Login checks credentials and returns an admin-scoped token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.Admin, error) {
	var admin model.Admin
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, appErr.ErrInvalidAdminPassword
	}
	if err != nil {
		return "", nil, err
	}
	if admin.Status != "active" {
		return "", nil, appErr.ErrAdminDisabled
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return "", nil, appErr.ErrInvalidAdminPassword
	}

	now := time.Now()
	admin.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Save(&admin).Error; err != nil {
		logger.Log.Warn("record admin login time", zap.Error(err))
	}

	token, err := pkgAuth.GenerateAdminToken(admin.ID)
	if err != nil {
		return "", nil, err
	}
	logger.Log.Info("admin logged in", zap.Int64("admin", admin.ID))
	return token, &admin, nil
}

func (s *Service) GetByID(ctx context.Context, adminID int64) (*model.Admin, error) {
	var admin model.Admin
	err := s.db.WithContext(ctx).First(&admin, adminID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErr.ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}
