package auth

import (
	"context"
	"errors"
	"regexp"
	"time"

	"wager-service/internal/model"
	"wager-service/internal/service/user"
	pkgAuth "wager-service/pkg/auth"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"
	"wager-service/pkg/utils/random"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	smsCodeKeyPrefix = "sms:code:"
	smsCodeTTL       = 5 * time.Minute
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// Service handles phone login: send a short-lived SMS code, verify it, issue
// a JWT. Codes live in redis so any instance can verify a code another one
// sent.
type Service struct {
	users *user.Service
	rdb   *redis.Client
}

func New(users *user.Service, rdb *redis.Client) *Service {
	return &Service{users: users, rdb: rdb}
}

// SendCode stores a fresh login code for the phone. Actual SMS delivery is
// an operator integration; the code is logged for development setups.
func (s *Service) SendCode(ctx context.Context, phone string) error {
	if !phonePattern.MatchString(phone) {
		return appErr.ErrInvalidPhone
	}
	code := random.Numeric(6)
	if err := s.rdb.Set(ctx, smsCodeKeyPrefix+phone, code, smsCodeTTL).Err(); err != nil {
		return err
	}
	logger.Log.Info("sms code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

// Login verifies the code, creates the account on first login and returns a
// token. The code is single-use.
func (s *Service) Login(ctx context.Context, phone, code string) (string, *model.User, error) {
	if !phonePattern.MatchString(phone) {
		return "", nil, appErr.ErrInvalidPhone
	}

	key := smsCodeKeyPrefix + phone
	stored, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, appErr.ErrSMSCodeExpired
	}
	if err != nil {
		return "", nil, err
	}
	if stored != code {
		return "", nil, appErr.ErrInvalidSMSCode
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logger.Log.Warn("delete used sms code", zap.Error(err))
	}

	u, err := s.users.GetOrCreateByPhone(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	if u.Status == "banned" {
		return "", nil, appErr.ErrUserBanned
	}

	token, err := pkgAuth.GenerateUserToken(u.ID)
	if err != nil {
		return "", nil, err
	}
	logger.Log.Info("user logged in", zap.Int64("user", u.ID))
	return token, u, nil
}
